package llm

import (
	"context"
	"fmt"
	"os"
	"strings"

	"cloud.google.com/go/vertexai/genai"
)

const defaultVertexModel = "gemini-1.5-flash"

// VertexAIClient wraps the Vertex AI Gemini API
type VertexAIClient struct {
	client    *genai.Client
	model     *genai.GenerativeModel
	modelName string
	projectID string
	location  string
}

// NewVertexAIClient creates a new Vertex AI client. The project falls back to
// GOOGLE_CLOUD_PROJECT and the location to GOOGLE_CLOUD_LOCATION.
func NewVertexAIClient(ctx context.Context, cfg Config) (*VertexAIClient, error) {
	projectID := strings.TrimSpace(cfg.ProjectID)
	if projectID == "" {
		projectID = os.Getenv("GOOGLE_CLOUD_PROJECT")
	}
	if projectID == "" {
		return nil, fmt.Errorf("vertex ai project not set (llm.project-id or GOOGLE_CLOUD_PROJECT)")
	}

	location := strings.TrimSpace(cfg.Location)
	if location == "" {
		location = os.Getenv("GOOGLE_CLOUD_LOCATION")
	}
	if location == "" {
		location = "us-central1"
	}

	client, err := genai.NewClient(ctx, projectID, location)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vertex AI client: %w", err)
	}

	modelName := strings.TrimSpace(cfg.Model)
	if modelName == "" {
		modelName = defaultVertexModel
	}

	model := client.GenerativeModel(modelName)
	model.SetTemperature(cfg.Temperature)
	model.SetTopK(40)
	model.SetTopP(0.95)
	if cfg.MaxOutputTokens > 0 {
		model.SetMaxOutputTokens(cfg.MaxOutputTokens)
	}
	model.ResponseMIMEType = "application/json"

	return &VertexAIClient{
		client:    client,
		model:     model,
		modelName: modelName,
		projectID: projectID,
		location:  location,
	}, nil
}

// GenerateContent sends a prompt to the model and returns the response
func (v *VertexAIClient) GenerateContent(ctx context.Context, prompt string) (string, error) {
	resp, err := v.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("no response candidates returned")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}

	return sb.String(), nil
}

// Model returns the configured model name
func (v *VertexAIClient) Model() string {
	return v.modelName
}

// Close closes the Vertex AI client
func (v *VertexAIClient) Close() error {
	return v.client.Close()
}
