package ingestion

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/fmuoria/ranksense/internal/logger"
)

// ErrNoMessages is returned when no message matches the subject filter.
var ErrNoMessages = errors.New("no messages found")

// ProgressFunc receives download progress: messages processed so far and total.
type ProgressFunc func(done, total int, message string)

// CodePrompt shows the OAuth consent URL and returns the code the user pasted.
type CodePrompt func(authURL string) (string, error)

// GmailConfig locates the OAuth client credentials and cached token.
type GmailConfig struct {
	CredentialsFile string `mapstructure:"credentials-file"`
	TokenFile       string `mapstructure:"token-file"`
}

// GmailHandler manages Gmail operations for fetching attachments
type GmailHandler struct {
	service    *gmail.Service
	uploadsDir string
	logger     *zap.Logger
}

// NewGmailHandler creates a new Gmail handler. When no cached token exists the
// installed-app flow asks prompt for an authorization code; a nil prompt makes
// a missing token an error.
func NewGmailHandler(ctx context.Context, cfg GmailConfig, uploadsDir string, prompt CodePrompt, log *zap.Logger) (*GmailHandler, error) {
	b, err := os.ReadFile(cfg.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %w", err)
	}

	config, err := google.ConfigFromJSON(b, gmail.GmailReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %w", err)
	}

	log = logger.OrNop(log)
	client, err := getClient(ctx, config, cfg.TokenFile, prompt, log)
	if err != nil {
		return nil, err
	}

	srv, err := gmail.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("unable to create Gmail client: %w", err)
	}

	return &GmailHandler{
		service:    srv,
		uploadsDir: uploadsDir,
		logger:     log,
	}, nil
}

// getClient retrieves a token, saves it, then returns the generated client
func getClient(ctx context.Context, config *oauth2.Config, tokFile string, prompt CodePrompt, log *zap.Logger) (*http.Client, error) {
	tok, err := tokenFromFile(tokFile)
	if err != nil {
		if prompt == nil {
			return nil, fmt.Errorf("no cached gmail token at %s; run `ranksense gmail-auth` first", tokFile)
		}
		tok, err = getTokenFromWeb(ctx, config, prompt)
		if err != nil {
			return nil, err
		}
		if err := saveToken(tokFile, tok); err != nil {
			return nil, err
		}
		log.Info("saved gmail token", zap.String("path", tokFile))
	}
	return config.Client(ctx, tok), nil
}

// getTokenFromWeb requests a token from the web
func getTokenFromWeb(ctx context.Context, config *oauth2.Config, prompt CodePrompt) (*oauth2.Token, error) {
	authURL := config.AuthCodeURL("state-token", oauth2.AccessTypeOffline)

	authCode, err := prompt(authURL)
	if err != nil {
		return nil, fmt.Errorf("unable to read authorization code: %w", err)
	}
	authCode = strings.TrimSpace(authCode)
	if authCode == "" {
		return nil, errors.New("empty authorization code")
	}

	tok, err := config.Exchange(ctx, authCode)
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve token from web: %w", err)
	}
	return tok, nil
}

// tokenFromFile retrieves a token from a local file
func tokenFromFile(file string) (*oauth2.Token, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	err = json.NewDecoder(f).Decode(tok)
	return tok, err
}

// saveToken saves a token to a file path
func saveToken(path string, token *oauth2.Token) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("unable to create token directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("unable to cache oauth token: %w", err)
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(token)
}

// FetchAttachments downloads attachments of messages matching subject into the
// uploads directory and returns the number of files written.
func (gh *GmailHandler) FetchAttachments(ctx context.Context, subject string, progress ProgressFunc) (int, error) {
	if err := os.MkdirAll(gh.uploadsDir, 0o755); err != nil {
		return 0, fmt.Errorf("failed to create uploads directory: %w", err)
	}

	const user = "me"
	query := fmt.Sprintf("subject:(%s) has:attachment", subject)

	var messages []*gmail.Message
	err := gh.service.Users.Messages.List(user).Q(query).Pages(ctx, func(page *gmail.ListMessagesResponse) error {
		messages = append(messages, page.Messages...)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("unable to retrieve messages: %w", err)
	}

	if len(messages) == 0 {
		return 0, fmt.Errorf("%w with subject: %s", ErrNoMessages, subject)
	}

	saved := 0
	for i, msg := range messages {
		if err := ctx.Err(); err != nil {
			return saved, err
		}
		if progress != nil {
			progress(i, len(messages), fmt.Sprintf("Fetching message %d/%d", i+1, len(messages)))
		}

		message, err := gh.service.Users.Messages.Get(user, msg.Id).Context(ctx).Do()
		if err != nil {
			gh.logger.Warn("unable to retrieve message", zap.String("message_id", msg.Id), zap.Error(err))
			continue
		}

		sender := extractSenderName(message)
		for _, part := range attachmentParts(message.Payload) {
			if !SupportedExtension(part.Filename) {
				continue
			}

			attachment, err := gh.service.Users.Messages.Attachments.Get(user, msg.Id, part.Body.AttachmentId).Context(ctx).Do()
			if err != nil {
				gh.logger.Warn("unable to retrieve attachment", zap.String("file", part.Filename), zap.Error(err))
				continue
			}

			data, err := base64.URLEncoding.DecodeString(attachment.Data)
			if err != nil {
				gh.logger.Warn("unable to decode attachment", zap.String("file", part.Filename), zap.Error(err))
				continue
			}

			newFilename := attachmentFilename(sender, part.Filename)
			filePath, err := writeUnique(gh.uploadsDir, newFilename, bytes.NewReader(data))
			if err != nil {
				gh.logger.Warn("unable to write attachment", zap.String("file", newFilename), zap.Error(err))
				continue
			}

			saved++
			gh.logger.Info("downloaded attachment", zap.String("file", filepath.Base(filePath)))
		}
	}

	if progress != nil {
		progress(len(messages), len(messages), fmt.Sprintf("Downloaded %d attachments", saved))
	}

	return saved, nil
}

// attachmentParts walks nested multipart payloads.
func attachmentParts(p *gmail.MessagePart) []*gmail.MessagePart {
	if p == nil {
		return nil
	}
	var out []*gmail.MessagePart
	if p.Filename != "" && p.Body != nil && p.Body.AttachmentId != "" {
		out = append(out, p)
	}
	for _, child := range p.Parts {
		out = append(out, attachmentParts(child)...)
	}
	return out
}

// attachmentFilename renames to SenderName_CV.ext or SenderName_CoverLetter.ext.
func attachmentFilename(sender, filename string) string {
	filename = sanitizeFilename(filename)
	ext := filepath.Ext(filename)
	base := strings.ToLower(strings.TrimSuffix(filename, ext))

	switch {
	case strings.Contains(base, "cv") || strings.Contains(base, "resume"):
		return fmt.Sprintf("%s_CV%s", sender, ext)
	case strings.Contains(base, "cover") || strings.Contains(base, "letter"):
		return fmt.Sprintf("%s_CoverLetter%s", sender, ext)
	default:
		return fmt.Sprintf("%s_%s", sender, filename)
	}
}

// extractSenderName extracts the sender's name from email headers
func extractSenderName(message *gmail.Message) string {
	if message == nil || message.Payload == nil {
		return "Unknown"
	}
	for _, header := range message.Payload.Headers {
		if !strings.EqualFold(header.Name, "From") {
			continue
		}
		from := header.Value
		if idx := strings.Index(from, "<"); idx > 0 {
			name := strings.Trim(strings.TrimSpace(from[:idx]), `"`)
			if name = strings.ReplaceAll(name, " ", ""); name != "" {
				return sanitizeSender(name)
			}
			from = from[idx+1:]
		}
		if idx := strings.Index(from, "@"); idx > 0 {
			return sanitizeSender(from[:idx])
		}
		return "Unknown"
	}
	return "Unknown"
}

// sanitizeSender keeps the sender usable as a file name prefix; underscores
// would break Name_Type grouping.
func sanitizeSender(s string) string {
	s = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', '_', ':', '*', '?', '"', '<', '>', '|':
			return -1
		}
		return r
	}, s)
	if s == "" {
		return "Unknown"
	}
	return s
}
