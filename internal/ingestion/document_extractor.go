package ingestion

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/nguyenthenguyen/docx"
)

const (
	// MinExtractedTextLength is the minimum text length required for successful extraction
	MinExtractedTextLength = 50
	// BinarySampleSize is the number of bytes to sample for binary detection
	BinarySampleSize = 1000
	// BinaryThreshold is the proportion of non-printable characters that indicates binary data
	BinaryThreshold = 0.3
)

// ErrUnsupportedType is returned for files that are not PDF, DOC, DOCX or TXT.
var ErrUnsupportedType = errors.New("unsupported file type")

var supportedExtensions = map[string]bool{
	".pdf":  true,
	".txt":  true,
	".doc":  true,
	".docx": true,
}

// SupportedExtension reports whether the file name has an extension ExtractText handles.
func SupportedExtension(filename string) bool {
	return supportedExtensions[strings.ToLower(filepath.Ext(filename))]
}

// ExtractText extracts text from PDF, DOCX, DOC, or TXT files
func ExtractText(ctx context.Context, filePath string) (string, error) {
	ext := strings.ToLower(filepath.Ext(filePath))

	switch ext {
	case ".txt":
		return extractTXT(filePath)
	case ".pdf":
		return extractPDF(ctx, filePath)
	case ".doc":
		return extractDOC(ctx, filePath)
	case ".docx":
		return extractDOCX(filePath)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, ext)
	}
}

func extractTXT(filePath string) (string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", filePath, err)
	}
	text := string(data)
	if IsBinaryData(text) {
		return "", fmt.Errorf("file %s looks binary despite .txt extension", filePath)
	}
	return text, nil
}

// extractPDF extracts text from PDF using pdftotext
func extractPDF(ctx context.Context, filePath string) (string, error) {
	cmd := exec.CommandContext(ctx, "pdftotext", "-layout", filePath, "-")
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("PDF extraction requires 'pdftotext' (install poppler-utils): %w", err)
	}

	text := string(output)
	if len(strings.TrimSpace(text)) < MinExtractedTextLength {
		return "", fmt.Errorf("extracted text is too short (likely a scanned PDF): %s", filePath)
	}

	return text, nil
}

// extractDOC extracts text from legacy Word files using antiword
func extractDOC(ctx context.Context, filePath string) (string, error) {
	cmd := exec.CommandContext(ctx, "antiword", filePath)
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("DOC extraction requires 'antiword': %w", err)
	}
	return string(output), nil
}

// extractDOCX reads word/document.xml and flattens it to paragraphs of text
func extractDOCX(filePath string) (string, error) {
	r, err := docx.ReadDocxFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to open DOCX %s: %w", filePath, err)
	}
	defer r.Close()

	text, err := documentXMLText(r.Editable().GetContent())
	if err != nil {
		return "", fmt.Errorf("failed to parse DOCX %s: %w", filePath, err)
	}
	if len(strings.TrimSpace(text)) < MinExtractedTextLength {
		return "", fmt.Errorf("extracted text is too short from: %s", filePath)
	}
	return text, nil
}

// documentXMLText collects <w:t> runs, breaking lines at paragraphs, breaks and tabs.
func documentXMLText(content string) (string, error) {
	dec := xml.NewDecoder(strings.NewReader(content))
	var (
		sb     strings.Builder
		inText bool
	)

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				sb.WriteByte('\t')
			case "br", "cr":
				sb.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				sb.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				sb.Write(t)
			}
		}
	}

	return strings.TrimSpace(sb.String()), nil
}

// IsBinaryData checks if content appears to be binary (PDF/ZIP markers)
func IsBinaryData(content string) bool {
	if len(content) == 0 {
		return false
	}

	if strings.HasPrefix(content, "%PDF-") {
		return true
	}

	// ZIP magic number (DOCX files)
	if strings.HasPrefix(content, "PK") {
		return true
	}

	sampleSize := min(BinarySampleSize, len(content))
	nonPrintable := 0
	for i := 0; i < sampleSize; i++ {
		ch := content[i]
		if ch < 32 && ch != '\n' && ch != '\r' && ch != '\t' {
			nonPrintable++
		}
	}

	return float64(nonPrintable)/float64(sampleSize) > BinaryThreshold
}
