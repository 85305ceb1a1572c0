package ingestion

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/fmuoria/ranksense/internal/logger"
	"github.com/fmuoria/ranksense/internal/models"
)

// FileHandler manages file operations for resume and cover letter ingestion
type FileHandler struct {
	uploadsDir string
	logger     *zap.Logger
}

// NewFileHandler creates a new file handler
func NewFileHandler(uploadsDir string, log *zap.Logger) *FileHandler {
	return &FileHandler{
		uploadsDir: uploadsDir,
		logger:     logger.OrNop(log),
	}
}

// Dir returns the uploads directory
func (fh *FileHandler) Dir() string {
	return fh.uploadsDir
}

// SaveUploadedFile saves an uploaded file to the uploads directory under its
// base name. An existing file is never replaced: the copy is stored as
// "name (2).ext", "name (3).ext" and so on.
func (fh *FileHandler) SaveUploadedFile(filename string, content io.Reader) (string, error) {
	name := sanitizeFilename(filename)
	if name == "" {
		return "", fmt.Errorf("invalid file name %q", filename)
	}

	if err := os.MkdirAll(fh.uploadsDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create uploads directory: %w", err)
	}

	return writeUnique(fh.uploadsDir, name, content)
}

// LoadDocuments loads every supported document from the uploads directory
func (fh *FileHandler) LoadDocuments(ctx context.Context) ([]models.ResumeDocument, error) {
	entries, err := os.ReadDir(fh.uploadsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []models.ResumeDocument{}, nil
		}
		return nil, fmt.Errorf("failed to read uploads directory: %w", err)
	}

	paths := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		paths = append(paths, filepath.Join(fh.uploadsDir, e.Name()))
	}

	return fh.LoadFiles(ctx, paths)
}

// LoadFiles extracts text from the given files and groups them per applicant.
//
// Files named "Name_CV.ext" and "Name_CoverLetter.ext" are paired; any other
// supported file is a standalone resume. A second resume for a name already
// taken becomes its own applicant, "Name (2)". Files that fail extraction are
// logged and skipped. The result is sorted by applicant name.
func (fh *FileHandler) LoadFiles(ctx context.Context, paths []string) ([]models.ResumeDocument, error) {
	applicants := make(map[string]*models.ResumeDocument)

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		filename := filepath.Base(path)
		if !SupportedExtension(filename) {
			continue
		}

		name, kind := classify(filename)

		content, err := ExtractText(ctx, path)
		if err != nil {
			fh.logger.Warn("skipping document", zap.String("file", filename), zap.Error(err))
			continue
		}

		doc := slotFor(applicants, name, kind)

		switch kind {
		case docCoverLetter:
			doc.CoverLetter = content
			doc.CoverLetterPath = path
		default:
			doc.Content = content
			doc.Filename = filename
			doc.Path = path
		}
	}

	documents := make([]models.ResumeDocument, 0, len(applicants))
	for _, doc := range applicants {
		if strings.TrimSpace(doc.Content) == "" {
			fh.logger.Debug("applicant has no resume, skipping", zap.String("applicant", doc.Name))
			continue
		}
		documents = append(documents, *doc)
	}

	sort.Slice(documents, func(i, j int) bool {
		return documents[i].Name < documents[j].Name
	})

	return documents, nil
}

// Discard removes the handler's directory and everything in it. Only use it
// on a directory the handler owns, never on the shared uploads root.
func (fh *FileHandler) Discard() error {
	if err := os.RemoveAll(fh.uploadsDir); err != nil {
		return fmt.Errorf("failed to remove %s: %w", fh.uploadsDir, err)
	}
	return nil
}

type docKind int

const (
	docResume docKind = iota
	docCoverLetter
)

// slotFor returns the first applicant entry named name, "name (2)", ... that
// has no document of the given kind yet, creating it when needed.
func slotFor(applicants map[string]*models.ResumeDocument, name string, kind docKind) *models.ResumeDocument {
	for n := 1; ; n++ {
		key := name
		if n > 1 {
			key = fmt.Sprintf("%s (%d)", name, n)
		}
		doc := applicants[key]
		if doc == nil {
			doc = &models.ResumeDocument{Name: key}
			applicants[key] = doc
			return doc
		}
		if kind == docCoverLetter && doc.CoverLetterPath == "" {
			return doc
		}
		if kind == docResume && doc.Path == "" {
			return doc
		}
	}
}

// copySuffix matches the " (2)" marker SaveUploadedFile adds to duplicates.
var copySuffix = regexp.MustCompile(` \(\d+\)$`)

// classify splits "Applicant_Name_Type.ext" into the applicant name and
// document kind. Trailing type segments such as "CV", "Resume" or
// "Cover_Letter" are stripped; everything before them is the name.
func classify(filename string) (string, docKind) {
	base := strings.TrimSuffix(filename, filepath.Ext(filename))
	base = copySuffix.ReplaceAllString(base, "")

	parts := strings.Split(base, "_")
	end := len(parts)
	kind := docResume
	for end > 1 {
		k, ok := typeSegments[strings.ToLower(parts[end-1])]
		if !ok {
			break
		}
		if k == docCoverLetter {
			kind = docCoverLetter
		}
		end--
	}

	name := strings.Join(parts[:end], "_")
	if end == len(parts) || name == "" {
		return base, docResume
	}
	return name, kind
}

var typeSegments = map[string]docKind{
	"cv":          docResume,
	"resume":      docResume,
	"cover":       docCoverLetter,
	"letter":      docCoverLetter,
	"coverletter": docCoverLetter,
	"cl":          docCoverLetter,
}

// writeUnique copies content to a new file in dir named after name and
// returns its path.
func writeUnique(dir, name string, content io.Reader) (string, error) {
	file, path, err := createUnique(dir, name)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}

	if _, err := io.Copy(file, content); err != nil {
		file.Close()
		os.Remove(path)
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	if err := file.Close(); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	return path, nil
}

// createUnique opens dir/name for writing, adding " (n)" before the
// extension until the name is free.
func createUnique(dir, name string) (*os.File, string, error) {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for n := 1; ; n++ {
		candidate := name
		if n > 1 {
			candidate = fmt.Sprintf("%s (%d)%s", stem, n, ext)
		}
		path := filepath.Join(dir, candidate)
		file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return file, path, nil
		}
		if !os.IsExist(err) {
			return nil, "", err
		}
	}
}

func sanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.TrimSpace(name)
	if name == "." || name == ".." || name == "/" {
		return ""
	}
	return name
}
