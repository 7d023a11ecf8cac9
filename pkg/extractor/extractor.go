// Package extractor turns course documents and pages into normalized
// ExtractedContent. Extraction is heuristic; per-page problems are recorded
// on the content rather than returned.
package extractor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xhad/dqcheck/internal/models"
	"github.com/xhad/dqcheck/internal/types"
	"github.com/xhad/dqcheck/pkg/scraper"
)

var (
	ErrNotFound          = errors.New("file not found")
	ErrUnsupportedFormat = errors.New("unsupported file format")
)

const emptyFileError = "File is empty (0 bytes)"

var extensionFormats = map[string]models.DocumentFormat{
	".pdf":      models.FormatPDF,
	".docx":     models.FormatDOCX,
	".pptx":     models.FormatPPTX,
	".odt":      models.FormatODT,
	".xlsx":     models.FormatXLSX,
	".html":     models.FormatHTML,
	".htm":      models.FormatHTML,
	".md":       models.FormatMarkdown,
	".markdown": models.FormatMarkdown,
	".txt":      models.FormatText,
}

// SupportedExtensions lists the file extensions Extract accepts.
func SupportedExtensions() []string {
	return []string{".pdf", ".docx", ".pptx", ".odt", ".xlsx", ".html", ".htm", ".md", ".markdown", ".txt"}
}

// DetectFormat maps a file name to its document format.
func DetectFormat(path string) (models.DocumentFormat, error) {
	ext := strings.ToLower(filepath.Ext(path))
	format, ok := extensionFormats[ext]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	return format, nil
}

func IsURL(path string) bool {
	lower := strings.ToLower(path)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

type ExtractorConfig struct {
	Scraper scraper.ScraperConfig
	Logger  *slog.Logger
}

type Extractor struct {
	config ExtractorConfig
}

var _ types.Extractor = (*Extractor)(nil)

func NewWithConfig(config ExtractorConfig) *Extractor {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Extractor{config: config}
}

// Extract reads the file or URL at path. Errors are returned only for
// missing files, unsupported formats and read failures.
func (e *Extractor) Extract(ctx context.Context, path string) (*models.ExtractedContent, error) {
	if IsURL(path) {
		return e.extractURL(ctx, path)
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}

	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}

	filename := filepath.Base(path)
	if info.Size() == 0 {
		content := newContent(filename, format, nil)
		content.ExtractionErrors = []string{emptyFileError}
		return content, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	e.config.Logger.Info("Starting extraction", slog.String("file", filename), slog.String("format", string(format)))

	content := newContent(filename, format, data)
	switch format {
	case models.FormatPDF:
		extractPDF(data, content)
	case models.FormatDOCX, models.FormatPPTX, models.FormatODT:
		extractOffice(data, content)
	case models.FormatXLSX:
		extractSpreadsheet(data, content)
	case models.FormatHTML:
		extractHTML(data, content)
	case models.FormatMarkdown:
		extractMarkdown(string(data), content)
	case models.FormatText:
		extractText(string(data), content)
	}
	finalize(content)

	if !content.IsValid() {
		e.config.Logger.Warn("Extraction yielded no text",
			slog.String("file", filename),
			slog.Any("errors", content.ExtractionErrors))
	} else {
		e.config.Logger.Info("Extraction complete",
			slog.String("file", filename),
			slog.Int("pages", len(content.Pages)),
			slog.Int("sections", len(content.Sections)),
			slog.Int("words", content.Metadata.WordCount))
	}
	return content, nil
}

// newContent stamps identity fields. The doc id is derived from the content
// hash so the same bytes always map to the same index entries.
func newContent(filename string, format models.DocumentFormat, data []byte) *models.ExtractedContent {
	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])
	return &models.ExtractedContent{
		DocID:      DocID(hash),
		Filename:   filename,
		Format:     format,
		UploadedAt: time.Now().UTC(),
		FileHash:   hash,
		Version:    1,
		Pages:      []models.Page{},
		Sections:   []models.Section{},
	}
}

// DocID derives a stable document id from a content hash or URL.
func DocID(key string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(key)).String()
}

// finalize fills derived fields from pages.
func finalize(content *models.ExtractedContent) {
	if content.RawText == "" {
		parts := make([]string, 0, len(content.Pages))
		for _, p := range content.Pages {
			parts = append(parts, p.Text)
		}
		content.RawText = strings.Join(parts, "\n")
	}
	if content.Metadata.PageCount == 0 {
		content.Metadata.PageCount = len(content.Pages)
	}
	content.Metadata.WordCount = len(strings.Fields(content.RawText))
}

func (e *Extractor) extractURL(ctx context.Context, rawURL string) (*models.ExtractedContent, error) {
	config := e.config.Scraper
	config.BaseURL = rawURL
	if config.Logger == nil {
		config.Logger = e.config.Logger
	}
	if config.OnProgress == nil {
		config.OnProgress = func(page string) {
			config.Logger.Debug("Fetching course page", slog.String("url", page))
		}
	}
	s, err := scraper.NewWithConfig(config)
	if err != nil {
		return nil, err
	}

	pages, err := s.Scrape(ctx, rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to scrape %s: %w", rawURL, err)
	}

	content := newContent(urlFilename(rawURL), models.FormatHTML, nil)
	content.DocID = DocID(rawURL)
	content.Source = rawURL

	for i, page := range pages {
		number := i + 1
		text, sections := htmlSections(scraper.MainContent(page.Document), number)
		content.Pages = append(content.Pages, models.Page{
			Number: number,
			Text:   text,
			Metadata: map[string]interface{}{
				"url":   page.URL,
				"title": page.Title,
				"depth": page.Depth,
			},
		})
		content.Sections = append(content.Sections, sections...)
		if i == 0 {
			content.Metadata.Title = page.Title
		}
	}
	finalize(content)

	sum := sha256.Sum256([]byte(content.RawText))
	content.FileHash = hex.EncodeToString(sum[:])

	e.config.Logger.Info("URL extraction complete",
		slog.String("url", rawURL),
		slog.Int("pages", len(content.Pages)),
		slog.Int("sections", len(content.Sections)))
	return content, nil
}

func urlFilename(rawURL string) string {
	trimmed := rawURL
	if idx := strings.Index(trimmed, "://"); idx >= 0 {
		trimmed = trimmed[idx+3:]
	}
	trimmed = strings.TrimRight(trimmed, "/")
	if trimmed == "" {
		return rawURL
	}
	return trimmed
}
