package extractor

import (
	"bytes"
	"fmt"
	"strings"

	"code.sajari.com/docconv/v2"
	"github.com/xhad/dqcheck/internal/models"
)

var officeMIMETypes = map[models.DocumentFormat]string{
	models.FormatDOCX: "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	models.FormatPPTX: "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	models.FormatODT:  "application/vnd.oasis.opendocument.text",
}

func extractOffice(data []byte, content *models.ExtractedContent) {
	mimeType := officeMIMETypes[content.Format]
	result, err := docconv.Convert(bytes.NewReader(data), mimeType, false)
	if err != nil {
		content.ExtractionErrors = append(content.ExtractionErrors,
			fmt.Sprintf("Failed to convert %s document: %v", strings.ToUpper(string(content.Format)), err))
		return
	}
	if result.Error != "" {
		content.ExtractionErrors = append(content.ExtractionErrors, result.Error)
	}

	content.Pages = splitPages(result.Body)
	content.Sections = detectSections(content.Pages)

	content.Metadata.Author = firstMeta(result.Meta, "Author", "Creator", "creator", "author")
	content.Metadata.Title = firstMeta(result.Meta, "Title", "title")
	content.Metadata.Subject = firstMeta(result.Meta, "Subject", "subject")
}

func firstMeta(meta map[string]string, keys ...string) string {
	for _, key := range keys {
		if v := strings.TrimSpace(meta[key]); v != "" {
			return v
		}
	}
	return ""
}
