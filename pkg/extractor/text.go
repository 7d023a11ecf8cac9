package extractor

import (
	"strings"

	"github.com/xhad/dqcheck/internal/models"
)

func extractText(text string, content *models.ExtractedContent) {
	content.Pages = splitPages(text)
	content.Sections = detectSections(content.Pages)
}

// extractMarkdown uses # headings only; headings inside fenced code are
// treated as body text.
func extractMarkdown(text string, content *models.ExtractedContent) {
	content.Pages = []models.Page{{Number: 1, Text: text}}

	b := &sectionBuilder{}
	inFence := false
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			inFence = !inFence
			b.line(line, 1)
			continue
		}
		if !inFence {
			if m := markdownHeading.FindStringSubmatch(trimmed); m != nil {
				level := len(m[1])
				if level == 1 && content.Metadata.Title == "" {
					content.Metadata.Title = m[2]
				}
				b.heading(m[2], level, 1)
				continue
			}
		}
		b.line(line, 1)
	}
	content.Sections = b.finish()
}
