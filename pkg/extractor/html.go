package extractor

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/xhad/dqcheck/internal/models"
	"github.com/xhad/dqcheck/pkg/scraper"
)

const (
	blockSelector     = "h1, h2, h3, h4, h5, h6, p, li, pre, blockquote, td, th, dt, dd"
	containerSelector = "p, li, pre, blockquote, td, th, dt, dd"
)

var htmlHeadingLevels = map[string]int{"h1": 1, "h2": 2, "h3": 3}

func extractHTML(data []byte, content *models.ExtractedContent) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		content.ExtractionErrors = append(content.ExtractionErrors, fmt.Sprintf("Failed to parse HTML: %v", err))
		return
	}

	content.Metadata.Title = strings.TrimSpace(doc.Find("title").First().Text())
	content.Metadata.Author = strings.TrimSpace(doc.Find(`meta[name="author"]`).AttrOr("content", ""))
	content.Metadata.Subject = strings.TrimSpace(doc.Find(`meta[name="description"]`).AttrOr("content", ""))

	text, sections := htmlSections(scraper.MainContent(doc), 1)
	content.Pages = []models.Page{{Number: 1, Text: text}}
	content.Sections = sections
}

// htmlSections walks block elements in document order. h1 to h3 open
// sections; everything else is body text.
func htmlSections(root *goquery.Selection, page int) (string, []models.Section) {
	b := &sectionBuilder{}
	var blocks []string

	root.Find(blockSelector).Each(func(_ int, s *goquery.Selection) {
		if s.ParentsFiltered(containerSelector).Length() > 0 {
			return
		}
		text := scraper.CleanText(s.Text())
		if text == "" {
			return
		}
		blocks = append(blocks, text)

		if level, ok := htmlHeadingLevels[goquery.NodeName(s)]; ok {
			b.heading(text, level, page)
			return
		}
		b.line(text, page)
		b.line("", page)
	})

	if len(blocks) == 0 {
		text := scraper.CleanText(root.Text())
		return text, []models.Section{}
	}
	return strings.Join(blocks, "\n\n"), b.finish()
}
