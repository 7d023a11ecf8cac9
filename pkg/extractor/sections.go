package extractor

import (
	"regexp"
	"strings"

	"github.com/xhad/dqcheck/internal/models"
)

var (
	keywordHeading  = regexp.MustCompile(`(?i)^(?:chapter|module|section|part|unit|lesson)\s+\d`)
	numberedHeading = regexp.MustCompile(`^(\d{1,2}(?:\.\d{1,2})*)\.?\s+\p{Lu}`)
	markdownHeading = regexp.MustCompile(`^(#{1,6})\s+(.+?)\s*#*\s*$`)
)

const (
	maxHeadingLen = 120
	frontMatter   = "Front Matter"
)

// headingLevel reports whether a plain-text line looks like a heading.
// Keyword headings are level 1; numbered headings take their depth.
func headingLevel(line string) (int, bool) {
	line = strings.TrimSpace(line)
	if line == "" || len(line) > maxHeadingLen {
		return 0, false
	}
	if keywordHeading.MatchString(line) {
		return 1, true
	}
	m := numberedHeading.FindStringSubmatch(line)
	if m == nil || strings.HasSuffix(line, ".") || strings.HasSuffix(line, "?") || strings.HasSuffix(line, ",") {
		return 0, false
	}
	return min(strings.Count(m[1], ".")+1, 3), true
}

// sectionBuilder accumulates body lines under the most recent heading.
type sectionBuilder struct {
	sections   []models.Section
	current    *models.Section
	body       []string
	sawHeading bool
}

func (b *sectionBuilder) heading(title string, level, page int) {
	b.flush()
	b.sawHeading = true
	b.current = &models.Section{Title: title, Level: level, PageStart: page, PageEnd: page}
}

func (b *sectionBuilder) line(text string, page int) {
	if b.current == nil {
		if strings.TrimSpace(text) == "" {
			return
		}
		b.current = &models.Section{Title: frontMatter, Level: 1, PageStart: page, PageEnd: page}
	}
	b.body = append(b.body, text)
	if strings.TrimSpace(text) != "" {
		b.current.PageEnd = page
	}
}

func (b *sectionBuilder) flush() {
	if b.current == nil {
		return
	}
	b.current.Content = strings.TrimSpace(strings.Join(b.body, "\n"))
	if b.current.Content != "" {
		b.sections = append(b.sections, *b.current)
	}
	b.current = nil
	b.body = nil
}

// finish returns the sections, or none when no heading was ever seen so
// that the whole document is treated as one section downstream.
func (b *sectionBuilder) finish() []models.Section {
	b.flush()
	if !b.sawHeading {
		return []models.Section{}
	}
	return b.sections
}

// detectSections finds plain-text headings across pages.
func detectSections(pages []models.Page) []models.Section {
	b := &sectionBuilder{}
	for _, page := range pages {
		for _, line := range strings.Split(page.Text, "\n") {
			if level, ok := headingLevel(line); ok {
				b.heading(strings.TrimSpace(line), level, page.Number)
				continue
			}
			b.line(line, page.Number)
		}
	}
	return b.finish()
}

// splitPages splits on form feeds, numbering pages from 1.
func splitPages(text string) []models.Page {
	parts := strings.Split(text, "\f")
	pages := make([]models.Page, 0, len(parts))
	for i, part := range parts {
		pages = append(pages, models.Page{Number: i + 1, Text: strings.TrimRight(part, " \t\r\n")})
	}
	return pages
}
