package extractor

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/xhad/dqcheck/internal/models"
)

const defaultFontSize = 12.0

type pdfLine struct {
	text string
	size float64
}

// extractPDF reads page text and detects headings by font size. PDF
// sections carry page ranges only; their text is gathered from the pages.
func extractPDF(data []byte, content *models.ExtractedContent) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		content.ExtractionErrors = append(content.ExtractionErrors, fmt.Sprintf("Failed to open PDF: %v", err))
		return
	}

	total := reader.NumPage()
	lines := make([][]pdfLine, total+1)

	var sizeSum float64
	var sizeCount int
	for i := 1; i <= total; i++ {
		text, rows, err := readPDFPage(reader, i)
		if err != nil {
			content.ExtractionErrors = append(content.ExtractionErrors, fmt.Sprintf("Page %d: %v", i, err))
		}
		content.Pages = append(content.Pages, models.Page{Number: i, Text: text})

		for _, row := range rows {
			var b strings.Builder
			var maxSize float64
			for _, t := range row.Content {
				b.WriteString(t.S)
				if strings.TrimSpace(t.S) == "" {
					continue
				}
				sizeSum += t.FontSize
				sizeCount++
				maxSize = max(maxSize, t.FontSize)
			}
			if line := strings.TrimSpace(b.String()); line != "" {
				lines[i] = append(lines[i], pdfLine{text: line, size: maxSize})
			}
		}
	}

	avg := defaultFontSize
	if sizeCount > 0 {
		avg = sizeSum / float64(sizeCount)
	}

	for page := 1; page <= total; page++ {
		for _, line := range lines[page] {
			if isPDFHeading(line, avg) {
				content.Sections = append(content.Sections, models.Section{
					Title:     line.text,
					Level:     pdfHeadingLevel(line.size, avg),
					PageStart: page,
				})
			}
		}
	}
	for i := range content.Sections {
		if i+1 < len(content.Sections) {
			content.Sections[i].PageEnd = content.Sections[i+1].PageStart
		} else {
			content.Sections[i].PageEnd = total
		}
	}

	info := reader.Trailer().Key("Info")
	content.Metadata.Author = strings.TrimSpace(info.Key("Author").Text())
	content.Metadata.Title = strings.TrimSpace(info.Key("Title").Text())
	content.Metadata.Subject = strings.TrimSpace(info.Key("Subject").Text())
	content.Metadata.PageCount = total
}

// readPDFPage recovers from panics in the PDF library, which are common on
// malformed content streams.
func readPDFPage(reader *pdf.Reader, number int) (text string, rows pdf.Rows, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("failed to read page: %v", r)
		}
	}()

	page := reader.Page(number)
	if page.V.IsNull() {
		return "", nil, fmt.Errorf("page object is missing")
	}
	text, err = page.GetPlainText(nil)
	if err != nil {
		return "", nil, fmt.Errorf("failed to extract text: %w", err)
	}
	rows, err = page.GetTextByRow()
	if err != nil {
		return text, nil, fmt.Errorf("failed to read text rows: %w", err)
	}
	return text, rows, nil
}

func isPDFHeading(line pdfLine, avg float64) bool {
	if line.size > avg*1.25 && len(line.text) < 200 {
		return true
	}
	return keywordHeading.MatchString(line.text)
}

func pdfHeadingLevel(size, avg float64) int {
	ratio := 1.0
	if avg > 0 {
		ratio = size / avg
	}
	switch {
	case ratio > 1.8:
		return 1
	case ratio > 1.4:
		return 2
	default:
		return 3
	}
}
