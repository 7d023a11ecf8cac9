package extractor

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xhad/dqcheck/internal/models"
	"github.com/xuri/excelize/v2"
)

// extractSpreadsheet renders each sheet as one page and one level-1 section.
// Cells are joined with " | " and blank rows are dropped.
func extractSpreadsheet(data []byte, content *models.ExtractedContent) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		content.ExtractionErrors = append(content.ExtractionErrors,
			fmt.Sprintf("Failed to open XLSX workbook: %v", err))
		return
	}
	defer f.Close()

	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			content.ExtractionErrors = append(content.ExtractionErrors,
				fmt.Sprintf("Failed to read sheet %q: %v", sheet, err))
			continue
		}
		text := sheetText(rows)
		if text == "" {
			continue
		}
		number := len(content.Pages) + 1
		content.Pages = append(content.Pages, models.Page{
			Number:   number,
			Text:     text,
			Metadata: map[string]interface{}{"sheet": sheet},
		})
		content.Sections = append(content.Sections, models.Section{
			Title:     sheet,
			Level:     1,
			PageStart: number,
			PageEnd:   number,
			Content:   text,
		})
	}

	if props, err := f.GetDocProps(); err == nil && props != nil {
		content.Metadata.Author = strings.TrimSpace(props.Creator)
		content.Metadata.Title = strings.TrimSpace(props.Title)
		content.Metadata.Subject = strings.TrimSpace(props.Subject)
	}
}

func sheetText(rows [][]string) string {
	lines := make([]string, 0, len(rows))
	for _, row := range rows {
		cells := make([]string, 0, len(row))
		for _, cell := range row {
			if v := strings.TrimSpace(cell); v != "" {
				cells = append(cells, v)
			}
		}
		if len(cells) > 0 {
			lines = append(lines, strings.Join(cells, " | "))
		}
	}
	return strings.Join(lines, "\n")
}
