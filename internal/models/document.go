package models

import (
	"strings"
	"time"
)

type DocumentFormat string

const (
	FormatPDF      DocumentFormat = "pdf"
	FormatDOCX     DocumentFormat = "docx"
	FormatPPTX     DocumentFormat = "pptx"
	FormatODT      DocumentFormat = "odt"
	FormatXLSX     DocumentFormat = "xlsx"
	FormatHTML     DocumentFormat = "html"
	FormatMarkdown DocumentFormat = "markdown"
	FormatText     DocumentFormat = "text"
)

// Page is one page of extracted text. Formats without native pagination
// produce a single page.
type Page struct {
	Number   int                    `json:"page_number"`
	Text     string                 `json:"text"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Section is a detected heading and the body text that follows it.
type Section struct {
	Title     string `json:"title"`
	Level     int    `json:"level"`
	PageStart int    `json:"page_start,omitempty"`
	PageEnd   int    `json:"page_end,omitempty"`
	Content   string `json:"content"`
}

type DocumentMetadata struct {
	Author           string     `json:"author,omitempty"`
	Title            string     `json:"title,omitempty"`
	Subject          string     `json:"subject,omitempty"`
	CreationDate     *time.Time `json:"creation_date,omitempty"`
	ModificationDate *time.Time `json:"modification_date,omitempty"`
	PageCount        int        `json:"page_count"`
	WordCount        int        `json:"word_count"`
}

// ExtractedContent is the normalized form of a source document. It is
// produced once per extraction and not mutated afterwards.
type ExtractedContent struct {
	DocID            string           `json:"doc_id"`
	Filename         string           `json:"filename"`
	Source           string           `json:"source,omitempty"`
	Format           DocumentFormat   `json:"format"`
	UploadedAt       time.Time        `json:"upload_timestamp"`
	FileHash         string           `json:"file_hash"`
	Version          int              `json:"version"`
	Metadata         DocumentMetadata `json:"metadata"`
	Pages            []Page           `json:"pages"`
	Sections         []Section        `json:"sections"`
	RawText          string           `json:"raw_text"`
	ExtractionErrors []string         `json:"extraction_errors,omitempty"`
}

func (c *ExtractedContent) IsValid() bool {
	return c != nil && strings.TrimSpace(c.RawText) != ""
}

// DocumentInfo is the document reference carried by a report.
type DocumentInfo struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	Pages    int    `json:"pages"`
	Version  int    `json:"version"`
}

func (c *ExtractedContent) Info() DocumentInfo {
	version := c.Version
	if version == 0 {
		version = 1
	}
	return DocumentInfo{
		ID:       c.DocID,
		Filename: c.Filename,
		Pages:    c.Metadata.PageCount,
		Version:  version,
	}
}
