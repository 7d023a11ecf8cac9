package processor

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/xhad/dqcheck/internal/models"
)

const fullDocumentSection = "Full Document"

type ProcessorConfig struct {
	ChunkSize      int // maximum tokens per chunk
	ChunkOverlap   int // tokens carried into the next chunk; negative disables overlap
	MinChunkTokens int
	Tokenizer      Tokenizer
	Logger         *slog.Logger
}

// Processor splits extracted documents into section-tagged, token-bounded
// chunks with sentence overlap.
type Processor struct {
	config ProcessorConfig
}

func NewWithConfig(config ProcessorConfig) Processor {
	if config.ChunkSize <= 0 {
		config.ChunkSize = 1000
	}
	if config.ChunkOverlap == 0 {
		config.ChunkOverlap = 150
	}
	if config.ChunkOverlap < 0 {
		config.ChunkOverlap = 0
	}
	if config.ChunkOverlap >= config.ChunkSize {
		config.ChunkOverlap = config.ChunkSize - 1
	}
	if config.MinChunkTokens == 0 {
		config.MinChunkTokens = 20
	}
	if config.Tokenizer == nil {
		config.Tokenizer = WordTokenizer{}
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return Processor{
		config: config,
	}
}

// Chunk splits content into chunks. Each section is chunked on its own so a
// chunk never spans two sections. An empty document yields no chunks.
func (p *Processor) Chunk(content *models.ExtractedContent) []models.Chunk {
	var chunks []models.Chunk
	if content == nil {
		return chunks
	}

	index := 0
	totalTokens := 0
	for _, group := range sectionGroups(content) {
		for _, text := range p.splitIntoChunks(group.text) {
			tokens := p.config.Tokenizer.Count(text)
			if tokens < p.config.MinChunkTokens {
				continue
			}

			chunks = append(chunks, models.Chunk{
				ID:          models.ChunkID(content.DocID, index),
				DocID:       content.DocID,
				Text:        text,
				SectionName: group.title,
				PageNumber:  group.pageStart,
				PageEnd:     group.pageEnd,
				Index:       index,
				TokenCount:  tokens,
				UploadedAt:  content.UploadedAt,
				Metadata: map[string]string{
					"filename": content.Filename,
					"format":   string(content.Format),
				},
			})
			index++
			totalTokens += tokens
		}
	}

	p.config.Logger.Info("Chunking complete",
		slog.String("doc_id", content.DocID),
		slog.Int("chunks", len(chunks)),
		slog.Int("tokens", totalTokens),
		slog.Int("max_tokens", p.config.ChunkSize),
		slog.Int("overlap", p.config.ChunkOverlap))

	return chunks
}

type sectionGroup struct {
	title     string
	text      string
	pageStart int
	pageEnd   int
}

func sectionGroups(content *models.ExtractedContent) []sectionGroup {
	var groups []sectionGroup

	for _, sec := range content.Sections {
		text := sec.Content
		if strings.TrimSpace(text) == "" && sec.PageStart > 0 && sec.PageEnd > 0 {
			var pageTexts []string
			for _, page := range content.Pages {
				if page.Number >= sec.PageStart && page.Number <= sec.PageEnd {
					pageTexts = append(pageTexts, page.Text)
				}
			}
			text = strings.Join(pageTexts, "\n")
		}
		if strings.TrimSpace(text) == "" {
			continue
		}

		pageStart := sec.PageStart
		if pageStart == 0 {
			pageStart = 1
		}
		groups = append(groups, sectionGroup{
			title:     sec.Title,
			text:      text,
			pageStart: pageStart,
			pageEnd:   sec.PageEnd,
		})
	}

	if len(groups) == 0 && strings.TrimSpace(content.RawText) != "" {
		groups = append(groups, sectionGroup{
			title:     fullDocumentSection,
			text:      content.RawText,
			pageStart: 1,
			pageEnd:   len(content.Pages),
		})
	}

	return groups
}

func (p *Processor) splitIntoChunks(text string) []string {
	var chunks []string
	var current []string
	currentTokens := 0

	for _, sentence := range splitIntoSentences(text) {
		sentenceTokens := p.config.Tokenizer.Count(sentence)

		// Oversized sentences are split on words and do not carry overlap.
		if sentenceTokens > p.config.ChunkSize {
			if len(current) > 0 {
				chunks = append(chunks, strings.Join(current, " "))
			}

			var words []string
			wordTokens := 0
			for _, word := range strings.Fields(sentence) {
				tokens := p.config.Tokenizer.Count(word)
				if wordTokens+tokens > p.config.ChunkSize && len(words) > 0 {
					chunks = append(chunks, strings.Join(words, " "))
					words, wordTokens = nil, 0
				}
				words = append(words, word)
				wordTokens += tokens
			}
			current, currentTokens = words, wordTokens
			continue
		}

		if currentTokens+sentenceTokens > p.config.ChunkSize && len(current) > 0 {
			chunks = append(chunks, strings.Join(current, " "))
			current, currentTokens = p.overlapCarry(current, sentenceTokens)
		}

		current = append(current, sentence)
		currentTokens += sentenceTokens
	}

	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, " "))
	}

	return chunks
}

// overlapCarry returns the longest tail of flushed that fits in the overlap
// budget and still leaves room for the next sentence.
func (p *Processor) overlapCarry(flushed []string, nextTokens int) ([]string, int) {
	budget := p.config.ChunkOverlap
	if room := p.config.ChunkSize - nextTokens; room < budget {
		budget = room
	}

	var carry []string
	carryTokens := 0
	for i := len(flushed) - 1; i >= 0; i-- {
		tokens := p.config.Tokenizer.Count(flushed[i])
		if carryTokens+tokens > budget {
			break
		}
		carry = append([]string{flushed[i]}, carry...)
		carryTokens += tokens
	}

	return carry, carryTokens
}

var (
	paragraphBreak = regexp.MustCompile(`\n\s*\n`)
	sentenceEnd    = regexp.MustCompile(`[.!?]\s+`)
)

// splitIntoSentences splits on blank lines first, then after sentence-ending
// punctuation. Whitespace inside a sentence is collapsed.
func splitIntoSentences(text string) []string {
	var sentences []string

	for _, paragraph := range paragraphBreak.Split(text, -1) {
		paragraph = strings.TrimSpace(paragraph)
		if paragraph == "" {
			continue
		}

		start := 0
		for _, loc := range sentenceEnd.FindAllStringIndex(paragraph, -1) {
			if sentence := cleanText(paragraph[start : loc[0]+1]); sentence != "" {
				sentences = append(sentences, sentence)
			}
			start = loc[1]
		}
		if sentence := cleanText(paragraph[start:]); sentence != "" {
			sentences = append(sentences, sentence)
		}
	}

	return sentences
}

func cleanText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
