package evaluator

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrUnparseable is returned when no strategy yields a JSON object carrying
// the required key.
var ErrUnparseable = errors.New("unparseable")

// Strategy turns raw model output into a candidate JSON document.
type Strategy struct {
	Name      string
	Candidate func(raw string) (string, bool)
}

// DefaultStrategies are tried in order until one succeeds.
var DefaultStrategies = []Strategy{
	{Name: "direct", Candidate: direct},
	{Name: "code_fence", Candidate: stripCodeFence},
	{Name: "balanced_block", Candidate: balancedBlock},
	{Name: "trailing_commas", Candidate: balancedBlockWithoutTrailingCommas},
}

// Parser recovers a JSON object from model output.
type Parser struct {
	RequiredKey string
	Strategies  []Strategy
}

func NewParser(requiredKey string) Parser {
	return Parser{RequiredKey: requiredKey, Strategies: DefaultStrategies}
}

// Parse returns the first candidate that decodes to an object containing the
// required key, along with the name of the strategy that produced it.
func (p Parser) Parse(raw string) ([]byte, string, error) {
	for _, s := range p.Strategies {
		candidate, ok := s.Candidate(raw)
		if !ok {
			continue
		}
		var obj map[string]json.RawMessage
		if err := json.Unmarshal([]byte(candidate), &obj); err != nil {
			continue
		}
		if p.RequiredKey != "" {
			if _, ok := obj[p.RequiredKey]; !ok {
				continue
			}
		}
		return []byte(candidate), s.Name, nil
	}
	return nil, "", fmt.Errorf("%w (payload snippet: %s)", ErrUnparseable, snippet(raw))
}

func direct(raw string) (string, bool) {
	trimmed := strings.TrimSpace(raw)
	return trimmed, trimmed != ""
}

func stripCodeFence(raw string) (string, bool) {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "```") {
		return "", false
	}
	body := strings.TrimLeft(trimmed[3:], " \t\r\n")
	if len(body) >= 4 && strings.EqualFold(body[:4], "json") {
		body = strings.TrimLeft(body[4:], " \t\r\n")
	}
	if idx := strings.LastIndex(body, "```"); idx >= 0 {
		body = body[:idx]
	}
	body = strings.TrimSpace(body)
	return body, body != ""
}

func balancedBlock(raw string) (string, bool) {
	block := firstBalancedBlock(raw)
	return block, block != ""
}

func balancedBlockWithoutTrailingCommas(raw string) (string, bool) {
	block := firstBalancedBlock(raw)
	if block == "" {
		return "", false
	}
	return removeTrailingCommas(block), true
}

// firstBalancedBlock returns the first {...} block, ignoring braces inside
// string literals.
func firstBalancedBlock(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}

	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

func removeTrailingCommas(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			b.WriteByte(c)
			continue
		}
		if c == '"' {
			inString = true
		}
		if c == ',' {
			j := i + 1
			for j < len(s) && strings.IndexByte(" \t\r\n", s[j]) >= 0 {
				j++
			}
			if j < len(s) && (s[j] == '}' || s[j] == ']') {
				continue
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}

func snippet(content string) string {
	clean := strings.Join(strings.Fields(content), " ")
	if clean == "" {
		return "<empty>"
	}
	const limit = 160
	if runes := []rune(clean); len(runes) > limit {
		clean = string(runes[:limit]) + "..."
	}
	return clean
}
