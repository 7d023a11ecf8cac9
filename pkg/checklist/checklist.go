// Package checklist loads and validates DQC checklist files.
package checklist

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/xhad/dqcheck/internal/models"
)

// ErrInvalid marks a checklist that failed validation.
var ErrInvalid = errors.New("invalid checklist")

const (
	defaultName   = "Default DQC"
	defaultWeight = 1.0
)

// Load reads and validates the checklist at path.
func Load(path string) (*models.Checklist, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read checklist: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates checklist JSON, filling defaults.
func Parse(data []byte) (*models.Checklist, error) {
	var c models.Checklist
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("%w: failed to parse checklist: %v", ErrInvalid, err)
	}

	if c.Name == "" {
		c.Name = defaultName
	}
	for i := range c.Items {
		if c.Items[i].Weight == 0 {
			c.Items[i].Weight = defaultWeight
		}
	}

	if problems := Validate(&c); len(problems) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return &c, nil
}

// Validate lists every problem with the checklist.
func Validate(c *models.Checklist) []string {
	var problems []string
	if strings.TrimSpace(c.Version) == "" {
		problems = append(problems, "version is required")
	}

	seen := make(map[string]int, len(c.Items))
	for i, item := range c.Items {
		id := strings.TrimSpace(item.ItemID)
		switch {
		case id == "":
			problems = append(problems, fmt.Sprintf("items[%d]: item_id is required", i))
		case seen[id] > 0:
			problems = append(problems, fmt.Sprintf("items[%d]: duplicate item_id %q (first at items[%d])", i, id, seen[id]-1))
		default:
			seen[id] = i + 1
		}
		if strings.TrimSpace(item.Requirement) == "" {
			problems = append(problems, fmt.Sprintf("items[%d]: requirement is required", i))
		}
		if item.Weight < 0 {
			problems = append(problems, fmt.Sprintf("items[%d]: weight cannot be negative", i))
		}
	}
	return problems
}
