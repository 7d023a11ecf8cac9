package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

type ChecklistItem struct {
	ItemID      string                 `json:"item_id"`
	Category    string                 `json:"category"`
	Requirement string                 `json:"requirement"`
	Criteria    string                 `json:"criteria"`
	Weight      float64                `json:"weight"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// Checklist is a versioned, ordered list of compliance requirements.
type Checklist struct {
	Version     string          `json:"version"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Items       []ChecklistItem `json:"items"`
}

// Status is the outcome of evaluating one checklist item.
type Status string

const (
	StatusPass    Status = "Pass"
	StatusFail    Status = "Fail"
	StatusPartial Status = "Partial"
)

func ParseStatus(s string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pass":
		return StatusPass, nil
	case "fail":
		return StatusFail, nil
	case "partial":
		return StatusPartial, nil
	}
	return "", fmt.Errorf("unknown status %q", s)
}

func (s *Status) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("status must be a string: %w", err)
	}
	parsed, err := ParseStatus(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

type RiskLevel string

const (
	RiskCritical RiskLevel = "Critical"
	RiskHigh     RiskLevel = "High"
	RiskMedium   RiskLevel = "Medium"
	RiskLow      RiskLevel = "Low"
)

// RiskLevels lists every level from most to least severe.
var RiskLevels = []RiskLevel{RiskCritical, RiskHigh, RiskMedium, RiskLow}

func ParseRiskLevel(s string) (RiskLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "critical":
		return RiskCritical, nil
	case "high":
		return RiskHigh, nil
	case "medium":
		return RiskMedium, nil
	case "low":
		return RiskLow, nil
	}
	return "", fmt.Errorf("unknown risk level %q", s)
}

func (r *RiskLevel) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("risk level must be a string: %w", err)
	}
	parsed, err := ParseRiskLevel(raw)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Severity orders risk levels; lower is more severe.
func (r RiskLevel) Severity() int {
	switch r {
	case RiskCritical:
		return 0
	case RiskHigh:
		return 1
	case RiskMedium:
		return 2
	case RiskLow:
		return 3
	}
	return 4
}
