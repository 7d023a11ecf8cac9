package models

import "time"

// Finding is the evaluation result for one checklist item.
type Finding struct {
	ItemID           string    `json:"dqc_item_id"`
	Status           Status    `json:"status"`
	Justification    string    `json:"justification"`
	EvidenceQuotes   []string  `json:"evidence_quotes"`
	RiskLevel        RiskLevel `json:"risk_level"`
	Recommendation   string    `json:"recommendation,omitempty"`
	Confidence       float64   `json:"confidence_score"`
	SectionsReviewed []string  `json:"sections_reviewed"`
}

type RiskDistribution struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
}

func (d *RiskDistribution) Add(level RiskLevel) {
	switch level {
	case RiskCritical:
		d.Critical++
	case RiskHigh:
		d.High++
	case RiskMedium:
		d.Medium++
	case RiskLow:
		d.Low++
	}
}

type ComplianceSummary struct {
	Score            float64          `json:"score"`
	TotalItems       int              `json:"total_items"`
	Passed           int              `json:"passed"`
	Failed           int              `json:"failed"`
	Partial          int              `json:"partial"`
	RiskDistribution RiskDistribution `json:"risk_distribution"`
}

type Recommendation struct {
	Priority   int       `json:"priority"`
	ItemID     string    `json:"dqc_item_id"`
	Action     string    `json:"action"`
	RiskImpact RiskLevel `json:"risk_impact"`
}

type AuditInfo struct {
	ModelVersion          string         `json:"model_version"`
	EmbeddingModel        string         `json:"embedding_model"`
	PromptVersion         string         `json:"prompt_version"`
	DQCVersion            string         `json:"dqc_version"`
	PromptTokens          int            `json:"prompt_tokens"`
	CompletionTokens      int            `json:"completion_tokens"`
	TotalTokensUsed       int            `json:"total_tokens_used"`
	ProcessingTimeSeconds float64        `json:"processing_time_seconds"`
	User                  string         `json:"user"`
	EvaluationMode        EvaluationMode `json:"evaluation_mode,omitempty"`
}

// ComplianceReport is the immutable result of one successful run.
type ComplianceReport struct {
	ReportID          string            `json:"report_id"`
	GeneratedAt       time.Time         `json:"generated_at"`
	Document          DocumentInfo      `json:"document"`
	DQCVersion        string            `json:"dqc_version"`
	OverallCompliance ComplianceSummary `json:"overall_compliance"`
	ExecutiveSummary  string            `json:"executive_summary"`
	Findings          []Finding         `json:"findings"`
	Recommendations   []Recommendation  `json:"recommendations"`
	Audit             AuditInfo         `json:"audit"`
}
