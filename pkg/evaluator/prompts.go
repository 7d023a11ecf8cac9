package evaluator

import (
	"fmt"
	"strings"

	"github.com/xhad/dqcheck/internal/models"
)

const PromptVersion = "v1.0"

const systemPrompt = `You are a Learning Content Quality Compliance Analyst. You evaluate educational
materials against a Data Quality Checklist (DQC). You must:

1. Base your evaluation ONLY on the provided document content.
2. Return structured JSON matching the exact schema.
3. Provide specific evidence from the content for your findings.
4. Never fabricate or assume content not present in the provided context.
5. If the content is insufficient to make a determination, set status to "Partial"
   and explain what is missing.`

const summarySystemPrompt = "You are a technical writer summarising compliance findings."

const findingSchema = `{
  "dqc_item_id": string,
  "status": "Pass" | "Fail" | "Partial",
  "justification": string,
  "evidence_quotes": [string],
  "risk_level": "Critical" | "High" | "Medium" | "Low",
  "recommendation": string or null,
  "confidence_score": number between 0.0 and 1.0,
  "sections_reviewed": [string]
}`

const formatInstructions = "Respond with a single JSON object of the form:\n" + findingSchema +
	"\nDo not include any text outside the JSON object."

func evaluationPrompt(item models.ChecklistItem, context string) string {
	var b strings.Builder
	b.WriteString("## DQC Item\n")
	fmt.Fprintf(&b, "- ID: %s\n", item.ItemID)
	fmt.Fprintf(&b, "- Category: %s\n", item.Category)
	fmt.Fprintf(&b, "- Requirement: %s\n", item.Requirement)
	fmt.Fprintf(&b, "- Evaluation Criteria: %s\n\n", item.Criteria)
	b.WriteString("## Document Content (Retrieved Sections)\n")
	b.WriteString(context)
	b.WriteString("\n\n## Instructions\n")
	b.WriteString("Evaluate whether the document content satisfies the above DQC requirement.\n\n")
	b.WriteString(formatInstructions)
	b.WriteString("\n")
	return b.String()
}

func batchPrompt(checklist *models.Checklist, fullText string) string {
	var b strings.Builder
	b.WriteString("## DQC Checklist\n")
	for _, item := range checklist.Items {
		fmt.Fprintf(&b, "- ID: %s | Category: %s\n  Requirement: %s\n  Evaluation Criteria: %s\n",
			item.ItemID, item.Category, item.Requirement, item.Criteria)
	}
	b.WriteString("\n## Document Content (Full Text)\n")
	b.WriteString(fullText)
	b.WriteString("\n\n## Instructions\n")
	b.WriteString("Evaluate the document against EVERY checklist item above. ")
	b.WriteString("Return exactly one evaluation per item, using the item's ID as dqc_item_id.\n\n")
	b.WriteString("Respond with a single JSON object of the form:\n")
	b.WriteString("{\n  \"evaluations\": [" + strings.ReplaceAll(findingSchema, "\n", "\n  ") + "],\n")
	b.WriteString("  \"executive_summary\": string\n}\n")
	b.WriteString("Do not include any text outside the JSON object.\n")
	return b.String()
}

func summaryPrompt(filename string, summary models.ComplianceSummary, findings []models.Finding) string {
	lines := make([]string, len(findings))
	for i, f := range findings {
		lines[i] = fmt.Sprintf("- %s: %s (%s): %s", f.ItemID, f.Status, f.RiskLevel, truncateRunes(f.Justification, 120))
	}

	var b strings.Builder
	b.WriteString("Below are the compliance evaluation results for a learning document.\n\n")
	fmt.Fprintf(&b, "Document: %s\n", filename)
	fmt.Fprintf(&b, "Overall Score: %.1f%%\n", summary.Score)
	fmt.Fprintf(&b, "Passed: %d | Failed: %d | Partial: %d\n\n", summary.Passed, summary.Failed, summary.Partial)
	b.WriteString("Findings:\n")
	b.WriteString(strings.Join(lines, "\n"))
	b.WriteString("\n\nWrite a concise executive summary (3-5 sentences) describing the overall\n")
	b.WriteString("compliance status, key risks, and the most important recommendations.\n")
	b.WriteString("Respond with only the summary text, no JSON or formatting.\n")
	return b.String()
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
