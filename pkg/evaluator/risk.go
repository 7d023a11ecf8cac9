package evaluator

import (
	"fmt"

	"github.com/xhad/dqcheck/internal/models"
)

// RiskFor maps a status and confidence onto the risk matrix. Thresholds are
// inclusive lower bounds.
func RiskFor(status models.Status, confidence float64) models.RiskLevel {
	switch status {
	case models.StatusFail:
		switch {
		case confidence >= 0.8:
			return models.RiskCritical
		case confidence >= 0.5:
			return models.RiskHigh
		default:
			return models.RiskMedium
		}
	case models.StatusPartial:
		switch {
		case confidence >= 0.8:
			return models.RiskHigh
		case confidence >= 0.5:
			return models.RiskMedium
		default:
			return models.RiskLow
		}
	case models.StatusPass:
		return models.RiskLow
	}
	panic(fmt.Sprintf("unknown status %q", string(status)))
}
