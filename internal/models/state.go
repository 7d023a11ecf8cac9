package models

import (
	"fmt"
	"strings"
	"time"
)

type Stage string

const (
	StagePending       Stage = "pending"
	StageIngestion     Stage = "ingestion"
	StagePreprocessing Stage = "preprocessing"
	StageEmbedding     Stage = "embedding"
	StageEvaluation    Stage = "evaluation"
	StageReporting     Stage = "reporting"
	StageCompleted     Stage = "completed"
	StageFailed        Stage = "failed"
)

func (s Stage) Terminal() bool {
	switch s {
	case StageCompleted, StageFailed:
		return true
	case StagePending, StageIngestion, StagePreprocessing, StageEmbedding, StageEvaluation, StageReporting:
		return false
	}
	panic(fmt.Sprintf("unknown stage %q", string(s)))
}

// EvaluationMode selects how a checklist is evaluated.
type EvaluationMode string

const (
	ModeRAG         EvaluationMode = "rag"
	ModeLongContext EvaluationMode = "long_context"
	ModeAuto        EvaluationMode = "auto"
)

func ParseEvaluationMode(s string) (EvaluationMode, error) {
	switch EvaluationMode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeRAG:
		return ModeRAG, nil
	case ModeLongContext:
		return ModeLongContext, nil
	case ModeAuto:
		return ModeAuto, nil
	}
	return "", fmt.Errorf("unknown evaluation mode %q", s)
}

// PipelineState tracks one run. It is owned by the run that creates it;
// observers receive copies.
type PipelineState struct {
	JobID      string             `json:"job_id,omitempty"`
	DocID      string             `json:"doc_id"`
	Filename   string             `json:"filename"`
	Stage      Stage              `json:"stage"`
	Progress   float64            `json:"progress"`
	Errors     []string           `json:"errors"`
	StageTimes map[string]float64 `json:"stage_times"`
	ReportID   string             `json:"report_id,omitempty"`
	Mode       EvaluationMode     `json:"mode,omitempty"`
	UpdatedAt  time.Time          `json:"updated_at"`
}

func NewPipelineState(jobID, filename string) PipelineState {
	return PipelineState{
		JobID:      jobID,
		Filename:   filename,
		Stage:      StagePending,
		Errors:     []string{},
		StageTimes: map[string]float64{},
		UpdatedAt:  time.Now().UTC(),
	}
}

// Clone returns a deep copy.
func (s PipelineState) Clone() PipelineState {
	out := s
	out.Errors = append([]string{}, s.Errors...)
	out.StageTimes = make(map[string]float64, len(s.StageTimes))
	for k, v := range s.StageTimes {
		out.StageTimes[k] = v
	}
	return out
}
