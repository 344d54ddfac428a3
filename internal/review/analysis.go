package review

import (
	"github.com/google/uuid"

	"gagyebu/internal/core"
)

// BeginAnalysis marks a full analysis of every record as pending.
func (s State) BeginAnalysis() (State, error) {
	if err := s.checkIdle(); err != nil {
		return s, err
	}
	if s.saving() {
		return s, ErrSaveInProgress
	}
	if len(s.Records) == 0 {
		return s, ErrNoFiles
	}
	next := s.clone()
	next.Analysis = Analysis{Pending: true, Full: true, Targets: make([]uuid.UUID, len(s.Records))}
	for i, r := range s.Records {
		next.Analysis.Targets[i] = r.ID
	}
	return next, nil
}

// BeginRetry marks a re-analysis of the planned records as pending.
func (s State) BeginRetry(plan RetryPlan) (State, error) {
	if err := s.checkIdle(); err != nil {
		return s, err
	}
	if s.saving() {
		return s, ErrSaveInProgress
	}
	if len(plan.IDs) == 0 {
		return s, ErrNothingSelected
	}
	for _, id := range plan.IDs {
		if _, ok := s.indexOf(id); !ok {
			return s, ErrUnknownRecord
		}
	}
	next := s.clone()
	next.Analysis = Analysis{Pending: true, Targets: append([]uuid.UUID(nil), plan.IDs...)}
	return next, nil
}

// CompleteAnalysis applies the results of the pending analysis, aligned
// with its targets.
func (s State) CompleteAnalysis(results []core.AnalysisResult) (State, error) {
	if !s.Analysis.Pending {
		return s, ErrNotAnalyzing
	}
	if len(results) != len(s.Analysis.Targets) {
		return s, ErrLengthMismatch
	}
	idle := s.AbortAnalysis()
	if s.Analysis.Full {
		return idle.replaceAll(results)
	}

	indices := make([]int, len(s.Analysis.Targets))
	for k, id := range s.Analysis.Targets {
		i, ok := idle.indexOf(id)
		if !ok {
			return s, ErrUnknownRecord
		}
		indices[k] = i
	}
	next, err := idle.ReplaceAt(indices, results)
	if err != nil {
		return s, err
	}
	return next, nil
}

// AbortAnalysis drops the pending marker and nothing else, so the state is
// exactly what it was before the analysis began.
func (s State) AbortAnalysis() State {
	next := s.clone()
	next.Analysis = Analysis{}
	return next
}
