package review

import "gagyebu/internal/core"

// ReplaceAll stores the results of a full analysis, one per record in order.
// Completion and selection are reset and the first record becomes current.
func (s State) ReplaceAll(results []core.AnalysisResult) (State, error) {
	if err := s.checkIdle(); err != nil {
		return s, err
	}
	return s.replaceAll(results)
}

func (s State) replaceAll(results []core.AnalysisResult) (State, error) {
	if len(results) != len(s.Records) {
		return s, ErrLengthMismatch
	}
	next := s.clone()
	for i := range next.Records {
		r := results[i]
		next.Records[i].Result = &r
		next.Records[i].Completed = false
		next.Records[i].Selected = false
	}
	if len(next.Records) > 0 {
		next.CurrentID = next.Records[0].ID
	}
	return next, nil
}

// ReplaceAt stores retry results: indices[k] receives results[k]. Replaced
// records must be confirmed again, so they lose their completed flag; their
// selection is kept.
func (s State) ReplaceAt(indices []int, results []core.AnalysisResult) (State, error) {
	if err := s.checkIdle(); err != nil {
		return s, err
	}
	if len(indices) != len(results) {
		return s, ErrLengthMismatch
	}
	for _, i := range indices {
		if err := s.checkIndex(i); err != nil {
			return s, err
		}
	}
	next := s.clone()
	for k, i := range indices {
		r := results[k]
		next.Records[i].Result = &r
		next.Records[i].Completed = false
	}
	return next, nil
}
