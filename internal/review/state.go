// Package review implements the multi-receipt OCR review workflow.
//
// A State is an ordered collection of records, each holding one uploaded
// file, its latest analysis result and its completed/selected flags. Records
// are keyed by a stable id, so removing one never renumbers the others'
// flags; positional indices are derived on read. Every operation is a pure
// reducer returning a new State and leaving the receiver untouched.
package review

import (
	"github.com/google/uuid"

	"gagyebu/internal/core"
)

// Phase is the coarse position of a session in the review workflow.
type Phase string

const (
	PhaseEmpty         Phase = "empty"
	PhaseFilesSelected Phase = "files_selected"
	PhaseAnalyzing     Phase = "analyzing"
	PhaseReviewing     Phase = "reviewing"
	PhaseComplete      Phase = "complete"
)

// Record is one uploaded receipt and its review flags.
type Record struct {
	ID        uuid.UUID            `json:"id"`
	File      core.ReceiptFile     `json:"file"`
	Result    *core.AnalysisResult `json:"result,omitempty"`
	Completed bool                 `json:"completed"`
	Selected  bool                 `json:"selected"`
	Saving    bool                 `json:"saving"`
}

// Failed reports whether the record was analysed and the result is unusable.
func (r Record) Failed() bool {
	return r.Result != nil && r.Result.Failed()
}

// Analysis describes the one outstanding analysis call, if any.
type Analysis struct {
	Pending bool        `json:"pending"`
	Targets []uuid.UUID `json:"targets,omitempty"`
	Full    bool        `json:"full"`
}

// State is the whole review workflow of one session. The zero value is an
// empty session.
type State struct {
	Records   []Record  `json:"records"`
	CurrentID uuid.UUID `json:"currentId"`
	Analysis  Analysis  `json:"analysis"`
}

// Len is the number of records.
func (s State) Len() int { return len(s.Records) }

func (s State) clone() State {
	next := s
	next.Records = append([]Record(nil), s.Records...)
	next.Analysis.Targets = append([]uuid.UUID(nil), s.Analysis.Targets...)
	return next
}

func (s State) indexOf(id uuid.UUID) (int, bool) {
	if id == uuid.Nil {
		return 0, false
	}
	for i, r := range s.Records {
		if r.ID == id {
			return i, true
		}
	}
	return 0, false
}

func (s State) checkIndex(i int) error {
	if i < 0 || i >= len(s.Records) {
		return ErrIndexOutOfRange
	}
	return nil
}

func (s State) checkIdle() error {
	if s.Analysis.Pending {
		return ErrAnalysisInProgress
	}
	return nil
}

func (s State) saving() bool {
	for _, r := range s.Records {
		if r.Saving {
			return true
		}
	}
	return false
}

// CurrentIndex returns the position of the current record.
func (s State) CurrentIndex() (int, bool) {
	return s.indexOf(s.CurrentID)
}

// Current returns the current record.
func (s State) Current() (Record, bool) {
	i, ok := s.CurrentIndex()
	if !ok {
		return Record{}, false
	}
	return s.Records[i], true
}

// CurrentDraft is the form draft derived from the current record's result.
func (s State) CurrentDraft() (core.TransactionDraft, bool) {
	r, ok := s.Current()
	if !ok || r.Result == nil {
		return core.TransactionDraft{}, false
	}
	return core.DraftFromResult(*r.Result), true
}

func (s State) indices(pred func(Record) bool) []int {
	out := []int{}
	for i, r := range s.Records {
		if pred(r) {
			out = append(out, i)
		}
	}
	return out
}

func (s State) CompletedIndices() []int {
	return s.indices(func(r Record) bool { return r.Completed })
}

func (s State) SelectedIndices() []int {
	return s.indices(func(r Record) bool { return r.Selected })
}

// FailedIndices lists analysed records whose result fails the usability check.
func (s State) FailedIndices() []int {
	return s.indices(Record.Failed)
}

// Files returns the uploaded files in order.
func (s State) Files() []core.ReceiptFile {
	files := make([]core.ReceiptFile, len(s.Records))
	for i, r := range s.Records {
		files[i] = r.File
	}
	return files
}

// Results returns the analysis results in order; unanalysed records are nil.
func (s State) Results() []*core.AnalysisResult {
	results := make([]*core.AnalysisResult, len(s.Records))
	for i, r := range s.Records {
		results[i] = r.Result
	}
	return results
}

func (s State) allCompleted() bool {
	if len(s.Records) == 0 {
		return false
	}
	for _, r := range s.Records {
		if !r.Completed {
			return false
		}
	}
	return true
}

func (s State) anyAnalysed() bool {
	for _, r := range s.Records {
		if r.Result != nil {
			return true
		}
	}
	return false
}

// Phase derives the workflow position from the records and the analysis block.
func (s State) Phase() Phase {
	switch {
	case s.Analysis.Pending:
		return PhaseAnalyzing
	case len(s.Records) == 0:
		return PhaseEmpty
	case s.allCompleted():
		return PhaseComplete
	case s.anyAnalysed():
		return PhaseReviewing
	default:
		return PhaseFilesSelected
	}
}
