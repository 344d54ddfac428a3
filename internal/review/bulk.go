package review

import (
	"github.com/google/uuid"

	"gagyebu/internal/core"
)

// RetryPlan is the batch of records sent for re-analysis.
type RetryPlan struct {
	IDs     []uuid.UUID
	Indices []int
	Files   []core.ReceiptFile
}

// Outcome of submitting the current record.
type Outcome struct {
	Advanced bool `json:"advanced"`
	Finished bool `json:"finished"`
}

// BulkDelete removes every selected record.
func (s State) BulkDelete() (State, error) {
	if err := s.checkIdle(); err != nil {
		return s, err
	}
	selected := s.SelectedIndices()
	if len(selected) == 0 {
		return s, ErrNothingSelected
	}
	return s.RemoveMany(selected)
}

// RetryPlan resolves the records at the given positions.
func (s State) RetryPlan(indices []int) (RetryPlan, error) {
	if len(indices) == 0 {
		return RetryPlan{}, ErrNothingSelected
	}
	var plan RetryPlan
	seen := make(map[int]bool, len(indices))
	for _, i := range indices {
		if err := s.checkIndex(i); err != nil {
			return RetryPlan{}, err
		}
		if seen[i] {
			continue
		}
		seen[i] = true
		plan.IDs = append(plan.IDs, s.Records[i].ID)
		plan.Indices = append(plan.Indices, i)
		plan.Files = append(plan.Files, s.Records[i].File)
	}
	return plan, nil
}

func (s State) SelectedRetryPlan() (RetryPlan, error) {
	return s.RetryPlan(s.SelectedIndices())
}

func (s State) FailedRetryPlan() (RetryPlan, error) {
	failed := s.FailedIndices()
	if len(failed) == 0 {
		return RetryPlan{}, ErrNoFailures
	}
	return s.RetryPlan(failed)
}

// PendingSave returns the selected records that still need saving. Records
// already being saved by another request are left out.
func (s State) PendingSave() ([]Record, error) {
	if err := s.checkIdle(); err != nil {
		return nil, err
	}
	var pending []Record
	selected, inFlight := 0, 0
	for _, r := range s.Records {
		if !r.Selected {
			continue
		}
		selected++
		switch {
		case r.Completed:
		case r.Saving:
			inFlight++
		default:
			pending = append(pending, r)
		}
	}
	switch {
	case selected == 0:
		return nil, ErrNothingSelected
	case len(pending) == 0 && inFlight > 0:
		return nil, ErrSaveInProgress
	case len(pending) == 0:
		return nil, ErrAlreadySaved
	}
	return pending, nil
}

// ReserveSave marks the records as handed to the ledger. A record can be
// reserved by one request at a time.
func (s State) ReserveSave(ids []uuid.UUID) (State, error) {
	if err := s.checkIdle(); err != nil {
		return s, err
	}
	next := s.clone()
	for _, id := range ids {
		i, ok := next.indexOf(id)
		if !ok {
			return s, ErrUnknownRecord
		}
		if next.Records[i].Saving {
			return s, ErrSaveInProgress
		}
		next.Records[i].Saving = true
	}
	return next, nil
}

// ReleaseSave drops the reservation of the records. Ids no longer in the
// session are ignored.
func (s State) ReleaseSave(ids []uuid.UUID) State {
	next := s.clone()
	for _, id := range ids {
		if i, ok := next.indexOf(id); ok {
			next.Records[i].Saving = false
		}
	}
	return next
}

// CommitSave marks the saved records completed and deselects them. Once no
// selected record is left unsaved the whole selection is cleared. Ids no
// longer in the session are ignored.
func (s State) CommitSave(ids []uuid.UUID) (State, error) {
	if err := s.checkIdle(); err != nil {
		return s, err
	}
	saved := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		saved[id] = true
	}
	next := s.clone()
	remaining := false
	for i := range next.Records {
		r := &next.Records[i]
		if saved[r.ID] {
			r.Completed = true
			r.Selected = false
			r.Saving = false
		}
		if r.Selected && !r.Completed {
			remaining = true
		}
	}
	if !remaining {
		for i := range next.Records {
			next.Records[i].Selected = false
		}
	}
	return next, nil
}

// BulkSave marks every unsaved selected record completed and clears the
// selection, returning the records that were saved.
func (s State) BulkSave() (State, []Record, error) {
	if err := s.checkIdle(); err != nil {
		return s, nil, err
	}
	pending, err := s.PendingSave()
	if err != nil {
		return s, nil, err
	}
	ids := make([]uuid.UUID, len(pending))
	for i, r := range pending {
		ids[i] = r.ID
	}
	next, err := s.CommitSave(ids)
	if err != nil {
		return s, nil, err
	}
	return next, pending, nil
}

// SubmitTarget returns the current record if it can be submitted.
func (s State) SubmitTarget() (Record, error) {
	if err := s.checkIdle(); err != nil {
		return Record{}, err
	}
	r, ok := s.Current()
	if !ok || r.Result == nil {
		return Record{}, ErrNoCurrent
	}
	if r.Saving {
		return Record{}, ErrSaveInProgress
	}
	return r, nil
}

// Submit completes the current record and moves to the next one if any.
func (s State) Submit() (State, Outcome, error) {
	r, err := s.SubmitTarget()
	if err != nil {
		return s, Outcome{}, err
	}
	return s.SubmitRecord(r.ID)
}

// SubmitRecord completes the record with the given id. The session only
// advances when that record is still current, and reports finished only
// when there is nothing left to advance to.
func (s State) SubmitRecord(id uuid.UUID) (State, Outcome, error) {
	if err := s.checkIdle(); err != nil {
		return s, Outcome{}, err
	}
	i, ok := s.indexOf(id)
	if !ok {
		return s, Outcome{}, ErrUnknownRecord
	}
	next := s.clone()
	next.Records[i].Completed = true
	next.Records[i].Saving = false

	var out Outcome
	if next.CurrentID == id && i+1 < len(next.Records) {
		next.CurrentID = next.Records[i+1].ID
		out.Advanced = true
	}
	out.Finished = !out.Advanced && next.allCompleted()
	return next, out, nil
}
