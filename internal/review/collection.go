package review

import (
	"github.com/google/uuid"

	"gagyebu/internal/core"
)

// Add appends the image files and silently drops everything else. New
// records start unanalysed. The first record becomes current if none is.
func (s State) Add(files []core.ReceiptFile) (State, error) {
	if err := s.checkIdle(); err != nil {
		return s, err
	}
	next := s.clone()
	added := 0
	for _, f := range files {
		if !f.IsImage() {
			continue
		}
		next.Records = append(next.Records, Record{ID: uuid.New(), File: f})
		added++
	}
	if added == 0 {
		return s, nil
	}
	if _, ok := next.CurrentIndex(); !ok {
		next.CurrentID = next.Records[0].ID
	}
	return next, nil
}

// RemoveAt drops the record at position i together with its flags.
func (s State) RemoveAt(i int) (State, error) {
	return s.RemoveMany([]int{i})
}

// RemoveMany drops the records at the given positions. All positions are
// checked before anything is removed and duplicates are ignored.
func (s State) RemoveMany(indices []int) (State, error) {
	if err := s.checkIdle(); err != nil {
		return s, err
	}
	drop := make(map[uuid.UUID]bool, len(indices))
	for _, i := range indices {
		if err := s.checkIndex(i); err != nil {
			return s, err
		}
		drop[s.Records[i].ID] = true
	}
	return s.without(drop), nil
}

// without removes records by id and re-resolves the current record: a
// surviving current stays; otherwise the nearest survivor before it, else
// the first survivor, else none.
func (s State) without(drop map[uuid.UUID]bool) State {
	if len(drop) == 0 {
		return s
	}
	oldCur, hasCur := s.CurrentIndex()

	next := s.clone()
	next.Records = next.Records[:0]
	for _, r := range s.Records {
		if !drop[r.ID] {
			next.Records = append(next.Records, r)
		}
	}

	switch {
	case len(next.Records) == 0:
		next.CurrentID = uuid.Nil
	case hasCur && !drop[s.CurrentID]:
	default:
		next.CurrentID = next.Records[0].ID
		if hasCur {
			for i := oldCur - 1; i >= 0; i-- {
				if !drop[s.Records[i].ID] {
					next.CurrentID = s.Records[i].ID
					break
				}
			}
		}
	}
	return next
}
