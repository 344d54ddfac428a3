package review

import (
	"github.com/google/uuid"

	"gagyebu/internal/core"
)

// ItemView is one record as the client sees it.
type ItemView struct {
	Index      int                  `json:"index"`
	ID         uuid.UUID            `json:"id"`
	Name       string               `json:"name"`
	PreviewURI string               `json:"previewUri"`
	Result     *core.AnalysisResult `json:"result,omitempty"`
	Failed     bool                 `json:"failed"`
	Completed  bool                 `json:"completed"`
	Selected   bool                 `json:"selected"`
	Saving     bool                 `json:"saving"`
}

// Snapshot is the JSON view of a session.
type Snapshot struct {
	SessionID    uuid.UUID              `json:"sessionId"`
	Phase        Phase                  `json:"phase"`
	Items        []ItemView             `json:"items"`
	CurrentIndex *int                   `json:"currentIndex"`
	Draft        *core.TransactionDraft `json:"draft,omitempty"`
	Completed    []int                  `json:"completedIndices"`
	Selected     []int                  `json:"selectedIndices"`
	Failed       []int                  `json:"failedIndices"`
}

// Snapshot renders the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot(s.state)
}

// SnapshotOf renders st, resolving preview URIs against this session.
func (s *Session) SnapshotOf(st State) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot(st)
}

func (s *Session) snapshot(st State) Snapshot {
	snap := Snapshot{
		SessionID: s.id,
		Phase:     st.Phase(),
		Items:     make([]ItemView, len(st.Records)),
		Completed: st.CompletedIndices(),
		Selected:  st.SelectedIndices(),
		Failed:    st.FailedIndices(),
	}
	for i, r := range st.Records {
		item := ItemView{
			Index:     i,
			ID:        r.ID,
			Name:      r.File.Name,
			Result:    r.Result,
			Failed:    r.Failed(),
			Completed: r.Completed,
			Selected:  r.Selected,
			Saving:    r.Saving,
		}
		if h, ok := s.handles[r.ID]; ok {
			item.PreviewURI = h.URI()
		}
		snap.Items[i] = item
	}
	if i, ok := st.CurrentIndex(); ok {
		snap.CurrentIndex = &i
	}
	if d, ok := st.CurrentDraft(); ok {
		snap.Draft = &d
	}
	return snap
}
