package review

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gagyebu/internal/core"
)

func img(name string) core.ReceiptFile {
	return core.ReceiptFile{Name: name, ContentType: "image/jpeg", Data: []byte(name)}
}

func good(store string) core.AnalysisResult {
	return core.AnalysisResult{StoreName: store, Date: "2024-03-01", Amount: "10,000"}
}

func withFiles(t *testing.T, n int) State {
	t.Helper()
	files := make([]core.ReceiptFile, n)
	for i := range files {
		files[i] = img(fmt.Sprintf("r%d.jpg", i))
	}
	st, err := State{}.Add(files)
	require.NoError(t, err)
	require.Equal(t, n, st.Len())
	return st
}

func analysed(t *testing.T, n int) State {
	t.Helper()
	st := withFiles(t, n)
	results := make([]core.AnalysisResult, n)
	for i := range results {
		results[i] = good(fmt.Sprintf("store-%d", i))
	}
	st, err := st.ReplaceAll(results)
	require.NoError(t, err)
	return st
}

func names(st State) []string {
	out := make([]string, st.Len())
	for i, r := range st.Records {
		out[i] = r.File.Name
	}
	return out
}

func currentIndex(t *testing.T, st State) int {
	t.Helper()
	i, ok := st.CurrentIndex()
	require.True(t, ok, "expected a current record")
	return i
}

func TestAddFiltersNonImages(t *testing.T) {
	st, err := State{}.Add([]core.ReceiptFile{
		img("a.jpg"),
		{Name: "notes.txt", ContentType: "text/plain", Data: []byte("x")},
		img("b.jpg"),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.jpg", "b.jpg"}, names(st))
	assert.Equal(t, 0, currentIndex(t, st))
	assert.Equal(t, PhaseFilesSelected, st.Phase())

	same, err := st.Add([]core.ReceiptFile{{Name: "x.pdf", ContentType: "application/pdf"}})
	require.NoError(t, err)
	assert.Equal(t, st, same)
}

func TestAddDoesNotMutateReceiver(t *testing.T) {
	st := withFiles(t, 2)
	_, err := st.Add([]core.ReceiptFile{img("c.jpg")})
	require.NoError(t, err)
	assert.Equal(t, 2, st.Len())
}

func TestRemoveAtBounds(t *testing.T) {
	st := withFiles(t, 3)
	for _, i := range []int{-1, 3, 10} {
		_, err := st.RemoveAt(i)
		assert.ErrorIs(t, err, ErrIndexOutOfRange)
	}
	_, err := State{}.RemoveAt(0)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
}

func TestRemoveAtShiftsReferences(t *testing.T) {
	st := analysed(t, 5)
	st, _ = st.MarkCompleted(1)
	st, _ = st.MarkCompleted(4)
	st, _ = st.ToggleSelect(2)
	st, _ = st.ToggleSelect(3)
	st, _ = st.SetCurrent(3)

	st, err := st.RemoveAt(2)
	require.NoError(t, err)

	assert.Equal(t, []string{"r0.jpg", "r1.jpg", "r3.jpg", "r4.jpg"}, names(st))
	assert.Equal(t, []int{1, 3}, st.CompletedIndices())
	assert.Equal(t, []int{2}, st.SelectedIndices())
	assert.Equal(t, 2, currentIndex(t, st))
	assert.Equal(t, "store-3", st.Records[2].Result.StoreName)
}

func TestRemoveManyOrderIndependent(t *testing.T) {
	base := analysed(t, 6)
	base, _ = base.MarkCompleted(0)
	base, _ = base.MarkCompleted(5)
	base, _ = base.ToggleSelect(3)
	base, _ = base.SetCurrent(4)

	a, err := base.RemoveMany([]int{1, 4, 2})
	require.NoError(t, err)
	b, err := base.RemoveMany([]int{4, 2, 1, 2})
	require.NoError(t, err)

	// one at a time, highest first
	c := base
	for _, i := range []int{4, 2, 1} {
		c, err = c.RemoveAt(i)
		require.NoError(t, err)
	}

	assert.Equal(t, a, b)
	assert.Equal(t, names(a), names(c))
	assert.Equal(t, a.CompletedIndices(), c.CompletedIndices())
	assert.Equal(t, a.SelectedIndices(), c.SelectedIndices())
	assert.Equal(t, []string{"r0.jpg", "r3.jpg", "r5.jpg"}, names(a))
	assert.Equal(t, []int{0, 2}, a.CompletedIndices())
	assert.Equal(t, []int{1}, a.SelectedIndices())
}

func TestRemoveManyValidatesBeforeRemoving(t *testing.T) {
	st := withFiles(t, 3)
	got, err := st.RemoveMany([]int{0, 7})
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
	assert.Equal(t, 3, got.Len())
}

func TestRemovingCurrentPrefersPreviousSurvivor(t *testing.T) {
	cases := []struct {
		name    string
		n       int
		current int
		remove  []int
		want    int
		empty   bool
	}{
		{"middle", 5, 2, []int{2}, 1, false},
		{"first", 5, 0, []int{0}, 0, false},
		{"tail block", 5, 4, []int{2, 3, 4}, 1, false},
		{"head block", 5, 1, []int{0, 1, 2}, 0, false},
		{"survivor kept", 5, 4, []int{0, 1}, 2, false},
		{"everything", 3, 1, []int{0, 1, 2}, 0, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			st := withFiles(t, tc.n)
			st, err := st.SetCurrent(tc.current)
			require.NoError(t, err)
			st, err = st.RemoveMany(tc.remove)
			require.NoError(t, err)
			i, ok := st.CurrentIndex()
			if tc.empty {
				assert.False(t, ok)
				assert.Equal(t, PhaseEmpty, st.Phase())
				return
			}
			require.True(t, ok)
			assert.Equal(t, tc.want, i)
		})
	}
}

func TestIndexInvariantsUnderRandomEdits(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	st := analysed(t, 8)
	for step := 0; step < 500; step++ {
		n := st.Len()
		var err error
		switch op := rng.Intn(5); {
		case op == 0 || n == 0:
			st, err = st.Add([]core.ReceiptFile{img(fmt.Sprintf("n%d.jpg", step))})
		case op == 1:
			st, err = st.RemoveAt(rng.Intn(n))
		case op == 2:
			st, err = st.ToggleSelect(rng.Intn(n))
		case op == 3:
			st, err = st.MarkCompleted(rng.Intn(n))
		default:
			st, err = st.RemoveMany([]int{rng.Intn(n), rng.Intn(n)})
		}
		require.NoError(t, err)

		n = st.Len()
		selectedOnly := 0
		for _, r := range st.Records {
			if r.Selected && !r.Completed {
				selectedOnly++
			}
		}
		require.LessOrEqual(t, len(st.CompletedIndices())+selectedOnly, n)
		for _, idx := range append(st.CompletedIndices(), st.SelectedIndices()...) {
			require.Less(t, idx, n)
		}
		if i, ok := st.CurrentIndex(); ok {
			require.Less(t, i, n)
		} else {
			require.Zero(t, n)
		}
	}
}

func TestReaddedFileHasNoResult(t *testing.T) {
	st := analysed(t, 4)
	st, err := st.RemoveAt(2)
	require.NoError(t, err)
	st, err = st.Add([]core.ReceiptFile{img("new.jpg")})
	require.NoError(t, err)

	require.Equal(t, 4, st.Len())
	assert.Nil(t, st.Records[3].Result)
	assert.Equal(t, "store-3", st.Records[2].Result.StoreName)
	assert.Empty(t, st.FailedIndices())
}

func TestReplaceAllResetsReview(t *testing.T) {
	st := analysed(t, 3)
	st, _ = st.MarkCompleted(0)
	st, _ = st.ToggleSelect(1)
	st, _ = st.SetCurrent(2)

	_, err := st.ReplaceAll([]core.AnalysisResult{good("x")})
	assert.ErrorIs(t, err, ErrLengthMismatch)

	st, err = st.ReplaceAll([]core.AnalysisResult{good("x"), good("y"), good("z")})
	require.NoError(t, err)
	assert.Empty(t, st.CompletedIndices())
	assert.Empty(t, st.SelectedIndices())
	assert.Equal(t, 0, currentIndex(t, st))
	assert.Equal(t, "y", st.Records[1].Result.StoreName)
}

func TestReplaceAtTouchesOnlyTargets(t *testing.T) {
	st := analysed(t, 5)
	st, _ = st.MarkCompleted(2)
	st, _ = st.MarkCompleted(3)
	st, _ = st.ToggleSelect(4)
	before := st.clone()

	st, err := st.ReplaceAt([]int{2, 4}, []core.AnalysisResult{good("R2"), good("R4")})
	require.NoError(t, err)

	for _, i := range []int{0, 1, 3} {
		assert.Equal(t, before.Records[i], st.Records[i], "index %d", i)
	}
	assert.Equal(t, "R2", st.Records[2].Result.StoreName)
	assert.Equal(t, "R4", st.Records[4].Result.StoreName)
	assert.False(t, st.Records[2].Completed)
	assert.True(t, st.Records[4].Selected)
	assert.Equal(t, "store-2", before.Records[2].Result.StoreName)
}

func TestReplaceAtErrors(t *testing.T) {
	st := analysed(t, 3)
	_, err := st.ReplaceAt([]int{0, 1}, []core.AnalysisResult{good("a")})
	assert.ErrorIs(t, err, ErrLengthMismatch)
	_, err = st.ReplaceAt([]int{3}, []core.AnalysisResult{good("a")})
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
}

func TestToggleAndUndo(t *testing.T) {
	st := analysed(t, 3)
	st, err := st.ToggleSelect(1)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, st.SelectedIndices())
	st, _ = st.ToggleSelect(1)
	assert.Empty(t, st.SelectedIndices())

	_, err = st.ToggleSelect(3)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)

	st, _ = st.MarkCompleted(2)
	st, err = st.UndoCompleted(2)
	require.NoError(t, err)
	assert.Empty(t, st.CompletedIndices())
	assert.Equal(t, 2, currentIndex(t, st))
}

func TestBulkDeleteRenumbers(t *testing.T) {
	st := analysed(t, 5)
	st, _ = st.ToggleSelect(1)
	st, _ = st.ToggleSelect(3)
	st, _ = st.MarkCompleted(4)
	st, _ = st.SetCurrent(3)

	st, err := st.BulkDelete()
	require.NoError(t, err)

	assert.Equal(t, []string{"r0.jpg", "r2.jpg", "r4.jpg"}, names(st))
	assert.Empty(t, st.SelectedIndices())
	assert.Equal(t, []int{2}, st.CompletedIndices())
	assert.Equal(t, 1, currentIndex(t, st))

	draft, ok := st.CurrentDraft()
	require.True(t, ok)
	assert.Equal(t, "store-2", draft.Payee)
}

func TestBulkDeleteNothingSelected(t *testing.T) {
	_, err := analysed(t, 2).BulkDelete()
	assert.ErrorIs(t, err, ErrNothingSelected)
}

func TestFailedRetryScenario(t *testing.T) {
	st := withFiles(t, 3)
	st, err := st.ReplaceAll([]core.AnalysisResult{
		good("a"),
		{StoreName: "b", Date: "2024-03-01", Amount: "0"},
		good("c"),
	})
	require.NoError(t, err)
	st, _ = st.MarkCompleted(0)
	st, _ = st.MarkCompleted(2)
	assert.Equal(t, []int{1}, st.FailedIndices())

	plan, err := st.FailedRetryPlan()
	require.NoError(t, err)
	assert.Equal(t, []int{1}, plan.Indices)

	st, err = st.BeginRetry(plan)
	require.NoError(t, err)
	st, err = st.CompleteAnalysis([]core.AnalysisResult{good("b")})
	require.NoError(t, err)

	assert.Empty(t, st.FailedIndices())
	assert.Equal(t, []int{0, 2}, st.CompletedIndices())

	_, err = st.FailedRetryPlan()
	assert.ErrorIs(t, err, ErrNoFailures)
}

func TestSelectedRetryRefreshesCurrentDraft(t *testing.T) {
	st := analysed(t, 3)
	st, _ = st.SetCurrent(1)
	st, _ = st.ToggleSelect(1)
	st, _ = st.ToggleSelect(2)

	plan, err := st.SelectedRetryPlan()
	require.NoError(t, err)
	require.Len(t, plan.Files, 2)

	st, err = st.BeginRetry(plan)
	require.NoError(t, err)
	st, err = st.CompleteAnalysis([]core.AnalysisResult{good("new-1"), good("new-2")})
	require.NoError(t, err)

	draft, ok := st.CurrentDraft()
	require.True(t, ok)
	assert.Equal(t, "new-1", draft.Payee)
	assert.Equal(t, []int{1, 2}, st.SelectedIndices())

	_, err = analysed(t, 2).SelectedRetryPlan()
	assert.ErrorIs(t, err, ErrNothingSelected)
}

func TestBulkSave(t *testing.T) {
	st := analysed(t, 4)
	_, _, err := st.BulkSave()
	assert.ErrorIs(t, err, ErrNothingSelected)

	st, _ = st.MarkCompleted(0)
	st, _ = st.ToggleSelect(0)
	st, _ = st.ToggleSelect(2)

	next, saved, err := st.BulkSave()
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.Equal(t, st.Records[2].ID, saved[0].ID)
	assert.Equal(t, []int{0, 2}, next.CompletedIndices())
	assert.Empty(t, next.SelectedIndices())

	again, _ := next.ToggleSelect(0)
	again, _ = again.ToggleSelect(2)
	_, _, err = again.BulkSave()
	assert.ErrorIs(t, err, ErrAlreadySaved)
}

func TestCommitSavePartial(t *testing.T) {
	st := analysed(t, 3)
	st, _ = st.ToggleSelect(0)
	st, _ = st.ToggleSelect(1)

	st, err := st.CommitSave([]uuid.UUID{st.Records[0].ID})
	require.NoError(t, err)
	assert.Equal(t, []int{0}, st.CompletedIndices())
	assert.Equal(t, []int{1}, st.SelectedIndices())
}

func TestSubmitScenario(t *testing.T) {
	st := analysed(t, 3)

	st, out, err := st.Submit()
	require.NoError(t, err)
	assert.Equal(t, []int{0}, st.CompletedIndices())
	assert.Equal(t, 1, currentIndex(t, st))
	assert.Equal(t, Outcome{Advanced: true, Finished: false}, out)
	assert.Equal(t, PhaseReviewing, st.Phase())

	st, out, err = st.Submit()
	require.NoError(t, err)
	assert.False(t, out.Finished)

	st, out, err = st.Submit()
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, st.CompletedIndices())
	assert.Equal(t, Outcome{Advanced: false, Finished: true}, out)
	assert.Equal(t, PhaseComplete, st.Phase())
}

func TestSubmitLastWithGapsIsPartial(t *testing.T) {
	st := analysed(t, 3)
	st, _ = st.SetCurrent(2)
	st, out, err := st.Submit()
	require.NoError(t, err)
	assert.Equal(t, Outcome{}, out)
	assert.Equal(t, 2, currentIndex(t, st))
}

func TestSubmitRequiresAnalysedCurrent(t *testing.T) {
	_, _, err := State{}.Submit()
	assert.ErrorIs(t, err, ErrNoCurrent)
	_, _, err = withFiles(t, 2).Submit()
	assert.ErrorIs(t, err, ErrNoCurrent)
}

func TestSubmitWithOthersDoneAdvancesWithoutFinishing(t *testing.T) {
	st := analysed(t, 3)
	st, _ = st.MarkCompleted(1)
	st, _ = st.MarkCompleted(2)

	st, out, err := st.Submit()
	require.NoError(t, err)
	assert.Equal(t, Outcome{Advanced: true, Finished: false}, out)
	assert.Equal(t, []int{0, 1, 2}, st.CompletedIndices())
	assert.Equal(t, PhaseComplete, st.Phase())
}

func TestSaveReservation(t *testing.T) {
	st := analysed(t, 2)
	st, _ = st.ToggleSelect(0)
	target, err := st.SubmitTarget()
	require.NoError(t, err)

	reserved, err := st.ReserveSave([]uuid.UUID{target.ID})
	require.NoError(t, err)
	assert.False(t, st.Records[0].Saving, "receiver untouched")

	_, err = reserved.SubmitTarget()
	assert.ErrorIs(t, err, ErrSaveInProgress)
	_, err = reserved.ReserveSave([]uuid.UUID{target.ID})
	assert.ErrorIs(t, err, ErrSaveInProgress)
	_, err = reserved.PendingSave()
	assert.ErrorIs(t, err, ErrSaveInProgress)
	_, err = reserved.BeginAnalysis()
	assert.ErrorIs(t, err, ErrSaveInProgress)

	released := reserved.ReleaseSave([]uuid.UUID{target.ID, uuid.New()})
	_, err = released.SubmitTarget()
	assert.NoError(t, err)

	committed, err := reserved.CommitSave([]uuid.UUID{target.ID})
	require.NoError(t, err)
	assert.False(t, committed.Records[0].Saving)
	_, err = committed.PendingSave()
	assert.ErrorIs(t, err, ErrNothingSelected)

	_, err = st.ReserveSave([]uuid.UUID{uuid.New()})
	assert.ErrorIs(t, err, ErrUnknownRecord)
}

func TestSkip(t *testing.T) {
	st := analysed(t, 2)
	st, err := st.Skip()
	require.NoError(t, err)
	assert.Equal(t, 1, currentIndex(t, st))
	assert.Empty(t, st.CompletedIndices())

	_, err = st.Skip()
	assert.ErrorIs(t, err, ErrLastItem)
}

func TestAnalysisLifecycle(t *testing.T) {
	_, err := State{}.BeginAnalysis()
	assert.ErrorIs(t, err, ErrNoFiles)

	st := withFiles(t, 2)
	pending, err := st.BeginAnalysis()
	require.NoError(t, err)
	assert.Equal(t, PhaseAnalyzing, pending.Phase())

	_, err = pending.BeginAnalysis()
	assert.ErrorIs(t, err, ErrAnalysisInProgress)
	_, err = pending.Add([]core.ReceiptFile{img("x.jpg")})
	assert.ErrorIs(t, err, ErrAnalysisInProgress)
	_, err = pending.RemoveAt(0)
	assert.ErrorIs(t, err, ErrAnalysisInProgress)
	_, err = pending.ToggleSelect(0)
	assert.ErrorIs(t, err, ErrAnalysisInProgress)

	assert.Equal(t, st, pending.AbortAnalysis())

	_, err = pending.CompleteAnalysis([]core.AnalysisResult{good("a")})
	assert.ErrorIs(t, err, ErrLengthMismatch)

	done, err := pending.CompleteAnalysis([]core.AnalysisResult{good("a"), good("b")})
	require.NoError(t, err)
	assert.Equal(t, PhaseReviewing, done.Phase())

	_, err = done.CompleteAnalysis(nil)
	assert.ErrorIs(t, err, ErrNotAnalyzing)
}
