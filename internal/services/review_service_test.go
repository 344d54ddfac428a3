package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gagyebu/internal/core"
	"gagyebu/internal/log"
	"gagyebu/internal/ocr"
	"gagyebu/internal/review"
	"gagyebu/internal/storage"
)

type harness struct {
	svc      *ReviewService
	ledger   *TransactionService
	repo     *storage.MemoryRepository
	analyzer *fakeAnalyzer
}

func newHarness(cfg ReviewConfig) *harness {
	repo := storage.NewMemoryRepository()
	ledger := NewTransactionService(repo, nil, nil, log.Discard())
	a := &fakeAnalyzer{fail: map[string]bool{}}
	return &harness{
		svc:      NewReviewService(cfg, nil, a, ledger, log.Discard()),
		ledger:   ledger,
		repo:     repo,
		analyzer: a,
	}
}

func (h *harness) analysed(t *testing.T, names ...string) string {
	t.Helper()
	files := make([]core.ReceiptFile, len(names))
	for i, n := range names {
		files[i] = jpeg(n)
	}
	snap, err := h.svc.Create(context.Background(), files)
	require.NoError(t, err)
	id := snap.SessionID.String()
	_, err = h.svc.Analyze(context.Background(), id)
	require.NoError(t, err)
	return id
}

func TestReviewCreateAndGet(t *testing.T) {
	h := newHarness(ReviewConfig{})
	snap, err := h.svc.Create(context.Background(), []core.ReceiptFile{jpeg("a.jpg"), {Name: "notes.txt", ContentType: "text/plain"}})
	require.NoError(t, err)
	assert.Equal(t, review.PhaseFilesSelected, snap.Phase)
	require.Len(t, snap.Items, 1)

	got, err := h.svc.Get(snap.SessionID.String())
	require.NoError(t, err)
	assert.Equal(t, snap.SessionID, got.SessionID)

	_, err = h.svc.Get("not-a-uuid")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestReviewCloseReleasesPreviews(t *testing.T) {
	h := newHarness(ReviewConfig{})
	snap, err := h.svc.Create(context.Background(), []core.ReceiptFile{jpeg("a.jpg"), jpeg("b.jpg")})
	require.NoError(t, err)
	assert.Equal(t, 2, h.svc.Previews().Len())

	require.NoError(t, h.svc.Close(snap.SessionID.String()))
	assert.Equal(t, 0, h.svc.Previews().Len())
	assert.ErrorIs(t, h.svc.Close(snap.SessionID.String()), ErrSessionNotFound)
}

func TestReviewSessionsAreBoundedAndExpire(t *testing.T) {
	h := newHarness(ReviewConfig{MaxSessions: 1, SessionTTL: 20 * time.Millisecond})
	first, err := h.svc.Create(context.Background(), []core.ReceiptFile{jpeg("a.jpg")})
	require.NoError(t, err)
	second, err := h.svc.Create(context.Background(), []core.ReceiptFile{jpeg("b.jpg")})
	require.NoError(t, err)

	_, err = h.svc.Get(first.SessionID.String())
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.Equal(t, 1, h.svc.Previews().Len())

	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, 1, h.svc.Sessions().CleanExpired())
	_, err = h.svc.Get(second.SessionID.String())
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.Equal(t, 0, h.svc.Previews().Len())
}

func TestReviewSubmitSavesAndAdvances(t *testing.T) {
	h := newHarness(ReviewConfig{})
	id := h.analysed(t, "a.jpg", "b.jpg")

	res, err := h.svc.Submit(context.Background(), id, nil)
	require.NoError(t, err)
	assert.True(t, res.Outcome.Advanced)
	assert.False(t, res.Outcome.Finished)
	assert.Equal(t, int64(8500), res.Transaction.Amount)
	assert.Equal(t, "가게-a.jpg", res.Transaction.Payee)
	assert.Equal(t, []int{0}, res.Snapshot.Completed)
	require.NotNil(t, res.Snapshot.CurrentIndex)
	assert.Equal(t, 1, *res.Snapshot.CurrentIndex)

	edited := manualDraft("2025-04-09", 4200, core.Expense, "교통")
	res, err = h.svc.Submit(context.Background(), id, &edited)
	require.NoError(t, err)
	assert.True(t, res.Outcome.Finished)
	assert.Equal(t, int64(4200), res.Transaction.Amount)
	assert.Equal(t, review.PhaseComplete, res.Snapshot.Phase)

	txs, err := h.ledger.ListMonth(context.Background(), 2025, 4)
	require.NoError(t, err)
	assert.Len(t, txs, 2)
}

func TestReviewSubmitRejectedLeavesItemOpen(t *testing.T) {
	h := newHarness(ReviewConfig{})
	id := h.analysed(t, "a.jpg")

	bad := manualDraft("2025-04-09", -1, core.Expense, "교통")
	res, err := h.svc.Submit(context.Background(), id, &bad)
	require.ErrorIs(t, err, core.ErrInvalidAmount)
	assert.Empty(t, res.Snapshot.Completed)
}

func TestReviewRetryFailed(t *testing.T) {
	h := newHarness(ReviewConfig{})
	h.analyzer.fail["b.jpg"] = true
	id := h.analysed(t, "a.jpg", "b.jpg", "c.jpg")

	snap, err := h.svc.Get(id)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, snap.Failed)

	delete(h.analyzer.fail, "b.jpg")
	snap, err = h.svc.RetryFailed(context.Background(), id)
	require.NoError(t, err)
	assert.Empty(t, snap.Failed)
	assert.Equal(t, []string{"b.jpg"}, h.analyzer.calls[len(h.analyzer.calls)-1])

	_, err = h.svc.RetryFailed(context.Background(), id)
	assert.ErrorIs(t, err, review.ErrNoFailures)
}

func TestReviewRetryUsesSelectionWhenNoIndices(t *testing.T) {
	h := newHarness(ReviewConfig{})
	id := h.analysed(t, "a.jpg", "b.jpg", "c.jpg")

	_, err := h.svc.Retry(context.Background(), id, nil)
	require.ErrorIs(t, err, review.ErrNothingSelected)

	_, err = h.svc.ToggleSelect(id, 2)
	require.NoError(t, err)
	_, err = h.svc.Retry(context.Background(), id, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"c.jpg"}, h.analyzer.calls[len(h.analyzer.calls)-1])

	_, err = h.svc.Retry(context.Background(), id, []int{0, 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.jpg", "b.jpg"}, h.analyzer.calls[len(h.analyzer.calls)-1])

	_, err = h.svc.Retry(context.Background(), id, []int{7})
	assert.ErrorIs(t, err, review.ErrIndexOutOfRange)
}

func TestReviewCancelRestoresState(t *testing.T) {
	h := newHarness(ReviewConfig{})
	h.analyzer.block = make(chan struct{})
	h.analyzer.ready = make(chan struct{})
	snap, err := h.svc.Create(context.Background(), []core.ReceiptFile{jpeg("a.jpg")})
	require.NoError(t, err)
	id := snap.SessionID.String()

	_, err = h.svc.Cancel(id)
	assert.ErrorIs(t, err, review.ErrNotAnalyzing)

	done := make(chan error, 1)
	go func() {
		_, err := h.svc.Analyze(context.Background(), id)
		done <- err
	}()
	<-h.analyzer.ready

	_, err = h.svc.Remove(id, 0)
	assert.ErrorIs(t, err, review.ErrAnalysisInProgress)

	_, err = h.svc.Cancel(id)
	require.NoError(t, err)
	assert.ErrorIs(t, <-done, ocr.ErrCancelled)

	snap, err = h.svc.Get(id)
	require.NoError(t, err)
	assert.Equal(t, review.PhaseFilesSelected, snap.Phase)
}

func TestReviewBulkSave(t *testing.T) {
	h := newHarness(ReviewConfig{})
	h.analyzer.fail["c.jpg"] = true
	id := h.analysed(t, "a.jpg", "b.jpg", "c.jpg")

	_, err := h.svc.BulkSave(context.Background(), id)
	require.ErrorIs(t, err, review.ErrNothingSelected)

	for _, i := range []int{0, 1, 2} {
		_, err = h.svc.ToggleSelect(id, i)
		require.NoError(t, err)
	}
	res, err := h.svc.BulkSave(context.Background(), id)
	require.NoError(t, err)
	assert.Len(t, res.Transactions, 2)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, 2, res.Failures[0].Index)
	assert.Equal(t, []int{0, 1}, res.Snapshot.Completed)
	assert.Equal(t, []int{2}, res.Snapshot.Selected)

	_, err = h.svc.Remove(id, 2)
	require.NoError(t, err)
	_, err = h.svc.ToggleSelect(id, 0)
	require.NoError(t, err)
	_, err = h.svc.BulkSave(context.Background(), id)
	assert.ErrorIs(t, err, review.ErrAlreadySaved)
}

func TestReviewNavigation(t *testing.T) {
	h := newHarness(ReviewConfig{})
	id := h.analysed(t, "a.jpg", "b.jpg")

	snap, err := h.svc.Skip(id)
	require.NoError(t, err)
	assert.Equal(t, 1, *snap.CurrentIndex)
	_, err = h.svc.Skip(id)
	assert.ErrorIs(t, err, review.ErrLastItem)

	snap, err = h.svc.SetCurrent(id, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, *snap.CurrentIndex)

	_, err = h.svc.Submit(context.Background(), id, nil)
	require.NoError(t, err)
	snap, err = h.svc.Undo(id, 0)
	require.NoError(t, err)
	assert.Empty(t, snap.Completed)
	assert.Equal(t, 0, *snap.CurrentIndex)

	snap, err = h.svc.AddFiles(id, []core.ReceiptFile{jpeg("c.jpg")})
	require.NoError(t, err)
	assert.Len(t, snap.Items, 3)

	_, err = h.svc.ToggleSelect(id, 1)
	require.NoError(t, err)
	snap, err = h.svc.BulkDelete(id)
	require.NoError(t, err)
	assert.Len(t, snap.Items, 2)
}

func newGatedHarness(t *testing.T, names ...string) (*harness, *gatedSubmitter, string) {
	t.Helper()
	h := newHarness(ReviewConfig{})
	gate := &gatedSubmitter{next: h.ledger, entered: make(chan struct{}), release: make(chan struct{})}
	h.svc = NewReviewService(ReviewConfig{}, nil, h.analyzer, gate, log.Discard())
	return h, gate, h.analysed(t, names...)
}

func TestReviewConcurrentSubmitSavesOnce(t *testing.T) {
	h, gate, id := newGatedHarness(t, "a.jpg", "b.jpg")

	first := make(chan error, 1)
	go func() {
		_, err := h.svc.Submit(context.Background(), id, nil)
		first <- err
	}()
	<-gate.entered

	res, err := h.svc.Submit(context.Background(), id, nil)
	assert.ErrorIs(t, err, review.ErrSaveInProgress)
	require.Len(t, res.Snapshot.Items, 2)
	assert.True(t, res.Snapshot.Items[0].Saving)
	_, err = h.svc.Analyze(context.Background(), id)
	assert.ErrorIs(t, err, review.ErrSaveInProgress)

	close(gate.release)
	require.NoError(t, <-first)

	snap, err := h.svc.Get(id)
	require.NoError(t, err)
	assert.Equal(t, []int{0}, snap.Completed)
	assert.False(t, snap.Items[0].Saving)
	txs, err := h.ledger.ListMonth(context.Background(), 2025, 4)
	require.NoError(t, err)
	assert.Len(t, txs, 1)
}

func TestReviewConcurrentBulkSaveSavesOnce(t *testing.T) {
	h, gate, id := newGatedHarness(t, "a.jpg")
	_, err := h.svc.ToggleSelect(id, 0)
	require.NoError(t, err)

	first := make(chan error, 1)
	go func() {
		_, err := h.svc.BulkSave(context.Background(), id)
		first <- err
	}()
	<-gate.entered

	_, err = h.svc.BulkSave(context.Background(), id)
	assert.ErrorIs(t, err, review.ErrSaveInProgress)

	close(gate.release)
	require.NoError(t, <-first)

	_, err = h.svc.ToggleSelect(id, 0)
	require.NoError(t, err)
	_, err = h.svc.BulkSave(context.Background(), id)
	assert.ErrorIs(t, err, review.ErrAlreadySaved)

	txs, err := h.ledger.ListMonth(context.Background(), 2025, 4)
	require.NoError(t, err)
	assert.Len(t, txs, 1)
}

func TestReviewRejectedSubmitReleasesReservation(t *testing.T) {
	h := newHarness(ReviewConfig{})
	id := h.analysed(t, "a.jpg")

	bad := manualDraft("2025-04-09", -1, core.Expense, "교통")
	_, err := h.svc.Submit(context.Background(), id, &bad)
	require.ErrorIs(t, err, core.ErrInvalidAmount)

	res, err := h.svc.Submit(context.Background(), id, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{0}, res.Snapshot.Completed)
}
