package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"gagyebu/internal/cache"
	"gagyebu/internal/core"
	"gagyebu/internal/log"
	"gagyebu/internal/ocr"
	"gagyebu/internal/preview"
	"gagyebu/internal/review"
)

const (
	DefaultSessionTTL  = 30 * time.Minute
	DefaultMaxSessions = 100
)

var ErrSessionNotFound = errors.New("review session not found")

// SubmitResult is returned after the current record was saved.
type SubmitResult struct {
	Snapshot    review.Snapshot  `json:"session"`
	Outcome     review.Outcome   `json:"outcome"`
	Transaction core.Transaction `json:"transaction"`
}

// SaveFailure is a selected record the ledger refused during a bulk save.
type SaveFailure struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
	Error string `json:"error"`
}

// BulkSaveResult reports what a bulk save stored and what it left unsaved.
type BulkSaveResult struct {
	Snapshot     review.Snapshot    `json:"session"`
	Transactions []core.Transaction `json:"transactions"`
	Failures     []SaveFailure      `json:"failures"`
}

type ReviewConfig struct {
	SessionTTL  time.Duration
	MaxSessions int
}

// ReviewService keeps review sessions alive between requests. Sessions idle
// past the TTL, or pushed out by newer ones, are closed and their previews released.
type ReviewService struct {
	sessions  *cache.LRUCache[*review.Session]
	previews  *preview.Store
	analyzer  ocr.Analyzer
	submitter TransactionSubmitter
	logger    *log.Logger
}

func NewReviewService(cfg ReviewConfig, previews *preview.Store, analyzer ocr.Analyzer, submitter TransactionSubmitter, logger *log.Logger) *ReviewService {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = DefaultSessionTTL
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = DefaultMaxSessions
	}
	if previews == nil {
		previews = preview.NewStore()
	}
	if logger == nil {
		logger = log.Discard()
	}
	s := &ReviewService{
		previews:  previews,
		analyzer:  analyzer,
		submitter: submitter,
		logger:    logger.WithComponent(log.ComponentReview),
	}
	s.sessions = cache.NewLRUCache(cfg.MaxSessions, cfg.SessionTTL,
		cache.WithSlidingExpiry[*review.Session](),
		cache.WithEvictHandler(func(key string, sess *review.Session) {
			sess.Close()
			s.logger.Debug("Review session evicted", log.FieldSessionID, key)
		}))
	return s
}

// Previews is the store the HTTP layer serves preview bytes from.
func (s *ReviewService) Previews() *preview.Store { return s.previews }

// Sessions exposes the session registry for periodic expiry sweeps.
func (s *ReviewService) Sessions() cache.Cleaner { return s.sessions }

// Create opens a session, optionally seeded with files.
func (s *ReviewService) Create(ctx context.Context, files []core.ReceiptFile) (review.Snapshot, error) {
	sess := review.NewSession(s.previews, s.logger)
	if len(files) > 0 {
		if _, err := sess.Do(func(st review.State) (review.State, error) { return st.Add(files) }); err != nil {
			sess.Close()
			return review.Snapshot{}, err
		}
	}
	s.sessions.Set(sess.ID().String(), sess)
	s.logger.InfoContext(ctx, "Review session created", log.FieldSessionID, sess.ID().String(), log.FieldFiles, len(files))
	return sess.Snapshot(), nil
}

func (s *ReviewService) session(id string) (*review.Session, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	sess, ok := s.sessions.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return sess, nil
}

func (s *ReviewService) Get(id string) (review.Snapshot, error) {
	sess, err := s.session(id)
	if err != nil {
		return review.Snapshot{}, err
	}
	return sess.Snapshot(), nil
}

// Close tears the session down. The evict handler releases its previews.
func (s *ReviewService) Close(id string) error {
	if _, err := s.session(id); err != nil {
		return err
	}
	s.sessions.Delete(id)
	return nil
}

// CloseAll tears down every session, used on shutdown.
func (s *ReviewService) CloseAll() {
	s.sessions.Purge()
}

// apply runs a reducer on the session and renders the resulting state.
func (s *ReviewService) apply(id string, fn func(review.State) (review.State, error)) (review.Snapshot, error) {
	sess, err := s.session(id)
	if err != nil {
		return review.Snapshot{}, err
	}
	st, err := sess.Do(fn)
	return sess.SnapshotOf(st), err
}

func (s *ReviewService) AddFiles(id string, files []core.ReceiptFile) (review.Snapshot, error) {
	return s.apply(id, func(st review.State) (review.State, error) { return st.Add(files) })
}

func (s *ReviewService) Remove(id string, index int) (review.Snapshot, error) {
	return s.apply(id, func(st review.State) (review.State, error) { return st.RemoveAt(index) })
}

func (s *ReviewService) BulkDelete(id string) (review.Snapshot, error) {
	return s.apply(id, review.State.BulkDelete)
}

func (s *ReviewService) ToggleSelect(id string, index int) (review.Snapshot, error) {
	return s.apply(id, func(st review.State) (review.State, error) { return st.ToggleSelect(index) })
}

func (s *ReviewService) SetCurrent(id string, index int) (review.Snapshot, error) {
	return s.apply(id, func(st review.State) (review.State, error) { return st.SetCurrent(index) })
}

func (s *ReviewService) Undo(id string, index int) (review.Snapshot, error) {
	return s.apply(id, func(st review.State) (review.State, error) { return st.UndoCompleted(index) })
}

func (s *ReviewService) Skip(id string) (review.Snapshot, error) {
	return s.apply(id, review.State.Skip)
}

// Analyze runs a full analysis and blocks until it finishes or is cancelled.
func (s *ReviewService) Analyze(ctx context.Context, id string) (review.Snapshot, error) {
	sess, err := s.session(id)
	if err != nil {
		return review.Snapshot{}, err
	}
	st, err := sess.Analyze(ctx, s.analyzer)
	return sess.SnapshotOf(st), err
}

// Retry re-analyses the given positions, or the selection when none are given.
func (s *ReviewService) Retry(ctx context.Context, id string, indices []int) (review.Snapshot, error) {
	return s.retry(ctx, id, func(st review.State) (review.RetryPlan, error) {
		if len(indices) == 0 {
			return st.SelectedRetryPlan()
		}
		return st.RetryPlan(indices)
	})
}

func (s *ReviewService) RetryFailed(ctx context.Context, id string) (review.Snapshot, error) {
	return s.retry(ctx, id, review.State.FailedRetryPlan)
}

func (s *ReviewService) retry(ctx context.Context, id string, plan func(review.State) (review.RetryPlan, error)) (review.Snapshot, error) {
	sess, err := s.session(id)
	if err != nil {
		return review.Snapshot{}, err
	}
	st := sess.State()
	p, err := plan(st)
	if err != nil {
		return sess.SnapshotOf(st), err
	}
	st, err = sess.Retry(ctx, s.analyzer, p)
	return sess.SnapshotOf(st), err
}

// Cancel aborts the session's in-flight analysis.
func (s *ReviewService) Cancel(id string) (review.Snapshot, error) {
	sess, err := s.session(id)
	if err != nil {
		return review.Snapshot{}, err
	}
	if err := sess.Cancel(); err != nil {
		return sess.Snapshot(), err
	}
	return sess.Snapshot(), nil
}

// Submit saves the current record, using the edited draft when given and the
// analysed one otherwise, then marks it completed. A rejected save leaves the
// record uncompleted. The record is reserved while the ledger works, so a
// concurrent submit of the same record fails with ErrSaveInProgress.
func (s *ReviewService) Submit(ctx context.Context, id string, draft *core.TransactionDraft) (SubmitResult, error) {
	sess, err := s.session(id)
	if err != nil {
		return SubmitResult{}, err
	}
	var rec review.Record
	st, err := sess.Do(func(st review.State) (review.State, error) {
		r, err := st.SubmitTarget()
		if err != nil {
			return st, err
		}
		rec = r
		return st.ReserveSave([]uuid.UUID{r.ID})
	})
	if err != nil {
		return SubmitResult{Snapshot: sess.SnapshotOf(st)}, err
	}

	d := core.DraftFromResult(*rec.Result)
	if draft != nil {
		d = *draft
	}
	tx, err := s.submitter.SubmitReceipt(ctx, d, rec.File)
	if err != nil {
		return SubmitResult{Snapshot: sess.SnapshotOf(releaseSave(sess, rec.ID))}, err
	}

	var out review.Outcome
	next, err := sess.Do(func(st review.State) (review.State, error) {
		next, o, err := st.SubmitRecord(rec.ID)
		out = o
		return next, err
	})
	if err != nil {
		s.logger.WarnContext(ctx, "Transaction saved but session changed meanwhile",
			log.FieldOperation, log.OpSubmit, log.FieldSessionID, id, log.FieldTxID, tx.ID, log.FieldError, err)
		return SubmitResult{Snapshot: sess.SnapshotOf(releaseSave(sess, rec.ID)), Transaction: tx}, err
	}
	return SubmitResult{Snapshot: sess.SnapshotOf(next), Outcome: out, Transaction: tx}, nil
}

// BulkSave hands every unsaved selected record to the ledger and marks the
// accepted ones completed. Records another request is already saving are
// skipped.
func (s *ReviewService) BulkSave(ctx context.Context, id string) (BulkSaveResult, error) {
	sess, err := s.session(id)
	if err != nil {
		return BulkSaveResult{}, err
	}
	var pending []review.Record
	st, err := sess.Do(func(st review.State) (review.State, error) {
		recs, err := st.PendingSave()
		if err != nil {
			return st, err
		}
		pending = recs
		return st.ReserveSave(recordIDs(recs))
	})
	if err != nil {
		return BulkSaveResult{Snapshot: sess.SnapshotOf(st)}, err
	}
	reserved := recordIDs(pending)

	res := BulkSaveResult{Transactions: []core.Transaction{}, Failures: []SaveFailure{}}
	saved := make([]uuid.UUID, 0, len(pending))
	index := make(map[uuid.UUID]int, len(st.Records))
	for i, r := range st.Records {
		index[r.ID] = i
	}
	for _, rec := range pending {
		var d core.TransactionDraft
		if rec.Result != nil {
			d = core.DraftFromResult(*rec.Result)
		}
		tx, err := s.submitter.SubmitReceipt(ctx, d, rec.File)
		if err != nil {
			res.Failures = append(res.Failures, SaveFailure{Index: index[rec.ID], Name: rec.File.Name, Error: err.Error()})
			continue
		}
		saved = append(saved, rec.ID)
		res.Transactions = append(res.Transactions, tx)
	}

	next, err := sess.Do(func(st review.State) (review.State, error) {
		next, err := st.CommitSave(saved)
		if err != nil {
			return st, err
		}
		return next.ReleaseSave(reserved), nil
	})
	if err != nil {
		res.Snapshot = sess.SnapshotOf(releaseSave(sess, reserved...))
		return res, err
	}
	res.Snapshot = sess.SnapshotOf(next)
	s.logger.InfoContext(ctx, "Bulk save finished",
		log.FieldOperation, log.OpBulkSave,
		log.FieldSessionID, id,
		"saved", len(res.Transactions),
		"failed", len(res.Failures))
	return res, nil
}

func recordIDs(recs []review.Record) []uuid.UUID {
	ids := make([]uuid.UUID, len(recs))
	for i, r := range recs {
		ids[i] = r.ID
	}
	return ids
}

// releaseSave drops a save reservation whatever happened to the hand-off.
func releaseSave(sess *review.Session, ids ...uuid.UUID) review.State {
	st, _ := sess.Do(func(st review.State) (review.State, error) { return st.ReleaseSave(ids), nil })
	return st
}
