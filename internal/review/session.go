package review

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"gagyebu/internal/core"
	"gagyebu/internal/log"
	"gagyebu/internal/ocr"
	"gagyebu/internal/preview"
)

// Session owns one review State and the previews of its records.
type Session struct {
	id       uuid.UUID
	created  time.Time
	previews *preview.Store
	logger   *log.Logger

	mu      sync.Mutex
	state   State
	handles map[uuid.UUID]*preview.Handle
	cancel  context.CancelFunc
	closed  bool
}

// NewSession starts an empty session with a fresh id.
func NewSession(previews *preview.Store, logger *log.Logger) *Session {
	id := uuid.New()
	if logger == nil {
		logger = log.FromContext(context.Background())
	}
	return &Session{
		id:       id,
		created:  time.Now(),
		previews: previews,
		logger:   logger.WithComponent(log.ComponentReview).With(log.FieldSessionID, id.String()),
		handles:  make(map[uuid.UUID]*preview.Handle),
	}
}

// ID identifies the session in URLs and logs.
func (s *Session) ID() uuid.UUID { return s.id }

// State returns a copy of the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// Do applies a reducer atomically. The state is only replaced on success.
func (s *Session) Do(fn func(State) (State, error)) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return State{}, ErrSessionClosed
	}
	next, err := fn(s.state)
	if err != nil {
		return s.state.clone(), err
	}
	s.commit(next)
	return next.clone(), nil
}

// commit swaps in the new state and keeps one preview per live record.
// Must be called with mu held.
func (s *Session) commit(next State) {
	live := make(map[uuid.UUID]bool, len(next.Records))
	for _, r := range next.Records {
		live[r.ID] = true
		if _, ok := s.handles[r.ID]; !ok && s.previews != nil {
			s.handles[r.ID] = s.previews.Acquire(r.File)
		}
	}
	for id, h := range s.handles {
		if !live[id] {
			h.Release()
			delete(s.handles, id)
		}
	}
	s.state = next
}

// PreviewURI returns the preview location of a record.
func (s *Session) PreviewURI(id uuid.UUID) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.handles[id]; ok {
		return h.URI()
	}
	return ""
}

// Analyze runs a full analysis of every file.
func (s *Session) Analyze(ctx context.Context, analyzer ocr.Analyzer) (State, error) {
	return s.run(ctx, analyzer, func(st State) (State, error) { return st.BeginAnalysis() })
}

// Retry re-analyses the planned records.
func (s *Session) Retry(ctx context.Context, analyzer ocr.Analyzer, plan RetryPlan) (State, error) {
	return s.run(ctx, analyzer, func(st State) (State, error) { return st.BeginRetry(plan) })
}

// run performs the single outstanding analysis call. The lock is not held
// while the analyzer works; every other mutation is refused meanwhile
// because the state is marked pending. Any failure, cancellation included,
// leaves the state exactly as it was before the call.
func (s *Session) run(ctx context.Context, analyzer ocr.Analyzer, begin func(State) (State, error)) (State, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return State{}, ErrSessionClosed
	}
	pending, err := begin(s.state)
	if err != nil {
		st := s.state.clone()
		s.mu.Unlock()
		return st, err
	}
	s.state = pending
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	files := make([]core.ReceiptFile, 0, len(pending.Analysis.Targets))
	for _, id := range pending.Analysis.Targets {
		i, _ := pending.indexOf(id)
		files = append(files, pending.Records[i].File)
	}
	s.mu.Unlock()

	started := time.Now()
	op := log.OpRetry
	if pending.Analysis.Full {
		op = log.OpAnalyze
	}
	s.logger.InfoContext(ctx, "Analysis started", log.FieldOperation, op, log.FieldFiles, len(files))
	results, err := analyzer.Analyze(runCtx, files)
	wasCancelled := runCtx.Err() != nil
	cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancel = nil
	if s.closed {
		return State{}, ErrSessionClosed
	}

	switch {
	case wasCancelled || errors.Is(err, ocr.ErrCancelled):
		err = ocr.ErrCancelled
	case err == nil && len(results) == 0:
		err = ocr.ErrNoResults
	case err == nil:
		next, applyErr := s.state.CompleteAnalysis(results)
		if applyErr == nil {
			s.commit(next)
			s.logger.InfoContext(ctx, "Analysis applied",
				log.FieldFiles, len(results),
				"failed", len(next.FailedIndices()),
				log.FieldDuration, time.Since(started).Milliseconds())
			return next.clone(), nil
		}
		err = fmt.Errorf("%w: %v", ocr.ErrAnalysisFailed, applyErr)
	}

	s.state = s.state.AbortAnalysis()
	if errors.Is(err, ocr.ErrCancelled) {
		s.logger.InfoContext(ctx, "Analysis cancelled")
	} else {
		s.logger.WarnContext(ctx, "Analysis failed", log.FieldError, err)
	}
	return s.state.clone(), err
}

// Cancel aborts the in-flight analysis.
func (s *Session) Cancel() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel == nil {
		return ErrNotAnalyzing
	}
	s.cancel()
	return nil
}

// Close cancels any analysis and releases every preview. Later calls are no-ops.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if s.cancel != nil {
		s.cancel()
	}
	for id, h := range s.handles {
		h.Release()
		delete(s.handles, id)
	}
	s.logger.Debug("Session closed")
}
