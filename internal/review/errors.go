package review

import "errors"

var (
	ErrIndexOutOfRange    = errors.New("index out of range")
	ErrLengthMismatch     = errors.New("indices and results differ in length")
	ErrNoFiles            = errors.New("no files to analyze")
	ErrAnalysisInProgress = errors.New("analysis already in progress")
	ErrNotAnalyzing       = errors.New("no analysis in progress")
	ErrNothingSelected    = errors.New("nothing selected")
	ErrAlreadySaved       = errors.New("all selected items are already saved")
	ErrNoFailures         = errors.New("no failed items to retry")
	ErrNoCurrent          = errors.New("no analysed item is current")
	ErrLastItem           = errors.New("already at the last item")
	ErrUnknownRecord      = errors.New("record no longer in session")
	ErrSaveInProgress     = errors.New("item is already being saved")
	ErrSessionClosed      = errors.New("session closed")
)
