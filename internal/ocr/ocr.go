// Package ocr talks to receipt analysis backends.
package ocr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"gagyebu/internal/core"
)

var (
	ErrCancelled      = errors.New("analysis cancelled")
	ErrAnalysisFailed = errors.New("analysis failed")
	ErrNoResults      = errors.New("analysis returned no results")
)

// Analyzer extracts one result per file, in order. Implementations return
// ErrCancelled when ctx ends first, ErrNoResults for an empty answer and
// wrap everything else in ErrAnalysisFailed.
type Analyzer interface {
	Analyze(ctx context.Context, files []core.ReceiptFile) ([]core.AnalysisResult, error)
}

// Response is the body of POST /api/v1/ocr.
type Response struct {
	Results []core.AnalysisResult `json:"results"`
}

// cancelled reports whether the caller's ctx has ended. Timeouts inside the
// transport or a model call carry DeadlineExceeded too, but they are
// failures, not cancellations.
func cancelled(ctx context.Context) bool {
	return ctx.Err() != nil
}

// CleanJSON strips markdown fences and surrounding chatter from a model answer.
func CleanJSON(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		idx := strings.Index(s, "\n")
		if idx == -1 {
			return s
		}
		s = strings.TrimSpace(s[idx+1:])
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)
	if start := strings.IndexAny(s, "[{"); start > 0 {
		s = s[start:]
	}
	if end := strings.LastIndexAny(s, "]}"); end != -1 && end < len(s)-1 {
		s = s[:end+1]
	}
	return s
}

// DecodeResults accepts either {"results": [...]}, a bare array or a single
// object, optionally wrapped in markdown fences.
func DecodeResults(raw string) ([]core.AnalysisResult, error) {
	clean := CleanJSON(raw)
	if clean == "" {
		return nil, fmt.Errorf("%w: empty body", ErrAnalysisFailed)
	}
	switch clean[0] {
	case '[':
		var results []core.AnalysisResult
		if err := json.Unmarshal([]byte(clean), &results); err != nil {
			return nil, fmt.Errorf("%w: decode results: %v", ErrAnalysisFailed, err)
		}
		return results, nil
	case '{':
		var probe map[string]json.RawMessage
		if err := json.Unmarshal([]byte(clean), &probe); err != nil {
			return nil, fmt.Errorf("%w: decode results: %v", ErrAnalysisFailed, err)
		}
		if _, ok := probe["results"]; ok {
			var resp Response
			if err := json.Unmarshal([]byte(clean), &resp); err != nil {
				return nil, fmt.Errorf("%w: decode results: %v", ErrAnalysisFailed, err)
			}
			return resp.Results, nil
		}
		var single core.AnalysisResult
		if err := json.Unmarshal([]byte(clean), &single); err != nil {
			return nil, fmt.Errorf("%w: decode result: %v", ErrAnalysisFailed, err)
		}
		return []core.AnalysisResult{single}, nil
	default:
		return nil, fmt.Errorf("%w: unexpected body %.40q", ErrAnalysisFailed, clean)
	}
}
