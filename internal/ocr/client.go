package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"

	"gagyebu/internal/core"
	"gagyebu/internal/log"
)

// Path of the analysis endpoint relative to the base URL.
const Path = "/api/v1/ocr"

type ClientConfig struct {
	BaseURL     string
	Token       string
	Timeout     time.Duration
	MaxAttempts uint
	RetryDelay  time.Duration
	HTTPClient  *http.Client
	Logger      *log.Logger
}

// Client sends receipt batches to a remote OCR endpoint.
type Client struct {
	endpoint    string
	token       string
	maxAttempts uint
	retryDelay  time.Duration
	http        *http.Client
	logger      *log.Logger
}

func NewClient(cfg ClientConfig) *Client {
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 500 * time.Millisecond
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.FromContext(context.Background())
	}
	return &Client{
		endpoint:    strings.TrimRight(cfg.BaseURL, "/") + Path,
		token:       cfg.Token,
		maxAttempts: cfg.MaxAttempts,
		retryDelay:  cfg.RetryDelay,
		http:        hc,
		logger:      logger.WithComponent(log.ComponentOCR),
	}
}

// Analyze posts the files as repeated multipart "files" fields. Transport
// errors and 5xx answers are retried; 4xx answers and cancellation are not.
func (c *Client) Analyze(ctx context.Context, files []core.ReceiptFile) ([]core.AnalysisResult, error) {
	body, contentType, err := encodeFiles(files)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAnalysisFailed, err)
	}

	var results []core.AnalysisResult
	attempt := 0
	err = retry.Do(
		func() error {
			attempt++
			res, err := c.post(ctx, body, contentType)
			if err != nil {
				c.logger.WarnContext(ctx, "OCR request failed", log.FieldAttempt, attempt, log.FieldError, err)
				return err
			}
			results = res
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(c.maxAttempts),
		retry.Delay(c.retryDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return ctx.Err() == nil && retry.IsRecoverable(err)
		}),
	)
	if err != nil {
		if cancelled(ctx) {
			return nil, ErrCancelled
		}
		if errors.Is(err, ErrAnalysisFailed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrAnalysisFailed, err)
	}
	if len(results) == 0 {
		return nil, ErrNoResults
	}
	c.logger.DebugContext(ctx, "OCR analysis finished", log.FieldFiles, len(files), log.FieldAttempt, attempt)
	return results, nil
}

func (c *Client) post(ctx context.Context, body []byte, contentType string) ([]core.AnalysisResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, retry.Unrecoverable(err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, err
	}
	switch {
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: server returned %d", ErrAnalysisFailed, resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, retry.Unrecoverable(fmt.Errorf("%w: server returned %d: %s", ErrAnalysisFailed, resp.StatusCode, strings.TrimSpace(string(raw))))
	}

	var out Response
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, retry.Unrecoverable(fmt.Errorf("%w: decode response: %v", ErrAnalysisFailed, err))
	}
	return out.Results, nil
}

func encodeFiles(files []core.ReceiptFile) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for i, f := range files {
		name := f.Name
		if name == "" {
			name = fmt.Sprintf("receipt-%d", i+1)
		}
		ct := f.ContentType
		if ct == "" {
			ct = http.DetectContentType(f.Data)
		}
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files"; filename=%q`, name))
		h.Set("Content-Type", ct)
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(f.Data); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}
