package ocr

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"
	"google.golang.org/genai"

	"gagyebu/internal/core"
	"gagyebu/internal/log"
)

const DefaultGeminiModel = "gemini-2.5-flash"

const receiptPrompt = "You read Korean shop receipts.\n\n" +
	"Return STRICT JSON only: one object with these string fields:\n" +
	"- \"storeName\": the shop name as printed\n" +
	"- \"date\": purchase date as \"YYYY-MM-DD\", or \"\" if unreadable\n" +
	"- \"amount\": the total paid, digits only (commas allowed), or \"0\" if unreadable\n" +
	"- \"paymentMethod\": the payment method text as printed (e.g. 카드, 현금, 계좌이체)\n" +
	"- \"category\": one of %s\n\n" +
	"If the image is not a receipt, return {\"storeName\": \"Error\", \"date\": \"\", \"amount\": \"0\"}.\n" +
	"Do NOT wrap the response in code fences.\n"

// contentGenerator is the part of genai.Models the analyzer needs.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type GeminiConfig struct {
	APIKey      string
	Model       string
	Concurrency int
	Logger      *log.Logger
}

// GeminiAnalyzer reads receipts with a Gemini model, one request per image.
type GeminiAnalyzer struct {
	models      contentGenerator
	model       string
	concurrency int
	prompt      string
	logger      *log.Logger
}

func NewGeminiAnalyzer(ctx context.Context, cfg GeminiConfig) (*GeminiAnalyzer, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return newGeminiAnalyzer(client.Models, cfg), nil
}

func newGeminiAnalyzer(models contentGenerator, cfg GeminiConfig) *GeminiAnalyzer {
	if cfg.Model == "" {
		cfg.Model = DefaultGeminiModel
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.FromContext(context.Background())
	}
	return &GeminiAnalyzer{
		models:      models,
		model:       cfg.Model,
		concurrency: cfg.Concurrency,
		prompt:      fmt.Sprintf(receiptPrompt, strings.Join(core.Categories, ", ")),
		logger:      logger.WithComponent(log.ComponentOCR),
	}
}

// Analyze reads every image concurrently. An image the model cannot read
// becomes an "Error" result for that image only, so the batch still lines
// up with the files it was given.
func (g *GeminiAnalyzer) Analyze(ctx context.Context, files []core.ReceiptFile) ([]core.AnalysisResult, error) {
	if len(files) == 0 {
		return nil, ErrNoResults
	}
	results := make([]core.AnalysisResult, len(files))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.concurrency)
	for i, f := range files {
		eg.Go(func() error {
			res, err := g.analyzeOne(egCtx, f)
			if err != nil {
				if cancelled(ctx) {
					return ErrCancelled
				}
				g.logger.WarnContext(ctx, "Receipt could not be read", "file", f.Name, log.FieldError, err)
				res = core.AnalysisResult{StoreName: core.ErrorStoreName, Amount: "0"}
			}
			results[i] = res
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		if cancelled(ctx) {
			return nil, ErrCancelled
		}
		return nil, fmt.Errorf("%w: %v", ErrAnalysisFailed, err)
	}
	if cancelled(ctx) {
		return nil, ErrCancelled
	}
	return results, nil
}

func (g *GeminiAnalyzer) analyzeOne(ctx context.Context, f core.ReceiptFile) (core.AnalysisResult, error) {
	mime := f.ContentType
	if mime == "" || mime == "application/octet-stream" {
		mime = "image/jpeg"
	}
	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: g.prompt},
				{InlineData: &genai.Blob{MIMEType: mime, Data: f.Data}},
			},
		},
	}
	resp, err := g.models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		return core.AnalysisResult{}, fmt.Errorf("generate content: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return core.AnalysisResult{}, fmt.Errorf("empty response from model")
	}
	results, err := DecodeResults(text)
	if err != nil {
		return core.AnalysisResult{}, err
	}
	if len(results) == 0 {
		return core.AnalysisResult{}, ErrNoResults
	}
	return results[0], nil
}
