package services

import (
	"context"
	"errors"
	"sync"

	"gagyebu/internal/core"
)

type fakeAnalyzer struct {
	mu     sync.Mutex
	fail   map[string]bool
	calls  [][]string
	err    error
	block  chan struct{}
	ready  chan struct{}
}

func (a *fakeAnalyzer) Analyze(ctx context.Context, files []core.ReceiptFile) ([]core.AnalysisResult, error) {
	a.mu.Lock()
	names := make([]string, len(files))
	for i, f := range files {
		names[i] = f.Name
	}
	a.calls = append(a.calls, names)
	block, ready := a.block, a.ready
	a.mu.Unlock()

	if ready != nil {
		close(ready)
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if a.err != nil {
		return nil, a.err
	}
	out := make([]core.AnalysisResult, len(files))
	for i, f := range files {
		if a.fail[f.Name] {
			out[i] = core.AnalysisResult{StoreName: core.ErrorStoreName, Amount: "0"}
			continue
		}
		out[i] = core.AnalysisResult{StoreName: "가게-" + f.Name, Date: "2025-04-02", Amount: "8,500", PaymentMethod: "카드", Category: "식비"}
	}
	return out, nil
}

type fakePublisher struct {
	mu  sync.Mutex
	ids []int64
	err error
}

func (p *fakePublisher) PublishTransactionSync(_ context.Context, id, _ int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.ids = append(p.ids, id)
	return nil
}

type fakeArchiver struct {
	mu     sync.Mutex
	stored []string
	blobs  map[string][]byte
	err    error
}

func (a *fakeArchiver) Store(_ context.Context, f core.ReceiptFile) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return "", a.err
	}
	a.stored = append(a.stored, f.Name)
	ref := "gs://bucket/receipts/" + f.Name
	if a.blobs == nil {
		a.blobs = map[string][]byte{}
	}
	a.blobs[ref] = f.Data
	return ref, nil
}

func (a *fakeArchiver) Fetch(_ context.Context, ref string) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	data, ok := a.blobs[ref]
	if !ok {
		return nil, errBoom
	}
	return data, nil
}

var errBoom = errors.New("boom")

func jpeg(name string) core.ReceiptFile {
	return core.ReceiptFile{Name: name, ContentType: "image/jpeg", Data: []byte(name)}
}

func manualDraft(date string, amount int64, typ core.TransactionType, category string) core.TransactionDraft {
	return core.TransactionDraft{
		Amount: amount, Date: date, Type: typ, Method: core.Card,
		Category: category, Payee: "테스트", Tags: []string{" 장보기 ", "장보기", ""},
	}
}

// gatedSubmitter parks every hand-off until release is closed.
type gatedSubmitter struct {
	next    TransactionSubmitter
	entered chan struct{}
	release chan struct{}
}

func (g *gatedSubmitter) SubmitReceipt(ctx context.Context, d core.TransactionDraft, f core.ReceiptFile) (core.Transaction, error) {
	g.entered <- struct{}{}
	<-g.release
	return g.next.SubmitReceipt(ctx, d, f)
}
