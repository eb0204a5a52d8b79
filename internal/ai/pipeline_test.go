package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/meridian-pim/meridian/internal/errs"
)

type fakeProvider struct {
	id       string
	caps     Capabilities
	calls    int32
	delay    time.Duration
	failWith error
	streamed []string
}

func newFakeProvider(id string) *fakeProvider {
	return &fakeProvider{
		id: id,
		caps: Capabilities{
			ID: id, ContextLimit: 8000, SupportsStream: true, Models: []string{"fake-model"},
			SupportsSummarize: true, SupportsReply: true, SupportsCategorize: true, SupportsSchedule: true,
		},
	}
}

func (f *fakeProvider) Capabilities() Capabilities { return f.caps }
func (f *fakeProvider) HealthCheck(ctx context.Context) error { return nil }

func (f *fakeProvider) respond(ctx context.Context, label, input string) (string, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if f.failWith != nil {
		return "", f.failWith
	}
	return fmt.Sprintf("%s:%s:%s", f.id, label, input), nil
}

func (f *fakeProvider) CompleteText(ctx context.Context, prompt string) (string, error) {
	return f.respond(ctx, "complete", prompt)
}
func (f *fakeProvider) Summarize(ctx context.Context, text string, maxLen int) (string, error) {
	return f.respond(ctx, "summarize", text)
}
func (f *fakeProvider) SuggestReply(ctx context.Context, text, threadCtx string) (string, error) {
	return f.respond(ctx, "reply", text)
}
func (f *fakeProvider) Categorize(ctx context.Context, text string) (string, error) {
	return f.respond(ctx, "categorize", text)
}
func (f *fakeProvider) ParseSchedule(ctx context.Context, text string) (string, error) {
	return f.respond(ctx, "schedule", text)
}
func (f *fakeProvider) Compose(ctx context.Context, prompt, composeCtx string) (string, error) {
	return f.respond(ctx, "compose", prompt)
}
func (f *fakeProvider) ExtractKeyInfo(ctx context.Context, text string) (string, error) {
	return f.respond(ctx, "extract", text)
}
func (f *fakeProvider) StreamText(ctx context.Context, prompt string, fn StreamFunc) error {
	words := []string{"hello", " ", "world"}
	for _, w := range words {
		if err := fn(w, false); err != nil {
			return err
		}
	}
	return fn("", true)
}

func newTestPipeline(t *testing.T, provider Provider) *Pipeline {
	t.Helper()
	p := New(Config{Workers: 2, QueueDepth: 8, PrivacyMode: CloudAllowed}, nil, provider)
	p.Start(context.Background())
	t.Cleanup(p.Stop)
	return p
}

func waitDone(t *testing.T, op *Operation) {
	t.Helper()
	select {
	case <-op.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("operation did not complete in time")
	}
}

func TestSubmitAndComplete(t *testing.T) {
	provider := newFakeProvider("p1")
	p := newTestPipeline(t, provider)

	op, err := p.Submit(Request{Kind: KindSummarize, Priority: PriorityNormal, Text: "body text"})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	waitDone(t, op)
	if op.Status != StatusCompleted {
		t.Fatalf("expected StatusCompleted, got %v (err=%v)", op.Status, op.Err)
	}
	if op.Result == "" {
		t.Fatalf("expected non-empty result")
	}
}

func TestCacheHitSkipsProvider(t *testing.T) {
	provider := newFakeProvider("p1")
	p := newTestPipeline(t, provider)

	op1, _ := p.Submit(Request{Kind: KindCategorize, Priority: PriorityNormal, Text: "same input"})
	waitDone(t, op1)

	op2, _ := p.Submit(Request{Kind: KindCategorize, Priority: PriorityNormal, Text: "same input"})
	waitDone(t, op2)

	if op1.Result != op2.Result {
		t.Fatalf("expected byte-identical cached replay, got %q vs %q", op1.Result, op2.Result)
	}
	if atomic.LoadInt32(&provider.calls) != 1 {
		t.Fatalf("expected exactly 1 provider call, got %d", provider.calls)
	}
}

func TestCreativityBypassesCache(t *testing.T) {
	provider := newFakeProvider("p1")
	p := New(Config{Workers: 1, QueueDepth: 8, PrivacyMode: CloudAllowed, Creativity: 0.8}, nil, provider)
	p.Start(context.Background())
	defer p.Stop()

	op1, _ := p.Submit(Request{Kind: KindCategorize, Priority: PriorityNormal, Text: "same input"})
	waitDone(t, op1)
	op2, _ := p.Submit(Request{Kind: KindCategorize, Priority: PriorityNormal, Text: "same input"})
	waitDone(t, op2)

	if atomic.LoadInt32(&provider.calls) != 2 {
		t.Fatalf("expected 2 provider calls with creativity>0, got %d", provider.calls)
	}
}

func TestPrivacyModeLocalOnlyRejectsWithoutLocalProvider(t *testing.T) {
	remote := newFakeProvider("remote")
	p := New(Config{Workers: 1, QueueDepth: 8, PrivacyMode: LocalOnly}, nil, remote)
	p.Start(context.Background())
	defer p.Stop()

	op, err := p.Submit(Request{Kind: KindSummarize, Priority: PriorityNormal, Text: "x"})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	waitDone(t, op)
	if op.Status != StatusFailed {
		t.Fatalf("expected StatusFailed under LocalOnly with no local provider, got %v", op.Status)
	}
	var pv *errs.PrivacyViolation
	if !errors.As(op.Err, &pv) {
		t.Fatalf("expected a PrivacyViolation error, got %v", op.Err)
	}
	if errs.Retriable(op.Err) {
		t.Fatalf("expected a PrivacyViolation to never be retried")
	}
}

func TestUnsupportedCapabilityFailsFast(t *testing.T) {
	provider := newFakeProvider("p1")
	provider.caps.SupportsSchedule = false
	p := newTestPipeline(t, provider)

	op, _ := p.Submit(Request{Kind: KindParseSchedule, Priority: PriorityNormal, Text: "x"})
	waitDone(t, op)
	if op.Status != StatusFailed {
		t.Fatalf("expected StatusFailed for unsupported capability, got %v", op.Status)
	}
}

func TestCancelQueuedOperation(t *testing.T) {
	provider := newFakeProvider("p1")
	provider.delay = 500 * time.Millisecond
	// Single worker, occupy it with a slow op so the second stays queued.
	p := New(Config{Workers: 1, QueueDepth: 8, PrivacyMode: CloudAllowed}, nil, provider)
	p.Start(context.Background())
	defer p.Stop()

	busy, _ := p.Submit(Request{Kind: KindSummarize, Priority: PriorityNormal, Text: "busy"})
	_ = busy
	time.Sleep(20 * time.Millisecond) // let the worker pick up `busy`

	queued, _ := p.Submit(Request{Kind: KindSummarize, Priority: PriorityNormal, Text: "queued"})

	first := p.Cancel(queued.ID)
	if !first {
		t.Fatalf("expected first Cancel to return true")
	}
	second := p.Cancel(queued.ID)
	if second {
		t.Fatalf("expected second Cancel to return false (idempotent)")
	}
	waitDone(t, queued)
	if queued.Status != StatusCancelled {
		t.Fatalf("expected StatusCancelled, got %v", queued.Status)
	}
}

func TestStreamingDeliversOrderedChunks(t *testing.T) {
	provider := newFakeProvider("p1")
	p := newTestPipeline(t, provider)

	op, err := p.Submit(Request{Kind: KindCustom, Priority: PriorityNormal, Text: "stream me", Stream: true})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	var got []StreamChunk
	for chunk := range op.Chunks() {
		got = append(got, chunk)
	}
	waitDone(t, op)

	if len(got) == 0 {
		t.Fatalf("expected at least one chunk")
	}
	for i, c := range got {
		if c.Sequence != i {
			t.Fatalf("chunk sequence gap: chunk %d has Sequence=%d", i, c.Sequence)
		}
	}
	if !got[len(got)-1].IsFinal {
		t.Fatalf("expected last chunk to be final")
	}
}

func TestBatchEmailProcessAggregatesPerItemResults(t *testing.T) {
	provider := newFakeProvider("p1")
	p := newTestPipeline(t, provider)

	texts := map[string]string{"m1": "first message", "m2": "second message"}
	p.SetMessageFetcher(func(ctx context.Context, id string) (string, error) {
		text, ok := texts[id]
		if !ok {
			return "", fmt.Errorf("unknown id %q", id)
		}
		return text, nil
	})

	op, err := p.Submit(Request{
		Kind:     KindBatchEmailProcess,
		Priority: PriorityNormal,
		BatchIDs: []string{"m1", "m2", "missing"},
		BatchOp:  KindCategorize,
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	waitDone(t, op)
	if op.Status != StatusCompleted {
		t.Fatalf("expected StatusCompleted, got %v (err=%v)", op.Status, op.Err)
	}

	var results []batchItemResult
	if err := json.Unmarshal([]byte(op.Result), &results); err != nil {
		t.Fatalf("failed to decode batch result: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 per-item results, got %d", len(results))
	}
	if results[0].Error != "" || results[1].Error != "" {
		t.Fatalf("expected m1/m2 to succeed, got errors %q %q", results[0].Error, results[1].Error)
	}
	if results[2].Error == "" {
		t.Fatalf("expected the missing id to report an error")
	}
}

func TestBatchEmailProcessRequiresMessageFetcher(t *testing.T) {
	provider := newFakeProvider("p1")
	p := newTestPipeline(t, provider)

	op, err := p.Submit(Request{Kind: KindBatchEmailProcess, Priority: PriorityNormal, BatchIDs: []string{"m1"}, BatchOp: KindCategorize})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	waitDone(t, op)
	if op.Status != StatusFailed {
		t.Fatalf("expected StatusFailed without a message fetcher, got %v", op.Status)
	}
}

func TestOverloadRejectsBeyondQueueDepth(t *testing.T) {
	provider := newFakeProvider("p1")
	provider.delay = time.Second
	p := New(Config{Workers: 1, QueueDepth: 1, PrivacyMode: CloudAllowed}, nil, provider)
	p.Start(context.Background())
	defer p.Stop()

	_, err := p.Submit(Request{Kind: KindSummarize, Priority: PriorityNormal, Text: "a"})
	if err != nil {
		t.Fatalf("first submit should not overload: %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	_, err = p.Submit(Request{Kind: KindSummarize, Priority: PriorityNormal, Text: "b"})
	if err != nil {
		t.Fatalf("second submit should fit in queue depth 1: %v", err)
	}
	_, err = p.Submit(Request{Kind: KindSummarize, Priority: PriorityNormal, Text: "c"})
	if err == nil {
		t.Fatalf("expected Overload error on third submit")
	}
}
