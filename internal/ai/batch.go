package ai

import (
	"context"
	"encoding/json"
)

// MessageFetcher resolves a message id to the plaintext the pipeline
// should feed BatchOp for KindBatchEmailProcess requests. Injected rather
// than importing internal/message directly, so the pipeline stays
// decoupled from the Message Store's schema.
type MessageFetcher func(ctx context.Context, id string) (string, error)

// SetMessageFetcher wires the id->text resolver BatchEmailProcess needs.
func (p *Pipeline) SetMessageFetcher(f MessageFetcher) { p.fetchMessage = f }

type batchItemResult struct {
	ID     string `json:"id"`
	Result string `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// runBatch processes each id in req.BatchIDs through req.BatchOp on
// provider, sequentially within this worker slot (batch items don't
// preempt other queued operations' fair share of the pool). Per-item
// failures are collected, never abort the batch.
func (p *Pipeline) runBatch(ctx context.Context, op *Operation, req Request, provider Provider) (string, error) {
	if p.fetchMessage == nil {
		return "", &opError{"batch email process requires a message fetcher"}
	}

	results := make([]batchItemResult, 0, len(req.BatchIDs))
	for i, id := range req.BatchIDs {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}

		text, err := p.fetchMessage(ctx, id)
		if err != nil {
			results = append(results, batchItemResult{ID: id, Error: err.Error()})
			continue
		}

		out, err := dispatch(ctx, provider, Request{Kind: req.BatchOp, Text: text, MaxLen: req.MaxLen, Context: req.Context})
		if err != nil {
			results = append(results, batchItemResult{ID: id, Error: err.Error()})
		} else {
			results = append(results, batchItemResult{ID: id, Result: out})
		}

		p.emitProgress(op, float64(i+1)/float64(len(req.BatchIDs)), "processed "+id)
	}

	encoded, err := json.Marshal(results)
	if err != nil {
		return "", &opError{err.Error()}
	}
	return string(encoded), nil
}

type opError struct{ msg string }

func (e *opError) Error() string { return e.msg }
