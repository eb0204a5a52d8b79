package ai

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/meridian-pim/meridian/internal/errs"
	"github.com/meridian-pim/meridian/internal/logging"
)

// PrivacyMode gates which providers an operation may be dispatched to,
// per spec §4.5.
type PrivacyMode int

const (
	LocalOnly PrivacyMode = iota
	LocalPreferred
	CloudAllowed
)

// Config configures a Pipeline; zero values fall back to spec §4.5's
// documented defaults (4 workers, queue depth 256, 3 retry attempts).
type Config struct {
	Workers     int
	QueueDepth  int
	PrivacyMode PrivacyMode
	CacheTTL    time.Duration
	Creativity  float64
	Backoff     errs.BackoffPolicy

	// RedisClient, if non-nil, backs the result cache's L2 tier so results
	// survive process restarts and are shared across pipeline instances.
	RedisClient *redis.Client
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.QueueDepth <= 0 {
		c.QueueDepth = 256
	}
	if c.Backoff.MaxAttempts == 0 && c.Backoff.Base == 0 {
		c.Backoff = errs.DefaultProviderBackoff()
	}
	return c
}

type queuedOp struct {
	op  *Operation
	req Request
}

// Pipeline is the AI Pipeline (spec §4.5): a four-level priority queue
// drained by a fixed worker pool, dispatching to an injected Provider set
// with caching, streaming, progress, cancellation, and privacy routing.
type Pipeline struct {
	cfg Config
	log zerolog.Logger

	local  Provider
	remote Provider

	cache *resultCache

	fetchMessage MessageFetcher

	mu       sync.Mutex
	queues   [4][]*queuedOp
	notEmpty chan struct{}
	ops      map[string]*Operation

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Pipeline. local and/or remote may be nil; at least one
// non-nil provider is required for any operation to succeed.
func New(cfg Config, local, remote Provider) *Pipeline {
	cfg = cfg.withDefaults()
	cache := newResultCache(cfg.CacheTTL)
	if cfg.RedisClient != nil {
		cache = cache.withRedis(cfg.RedisClient)
	}
	p := &Pipeline{
		cfg:      cfg,
		log:      logging.WithComponent("ai"),
		local:    local,
		remote:   remote,
		cache:    cache,
		notEmpty: make(chan struct{}, 1),
		ops:      make(map[string]*Operation),
	}
	return p
}

// Start launches the worker pool.
func (p *Pipeline) Start(ctx context.Context) {
	p.ctx, p.cancel = context.WithCancel(ctx)
	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

// Stop cancels in-flight work and waits for workers to exit.
func (p *Pipeline) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

// Submit enqueues a request and returns its Operation handle immediately.
// Enqueue beyond QueueDepth rejects with errs.ErrOverload; Critical
// requests skip that admission check.
func (p *Pipeline) Submit(req Request) (*Operation, error) {
	p.mu.Lock()
	total := 0
	for _, q := range p.queues {
		total += len(q)
	}
	if total >= p.cfg.QueueDepth && req.Priority != PriorityCritical {
		p.mu.Unlock()
		return nil, errs.ErrOverload
	}

	opCtx, cancel := context.WithCancel(p.ctx)
	op := &Operation{
		ID:        uuid.NewString(),
		Kind:      req.Kind,
		Priority:  req.Priority,
		CreatedAt: time.Now(),
		Deadline:  req.Deadline,
		Metadata:  map[string]string{},
		Status:    StatusQueued,
		done:      make(chan struct{}),
		ctx:       opCtx,
		cancel:    cancel,
	}
	if req.Stream {
		op.chunks = make(chan StreamChunk, 16)
	}
	op.progress = make(chan ProgressUpdate, 16)

	p.ops[op.ID] = op
	p.queues[req.Priority] = append(p.queues[req.Priority], &queuedOp{op: op, req: req})
	p.mu.Unlock()

	p.signal()
	return op, nil
}

// Cancel is idempotent: it returns true iff op transitioned from a
// non-terminal state to Cancelled (spec §4.5/§8).
func (p *Pipeline) Cancel(opID string) bool {
	p.mu.Lock()
	op, ok := p.ops[opID]
	p.mu.Unlock()
	if !ok {
		return false
	}

	p.mu.Lock()
	if isTerminal(op.Status) {
		p.mu.Unlock()
		return false
	}
	wasQueued := op.Status == StatusQueued
	op.Status = StatusCancelled
	op.Err = errs.ErrCancelled
	p.mu.Unlock()

	if op.cancel != nil {
		op.cancel()
	}
	// A queued op has no worker touching its channels yet, so Cancel is
	// the sole closer. A running/streaming op is still owned by its
	// worker; that worker observes ctx cancellation and closes via
	// finish, so Cancel must not race it for the same channels.
	if wasQueued {
		p.closeOp(op)
	}
	return true
}

func isTerminal(s Status) bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// closeOp closes an operation's channels exactly once. Every channel
// close and send is guarded by p.mu so a concurrent send never races a
// close (which would panic).
func (p *Pipeline) closeOp(op *Operation) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if op.closed {
		return
	}
	op.closed = true
	close(op.done)
	if op.chunks != nil {
		close(op.chunks)
	}
	close(op.progress)
}

func (p *Pipeline) signal() {
	select {
	case p.notEmpty <- struct{}{}:
	default:
	}
}

// dequeue pops the highest-priority queued item, Critical first, FIFO
// within a level.
func (p *Pipeline) dequeue() *queuedOp {
	p.mu.Lock()
	defer p.mu.Unlock()
	for lvl := PriorityCritical; lvl >= PriorityLow; lvl-- {
		q := p.queues[lvl]
		if len(q) > 0 {
			item := q[0]
			p.queues[lvl] = q[1:]
			return item
		}
	}
	return nil
}

func (p *Pipeline) worker() {
	defer p.wg.Done()
	for {
		item := p.dequeue()
		if item == nil {
			select {
			case <-p.notEmpty:
				continue
			case <-p.ctx.Done():
				return
			case <-time.After(250 * time.Millisecond):
				continue
			}
		}
		p.execute(item)
	}
}

func (p *Pipeline) execute(item *queuedOp) {
	op, req := item.op, item.req

	p.mu.Lock()
	if op.Status == StatusCancelled {
		p.mu.Unlock()
		p.closeOp(op)
		return
	}
	op.Status = StatusRunning
	p.mu.Unlock()
	p.emitProgress(op, 0.1, "dispatched to provider")

	ctx := op.ctx
	var cancel context.CancelFunc
	if !req.Deadline.IsZero() {
		ctx, cancel = context.WithDeadline(ctx, req.Deadline)
	} else {
		ctx, cancel = context.WithTimeout(ctx, 30*time.Second)
	}
	defer cancel()

	provider, err := p.selectProvider(req.Kind)
	if err != nil {
		p.finish(op, "", err)
		return
	}

	if req.Kind == KindBatchEmailProcess {
		result, err := p.runBatch(ctx, op, req, provider)
		p.finish(op, result, err)
		return
	}

	key := cacheKey{kind: req.Kind, inputHash: canonicalHash(string(req.Kind), req.Text, req.Context["extra"]), providerID: provider.Capabilities().ID, modelID: firstModel(provider)}
	if !bypassCache(p.cfg.Creativity) {
		if cached, ok := p.cache.get(ctx, key); ok {
			p.finish(op, cached, nil)
			return
		}
	}

	if req.Stream && provider.Capabilities().SupportsStream {
		p.runStreaming(ctx, op, req, provider)
		return
	}

	var result string
	retryErr := errs.Retry(ctx, p.cfg.Backoff, func(ctx context.Context) error {
		r, err := dispatch(ctx, provider, req)
		result = r
		return err
	})
	if retryErr != nil {
		p.finish(op, "", retryErr)
		return
	}

	if !bypassCache(p.cfg.Creativity) {
		p.cache.put(ctx, key, result)
	}
	p.finish(op, result, nil)
}

func firstModel(pr Provider) string {
	models := pr.Capabilities().Models
	if len(models) == 0 {
		return ""
	}
	return models[0]
}

func dispatch(ctx context.Context, pr Provider, req Request) (string, error) {
	switch req.Kind {
	case KindSummarize:
		return pr.Summarize(ctx, req.Text, req.MaxLen)
	case KindSuggestReply:
		return pr.SuggestReply(ctx, req.Text, req.Context["thread"])
	case KindCategorize:
		return pr.Categorize(ctx, req.Text)
	case KindParseSchedule:
		return pr.ParseSchedule(ctx, req.Text)
	case KindCustom:
		return pr.CompleteText(ctx, req.Text)
	default:
		return "", &errs.InvalidResponse{Msg: fmt.Sprintf("unsupported operation kind %q", req.Kind)}
	}
}

func (p *Pipeline) runStreaming(ctx context.Context, op *Operation, req Request, provider Provider) {
	p.mu.Lock()
	op.Status = StatusStreaming
	p.mu.Unlock()

	seq := 0
	var full []byte
	err := provider.StreamText(ctx, req.Text, func(chunk string, isFinal bool) error {
		select {
		case op.chunks <- StreamChunk{Sequence: seq, Content: chunk, IsFinal: isFinal}:
		case <-ctx.Done():
			return ctx.Err()
		}
		full = append(full, chunk...)
		seq++
		return nil
	})
	if err != nil {
		p.finish(op, "", err)
		return
	}
	p.finish(op, string(full), nil)
}

func (p *Pipeline) emitProgress(op *Operation, progress float64, msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	op.Progress = progress
	if op.closed {
		return
	}
	select {
	case op.progress <- ProgressUpdate{OpID: op.ID, Progress: progress, Message: msg}:
	default:
	}
}

// finish records the operation's terminal outcome and closes its channels.
// If the op was already cancelled concurrently, the cancellation stands —
// finish only closes (idempotently, via closeOp) rather than overwriting it.
func (p *Pipeline) finish(op *Operation, result string, err error) {
	p.mu.Lock()
	if op.Status != StatusCancelled {
		if err != nil {
			op.Status = StatusFailed
			op.Err = err
		} else {
			op.Status = StatusCompleted
			op.Result = result
			op.Progress = 1.0
		}
	}
	p.mu.Unlock()
	p.closeOp(op)
}

// selectProvider applies spec §4.5's privacy-mode routing and capability
// check.
func (p *Pipeline) selectProvider(kind OperationKind) (Provider, error) {
	switch p.cfg.PrivacyMode {
	case LocalOnly:
		if p.local == nil {
			return nil, &errs.PrivacyViolation{Msg: "LocalOnly privacy mode requires a local provider, none configured"}
		}
		return p.checkCapability(p.local, kind)
	case LocalPreferred:
		if p.local != nil && p.healthy(p.local) {
			return p.checkCapability(p.local, kind)
		}
		if p.remote == nil {
			return nil, &errs.ProviderUnavailable{Msg: "no provider available"}
		}
		return p.checkCapability(p.remote, kind)
	default: // CloudAllowed
		if p.remote == nil {
			return nil, &errs.ProviderUnavailable{Msg: "no cloud provider configured"}
		}
		return p.checkCapability(p.remote, kind)
	}
}

func (p *Pipeline) healthy(pr Provider) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return pr.HealthCheck(ctx) == nil
}

func (p *Pipeline) checkCapability(pr Provider, kind OperationKind) (Provider, error) {
	caps := pr.Capabilities()
	ok := true
	switch kind {
	case KindSummarize:
		ok = caps.SupportsSummarize
	case KindSuggestReply:
		ok = caps.SupportsReply
	case KindCategorize:
		ok = caps.SupportsCategorize
	case KindParseSchedule:
		ok = caps.SupportsSchedule
	}
	if !ok {
		return nil, errs.ErrUnsupportedCap
	}
	return pr, nil
}
