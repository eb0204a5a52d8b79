package ai

import "context"

// Capabilities describes what a Provider supports, so the pipeline can
// fail fast with ErrUnsupportedCap rather than dispatch and fail late.
type Capabilities struct {
	ID             string
	ContextLimit   int
	SupportsStream bool
	Models         []string
	Local          bool

	SupportsSummarize  bool
	SupportsReply      bool
	SupportsCategorize bool
	SupportsSchedule   bool
	SupportsCompose    bool
	SupportsExtract    bool
}

// StreamFunc is invoked by a streaming-capable provider once per chunk.
// Returning an error aborts the stream.
type StreamFunc func(chunk string, isFinal bool) error

// Provider is the pipeline's injected LLM backend (spec §4.5). The core
// never binds to a concrete HTTP client — only to this interface.
type Provider interface {
	Capabilities() Capabilities
	HealthCheck(ctx context.Context) error

	CompleteText(ctx context.Context, prompt string) (string, error)
	Summarize(ctx context.Context, text string, maxLen int) (string, error)
	SuggestReply(ctx context.Context, text, context string) (string, error)
	Categorize(ctx context.Context, text string) (string, error)
	ParseSchedule(ctx context.Context, text string) (string, error)
	Compose(ctx context.Context, prompt, context string) (string, error)
	ExtractKeyInfo(ctx context.Context, text string) (string, error)

	// StreamText streams a completion's tokens through fn in order,
	// ending with an isFinal=true call. Providers lacking
	// Capabilities().SupportsStream should not be routed here.
	StreamText(ctx context.Context, prompt string, fn StreamFunc) error
}
