package providers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/meridian-pim/meridian/internal/ai"
	"github.com/meridian-pim/meridian/internal/errs"
)

// Local talks to a locally-hosted, Ollama-compatible completion endpoint
// (POST /api/generate, newline-delimited JSON chunks). No example repo in
// the retrieved pack imports a local-LLM client library, so this is built
// directly on net/http rather than adopting an unverified dependency.
type Local struct {
	endpoint string
	model    string
	http     *http.Client
}

// NewLocal creates a Local provider against endpoint (e.g.
// "http://127.0.0.1:11434").
func NewLocal(endpoint, model string) *Local {
	return &Local{endpoint: endpoint, model: model, http: &http.Client{Timeout: 30 * time.Second}}
}

func (l *Local) Capabilities() ai.Capabilities {
	return ai.Capabilities{
		ID:                 "local",
		ContextLimit:       8192,
		SupportsStream:     true,
		Models:             []string{l.model},
		Local:              true,
		SupportsSummarize:  true,
		SupportsReply:      true,
		SupportsCategorize: true,
		SupportsSchedule:   true,
		SupportsCompose:    true,
		SupportsExtract:    true,
	}
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateChunk struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

func (l *Local) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.endpoint+"/api/tags", nil)
	if err != nil {
		return &errs.Internal{Msg: err.Error()}
	}
	resp, err := l.http.Do(req)
	if err != nil {
		return &errs.ProviderUnavailable{Msg: err.Error()}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return &errs.ProviderUnavailable{Msg: fmt.Sprintf("status %d", resp.StatusCode)}
	}
	return nil
}

func (l *Local) generate(ctx context.Context, prompt string) (string, error) {
	var full bytes.Buffer
	err := l.stream(ctx, prompt, func(chunk string, isFinal bool) error {
		full.WriteString(chunk)
		return nil
	})
	return full.String(), err
}

func (l *Local) stream(ctx context.Context, prompt string, fn ai.StreamFunc) error {
	body, err := json.Marshal(generateRequest{Model: l.model, Prompt: prompt, Stream: true})
	if err != nil {
		return &errs.Internal{Msg: err.Error()}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.endpoint+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return &errs.Internal{Msg: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.http.Do(req)
	if err != nil {
		return &errs.ProviderUnavailable{Msg: err.Error()}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return &errs.ProviderUnavailable{Msg: fmt.Sprintf("status %d", resp.StatusCode)}
	}
	if resp.StatusCode >= 400 {
		return &errs.InvalidResponse{Msg: fmt.Sprintf("status %d", resp.StatusCode)}
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var chunk generateChunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			return &errs.InvalidResponse{Msg: err.Error()}
		}
		if err := fn(chunk.Response, chunk.Done); err != nil {
			return err
		}
		if chunk.Done {
			break
		}
	}
	return scanner.Err()
}

func (l *Local) CompleteText(ctx context.Context, prompt string) (string, error) {
	return l.generate(ctx, prompt)
}

func (l *Local) Summarize(ctx context.Context, text string, maxLen int) (string, error) {
	prompt := "Summarize the following text in 1-3 sentences"
	if maxLen > 0 {
		prompt += fmt.Sprintf(" (under %d characters)", maxLen)
	}
	prompt += ":\n\n" + truncate(text, 8000)
	return l.generate(ctx, prompt)
}

func (l *Local) SuggestReply(ctx context.Context, text, threadContext string) (string, error) {
	prompt := "Draft a reply to the following email. Only output the reply body.\n\n" + truncate(text, 8000)
	if threadContext != "" {
		prompt += "\n\nThread context:\n" + threadContext
	}
	return l.generate(ctx, prompt)
}

func (l *Local) Categorize(ctx context.Context, text string) (string, error) {
	return l.generate(ctx, "Classify this email with one short category label:\n\n"+truncate(text, 4000))
}

func (l *Local) ParseSchedule(ctx context.Context, text string) (string, error) {
	prompt := "Extract any meeting/event proposal as JSON {title, start, end, location}:\n\n" + truncate(text, 4000)
	return l.generate(ctx, prompt)
}

func (l *Local) Compose(ctx context.Context, prompt, composeContext string) (string, error) {
	full := prompt
	if composeContext != "" {
		full += "\n\nContext:\n" + composeContext
	}
	return l.generate(ctx, full)
}

func (l *Local) ExtractKeyInfo(ctx context.Context, text string) (string, error) {
	return l.generate(ctx, "Extract key facts as a terse bullet list:\n\n"+truncate(text, 8000))
}

func (l *Local) StreamText(ctx context.Context, prompt string, fn ai.StreamFunc) error {
	return l.stream(ctx, prompt, fn)
}
