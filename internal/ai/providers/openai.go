// Package providers holds concrete Provider implementations: an OpenAI
// cloud backend and a local HTTP-completion backend, per spec §4.5's
// "the core binds to the interface, never to a concrete HTTP client".
package providers

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/meridian-pim/meridian/internal/ai"
	"github.com/meridian-pim/meridian/internal/errs"
)

// OpenAI wraps the OpenAI chat-completion API as an ai.Provider, grounded
// on the chat-completion/stream shape BbangMxn-worker's core/agent/llm
// client uses.
type OpenAI struct {
	client      *openai.Client
	model       string
	temperature float32
}

const defaultModel = "gpt-4o-mini"

// NewOpenAI creates an OpenAI-backed provider. model defaults to
// "gpt-4o-mini" when empty.
func NewOpenAI(apiKey, model string) *OpenAI {
	if model == "" {
		model = defaultModel
	}
	return &OpenAI{client: openai.NewClient(apiKey), model: model, temperature: 0.7}
}

func (o *OpenAI) Capabilities() ai.Capabilities {
	return ai.Capabilities{
		ID:                 "openai",
		ContextLimit:       128000,
		SupportsStream:     true,
		Models:             []string{o.model},
		Local:              false,
		SupportsSummarize:  true,
		SupportsReply:      true,
		SupportsCategorize: true,
		SupportsSchedule:   true,
		SupportsCompose:    true,
		SupportsExtract:    true,
	}
}

func (o *OpenAI) HealthCheck(ctx context.Context) error {
	_, err := o.complete(ctx, "", "ping")
	return o.classify(err)
}

func (o *OpenAI) CompleteText(ctx context.Context, prompt string) (string, error) {
	out, err := o.complete(ctx, "", prompt)
	return out, o.classify(err)
}

func (o *OpenAI) Summarize(ctx context.Context, text string, maxLen int) (string, error) {
	sys := "You are an email summarization assistant. Produce a brief, clear summary focused on the main point and any action items."
	if maxLen > 0 {
		sys += fmt.Sprintf(" Keep it under %d characters.", maxLen)
	}
	out, err := o.complete(ctx, sys, truncate(text, 8000))
	return out, o.classify(err)
}

func (o *OpenAI) SuggestReply(ctx context.Context, text, threadContext string) (string, error) {
	sys := "You draft email replies. Only output the reply body, no subject line or signature."
	prompt := text
	if threadContext != "" {
		prompt = fmt.Sprintf("Thread context:\n%s\n\nMessage to reply to:\n%s", threadContext, text)
	}
	out, err := o.complete(ctx, sys, truncate(prompt, 8000))
	return out, o.classify(err)
}

func (o *OpenAI) Categorize(ctx context.Context, text string) (string, error) {
	sys := "Classify the email into exactly one short category label (e.g. work, personal, finance, travel, newsletter, spam). Output only the label."
	out, err := o.complete(ctx, sys, truncate(text, 4000))
	return out, o.classify(err)
}

func (o *OpenAI) ParseSchedule(ctx context.Context, text string) (string, error) {
	sys := "Extract any meeting/event proposal from this text as a JSON object with fields title, start, end, location (ISO-8601 timestamps, empty string if unknown). Output only the JSON."
	out, err := o.completeJSON(ctx, sys, truncate(text, 4000))
	return out, o.classify(err)
}

func (o *OpenAI) Compose(ctx context.Context, prompt, composeContext string) (string, error) {
	sys := "You compose email drafts matching the user's intent and tone."
	full := prompt
	if composeContext != "" {
		full = fmt.Sprintf("%s\n\nContext:\n%s", prompt, composeContext)
	}
	out, err := o.complete(ctx, sys, full)
	return out, o.classify(err)
}

func (o *OpenAI) ExtractKeyInfo(ctx context.Context, text string) (string, error) {
	sys := "Extract key facts (dates, names, amounts, action items) from this text as a terse bullet list."
	out, err := o.complete(ctx, sys, truncate(text, 8000))
	return out, o.classify(err)
}

func (o *OpenAI) StreamText(ctx context.Context, prompt string, fn ai.StreamFunc) error {
	stream, err := o.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:       o.model,
		Temperature: o.temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Stream: true,
	})
	if err != nil {
		return o.classify(err)
	}
	defer stream.Close()

	for {
		resp, err := stream.Recv()
		if err != nil {
			break
		}
		if len(resp.Choices) == 0 {
			continue
		}
		if ferr := fn(resp.Choices[0].Delta.Content, false); ferr != nil {
			return ferr
		}
	}
	return fn("", true)
}

func (o *OpenAI) complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	messages := []openai.ChatCompletionMessage{}
	if systemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: systemPrompt})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: userPrompt})

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       o.model,
		Temperature: o.temperature,
		Messages:    messages,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

func (o *OpenAI) completeJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       o.model,
		Temperature: o.temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "{}", nil
	}
	return resp.Choices[0].Message.Content, nil
}

// classify maps an OpenAI client error to spec §4.5's failure taxonomy.
func (o *OpenAI) classify(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *openai.APIError
	if ok := asAPIError(err, &apiErr); ok {
		switch apiErr.HTTPStatusCode {
		case 401, 403:
			return &errs.AuthFailure{Provider: "openai"}
		case 429:
			return &errs.RateLimited{Provider: "openai", RetryAfter: defaultRetryAfter}
		case 413:
			return &errs.RequestTooLarge{Bytes: 0}
		}
		if apiErr.HTTPStatusCode >= 500 {
			return &errs.ProviderUnavailable{Msg: apiErr.Message}
		}
	}
	if ctx := ctxErr(err); ctx != nil {
		return ctx
	}
	return &errs.Internal{Msg: err.Error()}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
