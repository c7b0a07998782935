package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/askdocs-go/internal/budget"
	"github.com/54b3r/askdocs-go/internal/logging"
)

// completerRunInfo names the completion step in registered Eino callbacks
// such as Langfuse traces.
var completerRunInfo = &callbacks.RunInfo{
	Name:      "askdocs_complete",
	Type:      "ChatCompleter",
	Component: components.ComponentOfChatModel,
}

// ChatCompleter adapts an Eino chat model to a single-prompt completion call:
// one user message in, the assistant's text out.
type ChatCompleter struct {
	// model is the underlying chat model.
	model model.BaseChatModel
	// sampling is false for models that reject temperature and max_tokens.
	sampling bool
}

// NewChatCompleter wraps m. Pass cfg.SupportsSampling() as sampling.
func NewChatCompleter(m model.BaseChatModel, sampling bool) (*ChatCompleter, error) {
	if m == nil {
		return nil, errors.New("provider: chat model must not be nil")
	}
	return &ChatCompleter{model: m, sampling: sampling}, nil
}

// Complete sends prompt as a single user message and returns the reply text.
// maxTokens <= 0 leaves the model default in place.
func (c *ChatCompleter) Complete(ctx context.Context, prompt string, maxTokens int, temperature float32) (string, error) {
	msgs := []*schema.Message{schema.UserMessage(prompt)}

	var opts []model.Option
	if c.sampling {
		opts = append(opts, model.WithTemperature(temperature))
		if maxTokens > 0 {
			opts = append(opts, model.WithMaxTokens(maxTokens))
		}
	}

	ctx = callbacks.InitCallbacks(ctx, completerRunInfo)

	start := time.Now()
	resp, err := c.model.Generate(ctx, msgs, opts...)
	if err != nil {
		return "", fmt.Errorf("provider: generate: %w", err)
	}
	if resp == nil {
		return "", errors.New("provider: generate returned no message")
	}

	attrs := []any{
		slog.Int("prompt_tokens_est", budget.EstimateMessages(msgs)),
		slog.Duration("duration", time.Since(start)),
	}
	if resp.ResponseMeta != nil && resp.ResponseMeta.Usage != nil {
		attrs = append(attrs,
			slog.Int("prompt_tokens", resp.ResponseMeta.Usage.PromptTokens),
			slog.Int("completion_tokens", resp.ResponseMeta.Usage.CompletionTokens),
		)
	}
	logging.FromContext(ctx).Debug("provider: completion", attrs...)

	return resp.Content, nil
}
