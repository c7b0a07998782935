package provider

import (
	"context"
	"errors"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// recordingModel is a model.BaseChatModel that records the last call.
type recordingModel struct {
	reply   string
	err     error
	msgs    []*schema.Message
	options *model.Options
}

func (m *recordingModel) Generate(_ context.Context, msgs []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	m.msgs = msgs
	m.options = model.GetCommonOptions(&model.Options{}, opts...)
	if m.err != nil {
		return nil, m.err
	}
	return schema.AssistantMessage(m.reply, nil), nil
}

func (m *recordingModel) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not implemented")
}

func TestChatCompleter_PassesPromptAndOptions(t *testing.T) {
	t.Parallel()
	m := &recordingModel{reply: "Answer: yes\nScore: 90"}
	c, err := NewChatCompleter(m, true)
	if err != nil {
		t.Fatalf("NewChatCompleter: %v", err)
	}

	got, err := c.Complete(context.Background(), "the prompt", 1024, 0.2)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got != "Answer: yes\nScore: 90" {
		t.Errorf("Complete = %q", got)
	}
	if len(m.msgs) != 1 || m.msgs[0].Role != schema.User || m.msgs[0].Content != "the prompt" {
		t.Errorf("unexpected messages: %+v", m.msgs)
	}
	if m.options.MaxTokens == nil || *m.options.MaxTokens != 1024 {
		t.Errorf("MaxTokens option not applied: %+v", m.options.MaxTokens)
	}
	if m.options.Temperature == nil || *m.options.Temperature != 0.2 {
		t.Errorf("Temperature option not applied: %+v", m.options.Temperature)
	}
}

func TestChatCompleter_NoSampling(t *testing.T) {
	t.Parallel()
	m := &recordingModel{reply: "ok"}
	c, err := NewChatCompleter(m, false)
	if err != nil {
		t.Fatalf("NewChatCompleter: %v", err)
	}
	if _, err := c.Complete(context.Background(), "p", 1024, 0.2); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if m.options.MaxTokens != nil || m.options.Temperature != nil {
		t.Errorf("sampling options must be omitted, got %+v", m.options)
	}
}

func TestChatCompleter_Error(t *testing.T) {
	t.Parallel()
	boom := errors.New("503 from upstream")
	c, err := NewChatCompleter(&recordingModel{err: boom}, true)
	if err != nil {
		t.Fatalf("NewChatCompleter: %v", err)
	}
	if _, err := c.Complete(context.Background(), "p", 10, 0); !errors.Is(err, boom) {
		t.Errorf("want wrapped upstream error, got %v", err)
	}
}

func TestNewChatCompleter_NilModel(t *testing.T) {
	t.Parallel()
	if _, err := NewChatCompleter(nil, true); err == nil {
		t.Error("want error for nil model")
	}
}
