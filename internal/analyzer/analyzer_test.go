package analyzer

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/jaywalked78/framesift/internal/anthropic"
	"github.com/jaywalked78/framesift/internal/classify"
)

// fakeLLM replays a scripted response or error.
type fakeLLM struct {
	response string
	err      error
	delay    time.Duration
}

func (f *fakeLLM) Complete(ctx context.Context, system string, messages []anthropic.Message, maxTokens int) (string, error) {
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(f.delay):
		}
	}
	return f.response, f.err
}

func TestAnalyze_Success(t *testing.T) {
	llm := &fakeLLM{response: `{"filtered_text":"login page with password field","contains_sensitive_info":true,"sensitive_content_types":["password_reference"]}`}
	a := New(llm, time.Second, slog.Default())

	res := a.Analyze(context.Background(), "Password: ****\nlogin page")
	if res.Source != SourceLLM {
		t.Fatalf("expected llm source, got %s", res.Source)
	}
	if res.FilteredText != "login page with password field" {
		t.Errorf("unexpected filtered text %q", res.FilteredText)
	}
	if !res.IsSensitive || len(res.SensitiveTypes) != 1 {
		t.Errorf("unexpected sensitivity %v %v", res.IsSensitive, res.SensitiveTypes)
	}
}

func TestAnalyze_MarkdownFences(t *testing.T) {
	llm := &fakeLLM{response: "```json\n{\"filtered_text\":\"hello\",\"contains_sensitive_info\":false,\"sensitive_content_types\":[]}\n```"}
	a := New(llm, time.Second, slog.Default())

	res := a.Analyze(context.Background(), "hello")
	if res.Source != SourceLLM || res.FilteredText != "hello" {
		t.Errorf("expected fenced JSON to parse, got %+v", res)
	}
}

func TestAnalyze_SensitiveWithoutReasonsGetsGenericMarker(t *testing.T) {
	llm := &fakeLLM{response: `{"filtered_text":"something","contains_sensitive_info":true,"sensitive_content_types":[]}`}
	a := New(llm, time.Second, slog.Default())

	res := a.Analyze(context.Background(), "something")
	if !res.IsSensitive {
		t.Fatal("expected sensitive")
	}
	if len(res.SensitiveTypes) != 1 || res.SensitiveTypes[0] != classify.ReasonGeneric {
		t.Errorf("expected single generic marker, got %v", res.SensitiveTypes)
	}
}

func TestAnalyze_EmptyBodyFallsBack(t *testing.T) {
	llm := &fakeLLM{response: ""}
	a := New(llm, time.Second, slog.Default())

	raw := "card 4111 1111 1111 1111\nsecond line"
	res := a.Analyze(context.Background(), raw)
	if res.Source != SourceFallback {
		t.Fatalf("expected fallback, got %s", res.Source)
	}
	if res.FilteredText != classify.Normalize(raw) {
		t.Errorf("fallback should normalize raw text, got %q", res.FilteredText)
	}
	if !res.IsSensitive {
		t.Error("fallback should classify the card number as sensitive")
	}
	found := false
	for _, r := range res.SensitiveTypes {
		if r == classify.ReasonPaymentCard {
			found = true
		}
	}
	if !found {
		t.Errorf("expected %s in fallback reasons, got %v", classify.ReasonPaymentCard, res.SensitiveTypes)
	}
}

func TestAnalyze_ErrorFallsBack(t *testing.T) {
	llm := &fakeLLM{err: errors.New("api error 500")}
	a := New(llm, time.Second, slog.Default())

	res := a.Analyze(context.Background(), "plain text")
	if res.Source != SourceFallback {
		t.Fatalf("expected fallback, got %s", res.Source)
	}
	if res.IsSensitive {
		t.Error("plain text should not be sensitive")
	}
}

func TestAnalyze_TimeoutFallsBack(t *testing.T) {
	llm := &fakeLLM{delay: time.Second, response: `{"filtered_text":"x","contains_sensitive_info":false}`}
	a := New(llm, 50*time.Millisecond, slog.Default())

	start := time.Now()
	res := a.Analyze(context.Background(), "slow service text")
	if time.Since(start) > 500*time.Millisecond {
		t.Error("analyze did not honour its deadline")
	}
	if res.Source != SourceFallback {
		t.Fatalf("expected fallback after timeout, got %s", res.Source)
	}
}

func TestAnalyze_NoLLMConfigured(t *testing.T) {
	a := New(nil, time.Second, slog.Default())

	res := a.Analyze(context.Background(), "Password: hunter2")
	if res.Source != SourceFallback {
		t.Fatalf("expected fallback without an LLM, got %s", res.Source)
	}
	if !res.IsSensitive {
		t.Error("expected pattern classifier to flag the text")
	}
}

func TestAnalyze_GarbageFallsBack(t *testing.T) {
	llm := &fakeLLM{response: "I'm sorry, I can't help with that."}
	a := New(llm, time.Second, slog.Default())

	res := a.Analyze(context.Background(), "some text")
	if res.Source != SourceFallback {
		t.Fatalf("expected fallback for unparseable output, got %s", res.Source)
	}
}
