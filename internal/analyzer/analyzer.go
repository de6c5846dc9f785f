// Package analyzer enriches raw OCR text through an LLM, with a
// deterministic pattern-based fallback so a slow or broken analysis
// service never fails a frame.
package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jaywalked78/framesift/internal/anthropic"
	"github.com/jaywalked78/framesift/internal/classify"
)

// DefaultTimeout bounds a single analysis call.
const DefaultTimeout = 60 * time.Second

// Source records which path produced a Result.
type Source string

const (
	SourceLLM      Source = "llm"
	SourceFallback Source = "fallback"
)

// Result is the per-frame analysis output, flattened into record field
// updates by the processor. SensitiveTypes is never empty when
// IsSensitive is true.
type Result struct {
	FilteredText   string
	IsSensitive    bool
	SensitiveTypes []string
	Source         Source
}

// Completer is the LLM surface the analyzer needs.
type Completer interface {
	Complete(ctx context.Context, system string, messages []anthropic.Message, maxTokens int) (string, error)
}

type Analyzer struct {
	llm     Completer
	timeout time.Duration
	logger  *slog.Logger
}

func New(llm Completer, timeout time.Duration, logger *slog.Logger) *Analyzer {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Analyzer{llm: llm, timeout: timeout, logger: logger}
}

type llmResponse struct {
	FilteredText          string   `json:"filtered_text"`
	ContainsSensitiveInfo bool     `json:"contains_sensitive_info"`
	SensitiveContentTypes []string `json:"sensitive_content_types"`
}

// Analyze runs ocrText through the analysis service under the configured
// deadline. On timeout, transport error, or empty/unparseable output it
// degrades to the pattern-based fallback instead of failing the frame.
func (a *Analyzer) Analyze(ctx context.Context, ocrText string) Result {
	if a.llm == nil {
		return a.fallback(ocrText)
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	prompt := fmt.Sprintf(analysisUserPrompt, ocrText)
	raw, err := a.llm.Complete(ctx, systemPrompt, []anthropic.Message{
		{Role: "user", Content: prompt},
	}, 4096)
	if err != nil {
		a.logger.Warn("analysis call failed, using fallback", "error", err)
		return a.fallback(ocrText)
	}

	resp, err := parseResponse(raw)
	if err != nil {
		a.logger.Warn("analysis output unusable, using fallback",
			"error", err,
			"raw_len", len(raw),
		)
		return a.fallback(ocrText)
	}

	types := resp.SensitiveContentTypes
	if resp.ContainsSensitiveInfo && len(types) == 0 {
		// The service flagged the text but gave no reason.
		types = []string{classify.ReasonGeneric}
	}
	if !resp.ContainsSensitiveInfo {
		types = nil
	}

	return Result{
		FilteredText:   resp.FilteredText,
		IsSensitive:    resp.ContainsSensitiveInfo,
		SensitiveTypes: types,
		Source:         SourceLLM,
	}
}

// fallback normalizes the raw text and classifies it with the fixed
// pattern table. Pure and deterministic.
func (a *Analyzer) fallback(ocrText string) Result {
	sensitive, reasons := classify.Classify(ocrText)
	return Result{
		FilteredText:   classify.Normalize(ocrText),
		IsSensitive:    sensitive,
		SensitiveTypes: reasons,
		Source:         SourceFallback,
	}
}

// parseResponse decodes the service's JSON, tolerating markdown fences the
// model sometimes adds despite instructions.
func parseResponse(raw string) (*llmResponse, error) {
	trimmed := strings.TrimSpace(raw)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)

	if trimmed == "" {
		return nil, fmt.Errorf("empty analysis body")
	}

	var resp llmResponse
	if err := json.Unmarshal([]byte(trimmed), &resp); err != nil {
		return nil, fmt.Errorf("parse analysis: %w", err)
	}
	if resp.FilteredText == "" {
		return nil, fmt.Errorf("analysis returned no filtered text")
	}
	return &resp, nil
}
