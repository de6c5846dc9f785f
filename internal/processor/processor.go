// Package processor orchestrates the per-frame pipeline: resolve the
// record, run OCR, analyze the text, persist the result. Failures are
// isolated per frame; only auth errors and the batch watchdog abort a
// worker.
package processor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jaywalked78/framesift/internal/analyzer"
	"github.com/jaywalked78/framesift/internal/resolver"
	"github.com/jaywalked78/framesift/internal/store"
)

// Status is the terminal state of one frame.
type Status string

const (
	StatusUpdated          Status = "updated"
	StatusSkippedNoRecord  Status = "skipped_no_record"
	StatusSkippedDuplicate Status = "skipped_duplicate"
	StatusFailed           Status = "failed"
)

// Stage names used in failure outcomes and logs.
const (
	StageResolve = "resolve"
	StageOCR     = "ocr"
	StageAnalyze = "analyze"
	StagePersist = "persist"
)

// DefaultBatchTimeout is the watchdog for one batch of frames. A batch
// that overruns it kills the worker rather than hanging silently.
const DefaultBatchTimeout = 10 * time.Minute

// Outcome is the per-frame processing result. Not persisted; aggregated
// into run counters and logs.
type Outcome struct {
	Frame    string
	Status   Status
	Stage    string // set when Status is failed
	Reason   string
	RecordID string
	Err      error // underlying error, for auth detection
}

// RecordResolver maps a frame path to a record ID.
type RecordResolver interface {
	Resolve(ctx context.Context, framePath string) (string, error)
}

// OCRRunner recognizes text in a frame image. Always returns text;
// engine failures come back as sentinel strings.
type OCRRunner interface {
	Run(ctx context.Context, framePath string) string
}

// ContentAnalyzer enriches OCR text, falling back internally on failure.
type ContentAnalyzer interface {
	Analyze(ctx context.Context, ocrText string) analyzer.Result
}

// RecordWriter persists field updates to one record.
type RecordWriter interface {
	Update(ctx context.Context, recordID string, fields map[string]any) error
}

// OutcomePublisher receives terminal frame outcomes, e.g. for NATS.
type OutcomePublisher interface {
	FrameOutcome(o Outcome)
}

// FieldNames maps pipeline outputs to store field names. The store's real
// schema is discovered at runtime; these are just the preferred names.
type FieldNames struct {
	OCRText        string
	Flagged        string
	SensitiveTypes string
}

// DefaultFieldNames matches the reference base layout.
func DefaultFieldNames() FieldNames {
	return FieldNames{
		OCRText:        "OCRData",
		Flagged:        "Flagged",
		SensitiveTypes: "SensitiveContentTypes",
	}
}

type Processor struct {
	resolver     RecordResolver
	ocr          OCRRunner
	analyzer     ContentAnalyzer
	writer       RecordWriter
	events       OutcomePublisher // optional
	fields       FieldNames
	frameTimeout time.Duration
	batchTimeout time.Duration
	logger       *slog.Logger

	lastFingerprint string // OCR text hash of the previous frame
}

func New(res RecordResolver, ocr OCRRunner, an ContentAnalyzer, w RecordWriter, events OutcomePublisher, fields FieldNames, frameTimeout, batchTimeout time.Duration, logger *slog.Logger) *Processor {
	if batchTimeout <= 0 {
		batchTimeout = DefaultBatchTimeout
	}
	return &Processor{
		resolver:     res,
		ocr:          ocr,
		analyzer:     an,
		writer:       w,
		events:       events,
		fields:       fields,
		frameTimeout: frameTimeout,
		batchTimeout: batchTimeout,
		logger:       logger,
	}
}

// ProcessFrame runs one frame through the pipeline and returns its
// terminal outcome. Errors never escape; they become failed outcomes.
func (p *Processor) ProcessFrame(ctx context.Context, framePath string) Outcome {
	if p.frameTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.frameTimeout)
		defer cancel()
	}

	o := p.processFrame(ctx, framePath)
	p.report(o)
	return o
}

func (p *Processor) processFrame(ctx context.Context, framePath string) Outcome {
	// Resolving
	recordID, err := p.resolver.Resolve(ctx, framePath)
	if err != nil {
		if errors.Is(err, resolver.ErrNotFound) {
			p.logger.Info("no record for frame, skipping", "frame", framePath)
			return Outcome{Frame: framePath, Status: StatusSkippedNoRecord}
		}
		return p.failed(framePath, StageResolve, err, "")
	}

	// RunningOCR — never errors, worst case a sentinel string.
	text := p.ocr.Run(ctx, framePath)

	// Consecutive frames of an idle screen OCR to identical text; skip the
	// redundant write but remember the fingerprint.
	fp := fingerprint(text)
	if fp == p.lastFingerprint {
		p.logger.Debug("duplicate frame content, skipping persist",
			"frame", framePath,
			"record_id", recordID,
		)
		return Outcome{Frame: framePath, Status: StatusSkippedDuplicate, RecordID: recordID}
	}
	p.lastFingerprint = fp

	// Analyzing — degrades internally, never errors.
	result := p.analyzer.Analyze(ctx, text)

	// Persisting
	fields := map[string]any{
		p.fields.OCRText: result.FilteredText,
		p.fields.Flagged: result.IsSensitive,
	}
	if len(result.SensitiveTypes) > 0 {
		fields[p.fields.SensitiveTypes] = result.SensitiveTypes
	}
	if err := p.writer.Update(ctx, recordID, fields); err != nil {
		return p.failed(framePath, StagePersist, err, recordID)
	}

	p.logger.Info("frame updated",
		"frame", framePath,
		"record_id", recordID,
		"sensitive", result.IsSensitive,
		"analysis_source", string(result.Source),
	)
	return Outcome{Frame: framePath, Status: StatusUpdated, RecordID: recordID}
}

func (p *Processor) failed(framePath, stage string, err error, recordID string) Outcome {
	p.logger.Error("frame processing failed",
		"frame", framePath,
		"stage", stage,
		"error", err,
	)
	return Outcome{
		Frame:    framePath,
		Status:   StatusFailed,
		Stage:    stage,
		Reason:   err.Error(),
		RecordID: recordID,
		Err:      err,
	}
}

func (p *Processor) report(o Outcome) {
	if p.events != nil {
		p.events.FrameOutcome(o)
	}
}

// ProcessBatch runs frames strictly in order under the batch watchdog.
// The returned error is fatal to the worker: either the watchdog fired or
// the store rejected the worker's credential.
func (p *Processor) ProcessBatch(ctx context.Context, framePaths []string) ([]Outcome, error) {
	ctx, cancel := context.WithTimeout(ctx, p.batchTimeout)
	defer cancel()

	outcomes := make([]Outcome, 0, len(framePaths))
	for _, path := range framePaths {
		if err := ctx.Err(); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return outcomes, fmt.Errorf("batch watchdog fired after %s with %d/%d frames done", p.batchTimeout, len(outcomes), len(framePaths))
			}
			return outcomes, err
		}

		o := p.ProcessFrame(ctx, path)
		outcomes = append(outcomes, o)

		if o.Err != nil && store.IsAuth(o.Err) {
			// Retrying with a known-bad credential wastes quota.
			return outcomes, fmt.Errorf("store credential rejected: %w", o.Err)
		}
	}
	return outcomes, nil
}

func fingerprint(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
