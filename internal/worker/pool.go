// Package worker partitions the frame list and runs one sequential
// pipeline per worker goroutine. Workers share nothing in memory except
// the run state and the per-credential rate limiters.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/jaywalked78/framesift/internal/processor"
	"github.com/jaywalked78/framesift/internal/runstate"
)

// DefaultStagger is the start delay between consecutive workers, spreading
// first contact with the rate-limited APIs.
const DefaultStagger = 10 * time.Second

// DefaultBatchSize is how many frames a worker processes per watchdog
// window before saving state.
const DefaultBatchSize = 25

// BatchProcessor is the per-worker pipeline surface.
type BatchProcessor interface {
	ProcessBatch(ctx context.Context, framePaths []string) ([]processor.Outcome, error)
}

// Factory builds one worker's pipeline. credential is the rotation-selected
// API key for this worker; limiter is shared with every worker on the same
// credential and must gate that worker's store calls.
type Factory func(workerIndex int, credential string, limiter *rate.Limiter) BatchProcessor

// Config carries the pool's tuning. Credentials must be non-empty; a
// single credential is simply shared by all workers.
type Config struct {
	Workers     int
	Policy      Policy
	Stagger     time.Duration
	BatchSize   int
	Credentials []string
	RatePerSec  float64 // per-credential request rate; 0 disables limiting
	RateBurst   int
}

// Summary aggregates a run across all workers.
type Summary struct {
	Updated          int
	SkippedNoRecord  int
	SkippedDuplicate int
	Failed           int
	WorkerErrors     map[int]error // worker index -> terminal error
}

// OK reports overall success: every worker exited cleanly.
func (s Summary) OK() bool {
	return len(s.WorkerErrors) == 0
}

type workerResult struct {
	index    int
	outcomes []processor.Outcome
	err      error
}

type Pool struct {
	cfg     Config
	factory Factory
	state   *runstate.State // optional
	logger  *slog.Logger
}

func NewPool(cfg Config, factory Factory, state *runstate.State, logger *slog.Logger) *Pool {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.Stagger < 0 {
		cfg.Stagger = DefaultStagger
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	return &Pool{cfg: cfg, factory: factory, state: state, logger: logger}
}

// Run partitions paths and drives all workers to completion. The returned
// Summary reports per-status counts and any worker failures; Run itself
// errors only on invalid input.
func (p *Pool) Run(ctx context.Context, paths []string) (Summary, error) {
	if len(p.cfg.Credentials) == 0 {
		return Summary{}, fmt.Errorf("at least one credential is required")
	}

	segments, err := Partition(paths, p.cfg.Workers, p.cfg.Policy)
	if err != nil {
		return Summary{}, err
	}

	// One limiter per credential, shared by all workers rotated onto it.
	limiters := make([]*rate.Limiter, len(p.cfg.Credentials))
	for i := range limiters {
		if p.cfg.RatePerSec > 0 {
			burst := p.cfg.RateBurst
			if burst < 1 {
				burst = 1
			}
			limiters[i] = rate.NewLimiter(rate.Limit(p.cfg.RatePerSec), burst)
		}
	}

	results := make(chan workerResult, len(segments))
	for _, seg := range segments {
		credIdx := (seg.Index - 1) % len(p.cfg.Credentials)
		bp := p.factory(seg.Index, p.cfg.Credentials[credIdx], limiters[credIdx])

		go func(seg Segment, bp BatchProcessor) {
			outcomes, err := p.runWorker(ctx, seg, bp)
			results <- workerResult{index: seg.Index, outcomes: outcomes, err: err}
		}(seg, bp)
	}

	summary := Summary{WorkerErrors: make(map[int]error)}
	for range segments {
		res := <-results
		for _, o := range res.outcomes {
			switch o.Status {
			case processor.StatusUpdated:
				summary.Updated++
			case processor.StatusSkippedNoRecord:
				summary.SkippedNoRecord++
			case processor.StatusSkippedDuplicate:
				summary.SkippedDuplicate++
			default:
				summary.Failed++
			}
		}
		if res.err != nil {
			summary.WorkerErrors[res.index] = res.err
			p.logger.Error("worker failed", "worker", res.index, "error", res.err)
		}
	}

	if p.state != nil {
		if err := p.state.Save(); err != nil {
			p.logger.Warn("failed to save run state", "error", err)
		}
	}
	return summary, nil
}

// runWorker processes one segment sequentially, in watchdog-sized batches.
func (p *Pool) runWorker(ctx context.Context, seg Segment, bp BatchProcessor) ([]processor.Outcome, error) {
	if delay := time.Duration(seg.Index-1) * p.cfg.Stagger; delay > 0 {
		p.logger.Info("worker start staggered", "worker", seg.Index, "delay", delay)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	pending := seg.Frames
	if p.state != nil {
		pending = pending[:0:0]
		for _, f := range seg.Frames {
			if !p.state.IsProcessed(f) {
				pending = append(pending, f)
			}
		}
	}

	p.logger.Info("worker starting",
		"worker", seg.Index,
		"frames", len(pending),
		"skipped_resumed", len(seg.Frames)-len(pending),
	)

	var all []processor.Outcome
	for start := 0; start < len(pending); start += p.cfg.BatchSize {
		end := start + p.cfg.BatchSize
		if end > len(pending) {
			end = len(pending)
		}

		outcomes, err := bp.ProcessBatch(ctx, pending[start:end])
		all = append(all, outcomes...)
		p.record(outcomes)

		if err != nil {
			return all, fmt.Errorf("worker %d: %w", seg.Index, err)
		}
	}

	p.logger.Info("worker finished", "worker", seg.Index, "frames", len(all))
	return all, nil
}

func (p *Pool) record(outcomes []processor.Outcome) {
	if p.state == nil {
		return
	}
	for _, o := range outcomes {
		p.state.MarkProcessed(o.Frame, string(o.Status))
		if o.Status == processor.StatusFailed {
			p.state.AddError(fmt.Sprintf("%s [%s]: %s", o.Frame, o.Stage, o.Reason))
		}
	}
	if err := p.state.Save(); err != nil {
		p.logger.Warn("failed to save run state", "error", err)
	}
}
