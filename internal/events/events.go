// Package events publishes frame outcomes and run summaries to NATS for
// downstream consumers. The pipeline runs fine without it.
package events

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/jaywalked78/framesift/internal/processor"
)

// NATS subjects.
const (
	SubjectFrameUpdated = "framesift.frame.updated"
	SubjectFrameSkipped = "framesift.frame.skipped"
	SubjectFrameFailed  = "framesift.frame.failed"
	SubjectRunCompleted = "framesift.run.completed"
)

type Publisher struct {
	conn   *nats.Conn
	runID  uuid.UUID
	logger *slog.Logger
}

func Connect(url, token string, runID uuid.UUID, logger *slog.Logger) (*Publisher, error) {
	opts := []nats.Option{
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("nats reconnected")
		}),
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return &Publisher{conn: nc, runID: runID, logger: logger}, nil
}

// FrameOutcome publishes one terminal frame outcome. Publish failures are
// logged, never surfaced: event delivery is best-effort and must not
// affect the pipeline.
func (p *Publisher) FrameOutcome(o processor.Outcome) {
	subject := SubjectFrameUpdated
	switch o.Status {
	case processor.StatusSkippedNoRecord, processor.StatusSkippedDuplicate:
		subject = SubjectFrameSkipped
	case processor.StatusFailed:
		subject = SubjectFrameFailed
	}

	p.publish(subject, map[string]any{
		"run_id":    p.runID.String(),
		"frame":     o.Frame,
		"status":    string(o.Status),
		"stage":     o.Stage,
		"reason":    o.Reason,
		"record_id": o.RecordID,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// RunCompleted publishes the run-level summary counters.
func (p *Publisher) RunCompleted(updated, skippedNoRecord, skippedDup, failed int, ok bool) {
	p.publish(SubjectRunCompleted, map[string]any{
		"run_id":            p.runID.String(),
		"updated":           updated,
		"skipped_no_record": skippedNoRecord,
		"skipped_duplicate": skippedDup,
		"failed":            failed,
		"ok":                ok,
		"timestamp":         time.Now().UTC().Format(time.RFC3339),
	})
}

func (p *Publisher) publish(subject string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		p.logger.Warn("failed to marshal event", "subject", subject, "error", err)
		return
	}
	if err := p.conn.Publish(subject, payload); err != nil {
		p.logger.Warn("failed to publish event", "subject", subject, "error", err)
	}
}

func (p *Publisher) Close() {
	if p.conn != nil {
		p.conn.Close()
	}
}
