// Package notify posts human-readable run summaries to a webhook
// (Slack-compatible payload). Optional; skipped when no URL is set.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jaywalked78/framesift/internal/runstate"
)

type Notifier struct {
	webhookURL string
	client     *http.Client
	logger     *slog.Logger
}

func New(webhookURL string, logger *slog.Logger) *Notifier {
	return &Notifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

// PostRunSummary posts the run counters to the webhook. Failures are
// returned but callers should treat them as non-fatal.
func (n *Notifier) PostRunSummary(ctx context.Context, snap runstate.Snapshot, elapsed time.Duration) error {
	text := formatRunSummary(snap, elapsed)

	body, err := json.Marshal(map[string]any{"text": text})
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook post: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook status %d", resp.StatusCode)
	}

	n.logger.Info("posted run summary", "run_id", snap.RunID)
	return nil
}

func formatRunSummary(snap runstate.Snapshot, elapsed time.Duration) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "*Framesift run %s finished* (%s, %d workers, %s order)\n",
		snap.RunID, elapsed.Round(time.Second), snap.Workers, snap.Policy)
	fmt.Fprintf(&sb, "Frames: %d/%d processed\n", snap.FramesProcessed, snap.FramesTotal)
	fmt.Fprintf(&sb, "Updated: %d | Skipped (no record): %d | Skipped (duplicate): %d | Failed: %d\n",
		snap.Updated, snap.SkippedNoRecord, snap.SkippedDup, snap.Failed)

	if snap.Failed > 0 || snap.ErrorCount > 0 {
		fmt.Fprintf(&sb, ":warning: %d errors recorded, check the state file", snap.ErrorCount)
	} else {
		sb.WriteString("All frames processed cleanly.")
	}

	return sb.String()
}
