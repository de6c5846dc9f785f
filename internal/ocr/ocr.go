// Package ocr wraps an external OCR engine invocation with a hard
// deadline. Timeouts and engine failures surface as sentinel text rather
// than errors so downstream stages always have something to persist.
package ocr

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// SentinelPrefix starts every sentinel string this package produces.
const SentinelPrefix = "OCR processing error:"

// DefaultTimeout bounds a single OCR invocation.
const DefaultTimeout = 60 * time.Second

// Executor runs an external OCR binary (tesseract-compatible: image path
// in, recognized text on stdout).
type Executor struct {
	Binary  string
	Args    []string // extra args placed after the image path
	Timeout time.Duration
	logger  *slog.Logger
}

func NewExecutor(binary string, args []string, timeout time.Duration, logger *slog.Logger) *Executor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Executor{Binary: binary, Args: args, Timeout: timeout, logger: logger}
}

// Run recognizes text in the image at framePath. It always returns
// non-empty text: on timeout the engine process is killed and a sentinel
// string is returned; other failures produce a sentinel as well. The
// sentinel is valid pipeline input, not an error.
func (e *Executor) Run(ctx context.Context, framePath string) string {
	ctx, cancel := context.WithTimeout(ctx, e.Timeout)
	defer cancel()

	args := append([]string{framePath, "stdout"}, e.Args...)
	cmd := exec.CommandContext(ctx, e.Binary, args...)
	// Don't wait on a wedged engine after the kill signal.
	cmd.WaitDelay = 5 * time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	if ctx.Err() == context.DeadlineExceeded {
		e.logger.Warn("ocr timed out, engine killed",
			"frame", framePath,
			"timeout", e.Timeout,
		)
		return TimeoutSentinel(e.Timeout)
	}
	if err != nil {
		e.logger.Warn("ocr failed",
			"frame", framePath,
			"error", err,
			"stderr", strings.TrimSpace(stderr.String()),
		)
		return fmt.Sprintf("%s %v", SentinelPrefix, err)
	}

	text := strings.TrimSpace(stdout.String())
	e.logger.Debug("ocr complete",
		"frame", framePath,
		"chars", len(text),
		"elapsed", elapsed,
	)
	if text == "" {
		return SentinelPrefix + " no text recognized"
	}
	return text
}

// TimeoutSentinel is the exact string recorded when recognition exceeds
// the deadline.
func TimeoutSentinel(timeout time.Duration) string {
	return fmt.Sprintf("%s timed out after %ds", SentinelPrefix, int(timeout.Seconds()))
}

// IsSentinel reports whether text is an OCR error sentinel rather than
// recognized content.
func IsSentinel(text string) bool {
	return strings.HasPrefix(text, SentinelPrefix)
}
