// Package writer applies record updates with retries, schema-adaptive
// field pruning, and a minimal-field fallback. All store mutation in the
// pipeline goes through it.
package writer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jaywalked78/framesift/internal/retry"
	"github.com/jaywalked78/framesift/internal/store"
)

// Writer wraps a store's update calls. Safe for concurrent use as long as
// concurrent calls target distinct records, which the resolver guarantees.
type Writer struct {
	store        store.Store
	policy       retry.Policy
	primaryField string
	logger       *slog.Logger
}

func New(s store.Store, policy retry.Policy, primaryField string, logger *slog.Logger) *Writer {
	if policy.Permanent == nil {
		policy.Permanent = func(err error) bool { return !store.IsRetryable(err) }
	}
	return &Writer{
		store:        s,
		policy:       policy,
		primaryField: primaryField,
		logger:       logger,
	}
}

// Update writes fields to one record. Transient failures are retried with
// backoff; auth failures propagate immediately; unknown-field errors prune
// the named field and retry with the reduced payload. When pruning leaves
// nothing, the primary text value is written through the minimal-field
// fallback.
func (w *Writer) Update(ctx context.Context, recordID string, fields map[string]any) error {
	payload := make(map[string]any, len(fields))
	for k, v := range fields {
		payload[k] = v
	}
	primaryValue := fields[w.primaryField]

	for {
		err := w.policy.Do(ctx, w.logger, "store update", func() error {
			return w.store.Update(ctx, recordID, payload)
		})
		if err == nil {
			return nil
		}
		if store.IsAuth(err) {
			return err
		}

		field, ok := store.UnknownField(err)
		if !ok {
			return err
		}
		if _, present := payload[field]; !present {
			// The store named a field we are not sending; nothing to prune.
			return err
		}

		w.logger.Warn("pruning unknown field from update",
			"record_id", recordID,
			"field", field,
			"remaining", len(payload)-1,
		)
		delete(payload, field)

		if len(payload) == 0 {
			return w.minimalUpdate(ctx, recordID, primaryValue)
		}
	}
}

// minimalUpdate writes just the primary text value, trying progressively
// more generic field names discovered from the record itself.
func (w *Writer) minimalUpdate(ctx context.Context, recordID string, value any) error {
	if value == nil {
		return fmt.Errorf("no fields accepted for record %s and no primary value to fall back to", recordID)
	}

	names, err := w.store.Fields(ctx, recordID)
	if err != nil {
		return fmt.Errorf("discover fields for %s: %w", recordID, err)
	}

	var tried []string
	for _, field := range fieldCandidates(w.primaryField, names) {
		tried = append(tried, field)
		err := w.policy.Do(ctx, w.logger, "minimal update", func() error {
			return w.store.Update(ctx, recordID, map[string]any{field: value})
		})
		if err == nil {
			w.logger.Info("minimal-field fallback succeeded",
				"record_id", recordID,
				"field", field,
			)
			return nil
		}
		if store.IsAuth(err) {
			return err
		}
		if _, ok := store.UnknownField(err); !ok {
			return err
		}
	}
	return fmt.Errorf("record %s rejected all candidate fields %v", recordID, tried)
}

// fieldCandidates orders fallback field names: the configured primary field
// first, then discovered names matched by substring, most specific first.
func fieldCandidates(primary string, discovered []string) []string {
	candidates := []string{primary}
	seen := map[string]bool{primary: true}
	for _, substr := range []string{"text", "data", "content"} {
		for _, name := range discovered {
			if seen[name] {
				continue
			}
			if strings.Contains(strings.ToLower(name), substr) {
				candidates = append(candidates, name)
				seen[name] = true
			}
		}
	}
	return candidates
}

// UpdateBatch writes an arbitrary-size update set, chunked to the store's
// per-request record limit. On an unknown-field error inside a chunk it
// degrades to per-record updates so pruning can work record by record.
func (w *Writer) UpdateBatch(ctx context.Context, updates []store.RecordUpdate) error {
	for start := 0; start < len(updates); start += store.BatchLimit {
		end := start + store.BatchLimit
		if end > len(updates) {
			end = len(updates)
		}
		chunk := updates[start:end]

		err := w.policy.Do(ctx, w.logger, "store batch update", func() error {
			return w.store.UpdateBatch(ctx, chunk)
		})
		if err == nil {
			continue
		}
		if store.IsAuth(err) {
			return err
		}
		if _, ok := store.UnknownField(err); !ok {
			return err
		}

		w.logger.Warn("batch rejected on schema, degrading to per-record updates",
			"chunk_size", len(chunk),
			"error", err,
		)
		for _, u := range chunk {
			if err := w.Update(ctx, u.ID, u.Fields); err != nil {
				return fmt.Errorf("per-record update %s: %w", u.ID, err)
			}
		}
	}
	return nil
}
