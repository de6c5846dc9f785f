package store

import (
	"context"
	"errors"
	"fmt"
)

// Record is an entity in the external record store. Its field set is
// discovered at runtime per record, not fixed by this package.
type Record struct {
	ID     string
	Fields map[string]any
}

// String returns the string value of a field, or "" when absent.
func (r Record) String(name string) string {
	if v, ok := r.Fields[name].(string); ok {
		return v
	}
	return ""
}

// FieldNames returns the record's field names in unspecified order.
func (r Record) FieldNames() []string {
	names := make([]string, 0, len(r.Fields))
	for n := range r.Fields {
		names = append(names, n)
	}
	return names
}

// Filter selects records by their path field. Exactly one of the two
// criteria is normally set per query.
type Filter struct {
	PathEquals   string
	PathContains string
}

// RecordUpdate pairs a record ID with the fields to write.
type RecordUpdate struct {
	ID     string
	Fields map[string]any
}

// BatchLimit is the store's documented per-request record limit.
const BatchLimit = 10

// Store is the record store contract. Query never mutates the store.
// Implementations must report unknown-field errors naming the offending
// field and must report auth errors distinguishably from transient ones.
type Store interface {
	Query(ctx context.Context, f Filter) ([]Record, error)
	Update(ctx context.Context, id string, fields map[string]any) error
	UpdateBatch(ctx context.Context, updates []RecordUpdate) error
	Fields(ctx context.Context, id string) ([]string, error)
}

// ErrorKind classifies store failures for retry decisions.
type ErrorKind int

const (
	KindTransient ErrorKind = iota
	KindAuth
	KindUnknownField
	KindNotFound
	KindRateLimited
	KindInvalid // validation failure other than an unknown field; never retried
)

// Error is a classified store failure. Field is set for KindUnknownField.
type Error struct {
	Kind   ErrorKind
	Field  string
	Status int
	Msg    string
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindAuth:
		return fmt.Sprintf("store auth error (%d): %s", e.Status, e.Msg)
	case KindUnknownField:
		return fmt.Sprintf("store unknown field %q: %s", e.Field, e.Msg)
	case KindNotFound:
		return fmt.Sprintf("store record not found: %s", e.Msg)
	case KindRateLimited:
		return fmt.Sprintf("store rate limited: %s", e.Msg)
	case KindInvalid:
		return fmt.Sprintf("store rejected update (%d): %s", e.Status, e.Msg)
	default:
		return fmt.Sprintf("store error (%d): %s", e.Status, e.Msg)
	}
}

// IsAuth reports whether err is a credential failure. Auth errors must
// never be retried.
func IsAuth(err error) bool {
	var se *Error
	return errors.As(err, &se) && se.Kind == KindAuth
}

// UnknownField returns the offending field name when err is an
// unknown-field error.
func UnknownField(err error) (string, bool) {
	var se *Error
	if errors.As(err, &se) && se.Kind == KindUnknownField {
		return se.Field, true
	}
	return "", false
}

// IsRetryable reports whether err is worth retrying with backoff.
// Rate-limit responses and transient/5xx-class failures qualify;
// anything unclassified is treated as transient.
func IsRetryable(err error) bool {
	var se *Error
	if !errors.As(err, &se) {
		return true
	}
	return se.Kind == KindTransient || se.Kind == KindRateLimited
}
