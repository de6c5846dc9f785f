package store

import (
	"context"

	"golang.org/x/time/rate"
)

// limited gates every store call through a shared rate limiter. Workers
// on the same credential share one limiter, so the per-key request rate
// holds regardless of worker count.
type limited struct {
	inner   Store
	limiter *rate.Limiter
}

// Limit wraps s with the given limiter. A nil limiter returns s unchanged.
func Limit(s Store, l *rate.Limiter) Store {
	if l == nil {
		return s
	}
	return &limited{inner: s, limiter: l}
}

func (s *limited) Query(ctx context.Context, f Filter) ([]Record, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return s.inner.Query(ctx, f)
}

func (s *limited) Update(ctx context.Context, id string, fields map[string]any) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	return s.inner.Update(ctx, id, fields)
}

func (s *limited) UpdateBatch(ctx context.Context, updates []RecordUpdate) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	return s.inner.UpdateBatch(ctx, updates)
}

func (s *limited) Fields(ctx context.Context, id string) ([]string, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return s.inner.Fields(ctx, id)
}
