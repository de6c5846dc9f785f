// Package resolver maps frame file paths to record identifiers in the
// store. It only reads; a frame with no confident match is skipped by the
// caller, never given a new record.
package resolver

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/jaywalked78/framesift/internal/frames"
	"github.com/jaywalked78/framesift/internal/store"
)

// ErrNotFound means no record confidently corresponds to the frame.
var ErrNotFound = errors.New("no record found for frame")

// fuzzyThreshold is the minimum fuzzy score accepted as a match.
// Empirically tuned against the noisy recording-folder naming scheme.
const fuzzyThreshold = 10

type Resolver struct {
	store     store.Store
	pathField string
	logger    *slog.Logger
}

func New(s store.Store, pathField string, logger *slog.Logger) *Resolver {
	return &Resolver{store: s, pathField: pathField, logger: logger}
}

// Resolve returns the ID of the single record corresponding to framePath,
// or ErrNotFound. Matching stages run in order and stop at the first
// confident hit: exact path, unique basename, scored fuzzy, recording
// folder token. Several store queries per frame is the accepted cost of
// correctness over the noisy path naming.
func (r *Resolver) Resolve(ctx context.Context, framePath string) (string, error) {
	f := frames.Parse(framePath)

	// Stage 1: exact normalized-path match.
	recs, err := r.store.Query(ctx, store.Filter{PathEquals: f.Norm})
	if err != nil {
		return "", err
	}
	if len(recs) == 1 {
		return recs[0].ID, nil
	}
	if len(recs) > 1 {
		r.logger.Warn("multiple exact path matches, continuing to scoring",
			"frame", framePath,
			"matches", len(recs),
		)
	}

	// Stage 2: unique basename match.
	byName, err := r.store.Query(ctx, store.Filter{PathContains: f.Base})
	if err != nil {
		return "", err
	}
	if len(byName) == 1 {
		return byName[0].ID, nil
	}

	// Stage 3: scored fuzzy match over basename and parent-dir candidates.
	parent := filepath.Base(filepath.Dir(f.Norm))
	candidates := mergeRecords(recs, byName)
	if parent != "." && parent != "/" {
		byParent, err := r.store.Query(ctx, store.Filter{PathContains: parent})
		if err != nil {
			return "", err
		}
		candidates = mergeRecords(candidates, byParent)
	}

	if id, ok := r.bestFuzzy(f, candidates); ok {
		return id, nil
	}

	// Stage 4: recording-folder token, last resort.
	if frames.IsRecordingFolder(parent) {
		for _, rec := range candidates {
			if strings.Contains(frames.NormalizePath(rec.String(r.pathField)), parent) {
				r.logger.Info("resolved via recording folder token",
					"frame", framePath,
					"record_id", rec.ID,
					"folder", parent,
				)
				return rec.ID, nil
			}
		}
	}

	return "", ErrNotFound
}

func (r *Resolver) bestFuzzy(f frames.Frame, candidates []store.Record) (string, bool) {
	bestScore := 0
	bestID := ""
	for _, rec := range candidates {
		s := score(f, frames.NormalizePath(rec.String(r.pathField)))
		if s > bestScore {
			bestScore = s
			bestID = rec.ID
		}
	}
	if bestScore > fuzzyThreshold {
		r.logger.Debug("fuzzy match accepted",
			"frame", f.Path,
			"record_id", bestID,
			"score", bestScore,
		)
		return bestID, true
	}
	return "", false
}

// score rates how well a record path matches a frame. Components:
// basename equality +10, containment +15/+20, +2 per path segment aligned
// at the same position, sequence-number equality +15, recording-date
// equality +10.
func score(f frames.Frame, recPath string) int {
	if recPath == "" {
		return 0
	}
	s := 0

	if filepath.Base(recPath) == f.Base {
		s += 10
	}

	switch {
	case strings.Contains(recPath, f.Norm):
		s += 20
	case strings.Contains(f.Norm, recPath):
		s += 15
	}

	frameSegs := strings.Split(strings.Trim(f.Norm, "/"), "/")
	recSegs := strings.Split(strings.Trim(recPath, "/"), "/")
	for i := 0; i < len(frameSegs) && i < len(recSegs); i++ {
		if frameSegs[i] == recSegs[i] {
			s += 2
		}
	}

	if f.Sequence >= 0 && frames.SequenceNumber(filepath.Base(recPath)) == f.Sequence {
		s += 15
	}

	if !f.Recorded.IsZero() {
		if d := frames.RecordingDate(filepath.Dir(recPath)); !d.IsZero() && d.Equal(f.Recorded) {
			s += 10
		}
	}

	return s
}

func mergeRecords(a, b []store.Record) []store.Record {
	seen := make(map[string]bool, len(a))
	out := make([]store.Record, 0, len(a)+len(b))
	for _, r := range a {
		if !seen[r.ID] {
			seen[r.ID] = true
			out = append(out, r)
		}
	}
	for _, r := range b {
		if !seen[r.ID] {
			seen[r.ID] = true
			out = append(out, r)
		}
	}
	return out
}
