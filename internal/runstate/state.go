// Package runstate persists run progress to a JSON file so an interrupted
// run can resume without reprocessing frames. It is also the data source
// for the status API. Transient observability state only; the record
// store stays the single source of truth.
package runstate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// State tracks one processing run. Safe for concurrent use by workers.
type State struct {
	RunID           uuid.UUID `json:"run_id"`
	StartedAt       time.Time `json:"started_at"`
	LastProcessedAt time.Time `json:"last_processed_at"`
	Policy          string    `json:"policy"`
	Workers         int       `json:"workers"`
	FramesTotal     int       `json:"frames_total"`
	FramesProcessed []string  `json:"frames_processed"`
	Updated         int       `json:"updated"`
	SkippedNoRecord int       `json:"skipped_no_record"`
	SkippedDup      int       `json:"skipped_duplicate"`
	Failed          int       `json:"failed"`
	Errors          []string  `json:"errors"`

	mu        sync.Mutex
	path      string          // not serialized
	processed map[string]bool // index over FramesProcessed
}

// Load reads the state file at path, or starts a fresh run when the file
// does not exist.
func Load(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &State{
				RunID:     uuid.New(),
				StartedAt: time.Now().UTC(),
				path:      path,
				processed: make(map[string]bool),
			}, nil
		}
		return nil, fmt.Errorf("read state: %w", err)
	}

	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse state: %w", err)
	}
	s.path = path
	s.processed = make(map[string]bool, len(s.FramesProcessed))
	for _, f := range s.FramesProcessed {
		s.processed[f] = true
	}
	return &s, nil
}

// Save persists the state to disk. The lock is held across the file
// write so concurrent saves from different workers cannot interleave.
func (s *State) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.LastProcessedAt = time.Now().UTC()
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	return os.WriteFile(s.path, data, 0o644)
}

// IsProcessed reports whether the frame was completed in a prior run.
func (s *State) IsProcessed(frame string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processed[frame]
}

// MarkProcessed records a frame outcome under the given status counter.
func (s *State) MarkProcessed(frame, status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.processed[frame] {
		s.processed[frame] = true
		s.FramesProcessed = append(s.FramesProcessed, frame)
	}
	switch status {
	case "updated":
		s.Updated++
	case "skipped_no_record":
		s.SkippedNoRecord++
	case "skipped_duplicate":
		s.SkippedDup++
	default:
		s.Failed++
	}
}

// AddError records a processing error string.
func (s *State) AddError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Errors = append(s.Errors, msg)
}

// Snapshot is a point-in-time view of run progress for the status API.
type Snapshot struct {
	RunID           uuid.UUID `json:"run_id"`
	StartedAt       time.Time `json:"started_at"`
	LastProcessedAt time.Time `json:"last_processed_at"`
	Policy          string    `json:"policy"`
	Workers         int       `json:"workers"`
	FramesTotal     int       `json:"frames_total"`
	FramesProcessed int       `json:"frames_processed"`
	Updated         int       `json:"updated"`
	SkippedNoRecord int       `json:"skipped_no_record"`
	SkippedDup      int       `json:"skipped_duplicate"`
	Failed          int       `json:"failed"`
	ErrorCount      int       `json:"error_count"`
}

// Snapshot returns a copy safe to serve concurrently.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		RunID:           s.RunID,
		StartedAt:       s.StartedAt,
		LastProcessedAt: s.LastProcessedAt,
		Policy:          s.Policy,
		Workers:         s.Workers,
		FramesTotal:     s.FramesTotal,
		FramesProcessed: len(s.FramesProcessed),
		Updated:         s.Updated,
		SkippedNoRecord: s.SkippedNoRecord,
		SkippedDup:      s.SkippedDup,
		Failed:          s.Failed,
		ErrorCount:      len(s.Errors),
	}
}
