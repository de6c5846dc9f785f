package worker

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/jaywalked78/framesift/internal/processor"
	"github.com/jaywalked78/framesift/internal/runstate"
)

// fakeBatchProcessor marks every frame updated, optionally failing whole
// batches for one worker.
type fakeBatchProcessor struct {
	mu         sync.Mutex
	processed  []string
	credential string
	failWith   error
}

func (f *fakeBatchProcessor) ProcessBatch(ctx context.Context, paths []string) ([]processor.Outcome, error) {
	f.mu.Lock()
	f.processed = append(f.processed, paths...)
	f.mu.Unlock()

	if f.failWith != nil {
		return nil, f.failWith
	}
	outcomes := make([]processor.Outcome, len(paths))
	for i, p := range paths {
		outcomes[i] = processor.Outcome{Frame: p, Status: processor.StatusUpdated}
	}
	return outcomes, nil
}

func testConfig(workers int) Config {
	return Config{
		Workers:     workers,
		Policy:      PolicyAlphabetical,
		Stagger:     time.Millisecond,
		BatchSize:   10,
		Credentials: []string{"key-1", "key-2"},
	}
}

func TestPool_AllWorkersClean(t *testing.T) {
	var mu sync.Mutex
	made := map[int]*fakeBatchProcessor{}
	factory := func(idx int, cred string, _ *rate.Limiter) BatchProcessor {
		bp := &fakeBatchProcessor{credential: cred}
		mu.Lock()
		made[idx] = bp
		mu.Unlock()
		return bp
	}

	pool := NewPool(testConfig(3), factory, nil, slog.Default())
	summary, err := pool.Run(context.Background(), framePaths(25))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !summary.OK() {
		t.Fatalf("expected clean run, errors: %v", summary.WorkerErrors)
	}
	if summary.Updated != 25 {
		t.Errorf("expected 25 updated, got %d", summary.Updated)
	}

	// Disjoint coverage across workers.
	seen := map[string]bool{}
	for _, bp := range made {
		for _, f := range bp.processed {
			if seen[f] {
				t.Errorf("frame %s processed by two workers", f)
			}
			seen[f] = true
		}
	}
	if len(seen) != 25 {
		t.Errorf("expected 25 frames covered, got %d", len(seen))
	}
}

func TestPool_CredentialRotation(t *testing.T) {
	var mu sync.Mutex
	creds := map[int]string{}
	factory := func(idx int, cred string, _ *rate.Limiter) BatchProcessor {
		mu.Lock()
		creds[idx] = cred
		mu.Unlock()
		return &fakeBatchProcessor{}
	}

	pool := NewPool(testConfig(4), factory, nil, slog.Default())
	if _, err := pool.Run(context.Background(), framePaths(8)); err != nil {
		t.Fatal(err)
	}

	// credentialIndex = ((workerIndex-1) mod poolSize) + 1
	want := map[int]string{1: "key-1", 2: "key-2", 3: "key-1", 4: "key-2"}
	for idx, cred := range want {
		if creds[idx] != cred {
			t.Errorf("worker %d: expected %s, got %s", idx, cred, creds[idx])
		}
	}
}

func TestPool_SharedLimiterPerCredential(t *testing.T) {
	var mu sync.Mutex
	limiters := map[int]*rate.Limiter{}
	factory := func(idx int, _ string, l *rate.Limiter) BatchProcessor {
		mu.Lock()
		limiters[idx] = l
		mu.Unlock()
		return &fakeBatchProcessor{}
	}

	cfg := testConfig(4)
	cfg.RatePerSec = 5
	pool := NewPool(cfg, factory, nil, slog.Default())
	if _, err := pool.Run(context.Background(), framePaths(8)); err != nil {
		t.Fatal(err)
	}

	if limiters[1] == nil || limiters[2] == nil {
		t.Fatal("expected limiters when a rate is configured")
	}
	if limiters[1] != limiters[3] || limiters[2] != limiters[4] {
		t.Error("workers on the same credential must share one limiter")
	}
	if limiters[1] == limiters[2] {
		t.Error("different credentials must not share a limiter")
	}
}

func TestPool_WorkerFailureReported(t *testing.T) {
	authErr := errors.New("store credential rejected")
	factory := func(idx int, _ string, _ *rate.Limiter) BatchProcessor {
		if idx == 2 {
			return &fakeBatchProcessor{failWith: authErr}
		}
		return &fakeBatchProcessor{}
	}

	pool := NewPool(testConfig(3), factory, nil, slog.Default())
	summary, err := pool.Run(context.Background(), framePaths(25))
	if err != nil {
		t.Fatal(err)
	}
	if summary.OK() {
		t.Fatal("expected overall failure when one worker fails")
	}
	if _, ok := summary.WorkerErrors[2]; !ok {
		t.Errorf("expected worker 2 in errors, got %v", summary.WorkerErrors)
	}
	if _, ok := summary.WorkerErrors[1]; ok {
		t.Error("healthy workers must not be reported as failed")
	}
}

func TestPool_ResumeSkipsProcessed(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "state.json")
	state, err := runstate.Load(statePath)
	if err != nil {
		t.Fatal(err)
	}
	paths := framePaths(10)
	// Pretend half the frames completed in an earlier run.
	segments, _ := Partition(paths, 1, PolicyAlphabetical)
	for _, f := range segments[0].Frames[:5] {
		state.MarkProcessed(f, "updated")
	}

	bp := &fakeBatchProcessor{}
	factory := func(int, string, *rate.Limiter) BatchProcessor { return bp }

	cfg := testConfig(1)
	pool := NewPool(cfg, factory, state, slog.Default())
	summary, err := pool.Run(context.Background(), paths)
	if err != nil {
		t.Fatal(err)
	}
	if len(bp.processed) != 5 {
		t.Errorf("expected 5 remaining frames, processed %d", len(bp.processed))
	}
	if summary.Updated != 5 {
		t.Errorf("expected 5 updated this run, got %d", summary.Updated)
	}
}
