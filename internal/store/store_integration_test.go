//go:build integration

package store

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/google/uuid"
)

func setupTestStore(t *testing.T) *Postgres {
	t.Helper()
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	ctx := context.Background()
	p, err := NewPostgres(ctx, dbURL)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}

	t.Cleanup(func() {
		p.Close()
	})
	return p
}

func insertTestRecord(t *testing.T, p *Postgres, framePath string) string {
	t.Helper()
	ctx := context.Background()
	id := uuid.New().String()

	_, err := p.pool.Exec(ctx, `
		INSERT INTO frame_records (id, frame_path, fields) VALUES ($1, $2, '{}'::jsonb)`,
		id, framePath)
	if err != nil {
		t.Fatalf("insert test record: %v", err)
	}
	t.Cleanup(func() {
		p.pool.Exec(ctx, "DELETE FROM frame_records WHERE id = $1", id)
	})
	return id
}

func TestIntegration_QueryAndUpdate(t *testing.T) {
	p := setupTestStore(t)
	ctx := context.Background()

	framePath := "/recordings/screen_recording_2024_01_15/frame_" + uuid.New().String()[:8] + ".png"
	id := insertTestRecord(t, p, framePath)

	// Exact-path query finds the record
	recs, err := p.Query(ctx, Filter{PathEquals: framePath})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
	if recs[0].ID != id {
		t.Errorf("expected id %s, got %s", id, recs[0].ID)
	}

	// Update merges into the jsonb field set
	err = p.Update(ctx, id, map[string]any{
		"OCRData": "login screen with username field",
		"Flagged": "false",
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	recs, err = p.Query(ctx, Filter{PathEquals: framePath})
	if err != nil {
		t.Fatalf("Query after update failed: %v", err)
	}
	if got := recs[0].Fields["OCRData"]; got != "login screen with username field" {
		t.Errorf("expected OCRData persisted, got %v", got)
	}
}

func TestIntegration_UnknownFieldRejected(t *testing.T) {
	p := setupTestStore(t)
	ctx := context.Background()

	id := insertTestRecord(t, p, "/recordings/screen_recording_2024_01_15/frame_000002.png")

	err := p.Update(ctx, id, map[string]any{"NoSuchField": "x"})
	if err == nil {
		t.Fatal("expected unknown-field error")
	}
	if field, ok := UnknownField(err); !ok || field != "NoSuchField" {
		t.Errorf("expected UnknownField NoSuchField, got %v", err)
	}
}

func TestIntegration_UpdateMissingRecord(t *testing.T) {
	p := setupTestStore(t)
	ctx := context.Background()

	err := p.Update(ctx, uuid.New().String(), map[string]any{"OCRData": "x"})
	if err == nil {
		t.Fatal("expected not-found error")
	}
	var serr *Error
	if !errors.As(err, &serr) || serr.Kind != KindNotFound {
		t.Errorf("expected KindNotFound, got %v", err)
	}
}
