package frames

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"/data/recordings/frame_0001.png", "/data/recordings/frame_0001.png"},
		{"/data/recordings/", "/data/recordings"},
		{`C:\frames\frame_2.png`, "C:/frames/frame_2.png"},
		{"/data//", "/data"},
	}
	for _, tt := range tests {
		if got := NormalizePath(tt.in); got != tt.want {
			t.Errorf("NormalizePath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSequenceNumber(t *testing.T) {
	tests := []struct {
		name string
		want int
	}{
		{"frame_000123.png", 123},
		{"frame-7.jpg", 7},
		{"Frame_0042.png", 42},
		{"screenshot.png", -1},
	}
	for _, tt := range tests {
		if got := SequenceNumber(tt.name); got != tt.want {
			t.Errorf("SequenceNumber(%q) = %d, want %d", tt.name, got, tt.want)
		}
	}
}

func TestRecordingDate(t *testing.T) {
	dir := "/data/screen_recording_2025_04_07_at_9_42_11_am"
	got := RecordingDate(dir)
	want := time.Date(2025, time.April, 7, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("RecordingDate(%q) = %v, want %v", dir, got, want)
	}

	if !RecordingDate("/no/date/here").IsZero() {
		t.Error("expected zero time for undated dir")
	}
}

func TestParse(t *testing.T) {
	f := Parse("/captures/screen_recording_2025_04_07_at_9_42_11_am/frame_000009.png")
	if f.Base != "frame_000009.png" {
		t.Errorf("base = %q", f.Base)
	}
	if f.Sequence != 9 {
		t.Errorf("sequence = %d, want 9", f.Sequence)
	}
	if f.Recorded.IsZero() {
		t.Error("expected recorded date")
	}
}

func TestLoadList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frames.txt")
	content := "# frame list\n/a/frame_1.png\n\n/a/frame_2.png\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	paths, err := LoadList(path)
	if err != nil {
		t.Fatalf("LoadList: %v", err)
	}
	if len(paths) != 2 {
		t.Fatalf("expected 2 paths, got %d: %v", len(paths), paths)
	}
	if paths[0] != "/a/frame_1.png" || paths[1] != "/a/frame_2.png" {
		t.Errorf("unexpected paths %v", paths)
	}
}
