package frames

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Frame is a single still image extracted from a screen recording,
// identified by its file path. Frames are read-only inputs; the pipeline
// never creates or mutates them.
type Frame struct {
	Path     string    // as given by the frame source
	Norm     string    // normalized: forward slashes, trailing slash stripped
	Base     string    // base filename, e.g. "frame_000123.png"
	Sequence int       // parsed from the filename, -1 if absent
	Recorded time.Time // parsed from the containing folder name, zero if absent
}

var (
	seqRe = regexp.MustCompile(`(?i)frame[_-]?(\d+)`)
	// folder names look like "screen_recording_2025_04_07_at_9_42_11_am"
	dateRe = regexp.MustCompile(`(\d{4})[_-](\d{2})[_-](\d{2})`)
)

// Parse derives a Frame's ordering and matching tokens from its path.
func Parse(path string) Frame {
	norm := NormalizePath(path)
	f := Frame{
		Path:     path,
		Norm:     norm,
		Base:     filepath.Base(norm),
		Sequence: -1,
	}
	f.Sequence = SequenceNumber(f.Base)
	f.Recorded = RecordingDate(filepath.Dir(norm))
	return f
}

// NormalizePath converts separators to forward slashes and strips any
// trailing slash so paths compare stably against store values.
func NormalizePath(path string) string {
	p := strings.ReplaceAll(path, "\\", "/")
	for len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimSuffix(p, "/")
	}
	return p
}

// SequenceNumber extracts the frame sequence number from a filename like
// "frame_000123.png". Returns -1 when no sequence token is present.
func SequenceNumber(name string) int {
	m := seqRe.FindStringSubmatch(name)
	if m == nil {
		return -1
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return -1
	}
	return n
}

// RecordingDate extracts the recording date encoded in a directory path,
// e.g. ".../screen_recording_2025_04_07_at_9_42_11_am". Returns the zero
// time when no date token is present.
func RecordingDate(dir string) time.Time {
	m := dateRe.FindStringSubmatch(filepath.Base(NormalizePath(dir)))
	if m == nil {
		// fall back to any path segment carrying a date token
		m = dateRe.FindStringSubmatch(NormalizePath(dir))
	}
	if m == nil {
		return time.Time{}
	}
	y, _ := strconv.Atoi(m[1])
	mo, _ := strconv.Atoi(m[2])
	d, _ := strconv.Atoi(m[3])
	if mo < 1 || mo > 12 || d < 1 || d > 31 {
		return time.Time{}
	}
	return time.Date(y, time.Month(mo), d, 0, 0, 0, 0, time.UTC)
}

// IsRecordingFolder reports whether a directory name looks like a screen
// recording folder.
func IsRecordingFolder(name string) bool {
	lower := strings.ToLower(name)
	return strings.Contains(lower, "screen_recording") || strings.Contains(lower, "screenrecording")
}

// LoadList reads a newline-delimited frame list file produced by the
// discovery layer. Blank lines and lines starting with '#' are skipped.
func LoadList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open frame list: %w", err)
	}
	defer f.Close()

	var paths []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		paths = append(paths, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read frame list: %w", err)
	}
	return paths, nil
}
