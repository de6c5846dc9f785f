package worker

import (
	"fmt"
	"sort"

	"github.com/jaywalked78/framesift/internal/frames"
)

// Policy selects the ordering applied before the frame list is split.
type Policy string

const (
	PolicyChronological Policy = "chronological"
	PolicyReverse       Policy = "reverse"
	PolicyAlphabetical  Policy = "alphabetical"
)

// ParsePolicy validates a policy name from configuration.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case PolicyChronological, PolicyReverse, PolicyAlphabetical:
		return Policy(s), nil
	default:
		return "", fmt.Errorf("unknown order policy %q", s)
	}
}

// Segment is an ordered slice of the frame list owned by one worker.
// Immutable once created.
type Segment struct {
	Index  int // 1-based worker index
	Frames []string
}

// Partition orders paths per the policy and splits them into n contiguous
// segments of ceiling-division size. Segments are pairwise disjoint and
// their concatenation is exactly the ordered input.
func Partition(paths []string, n int, policy Policy) ([]Segment, error) {
	if n < 1 {
		return nil, fmt.Errorf("worker count must be >= 1, got %d", n)
	}

	ordered := make([]string, len(paths))
	copy(ordered, paths)

	switch policy {
	case PolicyChronological:
		sortChronological(ordered, false)
	case PolicyReverse:
		sortChronological(ordered, true)
	case PolicyAlphabetical:
		sort.Strings(ordered)
	default:
		return nil, fmt.Errorf("unknown order policy %q", policy)
	}

	if n > len(ordered) && len(ordered) > 0 {
		n = len(ordered)
	}

	size := (len(ordered) + n - 1) / n
	var segments []Segment
	for i := 0; i < n; i++ {
		start := i * size
		if start >= len(ordered) {
			break
		}
		end := start + size
		if end > len(ordered) {
			end = len(ordered)
		}
		segments = append(segments, Segment{Index: i + 1, Frames: ordered[start:end]})
	}
	return segments, nil
}

// sortChronological orders by recording date, then frame sequence, then
// path as the tiebreak. Frames without tokens sort before dated ones so
// they are not silently interleaved.
func sortChronological(paths []string, descending bool) {
	parsed := make(map[string]frames.Frame, len(paths))
	for _, p := range paths {
		parsed[p] = frames.Parse(p)
	}
	sort.SliceStable(paths, func(i, j int) bool {
		a, b := parsed[paths[i]], parsed[paths[j]]
		less := chronoLess(a, b)
		if descending {
			return chronoLess(b, a)
		}
		return less
	})
}

func chronoLess(a, b frames.Frame) bool {
	if !a.Recorded.Equal(b.Recorded) {
		return a.Recorded.Before(b.Recorded)
	}
	if a.Sequence != b.Sequence {
		return a.Sequence < b.Sequence
	}
	return a.Norm < b.Norm
}
