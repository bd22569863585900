package parse

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

var (
	partRe   = regexp.MustCompile(`(?i)(\d+)\s*(w|d|h|m)`)
	offsetRe = regexp.MustCompile(`(?i)^(?:\d+\s*(?:w|d|h|m)\s*)+$`)
)

var unitDurations = map[string]time.Duration{
	"w": 7 * 24 * time.Hour,
	"d": 24 * time.Hour,
	"h": time.Hour,
	"m": time.Minute,
}

// Offset is a reminder lead time before a deadline.
type Offset struct {
	// Kind is the normalized label, e.g. "1d" or "1d12h".
	Kind   string
	Before time.Duration
}

// ParseOffset parses lead times such as "7d", "2h", "1d12h" or "30m".
func ParseOffset(raw string) (Offset, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if !offsetRe.MatchString(s) {
		return Offset{}, fmt.Errorf("unable to parse reminder offset: %q", raw)
	}

	var total time.Duration
	var kind strings.Builder
	for _, m := range partRe.FindAllStringSubmatch(s, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return Offset{}, fmt.Errorf("invalid number in offset %q: %w", raw, err)
		}
		total += time.Duration(n) * unitDurations[m[2]]
		kind.WriteString(m[1])
		kind.WriteString(m[2])
	}

	if total <= 0 {
		return Offset{}, fmt.Errorf("reminder offset must be positive: %q", raw)
	}
	return Offset{Kind: kind.String(), Before: total}, nil
}

// ParseOffsets parses a list of lead times, longest first. Duplicate kinds
// are dropped.
func ParseOffsets(raw []string) ([]Offset, error) {
	seen := make(map[string]bool, len(raw))
	offsets := make([]Offset, 0, len(raw))
	for _, r := range raw {
		o, err := ParseOffset(r)
		if err != nil {
			return nil, err
		}
		if seen[o.Kind] {
			continue
		}
		seen[o.Kind] = true
		offsets = append(offsets, o)
	}
	sort.SliceStable(offsets, func(i, j int) bool {
		return offsets[i].Before > offsets[j].Before
	})
	return offsets, nil
}
