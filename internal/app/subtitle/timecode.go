// Package subtitle converts provider transcripts into timed cues and renders
// them as SRT.
package subtitle

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	msPerSecond = 1000
	msPerMinute = 60 * msPerSecond
	msPerHour   = 60 * msPerMinute
)

// FormatTimestamp renders seconds as HH:MM:SS,mmm. Sub-millisecond residue is
// rounded to the nearest millisecond and carried into the larger units; hours
// are unbounded. Negative and NaN inputs format as zero.
func FormatTimestamp(seconds float64) string {
	if math.IsNaN(seconds) || seconds < 0 {
		seconds = 0
	}
	total := int64(math.Round(seconds * msPerSecond))

	h := total / msPerHour
	m := (total % msPerHour) / msPerMinute
	s := (total % msPerMinute) / msPerSecond
	ms := total % msPerSecond

	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}

// ParseTimestamp is the inverse of FormatTimestamp. A '.' millisecond
// separator is accepted as well as ','.
func ParseTimestamp(ts string) (float64, error) {
	ts = strings.TrimSpace(ts)
	parts := strings.Split(ts, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("invalid timestamp %q: expected HH:MM:SS,mmm", ts)
	}

	secPart, msPart, ok := strings.Cut(parts[2], ",")
	if !ok {
		secPart, msPart, ok = strings.Cut(parts[2], ".")
	}
	if !ok || len(msPart) != 3 {
		return 0, fmt.Errorf("invalid timestamp %q: expected 3-digit milliseconds", ts)
	}

	h, err := parseUnit(parts[0], -1)
	if err != nil {
		return 0, fmt.Errorf("invalid timestamp %q hours: %w", ts, err)
	}
	m, err := parseUnit(parts[1], 59)
	if err != nil {
		return 0, fmt.Errorf("invalid timestamp %q minutes: %w", ts, err)
	}
	s, err := parseUnit(secPart, 59)
	if err != nil {
		return 0, fmt.Errorf("invalid timestamp %q seconds: %w", ts, err)
	}
	ms, err := parseUnit(msPart, 999)
	if err != nil {
		return 0, fmt.Errorf("invalid timestamp %q milliseconds: %w", ts, err)
	}

	total := h*msPerHour + m*msPerMinute + s*msPerSecond + ms
	return float64(total) / msPerSecond, nil
}

func parseUnit(v string, max int64) (int64, error) {
	if v == "" {
		return 0, fmt.Errorf("empty field")
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, err
	}
	if n < 0 || (max >= 0 && n > max) {
		return 0, fmt.Errorf("value %d out of range", n)
	}
	return n, nil
}
