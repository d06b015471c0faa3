package subtitle

import (
	"regexp"
	"strings"

	"ai-subtitler/internal/app/model"
)

var newlineRun = regexp.MustCompile(`(\r?\n)+`)

// Segment is one entry of a flat, segment-shaped transcript.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// FromSegments emits one cue per segment in input order, indexed from 1.
func FromSegments(segments []Segment) []model.Cue {
	cues := make([]model.Cue, 0, len(segments))
	for i, seg := range segments {
		cues = append(cues, model.Cue{
			Index: i + 1,
			Start: seg.Start,
			End:   seg.End,
			Text:  normalizeText(seg.Text),
		})
	}
	return cues
}

func normalizeText(text string) string {
	return strings.TrimSpace(newlineRun.ReplaceAllString(text, " "))
}
