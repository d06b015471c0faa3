package subtitle

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "ai-subtitler/internal/app/errors"
)

func TestFromSegments(t *testing.T) {
	segments := []Segment{
		{Start: 0, End: 1.2, Text: "  Hello there  "},
		{Start: 1.2, End: 3.4, Text: "line one\nline two"},
		{Start: 3.4, End: 5, Text: "a\r\n\r\nb"},
	}

	cues := FromSegments(segments)

	require.Len(t, cues, 3)
	assert.Equal(t, "Hello there", cues[0].Text)
	assert.Equal(t, "line one line two", cues[1].Text)
	assert.Equal(t, "a b", cues[2].Text)
	for i, cue := range cues {
		assert.Equal(t, i+1, cue.Index)
		if i > 0 {
			assert.LessOrEqual(t, cues[i-1].Start, cue.Start)
		}
	}
}

func TestFromSegmentsEmpty(t *testing.T) {
	assert.Empty(t, FromSegments(nil))
}

func buildNested(channels, alternatives, paragraphs, sentences int) *NestedTranscript {
	t := &NestedTranscript{Results: &NestedResults{Channels: []NestedChannel{}}}
	clock := 0.0
	for c := 0; c < channels; c++ {
		ch := NestedChannel{Alternatives: []NestedAlternative{}}
		for a := 0; a < alternatives; a++ {
			alt := NestedAlternative{Paragraphs: &NestedParagraphs{Paragraphs: []NestedParagraph{}}}
			for p := 0; p < paragraphs; p++ {
				para := NestedParagraph{Sentences: []NestedSentence{}}
				for s := 0; s < sentences; s++ {
					para.Sentences = append(para.Sentences, NestedSentence{
						Text:  fmt.Sprintf("c%d a%d p%d s%d", c, a, p, s),
						Start: clock,
						End:   clock + 0.5,
					})
					clock += 0.5
				}
				alt.Paragraphs.Paragraphs = append(alt.Paragraphs.Paragraphs, para)
			}
			ch.Alternatives = append(ch.Alternatives, alt)
		}
		t.Results.Channels = append(t.Results.Channels, ch)
	}
	return t
}

func TestFromNestedCountsAndOrder(t *testing.T) {
	shapes := [][4]int{{1, 1, 1, 1}, {1, 1, 3, 2}, {2, 1, 2, 3}, {2, 2, 2, 2}, {1, 1, 0, 5}}

	for _, shape := range shapes {
		c, a, p, s := shape[0], shape[1], shape[2], shape[3]
		t.Run(fmt.Sprintf("%dx%dx%dx%d", c, a, p, s), func(t *testing.T) {
			cues, err := FromNested(buildNested(c, a, p, s))
			require.NoError(t, err)
			require.Len(t, cues, c*a*p*s)
			for i, cue := range cues {
				assert.Equal(t, i+1, cue.Index)
			}
			if len(cues) > 0 {
				assert.Equal(t, "c0 a0 p0 s0", cues[0].Text)
				assert.Equal(t, fmt.Sprintf("c%d a%d p%d s%d", c-1, a-1, p-1, s-1), cues[len(cues)-1].Text)
			}
		})
	}
}

func TestDecodeNested(t *testing.T) {
	doc := `{
	  "metadata": {"request_id": "r1"},
	  "results": {"channels": [{"alternatives": [{
	    "transcript": "Hola. Adios.",
	    "paragraphs": {"paragraphs": [
	      {"sentences": [{"text": "Hola.", "start": 0.08, "end": 0.9}]},
	      {"sentences": [{"text": "Adios\namigo.", "start": 1.1, "end": 2.4}]}
	    ]}
	  }]}]}
	}`

	cues, err := DecodeNested([]byte(doc))

	require.NoError(t, err)
	require.Len(t, cues, 2)
	assert.Equal(t, 2, cues[1].Index)
	assert.Equal(t, "Adios amigo.", cues[1].Text)
	assert.InDelta(t, 1.1, cues[1].Start, 1e-9)
}

func TestDecodeNestedMalformed(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		path string
	}{
		{"no results", `{}`, "results"},
		{"no channels", `{"results": {}}`, "results.channels"},
		{"no alternatives", `{"results": {"channels": [{}]}}`, "alternatives"},
		{"no paragraphs block", `{"results": {"channels": [{"alternatives": [{"transcript": "x"}]}]}}`, "paragraphs"},
		{"no paragraphs list", `{"results": {"channels": [{"alternatives": [{"paragraphs": {}}]}]}}`, "paragraphs.paragraphs"},
		{"no sentences", `{"results": {"channels": [{"alternatives": [{"paragraphs": {"paragraphs": [{}]}}]}]}}`, "sentences"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeNested([]byte(tt.doc))
			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrMalformedTranscript)
			assert.True(t, strings.Contains(err.Error(), tt.path), err.Error())
		})
	}
}

func TestDecodeNestedInvalidJSON(t *testing.T) {
	_, err := DecodeNested([]byte(`{"results":`))
	assert.Error(t, err)
}
