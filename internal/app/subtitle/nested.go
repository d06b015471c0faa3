package subtitle

import (
	"encoding/json"
	"fmt"

	apperrors "ai-subtitler/internal/app/errors"
	"ai-subtitler/internal/app/model"
)

// NestedTranscript is the channel/alternative/paragraph/sentence transcript shape.
// Absent levels decode to nil and are reported as malformed; present but empty
// lists are valid and simply yield no cues.
type NestedTranscript struct {
	Results *NestedResults `json:"results"`
}

type NestedResults struct {
	Channels []NestedChannel `json:"channels"`
}

type NestedChannel struct {
	Alternatives []NestedAlternative `json:"alternatives"`
}

type NestedAlternative struct {
	Transcript string            `json:"transcript"`
	Paragraphs *NestedParagraphs `json:"paragraphs"`
}

type NestedParagraphs struct {
	Paragraphs []NestedParagraph `json:"paragraphs"`
}

type NestedParagraph struct {
	Sentences []NestedSentence `json:"sentences"`
}

type NestedSentence struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// DecodeNested parses a nested transcript document and flattens it into cues.
func DecodeNested(data []byte) ([]model.Cue, error) {
	var transcript NestedTranscript
	if err := json.Unmarshal(data, &transcript); err != nil {
		return nil, apperrors.Wrap(err, "decode nested transcript")
	}
	return FromNested(&transcript)
}

// FromNested walks channels, alternatives, paragraphs and sentences in document
// order, emitting one cue per sentence with a single running index.
func FromNested(t *NestedTranscript) ([]model.Cue, error) {
	if t == nil || t.Results == nil {
		return nil, apperrors.MalformedTranscript("results")
	}
	if t.Results.Channels == nil {
		return nil, apperrors.MalformedTranscript("results.channels")
	}

	var cues []model.Cue
	for ci, channel := range t.Results.Channels {
		if channel.Alternatives == nil {
			return nil, apperrors.MalformedTranscript(fmt.Sprintf("results.channels[%d].alternatives", ci))
		}
		for ai, alt := range channel.Alternatives {
			path := fmt.Sprintf("results.channels[%d].alternatives[%d].paragraphs", ci, ai)
			if alt.Paragraphs == nil {
				return nil, apperrors.MalformedTranscript(path)
			}
			if alt.Paragraphs.Paragraphs == nil {
				return nil, apperrors.MalformedTranscript(path + ".paragraphs")
			}
			for pi, para := range alt.Paragraphs.Paragraphs {
				if para.Sentences == nil {
					return nil, apperrors.MalformedTranscript(fmt.Sprintf("%s.paragraphs[%d].sentences", path, pi))
				}
				for _, sentence := range para.Sentences {
					cues = append(cues, model.Cue{
						Index: len(cues) + 1,
						Start: sentence.Start,
						End:   sentence.End,
						Text:  normalizeText(sentence.Text),
					})
				}
			}
		}
	}
	return cues, nil
}
