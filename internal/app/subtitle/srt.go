package subtitle

import (
	"fmt"
	"strconv"
	"strings"

	apperrors "ai-subtitler/internal/app/errors"
	"ai-subtitler/internal/app/model"
)

// ContentType is used when storing rendered SRT artifacts.
const ContentType = "text/plain; charset=utf-8"

// EncodeSRT renders cues as SRT text. The cue list must be non-empty and
// indexed contiguously from 1.
func EncodeSRT(cues []model.Cue) (string, error) {
	if len(cues) == 0 {
		return "", apperrors.SerializationFailed("no cues to serialize")
	}

	var b strings.Builder
	for i, cue := range cues {
		if cue.Index != i+1 {
			return "", apperrors.SerializationFailed(
				fmt.Sprintf("cue at position %d has index %d, expected %d", i, cue.Index, i+1))
		}
		if cue.Start < 0 {
			return "", apperrors.SerializationFailed(fmt.Sprintf("cue %d starts before zero", cue.Index))
		}
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n",
			cue.Index, FormatTimestamp(cue.Start), FormatTimestamp(cue.End), cue.Text)
	}

	return strings.TrimRight(b.String(), "\n") + "\n", nil
}

// ParseSRT reads SRT text back into cues. Multi-line cue text is joined with spaces.
func ParseSRT(text string) ([]model.Cue, error) {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.TrimPrefix(text, "\ufeff")

	var cues []model.Cue
	for n, block := range strings.Split(strings.TrimSpace(text), "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		lines := strings.Split(block, "\n")
		if len(lines) < 2 {
			return nil, fmt.Errorf("srt block %d: expected index and timing lines", n+1)
		}

		index, err := strconv.Atoi(strings.TrimSpace(lines[0]))
		if err != nil {
			return nil, fmt.Errorf("srt block %d: invalid index %q", n+1, lines[0])
		}

		from, to, ok := strings.Cut(lines[1], "-->")
		if !ok {
			return nil, fmt.Errorf("srt block %d: invalid timing line %q", n+1, lines[1])
		}
		start, err := ParseTimestamp(from)
		if err != nil {
			return nil, fmt.Errorf("srt block %d: %w", n+1, err)
		}
		end, err := ParseTimestamp(to)
		if err != nil {
			return nil, fmt.Errorf("srt block %d: %w", n+1, err)
		}

		cues = append(cues, model.Cue{
			Index: index,
			Start: start,
			End:   end,
			Text:  strings.Join(lines[2:], " "),
		})
	}
	return cues, nil
}
