package whisper

import (
	"context"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"ai-subtitler/internal/app/api/provider"
	"ai-subtitler/internal/app/common"
	"ai-subtitler/internal/app/model"
	"ai-subtitler/internal/app/subtitle"
)

// ProviderName identifies OpenAI Whisper in logs and metrics.
const ProviderName = "openai"

// Provider transcribes audio with the OpenAI transcription endpoint in
// verbose_json mode and converts the returned segments into cues.
type Provider struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

// NewProvider creates the segment-shaped provider. An empty model defaults to whisper-1.
func NewProvider(client *openai.Client, modelName string, logger *zap.Logger) *Provider {
	if modelName == "" {
		modelName = openai.Whisper1
	}
	return &Provider{client: client, model: modelName, logger: common.OrNop(logger)}
}

func (p *Provider) Name() string {
	return ProviderName
}

// Transcribe uploads audioPath and returns one cue per transcript segment.
func (p *Provider) Transcribe(ctx context.Context, audioPath, language string) ([]model.Cue, error) {
	req := openai.AudioRequest{
		Model:    p.model,
		FilePath: audioPath,
		Language: language,
		Format:   openai.AudioResponseFormatVerboseJSON,
	}

	resp, err := p.client.CreateTranscription(ctx, req)
	if err != nil {
		return nil, p.handleAPIError(err)
	}

	segments := make([]subtitle.Segment, 0, len(resp.Segments))
	for _, seg := range resp.Segments {
		segments = append(segments, subtitle.Segment{Start: seg.Start, End: seg.End, Text: seg.Text})
	}
	if len(segments) == 0 && resp.Text != "" {
		segments = append(segments, subtitle.Segment{Start: 0, End: resp.Duration, Text: resp.Text})
	}

	p.logger.Debug("openai transcription received",
		zap.String("model", p.model),
		zap.String("language", resp.Language),
		zap.Float64("duration", resp.Duration),
		zap.Int("segments", len(segments)))

	return subtitle.FromSegments(segments), nil
}

func (p *Provider) handleAPIError(err error) error {
	pe := &provider.ProviderError{Provider: ProviderName, Cause: fmt.Errorf("createTranscription failed: %w", err)}

	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		pe.StatusCode = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		pe.StatusCode = reqErr.HTTPStatusCode
	}
	pe.Retryable = pe.StatusCode == 429 || pe.StatusCode >= 500 || pe.StatusCode == 0
	return pe
}
