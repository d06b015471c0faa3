package provider

import (
	"context"

	"ai-subtitler/internal/app/model"
)

// TranscriptionProvider turns an audio file into an ordered cue sequence.
// Every upstream failure is returned as a *ProviderError.
type TranscriptionProvider interface {
	Name() string
	Transcribe(ctx context.Context, audioPath, language string) ([]model.Cue, error)
}

// Transcriber runs a transcription request under the provider selection policy.
type Transcriber interface {
	Transcribe(ctx context.Context, req Request) (*Result, error)
}

// Recorder observes provider attempts.
type Recorder interface {
	RecordSuccess(provider string, latencyMs int64, cues int)
	RecordFailure(provider string, errorType string)
}
