package provider

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"ai-subtitler/internal/app/common"
	apperrors "ai-subtitler/internal/app/errors"
)

// Chain applies the selection policy and walks the resulting attempt list.
type Chain struct {
	primary         TranscriptionProvider
	fallback        TranscriptionProvider
	defaultLanguage string
	recorder        Recorder
	logger          *zap.Logger
}

// NewChain builds a chain. fallback may be nil, in which case every job uses the primary.
func NewChain(primary, fallback TranscriptionProvider, defaultLanguage string, recorder Recorder, logger *zap.Logger) *Chain {
	if recorder == nil {
		recorder = NopRecorder{}
	}
	return &Chain{
		primary:         primary,
		fallback:        fallback,
		defaultLanguage: defaultLanguage,
		recorder:        recorder,
		logger:          common.OrNop(logger),
	}
}

// Plan returns the policy and provider order for req without running anything.
func (c *Chain) Plan(req Request) (Policy, []TranscriptionProvider) {
	policy := SelectPolicy(req.Language, c.defaultLanguage, req.PreferPrimary)
	return policy, policy.Attempts(c.primary, c.fallback)
}

// Transcribe runs the attempts in order and returns the first success. When every
// attempt fails the error is a *errors.TranscriptionError holding the last cause.
func (c *Chain) Transcribe(ctx context.Context, req Request) (*Result, error) {
	policy, attempts := c.Plan(req)
	logger := c.logger.With(zap.String("policy", policy.String()), zap.String("language", req.Language))

	var attempted []string
	var lastErr error
	for i, p := range attempts {
		if err := ctx.Err(); err != nil {
			if lastErr == nil {
				lastErr = err
			}
			break
		}

		name := p.Name()
		attempted = append(attempted, name)
		started := time.Now()

		cues, err := p.Transcribe(ctx, req.AudioPath, req.Language)
		latency := time.Since(started)
		if err == nil {
			c.recorder.RecordSuccess(name, latency.Milliseconds(), len(cues))
			logger.Info("transcription succeeded",
				zap.String("provider", name),
				zap.Int("cues", len(cues)),
				zap.Duration("latency", latency))
			return &Result{Cues: cues, Provider: name, Policy: policy, Attempted: attempted}, nil
		}

		lastErr = NewProviderError(name, err)
		c.recorder.RecordFailure(name, ErrorType(lastErr))
		if i < len(attempts)-1 {
			logger.Warn("provider failed, falling back",
				zap.String("provider", name),
				zap.String("next", attempts[i+1].Name()),
				zap.Error(lastErr))
		} else {
			logger.Error("provider failed", zap.String("provider", name), zap.Error(lastErr))
		}
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no transcription provider configured")
	}
	return nil, &apperrors.TranscriptionError{Attempted: attempted, Last: lastErr}
}
