package provider

import (
	"errors"
	"fmt"

	"ai-subtitler/internal/app/model"
)

// Request is one transcription job for the chain.
type Request struct {
	AudioPath     string
	Language      string
	PreferPrimary bool
}

// Result is a successful transcription and where it came from.
type Result struct {
	Cues      []model.Cue
	Provider  string
	Policy    Policy
	Attempted []string
}

// ProviderError wraps any failure reported by one provider.
type ProviderError struct {
	Provider   string
	StatusCode int
	Retryable  bool
	Cause      error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("provider %s (status %d): %v", e.Provider, e.StatusCode, e.Cause)
	}
	return fmt.Sprintf("provider %s: %v", e.Provider, e.Cause)
}

func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// NewProviderError wraps cause for provider name. A cause that is already a
// *ProviderError is returned unchanged.
func NewProviderError(name string, cause error) *ProviderError {
	var pe *ProviderError
	if errors.As(cause, &pe) {
		return pe
	}
	return &ProviderError{Provider: name, Cause: cause}
}

// ErrorType classifies err for metrics labels.
func ErrorType(err error) string {
	var pe *ProviderError
	if !errors.As(err, &pe) {
		return "unknown"
	}
	switch {
	case pe.StatusCode == 401 || pe.StatusCode == 403:
		return "auth"
	case pe.StatusCode == 429:
		return "rate_limit"
	case pe.StatusCode >= 500:
		return "server"
	case pe.StatusCode >= 400:
		return "request"
	}
	return "transport"
}
