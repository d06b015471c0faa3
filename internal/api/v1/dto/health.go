package dto

import (
	"ai-subtitler/internal/app/api/provider"
	"ai-subtitler/internal/app/queue"
)

// HealthResponse reports liveness plus queue and provider state.
type HealthResponse struct {
	Status    string                   `json:"status"`
	Timestamp int64                    `json:"timestamp"`
	Queue     queue.Stats              `json:"queue"`
	Providers []provider.ProviderStats `json:"providers"`
}
