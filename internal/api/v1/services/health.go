package services

import (
	"context"
	"time"

	"ai-subtitler/internal/api/v1/dto"
)

type healthService struct {
	queue     Enqueuer
	providers ProviderSnapshot
}

func NewHealthService(queue Enqueuer, providers ProviderSnapshot) HealthService {
	return &healthService{queue: queue, providers: providers}
}

// Health reports "draining" once the queue stopped dispatching.
func (s *healthService) Health(_ context.Context) *dto.HealthResponse {
	stats := s.queue.Stats()
	status := "healthy"
	if stats.Paused {
		status = "draining"
	}
	resp := &dto.HealthResponse{
		Status:    status,
		Timestamp: time.Now().Unix(),
		Queue:     stats,
	}
	if s.providers != nil {
		resp.Providers = s.providers.Snapshot()
	}
	return resp
}
