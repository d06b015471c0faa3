package provider

import (
	"sort"
	"sync"
	"time"
)

// ProviderStats is a snapshot of one provider's attempt history.
type ProviderStats struct {
	Provider           string           `json:"provider"`
	TotalRequests      int64            `json:"totalRequests"`
	SuccessfulRequests int64            `json:"successfulRequests"`
	FailedRequests     int64            `json:"failedRequests"`
	SuccessRate        float64          `json:"successRate"`
	AverageLatencyMs   float64          `json:"averageLatencyMs"`
	LastUsed           int64            `json:"lastUsed"`
	IsHealthy          bool             `json:"isHealthy"`
	ErrorBreakdown     map[string]int64 `json:"errorBreakdown,omitempty"`
}

// DefaultProviderMetrics keeps per-provider stats in memory for the health endpoint.
type DefaultProviderMetrics struct {
	mu            sync.RWMutex
	providerStats map[string]*ProviderStats
}

// NewProviderMetrics creates a new provider metrics instance
func NewProviderMetrics() *DefaultProviderMetrics {
	return &DefaultProviderMetrics{
		providerStats: make(map[string]*ProviderStats),
	}
}

// RecordSuccess records a successful transcription
func (m *DefaultProviderMetrics) RecordSuccess(provider string, latencyMs int64, _ int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := m.getOrCreateStats(provider)
	stats.TotalRequests++
	stats.SuccessfulRequests++
	stats.LastUsed = time.Now().Unix()
	stats.IsHealthy = true

	// Weighted towards recent results.
	if stats.AverageLatencyMs == 0 {
		stats.AverageLatencyMs = float64(latencyMs)
	} else {
		stats.AverageLatencyMs = (stats.AverageLatencyMs * 0.8) + (float64(latencyMs) * 0.2)
	}

	stats.SuccessRate = float64(stats.SuccessfulRequests) / float64(stats.TotalRequests)
}

// RecordFailure records a failed transcription
func (m *DefaultProviderMetrics) RecordFailure(provider string, errorType string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := m.getOrCreateStats(provider)
	stats.TotalRequests++
	stats.FailedRequests++
	stats.LastUsed = time.Now().Unix()
	stats.ErrorBreakdown[errorType]++
	stats.SuccessRate = float64(stats.SuccessfulRequests) / float64(stats.TotalRequests)

	if stats.TotalRequests >= 10 && stats.SuccessRate < 0.5 {
		stats.IsHealthy = false
	}
}

// Snapshot returns a copy of every provider's stats ordered by name.
func (m *DefaultProviderMetrics) Snapshot() []ProviderStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]ProviderStats, 0, len(m.providerStats))
	for _, stats := range m.providerStats {
		c := *stats
		c.ErrorBreakdown = make(map[string]int64, len(stats.ErrorBreakdown))
		for k, v := range stats.ErrorBreakdown {
			c.ErrorBreakdown[k] = v
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out
}

func (m *DefaultProviderMetrics) getOrCreateStats(provider string) *ProviderStats {
	stats, ok := m.providerStats[provider]
	if !ok {
		stats = &ProviderStats{
			Provider:       provider,
			IsHealthy:      true,
			ErrorBreakdown: make(map[string]int64),
		}
		m.providerStats[provider] = stats
	}
	return stats
}

// Recorders fans one observation out to several recorders.
type Recorders []Recorder

func (rs Recorders) RecordSuccess(provider string, latencyMs int64, cues int) {
	for _, r := range rs {
		r.RecordSuccess(provider, latencyMs, cues)
	}
}

func (rs Recorders) RecordFailure(provider string, errorType string) {
	for _, r := range rs {
		r.RecordFailure(provider, errorType)
	}
}

// NopRecorder discards observations.
type NopRecorder struct{}

func (NopRecorder) RecordSuccess(string, int64, int) {}
func (NopRecorder) RecordFailure(string, string)     {}
