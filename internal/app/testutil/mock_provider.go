package testutil

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"ai-subtitler/internal/app/model"
)

// MockProvider is a testify mock of provider.TranscriptionProvider.
type MockProvider struct {
	mock.Mock
	name string

	mu    sync.Mutex
	calls int
}

// NewMockProvider returns a mock reporting the given name.
func NewMockProvider(name string) *MockProvider {
	return &MockProvider{name: name}
}

func (m *MockProvider) Name() string {
	return m.name
}

func (m *MockProvider) Transcribe(ctx context.Context, audioPath, language string) ([]model.Cue, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	args := m.Called(ctx, audioPath, language)
	var cues []model.Cue
	if v := args.Get(0); v != nil {
		cues = v.([]model.Cue)
	}
	return cues, args.Error(1)
}

// CallCount returns how many times Transcribe ran.
func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// SampleCues returns n contiguous cues of one second each.
func SampleCues(prefix string, n int) []model.Cue {
	cues := make([]model.Cue, 0, n)
	for i := 0; i < n; i++ {
		cues = append(cues, model.Cue{
			Index: i + 1,
			Start: float64(i),
			End:   float64(i) + 1,
			Text:  prefix + " line",
		})
	}
	return cues
}
