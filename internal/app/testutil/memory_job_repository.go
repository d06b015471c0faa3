package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"ai-subtitler/internal/app/model"
	"ai-subtitler/internal/app/repository"
)

// RepoCall records one repository method invocation.
type RepoCall struct {
	Method string
	JobID  string
	Update model.JobUpdate
}

// MemoryJobRepository is an in-memory repository.JobRepository with error
// injection and call tracking.
type MemoryJobRepository struct {
	mu   sync.RWMutex
	jobs map[string]*model.ConversionJob

	// ErrorMap makes the named method (e.g. "Update") return the error.
	ErrorMap map[string]error
	// BeforeUpdate runs before every Update, outside the lock.
	BeforeUpdate func(id string, update model.JobUpdate)

	callHistory []RepoCall
	now         func() time.Time
}

// NewMemoryJobRepository creates an empty repository.
func NewMemoryJobRepository() *MemoryJobRepository {
	return &MemoryJobRepository{
		jobs:     make(map[string]*model.ConversionJob),
		ErrorMap: make(map[string]error),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

var _ repository.JobRepository = (*MemoryJobRepository)(nil)

func (m *MemoryJobRepository) track(method, id string, update model.JobUpdate) error {
	m.callHistory = append(m.callHistory, RepoCall{Method: method, JobID: id, Update: update})
	return m.ErrorMap[method]
}

// SetError injects err for method; nil clears it.
func (m *MemoryJobRepository) SetError(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.ErrorMap, method)
		return
	}
	m.ErrorMap[method] = err
}

// Calls returns a copy of the recorded calls for method ("" for all).
func (m *MemoryJobRepository) Calls(method string) []RepoCall {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []RepoCall
	for _, c := range m.callHistory {
		if method == "" || c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// ProgressHistory returns every progress value written for id, in order.
func (m *MemoryJobRepository) ProgressHistory(id string) []int {
	var out []int
	for _, c := range m.Calls("Update") {
		if c.JobID == id && c.Update.Progress != nil {
			out = append(out, *c.Update.Progress)
		}
	}
	return out
}

// Seed stores job directly, bypassing tracking.
func (m *MemoryJobRepository) Seed(jobs ...*model.ConversionJob) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, job := range jobs {
		m.jobs[job.ID] = job.Clone()
	}
}

func (m *MemoryJobRepository) Create(_ context.Context, job *model.ConversionJob) (*model.ConversionJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.track("Create", job.ID, model.JobUpdate{}); err != nil {
		return nil, err
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = m.now()
		job.UpdatedAt = job.CreatedAt
	}
	m.jobs[job.ID] = job.Clone()
	return job.Clone(), nil
}

func (m *MemoryJobRepository) Get(_ context.Context, id string) (*model.ConversionJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.track("Get", id, model.JobUpdate{}); err != nil {
		return nil, err
	}
	job, ok := m.jobs[id]
	if !ok {
		return nil, repository.ErrJobNotFound
	}
	return job.Clone(), nil
}

func (m *MemoryJobRepository) Update(_ context.Context, id string, update model.JobUpdate) (*model.ConversionJob, error) {
	if hook := m.BeforeUpdate; hook != nil {
		hook(id, update)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.track("Update", id, update); err != nil {
		return nil, err
	}
	job, ok := m.jobs[id]
	if !ok {
		return nil, repository.ErrJobNotFound
	}
	if update.Status != nil {
		if err := model.ValidateTransition(job.Status, *update.Status); err != nil {
			return nil, err
		}
	}
	update.Apply(job, m.now())
	return job.Clone(), nil
}

func (m *MemoryJobRepository) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.track("Delete", id, model.JobUpdate{}); err != nil {
		return err
	}
	if _, ok := m.jobs[id]; !ok {
		return repository.ErrJobNotFound
	}
	delete(m.jobs, id)
	return nil
}

func (m *MemoryJobRepository) ListByOwner(_ context.Context, ownerID string, filter model.JobFilter) ([]*model.ConversionJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.track("ListByOwner", "", model.JobUpdate{}); err != nil {
		return nil, err
	}

	var jobs []*model.ConversionJob
	for _, job := range m.jobs {
		if job.UserID == ownerID && (filter.Status == "" || job.Status == filter.Status) {
			jobs = append(jobs, job.Clone())
		}
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].CreatedAt.After(jobs[j].CreatedAt) })

	limit := filter.Limit
	if limit <= 0 {
		limit = repository.DefaultListLimit
	}
	if filter.Offset >= len(jobs) {
		return []*model.ConversionJob{}, nil
	}
	jobs = jobs[max(filter.Offset, 0):]
	if len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, nil
}

func (m *MemoryJobRepository) CountByOwner(_ context.Context, ownerID string, status model.JobStatus) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.track("CountByOwner", "", model.JobUpdate{}); err != nil {
		return 0, err
	}
	count := 0
	for _, job := range m.jobs {
		if job.UserID == ownerID && (status == "" || job.Status == status) {
			count++
		}
	}
	return count, nil
}

func (m *MemoryJobRepository) ListByStatus(_ context.Context, statuses ...model.JobStatus) ([]*model.ConversionJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.track("ListByStatus", "", model.JobUpdate{}); err != nil {
		return nil, err
	}

	jobs := make([]*model.ConversionJob, 0)
	for _, job := range m.jobs {
		for _, s := range statuses {
			if job.Status == s {
				jobs = append(jobs, job.Clone())
				break
			}
		}
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].CreatedAt.Before(jobs[j].CreatedAt) })
	return jobs, nil
}

func (m *MemoryJobRepository) DeleteTerminalBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.track("DeleteTerminalBefore", "", model.JobUpdate{}); err != nil {
		return 0, err
	}
	var n int64
	for id, job := range m.jobs {
		if job.Status.IsTerminal() && job.CreatedAt.Before(cutoff) {
			delete(m.jobs, id)
			n++
		}
	}
	return n, nil
}

func (m *MemoryJobRepository) Close() error {
	return nil
}

// NewPendingJob returns a pending job owned by ownerID with the given creation time.
func NewPendingJob(id, ownerID, language string, createdAt time.Time) *model.ConversionJob {
	job := model.NewConversionJob(id, ownerID, id+".mp4", 4096, "video/mp4", "/api/v1/files/"+ownerID+"/"+id+".mp4", language)
	job.CreatedAt = createdAt
	job.UpdatedAt = createdAt
	return job
}
