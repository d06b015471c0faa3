package model

import (
	"errors"
	"fmt"
)

// Progress checkpoints reported while a job is processing.
const (
	ProgressStarted      = 0
	ProgressAccepted     = 10
	ProgressExtracting   = 30
	ProgressTranscribing = 50
	ProgressPersisting   = 90
	ProgressComplete     = 100
)

// InterruptedMessage is recorded on processing jobs abandoned by a dead worker.
const InterruptedMessage = "processing interrupted before completion"

// ErrInvalidTransition is returned when a status change is not allowed from the job's current status.
var ErrInvalidTransition = errors.New("invalid status transition")

// Failed jobs re-enter the machine only through an operator retry.
var allowedTransitions = map[JobStatus][]JobStatus{
	StatusPending:    {StatusProcessing},
	StatusRetrying:   {StatusProcessing},
	StatusProcessing: {StatusProcessing, StatusCompleted, StatusFailed},
	StatusCompleted:  {},
	StatusFailed:     {StatusRetrying},
}

// CanTransition reports whether the orchestrator may move a job from one status to another.
func CanTransition(from, to JobStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ValidateTransition returns a descriptive error for a forbidden transition.
func ValidateTransition(from, to JobStatus) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w from %s to %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// SourcesOf lists the statuses a job may be in to move to status to.
func SourcesOf(to JobStatus) []JobStatus {
	var from []JobStatus
	for _, s := range AllStatuses {
		if CanTransition(s, to) {
			from = append(from, s)
		}
	}
	return from
}

// CanRetry reports whether an operator may reset the job for another attempt.
// Only interrupted jobs qualify: a job that failed inside the pipeline has
// already had its source file removed.
func CanRetry(job *ConversionJob) bool {
	return job.Status == StatusFailed && job.Error != nil && *job.Error == InterruptedMessage
}

func statusPtr(s JobStatus) *JobStatus { return &s }
func intPtr(i int) *int                { return &i }
func strPtr(s string) *string          { return &s }

// StartProcessing begins a fresh attempt.
func StartProcessing() JobUpdate {
	return JobUpdate{
		Status:           statusPtr(StatusProcessing),
		Progress:         intPtr(ProgressStarted),
		ClearETA:         true,
		ClearError:       true,
		ClearDownloadURL: true,
	}
}

// AdvanceProgress records a processing checkpoint.
func AdvanceProgress(progress int) JobUpdate {
	return JobUpdate{Progress: intPtr(progress)}
}

// EstimateRemaining records the remaining seconds of the current attempt.
func EstimateRemaining(seconds int) JobUpdate {
	return JobUpdate{ETA: intPtr(seconds)}
}

// Complete marks the job done with its artifact location.
func Complete(downloadURL string) JobUpdate {
	return JobUpdate{
		Status:      statusPtr(StatusCompleted),
		Progress:    intPtr(ProgressComplete),
		DownloadURL: strPtr(downloadURL),
		ClearETA:    true,
		ClearError:  true,
	}
}

// Fail marks the job failed with a human-readable cause.
func Fail(message string) JobUpdate {
	return JobUpdate{
		Status:           statusPtr(StatusFailed),
		Progress:         intPtr(ProgressStarted),
		Error:            strPtr(message),
		ClearETA:         true,
		ClearDownloadURL: true,
	}
}

// ResetForRetry re-admits a failed job; the queue treats retrying like pending.
func ResetForRetry() JobUpdate {
	return JobUpdate{
		Status:           statusPtr(StatusRetrying),
		Progress:         intPtr(ProgressStarted),
		ClearETA:         true,
		ClearError:       true,
		ClearDownloadURL: true,
	}
}

// CheckInvariants verifies the cross-field rules a persisted job must satisfy.
func (j *ConversionJob) CheckInvariants() error {
	completed := j.Status == StatusCompleted
	if (j.DownloadURL != nil) != completed {
		return fmt.Errorf("job %s: downloadUrl must be set iff status is completed (status=%s)", j.ID, j.Status)
	}
	if (j.Error != nil) != (j.Status == StatusFailed) {
		return fmt.Errorf("job %s: error must be set iff status is failed (status=%s)", j.ID, j.Status)
	}
	if (j.Progress == ProgressComplete) != completed {
		return fmt.Errorf("job %s: progress must be 100 iff status is completed (progress=%d)", j.ID, j.Progress)
	}
	if j.Progress < 0 || j.Progress > ProgressComplete {
		return fmt.Errorf("job %s: progress %d out of range", j.ID, j.Progress)
	}
	return nil
}
