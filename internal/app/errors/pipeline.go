package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Kind classifies a failure raised while converting a job.
type Kind string

const (
	KindSourceNotFound      Kind = "SourceNotFound"
	KindExtractionFailed    Kind = "ExtractionFailed"
	KindTranscriptionFailed Kind = "TranscriptionFailed"
	KindSerializationFailed Kind = "SerializationFailed"
	KindPersistFailed       Kind = "PersistFailed"
	KindMalformedTranscript Kind = "MalformedTranscript"
)

// PipelineError is a stage failure carrying its Kind and underlying cause.
type PipelineError struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *PipelineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// Is matches any PipelineError of the same Kind, so sentinels like
// ErrSourceNotFound work with errors.Is.
func (e *PipelineError) Is(target error) bool {
	t, ok := target.(*PipelineError)
	if !ok {
		return false
	}
	return t.Message == "" && t.Cause == nil && e.Kind == t.Kind
}

// Sentinels for errors.Is.
var (
	ErrSourceNotFound      = &PipelineError{Kind: KindSourceNotFound}
	ErrExtractionFailed    = &PipelineError{Kind: KindExtractionFailed}
	ErrTranscriptionFailed = &PipelineError{Kind: KindTranscriptionFailed}
	ErrSerializationFailed = &PipelineError{Kind: KindSerializationFailed}
	ErrPersistFailed       = &PipelineError{Kind: KindPersistFailed}
	ErrMalformedTranscript = &PipelineError{Kind: KindMalformedTranscript}
)

func SourceNotFound(ref string, cause error) error {
	return &PipelineError{Kind: KindSourceNotFound, Message: fmt.Sprintf("source %q could not be resolved", ref), Cause: cause}
}

func SerializationFailed(reason string) error {
	return &PipelineError{Kind: KindSerializationFailed, Message: reason}
}

func PersistFailed(key string, cause error) error {
	return &PipelineError{Kind: KindPersistFailed, Message: fmt.Sprintf("could not store artifact %q", key), Cause: cause}
}

func MalformedTranscript(path string) error {
	return &PipelineError{Kind: KindMalformedTranscript, Message: fmt.Sprintf("missing %q", path)}
}

// ExtractionError reports a failed media-tool run together with its stderr tail.
type ExtractionError struct {
	ExitCode int
	Stderr   string
	Cause    error
}

func (e *ExtractionError) Error() string {
	var b strings.Builder
	b.WriteString("ExtractionFailed: ")
	if e.Cause != nil {
		b.WriteString(e.Cause.Error())
	} else {
		fmt.Fprintf(&b, "exit status %d", e.ExitCode)
	}
	if s := strings.TrimSpace(e.Stderr); s != "" {
		b.WriteString(", stderr: ")
		b.WriteString(s)
	}
	return b.String()
}

func (e *ExtractionError) Unwrap() error { return e.Cause }

func (e *ExtractionError) Is(target error) bool { return target == ErrExtractionFailed }

// TranscriptionError aggregates provider failures; Last is the final cause seen.
type TranscriptionError struct {
	Attempted []string
	Last      error
}

func (e *TranscriptionError) Error() string {
	return fmt.Sprintf("TranscriptionFailed: all providers failed (%s), last error: %v",
		strings.Join(e.Attempted, ", "), e.Last)
}

func (e *TranscriptionError) Unwrap() error { return e.Last }

func (e *TranscriptionError) Is(target error) bool { return target == ErrTranscriptionFailed }

// KindOf returns the pipeline Kind of err, or "" if err is not a pipeline failure.
func KindOf(err error) Kind {
	var pe *PipelineError
	var ee *ExtractionError
	var te *TranscriptionError
	switch {
	case stderrors.As(err, &ee):
		return KindExtractionFailed
	case stderrors.As(err, &te):
		return KindTranscriptionFailed
	case stderrors.As(err, &pe):
		return pe.Kind
	}
	return ""
}
