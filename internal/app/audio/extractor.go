package audio

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"ai-subtitler/internal/app/common"
	apperrors "ai-subtitler/internal/app/errors"
)

// EventKind identifies an extraction event.
type EventKind int

const (
	EventStarted EventKind = iota
	EventStderr
	EventProgress
	EventCompleted
	EventFailed
)

func (k EventKind) String() string {
	switch k {
	case EventStarted:
		return "started"
	case EventStderr:
		return "stderr"
	case EventProgress:
		return "progress"
	case EventCompleted:
		return "completed"
	case EventFailed:
		return "failed"
	}
	return "unknown"
}

// IsTerminal reports whether no further events follow.
func (k EventKind) IsTerminal() bool {
	return k == EventCompleted || k == EventFailed
}

// Event is one step of an extraction run. Exactly one terminal event
// (EventCompleted or EventFailed) is the last value sent before the channel closes.
type Event struct {
	Kind     EventKind
	Command  string
	Line     string
	Timemark float64
	Duration float64
	Output   string
	Err      error
}

// Percent is the processed share of the input, or -1 when the duration is unknown.
func (e Event) Percent() float64 {
	if e.Duration <= 0 {
		return -1
	}
	p := e.Timemark / e.Duration * 100
	if p > 100 {
		p = 100
	}
	return p
}

const (
	stderrTailLines = 20
	waitDelay       = 5 * time.Second
)

var (
	durationPattern = regexp.MustCompile(`Duration:\s*(\d+):(\d{2}):(\d{2}(?:\.\d+)?)`)
	timemarkPattern = regexp.MustCompile(`time=\s*(\d+):(\d{2}):(\d{2}(?:\.\d+)?)`)
)

// Extractor normalizes any media container into mono 16 kHz PCM WAV using ffmpeg.
type Extractor struct {
	ffmpegPath string
	logger     *zap.Logger
}

// NewExtractor returns an extractor running the given ffmpeg binary ("ffmpeg" if empty).
func NewExtractor(ffmpegPath string, logger *zap.Logger) *Extractor {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &Extractor{ffmpegPath: ffmpegPath, logger: common.OrNop(logger)}
}

// Args returns the ffmpeg arguments used to extract input into output.
func (e *Extractor) Args(input, output string) []string {
	return []string{
		"-hide_banner", "-nostdin",
		"-i", input,
		"-vn",
		"-acodec", "pcm_s16le",
		"-ar", "16000",
		"-ac", "1",
		"-y",
		output,
	}
}

// Extract starts ffmpeg and streams its events. The subprocess is bound to ctx and
// is killed when ctx is cancelled. The returned channel is closed after the
// terminal event; callers must drain it.
func (e *Extractor) Extract(ctx context.Context, input, output string) <-chan Event {
	events := make(chan Event, 16)
	go func() {
		defer close(events)
		e.run(ctx, input, output, events)
	}()
	return events
}

// Run extracts input into output and blocks until the terminal event, passing
// every event to onEvent when it is non-nil.
func (e *Extractor) Run(ctx context.Context, input, output string, onEvent func(Event)) error {
	return Await(e.Extract(ctx, input, output), onEvent)
}

// Await consumes an event stream until it closes and returns the terminal outcome.
func Await(events <-chan Event, onEvent func(Event)) error {
	var terminal *Event
	for ev := range events {
		if onEvent != nil {
			onEvent(ev)
		}
		if ev.Kind.IsTerminal() {
			terminal = &ev
		}
	}
	if terminal == nil {
		return &apperrors.ExtractionError{ExitCode: -1, Cause: errors.New("extraction ended without a terminal event")}
	}
	if terminal.Kind == EventFailed {
		return terminal.Err
	}
	return nil
}

func (e *Extractor) run(ctx context.Context, input, output string, events chan<- Event) {
	emit := func(ev Event) {
		select {
		case events <- ev:
		case <-ctx.Done():
		}
	}
	fail := func(err *apperrors.ExtractionError) {
		if rmErr := os.Remove(output); rmErr != nil && !os.IsNotExist(rmErr) {
			e.logger.Warn("failed to remove partial audio output", zap.String("output", output), zap.Error(rmErr))
		}
		// The terminal event is delivered even after cancellation so Await can report it.
		events <- Event{Kind: EventFailed, Output: output, Err: err}
	}

	args := e.Args(input, output)
	cmd := exec.CommandContext(ctx, e.ffmpegPath, args...)
	cmd.WaitDelay = waitDelay

	stderr, err := cmd.StderrPipe()
	if err != nil {
		fail(&apperrors.ExtractionError{ExitCode: -1, Cause: err})
		return
	}
	if err := cmd.Start(); err != nil {
		fail(&apperrors.ExtractionError{ExitCode: -1, Cause: fmt.Errorf("start %s: %w", e.ffmpegPath, err)})
		return
	}

	commandLine := e.ffmpegPath + " " + strings.Join(args, " ")
	e.logger.Debug("ffmpeg started", zap.String("command", commandLine))
	emit(Event{Kind: EventStarted, Command: commandLine})

	tail := newLineTail(stderrTailLines)
	var duration float64

	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	scanner.Split(scanLinesOrCarriageReturns)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		tail.add(line)
		emit(Event{Kind: EventStderr, Line: line})

		if duration == 0 {
			if d, ok := parseClock(durationPattern, line); ok {
				duration = d
			}
		}
		if tm, ok := parseClock(timemarkPattern, line); ok {
			emit(Event{Kind: EventProgress, Timemark: tm, Duration: duration})
		}
	}
	if err := scanner.Err(); err != nil {
		e.logger.Warn("stopped parsing ffmpeg output", zap.Error(err))
	}
	// ffmpeg blocks on a full stderr pipe, so keep reading until it exits.
	_, _ = io.Copy(io.Discard, stderr)

	if err := cmd.Wait(); err != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		cause := err
		if ctxErr := ctx.Err(); ctxErr != nil {
			cause = fmt.Errorf("%w (%v)", ctxErr, err)
		}
		fail(&apperrors.ExtractionError{ExitCode: exitCode, Stderr: tail.String(), Cause: cause})
		return
	}

	info, err := os.Stat(output)
	if err != nil {
		fail(&apperrors.ExtractionError{Stderr: tail.String(), Cause: fmt.Errorf("output file missing: %w", err)})
		return
	}
	if info.Size() == 0 {
		fail(&apperrors.ExtractionError{Stderr: tail.String(), Cause: errors.New("output file is empty")})
		return
	}

	events <- Event{Kind: EventCompleted, Output: output, Duration: duration}
}

func parseClock(pattern *regexp.Regexp, line string) (float64, bool) {
	m := pattern.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	h, err1 := strconv.Atoi(m[1])
	mins, err2 := strconv.Atoi(m[2])
	secs, err3 := strconv.ParseFloat(m[3], 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return 0, false
	}
	return float64(h*3600+mins*60) + secs, true
}

// scanLinesOrCarriageReturns splits on \n or \r; ffmpeg rewrites its progress line with \r.
func scanLinesOrCarriageReturns(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

type lineTail struct {
	max   int
	lines []string
}

func newLineTail(max int) *lineTail {
	return &lineTail{max: max}
}

func (t *lineTail) add(line string) {
	t.lines = append(t.lines, line)
	if len(t.lines) > t.max {
		t.lines = t.lines[len(t.lines)-t.max:]
	}
}

func (t *lineTail) String() string {
	return strings.Join(t.lines, "\n")
}
