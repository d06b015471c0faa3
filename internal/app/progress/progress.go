// Package progress renders a job's progress as a terminal bar.
package progress

import (
	"context"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"ai-subtitler/internal/app/model"
	"ai-subtitler/internal/app/notify"
)

type Config struct {
	Enabled bool
	Writer  io.Writer
}

// Bar follows one job's events and draws them. It implements notify.Publisher
// so it can be handed to the pipeline directly.
type Bar struct {
	enabled   bool
	container *mpb.Progress
	bar       *mpb.Bar

	// status is read by the render goroutine, so it is kept outside mu.
	status atomic.Value

	mu   sync.Mutex
	done bool
}

var _ notify.Publisher = (*Bar)(nil)

func New(cfg Config, description string) *Bar {
	if !cfg.Enabled {
		return &Bar{}
	}

	writer := cfg.Writer
	if writer == nil {
		writer = os.Stderr
	}

	container := mpb.New(
		mpb.WithOutput(writer),
		mpb.WithRefreshRate(120*time.Millisecond),
	)

	b := &Bar{enabled: true, container: container}
	b.status.Store(string(model.StatusPending))
	b.bar = container.AddBar(int64(model.ProgressComplete),
		mpb.PrependDecorators(
			decor.Name(description+" ", decor.WC{W: len(description) + 1, C: decor.DindentRight}),
			decor.Any(func(decor.Statistics) string { return b.currentStatus() }, decor.WCSyncSpaceR),
		),
		mpb.AppendDecorators(
			decor.NewPercentage("%.0f", decor.WCSyncSpace),
			decor.OnComplete(decor.Elapsed(decor.ET_STYLE_GO, decor.WCSyncSpace), " done"),
		),
	)
	return b
}

func (b *Bar) currentStatus() string {
	s, _ := b.status.Load().(string)
	return s
}

// Publish moves the bar to the event's progress.
func (b *Bar) Publish(_ context.Context, ev notify.Event) error {
	if !b.enabled {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.done {
		return nil
	}
	b.status.Store(string(ev.Status))

	switch ev.Status {
	case model.StatusCompleted:
		b.bar.SetCurrent(int64(model.ProgressComplete))
		b.done = true
	case model.StatusFailed:
		b.bar.Abort(false)
		b.done = true
	default:
		if int64(ev.Progress) > b.bar.Current() {
			b.bar.SetCurrent(int64(ev.Progress))
		}
	}
	return nil
}

// Close stops the bar and waits for the final render.
func (b *Bar) Close() error {
	if !b.enabled {
		return nil
	}
	b.mu.Lock()
	if !b.done {
		b.bar.Abort(false)
		b.done = true
	}
	b.mu.Unlock()
	b.container.Wait()
	return nil
}

// IsTTY reports whether writer is a terminal.
func IsTTY(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	stat, err := file.Stat()
	if err != nil {
		return false
	}
	return stat.Mode()&os.ModeCharDevice != 0
}

// ShouldShow enables bars when forced or when stderr is a terminal.
func ShouldShow(forced bool) bool {
	return forced || IsTTY(os.Stderr)
}
