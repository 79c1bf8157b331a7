package progress

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/sftpdesk/sftpdesk/internal/events"
)

// Bar draws one transfer with schollz/progressbar.
type Bar struct {
	mu   sync.Mutex
	w    io.Writer
	bar  *progressbar.ProgressBar
	max  int64
	done bool
}

// NewBar creates a bar for a transfer of total bytes. total 0 shows a
// spinner until the first event reports a size.
func NewBar(w io.Writer, description string, total int64) *Bar {
	max := total
	if max <= 0 {
		max = -1
	}
	return &Bar{
		w:   w,
		max: max,
		bar: progressbar.NewOptions64(max,
			progressbar.OptionSetDescription(description),
			progressbar.OptionSetWriter(w),
			progressbar.OptionShowBytes(true),
			progressbar.OptionSetWidth(40),
			progressbar.OptionThrottle(100*time.Millisecond),
			progressbar.OptionShowCount(),
			progressbar.OptionOnCompletion(func() {
				fmt.Fprint(w, "\n")
			}),
			progressbar.OptionSpinnerType(14),
			progressbar.OptionSetRenderBlankState(true),
		),
	}
}

// Handle applies one progress sample.
func (b *Bar) Handle(ev *events.ProgressEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.done {
		return
	}

	if ev.TotalSize > 0 && ev.TotalSize != b.max {
		b.max = ev.TotalSize
		b.bar.ChangeMax64(ev.TotalSize)
	}
	_ = b.bar.Set64(ev.BytesCopied)

	switch {
	case ev.Completed:
		b.done = true
		_ = b.bar.Finish()
	case ev.Cancelled:
		b.done = true
		_ = b.bar.Exit()
		fmt.Fprintf(b.w, "\ncancelled after %d bytes\n", ev.BytesCopied)
	}
}

// Abort stops drawing after a failure that produced no terminal event.
func (b *Bar) Abort() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.done {
		return
	}
	b.done = true
	_ = b.bar.Exit()
	fmt.Fprint(b.w, "\n")
}

// Done reports whether a terminal sample or Abort was seen.
func (b *Bar) Done() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.done
}
