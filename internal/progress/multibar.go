package progress

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/sftpdesk/sftpdesk/internal/events"
)

// MultiBar draws several concurrent transfers in one mpb container. Without
// a terminal it prints one line per start and finish instead.
type MultiBar struct {
	progress   *mpb.Progress
	out        io.Writer
	isTerminal bool
	totalFiles int

	mu      sync.Mutex
	entries map[string]*multiEntry
	order   int
}

type multiEntry struct {
	bar       *mpb.Bar
	index     int
	name      string
	size      int64
	start     time.Time
	lastTick  time.Time
	finished  bool
	lastBytes int64
}

// NewMultiBar creates a container expecting totalFiles transfers.
func NewMultiBar(out io.Writer, totalFiles int) *MultiBar {
	m := &MultiBar{
		out:        out,
		isTerminal: IsTerminal(out),
		totalFiles: totalFiles,
		entries:    make(map[string]*multiEntry),
	}
	if m.isTerminal {
		if f, ok := out.(*os.File); ok {
			enableANSI(f)
		}
		m.progress = mpb.New(
			mpb.WithOutput(out),
			mpb.WithRefreshRate(150*time.Millisecond),
			mpb.WithWidth(100),
		)
	} else {
		m.progress = mpb.New(mpb.WithOutput(io.Discard))
	}
	return m
}

// Handle applies one progress sample, creating the transfer's bar on its
// first sample.
func (m *MultiBar) Handle(ev *events.ProgressEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.entries[ev.TransferID]
	if e == nil {
		e = m.addLocked(ev)
	}
	if e.finished {
		return
	}

	now := time.Now()
	if e.bar != nil {
		if ev.TotalSize > 0 && ev.TotalSize != e.size {
			e.size = ev.TotalSize
			e.bar.SetTotal(ev.TotalSize, false)
		}
		e.bar.EwmaSetCurrent(ev.BytesCopied, now.Sub(e.lastTick))
	}
	e.lastTick = now
	e.lastBytes = ev.BytesCopied

	switch {
	case ev.Completed:
		e.finished = true
		if e.bar != nil {
			e.bar.SetTotal(-1, true)
		}
		elapsed := time.Since(e.start)
		m.printLocked(fmt.Sprintf("✓ %s (%s, %s, %s/s)\n",
			e.name, formatBytes(ev.BytesCopied), elapsed.Round(time.Millisecond), formatBytes(int64(rate(ev.BytesCopied, elapsed)))))
	case ev.Cancelled:
		e.finished = true
		if e.bar != nil {
			e.bar.Abort(false)
		}
		m.printLocked(fmt.Sprintf("✗ %s cancelled after %s\n", e.name, formatBytes(ev.BytesCopied)))
	}
}

// Fail finishes a transfer that ended with an error instead of a terminal
// sample. Unknown ids only print the failure.
func (m *MultiBar) Fail(transferID, name string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.entries[transferID]
	if e != nil {
		if e.finished {
			return
		}
		e.finished = true
		if e.bar != nil {
			e.bar.Abort(false)
		}
		name = e.name
	}
	m.printLocked(fmt.Sprintf("✗ %s: %v\n", name, err))
}

// Wait blocks until every bar has completed or been aborted.
func (m *MultiBar) Wait() {
	m.progress.Wait()
}

// Writer returns an io.Writer that prints above the bars.
func (m *MultiBar) Writer() io.Writer {
	if m.isTerminal {
		return m.progress
	}
	return m.out
}

func (m *MultiBar) addLocked(ev *events.ProgressEvent) *multiEntry {
	m.order++
	now := time.Now()
	e := &multiEntry{
		index:    m.order,
		name:     ev.FileName,
		size:     ev.TotalSize,
		start:    now,
		lastTick: now,
	}
	m.entries[ev.TransferID] = e

	arrow := "←"
	if ev.Direction == "upload" {
		arrow = "→"
	}
	label := fmt.Sprintf("[%d/%d] %s %s", e.index, m.totalFiles, arrow, truncatePath(ev.FileName, 2))

	if !m.isTerminal {
		fmt.Fprintf(m.out, "%s (%s)\n", label, formatBytes(ev.TotalSize))
		return e
	}

	e.bar = m.progress.New(ev.TotalSize,
		mpb.BarStyle().Lbound("[").Filler("█").Tip("█").Padding("░").Rbound("]"),
		mpb.PrependDecorators(
			decor.Name(label, decor.WCSyncSpaceR),
		),
		mpb.AppendDecorators(
			decor.CountersKibiByte("% .1f / % .1f", decor.WCSyncSpace),
			decor.Name("  "),
			decor.Percentage(decor.WCSyncSpace),
			decor.Name("  "),
			decor.EwmaSpeed(decor.SizeB1024(0), "% .1f", 30, decor.WCSyncSpace),
		),
		mpb.BarRemoveOnComplete(),
	)
	return e
}

func (m *MultiBar) printLocked(msg string) {
	if m.isTerminal {
		_, _ = m.progress.Write([]byte(msg))
		return
	}
	fmt.Fprint(m.out, msg)
}

func rate(n int64, d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(n) / d.Seconds()
}

// formatBytes renders n with a binary unit.
func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// truncatePath keeps the last n components of p.
func truncatePath(p string, n int) string {
	p = filepath.ToSlash(p)
	parts := strings.Split(strings.Trim(p, "/"), "/")
	if len(parts) <= n {
		return p
	}
	return ".../" + strings.Join(parts[len(parts)-n:], "/")
}
