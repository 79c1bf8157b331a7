// Package progress renders transfer progress events in the terminal: a
// single progressbar for one file, an mpb container for several.
package progress

import (
	"io"
	"os"
	"sync"

	"golang.org/x/term"

	"github.com/sftpdesk/sftpdesk/internal/events"
)

// Sink consumes progress samples for one or more transfers.
type Sink interface {
	Handle(ev *events.ProgressEvent)
}

// Watcher feeds bus progress events into a Sink from its own goroutine.
type Watcher struct {
	bus  *events.EventBus
	sub  <-chan events.Event
	done chan struct{}
	once sync.Once
}

// Watch subscribes sink to download and upload progress on bus.
func Watch(bus *events.EventBus, sink Sink) *Watcher {
	w := &Watcher{
		bus:  bus,
		sub:  bus.Subscribe(events.EventDownloadProgress, events.EventUploadProgress),
		done: make(chan struct{}),
	}
	go func() {
		defer close(w.done)
		for ev := range w.sub {
			if pe, ok := ev.(*events.ProgressEvent); ok {
				sink.Handle(pe)
			}
		}
	}()
	return w
}

// Stop unsubscribes and returns once every event already published has been
// handed to the sink.
func (w *Watcher) Stop() {
	w.once.Do(func() {
		w.bus.Unsubscribe(w.sub)
	})
	<-w.done
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
