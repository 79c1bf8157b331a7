package transfer

import (
	"sort"
	"sync"

	"github.com/sftpdesk/sftpdesk/internal/apperr"
)

// Signal is a close-once cancel flag shared between the cancellation
// registry and one running transfer.
type Signal struct {
	done chan struct{}
	once sync.Once
}

func newSignal() *Signal {
	return &Signal{done: make(chan struct{})}
}

// Done is closed when cancellation has been requested.
func (s *Signal) Done() <-chan struct{} { return s.done }

// Cancelled reports whether cancellation has been requested.
func (s *Signal) Cancelled() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *Signal) cancel() { s.once.Do(func() { close(s.done) }) }

// CancelRegistry maps active transfer ids to their cancel signals. The lock
// guards the map only.
type CancelRegistry struct {
	mu      sync.Mutex
	signals map[string]*Signal
}

// NewCancelRegistry creates an empty registry.
func NewCancelRegistry() *CancelRegistry {
	return &CancelRegistry{signals: make(map[string]*Signal)}
}

// Register installs a fresh signal for id, replacing any stale entry.
func (r *CancelRegistry) Register(id string) *Signal {
	sig := newSignal()
	r.mu.Lock()
	r.signals[id] = sig
	r.mu.Unlock()
	return sig
}

// Release drops the entry for id if it still holds sig. A newer transfer
// that re-registered the same id keeps its own signal.
func (r *CancelRegistry) Release(id string, sig *Signal) {
	r.mu.Lock()
	if r.signals[id] == sig {
		delete(r.signals, id)
	}
	r.mu.Unlock()
}

// RequestCancel sets the signal for id and removes the entry. The transfer
// notices at its next chunk boundary. Unknown ids yield a not_found error.
//
// A transfer finishing at the same moment may complete anyway: whichever
// state the copy loop observes last wins.
func (r *CancelRegistry) RequestCancel(id string) error {
	r.mu.Lock()
	sig, ok := r.signals[id]
	delete(r.signals, id)
	r.mu.Unlock()

	if !ok {
		return apperr.TransferNotFound(id)
	}
	sig.cancel()
	return nil
}

// CancelAll cancels every registered transfer and returns how many there were.
func (r *CancelRegistry) CancelAll() int {
	r.mu.Lock()
	all := r.signals
	r.signals = make(map[string]*Signal)
	r.mu.Unlock()

	for _, sig := range all {
		sig.cancel()
	}
	return len(all)
}

// Active returns the registered transfer ids, sorted.
func (r *CancelRegistry) Active() []string {
	r.mu.Lock()
	ids := make([]string, 0, len(r.signals))
	for id := range r.signals {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	sort.Strings(ids)
	return ids
}
