// Package events is the in-process publish/subscribe bus that carries
// transfer progress, transfer lifecycle, session and log events from the
// engine to its observers (the bridge, CLI progress bars, tests).
//
// Delivery is best effort. Intermediate events are dropped when a
// subscriber's buffer is full. Terminal transfer events (completed, failed,
// cancelled) wait for room, but only for EventBusTerminalWait; a subscriber
// that stays full longer loses the terminal event too, and the loss is
// counted and reported through OnDrop. Observers that must see the outcome
// of a transfer should also take it from the operation's return value.
package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/sftpdesk/sftpdesk/internal/constants"
)

// EventType defines the types of events that can be emitted
type EventType string

const (
	// Per-chunk progress, throttled by the copy loop. Names match the
	// event names pushed to bridge clients.
	EventDownloadProgress EventType = "download_progress"
	EventUploadProgress   EventType = "upload_progress"

	// Transfer lifecycle, published by the transfer queue
	EventTransferQueued    EventType = "transfer_queued"    // Registered, waiting for a worker slot
	EventTransferStarted   EventType = "transfer_started"   // Worker slot acquired, bytes about to move
	EventTransferCompleted EventType = "transfer_completed" // Successfully completed
	EventTransferFailed    EventType = "transfer_failed"    // Failed with error
	EventTransferCancelled EventType = "transfer_cancelled" // Cancelled by user

	// Session registry changes
	EventSessionConnected    EventType = "session_connected"
	EventSessionDisconnected EventType = "session_disconnected"

	EventLog EventType = "log"
)

// LogLevel defines log severity levels
type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

func (l LogLevel) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Event is the base interface for all events
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// terminal is implemented by events that end a transfer's event stream.
// Publish never silently drops these on a briefly full subscriber.
type terminal interface {
	Terminal() bool
}

// BaseEvent provides common event fields
type BaseEvent struct {
	EventType EventType
	Time      time.Time
}

func (e BaseEvent) Type() EventType      { return e.EventType }
func (e BaseEvent) Timestamp() time.Time { return e.Time }

// ProgressEvent is one throttled progress sample of a running transfer.
// The last ProgressEvent of a transfer has Completed or Cancelled set.
type ProgressEvent struct {
	BaseEvent
	TransferID  string
	FileName    string
	Direction   string // "upload" or "download"
	BytesCopied int64
	TotalSize   int64   // 0 when unknown
	Percent     int     // 0..100, floor(BytesCopied*100/TotalSize)
	Speed       float64 // bytes/sec, smoothed
	Cancelled   bool
	Completed   bool
}

func (e *ProgressEvent) Terminal() bool { return e.Completed || e.Cancelled }

// TransferEvent represents transfer queue lifecycle changes
type TransferEvent struct {
	BaseEvent
	TaskID    string
	Direction string
	SessionID string
	Name      string // Display name (filename)
	Source    string
	Dest      string
	Size      int64 // File size in bytes, 0 when unknown
	Bytes     int64 // Bytes moved so far
	Speed     float64
	Error     error // Error if failed
}

func (e *TransferEvent) Terminal() bool {
	switch e.EventType {
	case EventTransferCompleted, EventTransferFailed, EventTransferCancelled:
		return true
	}
	return false
}

// SessionEvent reports a session being registered or removed.
type SessionEvent struct {
	BaseEvent
	SessionID string
	Name      string
	Host      string
	Username  string
}

// LogEvent represents log messages forwarded from the logger
type LogEvent struct {
	BaseEvent
	Level     LogLevel
	Component string
	Message   string
	Error     error
}

// EventBus manages event subscriptions and publishing
type EventBus struct {
	subscribers   map[EventType][]chan Event
	all           []chan Event // Subscribers to all events
	mu            sync.RWMutex
	bufferSize    int
	closed        bool
	droppedEvents atomic.Int64 // Count of dropped events due to full buffers
	onDrop        func(EventType)
	terminalWait  time.Duration
}

// NewEventBus creates a new event bus with specified buffer size
func NewEventBus(bufferSize int) *EventBus {
	if bufferSize <= 0 {
		bufferSize = constants.EventBusDefaultBuffer
	}
	if bufferSize > constants.EventBusMaxBuffer {
		bufferSize = constants.EventBusMaxBuffer
	}
	return &EventBus{
		subscribers:  make(map[EventType][]chan Event),
		all:          make([]chan Event, 0),
		bufferSize:   bufferSize,
		terminalWait: constants.EventBusTerminalWait,
	}
}

// OnDrop installs a callback invoked for every dropped event. Must be called
// before the bus is shared between goroutines.
func (eb *EventBus) OnDrop(fn func(EventType)) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.onDrop = fn
}

// Subscribe creates a subscription to specific event types
func (eb *EventBus) Subscribe(eventTypes ...EventType) <-chan Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}

	ch := make(chan Event, eb.bufferSize)
	for _, et := range eventTypes {
		eb.subscribers[et] = append(eb.subscribers[et], ch)
	}
	return ch
}

// SubscribeAll creates a subscription to all events
func (eb *EventBus) SubscribeAll() <-chan Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}

	ch := make(chan Event, eb.bufferSize)
	eb.all = append(eb.all, ch)
	return ch
}

// Publish sends an event to all subscribers. Regular events are dropped when
// a subscriber's buffer is full; terminal transfer events wait up to
// EventBusTerminalWait first.
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if eb.closed {
		return
	}

	reliable := false
	if t, ok := event.(terminal); ok {
		reliable = t.Terminal()
	}

	// A channel subscribed to several types appears once per type; deliver once.
	var sent map[chan Event]struct{}
	if len(eb.subscribers[event.Type()]) > 1 {
		sent = make(map[chan Event]struct{})
	}
	for _, ch := range eb.subscribers[event.Type()] {
		if sent != nil {
			if _, dup := sent[ch]; dup {
				continue
			}
			sent[ch] = struct{}{}
		}
		eb.deliver(ch, event, reliable)
	}

	for _, ch := range eb.all {
		eb.deliver(ch, event, reliable)
	}
}

func (eb *EventBus) deliver(ch chan Event, event Event, reliable bool) {
	select {
	case ch <- event:
		return
	default:
	}

	if reliable {
		timer := time.NewTimer(eb.terminalWait)
		defer timer.Stop()
		select {
		case ch <- event:
			return
		case <-timer.C:
		}
	}

	eb.droppedEvents.Add(1)
	if eb.onDrop != nil {
		eb.onDrop(event.Type())
	}
}

// Close shuts down the event bus and closes all channels
func (eb *EventBus) Close() {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return
	}

	eb.closed = true

	closed := make(map[chan Event]struct{})
	closeOnce := func(ch chan Event) {
		if _, done := closed[ch]; done {
			return
		}
		closed[ch] = struct{}{}
		close(ch)
	}
	for _, channels := range eb.subscribers {
		for _, ch := range channels {
			closeOnce(ch)
		}
	}
	for _, ch := range eb.all {
		closeOnce(ch)
	}
}

// PublishLog is a convenience method for publishing log events
func (eb *EventBus) PublishLog(level LogLevel, component, message string, err error) {
	eb.Publish(&LogEvent{
		BaseEvent: BaseEvent{
			EventType: EventLog,
			Time:      time.Now(),
		},
		Level:     level,
		Component: component,
		Message:   message,
		Error:     err,
	})
}

// PublishSession is a convenience method for session registry changes
func (eb *EventBus) PublishSession(eventType EventType, sessionID, name, host, username string) {
	eb.Publish(&SessionEvent{
		BaseEvent: BaseEvent{
			EventType: eventType,
			Time:      time.Now(),
		},
		SessionID: sessionID,
		Name:      name,
		Host:      host,
		Username:  username,
	})
}

// Unsubscribe removes a subscription channel from every event type and from
// the all-events list, then closes it. Safe to call after Close.
func (eb *EventBus) Unsubscribe(ch <-chan Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return
	}

	var owned chan Event
	for eventType, subscribers := range eb.subscribers {
		kept := subscribers[:0]
		for _, subCh := range subscribers {
			if subCh == ch {
				owned = subCh
				continue
			}
			kept = append(kept, subCh)
		}
		eb.subscribers[eventType] = kept
	}

	kept := eb.all[:0]
	for _, subCh := range eb.all {
		if subCh == ch {
			owned = subCh
			continue
		}
		kept = append(kept, subCh)
	}
	eb.all = kept

	if owned != nil {
		close(owned)
	}
}

// GetDroppedEventCount returns the total number of events dropped due to full buffers
func (eb *EventBus) GetDroppedEventCount() int64 {
	return eb.droppedEvents.Load()
}
