package avr

import "sync"

// EventType classifies session events.
type EventType int

const (
	EventConnecting EventType = iota
	EventConnected
	EventDisconnected
	EventError
	EventUpdate
)

func (t EventType) String() string {
	switch t {
	case EventConnecting:
		return "connecting"
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventError:
		return "error"
	case EventUpdate:
		return "update"
	default:
		return "unknown"
	}
}

// Event is a session lifecycle or state-change notification.
//
// For EventUpdate, Attributes holds only the attributes that changed. A
// nil map means the whole device state was re-read and subscribers should
// take a fresh snapshot.
type Event struct {
	Type       EventType
	DeviceID   string
	Attributes map[string]any
}

// EventHandler receives session events. Handlers run synchronously on the
// emitting goroutine and must not block.
type EventHandler func(Event)

type emitter struct {
	mu       sync.RWMutex
	handlers []EventHandler
}

func (e *emitter) subscribe(h EventHandler) {
	if h == nil {
		return
	}
	e.mu.Lock()
	e.handlers = append(e.handlers, h)
	e.mu.Unlock()
}

func (e *emitter) emit(ev Event) {
	e.mu.RLock()
	handlers := make([]EventHandler, len(e.handlers))
	copy(handlers, e.handlers)
	e.mu.RUnlock()

	for _, h := range handlers {
		h(ev)
	}
}
