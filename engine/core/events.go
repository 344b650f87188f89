package core

import "sync"

// EventContext carries the payload of a fired event.
type EventContext struct {
	Data struct {
		U32 [4]uint32
		F64 [2]float64
		S   string
	}
	// Config is set for EventConfigChanged.
	Config *Config
}

// System internal event codes. Application should use codes beyond 255.
type SystemEventCode int

const (
	// Shuts the application down on the next frame.
	EventApplicationQuit SystemEventCode = 0x01

	// Resized/resolution changed from the OS.
	/* Context usage:
	 * width := data.Data.U32[0]
	 * height := data.Data.U32[1]
	 */
	EventResized SystemEventCode = 0x08

	// The configuration file changed on disk and was reloaded.
	/* Context usage:
	 * cfg := data.Config
	 */
	EventConfigChanged SystemEventCode = 0x09

	MaxEventCode SystemEventCode = 0xFF
)

// Should return true if handled.
type FnOnEvent func(code SystemEventCode, sender interface{}, listener interface{}, data EventContext) bool

type registeredEvent struct {
	listener interface{}
	callback FnOnEvent
}

type queuedEvent struct {
	code   SystemEventCode
	sender interface{}
	data   EventContext
}

// EventBus dispatches events to registered listeners. Fire runs the
// callbacks immediately on the calling goroutine. Post queues the event
// and is safe to call from any goroutine; Dispatch drains the queue and
// must run on the main thread.
type EventBus struct {
	registered map[SystemEventCode][]*registeredEvent

	mu      sync.Mutex
	pending []queuedEvent
}

func NewEventBus() *EventBus {
	return &EventBus{
		registered: make(map[SystemEventCode][]*registeredEvent),
	}
}

// Register listens for events sent with the provided code. A listener
// already registered for the code is not registered again and false is
// returned.
func (b *EventBus) Register(code SystemEventCode, listener interface{}, onEvent FnOnEvent) bool {
	for _, e := range b.registered[code] {
		if e.listener == listener {
			return false
		}
	}
	b.registered[code] = append(b.registered[code], &registeredEvent{
		listener: listener,
		callback: onEvent,
	})
	return true
}

// Unregister stops the listener from receiving the code. It returns false
// if no registration is found.
func (b *EventBus) Unregister(code SystemEventCode, listener interface{}) bool {
	events := b.registered[code]
	for i, e := range events {
		if e.listener == listener {
			b.registered[code] = append(events[:i], events[i+1:]...)
			return true
		}
	}
	return false
}

// Fire invokes the listeners of code in registration order until one of
// them reports the event as handled.
func (b *EventBus) Fire(code SystemEventCode, sender interface{}, data EventContext) bool {
	for _, e := range b.registered[code] {
		if e.callback(code, sender, e.listener, data) {
			return true
		}
	}
	return false
}

func (b *EventBus) Post(code SystemEventCode, sender interface{}, data EventContext) {
	b.mu.Lock()
	b.pending = append(b.pending, queuedEvent{code: code, sender: sender, data: data})
	b.mu.Unlock()
}

// Dispatch fires every posted event and returns how many were drained.
func (b *EventBus) Dispatch() int {
	b.mu.Lock()
	pending := b.pending
	b.pending = nil
	b.mu.Unlock()

	for _, e := range pending {
		b.Fire(e.code, e.sender, e.data)
	}
	return len(pending)
}

// Shutdown drops every registration and pending event.
func (b *EventBus) Shutdown() {
	b.mu.Lock()
	b.pending = nil
	b.mu.Unlock()
	clear(b.registered)
}
