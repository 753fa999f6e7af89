package appstate

// EventType labels a state-change event fanned out to realtime clients.
type EventType string

const (
	EventAlerts        EventType = "alerts"
	EventNotifications EventType = "notifications"
	EventFreshness     EventType = "freshness"
	EventSettings      EventType = "settings"
	EventTheme         EventType = "theme"
	EventRole          EventType = "role"
	EventSearch        EventType = "search"
	EventSearchFocus   EventType = "search_focus"
)

// Event is one facade state change.
type Event struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload,omitempty"`
}

// AddListener registers a state-change listener and returns its remover.
// Listeners run outside the facade lock and must not block.
func (f *Facade) AddListener(fn func(Event)) func() {
	f.mu.Lock()
	id := f.nextListener
	f.nextListener++
	f.listeners[id] = fn
	f.mu.Unlock()

	return func() {
		f.mu.Lock()
		delete(f.listeners, id)
		f.mu.Unlock()
	}
}

func (f *Facade) emit(ev Event) {
	f.mu.RLock()
	fns := make([]func(Event), 0, len(f.listeners))
	for _, fn := range f.listeners {
		fns = append(fns, fn)
	}
	f.mu.RUnlock()

	for _, fn := range fns {
		fn(ev)
	}
}
