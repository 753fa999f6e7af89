package appstate

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gsis-platform/gsis-dashboard/internal/alerting"
	"github.com/gsis-platform/gsis-dashboard/internal/auth"
	"github.com/gsis-platform/gsis-dashboard/internal/clock"
	"github.com/gsis-platform/gsis-dashboard/internal/domain"
	"github.com/gsis-platform/gsis-dashboard/internal/freshness"
	"github.com/gsis-platform/gsis-dashboard/internal/settings"
)

// KeyEvent is a keyboard event forwarded from a dashboard client.
type KeyEvent struct {
	Key         string `json:"key"`
	InTextInput bool   `json:"in_text_input"`
}

// KeySource delivers keyboard events to a subscribed handler. The returned
// function removes the subscription.
type KeySource interface {
	Subscribe(fn func(KeyEvent)) (unsubscribe func())
}

// Config carries the facade's collaborators.
type Config struct {
	Logger   *slog.Logger
	Clock    clock.Clock
	Store    *settings.Store
	Provider auth.Provider
	Keys     KeySource
	Seed     []domain.Alert
	// RefreshLatency is how long one data-refresh cycle stays delayed.
	RefreshLatency time.Duration
}

// Facade is the single composed application state every dashboard view
// reads from and mutates through. It exclusively owns the alert engine,
// the settings store and the freshness scheduler; nothing bypasses it.
type Facade struct {
	mu     sync.RWMutex
	logger *slog.Logger
	clock  clock.Clock

	engine    *alerting.Engine
	scheduler *freshness.Scheduler
	store     *settings.Store
	provider  auth.Provider

	theme         domain.Theme
	role          domain.Role
	settings      domain.Settings
	searchQuery   string
	searchFocused bool

	unsubscribeAuth func()
	unsubscribeKeys func()
	ticker          clock.Ticker
	tickerStop      chan struct{}
	closed          bool

	listeners    map[int]func(Event)
	nextListener int
}

// New composes the global application state: settings and theme rehydrate
// from the store, the role seeds from the authorization context, the
// notification feed seeds from the most recent alerts, and the
// auto-refresh timer starts per the persisted refresh interval. Exactly
// one key listener and one auth subscription are held until Close.
func New(cfg Config) *Facade {
	f := &Facade{
		logger:    cfg.Logger,
		clock:     cfg.Clock,
		store:     cfg.Store,
		provider:  cfg.Provider,
		listeners: make(map[int]func(Event)),
	}

	f.settings = cfg.Store.Load()
	f.theme = cfg.Store.LoadTheme()
	f.role = auth.CurrentRole(context.Background(), cfg.Provider)
	f.engine = alerting.NewEngine(cfg.Clock, cfg.Logger, cfg.Seed)
	f.scheduler = freshness.New(cfg.Clock, cfg.Logger, cfg.RefreshLatency)
	f.scheduler.OnChange(func(fr domain.Freshness) {
		f.emit(Event{Type: EventFreshness, Payload: fr})
	})

	if cfg.Provider != nil {
		f.unsubscribeAuth = cfg.Provider.OnChange(f.onAuthChange)
	}
	if cfg.Keys != nil {
		f.unsubscribeKeys = cfg.Keys.Subscribe(f.HandleKey)
	}

	f.mu.Lock()
	f.applyRefreshIntervalLocked(f.settings.RefreshInterval)
	f.mu.Unlock()

	return f
}

// onAuthChange re-seeds the facade role from the upstream session. The
// upstream role always overrides a local override, so no stale elevated
// role survives a sign-out or session change.
func (f *Facade) onAuthChange(sess *auth.Session) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	role := domain.RoleViewer
	if sess != nil && sess.Role.Valid() {
		role = sess.Role
	}
	f.role = role
	f.mu.Unlock()

	f.emit(Event{Type: EventRole, Payload: role})
}

// Role returns the effective role for capability checks.
func (f *Facade) Role() domain.Role {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.role
}

// SetRole applies a local role override. It is a development convenience:
// it is not persisted and the next upstream auth change replaces it.
func (f *Facade) SetRole(role domain.Role) {
	f.mu.Lock()
	if f.closed || !role.Valid() {
		f.mu.Unlock()
		return
	}
	f.role = role
	f.mu.Unlock()

	f.emit(Event{Type: EventRole, Payload: role})
}

// SignOut invalidates the session through the authorization context. The
// provider change notification resets the role to viewer.
func (f *Facade) SignOut(ctx context.Context) error {
	if f.provider == nil {
		return nil
	}
	return f.provider.SignOut(ctx)
}

// Theme returns the active theme.
func (f *Facade) Theme() domain.Theme {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.theme
}

// ToggleTheme flips the theme and persists the theme key. A persistence
// failure is logged and the in-memory value stays authoritative.
func (f *Facade) ToggleTheme() domain.Theme {
	f.mu.Lock()
	if f.closed {
		theme := f.theme
		f.mu.Unlock()
		return theme
	}
	if f.theme == domain.ThemeDark {
		f.theme = domain.ThemeLight
	} else {
		f.theme = domain.ThemeDark
	}
	theme := f.theme
	if err := f.store.SaveTheme(theme); err != nil {
		f.logger.Warn("failed to persist theme", "error", err)
	}
	f.mu.Unlock()

	f.emit(Event{Type: EventTheme, Payload: theme})
	return theme
}

// Settings returns the current settings.
func (f *Facade) Settings() domain.Settings {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.settings
}

// UpdateSettings merges the patch onto the current settings, persists the
// full merged object write-through, and returns it. A theme in the patch
// switches the active theme atomically with the settings update. A changed
// refresh interval cancels and reschedules the auto-refresh timer exactly
// once; interval 0 disables it.
func (f *Facade) UpdateSettings(patch domain.SettingsPatch) domain.Settings {
	f.mu.Lock()
	if f.closed {
		current := f.settings
		f.mu.Unlock()
		return current
	}
	next := patch.Apply(f.settings)
	f.settings = next
	if patch.Theme != nil {
		f.theme = *patch.Theme
		if err := f.store.SaveTheme(*patch.Theme); err != nil {
			f.logger.Warn("failed to persist theme", "error", err)
		}
	}
	if err := f.store.Save(next); err != nil {
		f.logger.Warn("failed to persist settings, keeping in-memory value", "error", err)
	}
	if patch.RefreshInterval != nil {
		f.applyRefreshIntervalLocked(next.RefreshInterval)
	}
	themeChanged := patch.Theme != nil
	theme := f.theme
	f.mu.Unlock()

	f.emit(Event{Type: EventSettings, Payload: next})
	if themeChanged {
		f.emit(Event{Type: EventTheme, Payload: theme})
	}
	return next
}

// applyRefreshIntervalLocked releases the previous timer handle before
// acquiring a new one, so exactly one auto-refresh timer exists at a time.
// Caller holds f.mu.
func (f *Facade) applyRefreshIntervalLocked(seconds int) {
	if f.ticker != nil {
		f.ticker.Stop()
		close(f.tickerStop)
		f.ticker = nil
		f.tickerStop = nil
	}
	if seconds <= 0 || f.closed {
		return
	}

	ticker := f.clock.NewTicker(time.Duration(seconds) * time.Second)
	stop := make(chan struct{})
	f.ticker = ticker
	f.tickerStop = stop

	go func() {
		for {
			select {
			case <-ticker.C():
				f.scheduler.Refresh()
			case <-stop:
				return
			}
		}
	}()
}

// RefreshData triggers one data-refresh cycle. It shares the scheduler's
// guard with the auto-refresh timer: a trigger while a cycle is in flight
// is dropped.
func (f *Facade) RefreshData() {
	f.scheduler.Refresh()
}

// Freshness returns the current data-freshness snapshot.
func (f *Facade) Freshness() domain.Freshness {
	return f.scheduler.Snapshot()
}

// SearchQuery returns the transient search query.
func (f *Facade) SearchQuery() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.searchQuery
}

// SetSearchQuery replaces the search query. Results are derived by readers
// on every change; nothing is cached.
func (f *Facade) SetSearchQuery(q string) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.searchQuery = q
	f.mu.Unlock()

	f.emit(Event{Type: EventSearch, Payload: q})
}

// SearchFocused reports whether the search input holds focus.
func (f *Facade) SearchFocused() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.searchFocused
}

// HandleKey applies the global keyboard shortcuts: "/" focuses the search
// input unless focus is already inside a text input; Escape clears the
// query and drops focus.
func (f *Facade) HandleKey(ev KeyEvent) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	var emit *Event
	switch ev.Key {
	case "/":
		if !ev.InTextInput {
			f.searchFocused = true
			emit = &Event{Type: EventSearchFocus}
		}
	case "Escape":
		f.searchQuery = ""
		f.searchFocused = false
		emit = &Event{Type: EventSearch, Payload: ""}
	}
	f.mu.Unlock()

	if emit != nil {
		f.emit(*emit)
	}
}

// Alerts returns the alert list through the facade.
func (f *Facade) Alerts() []domain.Alert {
	return f.engine.Alerts()
}

// FilterAlerts returns the alerts matching the filter.
func (f *Facade) FilterAlerts(filter alerting.Filter) []domain.Alert {
	return f.engine.FilterAlerts(filter)
}

// CreateAlert creates an alert and its unread notification.
func (f *Facade) CreateAlert(in alerting.CreateAlertInput) domain.Alert {
	alert := f.engine.CreateAlert(in)
	f.emit(Event{Type: EventAlerts, Payload: alert})
	f.emit(Event{Type: EventNotifications, Payload: f.engine.UnreadCount()})
	return alert
}

// ResolveAlert marks an alert resolved; missing ids are a no-op.
func (f *Facade) ResolveAlert(id int64) {
	f.engine.ResolveAlert(id)
	f.emit(Event{Type: EventAlerts, Payload: id})
}

// DeleteAlert removes an alert; its notification is kept.
func (f *Facade) DeleteAlert(id int64) {
	f.engine.DeleteAlert(id)
	f.emit(Event{Type: EventAlerts, Payload: id})
}

// Notifications returns the notification feed.
func (f *Facade) Notifications() []domain.Notification {
	return f.engine.Notifications()
}

// UnreadCount returns the derived unread notification count.
func (f *Facade) UnreadCount() int {
	return f.engine.UnreadCount()
}

// MarkAsRead marks one notification read.
func (f *Facade) MarkAsRead(id int64) {
	f.engine.MarkAsRead(id)
	f.emit(Event{Type: EventNotifications, Payload: f.engine.UnreadCount()})
}

// MarkAllAsRead marks every notification read.
func (f *Facade) MarkAllAsRead() {
	f.engine.MarkAllAsRead()
	f.emit(Event{Type: EventNotifications, Payload: 0})
}

// ClearNotifications empties the notification feed.
func (f *Facade) ClearNotifications() {
	f.engine.ClearNotifications()
	f.emit(Event{Type: EventNotifications, Payload: 0})
}

// Close tears the facade down: the key listener and auth subscription are
// removed, the auto-refresh timer is released, and later timer completions
// no longer mutate state. Close is idempotent.
func (f *Facade) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	if f.ticker != nil {
		f.ticker.Stop()
		close(f.tickerStop)
		f.ticker = nil
		f.tickerStop = nil
	}
	unsubAuth := f.unsubscribeAuth
	unsubKeys := f.unsubscribeKeys
	f.unsubscribeAuth = nil
	f.unsubscribeKeys = nil
	f.mu.Unlock()

	if unsubAuth != nil {
		unsubAuth()
	}
	if unsubKeys != nil {
		unsubKeys()
	}
	f.scheduler.Close()
}
