package alerting

import (
	"log/slog"
	"sync"

	"github.com/gsis-platform/gsis-dashboard/internal/clock"
	"github.com/gsis-platform/gsis-dashboard/internal/domain"
)

// notificationSeedCount is how many of the most recent alerts seed the
// notification feed at startup.
const notificationSeedCount = 5

// Engine owns the alert list and the derived notification feed. All
// mutations are serialized by the engine mutex and are immediately visible
// to subsequent reads; filtering is a pure read-side operation. The engine
// performs no business validation — callers pre-validate user input.
type Engine struct {
	mu            sync.RWMutex
	clock         clock.Clock
	logger        *slog.Logger
	alerts        []domain.Alert
	notifications []domain.Notification
	lastID        int64
}

// NewEngine builds an engine seeded with the given alerts, most recent
// first. The first alerts of the seed become unread notifications.
func NewEngine(clk clock.Clock, logger *slog.Logger, seed []domain.Alert) *Engine {
	e := &Engine{
		clock:  clk,
		logger: logger,
		alerts: append([]domain.Alert(nil), seed...),
	}
	for _, a := range seed {
		if a.ID > e.lastID {
			e.lastID = a.ID
		}
	}
	n := len(seed)
	if n > notificationSeedCount {
		n = notificationSeedCount
	}
	for _, a := range seed[:n] {
		e.notifications = append(e.notifications, domain.Notification{
			ID:       a.ID,
			Title:    a.Title,
			Module:   a.Module,
			Severity: a.Severity,
			Time:     a.Time,
		})
	}
	return e
}

// CreateAlertInput carries the caller-supplied fields of a new alert.
type CreateAlertInput struct {
	Title    string
	Module   string
	Region   string
	Severity domain.Severity
	Time     string
}

// CreateAlert assigns a strictly monotonic identifier, prepends the alert
// unresolved, and mirrors it into the notification feed as unread. Two
// alerts created in the same clock tick still receive distinct ids.
func (e *Engine) CreateAlert(in CreateAlertInput) domain.Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := e.clock.Now().UnixMilli()
	if id <= e.lastID {
		id = e.lastID + 1
	}
	e.lastID = id

	alert := domain.Alert{
		ID:       id,
		Title:    in.Title,
		Severity: in.Severity,
		Module:   in.Module,
		Region:   in.Region,
		Time:     in.Time,
	}
	e.alerts = append([]domain.Alert{alert}, e.alerts...)
	e.notifications = append([]domain.Notification{{
		ID:       id,
		Title:    in.Title,
		Module:   in.Module,
		Severity: in.Severity,
		Time:     "Just now",
	}}, e.notifications...)

	e.logger.Info("alert created", "alert_id", id, "module", in.Module, "severity", in.Severity)
	return alert
}

// ResolveAlert marks the matching alert resolved. Missing ids are a no-op;
// resolving an alert never touches its notification's read flag.
func (e *Engine) ResolveAlert(id int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.alerts {
		if e.alerts[i].ID == id {
			e.alerts[i].Resolved = true
			return
		}
	}
}

// DeleteAlert removes the matching alert. The associated notification is
// kept; missing ids are a no-op.
func (e *Engine) DeleteAlert(id int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.alerts {
		if e.alerts[i].ID == id {
			e.alerts = append(e.alerts[:i], e.alerts[i+1:]...)
			return
		}
	}
}

// MarkAsRead sets the read flag on one notification. Idempotent.
func (e *Engine) MarkAsRead(id int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.notifications {
		if e.notifications[i].ID == id {
			e.notifications[i].Read = true
			return
		}
	}
}

// MarkAllAsRead sets the read flag on every notification. Idempotent.
func (e *Engine) MarkAllAsRead() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.notifications {
		e.notifications[i].Read = true
	}
}

// ClearNotifications empties the notification feed without touching alerts.
func (e *Engine) ClearNotifications() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.notifications = nil
}

// Alerts returns a copy of the alert list, most recent first.
func (e *Engine) Alerts() []domain.Alert {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]domain.Alert(nil), e.alerts...)
}

// Notifications returns a copy of the notification feed, most recent first.
func (e *Engine) Notifications() []domain.Notification {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]domain.Notification(nil), e.notifications...)
}

// UnreadCount is recomputed from the feed on every call so it can never
// desync from the read flags.
func (e *Engine) UnreadCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	count := 0
	for _, n := range e.notifications {
		if !n.Read {
			count++
		}
	}
	return count
}

// StatusFilter selects alerts by resolution state.
type StatusFilter string

const (
	StatusAll      StatusFilter = "all"
	StatusActive   StatusFilter = "active"
	StatusResolved StatusFilter = "resolved"
)

// Filter holds read-side alert criteria. Zero values match everything.
type Filter struct {
	Status   StatusFilter
	Severity domain.Severity
	Module   string
	Region   string
}

func (f Filter) matches(a domain.Alert) bool {
	switch f.Status {
	case StatusActive:
		if a.Resolved {
			return false
		}
	case StatusResolved:
		if !a.Resolved {
			return false
		}
	}
	if f.Severity != "" && a.Severity != f.Severity {
		return false
	}
	if f.Module != "" && a.Module != f.Module {
		return false
	}
	if f.Region != "" && a.Region != f.Region {
		return false
	}
	return true
}

// FilterAlerts returns the alerts matching f without mutating the list.
func (e *Engine) FilterAlerts(f Filter) []domain.Alert {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var out []domain.Alert
	for _, a := range e.alerts {
		if f.matches(a) {
			out = append(out, a)
		}
	}
	return out
}
