package alerting

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gsis-platform/gsis-dashboard/internal/clock"
	"github.com/gsis-platform/gsis-dashboard/internal/domain"
	"github.com/gsis-platform/gsis-dashboard/internal/seed"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEngine(t *testing.T) (*Engine, *clock.Fake) {
	t.Helper()
	clk := clock.NewFake(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	return NewEngine(clk, testLogger(), seed.Alerts()), clk
}

func TestEngineSeeding(t *testing.T) {
	e, _ := newTestEngine(t)

	assert.Len(t, e.Alerts(), 10)

	notifs := e.Notifications()
	require.Len(t, notifs, 5, "first five alerts seed the notification feed")
	for _, n := range notifs {
		assert.False(t, n.Read)
	}
	assert.Equal(t, 5, e.UnreadCount())
}

func TestCreateAlert(t *testing.T) {
	e, _ := newTestEngine(t)

	alertsBefore := len(e.Alerts())
	notifsBefore := len(e.Notifications())
	unreadBefore := e.UnreadCount()

	created := e.CreateAlert(CreateAlertInput{
		Title:    "Test flood",
		Module:   "Flood Monitoring",
		Region:   "South Asia",
		Severity: domain.SeverityCritical,
		Time:     "Just now",
	})

	alerts := e.Alerts()
	notifs := e.Notifications()
	require.Len(t, alerts, alertsBefore+1)
	require.Len(t, notifs, notifsBefore+1)

	assert.Equal(t, created.ID, alerts[0].ID, "new alert is at the head")
	assert.Equal(t, "Test flood", alerts[0].Title)
	assert.False(t, alerts[0].Resolved)

	assert.Equal(t, created.ID, notifs[0].ID, "notification mirrors the new alert at the head")
	assert.False(t, notifs[0].Read)
	assert.Equal(t, "Just now", notifs[0].Time)

	assert.Equal(t, unreadBefore+1, e.UnreadCount())
}

func TestCreateAlertIDsAreStrictlyMonotonic(t *testing.T) {
	e, clk := newTestEngine(t)

	// Two creations in the same clock tick must still get distinct,
	// increasing ids.
	a := e.CreateAlert(CreateAlertInput{Title: "first"})
	b := e.CreateAlert(CreateAlertInput{Title: "second"})
	assert.Greater(t, b.ID, a.ID)

	clk.Advance(time.Second)
	c := e.CreateAlert(CreateAlertInput{Title: "third"})
	assert.Greater(t, c.ID, b.ID)
}

func TestResolveAlert(t *testing.T) {
	e, _ := newTestEngine(t)

	e.ResolveAlert(5)

	active := e.FilterAlerts(Filter{Status: StatusActive})
	for _, a := range active {
		assert.NotEqual(t, int64(5), a.ID, "resolved alert absent from active filter")
	}

	resolved := e.FilterAlerts(Filter{Status: StatusResolved})
	found := false
	for _, a := range resolved {
		if a.ID == 5 {
			found = true
		}
	}
	assert.True(t, found, "resolved alert present in resolved filter")

	t.Run("idempotent", func(t *testing.T) {
		e.ResolveAlert(5)
		assert.Len(t, e.FilterAlerts(Filter{Status: StatusResolved}), len(resolved))
	})

	t.Run("missing id is a no-op", func(t *testing.T) {
		before := e.Alerts()
		e.ResolveAlert(99999)
		assert.Equal(t, before, e.Alerts())
	})
}

func TestAlertNotificationIndependence(t *testing.T) {
	e, _ := newTestEngine(t)

	created := e.CreateAlert(CreateAlertInput{Title: "independent", Severity: domain.SeverityHigh})

	// Resolving the alert must not mark its notification read.
	e.ResolveAlert(created.ID)
	notifs := e.Notifications()
	require.Equal(t, created.ID, notifs[0].ID)
	assert.False(t, notifs[0].Read)

	// Marking the notification read must not resolve any other alert, and
	// deleting the alert must keep the notification.
	e.MarkAsRead(created.ID)
	e.DeleteAlert(created.ID)

	notifs = e.Notifications()
	require.Equal(t, created.ID, notifs[0].ID, "notification survives alert deletion")
	assert.True(t, notifs[0].Read)
	for _, a := range e.Alerts() {
		assert.NotEqual(t, created.ID, a.ID)
	}
}

func TestUnreadCountNeverDesyncs(t *testing.T) {
	e, _ := newTestEngine(t)

	count := func() int {
		n := 0
		for _, notif := range e.Notifications() {
			if !notif.Read {
				n++
			}
		}
		return n
	}

	assert.Equal(t, count(), e.UnreadCount())

	e.CreateAlert(CreateAlertInput{Title: "one"})
	assert.Equal(t, count(), e.UnreadCount())

	e.MarkAsRead(1)
	assert.Equal(t, count(), e.UnreadCount())

	e.MarkAllAsRead()
	assert.Equal(t, 0, e.UnreadCount())
	assert.Equal(t, count(), e.UnreadCount())

	e.ClearNotifications()
	assert.Equal(t, 0, e.UnreadCount())
}

func TestMarkAllAsRead(t *testing.T) {
	e, _ := newTestEngine(t)

	// Mix of read and unread: 5 seeded unread, mark two read first.
	e.MarkAsRead(1)
	e.MarkAsRead(2)
	assert.Equal(t, 3, e.UnreadCount())

	e.MarkAllAsRead()

	for _, n := range e.Notifications() {
		assert.True(t, n.Read)
	}
	assert.Equal(t, 0, e.UnreadCount())
}

func TestClearNotificationsKeepsAlerts(t *testing.T) {
	e, _ := newTestEngine(t)

	alerts := len(e.Alerts())
	e.ClearNotifications()

	assert.Empty(t, e.Notifications())
	assert.Len(t, e.Alerts(), alerts)
}

func TestFilterAlerts(t *testing.T) {
	e, _ := newTestEngine(t)

	tests := []struct {
		name   string
		filter Filter
		check  func(t *testing.T, got []domain.Alert)
	}{
		{
			name:   "by severity",
			filter: Filter{Severity: domain.SeverityCritical},
			check: func(t *testing.T, got []domain.Alert) {
				require.NotEmpty(t, got)
				for _, a := range got {
					assert.Equal(t, domain.SeverityCritical, a.Severity)
				}
			},
		},
		{
			name:   "by module",
			filter: Filter{Module: "Deforestation"},
			check: func(t *testing.T, got []domain.Alert) {
				require.Len(t, got, 2)
				for _, a := range got {
					assert.Equal(t, "Deforestation", a.Module)
				}
			},
		},
		{
			name:   "by region and status",
			filter: Filter{Region: "Africa", Status: StatusActive},
			check: func(t *testing.T, got []domain.Alert) {
				require.NotEmpty(t, got)
				for _, a := range got {
					assert.Equal(t, "Africa", a.Region)
					assert.False(t, a.Resolved)
				}
			},
		},
		{
			name:   "all matches everything",
			filter: Filter{Status: StatusAll},
			check: func(t *testing.T, got []domain.Alert) {
				assert.Len(t, got, 10)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := e.Alerts()
			tt.check(t, e.FilterAlerts(tt.filter))
			assert.Equal(t, before, e.Alerts(), "filtering must not mutate the list")
		})
	}
}
