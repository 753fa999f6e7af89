package freshness

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gsis-platform/gsis-dashboard/internal/clock"
	"github.com/gsis-platform/gsis-dashboard/internal/domain"
)

// Scheduler drives the data-freshness cycle live -> delayed -> live. At
// most one cycle is in flight at a time; manual and timer-driven triggers
// share the same entry point and guard. The error state is reachable only
// through an explicit external failure signal.
type Scheduler struct {
	mu          sync.Mutex
	clock       clock.Clock
	logger      *slog.Logger
	latency     time.Duration
	status      domain.DataStatus
	lastUpdated time.Time
	refreshing  bool
	closed      bool
	onChange    func(domain.Freshness)
}

// New builds a scheduler in the live state. latency is how long a cycle
// stays delayed before completing.
func New(clk clock.Clock, logger *slog.Logger, latency time.Duration) *Scheduler {
	return &Scheduler{
		clock:       clk,
		logger:      logger,
		latency:     latency,
		status:      domain.StatusLive,
		lastUpdated: clk.Now(),
	}
}

// OnChange registers the snapshot listener invoked after every state
// transition. Set once during wiring, before the first refresh.
func (s *Scheduler) OnChange(fn func(domain.Freshness)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = fn
}

// Refresh starts one cycle. A call while a cycle is already in flight is
// dropped, not queued.
func (s *Scheduler) Refresh() {
	s.mu.Lock()
	if s.closed || s.refreshing {
		s.mu.Unlock()
		return
	}
	s.refreshing = true
	s.status = domain.StatusDelayed
	snap := s.snapshotLocked()
	fn := s.onChange
	s.mu.Unlock()

	if fn != nil {
		fn(snap)
	}
	s.clock.AfterFunc(s.latency, s.complete)
}

// complete finishes the in-flight cycle. It no-ops into a scheduler that
// was closed while the cycle was running.
func (s *Scheduler) complete() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.lastUpdated = s.clock.Now()
	s.status = domain.StatusLive
	s.refreshing = false
	snap := s.snapshotLocked()
	fn := s.onChange
	s.mu.Unlock()

	if fn != nil {
		fn(snap)
	}
}

// Fail marks the feed in error from an external failure signal. The state
// is distinguishable from delayed and clears on the next completed cycle.
func (s *Scheduler) Fail() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.status = domain.StatusError
	s.refreshing = false
	snap := s.snapshotLocked()
	fn := s.onChange
	s.mu.Unlock()

	s.logger.Warn("data feed marked in error")
	if fn != nil {
		fn(snap)
	}
}

// Snapshot returns the current freshness state.
func (s *Scheduler) Snapshot() domain.Freshness {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Scheduler) snapshotLocked() domain.Freshness {
	return domain.Freshness{
		Status:      s.status,
		LastUpdated: s.lastUpdated,
		Refreshing:  s.refreshing,
	}
}

// Close stops the scheduler. An in-flight cycle still runs its timer, but
// its completion no longer mutates state.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

// TimeAgo formats how long ago t was relative to now. Pure: reading it
// never mutates scheduler state.
func TimeAgo(t, now time.Time) string {
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%d min ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%d hr ago", int(d.Hours()))
	default:
		days := int(d.Hours() / 24)
		if days == 1 {
			return "1 day ago"
		}
		return fmt.Sprintf("%d days ago", days)
	}
}
