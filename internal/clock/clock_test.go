package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var start = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func TestFakeAdvanceMovesNow(t *testing.T) {
	clk := NewFake(start)
	clk.Advance(90 * time.Second)
	assert.Equal(t, start.Add(90*time.Second), clk.Now())
}

func TestFakeAfterFuncFiresInDueOrder(t *testing.T) {
	clk := NewFake(start)

	var fired []string
	clk.AfterFunc(3*time.Second, func() { fired = append(fired, "late") })
	clk.AfterFunc(1*time.Second, func() { fired = append(fired, "early") })
	clk.AfterFunc(10*time.Second, func() { fired = append(fired, "never") })

	clk.Advance(5 * time.Second)
	assert.Equal(t, []string{"early", "late"}, fired)

	clk.Advance(10 * time.Second)
	assert.Equal(t, []string{"early", "late", "never"}, fired)
}

func TestFakeTimerSeesFireTimeAsNow(t *testing.T) {
	clk := NewFake(start)

	var at time.Time
	clk.AfterFunc(2*time.Second, func() { at = clk.Now() })

	clk.Advance(time.Minute)
	assert.Equal(t, start.Add(2*time.Second), at, "callback observes the due instant, not the advance target")
}

func TestFakeStopPreventsFiring(t *testing.T) {
	clk := NewFake(start)

	fired := false
	timer := clk.AfterFunc(time.Second, func() { fired = true })
	assert.True(t, timer.Stop())

	clk.Advance(time.Minute)
	assert.False(t, fired)
	assert.False(t, timer.Stop(), "second stop reports the timer already gone")
}

func TestFakeTimerCallbackMayScheduleMoreWork(t *testing.T) {
	clk := NewFake(start)

	count := 0
	var reschedule func()
	reschedule = func() {
		count++
		if count < 3 {
			clk.AfterFunc(time.Second, reschedule)
		}
	}
	clk.AfterFunc(time.Second, reschedule)

	clk.Advance(10 * time.Second)
	assert.Equal(t, 3, count)
}

func TestFakeTicker(t *testing.T) {
	clk := NewFake(start)
	ticker := clk.NewTicker(10 * time.Second)
	require.Equal(t, 1, clk.ActiveTickers())

	clk.Advance(10 * time.Second)
	select {
	case tick := <-ticker.C():
		assert.Equal(t, start.Add(10*time.Second), tick)
	default:
		t.Fatal("expected a tick after one period")
	}

	// An undrained channel drops further ticks instead of blocking Advance.
	clk.Advance(time.Minute)
	<-ticker.C()
	select {
	case <-ticker.C():
		t.Fatal("buffered ticker must hold at most one pending tick")
	default:
	}

	ticker.Stop()
	assert.Equal(t, 0, clk.ActiveTickers())
	clk.Advance(time.Minute)
	select {
	case <-ticker.C():
		t.Fatal("stopped ticker must not tick")
	default:
	}
}

func TestRealClockBasics(t *testing.T) {
	clk := New()

	before := time.Now().UTC()
	now := clk.Now()
	assert.False(t, now.Before(before.Add(-time.Second)))

	done := make(chan struct{})
	clk.AfterFunc(time.Millisecond, func() { close(done) })
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("real AfterFunc did not fire")
	}
}
