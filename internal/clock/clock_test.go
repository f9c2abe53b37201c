package clock_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/glimte/unitbus/internal/clock"
	"github.com/stretchr/testify/assert"
)

func TestReal_Now(t *testing.T) {
	c := clock.Real{}

	before := time.Now()
	got := c.Now()
	after := time.Now()

	assert.False(t, got.Before(before) || got.After(after))
}

func TestReal_AfterFunc(t *testing.T) {
	c := clock.Real{}
	fired := make(chan struct{})

	c.AfterFunc(time.Millisecond, func() { close(fired) })

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}
}

func TestReal_AfterFunc_Stop(t *testing.T) {
	c := clock.Real{}
	timer := c.AfterFunc(time.Hour, func() { t.Error("stopped timer fired") })
	assert.True(t, timer.Stop())
	assert.False(t, timer.Stop())
}

func TestFake_Advance(t *testing.T) {
	initial := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	c := clock.NewFake(initial)

	c.Advance(time.Hour)
	assert.Equal(t, initial.Add(time.Hour), c.Now())
}

func TestFake_AfterFunc(t *testing.T) {
	c := clock.NewFake(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	var fired atomic.Int32
	c.AfterFunc(5*time.Second, func() { fired.Add(1) })
	assert.Equal(t, 1, c.Pending())

	c.Advance(4999 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())

	c.Advance(time.Millisecond)
	assert.Equal(t, int32(1), fired.Load())
	assert.Equal(t, 0, c.Pending())

	c.Advance(time.Hour)
	assert.Equal(t, int32(1), fired.Load(), "timers fire once")
}

func TestFake_AfterFunc_Order(t *testing.T) {
	c := clock.NewFake(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	var order []string
	c.AfterFunc(3*time.Second, func() { order = append(order, "late") })
	c.AfterFunc(time.Second, func() { order = append(order, "early") })

	c.Advance(time.Minute)
	assert.Equal(t, []string{"early", "late"}, order)
}

func TestFake_Stop(t *testing.T) {
	c := clock.NewFake(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	timer := c.AfterFunc(time.Second, func() { t.Error("stopped timer fired") })
	assert.True(t, timer.Stop())
	assert.False(t, timer.Stop())

	c.Advance(time.Minute)
	assert.Equal(t, 0, c.Pending())
}

func TestFake_ScheduleFromCallback(t *testing.T) {
	c := clock.NewFake(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	var fired atomic.Int32
	c.AfterFunc(time.Second, func() {
		c.AfterFunc(time.Second, func() { fired.Add(1) })
	})

	c.Advance(time.Second)
	assert.Equal(t, int32(0), fired.Load())
	c.Advance(time.Second)
	assert.Equal(t, int32(1), fired.Load())
}
