package event

import (
	"io"
	"sync"
	"testing"

	"github.com/phuslu/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ping struct{ n int }
type pong struct{ s string }

func quietLogger() *log.Logger {
	return &log.Logger{Level: log.ErrorLevel, Writer: &log.IOWriter{Writer: io.Discard}}
}

func newTestDispatcher(t *testing.T) *Dispatcher {
	d := NewDispatcher(quietLogger())
	t.Cleanup(d.Close)
	return d
}

func TestDispatcher_DeliversByType(t *testing.T) {
	d := newTestDispatcher(t)

	var pings []int
	var pongs []string
	Subscribe(d, func(p ping) { pings = append(pings, p.n) })
	Subscribe(d, func(p pong) { pongs = append(pongs, p.s) })

	require.NoError(t, d.Post(ping{1}))
	require.NoError(t, d.Post(pong{"a"}))
	require.NoError(t, d.Post(ping{2}))
	d.Drain()

	assert.Equal(t, []int{1, 2}, pings)
	assert.Equal(t, []string{"a"}, pongs)
}

func TestDispatcher_PreservesPostOrderAcrossSubscribers(t *testing.T) {
	d := newTestDispatcher(t)

	var mu sync.Mutex
	var order []string
	record := func(s string) {
		mu.Lock()
		defer mu.Unlock()
		order = append(order, s)
	}
	Subscribe(d, func(p ping) { record("first") })
	Subscribe(d, func(p ping) { record("second") })

	for i := 0; i < 3; i++ {
		require.NoError(t, d.Post(ping{i}))
	}
	d.Drain()

	assert.Equal(t, []string{"first", "second", "first", "second", "first", "second"}, order)
}

func TestDispatcher_OrderUnderConcurrentPosters(t *testing.T) {
	d := newTestDispatcher(t)

	// Each poster's own events must arrive in the order it posted them
	last := make(map[int]int)
	var violations int
	Subscribe(d, func(p pong) {})
	Subscribe(d, func(p ping) {
		poster, seq := p.n/10000, p.n%10000
		if prev, ok := last[poster]; ok && seq <= prev {
			violations++
		}
		last[poster] = seq
	})

	var wg sync.WaitGroup
	for poster := 0; poster < 8; poster++ {
		wg.Add(1)
		go func(poster int) {
			defer wg.Done()
			for seq := 0; seq < 200; seq++ {
				_ = d.Post(ping{poster*10000 + seq})
			}
		}(poster)
	}
	wg.Wait()
	d.Drain()

	assert.Zero(t, violations)
	assert.Len(t, last, 8)
}

func TestDispatcher_HandlerMayPost(t *testing.T) {
	d := newTestDispatcher(t)

	var got []string
	Subscribe(d, func(p ping) {
		_ = d.Post(pong{"reply"})
	})
	Subscribe(d, func(p pong) { got = append(got, p.s) })

	require.NoError(t, d.Post(ping{1}))
	d.Drain()

	assert.Equal(t, []string{"reply"}, got)
}

func TestDispatcher_Cancel(t *testing.T) {
	d := newTestDispatcher(t)

	var count int
	sub := Subscribe(d, func(p ping) { count++ })
	assert.NotEqual(t, sub.ID().String(), "")

	require.NoError(t, d.Post(ping{1}))
	d.Drain()
	sub.Cancel()
	require.NoError(t, d.Post(ping{2}))
	d.Drain()

	assert.Equal(t, 1, count)

	// Cancelling twice is harmless
	sub.Cancel()
	Subscription{}.Cancel()
}

func TestDispatcher_SubscribeDuringDelivery(t *testing.T) {
	d := newTestDispatcher(t)

	var late int
	Subscribe(d, func(p ping) {
		if p.n == 1 {
			// Registered while ping{1} is in flight: must not see ping{1}
			Subscribe(d, func(p ping) { late++ })
		}
	})

	require.NoError(t, d.Post(ping{1}))
	require.NoError(t, d.Post(ping{2}))
	d.Drain()

	assert.Equal(t, 1, late)
}

func TestDispatcher_PanickingHandlerDoesNotStopDelivery(t *testing.T) {
	d := newTestDispatcher(t)

	var delivered []int
	Subscribe(d, func(p ping) {
		if p.n == 1 {
			panic("boom")
		}
	})
	Subscribe(d, func(p ping) { delivered = append(delivered, p.n) })

	require.NoError(t, d.Post(ping{1}))
	require.NoError(t, d.Post(ping{2}))
	d.Drain()

	assert.Equal(t, []int{1, 2}, delivered)
}

func TestDispatcher_Close(t *testing.T) {
	d := NewDispatcher(quietLogger())

	var count int
	Subscribe(d, func(p ping) { count++ })
	for i := 0; i < 10; i++ {
		require.NoError(t, d.Post(ping{i}))
	}

	d.Close()
	assert.Equal(t, 10, count, "queued events are delivered before Close returns")

	assert.ErrorIs(t, d.Post(ping{99}), ErrClosed)
	d.Close()
}

func TestDispatcher_RejectsNilEvent(t *testing.T) {
	d := newTestDispatcher(t)
	assert.Error(t, d.Post(nil))
}
