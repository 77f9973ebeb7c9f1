package clock

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRealtimeRunsCallbacksInOrder(t *testing.T) {
	r := NewRealtime()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	results := make(chan int, 3)
	r.Schedule(0, func() { results <- 1 })
	r.Schedule(0, func() { results <- 2 })
	r.Schedule(10*time.Millisecond, func() { results <- 3 })

	for want := 1; want <= 3; want++ {
		select {
		case got := <-results:
			assert.Equal(t, want, got)
		case <-time.After(time.Second):
			t.Fatalf("callback %d did not run", want)
		}
	}
}

func TestRealtimeStop(t *testing.T) {
	r := NewRealtime()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	fired := make(chan struct{}, 1)
	timer := r.Schedule(20*time.Millisecond, func() { fired <- struct{}{} })
	require.True(t, timer.Stop())

	select {
	case <-fired:
		t.Fatal("stopped callback ran")
	case <-time.After(60 * time.Millisecond):
	}
}

// TestRealtimeStopRacesRun 在 Run 执行回调的同时从另一个 goroutine 调用 Stop：
// 每个计时器要么被停止，要么执行，二者只发生其一。
func TestRealtimeStopRacesRun(t *testing.T) {
	r := NewRealtime()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	const n = 500
	var ran [n]atomic.Bool
	timers := make([]Timer, n)
	for i := range timers {
		i := i
		timers[i] = r.Schedule(0, func() { ran[i].Store(true) })
	}

	var stopped [n]bool
	for i, timer := range timers {
		stopped[i] = timer.Stop()
		assert.False(t, timer.Stop(), "a timer is claimed only once")
	}

	// 回调按提交顺序执行，最后一个回调执行时前面的都已处理完。
	drained := make(chan struct{})
	r.Schedule(0, func() { close(drained) })
	select {
	case <-drained:
	case <-time.After(time.Second):
		t.Fatal("callbacks did not drain")
	}

	for i := range timers {
		assert.NotEqual(t, stopped[i], ran[i].Load(), "timer %d: stopped=%v", i, stopped[i])
	}
}

func TestRealtimeRunStopsOnCancel(t *testing.T) {
	r := NewRealtime()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
