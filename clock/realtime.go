package clock

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Realtime 用一个 goroutine 串行执行回调，延迟由 time.AfterFunc 实现。
// Schedule 可以在任意 goroutine 中调用，回调只会在 Run 所在的 goroutine 中执行。
type Realtime struct {
	start time.Time

	mu     sync.Mutex
	queue  []*realTimer
	notify chan struct{}
}

// NewRealtime creates a real-time scheduler. Callbacks run once Run is called.
func NewRealtime() *Realtime {
	return &Realtime{
		start:  time.Now(),
		notify: make(chan struct{}, 1),
	}
}

const (
	timerPending int32 = iota
	timerStopped
	timerFired
)

type realTimer struct {
	fn    func()
	state atomic.Int32 // timerPending -> timerStopped 或 timerFired，只转换一次
	timer *time.Timer
}

// Stop 与 Run 通过同一次 CompareAndSwap 竞争计时器：返回 true 时回调保证不会执行。
func (t *realTimer) Stop() bool {
	if !t.state.CompareAndSwap(timerPending, timerStopped) {
		return false
	}
	if t.timer != nil {
		t.timer.Stop()
	}
	return true
}

func (r *Realtime) Schedule(delay time.Duration, fn func()) Timer {
	t := &realTimer{fn: fn}
	if delay <= 0 {
		r.enqueue(t)
		return t
	}
	t.timer = time.AfterFunc(delay, func() { r.enqueue(t) })
	return t
}

func (r *Realtime) Now() time.Duration { return time.Since(r.start) }

func (r *Realtime) enqueue(t *realTimer) {
	r.mu.Lock()
	r.queue = append(r.queue, t)
	r.mu.Unlock()

	select {
	case r.notify <- struct{}{}:
	default:
	}
}

// Run 执行回调直到 ctx 被取消。
func (r *Realtime) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.notify:
		}

		for {
			r.mu.Lock()
			if len(r.queue) == 0 {
				r.mu.Unlock()
				break
			}
			t := r.queue[0]
			r.queue = r.queue[1:]
			r.mu.Unlock()

			if !t.state.CompareAndSwap(timerPending, timerFired) {
				continue
			}
			t.fn()
		}
	}
}
