package clock

import (
	"container/heap"
	"time"
)

// Virtual 是确定性的离散事件时钟。事件按 (触发时间, 调度序号) 排序执行，
// 时间只在 Run/Step 中前进。Virtual 不是并发安全的，只能在一个 goroutine 中使用。
type Virtual struct {
	now   time.Duration
	seq   uint64
	queue eventQueue
}

// NewVirtual creates a virtual clock at time zero.
func NewVirtual() *Virtual {
	return &Virtual{}
}

type event struct {
	clock *Virtual
	at    time.Duration
	seq   uint64
	fn    func()
	index int // 在堆中的位置，-1 表示已出队
}

func (e *event) Stop() bool {
	if e.index < 0 {
		return false
	}
	heap.Remove(&e.clock.queue, e.index)
	return true
}

func (v *Virtual) Schedule(delay time.Duration, fn func()) Timer {
	if delay < 0 {
		delay = 0
	}
	v.seq++
	ev := &event{clock: v, at: v.now + delay, seq: v.seq, fn: fn}
	heap.Push(&v.queue, ev)
	return ev
}

func (v *Virtual) Now() time.Duration { return v.now }

// Pending 返回尚未触发的事件数。
func (v *Virtual) Pending() int { return v.queue.Len() }

// Next 返回下一个事件的触发时间。
func (v *Virtual) Next() (time.Duration, bool) {
	if v.queue.Len() == 0 {
		return 0, false
	}
	return v.queue[0].at, true
}

// Step 执行下一个事件，队列为空时返回 false。
func (v *Virtual) Step() bool {
	if v.queue.Len() == 0 {
		return false
	}
	ev := heap.Pop(&v.queue).(*event)
	v.now = ev.at
	ev.fn()
	return true
}

// Run 执行所有触发时间不晚于 until 的事件，然后把时钟推进到 until。
func (v *Virtual) Run(until time.Duration) {
	for v.queue.Len() > 0 && v.queue[0].at <= until {
		v.Step()
	}
	if v.now < until {
		v.now = until
	}
}

type eventQueue []*event

func (q eventQueue) Len() int { return len(q) }

func (q eventQueue) Less(i, j int) bool {
	if q[i].at != q[j].at {
		return q[i].at < q[j].at
	}
	return q[i].seq < q[j].seq
}

func (q eventQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *eventQueue) Push(x any) {
	ev := x.(*event)
	ev.index = len(*q)
	*q = append(*q, ev)
}

func (q *eventQueue) Pop() any {
	old := *q
	n := len(old)
	ev := old[n-1]
	old[n-1] = nil
	ev.index = -1
	*q = old[:n-1]
	return ev
}
