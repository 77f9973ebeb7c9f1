package raft

import (
	"sync"
	"time"

	"github.com/xmh1011/taskraft/clock"
)

// Executor 在调度器上运行一个节点的任务，并按种类记录尚未触发的任务，
// 以便 Cancel 可以一次取消某个种类的全部任务。
type Executor struct {
	scheduler clock.Scheduler

	// mu 保护 pending。任务本身只在调度器的执行线程上运行，
	// 但入站消息可能从其他 goroutine 调用 Schedule。
	mu      sync.Mutex
	nextID  uint64
	pending map[TaskKind]map[uint64]clock.Timer
	stopped bool
}

// NewExecutor creates an executor driven by scheduler.
func NewExecutor(scheduler clock.Scheduler) *Executor {
	return &Executor{
		scheduler: scheduler,
		pending:   make(map[TaskKind]map[uint64]clock.Timer),
	}
}

// Schedule 在 delay 之后运行 task 一次。相同 delay 的任务按调度顺序执行。
func (e *Executor) Schedule(task Task, delay time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return
	}

	e.nextID++
	id, kind := e.nextID, task.Kind()
	timer := e.scheduler.Schedule(delay, func() {
		e.mu.Lock()
		delete(e.pending[kind], id)
		e.mu.Unlock()
		task.Run()
	})

	if e.pending[kind] == nil {
		e.pending[kind] = make(map[uint64]clock.Timer)
	}
	e.pending[kind][id] = timer
}

// Submit runs task as soon as possible.
func (e *Executor) Submit(task Task) {
	e.Schedule(task, 0)
}

// Cancel 取消 kind 种类的所有待执行任务，返回取消的数量。正在执行的任务不受影响。
func (e *Executor) Cancel(kind TaskKind) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	n := 0
	for _, timer := range e.pending[kind] {
		if timer.Stop() {
			n++
		}
	}
	delete(e.pending, kind)
	return n
}

// Stop 取消所有待执行任务，之后调度的任务都会被丢弃。
func (e *Executor) Stop() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.stopped = true
	n := 0
	for kind, timers := range e.pending {
		for _, timer := range timers {
			if timer.Stop() {
				n++
			}
		}
		delete(e.pending, kind)
	}
	return n
}

// Pending 返回 kind 种类的待执行任务数。
func (e *Executor) Pending(kind TaskKind) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending[kind])
}

// Now returns the scheduler's current time.
func (e *Executor) Now() time.Duration {
	return e.scheduler.Now()
}
