// Package clock 提供驱动节点事件循环的调度器：确定性的虚拟时钟用于仿真测试，
// 实时时钟用于真实部署。
package clock

import "time"

// Timer is a pending callback returned by Scheduler.Schedule.
type Timer interface {
	// Stop cancels the callback. It returns false if the callback already ran
	// or was stopped before.
	Stop() bool
}

// Scheduler runs callbacks one at a time after a delay.
// Callbacks scheduled with the same delay run in scheduling order.
type Scheduler interface {
	Schedule(delay time.Duration, fn func()) Timer
	// Now returns the time elapsed since the scheduler started.
	Now() time.Duration
}
