package sim

import (
	"time"

	"github.com/xmh1011/taskraft/raft"
)

// ReplayTimeout 依次循环返回一组固定的超时时间，让选举时机完全可预测。
type ReplayTimeout struct {
	values []time.Duration
	next   int
}

var _ raft.TimeoutSource = (*ReplayTimeout)(nil)

// Replay creates a timeout source cycling through values. It panics on an empty list.
func Replay(values ...time.Duration) *ReplayTimeout {
	if len(values) == 0 {
		panic("sim: Replay needs at least one value")
	}
	return &ReplayTimeout{values: values}
}

func (r *ReplayTimeout) Next() time.Duration {
	v := r.values[r.next]
	r.next = (r.next + 1) % len(r.values)
	return v
}
