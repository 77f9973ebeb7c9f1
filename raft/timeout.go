package raft

import (
	"math/rand"
	"time"
)

// TimeoutSource 提供选举超时时间。随机源由外部注入，测试可以重放固定序列。
type TimeoutSource interface {
	Next() time.Duration
}

// RandomTimeout draws election timeouts uniformly from [min, max).
type RandomTimeout struct {
	min, max time.Duration
	rnd      *rand.Rand
}

// NewRandomTimeout creates a RandomTimeout. A nil rnd is seeded from the clock.
func NewRandomTimeout(min, max time.Duration, rnd *rand.Rand) *RandomTimeout {
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &RandomTimeout{min: min, max: max, rnd: rnd}
}

func (t *RandomTimeout) Next() time.Duration {
	if t.max <= t.min {
		return t.min
	}
	return t.min + time.Duration(t.rnd.Int63n(int64(t.max-t.min)))
}
