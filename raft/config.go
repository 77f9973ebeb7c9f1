package raft

import (
	"fmt"
	"time"
)

const (
	defaultHeartbeatInterval  = 10 * time.Millisecond // 心跳间隔
	defaultElectionTimeoutMin = 50 * time.Millisecond // 选举超时下限
	defaultElectionTimeoutMax = 100 * time.Millisecond
	defaultSnapshotChunkSize  = 4096
	defaultSnapshotThreshold  = 1000
)

// Config 汇总了一个节点的可调参数。
type Config struct {
	HeartbeatInterval  time.Duration `yaml:"heartbeat_interval"`
	ElectionTimeoutMin time.Duration `yaml:"election_timeout_min"`
	ElectionTimeoutMax time.Duration `yaml:"election_timeout_max"`
	// SnapshotChunkSize 是 install_snapshot 每个分块的最大字节数。
	SnapshotChunkSize int `yaml:"snapshot_chunk_size"`
	// SnapshotThreshold 是触发日志压缩的存活日志条数，0 表示不自动压缩。
	SnapshotThreshold int `yaml:"snapshot_threshold"`
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		HeartbeatInterval:  defaultHeartbeatInterval,
		ElectionTimeoutMin: defaultElectionTimeoutMin,
		ElectionTimeoutMax: defaultElectionTimeoutMax,
		SnapshotChunkSize:  defaultSnapshotChunkSize,
		SnapshotThreshold:  defaultSnapshotThreshold,
	}
}

// Validate 检查配置是否可用。心跳间隔必须小于选举超时，否则 Follower 会频繁发起选举。
func (c Config) Validate() error {
	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("%w: heartbeat interval must be positive", ErrInvalidArgument)
	}
	if c.ElectionTimeoutMin <= 0 || c.ElectionTimeoutMax < c.ElectionTimeoutMin {
		return fmt.Errorf("%w: election timeout range [%v, %v] is invalid",
			ErrInvalidArgument, c.ElectionTimeoutMin, c.ElectionTimeoutMax)
	}
	if c.HeartbeatInterval >= c.ElectionTimeoutMin {
		return fmt.Errorf("%w: heartbeat interval %v must be shorter than election timeout %v",
			ErrInvalidArgument, c.HeartbeatInterval, c.ElectionTimeoutMin)
	}
	if c.SnapshotChunkSize <= 0 {
		return fmt.Errorf("%w: snapshot chunk size must be positive", ErrInvalidArgument)
	}
	if c.SnapshotThreshold < 0 {
		return fmt.Errorf("%w: snapshot threshold must not be negative", ErrInvalidArgument)
	}
	return nil
}
