package inmemory

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/xmh1011/taskraft/param"
)

// StateMachine 是 StateMachine 接口的一个内存实现，模拟一个简单的KV数据库。
// 不是 KVCommand 格式的命令体按原样保存在命令 UID 之下。
type StateMachine struct {
	mu      sync.RWMutex
	kvStore map[string]string
	applied int
}

// NewStateMachine 创建一个新的内存状态机实例。
func NewStateMachine() *StateMachine {
	return &StateMachine{
		kvStore: make(map[string]string),
	}
}

// Apply 将一条命令应用到状态机。
func (sm *StateMachine) Apply(uid string, body []byte) any {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.applied++

	var cmd param.KVCommand
	if err := json.Unmarshal(body, &cmd); err != nil || cmd.Op == "" {
		sm.kvStore[uid] = string(body)
		return nil
	}

	switch cmd.Op {
	case "set":
		sm.kvStore[cmd.Key] = cmd.Value
		return nil
	case "delete":
		delete(sm.kvStore, cmd.Key)
		return nil
	case "get":
		if v, ok := sm.kvStore[cmd.Key]; ok {
			return v
		}
		return ErrKeyNotFound
	default:
		return fmt.Errorf("unknown operation: %s", cmd.Op)
	}
}

// Get 从状态机中查询一个键的值。
func (sm *StateMachine) Get(key string) (string, error) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if val, ok := sm.kvStore[key]; ok {
		return val, nil
	}
	return "", ErrKeyNotFound
}

// Applied returns how many commands have been applied since creation.
func (sm *StateMachine) Applied() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.applied
}

// GetSnapshot 生成状态机的快照。
func (sm *StateMachine) GetSnapshot() ([]byte, error) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	// 使用 JSON 格式作为快照
	return json.Marshal(sm.kvStore)
}

// ApplySnapshot 从快照中恢复状态机。
func (sm *StateMachine) ApplySnapshot(snapshot []byte) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	newStore := make(map[string]string)
	if len(snapshot) > 0 {
		if err := json.Unmarshal(snapshot, &newStore); err != nil {
			return fmt.Errorf("failed to unmarshal snapshot: %w", err)
		}
	}

	// 用快照数据完全替换当前状态
	sm.kvStore = newStore
	return nil
}
