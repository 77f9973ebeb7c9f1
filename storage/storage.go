package storage

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/xmh1011/taskraft/storage/inmemory"
	"github.com/xmh1011/taskraft/storage/simplefile"
)

const (
	InmemoryStorage   = "inmemory"
	SimpleFileStorage = "simplefile"
)

// Errors shared by every backend. Backends wrap or return these directly so
// callers can match with errors.Is regardless of the implementation.
var (
	ErrKeyNotFound        = inmemory.ErrKeyNotFound
	ErrCollectionNotFound = inmemory.ErrCollectionNotFound
)

// Store is the node-local durable key/value backend of a Raft node.
// Keys live in named collections. Writes become durable only after Flush.
// A Store is owned by exactly one node and is never shared across nodes.
type Store interface {
	// Create creates an empty collection. Creating an existing collection is a no-op.
	Create(collection string) error
	// Exists reports whether the collection has been created.
	Exists(collection string) bool

	// Get returns the value stored under key, or ErrKeyNotFound.
	Get(collection, key string) ([]byte, error)
	// Set stores value under key, replacing any previous value.
	Set(collection, key string, value []byte) error
	// Remove deletes key. Removing a missing key is a no-op.
	Remove(collection, key string) error
	// Keys lists the keys of a collection in unspecified order.
	Keys(collection string) ([]string, error)

	// Flush makes every preceding write durable.
	Flush() error
	// Close 关闭存储。
	Close() error
}

// StateMachine 定义了应用层状态机需要实现的接口。
// Raft 模块通过这个接口把已提交的日志交给上层业务逻辑。
type StateMachine interface {
	// Apply 将一条已经达成共识的命令应用到状态机中，返回执行结果。
	Apply(uid string, body []byte) any

	// GetSnapshot 返回状态机当前状态的序列化形式，用于日志压缩。
	GetSnapshot() ([]byte, error)

	// ApplySnapshot 用快照数据完全覆盖当前状态。
	ApplySnapshot(snapshot []byte) error
}

// NewStorage creates the store and state machine of one node.
func NewStorage(storageType, dataDir, nodeName string) (Store, StateMachine, error) {
	switch storageType {
	case InmemoryStorage:
		log.Println("Using in-memory storage")
		return inmemory.NewStore(), inmemory.NewStateMachine(), nil
	case SimpleFileStorage:
		nodeDir := filepath.Join(dataDir, nodeName)
		if err := os.MkdirAll(nodeDir, 0755); err != nil {
			return nil, nil, fmt.Errorf("failed to create data directory: %w", err)
		}

		store, err := simplefile.NewStore(filepath.Join(nodeDir, "raft_store.gob"))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create simplefile store: %w", err)
		}
		log.Printf("Using simple file storage at %s", nodeDir)
		// 状态机数据通过快照恢复，因此只需要内存实现。
		return store, inmemory.NewStateMachine(), nil
	default:
		return nil, nil, fmt.Errorf("unknown storage type: %s", storageType)
	}
}

// IsNotFound reports whether err means a key or collection is absent.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrKeyNotFound) || errors.Is(err, ErrCollectionNotFound)
}
