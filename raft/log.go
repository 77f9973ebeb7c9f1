package raft

import (
	"fmt"
	"log"
	"strconv"

	"github.com/xmh1011/taskraft/param"
	"github.com/xmh1011/taskraft/storage"
)

const (
	logCollection     = "log"
	logMetaCollection = "log_meta"
	logStartKey       = "start"
)

// Log 是节点本地的持久化日志。索引从 0 开始且连续；压缩之后，
// [Start(), Length()) 是仍然保存在存储中的存活区间。
// 所有修改操作在返回前都已经 Flush，崩溃不会让内存状态领先于存储。
type Log struct {
	store  storage.Store
	start  int64 // 第一条存活日志的索引
	length int64 // 最后一条日志的索引 + 1
}

// NewLog opens the log kept in store, recovering its bounds from the
// persisted keys.
func NewLog(store storage.Store) (*Log, error) {
	for _, c := range []string{logCollection, logMetaCollection} {
		if err := store.Create(c); err != nil {
			return nil, fmt.Errorf("failed to create collection %s: %w", c, err)
		}
	}

	l := &Log{store: store}
	raw, err := store.Get(logMetaCollection, logStartKey)
	switch {
	case err == nil:
		if l.start, err = strconv.ParseInt(string(raw), 10, 64); err != nil {
			return nil, fmt.Errorf("corrupted log start %q: %w", raw, err)
		}
	case storage.IsNotFound(err):
	default:
		return nil, err
	}

	keys, err := store.Keys(logCollection)
	if err != nil {
		return nil, err
	}
	l.length = l.start
	for _, k := range keys {
		idx, err := strconv.ParseInt(k, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("corrupted log key %q: %w", k, err)
		}
		if idx+1 > l.length {
			l.length = idx + 1
		}
	}
	return l, nil
}

func entryKey(index int64) string {
	return strconv.FormatInt(index, 10)
}

// Length 返回最后一条日志的索引 + 1，压缩掉的前缀也计算在内。
func (l *Log) Length() int64 { return l.length }

// Start 返回第一条存活日志的索引。
func (l *Log) Start() int64 { return l.start }

// Size 返回存活日志的条数。
func (l *Log) Size() int64 { return l.length - l.start }

// Append 追加日志，每条日志的索引必须恰好等于当前长度。
func (l *Log) Append(entries ...param.LogEntry) error {
	if len(entries) == 0 {
		return nil
	}
	for i, e := range entries {
		if want := l.length + int64(i); e.Index != want {
			return fmt.Errorf("%w: entry index %d, expected %d", ErrInvalidArgument, e.Index, want)
		}
	}
	for _, e := range entries {
		data, err := e.MarshalBinary()
		if err != nil {
			return err
		}
		if err := l.store.Set(logCollection, entryKey(e.Index), data); err != nil {
			return err
		}
		l.length++
	}
	return l.store.Flush()
}

// Get 返回指定索引的日志条目。
func (l *Log) Get(index int64) (param.LogEntry, error) {
	if index < l.start || index >= l.length {
		return param.LogEntry{}, fmt.Errorf("%w: index %d not in [%d, %d)", ErrOutOfRange, index, l.start, l.length)
	}
	raw, err := l.store.Get(logCollection, entryKey(index))
	if err != nil {
		return param.LogEntry{}, fmt.Errorf("failed to read log entry %d: %w", index, err)
	}
	var e param.LogEntry
	if err := e.UnmarshalBinary(raw); err != nil {
		return param.LogEntry{}, err
	}
	return e, nil
}

// Term 返回指定索引日志的任期。
func (l *Log) Term(index int64) (int64, error) {
	e, err := l.Get(index)
	if err != nil {
		return 0, err
	}
	return e.Term, nil
}

// Slice returns the entries in [start, stop). A negative stop means Length();
// a stop beyond Length() is clamped.
func (l *Log) Slice(start, stop int64) ([]param.LogEntry, error) {
	if stop < 0 || stop > l.length {
		stop = l.length
	}
	if start < l.start || start > l.length {
		return nil, fmt.Errorf("%w: slice start %d not in [%d, %d]", ErrOutOfRange, start, l.start, l.length)
	}
	if start > stop {
		return nil, fmt.Errorf("%w: slice [%d, %d) is inverted", ErrInvalidArgument, start, stop)
	}

	entries := make([]param.LogEntry, 0, stop-start)
	for i := start; i < stop; i++ {
		e, err := l.Get(i)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// SliceStep is Slice with an explicit step; only a step of 1 is supported.
func (l *Log) SliceStep(start, stop, step int64) ([]param.LogEntry, error) {
	if step != 1 {
		return nil, fmt.Errorf("%w: slice step %d", ErrInvalidArgument, step)
	}
	return l.Slice(start, stop)
}

// TruncateFrom 删除 index 及其之后的所有日志，只用于解决日志冲突。
func (l *Log) TruncateFrom(index int64) error {
	if index < l.start || index > l.length {
		return fmt.Errorf("%w: truncate at %d not in [%d, %d]", ErrOutOfRange, index, l.start, l.length)
	}
	if index == l.length {
		return nil
	}
	for i := index; i < l.length; i++ {
		if err := l.store.Remove(logCollection, entryKey(i)); err != nil {
			return err
		}
	}
	log.Printf("[Log] truncated entries [%d, %d)", index, l.length)
	l.length = index
	return l.store.Flush()
}

// PopLast 删除并返回最后一条日志。
func (l *Log) PopLast() (param.LogEntry, error) {
	if l.Size() == 0 {
		return param.LogEntry{}, fmt.Errorf("%w: pop from empty log", ErrOutOfRange)
	}
	e, err := l.Get(l.length - 1)
	if err != nil {
		return param.LogEntry{}, err
	}
	if err := l.store.Remove(logCollection, entryKey(e.Index)); err != nil {
		return param.LogEntry{}, err
	}
	l.length--
	return e, l.store.Flush()
}

// CompactThrough 删除 [Start(), index] 这段已经被快照覆盖的前缀。
func (l *Log) CompactThrough(index int64) error {
	if index < l.start {
		return nil
	}
	if index >= l.length {
		return fmt.Errorf("%w: compact through %d beyond last index %d", ErrOutOfRange, index, l.length-1)
	}
	for i := l.start; i <= index; i++ {
		if err := l.store.Remove(logCollection, entryKey(i)); err != nil {
			return err
		}
	}
	if err := l.setStart(index + 1); err != nil {
		return err
	}
	return l.store.Flush()
}

// ResetTo 丢弃所有存活日志，日志从 start 重新开始。用于安装与本地日志冲突的快照。
func (l *Log) ResetTo(start int64) error {
	for i := l.start; i < l.length; i++ {
		if err := l.store.Remove(logCollection, entryKey(i)); err != nil {
			return err
		}
	}
	if err := l.setStart(start); err != nil {
		return err
	}
	l.length = start
	return l.store.Flush()
}

func (l *Log) setStart(start int64) error {
	if err := l.store.Set(logMetaCollection, logStartKey, []byte(strconv.FormatInt(start, 10))); err != nil {
		return err
	}
	l.start = start
	return nil
}
