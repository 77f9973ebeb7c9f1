package param

// LogEntry represents a single log entry in the Raft log.
// Index is 0-based and contiguous within a node's log.
type LogEntry struct {
	Term  int64
	Index int64
	UID   string // client-assigned identifier of the command
	Body  []byte // opaque command payload
}

// NewLogEntry creates a new LogEntry.
func NewLogEntry(term, index int64, uid string, body []byte) LogEntry {
	return LogEntry{
		Term:  term,
		Index: index,
		UID:   uid,
		Body:  body,
	}
}

// EntryID identifies a log position by (term, index).
type EntryID struct {
	Term  int64
	Index int64
}

// NoEntry is the position before the first log entry.
var NoEntry = EntryID{Term: 0, Index: -1}

// AtLeastAsUpToDate 判断 e 是否至少和 other 一样新：先比较任期，任期相同再比较索引。
func (e EntryID) AtLeastAsUpToDate(other EntryID) bool {
	if e.Term != other.Term {
		return e.Term > other.Term
	}
	return e.Index >= other.Index
}

// Snapshot 表示 Raft 的快照结构：所有 <= LastIncludedIndex 的日志被压缩成一份状态机数据。
type Snapshot struct {
	LastIncludedTerm  int64  // 快照中包含的最后一条日志的任期
	LastIncludedIndex int64  // 快照中包含的最后一条日志的索引
	Data              []byte // 状态机的快照数据
}

// NewSnapshot 创建一个新的 Snapshot 实例
func NewSnapshot(lastIncludedTerm, lastIncludedIndex int64, data []byte) *Snapshot {
	return &Snapshot{
		LastIncludedTerm:  lastIncludedTerm,
		LastIncludedIndex: lastIncludedIndex,
		Data:              data,
	}
}

// EmptySnapshot returns the snapshot a node holds before any compaction.
func EmptySnapshot() *Snapshot {
	return &Snapshot{LastIncludedTerm: NoEntry.Term, LastIncludedIndex: NoEntry.Index}
}

// LastEntry returns the position of the last entry covered by the snapshot.
func (s *Snapshot) LastEntry() EntryID {
	return EntryID{Term: s.LastIncludedTerm, Index: s.LastIncludedIndex}
}

// Newer reports whether s covers a strictly later position than other,
// ordering by term first and index second.
func (s *Snapshot) Newer(other *Snapshot) bool {
	return NewerPosition(s.LastIncludedTerm, s.LastIncludedIndex, other.LastIncludedTerm, other.LastIncludedIndex)
}

// NewerPosition reports whether (term, index) is strictly greater than
// (otherTerm, otherIndex) under term-major, index-minor ordering.
func NewerPosition(term, index, otherTerm, otherIndex int64) bool {
	if term != otherTerm {
		return term > otherTerm
	}
	return index > otherIndex
}

// HardState 定义需要持久化的状态（必须稳定存储）
type HardState struct {
	CurrentTerm int64  // 当前任期号
	VotedFor    string // 当前任期内投票给的候选者地址（空字符串表示未投票）
}
