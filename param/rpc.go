package param

// Operation names the protocol message carried by an envelope.
type Operation string

const (
	OpRequestVote             Operation = "request_vote"
	OpRequestVoteResponse     Operation = "request_vote_response"
	OpAppendEntries           Operation = "append_entries"
	OpAppendEntriesResponse   Operation = "append_entries_response"
	OpInstallSnapshot         Operation = "install_snapshot"
	OpInstallSnapshotResponse Operation = "install_snapshot_response"
)

// Message is the wire envelope exchanged between nodes. The envelope fields are
// always set; the remaining fields are meaningful only for the operations
// noted next to them.
type Message struct {
	Operation   Operation
	SendersTerm int64
	Sender      string

	// request_vote
	SendersLastLogEntry EntryID

	// request_vote_response, append_entries_response, install_snapshot_response
	OK bool

	// append_entries (a heartbeat is an append_entries with no entries)
	LastCommitIndex int64
	ExpLastLogEntry EntryID
	Entries         []LogEntry

	// append_entries_response
	LastReplIndex int64

	// install_snapshot; Offset and LastIndex are echoed back in the response
	Data      []byte
	Offset    int64
	LastTerm  int64
	LastIndex int64
	Done      bool

	// install_snapshot_response: next byte offset the receiver expects
	NextOffset int64
}

// NewEnvelope creates a message carrying only the common envelope.
func NewEnvelope(op Operation, sendersTerm int64, sender string) *Message {
	return &Message{
		Operation:   op,
		SendersTerm: sendersTerm,
		Sender:      sender,
	}
}

// RequestVoteParams See figure 2 in the paper.
type RequestVoteParams struct {
	SendersLastLogEntry EntryID // 候选人最后一条日志的任期号和索引
}

// AppendEntriesParams is the parameter set for append_entries requests (log replication + heartbeats).
type AppendEntriesParams struct {
	LastCommitIndex int64      // Leader's commit index
	ExpLastLogEntry EntryID    // Entry immediately preceding the new ones
	Entries         []LogEntry // Log entries to store (empty for heartbeat)
}

// AppendEntriesResponseParams is the parameter set for append_entries_response.
type AppendEntriesResponseParams struct {
	OK            bool
	LastReplIndex int64 // 成功时为已复制的最后索引；失败时为 Follower 建议的回退位置
}

// InstallSnapshotParams 定义 install_snapshot 请求中的分块数据
type InstallSnapshotParams struct {
	Data      []byte // 当前分块的数据
	Offset    int64  // 分块在快照中的字节偏移量
	LastTerm  int64  // 快照中包含的最后一条日志的任期号
	LastIndex int64  // 快照中包含的最后一条日志的索引
	Done      bool   // 是否为最后一块
}

// SnapshotAck carries the extra fields of install_snapshot_response.
type SnapshotAck struct {
	Offset     int64 // echo of the acknowledged chunk's offset
	LastIndex  int64 // echo of the acknowledged transfer's last index
	NextOffset int64 // next byte offset the receiver expects
}

// WithRequestVote merges request_vote parameters into the envelope.
func (m *Message) WithRequestVote(p RequestVoteParams) *Message {
	m.SendersLastLogEntry = p.SendersLastLogEntry
	return m
}

// WithAppendEntries merges append_entries parameters into the envelope.
func (m *Message) WithAppendEntries(p AppendEntriesParams) *Message {
	m.LastCommitIndex = p.LastCommitIndex
	m.ExpLastLogEntry = p.ExpLastLogEntry
	m.Entries = p.Entries
	return m
}

// WithAppendEntriesResponse merges append_entries_response parameters into the envelope.
func (m *Message) WithAppendEntriesResponse(p AppendEntriesResponseParams) *Message {
	m.OK = p.OK
	m.LastReplIndex = p.LastReplIndex
	return m
}

// WithInstallSnapshot merges install_snapshot parameters into the envelope.
func (m *Message) WithInstallSnapshot(p InstallSnapshotParams) *Message {
	m.Data = p.Data
	m.Offset = p.Offset
	m.LastTerm = p.LastTerm
	m.LastIndex = p.LastIndex
	m.Done = p.Done
	return m
}

// WithOK sets the boolean outcome of a response.
func (m *Message) WithOK(ok bool) *Message {
	m.OK = ok
	return m
}

// WithSnapshotAck merges the install_snapshot_response extras into the envelope.
func (m *Message) WithSnapshotAck(a SnapshotAck) *Message {
	m.Offset = a.Offset
	m.LastIndex = a.LastIndex
	m.NextOffset = a.NextOffset
	return m
}
