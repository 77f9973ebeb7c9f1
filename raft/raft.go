package raft

import (
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/xmh1011/taskraft/param"
	"github.com/xmh1011/taskraft/storage"
	"github.com/xmh1011/taskraft/transport"
)

const (
	stateCollection    = "state"
	hardStateKey       = "hard_state"
	snapshotCollection = "snapshot"
	snapshotKey        = "current"
)

// SnapshotPolicy 决定当前日志是否需要压缩成快照。
type SnapshotPolicy func(l *Log) bool

// ThresholdPolicy returns a policy that compacts once the live log holds at
// least threshold entries. A threshold of 0 never compacts.
func ThresholdPolicy(threshold int) SnapshotPolicy {
	return func(l *Log) bool {
		return threshold > 0 && l.Size() >= int64(threshold)
	}
}

// RaftState 是单个节点的共识状态。它只被节点自己的 Executor 上运行的任务修改，
// 任务之间串行执行，因此不需要加锁。
type RaftState struct {
	address string

	// store 负责持久化 Raft 状态、日志和快照
	store storage.Store
	// stateMachine 应用层的状态机接口
	stateMachine storage.StateMachine
	network      transport.Network
	timeouts     TimeoutSource
	config       Config
	policy       SnapshotPolicy

	// --- Raft 核心状态 ---
	role        param.Role
	currentTerm int64
	votedFor    string
	leader      string // 当前已知的 Leader 地址

	// --- 日志与状态机相关 ---
	log         *Log
	commitIndex int64
	lastApplied int64

	// --- 快照相关 ---
	snapshot        *param.Snapshot
	encodedSnapshot []byte // snapshot 的编码缓存，发送分块时使用
	builder         *SnapshotBuilder

	// --- 选举相关 ---
	votes map[string]bool

	// --- Leader 的易失性状态 ---
	nextIndex    map[string]int64
	matchIndex   map[string]int64
	chunkCursors map[string]*chunkCursor
}

// chunkCursor 记录 Leader 向某个 peer 发送快照的进度。
type chunkCursor struct {
	lastIndex int64 // 正在发送的快照的 LastIncludedIndex
	offset    int64
}

// NewRaftState 创建节点状态，并从 store 中恢复任期、投票、快照和日志。
func NewRaftState(address string, store storage.Store, sm storage.StateMachine, network transport.Network,
	timeouts TimeoutSource, config Config) (*RaftState, error) {
	s := &RaftState{
		address:      address,
		store:        store,
		stateMachine: sm,
		network:      network,
		timeouts:     timeouts,
		config:       config,
		policy:       ThresholdPolicy(config.SnapshotThreshold),
		role:         param.Follower,
		commitIndex:  -1,
		lastApplied:  -1,
		snapshot:     param.EmptySnapshot(),
	}

	// 1. 恢复 HardState。
	if err := store.Create(stateCollection); err != nil {
		return nil, err
	}
	raw, err := store.Get(stateCollection, hardStateKey)
	switch {
	case err == nil:
		var hs param.HardState
		if err := hs.UnmarshalBinary(raw); err != nil {
			return nil, fmt.Errorf("failed to decode hard state: %w", err)
		}
		s.currentTerm, s.votedFor = hs.CurrentTerm, hs.VotedFor
	case !storage.IsNotFound(err):
		return nil, err
	}

	// 2. 恢复快照，并用它重建状态机。
	if err := store.Create(snapshotCollection); err != nil {
		return nil, err
	}
	raw, err = store.Get(snapshotCollection, snapshotKey)
	switch {
	case err == nil:
		snap := &param.Snapshot{}
		if err := snap.UnmarshalBinary(raw); err != nil {
			return nil, fmt.Errorf("failed to decode snapshot: %w", err)
		}
		if err := sm.ApplySnapshot(snap.Data); err != nil {
			return nil, fmt.Errorf("failed to restore state machine from snapshot: %w", err)
		}
		s.snapshot = snap
		s.commitIndex = snap.LastIncludedIndex
		s.lastApplied = snap.LastIncludedIndex
	case !storage.IsNotFound(err):
		return nil, err
	}

	// 3. 打开日志和快照接收器。
	if s.log, err = NewLog(store); err != nil {
		return nil, err
	}
	if s.builder, err = NewSnapshotBuilder(store); err != nil {
		return nil, err
	}

	log.Printf("[Raft] Node %s restored: term %d, votedFor %q, snapshot (term %d, index %d), log [%d, %d)",
		address, s.currentTerm, s.votedFor, s.snapshot.LastIncludedTerm, s.snapshot.LastIncludedIndex,
		s.log.Start(), s.log.Length())
	return s, nil
}

// SetSnapshotPolicy replaces the compaction policy.
func (s *RaftState) SetSnapshotPolicy(p SnapshotPolicy) { s.policy = p }

func (s *RaftState) Address() string { return s.address }
func (s *RaftState) Role() param.Role { return s.role }
func (s *RaftState) CurrentTerm() int64 { return s.currentTerm }
func (s *RaftState) VotedFor() string { return s.votedFor }
func (s *RaftState) Leader() string { return s.leader }
func (s *RaftState) CommitIndex() int64 { return s.commitIndex }
func (s *RaftState) LastApplied() int64 { return s.lastApplied }
func (s *RaftState) Log() *Log { return s.log }
func (s *RaftState) Snapshot() *param.Snapshot { return s.snapshot }
func (s *RaftState) Builder() *SnapshotBuilder { return s.builder }
func (s *RaftState) StateMachine() storage.StateMachine { return s.stateMachine }
func (s *RaftState) Config() Config { return s.config }

// Peers 返回除自身以外的所有节点地址，按字典序排列。
func (s *RaftState) Peers() []string {
	var peers []string
	for _, h := range s.network.Hostnames() {
		if h != s.address {
			peers = append(peers, h)
		}
	}
	sort.Strings(peers)
	return peers
}

// Quorum 返回构成多数派所需的节点数（包含自身）。
func (s *RaftState) Quorum() int {
	return len(s.network.Hostnames())/2 + 1
}

// NextElectionTimeout 返回下一次选举超时时间。
func (s *RaftState) NextElectionTimeout() time.Duration {
	return s.timeouts.Next()
}

func (s *RaftState) persistHardState() error {
	data, err := param.HardState{CurrentTerm: s.currentTerm, VotedFor: s.votedFor}.MarshalBinary()
	if err != nil {
		return err
	}
	if err := s.store.Set(stateCollection, hardStateKey, data); err != nil {
		return err
	}
	return s.store.Flush()
}

// BecomeFollower 将节点转为 Follower。只有任期真正前进时才清空投票记录。
func (s *RaftState) BecomeFollower(leadersTerm int64) error {
	if leadersTerm > s.currentTerm {
		log.Printf("[State Change] Node %s received higher term %d (was %d). Updating term and becoming follower.",
			s.address, leadersTerm, s.currentTerm)
		s.currentTerm = leadersTerm
		s.votedFor = ""
		s.leader = ""
		if err := s.persistHardState(); err != nil {
			log.Printf("[ERROR] Node %s failed to persist state after becoming follower: %v", s.address, err)
			return err
		}
	} else if s.role != param.Follower {
		log.Printf("[State Change] Node %s steps down from %s in term %d.", s.address, s.role, s.currentTerm)
	}
	s.role = param.Follower
	s.votes = nil
	s.clearLeaderState()
	return nil
}

// BecomeCandidate 增加任期、投票给自己并持久化。
// 必须在发送投票请求之前持久化，重启后才不会在同一任期内再投给别人。
func (s *RaftState) BecomeCandidate() error {
	s.currentTerm++
	s.role = param.Candidate
	s.votedFor = s.address
	s.leader = ""
	s.votes = map[string]bool{s.address: true}
	s.clearLeaderState()

	if err := s.persistHardState(); err != nil {
		log.Printf("[ERROR] Node %s failed to persist state before election: %v", s.address, err)
		return err
	}
	log.Printf("[Election] Node %s starts election for term %d", s.address, s.currentTerm)
	return nil
}

// BecomeLeader 只能由 Candidate 调用，初始化每个 peer 的复制进度。
func (s *RaftState) BecomeLeader() error {
	if s.role != param.Candidate {
		return fmt.Errorf("%w: %s cannot become leader", ErrInvalidState, s.role)
	}
	s.role = param.Leader
	s.leader = s.address
	s.votes = nil
	s.nextIndex = make(map[string]int64)
	s.matchIndex = make(map[string]int64)
	s.chunkCursors = make(map[string]*chunkCursor)
	for _, p := range s.Peers() {
		s.nextIndex[p] = s.log.Length()
		s.matchIndex[p] = -1
	}
	log.Printf("[Election] Node %s becomes leader for term %d", s.address, s.currentTerm)
	return nil
}

func (s *RaftState) clearLeaderState() {
	s.nextIndex = nil
	s.matchIndex = nil
	s.chunkCursors = nil
}

// HeardFromPeer 记录收到了当前 Leader 的消息。peersTerm 更大时先转为 Follower。
// 选举计时器由调用方的任务负责重置。
func (s *RaftState) HeardFromPeer(peer string, peersTerm int64) error {
	if peersTerm > s.currentTerm {
		if err := s.BecomeFollower(peersTerm); err != nil {
			return err
		}
	}
	s.leader = peer
	return nil
}

// LastIndex 返回最后一条日志的索引；日志为空时返回快照的 LastIncludedIndex。
func (s *RaftState) LastIndex() int64 {
	if s.log.Size() > 0 {
		return s.log.Length() - 1
	}
	return s.snapshot.LastIncludedIndex
}

// LastTerm 返回最后一条日志的任期；日志为空时返回快照的 LastIncludedTerm。
func (s *RaftState) LastTerm() int64 {
	if s.log.Size() > 0 {
		term, err := s.log.Term(s.log.Length() - 1)
		if err != nil {
			log.Printf("[ERROR] Node %s failed to read last log term: %v", s.address, err)
			return s.snapshot.LastIncludedTerm
		}
		return term
	}
	return s.snapshot.LastIncludedTerm
}

// LastEntry 返回最后一条日志的 (term, index)。
func (s *RaftState) LastEntry() param.EntryID {
	return param.EntryID{Term: s.LastTerm(), Index: s.LastIndex()}
}

// TermAt 返回指定索引的任期，index 可以是快照的最后一条或 -1。
func (s *RaftState) TermAt(index int64) (int64, error) {
	switch {
	case index == s.snapshot.LastIncludedIndex:
		return s.snapshot.LastIncludedTerm, nil
	case index < 0:
		return param.NoEntry.Term, nil
	default:
		return s.log.Term(index)
	}
}

// Submit 由 Leader 把客户端命令追加到本地日志。
func (s *RaftState) Submit(uid string, body []byte) (param.LogEntry, error) {
	if s.role != param.Leader {
		return param.LogEntry{}, fmt.Errorf("%w: only the leader accepts commands", ErrInvalidState)
	}
	entry := param.NewLogEntry(s.currentTerm, s.log.Length(), uid, body)
	if err := s.log.Append(entry); err != nil {
		log.Printf("[ERROR] Leader %s failed to append new log entry: %v", s.address, err)
		return param.LogEntry{}, err
	}
	log.Printf("[Client] Leader %s proposed new log entry %q at index %d", s.address, uid, entry.Index)
	return entry, nil
}

// setCommitIndex 只会让 commitIndex 前进。
func (s *RaftState) setCommitIndex(index int64) bool {
	if index <= s.commitIndex {
		return false
	}
	s.commitIndex = index
	return true
}

// ApplyCommitted 把 (lastApplied, commitIndex] 之间的日志依次应用到状态机。
func (s *RaftState) ApplyCommitted() error {
	for s.lastApplied < s.commitIndex {
		entry, err := s.log.Get(s.lastApplied + 1)
		if err != nil {
			log.Printf("[ERROR] Node %s failed to read committed entry %d: %v", s.address, s.lastApplied+1, err)
			return err
		}
		s.stateMachine.Apply(entry.UID, entry.Body)
		s.lastApplied = entry.Index
	}
	return nil
}
