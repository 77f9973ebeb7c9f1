package raft

import (
	"log"

	"github.com/xmh1011/taskraft/param"
)

// SnapshotChunk 是 Leader 发给某个 peer 的一个快照分块。
type SnapshotChunk struct {
	Data      []byte
	Offset    int64
	LastTerm  int64
	LastIndex int64
	Done      bool
}

func (s *RaftState) saveSnapshot(snap *param.Snapshot) error {
	data, err := snap.MarshalBinary()
	if err != nil {
		return err
	}
	if err := s.store.Set(snapshotCollection, snapshotKey, data); err != nil {
		return err
	}
	if err := s.store.Flush(); err != nil {
		return err
	}
	s.snapshot = snap
	s.encodedSnapshot = data
	return nil
}

// MaybeCompact 按快照策略把已应用的日志压缩成快照。只有 lastApplied 超过当前快照时才会生成新快照。
func (s *RaftState) MaybeCompact() (bool, error) {
	if s.policy == nil || !s.policy(s.log) || s.lastApplied <= s.snapshot.LastIncludedIndex {
		return false, nil
	}

	// 1. 捕获快照元数据和状态机数据。
	index := s.lastApplied
	term, err := s.log.Term(index)
	if err != nil {
		log.Printf("[ERROR] Node %s failed to get entry at index %d: %v", s.address, index, err)
		return false, err
	}
	data, err := s.stateMachine.GetSnapshot()
	if err != nil {
		log.Printf("[ERROR] Node %s failed to get state machine snapshot: %v", s.address, err)
		return false, err
	}

	// 2. 先持久化快照，再删除被覆盖的日志。
	if err := s.saveSnapshot(param.NewSnapshot(term, index, data)); err != nil {
		log.Printf("[ERROR] Node %s failed to persist snapshot: %v", s.address, err)
		return false, err
	}
	if err := s.log.CompactThrough(index); err != nil {
		log.Printf("[ERROR] Node %s failed to compact log through %d: %v", s.address, index, err)
		return false, err
	}
	log.Printf("[Snapshot] Node %s took snapshot (term %d, index %d); live log is now [%d, %d)",
		s.address, term, index, s.log.Start(), s.log.Length())
	return true, nil
}

// InstallSnapshot 安装一个完整的快照。快照位置只会前进：不比当前快照新的快照被忽略。
// 本地日志在快照位置上与快照一致时保留之后的日志，否则丢弃整个日志。
func (s *RaftState) InstallSnapshot(snap *param.Snapshot) error {
	if !snap.Newer(s.snapshot) {
		log.Printf("[Snapshot] Node %s ignores snapshot (term %d, index %d): not newer than (term %d, index %d)",
			s.address, snap.LastIncludedTerm, snap.LastIncludedIndex, s.snapshot.LastIncludedTerm, s.snapshot.LastIncludedIndex)
		return nil
	}
	index := snap.LastIncludedIndex

	// 1. 持久化快照。
	if err := s.saveSnapshot(snap); err != nil {
		log.Printf("[ERROR] Node %s failed to persist snapshot: %v", s.address, err)
		return err
	}

	// 2. 压缩本地日志。
	keepSuffix := false
	if index >= s.log.Start() && index < s.log.Length() {
		if term, err := s.log.Term(index); err == nil && term == snap.LastIncludedTerm {
			keepSuffix = true
		}
	}
	var err error
	if keepSuffix {
		err = s.log.CompactThrough(index)
	} else {
		err = s.log.ResetTo(index + 1)
	}
	if err != nil {
		log.Printf("[ERROR] Node %s failed to compact log for snapshot: %v", s.address, err)
		return err
	}

	// 3. 状态机落后于快照时，用快照数据覆盖状态机。
	if s.lastApplied < index {
		if err := s.stateMachine.ApplySnapshot(snap.Data); err != nil {
			log.Printf("[ERROR] Node %s failed to apply snapshot to state machine: %v", s.address, err)
			return err
		}
		s.lastApplied = index
	}
	s.setCommitIndex(index)

	log.Printf("[Snapshot] Node %s installed snapshot (term %d, index %d). lastApplied is now %d.",
		s.address, snap.LastIncludedTerm, index, s.lastApplied)
	return nil
}

// NeedsSnapshot 判断 peer 需要的日志是否已经被压缩，只能通过快照追赶。
func (s *RaftState) NeedsSnapshot(peer string) (bool, error) {
	next, err := s.PeersNextIndex(peer)
	if err != nil {
		return false, err
	}
	return next <= s.snapshot.LastIncludedIndex, nil
}

func (s *RaftState) encodeSnapshot() ([]byte, error) {
	if s.encodedSnapshot == nil {
		data, err := s.snapshot.MarshalBinary()
		if err != nil {
			return nil, err
		}
		s.encodedSnapshot = data
	}
	return s.encodedSnapshot, nil
}

// cursorFor 返回 peer 在当前快照上的发送进度；快照变化后进度从头开始。
func (s *RaftState) cursorFor(peer string, size int64) *chunkCursor {
	cur, ok := s.chunkCursors[peer]
	if !ok || cur.lastIndex != s.snapshot.LastIncludedIndex || cur.offset < 0 || cur.offset > size {
		cur = &chunkCursor{lastIndex: s.snapshot.LastIncludedIndex}
		s.chunkCursors[peer] = cur
	}
	return cur
}

// NextSnapshotChunkOffset 返回下一个要发给 peer 的分块偏移量。
func (s *RaftState) NextSnapshotChunkOffset(peer string) (int64, error) {
	if _, err := s.PeersNextIndex(peer); err != nil {
		return 0, err
	}
	data, err := s.encodeSnapshot()
	if err != nil {
		return 0, err
	}
	return s.cursorFor(peer, int64(len(data))).offset, nil
}

// NextSnapshotChunk 返回下一个要发给 peer 的快照分块。
func (s *RaftState) NextSnapshotChunk(peer string) (SnapshotChunk, error) {
	offset, err := s.NextSnapshotChunkOffset(peer)
	if err != nil {
		return SnapshotChunk{}, err
	}
	data := s.encodedSnapshot
	end := offset + int64(s.config.SnapshotChunkSize)
	if end > int64(len(data)) {
		end = int64(len(data))
	}
	return SnapshotChunk{
		Data:      data[offset:end],
		Offset:    offset,
		LastTerm:  s.snapshot.LastIncludedTerm,
		LastIndex: s.snapshot.LastIncludedIndex,
		Done:      end == int64(len(data)),
	}, nil
}

// AckSnapshotChunk 处理 peer 对快照分块的确认，把发送进度移动到 peer 期望的偏移量。
// 只有被接受的确认（ok=true）且 nextOffset 为负或到达快照末尾时，才表示 peer 已经拥有该快照，
// 此时更新 peer 的复制进度并返回 true。被拒绝的确认若指向快照末尾，则从头重发。
// 针对其他快照的确认被忽略。
func (s *RaftState) AckSnapshotChunk(peer string, offset, lastIndex int64, ok bool, nextOffset int64) (bool, error) {
	if _, err := s.PeersNextIndex(peer); err != nil {
		return false, err
	}
	if lastIndex != s.snapshot.LastIncludedIndex {
		return false, nil
	}
	data, err := s.encodeSnapshot()
	if err != nil {
		return false, err
	}

	finished := nextOffset < 0 || nextOffset >= int64(len(data))
	if ok && finished {
		delete(s.chunkCursors, peer)
		if lastIndex > s.matchIndex[peer] {
			s.matchIndex[peer] = lastIndex
		}
		if lastIndex+1 > s.nextIndex[peer] {
			s.nextIndex[peer] = lastIndex + 1
		}
		log.Printf("[Snapshot] Leader %s finished sending snapshot (index %d) to %s", s.address, lastIndex, peer)
		return true, nil
	}

	if finished {
		nextOffset = 0
	}
	if !ok {
		log.Printf("[Snapshot] Leader %s: %s rejected chunk at offset %d, resuming from %d", s.address, peer, offset, nextOffset)
	}
	s.cursorFor(peer, int64(len(data))).offset = nextOffset
	return false, nil
}

// InstallSnapshotTask 在 Follower 上处理一个快照分块。
type InstallSnapshotTask struct {
	node *Node
	msg  *param.Message
}

func (t *InstallSnapshotTask) Kind() TaskKind { return KindInstallSnapshot }

func (t *InstallSnapshotTask) Run() {
	n, msg := t.node, t.msg
	s := n.state
	ack := param.SnapshotAck{Offset: msg.Offset, LastIndex: msg.LastIndex, NextOffset: s.Builder().Offset()}

	// 1. 处理任期检查。如果 Leader 的任期有效，则继续；否则拒绝。
	if !n.acceptLeader(msg) {
		n.gateway.SendInstallSnapshotResponse(msg.Sender, false, ack)
		return
	}

	// 2. 已经拥有该快照（或更新的快照）时直接告诉 Leader 不必再发。
	if !param.NewerPosition(msg.LastTerm, msg.LastIndex, s.Snapshot().LastIncludedTerm, s.Snapshot().LastIncludedIndex) {
		ack.NextOffset = -1
		n.gateway.SendInstallSnapshotResponse(msg.Sender, true, ack)
		return
	}

	// 3. 当前 Leader 从头发送另一个快照时，放弃前任 Leader 留下的未完成传输。
	b := s.Builder()
	offered := param.EntryID{Term: msg.LastTerm, Index: msg.LastIndex}
	if msg.Offset == 0 && b.Tracked() != offered && b.IsStale(offered.Term, offered.Index) {
		if err := b.Abandon(); err != nil {
			log.Printf("[ERROR] Node %s failed to reset snapshot builder: %v", n.Address(), err)
			n.gateway.SendInstallSnapshotResponse(msg.Sender, false, ack)
			return
		}
	}

	// 4. 追加分块。重复或乱序的分块被丢弃，返回期望的偏移量供 Leader 续传。
	accepted, next, err := b.AppendChunk(msg.Data, msg.Offset, msg.LastIndex, msg.LastTerm)
	ack.NextOffset = next
	if err != nil {
		log.Printf("[ERROR] Node %s failed to store snapshot chunk: %v", n.Address(), err)
		n.gateway.SendInstallSnapshotResponse(msg.Sender, false, ack)
		return
	}

	// 5. 最后一块到达后组装并安装快照。已缓存的最后一块被重传时同样完成安装。
	complete := accepted || b.Holds(msg.LastTerm, msg.LastIndex, msg.Offset, int64(len(msg.Data)))
	if msg.Done && complete {
		log.Printf("[Snapshot] Node %s received snapshot from leader %s (lastIncludedIndex=%d)", n.Address(), msg.Sender, msg.LastIndex)
		snap, err := b.Build()
		if err == nil {
			err = s.InstallSnapshot(snap)
		}
		if err != nil {
			log.Printf("[ERROR] Node %s failed to install snapshot: %v", n.Address(), err)
			// 安装失败：放弃本次传输，Leader 从头重发。
			if err := b.Abandon(); err != nil {
				log.Printf("[ERROR] Node %s failed to reset snapshot builder: %v", n.Address(), err)
			}
			ack.NextOffset = 0
			n.gateway.SendInstallSnapshotResponse(msg.Sender, false, ack)
			return
		}
		n.applyAndCompact()
		ack.NextOffset = -1
		accepted = true
	}
	n.gateway.SendInstallSnapshotResponse(msg.Sender, accepted, ack)
}

// InstallSnapshotResponseTask 在 Leader 上处理分块确认，并继续发送下一块。
type InstallSnapshotResponseTask struct {
	node *Node
	msg  *param.Message
}

func (t *InstallSnapshotResponseTask) Kind() TaskKind { return KindInstallSnapshotResponse }

func (t *InstallSnapshotResponseTask) Run() {
	n, msg := t.node, t.msg
	if n.observeTerm(msg.SendersTerm) {
		return
	}
	if n.state.Role() != param.Leader || msg.SendersTerm != n.state.CurrentTerm() {
		return
	}
	if msg.LastIndex != n.state.Snapshot().LastIncludedIndex {
		// 针对旧快照的确认。
		return
	}

	done, err := n.state.AckSnapshotChunk(msg.Sender, msg.Offset, msg.LastIndex, msg.OK, msg.NextOffset)
	if err != nil {
		log.Printf("[ERROR] Leader %s failed to record snapshot ack from %s: %v", n.Address(), msg.Sender, err)
		return
	}
	if !done && !msg.OK {
		// 被拒绝的分块由下一次心跳从新的偏移量重发。
		return
	}
	n.replicateTo(msg.Sender)
}
