package raft

import (
	"fmt"
	"log"

	"github.com/xmh1011/taskraft/param"
)

func (s *RaftState) requireLeader(op string) error {
	if s.role != param.Leader {
		return fmt.Errorf("%w: %s requires leader, node %s is %s", ErrInvalidState, op, s.address, s.role)
	}
	return nil
}

// PeersNextIndex 返回 Leader 下一条要发给 peer 的日志索引。
func (s *RaftState) PeersNextIndex(peer string) (int64, error) {
	if err := s.requireLeader("next_index"); err != nil {
		return 0, err
	}
	next, ok := s.nextIndex[peer]
	if !ok {
		return 0, fmt.Errorf("%w: unknown peer %s", ErrInvalidArgument, peer)
	}
	return next, nil
}

// PeersMatchIndex 返回已知在 peer 上复制成功的最高日志索引。
func (s *RaftState) PeersMatchIndex(peer string) (int64, error) {
	if err := s.requireLeader("match_index"); err != nil {
		return 0, err
	}
	match, ok := s.matchIndex[peer]
	if !ok {
		return 0, fmt.Errorf("%w: unknown peer %s", ErrInvalidArgument, peer)
	}
	return match, nil
}

// RecordReplication 记录 peer 已复制到 lastReplIndex。进度只会前进。
func (s *RaftState) RecordReplication(peer string, lastReplIndex int64) error {
	match, err := s.PeersMatchIndex(peer)
	if err != nil {
		return err
	}
	if lastReplIndex > match {
		s.matchIndex[peer] = lastReplIndex
	}
	if lastReplIndex+1 > s.nextIndex[peer] {
		s.nextIndex[peer] = lastReplIndex + 1
	}
	return nil
}

// BackOff 在 peer 拒绝 append_entries 后回退 next_index。hint 是 peer 建议的
// 最后一个可能匹配的索引，回退不会越过已确认的 match_index。
func (s *RaftState) BackOff(peer string, hint int64) error {
	next, err := s.PeersNextIndex(peer)
	if err != nil {
		return err
	}
	next--
	if hint+1 < next {
		next = hint + 1
	}
	if floor := s.matchIndex[peer] + 1; next < floor {
		next = floor
	}
	if next < 0 {
		next = 0
	}
	s.nextIndex[peer] = next
	return nil
}

// AdvanceCommitIndex 把 commitIndex 推进到被多数节点复制、且任期等于当前任期的最高索引。
// 之前任期的日志不会仅靠计数被提交。
func (s *RaftState) AdvanceCommitIndex() (bool, error) {
	if err := s.requireLeader("advance_commit_index"); err != nil {
		return false, err
	}

	for n := s.LastIndex(); n > s.commitIndex && n >= s.log.Start(); n-- {
		term, err := s.log.Term(n)
		if err != nil {
			return false, err
		}
		if term < s.currentTerm {
			// 更早的日志任期只会更小。
			break
		}
		if term > s.currentTerm {
			continue
		}

		count := 1 // Leader 自己
		for _, match := range s.matchIndex {
			if match >= n {
				count++
			}
		}
		if count >= s.Quorum() {
			log.Printf("[Log Replication] Leader %s advances commit index %d -> %d", s.address, s.commitIndex, n)
			return s.setCommitIndex(n), nil
		}
	}
	return false, nil
}

// AcceptEntries 在 Follower 上执行日志匹配：exp 是 Leader 认为紧挨着 entries 之前的位置。
// 匹配成功时删除冲突的后缀、追加新日志并推进 commitIndex，返回 (true, 已复制的最后索引)；
// 匹配失败时返回 (false, 建议 Leader 回退到的索引)。
func (s *RaftState) AcceptEntries(exp param.EntryID, entries []param.LogEntry, leaderCommit int64) (bool, int64, error) {
	for i, e := range entries {
		if e.Index != exp.Index+1+int64(i) {
			return false, s.LastIndex(), fmt.Errorf("%w: entry %d at position %d does not follow %d",
				ErrInvalidArgument, e.Index, i, exp.Index)
		}
	}

	// 1. 检查 exp 是否与本地日志匹配。
	snapIndex := s.snapshot.LastIncludedIndex
	switch {
	case exp.Index < snapIndex:
		// exp 已经被快照覆盖，快照中的日志都已提交，必然一致。
	case exp.Index == snapIndex:
		if exp.Term != s.snapshot.LastIncludedTerm {
			return false, snapIndex, nil
		}
	case exp.Index >= s.log.Length():
		return false, s.LastIndex(), nil
	default:
		term, err := s.log.Term(exp.Index)
		if err != nil {
			return false, s.LastIndex(), err
		}
		if term != exp.Term {
			log.Printf("[Log Replication] Node %s log mismatch at %d: local term %d, leader term %d",
				s.address, exp.Index, term, exp.Term)
			return false, exp.Index - 1, nil
		}
	}

	// 2. 跳过已经存在的日志，遇到冲突时删除冲突位置及之后的所有日志。
	var toAppend []param.LogEntry
	for i, e := range entries {
		if e.Index <= snapIndex {
			continue
		}
		if e.Index >= s.log.Length() {
			toAppend = entries[i:]
			break
		}
		term, err := s.log.Term(e.Index)
		if err != nil {
			return false, s.LastIndex(), err
		}
		if term == e.Term {
			continue
		}
		log.Printf("[Log Replication] Node %s conflict at index %d (local term %d, leader term %d), truncating",
			s.address, e.Index, term, e.Term)
		if err := s.log.TruncateFrom(e.Index); err != nil {
			return false, s.LastIndex(), err
		}
		toAppend = entries[i:]
		break
	}
	if err := s.log.Append(toAppend...); err != nil {
		return false, s.LastIndex(), err
	}

	// 3. 推进 commitIndex，但不能超过本次确认一致的最后一条日志。
	lastNew := exp.Index + int64(len(entries))
	if lastNew < snapIndex {
		lastNew = snapIndex
	}
	if leaderCommit > s.commitIndex {
		commit := leaderCommit
		if lastNew < commit {
			commit = lastNew
		}
		s.setCommitIndex(commit)
	}
	return true, lastNew, nil
}

// HeartbeatTask 由 Leader 周期性运行：向每个 peer 发送日志、快照或心跳。
type HeartbeatTask struct {
	node *Node
}

func (t *HeartbeatTask) Kind() TaskKind { return KindHeartbeat }

func (t *HeartbeatTask) Run() {
	n := t.node
	if n.state.Role() != param.Leader {
		return
	}
	for _, peer := range n.state.Peers() {
		n.replicateTo(peer)
	}
	n.executor.Schedule(&HeartbeatTask{node: n}, n.state.Config().HeartbeatInterval)
}

// AppendEntriesTask 处理收到的 append_entries（包括心跳）。
type AppendEntriesTask struct {
	node *Node
	msg  *param.Message
}

func (t *AppendEntriesTask) Kind() TaskKind { return KindAppendEntries }

func (t *AppendEntriesTask) Run() {
	n, msg := t.node, t.msg

	// 1. 任期与角色检查：过期任期直接拒绝，不修改任何状态。
	if !n.acceptLeader(msg) {
		n.gateway.SendAppendEntriesResponse(msg.Sender, false, n.state.LastIndex())
		return
	}

	// 2. 日志匹配与追加。
	ok, lastRepl, err := n.state.AcceptEntries(msg.ExpLastLogEntry, msg.Entries, msg.LastCommitIndex)
	if err != nil {
		log.Printf("[ERROR] Node %s failed to accept entries from %s: %v", n.Address(), msg.Sender, err)
		n.gateway.SendAppendEntriesResponse(msg.Sender, false, n.state.LastIndex())
		return
	}

	// 3. 应用新提交的日志。
	if ok {
		n.applyAndCompact()
	}
	n.gateway.SendAppendEntriesResponse(msg.Sender, ok, lastRepl)
}

// AppendEntriesResponseTask 在 Leader 上处理 append_entries 的响应。
type AppendEntriesResponseTask struct {
	node *Node
	msg  *param.Message
}

func (t *AppendEntriesResponseTask) Kind() TaskKind { return KindAppendEntriesResponse }

func (t *AppendEntriesResponseTask) Run() {
	n, msg := t.node, t.msg
	if n.observeTerm(msg.SendersTerm) {
		return
	}
	if n.state.Role() != param.Leader || msg.SendersTerm != n.state.CurrentTerm() {
		return
	}

	if !msg.OK {
		// 日志不匹配：回退 next_index 后立即重试。
		if err := n.state.BackOff(msg.Sender, msg.LastReplIndex); err != nil {
			log.Printf("[ERROR] Leader %s failed to back off %s: %v", n.Address(), msg.Sender, err)
			return
		}
		n.replicateTo(msg.Sender)
		return
	}

	if err := n.state.RecordReplication(msg.Sender, msg.LastReplIndex); err != nil {
		log.Printf("[ERROR] Leader %s failed to record progress of %s: %v", n.Address(), msg.Sender, err)
		return
	}
	advanced, err := n.state.AdvanceCommitIndex()
	if err != nil {
		log.Printf("[ERROR] Leader %s failed to advance commit index: %v", n.Address(), err)
		return
	}
	if advanced {
		n.applyAndCompact()
	}
}

// CommandTask 把客户端命令交给 Leader 写入日志并立即开始复制。
type CommandTask struct {
	node  *Node
	cmd   *param.Command
	reply chan<- *param.SubmitReply
}

func (t *CommandTask) Kind() TaskKind { return KindCommand }

func (t *CommandTask) Run() {
	n := t.node
	result := &param.SubmitReply{Leader: n.state.Leader()}
	defer func() {
		if t.reply != nil {
			t.reply <- result
		}
	}()

	entry, err := n.state.Submit(t.cmd.UID, t.cmd.Body)
	if err != nil {
		log.Printf("[Client] Node %s rejects command %q: %v", n.Address(), t.cmd.UID, err)
		return
	}
	result.Accepted, result.Index, result.Term = true, entry.Index, entry.Term

	// 单节点集群不需要等待任何确认。
	if advanced, err := n.state.AdvanceCommitIndex(); err == nil && advanced {
		n.applyAndCompact()
	}
	for _, peer := range n.state.Peers() {
		n.replicateTo(peer)
	}
}
