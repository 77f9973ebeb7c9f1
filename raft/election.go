package raft

import (
	"log"

	"github.com/xmh1011/taskraft/param"
)

// GrantVote 根据 Raft 的投票规则决定是否投票给 candidate：
// - 候选人的任期不能小于当前任期；
// - 同一任期内只能投给一个候选人；
// - 候选人的最后一条日志至少要和本地一样新（先比较任期，再比较索引）。
// 候选人任期更大时，本节点先转为 Follower。
func (s *RaftState) GrantVote(candidate string, candidatesTerm int64, lastLog param.EntryID) (bool, error) {
	// 1. 拒绝过期任期的请求。
	if candidatesTerm < s.currentTerm {
		log.Printf("[Election] Node %s rejects vote for %s: stale term %d < %d", s.address, candidate, candidatesTerm, s.currentTerm)
		return false, nil
	}

	// 2. 发现更高任期，先更新任期并转为 Follower。
	if candidatesTerm > s.currentTerm {
		if err := s.BecomeFollower(candidatesTerm); err != nil {
			return false, err
		}
	}

	// 3. 同一任期已经投给了别人。
	if s.votedFor != "" && s.votedFor != candidate {
		log.Printf("[Election] Node %s rejects vote for %s: already voted for %s in term %d", s.address, candidate, s.votedFor, s.currentTerm)
		return false, nil
	}

	// 4. 候选人的日志不够新。
	if local := s.LastEntry(); !lastLog.AtLeastAsUpToDate(local) {
		log.Printf("[Election] Node %s rejects vote for %s: candidate log (%d, %d) behind local (%d, %d)",
			s.address, candidate, lastLog.Term, lastLog.Index, local.Term, local.Index)
		return false, nil
	}

	s.votedFor = candidate
	if err := s.persistHardState(); err != nil {
		log.Printf("[ERROR] Node %s failed to persist vote: %v", s.address, err)
		return false, err
	}
	log.Printf("[Election] Node %s votes for %s in term %d", s.address, candidate, s.currentTerm)
	return true, nil
}

// RecordVote 记录一张赞成票，返回是否已经获得多数票。
func (s *RaftState) RecordVote(peer string) bool {
	if s.role != param.Candidate {
		return false
	}
	s.votes[peer] = true
	return len(s.votes) >= s.Quorum()
}

// HasMajority reports whether the candidate already holds a majority of votes.
func (s *RaftState) HasMajority() bool {
	return s.role == param.Candidate && len(s.votes) >= s.Quorum()
}

// ElectionTask 在选举超时触发：成为候选人、广播投票请求，并安排下一次超时
// 以应对本轮没有选出 Leader 的情况。
type ElectionTask struct {
	node *Node
}

func (t *ElectionTask) Kind() TaskKind { return KindElection }

func (t *ElectionTask) Run() {
	n := t.node
	if n.state.Role() == param.Leader {
		return
	}

	n.resetElectionTimer()
	if err := n.state.BecomeCandidate(); err != nil {
		// 无法持久化任期时不能安全地参选，等下一次超时再试。
		return
	}

	// 单节点集群只靠自己的一票就能当选。
	if n.state.HasMajority() {
		n.winElection()
		return
	}
	n.gateway.RequestVotes()
}

// RequestVoteTask 处理收到的 request_vote。
type RequestVoteTask struct {
	node *Node
	msg  *param.Message
}

func (t *RequestVoteTask) Kind() TaskKind { return KindRequestVote }

func (t *RequestVoteTask) Run() {
	n, msg := t.node, t.msg
	wasLeader := n.state.Role() == param.Leader

	granted, err := n.state.GrantVote(msg.Sender, msg.SendersTerm, msg.SendersLastLogEntry)
	if err != nil {
		log.Printf("[ERROR] Node %s failed to handle vote request from %s: %v", n.Address(), msg.Sender, err)
		return
	}
	if wasLeader && n.state.Role() != param.Leader {
		n.executor.Cancel(KindHeartbeat)
		n.resetElectionTimer()
	} else if granted {
		// 投出选票后重置选举计时器，给候选人留出当选的时间。
		n.resetElectionTimer()
	}
	n.gateway.SendRequestVoteResponse(msg.Sender, granted)
}

// RequestVoteResponseTask 统计选票，获得多数票后成为 Leader。
type RequestVoteResponseTask struct {
	node *Node
	msg  *param.Message
}

func (t *RequestVoteResponseTask) Kind() TaskKind { return KindRequestVoteResponse }

func (t *RequestVoteResponseTask) Run() {
	n, msg := t.node, t.msg
	if n.observeTerm(msg.SendersTerm) {
		return
	}
	// 只统计当前任期内、仍是候选人时收到的赞成票。
	if n.state.Role() != param.Candidate || msg.SendersTerm != n.state.CurrentTerm() || !msg.OK {
		return
	}
	log.Printf("[Election] Node %s received vote from %s in term %d", n.Address(), msg.Sender, msg.SendersTerm)
	if n.state.RecordVote(msg.Sender) {
		n.winElection()
	}
}
