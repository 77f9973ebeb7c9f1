package raft

import (
	"context"
	"log"

	"github.com/xmh1011/taskraft/param"
	"github.com/xmh1011/taskraft/transport"
)

// Node 把一个节点的 RaftState、MessageGateway 和 Executor 组合在一起，
// 并把入站消息和客户端命令转换成任务。
type Node struct {
	state    *RaftState
	gateway  *MessageGateway
	executor *Executor
}

// NewNode wires a node. The network is the same one the state enumerates peers from.
func NewNode(state *RaftState, network transport.Network, executor *Executor) *Node {
	return &Node{
		state:    state,
		gateway:  NewMessageGateway(state, network),
		executor: executor,
	}
}

func (n *Node) State() *RaftState { return n.state }
func (n *Node) Gateway() *MessageGateway { return n.gateway }
func (n *Node) Executor() *Executor { return n.executor }
func (n *Node) Address() string { return n.state.Address() }

// Start 启动第一个选举计时器。
func (n *Node) Start() {
	log.Printf("[Raft] Node %s starting as %s in term %d", n.Address(), n.state.Role(), n.state.CurrentTerm())
	n.resetElectionTimer()
}

// ExecuteCommand 提交一条客户端命令，不等待结果。非 Leader 节点会忽略它。
func (n *Node) ExecuteCommand(uid string, body []byte) {
	n.executor.Submit(&CommandTask{node: n, cmd: param.NewCommand(uid, body)})
}

// SubmitCommand 提交一条客户端命令，并等待它被写入 Leader 的日志。
// 返回时命令尚未提交，客户端通过 Index 追踪它。
func (n *Node) SubmitCommand(ctx context.Context, cmd *param.Command) (*param.SubmitReply, error) {
	reply := make(chan *param.SubmitReply, 1)
	n.executor.Submit(&CommandTask{node: n, cmd: cmd, reply: reply})
	select {
	case r := <-reply:
		return r, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// resetElectionTimer 取消当前的选举计时器，并用新的随机超时重新安排一个。
func (n *Node) resetElectionTimer() {
	n.executor.Cancel(KindElection)
	n.executor.Schedule(&ElectionTask{node: n}, n.state.NextElectionTimeout())
}

// stepDown 转为 Follower：停止心跳，重新安排选举计时器。
func (n *Node) stepDown(term int64) error {
	if err := n.state.BecomeFollower(term); err != nil {
		return err
	}
	n.executor.Cancel(KindHeartbeat)
	n.resetElectionTimer()
	return nil
}

// observeTerm 处理响应消息中的任期：对方任期更大时转为 Follower，并返回 true。
func (n *Node) observeTerm(sendersTerm int64) bool {
	if sendersTerm <= n.state.CurrentTerm() {
		return false
	}
	if err := n.stepDown(sendersTerm); err != nil {
		log.Printf("[ERROR] Node %s failed to step down to term %d: %v", n.Address(), sendersTerm, err)
	}
	return true
}

// acceptLeader 处理来自 Leader 的 append_entries / install_snapshot 的任期与角色逻辑。
// 返回 false 表示消息必须被拒绝。
func (n *Node) acceptLeader(msg *param.Message) bool {
	s := n.state
	if msg.SendersTerm < s.CurrentTerm() {
		return false
	}

	switch s.Role() {
	case param.Leader:
		if msg.SendersTerm == s.CurrentTerm() {
			log.Printf("[FATAL] Node %s: two leaders in term %d (%s and %s); rejecting message",
				n.Address(), s.CurrentTerm(), n.Address(), msg.Sender)
			return false
		}
		if err := n.stepDown(msg.SendersTerm); err != nil {
			log.Printf("[ERROR] Node %s failed to step down: %v", n.Address(), err)
			return false
		}
	case param.Candidate:
		if err := s.BecomeFollower(msg.SendersTerm); err != nil {
			log.Printf("[ERROR] Node %s failed to become follower: %v", n.Address(), err)
			return false
		}
		n.executor.Cancel(KindHeartbeat)
		n.resetElectionTimer()
	default:
		n.resetElectionTimer()
	}

	if err := s.HeardFromPeer(msg.Sender, msg.SendersTerm); err != nil {
		log.Printf("[ERROR] Node %s failed to record leader %s: %v", n.Address(), msg.Sender, err)
		return false
	}
	return true
}

// winElection 成为 Leader 并立即开始发送心跳。
func (n *Node) winElection() {
	if err := n.state.BecomeLeader(); err != nil {
		log.Printf("[ERROR] Node %s failed to become leader: %v", n.Address(), err)
		return
	}
	n.executor.Cancel(KindElection)
	n.executor.Cancel(KindHeartbeat)
	n.executor.Submit(&HeartbeatTask{node: n})
}

// replicateTo 根据 peer 的进度发送快照分块、日志或心跳。
func (n *Node) replicateTo(peer string) {
	needsSnapshot, err := n.state.NeedsSnapshot(peer)
	switch {
	case err != nil:
	case needsSnapshot:
		err = n.gateway.InstallSnapshot(peer)
	default:
		var next int64
		if next, err = n.state.PeersNextIndex(peer); err == nil {
			if next < n.state.Log().Length() {
				err = n.gateway.AppendEntries(peer)
			} else {
				err = n.gateway.SendHeartbeat(peer)
			}
		}
	}
	if err != nil {
		log.Printf("[ERROR] Leader %s failed to replicate to %s: %v", n.Address(), peer, err)
	}
}

// applyAndCompact 应用新提交的日志，然后按策略压缩日志。
func (n *Node) applyAndCompact() {
	if err := n.state.ApplyCommitted(); err != nil {
		log.Printf("[ERROR] Node %s failed to apply committed entries: %v", n.Address(), err)
		return
	}
	if _, err := n.state.MaybeCompact(); err != nil {
		log.Printf("[ERROR] Node %s failed to compact log: %v", n.Address(), err)
	}
}
