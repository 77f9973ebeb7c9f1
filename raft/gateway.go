package raft

import (
	"fmt"

	"github.com/xmh1011/taskraft/param"
	"github.com/xmh1011/taskraft/transport"
)

// MessageGateway 构造并发送协议消息。所有消息共享同一个信封
// {operation, senders_term, sender}，信封只在 envelope 中填写。
type MessageGateway struct {
	state   *RaftState
	network transport.Network
}

// NewMessageGateway creates a gateway sending on behalf of state.
func NewMessageGateway(state *RaftState, network transport.Network) *MessageGateway {
	return &MessageGateway{state: state, network: network}
}

func (g *MessageGateway) envelope(op param.Operation) *param.Message {
	return param.NewEnvelope(op, g.state.CurrentTerm(), g.state.Address())
}

func (g *MessageGateway) send(receiver string, msg *param.Message) {
	g.network.SendMessage(g.state.Address(), receiver, msg)
}

// SendAppendEntriesResponse 回复 append_entries。
func (g *MessageGateway) SendAppendEntriesResponse(receiver string, ok bool, lastReplIndex int64) {
	g.send(receiver, g.envelope(param.OpAppendEntriesResponse).WithAppendEntriesResponse(param.AppendEntriesResponseParams{
		OK:            ok,
		LastReplIndex: lastReplIndex,
	}))
}

// SendRequestVoteResponse 回复 request_vote。
func (g *MessageGateway) SendRequestVoteResponse(receiver string, ok bool) {
	g.send(receiver, g.envelope(param.OpRequestVoteResponse).WithOK(ok))
}

// SendInstallSnapshotResponse 回复 install_snapshot，ack 中回显分块的偏移量和快照位置。
func (g *MessageGateway) SendInstallSnapshotResponse(receiver string, ok bool, ack param.SnapshotAck) {
	g.send(receiver, g.envelope(param.OpInstallSnapshotResponse).WithOK(ok).WithSnapshotAck(ack))
}

// RequestVotes 向除自身以外的所有节点广播 request_vote。
func (g *MessageGateway) RequestVotes() {
	params := param.RequestVoteParams{SendersLastLogEntry: g.state.LastEntry()}
	for _, peer := range g.state.Peers() {
		g.send(peer, g.envelope(param.OpRequestVote).WithRequestVote(params))
	}
}

// previousEntry 返回 peer 的 next_index - 1 所在位置。该日志已被压缩时使用快照的位置。
func (g *MessageGateway) previousEntry(nextIndex int64) param.EntryID {
	prev := nextIndex - 1
	l := g.state.Log()
	if prev >= l.Start() && prev < l.Length() {
		if term, err := l.Term(prev); err == nil {
			return param.EntryID{Term: term, Index: prev}
		}
	}
	return g.state.Snapshot().LastEntry()
}

// SendHeartbeat 发送不带日志的 append_entries。
func (g *MessageGateway) SendHeartbeat(peer string) error {
	next, err := g.state.PeersNextIndex(peer)
	if err != nil {
		return err
	}
	g.send(peer, g.envelope(param.OpAppendEntries).WithAppendEntries(param.AppendEntriesParams{
		LastCommitIndex: g.state.CommitIndex(),
		ExpLastLogEntry: g.previousEntry(next),
		Entries:         []param.LogEntry{},
	}))
	return nil
}

// AppendEntries 发送 peer 的 next_index 之后的全部存活日志。
func (g *MessageGateway) AppendEntries(peer string) error {
	next, err := g.state.PeersNextIndex(peer)
	if err != nil {
		return err
	}
	entries, err := g.state.Log().Slice(next, -1)
	if err != nil {
		return fmt.Errorf("failed to collect entries for %s from %d: %w", peer, next, err)
	}
	g.send(peer, g.envelope(param.OpAppendEntries).WithAppendEntries(param.AppendEntriesParams{
		LastCommitIndex: g.state.CommitIndex(),
		ExpLastLogEntry: g.previousEntry(next),
		Entries:         entries,
	}))
	return nil
}

// InstallSnapshot 发送 peer 下一个尚未确认的快照分块。
func (g *MessageGateway) InstallSnapshot(peer string) error {
	chunk, err := g.state.NextSnapshotChunk(peer)
	if err != nil {
		return err
	}
	g.send(peer, g.envelope(param.OpInstallSnapshot).WithInstallSnapshot(param.InstallSnapshotParams{
		Data:      chunk.Data,
		Offset:    chunk.Offset,
		LastTerm:  chunk.LastTerm,
		LastIndex: chunk.LastIndex,
		Done:      chunk.Done,
	}))
	return nil
}
