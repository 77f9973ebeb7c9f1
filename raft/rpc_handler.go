package raft

import (
	"log"

	"github.com/xmh1011/taskraft/param"
)

// Deliver 是所有入站消息的入口。每条消息被转换成对应种类的任务，
// 交给节点自己的 Executor 串行执行，Deliver 本身立即返回。
func (n *Node) Deliver(msg *param.Message) {
	task := n.taskFor(msg)
	if task == nil {
		log.Printf("[ERROR] Node %s dropped message with unknown operation %q from %s", n.Address(), msg.Operation, msg.Sender)
		return
	}
	n.executor.Submit(task)
}

func (n *Node) taskFor(msg *param.Message) Task {
	switch msg.Operation {
	case param.OpRequestVote:
		return &RequestVoteTask{node: n, msg: msg}
	case param.OpRequestVoteResponse:
		return &RequestVoteResponseTask{node: n, msg: msg}
	case param.OpAppendEntries:
		return &AppendEntriesTask{node: n, msg: msg}
	case param.OpAppendEntriesResponse:
		return &AppendEntriesResponseTask{node: n, msg: msg}
	case param.OpInstallSnapshot:
		return &InstallSnapshotTask{node: n, msg: msg}
	case param.OpInstallSnapshotResponse:
		return &InstallSnapshotResponseTask{node: n, msg: msg}
	default:
		return nil
	}
}
