package raft

// TaskKind 标识任务的种类。Executor 按种类取消任务，而不是按实例。
type TaskKind int

const (
	KindElection TaskKind = iota
	KindHeartbeat
	KindAppendEntries
	KindRequestVote
	KindRequestVoteResponse
	KindAppendEntriesResponse
	KindInstallSnapshot
	KindInstallSnapshotResponse
	KindCommand
)

var taskKindNames = [...]string{
	KindElection:                "ElectionTask",
	KindHeartbeat:               "HeartbeatTask",
	KindAppendEntries:           "AppendEntriesTask",
	KindRequestVote:             "RequestVoteTask",
	KindRequestVoteResponse:     "RequestVoteResponseTask",
	KindAppendEntriesResponse:   "AppendEntriesResponseTask",
	KindInstallSnapshot:         "InstallSnapshotTask",
	KindInstallSnapshotResponse: "InstallSnapshotResponseTask",
	KindCommand:                 "CommandTask",
}

func (k TaskKind) String() string {
	if k < 0 || int(k) >= len(taskKindNames) {
		return "UnknownTask"
	}
	return taskKindNames[k]
}

// Task 是绑定到一个节点的事件处理单元。Run 必须一次执行完毕，不能阻塞；
// 需要等待的事情都要表达成新的入站消息或新的定时任务。
type Task interface {
	Kind() TaskKind
	Run()
}
