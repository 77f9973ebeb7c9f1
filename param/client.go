package param

// Command is a client command submitted to the leader for replication.
type Command struct {
	UID  string // 客户端为命令分配的唯一ID
	Body []byte // 需要在状态机上执行的命令
}

// NewCommand creates a new Command.
func NewCommand(uid string, body []byte) *Command {
	return &Command{UID: uid, Body: body}
}

// SubmitReply 是节点对客户端提交命令的响应。
type SubmitReply struct {
	Accepted bool   // 命令是否已被 Leader 写入日志
	Leader   string // 当前已知的 Leader 地址，用于客户端重定向
	Index    int64  // 命令被写入的日志索引
	Term     int64  // 命令被写入时的任期
}

// KVCommand 定义了客户端与键值状态机交互的命令格式。
type KVCommand struct {
	Op    string `json:"op"`
	Key   string `json:"key"`
	Value string `json:"value"`
}
