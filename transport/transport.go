package transport

import (
	"github.com/xmh1011/taskraft/param"
)

// Network 定义了节点之间通信所需的方法：主机目录加上单向、不保证送达的消息发送。
// 发送失败（例如对端被隔离）对发送方不可见，重试完全依赖协议本身的周期性重发。
type Network interface {
	// Hostnames 返回集群中所有节点的地址，包含自身。
	Hostnames() []string

	// SendMessage 把消息从 sender 投递给 receiver，不等待结果。
	SendMessage(sender, receiver string, msg *param.Message)
}
