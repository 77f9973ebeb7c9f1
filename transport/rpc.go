package transport

import (
	"context"

	"github.com/xmh1011/taskraft/param"
)

// Handler 定义了节点需要暴露给 Network 的入站消息处理方法。
// 任何实现了这个接口的结构体都可以被 inmemory 或 grpc 网络注册和调用。
type Handler interface {
	// Deliver 接收一条入站消息。实现必须立即返回，处理过程交给节点自己的事件循环。
	Deliver(msg *param.Message)
}

// CommandHandler 处理客户端提交的命令。
type CommandHandler interface {
	SubmitCommand(ctx context.Context, cmd *param.Command) (*param.SubmitReply, error)
}

// Server 是同时处理节点消息和客户端命令的入口，grpc 服务端需要它。
type Server interface {
	Handler
	CommandHandler
}

// CommandSender 把客户端命令发送到指定地址的节点。
type CommandSender interface {
	SubmitCommand(ctx context.Context, target string, cmd *param.Command) (*param.SubmitReply, error)
}
