package grpc

import (
	"context"

	"google.golang.org/grpc"

	"github.com/xmh1011/taskraft/param"
	"github.com/xmh1011/taskraft/transport"
)

const (
	serviceName   = "raft.MessageService"
	deliverMethod = "/" + serviceName + "/Deliver"
	submitMethod  = "/" + serviceName + "/Submit"
)

// serviceDesc 描述节点对外暴露的 gRPC 服务：Deliver 接收节点间消息，Submit 接收客户端命令。
var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*transport.Server)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Deliver", Handler: deliverHandler},
		{MethodName: "Submit", Handler: submitHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "raft/message_service",
}

func deliverHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(param.Message)
	if err := dec(in); err != nil {
		return nil, err
	}
	handler := func(ctx context.Context, req any) (any, error) {
		srv.(transport.Handler).Deliver(req.(*param.Message))
		return &empty{}, nil
	}
	if interceptor == nil {
		return handler(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: deliverMethod}
	return interceptor(ctx, in, info, handler)
}

func submitHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(param.Command)
	if err := dec(in); err != nil {
		return nil, err
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(transport.CommandHandler).SubmitCommand(ctx, req.(*param.Command))
	}
	if interceptor == nil {
		return handler(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: submitMethod}
	return interceptor(ctx, in, info, handler)
}
