package grpc

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"sort"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/xmh1011/taskraft/param"
	"github.com/xmh1011/taskraft/transport"
)

// DefaultSendTimeout 是单条消息发送的超时时间。
const DefaultSendTimeout = 500 * time.Millisecond

var (
	_ transport.Network       = (*Transport)(nil)
	_ transport.CommandSender = (*CommandClient)(nil)
)

// Transport implements transport.Network using gRPC.
type Transport struct {
	listener  net.Listener
	localAddr string
	timeout   time.Duration

	server     transport.Server
	grpcServer *grpc.Server

	mu    sync.RWMutex
	peers map[string]string // hostname -> 监听地址，包含自身
	conns map[string]*grpc.ClientConn
}

// NewTransport creates a new gRPC Transport listening on listenAddr.
func NewTransport(listenAddr string, timeout time.Duration) (*Transport, error) {
	listener, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = DefaultSendTimeout
	}

	return &Transport{
		listener:   listener,
		localAddr:  listener.Addr().String(),
		timeout:    timeout,
		peers:      make(map[string]string),
		conns:      make(map[string]*grpc.ClientConn),
		grpcServer: grpc.NewServer(),
	}, nil
}

// Addr returns the local address.
func (t *Transport) Addr() string {
	return t.localAddr
}

// SetPeers sets the hostname to address table. The table must include the local node.
func (t *Transport) SetPeers(peers map[string]string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.peers = make(map[string]string, len(peers))
	for host, addr := range peers {
		t.peers[host] = addr
	}

	// 地址可能变化，关闭已有连接让之后的发送重新建立连接。
	for _, conn := range t.conns {
		conn.Close()
	}
	t.conns = make(map[string]*grpc.ClientConn)
}

// Register registers the node that serves inbound messages and commands.
func (t *Transport) Register(server transport.Server) {
	t.server = server
}

// Start starts the gRPC server.
func (t *Transport) Start() error {
	if t.server == nil {
		return errors.New("raft node not registered")
	}

	t.grpcServer.RegisterService(&serviceDesc, t.server)

	go func() {
		if err := t.grpcServer.Serve(t.listener); err != nil {
			log.Printf("[GRPCTransport] Server stopped: %v", err)
		}
	}()

	log.Printf("[GRPCTransport] Service started on %s", t.localAddr)
	return nil
}

// Close stops the gRPC server and closes all connections.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.grpcServer.Stop()

	for _, conn := range t.conns {
		conn.Close()
	}
	t.conns = make(map[string]*grpc.ClientConn)
	return nil
}

// Hostnames 返回集群中所有节点的名字，按字典序排列。
func (t *Transport) Hostnames() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	hosts := make([]string, 0, len(t.peers))
	for host := range t.peers {
		hosts = append(hosts, host)
	}
	sort.Strings(hosts)
	return hosts
}

func (t *Transport) getConn(host string) (*grpc.ClientConn, error) {
	t.mu.RLock()
	conn, ok := t.conns[host]
	addr, known := t.peers[host]
	t.mu.RUnlock()
	if ok {
		return conn, nil
	}
	if !known {
		return nil, fmt.Errorf("address not found for node %s", host)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if conn, ok := t.conns[host]; ok {
		return conn, nil
	}
	conn, err := dial(addr)
	if err != nil {
		return nil, err
	}
	t.conns[host] = conn
	return conn, nil
}

func dial(addr string) (*grpc.ClientConn, error) {
	return grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	)
}

// SendMessage 异步发送消息。发送失败只记录日志，重传交给协议本身。
func (t *Transport) SendMessage(sender, receiver string, msg *param.Message) {
	go func() {
		conn, err := t.getConn(receiver)
		if err != nil {
			log.Printf("[GRPCTransport] %s -> %s: %v", sender, receiver, err)
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
		defer cancel()
		if err := conn.Invoke(ctx, deliverMethod, msg, &empty{}); err != nil {
			log.Printf("[GRPCTransport] %s -> %s: failed to deliver %s: %v", sender, receiver, msg.Operation, err)
		}
	}()
}

// CommandClient 通过 gRPC 向节点提交客户端命令，按地址复用连接。
type CommandClient struct {
	mu    sync.Mutex
	conns map[string]*grpc.ClientConn
}

// NewCommandClient creates a client with no open connections.
func NewCommandClient() *CommandClient {
	return &CommandClient{conns: make(map[string]*grpc.ClientConn)}
}

func (c *CommandClient) getConn(addr string) (*grpc.ClientConn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if conn, ok := c.conns[addr]; ok {
		return conn, nil
	}
	conn, err := dial(addr)
	if err != nil {
		return nil, err
	}
	c.conns[addr] = conn
	return conn, nil
}

// SubmitCommand 把命令提交给 target 上的节点并等待节点的答复。
func (c *CommandClient) SubmitCommand(ctx context.Context, target string, cmd *param.Command) (*param.SubmitReply, error) {
	conn, err := c.getConn(target)
	if err != nil {
		return nil, err
	}
	reply := &param.SubmitReply{}
	if err := conn.Invoke(ctx, submitMethod, cmd, reply); err != nil {
		return nil, err
	}
	return reply, nil
}

// Close closes all connections.
func (c *CommandClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for addr, conn := range c.conns {
		conn.Close()
		delete(c.conns, addr)
	}
	return nil
}
