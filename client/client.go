package client

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log"
	"math/big"
	"sort"
	"time"

	"github.com/xmh1011/taskraft/param"
	"github.com/xmh1011/taskraft/transport"
	grpctransport "github.com/xmh1011/taskraft/transport/grpc"
)

// DefaultRetryInterval 是两次尝试之间的等待时间。
const DefaultRetryInterval = 100 * time.Millisecond

// ErrGiveUp 表示在上下文结束前命令没有被任何 Leader 接受。
var ErrGiveUp = errors.New("command was not accepted by any leader")

// clientAction 定义了客户端在处理完一次 RPC 响应后应采取的下一步动作。
type clientAction int

const (
	actionSuccess clientAction = iota // 动作：成功，可以返回结果
	actionRetry                       // 动作：重试，应继续循环
)

// Client 封装了与集群交互的逻辑：找到 Leader，并把命令交给它写入日志。
type Client struct {
	clientID    int64                   // 客户端的唯一ID
	sequenceNum int64                   // 当前请求的序列号
	servers     map[string]string       // 集群中所有节点的 名字 -> 地址映射
	order       []string                // 没有 Leader 线索时依次尝试的节点
	next        int                     // order 中下一个要尝试的位置
	leaderHint  string                  // 当前已知的 Leader 名字
	sender      transport.CommandSender // 用于网络通信的传输层
	retry       time.Duration
}

// NewClient 创建一个新的客户端实例。
func NewClient(servers map[string]string, sender transport.CommandSender) *Client {
	// 生成一个随机的64位整数作为客户端ID。
	randID, _ := rand.Int(rand.Reader, big.NewInt(int64(^uint64(0)>>1)))
	order := make([]string, 0, len(servers))
	for name := range servers {
		order = append(order, name)
	}
	sort.Strings(order)
	return &Client{
		clientID: randID.Int64(),
		servers:  servers,
		order:    order,
		sender:   sender,
		retry:    DefaultRetryInterval,
	}
}

// NewGRPCClient creates a client that submits commands over gRPC.
func NewGRPCClient(servers map[string]string) *Client {
	return NewClient(servers, grpctransport.NewCommandClient())
}

// Close releases the connections held by the sender.
func (c *Client) Close() error {
	if closer, ok := c.sender.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// SendCommand 向集群发送一个命令，直到某个 Leader 接受它或 ctx 结束。
func (c *Client) SendCommand(ctx context.Context, body []byte) (*param.SubmitReply, error) {
	c.sequenceNum++
	cmd := param.NewCommand(fmt.Sprintf("%d-%d", c.clientID, c.sequenceNum), body)

	for {
		reply, action := c.attemptOnce(ctx, cmd)
		if action == actionSuccess {
			return reply, nil
		}
		select {
		case <-ctx.Done():
			log.Printf("[Client] Command %s gave up: %v", cmd.UID, ctx.Err())
			return nil, fmt.Errorf("%w: %v", ErrGiveUp, ctx.Err())
		case <-time.After(c.retry):
		}
	}
}

// attemptOnce 负责执行单次向集群发送命令的尝试。
func (c *Client) attemptOnce(ctx context.Context, cmd *param.Command) (*param.SubmitReply, clientAction) {
	target := c.selectTargetNode()
	log.Printf("[Client] Sending command %s to node %s", cmd.UID, target)

	reply, err := c.sender.SubmitCommand(ctx, c.servers[target], cmd)
	return reply, c.decideNextAction(target, reply, err)
}

// selectTargetNode 负责根据当前已知的 Leader 信息选择一个发送请求的目标节点。
func (c *Client) selectTargetNode() string {
	if c.leaderHint != "" {
		return c.leaderHint
	}
	if len(c.order) == 0 {
		return ""
	}
	target := c.order[c.next%len(c.order)]
	c.next++
	return target
}

// decideNextAction 封装了所有处理 RPC 响应的决策逻辑。
func (c *Client) decideNextAction(target string, reply *param.SubmitReply, err error) clientAction {
	if err != nil {
		log.Printf("[Client] Error sending request to node %s: %v. Retrying...", target, err)
		c.leaderHint = ""
		return actionRetry
	}

	if reply.Accepted {
		log.Printf("[Client] Command accepted by %s at index %d (term %d).", target, reply.Index, reply.Term)
		c.leaderHint = target
		return actionSuccess
	}

	if _, known := c.servers[reply.Leader]; known && reply.Leader != target {
		log.Printf("[Client] Node %s is not leader. New leader hint: %s. Retrying...", target, reply.Leader)
		c.leaderHint = reply.Leader
		return actionRetry
	}

	log.Printf("[Client] Node %s does not know the leader. Retrying...", target)
	c.leaderHint = ""
	return actionRetry
}
