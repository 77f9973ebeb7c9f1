package inmemory

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/xmh1011/taskraft/clock"
	"github.com/xmh1011/taskraft/param"
	"github.com/xmh1011/taskraft/transport"
)

// Network 是一个基于内存的 Network 实现，用于在单个进程内模拟节点间的通信。
// 消息在 latency 之后通过调度器投递；发送或投递时任一端被断开，消息都会被丢弃。
type Network struct {
	mu           sync.RWMutex
	scheduler    clock.Scheduler
	latency      time.Duration
	hosts        []string                     // 按注册顺序排列的节点地址
	handlers     map[string]transport.Handler // 节点地址到入站处理器的映射
	disconnected map[string]bool
	dropped      int
}

// NewNetwork 创建一个新的内存网络。
func NewNetwork(scheduler clock.Scheduler, latency time.Duration) *Network {
	return &Network{
		scheduler:    scheduler,
		latency:      latency,
		handlers:     make(map[string]transport.Handler),
		disconnected: make(map[string]bool),
	}
}

// Register 把节点加入网络。地址重复注册时替换处理器。
func (n *Network) Register(host string, handler transport.Handler) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.handlers[host]; !ok {
		n.hosts = append(n.hosts, host)
	}
	n.handlers[host] = handler
}

// Hostnames 返回所有已注册节点的地址。
func (n *Network) Hostnames() []string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	hosts := make([]string, len(n.hosts))
	copy(hosts, n.hosts)
	return hosts
}

// Connect 恢复节点与网络的连接。
func (n *Network) Connect(host string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.disconnected, host)
	log.Printf("[Network] %s connected", host)
}

// Disconnect 隔离节点：发往它和来自它的消息都会被丢弃。
func (n *Network) Disconnect(host string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.disconnected[host] = true
	log.Printf("[Network] %s disconnected", host)
}

// Connected reports whether host is registered and not isolated.
func (n *Network) Connected(host string) bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.reachable(host)
}

// Dropped returns how many messages were discarded so far.
func (n *Network) Dropped() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.dropped
}

func (n *Network) reachable(host string) bool {
	_, ok := n.handlers[host]
	return ok && !n.disconnected[host]
}

// route 返回 receiver 的处理器；链路不通时记录丢包并返回错误。
func (n *Network) route(sender, receiver string) (transport.Handler, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.reachable(sender) || !n.reachable(receiver) {
		n.dropped++
		return nil, fmt.Errorf("link %s -> %s is down", sender, receiver)
	}
	return n.handlers[receiver], nil
}

// SendMessage 在 latency 之后把消息投递给 receiver，不等待结果。
func (n *Network) SendMessage(sender, receiver string, msg *param.Message) {
	if _, err := n.route(sender, receiver); err != nil {
		return
	}
	n.scheduler.Schedule(n.latency, func() {
		handler, err := n.route(sender, receiver)
		if err != nil {
			// 消息在途中时链路被断开。
			return
		}
		handler.Deliver(msg)
	})
}
