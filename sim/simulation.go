package sim

import (
	"errors"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/xmh1011/taskraft/clock"
	"github.com/xmh1011/taskraft/param"
	"github.com/xmh1011/taskraft/raft"
	"github.com/xmh1011/taskraft/storage"
	storemem "github.com/xmh1011/taskraft/storage/inmemory"
	"github.com/xmh1011/taskraft/transport/inmemory"
)

const (
	// DefaultLatency 是模拟网络的单向延迟。
	DefaultLatency = time.Millisecond
)

// ErrUnknownNode 表示模拟中没有这个节点。
var ErrUnknownNode = errors.New("unknown node")

// DefaultConfig 返回适合虚拟时钟的配置：毫秒级心跳，小分块以便快照分多块传输。
func DefaultConfig() raft.Config {
	return raft.Config{
		HeartbeatInterval:  2 * time.Millisecond,
		ElectionTimeoutMin: 10 * time.Millisecond,
		ElectionTimeoutMax: 20 * time.Millisecond,
		SnapshotChunkSize:  64,
	}
}

type nodeDef struct {
	hostname string
	timeouts raft.TimeoutSource
	policy   raft.SnapshotPolicy
}

// Builder 描述一个待创建的模拟集群。
type Builder struct {
	latency time.Duration
	config  raft.Config
	seed    int64
	defs    []nodeDef
}

// NewBuilder creates a builder with DefaultLatency and DefaultConfig.
func NewBuilder() *Builder {
	return &Builder{latency: DefaultLatency, config: DefaultConfig(), seed: 1}
}

// WithSeed seeds the random election timeouts of nodes added without a timeout source.
func (b *Builder) WithSeed(seed int64) *Builder {
	b.seed = seed
	return b
}

// WithLatency sets the one-way network latency.
func (b *Builder) WithLatency(latency time.Duration) *Builder {
	b.latency = latency
	return b
}

// WithConfig replaces the configuration shared by every node.
func (b *Builder) WithConfig(cfg raft.Config) *Builder {
	b.config = cfg
	return b
}

// WithRaftNode 添加一个节点。timeouts 为 nil 时使用配置的随机选举超时；policy 为 nil 时不做日志压缩。
func (b *Builder) WithRaftNode(hostname string, timeouts raft.TimeoutSource, policy raft.SnapshotPolicy) *Builder {
	b.defs = append(b.defs, nodeDef{hostname: hostname, timeouts: timeouts, policy: policy})
	return b
}

// Build creates every node on a shared virtual clock and arms their election timers.
func (b *Builder) Build() (*Simulation, error) {
	if len(b.defs) == 0 {
		return nil, errors.New("simulation needs at least one node")
	}
	if err := b.config.Validate(); err != nil {
		return nil, err
	}

	v := clock.NewVirtual()
	s := &Simulation{
		clock:   v,
		network: inmemory.NewNetwork(v, b.latency),
		config:  b.config,
		defs:    make(map[string]nodeDef),
		stores:  make(map[string]storage.Store),
		nodes:   make(map[string]*raft.Node),
	}
	// 先注册所有节点，保证每个节点启动时都能看到完整的主机列表。
	for i, def := range b.defs {
		if _, dup := s.defs[def.hostname]; dup {
			return nil, fmt.Errorf("duplicate node %s", def.hostname)
		}
		if def.timeouts == nil {
			def.timeouts = raft.NewRandomTimeout(b.config.ElectionTimeoutMin, b.config.ElectionTimeoutMax,
				rand.New(rand.NewSource(b.seed+int64(i))))
		}
		s.order = append(s.order, def.hostname)
		s.defs[def.hostname] = def
		s.stores[def.hostname] = storemem.NewStore()
		s.network.Register(def.hostname, nil)
	}
	for _, host := range s.order {
		if err := s.boot(host); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Simulation 在一个虚拟时钟上运行整个集群。它不是 goroutine 安全的。
type Simulation struct {
	clock   *clock.Virtual
	network *inmemory.Network
	config  raft.Config
	order   []string
	defs    map[string]nodeDef
	stores  map[string]storage.Store
	nodes   map[string]*raft.Node
}

// boot 用节点已有的存储创建并启动节点。
func (s *Simulation) boot(host string) error {
	def := s.defs[host]
	state, err := raft.NewRaftState(host, s.stores[host], storemem.NewStateMachine(), s.network, def.timeouts, s.config)
	if err != nil {
		return fmt.Errorf("failed to create node %s: %w", host, err)
	}
	state.SetSnapshotPolicy(def.policy)
	node := raft.NewNode(state, s.network, raft.NewExecutor(s.clock))
	s.network.Register(host, node)
	s.nodes[host] = node
	node.Start()
	return nil
}

func (s *Simulation) node(host string) (*raft.Node, error) {
	n, ok := s.nodes[host]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownNode, host)
	}
	return n, nil
}

// Hostnames returns the nodes in the order they were added.
func (s *Simulation) Hostnames() []string { return s.network.Hostnames() }

// Now returns the virtual time.
func (s *Simulation) Now() time.Duration { return s.clock.Now() }

// Run 运行所有不晚于 until 的事件。
func (s *Simulation) Run(until time.Duration) { s.clock.Run(until) }

// RunObserved 与 Run 相同，但每个事件执行之后调用一次 observe。
func (s *Simulation) RunObserved(until time.Duration, observe func()) {
	for {
		at, ok := s.clock.Next()
		if !ok || at > until {
			break
		}
		s.clock.Step()
		observe()
	}
	s.clock.Run(until)
}

// ExecuteCmd 把客户端命令交给 hostname 上的节点。非 Leader 节点会拒绝它。
func (s *Simulation) ExecuteCmd(hostname, uid string, body []byte) error {
	n, err := s.node(hostname)
	if err != nil {
		return err
	}
	n.ExecuteCommand(uid, body)
	return nil
}

// Disconnect isolates the given nodes from the network.
func (s *Simulation) Disconnect(hostnames ...string) {
	for _, host := range hostnames {
		s.network.Disconnect(host)
	}
}

// Connect reattaches the given nodes to the network.
func (s *Simulation) Connect(hostnames ...string) {
	for _, host := range hostnames {
		s.network.Connect(host)
	}
}

// Restart 模拟节点崩溃后重启：丢弃内存状态和待执行的任务，从节点的存储恢复。
func (s *Simulation) Restart(hostname string) error {
	n, err := s.node(hostname)
	if err != nil {
		return err
	}
	cancelled := n.Executor().Stop()
	log.Printf("[Sim] restarting %s at %v (%d pending tasks dropped)", hostname, s.clock.Now(), cancelled)
	return s.boot(hostname)
}

// GetRaftState returns the consensus state of a node.
func (s *Simulation) GetRaftState(hostname string) (*raft.RaftState, error) {
	n, err := s.node(hostname)
	if err != nil {
		return nil, err
	}
	return n.State(), nil
}

// StateMachine returns the key/value state machine of a node.
func (s *Simulation) StateMachine(hostname string) (*storemem.StateMachine, error) {
	n, err := s.node(hostname)
	if err != nil {
		return nil, err
	}
	return n.State().StateMachine().(*storemem.StateMachine), nil
}

// Leader 返回任期最高的 Leader。
func (s *Simulation) Leader() (string, bool) {
	leader, term := "", int64(-1)
	for _, host := range s.order {
		st := s.nodes[host].State()
		if st.Role() == param.Leader && st.CurrentTerm() > term {
			leader, term = host, st.CurrentTerm()
		}
	}
	return leader, leader != ""
}

// Status 是某一时刻单个节点的摘要。
type Status struct {
	Hostname    string
	Connected   bool
	Role        param.Role
	Term        int64
	Leader      string
	CommitIndex int64
	LastApplied int64
	LastEntry   param.EntryID
	Snapshot    param.EntryID
}

// Status returns a summary of every node in insertion order.
func (s *Simulation) Status() []Status {
	out := make([]Status, 0, len(s.order))
	for _, host := range s.order {
		st := s.nodes[host].State()
		out = append(out, Status{
			Hostname:    host,
			Connected:   s.network.Connected(host),
			Role:        st.Role(),
			Term:        st.CurrentTerm(),
			Leader:      st.Leader(),
			CommitIndex: st.CommitIndex(),
			LastApplied: st.LastApplied(),
			LastEntry:   st.LastEntry(),
			Snapshot:    st.Snapshot().LastEntry(),
		})
	}
	return out
}
