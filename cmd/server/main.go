package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/xmh1011/taskraft/clock"
	"github.com/xmh1011/taskraft/raft"
	"github.com/xmh1011/taskraft/storage"
	grpctransport "github.com/xmh1011/taskraft/transport/grpc"
)

var (
	config     = defaultConfig()
	configPath string
	peersStr   string
)

func main() {
	var rootCmd = &cobra.Command{
		Use:   "raft-server",
		Short: "A Raft server replicating a key/value state machine over gRPC",
		RunE:  runServer,
	}

	flags := rootCmd.Flags()
	flags.StringVar(&configPath, "config", "", "Path to a YAML config file; flags override its values")
	flags.StringVar(&config.Name, "name", config.Name, "Name of this node, must appear in --peers")
	flags.StringVar(&peersStr, "peers", "node1=127.0.0.1:8001,node2=127.0.0.1:8002,node3=127.0.0.1:8003", "Comma-separated list of name=address pairs")
	flags.StringVar(&config.Listen, "listen", "", "Listen address (defaults to this node's peer address)")
	flags.StringVar(&config.DataDir, "data", config.DataDir, "Directory to store raft data")
	flags.StringVar(&config.StorageType, "storage", config.StorageType, "Storage type: inmemory or simplefile")
	flags.DurationVar(&config.SendTimeout, "send-timeout", config.SendTimeout, "Timeout of a single message send")
	flags.DurationVar(&config.Raft.HeartbeatInterval, "heartbeat", config.Raft.HeartbeatInterval, "Heartbeat interval")
	flags.DurationVar(&config.Raft.ElectionTimeoutMin, "election-min", config.Raft.ElectionTimeoutMin, "Minimum election timeout")
	flags.DurationVar(&config.Raft.ElectionTimeoutMax, "election-max", config.Raft.ElectionTimeoutMax, "Maximum election timeout")
	flags.IntVar(&config.Raft.SnapshotThreshold, "snapshot-threshold", config.Raft.SnapshotThreshold, "Live log entries that trigger compaction, 0 disables it")

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// resolveConfig 按 默认值 < 配置文件 < 命令行参数 的优先级得到最终配置。
func resolveConfig(cmd *cobra.Command) (Config, error) {
	cfg := config
	if configPath != "" {
		fileCfg := defaultConfig()
		if err := loadConfigFile(configPath, &fileCfg); err != nil {
			return Config{}, err
		}
		cfg = fileCfg
		// 只有显式给出的参数才覆盖配置文件。
		flags := cmd.Flags()
		override := func(name string, apply func()) {
			if flags.Changed(name) {
				apply()
			}
		}
		override("name", func() { cfg.Name = config.Name })
		override("listen", func() { cfg.Listen = config.Listen })
		override("data", func() { cfg.DataDir = config.DataDir })
		override("storage", func() { cfg.StorageType = config.StorageType })
		override("send-timeout", func() { cfg.SendTimeout = config.SendTimeout })
		override("heartbeat", func() { cfg.Raft.HeartbeatInterval = config.Raft.HeartbeatInterval })
		override("election-min", func() { cfg.Raft.ElectionTimeoutMin = config.Raft.ElectionTimeoutMin })
		override("election-max", func() { cfg.Raft.ElectionTimeoutMax = config.Raft.ElectionTimeoutMax })
		override("snapshot-threshold", func() { cfg.Raft.SnapshotThreshold = config.Raft.SnapshotThreshold })
		if flags.Changed("peers") || len(cfg.Peers) == 0 {
			if err := cfg.applyPeers(peersStr); err != nil {
				return Config{}, err
			}
		}
	} else if err := cfg.applyPeers(peersStr); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func runServer(cmd *cobra.Command, _ []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}

	srv, err := NewServer(cfg)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	if err := srv.Start(); err != nil {
		srv.Stop()
		return fmt.Errorf("failed to start server: %w", err)
	}

	waitForSignal(srv)
	return nil
}

// Server represents the Raft server instance
type Server struct {
	config    Config
	node      *raft.Node
	clock     *clock.Realtime
	transport *grpctransport.Transport
	store     storage.Store
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewServer creates a new Server instance
func NewServer(cfg Config) (*Server, error) {
	// 1. Initialize storage
	store, stateMachine, err := storage.NewStorage(cfg.StorageType, cfg.DataDir, cfg.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	// 2. Initialize transport
	trans, err := grpctransport.NewTransport(cfg.Listen, cfg.SendTimeout)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to initialize transport: %w", err)
	}
	trans.SetPeers(cfg.Peers)

	// 3. Create Raft node
	timeouts := raft.NewRandomTimeout(cfg.Raft.ElectionTimeoutMin, cfg.Raft.ElectionTimeoutMax, nil)
	state, err := raft.NewRaftState(cfg.Name, store, stateMachine, trans, timeouts, cfg.Raft)
	if err != nil {
		trans.Close()
		store.Close()
		return nil, fmt.Errorf("failed to recover raft state: %w", err)
	}
	rt := clock.NewRealtime()

	return &Server{
		config:    cfg,
		node:      raft.NewNode(state, trans, raft.NewExecutor(rt)),
		clock:     rt,
		transport: trans,
		store:     store,
		done:      make(chan struct{}),
	}, nil
}

// Start starts the Raft server components
func (s *Server) Start() error {
	// 事件循环启动之前安排第一次选举，避免与入站消息并发访问节点状态。
	s.node.Start()

	// Register the node to transport and start the service
	s.transport.Register(s.node)
	if err := s.transport.Start(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go func() {
		defer close(s.done)
		s.clock.Run(ctx)
	}()

	log.Printf("Raft node %s started on %s (storage: %s)", s.config.Name, s.transport.Addr(), s.config.StorageType)
	return nil
}

// Stop stops the Raft server
func (s *Server) Stop() {
	log.Println("Shutting down...")
	s.node.Executor().Stop()
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
	if err := s.transport.Close(); err != nil {
		log.Printf("Failed to close transport: %v", err)
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			log.Printf("Failed to close store: %v", err)
		}
	}
	log.Println("Node stopped")
}

func waitForSignal(srv *Server) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	srv.Stop()
}
