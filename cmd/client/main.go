package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/xmh1011/taskraft/client"
	"github.com/xmh1011/taskraft/param"
	"github.com/xmh1011/taskraft/transport"
)

var (
	peersStr string
	op       string
	key      string
	value    string
	timeout  time.Duration
)

func main() {
	var rootCmd = &cobra.Command{
		Use:   "raft-client",
		Short: "A client for the Raft cluster",
		RunE:  runClient,
	}

	rootCmd.Flags().StringVar(&peersStr, "peers", "node1=127.0.0.1:8001,node2=127.0.0.1:8002,node3=127.0.0.1:8003", "Comma-separated list of name=address pairs")
	rootCmd.Flags().StringVar(&op, "op", "set", "Operation type: set or delete")
	rootCmd.Flags().StringVar(&key, "key", "foo", "Key to operate on")
	rootCmd.Flags().StringVar(&value, "value", "", "Value to set (only for set operation)")
	rootCmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "How long to keep looking for a leader")

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func runClient(_ *cobra.Command, _ []string) error {
	// 1. 解析 peers
	peerMap, err := transport.ParsePeers(peersStr)
	if err != nil {
		return err
	}

	// 2. 创建客户端实例
	c := client.NewGRPCClient(peerMap)
	defer c.Close()

	// 3. 构造命令
	kvCmd := param.KVCommand{
		Op:    op,
		Key:   key,
		Value: value,
	}
	// 序列化为 JSON
	cmdBytes, err := json.Marshal(kvCmd)
	if err != nil {
		return fmt.Errorf("failed to marshal command: %w", err)
	}

	// 4. 发送命令
	log.Printf("Sending command: %s key=%s val=%s", op, key, value)
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	reply, err := c.SendCommand(ctx, cmdBytes)
	if err != nil {
		fmt.Printf("❌ Failed to execute command: %v\n", err)
		return err
	}

	fmt.Printf("✅ Accepted by %s at index %d (term %d)\n", reply.Leader, reply.Index, reply.Term)
	return nil
}
