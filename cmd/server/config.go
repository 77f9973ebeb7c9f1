package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/xmh1011/taskraft/raft"
	"github.com/xmh1011/taskraft/storage"
	"github.com/xmh1011/taskraft/transport"
)

// Config holds the server configuration
type Config struct {
	Name        string            `yaml:"name"`
	Listen      string            `yaml:"listen"` // 默认使用 peers 中自己的地址
	Peers       map[string]string `yaml:"peers"`
	DataDir     string            `yaml:"data_dir"`
	StorageType string            `yaml:"storage"`
	SendTimeout time.Duration     `yaml:"send_timeout"`
	Raft        raft.Config       `yaml:"raft"`
}

func defaultConfig() Config {
	return Config{
		Name:        "node1",
		DataDir:     "raft-data",
		StorageType: storage.InmemoryStorage,
		SendTimeout: 500 * time.Millisecond,
		Raft:        raft.DefaultConfig(),
	}
}

// loadConfigFile 把 YAML 配置文件合并到 cfg 上，文件中没有出现的字段保持原值。
func loadConfigFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// applyPeers 用 --peers 参数覆盖配置文件中的节点列表。
func (c *Config) applyPeers(peersStr string) error {
	peers, err := transport.ParsePeers(peersStr)
	if err != nil {
		return err
	}
	c.Peers = peers
	return nil
}

// Validate 检查配置并补全监听地址。
func (c *Config) Validate() error {
	addr, ok := c.Peers[c.Name]
	if !ok {
		return fmt.Errorf("node %s not found in peers list", c.Name)
	}
	if c.Listen == "" {
		c.Listen = addr
	}
	return c.Raft.Validate()
}
