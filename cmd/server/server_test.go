package main

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xmh1011/taskraft/client"
	"github.com/xmh1011/taskraft/param"
	"github.com/xmh1011/taskraft/storage"
	"github.com/xmh1011/taskraft/storage/inmemory"
)

func TestServerSingleNode(t *testing.T) {
	cfg := defaultConfig()
	cfg.Name = "node1"
	cfg.Peers = map[string]string{"node1": "127.0.0.1:0"}
	cfg.StorageType = storage.SimpleFileStorage
	cfg.DataDir = t.TempDir()
	require.NoError(t, cfg.Validate())

	srv, err := NewServer(cfg)
	require.NoError(t, err)
	require.NoError(t, srv.Start())
	defer srv.Stop()

	c := client.NewGRPCClient(map[string]string{"node1": srv.transport.Addr()})
	defer c.Close()

	body, err := json.Marshal(param.KVCommand{Op: "set", Key: "greeting", Value: "hello"})
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	reply, err := c.SendCommand(ctx, body)
	require.NoError(t, err)
	assert.True(t, reply.Accepted)
	assert.Equal(t, "node1", reply.Leader)

	sm := srv.node.State().StateMachine().(*inmemory.StateMachine)
	assert.Eventually(t, func() bool {
		v, err := sm.Get("greeting")
		return err == nil && v == "hello"
	}, 5*time.Second, 20*time.Millisecond)
}
