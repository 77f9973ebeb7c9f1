package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePeers(t *testing.T) {
	peers, err := ParsePeers("node1=127.0.0.1:8001, node2=127.0.0.1:8002,")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"node1": "127.0.0.1:8001", "node2": "127.0.0.1:8002"}, peers)

	for _, bad := range []string{"", "node1", "=127.0.0.1:1", "node1=", "a=1,a=2"} {
		_, err := ParsePeers(bad)
		assert.Error(t, err, bad)
	}
}
