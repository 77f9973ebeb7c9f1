package transport

import (
	"fmt"
	"strings"
)

// ParsePeers 解析 "name=host:port,name=host:port" 格式的节点列表。
func ParsePeers(s string) (map[string]string, error) {
	peers := make(map[string]string)
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		name, addr, ok := strings.Cut(p, "=")
		name, addr = strings.TrimSpace(name), strings.TrimSpace(addr)
		if !ok || name == "" || addr == "" {
			return nil, fmt.Errorf("invalid peer format: %s", p)
		}
		if _, dup := peers[name]; dup {
			return nil, fmt.Errorf("duplicate peer: %s", name)
		}
		peers[name] = addr
	}
	if len(peers) == 0 {
		return nil, fmt.Errorf("empty peer list")
	}
	return peers, nil
}
