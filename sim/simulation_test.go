package sim

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xmh1011/taskraft/param"
	"github.com/xmh1011/taskraft/raft"
)

const ms = time.Millisecond

func TestReplay(t *testing.T) {
	r := Replay(10*ms, 20*ms)
	assert.Equal(t, []time.Duration{10 * ms, 20 * ms, 10 * ms, 20 * ms},
		[]time.Duration{r.Next(), r.Next(), r.Next(), r.Next()})
	assert.Panics(t, func() { Replay() })
}

func TestBuilderErrors(t *testing.T) {
	_, err := NewBuilder().Build()
	assert.Error(t, err)

	_, err = NewBuilder().WithRaftNode("n1", nil, nil).WithRaftNode("n1", nil, nil).Build()
	assert.Error(t, err)

	cfg := DefaultConfig()
	cfg.HeartbeatInterval = cfg.ElectionTimeoutMin
	_, err = NewBuilder().WithConfig(cfg).WithRaftNode("n1", nil, nil).Build()
	assert.ErrorIs(t, err, raft.ErrInvalidArgument)

	s, err := NewBuilder().WithRaftNode("n1", nil, nil).Build()
	require.NoError(t, err)
	assert.ErrorIs(t, s.ExecuteCmd("n9", "u", nil), ErrUnknownNode)
	_, err = s.GetRaftState("n9")
	assert.ErrorIs(t, err, ErrUnknownNode)
	assert.ErrorIs(t, s.Restart("n9"), ErrUnknownNode)
}

func threeNodes(policy raft.SnapshotPolicy) *Builder {
	return NewBuilder().
		WithRaftNode("raft_node_1", Replay(10*ms), policy).
		WithRaftNode("raft_node_2", Replay(20*ms), policy).
		WithRaftNode("raft_node_3", Replay(20*ms), policy)
}

func TestElection(t *testing.T) {
	s, err := threeNodes(nil).Build()
	require.NoError(t, err)

	s.Run(20 * ms)

	leader, ok := s.Leader()
	require.True(t, ok)
	assert.Equal(t, "raft_node_1", leader)
	for _, st := range s.Status() {
		assert.Equal(t, int64(1), st.Term, st.Hostname)
		assert.Equal(t, "raft_node_1", st.Leader, st.Hostname)
	}
}

// TestSnapshotCatchUp 一个节点被隔离期间 Leader 压缩了日志，重新连接后它通过快照追上集群。
func TestSnapshotCatchUp(t *testing.T) {
	saveSnapshot := raft.ThresholdPolicy(2)
	s, err := threeNodes(saveSnapshot).Build()
	require.NoError(t, err)

	s.Run(20 * ms)
	s.Disconnect("raft_node_2")

	require.NoError(t, s.ExecuteCmd("raft_node_1", "cmd_uid_1", []byte("cmd_1")))
	require.NoError(t, s.ExecuteCmd("raft_node_1", "cmd_uid_2", []byte("cmd_2")))
	s.Run(40 * ms)

	require.NoError(t, s.ExecuteCmd("raft_node_1", "cmd_uid_3", []byte("cmd_3")))
	s.Run(60 * ms)

	s.Connect("raft_node_2")
	s.Run(120 * ms)

	raft1, err := s.GetRaftState("raft_node_1")
	require.NoError(t, err)
	snapshot1 := raft1.Snapshot()

	raft2, err := s.GetRaftState("raft_node_2")
	require.NoError(t, err)
	snapshot2 := raft2.Snapshot()

	assert.GreaterOrEqual(t, snapshot1.LastIncludedIndex, int64(0))
	assert.Equal(t, snapshot1.LastIncludedIndex, snapshot2.LastIncludedIndex)
	assert.Equal(t, snapshot1.LastIncludedTerm, snapshot2.LastIncludedTerm)

	// 快照之后的日志也被复制并应用。
	assert.Equal(t, int64(2), raft2.CommitIndex())
	sm2, err := s.StateMachine("raft_node_2")
	require.NoError(t, err)
	for i := 1; i <= 3; i++ {
		value, err := sm2.Get(fmt.Sprintf("cmd_uid_%d", i))
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("cmd_%d", i), value)
	}
}

func TestRestartRecoversPersistentState(t *testing.T) {
	s, err := threeNodes(raft.ThresholdPolicy(2)).Build()
	require.NoError(t, err)
	s.Run(20 * ms)

	for i := 1; i <= 3; i++ {
		require.NoError(t, s.ExecuteCmd("raft_node_1", fmt.Sprintf("u%d", i), []byte(fmt.Sprintf("v%d", i))))
	}
	s.Run(40 * ms)

	// 1. 重启 Follower：任期、投票和日志从存储恢复。
	require.NoError(t, s.Restart("raft_node_2"))
	st, err := s.GetRaftState("raft_node_2")
	require.NoError(t, err)
	assert.Equal(t, param.Follower, st.Role())
	assert.Equal(t, int64(1), st.CurrentTerm())
	assert.Equal(t, "raft_node_1", st.VotedFor())
	assert.Equal(t, param.EntryID{Term: 1, Index: 2}, st.LastEntry())
	assert.Equal(t, st.Snapshot().LastIncludedIndex, st.CommitIndex(), "commit index restarts at the snapshot")

	s.Run(60 * ms)
	assert.Equal(t, int64(2), st.CommitIndex())
	sm, err := s.StateMachine("raft_node_2")
	require.NoError(t, err)
	value, err := sm.Get("u3")
	require.NoError(t, err)
	assert.Equal(t, "v3", value)

	// 2. 重启 Leader：集群选出新的 Leader，已提交的命令不会丢失。
	require.NoError(t, s.Restart("raft_node_1"))
	s.Run(200 * ms)
	leader, ok := s.Leader()
	require.True(t, ok)
	ls, err := s.GetRaftState(leader)
	require.NoError(t, err)
	assert.Greater(t, ls.CurrentTerm(), int64(1))

	require.NoError(t, s.ExecuteCmd(leader, "u4", []byte("v4")))
	s.Run(300 * ms)
	for _, host := range s.Hostnames() {
		sm, err := s.StateMachine(host)
		require.NoError(t, err)
		for i := 1; i <= 4; i++ {
			value, err := sm.Get(fmt.Sprintf("u%d", i))
			require.NoError(t, err, host)
			assert.Equal(t, fmt.Sprintf("v%d", i), value, host)
		}
	}
}

// TestRandomizedSafety 在随机的网络隔离和重启下检查选举安全性和日志匹配性。
func TestRandomizedSafety(t *testing.T) {
	seeds := 10
	if testing.Short() {
		seeds = 2
	}
	hosts := []string{"n1", "n2", "n3", "n4", "n5"}

	for seed := int64(1); seed <= int64(seeds); seed++ {
		t.Run(fmt.Sprintf("seed=%d", seed), func(t *testing.T) {
			b := NewBuilder().WithSeed(seed)
			for _, h := range hosts {
				b.WithRaftNode(h, nil, raft.ThresholdPolicy(5))
			}
			s, err := b.Build()
			require.NoError(t, err)
			rnd := rand.New(rand.NewSource(seed))

			leaders := make(map[int64]string)
			checkElectionSafety := func() {
				for _, st := range s.Status() {
					if st.Role != param.Leader {
						continue
					}
					if other, ok := leaders[st.Term]; ok && other != st.Hostname {
						t.Fatalf("two leaders in term %d: %s and %s", st.Term, other, st.Hostname)
					}
					leaders[st.Term] = st.Hostname
				}
			}

			cmd := 0
			submit := func() {
				leader, ok := s.Leader()
				if !ok {
					return
				}
				cmd++
				body, err := json.Marshal(param.KVCommand{Op: "set", Key: fmt.Sprintf("k%d", cmd%7), Value: fmt.Sprintf("v%d", cmd)})
				require.NoError(t, err)
				require.NoError(t, s.ExecuteCmd(leader, fmt.Sprintf("c%d", cmd), body))
			}

			// 1. 混乱阶段：随机隔离、恢复和重启节点。
			for step := 1; step <= 40; step++ {
				switch r := rnd.Intn(10); {
				case r < 3:
					s.Disconnect(hosts[rnd.Intn(len(hosts))])
				case r < 6:
					s.Connect(hosts[rnd.Intn(len(hosts))])
				case r < 7:
					require.NoError(t, s.Restart(hosts[rnd.Intn(len(hosts))]))
				}
				submit()
				s.RunObserved(time.Duration(step)*25*ms, checkElectionSafety)
			}

			// 2. 恢复网络，等待集群稳定后再提交一条命令。
			s.Connect(hosts...)
			s.RunObserved(s.Now()+300*ms, checkElectionSafety)
			submit()
			s.RunObserved(s.Now()+300*ms, checkElectionSafety)

			assertLogMatching(t, s)
			assertStateMachinesAgree(t, s)
		})
	}
}

// assertLogMatching 检查任意两个节点在同一位置上任期相同的日志，内容也相同。
func assertLogMatching(t *testing.T, s *Simulation) {
	t.Helper()
	hosts := s.Hostnames()
	for i := range hosts {
		for j := i + 1; j < len(hosts); j++ {
			a, err := s.GetRaftState(hosts[i])
			require.NoError(t, err)
			b, err := s.GetRaftState(hosts[j])
			require.NoError(t, err)

			start := max(a.Log().Start(), b.Log().Start())
			stop := min(a.Log().Length(), b.Log().Length())
			for idx := start; idx < stop; idx++ {
				ea, err := a.Log().Get(idx)
				require.NoError(t, err)
				eb, err := b.Log().Get(idx)
				require.NoError(t, err)
				if ea.Term == eb.Term {
					assert.Equal(t, ea.UID, eb.UID, "%s and %s disagree at index %d", hosts[i], hosts[j], idx)
				}
			}
		}
	}
}

func assertStateMachinesAgree(t *testing.T, s *Simulation) {
	t.Helper()
	leader, ok := s.Leader()
	require.True(t, ok, "no leader after the network healed")
	ls, err := s.GetRaftState(leader)
	require.NoError(t, err)
	want, err := ls.StateMachine().GetSnapshot()
	require.NoError(t, err)

	for _, host := range s.Hostnames() {
		st, err := s.GetRaftState(host)
		require.NoError(t, err)
		assert.Equal(t, ls.LastIndex(), st.LastApplied(), host)
		got, err := st.StateMachine().GetSnapshot()
		require.NoError(t, err)
		assert.JSONEq(t, string(want), string(got), host)
	}
}
