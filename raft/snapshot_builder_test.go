package raft

import (
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xmh1011/taskraft/param"
	"github.com/xmh1011/taskraft/storage"
	"github.com/xmh1011/taskraft/storage/inmemory"
)

func newTestBuilder(t *testing.T) (*SnapshotBuilder, *inmemory.Store) {
	t.Helper()
	store := inmemory.NewStore()
	b, err := NewSnapshotBuilder(store)
	require.NoError(t, err)
	return b, store
}

func encodedSnapshot(t *testing.T, term, index int64, data string) []byte {
	t.Helper()
	raw, err := param.NewSnapshot(term, index, []byte(data)).MarshalBinary()
	require.NoError(t, err)
	return raw
}

func TestSnapshotBuilderIsStale(t *testing.T) {
	b, _ := newTestBuilder(t)
	_, _, err := b.AppendChunk([]byte("x"), 0, 10, 3)
	require.NoError(t, err)

	tests := []struct {
		name        string
		term, index int64
		stale       bool
	}{
		{"Same", 3, 10, true},
		{"LowerIndex", 3, 9, true},
		{"LowerTerm", 2, 50, true},
		{"HigherIndex", 3, 11, false},
		{"HigherTerm", 4, 1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.stale, b.IsStale(tt.term, tt.index))
		})
	}
}

func TestSnapshotBuilderChunks(t *testing.T) {
	b, _ := newTestBuilder(t)

	accepted, next, err := b.AppendChunk([]byte("abc"), 0, 5, 1)
	require.NoError(t, err)
	assert.True(t, accepted)
	assert.Equal(t, int64(3), next)

	// 重复分块被丢弃，状态不变。
	accepted, next, err = b.AppendChunk([]byte("abc"), 0, 5, 1)
	require.NoError(t, err)
	assert.False(t, accepted)
	assert.Equal(t, int64(3), next)
	assert.Equal(t, []byte("abc"), b.buffer)

	// 有空洞的分块被丢弃，返回期望的偏移量。
	accepted, next, err = b.AppendChunk([]byte("ghi"), 6, 5, 1)
	require.NoError(t, err)
	assert.False(t, accepted)
	assert.Equal(t, int64(3), next)

	accepted, next, err = b.AppendChunk([]byte("def"), 3, 5, 1)
	require.NoError(t, err)
	assert.True(t, accepted)
	assert.Equal(t, int64(6), next)

	// 更旧的传输被丢弃。
	accepted, _, err = b.AppendChunk([]byte("zzz"), 6, 4, 1)
	require.NoError(t, err)
	assert.False(t, accepted)
	assert.Equal(t, []byte("abcdef"), b.buffer)

	// 更新的传输重置缓冲区。
	accepted, next, err = b.AppendChunk([]byte("xy"), 0, 8, 2)
	require.NoError(t, err)
	assert.True(t, accepted)
	assert.Equal(t, int64(2), next)
	assert.Equal(t, []byte("xy"), b.buffer)
	assert.Equal(t, param.EntryID{Term: 2, Index: 8}, b.Tracked())
}

func TestSnapshotBuilderBuild(t *testing.T) {
	b, store := newTestBuilder(t)

	_, err := b.Build()
	assert.ErrorIs(t, err, ErrInvalidState)

	raw := encodedSnapshot(t, 2, 7, "state")
	half := len(raw) / 2
	_, _, err = b.AppendChunk(raw[:half], 0, 7, 2)
	require.NoError(t, err)

	// 重启后从持久化的状态续传。
	resumed, err := NewSnapshotBuilder(store)
	require.NoError(t, err)
	assert.Equal(t, int64(half), resumed.Offset())
	accepted, _, err := resumed.AppendChunk(raw[half:], int64(half), 7, 2)
	require.NoError(t, err)
	require.True(t, accepted)

	snap, err := resumed.Build()
	require.NoError(t, err)
	assert.Equal(t, param.NewSnapshot(2, 7, []byte("state")), snap)

	// Build 清空传输状态，但保留跟踪的快照位置。
	assert.Equal(t, int64(0), resumed.Offset())
	assert.Equal(t, param.EntryID{Term: 2, Index: 7}, resumed.Tracked())
	assert.True(t, resumed.IsStale(2, 6))
	_, err = resumed.Build()
	assert.ErrorIs(t, err, ErrInvalidState, "the buffer is cleared after build")

	reopened, err := NewSnapshotBuilder(store)
	require.NoError(t, err)
	assert.Equal(t, int64(0), reopened.Offset())

	// 中间分块的重传被丢弃，从头重传则重新接收同一快照。
	accepted, next, err := resumed.AppendChunk(raw[half:], int64(half), 7, 2)
	require.NoError(t, err)
	assert.False(t, accepted)
	assert.Equal(t, int64(0), next)
	accepted, next, err = resumed.AppendChunk(raw[:half], 0, 7, 2)
	require.NoError(t, err)
	assert.True(t, accepted)
	assert.Equal(t, int64(half), next)
}

func TestSnapshotBuilderHolds(t *testing.T) {
	b, _ := newTestBuilder(t)
	assert.False(t, b.Holds(0, -1, 0, 0), "nothing received")

	_, _, err := b.AppendChunk([]byte("abc"), 0, 5, 1)
	require.NoError(t, err)
	_, _, err = b.AppendChunk([]byte("de"), 3, 5, 1)
	require.NoError(t, err)

	assert.True(t, b.Holds(1, 5, 3, 2), "last chunk received")
	assert.False(t, b.Holds(1, 5, 0, 3), "earlier chunk")
	assert.False(t, b.Holds(2, 5, 3, 2), "other snapshot")

	require.NoError(t, b.Abandon())
	assert.False(t, b.Holds(1, 5, 3, 2))
}

func TestSnapshotBuilderAbandon(t *testing.T) {
	b, store := newTestBuilder(t)
	_, _, err := b.AppendChunk([]byte("abc"), 0, 10, 3)
	require.NoError(t, err)

	require.NoError(t, b.Abandon())
	assert.Equal(t, param.NoEntry, b.Tracked())
	assert.Equal(t, int64(0), b.Offset())

	reopened, err := NewSnapshotBuilder(store)
	require.NoError(t, err)
	assert.Equal(t, param.NoEntry, reopened.Tracked())
	assert.False(t, reopened.IsStale(1, 0))
}

func TestSnapshotBuilderPersistFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	s := storage.NewMockStore(ctrl)
	s.EXPECT().Create(incomingSnapshotCollection).Return(nil)
	s.EXPECT().Get(incomingSnapshotCollection, gomock.Any()).Return(nil, storage.ErrKeyNotFound).Times(4)
	s.EXPECT().Set(incomingSnapshotCollection, gomock.Any(), gomock.Any()).Return(assert.AnError).MaxTimes(4)

	b, err := NewSnapshotBuilder(s)
	require.NoError(t, err)
	_, _, err = b.AppendChunk([]byte("abc"), 0, 1, 1)
	assert.ErrorIs(t, err, assert.AnError)
}
