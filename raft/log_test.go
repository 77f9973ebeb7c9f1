package raft

import (
	"fmt"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xmh1011/taskraft/param"
	"github.com/xmh1011/taskraft/storage"
	"github.com/xmh1011/taskraft/storage/inmemory"
)

func newTestLog(t *testing.T) (*Log, *inmemory.Store) {
	t.Helper()
	store := inmemory.NewStore()
	l, err := NewLog(store)
	require.NoError(t, err)
	return l, store
}

func testEntries(n int) []param.LogEntry {
	entries := make([]param.LogEntry, n)
	for i := range entries {
		entries[i] = param.NewLogEntry(1, int64(i), fmt.Sprintf("uid-%d", i), []byte(fmt.Sprintf("cmd-%d", i)))
	}
	return entries
}

func TestLogAppendAndGet(t *testing.T) {
	l, store := newTestLog(t)
	assert.Equal(t, int64(0), l.Length())

	entries := testEntries(3)
	flushes := store.Flushes()
	require.NoError(t, l.Append(entries...))
	assert.Equal(t, int64(3), l.Length())
	assert.Greater(t, store.Flushes(), flushes, "append must be durable before returning")

	for _, want := range entries {
		got, err := l.Get(want.Index)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestLogAppendRejectsWrongIndex(t *testing.T) {
	tests := []struct {
		name    string
		entries []param.LogEntry
	}{
		{"Gap", []param.LogEntry{param.NewLogEntry(1, 1, "", nil)}},
		{"Overwrite", []param.LogEntry{param.NewLogEntry(1, -1, "", nil)}},
		{"NotContiguous", []param.LogEntry{param.NewLogEntry(1, 0, "", nil), param.NewLogEntry(1, 2, "", nil)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, _ := newTestLog(t)
			assert.ErrorIs(t, l.Append(tt.entries...), ErrInvalidArgument)
			assert.Equal(t, int64(0), l.Length(), "a rejected batch must not be partially applied")
		})
	}
}

func TestLogGetOutOfRange(t *testing.T) {
	l, _ := newTestLog(t)
	require.NoError(t, l.Append(testEntries(2)...))

	for _, idx := range []int64{-1, 2, 100} {
		_, err := l.Get(idx)
		assert.ErrorIs(t, err, ErrOutOfRange, "index %d", idx)
	}
}

func TestLogSliceRoundTrip(t *testing.T) {
	l, _ := newTestLog(t)
	entries := testEntries(5)
	require.NoError(t, l.Append(entries...))

	got, err := l.Slice(0, 5)
	require.NoError(t, err)
	assert.Equal(t, entries, got)

	got, err = l.Slice(2, -1)
	require.NoError(t, err)
	assert.Equal(t, entries[2:], got)

	got, err = l.Slice(3, 100)
	require.NoError(t, err)
	assert.Equal(t, entries[3:], got, "stop beyond length is clamped")

	got, err = l.Slice(5, -1)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestLogSliceErrors(t *testing.T) {
	l, _ := newTestLog(t)
	require.NoError(t, l.Append(testEntries(5)...))

	tests := []struct {
		name             string
		start, stop, step int64
		wantErr          error
	}{
		{"NegativeStart", -1, 3, 1, ErrOutOfRange},
		{"StartBeyondLength", 6, -1, 1, ErrOutOfRange},
		{"Inverted", 4, 2, 1, ErrInvalidArgument},
		{"StepTwo", 0, 5, 2, ErrInvalidArgument},
		{"NegativeStep", 0, 5, -1, ErrInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.SliceStep(tt.start, tt.stop, tt.step)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestLogTruncateFrom(t *testing.T) {
	l, _ := newTestLog(t)
	entries := testEntries(3)
	require.NoError(t, l.Append(entries...))

	require.NoError(t, l.TruncateFrom(1))
	assert.Equal(t, int64(1), l.Length())

	first, err := l.Get(0)
	require.NoError(t, err)
	assert.Equal(t, entries[0], first)

	_, err = l.Get(1)
	assert.ErrorIs(t, err, ErrOutOfRange)

	// 截断到末尾是空操作，越界截断报错。
	require.NoError(t, l.TruncateFrom(1))
	assert.ErrorIs(t, l.TruncateFrom(5), ErrOutOfRange)

	// 截断后可以在同一位置写入新的日志。
	require.NoError(t, l.Append(param.NewLogEntry(2, 1, "new", nil)))
	got, err := l.Get(1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Term)
}

func TestLogPopLast(t *testing.T) {
	l, _ := newTestLog(t)
	_, err := l.PopLast()
	assert.ErrorIs(t, err, ErrOutOfRange)

	entries := testEntries(2)
	require.NoError(t, l.Append(entries...))
	got, err := l.PopLast()
	require.NoError(t, err)
	assert.Equal(t, entries[1], got)
	assert.Equal(t, int64(1), l.Length())
}

func TestLogCompactAndReset(t *testing.T) {
	l, store := newTestLog(t)
	require.NoError(t, l.Append(testEntries(5)...))

	require.NoError(t, l.CompactThrough(2))
	assert.Equal(t, int64(3), l.Start())
	assert.Equal(t, int64(5), l.Length())
	assert.Equal(t, int64(2), l.Size())

	_, err := l.Get(2)
	assert.ErrorIs(t, err, ErrOutOfRange, "compacted entries are gone")
	_, err = l.Slice(1, -1)
	assert.ErrorIs(t, err, ErrOutOfRange)
	assert.ErrorIs(t, l.TruncateFrom(2), ErrOutOfRange)

	// 压缩已经压缩过的前缀是空操作。
	require.NoError(t, l.CompactThrough(1))
	assert.ErrorIs(t, l.CompactThrough(5), ErrOutOfRange)

	// 重新打开日志应恢复相同的边界。
	reopened, err := NewLog(store)
	require.NoError(t, err)
	assert.Equal(t, int64(3), reopened.Start())
	assert.Equal(t, int64(5), reopened.Length())

	require.NoError(t, l.ResetTo(10))
	assert.Equal(t, int64(10), l.Start())
	assert.Equal(t, int64(10), l.Length())
	assert.Equal(t, int64(0), l.Size())
	keys, err := store.Keys(logCollection)
	require.NoError(t, err)
	assert.Empty(t, keys)

	require.NoError(t, l.Append(param.NewLogEntry(3, 10, "", nil)))
	reopened, err = NewLog(store)
	require.NoError(t, err)
	assert.Equal(t, int64(10), reopened.Start())
	assert.Equal(t, int64(11), reopened.Length())
}

func TestLogStoreFailures(t *testing.T) {
	tests := []struct {
		name       string
		setupMocks func(s *storage.MockStore)
		run        func(l *Log) error
	}{
		{
			name: "AppendSetFails",
			setupMocks: func(s *storage.MockStore) {
				s.EXPECT().Set(logCollection, "0", gomock.Any()).Return(assert.AnError)
			},
			run: func(l *Log) error { return l.Append(testEntries(1)...) },
		},
		{
			name: "AppendFlushFails",
			setupMocks: func(s *storage.MockStore) {
				s.EXPECT().Set(logCollection, gomock.Any(), gomock.Any()).Return(nil).Times(2)
				s.EXPECT().Flush().Return(assert.AnError)
			},
			run: func(l *Log) error { return l.Append(testEntries(2)...) },
		},
		{
			name: "GetFails",
			setupMocks: func(s *storage.MockStore) {
				s.EXPECT().Set(logCollection, "0", gomock.Any()).Return(nil)
				s.EXPECT().Flush().Return(nil)
				s.EXPECT().Get(logCollection, "0").Return(nil, storage.ErrKeyNotFound)
			},
			run: func(l *Log) error {
				if err := l.Append(testEntries(1)...); err != nil {
					return err
				}
				_, err := l.Get(0)
				return err
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			s := storage.NewMockStore(ctrl)
			s.EXPECT().Create(gomock.Any()).Return(nil).Times(2)
			s.EXPECT().Get(logMetaCollection, logStartKey).Return(nil, storage.ErrKeyNotFound)
			s.EXPECT().Keys(logCollection).Return(nil, nil)
			tt.setupMocks(s)

			l, err := NewLog(s)
			require.NoError(t, err)
			assert.Error(t, tt.run(l))
		})
	}
}
