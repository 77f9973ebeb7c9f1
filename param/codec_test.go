package param

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func TestMessageEncoding_AppendEntries(t *testing.T) {
	msg := NewEnvelope(OpAppendEntries, 7, "raft_node_1").WithAppendEntries(AppendEntriesParams{
		LastCommitIndex: 3,
		ExpLastLogEntry: EntryID{Term: 6, Index: 4},
		Entries: []LogEntry{
			NewLogEntry(7, 5, "cmd_uid_1", []byte("cmd_1")),
			NewLogEntry(7, 6, "cmd_uid_2", []byte("cmd_2")),
		},
	})

	data, err := msg.MarshalBinary()
	require.NoError(t, err)

	var decoded Message
	require.NoError(t, decoded.UnmarshalBinary(data))
	assert.Equal(t, *msg, decoded)
}

func TestMessageEncoding_NegativeIndices(t *testing.T) {
	// An empty log advertises (0, -1); zig-zag encoding must keep the sign.
	msg := NewEnvelope(OpRequestVote, 1, "a").WithRequestVote(RequestVoteParams{SendersLastLogEntry: NoEntry})

	data, err := msg.MarshalBinary()
	require.NoError(t, err)

	var decoded Message
	require.NoError(t, decoded.UnmarshalBinary(data))
	assert.Equal(t, NoEntry, decoded.SendersLastLogEntry)
	assert.Equal(t, OpRequestVote, decoded.Operation)
}

func TestUnmarshal_SkipsUnknownFields(t *testing.T) {
	entry := NewLogEntry(2, 9, "uid", []byte("body"))
	data, err := entry.MarshalBinary()
	require.NoError(t, err)

	// A newer writer may append fields this reader does not know about.
	data = protowire.AppendTag(data, 99, protowire.BytesType)
	data = protowire.AppendBytes(data, []byte("future"))

	var decoded LogEntry
	require.NoError(t, decoded.UnmarshalBinary(data))
	assert.Equal(t, entry, decoded)
}

func TestUnmarshal_Truncated(t *testing.T) {
	snap := NewSnapshot(3, 10, []byte("state"))
	data, err := snap.MarshalBinary()
	require.NoError(t, err)

	var decoded Snapshot
	err = decoded.UnmarshalBinary(data[:len(data)-2])
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestSnapshotOrdering(t *testing.T) {
	base := NewSnapshot(2, 10, nil)
	assert.True(t, NewSnapshot(3, 1, nil).Newer(base), "higher term always wins")
	assert.True(t, NewSnapshot(2, 11, nil).Newer(base), "same term needs a higher index")
	assert.False(t, NewSnapshot(2, 10, nil).Newer(base), "equal position is not newer")
	assert.False(t, NewSnapshot(1, 50, nil).Newer(base))
	assert.True(t, base.Newer(EmptySnapshot()))
}

func TestEntryID_AtLeastAsUpToDate(t *testing.T) {
	local := EntryID{Term: 3, Index: 5}
	assert.True(t, EntryID{Term: 4, Index: 0}.AtLeastAsUpToDate(local))
	assert.True(t, EntryID{Term: 3, Index: 5}.AtLeastAsUpToDate(local))
	assert.False(t, EntryID{Term: 3, Index: 4}.AtLeastAsUpToDate(local))
	assert.False(t, EntryID{Term: 2, Index: 100}.AtLeastAsUpToDate(local))
}
