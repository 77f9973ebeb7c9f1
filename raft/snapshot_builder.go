package raft

import (
	"fmt"
	"log"
	"strconv"

	"github.com/xmh1011/taskraft/param"
	"github.com/xmh1011/taskraft/storage"
)

const (
	incomingSnapshotCollection = "incoming_snapshot"

	builderTermKey   = "term"
	builderIndexKey  = "index"
	builderOffsetKey = "offset"
	builderBufferKey = "buffer"
)

// SnapshotBuilder 组装分块到达的快照。每个节点同一时刻只有一个正在接收的快照，
// 其 (term, index)、已接收字节和下一个期望偏移量都写穿到存储中，节点重启后可以续传。
type SnapshotBuilder struct {
	store storage.Store

	term   int64
	index  int64
	offset int64 // 下一个期望的字节偏移量
	buffer []byte
}

// NewSnapshotBuilder opens the builder state kept in store.
func NewSnapshotBuilder(store storage.Store) (*SnapshotBuilder, error) {
	if err := store.Create(incomingSnapshotCollection); err != nil {
		return nil, fmt.Errorf("failed to create collection %s: %w", incomingSnapshotCollection, err)
	}
	b := &SnapshotBuilder{store: store, term: param.NoEntry.Term, index: param.NoEntry.Index}

	ints := map[string]*int64{builderTermKey: &b.term, builderIndexKey: &b.index, builderOffsetKey: &b.offset}
	for key, ptr := range ints {
		raw, err := store.Get(incomingSnapshotCollection, key)
		if storage.IsNotFound(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if *ptr, err = strconv.ParseInt(string(raw), 10, 64); err != nil {
			return nil, fmt.Errorf("corrupted snapshot builder %s %q: %w", key, raw, err)
		}
	}
	buf, err := store.Get(incomingSnapshotCollection, builderBufferKey)
	switch {
	case err == nil:
		b.buffer = buf
	case !storage.IsNotFound(err):
		return nil, err
	}
	return b, nil
}

// Tracked returns the (term, index) of the transfer the builder tracks.
func (b *SnapshotBuilder) Tracked() param.EntryID {
	return param.EntryID{Term: b.term, Index: b.index}
}

// Offset 返回下一个期望的字节偏移量。
func (b *SnapshotBuilder) Offset() int64 { return b.offset }

// Holds 判断 [offset, offset+size) 是否是当前传输中已经收到的最后一段字节。
// 最后一块已写入但快照还没安装时（例如安装失败或节点重启），重传的最后一块据此完成安装。
func (b *SnapshotBuilder) Holds(term, index, offset, size int64) bool {
	return term == b.term && index == b.index && len(b.buffer) > 0 && offset+size == b.offset
}

// IsStale 判断 (term, index) 是否不比当前跟踪的传输更新。
func (b *SnapshotBuilder) IsStale(term, index int64) bool {
	return !param.NewerPosition(term, index, b.term, b.index)
}

// AppendChunk 接收一个分块，返回是否被接受以及下一个期望的偏移量。
// 更新的 (lastTerm, lastIndex) 会重置缓冲区；更旧的传输、重复分块和有空洞的分块都被丢弃。
func (b *SnapshotBuilder) AppendChunk(data []byte, offset, lastIndex, lastTerm int64) (bool, int64, error) {
	if param.NewerPosition(lastTerm, lastIndex, b.term, b.index) {
		log.Printf("[Snapshot] new incoming snapshot (term %d, index %d) supersedes (term %d, index %d)",
			lastTerm, lastIndex, b.term, b.index)
		b.term, b.index = lastTerm, lastIndex
		b.offset = 0
		b.buffer = nil
	} else if lastTerm != b.term || lastIndex != b.index {
		return false, b.offset, nil
	}

	if offset != b.offset {
		// offset 小于期望值是重复分块，大于期望值说明中间有分块丢失。
		return false, b.offset, nil
	}

	b.buffer = append(b.buffer, data...)
	b.offset += int64(len(data))
	if err := b.persist(); err != nil {
		return false, b.offset, err
	}
	return true, b.offset, nil
}

// Build 把已接收的字节解码为快照并清空传输状态：缓冲区清空，偏移量回到 0。
// 跟踪的 (term, index) 保留，更旧的传输仍然是过期的；同一快照可以从头重新接收。
func (b *SnapshotBuilder) Build() (*param.Snapshot, error) {
	if len(b.buffer) == 0 {
		return nil, fmt.Errorf("%w: no snapshot data received", ErrInvalidState)
	}
	snap := &param.Snapshot{}
	if err := snap.UnmarshalBinary(b.buffer); err != nil {
		return nil, fmt.Errorf("failed to decode incoming snapshot: %w", err)
	}
	b.buffer = nil
	b.offset = 0
	if err := b.persist(); err != nil {
		return nil, err
	}
	return snap, nil
}

// Abandon 放弃正在跟踪的传输，之后任何快照位置都会开始一次新的传输。
func (b *SnapshotBuilder) Abandon() error {
	log.Printf("[Snapshot] abandoning incoming snapshot (term %d, index %d) at offset %d", b.term, b.index, b.offset)
	b.term, b.index = param.NoEntry.Term, param.NoEntry.Index
	b.offset = 0
	b.buffer = nil
	return b.persist()
}

func (b *SnapshotBuilder) persist() error {
	values := map[string][]byte{
		builderTermKey:   []byte(strconv.FormatInt(b.term, 10)),
		builderIndexKey:  []byte(strconv.FormatInt(b.index, 10)),
		builderOffsetKey: []byte(strconv.FormatInt(b.offset, 10)),
		builderBufferKey: b.buffer,
	}
	for key, v := range values {
		if err := b.store.Set(incomingSnapshotCollection, key, v); err != nil {
			return err
		}
	}
	return b.store.Flush()
}
