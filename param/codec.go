package param

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// The binary form of every type in this package is the protobuf wire format.
// Field numbers are fixed; new fields must take new numbers so that older
// readers can skip them.

var ErrMalformed = errors.New("malformed encoding")

const (
	fieldEntryTerm  protowire.Number = 1
	fieldEntryIndex protowire.Number = 2
	fieldEntryUID   protowire.Number = 3
	fieldEntryBody  protowire.Number = 4

	fieldIDTerm  protowire.Number = 1
	fieldIDIndex protowire.Number = 2

	fieldSnapTerm  protowire.Number = 1
	fieldSnapIndex protowire.Number = 2
	fieldSnapData  protowire.Number = 3

	fieldHardTerm  protowire.Number = 1
	fieldHardVoted protowire.Number = 2

	fieldCmdUID  protowire.Number = 1
	fieldCmdBody protowire.Number = 2

	fieldReplyAccepted protowire.Number = 1
	fieldReplyLeader   protowire.Number = 2
	fieldReplyIndex    protowire.Number = 3
	fieldReplyTerm     protowire.Number = 4

	fieldMsgOperation       protowire.Number = 1
	fieldMsgSendersTerm     protowire.Number = 2
	fieldMsgSender          protowire.Number = 3
	fieldMsgSendersLastLog  protowire.Number = 4
	fieldMsgOK              protowire.Number = 5
	fieldMsgLastCommitIndex protowire.Number = 6
	fieldMsgExpLastLogEntry protowire.Number = 7
	fieldMsgEntries         protowire.Number = 8
	fieldMsgLastReplIndex   protowire.Number = 9
	fieldMsgData            protowire.Number = 10
	fieldMsgOffset          protowire.Number = 11
	fieldMsgLastTerm        protowire.Number = 12
	fieldMsgLastIndex       protowire.Number = 13
	fieldMsgDone            protowire.Number = 14
	fieldMsgNextOffset      protowire.Number = 15
)

type encoder struct {
	b []byte
}

func (e *encoder) int(num protowire.Number, v int64) {
	e.b = protowire.AppendTag(e.b, num, protowire.VarintType)
	e.b = protowire.AppendVarint(e.b, protowire.EncodeZigZag(v))
}

func (e *encoder) bool(num protowire.Number, v bool) {
	e.b = protowire.AppendTag(e.b, num, protowire.VarintType)
	e.b = protowire.AppendVarint(e.b, protowire.EncodeBool(v))
}

func (e *encoder) bytes(num protowire.Number, v []byte) {
	e.b = protowire.AppendTag(e.b, num, protowire.BytesType)
	e.b = protowire.AppendBytes(e.b, v)
}

func (e *encoder) string(num protowire.Number, v string) {
	e.b = protowire.AppendTag(e.b, num, protowire.BytesType)
	e.b = protowire.AppendString(e.b, v)
}

// field is one decoded (number, value) pair handed to a decode callback.
type field struct {
	num protowire.Number
	typ protowire.Type
	buf []byte
	n   int
}

func (f *field) int() int64 {
	if f.typ != protowire.VarintType {
		return 0
	}
	v, n := protowire.ConsumeVarint(f.buf)
	f.n = n
	return protowire.DecodeZigZag(v)
}

func (f *field) bool() bool {
	if f.typ != protowire.VarintType {
		return false
	}
	v, n := protowire.ConsumeVarint(f.buf)
	f.n = n
	return protowire.DecodeBool(v)
}

// bytes returns a copy so decoded values never alias the input buffer.
func (f *field) bytes() []byte {
	if f.typ != protowire.BytesType {
		return nil
	}
	v, n := protowire.ConsumeBytes(f.buf)
	f.n = n
	if n < 0 || len(v) == 0 {
		return nil
	}
	return append([]byte(nil), v...)
}

func (f *field) string() string {
	if f.typ != protowire.BytesType {
		return ""
	}
	v, n := protowire.ConsumeString(f.buf)
	f.n = n
	return v
}

// decodeFields walks b and hands every field to fn. Fields fn does not consume
// (unknown numbers or unexpected wire types) are skipped.
func decodeFields(b []byte, fn func(f *field) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
		}
		b = b[n:]

		f := &field{num: num, typ: typ, buf: b}
		if err := fn(f); err != nil {
			return err
		}
		if f.n == 0 {
			f.n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if f.n < 0 {
			return fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(f.n))
		}
		b = b[f.n:]
	}
	return nil
}

// --- LogEntry ---

func (e LogEntry) appendTo(enc *encoder) {
	enc.int(fieldEntryTerm, e.Term)
	enc.int(fieldEntryIndex, e.Index)
	enc.string(fieldEntryUID, e.UID)
	enc.bytes(fieldEntryBody, e.Body)
}

// MarshalBinary encodes the entry in its fixed-field wire form.
func (e LogEntry) MarshalBinary() ([]byte, error) {
	enc := &encoder{}
	e.appendTo(enc)
	return enc.b, nil
}

// UnmarshalBinary decodes an entry produced by MarshalBinary.
func (e *LogEntry) UnmarshalBinary(data []byte) error {
	*e = LogEntry{}
	return decodeFields(data, func(f *field) error {
		switch f.num {
		case fieldEntryTerm:
			e.Term = f.int()
		case fieldEntryIndex:
			e.Index = f.int()
		case fieldEntryUID:
			e.UID = f.string()
		case fieldEntryBody:
			e.Body = f.bytes()
		}
		return nil
	})
}

// --- EntryID ---

func (id EntryID) marshal() []byte {
	enc := &encoder{}
	enc.int(fieldIDTerm, id.Term)
	enc.int(fieldIDIndex, id.Index)
	return enc.b
}

func (id *EntryID) unmarshal(data []byte) error {
	*id = EntryID{}
	return decodeFields(data, func(f *field) error {
		switch f.num {
		case fieldIDTerm:
			id.Term = f.int()
		case fieldIDIndex:
			id.Index = f.int()
		}
		return nil
	})
}

// --- Snapshot ---

// MarshalBinary encodes the snapshot, metadata included, as one blob. This is
// the byte stream split into install_snapshot chunks.
func (s *Snapshot) MarshalBinary() ([]byte, error) {
	enc := &encoder{}
	enc.int(fieldSnapTerm, s.LastIncludedTerm)
	enc.int(fieldSnapIndex, s.LastIncludedIndex)
	enc.bytes(fieldSnapData, s.Data)
	return enc.b, nil
}

// UnmarshalBinary decodes a snapshot produced by MarshalBinary.
func (s *Snapshot) UnmarshalBinary(data []byte) error {
	*s = Snapshot{}
	return decodeFields(data, func(f *field) error {
		switch f.num {
		case fieldSnapTerm:
			s.LastIncludedTerm = f.int()
		case fieldSnapIndex:
			s.LastIncludedIndex = f.int()
		case fieldSnapData:
			s.Data = f.bytes()
		}
		return nil
	})
}

// --- HardState ---

func (h HardState) MarshalBinary() ([]byte, error) {
	enc := &encoder{}
	enc.int(fieldHardTerm, h.CurrentTerm)
	enc.string(fieldHardVoted, h.VotedFor)
	return enc.b, nil
}

func (h *HardState) UnmarshalBinary(data []byte) error {
	*h = HardState{}
	return decodeFields(data, func(f *field) error {
		switch f.num {
		case fieldHardTerm:
			h.CurrentTerm = f.int()
		case fieldHardVoted:
			h.VotedFor = f.string()
		}
		return nil
	})
}

// --- Command / SubmitReply ---

func (c *Command) MarshalBinary() ([]byte, error) {
	enc := &encoder{}
	enc.string(fieldCmdUID, c.UID)
	enc.bytes(fieldCmdBody, c.Body)
	return enc.b, nil
}

func (c *Command) UnmarshalBinary(data []byte) error {
	*c = Command{}
	return decodeFields(data, func(f *field) error {
		switch f.num {
		case fieldCmdUID:
			c.UID = f.string()
		case fieldCmdBody:
			c.Body = f.bytes()
		}
		return nil
	})
}

func (r *SubmitReply) MarshalBinary() ([]byte, error) {
	enc := &encoder{}
	enc.bool(fieldReplyAccepted, r.Accepted)
	enc.string(fieldReplyLeader, r.Leader)
	enc.int(fieldReplyIndex, r.Index)
	enc.int(fieldReplyTerm, r.Term)
	return enc.b, nil
}

func (r *SubmitReply) UnmarshalBinary(data []byte) error {
	*r = SubmitReply{}
	return decodeFields(data, func(f *field) error {
		switch f.num {
		case fieldReplyAccepted:
			r.Accepted = f.bool()
		case fieldReplyLeader:
			r.Leader = f.string()
		case fieldReplyIndex:
			r.Index = f.int()
		case fieldReplyTerm:
			r.Term = f.int()
		}
		return nil
	})
}

// --- Message ---

// MarshalBinary encodes the full flat field set of the message.
func (m *Message) MarshalBinary() ([]byte, error) {
	enc := &encoder{}
	enc.string(fieldMsgOperation, string(m.Operation))
	enc.int(fieldMsgSendersTerm, m.SendersTerm)
	enc.string(fieldMsgSender, m.Sender)
	enc.bytes(fieldMsgSendersLastLog, m.SendersLastLogEntry.marshal())
	enc.bool(fieldMsgOK, m.OK)
	enc.int(fieldMsgLastCommitIndex, m.LastCommitIndex)
	enc.bytes(fieldMsgExpLastLogEntry, m.ExpLastLogEntry.marshal())
	for _, entry := range m.Entries {
		sub := &encoder{}
		entry.appendTo(sub)
		enc.bytes(fieldMsgEntries, sub.b)
	}
	enc.int(fieldMsgLastReplIndex, m.LastReplIndex)
	enc.bytes(fieldMsgData, m.Data)
	enc.int(fieldMsgOffset, m.Offset)
	enc.int(fieldMsgLastTerm, m.LastTerm)
	enc.int(fieldMsgLastIndex, m.LastIndex)
	enc.bool(fieldMsgDone, m.Done)
	enc.int(fieldMsgNextOffset, m.NextOffset)
	return enc.b, nil
}

// UnmarshalBinary decodes a message produced by MarshalBinary.
func (m *Message) UnmarshalBinary(data []byte) error {
	*m = Message{}
	return decodeFields(data, func(f *field) error {
		switch f.num {
		case fieldMsgOperation:
			m.Operation = Operation(f.string())
		case fieldMsgSendersTerm:
			m.SendersTerm = f.int()
		case fieldMsgSender:
			m.Sender = f.string()
		case fieldMsgSendersLastLog:
			return m.SendersLastLogEntry.unmarshal(f.bytes())
		case fieldMsgOK:
			m.OK = f.bool()
		case fieldMsgLastCommitIndex:
			m.LastCommitIndex = f.int()
		case fieldMsgExpLastLogEntry:
			return m.ExpLastLogEntry.unmarshal(f.bytes())
		case fieldMsgEntries:
			var entry LogEntry
			if err := entry.UnmarshalBinary(f.bytes()); err != nil {
				return err
			}
			m.Entries = append(m.Entries, entry)
		case fieldMsgLastReplIndex:
			m.LastReplIndex = f.int()
		case fieldMsgData:
			m.Data = f.bytes()
		case fieldMsgOffset:
			m.Offset = f.int()
		case fieldMsgLastTerm:
			m.LastTerm = f.int()
		case fieldMsgLastIndex:
			m.LastIndex = f.int()
		case fieldMsgDone:
			m.Done = f.bool()
		case fieldMsgNextOffset:
			m.NextOffset = f.int()
		}
		return nil
	})
}
