package grpc

import (
	"encoding"
	"fmt"

	grpcencoding "google.golang.org/grpc/encoding"
)

// codecName 是消息编解码器的 content-subtype。
const codecName = "raftwire"

func init() {
	grpcencoding.RegisterCodec(codec{})
}

// codec 把实现了 encoding.BinaryMarshaler 的 param 类型直接作为 gRPC 消息体。
type codec struct{}

func (codec) Marshal(v any) ([]byte, error) {
	m, ok := v.(encoding.BinaryMarshaler)
	if !ok {
		return nil, fmt.Errorf("%s: cannot marshal %T", codecName, v)
	}
	return m.MarshalBinary()
}

func (codec) Unmarshal(data []byte, v any) error {
	u, ok := v.(encoding.BinaryUnmarshaler)
	if !ok {
		return fmt.Errorf("%s: cannot unmarshal into %T", codecName, v)
	}
	return u.UnmarshalBinary(data)
}

func (codec) Name() string { return codecName }

// empty 是 Deliver 的空回复。
type empty struct{}

func (*empty) MarshalBinary() ([]byte, error) { return nil, nil }

func (*empty) UnmarshalBinary([]byte) error { return nil }
