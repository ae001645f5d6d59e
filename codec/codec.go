// Package codec serializes message.RPCMessage envelopes.
//
// An envelope on the wire is one codec byte followed by the codec's
// encoding of the message, so the receiver can decode without prior
// agreement:
//
//	+-------+-----------------------------+
//	| codec |  encoded RPCMessage         |
//	+-------+-----------------------------+
//	 1 byte
package codec

import (
	"errors"
	"fmt"

	"mux-rpc/message"
)

type CodecType byte

const (
	CodecTypeJSON   CodecType = 0
	CodecTypeBinary CodecType = 1
)

func (t CodecType) String() string {
	switch t {
	case CodecTypeJSON:
		return "json"
	case CodecTypeBinary:
		return "binary"
	}
	return fmt.Sprintf("CodecType(%d)", byte(t))
}

var (
	ErrUnknownCodec  = errors.New("unknown codec")
	ErrEmptyEnvelope = errors.New("empty envelope")
)

type Codec interface {
	Encode(msg *message.RPCMessage) ([]byte, error)
	Decode(data []byte, msg *message.RPCMessage) error
	Type() CodecType
}

// GetCodec returns the codec for t, or nil if there is none.
func GetCodec(t CodecType) Codec {
	switch t {
	case CodecTypeJSON:
		return JSONCodec{}
	case CodecTypeBinary:
		return BinaryCodec{}
	}
	return nil
}

// Marshal encodes msg as an envelope using c.
func Marshal(c Codec, msg *message.RPCMessage) ([]byte, error) {
	body, err := c.Encode(msg)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 1+len(body))
	out[0] = byte(c.Type())
	copy(out[1:], body)
	return out, nil
}

// Unmarshal decodes an envelope and reports which codec it used, so a
// reply can be encoded the same way.
func Unmarshal(data []byte) (*message.RPCMessage, Codec, error) {
	if len(data) == 0 {
		return nil, nil, ErrEmptyEnvelope
	}
	c := GetCodec(CodecType(data[0]))
	if c == nil {
		return nil, nil, fmt.Errorf("%w: %d", ErrUnknownCodec, data[0])
	}
	msg := new(message.RPCMessage)
	if err := c.Decode(data[1:], msg); err != nil {
		return nil, c, fmt.Errorf("%v envelope: %w", c.Type(), err)
	}
	return msg, c, nil
}
