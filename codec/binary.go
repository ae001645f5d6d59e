package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"mux-rpc/message"
)

// BinaryCodec lays a message out as length-prefixed fields, little-endian
// like the frame header:
//
//	u16 len | ServiceMethod | u32 len | Payload | u16 len | Error
type BinaryCodec struct{}

var ErrTruncated = errors.New("truncated binary message")

func (BinaryCodec) Type() CodecType { return CodecTypeBinary }

func (BinaryCodec) Encode(msg *message.RPCMessage) ([]byte, error) {
	if len(msg.ServiceMethod) > math.MaxUint16 || len(msg.Error) > math.MaxUint16 {
		return nil, errors.New("service method or error too long for binary codec")
	}
	if uint64(len(msg.Payload)) > math.MaxUint32 {
		return nil, fmt.Errorf("payload of %d bytes too long for binary codec", len(msg.Payload))
	}

	buf := make([]byte, 0, 2+len(msg.ServiceMethod)+4+len(msg.Payload)+2+len(msg.Error))
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(msg.ServiceMethod)))
	buf = append(buf, msg.ServiceMethod...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(msg.Payload)))
	buf = append(buf, msg.Payload...)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(msg.Error)))
	buf = append(buf, msg.Error...)
	return buf, nil
}

func (BinaryCodec) Decode(data []byte, msg *message.RPCMessage) error {
	r := reader{data: data}
	method := r.next(int(r.u16()))
	payload := r.next(int(r.u32()))
	errText := r.next(int(r.u16()))
	if r.short {
		return ErrTruncated
	}
	if len(r.data) != 0 {
		return fmt.Errorf("%d trailing bytes after binary message", len(r.data))
	}

	msg.ServiceMethod = string(method)
	msg.Payload = append([]byte(nil), payload...)
	msg.Error = string(errText)
	return nil
}

// reader consumes data front to back, remembering whether it ever ran out.
type reader struct {
	data  []byte
	short bool
}

func (r *reader) next(n int) []byte {
	if r.short || n > len(r.data) {
		r.short = true
		return nil
	}
	b := r.data[:n]
	r.data = r.data[n:]
	return b
}

func (r *reader) u16() uint16 {
	b := r.next(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (r *reader) u32() uint32 {
	b := r.next(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}
