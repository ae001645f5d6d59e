package codec

import (
	"encoding/json"

	"mux-rpc/message"
)

// JSONCodec is readable on the wire and easy to produce from other
// languages, at the cost of size and speed.
type JSONCodec struct{}

func (JSONCodec) Encode(msg *message.RPCMessage) ([]byte, error) { return json.Marshal(msg) }

func (JSONCodec) Decode(data []byte, msg *message.RPCMessage) error {
	return json.Unmarshal(data, msg)
}

func (JSONCodec) Type() CodecType { return CodecTypeJSON }
