package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mux-rpc/message"
)

func TestEnvelope(t *testing.T) {
	msg := &message.RPCMessage{
		ServiceMethod: "Arith.Add",
		Payload:       []byte(`{"A":1,"B":2}`),
		Error:         "overflow",
	}

	for _, c := range []Codec{JSONCodec{}, BinaryCodec{}} {
		t.Run(c.Type().String(), func(t *testing.T) {
			data, err := Marshal(c, msg)
			require.NoError(t, err)
			assert.Equal(t, byte(c.Type()), data[0])

			got, used, err := Unmarshal(data)
			require.NoError(t, err)
			assert.Equal(t, c.Type(), used.Type())
			assert.Equal(t, msg, got)
		})
	}
}

func TestGetCodec(t *testing.T) {
	assert.Equal(t, CodecTypeBinary, GetCodec(CodecTypeBinary).Type())
	assert.Equal(t, CodecTypeJSON, GetCodec(CodecTypeJSON).Type())
	assert.Nil(t, GetCodec(CodecType(7)))

	msg := &message.RPCMessage{ServiceMethod: "Echo.Say", Payload: []byte{0, 1, 2}}
	data, err := Marshal(GetCodec(CodecTypeBinary), msg)
	require.NoError(t, err)
	got, used, err := Unmarshal(data)
	require.NoError(t, err)
	assert.IsType(t, BinaryCodec{}, used)
	assert.Equal(t, msg, got)
}

func TestUnmarshalRejects(t *testing.T) {
	_, _, err := Unmarshal(nil)
	assert.ErrorIs(t, err, ErrEmptyEnvelope)

	_, _, err = Unmarshal([]byte{7, 1, 2})
	assert.ErrorIs(t, err, ErrUnknownCodec)

	_, _, err = Unmarshal([]byte{byte(CodecTypeJSON), '{'})
	assert.Error(t, err)
}

func TestBinaryLayout(t *testing.T) {
	data, err := BinaryCodec{}.Encode(&message.RPCMessage{ServiceMethod: "A.B", Payload: []byte{9}})
	require.NoError(t, err)
	assert.Equal(t, []byte{3, 0, 'A', '.', 'B', 1, 0, 0, 0, 9, 0, 0}, data)
}

func TestBinaryTruncated(t *testing.T) {
	data, err := BinaryCodec{}.Encode(&message.RPCMessage{ServiceMethod: "Arith.Add", Payload: []byte("xyz")})
	require.NoError(t, err)

	for cut := 0; cut < len(data); cut++ {
		var msg message.RPCMessage
		assert.ErrorIs(t, BinaryCodec{}.Decode(data[:cut], &msg), ErrTruncated, "cut at %d", cut)
	}

	var msg message.RPCMessage
	assert.Error(t, BinaryCodec{}.Decode(append(data, 0), &msg))
}
