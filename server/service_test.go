package server

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mux-rpc/codec"
	"mux-rpc/message"
)

type Args struct {
	A, B int
}

type Reply struct {
	Result int
}

type Arith struct{}

func (a *Arith) Add(args *Args, reply *Reply) error {
	reply.Result = args.A + args.B
	return nil
}

func (a *Arith) Div(args *Args, reply *Reply) error {
	if args.B == 0 {
		return errors.New("divide by zero")
	}
	reply.Result = args.A / args.B
	return nil
}

func (a *Arith) Deadline(ctx context.Context, _ *Args, reply *Reply) error {
	if _, ok := ctx.Deadline(); ok {
		reply.Result = 1
	}
	return nil
}

// not exported over RPC: wrong shape
func (a *Arith) Helper(x int) int { return x }

func call(t *testing.T, mux *ServiceMux, c codec.Codec, serviceMethod string, args any) *message.RPCMessage {
	t.Helper()
	payload, err := json.Marshal(args)
	require.NoError(t, err)
	req, err := codec.Marshal(c, &message.RPCMessage{ServiceMethod: serviceMethod, Payload: payload})
	require.NoError(t, err)

	resp, err := mux.Handle(context.Background(), req)
	require.NoError(t, err)
	msg, used, err := codec.Unmarshal(resp)
	require.NoError(t, err)
	assert.Equal(t, c.Type(), used.Type())
	return msg
}

func TestServiceMuxCall(t *testing.T) {
	mux := NewServiceMux()
	require.NoError(t, mux.Register(&Arith{}))
	assert.Equal(t, []string{"Arith"}, mux.Services())

	for _, c := range []codec.Codec{codec.JSONCodec{}, codec.BinaryCodec{}} {
		msg := call(t, mux, c, "Arith.Add", &Args{1, 2})
		require.NoError(t, msg.Err())
		var reply Reply
		require.NoError(t, json.Unmarshal(msg.Payload, &reply))
		assert.Equal(t, 3, reply.Result)
	}
}

func TestServiceMuxErrors(t *testing.T) {
	mux := NewServiceMux()
	require.NoError(t, mux.Register(&Arith{}))
	c := codec.JSONCodec{}

	msg := call(t, mux, c, "Arith.Div", &Args{1, 0})
	assert.Equal(t, "divide by zero", msg.Error)

	msg = call(t, mux, c, "Arith", &Args{})
	assert.Contains(t, msg.Error, ErrBadServiceMethod.Error())

	msg = call(t, mux, c, "Geometry.Area", &Args{})
	assert.Contains(t, msg.Error, ErrUnknownService.Error())

	msg = call(t, mux, c, "Arith.Helper", &Args{})
	assert.Contains(t, msg.Error, ErrUnknownMethod.Error())

	msg = call(t, mux, c, "Arith.Add", "not args")
	assert.Contains(t, msg.Error, "decode args")
}

func TestServiceMuxBadEnvelope(t *testing.T) {
	mux := NewServiceMux()
	resp, err := mux.Handle(context.Background(), []byte{42})
	require.NoError(t, err)

	msg, used, err := codec.Unmarshal(resp)
	require.NoError(t, err)
	assert.Equal(t, codec.CodecTypeJSON, used.Type())
	assert.Contains(t, msg.Error, codec.ErrUnknownCodec.Error())
}

func TestServiceMuxContextMethod(t *testing.T) {
	mux := NewServiceMux()
	require.NoError(t, mux.Register(&Arith{}))

	req, err := codec.Marshal(codec.JSONCodec{}, &message.RPCMessage{ServiceMethod: "Arith.Deadline"})
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	resp, err := mux.Handle(ctx, req)
	require.NoError(t, err)

	msg, _, err := codec.Unmarshal(resp)
	require.NoError(t, err)
	assert.JSONEq(t, `{"Result":1}`, string(msg.Payload))
}

func TestServiceMuxRegisterRejects(t *testing.T) {
	mux := NewServiceMux()
	assert.Error(t, mux.Register(Arith{}))
	assert.Error(t, mux.Register(nil))
	require.NoError(t, mux.Register(&Arith{}))
	assert.Error(t, mux.Register(&Arith{}))
}
