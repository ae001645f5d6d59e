package message

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErr(t *testing.T) {
	ok := &RPCMessage{ServiceMethod: "Arith.Add", Payload: []byte(`{"C":3}`)}
	assert.NoError(t, ok.Err())

	failed := Failed("Arith.Div", errors.New("divide by zero"))
	err := failed.Err()
	require.Error(t, err)
	assert.Equal(t, "Arith.Div: divide by zero", err.Error())
	assert.True(t, IsRemote(fmt.Errorf("call: %w", err)))
	assert.False(t, IsRemote(errors.New("connection reset")))
}
