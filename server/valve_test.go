package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestValveCounts(t *testing.T) {
	v := NewValve(0)
	v.AddRx(10)
	v.AddRx(5)
	v.AddTx(7)
	assert.Equal(t, int64(15), v.Rx())
	assert.Equal(t, int64(7), v.Tx())

	start := time.Now()
	v.txWait(1 << 30)
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestValveLimitsTx(t *testing.T) {
	// bucket starts full with one second's worth
	v := NewValve(1000)
	v.txWait(1000)

	start := time.Now()
	v.txWait(100)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}
