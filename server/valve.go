package server

import (
	"sync/atomic"

	"github.com/juju/ratelimit"
)

// Valve accounts the bytes an engine moves. rx is client to server, tx is
// server to client. Only tx can be throttled: rx is counted on the
// readiness loop, which must never block.
type Valve struct {
	txtb *ratelimit.Bucket // nil when unlimited

	rx atomic.Int64
	tx atomic.Int64
}

// NewValve creates a valve limiting tx to txRate bytes per second, or not at all when txRate <= 0.
func NewValve(txRate int64) *Valve {
	v := &Valve{}
	if txRate > 0 {
		v.txtb = ratelimit.NewBucketWithRate(float64(txRate), txRate)
	}
	return v
}

func (v *Valve) AddRx(n int) { v.rx.Add(int64(n)) }
func (v *Valve) AddTx(n int) { v.tx.Add(int64(n)) }
func (v *Valve) Rx() int64   { return v.rx.Load() }
func (v *Valve) Tx() int64   { return v.tx.Load() }

// txWait blocks until n bytes may be sent.
func (v *Valve) txWait(n int) {
	if v.txtb == nil {
		return
	}
	v.txtb.Wait(int64(n))
}
