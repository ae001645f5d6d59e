package server

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPoolDispatcherDrains(t *testing.T) {
	d := NewPoolDispatcher(3)

	var ran atomic.Int32
	for i := 0; i < 100; i++ {
		d.Submit(func() {
			time.Sleep(time.Millisecond)
			ran.Add(1)
		})
	}
	d.Close()
	assert.Equal(t, int32(100), ran.Load())
	assert.Zero(t, d.Backlog())
}

func TestPoolDispatcherSubmitNeverBlocks(t *testing.T) {
	d := NewPoolDispatcher(1)
	release := make(chan struct{})
	d.Submit(func() { <-release })

	start := time.Now()
	for i := 0; i < 1000; i++ {
		d.Submit(func() {})
	}
	assert.Less(t, time.Since(start), time.Second)
	assert.Greater(t, d.Backlog(), 0)

	close(release)
	d.Close()
}

func TestPoolDispatcherBoundsConcurrency(t *testing.T) {
	d := NewPoolDispatcher(2)
	var running, peak atomic.Int32
	for i := 0; i < 20; i++ {
		d.Submit(func() {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			running.Add(-1)
		})
	}
	d.Close()
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestPoolDispatcherRunsInlineAfterClose(t *testing.T) {
	d := NewPoolDispatcher(1)
	d.Close()
	ran := false
	d.Submit(func() { ran = true })
	assert.True(t, ran)
}

func TestGoDispatcher(t *testing.T) {
	d := &GoDispatcher{}
	var wg sync.WaitGroup
	var ran atomic.Int32
	wg.Add(10)
	for i := 0; i < 10; i++ {
		d.Submit(func() {
			defer wg.Done()
			ran.Add(1)
		})
	}
	wg.Wait()
	d.Close()
	assert.Equal(t, int32(10), ran.Load())
}
