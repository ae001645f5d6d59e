package main

import (
	"bytes"
	"context"
	"flag"
	"math/rand"
	"sort"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"mux-rpc/client"
	"mux-rpc/transport"
)

func main() {
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp: true,
	})

	addr := flag.String("addr", "127.0.0.1:9000", "server ip:port")
	sessions := flag.Int("sessions", 4, "connections to open")
	concurrency := flag.Int("concurrency", 64, "callers sending at once")
	requests := flag.Int("n", 10000, "total requests")
	size := flag.Int("size", 1024, "payload bytes per request")
	timeout := flag.Duration("timeout", 10*time.Second, "per-request timeout")
	verbosity := flag.String("verbosity", "info", "verbosity level")
	flag.Parse()

	lvl, err := log.ParseLevel(*verbosity)
	if err != nil {
		log.Fatal(err)
	}
	log.SetLevel(lvl)

	cli, err := client.New(client.Options{
		Session: transport.Options{Timeout: *timeout},
		Logger:  log.StandardLogger(),
	})
	if err != nil {
		log.Fatal(err)
	}
	defer cli.Close()

	ctx := context.Background()
	for i := 0; i < *sessions; i++ {
		if _, err := cli.Connect(ctx, *addr); err != nil {
			log.Fatal(err)
		}
	}

	payload := make([]byte, *size)
	rand.Read(payload)

	var (
		mu        sync.Mutex
		latencies = make([]time.Duration, 0, *requests)
		failures  int
		wg        sync.WaitGroup
	)
	jobs := make(chan struct{}, *requests)
	for i := 0; i < *requests; i++ {
		jobs <- struct{}{}
	}
	close(jobs)

	start := time.Now()
	for w := 0; w < *concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range jobs {
				t0 := time.Now()
				resp, err := cli.Send(ctx, payload)
				elapsed := time.Since(t0)

				mu.Lock()
				if err != nil || !bytes.Equal(resp, payload) {
					failures++
					log.Debugf("request failed: %v", err)
				} else {
					latencies = append(latencies, elapsed)
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	total := time.Since(start)

	if len(latencies) == 0 {
		log.Fatalf("all %d requests failed", failures)
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
	pct := func(p float64) time.Duration { return latencies[int(p*float64(len(latencies)-1))] }

	log.WithFields(log.Fields{
		"requests": len(latencies),
		"failures": failures,
		"elapsed":  total,
		"rps":      int(float64(len(latencies)) / total.Seconds()),
		"p50":      pct(0.50),
		"p99":      pct(0.99),
		"max":      latencies[len(latencies)-1],
	}).Info("benchmark finished")
}
