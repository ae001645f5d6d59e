package loadbalance

import (
	"hash/crc32"
	"sort"
	"strconv"
	"strings"
	"sync"

	"mux-rpc/registry"
)

const DefaultReplicas = 100

// ConsistentHashBalancer maps keys onto a hash ring of instances. Each
// instance owns Replicas virtual nodes so that a handful of instances still
// spread evenly around the ring:
//
//	B ●───────● A
//	 ╱  key ◆──►╲     a key belongs to the first node clockwise
//	C ●───────● A'
//
// The ring is rebuilt only when the instance set changes.
type ConsistentHashBalancer struct {
	Replicas int

	mu    sync.Mutex
	sig   string
	ring  []uint32
	nodes map[uint32]registry.ServiceInstance
}

func NewConsistentHashBalancer() *ConsistentHashBalancer {
	return &ConsistentHashBalancer{Replicas: DefaultReplicas}
}

func (b *ConsistentHashBalancer) Pick(key string, instances []registry.ServiceInstance) (registry.ServiceInstance, error) {
	if len(instances) == 0 {
		return registry.ServiceInstance{}, ErrNoInstances
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.rebuild(instances)

	hash := crc32.ChecksumIEEE([]byte(key))
	idx := sort.Search(len(b.ring), func(i int) bool { return b.ring[i] >= hash })
	if idx == len(b.ring) {
		idx = 0
	}
	return b.nodes[b.ring[idx]], nil
}

func (b *ConsistentHashBalancer) rebuild(instances []registry.ServiceInstance) {
	addrs := make([]string, len(instances))
	for i, inst := range instances {
		addrs[i] = inst.Addr
	}
	sort.Strings(addrs)
	sig := strings.Join(addrs, ",")
	if sig == b.sig && b.nodes != nil {
		return
	}

	replicas := b.Replicas
	if replicas < 1 {
		replicas = DefaultReplicas
	}
	b.sig = sig
	b.ring = b.ring[:0]
	b.nodes = make(map[uint32]registry.ServiceInstance, len(instances)*replicas)
	for _, inst := range instances {
		for i := 0; i < replicas; i++ {
			hash := crc32.ChecksumIEEE([]byte(inst.Addr + "#" + strconv.Itoa(i)))
			b.ring = append(b.ring, hash)
			b.nodes[hash] = inst
		}
	}
	sort.Slice(b.ring, func(i, j int) bool { return b.ring[i] < b.ring[j] })
}

func (b *ConsistentHashBalancer) Name() string { return "ConsistentHash" }
