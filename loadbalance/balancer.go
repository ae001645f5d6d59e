// Package loadbalance chooses which discovered instance serves a call.
//
//   - RoundRobin:     equal-capacity instances, stateless services
//   - WeightedRandom: instances of different capacity, by ServiceInstance.Weight
//   - ConsistentHash: the same key keeps landing on the same instance
package loadbalance

import (
	"errors"

	"mux-rpc/registry"
)

var ErrNoInstances = registry.ErrNoInstances

// Balancer picks one of instances for a call. key identifies the call for
// strategies with affinity; the others ignore it. Implementations are safe
// for concurrent use.
type Balancer interface {
	Pick(key string, instances []registry.ServiceInstance) (registry.ServiceInstance, error)
	Name() string
}

// New returns the balancer called name: "roundrobin" (also the default for ""),
// "weighted" or "hash".
func New(name string) (Balancer, error) {
	switch name {
	case "", "roundrobin":
		return &RoundRobinBalancer{}, nil
	case "weighted":
		return &WeightedRandomBalancer{}, nil
	case "hash":
		return NewConsistentHashBalancer(), nil
	}
	return nil, errors.New("unknown balancer " + name)
}
