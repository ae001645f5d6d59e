// Package registry advertises which addresses serve which services.
//
// Servers Register themselves under each service name they handle and
// Deregister before shutting down; clients Discover the current instance
// list, or Watch it for changes.
package registry

import (
	"context"
	"errors"
)

var ErrNoInstances = errors.New("no instances registered")

type ServiceInstance struct {
	Addr    string `json:"addr"`
	Weight  int    `json:"weight,omitempty"` // relative share for weighted balancing
	Version string `json:"version,omitempty"`
}

type Registry interface {
	// Register advertises instance until Deregister is called or, for
	// leased backends, until ttl seconds pass without renewal.
	Register(ctx context.Context, serviceName string, instance ServiceInstance, ttl int64) error
	Deregister(ctx context.Context, serviceName string, addr string) error
	Discover(ctx context.Context, serviceName string) ([]ServiceInstance, error)
	// Watch emits the full instance list after every change, until ctx is done.
	Watch(ctx context.Context, serviceName string) <-chan []ServiceInstance
}
