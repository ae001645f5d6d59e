package server

import (
	"context"
	"net"
	"strconv"
	"sync"
	"time"

	"mux-rpc/middleware"
	"mux-rpc/registry"
)

// Server couples an Engine with a middleware chain and, optionally, a
// ServiceMux and a registry.
type Server struct {
	opts        Options
	handler     middleware.HandlerFunc
	mux         *ServiceMux
	middlewares []middleware.Middleware

	mu         sync.Mutex
	engine     *Engine
	advertised string
	closed     bool
}

// NewServer creates a server answering every request with handler. A nil
// handler serves the services added with Register instead.
func NewServer(handler middleware.HandlerFunc, opts Options) *Server {
	s := &Server{opts: opts.withDefaults(), handler: handler}
	if handler == nil {
		s.mux = NewServiceMux()
		s.handler = s.mux.Handle
	}
	return s
}

// Register adds a typed service; see ServiceMux.Register. It is only
// available on servers created with a nil handler.
func (s *Server) Register(rcvr any) error {
	if s.mux == nil {
		return ErrRawHandler
	}
	return s.mux.Register(rcvr)
}

// Use appends middlewares. They apply to servers opened afterwards, first one outermost.
func (s *Server) Use(mws ...middleware.Middleware) {
	s.middlewares = append(s.middlewares, mws...)
}

// Open binds host:port, starts serving and advertises the server's
// services. The bound host and port are returned.
func (s *Server) Open(host string, port int) (string, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.engine != nil {
		return "", 0, ErrAlreadyBound
	}

	engine := NewEngine(middleware.Chain(s.middlewares...)(s.handler), s.opts)
	boundHost, boundPort, err := engine.Bind(host, port)
	if err != nil {
		engine.Close()
		return "", 0, err
	}
	engine.Start()
	s.engine = engine

	if s.opts.Registry != nil {
		s.advertised = s.advertiseAddr(boundHost, boundPort)
		if err := s.advertise(); err != nil {
			s.withdraw()
			engine.Close()
			s.engine = nil
			return "", 0, err
		}
	}
	return boundHost, boundPort, nil
}

// Addr returns the bound host:port, or "" before Open.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.engine == nil {
		return ""
	}
	return s.engine.Addr()
}

// Close withdraws the server from the registry first, so clients stop
// picking it, then stops the engine.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.engine == nil || s.closed {
		return nil
	}
	s.closed = true
	if s.opts.Registry != nil {
		s.withdraw()
	}
	return s.engine.Close()
}

// Stats returns the engine's counters; zero before Open.
func (s *Server) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.engine == nil {
		return Stats{}
	}
	return s.engine.Stats()
}

func (s *Server) serviceNames() []string {
	if len(s.opts.ServiceNames) > 0 || s.mux == nil {
		return s.opts.ServiceNames
	}
	return s.mux.Services()
}

// advertiseAddr picks the address clients should dial. A wildcard bind is
// not dialable, so loopback stands in unless AdvertiseAddr says otherwise.
func (s *Server) advertiseAddr(host string, port int) string {
	if s.opts.AdvertiseAddr != "" {
		return s.opts.AdvertiseAddr
	}
	if ip := net.ParseIP(host); ip != nil && ip.IsUnspecified() {
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}

func (s *Server) advertise() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	instance := registry.ServiceInstance{Addr: s.advertised, Weight: s.opts.Weight}
	for _, name := range s.serviceNames() {
		if err := s.opts.Registry.Register(ctx, name, instance, DefaultRegistryTTL); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) withdraw() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, name := range s.serviceNames() {
		if err := s.opts.Registry.Deregister(ctx, name, s.advertised); err != nil {
			s.opts.Logger.Warnf("failed to deregister %s: %v", name, err)
		}
	}
}
