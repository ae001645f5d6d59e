// Package client is the caller-facing side of mux-rpc. A Client tracks the
// sessions it opened and offers two ways to use them:
//
//   - Send: raw payloads, spread round-robin over the tracked sessions.
//   - Call: typed "Service.Method" calls, routed through the registry and
//     balancer to one session per discovered address.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"mux-rpc/codec"
	"mux-rpc/loadbalance"
	"mux-rpc/message"
	"mux-rpc/registry"
	"mux-rpc/transport"
)

var (
	ErrNoSessions = errors.New("no open sessions")
	ErrClosed     = errors.New("client closed")
)

// Options configures a Client. The zero value is usable for Connect and Send.
type Options struct {
	// Session is applied to every session the client opens.
	Session transport.Options

	// Registry is consulted by Call. Without one, Call goes through Send.
	Registry registry.Registry
	// Balancer picks among discovered instances. Defaults to round robin.
	Balancer loadbalance.Balancer
	// Codec encodes Call envelopes.
	Codec codec.CodecType

	Logger logrus.FieldLogger
}

type Client struct {
	opts  Options
	codec codec.Codec
	log   logrus.FieldLogger

	mu       sync.Mutex
	sessions []*transport.Session
	byAddr   map[string]*transport.Session
	closed   bool

	next atomic.Uint64
}

func New(opts Options) (*Client, error) {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.Session.Logger == nil {
		opts.Session.Logger = opts.Logger
	}
	if opts.Balancer == nil {
		opts.Balancer = &loadbalance.RoundRobinBalancer{}
	}
	c := codec.GetCodec(opts.Codec)
	if c == nil {
		return nil, fmt.Errorf("%w: %d", codec.ErrUnknownCodec, opts.Codec)
	}
	return &Client{
		opts:   opts,
		codec:  c,
		log:    opts.Logger,
		byAddr: make(map[string]*transport.Session),
	}, nil
}

// Connect opens a session to addr and tracks it until it closes.
func (c *Client) Connect(ctx context.Context, addr string) (*transport.Session, error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	opts := c.opts.Session
	onClose := opts.OnClose
	opts.OnClose = func(s *transport.Session) {
		c.remove(s)
		if onClose != nil {
			onClose(s)
		}
	}
	sesh, err := transport.Open(ctx, addr, opts)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		sesh.Close()
		return nil, ErrClosed
	}
	c.sessions = append(c.sessions, sesh)
	if _, ok := c.byAddr[addr]; !ok {
		c.byAddr[addr] = sesh
	}
	c.mu.Unlock()
	return sesh, nil
}

func (c *Client) remove(s *transport.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, sesh := range c.sessions {
		if sesh == s {
			c.sessions = append(c.sessions[:i], c.sessions[i+1:]...)
			break
		}
	}
	for addr, sesh := range c.byAddr {
		if sesh == s {
			delete(c.byAddr, addr)
		}
	}
}

// Sessions returns the currently tracked sessions.
func (c *Client) Sessions() []*transport.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*transport.Session(nil), c.sessions...)
}

// Send sends payload on the next tracked session in round-robin order.
func (c *Client) Send(ctx context.Context, payload []byte) ([]byte, error) {
	c.mu.Lock()
	if len(c.sessions) == 0 {
		c.mu.Unlock()
		return nil, ErrNoSessions
	}
	sesh := c.sessions[c.next.Add(1)%uint64(len(c.sessions))]
	c.mu.Unlock()
	return sesh.Send(ctx, payload)
}

// Call invokes serviceMethod ("Service.Method") with args and decodes the
// result into reply. args and reply travel as JSON inside the envelope.
func (c *Client) Call(ctx context.Context, serviceMethod string, args any, reply any) error {
	serviceName, _, ok := strings.Cut(serviceMethod, ".")
	if !ok {
		return fmt.Errorf("invalid service method %q", serviceMethod)
	}
	payload, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode args: %w", err)
	}
	req, err := codec.Marshal(c.codec, &message.RPCMessage{ServiceMethod: serviceMethod, Payload: payload})
	if err != nil {
		return err
	}

	var resp []byte
	if c.opts.Registry == nil {
		resp, err = c.Send(ctx, req)
	} else {
		var sesh *transport.Session
		sesh, err = c.sessionFor(ctx, serviceName, serviceMethod)
		if err != nil {
			return err
		}
		resp, err = sesh.Send(ctx, req)
	}
	if err != nil {
		return err
	}

	msg, _, err := codec.Unmarshal(resp)
	if err != nil {
		return err
	}
	if err := msg.Err(); err != nil {
		return err
	}
	if reply == nil {
		return nil
	}
	return json.Unmarshal(msg.Payload, reply)
}

// sessionFor discovers serviceName's instances, picks one and returns the
// session to its address, opening it on first use.
func (c *Client) sessionFor(ctx context.Context, serviceName, key string) (*transport.Session, error) {
	instances, err := c.opts.Registry.Discover(ctx, serviceName)
	if err != nil {
		return nil, err
	}
	instance, err := c.opts.Balancer.Pick(key, instances)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", serviceName, err)
	}

	c.mu.Lock()
	sesh, ok := c.byAddr[instance.Addr]
	c.mu.Unlock()
	if ok && sesh.State() == transport.StateOpen {
		return sesh, nil
	}
	c.log.Debugf("opening session to %s for %s", instance.Addr, serviceName)
	return c.Connect(ctx, instance.Addr)
}

// Close closes every tracked session. The client cannot be used afterwards.
func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	sessions := append([]*transport.Session(nil), c.sessions...)
	c.mu.Unlock()

	var errs []error
	for _, sesh := range sessions {
		if err := sesh.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
