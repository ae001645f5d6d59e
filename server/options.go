package server

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"mux-rpc/registry"
)

const (
	DefaultReadBufferSize = 64 << 10
	DefaultDrainTimeout   = 5 * time.Second
	DefaultRegistryTTL    = 10 // seconds
)

// Options configures an Engine and the Server built on it. The zero value is usable.
type Options struct {
	// MaxPayloadSize closes connections announcing a larger request. 0 disables the check.
	MaxPayloadSize uint64

	// MaxWorkers bounds the number of handler goroutines. 0 runs every
	// request on its own goroutine.
	MaxWorkers int

	// ReadBufferSize caps a single receive call. Defaults to DefaultReadBufferSize.
	ReadBufferSize int

	// TxRate limits response bytes per second across the engine. 0 is unlimited.
	TxRate int64

	// DrainTimeout bounds how long Close waits for in-flight requests.
	DrainTimeout time.Duration

	// Registry, when set, advertises ServiceNames at AdvertiseAddr while the server is open.
	Registry      registry.Registry
	ServiceNames  []string
	AdvertiseAddr string
	Weight        int

	Logger logrus.FieldLogger
}

func (o Options) withDefaults() Options {
	if o.ReadBufferSize <= 0 {
		o.ReadBufferSize = DefaultReadBufferSize
	}
	if o.DrainTimeout <= 0 {
		o.DrainTimeout = DefaultDrainTimeout
	}
	if o.MaxWorkers < 0 {
		o.MaxWorkers = 0
	}
	if o.Logger == nil {
		o.Logger = logrus.StandardLogger()
	}
	return o
}

// Config is the JSON form of a server's settings, as read by muxrpc-server.
type Config struct {
	Host           string
	Port           int
	AdminAddr      string
	MaxPayloadSize uint64
	MaxWorkers     int
	TxRate         int64
	DrainTimeout   string
	EtcdEndpoints  []string
	ServiceNames   []string
	AdvertiseAddr  string
	Weight         int
}

// ParseConfig reads a Config from a JSON file, or from conf itself when it
// holds an inline JSON object.
func ParseConfig(conf string) (*Config, error) {
	var content []byte
	if strings.HasPrefix(strings.TrimSpace(conf), "{") {
		content = []byte(conf)
	} else {
		var err error
		content, err = os.ReadFile(conf)
		if err != nil {
			return nil, err
		}
	}

	raw := new(Config)
	if err := json.Unmarshal(content, raw); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return raw, nil
}

// Options converts the config into engine options. Registry and Logger are left for the caller.
func (c *Config) Options() (Options, error) {
	opts := Options{
		MaxPayloadSize: c.MaxPayloadSize,
		MaxWorkers:     c.MaxWorkers,
		TxRate:         c.TxRate,
		ServiceNames:   c.ServiceNames,
		AdvertiseAddr:  c.AdvertiseAddr,
		Weight:         c.Weight,
	}
	if c.DrainTimeout != "" {
		d, err := time.ParseDuration(c.DrainTimeout)
		if err != nil {
			return opts, fmt.Errorf("invalid DrainTimeout: %w", err)
		}
		opts.DrainTimeout = d
	}
	return opts, nil
}
