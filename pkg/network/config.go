package network

import (
	"fmt"
	"time"

	"github.com/ZentaChain/chuck/pkg/protocol"
)

// Timeout defaults
const (
	DefaultReadTimeout   = 30 * time.Second
	DefaultWriteTimeout  = 10 * time.Second
	DefaultDialTimeout   = 10 * time.Second
	DefaultAcceptBackoff = 100 * time.Millisecond
)

// ServerConfig controls a dispatch server. Zero fields take defaults.
type ServerConfig struct {
	Addr          string
	MaxFrameSize  int
	ReadTimeout   time.Duration // per frame; negative disables
	WriteTimeout  time.Duration // per status write; negative disables
	AcceptBackoff time.Duration
	Framing       protocol.Framing
}

// DefaultServerConfig listens on all interfaces at the default service port
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:          fmt.Sprintf("0.0.0.0:%d", protocol.DefaultServicePort),
		MaxFrameSize:  protocol.MaxFrameSize,
		ReadTimeout:   DefaultReadTimeout,
		WriteTimeout:  DefaultWriteTimeout,
		AcceptBackoff: DefaultAcceptBackoff,
		Framing:       protocol.FramingLengthPrefixed,
	}
}

func (c ServerConfig) withDefaults() ServerConfig {
	d := DefaultServerConfig()
	if c.Addr == "" {
		c.Addr = d.Addr
	}
	if c.MaxFrameSize <= 0 || c.MaxFrameSize > protocol.MaxFrameSize {
		c.MaxFrameSize = d.MaxFrameSize
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = d.ReadTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.AcceptBackoff <= 0 {
		c.AcceptBackoff = d.AcceptBackoff
	}
	return c
}

// ClientConfig controls a dispatch client. Zero fields take defaults.
type ClientConfig struct {
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Framing      protocol.Framing
}

func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		DialTimeout:  DefaultDialTimeout,
		ReadTimeout:  DefaultReadTimeout,
		WriteTimeout: DefaultWriteTimeout,
		Framing:      protocol.FramingLengthPrefixed,
	}
}

func (c ClientConfig) withDefaults() ClientConfig {
	d := DefaultClientConfig()
	if c.DialTimeout <= 0 {
		c.DialTimeout = d.DialTimeout
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = d.ReadTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	return c
}

// aLongTimeAgo is a deadline that has always already passed
var aLongTimeAgo = time.Unix(1, 0)

// deadline converts a timeout to an absolute deadline; non-positive means none
func deadline(timeout time.Duration) time.Time {
	if timeout <= 0 {
		return time.Time{}
	}
	return time.Now().Add(timeout)
}
