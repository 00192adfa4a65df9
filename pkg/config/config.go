package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ZentaChain/chuck/pkg/network"
	"github.com/ZentaChain/chuck/pkg/protocol"
	"github.com/ZentaChain/chuck/pkg/transfer"
)

const (
	EnvServiceAddr = "CHUCK_SERVICE_ADDR"
	EnvServicePort = "CHUCK_SERVICE_PORT"
	EnvTargetHost  = "CHUCK_TARGET_HOST"
)

// Defaults that are not control-plane protocol constants
const (
	DefaultTransferPort        = 9990
	DefaultContentProviderPort = 4444
	DefaultContentFetcherPort  = 4454
	DefaultStaticDir           = "/var/lib/netsim"
	DefaultJournalRetention    = 7 * 24 * time.Hour
)

// Config is the resolved runtime configuration. It is built once by
// Default/Load/ApplyEnv and then passed by value; nothing reads globals.
type Config struct {
	ServiceAddr string // control-plane listen address
	TargetHost  string // control-plane peer for sending subcommands

	QueueCapacity int
	MaxFrameSize  int
	Framing       protocol.Framing
	FailurePolicy network.FailurePolicy

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	DialTimeout  time.Duration

	TransferAddr    string
	TransferTimeout time.Duration // idle limit on a blob session

	// ContentPort is the content node TCP port; QUIC uses ContentPort+1.
	// Zero leaves the choice to the command (4444 provider, 4454 fetcher).
	ContentPort      int
	ContentRetention time.Duration // zero keeps content forever

	DataDir   string
	OutputDir string
	StaticDir string

	StatusAddr       string
	JournalPath      string
	JournalRetention time.Duration
}

// Default returns the compiled-in fallbacks
func Default() Config {
	return Config{
		ServiceAddr:      fmt.Sprintf("0.0.0.0:%d", protocol.DefaultServicePort),
		TargetHost:       fmt.Sprintf("127.0.0.1:%d", protocol.DefaultServicePort),
		QueueCapacity:    protocol.DefaultQueueCapacity,
		MaxFrameSize:     protocol.MaxFrameSize,
		Framing:          protocol.FramingLengthPrefixed,
		FailurePolicy:    network.ContinueOnError,
		ReadTimeout:      network.DefaultReadTimeout,
		WriteTimeout:     network.DefaultWriteTimeout,
		DialTimeout:      network.DefaultDialTimeout,
		TransferAddr:     fmt.Sprintf("0.0.0.0:%d", DefaultTransferPort),
		TransferTimeout:  transfer.DefaultIOTimeout,
		DataDir:          defaultDataDir(),
		OutputDir:        ".",
		StaticDir:        DefaultStaticDir,
		JournalRetention: DefaultJournalRetention,
	}
}

func defaultDataDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return dir + "/chuck"
	}
	return os.TempDir() + "/chuck"
}

// ApplyEnv overrides addresses from the environment
func ApplyEnv(cfg Config) (Config, error) {
	if v := strings.TrimSpace(os.Getenv(EnvServiceAddr)); v != "" {
		cfg.ServiceAddr = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvServicePort)); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port <= 0 || port > 65535 {
			return Config{}, fmt.Errorf("invalid %s %q", EnvServicePort, v)
		}
		host, _, err := net.SplitHostPort(cfg.ServiceAddr)
		if err != nil {
			host = "0.0.0.0"
		}
		cfg.ServiceAddr = net.JoinHostPort(host, strconv.Itoa(port))
	}
	if v := strings.TrimSpace(os.Getenv(EnvTargetHost)); v != "" {
		cfg.TargetHost = withDefaultPort(v, protocol.DefaultServicePort)
	}
	return cfg, nil
}

// withDefaultPort appends port when host has none
func withDefaultPort(host string, port int) string {
	if _, _, err := net.SplitHostPort(host); err == nil {
		return host
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// Validate rejects configurations the service cannot run with
func Validate(cfg Config) error {
	if strings.TrimSpace(cfg.ServiceAddr) == "" {
		return fmt.Errorf("config missing service_addr")
	}
	if _, _, err := net.SplitHostPort(cfg.ServiceAddr); err != nil {
		return fmt.Errorf("invalid service_addr %q: %w", cfg.ServiceAddr, err)
	}
	if strings.TrimSpace(cfg.TargetHost) == "" {
		return fmt.Errorf("config missing target_host")
	}
	if cfg.QueueCapacity <= 0 {
		return fmt.Errorf("queue_capacity must be positive, got %d", cfg.QueueCapacity)
	}
	if cfg.MaxFrameSize <= protocol.HeaderSize || cfg.MaxFrameSize > protocol.MaxFrameSize {
		return fmt.Errorf("max_frame_size must be in (%d, %d], got %d",
			protocol.HeaderSize, protocol.MaxFrameSize, cfg.MaxFrameSize)
	}
	if cfg.ReadTimeout < 0 || cfg.WriteTimeout < 0 || cfg.DialTimeout < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	if cfg.TransferTimeout < 0 {
		return fmt.Errorf("transfer_timeout must not be negative")
	}
	if cfg.ContentPort < 0 || cfg.ContentPort >= 65535 {
		return fmt.Errorf("content_port out of range: %d", cfg.ContentPort)
	}
	if cfg.ContentRetention < 0 {
		return fmt.Errorf("content_retention must not be negative")
	}
	if cfg.JournalRetention < 0 {
		return fmt.Errorf("journal_retention must not be negative")
	}
	return nil
}

// ServerConfig projects cfg onto the dispatch server settings
func (c Config) ServerConfig() network.ServerConfig {
	return network.ServerConfig{
		Addr:         c.ServiceAddr,
		MaxFrameSize: c.MaxFrameSize,
		ReadTimeout:  c.ReadTimeout,
		WriteTimeout: c.WriteTimeout,
		Framing:      c.Framing,
	}
}

// ClientConfig projects cfg onto the dispatch client settings
func (c Config) ClientConfig() network.ClientConfig {
	return network.ClientConfig{
		DialTimeout:  c.DialTimeout,
		ReadTimeout:  c.ReadTimeout,
		WriteTimeout: c.WriteTimeout,
		Framing:      c.Framing,
	}
}

// WithTarget returns a copy of c sending to host, which defaults to the
// service port when it carries none
func (c Config) WithTarget(host string) Config {
	c.TargetHost = withDefaultPort(host, protocol.DefaultServicePort)
	return c
}

// Policy returns the handler failure policy
func (c Config) Policy() network.FailurePolicy {
	return c.FailurePolicy
}
