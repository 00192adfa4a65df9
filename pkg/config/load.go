package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/ZentaChain/chuck/pkg/network"
	"github.com/ZentaChain/chuck/pkg/protocol"
)

type fileConfig struct {
	ServiceAddr      string `toml:"service_addr"`
	TargetHost       string `toml:"target_host"`
	QueueCapacity    int    `toml:"queue_capacity"`
	MaxFrameSize     int    `toml:"max_frame_size"`
	Framing          string `toml:"framing"`
	FailurePolicy    string `toml:"failure_policy"`
	ReadTimeout      string `toml:"read_timeout"`
	WriteTimeout     string `toml:"write_timeout"`
	DialTimeout      string `toml:"dial_timeout"`
	TransferAddr     string `toml:"transfer_addr"`
	TransferTimeout  string `toml:"transfer_timeout"`
	ContentPort      int    `toml:"content_port"`
	ContentRetention string `toml:"content_retention"`
	DataDir          string `toml:"data_dir"`
	OutputDir        string `toml:"output_dir"`
	StaticDir        string `toml:"static_dir"`
	StatusAddr       string `toml:"status_addr"`
	JournalPath      string `toml:"journal_path"`
	JournalRetention string `toml:"journal_retention"`
}

// Load decodes the TOML file at path over Default(), applies the
// environment and validates the result. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()

	if strings.TrimSpace(path) != "" {
		var err error
		cfg, err = decodeFile(path, cfg)
		if err != nil {
			return Config{}, err
		}
	}

	cfg, err := ApplyEnv(cfg)
	if err != nil {
		return Config{}, err
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decodeFile(path string, cfg Config) (Config, error) {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("load config: unknown key %q", undecoded[0].String())
	}

	setString := func(key, value string, dst *string) {
		if meta.IsDefined(key) {
			*dst = strings.TrimSpace(value)
		}
	}
	setDuration := func(key, value string, dst *time.Duration) error {
		if !meta.IsDefined(key) {
			return nil
		}
		d, err := time.ParseDuration(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("parse %s: %w", key, err)
		}
		*dst = d
		return nil
	}

	setString("service_addr", raw.ServiceAddr, &cfg.ServiceAddr)
	setString("target_host", raw.TargetHost, &cfg.TargetHost)
	setString("transfer_addr", raw.TransferAddr, &cfg.TransferAddr)
	setString("data_dir", raw.DataDir, &cfg.DataDir)
	setString("output_dir", raw.OutputDir, &cfg.OutputDir)
	setString("static_dir", raw.StaticDir, &cfg.StaticDir)
	setString("status_addr", raw.StatusAddr, &cfg.StatusAddr)
	setString("journal_path", raw.JournalPath, &cfg.JournalPath)

	if meta.IsDefined("queue_capacity") {
		cfg.QueueCapacity = raw.QueueCapacity
	}
	if meta.IsDefined("max_frame_size") {
		cfg.MaxFrameSize = raw.MaxFrameSize
	}
	if meta.IsDefined("content_port") {
		cfg.ContentPort = raw.ContentPort
	}

	if meta.IsDefined("framing") {
		framing, err := protocol.ParseFraming(raw.Framing)
		if err != nil {
			return Config{}, err
		}
		cfg.Framing = framing
	}
	if meta.IsDefined("failure_policy") {
		policy, err := network.ParseFailurePolicy(raw.FailurePolicy)
		if err != nil {
			return Config{}, err
		}
		cfg.FailurePolicy = policy
	}

	for _, d := range []struct {
		key   string
		value string
		dst   *time.Duration
	}{
		{"read_timeout", raw.ReadTimeout, &cfg.ReadTimeout},
		{"write_timeout", raw.WriteTimeout, &cfg.WriteTimeout},
		{"dial_timeout", raw.DialTimeout, &cfg.DialTimeout},
		{"journal_retention", raw.JournalRetention, &cfg.JournalRetention},
		{"transfer_timeout", raw.TransferTimeout, &cfg.TransferTimeout},
		{"content_retention", raw.ContentRetention, &cfg.ContentRetention},
	} {
		if err := setDuration(d.key, d.value, d.dst); err != nil {
			return Config{}, err
		}
	}

	return cfg, nil
}
