package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZentaChain/chuck/pkg/network"
	"github.com/ZentaChain/chuck/pkg/protocol"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chuck.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaults(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "0.0.0.0:10001", cfg.ServiceAddr)
	assert.Equal(t, 32, cfg.QueueCapacity)
	assert.Equal(t, 64*1024, cfg.MaxFrameSize)
	assert.Equal(t, protocol.FramingLengthPrefixed, cfg.Framing)
	assert.Equal(t, network.ContinueOnError, cfg.Policy())
	assert.NoError(t, Validate(cfg))
}

func TestLoadEmptyPath(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().ServiceAddr, cfg.ServiceAddr)
}

func TestLoadOverridesDefinedKeysOnly(t *testing.T) {
	path := writeConfig(t, `
service_addr = "127.0.0.1:12000"
queue_capacity = 4
framing = "single-read"
failure_policy = "stop"
read_timeout = "250ms"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:12000", cfg.ServiceAddr)
	assert.Equal(t, 4, cfg.QueueCapacity)
	assert.Equal(t, protocol.FramingSingleRead, cfg.Framing)
	assert.Equal(t, network.StopOnError, cfg.FailurePolicy)
	assert.Equal(t, 250*time.Millisecond, cfg.ReadTimeout)

	// untouched keys keep their defaults
	assert.Equal(t, Default().WriteTimeout, cfg.WriteTimeout)
	assert.Equal(t, Default().MaxFrameSize, cfg.MaxFrameSize)
}

func TestLoadContentAndTransferKeys(t *testing.T) {
	path := writeConfig(t, `
content_port = 5000
content_retention = "2h"
transfer_timeout = "90s"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 5000, cfg.ContentPort)
	assert.Equal(t, 2*time.Hour, cfg.ContentRetention)
	assert.Equal(t, 90*time.Second, cfg.TransferTimeout)
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "unknown key", body: `colour = "blue"`},
		{name: "bad duration", body: `read_timeout = "soon"`},
		{name: "bad framing", body: `framing = "smoke-signals"`},
		{name: "bad policy", body: `failure_policy = "panic"`},
		{name: "zero capacity", body: `queue_capacity = 0`},
		{name: "frame too large", body: `max_frame_size = 70000`},
		{name: "empty service addr", body: `service_addr = ""`},
		{name: "addr without port", body: `service_addr = "localhost"`},
		{name: "malformed toml", body: `service_addr = `},
		{name: "negative transfer timeout", body: `transfer_timeout = "-1s"`},
		{name: "content port out of range", body: `content_port = 70000`},
		{name: "negative content retention", body: `content_retention = "-1h"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv(EnvServicePort, "12345")
	t.Setenv(EnvTargetHost, "10.0.0.7")

	cfg, err := ApplyEnv(Default())
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:12345", cfg.ServiceAddr)
	assert.Equal(t, "10.0.0.7:10001", cfg.TargetHost)
}

func TestApplyEnvAddrThenPort(t *testing.T) {
	t.Setenv(EnvServiceAddr, "127.0.0.1:1")
	t.Setenv(EnvServicePort, "2000")

	cfg, err := ApplyEnv(Default())
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:2000", cfg.ServiceAddr)
}

func TestApplyEnvInvalidPort(t *testing.T) {
	t.Setenv(EnvServicePort, "99999")

	_, err := ApplyEnv(Default())
	assert.Error(t, err)
}

func TestProjections(t *testing.T) {
	cfg := Default()
	cfg.ServiceAddr = "127.0.0.1:0"
	cfg.Framing = protocol.FramingSingleRead
	cfg.ReadTimeout = time.Second

	srv := cfg.ServerConfig()
	assert.Equal(t, "127.0.0.1:0", srv.Addr)
	assert.Equal(t, protocol.FramingSingleRead, srv.Framing)
	assert.Equal(t, time.Second, srv.ReadTimeout)

	cli := cfg.ClientConfig()
	assert.Equal(t, protocol.FramingSingleRead, cli.Framing)
	assert.Equal(t, cfg.DialTimeout, cli.DialTimeout)
}

func TestWithTarget(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "10.0.0.7:10001", cfg.WithTarget("10.0.0.7").TargetHost)
	assert.Equal(t, "10.0.0.7:9000", cfg.WithTarget("10.0.0.7:9000").TargetHost)
	assert.Equal(t, "127.0.0.1:10001", cfg.TargetHost)
}

func TestTemplateLoads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chuck.toml")
	require.NoError(t, WriteTemplate(path, false))
	assert.Error(t, WriteTemplate(path, false))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Default().ServiceAddr, cfg.ServiceAddr)
	assert.Zero(t, cfg.ContentPort)
	assert.Equal(t, 30*time.Second, cfg.TransferTimeout)
	assert.Zero(t, cfg.ContentRetention)
}
