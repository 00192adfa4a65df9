package main

import (
	"context"
	"io"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/ZentaChain/chuck/pkg/statusapi"
)

func runHTTPServer(ctx context.Context, args []string, out io.Writer) error {
	var flags configFlags
	var addr, dir, cert, key string
	var tls bool

	flagSet := pflag.NewFlagSet("http-server", pflag.ContinueOnError)
	flags.add(flagSet)
	flagSet.StringVar(&addr, "addr", "0.0.0.0:443", "listen address")
	flagSet.StringVar(&dir, "dir", "", "directory to serve (default from config, /var/lib/netsim)")
	flagSet.BoolVar(&tls, "tls", false, "serve HTTPS")
	flagSet.StringVar(&cert, "cert", "", "TLS certificate (default <dir>/self_signed_certs/cert.pem)")
	flagSet.StringVar(&key, "key", "", "TLS key (default <dir>/self_signed_certs/key.pem)")

	if done, err := parseFlags(flagSet, args, "http-server [flags]", out); done || err != nil {
		return err
	}

	cfg, err := flags.load()
	if err != nil {
		return err
	}
	if dir == "" {
		dir = cfg.StaticDir
	}

	static := statusapi.StaticConfig{Addr: addr, Dir: dir}
	if tls {
		static.CertFile = cert
		static.KeyFile = key
		if static.CertFile == "" {
			static.CertFile = filepath.Join(dir, "self_signed_certs", "cert.pem")
		}
		if static.KeyFile == "" {
			static.KeyFile = filepath.Join(dir, "self_signed_certs", "key.pem")
		}
	}

	srv := statusapi.NewStatic(static)
	log.Info().Str("addr", addr).Str("dir", dir).Bool("tls", srv.TLS()).Msg("starting http server")
	return srv.Start(ctx)
}
