package main

import (
	"context"
	"fmt"
	"net"

	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/ZentaChain/chuck/pkg/config"
	"github.com/ZentaChain/chuck/pkg/network"
	"github.com/ZentaChain/chuck/pkg/protocol"
	"github.com/ZentaChain/chuck/pkg/statusapi"
	"github.com/ZentaChain/chuck/pkg/storage"
)

// configFlags are shared by every command that reads the configuration.
// Flags override the file and the environment.
type configFlags struct {
	configPath string
	framing    string
}

func (f *configFlags) add(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&f.configPath, "config", "", "path to a TOML configuration file")
	flagSet.StringVar(&f.framing, "framing", "", "control-plane framing: length-prefixed or single-read")
}

func (f *configFlags) load() (config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return config.Config{}, err
	}
	if f.framing != "" {
		framing, err := protocol.ParseFraming(f.framing)
		if err != nil {
			return config.Config{}, err
		}
		cfg.Framing = framing
	}
	return cfg, nil
}

// serviceFlags configure the receiving side of the control plane
type serviceFlags struct {
	configFlags
	listen     string
	statusAddr string
	journal    string
	policy     string
	outDir     string
}

func (f *serviceFlags) add(flagSet *pflag.FlagSet) {
	f.configFlags.add(flagSet)
	flagSet.StringVar(&f.listen, "listen", "", "control-plane listen address (default from config, 0.0.0.0:10001)")
	flagSet.StringVar(&f.statusAddr, "status-addr", "", "serve dispatch status over HTTP on this address")
	flagSet.StringVar(&f.journal, "journal", "", "record dispatch receipts in this SQLite file")
	flagSet.StringVar(&f.policy, "on-handler-error", "", "handler failure policy: continue or stop")
	flagSet.StringVar(&f.outDir, "out", "", "directory for received files (default from config)")
}

func (f *serviceFlags) load() (config.Config, error) {
	cfg, err := f.configFlags.load()
	if err != nil {
		return config.Config{}, err
	}
	if f.listen != "" {
		cfg.ServiceAddr = f.listen
	}
	if f.statusAddr != "" {
		cfg.StatusAddr = f.statusAddr
	}
	if f.journal != "" {
		cfg.JournalPath = f.journal
	}
	if f.outDir != "" {
		cfg.OutputDir = f.outDir
	}
	if f.policy != "" {
		policy, err := network.ParseFailurePolicy(f.policy)
		if err != nil {
			return config.Config{}, err
		}
		cfg.FailurePolicy = policy
	}
	return cfg, config.Validate(cfg)
}

// runDispatcher binds the control-plane service, consumes its queue with
// a router set up by register, and runs until ctx is done or the router
// stops on a handler failure.
func runDispatcher(ctx context.Context, cfg config.Config, register func(*network.Router), sources statusapi.Sources) error {
	queue := network.NewQueue(cfg.QueueCapacity)

	srv, err := network.Bind(cfg.ServerConfig(), queue)
	if err != nil {
		return err
	}
	defer srv.Close()

	router := network.NewRouter(cfg.Policy())
	register(router)

	if cfg.JournalPath != "" {
		journal, err := storage.NewJournal(cfg.JournalPath, cfg.JournalRetention)
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		defer journal.Close()
		router.AttachRecorder(journal)
		sources.Journal = journal
	}
	sources.Server = srv
	sources.Router = router

	log.Info().
		Str("addr", srv.Addr().String()).
		Str("framing", cfg.Framing.String()).
		Str("policy", cfg.Policy().String()).
		Msg("dispatch service listening")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })
	g.Go(func() error { return router.Run(gctx, queue) })
	if cfg.StatusAddr != "" {
		status := statusapi.New(cfg.StatusAddr, sources)
		g.Go(func() error { return status.Start(gctx) })
	}

	err = g.Wait()
	stats := srv.Stats()
	log.Info().
		Uint64("frames_accepted", stats.FramesAccepted).
		Uint64("frames_rejected", stats.FramesRejected).
		Uint64("handled", router.Stats().Handled).
		Msg("dispatch service stopped")
	return err
}

// deliver sends one envelope to the configured target
func deliver(ctx context.Context, cfg config.Config, topic protocol.Topic, payload []byte) error {
	env, err := protocol.NewEnvelope(topic, payload)
	if err != nil {
		return err
	}

	if err := network.NewClient(cfg.ClientConfig()).Deliver(ctx, cfg.TargetHost, env); err != nil {
		return err
	}
	log.Info().Str("target", cfg.TargetHost).Str("topic", topic.String()).Int("bytes", len(payload)).Msg("envelope accepted")
	return nil
}

// outboundHost returns the local IP used to reach target. No packets are
// sent; the UDP socket only selects a route.
func outboundHost(target string) (string, error) {
	conn, err := net.Dial("udp", target)
	if err != nil {
		return "", err
	}
	defer conn.Close()
	host, _, err := net.SplitHostPort(conn.LocalAddr().String())
	return host, err
}

// advertiseHost returns the host peers should dial for a listener bound
// to listen. An empty result keeps the bound address.
func advertiseHost(listen, target string) string {
	host, _, err := net.SplitHostPort(listen)
	if err != nil {
		return ""
	}
	if host != "" {
		if ip := net.ParseIP(host); ip == nil || !ip.IsUnspecified() {
			return ""
		}
	}
	if local, err := outboundHost(target); err == nil {
		return local
	}
	return "127.0.0.1"
}
