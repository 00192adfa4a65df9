package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"path/filepath"

	"github.com/ipfs/go-cid"
	libp2pcrypto "github.com/libp2p/go-libp2p/core/crypto"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/ZentaChain/chuck/pkg/config"
	"github.com/ZentaChain/chuck/pkg/crypto"
	"github.com/ZentaChain/chuck/pkg/meshstorage"
	"github.com/ZentaChain/chuck/pkg/network"
	"github.com/ZentaChain/chuck/pkg/protocol"
	"github.com/ZentaChain/chuck/pkg/statusapi"
)

// defaultContentBytes is used when the provider has no --file
const defaultContentBytes = 10 * 1024 * 1024

// nodeFlags configure a content node
type nodeFlags struct {
	flagSet  *pflag.FlagSet
	port     int
	identity string
	dataDir  string
}

func (f *nodeFlags) add(flagSet *pflag.FlagSet, defaultPort int) {
	f.flagSet = flagSet
	flagSet.IntVar(&f.port, "port", defaultPort, "content node TCP port; QUIC uses port+1 (overrides content_port)")
	flagSet.StringVar(&f.identity, "identity", "", "libp2p or OpenSSH Ed25519 key file (created if missing)")
	flagSet.StringVar(&f.dataDir, "data-dir", "", "content store directory (default from config)")
}

func (f *nodeFlags) start(ctx context.Context, cfg config.Config, role string) (*meshstorage.Node, error) {
	var priv libp2pcrypto.PrivKey
	if f.identity != "" {
		var err error
		priv, err = crypto.LoadOrCreateIdentity(f.identity)
		if err != nil {
			return nil, err
		}
	}

	dataDir := f.dataDir
	if dataDir == "" {
		dataDir = filepath.Join(cfg.DataDir, role)
	}

	return meshstorage.NewNode(ctx, &meshstorage.NodeConfig{
		Port:       f.nodePort(cfg),
		DataDir:    dataDir,
		PrivateKey: priv,
		Retention:  cfg.ContentRetention,
	})
}

// nodePort prefers an explicit --port, then content_port, then the
// role default carried by the flag
func (f *nodeFlags) nodePort(cfg config.Config) int {
	if f.flagSet.Changed("port") || cfg.ContentPort == 0 {
		return f.port
	}
	return cfg.ContentPort
}

func runContentProvider(ctx context.Context, args []string, out io.Writer) error {
	var flags configFlags
	var node nodeFlags
	var target, file, statusAddr string
	var size int

	flagSet := pflag.NewFlagSet("content-provider", pflag.ContinueOnError)
	flags.add(flagSet)
	node.add(flagSet, config.DefaultContentProviderPort)
	flagSet.StringVar(&target, "target", "", "fetcher control-plane address (host or host:port)")
	flagSet.StringVar(&file, "file", "", "file to provide (default: random bytes)")
	flagSet.IntVar(&size, "bytes", defaultContentBytes, "random bytes to provide when --file is not set")
	flagSet.StringVar(&statusAddr, "status-addr", "", "serve content status over HTTP on this address")

	if done, err := parseFlags(flagSet, args, "content-provider --target HOST [flags]", out); done || err != nil {
		return err
	}

	cfg, err := flags.load()
	if err != nil {
		return err
	}
	if target != "" {
		cfg = cfg.WithTarget(target)
	}
	if file == "" && (size <= 0 || size > meshstorage.MaxContentSize) {
		return fmt.Errorf("--bytes must be in [1, %d]", meshstorage.MaxContentSize)
	}

	n, err := node.start(ctx, cfg, "provider")
	if err != nil {
		return err
	}
	defer n.Close()

	var c cid.Cid
	if file != "" {
		c, err = n.AddFile(file)
	} else {
		data := make([]byte, size)
		if _, err := rand.Read(data); err != nil {
			return fmt.Errorf("generate content: %w", err)
		}
		c, err = n.Add(data)
	}
	if err != nil {
		return err
	}

	loc, err := n.Locator(c)
	if err != nil {
		return err
	}
	log.Info().
		Str("cid", c.String()).
		Str("peer_id", loc.PeerID.String()).
		Int("addrs", len(loc.Addrs)).
		Msg("content ready")

	payload, err := loc.Encode()
	if err != nil {
		return err
	}
	if err := deliver(ctx, cfg, protocol.TopicContentLocator, payload); err != nil {
		return err
	}

	log.Info().Msg("serving content until interrupted")
	if statusAddr == "" {
		<-ctx.Done()
		return nil
	}
	return statusapi.New(statusAddr, statusapi.Sources{Content: n}).Start(ctx)
}

func runContentFetcher(ctx context.Context, args []string, out io.Writer) error {
	var flags serviceFlags
	var node nodeFlags

	flagSet := pflag.NewFlagSet("content-fetcher", pflag.ContinueOnError)
	flags.add(flagSet)
	node.add(flagSet, config.DefaultContentFetcherPort)

	if done, err := parseFlags(flagSet, args, "content-fetcher [flags]", out); done || err != nil {
		return err
	}

	cfg, err := flags.load()
	if err != nil {
		return err
	}

	n, err := node.start(ctx, cfg, "fetcher")
	if err != nil {
		return err
	}
	defer n.Close()

	log.Info().Str("out", cfg.OutputDir).Msg("starting content fetcher")

	return runDispatcher(ctx, cfg, func(r *network.Router) {
		r.Handle(protocol.TopicContentLocator, n.Handler(cfg.OutputDir))
	}, statusapi.Sources{Content: n})
}
