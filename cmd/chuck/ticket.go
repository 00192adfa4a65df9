package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/ZentaChain/chuck/pkg/network"
	"github.com/ZentaChain/chuck/pkg/protocol"
	"github.com/ZentaChain/chuck/pkg/statusapi"
	"github.com/ZentaChain/chuck/pkg/transfer"
)

// defaultTicketBytes matches the blob size of the netsim scenarios
const defaultTicketBytes = 5*1024*1024 - 8

func runTicketReceiver(ctx context.Context, args []string, out io.Writer) error {
	var flags serviceFlags
	var maxSize uint64

	flagSet := pflag.NewFlagSet("ticket-receiver", pflag.ContinueOnError)
	flags.add(flagSet)
	flagSet.Uint64Var(&maxSize, "max-size", transfer.DefaultMaxSize, "largest blob a ticket may describe")

	if done, err := parseFlags(flagSet, args, "ticket-receiver [flags]", out); done || err != nil {
		return err
	}

	cfg, err := flags.load()
	if err != nil {
		return err
	}

	receiver := transfer.NewReceiver(transfer.ReceiverConfig{
		DialTimeout: cfg.DialTimeout,
		IOTimeout:   cfg.TransferTimeout,
		MaxSize:     maxSize,
		OutputDir:   cfg.OutputDir,
	})

	log.Info().Str("out", cfg.OutputDir).Msg("starting ticket receiver")
	return runDispatcher(ctx, cfg, func(r *network.Router) {
		r.Handle(protocol.TopicTransferTicket, receiver.Handler())
	}, statusapi.Sources{})
}

func runTicketSender(ctx context.Context, args []string, out io.Writer) error {
	var flags configFlags
	var target, name, listen, advertise string
	var size uint64
	var timeout time.Duration

	flagSet := pflag.NewFlagSet("ticket-sender", pflag.ContinueOnError)
	flags.add(flagSet)
	flagSet.StringVar(&target, "target", "", "receiver control-plane address (host or host:port)")
	flagSet.Uint64Var(&size, "bytes", defaultTicketBytes, "number of random bytes to offer")
	flagSet.StringVar(&name, "name", "meme.bin", "file name written into the ticket")
	flagSet.StringVar(&listen, "listen", "", "transfer listen address (default from config, 0.0.0.0:9990)")
	flagSet.StringVar(&advertise, "advertise", "", "transfer address written into the ticket")
	flagSet.DurationVar(&timeout, "timeout", 0, "give up waiting for the receiver after this long (0 waits forever)")

	if done, err := parseFlags(flagSet, args, "ticket-sender --target HOST [flags]", out); done || err != nil {
		return err
	}

	cfg, err := flags.load()
	if err != nil {
		return err
	}
	if target != "" {
		cfg = cfg.WithTarget(target)
	}
	if listen == "" {
		listen = cfg.TransferAddr
	}
	if size == 0 || size > transfer.DefaultMaxSize {
		return fmt.Errorf("--bytes must be in [1, %d]", transfer.DefaultMaxSize)
	}

	if advertise == "" {
		advertise = advertiseHost(listen, cfg.TargetHost)
	}

	sender, err := transfer.NewSender(transfer.SenderConfig{
		ListenAddr:    listen,
		AdvertiseAddr: advertise,
		IOTimeout:     cfg.TransferTimeout,
	})
	if err != nil {
		return err
	}
	defer sender.Close()

	serveErr := make(chan error, 1)
	go func() { serveErr <- sender.Serve(ctx) }()

	data := make([]byte, size)
	if _, err := rand.Read(data); err != nil {
		return fmt.Errorf("generate payload: %w", err)
	}

	tr, err := sender.Offer(name, data)
	if err != nil {
		return err
	}

	payload, err := tr.Ticket().Encode()
	if err != nil {
		return err
	}
	if err := deliver(ctx, cfg, protocol.TopicTransferTicket, payload); err != nil {
		return err
	}

	waitCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	log.Info().Str("ticket", tr.Ticket().String()).Msg("waiting for done")
	start := time.Now()

	select {
	case <-tr.Done():
	case <-waitCtx.Done():
		return fmt.Errorf("waiting for receiver: %w", waitCtx.Err())
	case err := <-serveErr:
		return fmt.Errorf("transfer listener stopped: %w", err)
	}

	log.Info().Dur("duration", time.Since(start)).Uint64("bytes", size).Msg("transfer done")
	return nil
}
