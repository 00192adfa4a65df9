package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/pflag"

	"github.com/ZentaChain/chuck/pkg/config"
	"github.com/ZentaChain/chuck/pkg/crypto"
)

func runPeerID(_ context.Context, args []string, out io.Writer) error {
	flagSet := pflag.NewFlagSet("peer-id", pflag.ContinueOnError)
	if done, err := parseFlags(flagSet, args, "peer-id <keyfile>", out); done || err != nil {
		return err
	}

	if flagSet.NArg() != 1 {
		return errors.New("peer-id takes exactly one key file")
	}

	id, err := crypto.PeerIDFromKeyFile(flagSet.Arg(0))
	if err != nil {
		return err
	}
	fmt.Fprintln(out, id)
	return nil
}

func runInitConfig(_ context.Context, args []string, out io.Writer) error {
	var force bool

	flagSet := pflag.NewFlagSet("init-config", pflag.ContinueOnError)
	flagSet.BoolVar(&force, "force", false, "overwrite an existing file")
	if done, err := parseFlags(flagSet, args, "init-config [--force] <path>", out); done || err != nil {
		return err
	}

	if flagSet.NArg() != 1 {
		return errors.New("init-config takes exactly one path")
	}

	path := flagSet.Arg(0)
	if err := config.WriteTemplate(path, force); err != nil {
		return err
	}
	fmt.Fprintf(out, "wrote %s\n", path)
	return nil
}
