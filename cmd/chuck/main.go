// chuck runs the nodes of a network simulation scenario. Each subcommand
// is one role: a receiver that binds the control-plane service and
// dispatches envelopes to a topic handler, or a sender that pushes one
// envelope at a receiver and then serves whatever the envelope describes.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/ZentaChain/chuck/pkg/logging"
)

type command struct {
	name    string
	summary string
	run     func(ctx context.Context, args []string, out io.Writer) error
}

var commands = []command{
	{"ticket-receiver", "serve the control plane and redeem transfer tickets", runTicketReceiver},
	{"ticket-sender", "offer random bytes and send the ticket to a receiver", runTicketSender},
	{"content-provider", "store content and send its locator to a fetcher", runContentProvider},
	{"content-fetcher", "serve the control plane and fetch located content", runContentFetcher},
	{"http-server", "serve a static directory over HTTP(S)", runHTTPServer},
	{"peer-id", "print the libp2p peer ID of a key file", runPeerID},
	{"init-config", "write an example configuration file", runInitConfig},
}

func main() {
	logging.ConfigureRuntime("chuck")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		log.Error().Err(err).Msg("chuck failed")
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		printHelp(os.Stderr)
		return errors.New("missing command")
	}

	switch args[0] {
	case "-h", "--help", "help":
		printHelp(out)
		return nil
	}

	for _, cmd := range commands {
		if cmd.name == args[0] {
			return cmd.run(ctx, args[1:], out)
		}
	}
	return fmt.Errorf("unknown command %q", args[0])
}

func printHelp(w io.Writer) {
	fmt.Fprintf(w, "chuck: control-plane messaging for network simulations\n\nUsage:\n  chuck <command> [flags]\n\nCommands:\n")
	for _, cmd := range commands {
		fmt.Fprintf(w, "  %-18s %s\n", cmd.name, cmd.summary)
	}
	fmt.Fprintf(w, "\nRun \"chuck <command> --help\" for the flags of a command.\n")
}

// parseFlags parses args into flagSet. It reports true when help was
// printed and the command should return without doing anything.
func parseFlags(flagSet *pflag.FlagSet, args []string, usage string, out io.Writer) (bool, error) {
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printUsage(flagSet, usage, out)
			return true, nil
		}
		return false, err
	}

	if help, _ := flagSet.GetBool("help"); help {
		printUsage(flagSet, usage, out)
		return true, nil
	}
	return false, nil
}

func printUsage(flagSet *pflag.FlagSet, usage string, out io.Writer) {
	fmt.Fprintf(out, "Usage:\n  chuck %s\n\nFlags:\n%s", usage, flagSet.FlagUsages())
}
