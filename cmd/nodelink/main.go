// nodelink keeps a node session open against the relay endpoints,
// answering handshakes and sending heartbeats, and reconnects whenever
// the session drops.
//
// The account identifier is read from userid.txt in the working
// directory (or --user-id-file). Without it the client logs one error and
// exits without connecting.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/vinayprograms/nodelink/client"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var opts client.Options
	var showVersion bool

	flagSet := pflag.NewFlagSet("nodelink", pflag.ContinueOnError)
	flagSet.StringVarP(&opts.ConfigPath, "config", "c", "", "path to a TOML configuration file")
	flagSet.StringVar(&opts.UserIDFile, "user-id-file", "", "file holding the account identifier (default: userid.txt)")
	flagSet.StringVar(&opts.LogLevel, "log-level", "", "debug, info, warn or error")
	flagSet.StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	flagSet.BoolVar(&showVersion, "version", false, "print the version and exit")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}
	if showVersion {
		fmt.Println("nodelink", version)
		return nil
	}
	if args := flagSet.Args(); len(args) > 0 {
		return fmt.Errorf("unexpected argument: %s", args[0])
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts.Version = version
	return client.Run(ctx, opts)
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `nodelink keeps a persistent node session open and reconnects on failure.

Usage:
  nodelink [flags]

Flags:
%s`, flagSet.FlagUsages())
}
