// Fleet Core - remote device management over MQTT.
//
// fleetcore keeps a registry of the agents in a fleet, follows their
// lifecycle events and sends them typed management calls (commands,
// configuration, deployment, keystore, inventory). It serves a health and
// Prometheus endpoint, and records every call in the audit trail and,
// optionally, InfluxDB.
//
// Usage:
//
//	fleetcore [--config path]
//	fleetcore [--config path] --exec scope/device -- command [args...]
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	defaultConfigPath = "configs/fleetcore.yaml"
	configEnvVar      = "FLEETCORE_CONFIG"
)

// options are the parsed command line.
type options struct {
	configPath  string
	execTarget  string
	execCommand []string
	showVersion bool
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	if err := run(ctx, opts, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(args []string, errOut io.Writer) (options, error) {
	var opts options
	flags := pflag.NewFlagSet("fleetcore", pflag.ContinueOnError)
	flags.SetOutput(errOut)
	flags.StringVarP(&opts.configPath, "config", "c", "",
		"path to the YAML configuration (default $"+configEnvVar+" or "+defaultConfigPath+")")
	flags.StringVar(&opts.execTarget, "exec", "",
		"run the command after -- on scope/device, print its output and exit")
	flags.BoolVar(&opts.showVersion, "version", false, "print version information and exit")

	if err := flags.Parse(args); err != nil {
		return options{}, err
	}
	opts.execCommand = flags.Args()

	if opts.execTarget != "" && len(opts.execCommand) == 0 {
		return options{}, errors.New("--exec needs a command after --")
	}
	if opts.execTarget == "" && len(opts.execCommand) > 0 {
		return options{}, fmt.Errorf("unexpected arguments %q", opts.execCommand)
	}
	return opts, nil
}

// resolvedConfigPath picks the flag, then the environment, then the default.
func (o options) resolvedConfigPath() string {
	if o.configPath != "" {
		return o.configPath
	}
	if path := os.Getenv(configEnvVar); path != "" {
		return path
	}
	return defaultConfigPath
}
