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

// Version information (set by build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		printUsage(stderr)
		return ExitConfigError
	}

	switch args[0] {
	case "-h", "--help", "help":
		printUsage(stdout)
		return ExitSuccess
	case "--version", "version":
		fmt.Fprintf(stdout, "fnrelease %s (built %s)\n", Version, BuildTime)
		return ExitSuccess
	}

	cmd, ok := lookupCommand(args[0])
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n\n", args[0])
		printUsage(stderr)
		return ExitConfigError
	}

	fs := pflag.NewFlagSet("fnrelease "+cmd.name, pflag.ContinueOnError)
	fs.SetOutput(stderr)
	addGlobalFlags(fs)
	cmd.flags(fs)
	if err := fs.Parse(args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return ExitSuccess
		}
		return ExitConfigError
	}

	configPath, _ := fs.GetString("config")
	cfg, err := LoadConfig(configPath, fs)
	if err != nil {
		fmt.Fprintf(stderr, "configuration error: %v\n", err)
		return ExitConfigError
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "configuration error: %v\n", err)
		return ExitConfigError
	}

	logger := SetupLogger(cfg, stderr)

	a, err := newApp(cfg, logger)
	if err != nil {
		logger.Error("failed to initialise", "error", err)
		return exitCode(nil, err)
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out, err := cmd.run(ctx, a, fs)
	if out != nil {
		if werr := writeOutput(stdout, cfg.Output, out); werr != nil {
			logger.Error("failed to write output", "error", werr)
		}
	}
	if err != nil {
		logger.Error("command failed", "command", cmd.name, "error", err)
	}
	return exitCode(out, err)
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "usage: fnrelease <command> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "commands:")
	for _, c := range commands {
		fmt.Fprintf(w, "  %-10s %s\n", c.name, c.summary)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "global flags: --config, --debug, --output json|yaml, --function")
}
