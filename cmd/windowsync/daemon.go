package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/1broseidon/windowsync/internal/daemon"
	"github.com/1broseidon/windowsync/internal/x11"
)

func runDaemon(args []string) int {
	fs := flag.NewFlagSet("daemon", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: windowsync daemon [--config PATH]")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Serve the shared store over the IPC socket and, when http_listen is set, the HTTP API.")
	}
	configPath := fs.String("config", "", "Config file path (default: ~/.config/windowsync/config.yaml)")
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "daemon takes no arguments")
		fs.Usage()
		return 2
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		return 1
	}
	logger := newLogger(cfg)

	socketPath, err := cfg.ResolveSocketPath()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	storePath, err := cfg.ResolveStorePath()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	opts := daemon.Options{
		SocketPath: socketPath,
		StorePath:  storePath,
		HTTPListen: cfg.HTTPListen,
		Logger:     logger,
	}
	if cfg.ReconcileInterval > 0 {
		conn, err := x11.NewConnection(os.Getenv("DISPLAY"))
		if err != nil {
			logger.Warn("reconciler disabled: failed to connect to display", "error", err)
		} else {
			defer conn.Close()
			opts.ReconcileInterval = cfg.ReconcileInterval
			opts.ListWindows = conn.ClientWindows
		}
	}

	d, err := daemon.New(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open store: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := d.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Daemon error: %v\n", err)
		return 1
	}
	return 0
}
