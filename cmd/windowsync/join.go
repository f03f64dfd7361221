package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/1broseidon/windowsync/internal/config"
	"github.com/1broseidon/windowsync/internal/daemon"
	"github.com/1broseidon/windowsync/internal/geometry"
	"github.com/1broseidon/windowsync/internal/registry"
	"github.com/1broseidon/windowsync/internal/x11"
)

const leaveTimeout = 2 * time.Second

func runJoin(args []string) int {
	fs := flag.NewFlagSet("join", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: windowsync join [--window ID [--display NAME] | --shape x,y,w,h] [--clear] [--meta key=value]... [--config PATH]")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Register as one window, publish its geometry as it moves and log peer changes.")
		fmt.Fprintln(os.Stderr, "Leaves the registry on SIGINT/SIGTERM.")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Flags:")
		fs.PrintDefaults()
	}
	configPath := fs.String("config", "", "Config file path (default: ~/.config/windowsync/config.yaml)")
	windowID := fs.Uint("window", 0, "X11 window id to track (default: active window)")
	display := fs.String("display", "", "X display to read geometry from (default: $DISPLAY)")
	shapeArg := fs.String("shape", "", "Fixed shape x,y,w,h instead of tracking an X11 window")
	clearFirst := fs.Bool("clear", false, "Wipe the shared store before joining")
	meta := metaFlag{}
	fs.Var(meta, "meta", "Metadata key=value attached to the record (repeatable)")
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "join takes no arguments")
		fs.Usage()
		return 2
	}
	if *shapeArg != "" && *windowID != 0 {
		fmt.Fprintln(os.Stderr, "--window and --shape are mutually exclusive")
		return 2
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	logger := newLogger(cfg)
	metadata := mergeMetadata(cfg.Metadata, meta)

	var source geometry.Source
	if *shapeArg != "" {
		shape, err := geometry.ParseShape(*shapeArg)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 2
		}
		source = geometry.Static(shape)
	} else {
		conn, err := x11.NewConnection(*display)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		defer conn.Close()
		src, err := x11.NewWindowSource(conn, uint32(*windowID), logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to resolve window: %v\n", err)
			return 1
		}
		if metadata == nil {
			metadata = map[string]string{}
		}
		logger.Debug("tracking window", "display", conn.Display(), "window_id", src.Window())
		metadata[daemon.WindowIDMetadataKey] = strconv.FormatUint(uint64(src.Window()), 10)
		source = src
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer closeStore()

	opts := cfg.RegistryOptions(logger)
	opts.Metadata = metadata
	window := registry.NewWindow(st, source, opts)
	window.OnPeersChanged(func(peers registry.Snapshot) {
		logger.Info("peers changed", "ids", peers.IDs())
	})
	window.OnShapeChanged(func(shape geometry.Shape) {
		logger.Debug("shape changed", "shape", shape.String())
	})

	return participate(ctx, window, cfg, *clearFirst, logger)
}

// participate runs one window's lifecycle: optional wipe, subscribe, deferred
// join, shape tracking until ctx ends, then leave.
func participate(ctx context.Context, window *registry.Window, cfg *config.Config, clearFirst bool, logger *slog.Logger) int {
	if clearFirst {
		logger.Info("clearing shared store")
		window.Registry().Reset(ctx)
	}

	if err := window.Watch(ctx); err != nil {
		logger.Warn("peer notifications unavailable", "error", err)
	}

	if cfg.RegistrationDelay > 0 {
		select {
		case <-ctx.Done():
			return 0
		case <-time.After(cfg.RegistrationDelay):
		}
	}

	id := window.Join(ctx)
	logger.Info("joined", "id", id, "shape", window.OwnShape().String(), "peers", window.Peers(ctx).IDs())

	window.Run(ctx, cfg.TickInterval)

	// ctx is already cancelled; leave on a fresh deadline.
	leaveCtx, cancel := context.WithTimeout(context.Background(), leaveTimeout)
	defer cancel()
	window.Leave(leaveCtx)
	logger.Info("left", "id", id)
	return 0
}
