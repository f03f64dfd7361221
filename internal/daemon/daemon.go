// Package daemon runs the shared store service: a bbolt-backed broker
// reachable over the IPC socket, plus the optional HTTP API and reconciler.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/1broseidon/windowsync/internal/httpapi"
	"github.com/1broseidon/windowsync/internal/ipc"
	"github.com/1broseidon/windowsync/internal/store"
)

// Options configures a Daemon.
type Options struct {
	SocketPath string
	StorePath  string
	// HTTPListen is the HTTP API address; empty disables it.
	HTTPListen string
	// ReconcileInterval enables stale-record pruning when > 0 and
	// ListWindows is set.
	ReconcileInterval time.Duration
	ListWindows       WindowLister
	Logger            *slog.Logger
}

// Daemon owns the store file and every server in front of it.
type Daemon struct {
	opts   Options
	logger *slog.Logger

	backend *store.BoltBackend
	broker  *store.Broker
	ipc     *ipc.Server
	http    *httpapi.Server
	httpLn  net.Listener

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New opens the store. The store file is locked until Stop.
func New(opts Options) (*Daemon, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	backend, err := store.OpenBolt(opts.StorePath)
	if err != nil {
		return nil, err
	}
	return &Daemon{
		opts:    opts,
		logger:  logger,
		backend: backend,
		broker:  store.NewBroker(backend),
	}, nil
}

// Broker returns the broker serving the store.
func (d *Daemon) Broker() *store.Broker {
	return d.broker
}

// HTTPAddr returns the bound HTTP address, or "" when disabled.
func (d *Daemon) HTTPAddr() string {
	if d.httpLn == nil {
		return ""
	}
	return d.httpLn.Addr().String()
}

// Start brings up the IPC server, the HTTP API and the reconciler.
func (d *Daemon) Start() error {
	d.ipc = ipc.NewServer(d.opts.SocketPath, d.opts.StorePath, d.broker, d.logger)
	if err := d.ipc.Start(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel

	if d.opts.HTTPListen != "" {
		ln, err := net.Listen("tcp", d.opts.HTTPListen)
		if err != nil {
			cancel()
			d.ipc.Stop()
			return fmt.Errorf("failed to listen on %s: %w", d.opts.HTTPListen, err)
		}
		d.httpLn = ln
		d.http = httpapi.NewServer(d.broker, d.logger)
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			if err := d.http.Serve(ln); err != nil {
				d.logger.Error("HTTP API stopped", "error", err)
			}
		}()
	}

	if d.opts.ReconcileInterval > 0 && d.opts.ListWindows != nil {
		r := NewReconciler(ReconcilerConfig{
			Interval: d.opts.ReconcileInterval,
			Logger:   d.logger,
		}, d.broker.NewContext(), d.opts.ListWindows)
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			r.Run(ctx)
		}()
	}

	d.logger.Info("daemon started", "socket", d.opts.SocketPath, "store", d.opts.StorePath)
	return nil
}

// Stop shuts everything down and releases the store file.
func (d *Daemon) Stop() {
	if d.cancel != nil {
		d.cancel()
	}
	if d.http != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := d.http.Shutdown(shutdownCtx); err != nil {
			d.logger.Warn("HTTP shutdown", "error", err)
		}
		cancel()
	}
	if d.ipc != nil {
		d.ipc.Stop()
	}
	d.wg.Wait()
	if err := d.broker.Close(); err != nil {
		d.logger.Warn("failed to close store", "error", err)
	}
	d.logger.Info("daemon stopped")
}

// Run starts the daemon and blocks until ctx is done.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.Start(); err != nil {
		d.broker.Close()
		return err
	}
	<-ctx.Done()
	d.Stop()
	return nil
}
