// Package httpapi exposes the shared registry to renderers that do not run
// inside a windowsync process: a JSON view of the peers and a websocket that
// pushes the snapshot whenever the set of windows changes.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/1broseidon/windowsync/internal/registry"
	"github.com/1broseidon/windowsync/internal/store"
)

const writeTimeout = 5 * time.Second

// Event is one websocket message.
type Event struct {
	// Type is "snapshot" for the initial message and "peers" for changes.
	Type  string            `json:"type"`
	Peers registry.Snapshot `json:"peers"`
}

// Status is the /api/status body.
type Status struct {
	UptimeSeconds int64 `json:"uptime_seconds"`
	Watchers      int   `json:"watchers"`
	Peers         int   `json:"peers"`
	Counter       int   `json:"counter"`
}

// Server serves the HTTP API for a broker.
type Server struct {
	broker    *store.Broker
	adapter   *registry.Adapter
	logger    *slog.Logger
	startTime time.Time
	upgrader  websocket.Upgrader
	http      *http.Server

	// ctx ends every websocket stream on Shutdown; hijacked connections are
	// not tracked by http.Server.
	ctx    context.Context
	cancel context.CancelFunc
}

// NewServer creates a server reading through broker.
func NewServer(broker *store.Broker, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		ctx:       ctx,
		cancel:    cancel,
		broker:    broker,
		adapter:   registry.NewAdapter(broker.NewContext(), logger),
		logger:    logger,
		startTime: time.Now(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	s.http = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/api/peers", s.handlePeers).Methods(http.MethodGet)
	r.HandleFunc("/api/peers/{id:[0-9]+}", s.handlePeer).Methods(http.MethodGet)
	r.HandleFunc("/api/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/ws", s.handleWS)
	return r
}

// Serve accepts connections on l until Shutdown.
func (s *Server) Serve(l net.Listener) error {
	s.logger.Info("HTTP API listening", "addr", l.Addr().String())
	if err := s.http.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown stops the server and ends open websocket streams.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()
	return s.http.Shutdown(ctx)
}

func (s *Server) handlePeers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.adapter.Snapshot(r.Context()))
}

func (s *Server) handlePeer(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	rec, ok := s.adapter.Snapshot(r.Context()).Find(id)
	if !ok {
		http.Error(w, fmt.Sprintf("window %d is not registered", id), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Status{
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Watchers:      s.broker.Watchers(),
		Peers:         len(s.adapter.Snapshot(r.Context())),
		Counter:       s.adapter.Counter(r.Context()),
	})
}

// handleWS streams the snapshot. Writes happen only on this goroutine; the
// reader goroutine exists to notice the peer going away.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	st := s.broker.NewContext()
	adapter := registry.NewAdapter(st, s.logger)
	if ClearRequested(r.URL.Query().Get("clear"), r.URL.Query().Has("clear")) {
		s.logger.Info("clearing shared store", "origin", st.Origin(), "remote", r.RemoteAddr)
		if err := adapter.Clear(ctx); err != nil {
			s.logger.Warn("failed to clear store", "error", err)
		}
	}

	changes, err := st.Watch(ctx, registry.KeyWindows)
	if err != nil {
		s.logger.Warn("websocket watch failed", "error", err)
		return
	}

	initial := adapter.Snapshot(ctx)
	notifier := registry.NewNotifier(initial, s.logger)
	if err := writeEvent(conn, Event{Type: "snapshot", Peers: initial}); err != nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-changes:
			if !ok {
				return
			}
			if !notifier.Handle(c) {
				continue
			}
			if err := writeEvent(conn, Event{Type: "peers", Peers: notifier.Last()}); err != nil {
				s.logger.Debug("websocket write failed", "error", err)
				return
			}
		}
	}
}

// ClearRequested reports whether a clear query parameter asks for a wipe.
// A bare "?clear" counts; "0", "false" and "no" do not.
func ClearRequested(value string, present bool) bool {
	if !present {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "0", "false", "no", "off":
		return false
	}
	return true
}

func writeEvent(conn *websocket.Conn, ev Event) error {
	if ev.Peers == nil {
		ev.Peers = registry.Snapshot{}
	}
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(ev)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
