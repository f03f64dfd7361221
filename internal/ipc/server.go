package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/1broseidon/windowsync/internal/store"
)

// Server exposes a store.Broker over a unix socket. Each client names its
// origin on every write, so the broker can keep writers from being notified
// of their own changes.
type Server struct {
	socketPath string
	storePath  string
	listener   net.Listener
	broker     *store.Broker
	logger     *slog.Logger
	startTime  time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	shuttingDown bool
	shutdownMu   sync.Mutex
}

// NewServer creates a server for broker on socketPath. storePath is only
// reported in status.
func NewServer(socketPath, storePath string, broker *store.Broker, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	// Remove existing socket if present
	os.Remove(socketPath)

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		socketPath: socketPath,
		storePath:  storePath,
		broker:     broker,
		logger:     logger,
		startTime:  time.Now(),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start begins listening for IPC connections
func (s *Server) Start() error {
	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to create IPC socket: %w", err)
	}
	s.listener = listener

	// Set socket permissions
	if err := os.Chmod(s.socketPath, 0600); err != nil {
		listener.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	s.logger.Info("IPC server listening", "socket", s.socketPath)

	s.wg.Add(1)
	go s.acceptLoop()

	return nil
}

// Stop closes the listener, ends every watch stream and removes the socket.
func (s *Server) Stop() {
	s.shutdownMu.Lock()
	if s.shuttingDown {
		s.shutdownMu.Unlock()
		return
	}
	s.shuttingDown = true
	s.shutdownMu.Unlock()

	s.cancel()
	if s.listener != nil {
		s.listener.Close()
	}
	s.wg.Wait()
	os.Remove(s.socketPath)
}

// acceptLoop accepts incoming connections
func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			s.shutdownMu.Lock()
			stopping := s.shuttingDown
			s.shutdownMu.Unlock()
			if stopping {
				return
			}
			s.logger.Warn("IPC accept error", "error", err)
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(conn)
		}()
	}
}

// handleConnection handles a single IPC connection
func (s *Server) handleConnection(conn net.Conn) {
	defer conn.Close()

	reader := bufio.NewReader(conn)

	// Read the request (expect JSON on a single line)
	data, err := reader.ReadBytes('\n')
	if err != nil && err != io.EOF {
		s.logger.Warn("IPC read error", "error", err)
		return
	}

	req, err := ParseRequest(data)
	if err != nil {
		s.writeResponse(conn, NewErrorResponse(fmt.Sprintf("Invalid request: %v", err)))
		return
	}

	if req.Command == CommandWatch {
		s.handleWatch(conn, reader, req.Payload)
		return
	}

	s.writeResponse(conn, s.handleCommand(req))
}

func (s *Server) writeResponse(conn net.Conn, resp *Response) bool {
	respData, err := resp.Marshal()
	if err != nil {
		s.logger.Warn("failed to marshal response", "error", err)
		return false
	}
	respData = append(respData, '\n')
	if _, err := conn.Write(respData); err != nil {
		s.logger.Debug("failed to send response", "error", err)
		return false
	}
	return true
}

// handleCommand processes an IPC command and returns a response
func (s *Server) handleCommand(req *Request) *Response {
	switch req.Command {
	case CommandGet:
		return s.handleGet(req.Payload)
	case CommandSet:
		return s.handleSet(req.Payload)
	case CommandClear:
		return s.handleClear(req.Payload)
	case CommandGetStatus:
		return s.handleGetStatus()
	default:
		return NewErrorResponse(fmt.Sprintf("Unknown command: %s", req.Command))
	}
}

func (s *Server) handleGet(raw json.RawMessage) *Response {
	var payload GetPayload
	if err := decodePayload(raw, &payload); err != nil {
		return NewErrorResponse(err.Error())
	}

	value, ok, err := s.broker.Context("").Get(s.ctx, payload.Key)
	if err != nil {
		return NewErrorResponse(err.Error())
	}
	resp, err := NewOKResponse(GetData{Value: value, Present: ok})
	if err != nil {
		return NewErrorResponse(err.Error())
	}
	return resp
}

func (s *Server) handleSet(raw json.RawMessage) *Response {
	var payload SetPayload
	if err := decodePayload(raw, &payload); err != nil {
		return NewErrorResponse(err.Error())
	}

	if err := s.broker.Context(payload.Origin).Set(s.ctx, payload.Key, payload.Value); err != nil {
		return NewErrorResponse(err.Error())
	}
	resp, _ := NewOKResponse(nil)
	return resp
}

func (s *Server) handleClear(raw json.RawMessage) *Response {
	var payload ClearPayload
	if len(raw) > 0 {
		if err := decodePayload(raw, &payload); err != nil {
			return NewErrorResponse(err.Error())
		}
	}

	if err := s.broker.Context(payload.Origin).Clear(s.ctx); err != nil {
		return NewErrorResponse(err.Error())
	}
	s.logger.Info("store cleared", "origin", payload.Origin)
	resp, _ := NewOKResponse(nil)
	return resp
}

// handleGetStatus returns current daemon status
func (s *Server) handleGetStatus() *Response {
	status := StatusData{
		DaemonRunning: true,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Watchers:      s.broker.Watchers(),
		StorePath:     s.storePath,
	}

	resp, _ := NewOKResponse(status)
	return resp
}

// handleWatch streams changes until the client disconnects or the server
// stops.
func (s *Server) handleWatch(conn net.Conn, reader *bufio.Reader, raw json.RawMessage) {
	var payload WatchPayload
	if err := decodePayload(raw, &payload); err != nil {
		s.writeResponse(conn, NewErrorResponse(err.Error()))
		return
	}
	if payload.Origin == "" {
		payload.Origin = uuid.NewString()
	}

	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	// Clients never send after WATCH; a read returning means they hung up.
	go func() {
		io.Copy(io.Discard, reader)
		cancel()
	}()

	changes, err := s.broker.Context(payload.Origin).Watch(ctx, payload.Key)
	if err != nil {
		s.writeResponse(conn, NewErrorResponse(err.Error()))
		return
	}

	resp, _ := NewOKResponse(nil)
	if !s.writeResponse(conn, resp) {
		return
	}
	s.logger.Debug("watch started", "key", payload.Key, "origin", payload.Origin)

	enc := json.NewEncoder(conn)
	for c := range changes {
		if err := enc.Encode(c); err != nil {
			s.logger.Debug("watch stream closed", "origin", payload.Origin, "error", err)
			return
		}
	}
}
