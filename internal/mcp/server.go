// Package mcp serves read-only MCP tools that let an agent inspect which
// windows are registered and where they are.
package mcp

import (
	"context"
	"io"
	"log/slog"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/1broseidon/windowsync/internal/registry"
	"github.com/1broseidon/windowsync/internal/store"
)

const (
	ServerName    = "windowsync"
	ServerVersion = "0.1.0"
)

// Server is the MCP server for registry introspection.
type Server struct {
	mcpServer *mcpsdk.Server
	adapter   *registry.Adapter
	logger    *slog.Logger
}

// NewServer creates a server reading the registry from st.
func NewServer(st store.Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Server{
		adapter: registry.NewAdapter(st, logger),
		logger:  logger,
	}
	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    ServerName,
			Version: ServerVersion,
		},
		nil,
	)
	s.registerTools()
	return s
}

// Run starts the MCP server on stdio transport, blocking until done.
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

// Connect serves a single session over t.
func (s *Server) Connect(ctx context.Context, t mcpsdk.Transport) (*mcpsdk.ServerSession, error) {
	return s.mcpServer.Connect(ctx, t, nil)
}

func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "list_peers",
		Description: "List every registered window in join order with its id, shape (x, y, w, h in screen pixels) and metadata. Also returns the join counter, the highest id ever handed out.",
	}, s.handleListPeers)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "get_peer",
		Description: "Get one registered window by id. Fails if no window with that id is currently registered.",
	}, s.handleGetPeer)
}
