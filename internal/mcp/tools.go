package mcp

import (
	"context"
	"fmt"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/1broseidon/windowsync/internal/registry"
)

func (s *Server) handleListPeers(ctx context.Context, _ *mcpsdk.CallToolRequest, _ ListPeersInput) (*mcpsdk.CallToolResult, ListPeersOutput, error) {
	peers := s.adapter.Snapshot(ctx)
	if peers == nil {
		peers = registry.Snapshot{}
	}
	out := ListPeersOutput{
		Peers:   peers,
		Count:   len(peers),
		Counter: s.adapter.Counter(ctx),
	}
	s.logger.Debug("list_peers", "count", out.Count)
	return nil, out, nil
}

func (s *Server) handleGetPeer(ctx context.Context, _ *mcpsdk.CallToolRequest, args GetPeerInput) (*mcpsdk.CallToolResult, GetPeerOutput, error) {
	if args.ID <= 0 {
		return nil, GetPeerOutput{}, fmt.Errorf("id must be a positive integer")
	}
	peers := s.adapter.Snapshot(ctx)
	i := peers.Index(args.ID)
	if i < 0 {
		return nil, GetPeerOutput{}, fmt.Errorf("window %d is not registered (registered: %v)", args.ID, peers.IDs())
	}
	return nil, GetPeerOutput{Peer: peers[i], Position: i}, nil
}
