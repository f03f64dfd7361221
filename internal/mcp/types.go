package mcp

import "github.com/1broseidon/windowsync/internal/registry"

// ListPeersInput takes no arguments.
type ListPeersInput struct{}

// ListPeersOutput is the result of list_peers.
type ListPeersOutput struct {
	Peers   []registry.Record `json:"peers"`
	Count   int               `json:"count"`
	Counter int               `json:"counter" jsonschema:"Highest id handed out since the store was last cleared"`
}

// GetPeerInput selects a window.
type GetPeerInput struct {
	ID int `json:"id" jsonschema:"Window id as reported by list_peers"`
}

// GetPeerOutput is the result of get_peer.
type GetPeerOutput struct {
	Peer     registry.Record `json:"peer"`
	Position int             `json:"position" jsonschema:"Zero-based position in join order"`
}
