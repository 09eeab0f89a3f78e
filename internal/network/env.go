// Package network implements the routing layer of a host: it frames
// outbound payloads, reassembles packets from link byte streams, and either
// delivers them to the local client or forwards them over a randomly chosen
// link.
package network

import "github.com/1ureka/netlayer/internal/protocol"

// Link is an outbound point-to-point channel to one peer.
type Link interface {
	// Send hands a complete packet to the link for transmission.
	Send(packet []byte) error
}

// LinkTable is a read-only view of the peers this host can reach directly.
type LinkTable interface {
	// Addresses returns a snapshot of the known peer addresses. The caller
	// owns the returned slice.
	Addresses() []protocol.Address
	LinkFor(addr protocol.Address) (Link, bool)
}

// Client consumes payloads addressed to this host.
type Client interface {
	Receive(payload []byte)
}

// Environment is everything a Layer needs from the surrounding host.
// Implementations must make LinkTable safe to read from the goroutine that
// drives the Layer.
type Environment interface {
	SelfAddress() protocol.Address
	LinkTable
	Client
}

// ReceiveBuffer is the accumulating byte stream of one link. *bytes.Buffer
// satisfies it.
type ReceiveBuffer interface {
	Len() int
	Bytes() []byte
	Next(n int) []byte
}
