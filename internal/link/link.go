// Package link provides the point-to-point channels a host uses to reach its
// direct peers, and the table that maps peer addresses to them.
package link

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gorilla/websocket"

	"github.com/1ureka/netlayer/internal/network"
	"github.com/1ureka/netlayer/internal/protocol"
)

// Link kinds.
const (
	KindMemory = "memory"
	KindWS     = "ws"
	KindRTC    = "rtc"
)

var (
	// ErrClosed is returned by Send once a link has shut down.
	ErrClosed = errors.New("link closed")
	// ErrSendBufferFull is returned by Send while the peer is not keeping up.
	ErrSendBufferFull = errors.New("link send buffer full")
)

// Link is a live channel to exactly one peer.
type Link interface {
	network.Link

	// ID is unique per link instance, also across reconnects to the same peer.
	ID() string
	Peer() protocol.Address
	Kind() string

	// Done is closed when the link has shut down for any reason.
	Done() <-chan struct{}
	Close() error
}

// ReceiveFunc is invoked for every chunk of bytes read from a link. Chunks
// follow the order in which the peer sent them but carry no packet
// boundaries. fn must not retain chunk after returning unless it owns it;
// all links in this package hand over a fresh slice.
type ReceiveFunc func(l Link, chunk []byte)

// enqueue hands packet to a writer goroutine without blocking.
func enqueue(ctx context.Context, inbox chan<- []byte, packet []byte) error {
	if ctx.Err() != nil {
		return ErrClosed
	}
	select {
	case inbox <- packet:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Hello is the first message on a WebSocket link; it announces the sender's
// host address.
type Hello struct {
	Address protocol.Address `json:"address"`
}

// Handshake sends this host's Hello and reads the peer's. Both sides may
// call it concurrently.
func Handshake(conn *websocket.Conn, self protocol.Address) (protocol.Address, error) {
	if err := conn.WriteJSON(Hello{Address: self}); err != nil {
		return 0, fmt.Errorf("failed to send hello: %w", err)
	}

	typ, data, err := conn.ReadMessage()
	if err != nil {
		return 0, fmt.Errorf("failed to read hello: %w", err)
	}
	if typ != websocket.TextMessage {
		return 0, fmt.Errorf("unexpected hello message type %d", typ)
	}

	var hello Hello
	if err := json.Unmarshal(data, &hello); err != nil {
		return 0, fmt.Errorf("invalid hello: %w", err)
	}
	return hello.Address, nil
}
