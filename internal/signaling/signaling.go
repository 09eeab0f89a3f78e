package signaling

import (
	"context"
	"errors"
	"fmt"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"

	"github.com/1ureka/netlayer/internal/link"
	"github.com/1ureka/netlayer/internal/protocol"
	"github.com/1ureka/netlayer/internal/util"
)

// Options configures the RTC link built during signaling.
type Options struct {
	STUNServers []string
	Receive     link.ReceiveFunc
}

// Dial executes the offering side of signaling:
//  1. Connect to the peer's signaling endpoint
//  2. Exchange host addresses
//  3. Create the RTC link and send the offer
//  4. Trickle ICE candidates until both DataChannels are open
//  5. Close the WS connection and return the ready link
func Dial(ctx context.Context, url string, self protocol.Address, opts Options) (*link.RTC, error) {
	wsConn, err := connect(ctx, url)
	if err != nil {
		return nil, err
	}
	defer wsConn.Close()

	return establish(ctx, wsConn, self, opts, true)
}

// Accept executes the answering side of signaling on an upgraded
// WebSocket. The connection is closed before Accept returns.
func Accept(ctx context.Context, wsConn *websocket.Conn, self protocol.Address, opts Options) (*link.RTC, error) {
	defer wsConn.Close()

	return establish(ctx, wsConn, self, opts, false)
}

// establish runs one side of signaling. It returns once the local
// DataChannel is open and the peer has reported ready, or the socket has
// failed after the local channel opened. A socket failure before that is
// not fatal: candidates may already be exchanged, so the wait continues
// until the link opens, dies or ctx ends.
func establish(ctx context.Context, wsConn *websocket.Conn, self protocol.Address, opts Options, offer bool) (*link.RTC, error) {
	s := &sender{self: self, conn: wsConn}

	peer, err := exchangeHello(s)
	if err != nil {
		return nil, err
	}
	util.LogDebug("[host %s] signaling with %s", self, peer)

	// The link outlives the signaling deadline; Close ends it.
	tr, err := link.NewRTC(context.WithoutCancel(ctx), peer, opts.STUNServers, opts.Receive)
	if err != nil {
		return nil, fmt.Errorf("failed to create RTC link: %w", err)
	}
	s.tr = tr
	r := &receiver{tr: tr, conn: wsConn, sender: s, peerReady: make(chan struct{})}

	tr.OnICECandidate(s.candidate)

	errCh := make(chan error, 1)
	go func(out chan<- error) {
		out <- r.watch() // exits once wsConn is closed
	}(errCh)

	if offer {
		if err := s.describe(webrtc.SDPTypeOffer); err != nil {
			tr.Close()
			return nil, fmt.Errorf("failed to send offer: %w", err)
		}
	}

	var (
		localOpen, peerReady bool
		wsErr                error
		ready                = tr.Ready()
		peerReadyCh          = r.peerReady
	)
	for !localOpen || (!peerReady && wsErr == nil) {
		select {
		case <-ready:
			ready, localOpen = nil, true
			if err := s.ready(); err != nil && wsErr == nil {
				wsErr = err
			}

		case <-peerReadyCh:
			peerReadyCh, peerReady = nil, true

		case err := <-errCh:
			errCh, wsErr = nil, err
			util.LogDebug("[link %s] signaling socket to %s ended: %v", tr.ID(), peer, err)

		case <-tr.Done():
			tr.Close()
			return nil, fmt.Errorf("link to %s closed during signaling (%v)", peer, tr.ConnectionState())

		case <-ctx.Done():
			tr.Close()
			if wsErr != nil {
				return nil, fmt.Errorf("signaling failed: %w", errors.Join(ctx.Err(), wsErr))
			}
			return nil, ctx.Err()
		}
	}

	util.LogDebug("[link %s] DataChannel established with %s, closing WS", tr.ID(), peer)
	return tr, nil
}

// exchangeHello sends this host's address and reads the peer's.
func exchangeHello(s *sender) (protocol.Address, error) {
	if err := s.hello(); err != nil {
		return 0, fmt.Errorf("failed to send hello: %w", err)
	}

	var msg message
	if err := s.conn.ReadJSON(&msg); err != nil {
		return 0, fmt.Errorf("failed to read hello: %w", err)
	}
	if msg.Type != msgTypeHello {
		return 0, fmt.Errorf("expected hello, got %q", msg.Type)
	}
	return msg.Address, nil
}

// connect dials the given WebSocket URL and returns the connection.
func connect(ctx context.Context, url string) (*websocket.Conn, error) {
	dialer := websocket.DefaultDialer
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to WS server: %w", err)
	}
	return conn, nil
}
