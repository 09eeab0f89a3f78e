package node

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/1ureka/netlayer/internal/config"
	"github.com/1ureka/netlayer/internal/link"
	"github.com/1ureka/netlayer/internal/signaling"
	"github.com/1ureka/netlayer/internal/util"
)

// Handler serves /link (WebSocket links), /rtc (WebRTC signaling) and
// /metrics.
func (n *Node) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/link", n.handleLink)
	mux.HandleFunc("/rtc", n.handleRTC)
	mux.Handle("/metrics", n.metrics.Handler())
	return mux
}

func (n *Node) handleLink(w http.ResponseWriter, r *http.Request) {
	conn, err := n.upgrader.Upgrade(w, r, nil)
	if err != nil {
		util.LogError("[host %s] failed to upgrade WS: %v", n.cfg.Address, err)
		return
	}

	peer, err := link.Handshake(conn, n.cfg.Address)
	if err != nil {
		util.LogWarning("[host %s] handshake with %s failed: %v", n.cfg.Address, r.RemoteAddr, err)
		conn.Close()
		return
	}
	if peer == n.cfg.Address {
		util.LogWarning("[host %s] rejected link from itself", n.cfg.Address)
		conn.Close()
		return
	}

	n.register(link.NewWS(conn, peer, n.maxMessage(), n.receive), peer)
}

func (n *Node) handleRTC(w http.ResponseWriter, r *http.Request) {
	conn, err := n.upgrader.Upgrade(w, r, nil)
	if err != nil {
		util.LogError("[host %s] failed to upgrade WS: %v", n.cfg.Address, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), signalingTimeout)
	defer cancel()

	l, err := signaling.Accept(ctx, conn, n.cfg.Address, n.signalingOptions())
	if err != nil {
		util.LogWarning("[host %s] signaling with %s failed: %v", n.cfg.Address, r.RemoteAddr, err)
		return
	}
	n.register(l, l.Peer())
}

func (n *Node) signalingOptions() signaling.Options {
	return signaling.Options{STUNServers: n.cfg.STUNServers, Receive: n.receive}
}

// maintain keeps a link to p up until ctx ends, redialing after every
// failure or disconnect. While a live link exists it only dials when this
// host is the preferred dialer and the current link is not its own.
func (n *Node) maintain(ctx context.Context, p config.Peer) {
	for {
		if cur, ok := n.table.Get(p.Address); ok && n.settled(cur) {
			select {
			case <-cur.Done():
				continue
			case <-ctx.Done():
				return
			}
		}

		l, err := n.dial(ctx, p)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			util.LogWarning("[host %s] dial %s at %s: %v", n.cfg.Address, p.Address, p.URL, err)
		} else if n.register(l, n.cfg.Address) {
			select {
			case <-l.Done():
			case <-ctx.Done():
				return
			}
		}

		select {
		case <-time.After(n.cfg.ReconnectInterval):
		case <-ctx.Done():
			return
		}
	}
}

// settled reports whether cur is live and need not be replaced by a dial
// from this host.
func (n *Node) settled(cur link.Link) bool {
	select {
	case <-cur.Done():
		return false
	default:
	}
	return n.preferred(cur) || n.cfg.Address > cur.Peer()
}

// dial establishes one link to p and checks that the far end is the
// configured host.
func (n *Node) dial(ctx context.Context, p config.Peer) (link.Link, error) {
	var l link.Link

	switch p.Kind {
	case config.KindRTC:
		sCtx, cancel := context.WithTimeout(ctx, signalingTimeout)
		defer cancel()
		rtc, err := signaling.Dial(sCtx, p.URL, n.cfg.Address, n.signalingOptions())
		if err != nil {
			return nil, err
		}
		l = rtc

	default:
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, p.URL, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to connect: %w", err)
		}
		peer, err := link.Handshake(conn, n.cfg.Address)
		if err != nil {
			conn.Close()
			return nil, err
		}
		if peer != p.Address {
			conn.Close()
			return nil, fmt.Errorf("expected host %s, reached %s", p.Address, peer)
		}
		l = link.NewWS(conn, peer, n.maxMessage(), n.receive)
	}

	if l.Peer() != p.Address {
		l.Close()
		return nil, fmt.Errorf("expected host %s, reached %s", p.Address, l.Peer())
	}
	return l, nil
}
