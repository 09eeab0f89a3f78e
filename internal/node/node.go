// Package node runs one host: a network layer over a link table, an HTTP
// listener that accepts links, dialers for configured peers and the single
// goroutine that owns every layer call.
package node

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/1ureka/netlayer/internal/config"
	"github.com/1ureka/netlayer/internal/link"
	"github.com/1ureka/netlayer/internal/metrics"
	"github.com/1ureka/netlayer/internal/network"
	"github.com/1ureka/netlayer/internal/protocol"
	"github.com/1ureka/netlayer/internal/util"
)

const (
	eventQueueSize   = 256
	signalingTimeout = 30 * time.Second
	shutdownTimeout  = 5 * time.Second
)

// ErrStopped is returned by Send once Run has returned.
var ErrStopped = errors.New("node stopped")

// Node is one host of the overlay.
type Node struct {
	cfg     config.Node
	client  network.Client
	table   *link.Table
	layer   *network.Layer
	metrics *metrics.Metrics

	events chan event
	done   chan struct{}

	// Owned by the dispatch goroutine.
	buffers map[string]*bytes.Buffer

	upgrader websocket.Upgrader
}

// New builds a node from a validated config. client receives every payload
// addressed to this host.
func New(cfg config.Node, client network.Client, opts ...network.Option) (*Node, error) {
	if client == nil {
		return nil, fmt.Errorf("node %s: nil client", cfg.Address)
	}
	cfg.InitDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	n := &Node{
		cfg:     cfg,
		client:  client,
		table:   link.NewTable(),
		metrics: metrics.New(),
		events:  make(chan event, eventQueueSize),
		done:    make(chan struct{}),
		buffers: make(map[string]*bytes.Buffer),
	}
	opts = append([]network.Option{network.WithMaxPayload(cfg.MaxPayload)}, opts...)
	n.layer = network.NewLayer(environment{n}, opts...)
	return n, nil
}

func (n *Node) Address() protocol.Address { return n.cfg.Address }

func (n *Node) Metrics() *metrics.Metrics { return n.metrics }

// Peers returns the addresses of the currently linked hosts.
func (n *Node) Peers() []protocol.Address { return n.table.Addresses() }

// Run serves and dials until ctx is cancelled, then closes every link.
func (n *Node) Run(ctx context.Context) error {
	defer close(n.done)

	g, ctx := errgroup.WithContext(ctx)

	// ── Dispatch ───────────────────────────────────────────────────────
	g.Go(func() error {
		n.dispatch(ctx)
		return nil
	})

	// ── Listener ───────────────────────────────────────────────────────
	if n.cfg.Listen != "" {
		srv := &http.Server{Addr: n.cfg.Listen, Handler: n.Handler()}
		g.Go(func() error {
			util.LogInfo("[host %s] listening on %s", n.cfg.Address, n.cfg.Listen)
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("listener: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	// ── Dialers ────────────────────────────────────────────────────────
	for _, p := range n.cfg.Peers {
		g.Go(func() error {
			n.maintain(ctx, p)
			return nil
		})
	}

	// ── Stats ──────────────────────────────────────────────────────────
	if n.cfg.StatsInterval > 0 {
		util.StartStatsReporter(ctx, n.cfg.StatsInterval)
	}

	err := g.Wait()
	return errors.Join(err, n.table.Close())
}

// Send hands payload to the dispatch goroutine and waits for the result.
// A payload addressed to this host is delivered to the local client.
func (n *Node) Send(ctx context.Context, destination protocol.Address, payload []byte) error {
	req := &sendRequest{destination: destination, payload: payload, result: make(chan error, 1)}

	select {
	case n.events <- event{send: req}:
	case <-ctx.Done():
		return ctx.Err()
	case <-n.done:
		return ErrStopped
	}

	select {
	case err := <-req.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-n.done:
		return ErrStopped
	}
}

// dialed tags a link with the host that dialed it.
type dialed struct {
	link.Link
	dialer protocol.Address
}

// preferred reports whether l was dialed by the lower of the two
// addresses. When both hosts dial each other, that link is the one kept.
func (n *Node) preferred(l link.Link) bool {
	d, ok := l.(dialed)
	return ok && d.dialer == min(n.cfg.Address, l.Peer())
}

// register adds an established link to the table and reports its shutdown
// to the dispatch goroutine. A link that loses the tie-break against a
// live preferred link is closed and register returns false.
func (n *Node) register(l link.Link, dialer protocol.Address) bool {
	d := dialed{Link: l, dialer: dialer}
	ok := n.table.Offer(d, func(cur link.Link) bool {
		return !n.preferred(d) && n.preferred(cur)
	})
	if !ok {
		util.LogDebug("[host %s] keeping existing link to %s, dropping %s dialed by %s",
			n.cfg.Address, l.Peer(), l.ID(), dialer)
		l.Close()
		n.enqueue(event{link: l, closed: true})
		return false
	}

	n.metrics.Links.Inc()
	util.LogSuccess("[host %s] %s link %s up to %s", n.cfg.Address, l.Kind(), l.ID(), l.Peer())

	go func() {
		<-l.Done()
		n.metrics.Links.Dec()
		util.LogInfo("[host %s] link %s to %s down", n.cfg.Address, l.ID(), l.Peer())
		n.enqueue(event{link: l, closed: true})
	}()
	return true
}

// receive is the link.ReceiveFunc of every link this node owns.
func (n *Node) receive(l link.Link, chunk []byte) {
	n.enqueue(event{link: l, chunk: chunk})
}

func (n *Node) enqueue(ev event) {
	select {
	case n.events <- ev:
	case <-n.done:
	}
}

func (n *Node) maxMessage() int64 {
	return int64(protocol.HeaderSize + n.cfg.MaxPayload)
}
