package node

import (
	"bytes"
	"context"
	"errors"

	"github.com/1ureka/netlayer/internal/link"
	"github.com/1ureka/netlayer/internal/metrics"
	"github.com/1ureka/netlayer/internal/network"
	"github.com/1ureka/netlayer/internal/protocol"
	"github.com/1ureka/netlayer/internal/util"
)

// event is one unit of work for the dispatch goroutine: a chunk read from
// a link, a link shutdown, or a client send.
type event struct {
	link   link.Link
	chunk  []byte
	closed bool

	send *sendRequest
}

type sendRequest struct {
	destination protocol.Address
	payload     []byte
	result      chan error
}

// dispatch is the only goroutine that touches the layer and the receive
// buffers.
func (n *Node) dispatch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-n.events:
			n.handle(ev)
		}
	}
}

func (n *Node) handle(ev event) {
	switch {
	case ev.send != nil:
		o, err := n.layer.Send(ev.send.destination, ev.send.payload)
		n.observe(o, err)
		ev.send.result <- err

	case ev.closed:
		delete(n.buffers, ev.link.ID())

	default:
		select {
		case <-ev.link.Done():
			return // late chunk of a closed link
		default:
		}

		n.metrics.BytesReceived.Add(float64(len(ev.chunk)))
		util.Stats.AddRecv(len(ev.chunk))

		buf, ok := n.buffers[ev.link.ID()]
		if !ok {
			buf = new(bytes.Buffer)
			n.buffers[ev.link.ID()] = buf
		}
		buf.Write(ev.chunk)

		if err := n.layer.Receive(buf, n.observe); err != nil {
			n.observe(network.Dropped, err)
			util.LogWarning("[link %s] closing link to %s: %v", ev.link.ID(), ev.link.Peer(), err)
			delete(n.buffers, ev.link.ID())
			ev.link.Close()
		}
	}
}

// observe records one dispatch result.
func (n *Node) observe(o network.Outcome, err error) {
	n.metrics.Observe(o, err)

	switch o {
	case network.Delivered:
		util.Stats.AddDelivered()
	case network.Forwarded:
		util.Stats.AddForwarded()
	default:
		util.Stats.AddDropped()
	}

	switch {
	case err == nil:
	case errors.Is(err, network.ErrNoRoute):
		util.LogDebug("[host %s] dropped: %v", n.cfg.Address, err)
	case metrics.PacketOutcome(o, err) == metrics.OutcomeLinkError:
		util.LogWarning("[host %s] dropped: %v", n.cfg.Address, err)
	}
}

// environment exposes the node to its layer.
type environment struct{ n *Node }

func (e environment) SelfAddress() protocol.Address { return e.n.cfg.Address }

func (e environment) Addresses() []protocol.Address { return e.n.table.Addresses() }

func (e environment) LinkFor(addr protocol.Address) (network.Link, bool) {
	l, ok := e.n.table.LinkFor(addr)
	if !ok {
		return nil, false
	}
	return meteredLink{Link: l, n: e.n}, true
}

func (e environment) Receive(payload []byte) { e.n.client.Receive(payload) }

// meteredLink counts the bytes of every successful send.
type meteredLink struct {
	network.Link
	n *Node
}

func (m meteredLink) Send(packet []byte) error {
	if err := m.Link.Send(packet); err != nil {
		return err
	}
	m.n.metrics.BytesSent.Add(float64(len(packet)))
	util.Stats.AddSent(len(packet))
	return nil
}
