package network

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/1ureka/netlayer/internal/protocol"
	"github.com/1ureka/netlayer/internal/util"
)

// ErrNoRoute is returned when a packet must be forwarded but the host has no
// links. The packet is dropped.
var ErrNoRoute = errors.New("no route")

// Outcome is what happened to one packet handed to the Layer.
type Outcome int

const (
	Dropped Outcome = iota
	Delivered
	Forwarded
)

func (o Outcome) String() string {
	switch o {
	case Delivered:
		return "delivered"
	case Forwarded:
		return "forwarded"
	default:
		return "dropped"
	}
}

// Option configures a Layer.
type Option func(*Layer)

// WithRand sets the randomness used by the router.
func WithRand(src rand.Source) Option {
	return func(l *Layer) { l.router = NewRouter(src) }
}

// WithMaxPayload bounds the length field accepted on receive.
func WithMaxPayload(n int) Option {
	return func(l *Layer) { l.extractor.MaxPayload = n }
}

// Layer is the network layer of one host. It must be driven from a single
// goroutine.
type Layer struct {
	env       Environment
	self      protocol.Address
	router    *Router
	extractor Extractor
}

// NewLayer creates a Layer for the host described by env. The host address
// is read once here and never again.
func NewLayer(env Environment, opts ...Option) *Layer {
	l := &Layer{
		env:  env,
		self: env.SelfAddress(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.router == nil {
		l.router = NewRouter(nil)
	}
	return l
}

// Address returns the host address the Layer stamps on outbound packets.
func (l *Layer) Address() protocol.Address {
	return l.self
}

// CreatePacket frames payload for destination with this host as source.
func (l *Layer) CreatePacket(destination protocol.Address, payload []byte) []byte {
	packet := protocol.CreatePacket(l.self, destination, payload)
	util.LogTrace("[host %s] framed %d bytes for %s", l.self, len(payload), destination)
	return packet
}

// Send frames payload and dispatches it like any received packet: a packet
// for this host is delivered locally, anything else is routed.
func (l *Layer) Send(destination protocol.Address, payload []byte) (Outcome, error) {
	return l.ProcessPacket(l.CreatePacket(destination, payload))
}

// ProcessPacket delivers packet to the client when this host is its
// destination, and otherwise forwards the unmodified bytes over a link
// chosen by the router.
func (l *Layer) ProcessPacket(packet []byte) (Outcome, error) {
	if len(packet) < protocol.HeaderSize {
		return Dropped, fmt.Errorf("%w: %d bytes", protocol.ErrShortHeader, len(packet))
	}

	destination := protocol.Address(protocol.DecodeField(packet, protocol.DestinationOffset))
	if destination == l.self {
		l.env.Receive(packet[protocol.HeaderSize:])
		util.LogDebug("[host %s] delivered %d bytes", l.self, len(packet)-protocol.HeaderSize)
		return Delivered, nil
	}

	link, ok := l.router.Route(l.env, destination)
	if !ok {
		return Dropped, fmt.Errorf("%w to %s", ErrNoRoute, destination)
	}
	if err := link.Send(packet); err != nil {
		return Dropped, fmt.Errorf("forward to %s: %w", destination, err)
	}
	util.LogTrace("[host %s] forwarded packet for %s", l.self, destination)
	return Forwarded, nil
}

// Receive drains every complete packet from buf and processes each in
// order, reporting outcomes to fn when it is non-nil. It returns nil once
// the buffer holds only a partial packet, or protocol.ErrMalformedHeader
// when the head of the buffer can never form a packet.
func (l *Layer) Receive(buf ReceiveBuffer, fn func(Outcome, error)) error {
	for {
		packet, ok, err := l.extractor.Extract(buf)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		outcome, err := l.ProcessPacket(packet)
		if fn != nil {
			fn(outcome, err)
		}
	}
}
