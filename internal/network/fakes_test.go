package network_test

import (
	"errors"
	"slices"

	"github.com/1ureka/netlayer/internal/network"
	"github.com/1ureka/netlayer/internal/protocol"
)

// Compile-time interface check.
var _ network.Environment = (*fakeEnv)(nil)

// recordingLink stores every packet handed to Send.
type recordingLink struct {
	sent [][]byte
	err  error
}

func (l *recordingLink) Send(packet []byte) error {
	if l.err != nil {
		return l.err
	}
	l.sent = append(l.sent, slices.Clone(packet))
	return nil
}

// fakeEnv is an in-memory Environment with a static link table and a client
// that records deliveries.
type fakeEnv struct {
	self      protocol.Address
	links     map[protocol.Address]network.Link
	delivered [][]byte
	lookups   int
}

func newFakeEnv(self protocol.Address) *fakeEnv {
	return &fakeEnv{self: self, links: map[protocol.Address]network.Link{}}
}

func (e *fakeEnv) SelfAddress() protocol.Address { return e.self }

func (e *fakeEnv) Addresses() []protocol.Address {
	addrs := make([]protocol.Address, 0, len(e.links))
	for a := range e.links {
		addrs = append(addrs, a)
	}
	slices.Sort(addrs)
	return addrs
}

func (e *fakeEnv) LinkFor(addr protocol.Address) (network.Link, bool) {
	e.lookups++
	l, ok := e.links[addr]
	return l, ok
}

func (e *fakeEnv) Receive(payload []byte) {
	e.delivered = append(e.delivered, slices.Clone(payload))
}

func (e *fakeEnv) addLink(addr protocol.Address) *recordingLink {
	l := &recordingLink{}
	e.links[addr] = l
	return l
}

var errLinkDown = errors.New("link down")
