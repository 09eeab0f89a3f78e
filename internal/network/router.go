package network

import (
	"math/rand/v2"

	"github.com/1ureka/netlayer/internal/protocol"
)

// Router picks an outbound link uniformly at random among all known peers.
// The destination is deliberately ignored; every call is an independent
// draw. Router is not safe for concurrent use.
type Router struct {
	rand *rand.Rand
}

// NewRouter creates a Router drawing from src. A nil src uses a randomly
// seeded PCG source.
func NewRouter(src rand.Source) *Router {
	if src == nil {
		src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	}
	return &Router{rand: rand.New(src)}
}

// Route returns the link to use for a packet bound to destination, or false
// when the table has no links. The address set is read once per call.
func (r *Router) Route(table LinkTable, destination protocol.Address) (Link, bool) {
	addrs := table.Addresses()
	if len(addrs) == 0 {
		return nil, false
	}
	return table.LinkFor(addrs[r.rand.IntN(len(addrs))])
}
