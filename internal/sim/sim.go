// Package sim runs many hosts in one process over in-memory links with a
// deterministic serial event engine. It measures how the random-walk
// router performs on a given topology.
package sim

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/1ureka/netlayer/internal/config"
	"github.com/1ureka/netlayer/internal/link"
	"github.com/1ureka/netlayer/internal/network"
	"github.com/1ureka/netlayer/internal/protocol"
	"github.com/1ureka/netlayer/internal/util"
)

// maxLatency is the largest per-chunk link delay in ticks.
const maxLatency = 4

// idSize is the message id prefix every simulated payload carries.
const idSize = 4

// Report summarizes one run.
type Report struct {
	Topology string
	Hosts    int
	Links    int

	Sent         int
	Delivered    int
	Misdelivered int
	Dropped      int
	InFlight     int

	// Transmissions counts packet sends over links, all hops included.
	Transmissions int
	Chunks        int
	Events        int
	Duration      VTime
	Truncated     bool
}

// MeanTransmissions is the average number of link sends per delivered
// message.
func (r Report) MeanTransmissions() float64 {
	if r.Delivered == 0 {
		return 0
	}
	return float64(r.Transmissions) / float64(r.Delivered)
}

type message struct {
	src, dst protocol.Address
}

type simulation struct {
	cfg    config.Sim
	rng    *rand.Rand
	engine engine
	hosts  []*host

	messages []message
	report   Report

	// last scheduled arrival per directed link, keeps chunks FIFO
	clocks map[Edge]VTime
}

// host is one simulated network layer with its links and receive buffers.
type host struct {
	sim     *simulation
	addr    protocol.Address
	table   *link.Table
	layer   *network.Layer
	buffers map[protocol.Address]*bytes.Buffer
}

func (h *host) SelfAddress() protocol.Address { return h.addr }

func (h *host) Addresses() []protocol.Address { return h.table.Addresses() }

func (h *host) LinkFor(addr protocol.Address) (network.Link, bool) { return h.table.LinkFor(addr) }

// Receive is the client of the host.
func (h *host) Receive(payload []byte) {
	r := &h.sim.report
	r.Delivered++

	if len(payload) < idSize {
		r.Misdelivered++
		return
	}
	id := binary.BigEndian.Uint32(payload)
	if int(id) >= len(h.sim.messages) || h.sim.messages[id].dst != h.addr {
		r.Misdelivered++
	}
}

// Run executes one simulation and returns its report.
func Run(cfg config.Sim) (Report, error) {
	cfg.InitDefaults()
	if err := cfg.Validate(); err != nil {
		return Report{}, err
	}

	s := &simulation{
		cfg:    cfg,
		rng:    rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
		clocks: make(map[Edge]VTime),
	}
	s.report.Topology = cfg.Topology
	s.report.Hosts = cfg.Hosts

	edges, err := Topology(cfg.Topology, cfg.Hosts, cfg.EdgeProbability, s.rng)
	if err != nil {
		return Report{}, err
	}
	s.report.Links = len(edges)

	for i := range cfg.Hosts {
		h := &host{
			sim:     s,
			addr:    protocol.Address(i),
			table:   link.NewTable(),
			buffers: make(map[protocol.Address]*bytes.Buffer),
		}
		h.layer = network.NewLayer(h, network.WithRand(rand.NewPCG(cfg.Seed, uint64(i))))
		s.hosts = append(s.hosts, h)
	}
	defer s.close()

	for _, e := range edges {
		s.connect(e.A, e.B)
		s.connect(e.B, e.A)
	}

	for i := range cfg.Messages {
		src := protocol.Address(s.rng.IntN(cfg.Hosts))
		dst := protocol.Address(s.rng.IntN(cfg.Hosts - 1))
		if dst >= src {
			dst++
		}
		s.messages = append(s.messages, message{src: src, dst: dst})

		id := uint32(i)
		s.engine.schedule(VTime(i), func() { s.inject(id) })
	}

	drained := s.engine.run(cfg.MaxEvents)

	r := s.report
	r.Sent = len(s.messages)
	r.InFlight = r.Sent - r.Delivered - r.Dropped
	r.Events = s.engine.events
	r.Duration = s.engine.now
	r.Truncated = !drained
	return r, nil
}

// connect registers the directed link from a to b on host a.
func (s *simulation) connect(a, b protocol.Address) {
	s.hosts[a].table.Register(link.NewMemory(b, func(packet []byte) error {
		s.transmit(a, b, packet)
		return nil
	}))
}

// inject hands message id to its source host's layer.
func (s *simulation) inject(id uint32) {
	m := s.messages[id]

	size := max(s.cfg.PayloadSize, idSize)
	payload := make([]byte, size)
	binary.BigEndian.PutUint32(payload, id)

	o, err := s.hosts[m.src].layer.Send(m.dst, payload)
	s.observe(m.src, o, err)
}

// transmit splits packet into random-size chunks and schedules their
// arrival at b in order.
func (s *simulation) transmit(a, b protocol.Address, packet []byte) {
	s.report.Transmissions++

	key := Edge{a, b}
	for len(packet) > 0 {
		n := min(1+s.rng.IntN(s.cfg.MaxChunk), len(packet))
		chunk := packet[:n:n]
		packet = packet[n:]

		at := max(s.engine.now+VTime(1+s.rng.IntN(maxLatency)), s.clocks[key])
		s.clocks[key] = at
		s.report.Chunks++
		s.engine.schedule(at, func() { s.arrive(a, b, chunk) })
	}
}

// arrive appends chunk to b's buffer for the link from a and lets b's
// layer drain it.
func (s *simulation) arrive(a, b protocol.Address, chunk []byte) {
	h := s.hosts[b]
	buf, ok := h.buffers[a]
	if !ok {
		buf = new(bytes.Buffer)
		h.buffers[a] = buf
	}
	buf.Write(chunk)

	err := h.layer.Receive(buf, func(o network.Outcome, err error) {
		s.observe(b, o, err)
	})
	if err != nil {
		util.LogWarning("[host %s] resetting buffer from %s: %v", b, a, err)
		buf.Reset()
	}
}

func (s *simulation) observe(at protocol.Address, o network.Outcome, err error) {
	if o != network.Dropped {
		return
	}
	s.report.Dropped++
	if errors.Is(err, network.ErrNoRoute) {
		util.LogDebug("[host %s] %v", at, err)
		return
	}
	util.LogWarning("[host %s] dropped: %v", at, err)
}

func (s *simulation) close() {
	for _, h := range s.hosts {
		h.table.Close()
	}
}

// String renders the headline numbers of r.
func (r Report) String() string {
	return fmt.Sprintf("%s/%d: %d/%d delivered, %d dropped, %d in flight, %.2f transmissions per delivery",
		r.Topology, r.Hosts, r.Delivered, r.Sent, r.Dropped, r.InFlight, r.MeanTransmissions())
}
