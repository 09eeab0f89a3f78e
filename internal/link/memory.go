package link

import (
	"sync"

	"github.com/rs/xid"

	"github.com/1ureka/netlayer/internal/protocol"
)

// Memory is an in-process link. Send hands packets straight to a deliver
// function, which decides how and when the peer sees the bytes.
type Memory struct {
	id      string
	peer    protocol.Address
	deliver func(packet []byte) error

	done      chan struct{}
	closeOnce sync.Once
}

// NewMemory creates a link to peer backed by deliver.
func NewMemory(peer protocol.Address, deliver func(packet []byte) error) *Memory {
	return &Memory{
		id:      xid.New().String(),
		peer:    peer,
		deliver: deliver,
		done:    make(chan struct{}),
	}
}

func (m *Memory) ID() string             { return m.id }
func (m *Memory) Peer() protocol.Address { return m.peer }
func (m *Memory) Kind() string           { return KindMemory }
func (m *Memory) Done() <-chan struct{}  { return m.done }

// Send delivers packet unless the link is closed.
func (m *Memory) Send(packet []byte) error {
	select {
	case <-m.done:
		return ErrClosed
	default:
	}
	return m.deliver(packet)
}

// Close marks the link as shut down. Safe to call multiple times.
func (m *Memory) Close() error {
	m.closeOnce.Do(func() { close(m.done) })
	return nil
}
