package link

import (
	"errors"
	"slices"
	"sync"

	"github.com/1ureka/netlayer/internal/network"
	"github.com/1ureka/netlayer/internal/protocol"
	"github.com/1ureka/netlayer/internal/util"
)

// Compile-time interface check.
var _ network.LinkTable = (*Table)(nil)

// Table maps peer addresses to live links. It is safe for concurrent use;
// readers get snapshots, so a route decision never observes a half-updated
// table.
type Table struct {
	mu    sync.RWMutex
	links map[protocol.Address]Link
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{links: make(map[protocol.Address]Link)}
}

// Register stores l under its peer address and starts a goroutine that
// removes the entry when the link shuts down. A link previously registered
// for the same peer is replaced and closed.
func (t *Table) Register(l Link) {
	t.Offer(l, nil)
}

// Offer is Register with a veto: when a live link to the same peer is
// registered and keep(current) is true, l is not stored and Offer returns
// false. The caller owns a refused link.
func (t *Table) Offer(l Link, keep func(current Link) bool) bool {
	t.mu.Lock()
	prev := t.links[l.Peer()]
	if prev != nil && prev != l && keep != nil && alive(prev) && keep(prev) {
		t.mu.Unlock()
		return false
	}
	t.links[l.Peer()] = l
	t.mu.Unlock()

	if prev != nil && prev != l {
		util.LogInfo("[link %s] replaced by %s for peer %s", prev.ID(), l.ID(), l.Peer())
		prev.Close()
	}

	go func() {
		<-l.Done()
		t.Unregister(l)
	}()
	return true
}

func alive(l Link) bool {
	select {
	case <-l.Done():
		return false
	default:
		return true
	}
}

// Unregister removes l if it is still the link registered for its peer.
// It reports whether an entry was removed.
func (t *Table) Unregister(l Link) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if cur, ok := t.links[l.Peer()]; ok && cur == l {
		delete(t.links, l.Peer())
		return true
	}
	return false
}

// Addresses returns the registered peer addresses in ascending order.
func (t *Table) Addresses() []protocol.Address {
	t.mu.RLock()
	addrs := make([]protocol.Address, 0, len(t.links))
	for a := range t.links {
		addrs = append(addrs, a)
	}
	t.mu.RUnlock()

	slices.Sort(addrs)
	return addrs
}

// LinkFor implements network.LinkTable.
func (t *Table) LinkFor(addr protocol.Address) (network.Link, bool) {
	l, ok := t.Get(addr)
	if !ok {
		return nil, false
	}
	return l, true
}

// Get returns the link registered for addr.
func (t *Table) Get(addr protocol.Address) (Link, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	l, ok := t.links[addr]
	return l, ok
}

// Len returns the number of registered links.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.links)
}

// Close closes every registered link.
func (t *Table) Close() error {
	t.mu.RLock()
	links := make([]Link, 0, len(t.links))
	for _, l := range t.links {
		links = append(links, l)
	}
	t.mu.RUnlock()

	var errs []error
	for _, l := range links {
		errs = append(errs, l.Close())
	}
	return errors.Join(errs...)
}
