package sim

import "container/heap"

// VTime is simulated time in ticks.
type VTime uint64

// event is something that happens at a point in simulated time. Events at
// the same time run in scheduling order.
type event struct {
	at     VTime
	seq    uint64
	handle func()
}

// engine runs events one after another in time order.
type engine struct {
	now    VTime
	seq    uint64
	queue  eventHeap
	events int
}

// schedule registers fn to run at time at, which must not be in the past.
func (e *engine) schedule(at VTime, fn func()) {
	if at < e.now {
		panic("scheduling an event earlier than current time")
	}
	e.seq++
	heap.Push(&e.queue, &event{at: at, seq: e.seq, handle: fn})
}

// run processes events until none are left or limit events have run. It
// reports whether the queue drained.
func (e *engine) run(limit int) bool {
	for e.queue.Len() > 0 {
		if e.events >= limit {
			return false
		}
		evt := heap.Pop(&e.queue).(*event)
		e.now = evt.at
		e.events++
		evt.handle()
	}
	return true
}

type eventHeap []*event

func (h eventHeap) Len() int { return len(h) }

// Less orders by time, then by scheduling order.
func (h eventHeap) Less(i, j int) bool {
	if h[i].at != h[j].at {
		return h[i].at < h[j].at
	}
	return h[i].seq < h[j].seq
}

func (h eventHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *eventHeap) Push(x any) { *h = append(*h, x.(*event)) }

func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	evt := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return evt
}
