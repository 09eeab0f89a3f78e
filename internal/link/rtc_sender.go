package link

import (
	"context"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/netlayer/internal/util"
)

const (
	highWaterMark = 256 * 1024 // pause sending when bufferedAmount exceeds this
	lowWaterMark  = 64 * 1024  // resume sending when bufferedAmount drops below this

	// Largest DataChannel message. Packets are split; the receiver
	// reassembles the byte stream anyway.
	maxMessageSize = 16 * 1024
)

// STUN servers used when none are given. An empty, non-nil list means
// host candidates only.
var defaultSTUNServers = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
}

// newPeerConnection creates a PeerConnection using the given STUN servers.
func newPeerConnection(stunServers []string) (*webrtc.PeerConnection, error) {
	if stunServers == nil {
		stunServers = defaultSTUNServers
	}
	var config webrtc.Configuration
	if len(stunServers) > 0 {
		config.ICEServers = []webrtc.ICEServer{{URLs: stunServers}}
	}
	return webrtc.NewPeerConnection(config)
}

// newDataChannel creates a pre-negotiated, ordered DataChannel on the given
// PeerConnection. Negotiated mode (ID 0) lets both sides create the channel
// independently without relying on OnDataChannel.
func newDataChannel(pc *webrtc.PeerConnection) (*webrtc.DataChannel, error) {
	ordered := true
	negotiated := true
	id := uint16(0)

	return pc.CreateDataChannel("netlayer", &webrtc.DataChannelInit{
		Ordered:    &ordered,
		Negotiated: &negotiated,
		ID:         &id,
	})
}

// sender is a goroutine-based packet writer that serializes all writes to a
// single DataChannel, adding open-gate and backpressure control.
type sender struct {
	linkID      string
	inbox       chan []byte
	drainSignal chan struct{}
}

// newSender creates a sender, wires the backpressure callbacks on dc, and
// starts the background loop. The loop exits when ctx is cancelled.
func newSender(ctx context.Context, linkID string, dc *webrtc.DataChannel, openSignal <-chan struct{}) *sender {
	s := &sender{
		linkID:      linkID,
		inbox:       make(chan []byte, sendBufferSize),
		drainSignal: make(chan struct{}, 1),
	}

	dc.SetBufferedAmountLowThreshold(uint64(lowWaterMark))
	dc.OnBufferedAmountLow(func() {
		select {
		case s.drainSignal <- struct{}{}:
		default:
		}
	})

	go s.loop(ctx, dc, openSignal)

	return s
}

// loop is the single-writer goroutine. It waits for the DataChannel to open,
// then drains the inbox with backpressure awareness.
func (s *sender) loop(ctx context.Context, dc *webrtc.DataChannel, openSignal <-chan struct{}) {
	// Phase 1: wait for DC to be open.
	select {
	case <-openSignal:
	case <-ctx.Done():
		return
	}

	// Phase 2: send packets with backpressure.
	for {
		select {
		case packet := <-s.inbox:
			for len(packet) > 0 {
				if dc.BufferedAmount() > uint64(highWaterMark) {
					select {
					case <-s.drainSignal:
					case <-ctx.Done():
						return
					}
				}

				n := min(len(packet), maxMessageSize)
				if err := dc.Send(packet[:n]); err != nil {
					util.LogError("[link %s] failed to send %d bytes: %v", s.linkID, n, err)
					dc.Close()
					return
				}
				packet = packet[n:]
			}
		case <-ctx.Done():
			return
		}
	}
}

// send enqueues a packet for transmission. It fails with ErrClosed when
// ctx is cancelled and with ErrSendBufferFull instead of blocking.
func (s *sender) send(ctx context.Context, packet []byte) error {
	return enqueue(ctx, s.inbox, packet)
}
