package link

import (
	"context"
	"errors"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/xid"

	"github.com/1ureka/netlayer/internal/protocol"
	"github.com/1ureka/netlayer/internal/util"
)

// RTC is a link over a WebRTC DataChannel. The channel is pre-negotiated
// (id 0) and ordered: the receiver treats it as a byte stream.
//
// Signaling (SDP/ICE exchange) is driven from outside through the exposed
// methods; Ready closes once the DataChannel is open.
type RTC struct {
	id   string
	peer protocol.Address

	pc *webrtc.PeerConnection
	dc *webrtc.DataChannel

	sender     *sender
	openSignal chan struct{}

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.RWMutex
	pcState webrtc.PeerConnectionState
}

// NewRTC creates a PeerConnection with the given STUN servers and a
// pre-negotiated DataChannel to peer. Every inbound DataChannel message is
// passed to recv.
func NewRTC(ctx context.Context, peer protocol.Address, stunServers []string, recv ReceiveFunc) (*RTC, error) {
	pc, err := newPeerConnection(stunServers)
	if err != nil {
		return nil, err
	}

	dc, err := newDataChannel(pc)
	if err != nil {
		pc.Close()
		return nil, err
	}

	rCtx, rCancel := context.WithCancel(ctx)

	r := &RTC{
		id:         xid.New().String(),
		peer:       peer,
		pc:         pc,
		dc:         dc,
		openSignal: make(chan struct{}),
		ctx:        rCtx,
		cancel:     rCancel,
		pcState:    webrtc.PeerConnectionStateNew,
	}

	// DC open gate.
	var openOnce sync.Once
	dc.OnOpen(func() {
		openOnce.Do(func() { close(r.openSignal) })
	})

	// DC close → cancel link context.
	dc.OnClose(func() {
		util.LogDebug("[link %s] DataChannel closed", r.id)
		rCancel()
	})

	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		recv(r, msg.Data)
	})

	// Record PC state; a failed connection takes the link down.
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		util.LogDebug("[link %s] PeerConnection state: %s", r.id, state.String())
		r.mu.Lock()
		r.pcState = state
		r.mu.Unlock()
		if state == webrtc.PeerConnectionStateFailed || state == webrtc.PeerConnectionStateClosed {
			rCancel()
		}
	})

	r.sender = newSender(rCtx, r.id, dc, r.openSignal)

	return r, nil
}

func (r *RTC) ID() string             { return r.id }
func (r *RTC) Peer() protocol.Address { return r.peer }
func (r *RTC) Kind() string           { return KindRTC }

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

// Ready returns a channel that is closed when the DataChannel is open.
func (r *RTC) Ready() <-chan struct{} {
	return r.openSignal
}

// Done returns a channel that is closed when the link is shut down
// (DataChannel closed, connection failed, or parent context cancelled).
func (r *RTC) Done() <-chan struct{} {
	return r.ctx.Done()
}

// Close shuts down the DataChannel and PeerConnection.
func (r *RTC) Close() error {
	r.cancel()
	return errors.Join(r.dc.Close(), r.pc.Close())
}

// ConnectionState returns the last observed PeerConnection state.
func (r *RTC) ConnectionState() webrtc.PeerConnectionState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.pcState
}

// ---------------------------------------------------------------------------
// Signaling
// ---------------------------------------------------------------------------

// CreateOffer generates an SDP offer.
func (r *RTC) CreateOffer() (webrtc.SessionDescription, error) {
	return r.pc.CreateOffer(nil)
}

// CreateAnswer generates an SDP answer.
func (r *RTC) CreateAnswer() (webrtc.SessionDescription, error) {
	return r.pc.CreateAnswer(nil)
}

// SetLocalDescription applies the local SDP.
func (r *RTC) SetLocalDescription(sdp webrtc.SessionDescription) error {
	return r.pc.SetLocalDescription(sdp)
}

// SetRemoteDescription applies the remote SDP.
func (r *RTC) SetRemoteDescription(sdp webrtc.SessionDescription) error {
	return r.pc.SetRemoteDescription(sdp)
}

// OnICECandidate registers a callback invoked whenever a new local ICE
// candidate is gathered. A nil candidate signals the end of gathering.
func (r *RTC) OnICECandidate(fn func(*webrtc.ICECandidate)) {
	r.pc.OnICECandidate(fn)
}

// AddICECandidate adds a remote ICE candidate received through signaling.
func (r *RTC) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	return r.pc.AddICECandidate(candidate)
}

// ---------------------------------------------------------------------------
// Data
// ---------------------------------------------------------------------------

// Send enqueues packet for the sender goroutine.
func (r *RTC) Send(packet []byte) error {
	return r.sender.send(r.ctx, packet)
}
