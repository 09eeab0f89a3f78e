package signaling

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"

	"github.com/1ureka/netlayer/internal/link"
	"github.com/1ureka/netlayer/internal/protocol"
	"github.com/1ureka/netlayer/internal/util"
)

// sender writes this host's half of the signaling conversation. Every
// message carries the host address. tr is nil until hello has been
// exchanged and the RTC link exists.
type sender struct {
	self protocol.Address
	conn *websocket.Conn
	tr   *link.RTC

	mu sync.Mutex
}

func (s *sender) send(typ messageType, sdp, candidate string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(message{Type: typ, Address: s.self, SDP: sdp, Candidate: candidate})
}

// hello announces this host's address.
func (s *sender) hello() error {
	return s.send(msgTypeHello, "", "")
}

// describe creates the local offer or answer, applies it and sends it.
func (s *sender) describe(typ webrtc.SDPType) error {
	create, msgType := s.tr.CreateOffer, msgTypeOffer
	if typ == webrtc.SDPTypeAnswer {
		create, msgType = s.tr.CreateAnswer, msgTypeAnswer
	}

	desc, err := create()
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", typ, err)
	}
	if err := s.tr.SetLocalDescription(desc); err != nil {
		return fmt.Errorf("failed to apply local %s: %w", typ, err)
	}
	return s.send(msgType, desc.SDP, "")
}

// candidate trickles one gathered ICE candidate. The nil candidate that
// ends gathering is not sent. Failures only cost a candidate, so they are
// logged.
func (s *sender) candidate(c *webrtc.ICECandidate) {
	if c == nil {
		return
	}

	data, err := json.Marshal(c.ToJSON())
	if err == nil {
		err = s.send(msgTypeCandidate, "", string(data))
	}
	if err != nil {
		util.LogDebug("[link %s] candidate for %s not sent: %v", s.tr.ID(), s.tr.Peer(), err)
	}
}

// ready tells the peer that this host's DataChannel is open.
func (s *sender) ready() error {
	return s.send(msgTypeReady, "", "")
}
