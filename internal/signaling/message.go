// Package signaling establishes WebRTC links. Two hosts exchange their
// addresses, the SDP offer/answer and trickled ICE candidates over a
// short-lived WebSocket. Each side reports ready once its DataChannel is
// open; the socket is closed when both have.
package signaling

import "github.com/1ureka/netlayer/internal/protocol"

// messageType identifies the kind of signaling message.
type messageType string

const (
	msgTypeHello     messageType = "hello"
	msgTypeOffer     messageType = "offer"
	msgTypeAnswer    messageType = "answer"
	msgTypeCandidate messageType = "candidate"
	msgTypeReady     messageType = "ready" // sender's DataChannel is open
)

// message is the JSON structure exchanged over the WebSocket during signaling.
type message struct {
	Type      messageType      `json:"type"`
	Address   protocol.Address `json:"address,omitempty"`
	SDP       string           `json:"sdp,omitempty"`
	Candidate string           `json:"candidate,omitempty"` // JSON-encoded ICECandidateInit
}
