package network

import (
	"github.com/1ureka/netlayer/internal/protocol"
)

// DefaultMaxPayload bounds the length field accepted by an Extractor.
const DefaultMaxPayload = 16 * 1024 * 1024

// Extractor pulls complete packets off the front of a ReceiveBuffer.
// It is stateless apart from its limit; all progress lives in the buffer.
type Extractor struct {
	// MaxPayload is the largest length field accepted. Zero means
	// DefaultMaxPayload.
	MaxPayload int
}

func (e Extractor) maxPayload() int {
	if e.MaxPayload <= 0 {
		return DefaultMaxPayload
	}
	return e.MaxPayload
}

// Extract removes and returns one packet when the buffer holds all of its
// bytes. ok is false when more bytes are needed; nothing is consumed in that
// case. A length field that is negative or above the limit yields
// protocol.ErrMalformedHeader, again without consuming anything.
//
// Extract yields at most one packet per call; callers loop until ok is false.
func (e Extractor) Extract(buf ReceiveBuffer) (packet []byte, ok bool, err error) {
	if buf.Len() < protocol.HeaderSize {
		return nil, false, nil
	}

	h, err := protocol.DecodeHeader(buf.Bytes())
	if err != nil {
		return nil, false, err
	}
	if err := h.Validate(e.maxPayload()); err != nil {
		return nil, false, err
	}

	size := protocol.HeaderSize + int(h.Length)
	if size > buf.Len() {
		return nil, false, nil
	}

	packet = make([]byte, size)
	copy(packet, buf.Next(size))
	return packet, true, nil
}
