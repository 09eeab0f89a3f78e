// Package protocol defines the network-layer packet format: a fixed 12-byte
// header (length, source, destination) followed by the payload.
package protocol

import (
	"errors"
	"fmt"
	"strconv"
)

// Header field offsets.
const (
	LengthOffset      = 0
	SourceOffset      = LengthOffset + fieldSize
	DestinationOffset = SourceOffset + fieldSize
)

// HeaderSize is the fixed header size: Length(4) + Source(4) + Destination(4).
const HeaderSize = DestinationOffset + fieldSize

const fieldSize = 4

var (
	ErrShortHeader     = errors.New("packet shorter than header")
	ErrMalformedHeader = errors.New("malformed packet header")
)

// Address identifies a host. All 32 bits are significant; negative values
// are valid addresses.
type Address int32

func (a Address) String() string {
	return strconv.FormatInt(int64(a), 10)
}

// Header is the decoded form of the first HeaderSize bytes of a packet.
type Header struct {
	Length      int32 // payload bytes, header excluded
	Source      Address
	Destination Address
}

// Validate reports ErrMalformedHeader when Length is negative or larger
// than maxPayload.
func (h Header) Validate(maxPayload int) error {
	if h.Length < 0 {
		return fmt.Errorf("%w: negative length %d", ErrMalformedHeader, h.Length)
	}
	if int(h.Length) > maxPayload {
		return fmt.Errorf("%w: length %d exceeds limit %d", ErrMalformedHeader, h.Length, maxPayload)
	}
	return nil
}

// Packet is a decoded network-layer packet.
type Packet struct {
	Source      Address
	Destination Address
	Payload     []byte
}
