package protocol

import (
	"encoding/binary"
	"fmt"
)

// EncodeHeader returns the HeaderSize-byte big-endian encoding of the three
// header fields. Values are written as raw 32-bit patterns.
func EncodeHeader(length int32, source, destination Address) []byte {
	buf := make([]byte, HeaderSize)
	PutHeader(buf, Header{Length: length, Source: source, Destination: destination})
	return buf
}

// PutHeader writes h into the first HeaderSize bytes of dst.
func PutHeader(dst []byte, h Header) {
	binary.BigEndian.PutUint32(dst[LengthOffset:], uint32(h.Length))
	binary.BigEndian.PutUint32(dst[SourceOffset:], uint32(h.Source))
	binary.BigEndian.PutUint32(dst[DestinationOffset:], uint32(h.Destination))
}

// DecodeField reads the big-endian 32-bit field starting at offset. The
// caller guarantees four bytes are available; otherwise it panics.
func DecodeField(data []byte, offset int) int32 {
	return int32(binary.BigEndian.Uint32(data[offset : offset+fieldSize]))
}

// DecodeHeader decodes the header at the front of data.
func DecodeHeader(data []byte) (Header, error) {
	if len(data) < HeaderSize {
		return Header{}, fmt.Errorf("%w: %d bytes (need at least %d)", ErrShortHeader, len(data), HeaderSize)
	}
	return Header{
		Length:      DecodeField(data, LengthOffset),
		Source:      Address(DecodeField(data, SourceOffset)),
		Destination: Address(DecodeField(data, DestinationOffset)),
	}, nil
}

// CreatePacket frames payload for destination, stamping source as the
// originating host.
func CreatePacket(source, destination Address, payload []byte) []byte {
	buf := make([]byte, HeaderSize+len(payload))
	PutHeader(buf, Header{
		Length:      int32(len(payload)),
		Source:      source,
		Destination: destination,
	})
	copy(buf[HeaderSize:], payload)
	return buf
}

// Encode serializes a Packet; the length field is taken from the payload.
func Encode(pkt *Packet) []byte {
	return CreatePacket(pkt.Source, pkt.Destination, pkt.Payload)
}

// Decode deserializes exactly one packet. The byte count must match the
// header's length field.
func Decode(data []byte) (*Packet, error) {
	h, err := DecodeHeader(data)
	if err != nil {
		return nil, err
	}
	if h.Length < 0 {
		return nil, fmt.Errorf("%w: negative length %d", ErrMalformedHeader, h.Length)
	}
	if want := HeaderSize + int(h.Length); len(data) != want {
		return nil, fmt.Errorf("%w: have %d bytes, header says %d", ErrMalformedHeader, len(data), want)
	}
	pkt := &Packet{
		Source:      h.Source,
		Destination: h.Destination,
		Payload:     make([]byte, h.Length),
	}
	copy(pkt.Payload, data[HeaderSize:])
	return pkt, nil
}
