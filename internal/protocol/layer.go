package protocol

import (
	"encoding/binary"
	"fmt"

	"github.com/gopacket/gopacket"
)

var (
	LayerTypeNetwork = gopacket.RegisterLayerType(
		1900,
		gopacket.LayerTypeMetadata{
			Name:    "NetLayer",
			Decoder: gopacket.DecodeFunc(decodeNetworkLayer),
		},
	)

	EndpointAddress = gopacket.RegisterEndpointType(
		1900,
		gopacket.EndpointTypeMetadata{
			Name: "NetLayerAddress",
			Formatter: func(b []byte) string {
				return Address(int32(binary.BigEndian.Uint32(b))).String()
			},
		},
	)
)

// NetworkLayer exposes the packet header to gopacket so captured streams
// can be decoded and printed alongside other layers.
type NetworkLayer struct {
	Header
	contents []byte
	payload  []byte
}

func (l *NetworkLayer) LayerType() gopacket.LayerType { return LayerTypeNetwork }

func (l *NetworkLayer) LayerContents() []byte { return l.contents }

func (l *NetworkLayer) LayerPayload() []byte { return l.payload }

func (l *NetworkLayer) CanDecode() gopacket.LayerClass { return LayerTypeNetwork }

func (l *NetworkLayer) NextLayerType() gopacket.LayerType { return gopacket.LayerTypePayload }

func (l *NetworkLayer) NetworkFlow() gopacket.Flow {
	src := make([]byte, fieldSize)
	dst := make([]byte, fieldSize)
	binary.BigEndian.PutUint32(src, uint32(l.Source))
	binary.BigEndian.PutUint32(dst, uint32(l.Destination))
	return gopacket.NewFlow(EndpointAddress, src, dst)
}

// DecodeFromBytes implements gopacket.DecodingLayer. A payload shorter than
// the length field is flagged as truncated rather than rejected.
func (l *NetworkLayer) DecodeFromBytes(data []byte, df gopacket.DecodeFeedback) error {
	h, err := DecodeHeader(data)
	if err != nil {
		df.SetTruncated()
		return err
	}
	if h.Length < 0 {
		return fmt.Errorf("%w: negative length %d", ErrMalformedHeader, h.Length)
	}
	end := HeaderSize + int(h.Length)
	if end > len(data) {
		df.SetTruncated()
		end = len(data)
	}
	l.Header = h
	l.contents = data[:HeaderSize]
	l.payload = data[HeaderSize:end]
	return nil
}

// SerializeTo implements gopacket.SerializableLayer.
func (l *NetworkLayer) SerializeTo(b gopacket.SerializeBuffer, opts gopacket.SerializeOptions) error {
	payloadLen := len(b.Bytes())
	bytes, err := b.PrependBytes(HeaderSize)
	if err != nil {
		return err
	}
	if opts.FixLengths {
		l.Length = int32(payloadLen)
	}
	PutHeader(bytes, l.Header)
	return nil
}

func (l *NetworkLayer) String() string {
	return fmt.Sprintf("Length=%d, Source=%s, Destination=%s", l.Length, l.Source, l.Destination)
}

func decodeNetworkLayer(data []byte, pb gopacket.PacketBuilder) error {
	l := &NetworkLayer{}
	err := l.DecodeFromBytes(data, pb)
	pb.AddLayer(l)
	pb.SetNetworkLayer(l)
	if err != nil {
		return err
	}
	return pb.NextDecoder(gopacket.LayerTypePayload)
}

// Describe decodes data with gopacket and returns its layer dump.
func Describe(data []byte) string {
	return gopacket.NewPacket(data, LayerTypeNetwork, gopacket.Default).String()
}
