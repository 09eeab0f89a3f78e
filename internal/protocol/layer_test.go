package protocol_test

import (
	"testing"

	"github.com/gopacket/gopacket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1ureka/netlayer/internal/protocol"
)

func TestNetworkLayerDecode(t *testing.T) {
	raw := protocol.CreatePacket(7, 42, []byte("AB"))

	pkt := gopacket.NewPacket(raw, protocol.LayerTypeNetwork, gopacket.Default)
	require.Nil(t, pkt.ErrorLayer())

	l, ok := pkt.Layer(protocol.LayerTypeNetwork).(*protocol.NetworkLayer)
	require.True(t, ok)
	assert.Equal(t, int32(2), l.Length)
	assert.Equal(t, protocol.Address(7), l.Source)
	assert.Equal(t, protocol.Address(42), l.Destination)
	assert.Equal(t, []byte("AB"), l.LayerPayload())
	assert.Equal(t, "7", l.NetworkFlow().Src().String())
	assert.Equal(t, "42", l.NetworkFlow().Dst().String())

	require.NotNil(t, pkt.ApplicationLayer())
	assert.Equal(t, []byte("AB"), pkt.ApplicationLayer().Payload())
}

func TestNetworkLayerTruncated(t *testing.T) {
	raw := protocol.CreatePacket(1, 2, []byte("abcdef"))[:protocol.HeaderSize+2]

	pkt := gopacket.NewPacket(raw, protocol.LayerTypeNetwork, gopacket.Default)
	l, ok := pkt.Layer(protocol.LayerTypeNetwork).(*protocol.NetworkLayer)
	require.True(t, ok)
	assert.True(t, pkt.Metadata().Truncated)
	assert.Equal(t, []byte("ab"), l.LayerPayload())
}

func TestNetworkLayerShortHeader(t *testing.T) {
	pkt := gopacket.NewPacket([]byte{0, 0, 0}, protocol.LayerTypeNetwork, gopacket.Default)
	assert.NotNil(t, pkt.ErrorLayer())
}

func TestNetworkLayerSerialize(t *testing.T) {
	buf := gopacket.NewSerializeBuffer()
	l := &protocol.NetworkLayer{Header: protocol.Header{Source: 7, Destination: 42}}
	err := gopacket.SerializeLayers(buf, gopacket.SerializeOptions{FixLengths: true},
		l, gopacket.Payload("AB"))
	require.NoError(t, err)
	assert.Equal(t, protocol.CreatePacket(7, 42, []byte("AB")), buf.Bytes())
}

func TestDescribe(t *testing.T) {
	out := protocol.Describe(protocol.CreatePacket(7, 42, []byte("AB")))
	assert.Contains(t, out, "NetLayer")
	assert.Contains(t, out, "Payload")
}
