package network_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1ureka/netlayer/internal/network"
	"github.com/1ureka/netlayer/internal/protocol"
)

func TestExtractNeedsFullHeader(t *testing.T) {
	full := protocol.CreatePacket(1, 2, nil)

	for n := 0; n < protocol.HeaderSize; n++ {
		buf := bytes.NewBuffer(bytes.Clone(full[:n]))
		pkt, ok, err := network.Extractor{}.Extract(buf)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Nil(t, pkt)
		assert.Equal(t, n, buf.Len())
	}
}

// TestExtractZeroLengthPacket verifies that a bare header with length 0 is a
// complete packet and is distinguishable from "no packet yet".
func TestExtractZeroLengthPacket(t *testing.T) {
	buf := bytes.NewBuffer(protocol.CreatePacket(1, 2, nil))

	pkt, ok, err := network.Extractor{}.Extract(buf)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, pkt, protocol.HeaderSize)
	assert.Equal(t, 0, buf.Len())
}

// TestExtractPartialIsIdempotent verifies that repeated calls on a partial
// packet never consume bytes.
func TestExtractPartialIsIdempotent(t *testing.T) {
	full := protocol.CreatePacket(1, 2, []byte("hello"))
	buf := bytes.NewBuffer(bytes.Clone(full[:len(full)-1]))

	for i := 0; i < 5; i++ {
		_, ok, err := network.Extractor{}.Extract(buf)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, len(full)-1, buf.Len())
	}

	buf.WriteByte(full[len(full)-1])
	pkt, ok, err := network.Extractor{}.Extract(buf)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, full, pkt)
}

// TestExtractBackToBack verifies that one call drains exactly one packet
// and leaves the next one untouched.
func TestExtractBackToBack(t *testing.T) {
	p1 := protocol.CreatePacket(1, 2, []byte{0xA, 0xB, 0xC})
	p2 := protocol.CreatePacket(3, 4, nil)
	buf := bytes.NewBuffer(append(bytes.Clone(p1), p2...))

	got, ok, err := network.Extractor{}.Extract(buf)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, p1, got)
	assert.Equal(t, p2, buf.Bytes())

	got, ok, err = network.Extractor{}.Extract(buf)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, p2, got)
	assert.Equal(t, 0, buf.Len())

	_, ok, err = network.Extractor{}.Extract(buf)
	require.NoError(t, err)
	assert.False(t, ok)
}

// TestExtractByteByByte feeds a stream one byte at a time.
func TestExtractByteByByte(t *testing.T) {
	packets := [][]byte{
		protocol.CreatePacket(1, 2, []byte("first")),
		protocol.CreatePacket(1, 2, nil),
		protocol.CreatePacket(1, 2, bytes.Repeat([]byte{0x7F}, 300)),
	}
	var stream []byte
	for _, p := range packets {
		stream = append(stream, p...)
	}

	var buf bytes.Buffer
	var got [][]byte
	for _, b := range stream {
		buf.WriteByte(b)
		for {
			pkt, ok, err := network.Extractor{}.Extract(&buf)
			require.NoError(t, err)
			if !ok {
				break
			}
			got = append(got, pkt)
		}
	}

	assert.Equal(t, packets, got)
	assert.Equal(t, 0, buf.Len())
}

// TestExtractDoesNotAlias verifies that the returned packet survives later
// writes to the buffer.
func TestExtractDoesNotAlias(t *testing.T) {
	p := protocol.CreatePacket(1, 2, []byte("keep"))
	buf := bytes.NewBuffer(bytes.Clone(p))

	got, ok, err := network.Extractor{}.Extract(buf)
	require.NoError(t, err)
	require.True(t, ok)

	buf.Write(bytes.Repeat([]byte{0xFF}, 64))
	assert.Equal(t, p, got)
}

func TestExtractMalformed(t *testing.T) {
	testCases := map[string]struct {
		extractor network.Extractor
		header    []byte
	}{
		"negative length":  {network.Extractor{}, protocol.EncodeHeader(-1, 1, 2)},
		"min int32 length": {network.Extractor{}, protocol.EncodeHeader(-1<<31, 1, 2)},
		"above default limit": {
			network.Extractor{}, protocol.EncodeHeader(network.DefaultMaxPayload+1, 1, 2),
		},
		"above custom limit": {network.Extractor{MaxPayload: 8}, protocol.EncodeHeader(9, 1, 2)},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			buf := bytes.NewBuffer(bytes.Clone(tc.header))
			_, ok, err := tc.extractor.Extract(buf)
			assert.ErrorIs(t, err, protocol.ErrMalformedHeader)
			assert.False(t, ok)
			assert.Equal(t, protocol.HeaderSize, buf.Len())
		})
	}
}
