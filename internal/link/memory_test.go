package link_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1ureka/netlayer/internal/link"
)

func TestMemoryLink(t *testing.T) {
	var got [][]byte
	l := link.NewMemory(9, func(packet []byte) error {
		got = append(got, packet)
		return nil
	})

	assert.Equal(t, link.KindMemory, l.Kind())
	assert.NotEmpty(t, l.ID())
	require.NoError(t, l.Send([]byte("one")))
	require.NoError(t, l.Send([]byte("two")))
	assert.Equal(t, [][]byte{[]byte("one"), []byte("two")}, got)

	require.NoError(t, l.Close())
	require.NoError(t, l.Close())
	assert.ErrorIs(t, l.Send([]byte("three")), link.ErrClosed)
	assert.Len(t, got, 2)
}

func TestMemoryLinkUniqueIDs(t *testing.T) {
	a := link.NewMemory(1, discard)
	b := link.NewMemory(1, discard)
	assert.NotEqual(t, a.ID(), b.ID())
}
