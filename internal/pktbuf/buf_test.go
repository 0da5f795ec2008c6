package pktbuf

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBufPoolAllocRelease(t *testing.T) {
	pool := NewBufPool(2, 64)
	require.Equal(t, 2, pool.Len())

	pkt, err := pool.AllocBlocking(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, pool.Len())

	pkt.Release()
	require.Equal(t, 2, pool.Len())
}

func TestBufPoolAllocTimedExhausted(t *testing.T) {
	pool := NewBufPool(1, 64)
	first, err := pool.AllocBlocking(context.Background())
	require.NoError(t, err)

	_, ok := pool.AllocTimed(context.Background(), 10*time.Millisecond)
	require.False(t, ok, "pool should be exhausted")

	first.Release()
	second, ok := pool.AllocTimed(context.Background(), 0)
	require.True(t, ok)
	require.NotNil(t, second)
}

func TestBufPacketWindowArithmetic(t *testing.T) {
	pool := NewBufPool(1, 32)
	pkt, _ := pool.AllocBlocking(context.Background())
	defer pkt.Release()

	pkt.Meta().Offset = 4
	pkt.Meta().Length = 10

	require.NoError(t, pkt.AdvanceOffset(4))
	require.Equal(t, uint16(8), pkt.Meta().Offset)
	require.Equal(t, uint16(6), pkt.Meta().Length)

	require.NoError(t, pkt.Shrink(2))
	require.Equal(t, uint16(4), pkt.Meta().Length)

	require.NoError(t, pkt.Prepend(4))
	require.Equal(t, uint16(4), pkt.Meta().Offset)
	require.Equal(t, uint16(8), pkt.Meta().Length)

	require.ErrorIs(t, pkt.Prepend(5), ErrUnderrun)

	require.NoError(t, pkt.Append(4))
	require.Equal(t, uint16(12), pkt.Meta().Length)

	require.ErrorIs(t, pkt.Append(100), ErrMTUExceeded)
}

func TestBufPacketReadWriteAt(t *testing.T) {
	pool := NewBufPool(1, 16)
	pkt, _ := pool.AllocBlocking(context.Background())
	defer pkt.Release()

	require.NoError(t, pkt.WriteAt(2, []byte{1, 2, 3}))
	out := make([]byte, 3)
	require.NoError(t, pkt.ReadAt(2, out))
	require.Equal(t, []byte{1, 2, 3}, out)

	require.Error(t, pkt.ReadAt(15, make([]byte, 4)))
}

func TestBufPacketHeaderWindow(t *testing.T) {
	pool := NewBufPool(1, 16)
	pkt, _ := pool.AllocBlocking(context.Background())
	defer pkt.Release()

	pkt.Meta().Offset = 2
	pkt.Meta().Length = 5
	pkt.WriteAt(2, []byte{9, 8, 7, 6, 5})

	win, err := pkt.HeaderWindow(5)
	require.NoError(t, err)
	require.Equal(t, []byte{9, 8, 7, 6, 5}, win)

	_, err = pkt.HeaderWindow(6)
	require.ErrorIs(t, err, ErrMetadataCorrupted)
}
