package pktbuf

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMetaAddrHelpersV4(t *testing.T) {
	var m Meta
	m.SetAddrsV4([4]byte{10, 0, 0, 1}, [4]byte{10, 0, 0, 2})
	src, dst := m.AddrsV4()
	require.Equal(t, [4]byte{10, 0, 0, 1}, src)
	require.Equal(t, [4]byte{10, 0, 0, 2}, dst)
	require.False(t, m.AddrIsV6)

	swSrc, swDst := m.SwappedAddrs()
	require.Equal(t, m.DstAddr, swSrc)
	require.Equal(t, m.SrcAddr, swDst)
}

func TestMetaAddrHelpersV6(t *testing.T) {
	var m Meta
	src := [16]byte{0x20, 0x01}
	dst := [16]byte{0x20, 0x02}
	m.SetAddrsV6(src, dst)
	gotSrc, gotDst := m.AddrsV6()
	require.Equal(t, src, gotSrc)
	require.Equal(t, dst, gotDst)
	require.True(t, m.AddrIsV6)
}

func TestDiscardCodeStringUnknown(t *testing.T) {
	require.Equal(t, "code(9999)", DiscardCode(9999).String())
}

func TestProtocolTagStringUnknown(t *testing.T) {
	require.Equal(t, "proto(200)", ProtocolTag(200).String())
}
