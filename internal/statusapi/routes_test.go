package statusapi

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/malbeclabs/rnetd/internal/iftable"
	"github.com/malbeclabs/rnetd/internal/ipstack"
	"github.com/malbeclabs/rnetd/internal/ppp"
	"github.com/stretchr/testify/require"
)

func newTable(t *testing.T) *iftable.Table {
	t.Helper()
	subis := []iftable.SubInterfaceStatic{
		{Parent: 0, Kind: iftable.KindIPv4Unicast, Acquisition: iftable.AcqHardcoded, PrefixLen: 24, LiteralAddr: []byte{10, 0, 0, 1}},
	}
	intfcs := []iftable.InterfaceStatic{
		{SubiIdx: [3]uint8{0, iftable.NoSubi, iftable.NoSubi}, LCPEnabled: true, IPCPEnabled: true},
	}
	circuits := []iftable.Circuit{
		{Active: true, Kind: iftable.KindIPv4Unicast, Proto: ipstack.ProtoUDP, SelfPort: 53, PeerPort: 0, Subi: 0},
	}
	return iftable.Init(intfcs, subis, circuits, func(int) *ppp.RearmableTimer {
		return ppp.NewRearmableTimer(func() {})
	})
}

func TestServeInterfacesHandlerReportsLinkState(t *testing.T) {
	table := newTable(t)
	rec := httptest.NewRecorder()
	ServeInterfacesHandler(table)(rec, httptest.NewRequest("GET", "/status/interfaces", nil))

	require.Equal(t, 200, rec.Code)
	var out []InterfaceStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out, 1)
	require.Equal(t, "recovery", out[0].LinkState)
	require.True(t, out[0].IPCPEnabled)
}

func TestServeSubInterfacesHandlerReportsLiteralAddr(t *testing.T) {
	table := newTable(t)
	rec := httptest.NewRecorder()
	ServeSubInterfacesHandler(table)(rec, httptest.NewRequest("GET", "/status/subinterfaces", nil))

	require.Equal(t, 200, rec.Code)
	var out []SubInterfaceStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out, 1)
	require.Equal(t, "10.0.0.1", out[0].EffectiveAddr)
	require.Equal(t, "hardcoded", out[0].Acquisition)
}

func TestServeCircuitsHandlerReportsActiveSlot(t *testing.T) {
	table := newTable(t)

	rec := httptest.NewRecorder()
	ServeCircuitsHandler(table)(rec, httptest.NewRequest("GET", "/status/circuits", nil))

	require.Equal(t, 200, rec.Code)
	var out []CircuitStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out, 1)
	require.True(t, out[0].Active)
	require.Equal(t, "udp", out[0].Proto)
	require.Equal(t, uint16(53), out[0].SelfPort)

	require.NoError(t, table.CircuitDelete(0))
	rec = httptest.NewRecorder()
	ServeCircuitsHandler(table)(rec, httptest.NewRequest("GET", "/status/circuits", nil))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out, 1)
	require.False(t, out[0].Active)
}

func TestAddrStringCollapsesWildcard(t *testing.T) {
	require.Equal(t, "", addrString([]byte{0, 0, 0, 0}))
	require.Equal(t, "192.168.1.1", addrString([]byte{192, 168, 1, 1}))
}
