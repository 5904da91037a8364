//go:build integration

package integration

import (
	"net/netip"
	"testing"
	"time"

	"github.com/encodeous/ospf6rde/core"
	"github.com/encodeous/ospf6rde/imsg"
	"github.com/encodeous/ospf6rde/lsa"
	"github.com/encodeous/ospf6rde/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	state.DBG_log_spf = true
	state.DBG_log_flood = true
	state.DBG_log_rib = true
	m.Run()
}

func verifyNone(t *testing.T) {
	// the signal loop lives for the rest of the process once started
	goleak.VerifyNone(t, goleak.IgnoreAnyFunction("os/signal.loop"))
}

func TestStartStop(t *testing.T) {
	defer verifyNone(t)
	h := NewHarness(t, "1.1.1.1")
	h.AddIface("0.0.0.0", 1, state.IfacePointToPoint, "2001:db8:1::1/64")
	h.Start(t)

	msgs := h.Query(t, imsg.CtlShowSummary)
	require.NotEmpty(t, msgs)
	sum, err := imsg.DecodeCtlSummary(msgs[0])
	require.NoError(t, err)
	assert.Equal(t, "1.1.1.1", lsa.IDString(sum.RouterID))
	assert.Equal(t, uint32(1), sum.NumArea)
	assert.Equal(t, state.SpfDelay, sum.SpfDelay)

	err = h.Stop(t)
	require.ErrorContains(t, err, "engine channel")
}

func TestRedistributeFloods(t *testing.T) {
	defer verifyNone(t)
	h := NewHarness(t, "1.1.1.1")
	h.AddIface("0.0.0.0", 1, state.IfacePointToPoint, "2001:db8:1::1/64")
	h.Start(t)

	pfx := netip.MustParsePrefix("2001:db8:100::/48")
	h.Parent.Send(t, imsg.NetworkAdd, 0, imsg.EncodeKRoutes(imsg.KRoute{Prefix: pfx}))

	m := h.Engine.Expect(t, imsg.LSFlood, 5*time.Second)
	assert.Equal(t, uint32(state.NbrIDSelf), m.PeerID)
	l, err := lsa.Parse(m.Data)
	require.NoError(t, err)
	ext, ok := l.Body.(*lsa.ASExternal)
	require.True(t, ok, "flooded %s", l.Key())
	assert.Equal(t, pfx, ext.Prefix.Prefix)
	assert.Equal(t, uint32(100), ext.Metric)

	external := 0
	for _, m := range h.Query(t, imsg.CtlShowDatabase) {
		if m.Type != imsg.CtlLSA {
			continue
		}
		rec, err := imsg.DecodeCtlLSA(m)
		require.NoError(t, err)
		if rec.Scope == lsa.ScopeAS {
			external++
		}
	}
	assert.Equal(t, 1, external)

	require.ErrorContains(t, h.Stop(t), "engine channel")
}

func TestCtlUnknownQuery(t *testing.T) {
	defer verifyNone(t)
	h := NewHarness(t, "1.1.1.1")
	h.Start(t)

	h.Query(t, imsg.CtlShowSummary)
	_, err := core.CtlQuery(h.Config.Sockets.Control, imsg.KRouteGet)
	require.Error(t, err)

	require.ErrorContains(t, h.Stop(t), "engine channel")
}
