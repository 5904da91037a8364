package state

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInterface_Addrs(t *testing.T) {
	i := NewInterface(2, "eth0", 0, IfaceBroadcast)
	assert.Equal(t, IfaceStateDown, i.State)
	p := netip.MustParsePrefix("2001:db8::1/64")
	assert.True(t, i.AddAddr(p))
	assert.False(t, i.AddAddr(p))
	assert.True(t, i.DelAddr(p))
	assert.False(t, i.DelAddr(p))
	assert.Empty(t, i.Addrs)
}

func TestArea_Ifaces(t *testing.T) {
	a := NewArea(1, true)
	a.AddIface(5)
	a.AddIface(2)
	a.AddIface(5)
	assert.Equal(t, []uint32{2, 5}, a.Ifaces)
	a.DelIface(5)
	assert.Equal(t, []uint32{2}, a.Ifaces)
}

func TestParseIfaceType(t *testing.T) {
	for _, s := range []string{"point-to-point", "broadcast", "nbma", "point-to-multipoint", "virtual"} {
		it, err := ParseIfaceType(s)
		assert.NoError(t, err)
		assert.Equal(t, s, it.String())
	}
	_, err := ParseIfaceType("loopback")
	assert.Error(t, err)
	assert.True(t, IfaceBroadcast.Multiaccess())
	assert.False(t, IfacePointToPoint.Multiaccess())
}
