package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestreldns/kestrel/internal/data"
)

func TestCollectorCounters(t *testing.T) {
	c := NewCollector()
	c.RecordQuery("udp")
	c.RecordQuery("udp")
	c.RecordQuery("tcp")
	c.RecordDropped()
	c.RecordTimeout()

	snap := c.Snapshot()
	require.Equal(t, data.Map, snap.GetType())

	get := func(path string) int32 {
		el, ok := snap.FindOK(path)
		require.True(t, ok, "missing %s", path)
		v, err := el.IntValue()
		require.NoError(t, err)
		return v
	}

	assert.Equal(t, int32(3), get("queries/total"))
	assert.Equal(t, int32(2), get("queries/udp"))
	assert.Equal(t, int32(1), get("queries/tcp"))
	assert.Equal(t, int32(1), get("queries/dropped"))
	assert.Equal(t, int32(1), get("queries/tcp_timeouts"))
}

func TestSnapshotIsWireEncodable(t *testing.T) {
	snap := NewCollector().Snapshot()

	enc, err := snap.ToWire(false)
	require.NoError(t, err)
	dec, err := data.FromWire(enc)
	require.NoError(t, err)
	assert.True(t, data.Equal(snap, dec))

	// and the text form re-parses
	again, err := data.FromString(snap.Str())
	require.NoError(t, err)
	assert.True(t, data.Equal(snap, again))
}

func TestClampCounter(t *testing.T) {
	assert.Equal(t, int32(7), clampCounter(7))
	assert.Equal(t, int32(1<<31-1), clampCounter(1<<40))
}
