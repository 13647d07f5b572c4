package geo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mktetts/sei-solar-depin/internal/engine/station"
)

func TestHaversineKm(t *testing.T) {
	// One degree of longitude on the equator.
	d := HaversineKm(0, 0, 0, 1_000_000)
	assert.InDelta(t, 111.19, d, 0.2)

	// Bengaluru to Chennai, roughly 290 km.
	d = HaversineKm(12_971_598, 77_594_566, 13_082_680, 80_270_718)
	assert.InDelta(t, 290, d, 10)

	assert.Zero(t, HaversineKm(12_971_598, 77_594_566, 12_971_598, 77_594_566))
}

func TestNearest(t *testing.T) {
	r, err := station.New("operator")
	require.NoError(t, err)

	at := time.Now()
	far, err := r.Register("owner", "FAR", "d", 1, 1, "a", 13_082_680, 80_270_718, at)
	require.NoError(t, err)
	near, err := r.Register("owner", "NEAR", "d", 1, 1, "a", 12_971_598, 77_594_566, at)
	require.NoError(t, err)

	ranked := Nearest(r.All(), 12_900_000, 77_500_000, 0)
	require.Len(t, ranked, 2)
	assert.Equal(t, near, ranked[0].Station.ID)
	assert.Equal(t, far, ranked[1].Station.ID)
	assert.Less(t, ranked[0].DistanceKm, ranked[1].DistanceKm)

	limited := Nearest(r.All(), 12_900_000, 77_500_000, 1)
	require.Len(t, limited, 1)
	assert.Equal(t, near, limited[0].Station.ID)
}
