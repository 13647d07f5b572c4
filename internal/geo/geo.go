// Package geo ranks stations by great-circle distance from a point.
// Coordinates arrive as integer microdegrees, matching registry storage.
package geo

import (
	"math"
	"sort"

	"github.com/mktetts/sei-solar-depin/internal/engine/station"
)

const earthRadiusKm = 6371.0

// HaversineKm returns the great-circle distance in kilometres between two
// points given in microdegrees.
func HaversineKm(lat1, lon1, lat2, lon2 int64) float64 {
	la1 := micro(lat1)
	la2 := micro(lat2)
	dLat := micro(lat2 - lat1)
	dLon := micro(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(la1)*math.Cos(la2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

func micro(v int64) float64 {
	return float64(v) / 1e6 * math.Pi / 180
}

// Ranked pairs a station with its distance from the query point.
type Ranked struct {
	Station    station.Record
	DistanceKm float64
}

// Nearest returns up to limit stations ordered by ascending distance from
// (latMicro, lonMicro). limit <= 0 means all.
func Nearest(stations []station.Record, latMicro, lonMicro int64, limit int) []Ranked {
	out := make([]Ranked, 0, len(stations))
	for _, st := range stations {
		out = append(out, Ranked{
			Station:    st,
			DistanceKm: HaversineKm(latMicro, lonMicro, st.LatitudeMicro, st.LongitudeMicro),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DistanceKm < out[j].DistanceKm })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
