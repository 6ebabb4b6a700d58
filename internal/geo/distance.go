package geo

import (
	"math"
	"sort"

	"parchment/internal/domain"
)

const earthRadiusKm = 6371

// DistanceKm returns the great-circle distance between two points using the
// Haversine formula.
func DistanceKm(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c
}

// SortByProximity orders places by ascending distance from (lat, lng).
// Places without coordinates sort after all located places, keeping their
// relative order. The input slice is not modified.
func SortByProximity(places []domain.Place, lat, lng float64) []domain.Place {
	out := make([]domain.Place, len(places))
	copy(out, places)
	sort.SliceStable(out, func(i, j int) bool {
		di, iok := placeDistance(out[i], lat, lng)
		dj, jok := placeDistance(out[j], lat, lng)
		if iok != jok {
			return iok
		}
		if !iok {
			return false
		}
		return di < dj
	})
	return out
}

func placeDistance(p domain.Place, lat, lng float64) (float64, bool) {
	if p.Lat == nil || p.Lng == nil {
		return 0, false
	}
	return DistanceKm(lat, lng, *p.Lat, *p.Lng), true
}
