package geo_test

import (
	"math"
	"testing"

	"parchment/internal/domain"
	"parchment/internal/geo"
)

func TestDistanceKm_Symmetry(t *testing.T) {
	// Seoul and Tokyo
	d1 := geo.DistanceKm(37.5665, 126.9780, 35.6762, 139.6503)
	d2 := geo.DistanceKm(35.6762, 139.6503, 37.5665, 126.9780)
	if math.Abs(d1-d2) > 1e-9 {
		t.Fatalf("distance not symmetric: %f vs %f", d1, d2)
	}
	// Known to be roughly 1150 km
	if d1 < 1100 || d1 > 1200 {
		t.Fatalf("Seoul-Tokyo distance out of range: %f", d1)
	}
}

func TestDistanceKm_Identity(t *testing.T) {
	if d := geo.DistanceKm(37.5665, 126.9780, 37.5665, 126.9780); d != 0 {
		t.Fatalf("distance to self: %f", d)
	}
}

func TestDistanceKm_TriangleInequality(t *testing.T) {
	// Seoul, Tokyo, Busan
	seoul := [2]float64{37.5665, 126.9780}
	tokyo := [2]float64{35.6762, 139.6503}
	busan := [2]float64{35.1796, 129.0756}

	ab := geo.DistanceKm(seoul[0], seoul[1], tokyo[0], tokyo[1])
	ac := geo.DistanceKm(seoul[0], seoul[1], busan[0], busan[1])
	cb := geo.DistanceKm(busan[0], busan[1], tokyo[0], tokyo[1])
	if ab > ac+cb+1e-6 {
		t.Fatalf("triangle inequality violated: %f > %f + %f", ab, ac, cb)
	}
}

func TestSortByProximity(t *testing.T) {
	pf := func(f float64) *float64 { return &f }
	places := []domain.Place{
		{ID: "far", Lat: pf(35.6762), Lng: pf(139.6503)},  // Tokyo
		{ID: "nowhere"},                                   // no coords
		{ID: "near", Lat: pf(37.5519), Lng: pf(126.9918)}, // Namsan
		{ID: "mid", Lat: pf(35.1796), Lng: pf(129.0756)},  // Busan
	}

	got := geo.SortByProximity(places, 37.5665, 126.9780) // Seoul city hall
	want := []string{"near", "mid", "far", "nowhere"}
	for i, id := range want {
		if got[i].ID != id {
			t.Fatalf("position %d: got %s want %s", i, got[i].ID, id)
		}
	}

	// input untouched
	if places[0].ID != "far" {
		t.Fatalf("input slice was reordered")
	}
}
