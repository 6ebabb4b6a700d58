package app

import (
	"context"
	"strings"
	"time"

	"parchment/internal/domain"
	"parchment/internal/geo"
)

// Cache keys, shared with cmd/syncer which pre-warms them.
const (
	CacheKeyPlaces  = "places:published"
	CacheKeyRegions = "regions:all"
)

// DirectoryService serves the browse views: published places and the grouped
// region tree, read through the cache with the backend as source of truth.
type DirectoryService struct {
	backend  domain.Backend
	cache    domain.Cache
	cacheTTL time.Duration
}

func NewDirectoryService(b domain.Backend, c domain.Cache, ttl time.Duration) *DirectoryService {
	return &DirectoryService{backend: b, cache: c, cacheTTL: ttl}
}

func (s *DirectoryService) Places(ctx context.Context) ([]domain.Place, error) {
	var ps []domain.Place
	if ok, _ := s.cache.Get(ctx, CacheKeyPlaces, &ps); ok {
		return ps, nil
	}
	ps, err := s.backend.FetchPublishedPlaces(ctx)
	if err != nil {
		return nil, err
	}
	_ = s.cache.Set(ctx, CacheKeyPlaces, ps, int(s.cacheTTL.Seconds()))
	return ps, nil
}

func (s *DirectoryService) Regions(ctx context.Context) ([]domain.Region, error) {
	var rs []domain.Region
	if ok, _ := s.cache.Get(ctx, CacheKeyRegions, &rs); ok {
		return rs, nil
	}
	rs, err := s.backend.FetchRegions(ctx)
	if err != nil {
		return nil, err
	}
	_ = s.cache.Set(ctx, CacheKeyRegions, rs, int(s.cacheTTL.Seconds()))
	return rs, nil
}

func (s *DirectoryService) Place(ctx context.Context, id string) (domain.Place, error) {
	ps, err := s.Places(ctx)
	if err != nil {
		return domain.Place{}, err
	}
	for _, p := range ps {
		if p.ID == id {
			return p, nil
		}
	}
	return domain.Place{}, domain.ErrNotFound
}

// PlaceQuery narrows the published place list for the home screen.
type PlaceQuery struct {
	Category domain.Category // empty = all
	Query    string          // substring over name/city/vibe
	Lat, Lng *float64        // both set = proximity order
}

func (s *DirectoryService) ListPlaces(ctx context.Context, q PlaceQuery) ([]domain.Place, error) {
	ps, err := s.Places(ctx)
	if err != nil {
		return nil, err
	}
	if q.Category != "" {
		var kept []domain.Place
		for _, p := range ps {
			if p.Category == q.Category {
				kept = append(kept, p)
			}
		}
		ps = kept
	}
	if q.Query != "" {
		needle := strings.ToLower(q.Query)
		var kept []domain.Place
		for _, p := range ps {
			if strings.Contains(strings.ToLower(p.Name), needle) ||
				strings.Contains(strings.ToLower(p.City), needle) ||
				(p.Vibe != nil && strings.Contains(strings.ToLower(*p.Vibe), needle)) {
				kept = append(kept, p)
			}
		}
		ps = kept
	}
	if q.Lat != nil && q.Lng != nil {
		ps = geo.SortByProximity(ps, *q.Lat, *q.Lng)
	}
	return ps, nil
}

// Grouped returns the country → city → sub-region tree, optionally filtered
// by query.
func (s *DirectoryService) Grouped(ctx context.Context, query string) ([]domain.CountryGroup, error) {
	ps, err := s.Places(ctx)
	if err != nil {
		return nil, err
	}
	rs, err := s.Regions(ctx)
	if err != nil {
		return nil, err
	}
	return FilterTree(GroupByRegion(ps, rs), query), nil
}

// Submit forwards a place suggestion for moderation. Pending places are never
// cached; they only become visible after the backend publishes them.
func (s *DirectoryService) Submit(ctx context.Context, d domain.PlaceDraft) (domain.Place, error) {
	return s.backend.SubmitPlace(ctx, d)
}

// Invalidate drops the cached copy for table, called on realtime change
// events. Unknown tables are ignored.
func (s *DirectoryService) Invalidate(ctx context.Context, table string) {
	switch table {
	case "places":
		_ = s.cache.Del(ctx, CacheKeyPlaces)
	case "regions":
		_ = s.cache.Del(ctx, CacheKeyRegions)
	}
}
