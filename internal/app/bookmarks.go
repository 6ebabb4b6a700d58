package app

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"parchment/internal/adapters/observability"
	"parchment/internal/domain"
)

type BookmarkState int

const (
	BookmarksUninitialized BookmarkState = iota
	BookmarksLoading
	BookmarksReady
)

// BookmarkStore reconciles the local bookmark cache with the remote per-user
// set. Writes are two-phase: the in-memory set and the local cache are updated
// synchronously first, then the remote write is attempted best-effort. Remote
// failures are logged and never surfaced; local state is not rolled back.
type BookmarkStore struct {
	backend domain.Backend
	local   domain.LocalStore
	log     zerolog.Logger

	mu     sync.Mutex
	state  BookmarkState
	ids    map[string]struct{}
	places []domain.Place
}

func NewBookmarkStore(b domain.Backend, l domain.LocalStore, log zerolog.Logger) *BookmarkStore {
	return &BookmarkStore{
		backend: b,
		local:   l,
		log:     log,
		ids:     make(map[string]struct{}),
	}
}

func (s *BookmarkStore) State() BookmarkState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Load populates the store. With a userID a successful remote read is
// authoritative, including an empty set, and refreshes the local cache;
// without one, or when the remote read fails, the local cache is the
// fallback. Load always ends Ready.
func (s *BookmarkStore) Load(ctx context.Context, userID string) {
	s.mu.Lock()
	s.state = BookmarksLoading
	s.mu.Unlock()

	places, fromRemote := s.fetch(ctx, userID)

	s.mu.Lock()
	s.places = places
	s.ids = make(map[string]struct{}, len(places))
	for _, p := range places {
		s.ids[p.ID] = struct{}{}
	}
	s.state = BookmarksReady
	if fromRemote {
		if err := s.local.SaveBookmarks(places); err != nil {
			s.log.Warn().Err(err).Msg("bookmark cache refresh failed")
		}
	}
	s.mu.Unlock()
}

// fetch resolves the bookmark set, reporting whether it came from the remote
// store (and should refresh the local cache).
func (s *BookmarkStore) fetch(ctx context.Context, userID string) ([]domain.Place, bool) {
	if userID == "" {
		return s.loadLocal(), false
	}
	ids, err := s.backend.FetchBookmarkPlaceIDs(ctx, userID)
	if err != nil {
		observability.ObserveBookmarkSyncFailure("load")
		s.log.Warn().Err(err).Str("user_id", userID).Msg("remote bookmark read failed, using local cache")
		return s.loadLocal(), false
	}
	if len(ids) == 0 {
		// the user genuinely has no bookmarks; stale local entries go too
		return nil, true
	}
	places, err := s.backend.FetchPlacesByIDs(ctx, ids)
	if err != nil {
		observability.ObserveBookmarkSyncFailure("load")
		s.log.Warn().Err(err).Str("user_id", userID).Msg("bookmarked place fetch failed, using local cache")
		return s.loadLocal(), false
	}
	return places, true
}

func (s *BookmarkStore) loadLocal() []domain.Place {
	places, err := s.local.LoadBookmarks()
	if err != nil {
		s.log.Warn().Err(err).Msg("local bookmark cache read failed")
		return nil
	}
	return places
}

// Add bookmarks a place. Adding an already-bookmarked place is a no-op.
func (s *BookmarkStore) Add(ctx context.Context, place domain.Place, userID string) {
	s.mu.Lock()
	if _, ok := s.ids[place.ID]; ok {
		s.mu.Unlock()
		return
	}
	s.places = append([]domain.Place{place}, s.places...) // newest first
	s.ids[place.ID] = struct{}{}
	// persist under the lock so concurrent mutations cannot write snapshots
	// out of order
	if err := s.local.SaveBookmarks(append([]domain.Place(nil), s.places...)); err != nil {
		s.log.Warn().Err(err).Msg("local bookmark cache write failed")
	}
	s.mu.Unlock()

	if userID != "" {
		if err := s.backend.UpsertBookmark(ctx, userID, place.ID); err != nil {
			observability.ObserveBookmarkSyncFailure("upsert")
			s.log.Warn().Err(err).Str("place_id", place.ID).Msg("bookmark sync failed")
		}
	}
}

func (s *BookmarkStore) Remove(ctx context.Context, placeID, userID string) {
	s.mu.Lock()
	if _, ok := s.ids[placeID]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.ids, placeID)
	kept := s.places[:0:0]
	for _, p := range s.places {
		if p.ID != placeID {
			kept = append(kept, p)
		}
	}
	s.places = kept
	if err := s.local.SaveBookmarks(append([]domain.Place(nil), s.places...)); err != nil {
		s.log.Warn().Err(err).Msg("local bookmark cache write failed")
	}
	s.mu.Unlock()

	if userID != "" {
		if err := s.backend.DeleteBookmark(ctx, userID, placeID); err != nil {
			observability.ObserveBookmarkSyncFailure("delete")
			s.log.Warn().Err(err).Str("place_id", placeID).Msg("bookmark remove sync failed")
		}
	}
}

// Toggle removes the place if bookmarked, otherwise adds it. Returns the new
// membership state.
func (s *BookmarkStore) Toggle(ctx context.Context, place domain.Place, userID string) bool {
	if s.IsBookmarked(place.ID) {
		s.Remove(ctx, place.ID, userID)
		return false
	}
	s.Add(ctx, place, userID)
	return true
}

func (s *BookmarkStore) IsBookmarked(placeID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ids[placeID]
	return ok
}

// Places returns the current bookmarked places, newest first.
func (s *BookmarkStore) Places() []domain.Place {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Place(nil), s.places...)
}
