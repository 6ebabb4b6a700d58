package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"parchment/internal/domain"
)

type fakeBackend struct {
	places  []domain.Place
	regions []domain.Region

	bookmarkIDs   []string
	bookmarkErr   error
	placesByIDErr error

	upserts   []string
	deletes   []string
	upsertErr error

	placesCalls  int
	regionsCalls int
}

func (f *fakeBackend) FetchPublishedPlaces(ctx context.Context) ([]domain.Place, error) {
	f.placesCalls++
	return f.places, nil
}

func (f *fakeBackend) FetchRegions(ctx context.Context) ([]domain.Region, error) {
	f.regionsCalls++
	return f.regions, nil
}

func (f *fakeBackend) FetchPlacesByIDs(ctx context.Context, ids []string) ([]domain.Place, error) {
	if f.placesByIDErr != nil {
		return nil, f.placesByIDErr
	}
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	var out []domain.Place
	for _, p := range f.places {
		if _, ok := want[p.ID]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeBackend) SubmitPlace(ctx context.Context, d domain.PlaceDraft) (domain.Place, error) {
	return domain.Place{ID: "submitted", Name: d.Name, Status: domain.StatusPending}, nil
}

func (f *fakeBackend) FetchBookmarkPlaceIDs(ctx context.Context, userID string) ([]string, error) {
	if f.bookmarkErr != nil {
		return nil, f.bookmarkErr
	}
	return f.bookmarkIDs, nil
}

func (f *fakeBackend) UpsertBookmark(ctx context.Context, userID, placeID string) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upserts = append(f.upserts, userID+"/"+placeID)
	return nil
}

func (f *fakeBackend) DeleteBookmark(ctx context.Context, userID, placeID string) error {
	f.deletes = append(f.deletes, userID+"/"+placeID)
	return nil
}

type fakeLocalStore struct {
	bookmarks []domain.Place
	session   *domain.Session
	saves     int
	loadErr   error
}

func (f *fakeLocalStore) LoadBookmarks() ([]domain.Place, error) {
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return f.bookmarks, nil
}

func (f *fakeLocalStore) SaveBookmarks(ps []domain.Place) error {
	f.bookmarks = append([]domain.Place(nil), ps...)
	f.saves++
	return nil
}

func (f *fakeLocalStore) LoadSession() (*domain.Session, error) { return f.session, nil }

func (f *fakeLocalStore) SaveSession(s domain.Session) error {
	f.session = &s
	return nil
}

func (f *fakeLocalStore) ClearSession() error {
	f.session = nil
	return nil
}

func (f *fakeLocalStore) InstallationID() (string, error) { return "inst-1", nil }

func bookmarkPlace(id, name string) domain.Place {
	return domain.Place{ID: id, Name: name, City: "Seoul", Category: domain.CategoryRestaurant, Status: domain.StatusPublished}
}

func TestBookmarkStoreLoadRemoteAuthoritative(t *testing.T) {
	be := &fakeBackend{
		places:      []domain.Place{bookmarkPlace("p1", "Onion"), bookmarkPlace("p2", "Fritz")},
		bookmarkIDs: []string{"p2"},
	}
	local := &fakeLocalStore{bookmarks: []domain.Place{bookmarkPlace("stale", "Gone")}}
	store := NewBookmarkStore(be, local, zerolog.Nop())

	store.Load(context.Background(), "user-1")

	if store.State() != BookmarksReady {
		t.Fatalf("state = %v, want ready", store.State())
	}
	got := store.Places()
	if len(got) != 1 || got[0].ID != "p2" {
		t.Fatalf("places = %+v, want [p2]", got)
	}
	if local.saves != 1 {
		t.Fatalf("local cache refreshes = %d, want 1", local.saves)
	}
	if local.bookmarks[0].ID != "p2" {
		t.Fatalf("local cache = %+v, want remote snapshot", local.bookmarks)
	}
}

func TestBookmarkStoreLoadEmptyRemoteIsAuthoritative(t *testing.T) {
	be := &fakeBackend{bookmarkIDs: nil}
	local := &fakeLocalStore{bookmarks: []domain.Place{bookmarkPlace("p1", "Onion")}}
	store := NewBookmarkStore(be, local, zerolog.Nop())

	store.Load(context.Background(), "user-1")

	// a successful remote read wins even when empty: the user has no
	// bookmarks, so stale local entries are dropped
	if got := store.Places(); len(got) != 0 {
		t.Fatalf("places = %+v, want empty set adopted from remote", got)
	}
	if local.saves != 1 || len(local.bookmarks) != 0 {
		t.Fatalf("local cache = %+v (saves=%d), want overwritten with empty snapshot", local.bookmarks, local.saves)
	}
}

func TestBookmarkStoreLoadRemoteFailureFallsBackToLocal(t *testing.T) {
	be := &fakeBackend{bookmarkErr: errors.New("backend down")}
	local := &fakeLocalStore{bookmarks: []domain.Place{bookmarkPlace("p1", "Onion")}}
	store := NewBookmarkStore(be, local, zerolog.Nop())

	store.Load(context.Background(), "user-1")

	if store.State() != BookmarksReady {
		t.Fatalf("state = %v, want ready despite remote failure", store.State())
	}
	if got := store.Places(); len(got) != 1 || got[0].ID != "p1" {
		t.Fatalf("places = %+v, want local fallback", got)
	}
}

func TestBookmarkStoreAddIsIdempotent(t *testing.T) {
	be := &fakeBackend{}
	local := &fakeLocalStore{}
	store := NewBookmarkStore(be, local, zerolog.Nop())
	store.Load(context.Background(), "")

	p := bookmarkPlace("p1", "Onion")
	store.Add(context.Background(), p, "user-1")
	store.Add(context.Background(), p, "user-1")

	if got := store.Places(); len(got) != 1 {
		t.Fatalf("places = %+v, want single entry", got)
	}
	if len(be.upserts) != 1 {
		t.Fatalf("remote upserts = %v, want exactly one", be.upserts)
	}
}

func TestBookmarkStoreLocalOnlyWithoutUser(t *testing.T) {
	be := &fakeBackend{}
	local := &fakeLocalStore{}
	store := NewBookmarkStore(be, local, zerolog.Nop())
	store.Load(context.Background(), "")

	store.Add(context.Background(), bookmarkPlace("p1", "Onion"), "")

	if !store.IsBookmarked("p1") {
		t.Fatal("place not bookmarked locally")
	}
	if local.saves != 1 {
		t.Fatalf("local saves = %d, want 1", local.saves)
	}
	if len(be.upserts) != 0 {
		t.Fatalf("remote upserts = %v, want none without a session", be.upserts)
	}
}

func TestBookmarkStoreRemoteWriteFailureKeepsLocalState(t *testing.T) {
	be := &fakeBackend{upsertErr: errors.New("backend down")}
	local := &fakeLocalStore{}
	store := NewBookmarkStore(be, local, zerolog.Nop())
	store.Load(context.Background(), "user-1")

	store.Add(context.Background(), bookmarkPlace("p1", "Onion"), "user-1")

	if !store.IsBookmarked("p1") {
		t.Fatal("remote failure must not roll back the local bookmark")
	}
	if local.saves != 1 {
		t.Fatalf("local saves = %d, want 1", local.saves)
	}
}

func TestBookmarkStoreToggle(t *testing.T) {
	be := &fakeBackend{}
	local := &fakeLocalStore{}
	store := NewBookmarkStore(be, local, zerolog.Nop())
	store.Load(context.Background(), "user-1")

	p := bookmarkPlace("p1", "Onion")
	if on := store.Toggle(context.Background(), p, "user-1"); !on {
		t.Fatal("first toggle should bookmark")
	}
	if on := store.Toggle(context.Background(), p, "user-1"); on {
		t.Fatal("second toggle should remove")
	}
	if store.IsBookmarked("p1") {
		t.Fatal("toggle pair must be an involution")
	}
	if len(be.upserts) != 1 || len(be.deletes) != 1 {
		t.Fatalf("remote calls = %v / %v, want one upsert and one delete", be.upserts, be.deletes)
	}
}

func TestBookmarkStoreConcurrentWritesKeepCacheConsistent(t *testing.T) {
	local := &fakeLocalStore{}
	store := NewBookmarkStore(&fakeBackend{}, local, zerolog.Nop())
	store.Load(context.Background(), "")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			store.Add(context.Background(), bookmarkPlace(fmt.Sprintf("p%d", n), "Place"), "")
		}(i)
	}
	wg.Wait()

	got := store.Places()
	if len(got) != 20 {
		t.Fatalf("places = %d, want 20", len(got))
	}
	// the persisted snapshot must reflect the final in-memory state, not an
	// older interleaving
	if len(local.bookmarks) != 20 {
		t.Fatalf("local cache = %d entries, want 20", len(local.bookmarks))
	}
	for _, p := range got {
		if !store.IsBookmarked(p.ID) {
			t.Fatalf("place %s missing from the set", p.ID)
		}
	}
}

func TestBookmarkStoreNewestFirst(t *testing.T) {
	store := NewBookmarkStore(&fakeBackend{}, &fakeLocalStore{}, zerolog.Nop())
	store.Load(context.Background(), "")

	store.Add(context.Background(), bookmarkPlace("p1", "Onion"), "")
	store.Add(context.Background(), bookmarkPlace("p2", "Fritz"), "")

	got := store.Places()
	if len(got) != 2 || got[0].ID != "p2" || got[1].ID != "p1" {
		t.Fatalf("order = %+v, want newest first", got)
	}
}
