package backend_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"parchment/internal/adapters/backend"
	"parchment/internal/domain"
)

func TestFetchPublishedPlaces_RetriesThenSuccess(t *testing.T) {
	var hits int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch atomic.AddInt32(&hits, 1) {
		case 1, 2:
			// two transient failures
			w.WriteHeader(500)
		default:
			if got := r.URL.Query().Get("status"); got != "eq.published" {
				t.Errorf("status filter missing, got %q", got)
			}
			w.WriteHeader(200)
			_ = json.NewEncoder(w).Encode([]map[string]any{{"id": "p1", "name": "Onyx", "city": "Seoul"}})
		}
	}))
	defer ts.Close()

	cl, err := backend.New(ts.URL, "anon-key", 100) // high RPS for tests
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	got, err := cl.FetchPublishedPlaces(ctx)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(got) != 1 || got[0].ID != "p1" {
		t.Fatalf("unexpected payload: %+v", got)
	}
	if atomic.LoadInt32(&hits) < 3 {
		t.Fatalf("expected at least 3 calls due to retries, got %d", hits)
	}
}

func TestUpsertBookmark_SendsMergeDuplicates(t *testing.T) {
	var gotPrefer, gotAuth string
	var gotBody map[string]string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPrefer = r.Header.Get("Prefer")
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusCreated)
	}))
	defer ts.Close()

	cl, _ := backend.New(ts.URL, "anon-key", 100)
	cl.SetAccessToken("user-token")

	if err := cl.UpsertBookmark(context.Background(), "u1", "p1"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if gotPrefer != "resolution=merge-duplicates" {
		t.Fatalf("Prefer header: %q", gotPrefer)
	}
	if gotAuth != "Bearer user-token" {
		t.Fatalf("Authorization header: %q", gotAuth)
	}
	if gotBody["user_id"] != "u1" || gotBody["place_id"] != "p1" {
		t.Fatalf("unexpected body: %+v", gotBody)
	}
}

func TestFetchBookmarkPlaceIDs(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("user_id"); got != "eq.u1" {
			t.Errorf("user filter: %q", got)
		}
		_ = json.NewEncoder(w).Encode([]map[string]string{{"place_id": "p1"}, {"place_id": "p2"}})
	}))
	defer ts.Close()

	cl, _ := backend.New(ts.URL, "anon-key", 100)
	ids, err := cl.FetchBookmarkPlaceIDs(context.Background(), "u1")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(ids) != 2 || ids[0] != "p1" || ids[1] != "p2" {
		t.Fatalf("unexpected ids: %v", ids)
	}
}

func TestFetchPlacesByIDs_EmptySkipsNetwork(t *testing.T) {
	cl, _ := backend.New("http://127.0.0.1:1", "anon-key", 100) // nothing listening
	got, err := cl.FetchPlacesByIDs(context.Background(), nil)
	if err != nil || got != nil {
		t.Fatalf("expected no-op, got %v err=%v", got, err)
	}
}

func TestSubmitPlace_PendingStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["status"] != "pending" {
			t.Errorf("status: %v", body["status"])
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode([]map[string]any{{"id": "new", "name": body["name"], "status": "pending"}})
	}))
	defer ts.Close()

	cl, _ := backend.New(ts.URL, "anon-key", 100)
	p, err := cl.SubmitPlace(context.Background(), domain.PlaceDraft{Name: "New Cafe", City: "Seoul", Category: domain.CategoryCafe})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if p.ID != "new" || p.Status != domain.StatusPending {
		t.Fatalf("unexpected place: %+v", p)
	}
}

func TestDo_NotFound(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	defer ts.Close()

	cl, _ := backend.New(ts.URL, "anon-key", 100)
	_, err := cl.FetchRegions(context.Background())
	if err != domain.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
