package httpserver

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"parchment/internal/app"
	"parchment/internal/domain"
)

type Handlers struct {
	Directory *app.DirectoryService
	Bookmarks *app.BookmarkStore
	Auth      *app.AuthManager
}

type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

func (s *Server) MountHandlers(h *Handlers) {
	s.mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("ok")) })

	s.mux.Get("/v1/places", h.listPlaces)
	s.mux.Post("/v1/places", h.submitPlace)
	s.mux.Get("/v1/places/{id}", h.getPlace)
	s.mux.Get("/v1/regions", h.listRegions)

	s.mux.Get("/v1/bookmarks", h.listBookmarks)
	s.mux.Put("/v1/bookmarks/{id}", h.addBookmark)
	s.mux.Delete("/v1/bookmarks/{id}", h.removeBookmark)
	s.mux.Post("/v1/bookmarks/{id}/toggle", h.toggleBookmark)

	s.mux.Post("/v1/auth/signup", h.signUp)
	s.mux.Post("/v1/auth/signin", h.signIn)
	s.mux.Post("/v1/auth/signout", h.signOut)
	s.mux.Get("/v1/auth/session", h.getSession)
}

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(problem{Type: "about:blank", Title: title, Status: status, Detail: detail}); err != nil {
		log.Error().Err(err).Msg("write JSON problem response failed")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("write JSON response failed")
	}
}

// calcETagAndBody marshals once and hashes once, returning both ETag and body.
func calcETagAndBody(v any) (string, []byte) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal object for ETag/body")
		return "", nil
	}
	sum := sha1.Sum(body)
	etag := `W/"` + hex.EncodeToString(sum[:]) + `"`
	return etag, body
}

// writeCached sends v with an ETag, answering 304 when the client already has
// this version.
func writeCached(w http.ResponseWriter, r *http.Request, v any) {
	etag, body := calcETagAndBody(v)
	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == etag {
		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("ETag", etag)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Msg("failed to write response body")
	}
}

func parseCoord(s string) (*float64, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (h *Handlers) listPlaces(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, errLat := parseCoord(q.Get("lat"))
	lng, errLng := parseCoord(q.Get("lng"))
	if errLat != nil || errLng != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid coordinates", "lat and lng must be decimal degrees")
		return
	}
	if (lat == nil) != (lng == nil) {
		writeProblem(w, http.StatusBadRequest, "Invalid coordinates", "lat and lng must be provided together")
		return
	}

	query := app.PlaceQuery{
		Category: domain.Category(q.Get("category")),
		Query:    q.Get("q"),
		Lat:      lat,
		Lng:      lng,
	}
	places, err := h.Directory.ListPlaces(r.Context(), query)
	if err != nil {
		writeProblem(w, http.StatusBadGateway, "Upstream Error", "place list unavailable")
		return
	}
	if places == nil {
		places = []domain.Place{}
	}
	writeCached(w, r, places)
}

func (h *Handlers) getPlace(w http.ResponseWriter, r *http.Request) {
	p, err := h.Directory.Place(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeProblem(w, http.StatusNotFound, "Not Found", "place not found")
			return
		}
		writeProblem(w, http.StatusBadGateway, "Upstream Error", "place unavailable")
		return
	}
	writeCached(w, r, p)
}

func (h *Handlers) submitPlace(w http.ResponseWriter, r *http.Request) {
	var d domain.PlaceDraft
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid Body", "malformed place draft")
		return
	}
	if d.Name == "" || d.City == "" || d.Category == "" {
		writeProblem(w, http.StatusBadRequest, "Invalid Body", "name, city and category are required")
		return
	}
	p, err := h.Directory.Submit(r.Context(), d)
	if err != nil {
		if errors.Is(err, domain.ErrUnauthorized) || errors.Is(err, domain.ErrForbidden) {
			writeProblem(w, http.StatusForbidden, "Forbidden", "submission rejected")
			return
		}
		writeProblem(w, http.StatusBadGateway, "Upstream Error", "submission failed")
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *Handlers) listRegions(w http.ResponseWriter, r *http.Request) {
	tree, err := h.Directory.Grouped(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeProblem(w, http.StatusBadGateway, "Upstream Error", "region tree unavailable")
		return
	}
	if tree == nil {
		tree = []domain.CountryGroup{}
	}
	writeCached(w, r, tree)
}

func (h *Handlers) listBookmarks(w http.ResponseWriter, r *http.Request) {
	places := h.Bookmarks.Places()
	if places == nil {
		places = []domain.Place{}
	}
	writeJSON(w, http.StatusOK, places)
}

func (h *Handlers) addBookmark(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	p, err := h.Directory.Place(r.Context(), id)
	if err != nil {
		writeProblem(w, http.StatusNotFound, "Not Found", "place not found")
		return
	}
	h.Bookmarks.Add(r.Context(), p, h.Auth.EnsureSession(r.Context()))
	writeJSON(w, http.StatusOK, map[string]bool{"bookmarked": true})
}

func (h *Handlers) removeBookmark(w http.ResponseWriter, r *http.Request) {
	h.Bookmarks.Remove(r.Context(), chi.URLParam(r, "id"), h.Auth.EnsureSession(r.Context()))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) toggleBookmark(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	p, err := h.Directory.Place(r.Context(), id)
	if err != nil {
		writeProblem(w, http.StatusNotFound, "Not Found", "place not found")
		return
	}
	on := h.Bookmarks.Toggle(r.Context(), p, h.Auth.EnsureSession(r.Context()))
	writeJSON(w, http.StatusOK, map[string]bool{"bookmarked": on})
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// sessionView hides tokens from API responses.
type sessionView struct {
	UserID      string  `json:"user_id"`
	Email       *string `json:"email"`
	Name        *string `json:"name"`
	IsAnonymous bool    `json:"is_anonymous"`
	State       string  `json:"state"`
}

func (h *Handlers) viewOf(s *domain.Session) sessionView {
	v := sessionView{State: string(h.Auth.State())}
	if s != nil {
		v.UserID = s.UserID
		v.Email = s.Email
		v.Name = s.Name
		v.IsAnonymous = s.IsAnonymous
	}
	return v
}

func (h *Handlers) signUp(w http.ResponseWriter, r *http.Request) {
	var c credentials
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil || c.Email == "" || c.Password == "" {
		writeProblem(w, http.StatusBadRequest, "Invalid Body", "email and password are required")
		return
	}
	if err := h.Auth.SignUp(r.Context(), c.Email, c.Password, c.Name); err != nil {
		writeProblem(w, http.StatusBadGateway, "Sign-up Failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, h.viewOf(h.Auth.Session()))
}

func (h *Handlers) signIn(w http.ResponseWriter, r *http.Request) {
	var c credentials
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil || c.Email == "" || c.Password == "" {
		writeProblem(w, http.StatusBadRequest, "Invalid Body", "email and password are required")
		return
	}
	if err := h.Auth.SignIn(r.Context(), c.Email, c.Password); err != nil {
		if errors.Is(err, domain.ErrUnauthorized) {
			writeProblem(w, http.StatusUnauthorized, "Unauthorized", "invalid credentials")
			return
		}
		writeProblem(w, http.StatusBadGateway, "Sign-in Failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, h.viewOf(h.Auth.Session()))
}

func (h *Handlers) signOut(w http.ResponseWriter, r *http.Request) {
	h.Auth.SignOut(r.Context())
	writeJSON(w, http.StatusOK, h.viewOf(h.Auth.Session()))
}

func (h *Handlers) getSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.viewOf(h.Auth.Session()))
}
