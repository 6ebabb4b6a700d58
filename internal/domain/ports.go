package domain

import (
	"context"
	"errors"
)

var (
	ErrNotFound     = errors.New("backend: not found")
	ErrUnauthorized = errors.New("backend: unauthorized")
	ErrForbidden    = errors.New("backend: forbidden")
	ErrNoSession    = errors.New("auth: no session")
)

// Backend is the remote managed store: places, regions and per-user bookmarks.
type Backend interface {
	FetchPublishedPlaces(ctx context.Context) ([]Place, error)
	FetchRegions(ctx context.Context) ([]Region, error)
	FetchPlacesByIDs(ctx context.Context, ids []string) ([]Place, error)
	SubmitPlace(ctx context.Context, d PlaceDraft) (Place, error)

	FetchBookmarkPlaceIDs(ctx context.Context, userID string) ([]string, error)
	UpsertBookmark(ctx context.Context, userID, placeID string) error
	DeleteBookmark(ctx context.Context, userID, placeID string) error
}

// AuthClient talks to the backend's auth endpoints. Implementations must not
// retain session state; the AuthManager owns the current session.
type AuthClient interface {
	SignInAnonymously(ctx context.Context) (Session, error)
	SignUpWithPassword(ctx context.Context, email, password, name string) (Session, error)
	SignInWithPassword(ctx context.Context, email, password string) (Session, error)
	// LinkIdentity attaches email/password to an existing (anonymous) session,
	// preserving its UserID.
	LinkIdentity(ctx context.Context, s Session, email, password, name string) (Session, error)
	RefreshSession(ctx context.Context, s Session) (Session, error)
	SignOut(ctx context.Context, s Session) error
}

type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttlSec int) error
	Del(ctx context.Context, key string) error
}

// LocalStore is the device-local persistence used when no session is
// available: the bookmark snapshot, the persisted session, and a stable
// installation id.
type LocalStore interface {
	LoadBookmarks() ([]Place, error)
	SaveBookmarks(ps []Place) error
	LoadSession() (*Session, error)
	SaveSession(s Session) error
	ClearSession() error
	InstallationID() (string, error)
}
