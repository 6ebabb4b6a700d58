package domain

import "time"

// Session is a backend-issued identity. Anonymous sessions carry no email;
// linking credentials to an anonymous session keeps the same UserID, which is
// what preserves bookmarks written before sign-up.
type Session struct {
	UserID       string    `json:"user_id"`
	Email        *string   `json:"email"`
	Name         *string   `json:"name"`
	AvatarURL    *string   `json:"avatar_url"`
	IsAnonymous  bool      `json:"is_anonymous"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Expired reports whether the access token is past (or within skew of) its
// expiry and should be refreshed before use.
func (s Session) Expired(skew time.Duration) bool {
	if s.ExpiresAt.IsZero() {
		return false
	}
	return time.Now().Add(skew).After(s.ExpiresAt)
}

type AuthState string

const (
	AuthUninitialized AuthState = "uninitialized"
	AuthInitializing  AuthState = "initializing"
	AuthAnonymous     AuthState = "anonymous"
	AuthAuthenticated AuthState = "authenticated"
)
