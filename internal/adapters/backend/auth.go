package backend

import (
	"context"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"parchment/internal/domain"
)

// GoTrue-style auth endpoints. Every app launch without a prior session signs
// in anonymously; that identity can later be promoted by linking credentials
// to it, which keeps the user id (and therefore the user's bookmarks).

type authUser struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	IsAnonymous  bool           `json:"is_anonymous"`
	UserMetadata map[string]any `json:"user_metadata"`
}

type authResponse struct {
	AccessToken  string    `json:"access_token"`
	TokenType    string    `json:"token_type"`
	ExpiresIn    int       `json:"expires_in"`
	RefreshToken string    `json:"refresh_token"`
	User         *authUser `json:"user"`
}

// SignInAnonymously requests a fresh anonymous identity: a signup with no
// credentials.
func (c *Client) SignInAnonymously(ctx context.Context) (domain.Session, error) {
	var resp authResponse
	err := c.do(ctx, http.MethodPost, c.base+"/auth/v1/signup", map[string]any{}, &resp, nil)
	if err != nil {
		return domain.Session{}, err
	}
	return c.sessionFrom(resp), nil
}

func (c *Client) SignUpWithPassword(ctx context.Context, email, password, name string) (domain.Session, error) {
	body := map[string]any{
		"email":    email,
		"password": password,
		"data":     map[string]any{"name": name},
	}
	var resp authResponse
	err := c.do(ctx, http.MethodPost, c.base+"/auth/v1/signup", body, &resp, nil)
	if err != nil {
		return domain.Session{}, err
	}
	return c.sessionFrom(resp), nil
}

func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (domain.Session, error) {
	body := map[string]any{"email": email, "password": password}
	var resp authResponse
	err := c.do(ctx, http.MethodPost, c.base+"/auth/v1/token?grant_type=password", body, &resp, nil)
	if err != nil {
		return domain.Session{}, err
	}
	return c.sessionFrom(resp), nil
}

// LinkIdentity attaches email/password/name to the session's existing user.
// The backend keeps the user id; only the credentials and the anonymous flag
// change. Tokens are carried over from the input session.
func (c *Client) LinkIdentity(ctx context.Context, s domain.Session, email, password, name string) (domain.Session, error) {
	body := map[string]any{
		"email":    email,
		"password": password,
		"data":     map[string]any{"name": name},
	}
	var u authUser
	err := c.do(ctx, http.MethodPut, c.base+"/auth/v1/user", body, &u,
		map[string]string{"Authorization": "Bearer " + s.AccessToken})
	if err != nil {
		return domain.Session{}, err
	}
	out := s
	if u.ID != "" {
		out.UserID = u.ID
	}
	out.Email = strPtr(u.Email)
	out.Name = metaStr(u.UserMetadata, "name")
	out.IsAnonymous = false
	return out, nil
}

func (c *Client) RefreshSession(ctx context.Context, s domain.Session) (domain.Session, error) {
	body := map[string]any{"refresh_token": s.RefreshToken}
	var resp authResponse
	err := c.do(ctx, http.MethodPost, c.base+"/auth/v1/token?grant_type=refresh_token", body, &resp, nil)
	if err != nil {
		return domain.Session{}, err
	}
	return c.sessionFrom(resp), nil
}

func (c *Client) SignOut(ctx context.Context, s domain.Session) error {
	return c.do(ctx, http.MethodPost, c.base+"/auth/v1/logout", nil, nil,
		map[string]string{"Authorization": "Bearer " + s.AccessToken})
}

func (c *Client) sessionFrom(resp authResponse) domain.Session {
	s := domain.Session{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
	}
	if resp.ExpiresIn > 0 {
		s.ExpiresAt = time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	}
	if u := resp.User; u != nil {
		s.UserID = u.ID
		s.Email = strPtr(u.Email)
		s.Name = metaStr(u.UserMetadata, "name")
		s.AvatarURL = metaStr(u.UserMetadata, "avatar_url")
		s.IsAnonymous = u.IsAnonymous
	}
	// Some token responses omit the user object; the access token is a JWT
	// carrying the same facts in its claims.
	if s.UserID == "" && resp.AccessToken != "" {
		id, email, anon := claimsFromToken(resp.AccessToken)
		s.UserID = id
		if s.Email == nil {
			s.Email = strPtr(email)
		}
		s.IsAnonymous = anon
	}
	return s
}

// claimsFromToken reads sub/email/is_anonymous from the access token without
// verifying the signature. The backend signed it; this side only displays it.
func claimsFromToken(tok string) (id, email string, anon bool) {
	parsed, _, err := jwt.NewParser().ParseUnverified(tok, jwt.MapClaims{})
	if err != nil {
		return "", "", false
	}
	mc, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return "", "", false
	}
	if sub, err := mc.GetSubject(); err == nil {
		id = sub
	}
	if v, ok := mc["email"].(string); ok {
		email = v
	}
	if v, ok := mc["is_anonymous"].(bool); ok {
		anon = v
	}
	return id, email, anon
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func metaStr(m map[string]any, key string) *string {
	if m == nil {
		return nil
	}
	if v, ok := m[key].(string); ok && v != "" {
		return &v
	}
	return nil
}
