// Package backend is the client for the remote managed store: a
// PostgREST-style REST surface for places, regions and bookmarks, plus
// GoTrue-style auth endpoints and a realtime change feed.
package backend

import (
	"bytes"
	"context"
	crand "crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"parchment/internal/adapters/observability"
	"parchment/internal/domain"
)

type Client struct {
	base string
	key  string
	hc   *http.Client
	rl   *rate.Limiter

	mu          sync.RWMutex
	accessToken string
}

func New(base, key string, rps int) (*Client, error) {
	if key == "" {
		return nil, fmt.Errorf("anon key is required")
	}
	if rps <= 0 {
		rps = 5
	}
	return &Client{
		base: strings.TrimRight(base, "/"),
		hc:   &http.Client{Timeout: 20 * time.Second},
		key:  key,
		rl:   rate.NewLimiter(rate.Limit(rps), rps),
	}, nil
}

// SetAccessToken installs the current session's access token. Row-level
// security on the backend scopes bookmark reads/writes to this identity;
// without it requests fall back to the anon key.
func (c *Client) SetAccessToken(tok string) {
	c.mu.Lock()
	c.accessToken = tok
	c.mu.Unlock()
}

func (c *Client) bearer() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.accessToken != "" {
		return c.accessToken
	}
	return c.key
}

// ---- Directory reads ----

func (c *Client) FetchPublishedPlaces(ctx context.Context) ([]domain.Place, error) {
	u := c.base + "/rest/v1/places?" + url.Values{
		"select": {"*"},
		"status": {"eq.published"},
	}.Encode()
	var out []domain.Place
	return out, c.do(ctx, http.MethodGet, u, nil, &out, nil)
}

func (c *Client) FetchRegions(ctx context.Context) ([]domain.Region, error) {
	u := c.base + "/rest/v1/regions?" + url.Values{
		"select": {"*"},
		"order":  {"display_order.asc"},
	}.Encode()
	var out []domain.Region
	return out, c.do(ctx, http.MethodGet, u, nil, &out, nil)
}

func (c *Client) FetchPlacesByIDs(ctx context.Context, ids []string) ([]domain.Place, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	u := c.base + "/rest/v1/places?" + url.Values{
		"select": {"*"},
		"id":     {"in.(" + strings.Join(ids, ",") + ")"},
	}.Encode()
	var out []domain.Place
	return out, c.do(ctx, http.MethodGet, u, nil, &out, nil)
}

// SubmitPlace inserts a user suggestion; moderation happens backend-side and
// only published places ever reach browse views.
func (c *Client) SubmitPlace(ctx context.Context, d domain.PlaceDraft) (domain.Place, error) {
	body := struct {
		domain.PlaceDraft
		Status domain.Status `json:"status"`
	}{PlaceDraft: d, Status: domain.StatusPending}

	var rows []domain.Place
	err := c.do(ctx, http.MethodPost, c.base+"/rest/v1/places", body, &rows,
		map[string]string{"Prefer": "return=representation"})
	if err != nil {
		return domain.Place{}, err
	}
	if len(rows) == 0 {
		return domain.Place{}, fmt.Errorf("submit place: empty response")
	}
	return rows[0], nil
}

// ---- Bookmarks ----

func (c *Client) FetchBookmarkPlaceIDs(ctx context.Context, userID string) ([]string, error) {
	u := c.base + "/rest/v1/bookmarks?" + url.Values{
		"select":  {"place_id"},
		"user_id": {"eq." + userID},
	}.Encode()
	var rows []struct {
		PlaceID string `json:"place_id"`
	}
	if err := c.do(ctx, http.MethodGet, u, nil, &rows, nil); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.PlaceID)
	}
	return ids, nil
}

// UpsertBookmark is idempotent on (user_id, place_id).
func (c *Client) UpsertBookmark(ctx context.Context, userID, placeID string) error {
	body := map[string]string{"user_id": userID, "place_id": placeID}
	return c.do(ctx, http.MethodPost, c.base+"/rest/v1/bookmarks", body, nil,
		map[string]string{"Prefer": "resolution=merge-duplicates"})
}

func (c *Client) DeleteBookmark(ctx context.Context, userID, placeID string) error {
	u := c.base + "/rest/v1/bookmarks?" + url.Values{
		"user_id":  {"eq." + userID},
		"place_id": {"eq." + placeID},
	}.Encode()
	return c.do(ctx, http.MethodDelete, u, nil, nil, nil)
}

// ---- Internals ----

// do performs a request with client-side rate limiting, retries and JSON
// decode into out. Retries on 429 and transient 5xx, honoring Retry-After
// when provided. extra headers override the defaults.
func (c *Client) do(ctx context.Context, method, rawURL string, body, out any, extra map[string]string) error {
	if err := c.rl.Wait(ctx); err != nil {
		return err
	}

	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return err
		}
	}

	endpoint := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		endpoint = u.Path
	}

	var lastErr error
	for i := 0; i < 4; i++ {
		var rd io.Reader
		if payload != nil {
			rd = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, rawURL, rd)
		if err != nil {
			return err
		}
		req.Header.Set("apikey", c.key)
		req.Header.Set("Authorization", "Bearer "+c.bearer())
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", "parchment/1.0")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		for k, v := range extra {
			req.Header.Set(k, v)
		}

		start := time.Now()
		resp, err := c.hc.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = err
			if i < 3 && sleepCtx(ctx, backoff(i)) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return lastErr
		}
		observability.ObserveBackend(endpoint, resp.StatusCode, time.Since(start))

		switch resp.StatusCode {
		case http.StatusOK, http.StatusCreated, http.StatusAccepted:
			if out == nil {
				io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
				return nil
			}
			err := json.NewDecoder(resp.Body).Decode(out)
			resp.Body.Close()
			return err

		case http.StatusNoContent:
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			return nil

		case http.StatusNotFound:
			resp.Body.Close()
			return domain.ErrNotFound

		case http.StatusUnauthorized:
			resp.Body.Close()
			return domain.ErrUnauthorized

		case http.StatusForbidden:
			resp.Body.Close()
			return domain.ErrForbidden

		case http.StatusTooManyRequests, http.StatusInternalServerError,
			http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			wait := retryAfter(resp)
			resp.Body.Close()
			if wait == 0 {
				wait = backoff(i)
			}
			lastErr = fmt.Errorf("remote %d", resp.StatusCode)
			if i < 3 && sleepCtx(ctx, wait) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return lastErr

		default:
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			return fmt.Errorf("bad status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
		}
	}

	return lastErr
}

// sleepCtx waits for d or returns early if ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// retryAfter parses Retry-After header (seconds or HTTP-date). Returns 0 if absent/invalid.
func retryAfter(resp *http.Response) time.Duration {
	h := resp.Header.Get("Retry-After")
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(h)); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(h); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// backoff returns an exponential backoff delay with concurrency-safe jitter.
// i = retry attempt (0,1,2,...). Base doubles each attempt (200ms, 400ms,
// 800ms...), with up to +50% random jitter to avoid thundering herds.
func backoff(i int) time.Duration {
	base := time.Duration(1<<i) * 200 * time.Millisecond
	var b [1]byte
	if _, err := crand.Read(b[:]); err != nil {
		return base
	}
	f := float64(b[0]) / 255.0
	j := time.Duration(0.5 * f * float64(base))
	return base + j
}
