// Package authclient is the Go client for the LMS API. It owns the session
// lifecycle: login and signup, bearer attachment, refresh on expiry or 401 with
// a single retry, and logout that always clears local state.
package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

type State int

const (
	Anonymous State = iota
	Authenticating
	Authenticated
	Refreshing
)

func (s State) String() string {
	switch s {
	case Authenticating:
		return "authenticating"
	case Authenticated:
		return "authenticated"
	case Refreshing:
		return "refreshing"
	default:
		return "anonymous"
	}
}

var ErrSessionExpired = errors.New("authclient: session expired")

// APIError is a non-2xx response. Message has already been sanitized.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("authclient: %d: %s", e.Status, e.Message)
}

type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

type SignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Role     string `json:"role"`
}

type authPayload struct {
	User    User    `json:"user"`
	Session Session `json:"session"`
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

const (
	defaultSkew    = 30 * time.Second
	logoutTimeout  = 3 * time.Second
	refreshTimeout = 10 * time.Second
	refreshKey     = "refresh"
)

type Client struct {
	BaseURL string
	HTTP    *http.Client
	Store   TokenStore
	// Skew is how long before expiry a request proactively refreshes.
	Skew     time.Duration
	OnLogout func()
	Logger   *slog.Logger
	Now      func() time.Time

	mu    sync.Mutex
	state State
	sf    singleflight.Group
}

func New(baseURL string, store TokenStore) *Client {
	if store == nil {
		store = NewMemoryStore()
	}
	c := &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: 15 * time.Second},
		Store:   store,
		Skew:    defaultSkew,
		Logger:  slog.Default(),
	}
	if _, ok := store.Load(); ok {
		c.state = Authenticated
	}
	return c
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	prev := c.state
	c.state = s
	c.mu.Unlock()
	if prev != s {
		c.Logger.Debug("session_state", "from", prev.String(), "to", s.String())
	}
}

func (c *Client) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c *Client) Signup(ctx context.Context, in SignupRequest) (User, error) {
	return c.authenticate(ctx, "/api/auth/signup", in)
}

func (c *Client) Login(ctx context.Context, email, password string) (User, error) {
	return c.authenticate(ctx, "/api/auth/login", map[string]string{"email": email, "password": password})
}

func (c *Client) authenticate(ctx context.Context, path string, body any) (User, error) {
	prev := c.State()
	c.setState(Authenticating)

	var out authPayload
	if err := c.postJSON(ctx, path, "", body, &out); err != nil {
		c.setState(prev)
		return User{}, err
	}
	if err := c.Store.Save(out.Session); err != nil {
		c.setState(prev)
		return User{}, fmt.Errorf("authclient: save session: %w", err)
	}
	c.setState(Authenticated)
	return out.User, nil
}

// Logout tells the server to invalidate the session but never fails because of
// it: local tokens are cleared regardless of the server's answer.
func (c *Client) Logout(ctx context.Context) error {
	sess, ok := c.Store.Load()
	c.Store.Clear()
	c.setState(Anonymous)
	if !ok {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, logoutTimeout)
	defer cancel()
	if err := c.postJSON(ctx, "/api/auth/logout", sess.AccessToken, map[string]string{"refresh_token": sess.RefreshToken}, nil); err != nil {
		c.Logger.Warn("logout_server_failed", "error", err)
	}
	return nil
}

// Do sends req with the session's bearer token. On 401 it refreshes once and
// retries once; a 401 after that ends the session with ErrSessionExpired.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	body, err := snapshotBody(req)
	if err != nil {
		return nil, err
	}

	sess, ok := c.Store.Load()
	if !ok {
		return c.send(ctx, req, body, "")
	}

	refreshed := false
	if !sess.ExpiresAt.IsZero() && sess.ExpiresAt.Sub(c.now()) < c.Skew {
		if sess, err = c.refresh(ctx, sess.AccessToken); err != nil {
			return nil, err
		}
		refreshed = true
	}

	resp, err := c.send(ctx, req, body, sess.AccessToken)
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}
	drain(resp)

	if !refreshed {
		if sess, err = c.refresh(ctx, sess.AccessToken); err != nil {
			return nil, err
		}
		resp, err = c.send(ctx, req, body, sess.AccessToken)
		if err != nil || resp.StatusCode != http.StatusUnauthorized {
			return resp, err
		}
		drain(resp)
	}

	c.expire("unauthorized_after_refresh")
	return nil, ErrSessionExpired
}

// refresh exchanges the refresh token for a new pair. Concurrent callers share
// one request; a caller holding an access token that was already replaced gets
// the current session without another round trip.
func (c *Client) refresh(ctx context.Context, stale string) (Session, error) {
	v, err, _ := c.sf.Do(refreshKey, func() (any, error) {
		cur, ok := c.Store.Load()
		if !ok {
			return Session{}, ErrSessionExpired
		}
		if cur.AccessToken != stale {
			return cur, nil
		}

		c.setState(Refreshing)
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()

		var out authPayload
		if err := c.postJSON(rctx, "/api/auth/refresh", "", map[string]string{"refresh_token": cur.RefreshToken}, &out); err != nil {
			c.Logger.Info("refresh_failed", "error", err)
			c.expire("refresh_failed")
			return Session{}, ErrSessionExpired
		}
		if err := c.Store.Save(out.Session); err != nil {
			c.expire("save_failed")
			return Session{}, ErrSessionExpired
		}
		c.setState(Authenticated)
		return out.Session, nil
	})
	if err != nil {
		return Session{}, err
	}
	return v.(Session), nil
}

func (c *Client) expire(reason string) {
	c.Store.Clear()
	c.setState(Anonymous)
	c.Logger.Info("session_expired", "reason", reason)
	if c.OnLogout != nil {
		c.OnLogout()
	}
}

func (c *Client) send(ctx context.Context, orig *http.Request, body []byte, token string) (*http.Response, error) {
	req := orig.Clone(ctx)
	if body != nil {
		req.Body = io.NopCloser(bytes.NewReader(body))
		req.ContentLength = int64(len(body))
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	} else {
		req.Header.Del("Authorization")
	}
	return c.HTTP.Do(req)
}

func (c *Client) postJSON(ctx context.Context, path, token string, in, out any) error {
	buf, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("authclient: encode: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(buf))
	if err != nil {
		return fmt.Errorf("authclient: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("authclient: %s: %w", path, err)
	}
	defer resp.Body.Close()

	var env envelope
	decErr := json.NewDecoder(resp.Body).Decode(&env)
	if resp.StatusCode >= 300 || !env.Success {
		msg := env.Message
		if decErr != nil {
			msg = http.StatusText(resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Message: SanitizeMessage(msg)}
	}
	if decErr != nil {
		return fmt.Errorf("authclient: decode %s: %w", path, decErr)
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("authclient: decode %s data: %w", path, err)
		}
	}
	return nil
}

func snapshotBody(req *http.Request) ([]byte, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	defer req.Body.Close()
	b, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, fmt.Errorf("authclient: read body: %w", err)
	}
	return b, nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
