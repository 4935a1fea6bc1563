package authclient

import (
	"sync"
	"time"
)

type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// TokenStore persists the session between calls. Browsers use cookies and
// mobile apps use secure storage; a Go client keeps it wherever it likes.
type TokenStore interface {
	Save(s Session) error
	Load() (Session, bool)
	Clear()
}

type MemoryStore struct {
	mu   sync.RWMutex
	sess *Session
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (m *MemoryStore) Save(s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sess = &s
	return nil
}

func (m *MemoryStore) Load() (Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.sess == nil || m.sess.AccessToken == "" {
		return Session{}, false
	}
	return *m.sess, true
}

func (m *MemoryStore) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sess = nil
}

// SetAuthToken replaces only the access token, keeping the refresh token.
func SetAuthToken(s TokenStore, token string) error {
	sess, _ := s.Load()
	sess.AccessToken = token
	return s.Save(sess)
}

func AuthToken(s TokenStore) (string, bool) {
	sess, ok := s.Load()
	if !ok {
		return "", false
	}
	return sess.AccessToken, true
}

func ClearAuthTokens(s TokenStore) { s.Clear() }
