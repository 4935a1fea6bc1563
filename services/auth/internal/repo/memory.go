package repo

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Skotchmaster/lms/pkg/authz"
	"github.com/Skotchmaster/lms/services/auth/internal/models"
)

// MemoryRepo implements UserRepository and ProfileRepository in memory. Each
// instance is independent; tests construct their own.
type MemoryRepo struct {
	mu       sync.Mutex
	users    map[uuid.UUID]models.User
	byEmail  map[string]uuid.UUID
	refresh  map[string]models.RefreshToken
	profiles map[uuid.UUID]models.Profile
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		users:    map[uuid.UUID]models.User{},
		byEmail:  map[string]uuid.UUID{},
		refresh:  map[string]models.RefreshToken{},
		profiles: map[uuid.UUID]models.Profile{},
	}
}

func (m *MemoryRepo) CreateUser(_ context.Context, u *models.User, p *models.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	if _, ok := m.byEmail[u.Email]; ok {
		return ErrUserAlreadyExist
	}
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	now := time.Now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now
	p.ID = u.ID
	p.CreatedAt, p.UpdatedAt = now, now

	m.users[u.ID] = *u
	m.byEmail[u.Email] = u.ID
	m.profiles[u.ID] = *p
	return nil
}

func (m *MemoryRepo) UserByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byEmail[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return nil, ErrNotFound
	}
	u := m.users[id]
	return &u, nil
}

func (m *MemoryRepo) UserByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (m *MemoryRepo) UpdatePassword(_ context.Context, id uuid.UUID, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	u.PasswordHash = hash
	u.UpdatedAt = time.Now().UTC()
	m.users[id] = u
	return nil
}

func (m *MemoryRepo) StoreRefresh(_ context.Context, t *models.RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refresh[t.JTI] = *t
	return nil
}

func (m *MemoryRepo) RotateRefreshToken(_ context.Context, oldJTI string, next *models.RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	old, ok := m.refresh[oldJTI]
	if !ok {
		return ErrRefreshNotPresent
	}
	if !usable(&old, time.Now()) {
		return ErrRefreshNotUsable
	}
	old.Revoked = true
	m.refresh[oldJTI] = old
	m.refresh[next.JTI] = *next
	return nil
}

func (m *MemoryRepo) RevokeRefresh(_ context.Context, tokenHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for jti, t := range m.refresh {
		if t.TokenHash == tokenHash {
			t.Revoked = true
			m.refresh[jti] = t
		}
	}
	return nil
}

func (m *MemoryRepo) RevokeAllRefresh(_ context.Context, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for jti, t := range m.refresh {
		if t.UserID == userID {
			t.Revoked = true
			m.refresh[jti] = t
		}
	}
	return nil
}

func (m *MemoryRepo) FindRefreshByJTI(_ context.Context, jti string) (*models.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.refresh[jti]
	if !ok {
		return nil, ErrNotFound
	}
	return &t, nil
}

func (m *MemoryRepo) Profile(_ context.Context, id uuid.UUID) (*models.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (m *MemoryRepo) UpdateProfile(_ context.Context, id uuid.UUID, patch ProfilePatch) (*models.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	if !ok {
		return nil, ErrNotFound
	}
	if patch.Name != nil {
		p.Name = *patch.Name
	}
	if patch.Bio != nil {
		p.Bio = patch.Bio
	}
	if patch.Avatar != nil {
		p.Avatar = patch.Avatar
	}
	p.UpdatedAt = time.Now().UTC()
	m.profiles[id] = p
	return &p, nil
}

func (m *MemoryRepo) SetRole(_ context.Context, id uuid.UUID, role string) (*models.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	if !ok {
		return nil, ErrNotFound
	}
	p.Role = role
	p.UpdatedAt = time.Now().UTC()
	m.profiles[id] = p
	return &p, nil
}

func (m *MemoryRepo) ListProfiles(_ context.Context, offset, limit int) ([]models.Profile, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := make([]models.Profile, 0, len(m.profiles))
	for _, p := range m.profiles {
		all = append(all, p)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.Before(all[j].CreatedAt) })
	total := int64(len(all))
	if offset >= len(all) {
		return []models.Profile{}, total, nil
	}
	end := min(offset+limit, len(all))
	return all[offset:end], total, nil
}

// RoleOf lets the in-memory store stand in for the profiles table in the
// authentication middleware.
func (m *MemoryRepo) RoleOf(_ context.Context, id uuid.UUID) (authz.Role, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	if !ok {
		return "", false, nil
	}
	return authz.ParseRole(p.Role)
}
