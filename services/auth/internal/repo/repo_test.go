package repo

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/lms/pkg/db/dbtest"
	"github.com/Skotchmaster/lms/services/auth/internal/models"
)

type fullRepo interface {
	UserRepository
	ProfileRepository
	FindRefreshByJTI(ctx context.Context, jti string) (*models.RefreshToken, error)
}

func repos(t *testing.T) map[string]fullRepo {
	t.Helper()
	return map[string]fullRepo{
		"gorm":   &GormRepo{DB: dbtest.Open(t, models.All()...)},
		"memory": NewMemoryRepo(),
	}
}

func newUser(email string) (*models.User, *models.Profile) {
	return &models.User{Email: email, PasswordHash: "hash", Role: "student"},
		&models.Profile{Name: "A", Role: "student"}
}

func TestCreateUser(t *testing.T) {
	t.Parallel()
	for name, r := range repos(t) {
		r := r
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			u, p := newUser(" A@B.com ")
			require.NoError(t, r.CreateUser(ctx, u, p))
			assert.NotEqual(t, uuid.Nil, u.ID)
			assert.Equal(t, u.ID, p.ID)
			assert.Equal(t, "a@b.com", u.Email)

			got, err := r.UserByEmail(ctx, "a@b.com")
			require.NoError(t, err)
			assert.Equal(t, u.ID, got.ID)

			prof, err := r.Profile(ctx, u.ID)
			require.NoError(t, err)
			assert.Equal(t, "student", prof.Role)

			dup, dupProfile := newUser("a@b.com")
			assert.ErrorIs(t, r.CreateUser(ctx, dup, dupProfile), ErrUserAlreadyExist)

			_, err = r.UserByEmail(ctx, "nobody@b.com")
			assert.ErrorIs(t, err, ErrNotFound)
			_, err = r.UserByID(ctx, uuid.New())
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestRotateRefreshToken(t *testing.T) {
	t.Parallel()
	for name, r := range repos(t) {
		r := r
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			u, p := newUser("rot@b.com")
			require.NoError(t, r.CreateUser(ctx, u, p))

			first := &models.RefreshToken{UserID: u.ID, JTI: "j1", TokenHash: HashToken("t1"), ExpiresAt: time.Now().Add(time.Hour)}
			require.NoError(t, r.StoreRefresh(ctx, first))

			second := &models.RefreshToken{UserID: u.ID, JTI: "j2", TokenHash: HashToken("t2"), ExpiresAt: time.Now().Add(time.Hour)}
			require.NoError(t, r.RotateRefreshToken(ctx, "j1", second))

			old, err := r.FindRefreshByJTI(ctx, "j1")
			require.NoError(t, err)
			assert.True(t, old.Revoked)

			reuse := &models.RefreshToken{UserID: u.ID, JTI: "j3", TokenHash: HashToken("t3"), ExpiresAt: time.Now().Add(time.Hour)}
			assert.ErrorIs(t, r.RotateRefreshToken(ctx, "j1", reuse), ErrRefreshNotUsable)
			assert.ErrorIs(t, r.RotateRefreshToken(ctx, "missing", reuse), ErrRefreshNotPresent)

			require.NoError(t, r.RevokeRefresh(ctx, HashToken("t2")))
			cur, err := r.FindRefreshByJTI(ctx, "j2")
			require.NoError(t, err)
			assert.True(t, cur.Revoked)
		})
	}
}

func TestRotateRefreshToken_Expired(t *testing.T) {
	t.Parallel()
	for name, r := range repos(t) {
		r := r
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			u, p := newUser("exp@b.com")
			require.NoError(t, r.CreateUser(ctx, u, p))

			stale := &models.RefreshToken{UserID: u.ID, JTI: "old", TokenHash: HashToken("old"), ExpiresAt: time.Now().Add(-time.Minute)}
			require.NoError(t, r.StoreRefresh(ctx, stale))

			next := &models.RefreshToken{UserID: u.ID, JTI: "new", TokenHash: HashToken("new"), ExpiresAt: time.Now().Add(time.Hour)}
			assert.ErrorIs(t, r.RotateRefreshToken(ctx, "old", next), ErrRefreshNotUsable)
		})
	}
}

func TestRotateRefreshToken_ConcurrentReuse(t *testing.T) {
	t.Parallel()
	r := &GormRepo{DB: dbtest.Open(t, models.All()...)}
	ctx := context.Background()
	u, p := newUser("race@b.com")
	require.NoError(t, r.CreateUser(ctx, u, p))
	require.NoError(t, r.StoreRefresh(ctx, &models.RefreshToken{UserID: u.ID, JTI: "root", TokenHash: HashToken("root"), ExpiresAt: time.Now().Add(time.Hour)}))

	const n = 5
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			jti := uuid.NewString()
			errs[i] = r.RotateRefreshToken(ctx, "root", &models.RefreshToken{UserID: u.ID, JTI: jti, TokenHash: HashToken(jti), ExpiresAt: time.Now().Add(time.Hour)})
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		} else {
			assert.ErrorIs(t, err, ErrRefreshNotUsable)
		}
	}
	assert.Equal(t, 1, wins)
}

func TestRevokeAllRefresh(t *testing.T) {
	t.Parallel()
	for name, r := range repos(t) {
		r := r
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			u, p := newUser("all@b.com")
			require.NoError(t, r.CreateUser(ctx, u, p))
			for _, jti := range []string{"a", "b"} {
				require.NoError(t, r.StoreRefresh(ctx, &models.RefreshToken{UserID: u.ID, JTI: jti, TokenHash: HashToken(jti), ExpiresAt: time.Now().Add(time.Hour)}))
			}
			require.NoError(t, r.RevokeAllRefresh(ctx, u.ID))
			for _, jti := range []string{"a", "b"} {
				tok, err := r.FindRefreshByJTI(ctx, jti)
				require.NoError(t, err)
				assert.True(t, tok.Revoked)
			}
		})
	}
}

func TestProfiles(t *testing.T) {
	t.Parallel()
	for name, r := range repos(t) {
		r := r
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			u, p := newUser("prof@b.com")
			require.NoError(t, r.CreateUser(ctx, u, p))

			name, bio := "Alice", "teaches go"
			got, err := r.UpdateProfile(ctx, u.ID, ProfilePatch{Name: &name, Bio: &bio})
			require.NoError(t, err)
			assert.Equal(t, "Alice", got.Name)
			require.NotNil(t, got.Bio)
			assert.Equal(t, "teaches go", *got.Bio)
			assert.Equal(t, "student", got.Role)

			got, err = r.SetRole(ctx, u.ID, "instructor")
			require.NoError(t, err)
			assert.Equal(t, "instructor", got.Role)
			assert.Equal(t, "Alice", got.Name)

			_, err = r.SetRole(ctx, uuid.New(), "admin")
			assert.ErrorIs(t, err, ErrNotFound)
			_, err = r.UpdateProfile(ctx, uuid.New(), ProfilePatch{Name: &name})
			assert.ErrorIs(t, err, ErrNotFound)

			u2, p2 := newUser("prof2@b.com")
			require.NoError(t, r.CreateUser(ctx, u2, p2))
			items, total, err := r.ListProfiles(ctx, 0, 1)
			require.NoError(t, err)
			assert.EqualValues(t, 2, total)
			assert.Len(t, items, 1)
		})
	}
}
