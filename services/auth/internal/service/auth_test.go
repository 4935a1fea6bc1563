package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/Skotchmaster/lms/pkg/apperr"
	"github.com/Skotchmaster/lms/pkg/authz"
	"github.com/Skotchmaster/lms/pkg/events"
	"github.com/Skotchmaster/lms/pkg/pagination"
	"github.com/Skotchmaster/lms/pkg/revocation"
	"github.com/Skotchmaster/lms/pkg/tokens"
	"github.com/Skotchmaster/lms/services/auth/internal/identity"
	"github.com/Skotchmaster/lms/services/auth/internal/repo"
)

func newTestAuthService() (*AuthService, *events.Recorder) {
	r := repo.NewMemoryRepo()
	rec := &events.Recorder{}
	return &AuthService{
		Provider: &identity.Local{
			Repo: r,
			Issuer: &tokens.Issuer{
				AccessSecret:  []byte("test-access-secret"),
				RefreshSecret: []byte("test-refresh-secret"),
				AccessTTL:     15 * time.Minute,
				RefreshTTL:    time.Hour,
			},
			Denylist: revocation.NewMemoryDenylist(),
			Resets:   identity.NewMemoryResetStore(),
			Cost:     bcrypt.MinCost,
		},
		Profiles: r,
		Events:   rec,
	}, rec
}

func TestAuthService_Signup(t *testing.T) {
	t.Parallel()

	svc, rec := newTestAuthService()
	res, err := svc.Signup(context.Background(), SignupRequest{Email: "a@b.com", Name: "A", Password: "secret1", Role: "student"})
	require.NoError(t, err)

	assert.Equal(t, "student", res.User.Role)
	assert.Equal(t, "a@b.com", res.User.Email)
	assert.NotEmpty(t, res.Session.AccessToken)
	assert.NotEmpty(t, res.Session.RefreshToken)
	assert.Equal(t, []string{events.UserRegistered}, rec.Types())

	_, err = svc.Signup(context.Background(), SignupRequest{Email: "a@b.com", Name: "A", Password: "secret1", Role: "student"})
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
}

func TestAuthService_Signup_Validation(t *testing.T) {
	t.Parallel()

	svc, rec := newTestAuthService()
	ctx := context.Background()

	tests := []struct {
		name string
		req  SignupRequest
		msg  string
	}{
		{"bad email", SignupRequest{Email: "not-an-email", Name: "A", Password: "secret1"}, "a valid email is required"},
		{"display name email", SignupRequest{Email: "A <a@b.com>", Name: "A", Password: "secret1"}, "a valid email is required"},
		{"short password", SignupRequest{Email: "a@b.com", Name: "A", Password: "12345"}, "password must be at least 6 characters"},
		{"missing name", SignupRequest{Email: "a@b.com", Name: "  ", Password: "secret1"}, "name is required"},
		{"admin self-registration", SignupRequest{Email: "a@b.com", Name: "A", Password: "secret1", Role: "admin"}, "role must be student or instructor"},
		{"unknown role", SignupRequest{Email: "a@b.com", Name: "A", Password: "secret1", Role: "tutor"}, "role must be student or instructor"},
	}
	for _, tt := range tests {
		_, err := svc.Signup(ctx, tt.req)
		require.Error(t, err, tt.name)
		assert.ErrorIs(t, err, apperr.ErrValidation, tt.name)
		assert.Equal(t, tt.msg, apperr.PublicMessage(err), tt.name)
	}
	assert.Empty(t, rec.Types())
}

func TestAuthService_Signup_DefaultsToStudent(t *testing.T) {
	t.Parallel()

	svc, _ := newTestAuthService()
	res, err := svc.Signup(context.Background(), SignupRequest{Email: "s@b.com", Name: "S", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, "student", res.User.Role)
}

func TestAuthService_Login(t *testing.T) {
	t.Parallel()

	svc, _ := newTestAuthService()
	ctx := context.Background()
	_, err := svc.Signup(ctx, SignupRequest{Email: "a@b.com", Name: "A", Password: "secret1", Role: "instructor"})
	require.NoError(t, err)

	res, err := svc.Login(ctx, "A@B.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "instructor", res.User.Role)

	_, wrong := svc.Login(ctx, "a@b.com", "wrong-password")
	_, missing := svc.Login(ctx, "ghost@b.com", "secret1")
	assert.Equal(t, apperr.PublicMessage(wrong), apperr.PublicMessage(missing))
	assert.Equal(t, apperr.KindOf(wrong), apperr.KindOf(missing))
	assert.Equal(t, apperr.KindUnauthenticated, apperr.KindOf(wrong))

	_, err = svc.Login(ctx, "", "")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestAuthService_Refresh(t *testing.T) {
	t.Parallel()

	svc, _ := newTestAuthService()
	ctx := context.Background()
	first, err := svc.Signup(ctx, SignupRequest{Email: "a@b.com", Name: "A", Password: "secret1"})
	require.NoError(t, err)

	next, err := svc.Refresh(ctx, first.Session.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, first.User.ID, next.User.ID)

	_, err = svc.Refresh(ctx, first.Session.RefreshToken)
	assert.ErrorIs(t, err, apperr.ErrUnauthenticated)

	_, err = svc.Refresh(ctx, "")
	assert.ErrorIs(t, err, apperr.ErrUnauthenticated)
}

func TestAuthService_ProfileAndRoles(t *testing.T) {
	t.Parallel()

	svc, _ := newTestAuthService()
	ctx := context.Background()
	res, err := svc.Signup(ctx, SignupRequest{Email: "a@b.com", Name: "A", Password: "secret1"})
	require.NoError(t, err)
	me := authz.Principal{ID: res.User.ID, Email: "a@b.com", Role: authz.RoleStudent}

	bio := "hello"
	name := "Alice"
	view, err := svc.UpdateMe(ctx, me, UpdateProfileRequest{Name: &name, Bio: &bio})
	require.NoError(t, err)
	assert.Equal(t, "Alice", view.Name)
	assert.Equal(t, "student", view.Role)

	blank := " "
	_, err = svc.UpdateMe(ctx, me, UpdateProfileRequest{Name: &blank})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	admin := authz.Principal{ID: uuid.New(), Role: authz.RoleAdmin}
	view, err = svc.SetRole(ctx, admin, me.ID, "instructor")
	require.NoError(t, err)
	assert.Equal(t, "instructor", view.Role)

	_, err = svc.SetRole(ctx, admin, me.ID, "superuser")
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = svc.SetRole(ctx, admin, uuid.New(), "student")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = svc.SetRole(ctx, admin, admin.ID, "student")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	users, total, err := svc.ListUsers(ctx, pagination.Calculate(1, 10))
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, "instructor", users[0].Role)
}

func TestAuthService_ResetPassword_Validation(t *testing.T) {
	t.Parallel()

	svc, _ := newTestAuthService()
	err := svc.ResetPassword(context.Background(), "token", "123")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	err = svc.ResetPassword(context.Background(), "unknown-token", "longenough")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestAuthService_SeedDemoUsers(t *testing.T) {
	t.Parallel()

	svc, _ := newTestAuthService()
	ctx := context.Background()
	require.NoError(t, svc.SeedDemoUsers(ctx, DemoAccounts))
	require.NoError(t, svc.SeedDemoUsers(ctx, DemoAccounts), "seeding is idempotent")

	res, err := svc.Login(ctx, "admin@lms.local", "admin123")
	require.NoError(t, err)
	assert.Equal(t, "admin", res.User.Role)

	res, err = svc.Login(ctx, "instructor@lms.local", "instructor123")
	require.NoError(t, err)
	assert.Equal(t, "instructor", res.User.Role)
}
