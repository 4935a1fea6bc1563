package repo

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/Skotchmaster/lms/services/auth/internal/models"
)

var (
	ErrNotFound          = errors.New("record not found")
	ErrUserAlreadyExist  = errors.New("user already exist")
	ErrRefreshNotUsable  = errors.New("refresh token expired or revoked")
	ErrRefreshNotPresent = errors.New("refresh token not found")
)

// UserRepository is the identity store. GormRepo backs it in every environment;
// MemoryRepo is the test double.
type UserRepository interface {
	CreateUser(ctx context.Context, u *models.User, p *models.Profile) error
	UserByEmail(ctx context.Context, email string) (*models.User, error)
	UserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	UpdatePassword(ctx context.Context, id uuid.UUID, hash string) error

	StoreRefresh(ctx context.Context, t *models.RefreshToken) error
	RotateRefreshToken(ctx context.Context, oldJTI string, next *models.RefreshToken) error
	RevokeRefresh(ctx context.Context, tokenHash string) error
	RevokeAllRefresh(ctx context.Context, userID uuid.UUID) error
}

type ProfileRepository interface {
	Profile(ctx context.Context, id uuid.UUID) (*models.Profile, error)
	UpdateProfile(ctx context.Context, id uuid.UUID, patch ProfilePatch) (*models.Profile, error)
	SetRole(ctx context.Context, id uuid.UUID, role string) (*models.Profile, error)
	ListProfiles(ctx context.Context, offset, limit int) ([]models.Profile, int64, error)
}

// ProfilePatch carries only fields the owner may change. Nil means untouched.
type ProfilePatch struct {
	Name   *string
	Bio    *string
	Avatar *string
}

func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func usable(t *models.RefreshToken, now time.Time) bool {
	return !t.Revoked && t.ExpiresAt.After(now)
}
