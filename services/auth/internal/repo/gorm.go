package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Skotchmaster/lms/pkg/db"
	"github.com/Skotchmaster/lms/services/auth/internal/models"
)

type GormRepo struct {
	DB *gorm.DB
}

// CreateUser inserts the identity and its profile together.
func (r *GormRepo) CreateUser(ctx context.Context, u *models.User, p *models.Profile) error {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(u).Error; err != nil {
			return err
		}
		p.ID = u.ID
		return tx.Create(p).Error
	})
	if db.IsUniqueViolation(err) {
		return ErrUserAlreadyExist
	}
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (r *GormRepo) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := r.DB.WithContext(ctx).Where("email = ?", strings.ToLower(strings.TrimSpace(email))).First(&user).Error
	return notFound(&user, err)
}

func (r *GormRepo) UserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	err := r.DB.WithContext(ctx).Where("id = ?", id).First(&user).Error
	return notFound(&user, err)
}

func (r *GormRepo) UpdatePassword(ctx context.Context, id uuid.UUID, hash string) error {
	res := r.DB.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Update("password_hash", hash)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *GormRepo) StoreRefresh(ctx context.Context, t *models.RefreshToken) error {
	return r.DB.WithContext(ctx).Create(t).Error
}

// RotateRefreshToken revokes oldJTI and stores next in one transaction. The old
// row is locked so two concurrent refreshes with the same token cannot both win.
func (r *GormRepo) RotateRefreshToken(ctx context.Context, oldJTI string, next *models.RefreshToken) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var old models.RefreshToken
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("jti = ?", oldJTI).First(&old).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrRefreshNotPresent
		}
		if err != nil {
			return err
		}
		if !usable(&old, time.Now()) {
			return ErrRefreshNotUsable
		}

		res := tx.Model(&models.RefreshToken{}).
			Where("jti = ? AND revoked = ?", oldJTI, false).
			Update("revoked", true)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrRefreshNotUsable
		}
		return tx.Create(next).Error
	})
}

func (r *GormRepo) RevokeRefresh(ctx context.Context, tokenHash string) error {
	return r.DB.WithContext(ctx).Model(&models.RefreshToken{}).
		Where("token_hash = ?", tokenHash).
		Update("revoked", true).Error
}

func (r *GormRepo) RevokeAllRefresh(ctx context.Context, userID uuid.UUID) error {
	return r.DB.WithContext(ctx).Model(&models.RefreshToken{}).
		Where("user_id = ? AND revoked = ?", userID, false).
		Update("revoked", true).Error
}

// FindRefreshByJTI is used by tests and the admin tooling.
func (r *GormRepo) FindRefreshByJTI(ctx context.Context, jti string) (*models.RefreshToken, error) {
	var t models.RefreshToken
	err := r.DB.WithContext(ctx).Where("jti = ?", jti).First(&t).Error
	return notFound(&t, err)
}

func (r *GormRepo) Profile(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	var p models.Profile
	err := r.DB.WithContext(ctx).Where("id = ?", id).First(&p).Error
	return notFound(&p, err)
}

func (r *GormRepo) UpdateProfile(ctx context.Context, id uuid.UUID, patch ProfilePatch) (*models.Profile, error) {
	updates := map[string]any{}
	if patch.Name != nil {
		updates["name"] = *patch.Name
	}
	if patch.Bio != nil {
		updates["bio"] = *patch.Bio
	}
	if patch.Avatar != nil {
		updates["avatar"] = *patch.Avatar
	}

	var p models.Profile
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", id).First(&p).Error; err != nil {
			return err
		}
		if len(updates) == 0 {
			return nil
		}
		if err := tx.Model(&models.Profile{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).First(&p).Error
	})
	return notFound(&p, err)
}

func (r *GormRepo) SetRole(ctx context.Context, id uuid.UUID, role string) (*models.Profile, error) {
	var p models.Profile
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", id).First(&p).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Profile{}).Where("id = ?", id).Update("role", role).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).First(&p).Error
	})
	return notFound(&p, err)
}

func (r *GormRepo) ListProfiles(ctx context.Context, offset, limit int) ([]models.Profile, int64, error) {
	var (
		items []models.Profile
		total int64
	)
	if err := r.DB.WithContext(ctx).Model(&models.Profile{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := r.DB.WithContext(ctx).Order("created_at ASC").Offset(offset).Limit(limit).Find(&items).Error; err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func notFound[T any](v *T, err error) (*T, error) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}
