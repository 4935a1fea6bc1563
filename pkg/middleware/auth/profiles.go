package authmw

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Skotchmaster/lms/pkg/authz"
)

// GormProfiles reads roles from the profiles table shared by all services.
type GormProfiles struct {
	DB *gorm.DB
}

func (p GormProfiles) RoleOf(ctx context.Context, userID uuid.UUID) (authz.Role, bool, error) {
	var row struct {
		Role string
	}
	err := p.DB.WithContext(ctx).Table("profiles").Select("role").Where("id = ?", userID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	role, ok := authz.ParseRole(row.Role)
	if !ok {
		return "", false, nil
	}
	return role, true, nil
}
