package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is the identity record. Role here is only the bootstrap value copied
// into the profile at signup; the profile role is authoritative afterwards.
type User struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"     json:"id"`
	Email        string    `gorm:"uniqueIndex;not null"     json:"email"`
	PasswordHash string    `gorm:"not null"                 json:"-"`
	Role         string    `gorm:"not null;default:student" json:"role"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

type RefreshToken struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    uuid.UUID `gorm:"type:uuid;index;not null" json:"user_id"`
	JTI       string    `gorm:"uniqueIndex;not null"     json:"jti"`
	TokenHash string    `gorm:"uniqueIndex;not null"     json:"-"`
	ExpiresAt time.Time `gorm:"not null"                 json:"expires_at"`
	Revoked   bool      `gorm:"not null;default:false"   json:"revoked"`
	CreatedAt time.Time `json:"created_at"`
}

type Profile struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name      string    `gorm:"not null"             json:"name"`
	Role      string    `gorm:"not null;index"       json:"role"`
	Bio       *string   `json:"bio,omitempty"`
	Avatar    *string   `json:"avatar,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Profile) TableName() string { return "profiles" }

// All lists the tables owned by the auth service.
func All() []any {
	return []any{&User{}, &RefreshToken{}, &Profile{}}
}
