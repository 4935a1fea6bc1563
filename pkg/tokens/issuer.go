package tokens

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Issuer signs access and refresh tokens with separate secrets. The typ claim is
// checked on parse, so the two kinds are never interchangeable.
type Issuer struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Name          string

	Now func() time.Time
}

type Pair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	AccessExp    time.Time `json:"expires_at"`
	RefreshExp   time.Time `json:"refresh_expires_at"`
	AccessJTI    string    `json:"-"`
	RefreshJTI   string    `json:"-"`
}

func (i *Issuer) now() time.Time {
	if i.Now != nil {
		return i.Now().UTC()
	}
	return time.Now().UTC()
}

func (i *Issuer) CreateAccessToken(subject, email, role string, exp time.Time) (string, string, error) {
	jti := uuid.NewString()
	claims := AccessClaims{
		Email: email,
		Role:  role,
		Type:  TypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    i.Name,
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(i.now()),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.AccessSecret)
	if err != nil {
		return "", "", err
	}
	return signed, jti, nil
}

func (i *Issuer) CreateRefreshToken(subject string, exp time.Time) (string, string, error) {
	jti := uuid.NewString()
	claims := RefreshClaims{
		Type: TypeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    i.Name,
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(i.now()),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.RefreshSecret)
	if err != nil {
		return "", "", err
	}
	return signed, jti, nil
}

func (i *Issuer) IssuePair(subject, email, role string) (Pair, error) {
	now := i.now()
	accessExp := now.Add(i.AccessTTL)
	refreshExp := now.Add(i.RefreshTTL)

	access, accessJTI, err := i.CreateAccessToken(subject, email, role, accessExp)
	if err != nil {
		return Pair{}, err
	}
	refresh, refreshJTI, err := i.CreateRefreshToken(subject, refreshExp)
	if err != nil {
		return Pair{}, err
	}

	return Pair{
		AccessToken:  access,
		RefreshToken: refresh,
		AccessExp:    accessExp,
		RefreshExp:   refreshExp,
		AccessJTI:    accessJTI,
		RefreshJTI:   refreshJTI,
	}, nil
}

func (i *Issuer) ParseAccess(token string) (*AccessClaims, error) {
	return parseAccess(token, i.AccessSecret, i.Now)
}

func (i *Issuer) ParseRefresh(token string) (*RefreshClaims, error) {
	return parseRefresh(token, i.RefreshSecret, i.Now)
}
