package tokens

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

var (
	ErrInvalid   = errors.New("invalid token")
	ErrExpired   = errors.New("token has expired")
	ErrWrongType = errors.New("wrong token type")
)

type AccessClaims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	Type  string `json:"typ"`
	jwt.RegisteredClaims
}

type RefreshClaims struct {
	Type string `json:"typ"`
	jwt.RegisteredClaims
}

func parserOptions(now func() time.Time) []jwt.ParserOption {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if now != nil {
		opts = append(opts, jwt.WithTimeFunc(now))
	}
	return opts
}

func classify(err error) error {
	if errors.Is(err, jwt.ErrTokenExpired) {
		return ErrExpired
	}
	return fmt.Errorf("%w: %v", ErrInvalid, err)
}

func AccessClaimsFromToken(tokenStr string, accessSecret []byte) (*AccessClaims, error) {
	return parseAccess(tokenStr, accessSecret, nil)
}

func RefreshClaimsFromToken(tokenStr string, refreshSecret []byte) (*RefreshClaims, error) {
	return parseRefresh(tokenStr, refreshSecret, nil)
}

func parseAccess(tokenStr string, secret []byte, now func() time.Time) (*AccessClaims, error) {
	if tokenStr == "" {
		return nil, ErrInvalid
	}
	var claims AccessClaims
	tkn, err := jwt.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (any, error) {
		return secret, nil
	}, parserOptions(now)...)
	if err != nil {
		return nil, classify(err)
	}
	if !tkn.Valid {
		return nil, ErrInvalid
	}
	if claims.Type != TypeAccess {
		return nil, ErrWrongType
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalid)
	}
	return &claims, nil
}

func parseRefresh(tokenStr string, secret []byte, now func() time.Time) (*RefreshClaims, error) {
	if tokenStr == "" {
		return nil, ErrInvalid
	}
	var claims RefreshClaims
	tkn, err := jwt.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (any, error) {
		return secret, nil
	}, parserOptions(now)...)
	if err != nil {
		return nil, classify(err)
	}
	if !tkn.Valid {
		return nil, ErrInvalid
	}
	if claims.Type != TypeRefresh {
		return nil, ErrWrongType
	}
	if claims.Subject == "" || claims.ID == "" {
		return nil, fmt.Errorf("%w: missing subject or jti", ErrInvalid)
	}
	return &claims, nil
}
