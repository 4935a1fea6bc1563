// Package identity is the credential store and token issuer behind the auth
// service. Handlers talk to it only through Provider.
package identity

import (
	"context"

	"github.com/Skotchmaster/lms/pkg/apperr"
	authmw "github.com/Skotchmaster/lms/pkg/middleware/auth"
	"github.com/Skotchmaster/lms/pkg/tokens"
	"github.com/Skotchmaster/lms/services/auth/internal/models"
)

var (
	ErrInvalidCredentials = apperr.Unauthenticated("invalid email or password")
	ErrEmailTaken         = apperr.Conflict("email already registered")
	ErrInvalidToken       = apperr.Unauthenticated("invalid or expired token")
	ErrInvalidResetToken  = apperr.Validation("invalid or expired reset token")
)

type SignUpInput struct {
	Email    string
	Password string
	Name     string
	Role     string
}

type Provider interface {
	SignUp(ctx context.Context, in SignUpInput) (*models.User, error)
	SignIn(ctx context.Context, email, password string) (*models.User, tokens.Pair, error)
	ResolveToken(ctx context.Context, accessToken string) (authmw.Identity, error)
	Refresh(ctx context.Context, refreshToken string) (tokens.Pair, *models.User, error)
	SignOut(ctx context.Context, accessToken, refreshToken string) error
	RequestPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, newPassword string) error
}
