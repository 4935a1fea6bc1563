package identity

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/Skotchmaster/lms/pkg/apperr"
	"github.com/Skotchmaster/lms/pkg/authz"
	"github.com/Skotchmaster/lms/pkg/events"
	"github.com/Skotchmaster/lms/pkg/logging"
	authmw "github.com/Skotchmaster/lms/pkg/middleware/auth"
	"github.com/Skotchmaster/lms/pkg/revocation"
	"github.com/Skotchmaster/lms/pkg/tokens"
	"github.com/Skotchmaster/lms/services/auth/internal/models"
	"github.com/Skotchmaster/lms/services/auth/internal/repo"
)

const ResetTTL = time.Hour

// Local is the database-backed identity provider.
type Local struct {
	Repo     repo.UserRepository
	Issuer   *tokens.Issuer
	Denylist revocation.Denylist
	Resets   ResetStore
	Events   events.Publisher
	// ResetURL is the frontend page that accepts ?token=.
	ResetURL string
	Cost     int

	dummyOnce sync.Once
	dummy     []byte
}

func (p *Local) cost() int {
	if p.Cost == 0 {
		return bcrypt.DefaultCost
	}
	return p.Cost
}

// dummyHash equalizes login timing for unknown emails.
func (p *Local) dummyHash() []byte {
	p.dummyOnce.Do(func() {
		p.dummy, _ = bcrypt.GenerateFromPassword([]byte("not-a-real-password"), p.cost())
	})
	return p.dummy
}

func (p *Local) SignUp(ctx context.Context, in SignUpInput) (*models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), p.cost())
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &models.User{Email: in.Email, PasswordHash: string(hash), Role: in.Role}
	profile := &models.Profile{Name: in.Name, Role: in.Role}
	if err := p.Repo.CreateUser(ctx, user, profile); err != nil {
		if errors.Is(err, repo.ErrUserAlreadyExist) {
			return nil, ErrEmailTaken
		}
		return nil, apperr.Upstream(err)
	}
	return user, nil
}

func (p *Local) SignIn(ctx context.Context, email, password string) (*models.User, tokens.Pair, error) {
	user, err := p.Repo.UserByEmail(ctx, email)
	if errors.Is(err, repo.ErrNotFound) {
		_ = bcrypt.CompareHashAndPassword(p.dummyHash(), []byte(password))
		return nil, tokens.Pair{}, ErrInvalidCredentials
	}
	if err != nil {
		return nil, tokens.Pair{}, apperr.Upstream(err)
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, tokens.Pair{}, ErrInvalidCredentials
	}

	pair, err := p.issue(user)
	if err != nil {
		return nil, tokens.Pair{}, err
	}
	if err := p.Repo.StoreRefresh(ctx, refreshRow(user.ID, pair)); err != nil {
		return nil, tokens.Pair{}, apperr.Upstream(fmt.Errorf("store refresh: %w", err))
	}
	return user, pair, nil
}

// issue embeds the bootstrap role only; services read the profile role per request.
func (p *Local) issue(user *models.User) (tokens.Pair, error) {
	pair, err := p.Issuer.IssuePair(user.ID.String(), user.Email, user.Role)
	if err != nil {
		return tokens.Pair{}, apperr.Upstream(fmt.Errorf("issue tokens: %w", err))
	}
	return pair, nil
}

func refreshRow(userID uuid.UUID, pair tokens.Pair) *models.RefreshToken {
	return &models.RefreshToken{
		UserID:    userID,
		JTI:       pair.RefreshJTI,
		TokenHash: repo.HashToken(pair.RefreshToken),
		ExpiresAt: pair.RefreshExp,
	}
}

// ResolveToken validates an access token and confirms the user still exists.
func (p *Local) ResolveToken(ctx context.Context, accessToken string) (authmw.Identity, error) {
	claims, err := p.Issuer.ParseAccess(accessToken)
	if err != nil {
		return authmw.Identity{}, ErrInvalidToken
	}
	if p.Denylist != nil {
		revoked, err := p.Denylist.IsRevoked(ctx, claims.ID)
		if err != nil {
			return authmw.Identity{}, apperr.Upstream(fmt.Errorf("check denylist: %w", err))
		}
		if revoked {
			return authmw.Identity{}, ErrInvalidToken
		}
	}
	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return authmw.Identity{}, ErrInvalidToken
	}
	user, err := p.Repo.UserByID(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return authmw.Identity{}, ErrInvalidToken
	}
	if err != nil {
		return authmw.Identity{}, apperr.Upstream(err)
	}
	role, _ := authz.ParseRole(user.Role)
	return authmw.Identity{ID: user.ID, Email: user.Email, Role: role}, nil
}

func (p *Local) Refresh(ctx context.Context, refreshToken string) (tokens.Pair, *models.User, error) {
	claims, err := p.Issuer.ParseRefresh(refreshToken)
	if err != nil {
		return tokens.Pair{}, nil, ErrInvalidToken
	}
	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return tokens.Pair{}, nil, ErrInvalidToken
	}
	user, err := p.Repo.UserByID(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return tokens.Pair{}, nil, ErrInvalidToken
	}
	if err != nil {
		return tokens.Pair{}, nil, apperr.Upstream(err)
	}

	pair, err := p.issue(user)
	if err != nil {
		return tokens.Pair{}, nil, err
	}
	err = p.Repo.RotateRefreshToken(ctx, claims.ID, refreshRow(user.ID, pair))
	switch {
	case errors.Is(err, repo.ErrRefreshNotUsable), errors.Is(err, repo.ErrRefreshNotPresent):
		return tokens.Pair{}, nil, ErrInvalidToken
	case err != nil:
		return tokens.Pair{}, nil, apperr.Upstream(fmt.Errorf("rotate refresh: %w", err))
	}
	return pair, user, nil
}

// SignOut revokes whatever it can. Unparseable tokens are ignored.
func (p *Local) SignOut(ctx context.Context, accessToken, refreshToken string) error {
	var errs []error
	if accessToken != "" && p.Denylist != nil {
		if claims, err := p.Issuer.ParseAccess(accessToken); err == nil {
			if err := p.Denylist.Revoke(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
				errs = append(errs, fmt.Errorf("revoke access: %w", err))
			}
		}
	}
	if refreshToken != "" {
		if err := p.Repo.RevokeRefresh(ctx, repo.HashToken(refreshToken)); err != nil {
			errs = append(errs, fmt.Errorf("revoke refresh: %w", err))
		}
	}
	return errors.Join(errs...)
}

// RequestPasswordReset never reports whether email is registered.
func (p *Local) RequestPasswordReset(ctx context.Context, email string) error {
	user, err := p.Repo.UserByEmail(ctx, email)
	if errors.Is(err, repo.ErrNotFound) {
		return nil
	}
	if err != nil {
		return apperr.Upstream(err)
	}

	token, err := randomToken()
	if err != nil {
		return apperr.Upstream(err)
	}
	if err := p.Resets.Put(ctx, token, user.ID, ResetTTL); err != nil {
		return apperr.Upstream(fmt.Errorf("store reset token: %w", err))
	}

	if p.Events != nil {
		link := p.ResetURL + "?token=" + url.QueryEscape(token)
		ev := events.New(events.PasswordResetRequested, user.ID.String(), map[string]string{
			"user_id": user.ID.String(),
			"email":   user.Email,
			"link":    link,
		})
		if err := p.Events.Publish(ctx, ev); err != nil {
			logging.FromContext(ctx).Warn("event_publish_failed", "type", ev.Type, "error", err)
		}
	}
	return nil
}

func (p *Local) ResetPassword(ctx context.Context, token, newPassword string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrInvalidResetToken
	}
	userID, ok, err := p.Resets.Take(ctx, token)
	if err != nil {
		return apperr.Upstream(err)
	}
	if !ok {
		return ErrInvalidResetToken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), p.cost())
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := p.Repo.UpdatePassword(ctx, userID, string(hash)); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrInvalidResetToken
		}
		return apperr.Upstream(err)
	}
	if err := p.Repo.RevokeAllRefresh(ctx, userID); err != nil {
		return apperr.Upstream(err)
	}
	return nil
}

func randomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
