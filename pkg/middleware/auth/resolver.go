package authmw

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/Skotchmaster/lms/pkg/apperr"
	"github.com/Skotchmaster/lms/pkg/authz"
	"github.com/Skotchmaster/lms/pkg/revocation"
	"github.com/Skotchmaster/lms/pkg/tokens"
)

// JWTResolver verifies access tokens locally with the shared secret and consults
// the shared denylist for tokens revoked at logout.
type JWTResolver struct {
	Issuer   *tokens.Issuer
	Denylist revocation.Denylist
}

func (r *JWTResolver) ResolveToken(ctx context.Context, token string) (Identity, error) {
	claims, err := r.Issuer.ParseAccess(token)
	if err != nil {
		return Identity{}, err
	}
	if r.Denylist != nil {
		revoked, err := r.Denylist.IsRevoked(ctx, claims.ID)
		if err != nil {
			return Identity{}, apperr.Upstream(fmt.Errorf("check denylist: %w", err))
		}
		if revoked {
			return Identity{}, tokens.ErrInvalid
		}
	}
	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return Identity{}, tokens.ErrInvalid
	}
	role, _ := authz.ParseRole(claims.Role)
	return Identity{ID: id, Email: claims.Email, Role: role}, nil
}
