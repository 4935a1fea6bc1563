package authmw

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/lms/pkg/apperr"
	"github.com/Skotchmaster/lms/pkg/authz"
	"github.com/Skotchmaster/lms/pkg/cookies"
	"github.com/Skotchmaster/lms/pkg/logging"
)

const (
	CtxUserID    = "user_id"
	CtxRole      = "role"
	CtxPrincipal = "principal"
)

// Identity is what the identity provider knows about a token's owner. Role is
// only the bootstrap value recorded at signup.
type Identity struct {
	ID    uuid.UUID
	Email string
	Role  authz.Role
}

type Resolver interface {
	ResolveToken(ctx context.Context, token string) (Identity, error)
}

// ProfileRoles reads the authoritative role from the profile row.
type ProfileRoles interface {
	RoleOf(ctx context.Context, userID uuid.UUID) (authz.Role, bool, error)
}

var (
	errMissingToken = apperr.Unauthenticated("authentication required")
	errInvalidToken = apperr.Unauthenticated("invalid or expired token")
)

type Authenticator struct {
	Resolver Resolver
	Profiles ProfileRoles
}

func NewAuthenticator(resolver Resolver, profiles ProfileRoles) *Authenticator {
	return &Authenticator{Resolver: resolver, Profiles: profiles}
}

// ExtractToken prefers a Bearer Authorization header, then the access-token
// cookie. Other Authorization schemes are ignored.
func ExtractToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get(echo.HeaderAuthorization))
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		if token := strings.TrimSpace(header[7:]); token != "" {
			return token
		}
	}
	return cookies.AccessToken(r)
}

// Authenticate resolves the request's credentials into a principal.
func (a *Authenticator) Authenticate(r *http.Request) (authz.Principal, error) {
	token := ExtractToken(r)
	if token == "" {
		return authz.Principal{}, errMissingToken
	}
	return a.resolve(r.Context(), token)
}

func (a *Authenticator) resolve(ctx context.Context, token string) (authz.Principal, error) {
	ident, err := a.Resolver.ResolveToken(ctx, token)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindUpstream {
			return authz.Principal{}, err
		}
		return authz.Principal{}, errInvalidToken
	}

	role := ident.Role
	if a.Profiles != nil {
		profileRole, found, err := a.Profiles.RoleOf(ctx, ident.ID)
		if err != nil {
			return authz.Principal{}, apperr.Upstream(err)
		}
		if found {
			role = profileRole
		}
	}
	if !role.Valid() {
		return authz.Principal{}, errInvalidToken
	}

	return authz.Principal{ID: ident.ID, Email: ident.Email, Role: role}, nil
}

func (a *Authenticator) RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		p, err := a.Authenticate(c.Request())
		if err != nil {
			logging.FromContext(c.Request().Context()).Info("auth_rejected", "path", c.Path(), "reason", apperr.PublicMessage(err))
			return err
		}
		attach(c, p)
		return next(c)
	}
}

// Optional attaches a principal when credentials are present. A request without
// credentials continues anonymously; one with bad credentials is rejected so the
// client can refresh.
func (a *Authenticator) Optional(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if ExtractToken(c.Request()) == "" {
			return next(c)
		}
		p, err := a.Authenticate(c.Request())
		if err != nil {
			return err
		}
		attach(c, p)
		return next(c)
	}
}

func attach(c echo.Context, p authz.Principal) {
	c.Set(CtxUserID, p.ID.String())
	c.Set(CtxRole, string(p.Role))
	c.Set(CtxPrincipal, p)

	ctx := authz.WithPrincipal(c.Request().Context(), p)
	l := logging.FromContext(ctx).With("user_id", p.ID.String(), "role", string(p.Role))
	ctx = logging.IntoContext(ctx, l)
	c.SetRequest(c.Request().WithContext(ctx))

	l.Debug("auth_audit", "method", c.Request().Method, "path", c.Path())
}

func PrincipalFrom(c echo.Context) (authz.Principal, bool) {
	if p, ok := c.Get(CtxPrincipal).(authz.Principal); ok {
		return p, true
	}
	return authz.PrincipalFrom(c.Request().Context())
}

// MustPrincipal is for handlers mounted behind RequireAuth.
func MustPrincipal(c echo.Context) (authz.Principal, error) {
	p, ok := PrincipalFrom(c)
	if !ok {
		return authz.Principal{}, errMissingToken
	}
	return p, nil
}
