package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Skotchmaster/lms/pkg/apperr"
	"github.com/Skotchmaster/lms/pkg/authz"
	"github.com/Skotchmaster/lms/pkg/events"
	"github.com/Skotchmaster/lms/pkg/logging"
	"github.com/Skotchmaster/lms/pkg/pagination"
	"github.com/Skotchmaster/lms/pkg/tokens"
	"github.com/Skotchmaster/lms/services/auth/internal/identity"
	"github.com/Skotchmaster/lms/services/auth/internal/models"
	"github.com/Skotchmaster/lms/services/auth/internal/repo"
)

const (
	MinPasswordLen = 6
	maxNameLen     = 120
	maxBioLen      = 1000
)

type AuthService struct {
	Provider identity.Provider
	Profiles repo.ProfileRepository
	Events   events.Publisher
}

type UserView struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email,omitempty"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	Bio       *string   `json:"bio,omitempty"`
	Avatar    *string   `json:"avatar,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type AuthResult struct {
	User    UserView    `json:"user"`
	Session tokens.Pair `json:"session"`
}

type SignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Role     string `json:"role"`
}

type UpdateProfileRequest struct {
	Name   *string `json:"name"`
	Bio    *string `json:"bio"`
	Avatar *string `json:"avatar"`
}

func viewOf(email string, p *models.Profile) UserView {
	return UserView{
		ID:        p.ID,
		Email:     email,
		Name:      p.Name,
		Role:      p.Role,
		Bio:       p.Bio,
		Avatar:    p.Avatar,
		CreatedAt: p.CreatedAt,
	}
}

func normalizeEmail(s string) (string, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		return "", apperr.Validation("a valid email is required")
	}
	return s, nil
}

func validatePassword(pw string) error {
	if len(pw) < MinPasswordLen {
		return apperr.Validation("password must be at least 6 characters")
	}
	return nil
}

// signupRole accepts only self-assignable roles; admin is granted by another admin.
func signupRole(s string) (string, error) {
	if strings.TrimSpace(s) == "" {
		return string(authz.RoleStudent), nil
	}
	role, ok := authz.ParseRole(s)
	if !ok || role == authz.RoleAdmin {
		return "", apperr.Validation("role must be student or instructor")
	}
	return string(role), nil
}

func (s *AuthService) Signup(ctx context.Context, req SignupRequest) (*AuthResult, error) {
	l := logging.FromContext(ctx).With("svc", "auth.signup")

	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, err
	}
	if err := validatePassword(req.Password); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apperr.Validation("name is required")
	}
	if len(name) > maxNameLen {
		return nil, apperr.Validation("name is too long")
	}
	role, err := signupRole(req.Role)
	if err != nil {
		return nil, err
	}

	user, err := s.Provider.SignUp(ctx, identity.SignUpInput{Email: email, Password: req.Password, Name: name, Role: role})
	if err != nil {
		return nil, err
	}
	_, pair, err := s.Provider.SignIn(ctx, email, req.Password)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.New(events.UserRegistered, user.ID.String(), map[string]string{
		"user_id": user.ID.String(),
		"email":   user.Email,
		"role":    role,
	}))
	l.Info("signup_successful", "user_id", user.ID.String(), "role", role)

	view, err := s.view(ctx, user.ID, user.Email)
	if err != nil {
		return nil, err
	}
	return &AuthResult{User: view, Session: pair}, nil
}

func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return nil, apperr.Validation("email and password are required")
	}
	user, pair, err := s.Provider.SignIn(ctx, email, password)
	if err != nil {
		return nil, err
	}
	view, err := s.view(ctx, user.ID, user.Email)
	if err != nil {
		return nil, err
	}
	return &AuthResult{User: view, Session: pair}, nil
}

func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	if refreshToken == "" {
		return nil, apperr.Unauthenticated("refresh token required")
	}
	pair, user, err := s.Provider.Refresh(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	view, err := s.view(ctx, user.ID, user.Email)
	if err != nil {
		return nil, err
	}
	return &AuthResult{User: view, Session: pair}, nil
}

func (s *AuthService) Logout(ctx context.Context, accessToken, refreshToken string) error {
	return s.Provider.SignOut(ctx, accessToken, refreshToken)
}

// Verify describes the authenticated principal. Role comes from the principal,
// which the middleware already resolved from the profile.
func (s *AuthService) Verify(ctx context.Context, p authz.Principal) (UserView, error) {
	view, err := s.view(ctx, p.ID, p.Email)
	if err != nil {
		return UserView{}, err
	}
	view.Role = string(p.Role)
	return view, nil
}

func (s *AuthService) Me(ctx context.Context, p authz.Principal) (UserView, error) {
	return s.view(ctx, p.ID, p.Email)
}

func (s *AuthService) UpdateMe(ctx context.Context, p authz.Principal, req UpdateProfileRequest) (UserView, error) {
	patch := repo.ProfilePatch{Bio: req.Bio, Avatar: req.Avatar}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return UserView{}, apperr.Validation("name cannot be empty")
		}
		if len(name) > maxNameLen {
			return UserView{}, apperr.Validation("name is too long")
		}
		patch.Name = &name
	}
	if req.Bio != nil && len(*req.Bio) > maxBioLen {
		return UserView{}, apperr.Validation("bio is too long")
	}

	prof, err := s.Profiles.UpdateProfile(ctx, p.ID, patch)
	if err != nil {
		return UserView{}, profileErr(err)
	}
	return viewOf(p.Email, prof), nil
}

// ForgotPassword always succeeds from the caller's point of view.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) {
	if strings.TrimSpace(email) == "" {
		return
	}
	if err := s.Provider.RequestPasswordReset(ctx, email); err != nil {
		logging.FromContext(ctx).Error("password_reset_request_failed", "error", err)
	}
}

func (s *AuthService) ResetPassword(ctx context.Context, token, newPassword string) error {
	if err := validatePassword(newPassword); err != nil {
		return err
	}
	return s.Provider.ResetPassword(ctx, token, newPassword)
}

func (s *AuthService) ListUsers(ctx context.Context, page pagination.Page) ([]UserView, int64, error) {
	items, total, err := s.Profiles.ListProfiles(ctx, page.Offset, page.Limit)
	if err != nil {
		return nil, 0, apperr.Upstream(err)
	}
	out := make([]UserView, 0, len(items))
	for i := range items {
		out = append(out, viewOf("", &items[i]))
	}
	return out, total, nil
}

func (s *AuthService) SetRole(ctx context.Context, admin authz.Principal, id uuid.UUID, role string) (UserView, error) {
	r, ok := authz.ParseRole(role)
	if !ok {
		return UserView{}, apperr.Validation("role must be student, instructor or admin")
	}
	if admin.ID == id && r != authz.RoleAdmin {
		return UserView{}, apperr.Validation("admins cannot demote themselves")
	}
	prof, err := s.Profiles.SetRole(ctx, id, string(r))
	if err != nil {
		return UserView{}, profileErr(err)
	}
	logging.FromContext(ctx).Info("role_changed", "target_id", id.String(), "role", string(r), "by", admin.ID.String())
	return viewOf("", prof), nil
}

func (s *AuthService) view(ctx context.Context, id uuid.UUID, email string) (UserView, error) {
	prof, err := s.Profiles.Profile(ctx, id)
	if err != nil {
		return UserView{}, profileErr(err)
	}
	return viewOf(email, prof), nil
}

func (s *AuthService) publish(ctx context.Context, ev events.Event) {
	if s.Events == nil {
		return
	}
	if err := s.Events.Publish(ctx, ev); err != nil {
		logging.FromContext(ctx).Warn("event_publish_failed", "type", ev.Type, "error", err)
	}
}

func profileErr(err error) error {
	if errors.Is(err, repo.ErrNotFound) {
		return apperr.NotFound("profile not found")
	}
	return apperr.Upstream(err)
}
