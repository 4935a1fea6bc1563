package service

import (
	"context"
	"errors"

	"github.com/Skotchmaster/lms/pkg/logging"
	"github.com/Skotchmaster/lms/services/auth/internal/identity"
)

type DemoAccount struct {
	Email    string
	Password string
	Name     string
	Role     string
}

// DemoAccounts are created when SEED_DEMO_USERS is set. Admin cannot be
// self-registered, so the admin row is promoted through the profile store.
var DemoAccounts = []DemoAccount{
	{Email: "admin@lms.local", Password: "admin123", Name: "Demo Admin", Role: "admin"},
	{Email: "instructor@lms.local", Password: "instructor123", Name: "Demo Instructor", Role: "instructor"},
	{Email: "student@lms.local", Password: "student123", Name: "Demo Student", Role: "student"},
}

func (s *AuthService) SeedDemoUsers(ctx context.Context, accounts []DemoAccount) error {
	l := logging.FromContext(ctx).With("svc", "auth.seed")
	for _, a := range accounts {
		bootstrap := a.Role
		if bootstrap == "admin" {
			bootstrap = "student"
		}
		u, err := s.Provider.SignUp(ctx, identity.SignUpInput{Email: a.Email, Password: a.Password, Name: a.Name, Role: bootstrap})
		if errors.Is(err, identity.ErrEmailTaken) {
			continue
		}
		if err != nil {
			return err
		}
		if a.Role != bootstrap {
			if _, err := s.Profiles.SetRole(ctx, u.ID, a.Role); err != nil {
				return err
			}
		}
		l.Info("demo_user_seeded", "email", a.Email, "role", a.Role)
	}
	return nil
}
