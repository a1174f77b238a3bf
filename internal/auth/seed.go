package auth

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// AdminSeed holds the bootstrap administrator credentials.
type AdminSeed struct {
	Username string
	Email    string
	Password string
}

// SeedAdmin creates the first ADMIN account when the user table is empty.
// It returns true when an account was created. Missing credentials or an
// existing user base skip seeding.
func SeedAdmin(ctx context.Context, users UserRepository, seed AdminSeed, logger *slog.Logger) (bool, error) {
	if seed.Username == "" || seed.Password == "" {
		return false, nil
	}

	count, err := users.Count(ctx)
	if err != nil {
		return false, fmt.Errorf("checking user count: %w", err)
	}
	if count > 0 {
		logger.Debug("users exist, skipping admin seed")
		return false, nil
	}

	if err := ValidatePassword(seed.Password); err != nil {
		return false, fmt.Errorf("bootstrap admin: %w", err)
	}

	hash, err := HashPassword(seed.Password)
	if err != nil {
		return false, fmt.Errorf("hashing bootstrap admin password: %w", err)
	}

	email := strings.ToLower(seed.Email)
	if email == "" {
		email = seed.Username + "@localhost"
	}

	admin := &User{
		Name:         "Administrator",
		Username:     seed.Username,
		Email:        email,
		PasswordHash: hash,
		Role:         RoleAdmin,
	}
	if err := users.Create(ctx, admin); err != nil {
		return false, fmt.Errorf("creating bootstrap admin: %w", err)
	}

	logger.Warn("bootstrap admin account created",
		"username", admin.Username,
		"action_required", "change this password",
	)
	return true, nil
}
