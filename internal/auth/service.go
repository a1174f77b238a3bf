package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
)

// RegisterRequest carries the fields of a new account.
type RegisterRequest struct {
	Name     string `json:"name"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Session is the result of a successful register or login.
type Session struct {
	Token string
	User  *User
}

// Service implements the account operations that sit on top of the
// token service and the revocation store.
type Service struct {
	users       UserRepository
	tokens      *TokenService
	revocations RevocationStore
	logger      *slog.Logger
}

// NewService creates an account service.
func NewService(users UserRepository, tokens *TokenService, revocations RevocationStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		users:       users,
		tokens:      tokens,
		revocations: revocations,
		logger:      logger,
	}
}

// Register creates a USER account and issues its first token.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*Session, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	if err := validateRegistration(req); err != nil {
		return nil, err
	}

	if err := s.ensureAvailable(ctx, req.Username, req.Email); err != nil {
		return nil, err
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	user := &User{
		Name:         req.Name,
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
		Role:         RoleUser,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	token, err := s.tokens.Issue(user)
	if err != nil {
		return nil, err
	}

	s.logger.Info("user registered", "user_id", user.ID, "username", user.Username)
	return &Session{Token: token, User: user}, nil
}

func validateRegistration(req RegisterRequest) error {
	if req.Name == "" {
		return ErrNameRequired
	}
	if !IsValidUsername(req.Username) {
		return fmt.Errorf("%w: 3-64 characters of letters, digits, '.', '-' or '_'", ErrInvalidUsername)
	}
	if addr, err := mail.ParseAddress(req.Email); err != nil || addr.Address != req.Email {
		return fmt.Errorf("%w: %q", ErrInvalidEmail, req.Email)
	}
	return ValidatePassword(req.Password)
}

// ensureAvailable checks both unique fields up front so the caller learns
// which one collides. The UNIQUE constraints still decide races.
func (s *Service) ensureAvailable(ctx context.Context, username, email string) error {
	if _, err := s.users.GetByUsername(ctx, username); err == nil {
		return ErrUsernameExists
	} else if !errors.Is(err, ErrUserNotFound) {
		return err
	}

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return ErrEmailExists
	} else if !errors.Is(err, ErrUserNotFound) {
		return err
	}
	return nil
}

// Login authenticates by username or email and issues a token. Unknown
// accounts and wrong passwords both return ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, login, password string) (*Session, error) {
	login = strings.TrimSpace(login)
	if login == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	user, err := s.users.GetByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	ok, err := VerifyPassword(password, user.PasswordHash)
	if err != nil {
		s.logger.Error("stored password hash unreadable", "user_id", user.ID, "error", err)
		return nil, ErrInvalidCredentials
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(user)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, User: user}, nil
}

// Logout revokes the bearer token in authorization, if there is one.
// The record lives until the token's own expiry. Logging out twice is
// harmless.
func (s *Service) Logout(ctx context.Context, authorization string) error {
	token, present, err := ExtractBearer(authorization)
	if !present || err != nil {
		return nil //nolint:nilerr // nothing to revoke
	}

	if err := s.revocations.Record(ctx, token, s.tokens.ExpiryOf(token)); err != nil {
		return fmt.Errorf("%w: %w", ErrAuthUnavailable, err)
	}
	return nil
}

// Current returns the principal bound to ctx.
func (s *Service) Current(ctx context.Context) (*User, error) {
	p := PrincipalFrom(ctx)
	if p == nil {
		return nil, ErrUnauthenticated
	}
	return p, nil
}

// SearchUsers lists other accounts matching term.
func (s *Service) SearchUsers(ctx context.Context, term string, limit int) ([]User, error) {
	p := PrincipalFrom(ctx)
	if err := RequirePermission(p, PermUserSearch); err != nil {
		return nil, err
	}
	return s.users.Search(ctx, term, p.ID, limit)
}
