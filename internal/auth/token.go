package auth

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenLifetime is the fixed validity window of an issued token.
const TokenLifetime = 24 * time.Hour

// Claims is the payload of an issued token.
type Claims struct {
	jwt.RegisteredClaims
}

// TokenService issues and verifies HS256 bearer tokens. It holds no
// mutable state and is safe for concurrent use.
type TokenService struct {
	secret   []byte
	lifetime time.Duration
	now      func() time.Time
}

// TokenOption configures a TokenService.
type TokenOption func(*TokenService)

// WithClock replaces the wall clock used for issuing and expiry checks.
func WithClock(now func() time.Time) TokenOption {
	return func(s *TokenService) {
		s.now = now
	}
}

// NewTokenService creates a token service signing with secret.
func NewTokenService(secret string, opts ...TokenOption) *TokenService {
	s := &TokenService{
		secret:   []byte(secret),
		lifetime: TokenLifetime,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Issue signs a token for the principal. iat is truncated to the second
// and exp is exactly iat plus the token lifetime.
func (s *TokenService) Issue(principal *User) (string, error) {
	if principal == nil || principal.ID == "" {
		return "", fmt.Errorf("issuing token: principal has no id")
	}

	// NumericDate has second precision; exp counts from the truncated iat.
	iat := s.now().Truncate(time.Second)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   principal.ID,
			IssuedAt:  jwt.NewNumericDate(iat),
			ExpiresAt: jwt.NewNumericDate(iat.Add(s.lifetime)),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// Verify checks structure, signature and expiry, in that order, and
// returns the subject.
func (s *TokenService) Verify(token string) (string, error) {
	claims, err := s.Parse(token)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// Parse is Verify returning the full claims.
func (s *TokenService) Parse(token string) (*Claims, error) {
	if err := checkStructure(token); err != nil {
		return nil, err
	}

	// Expiry is checked below against the injected clock.
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithStrictDecoding(),
		jwt.WithoutClaimsValidation(),
	)

	claims := &Claims{}
	_, err := parser.ParseWithClaims(token, claims, func(_ *jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil {
		return nil, classifyParseError(err)
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrMalformedToken)
	}
	if claims.ExpiresAt == nil {
		return nil, fmt.Errorf("%w: missing expiry", ErrMalformedToken)
	}
	if !s.now().Before(claims.ExpiresAt.Time) {
		return nil, ErrExpiredToken
	}
	return claims, nil
}

// ExpiryOf reads exp without verifying the token. When exp cannot be read
// it returns now plus the token lifetime, which outlives any token this
// service could have issued.
func (s *TokenService) ExpiryOf(token string) time.Time {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err == nil && claims.ExpiresAt != nil {
		return claims.ExpiresAt.Time
	}
	return s.now().Add(s.lifetime)
}

// segmentEncoding accepts only the canonical unpadded base64url spelling:
// non-zero trailing bits are rejected.
var segmentEncoding = base64.RawURLEncoding.Strict()

// decodeSegment decodes one token segment. The base64 decoder skips CR and
// LF, so those are refused here to keep one spelling per segment.
func decodeSegment(seg string) ([]byte, error) {
	if strings.ContainsAny(seg, "\r\n") {
		return nil, errors.New("segment contains a line break")
	}
	return segmentEncoding.DecodeString(seg)
}

// canonicalToken re-encodes the signature segment, so that any spelling
// of the same signature bytes maps to one revocation key. Input whose
// signature does not decode is returned unchanged.
func canonicalToken(token string) string {
	i := strings.LastIndexByte(token, '.')
	if i < 0 {
		return token
	}
	sig, err := base64.RawURLEncoding.DecodeString(token[i+1:])
	if err != nil {
		return token
	}
	return token[:i+1] + base64.RawURLEncoding.EncodeToString(sig)
}

// checkStructure rejects anything that is not three canonical base64url
// segments whose first two decode to JSON objects. A signature segment
// that does not decode cannot match, so it is reported as an invalid
// signature.
func checkStructure(token string) error {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return fmt.Errorf("%w: expected 3 segments, got %d", ErrMalformedToken, len(parts))
	}

	for i, name := range []string{"header", "payload"} {
		raw, err := decodeSegment(parts[i])
		if err != nil {
			return fmt.Errorf("%w: %s is not base64url", ErrMalformedToken, name)
		}
		var obj map[string]any
		if err := json.Unmarshal(raw, &obj); err != nil {
			return fmt.Errorf("%w: %s is not a JSON object", ErrMalformedToken, name)
		}
	}

	if _, err := decodeSegment(parts[2]); err != nil {
		return fmt.Errorf("%w: signature is not base64url", ErrInvalidSignature)
	}
	return nil
}

func classifyParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid),
		errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %w", ErrMalformedToken, err)
	default:
		return fmt.Errorf("%w: %w", ErrMalformedToken, err)
	}
}
