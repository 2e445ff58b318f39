// File: internal/token/service.go
package token

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"identity_backend/internal/config"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Validation failure kinds. Each is a distinguishable condition; callers map
// them to their own boundary errors and must not collapse them.
var (
	// ErrMalformed covers unparseable, unsigned, or structurally invalid tokens.
	ErrMalformed = errors.New("invalid token")
	// ErrExpired means the signed expiry claim has elapsed.
	ErrExpired = errors.New("expired")
	// ErrWrongPurpose means the token is internally well-formed but was minted
	// for a different purpose than the endpoint expects.
	ErrWrongPurpose = errors.New("wrong token type")
	// ErrStale means the embedded issue timestamp exceeds the purpose-specific
	// freshness maximum even though the signature has not yet expired.
	ErrStale = errors.New("token too old")
)

// Service mints and verifies purpose-tagged signed tokens. Issuance and
// validation are pure computations over the shared secret; no state is kept
// and concurrent use needs no synchronization.
type Service struct {
	cfg    *config.Config
	logger *zap.Logger
	now    func() time.Time
}

// NewService creates a new token service.
func NewService(cfg *config.Config, logger *zap.Logger) *Service {
	return &Service{
		cfg:    cfg,
		logger: logger.Named("TokenService"),
		now:    time.Now,
	}
}

// Issue mints a signed token for the given purpose. The cryptographic expiry
// is the same fixed window for every purpose; purpose-specific freshness is
// enforced at validation time from the embedded timestamp instead.
func (s *Service) Issue(email string, userID uuid.UUID, purpose Purpose) (string, time.Time, error) {
	if !purpose.Valid() {
		return "", time.Time{}, fmt.Errorf("unknown token purpose %q", purpose)
	}
	return s.sign(&wireClaims{
		Email:     email,
		UserID:    userID.String(),
		Type:      string(purpose),
		Timestamp: s.now().UnixMilli(),
	})
}

// IssueAccess mints a session access token carrying the role and
// email-verification state evaluated by access control.
func (s *Service) IssueAccess(userID uuid.UUID, email, role string, emailVerified bool) (string, time.Time, error) {
	return s.sign(&wireClaims{
		Email:           email,
		UserID:          userID.String(),
		Type:            string(PurposeAccess),
		Timestamp:       s.now().UnixMilli(),
		Role:            RoleClaim{role},
		IsEmailVerified: emailVerified,
	})
}

func (s *Service) sign(claims *wireClaims) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.cfg.TokenExpiry)
	claims.RegisteredClaims = jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(expiresAt),
		IssuedAt:  jwt.NewNumericDate(now),
		Issuer:    s.cfg.JWTIssuer,
		Subject:   claims.UserID,
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString([]byte(s.cfg.JWTSecretKey))
	if err != nil {
		s.logger.Error("Failed to sign token", zap.String("type", claims.Type), zap.Error(err))
		return "", time.Time{}, fmt.Errorf("could not sign %s token: %w", claims.Type, err)
	}
	return signed, expiresAt, nil
}

// Validate decodes a token and asserts it was minted for the expected
// purpose. Signature and expiry are checked first, then the purpose
// discriminator, then the purpose-specific freshness maximum for
// verification and reset tokens.
func (s *Service) Validate(tokenString string, expected Purpose) (Claims, error) {
	wire := &wireClaims{}
	parsed, err := jwt.ParseWithClaims(tokenString, wire, func(t *jwt.Token) (interface{}, error) {
		return []byte(s.cfg.JWTSecretKey), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, ErrMalformed
	}
	if !parsed.Valid {
		return nil, ErrMalformed
	}

	if Purpose(wire.Type) != expected {
		return nil, ErrWrongPurpose
	}

	// The embedded timestamp supports a freshness policy distinct from raw
	// signature validity, so this recomputation is intentional even when the
	// registered expiry has not elapsed.
	if maxAge := s.freshnessMaxAge(expected); maxAge > 0 {
		age := s.now().Sub(time.UnixMilli(wire.Timestamp))
		if age > maxAge {
			return nil, ErrStale
		}
	}

	claims, err := claimsFromWire(wire)
	if err != nil {
		return nil, ErrMalformed
	}
	return claims, nil
}

func (s *Service) freshnessMaxAge(purpose Purpose) time.Duration {
	switch purpose {
	case PurposeEmailVerification:
		return s.cfg.VerificationTokenMaxAge
	case PurposePasswordReset:
		return s.cfg.PasswordResetTokenMaxAge
	default:
		return 0
	}
}

// DecodeSession decodes a bearer token as a session access token. The error
// is one of ErrMalformed, ErrExpired, or ErrWrongPurpose.
func (s *Service) DecodeSession(tokenString string) (*AccessClaims, error) {
	claims, err := s.Validate(tokenString, PurposeAccess)
	if err != nil {
		return nil, err
	}
	access, ok := claims.(AccessClaims)
	if !ok {
		return nil, ErrMalformed
	}
	return &access, nil
}

// BuildLink renders the out-of-band URL a minted token is delivered in,
// under the configured public base URL.
func (s *Service) BuildLink(tokenString, pathSegment string) string {
	base := strings.TrimRight(s.cfg.PublicBaseURL, "/")
	segment := strings.Trim(pathSegment, "/")
	return fmt.Sprintf("%s/%s?token=%s", base, segment, url.QueryEscape(tokenString))
}
