// File: internal/token/claims.go
package token

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// RoleClaim decodes a role claim that may be scalar or list-valued. Tokens
// minted here carry a single role, but tokens from older issuers carried a
// list, and both forms must keep matching.
type RoleClaim []string

func (r *RoleClaim) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*r = RoleClaim{single}
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*r = RoleClaim(list)
		return nil
	}
	return fmt.Errorf("role claim is neither a string nor a list of strings")
}

func (r RoleClaim) MarshalJSON() ([]byte, error) {
	if len(r) == 1 {
		return json.Marshal(r[0])
	}
	return json.Marshal([]string(r))
}

// Contains reports whether the claim includes the given role.
func (r RoleClaim) Contains(role string) bool {
	for _, v := range r {
		if v == role {
			return true
		}
	}
	return false
}

// wireClaims is the flat signed payload shared by every purpose. Both "type"
// and "timestamp" are load-bearing: the purpose assertion and the app-level
// freshness checks read them, independently of the registered expiry claim.
type wireClaims struct {
	Email           string    `json:"email"`
	UserID          string    `json:"user_id"`
	Type            string    `json:"type"`
	Timestamp       int64     `json:"timestamp"` // issue time, Unix millis
	Role            RoleClaim `json:"role,omitempty"`
	IsEmailVerified bool      `json:"is_email_verified,omitempty"`
	jwt.RegisteredClaims
}

// Identity carries the fields common to every purpose-specific claim record.
type Identity struct {
	UserID   uuid.UUID
	Email    string
	IssuedAt time.Time
}

// Claims is the tagged union of decoded token payloads. Validate pattern-
// matches on the wire "type" discriminator into exactly one of the three
// concrete records before any purpose-specific field is accessed.
type Claims interface {
	TokenPurpose() Purpose
	TokenIdentity() Identity
}

// AccessClaims is the decoded payload of a session access token.
type AccessClaims struct {
	Identity
	Role            RoleClaim
	IsEmailVerified bool
	ExpiresAt       time.Time
}

func (AccessClaims) TokenPurpose() Purpose     { return PurposeAccess }
func (c AccessClaims) TokenIdentity() Identity { return c.Identity }

// VerificationClaims is the decoded payload of an email verification token.
type VerificationClaims struct {
	Identity
}

func (VerificationClaims) TokenPurpose() Purpose     { return PurposeEmailVerification }
func (c VerificationClaims) TokenIdentity() Identity { return c.Identity }

// ResetClaims is the decoded payload of a password reset token.
type ResetClaims struct {
	Identity
}

func (ResetClaims) TokenPurpose() Purpose     { return PurposePasswordReset }
func (c ResetClaims) TokenIdentity() Identity { return c.Identity }

// claimsFromWire maps the open wire payload into the typed record matching
// its discriminator.
func claimsFromWire(w *wireClaims) (Claims, error) {
	userID, err := uuid.Parse(w.UserID)
	if err != nil {
		return nil, fmt.Errorf("user_id claim is not a UUID: %w", err)
	}
	identity := Identity{
		UserID:   userID,
		Email:    w.Email,
		IssuedAt: time.UnixMilli(w.Timestamp),
	}

	switch Purpose(w.Type) {
	case PurposeAccess:
		var expiresAt time.Time
		if w.ExpiresAt != nil {
			expiresAt = w.ExpiresAt.Time
		}
		return AccessClaims{
			Identity:        identity,
			Role:            w.Role,
			IsEmailVerified: w.IsEmailVerified,
			ExpiresAt:       expiresAt,
		}, nil
	case PurposeEmailVerification:
		return VerificationClaims{Identity: identity}, nil
	case PurposePasswordReset:
		return ResetClaims{Identity: identity}, nil
	default:
		return nil, fmt.Errorf("unknown token type %q", w.Type)
	}
}
