// File: internal/auth/access.go
package auth

import (
	"errors"

	"identity_backend/internal/token"
)

// Access denial reasons. Callers branch UX on the specific reason, e.g.
// prompting re-login for "expired" vs. re-verification for
// "email not verified", so each check short-circuits with its own value.
const (
	ReasonNoToken          = "no token"
	ReasonMalformed        = "malformed"
	ReasonExpired          = "expired"
	ReasonInsufficientRole = "insufficient role"
	ReasonEmailNotVerified = "email not verified"
)

// Decision is the outcome of an access check.
type Decision struct {
	OK     bool
	Reason string
}

func allow() Decision             { return Decision{OK: true} }
func deny(reason string) Decision { return Decision{Reason: reason} }

// Gate evaluates bearer tokens against role and verification requirements.
// Access state is stateless and re-derived on every check; there is no
// server-side revocation list, so a leaked access token remains usable until
// its signed expiry elapses regardless of client-side logout. That is a
// documented limitation of the session model, not something this layer
// patches over.
type Gate struct {
	tokens *token.Service
}

// NewGate creates a new access gate over the token service.
func NewGate(tokens *token.Service) *Gate {
	return &Gate{tokens: tokens}
}

// Decode decodes a bearer token into session claims. Returns nil when the
// token is absent, malformed, expired, or not an access token.
func (g *Gate) Decode(tokenString string) *token.AccessClaims {
	if tokenString == "" {
		return nil
	}
	claims, err := g.tokens.DecodeSession(tokenString)
	if err != nil {
		return nil
	}
	return claims
}

// CheckAccess evaluates the full enforcement order for a raw bearer token:
// presence, decodability, signed expiry, role, email verification. Each step
// short-circuits with its distinguishable reason. requiredRole may be empty
// to skip the role check.
func (g *Gate) CheckAccess(tokenString, requiredRole string, requireVerifiedEmail bool) (Decision, *token.AccessClaims) {
	if tokenString == "" {
		return deny(ReasonNoToken), nil
	}
	claims, err := g.tokens.DecodeSession(tokenString)
	if err != nil {
		if errors.Is(err, token.ErrExpired) {
			return deny(ReasonExpired), nil
		}
		return deny(ReasonMalformed), nil
	}
	decision := CheckClaims(claims, requiredRole, requireVerifiedEmail)
	if !decision.OK {
		return decision, nil
	}
	return decision, claims
}

// CheckClaims evaluates the role and verification gates on already-decoded
// session claims. The role claim may be scalar or list-valued; either form
// matches.
func CheckClaims(claims *token.AccessClaims, requiredRole string, requireVerifiedEmail bool) Decision {
	if claims == nil {
		return deny(ReasonNoToken)
	}
	if requiredRole != "" && !claims.Role.Contains(requiredRole) {
		return deny(ReasonInsufficientRole)
	}
	if requireVerifiedEmail && !claims.IsEmailVerified {
		return deny(ReasonEmailNotVerified)
	}
	return allow()
}
