package auth

import (
	"testing"
	"time"

	"identity_backend/internal/config"
	"identity_backend/internal/token"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestGate(t *testing.T) (*Gate, *token.Service) {
	t.Helper()
	cfg := &config.Config{
		JWTSecretKey:             "access-gate-test-secret",
		JWTIssuer:                "identity_backend_test",
		TokenExpiry:              time.Hour,
		VerificationTokenMaxAge:  24 * time.Hour,
		PasswordResetTokenMaxAge: time.Hour,
	}
	svc := token.NewService(cfg, zap.NewNop())
	return NewGate(svc), svc
}

func TestCheckAccessOrdering(t *testing.T) {
	gate, svc := newTestGate(t)
	userID := uuid.New()

	validUser, _, err := svc.IssueAccess(userID, "a@x.com", "user", true)
	require.NoError(t, err)
	validAdmin, _, err := svc.IssueAccess(userID, "a@x.com", "admin", true)
	require.NoError(t, err)
	unverifiedAdmin, _, err := svc.IssueAccess(userID, "a@x.com", "admin", false)
	require.NoError(t, err)
	verification, _, err := svc.Issue("a@x.com", userID, token.PurposeEmailVerification)
	require.NoError(t, err)

	tests := []struct {
		name            string
		token           string
		requiredRole    string
		requireVerified bool
		wantOK          bool
		wantReason      string
	}{
		{"missing token", "", "admin", true, false, ReasonNoToken},
		{"garbage token", "garbage", "admin", true, false, ReasonMalformed},
		{"wrong purpose counts as malformed", verification, "", false, false, ReasonMalformed},
		{"role not held", validUser, "admin", true, false, ReasonInsufficientRole},
		{"role held but unverified", unverifiedAdmin, "admin", true, false, ReasonEmailNotVerified},
		{"all requirements met", validAdmin, "admin", true, true, ""},
		{"no role requirement", validUser, "", true, true, ""},
		{"unverified allowed when not required", unverifiedAdmin, "admin", false, true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision, claims := gate.CheckAccess(tt.token, tt.requiredRole, tt.requireVerified)
			assert.Equal(t, tt.wantOK, decision.OK)
			assert.Equal(t, tt.wantReason, decision.Reason)
			if tt.wantOK {
				require.NotNil(t, claims)
				assert.Equal(t, userID, claims.UserID)
			} else {
				assert.Nil(t, claims)
			}
		})
	}
}

func TestCheckAccessExpiredBeatsRole(t *testing.T) {
	// Hand-sign an access token whose registered expiry already elapsed,
	// using the same secret the gate verifies with.
	issuedAt := time.Now().Add(-2 * time.Hour)
	payload := jwt.MapClaims{
		"email":             "a@x.com",
		"user_id":           uuid.NewString(),
		"type":              "access",
		"timestamp":         issuedAt.UnixMilli(),
		"role":              "user",
		"is_email_verified": true,
		"exp":               issuedAt.Add(time.Hour).Unix(),
		"iat":               issuedAt.Unix(),
	}
	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, payload).
		SignedString([]byte("access-gate-test-secret"))
	require.NoError(t, err)

	gate, _ := newTestGate(t)
	decision, claims := gate.CheckAccess(expired, "admin", true)
	assert.False(t, decision.OK)
	// Expiry is reported before the role mismatch is ever considered.
	assert.Equal(t, ReasonExpired, decision.Reason)
	assert.Nil(t, claims)
}

func TestCheckClaimsRoleForms(t *testing.T) {
	claims := &token.AccessClaims{
		Identity:        token.Identity{UserID: uuid.New(), Email: "a@x.com"},
		Role:            token.RoleClaim{"user", "admin"},
		IsEmailVerified: true,
	}

	assert.True(t, CheckClaims(claims, "admin", true).OK)
	assert.True(t, CheckClaims(claims, "user", true).OK)
	assert.Equal(t, ReasonInsufficientRole, CheckClaims(claims, "superuser", true).Reason)

	assert.Equal(t, ReasonNoToken, CheckClaims(nil, "", false).Reason)
}

func TestDecodeReturnsNilOnAnyFailure(t *testing.T) {
	gate, svc := newTestGate(t)

	assert.Nil(t, gate.Decode(""))
	assert.Nil(t, gate.Decode("garbage"))

	reset, _, err := svc.Issue("a@x.com", uuid.New(), token.PurposePasswordReset)
	require.NoError(t, err)
	assert.Nil(t, gate.Decode(reset))

	access, _, err := svc.IssueAccess(uuid.New(), "a@x.com", "user", false)
	require.NoError(t, err)
	assert.NotNil(t, gate.Decode(access))
}
