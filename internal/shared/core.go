// File: internal/shared/core.go
package shared

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// User represents an identity in the system as exposed to callers. The
// password hash never crosses this boundary.
type User struct {
	ID              uuid.UUID  `json:"id"`
	Email           string     `json:"email"`
	FirstName       *string    `json:"first_name,omitempty"`
	LastName        *string    `json:"last_name,omitempty"`
	Role            string     `json:"role"`
	AuthProvider    string     `json:"auth_provider"`
	IsEmailVerified bool       `json:"is_email_verified"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	LastLoginAt     *time.Time `json:"last_login_at,omitempty"`
}

// CreateUserRequest represents a request to create a new local identity.
type CreateUserRequest struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// UpdateProfileRequest carries the mutable profile fields.
type UpdateProfileRequest struct {
	FirstName *string
	LastName  *string
}

// TokenResponse represents the response containing a session token.
type TokenResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// OAuthUserProfile is the canonical profile every provider callback payload
// is normalized into before identity resolution.
type OAuthUserProfile struct {
	Provider      string
	ProviderID    string
	Email         string
	FirstName     string
	LastName      string
	EmailVerified bool
}

// Service defines the interface for identity business logic.
type Service interface {
	Register(ctx context.Context, req CreateUserRequest) (*User, *TokenResponse, error)
	Login(ctx context.Context, email, password string) (*User, *TokenResponse, error)
	VerifyEmail(ctx context.Context, tokenString string) (*User, error)
	RequestPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, tokenString, newPassword string) error
	GetUserByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	UpdateProfile(ctx context.Context, id uuid.UUID, req UpdateProfileRequest) (*User, error)
}

// OAuthUserProvider defines the identity operations the OAuth service needs.
type OAuthUserProvider interface {
	// FindOrCreateOAuthUser resolves a normalized provider profile against the
	// credential store, creating a pre-verified identity on first login.
	FindOrCreateOAuthUser(ctx context.Context, profile OAuthUserProfile) (usr *User, wasCreated bool, err error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*User, error)
}
