// File: internal/user/model.go
package user

import (
	"time"

	"identity_backend/internal/common"

	"github.com/google/uuid"
)

// ProviderLocal is the auth_provider value for identities created by local
// signup, as opposed to a federated login.
const ProviderLocal = "email"

// User represents the identity model in the database. Email is unique
// regardless of origin; the password hash is always populated because the
// store requires a credential even for OAuth-only accounts.
type User struct {
	common.BaseModel
	Email           string  `gorm:"type:varchar(255);not null;uniqueIndex"`
	PasswordHash    string  `gorm:"type:varchar(255);not null"`
	FirstName       *string `gorm:"type:varchar(100)"`
	LastName        *string `gorm:"type:varchar(100)"`
	AuthProvider    string  `gorm:"type:varchar(50);not null;default:'email';uniqueIndex:idx_auth_provider_provider_id"`
	ProviderID      *string `gorm:"type:varchar(255);uniqueIndex:idx_auth_provider_provider_id"`
	IsEmailVerified bool    `gorm:"not null;default:false"`
	Role            string  `gorm:"type:varchar(50);not null;default:'user'"`
	LastLoginAt     *time.Time
}

// TableName specifies the table name for the User model.
func (User) TableName() string {
	return "users"
}

// --- DTOs for API requests/responses ---

// RegisterRequest defines the structure for creating a new local identity.
type RegisterRequest struct {
	Email     string `json:"email" binding:"required,email"`
	Password  string `json:"password" binding:"required,min=8,max=72"` // bcrypt max is 72 bytes
	FirstName string `json:"first_name,omitempty" binding:"omitempty,max=100"`
	LastName  string `json:"last_name,omitempty" binding:"omitempty,max=100"`
}

// UpdateProfileRequest defines the structure for profile updates.
type UpdateProfileRequest struct {
	FirstName *string `json:"first_name,omitempty" binding:"omitempty,max=100"`
	LastName  *string `json:"last_name,omitempty" binding:"omitempty,max=100"`
}

// UserResponse defines the structure for identity data in API responses.
type UserResponse struct {
	ID              uuid.UUID  `json:"id"`
	Email           string     `json:"email"`
	FirstName       *string    `json:"first_name,omitempty"`
	LastName        *string    `json:"last_name,omitempty"`
	AuthProvider    string     `json:"auth_provider"`
	IsEmailVerified bool       `json:"is_email_verified"`
	Role            string     `json:"role"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	LastLoginAt     *time.Time `json:"last_login_at,omitempty"`
}

// ToUserResponse converts a User model to a UserResponse DTO.
func ToUserResponse(user *User) UserResponse {
	return UserResponse{
		ID:              user.ID,
		Email:           user.Email,
		FirstName:       user.FirstName,
		LastName:        user.LastName,
		AuthProvider:    user.AuthProvider,
		IsEmailVerified: user.IsEmailVerified,
		Role:            user.Role,
		CreatedAt:       user.CreatedAt,
		UpdatedAt:       user.UpdatedAt,
		LastLoginAt:     user.LastLoginAt,
	}
}
