// File: internal/user/adapter.go
package user

import (
	"identity_backend/internal/shared"
)

// DBToShared converts a GORM User to the shared.User exposed to callers.
func DBToShared(u *User) *shared.User {
	return &shared.User{
		ID:              u.ID,
		Email:           u.Email,
		FirstName:       u.FirstName,
		LastName:        u.LastName,
		Role:            u.Role,
		AuthProvider:    u.AuthProvider,
		IsEmailVerified: u.IsEmailVerified,
		CreatedAt:       u.CreatedAt,
		UpdatedAt:       u.UpdatedAt,
		LastLoginAt:     u.LastLoginAt,
	}
}

// SharedToResponse converts a shared.User to the UserResponse DTO.
func SharedToResponse(u *shared.User) UserResponse {
	return UserResponse{
		ID:              u.ID,
		Email:           u.Email,
		FirstName:       u.FirstName,
		LastName:        u.LastName,
		AuthProvider:    u.AuthProvider,
		IsEmailVerified: u.IsEmailVerified,
		Role:            u.Role,
		CreatedAt:       u.CreatedAt,
		UpdatedAt:       u.UpdatedAt,
		LastLoginAt:     u.LastLoginAt,
	}
}

// CreateRequestToDB builds a GORM User from a local signup request and its
// hashed credential.
func CreateRequestToDB(req *shared.CreateUserRequest, passwordHash string) *User {
	dbUser := &User{
		Email:        NormalizeEmail(req.Email),
		PasswordHash: passwordHash,
		AuthProvider: ProviderLocal,
		Role:         "user",
	}
	if req.FirstName != "" {
		firstName := req.FirstName
		dbUser.FirstName = &firstName
	}
	if req.LastName != "" {
		lastName := req.LastName
		dbUser.LastName = &lastName
	}
	return dbUser
}
