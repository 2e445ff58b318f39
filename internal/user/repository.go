// File: internal/user/repository.go
package user

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"identity_backend/internal/common"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository defines the interface for identity data operations.
type Repository interface {
	Create(ctx context.Context, user *User) error
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, id uuid.UUID) (*User, error)
	FindByProvider(ctx context.Context, authProvider string, providerID string) (*User, error)
	Update(ctx context.Context, user *User) error
	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error
	MarkEmailVerified(ctx context.Context, id uuid.UUID) error
	CreateOAuthIdentity(ctx context.Context, user *User) (*User, bool, error)
	DeleteStaleUnverified(ctx context.Context, cutoff time.Time) (int64, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewGORMRepository creates a new GORM identity repository.
func NewGORMRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func isUniqueViolation(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey) ||
		strings.Contains(err.Error(), "unique constraint") ||
		strings.Contains(err.Error(), "UNIQUE constraint") ||
		strings.Contains(err.Error(), "duplicate key value violates unique constraint")
}

// Create inserts a new identity record into the database.
func (r *gormRepository) Create(ctx context.Context, user *User) error {
	user.Email = NormalizeEmail(user.Email)
	err := r.db.WithContext(ctx).Create(user).Error
	if err != nil {
		if isUniqueViolation(err) {
			if strings.Contains(err.Error(), "provider") {
				return common.ErrConflict.WithDetails("This social account is already linked to a user.")
			}
			return common.ErrConflict.WithDetails("User with this email already exists.")
		}
		return err
	}
	return nil
}

// FindByEmail retrieves an identity by its normalized email address.
func (r *gormRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	var userModel User
	err := r.db.WithContext(ctx).Where("email = ?", NormalizeEmail(email)).First(&userModel).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, common.ErrNotFound.WithDetails("User not found with this email.")
		}
		return nil, err
	}
	return &userModel, nil
}

// FindByID retrieves an identity by its ID.
func (r *gormRepository) FindByID(ctx context.Context, id uuid.UUID) (*User, error) {
	var userModel User
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&userModel).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, common.ErrNotFound.WithDetails("User not found with this ID.")
		}
		return nil, err
	}
	return &userModel, nil
}

// FindByProvider retrieves an identity by OAuth provider and provider ID.
func (r *gormRepository) FindByProvider(ctx context.Context, authProvider string, providerID string) (*User, error) {
	var userModel User
	err := r.db.WithContext(ctx).
		Where("auth_provider = ? AND provider_id = ?", authProvider, providerID).
		First(&userModel).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, common.ErrNotFound.WithDetails(
				fmt.Sprintf("User not found with provider %s and ID %s.", authProvider, providerID),
			)
		}
		return nil, err
	}
	return &userModel, nil
}

// Update modifies an existing identity record in the database.
func (r *gormRepository) Update(ctx context.Context, user *User) error {
	user.Email = NormalizeEmail(user.Email)
	err := r.db.WithContext(ctx).Save(user).Error
	if err != nil {
		if isUniqueViolation(err) {
			return common.ErrConflict.WithDetails("Update failed due to a conflict (e.g., email already taken).")
		}
		return err
	}
	return nil
}

// UpdatePassword replaces the stored credential for an identity.
func (r *gormRepository) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	result := r.db.WithContext(ctx).Model(&User{}).
		Where("id = ?", id).
		Update("password_hash", passwordHash)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return common.ErrNotFound.WithDetails("User not found with this ID.")
	}
	return nil
}

// MarkEmailVerified sets the verification flag unconditionally. The hygiene
// sweep's delete predicate reads this flag at delete time, which is what
// keeps a user verified before the sweep out of its batch.
func (r *gormRepository) MarkEmailVerified(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Model(&User{}).
		Where("id = ?", id).
		Update("is_email_verified", true)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return common.ErrNotFound.WithDetails("User not found with this ID.")
	}
	return nil
}

// CreateOAuthIdentity performs the first-login lookup-then-create inside a
// single transaction. Concurrent first logins from the same new email race to
// insert; the loser hits the unique email constraint and is resolved to the
// row the winner created.
func (r *gormRepository) CreateOAuthIdentity(ctx context.Context, user *User) (*User, bool, error) {
	user.Email = NormalizeEmail(user.Email)

	var resolved *User
	wasCreated := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing User
		err := tx.Where("email = ?", user.Email).First(&existing).Error
		if err == nil {
			resolved = &existing
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		if err := tx.Create(user).Error; err != nil {
			if isUniqueViolation(err) {
				// Lost the race; the other login's row is authoritative.
				if findErr := tx.Where("email = ?", user.Email).First(&existing).Error; findErr == nil {
					resolved = &existing
					return nil
				}
				return common.ErrConflict.WithDetails("User with this email already exists.")
			}
			return err
		}
		resolved = user
		wasCreated = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return resolved, wasCreated, nil
}

// DeleteStaleUnverified purges, as one batch predicate, every identity that
// is still unverified past the grace window.
func (r *gormRepository) DeleteStaleUnverified(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("is_email_verified = ? AND created_at < ?", false, cutoff).
		Delete(&User{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// NormalizeEmail lowercases and trims an email so lookups and uniqueness
// behave the same for every origin.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
