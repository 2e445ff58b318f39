package user

import (
	"context"
	"testing"
	"time"

	"identity_backend/internal/common"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestRepo(t *testing.T) Repository {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared&_pragma=foreign_keys(1)"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&User{}))
	t.Cleanup(func() {
		db.Exec("DELETE FROM users")
		sqlDB, _ := db.DB()
		sqlDB.Close()
	})
	return NewGORMRepository(db)
}

func seedUser(t *testing.T, repo Repository, email string, verified bool, createdAt time.Time) *User {
	t.Helper()
	u := &User{
		Email:           email,
		PasswordHash:    "x",
		AuthProvider:    ProviderLocal,
		IsEmailVerified: verified,
		Role:            common.RoleUser,
	}
	require.NoError(t, repo.Create(context.Background(), u))
	if !createdAt.IsZero() {
		// Backdate directly; gorm stamps CreatedAt on insert.
		gormRepo := repo.(*gormRepository)
		require.NoError(t, gormRepo.db.Model(&User{}).
			Where("id = ?", u.ID).
			Update("created_at", createdAt).Error)
		u.CreatedAt = createdAt
	}
	return u
}

func TestCreateAndFind(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	created := seedUser(t, repo, "Mixed.Case@Example.com", false, time.Time{})
	assert.NotEqual(t, uuid.Nil, created.ID)
	// Emails are normalized on write.
	assert.Equal(t, "mixed.case@example.com", created.Email)

	found, err := repo.FindByEmail(ctx, "MIXED.CASE@example.COM")
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)

	byID, err := repo.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Email, byID.Email)

	_, err = repo.FindByEmail(ctx, "missing@example.com")
	assert.ErrorIs(t, err, common.ErrNotFound)
	_, err = repo.FindByID(ctx, uuid.New())
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestCreateDuplicateEmail(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	seedUser(t, repo, "dup@example.com", false, time.Time{})

	err := repo.Create(ctx, &User{
		Email:        "DUP@example.com",
		PasswordHash: "y",
		AuthProvider: ProviderLocal,
		Role:         common.RoleUser,
	})
	assert.ErrorIs(t, err, common.ErrConflict)
}

func TestFindByProvider(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	providerID := "google-sub-1"
	u := &User{
		Email:           "oauth@example.com",
		PasswordHash:    "x",
		AuthProvider:    "google",
		ProviderID:      &providerID,
		IsEmailVerified: true,
		Role:            common.RoleUser,
	}
	require.NoError(t, repo.Create(ctx, u))

	found, err := repo.FindByProvider(ctx, "google", providerID)
	require.NoError(t, err)
	assert.Equal(t, u.ID, found.ID)

	_, err = repo.FindByProvider(ctx, "apple", providerID)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestMarkEmailVerified(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	u := seedUser(t, repo, "verifyme@example.com", false, time.Time{})

	require.NoError(t, repo.MarkEmailVerified(ctx, u.ID))

	found, err := repo.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, found.IsEmailVerified)

	assert.ErrorIs(t, repo.MarkEmailVerified(ctx, uuid.New()), common.ErrNotFound)
}

func TestUpdatePassword(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	u := seedUser(t, repo, "reset@example.com", true, time.Time{})

	require.NoError(t, repo.UpdatePassword(ctx, u.ID, "new-hash"))

	found, err := repo.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "new-hash", found.PasswordHash)

	assert.ErrorIs(t, repo.UpdatePassword(ctx, uuid.New(), "h"), common.ErrNotFound)
}

func TestCreateOAuthIdentityResolvesExistingEmail(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	existing := seedUser(t, repo, "claimed@example.com", true, time.Time{})

	providerID := "google-sub-2"
	resolved, wasCreated, err := repo.CreateOAuthIdentity(ctx, &User{
		Email:           "Claimed@Example.com",
		PasswordHash:    "x",
		AuthProvider:    "google",
		ProviderID:      &providerID,
		IsEmailVerified: true,
		Role:            common.RoleUser,
	})
	require.NoError(t, err)
	assert.False(t, wasCreated)
	assert.Equal(t, existing.ID, resolved.ID)
}

func TestCreateOAuthIdentityCreatesFreshIdentity(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	providerID := "apple-sub-2"
	resolved, wasCreated, err := repo.CreateOAuthIdentity(ctx, &User{
		Email:           "fresh@example.com",
		PasswordHash:    "x",
		AuthProvider:    "apple",
		ProviderID:      &providerID,
		IsEmailVerified: true,
		Role:            common.RoleUser,
	})
	require.NoError(t, err)
	assert.True(t, wasCreated)
	assert.NotEqual(t, uuid.Nil, resolved.ID)

	found, err := repo.FindByProvider(ctx, "apple", providerID)
	require.NoError(t, err)
	assert.Equal(t, resolved.ID, found.ID)
}

func TestDeleteStaleUnverified(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now()

	staleUnverified := seedUser(t, repo, "stale@example.com", false, now.Add(-10*time.Hour))
	oldVerified := seedUser(t, repo, "old-verified@example.com", true, now.Add(-10*time.Hour))
	recentUnverified := seedUser(t, repo, "recent@example.com", false, now.Add(-time.Hour))

	deleted, err := repo.DeleteStaleUnverified(ctx, now.Add(-7*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	// Only the identity that is both unverified and past the cutoff is gone.
	_, err = repo.FindByID(ctx, staleUnverified.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)
	_, err = repo.FindByID(ctx, oldVerified.ID)
	assert.NoError(t, err)
	_, err = repo.FindByID(ctx, recentUnverified.ID)
	assert.NoError(t, err)
}

func TestDeleteStaleUnverifiedSkipsLateVerification(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now()

	// Verified just before the sweep runs; the predicate reads the flag at
	// delete time, so this identity survives despite its age.
	lateVerifier := seedUser(t, repo, "late@example.com", false, now.Add(-10*time.Hour))
	require.NoError(t, repo.MarkEmailVerified(ctx, lateVerifier.ID))

	deleted, err := repo.DeleteStaleUnverified(ctx, now.Add(-7*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(0), deleted)

	_, err = repo.FindByID(ctx, lateVerifier.ID)
	assert.NoError(t, err)
}
