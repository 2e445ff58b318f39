package user

import (
	"context"
	"testing"
	"time"

	"identity_backend/internal/common"
	"identity_backend/internal/config"
	"identity_backend/internal/mailer"
	"identity_backend/internal/shared"
	"identity_backend/internal/token"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockRepository is a mock type for user.Repository
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Create(ctx context.Context, user *User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*User), args.Error(1)
}

func (m *MockRepository) FindByID(ctx context.Context, id uuid.UUID) (*User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*User), args.Error(1)
}

func (m *MockRepository) FindByProvider(ctx context.Context, authProvider string, providerID string) (*User, error) {
	args := m.Called(ctx, authProvider, providerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*User), args.Error(1)
}

func (m *MockRepository) Update(ctx context.Context, user *User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockRepository) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	args := m.Called(ctx, id, passwordHash)
	return args.Error(0)
}

func (m *MockRepository) MarkEmailVerified(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockRepository) CreateOAuthIdentity(ctx context.Context, user *User) (*User, bool, error) {
	args := m.Called(ctx, user)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*User), args.Bool(1), args.Error(2)
}

func (m *MockRepository) DeleteStaleUnverified(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

// MockMailer is a mock type for mailer.Mailer
type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) Send(ctx context.Context, template, to string, vars map[string]string) error {
	args := m.Called(ctx, template, to, vars)
	return args.Error(0)
}

func newTestService(t *testing.T) (*ServiceImplementation, *MockRepository, *MockMailer, *token.Service) {
	t.Helper()
	cfg := &config.Config{
		JWTSecretKey:             "user-service-test-secret",
		JWTIssuer:                "identity_backend_test",
		TokenExpiry:              time.Hour,
		VerificationTokenMaxAge:  24 * time.Hour,
		PasswordResetTokenMaxAge: time.Hour,
		PublicBaseURL:            "http://localhost:8080",
		VerificationLinkPath:     "verify-email",
		PasswordResetLinkPath:    "reset-password",
	}
	mockRepo := &MockRepository{}
	mockMail := &MockMailer{}
	tokenService := token.NewService(cfg, zap.NewNop())
	svc := NewService(mockRepo, tokenService, mockMail, cfg, zap.NewNop())
	return svc, mockRepo, mockMail, tokenService
}

func localUser(email, password string) *User {
	hash, _ := common.HashPassword(password)
	return &User{
		BaseModel:    common.BaseModel{ID: uuid.New(), CreatedAt: time.Now(), UpdatedAt: time.Now()},
		Email:        email,
		PasswordHash: hash,
		AuthProvider: ProviderLocal,
		Role:         common.RoleUser,
	}
}

func TestRegister(t *testing.T) {
	svc, mockRepo, mockMail, _ := newTestService(t)
	ctx := context.Background()

	mockRepo.On("FindByEmail", ctx, "new@example.com").Return(nil, common.ErrNotFound).Once()
	mockRepo.On("Create", ctx, mock.AnythingOfType("*user.User")).Run(func(args mock.Arguments) {
		u := args.Get(1).(*User)
		u.ID = uuid.New()
	}).Return(nil).Once()
	mockMail.On("Send", ctx, mailer.TemplateEmailVerification, "new@example.com", mock.Anything).Return(nil).Once()

	sharedUser, tokenResp, err := svc.Register(ctx, shared.CreateUserRequest{
		Email:    "new@example.com",
		Password: "correct horse battery",
	})
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", sharedUser.Email)
	assert.False(t, sharedUser.IsEmailVerified)
	assert.Equal(t, "Bearer", tokenResp.TokenType)
	assert.NotEmpty(t, tokenResp.AccessToken)

	mockRepo.AssertExpectations(t)
	mockMail.AssertExpectations(t)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc, mockRepo, _, _ := newTestService(t)
	ctx := context.Background()

	mockRepo.On("FindByEmail", ctx, "taken@example.com").Return(localUser("taken@example.com", "pw"), nil).Once()

	_, _, err := svc.Register(ctx, shared.CreateUserRequest{Email: "taken@example.com", Password: "password123"})
	assert.ErrorIs(t, err, common.ErrConflict)
	mockRepo.AssertExpectations(t)
}

func TestRegisterSucceedsWhenMailDeliveryFails(t *testing.T) {
	svc, mockRepo, mockMail, _ := newTestService(t)
	ctx := context.Background()

	mockRepo.On("FindByEmail", ctx, "flaky@example.com").Return(nil, common.ErrNotFound).Once()
	mockRepo.On("Create", ctx, mock.AnythingOfType("*user.User")).Return(nil).Once()
	mockMail.On("Send", ctx, mailer.TemplateEmailVerification, "flaky@example.com", mock.Anything).
		Return(assert.AnError).Once()

	_, tokenResp, err := svc.Register(ctx, shared.CreateUserRequest{Email: "flaky@example.com", Password: "password123"})
	require.NoError(t, err)
	assert.NotEmpty(t, tokenResp.AccessToken)
}

func TestLogin(t *testing.T) {
	svc, mockRepo, _, _ := newTestService(t)
	ctx := context.Background()

	existing := localUser("a@x.com", "right-password")
	mockRepo.On("FindByEmail", ctx, "a@x.com").Return(existing, nil)
	mockRepo.On("Update", ctx, existing).Return(nil)

	sharedUser, tokenResp, err := svc.Login(ctx, "a@x.com", "right-password")
	require.NoError(t, err)
	assert.Equal(t, existing.ID, sharedUser.ID)
	assert.NotEmpty(t, tokenResp.AccessToken)
	assert.NotNil(t, existing.LastLoginAt)
}

func TestLoginFailures(t *testing.T) {
	svc, mockRepo, _, _ := newTestService(t)
	ctx := context.Background()

	oauthOnly := localUser("fed@x.com", "ignored")
	oauthOnly.AuthProvider = "google"

	mockRepo.On("FindByEmail", ctx, "missing@x.com").Return(nil, common.ErrNotFound)
	mockRepo.On("FindByEmail", ctx, "a@x.com").Return(localUser("a@x.com", "right-password"), nil)
	mockRepo.On("FindByEmail", ctx, "fed@x.com").Return(oauthOnly, nil)

	tests := []struct {
		name     string
		email    string
		password string
	}{
		{"unknown email", "missing@x.com", "whatever"},
		{"wrong password", "a@x.com", "wrong-password"},
		{"federated account", "fed@x.com", "right-password"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := svc.Login(ctx, tt.email, tt.password)
			assert.ErrorIs(t, err, common.ErrUnauthorized)
		})
	}
}

func TestVerifyEmail(t *testing.T) {
	svc, mockRepo, _, tokenService := newTestService(t)
	ctx := context.Background()

	existing := localUser("a@x.com", "pw")
	signed, _, err := tokenService.Issue(existing.Email, existing.ID, token.PurposeEmailVerification)
	require.NoError(t, err)

	mockRepo.On("MarkEmailVerified", ctx, existing.ID).Return(nil).Once()
	verified := *existing
	verified.IsEmailVerified = true
	mockRepo.On("FindByID", ctx, existing.ID).Return(&verified, nil).Once()

	sharedUser, err := svc.VerifyEmail(ctx, signed)
	require.NoError(t, err)
	assert.True(t, sharedUser.IsEmailVerified)
	mockRepo.AssertExpectations(t)
}

func TestVerifyEmailRejectsWrongTokenType(t *testing.T) {
	svc, mockRepo, _, tokenService := newTestService(t)
	ctx := context.Background()

	// u1 requested a password reset; its token must not verify an email.
	u1 := localUser("a@x.com", "pw")
	resetToken, _, err := tokenService.Issue(u1.Email, u1.ID, token.PurposePasswordReset)
	require.NoError(t, err)

	_, err = svc.VerifyEmail(ctx, resetToken)
	apiErr, ok := common.IsAPIError(err)
	require.True(t, ok)
	assert.ErrorIs(t, err, common.ErrBadRequest)
	assert.Equal(t, "wrong token type", apiErr.Details)

	// No repository mutation may happen for a rejected token.
	mockRepo.AssertNotCalled(t, "MarkEmailVerified", mock.Anything, mock.Anything)
}

func TestVerifyEmailRejectsGarbageToken(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	_, err := svc.VerifyEmail(context.Background(), "garbage")
	apiErr, ok := common.IsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, "invalid token", apiErr.Details)
}

func TestRequestPasswordReset(t *testing.T) {
	svc, mockRepo, mockMail, _ := newTestService(t)
	ctx := context.Background()

	existing := localUser("a@x.com", "pw")
	mockRepo.On("FindByEmail", ctx, "a@x.com").Return(existing, nil).Once()
	mockMail.On("Send", ctx, mailer.TemplatePasswordReset, "a@x.com", mock.Anything).Return(nil).Once()

	require.NoError(t, svc.RequestPasswordReset(ctx, "a@x.com"))
	mockMail.AssertExpectations(t)
}

func TestRequestPasswordResetUnknownEmail(t *testing.T) {
	svc, mockRepo, _, _ := newTestService(t)
	ctx := context.Background()

	mockRepo.On("FindByEmail", ctx, "missing@x.com").Return(nil, common.ErrNotFound).Once()

	err := svc.RequestPasswordReset(ctx, "missing@x.com")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestResetPassword(t *testing.T) {
	svc, mockRepo, _, tokenService := newTestService(t)
	ctx := context.Background()

	existing := localUser("a@x.com", "old-password")
	signed, _, err := tokenService.Issue(existing.Email, existing.ID, token.PurposePasswordReset)
	require.NoError(t, err)

	mockRepo.On("UpdatePassword", ctx, existing.ID, mock.AnythingOfType("string")).
		Run(func(args mock.Arguments) {
			hash := args.Get(2).(string)
			assert.True(t, common.CheckPasswordHash("new-password", hash))
		}).Return(nil).Once()

	require.NoError(t, svc.ResetPassword(ctx, signed, "new-password"))
	mockRepo.AssertExpectations(t)
}

func TestResetPasswordRejectsAccessToken(t *testing.T) {
	svc, mockRepo, _, tokenService := newTestService(t)

	access, _, err := tokenService.IssueAccess(uuid.New(), "a@x.com", "user", true)
	require.NoError(t, err)

	err = svc.ResetPassword(context.Background(), access, "new-password")
	apiErr, ok := common.IsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, "wrong token type", apiErr.Details)
	mockRepo.AssertNotCalled(t, "UpdatePassword", mock.Anything, mock.Anything, mock.Anything)
}

func TestFindOrCreateOAuthUserExisting(t *testing.T) {
	svc, mockRepo, _, _ := newTestService(t)
	ctx := context.Background()

	providerID := "google-sub-123"
	existing := localUser("a@x.com", "pw")
	existing.AuthProvider = "google"
	existing.ProviderID = &providerID

	mockRepo.On("FindByProvider", ctx, "google", providerID).Return(existing, nil).Once()
	mockRepo.On("Update", ctx, existing).Return(nil).Once()

	sharedUser, wasCreated, err := svc.FindOrCreateOAuthUser(ctx, shared.OAuthUserProfile{
		Provider:   "google",
		ProviderID: providerID,
		Email:      "a@x.com",
	})
	require.NoError(t, err)
	assert.False(t, wasCreated)
	assert.Equal(t, existing.ID, sharedUser.ID)
}

func TestFindOrCreateOAuthUserFirstLogin(t *testing.T) {
	svc, mockRepo, _, _ := newTestService(t)
	ctx := context.Background()

	created := &User{
		BaseModel:       common.BaseModel{ID: uuid.New(), CreatedAt: time.Now(), UpdatedAt: time.Now()},
		Email:           "b@x.com",
		AuthProvider:    "apple",
		IsEmailVerified: true,
		Role:            common.RoleUser,
	}
	mockRepo.On("FindByProvider", ctx, "apple", "apple-sub-1").Return(nil, common.ErrNotFound).Once()
	mockRepo.On("CreateOAuthIdentity", ctx, mock.AnythingOfType("*user.User")).
		Run(func(args mock.Arguments) {
			u := args.Get(1).(*User)
			assert.Equal(t, "b@x.com", u.Email)
			assert.True(t, u.IsEmailVerified)
			assert.NotEmpty(t, u.PasswordHash)
		}).
		Return(created, true, nil).Once()

	sharedUser, wasCreated, err := svc.FindOrCreateOAuthUser(ctx, shared.OAuthUserProfile{
		Provider:      "apple",
		ProviderID:    "apple-sub-1",
		Email:         "B@X.com",
		FirstName:     "Alan",
		EmailVerified: true,
	})
	require.NoError(t, err)
	assert.True(t, wasCreated)
	assert.True(t, sharedUser.IsEmailVerified)
	mockRepo.AssertExpectations(t)
}

func TestFindOrCreateOAuthUserResolvesToExistingEmail(t *testing.T) {
	svc, mockRepo, _, _ := newTestService(t)
	ctx := context.Background()

	// A local-password account already holds this email; the identity wins
	// the lookup inside CreateOAuthIdentity and login proceeds against it.
	existing := localUser("c@x.com", "pw")

	mockRepo.On("FindByProvider", ctx, "google", "google-sub-9").Return(nil, common.ErrNotFound).Once()
	mockRepo.On("CreateOAuthIdentity", ctx, mock.AnythingOfType("*user.User")).Return(existing, false, nil).Once()
	mockRepo.On("Update", ctx, existing).Return(nil).Once()

	sharedUser, wasCreated, err := svc.FindOrCreateOAuthUser(ctx, shared.OAuthUserProfile{
		Provider:   "google",
		ProviderID: "google-sub-9",
		Email:      "c@x.com",
	})
	require.NoError(t, err)
	assert.False(t, wasCreated)
	assert.Equal(t, existing.ID, sharedUser.ID)
}
