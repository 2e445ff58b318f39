// File: internal/user/service.go
package user

import (
	"context"
	"errors"
	"fmt"
	"time"

	"identity_backend/internal/common"
	"identity_backend/internal/config"
	"identity_backend/internal/mailer"
	"identity_backend/internal/platform/crypto"
	"identity_backend/internal/shared"
	"identity_backend/internal/token"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ServiceImplementation implements the shared.Service interface.
type ServiceImplementation struct {
	repo         Repository
	tokenService *token.Service
	mail         mailer.Mailer
	cfg          *config.Config
	logger       *zap.Logger
}

var _ shared.Service = (*ServiceImplementation)(nil)
var _ shared.OAuthUserProvider = (*ServiceImplementation)(nil)

// NewService creates a new identity service.
func NewService(
	repo Repository,
	tokenService *token.Service,
	mail mailer.Mailer,
	cfg *config.Config,
	logger *zap.Logger,
) *ServiceImplementation {
	return &ServiceImplementation{
		repo:         repo,
		tokenService: tokenService,
		mail:         mail,
		cfg:          cfg,
		logger:       logger.Named("UserService"),
	}
}

// MapTokenError translates a token validation failure into the boundary
// error for that condition. The three conditions stay distinguishable.
func MapTokenError(err error) *common.APIError {
	switch {
	case errors.Is(err, token.ErrExpired):
		return common.ErrBadRequest.WithDetails("expired")
	case errors.Is(err, token.ErrWrongPurpose):
		return common.ErrBadRequest.WithDetails("wrong token type")
	case errors.Is(err, token.ErrStale):
		return common.ErrBadRequest.WithDetails("token too old")
	default:
		return common.ErrBadRequest.WithDetails("invalid token")
	}
}

// Register creates a new local identity and sends its verification mail.
func (s *ServiceImplementation) Register(ctx context.Context, req shared.CreateUserRequest) (*shared.User, *shared.TokenResponse, error) {
	_, err := s.repo.FindByEmail(ctx, req.Email)
	if err == nil {
		return nil, nil, common.ErrConflict.WithDetails("User with this email already exists.")
	}
	if !errors.Is(err, common.ErrNotFound) {
		return nil, nil, fmt.Errorf("failed to check existing user by email: %w", err)
	}

	hashedPassword, err := common.HashPassword(req.Password)
	if err != nil {
		s.logger.Error("Failed to hash password during registration", zap.Error(err))
		return nil, nil, fmt.Errorf("failed to hash password: %w", err)
	}

	dbUser := CreateRequestToDB(&req, hashedPassword)
	if err := s.repo.Create(ctx, dbUser); err != nil {
		s.logger.Error("Failed to create user in repository", zap.Error(err), zap.String("email", req.Email))
		if apiErr, ok := common.IsAPIError(err); ok {
			return nil, nil, apiErr
		}
		return nil, nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.sendVerificationMail(ctx, dbUser)

	tokenResponse, err := s.issueSession(dbUser)
	if err != nil {
		return nil, nil, err
	}

	s.logger.Info("User registered successfully", zap.String("userID", dbUser.ID.String()))
	return DBToShared(dbUser), tokenResponse, nil
}

// sendVerificationMail mints an email verification token and hands it to the
// mailer. Delivery failures are logged, not fatal; the user can request a new
// mail later.
func (s *ServiceImplementation) sendVerificationMail(ctx context.Context, dbUser *User) {
	verificationToken, _, err := s.tokenService.Issue(dbUser.Email, dbUser.ID, token.PurposeEmailVerification)
	if err != nil {
		s.logger.Error("Failed to mint verification token", zap.Error(err), zap.String("userID", dbUser.ID.String()))
		return
	}
	link := s.tokenService.BuildLink(verificationToken, s.cfg.VerificationLinkPath)
	vars := map[string]string{"verification_link": link}
	if dbUser.FirstName != nil {
		vars["first_name"] = *dbUser.FirstName
	}
	if err := s.mail.Send(ctx, mailer.TemplateEmailVerification, dbUser.Email, vars); err != nil {
		s.logger.Error("Failed to send verification mail", zap.Error(err), zap.String("userID", dbUser.ID.String()))
	}
}

// Login authenticates a local identity and issues a session token.
func (s *ServiceImplementation) Login(ctx context.Context, email, password string) (*shared.User, *shared.TokenResponse, error) {
	dbUser, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			s.logger.Info("User not found during login", zap.String("email", email))
			return nil, nil, common.ErrUnauthorized.WithDetails("Invalid email or password.")
		}
		s.logger.Error("Error finding user by email during login", zap.Error(err), zap.String("email", email))
		return nil, nil, common.ErrInternalServer.WithDetails("Login failed due to an internal error.")
	}

	if dbUser.AuthProvider != ProviderLocal {
		s.logger.Warn("Password login attempted on a federated account",
			zap.String("userID", dbUser.ID.String()),
			zap.String("provider", dbUser.AuthProvider))
		return nil, nil, common.ErrUnauthorized.WithDetails("Login with email/password not configured for this account.")
	}

	if !common.CheckPasswordHash(password, dbUser.PasswordHash) {
		s.logger.Warn("Invalid password attempt", zap.String("userID", dbUser.ID.String()))
		return nil, nil, common.ErrUnauthorized.WithDetails("Invalid email or password.")
	}

	now := time.Now()
	dbUser.LastLoginAt = &now
	if err := s.repo.Update(ctx, dbUser); err != nil {
		// Not critical for auth; log and proceed with login.
		s.logger.Error("Failed to update last login time", zap.Error(err), zap.String("userID", dbUser.ID.String()))
	}

	tokenResponse, err := s.issueSession(dbUser)
	if err != nil {
		return nil, nil, err
	}

	s.logger.Info("User logged in successfully", zap.String("userID", dbUser.ID.String()))
	return DBToShared(dbUser), tokenResponse, nil
}

func (s *ServiceImplementation) issueSession(dbUser *User) (*shared.TokenResponse, error) {
	accessToken, expiresAt, err := s.tokenService.IssueAccess(dbUser.ID, dbUser.Email, dbUser.Role, dbUser.IsEmailVerified)
	if err != nil {
		s.logger.Error("Failed to generate access token", zap.Error(err), zap.String("userID", dbUser.ID.String()))
		return nil, common.ErrInternalServer.WithDetails("Could not generate access token.")
	}
	return &shared.TokenResponse{
		AccessToken: accessToken,
		TokenType:   "Bearer",
		ExpiresAt:   expiresAt,
	}, nil
}

// VerifyEmail validates a verification token and flips the verification
// flag. The mutation is unconditional and direct, so an identity verified at
// any point before the hygiene sweep's delete runs is excluded from it.
func (s *ServiceImplementation) VerifyEmail(ctx context.Context, tokenString string) (*shared.User, error) {
	claims, err := s.tokenService.Validate(tokenString, token.PurposeEmailVerification)
	if err != nil {
		s.logger.Warn("Email verification token rejected", zap.Error(err))
		return nil, MapTokenError(err)
	}

	identity := claims.TokenIdentity()
	if err := s.repo.MarkEmailVerified(ctx, identity.UserID); err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.ErrNotFound.WithDetails("User not found for this verification token.")
		}
		s.logger.Error("Failed to mark email verified", zap.Error(err), zap.String("userID", identity.UserID.String()))
		return nil, common.ErrInternalServer.WithDetails("Could not verify email.")
	}

	dbUser, err := s.repo.FindByID(ctx, identity.UserID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Email verified", zap.String("userID", identity.UserID.String()))
	return DBToShared(dbUser), nil
}

// RequestPasswordReset mints a reset token for the identity behind the email
// and hands it to the mailer.
func (s *ServiceImplementation) RequestPasswordReset(ctx context.Context, email string) error {
	dbUser, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return common.ErrNotFound.WithDetails("User not found with this email.")
		}
		return err
	}

	resetToken, _, err := s.tokenService.Issue(dbUser.Email, dbUser.ID, token.PurposePasswordReset)
	if err != nil {
		s.logger.Error("Failed to mint password reset token", zap.Error(err), zap.String("userID", dbUser.ID.String()))
		return common.ErrInternalServer.WithDetails("Could not create password reset token.")
	}

	link := s.tokenService.BuildLink(resetToken, s.cfg.PasswordResetLinkPath)
	if err := s.mail.Send(ctx, mailer.TemplatePasswordReset, dbUser.Email, map[string]string{"reset_link": link}); err != nil {
		s.logger.Error("Failed to send password reset mail", zap.Error(err), zap.String("userID", dbUser.ID.String()))
		return common.ErrInternalServer.WithDetails("Could not send password reset mail.")
	}

	s.logger.Info("Password reset requested", zap.String("userID", dbUser.ID.String()))
	return nil
}

// ResetPassword validates a reset token and replaces the credential.
func (s *ServiceImplementation) ResetPassword(ctx context.Context, tokenString, newPassword string) error {
	claims, err := s.tokenService.Validate(tokenString, token.PurposePasswordReset)
	if err != nil {
		s.logger.Warn("Password reset token rejected", zap.Error(err))
		return MapTokenError(err)
	}

	hashedPassword, err := common.HashPassword(newPassword)
	if err != nil {
		s.logger.Error("Failed to hash new password", zap.Error(err))
		return common.ErrInternalServer.WithDetails("Could not reset password.")
	}

	identity := claims.TokenIdentity()
	if err := s.repo.UpdatePassword(ctx, identity.UserID, hashedPassword); err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return common.ErrNotFound.WithDetails("User not found for this reset token.")
		}
		s.logger.Error("Failed to replace credential", zap.Error(err), zap.String("userID", identity.UserID.String()))
		return common.ErrInternalServer.WithDetails("Could not reset password.")
	}

	s.logger.Info("Password reset completed", zap.String("userID", identity.UserID.String()))
	return nil
}

func (s *ServiceImplementation) GetUserByID(ctx context.Context, id uuid.UUID) (*shared.User, error) {
	dbUser, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if !errors.Is(err, common.ErrNotFound) {
			s.logger.Error("Error finding user by ID", zap.Error(err), zap.String("userID", id.String()))
		}
		return nil, err
	}
	return DBToShared(dbUser), nil
}

func (s *ServiceImplementation) GetUserByEmail(ctx context.Context, email string) (*shared.User, error) {
	dbUser, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, common.ErrNotFound) {
			s.logger.Error("Error finding user by email", zap.Error(err), zap.String("email", email))
		}
		return nil, err
	}
	return DBToShared(dbUser), nil
}

// UpdateProfile modifies the mutable profile fields.
func (s *ServiceImplementation) UpdateProfile(ctx context.Context, id uuid.UUID, req shared.UpdateProfileRequest) (*shared.User, error) {
	dbUser, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.FirstName != nil {
		dbUser.FirstName = req.FirstName
	}
	if req.LastName != nil {
		dbUser.LastName = req.LastName
	}
	if err := s.repo.Update(ctx, dbUser); err != nil {
		s.logger.Error("Failed to update profile", zap.Error(err), zap.String("userID", id.String()))
		if apiErr, ok := common.IsAPIError(err); ok {
			return nil, apiErr
		}
		return nil, common.ErrInternalServer.WithDetails("Could not update profile.")
	}
	return DBToShared(dbUser), nil
}

// FindOrCreateOAuthUser resolves a normalized provider profile against the
// credential store. A profile matching an existing email proceeds directly
// to session issuance with no re-linking or ownership check; whether that is
// the right call for local-password accounts is an open product question, so
// the case is logged loudly.
func (s *ServiceImplementation) FindOrCreateOAuthUser(ctx context.Context, profile shared.OAuthUserProfile) (*shared.User, bool, error) {
	s.logger.Info("Processing OAuth user profile",
		zap.String("provider", profile.Provider),
		zap.String("providerID", profile.ProviderID),
		zap.String("email", profile.Email),
	)

	dbUser, err := s.repo.FindByProvider(ctx, profile.Provider, profile.ProviderID)
	if err == nil {
		now := time.Now()
		dbUser.LastLoginAt = &now
		if updateErr := s.repo.Update(ctx, dbUser); updateErr != nil {
			s.logger.Error("Failed to update last login for OAuth user", zap.Error(updateErr), zap.String("userID", dbUser.ID.String()))
		}
		return DBToShared(dbUser), false, nil
	}
	if !errors.Is(err, common.ErrNotFound) {
		s.logger.Error("Error finding user by provider ID", zap.Error(err),
			zap.String("provider", profile.Provider), zap.String("providerID", profile.ProviderID))
		return nil, false, err
	}

	// Provider-asserted emails are trusted, unlike local signup, so a newly
	// created identity starts out verified. The store requires a credential
	// even for OAuth-only accounts; a generated placeholder fills it.
	placeholder, err := crypto.GenerateSecureRandomString(32)
	if err != nil {
		s.logger.Error("Failed to generate placeholder credential", zap.Error(err))
		return nil, false, common.ErrInternalServer.WithDetails("Could not create user account.")
	}
	placeholderHash, err := common.HashPassword(placeholder)
	if err != nil {
		s.logger.Error("Failed to hash placeholder credential", zap.Error(err))
		return nil, false, common.ErrInternalServer.WithDetails("Could not create user account.")
	}

	providerID := profile.ProviderID
	newUser := &User{
		Email:           NormalizeEmail(profile.Email),
		PasswordHash:    placeholderHash,
		AuthProvider:    profile.Provider,
		ProviderID:      &providerID,
		IsEmailVerified: true,
		Role:            common.RoleUser,
	}
	if profile.FirstName != "" {
		firstName := profile.FirstName
		newUser.FirstName = &firstName
	}
	if profile.LastName != "" {
		lastName := profile.LastName
		newUser.LastName = &lastName
	}

	resolved, wasCreated, err := s.repo.CreateOAuthIdentity(ctx, newUser)
	if err != nil {
		s.logger.Error("Failed to resolve OAuth identity", zap.Error(err), zap.String("email", profile.Email))
		if apiErr, ok := common.IsAPIError(err); ok {
			return nil, false, apiErr
		}
		return nil, false, common.ErrInternalServer.WithDetails("Could not create new user account.")
	}

	if !wasCreated {
		if resolved.AuthProvider == ProviderLocal {
			s.logger.Warn("OAuth login resolved onto an existing local-password account by email; no ownership check is performed",
				zap.String("userID", resolved.ID.String()),
				zap.String("provider", profile.Provider))
		}
		now := time.Now()
		resolved.LastLoginAt = &now
		if updateErr := s.repo.Update(ctx, resolved); updateErr != nil {
			s.logger.Error("Failed to update last login for resolved OAuth user", zap.Error(updateErr), zap.String("userID", resolved.ID.String()))
		}
		return DBToShared(resolved), false, nil
	}

	s.logger.Info("New OAuth user created successfully", zap.String("userID", resolved.ID.String()))
	return DBToShared(resolved), true, nil
}
