// File: internal/auth/oauth_service.go
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"identity_backend/internal/common"
	"identity_backend/internal/config"
	"identity_backend/internal/shared"
	"identity_backend/internal/token"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// OAuthProvider represents an OAuth provider type.
type OAuthProvider string

const (
	ProviderGoogle OAuthProvider = "google"
	ProviderApple  OAuthProvider = "apple"
)

// CallbackPayload is the raw per-provider callback material handed to the
// normalizer. Providers populate different subsets of it.
type CallbackPayload struct {
	// IDToken is the embedded identity assertion document, when present.
	IDToken string
	// AccessToken is the bearer token for the userinfo fallback fetch.
	AccessToken string
	// UserJSON is provider B's user document, a JSON-encoded string.
	UserJSON string
}

// OAuthService defines the interface for OAuth operations.
type OAuthService interface {
	GetGoogleLoginURL(c *gin.Context) (string, error)
	HandleGoogleCallback(c *gin.Context, code string, state string) (*shared.User, *shared.TokenResponse, error)
	GetAppleLoginURL(c *gin.Context) (string, error)
	HandleAppleCallback(c *gin.Context, idTokenStr string, state string, appleUserJSON string) (*shared.User, *shared.TokenResponse, error)
	NormalizeProfile(provider OAuthProvider, payload CallbackPayload) (*shared.OAuthUserProfile, error)
}

type oauthService struct {
	cfg               *config.Config
	oauthUserProvider shared.OAuthUserProvider
	tokenService      *token.Service
	httpClient        *http.Client
	logger            *zap.Logger
}

// NewOAuthService creates a new OAuth service.
func NewOAuthService(
	cfg *config.Config,
	oauthUserProvider shared.OAuthUserProvider,
	tokenService *token.Service,
	logger *zap.Logger,
) OAuthService {
	return &oauthService{
		cfg:               cfg,
		oauthUserProvider: oauthUserProvider,
		tokenService:      tokenService,
		httpClient:        http.DefaultClient,
		logger:            logger.Named("OAuthService"),
	}
}

// GetGoogleLoginURL generates the URL for Google OAuth login.
func (s *oauthService) GetGoogleLoginURL(c *gin.Context) (string, error) {
	state, err := generateAndSetOAuthState(c, s.cfg)
	if err != nil {
		s.logger.Error("Failed to generate OAuth state for Google", zap.Error(err))
		return "", common.ErrInternalServer.WithDetails("Could not initiate Google login.")
	}
	googleCfg := getGoogleOAuthConfig(s.cfg)
	return googleCfg.AuthCodeURL(state, oauth2.AccessTypeOffline), nil
}

// HandleGoogleCallback processes the callback from Google: state check, code
// exchange, profile normalization, identity resolution, session issuance.
func (s *oauthService) HandleGoogleCallback(c *gin.Context, code string, state string) (*shared.User, *shared.TokenResponse, error) {
	storedState, err := consumeOAuthCookie(c, s.cfg, s.cfg.OAuthStateCookieName)
	if err != nil {
		s.logger.Error("Failed to get stored OAuth state for Google callback", zap.Error(err))
		return nil, nil, common.ErrBadRequest.WithDetails("Invalid session or state mismatch.")
	}
	if state != storedState {
		s.logger.Error("Google OAuth state mismatch")
		return nil, nil, common.ErrBadRequest.WithDetails("OAuth state mismatch. Possible CSRF attack.")
	}

	googleCfg := getGoogleOAuthConfig(s.cfg)
	ctx := context.WithValue(c.Request.Context(), oauth2.HTTPClient, s.httpClient)

	tok, err := googleCfg.Exchange(ctx, code)
	if err != nil {
		s.logger.Error("Failed to exchange Google auth code for token", zap.Error(err))
		return nil, nil, common.ErrServiceUnavailable.WithDetails("Could not exchange Google auth code.")
	}
	if !tok.Valid() {
		s.logger.Error("Google token received is invalid")
		return nil, nil, common.ErrServiceUnavailable.WithDetails("Received invalid token from Google.")
	}

	payload := CallbackPayload{AccessToken: tok.AccessToken}
	if idToken, ok := tok.Extra("id_token").(string); ok {
		payload.IDToken = idToken
	}

	profile, err := s.NormalizeProfile(ProviderGoogle, payload)
	if err != nil {
		return nil, nil, err
	}
	return s.resolveAndIssue(c.Request.Context(), profile)
}

// GetAppleLoginURL generates the URL for Apple OAuth login.
func (s *oauthService) GetAppleLoginURL(c *gin.Context) (string, error) {
	state, err := generateAndSetOAuthState(c, s.cfg)
	if err != nil {
		s.logger.Error("Failed to generate OAuth state for Apple", zap.Error(err))
		return "", common.ErrInternalServer.WithDetails("Could not initiate Apple login.")
	}
	nonce, err := generateAndSetOAuthNonce(c, s.cfg)
	if err != nil {
		s.logger.Error("Failed to generate OAuth nonce for Apple", zap.Error(err))
		return "", common.ErrInternalServer.WithDetails("Could not initiate Apple login.")
	}
	return buildAppleAuthURL(s.cfg, state, nonce), nil
}

// HandleAppleCallback processes the form-post callback from Apple.
func (s *oauthService) HandleAppleCallback(c *gin.Context, idTokenStr string, state string, appleUserJSON string) (*shared.User, *shared.TokenResponse, error) {
	storedState, err := consumeOAuthCookie(c, s.cfg, s.cfg.OAuthStateCookieName)
	if err != nil {
		s.logger.Error("Failed to get stored OAuth state for Apple callback", zap.Error(err))
		return nil, nil, common.ErrBadRequest.WithDetails("Invalid session or state mismatch.")
	}
	if state != storedState {
		s.logger.Error("Apple OAuth state mismatch")
		return nil, nil, common.ErrBadRequest.WithDetails("OAuth state mismatch. Possible CSRF attack.")
	}

	storedNonce, err := consumeOAuthCookie(c, s.cfg, s.cfg.OAuthNonceCookieName)
	if err != nil {
		s.logger.Error("Failed to get stored OAuth nonce for Apple callback", zap.Error(err))
		return nil, nil, common.ErrBadRequest.WithDetails("Invalid session or nonce missing.")
	}

	assertion, err := decodeIdentityAssertion(idTokenStr)
	if err != nil {
		s.logger.Error("Apple identity assertion decode failed", zap.Error(err))
		return nil, nil, common.ErrUnauthorized.WithDetails("Invalid Apple ID token.")
	}
	if assertion.Nonce != storedNonce {
		s.logger.Error("Apple identity assertion nonce mismatch")
		return nil, nil, common.ErrUnauthorized.WithDetails("Invalid Apple ID token.")
	}

	profile, err := s.NormalizeProfile(ProviderApple, CallbackPayload{
		IDToken:  idTokenStr,
		UserJSON: appleUserJSON,
	})
	if err != nil {
		return nil, nil, err
	}
	return s.resolveAndIssue(c.Request.Context(), profile)
}

// NormalizeProfile converts a provider-specific callback payload into the
// canonical profile. Both providers must yield a non-empty external id and
// email; anything less is rejected rather than building a partial identity.
func (s *oauthService) NormalizeProfile(provider OAuthProvider, payload CallbackPayload) (*shared.OAuthUserProfile, error) {
	switch provider {
	case ProviderGoogle:
		return s.normalizeGoogle(payload)
	case ProviderApple:
		return s.normalizeApple(payload)
	default:
		return nil, common.ErrBadRequest.WithDetails(fmt.Sprintf("Unknown OAuth provider %q.", provider))
	}
}

func (s *oauthService) normalizeGoogle(payload CallbackPayload) (*shared.OAuthUserProfile, error) {
	// Prefer the embedded assertion document; it was signed upstream and
	// needs no extra network round-trip. The userinfo fetch is a single
	// best-effort fallback, no retry or backoff.
	if payload.IDToken != "" {
		assertion, err := decodeIdentityAssertion(payload.IDToken)
		if err != nil {
			s.logger.Error("Failed to decode Google identity assertion", zap.Error(err))
			return nil, common.ErrBadRequest.WithDetails("Could not decode Google identity assertion.")
		}
		return s.googleProfileFromFields(assertion.Subject, assertion.Email, assertion.GivenName, assertion.FamilyName, bool(assertion.EmailVerified))
	}

	req, err := http.NewRequest(http.MethodGet, GoogleUserInfoURL, nil)
	if err != nil {
		return nil, common.ErrInternalServer.WithDetails("Could not build Google user info request.")
	}
	req.Header.Set("Authorization", "Bearer "+payload.AccessToken)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.logger.Error("Failed to fetch user info from Google", zap.Error(err))
		return nil, common.ErrServiceUnavailable.WithDetails("Could not fetch user info from Google.")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		s.logger.Error("Google user info request failed", zap.Int("status", resp.StatusCode), zap.String("body", string(body)))
		return nil, common.ErrServiceUnavailable.WithDetails(fmt.Sprintf("Google returned status %d for user info.", resp.StatusCode))
	}

	var googleUser struct {
		Sub           string `json:"sub"`
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
		GivenName     string `json:"given_name"`
		FamilyName    string `json:"family_name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&googleUser); err != nil {
		s.logger.Error("Failed to decode Google user info", zap.Error(err))
		return nil, common.ErrInternalServer.WithDetails("Could not process Google user information.")
	}
	return s.googleProfileFromFields(googleUser.Sub, googleUser.Email, googleUser.GivenName, googleUser.FamilyName, googleUser.EmailVerified)
}

func (s *oauthService) googleProfileFromFields(sub, email, givenName, familyName string, emailVerified bool) (*shared.OAuthUserProfile, error) {
	if sub == "" || email == "" {
		s.logger.Error("Google profile incomplete", zap.Bool("has_sub", sub != ""), zap.Bool("has_email", email != ""))
		return nil, common.ErrBadRequest.WithDetails("Google profile is missing an identifier or email.")
	}
	return &shared.OAuthUserProfile{
		Provider:      string(ProviderGoogle),
		ProviderID:    sub,
		Email:         strings.ToLower(email),
		FirstName:     givenName,
		LastName:      familyName,
		EmailVerified: emailVerified,
	}, nil
}

func (s *oauthService) normalizeApple(payload CallbackPayload) (*shared.OAuthUserProfile, error) {
	if payload.IDToken == "" {
		return nil, common.ErrBadRequest.WithDetails("Missing Apple identity assertion.")
	}
	assertion, err := decodeIdentityAssertion(payload.IDToken)
	if err != nil {
		s.logger.Error("Failed to decode Apple identity assertion", zap.Error(err))
		return nil, common.ErrBadRequest.WithDetails("Could not decode Apple identity assertion.")
	}

	profile := &shared.OAuthUserProfile{
		Provider:      string(ProviderApple),
		ProviderID:    assertion.Subject,
		Email:         strings.ToLower(assertion.Email),
		EmailVerified: bool(assertion.EmailVerified),
	}

	if payload.UserJSON != "" {
		// Apple embeds the user document as a JSON-encoded string. A parse
		// failure here is an ambiguous upstream condition, classified as a
		// conflict rather than the bad-request used for missing fields.
		var appleUserFormData AppleUserForm
		if err := json.Unmarshal([]byte(payload.UserJSON), &appleUserFormData); err != nil {
			s.logger.Error("Failed to parse Apple user form data JSON", zap.Error(err))
			return nil, common.ErrConflict.WithDetails("Could not parse the Apple user document.")
		}
		profile.FirstName = appleUserFormData.Name.FirstName
		profile.LastName = appleUserFormData.Name.LastName
		if profile.Email == "" && appleUserFormData.Email != "" {
			profile.Email = strings.ToLower(appleUserFormData.Email)
		}
	}

	if profile.ProviderID == "" || profile.Email == "" {
		s.logger.Error("Apple profile incomplete",
			zap.Bool("has_sub", profile.ProviderID != ""),
			zap.Bool("has_email", profile.Email != ""))
		return nil, common.ErrBadRequest.WithDetails("Apple profile is missing an identifier or email.")
	}
	return profile, nil
}

func (s *oauthService) resolveAndIssue(ctx context.Context, profile *shared.OAuthUserProfile) (*shared.User, *shared.TokenResponse, error) {
	appUser, _, err := s.oauthUserProvider.FindOrCreateOAuthUser(ctx, *profile)
	if err != nil {
		s.logger.Error("Failed to resolve user from OAuth profile", zap.Error(err), zap.String("provider", profile.Provider))
		if _, ok := common.IsAPIError(err); ok {
			return nil, nil, err
		}
		return nil, nil, common.ErrInternalServer.WithDetails("Failed to process user account after OAuth login.")
	}

	accessToken, expiresAt, err := s.tokenService.IssueAccess(appUser.ID, appUser.Email, appUser.Role, appUser.IsEmailVerified)
	if err != nil {
		s.logger.Error("Failed to generate access token after OAuth login", zap.Error(err), zap.String("userID", appUser.ID.String()))
		return nil, nil, common.ErrInternalServer.WithDetails("Could not generate access token.")
	}

	s.logger.Info("OAuth login successful",
		zap.String("provider", profile.Provider),
		zap.String("userID", appUser.ID.String()))
	return appUser, &shared.TokenResponse{
		AccessToken: accessToken,
		TokenType:   "Bearer",
		ExpiresAt:   expiresAt,
	}, nil
}
