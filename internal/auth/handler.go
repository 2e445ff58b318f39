// File: internal/auth/handler.go
package auth

import (
	"errors"
	"net/http"

	"identity_backend/internal/common"
	"identity_backend/internal/shared"
	"identity_backend/internal/user"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// Handler struct holds dependencies for auth handlers.
type Handler struct {
	userService  shared.Service
	oauthService OAuthService
	logger       *zap.Logger
}

// NewHandler creates a new auth handler.
func NewHandler(
	userService shared.Service,
	oauthService OAuthService,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		userService:  userService,
		oauthService: oauthService,
		logger:       logger.Named("AuthHandler"),
	}
}

// RegisterRoutes sets up the routes for authentication operations.
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/register", h.register)
		authGroup.POST("/login", h.login)
		authGroup.POST("/verify-email", h.verifyEmail)
		authGroup.POST("/password-reset/request", h.requestPasswordReset)
		authGroup.POST("/password-reset/confirm", h.confirmPasswordReset)
		authGroup.GET("/google/login", h.googleLogin)
		authGroup.GET("/google/callback", h.googleCallback)
		authGroup.GET("/apple/login", h.appleLogin)
		authGroup.POST("/apple/callback", h.appleCallback)
	}
}

func (h *Handler) bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			common.RespondWithError(c, common.NewValidationAPIError(common.FormatValidationErrors(ve)))
		} else {
			common.RespondWithError(c, common.ErrBadRequest.WithDetails("Invalid request body."))
		}
		return false
	}
	return true
}

func (h *Handler) register(c *gin.Context) {
	var req user.RegisterRequest
	if !h.bindJSON(c, &req) {
		return
	}

	createdUser, tokenResponse, err := h.userService.Register(c.Request.Context(), shared.CreateUserRequest{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		common.RespondWithError(c, err)
		return
	}

	common.RespondCreated(c, "Registration successful. A verification mail is on its way.", gin.H{
		"user":  createdUser,
		"token": tokenResponse,
	})
}

func (h *Handler) login(c *gin.Context) {
	var req LoginRequest
	if !h.bindJSON(c, &req) {
		return
	}

	loggedInUser, tokenResponse, err := h.userService.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		common.RespondWithError(c, err)
		return
	}

	common.RespondOK(c, "Login successful.", gin.H{
		"user":  loggedInUser,
		"token": tokenResponse,
	})
}

func (h *Handler) verifyEmail(c *gin.Context) {
	var req VerifyEmailRequest
	if !h.bindJSON(c, &req) {
		return
	}

	verifiedUser, err := h.userService.VerifyEmail(c.Request.Context(), req.Token)
	if err != nil {
		common.RespondWithError(c, err)
		return
	}

	common.RespondOK(c, "Email verified.", gin.H{"user": verifiedUser})
}

func (h *Handler) requestPasswordReset(c *gin.Context) {
	var req PasswordResetRequest
	if !h.bindJSON(c, &req) {
		return
	}

	err := h.userService.RequestPasswordReset(c.Request.Context(), req.Email)
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		common.RespondWithError(c, err)
		return
	}
	// An unknown email gets the same response as a known one, so the
	// endpoint cannot be used to enumerate accounts.
	common.RespondOK(c, "If that account exists, a password reset mail is on its way.", nil)
}

func (h *Handler) confirmPasswordReset(c *gin.Context) {
	var req PasswordResetConfirm
	if !h.bindJSON(c, &req) {
		return
	}

	if err := h.userService.ResetPassword(c.Request.Context(), req.Token, req.NewPassword); err != nil {
		common.RespondWithError(c, err)
		return
	}

	common.RespondOK(c, "Password reset successful.", nil)
}

func (h *Handler) googleLogin(c *gin.Context) {
	authURL, err := h.oauthService.GetGoogleLoginURL(c)
	if err != nil {
		common.RespondWithError(c, err)
		return
	}
	c.Redirect(http.StatusTemporaryRedirect, authURL)
}

func (h *Handler) googleCallback(c *gin.Context) {
	code := c.Query("code")
	state := c.Query("state")
	if code == "" || state == "" {
		common.RespondWithError(c, common.ErrBadRequest.WithDetails("Missing code or state in Google callback."))
		return
	}

	loggedInUser, tokenResponse, err := h.oauthService.HandleGoogleCallback(c, code, state)
	if err != nil {
		common.RespondWithError(c, err)
		return
	}

	common.RespondOK(c, "Google login successful.", gin.H{
		"user":  loggedInUser,
		"token": tokenResponse,
	})
}

func (h *Handler) appleLogin(c *gin.Context) {
	authURL, err := h.oauthService.GetAppleLoginURL(c)
	if err != nil {
		common.RespondWithError(c, err)
		return
	}
	c.Redirect(http.StatusTemporaryRedirect, authURL)
}

func (h *Handler) appleCallback(c *gin.Context) {
	// Apple posts the callback as a form; the user document arrives as a
	// JSON-encoded string field.
	idToken := c.PostForm("id_token")
	state := c.PostForm("state")
	appleUserJSON := c.PostForm("user")
	if idToken == "" || state == "" {
		common.RespondWithError(c, common.ErrBadRequest.WithDetails("Missing id_token or state in Apple callback."))
		return
	}

	loggedInUser, tokenResponse, err := h.oauthService.HandleAppleCallback(c, idToken, state, appleUserJSON)
	if err != nil {
		common.RespondWithError(c, err)
		return
	}

	common.RespondOK(c, "Apple login successful.", gin.H{
		"user":  loggedInUser,
		"token": tokenResponse,
	})
}
