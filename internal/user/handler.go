// File: internal/user/handler.go
package user

import (
	"identity_backend/internal/common"
	"identity_backend/internal/shared"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Handler handles HTTP requests for the authenticated user's profile.
type Handler struct {
	service shared.Service
	logger  *zap.Logger
}

// NewHandler creates a new user handler.
func NewHandler(service shared.Service, logger *zap.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger.Named("UserHandler"),
	}
}

// RegisterRoutes registers user profile routes. The provided middleware must
// have established the caller's identity in the request context.
func (h *Handler) RegisterRoutes(router *gin.RouterGroup, sessionMiddleware gin.HandlerFunc) {
	users := router.Group("/users")
	users.Use(sessionMiddleware)
	{
		users.GET("/me", h.getMyProfile)
		users.PATCH("/me", h.updateMyProfile)
	}
}

func (h *Handler) getMyProfile(c *gin.Context) {
	userID := common.GetUserIDFromContext(c)
	if userID == uuid.Nil {
		common.RespondWithError(c, common.ErrUnauthorized)
		return
	}

	usr, err := h.service.GetUserByID(c.Request.Context(), userID)
	if err != nil {
		common.RespondWithError(c, err)
		return
	}

	common.RespondOK(c, "Profile retrieved successfully.", SharedToResponse(usr))
}

func (h *Handler) updateMyProfile(c *gin.Context) {
	userID := common.GetUserIDFromContext(c)
	if userID == uuid.Nil {
		common.RespondWithError(c, common.ErrUnauthorized)
		return
	}

	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		if validationErrs, ok := err.(validator.ValidationErrors); ok {
			common.RespondWithError(c, common.NewValidationAPIError(common.FormatValidationErrors(validationErrs)))
			return
		}
		common.RespondWithError(c, common.ErrBadRequest.WithDetails(gin.H{"error": "Invalid request payload: " + err.Error()}))
		return
	}

	updated, err := h.service.UpdateProfile(c.Request.Context(), userID, shared.UpdateProfileRequest{
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		common.RespondWithError(c, err)
		return
	}

	h.logger.Info("User profile updated", zap.String("userID", userID.String()))
	common.RespondOK(c, "Profile updated successfully.", SharedToResponse(updated))
}
