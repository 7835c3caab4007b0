package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dmitrijs2005/authkeeper/internal/common"
)

// Error codes returned in the error_code field.
const (
	codeAuthorizationRequired = "authorization_required"
	codeInvalidToken          = "invalid_token"
	codeTokenExpired          = "token_expired"
	codeTokenRevoked          = "token_revoked"
	codeFreshTokenRequired    = "fresh_token_required"
	codeServiceUnavailable    = "service_unavailable"
	codeInternal              = "internal_error"
	codeInvalidRequest        = "invalid_request"
	codeIncorrectAction       = "incorrect_action"
	codeTokenNotFound         = "token_not_found"
	codeInvalidCredentials    = "invalid_credentials"
	codeAccountInactive       = "account_inactive"
	codeUserExists            = "user_exists"
	codeUserNotFound          = "user_not_found"
	codeUserDoesNotExist      = "user_does_not_exist"
	codeInvalidActivationKey  = "invalid_activation_key"
	codeInvalidResetKey       = "invalid_password_reset_key"
	codeFileExtension         = "file_extension_not_allowed"
)

type errorBody struct {
	Message   string `json:"message"`
	ErrorCode string `json:"error_code"`
}

func abort(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, errorBody{Message: message, ErrorCode: code})
}

func invalidRequest(c *gin.Context) {
	abort(c, http.StatusBadRequest, codeInvalidRequest, "Invalid input data.")
}

// fail maps service errors that every handler can run into. Handlers match
// their specific errors first.
func (h *Handler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, common.ErrPersistence):
		h.logger.Error(c.Request.Context(), "storage unavailable", "path", c.FullPath(), "error", err)
		abort(c, http.StatusServiceUnavailable, codeServiceUnavailable, "The service is temporarily unavailable.")
	case errors.Is(err, common.ErrorInvalidRequest):
		invalidRequest(c)
	case errors.Is(err, common.ErrorNotFound):
		abort(c, http.StatusBadRequest, codeUserNotFound, "User not found.")
	default:
		h.logger.Error(c.Request.Context(), "request failed", "path", c.FullPath(), "error", err)
		abort(c, http.StatusInternalServerError, codeInternal, "Internal server error.")
	}
}
