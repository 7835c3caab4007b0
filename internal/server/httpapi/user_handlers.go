package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/services"
)

// Register handles POST /user/register.
func (h *Handler) Register(c *gin.Context) {
	var req credentials
	if err := c.ShouldBindJSON(&req); err != nil || (req.Password == "" && req.FacebookID == "") {
		invalidRequest(c)
		return
	}

	if err := h.accounts.Register(c.Request.Context(), req.Email, req.Password, req.FacebookID); err != nil {
		if errors.Is(err, common.ErrUserExists) {
			abort(c, http.StatusBadRequest, codeUserExists, "A user with that email already exists.")
			return
		}
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, empty)
}

// RequestActivation handles GET /user/activate/:email.
func (h *Handler) RequestActivation(c *gin.Context) {
	if err := h.accounts.RequestActivation(c.Request.Context(), c.Param("email")); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			userDoesNotExist(c)
			return
		}
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, empty)
}

// Activate handles PUT /user/activate/:key.
func (h *Handler) Activate(c *gin.Context) {
	if err := h.accounts.Activate(c.Request.Context(), c.Param("key")); err != nil {
		if errors.Is(err, common.ErrInvalidKey) {
			abort(c, http.StatusBadRequest, codeInvalidActivationKey, "The activation key is invalid.")
			return
		}
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, empty)
}

// RequestPasswordReset handles POST /user/password/reset/:email.
func (h *Handler) RequestPasswordReset(c *gin.Context) {
	if err := h.accounts.RequestPasswordReset(c.Request.Context(), c.Param("email")); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			userDoesNotExist(c)
			return
		}
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, empty)
}

type passwordRequest struct {
	Password        *string `json:"password"`
	PasswordConfirm *string `json:"password_confirm"`
}

// ResetPassword handles PUT /user/password/reset/:key.
func (h *Handler) ResetPassword(c *gin.Context) {
	var req passwordRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Password == nil || req.PasswordConfirm == nil {
		invalidRequest(c)
		return
	}

	pc := services.PasswordChange{Password: *req.Password, PasswordConfirm: *req.PasswordConfirm}
	if err := h.accounts.ResetPassword(c.Request.Context(), c.Param("key"), pc); err != nil {
		if errors.Is(err, common.ErrInvalidKey) {
			abort(c, http.StatusBadRequest, codeInvalidResetKey, "The password reset key is invalid or expired.")
			return
		}
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, empty)
}

// GetUser handles GET /user.
func (h *Handler) GetUser(c *gin.Context) {
	id, ok := userID(c)
	if !ok {
		return
	}

	p, err := h.accounts.GetProfile(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, profileResponse{
		UserID:    p.UserID,
		Email:     p.Email,
		FirstName: p.FirstName,
		LastName:  p.LastName,
		Headline:  p.Headline,
		CountryID: p.CountryID,
		CityID:    p.CityID,
	})
}

// UpdateUser handles PUT /user.
func (h *Handler) UpdateUser(c *gin.Context) {
	id, ok := userID(c)
	if !ok {
		return
	}

	var req struct {
		FirstName *string `json:"first_name"`
		LastName  *string `json:"last_name"`
		Headline  *string `json:"headline"`
		CountryID *int64  `json:"country_id"`
		CityID    *int64  `json:"city_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidRequest(c)
		return
	}

	upd := models.ProfileUpdate{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Headline:  req.Headline,
		CountryID: req.CountryID,
		CityID:    req.CityID,
	}
	if err := h.accounts.UpdateProfile(c.Request.Context(), id, upd); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, empty)
}

// GetProfileImage handles GET /user/profile/image.
func (h *Handler) GetProfileImage(c *gin.Context) {
	id, ok := userID(c)
	if !ok {
		return
	}

	url, err := h.images.URL(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"profile_image_url": url})
}

// UploadProfileImage handles POST /user/profile/image. The client then PUTs
// the bytes to the returned URL.
func (h *Handler) UploadProfileImage(c *gin.Context) {
	id, ok := userID(c)
	if !ok {
		return
	}

	var req struct {
		FileName string `json:"file_name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidRequest(c)
		return
	}

	up, err := h.images.Upload(c.Request.Context(), id, req.FileName)
	if err != nil {
		if errors.Is(err, common.ErrFileNotSupported) {
			abort(c, http.StatusBadRequest, codeFileExtension, "The file extension is not allowed.")
			return
		}
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"upload_url": up.URL, "profile_image_key": up.Key})
}

// DeleteProfileImage handles DELETE /user/profile/image.
func (h *Handler) DeleteProfileImage(c *gin.Context) {
	id, ok := userID(c)
	if !ok {
		return
	}
	if err := h.images.Delete(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, empty)
}

// GetSettings handles GET /user/settings.
func (h *Handler) GetSettings(c *gin.Context) {
	id, ok := userID(c)
	if !ok {
		return
	}

	s, err := h.accounts.GetSettings(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, settingsResponse{
		EmailNotifications:     boolToInt(s.EmailNotifications),
		EmailMonthlyNewsletter: boolToInt(s.EmailMonthlyNewsletter),
	})
}

// UpdateSettings handles PUT /user/settings. A password change needs a
// fresh access token.
func (h *Handler) UpdateSettings(c *gin.Context) {
	id, ok := userID(c)
	if !ok {
		return
	}

	var req struct {
		EmailNotifications     *int `json:"email_notifications"`
		EmailMonthlyNewsletter *int `json:"email_monthly_newsletter"`
		passwordRequest
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidRequest(c)
		return
	}

	upd := models.SettingsUpdate{}
	var ok1, ok2 bool
	upd.EmailNotifications, ok1 = flag(req.EmailNotifications)
	upd.EmailMonthlyNewsletter, ok2 = flag(req.EmailMonthlyNewsletter)
	if !ok1 || !ok2 {
		invalidRequest(c)
		return
	}

	var pc *services.PasswordChange
	if req.Password != nil && req.PasswordConfirm != nil {
		if !claimsFrom(c).Fresh {
			abort(c, http.StatusUnauthorized, codeFreshTokenRequired, "The token is not fresh.")
			return
		}
		pc = &services.PasswordChange{Password: *req.Password, PasswordConfirm: *req.PasswordConfirm}
	}

	if err := h.accounts.UpdateSettings(c.Request.Context(), id, upd, pc); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, empty)
}

// flag converts an optional 0|1 field.
func flag(v *int) (*bool, bool) {
	if v == nil {
		return nil, true
	}
	switch *v {
	case 0:
		b := false
		return &b, true
	case 1:
		b := true
		return &b, true
	}
	return nil, false
}

func userDoesNotExist(c *gin.Context) {
	abort(c, http.StatusBadRequest, codeUserDoesNotExist, "A user with that email does not exist.")
}
