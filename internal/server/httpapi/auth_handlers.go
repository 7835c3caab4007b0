package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/dmitrijs2005/authkeeper/internal/common"
)

var empty = []any{}

type credentials struct {
	Email      string `json:"email" binding:"required"`
	Password   string `json:"password"`
	FacebookID string `json:"facebook_id"`
}

// Login handles POST /auth/login.
func (h *Handler) Login(c *gin.Context) {
	var req credentials
	if err := c.ShouldBindJSON(&req); err != nil || (req.Password == "" && req.FacebookID == "") {
		invalidRequest(c)
		return
	}

	pair, err := h.accounts.Login(c.Request.Context(), req.Email, req.Password, req.FacebookID)
	if err != nil {
		switch {
		case errors.Is(err, common.ErrorUnauthorized):
			abort(c, http.StatusUnauthorized, codeInvalidCredentials, "Invalid email or password.")
		case errors.Is(err, common.ErrInactiveAccount):
			abort(c, http.StatusForbidden, codeAccountInactive, "The account is not activated.")
		default:
			h.fail(c, err)
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"access_token":  pair.AccessToken,
		"refresh_token": pair.RefreshToken,
	})
}

// Refresh handles POST /auth/refresh. Only refresh tokens get here.
func (h *Handler) Refresh(c *gin.Context) {
	access, err := h.accounts.Refresh(c.Request.Context(), claimsFrom(c).Identity)
	if err != nil {
		if errors.Is(err, common.ErrInvalidToken) {
			abort(c, http.StatusUnauthorized, codeInvalidToken, "Signature verification failed.")
			return
		}
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"access_token": access})
}

// ListTokens handles GET /auth/tokens.
func (h *Handler) ListTokens(c *gin.Context) {
	list, err := h.tokens.ListTokens(c.Request.Context(), claimsFrom(c).Identity)
	if err != nil {
		h.fail(c, err)
		return
	}

	out := make([]tokenResponse, 0, len(list))
	for _, s := range list {
		out = append(out, newTokenResponse(s))
	}
	c.JSON(http.StatusOK, out)
}

// DeleteTokens handles DELETE /auth/tokens.
func (h *Handler) DeleteTokens(c *gin.Context) {
	var req struct {
		Tokens []int64 `json:"tokens"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || len(req.Tokens) == 0 {
		invalidRequest(c)
		return
	}

	if err := h.tokens.DeleteTokens(c.Request.Context(), req.Tokens, claimsFrom(c).Identity); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, empty)
}

// GetToken handles GET /auth/token/:token_id.
func (h *Handler) GetToken(c *gin.Context) {
	id, ok := tokenID(c)
	if !ok {
		return
	}

	s, err := h.tokens.GetToken(c.Request.Context(), id, claimsFrom(c).Identity)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			tokenNotFound(c)
			return
		}
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newTokenResponse(s))
}

// UpdateToken handles PUT /auth/token/:token_id with action revoke or unrevoke.
func (h *Handler) UpdateToken(c *gin.Context) {
	id, ok := tokenID(c)
	if !ok {
		return
	}

	var req struct {
		Action string `json:"action"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidRequest(c)
		return
	}

	ctx := c.Request.Context()
	identity := claimsFrom(c).Identity

	var (
		found bool
		err   error
	)
	switch req.Action {
	case "revoke":
		found, err = h.tokens.Revoke(ctx, id, identity)
	case "unrevoke":
		found, err = h.tokens.Unrevoke(ctx, id, identity)
	default:
		abort(c, http.StatusBadRequest, codeIncorrectAction, "Incorrect action.")
		return
	}

	if err != nil {
		h.fail(c, err)
		return
	}
	if !found {
		tokenNotFound(c)
		return
	}
	c.JSON(http.StatusOK, empty)
}

func tokenID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("token_id"), 10, 64)
	if err != nil || id <= 0 {
		tokenNotFound(c)
		return 0, false
	}
	return id, true
}

func tokenNotFound(c *gin.Context) {
	abort(c, http.StatusNotFound, codeTokenNotFound, "The specified token was not found.")
}
