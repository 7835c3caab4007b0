package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/auth"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/services"
)

const claimsKey = "claims"

// TokenParser verifies signature and expiry of a bearer token.
type TokenParser interface {
	Parse(token string) (auth.Claims, error)
}

// RevocationChecker is the fail-closed revocation lookup.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// Authenticate admits a request only with a valid, unexpired, unrevoked
// token of the given type. A revocation lookup that fails answers 503.
func Authenticate(parser TokenParser, revocation RevocationChecker, tokenType models.TokenType, logger logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader(common.AuthorizationHeaderName)
		if !strings.HasPrefix(header, common.BearerPrefix) || len(header) == len(common.BearerPrefix) {
			abort(c, http.StatusUnauthorized, codeAuthorizationRequired, "Request does not contain an access token.")
			return
		}

		claims, err := parser.Parse(strings.TrimPrefix(header, common.BearerPrefix))
		if err != nil {
			if errors.Is(err, common.ErrTokenExpired) {
				abort(c, http.StatusUnauthorized, codeTokenExpired, "The token has expired.")
				return
			}
			abort(c, http.StatusUnauthorized, codeInvalidToken, "Signature verification failed.")
			return
		}

		if claims.Type != tokenType {
			abort(c, http.StatusUnauthorized, codeInvalidToken, "Only "+string(tokenType)+" tokens are allowed.")
			return
		}

		revoked, err := revocation.IsRevoked(c.Request.Context(), claims.ID)
		if err != nil {
			logger.Error(c.Request.Context(), "revocation check failed", "jti", claims.ID, "error", err)
			abort(c, http.StatusServiceUnavailable, codeServiceUnavailable, "The service is temporarily unavailable.")
			return
		}
		if revoked {
			abort(c, http.StatusUnauthorized, codeTokenRevoked, "The token has been revoked.")
			return
		}

		c.Set(claimsKey, claims)
		c.Next()
	}
}

func claimsFrom(c *gin.Context) auth.Claims {
	v, _ := c.Get(claimsKey)
	claims, _ := v.(auth.Claims)
	return claims
}

// userID resolves the authenticated user. It aborts on a malformed identity.
func userID(c *gin.Context) (int64, bool) {
	id, err := services.ParseIdentity(claimsFrom(c).Identity)
	if err != nil {
		abort(c, http.StatusUnauthorized, codeInvalidToken, "Signature verification failed.")
		return 0, false
	}
	return id, true
}

// requestLogger logs one line per request.
func requestLogger(logger logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info(c.Request.Context(), "request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
