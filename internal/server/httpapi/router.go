package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/dmitrijs2005/authkeeper/internal/buildinfo"
	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
)

// NewRouter registers every endpoint on a fresh gin engine.
func NewRouter(h *Handler, parser TokenParser, revocation RevocationChecker, logger logging.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(h.logger))
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Accept", common.AuthorizationHeaderName},
		ExposeHeaders:   []string{"Content-Length"},
		MaxAge:          12 * time.Hour,
	}))

	access := Authenticate(parser, revocation, models.TokenTypeAccess, logger)
	refresh := Authenticate(parser, revocation, models.TokenTypeRefresh, logger)

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"name": "authkeeper", "version": buildinfo.Version})
	})

	a := r.Group("/auth")
	a.POST("/login", h.Login)
	a.POST("/refresh", refresh, h.Refresh)
	a.GET("/tokens", access, h.ListTokens)
	a.DELETE("/tokens", access, h.DeleteTokens)
	a.GET("/token/:token_id", access, h.GetToken)
	a.PUT("/token/:token_id", access, h.UpdateToken)

	u := r.Group("/user")
	u.GET("", access, h.GetUser)
	u.PUT("", access, h.UpdateUser)
	u.POST("/register", h.Register)
	u.GET("/activate/:email", h.RequestActivation)
	u.PUT("/activate/:key", h.Activate)
	u.POST("/password/reset/:email", h.RequestPasswordReset)
	u.PUT("/password/reset/:key", h.ResetPassword)
	u.GET("/profile/image", access, h.GetProfileImage)
	u.POST("/profile/image", access, h.UploadProfileImage)
	u.DELETE("/profile/image", access, h.DeleteProfileImage)
	u.GET("/settings", access, h.GetSettings)
	u.PUT("/settings", access, h.UpdateSettings)

	return r
}
