package hubserver

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/vanhungne/tutoring-live/internal/auth"
	"github.com/vanhungne/tutoring-live/internal/config"
)

// AuthMiddleware verifies the access_token query parameter and stores
// the username for the handlers. Websocket clients cannot set headers,
// so the token rides the query string.
func AuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("access_token")
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing access_token"})
			return
		}
		username, err := auth.VerifyToken(token, secret)
		if err != nil {
			log.Warn().Err(err).Str("module", "hubserver").Msg("token rejected")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set("username", username)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, registry *Registry) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	ctrl := NewController(registry)

	api := r.Group("/api", AuthMiddleware(cfg.Secret))
	api.GET("/ws/hub", func(c *gin.Context) {
		ctrl.HandleHub(ctx, c)
	})

	log.Info().Str("module", "hubserver").Msg("router setup")
	return r
}
