package server

import (
	"context"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Peercall/internal/config"
)

func genClientToken() string {
	return uuid.NewString()
}

func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = genClientToken()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, ctl *Controller) *gin.Engine {
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Server.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Server.Secret))
	r.Use(sessions.Sessions("PeercallSessions", store))
	r.Use(ClientTokenMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"registered": ctl.Registry.Count()})
	})

	api := r.Group("/api")
	api.GET("/ws/signal", func(c *gin.Context) {
		log.Info().Str("module", "server").Str("token", c.GetString("client_token")).Msg("ws signal endpoint hit")
		ctl.HandleSignal(ctx, c)
	})

	return r
}
