package app

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/sri0013/vnf-project/internal/api/handlers"
	"github.com/sri0013/vnf-project/internal/api/middleware"
	"github.com/sri0013/vnf-project/internal/api/openapi"
	"github.com/sri0013/vnf-project/internal/config"
	"github.com/sri0013/vnf-project/internal/observability"
	"github.com/sri0013/vnf-project/internal/pkg/logger"
)

// defaultAllowedOrigins is used when server.allowed_origins is empty.
var defaultAllowedOrigins = []string{
	"http://localhost:3000",
	"http://127.0.0.1:3000",
}

func newRouter(cfg *config.Config, server *handlers.Server, metrics *observability.Metrics, jwtCfg middleware.JWTConfig) (*gin.Engine, error) {
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestID(), cors.New(buildCORSConfig(cfg)), middleware.ErrorHandler())

	if cfg.Server.OpenAPIValidation {
		doc, err := openapi.Load()
		if err != nil {
			return nil, fmt.Errorf("load openapi document: %w", err)
		}
		validator, err := middleware.NewOpenAPIValidator(doc, middleware.ValidatorOptions{})
		if err != nil {
			return nil, fmt.Errorf("init openapi validator: %w", err)
		}
		router.Use(validator)
	}

	var guard handlers.Guard
	if jwtCfg.Enabled() {
		guard = func(scope string) []gin.HandlerFunc {
			return []gin.HandlerFunc{middleware.JWTAuth(jwtCfg), middleware.RequireScope(scope)}
		}
	}

	router.GET("/metrics", gin.WrapH(metrics.Handler()))
	router.GET("/openapi.yaml", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/yaml", openapi.Raw())
	})

	level := gin.WrapH(logger.HTTPHandler())
	router.GET("/log/level", level)
	if guard != nil {
		router.PUT("/log/level", append(guard(middleware.ScopeAdmin), level)...)
	} else {
		router.PUT("/log/level", level)
	}

	server.RegisterRoutes(router, guard)
	return router, nil
}

// buildCORSConfig derives the CORS policy. A "*" origin is honoured only
// with server.unsafe_allow_all_origins, and then never with credentials.
func buildCORSConfig(cfg *config.Config) cors.Config {
	c := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"},
		ExposeHeaders: []string{"X-Request-ID"},
		MaxAge:        12 * time.Hour,
	}

	wildcard := false
	origins := make([]string, 0, len(cfg.Server.AllowedOrigins))
	for _, o := range cfg.Server.AllowedOrigins {
		if o == "*" {
			wildcard = true
			continue
		}
		origins = append(origins, o)
	}

	if wildcard && cfg.Server.UnsafeAllowAllOrigins {
		c.AllowAllOrigins = true
		c.AllowCredentials = false
		return c
	}

	if len(origins) == 0 {
		origins = append(origins, defaultAllowedOrigins...)
	}
	c.AllowOrigins = origins
	c.AllowCredentials = cfg.Server.AllowCredentials
	return c
}
