package router

import (
	"github.com/erp/delivery/internal/infrastructure/auth"
	"github.com/erp/delivery/internal/infrastructure/config"
	"github.com/erp/delivery/internal/infrastructure/logger"
	"github.com/erp/delivery/internal/interfaces/http/handler"
	"github.com/erp/delivery/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RouteRegistrar registers routes on a versioned API group
type RouteRegistrar interface {
	RegisterRoutes(rg *gin.RouterGroup)
}

// Dependencies holds everything the router needs to wire up the HTTP surface
type Dependencies struct {
	Config     *config.Config
	Logger     *zap.Logger
	JWTService *auth.JWTService
	Delivery   *handler.DeliveryHandler
	System     *handler.SystemHandler
}

// New builds the gin engine with the full middleware chain and all routes
// registered
func New(deps Dependencies) *gin.Engine {
	if deps.Config.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	if len(deps.Config.HTTP.TrustedProxies) > 0 {
		_ = engine.SetTrustedProxies(deps.Config.HTTP.TrustedProxies)
	}

	engine.Use(middleware.RequestID())
	engine.Use(logger.GinMiddleware(deps.Logger))
	engine.Use(logger.Recovery(deps.Logger))
	engine.Use(middleware.Secure())
	engine.Use(middleware.CORSFromConfig(deps.Config.HTTP))

	// Probes and the QR landing page live outside the versioned API
	deps.System.RegisterRoutes(engine)
	deps.Delivery.RegisterPublicRoutes(engine,
		middleware.OptionalJWTAuthMiddleware(deps.JWTService))

	api := engine.Group("/api/v1")
	api.Use(middleware.JWTAuthMiddleware(deps.JWTService))
	deps.Delivery.RegisterRoutes(api)

	return engine
}
