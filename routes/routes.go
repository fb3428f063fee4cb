package routes

import (
	"portfolio_api/controllers"
	"portfolio_api/middleware"
	"portfolio_api/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Dependencies are the services the HTTP routes are built from
type Dependencies struct {
	Auth      *services.AuthService
	Portfolio *services.PortfolioService
	Prices    services.PriceFetcher
	Hub       *services.PriceHub // optional
	Limiter   *middleware.RateLimiter
	Logger    *zap.Logger
}

// SetupRoutes sets up all API routes
func SetupRoutes(router *gin.Engine, deps Dependencies) {
	// Initialize controllers
	authController := controllers.NewAuthController(deps.Auth, deps.Limiter, deps.Logger)
	securityController := controllers.NewSecurityController(deps.Portfolio, deps.Prices, deps.Logger)

	authRequired := middleware.AuthRequired(deps.Auth)

	// Token auth
	if deps.Limiter != nil {
		router.POST("/login", middleware.LoginRateLimitMiddleware(deps.Limiter), authController.Login)
	} else {
		router.POST("/login", authController.Login)
	}
	router.POST("/logout", authRequired, authController.Logout)

	// Portfolio dispatcher
	security := router.Group("/security", authRequired)
	{
		security.GET("/*subpath", securityController.Handle)
		security.POST("/*subpath", securityController.Handle)
	}

	// Live price stream
	if deps.Hub != nil {
		router.GET("/ws/prices", middleware.AuthRequired(deps.Auth, middleware.WithQueryToken("access_token")), deps.Hub.HandleWebSocket)
	}
}
