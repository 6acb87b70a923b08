package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cppla/simplecaptcha/captcha"
	"github.com/cppla/simplecaptcha/config"
	"github.com/cppla/simplecaptcha/controllers"
	"github.com/cppla/simplecaptcha/middleware"
	"github.com/cppla/simplecaptcha/utils"
)

// SetupRouter wires routes, middlewares, and controllers. db may be nil, in
// which case stats are neither recorded nor served. accessLog receives one
// line per request.
func SetupRouter(cfg config.AppConfig, svc *captcha.Service, db *gorm.DB, accessLog *zap.Logger) *gin.Engine {
	switch strings.ToLower(cfg.GinMode) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(ginzap.Ginzap(accessLog, time.RFC3339, true))
	r.Use(ginzap.RecoveryWithZap(accessLog, true))

	corsCfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Content-Type"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))

	captchaController := controllers.NewCaptchaController(svc, cfg.ExposeText, cfg.NoticeHTML, utils.Logger)
	configController := controllers.NewConfigController(svc.Config())
	statsController := controllers.NewStatsController(db)

	limit := middleware.RateLimitMiddleware(cfg.RateLimitPerMinute)
	stats := middleware.ChallengeStatsRecorder(db)

	r.GET("/health", func(ctx *gin.Context) {
		utils.Success(ctx, gin.H{"status": "ok"})
	})

	r.GET("/", limit, stats, captchaController.Form)
	r.POST("/", limit, stats, captchaController.SubmitForm)

	api := r.Group("/api/v1")

	captchaGroup := api.Group("/captcha")
	captchaGroup.Use(limit, stats)
	captchaGroup.GET("", captchaController.Create)
	captchaGroup.POST("/verify", captchaController.Verify)

	api.GET("/config/captcha", configController.GetCaptcha)
	api.GET("/stats", statsController.GetStats)

	r.NoRoute(func(ctx *gin.Context) {
		utils.Error(ctx, http.StatusNotFound, utils.CodeNotFound, "route not found")
	})

	return r
}
