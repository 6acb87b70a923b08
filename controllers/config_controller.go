package controllers

import (
	"github.com/gin-gonic/gin"

	"github.com/cppla/simplecaptcha/captcha"
	"github.com/cppla/simplecaptcha/utils"
)

// ConfigController serves the public part of the captcha configuration so
// clients can size inputs and schedule refreshes.
type ConfigController struct {
	cfg captcha.Config
}

func NewConfigController(cfg captcha.Config) *ConfigController { return &ConfigController{cfg: cfg} }

// GetCaptcha returns non-secret captcha settings.
func (c *ConfigController) GetCaptcha(ctx *gin.Context) {
	utils.Success(ctx, gin.H{
		"length":         c.cfg.TextLength,
		"digits":         c.cfg.IncludeDigits,
		"only_uppercase": c.cfg.OnlyUppercase,
		"format":         string(c.cfg.ImageFormat),
		"mime":           c.cfg.ImageFormat.MIMEType(),
		"width":          c.cfg.ImageWidth,
		"height":         c.cfg.ImageHeight,
		"expire_seconds": int64(c.cfg.Expire.Seconds()),
		"replay_guard":   c.cfg.ReplayGuard,
	})
}
