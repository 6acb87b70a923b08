package utils

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Business codes carried in JSONResponse.Code.
const (
	CodeOK            = 0
	CodeBadRequest    = 40001
	CodeInvalidLength = 40010
	CodeEmptyPool     = 40011
	CodeMissingToken  = 40020
	CodeNotFound      = 40400
	CodeRateLimited   = 42901
	CodeCaptchaFailed = 50010
	CodeStatsFailed   = 50020
	CodeStatsDisabled = 50300
)

// JSONResponse defines the uniform structure for API responses.
type JSONResponse struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Respond writes a JSON response with the given status code.
func Respond(ctx *gin.Context, status int, code int, message string, data interface{}) {
	ctx.JSON(status, JSONResponse{
		Code:    code,
		Message: message,
		Data:    data,
	})
}

// Success returns a standard success response.
func Success(ctx *gin.Context, data interface{}) {
	Respond(ctx, http.StatusOK, CodeOK, "success", data)
}

// Error returns a standard error response.
func Error(ctx *gin.Context, status int, code int, message string) {
	Respond(ctx, status, code, message, nil)
}
