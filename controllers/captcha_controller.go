package controllers

import (
	"bytes"
	"errors"
	"html/template"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cppla/simplecaptcha/captcha"
	"github.com/cppla/simplecaptcha/middleware"
	"github.com/cppla/simplecaptcha/models"
	"github.com/cppla/simplecaptcha/utils"
)

// maxRequestedLength caps the length query parameter.
const maxRequestedLength = 32

// Demo form results, as plain text.
const (
	FormSuccess = "success"
	FormFailed  = "failed captcha"
)

var formPage = template.Must(template.New("form").Parse(`<!doctype html>
<html>
<head><meta charset="utf-8"><title>captcha</title></head>
<body>
{{if .Notice}}<div class="notice">{{.Notice}}</div>{{end}}
<form method="POST">
{{.Captcha}}
<input type="submit" value="Verify">
</form>
</body>
</html>
`))

// CaptchaController issues and verifies challenges over HTTP.
type CaptchaController struct {
	svc        *captcha.Service
	exposeText bool
	notice     template.HTML
	logger     *zap.Logger
}

// NewCaptchaController creates a CaptchaController. notice is operator HTML
// shown above the demo form; it is sanitized here.
func NewCaptchaController(svc *captcha.Service, exposeText bool, notice string, logger *zap.Logger) *CaptchaController {
	return &CaptchaController{
		svc:        svc,
		exposeText: exposeText,
		notice:     utils.SafeHTML(notice),
		logger:     logger,
	}
}

// Create issues a challenge. Optional query parameters: length, digits.
func (cc *CaptchaController) Create(ctx *gin.Context) {
	var opts []captcha.CreateOption
	if v := ctx.Query("length"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > maxRequestedLength {
			utils.Error(ctx, http.StatusBadRequest, utils.CodeInvalidLength, "length must be between 1 and 32")
			return
		}
		opts = append(opts, captcha.WithLength(n))
	}
	if v := ctx.Query("digits"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			utils.Error(ctx, http.StatusBadRequest, utils.CodeBadRequest, "digits must be a boolean")
			return
		}
		opts = append(opts, captcha.WithDigits(b))
	}

	ch, err := cc.svc.Create(opts...)
	if err != nil {
		if errors.Is(err, captcha.ErrEmptyPool) {
			utils.Error(ctx, http.StatusBadRequest, utils.CodeEmptyPool, "no characters available for this request")
			return
		}
		cc.logger.Error("create captcha failed", zap.Error(err))
		utils.Error(ctx, http.StatusInternalServerError, utils.CodeCaptchaFailed, "failed to create captcha")
		return
	}
	middleware.SetOutcome(ctx, models.OutcomeIssued)

	data := gin.H{
		"img":        ch.Image,
		"mime":       ch.MIMEType,
		"hash":       ch.Token,
		"expires_at": ch.ExpiresAt,
	}
	if cc.exposeText {
		data["text"] = ch.Text
	}
	utils.Success(ctx, data)
}

type verifyRequest struct {
	Text  string `json:"captcha_text" form:"captcha-text"`
	Token string `json:"captcha_hash" form:"captcha-hash"`
}

// Verify checks an answer against its token. A wrong answer is still a 200
// with valid=false; the reason is only logged.
func (cc *CaptchaController) Verify(ctx *gin.Context) {
	var req verifyRequest
	if err := ctx.ShouldBind(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, utils.CodeBadRequest, "invalid request payload")
		return
	}
	if strings.TrimSpace(req.Token) == "" {
		utils.Error(ctx, http.StatusBadRequest, utils.CodeMissingToken, "captcha_hash is required")
		return
	}

	valid := cc.svc.VerifyContext(ctx.Request.Context(), req.Text, req.Token)
	cc.recordVerify(ctx, valid)
	utils.Success(ctx, gin.H{"valid": valid})
}

// Form renders the demo page with a fresh challenge.
func (cc *CaptchaController) Form(ctx *gin.Context) {
	ch, err := cc.svc.Create()
	if err != nil {
		cc.logger.Error("create captcha failed", zap.Error(err))
		ctx.String(http.StatusInternalServerError, "failed to create captcha")
		return
	}
	middleware.SetOutcome(ctx, models.OutcomeIssued)

	var buf bytes.Buffer
	if err := formPage.Execute(&buf, gin.H{"Captcha": captcha.RenderMarkup(ch), "Notice": cc.notice}); err != nil {
		cc.logger.Error("render form failed", zap.Error(err))
		ctx.String(http.StatusInternalServerError, "failed to render page")
		return
	}
	ctx.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}

// SubmitForm verifies the demo form fields.
func (cc *CaptchaController) SubmitForm(ctx *gin.Context) {
	text := ctx.PostForm(captcha.TextFieldName)
	token := ctx.PostForm(captcha.TokenFieldName)

	valid := token != "" && cc.svc.VerifyContext(ctx.Request.Context(), text, token)
	cc.recordVerify(ctx, valid)
	if valid {
		ctx.String(http.StatusOK, FormSuccess)
		return
	}
	ctx.String(http.StatusOK, FormFailed)
}

func (cc *CaptchaController) recordVerify(ctx *gin.Context, valid bool) {
	if valid {
		middleware.SetOutcome(ctx, models.OutcomePassed)
		return
	}
	middleware.SetOutcome(ctx, models.OutcomeFailed)
}
