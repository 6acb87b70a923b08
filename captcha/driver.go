package captcha

import (
	"bytes"
	"encoding/base64"
	"io"

	"github.com/google/uuid"
	"github.com/mojocn/base64Captcha"
	"go.uber.org/zap"
)

// Driver adapts the service's pool and renderer to base64Captcha, so code
// built on base64Captcha.NewCaptcha and its stores can use these images.
type Driver struct {
	svc      *Service
	generate func(int, []rune) (string, error)
}

var _ base64Captcha.Driver = (*Driver)(nil)

// NewDriver returns a base64Captcha driver backed by svc.
func NewDriver(svc *Service) *Driver {
	return &Driver{svc: svc, generate: GenerateText}
}

// GenerateIdQuestionAnswer draws a fresh text; question and answer are the
// same. base64Captcha.Driver has no error return, so a failure of the system
// random source is logged and then panics.
func (d *Driver) GenerateIdQuestionAnswer() (id, q, a string) {
	text, err := d.generate(d.svc.cfg.TextLength, d.svc.pool)
	if err != nil {
		d.svc.logger.Error("captcha driver text generation failed", zap.Error(err))
		panic(err)
	}
	return uuid.NewString(), text, text
}

// DrawCaptcha renders content with the service renderer.
func (d *Driver) DrawCaptcha(content string) (base64Captcha.Item, error) {
	img, err := d.svc.renderer.Render(content)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := d.svc.renderer.Encode(&buf, img); err != nil {
		return nil, err
	}
	return &imageItem{data: buf.Bytes(), mime: d.svc.renderer.Format().MIMEType()}, nil
}

// imageItem is an encoded challenge image.
type imageItem struct {
	data []byte
	mime string
}

func (i *imageItem) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(i.data)
	return int64(n), err
}

func (i *imageItem) EncodeB64string() string {
	return "data:" + i.mime + ";base64," + base64.StdEncoding.EncodeToString(i.data)
}
