package captcha

import (
	"bytes"
	"html/template"
)

// Form field names shared with the HTTP layer: the user's answer goes in
// TextFieldName, the token rides along in the hidden TokenFieldName.
const (
	TextFieldName  = "captcha-text"
	TokenFieldName = "captcha-hash"
)

var markupTemplate = template.Must(template.New("captcha").Parse(
	`<img class="simple-captcha-img" src="{{.Src}}" />` + "\n" +
		`<input type="text" class="simple-captcha-text" name="{{.TextField}}">` + "\n" +
		`<input type="hidden" name="{{.TokenField}}" value="{{.Token}}">`))

type markupData struct {
	Src        template.URL
	TextField  string
	TokenField string
	Token      string
}

// RenderMarkup returns the image tag plus the answer and token inputs.
func RenderMarkup(ch *Challenge) template.HTML {
	return RenderMarkupParts(ch.Image, ch.MIMEType, ch.Token)
}

// RenderMarkupParts is RenderMarkup for callers holding the pieces.
func RenderMarkupParts(img, mime, token string) template.HTML {
	if mime == "" {
		mime = FormatJPEG.MIMEType()
	}
	var buf bytes.Buffer
	// The template is static and the data are strings, so Execute cannot fail.
	_ = markupTemplate.Execute(&buf, markupData{
		Src:        template.URL("data:" + mime + ";base64, " + img),
		TextField:  TextFieldName,
		TokenField: TokenFieldName,
		Token:      token,
	})
	return template.HTML(buf.String())
}
