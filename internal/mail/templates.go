package mail

import (
	"bytes"
	htmltemplate "html/template"
	"strconv"
	"text/template"
	"time"
)

// MagicLinkData is passed when rendering the sign-in email.
type MagicLinkData struct {
	From string
	To   string
	Link string
	Host string
	TTL  time.Duration
}

// InvitationData is passed when rendering an organization invitation.
type InvitationData struct {
	From         string
	To           string
	Link         string
	Organization string
	InvitedBy    string
	TTL          time.Duration
}

const magicLinkText = `Sign in to {{.Host}}

{{.Link}}

This link expires in {{hours .TTL}} hours and can be used once.

If you did not request this email you can safely ignore it.
`

const magicLinkHTML = `<!doctype html>
<html>
<body style="font-family: sans-serif; background: #f9f9f9; padding: 24px;">
  <table width="100%" style="max-width: 600px; margin: auto; background: #ffffff; border-radius: 8px; padding: 24px;">
    <tr><td style="font-size: 20px;">Sign in to <strong>{{.Host}}</strong></td></tr>
    <tr><td style="padding: 24px 0;">
      <a href="{{.Link}}" style="background: #2563eb; color: #ffffff; padding: 12px 20px; border-radius: 6px; text-decoration: none;">Sign in</a>
    </td></tr>
    <tr><td style="font-size: 14px; color: #555555;">This link expires in {{hours .TTL}} hours and can be used once. If you did not request this email you can safely ignore it.</td></tr>
  </table>
</body>
</html>
`

const invitationText = `{{.InvitedBy}} invited you to join {{.Organization}}.

{{.Link}}

The invitation expires in {{days .TTL}} days.
`

const invitationHTML = `<!doctype html>
<html>
<body style="font-family: sans-serif; background: #f9f9f9; padding: 24px;">
  <table width="100%" style="max-width: 600px; margin: auto; background: #ffffff; border-radius: 8px; padding: 24px;">
    <tr><td style="font-size: 20px;">{{.InvitedBy}} invited you to join <strong>{{.Organization}}</strong></td></tr>
    <tr><td style="padding: 24px 0;">
      <a href="{{.Link}}" style="background: #2563eb; color: #ffffff; padding: 12px 20px; border-radius: 6px; text-decoration: none;">Accept invitation</a>
    </td></tr>
    <tr><td style="font-size: 14px; color: #555555;">The invitation expires in {{days .TTL}} days.</td></tr>
  </table>
</body>
</html>
`

var funcs = map[string]any{
	"hours": func(d time.Duration) string { return trimFloat(d.Hours()) },
	"days":  func(d time.Duration) string { return trimFloat(d.Hours() / 24) },
}

var (
	magicLinkTextTmpl  = template.Must(template.New("magic_link.txt").Funcs(funcs).Parse(magicLinkText))
	magicLinkHTMLTmpl  = htmltemplate.Must(htmltemplate.New("magic_link.html").Funcs(funcs).Parse(magicLinkHTML))
	invitationTextTmpl = template.Must(template.New("invitation.txt").Funcs(funcs).Parse(invitationText))
	invitationHTMLTmpl = htmltemplate.Must(htmltemplate.New("invitation.html").Funcs(funcs).Parse(invitationHTML))
)

// MagicLink renders the sign-in email.
func MagicLink(data MagicLinkData) (Message, error) {
	text, html, err := render(magicLinkTextTmpl, magicLinkHTMLTmpl, data)
	if err != nil {
		return Message{}, err
	}
	return Message{
		From:    data.From,
		To:      data.To,
		Subject: "Sign in to " + data.Host,
		Text:    text,
		HTML:    html,
		Link:    data.Link,
	}, nil
}

// Invitation renders an organization invitation email.
func Invitation(data InvitationData) (Message, error) {
	text, html, err := render(invitationTextTmpl, invitationHTMLTmpl, data)
	if err != nil {
		return Message{}, err
	}
	return Message{
		From:    data.From,
		To:      data.To,
		Subject: "You have been invited to " + data.Organization,
		Text:    text,
		HTML:    html,
		Link:    data.Link,
	}, nil
}

func render(text *template.Template, html *htmltemplate.Template, data any) (string, string, error) {
	var tb, hb bytes.Buffer
	if err := text.Execute(&tb, data); err != nil {
		return "", "", err
	}
	if err := html.Execute(&hb, data); err != nil {
		return "", "", err
	}
	return tb.String(), hb.String(), nil
}

func trimFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
