// Package mailer renders account e-mails and hands them to an SMTP relay.
package mailer

import (
	"bytes"
	"context"
	"fmt"
	"text/template"

	"github.com/dmitrijs2005/authkeeper/internal/logging"
)

// Template names understood by Render.
const (
	TemplateRegisterAndActivation = "user_register_and_activation"
	TemplateRequestActivation     = "user_request_activation"
	TemplatePasswordReset         = "user_password_reset"
)

// Mailer delivers a rendered template to a single recipient.
type Mailer interface {
	Send(ctx context.Context, tmpl, to string, params map[string]string) error
}

type content struct {
	subject *template.Template
	body    *template.Template
}

var contents = map[string]content{
	TemplateRegisterAndActivation: {
		subject: template.Must(template.New("subject").Parse("Welcome to authkeeper")),
		body: template.Must(template.New("body").Parse(`Hello {{.USER_EMAIL}},

thank you for signing up. Please activate your account here:

{{.USER_ACTIVATION_URL}}
`)),
	},
	TemplateRequestActivation: {
		subject: template.Must(template.New("subject").Parse("Activate your account")),
		body: template.Must(template.New("body").Parse(`Hello {{with .USERS_FIRST_NAME}}{{.}}{{else}}{{.USER_EMAIL}}{{end}},

you asked for a new activation link:

{{.USER_ACTIVATION_URL}}
`)),
	},
	TemplatePasswordReset: {
		subject: template.Must(template.New("subject").Parse("Reset your password")),
		body: template.Must(template.New("body").Parse(`Hello{{with .USERS_FIRST_NAME}} {{.}}{{end}},

follow the link below to choose a new password. It is valid for four weeks.

{{.USER_FORGOTTEN_PASSWORD_URL}}
`)),
	},
}

// Render returns the subject and plain text body of tmpl.
func Render(tmpl string, params map[string]string) (string, string, error) {
	c, ok := contents[tmpl]
	if !ok {
		return "", "", fmt.Errorf("unknown mail template %q", tmpl)
	}

	var subject, body bytes.Buffer
	if err := c.subject.Execute(&subject, params); err != nil {
		return "", "", fmt.Errorf("render subject: %w", err)
	}
	if err := c.body.Execute(&body, params); err != nil {
		return "", "", fmt.Errorf("render body: %w", err)
	}
	return subject.String(), body.String(), nil
}

// LogMailer writes mails to the log instead of sending them. Used when no
// SMTP host is configured.
type LogMailer struct {
	logger logging.Logger
}

func NewLogMailer(logger logging.Logger) *LogMailer {
	return &LogMailer{logger: logger.With("module", "mailer")}
}

func (m *LogMailer) Send(ctx context.Context, tmpl, to string, params map[string]string) error {
	subject, body, err := Render(tmpl, params)
	if err != nil {
		return err
	}
	m.logger.Info(ctx, "mail not sent, smtp disabled", "to", to, "subject", subject, "body", body)
	return nil
}
