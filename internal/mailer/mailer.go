// Package mailer delivers account emails. Every Mailer call is best effort:
// callers log failures and carry on.
package mailer

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// Mailer sends the account emails the user service needs.
type Mailer interface {
	SendPasswordReset(ctx context.Context, email, token, name string) error
	SendWelcome(ctx context.Context, email, name, tempPassword string) error
	SendPasswordChanged(ctx context.Context, email, name string) error
	SendDeactivationNotice(ctx context.Context, email, name, reason string) error
}

// Template names, shared with the notification service for EventMailer.
const (
	TemplatePasswordReset   = "password_reset"
	TemplateWelcome         = "welcome"
	TemplatePasswordChanged = "password_changed"
	TemplateDeactivation    = "account_deactivated"
)

// Message is a rendered email ready for a provider.
type Message struct {
	To      string
	ToName  string
	Subject string
	Text    string
}

// Sender delivers one rendered message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Config holds sender identity and the links embedded in emails.
type Config struct {
	From             string
	FromName         string
	PasswordResetURL string
	LoginURL         string
}

// TemplateMailer renders plain-text emails and hands them to a Sender.
type TemplateMailer struct {
	sender Sender
	cfg    Config
}

// NewTemplateMailer creates a Mailer on top of sender.
func NewTemplateMailer(sender Sender, cfg Config) *TemplateMailer {
	return &TemplateMailer{sender: sender, cfg: cfg}
}

func (m *TemplateMailer) SendPasswordReset(ctx context.Context, email, token, name string) error {
	body := fmt.Sprintf(
		"Hola %s,\n\nRecibimos una solicitud para restablecer tu contraseña.\n"+
			"Usa el siguiente enlace en las próximas 24 horas:\n\n%s\n\n"+
			"Si no solicitaste el cambio, ignora este mensaje.\n",
		name, ResetLink(m.cfg.PasswordResetURL, token))
	return m.send(ctx, email, name, "Restablecimiento de contraseña", body)
}

func (m *TemplateMailer) SendWelcome(ctx context.Context, email, name, tempPassword string) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Hola %s,\n\nTu cuenta ha sido creada.\n", name)
	if tempPassword != "" {
		fmt.Fprintf(&b, "Tu contraseña temporal es: %s\nDeberás cambiarla al iniciar sesión.\n", tempPassword)
	}
	if m.cfg.LoginURL != "" {
		fmt.Fprintf(&b, "\nIngresa en %s\n", m.cfg.LoginURL)
	}
	return m.send(ctx, email, name, "Bienvenido", b.String())
}

func (m *TemplateMailer) SendPasswordChanged(ctx context.Context, email, name string) error {
	body := fmt.Sprintf(
		"Hola %s,\n\nLa contraseña de tu cuenta fue cambiada y se cerraron las demás sesiones.\n"+
			"Si no fuiste tú, contacta al administrador de inmediato.\n", name)
	return m.send(ctx, email, name, "Tu contraseña fue cambiada", body)
}

func (m *TemplateMailer) SendDeactivationNotice(ctx context.Context, email, name, reason string) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Hola %s,\n\nTu cuenta ha sido desactivada.\n", name)
	if reason != "" {
		fmt.Fprintf(&b, "Motivo: %s\n", reason)
	}
	return m.send(ctx, email, name, "Cuenta desactivada", b.String())
}

func (m *TemplateMailer) send(ctx context.Context, to, name, subject, body string) error {
	if err := m.sender.Send(ctx, Message{To: to, ToName: name, Subject: subject, Text: body}); err != nil {
		return fmt.Errorf("send %q email: %w", subject, err)
	}
	return nil
}

// ResetLink appends the token to base as the "token" query parameter. An
// empty base yields the bare token.
func ResetLink(base, token string) string {
	if base == "" {
		return token
	}
	u, err := url.Parse(base)
	if err != nil {
		return base + "?token=" + url.QueryEscape(token)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}
