// File: internal/mailer/mailer.go
package mailer

import (
	"context"

	"identity_backend/internal/config"

	"go.uber.org/zap"
)

// Template names for the messages this service sends.
const (
	TemplateEmailVerification = "email_verification"
	TemplatePasswordReset     = "password_reset"
)

// Mailer accepts a template name, recipient, and variable map; delivery
// happens out-of-band and its mechanics live outside this service.
type Mailer interface {
	Send(ctx context.Context, template, to string, vars map[string]string) error
}

// LogMailer is the development implementation: it records every message with
// the structured logger instead of delivering it.
type LogMailer struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewLogMailer creates a new logging mailer.
func NewLogMailer(cfg *config.Config, logger *zap.Logger) *LogMailer {
	return &LogMailer{cfg: cfg, logger: logger.Named("Mailer")}
}

var _ Mailer = (*LogMailer)(nil)

func (m *LogMailer) Send(ctx context.Context, template, to string, vars map[string]string) error {
	m.logger.Info("Outbound mail",
		zap.String("template", template),
		zap.String("from", m.cfg.MailFromAddress),
		zap.String("to", to),
		zap.Any("vars", vars),
	)
	return nil
}
