// Package mail delivers transactional email: magic links and organization
// invitations.
package mail

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Message is a rendered email with a plain-text and an HTML body.
type Message struct {
	From    string
	To      string
	Subject string
	Text    string
	HTML    string

	// Link is the actionable URL embedded in the bodies.
	Link string
}

// Validate reports whether the message has the fields every transport needs.
func (m Message) Validate() error {
	switch {
	case strings.TrimSpace(m.To) == "":
		return errors.New("mail: recipient is required")
	case strings.TrimSpace(m.From) == "":
		return errors.New("mail: sender is required")
	case m.Text == "" && m.HTML == "":
		return errors.New("mail: body is required")
	}
	return nil
}

// Mailer delivers messages.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// FuncMailer adapts a function to the Mailer interface.
type FuncMailer func(ctx context.Context, msg Message) error

func (f FuncMailer) Send(ctx context.Context, msg Message) error { return f(ctx, msg) }

// LogMailer writes messages to the logger instead of sending them. It is
// only wired in development. The link is a bearer credential, so it is logged
// at debug level and never with the info entry.
type LogMailer struct {
	Logger *zap.Logger
}

func (m LogMailer) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mail: %w", err)
	}
	logger := m.Logger
	if logger == nil {
		logger = zap.L()
	}
	logger.Info("mail not sent (log transport)",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject))
	logger.Debug("mail link (log transport)", zap.String("link", msg.Link))
	return nil
}
