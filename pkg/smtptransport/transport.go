// Package smtptransport implements the outbound MailTransport over SMTP.
package smtptransport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/rs/zerolog"

	"github.com/illmade-knight/go-mail-relay/pkg/relaypipeline"
)

// SendError wraps a transport error with information about whether it is
// permanent. Permanent errors (5xx SMTP codes) will not succeed on retry;
// temporary errors (4xx codes, network errors) may.
type SendError struct {
	Err       error
	Permanent bool
}

func (e *SendError) Error() string {
	if e.Permanent {
		return fmt.Sprintf("permanent failure: %v", e.Err)
	}
	return fmt.Sprintf("temporary failure: %v", e.Err)
}

func (e *SendError) Unwrap() error {
	return e.Err
}

// IsPermanentError reports whether an error is a permanent SMTP failure.
// Network and connection errors are treated as temporary.
func IsPermanentError(err error) bool {
	if err == nil {
		return false
	}
	var sendErr *SendError
	if errors.As(err, &sendErr) {
		return sendErr.Permanent
	}
	var smtpErr *smtp.SMTPError
	if errors.As(err, &smtpErr) {
		return !smtpErr.Temporary()
	}
	return false
}

// Config holds the configuration for the SMTP transport.
type Config struct {
	// Addr is the relay host in host:port form.
	Addr     string
	Username string
	Password string
	// UseTLS selects a direct TLS connection; UseStartTLS upgrades a plain
	// connection. With neither set the connection stays plain.
	UseTLS      bool
	UseStartTLS bool
	// TLSInsecureSkipVerify disables certificate verification. Test setups only.
	TLSInsecureSkipVerify bool
}

// Transport sends mail through a single configured SMTP relay. A fresh
// connection is dialed per message; one Send call is one delivery attempt.
type Transport struct {
	cfg    Config
	logger zerolog.Logger
}

// New creates an SMTP Transport.
func New(cfg Config, logger zerolog.Logger) (*Transport, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("smtp relay address cannot be empty")
	}
	return &Transport{
		cfg:    cfg,
		logger: logger.With().Str("component", "SMTPTransport").Str("relay", cfg.Addr).Logger(),
	}, nil
}

// Send constructs the MIME message and submits it to the relay. The returned
// error, when non-nil, is a *SendError classifying the failure.
func (t *Transport) Send(ctx context.Context, msg relaypipeline.OutboundMessage) error {
	if err := ctx.Err(); err != nil {
		return &SendError{Err: err, Permanent: false}
	}

	raw, err := buildMessage(msg)
	if err != nil {
		// A message we cannot serialize will never send.
		return &SendError{Err: fmt.Errorf("failed to build message: %w", err), Permanent: true}
	}

	c, err := t.dial()
	if err != nil {
		return &SendError{Err: err, Permanent: false}
	}
	defer func() { _ = c.Close() }()

	if t.cfg.Username != "" {
		if err := c.Auth(sasl.NewPlainClient("", t.cfg.Username, t.cfg.Password)); err != nil {
			return &SendError{Err: fmt.Errorf("failed to authenticate: %w", err), Permanent: IsPermanentError(err)}
		}
	}

	if err := c.Mail(msg.From, nil); err != nil {
		return &SendError{Err: fmt.Errorf("failed to set sender: %w", err), Permanent: IsPermanentError(err)}
	}
	if err := c.Rcpt(msg.To, nil); err != nil {
		return &SendError{Err: fmt.Errorf("failed to set recipient: %w", err), Permanent: IsPermanentError(err)}
	}

	wc, err := c.Data()
	if err != nil {
		return &SendError{Err: fmt.Errorf("failed to start data: %w", err), Permanent: IsPermanentError(err)}
	}
	if _, err := wc.Write(raw); err != nil {
		// Close anyway to send the final dot.
		_ = wc.Close()
		return &SendError{Err: fmt.Errorf("failed to write message: %w", err), Permanent: false}
	}
	if err := wc.Close(); err != nil {
		return &SendError{Err: fmt.Errorf("failed to close data writer: %w", err), Permanent: IsPermanentError(err)}
	}

	// Quit errors do not affect delivery; the message is already accepted.
	if err := c.Quit(); err != nil {
		t.logger.Warn().Err(err).Msg("Failed to send QUIT after accepted delivery.")
	}

	t.logger.Debug().Str("to", msg.To).Msg("Message accepted by relay.")
	return nil
}

// dial opens a connection to the relay according to the TLS configuration.
func (t *Transport) dial() (*smtp.Client, error) {
	tlsConfig := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: t.cfg.TLSInsecureSkipVerify,
	}

	switch {
	case t.cfg.UseTLS:
		c, err := smtp.DialTLS(t.cfg.Addr, tlsConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to SMTP relay with TLS: %w", err)
		}
		return c, nil
	case t.cfg.UseStartTLS:
		c, err := smtp.DialStartTLS(t.cfg.Addr, tlsConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to SMTP relay with STARTTLS: %w", err)
		}
		return c, nil
	default:
		c, err := smtp.Dial(t.cfg.Addr)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to SMTP relay: %w", err)
		}
		return c, nil
	}
}

var _ relaypipeline.MailTransport = (*Transport)(nil)
