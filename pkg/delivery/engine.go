// Package delivery sends one message to every recipient of a matched rule.
// Recipient sends run concurrently and each carries its own bounded retry
// sequence; no recipient's outcome depends on another's.
package delivery

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/illmade-knight/go-mail-relay/pkg/metrics"
	"github.com/illmade-knight/go-mail-relay/pkg/relaypipeline"
	"github.com/illmade-knight/go-mail-relay/pkg/rules"
)

// EngineConfig holds configuration for the delivery Engine.
type EngineConfig struct {
	// MaxAttempts bounds the sequential send attempts per recipient.
	MaxAttempts int
	// RetryBackoff is the base wait between attempts; the wait grows
	// linearly, backoff * attemptNumber (1s, 2s, 3s, ... by default).
	RetryBackoff time.Duration
	// EnvelopeFrom is the envelope sender of forwarded copies.
	EnvelopeFrom string
	// SubjectPrefix, when set, is prepended verbatim to forwarded subjects.
	SubjectPrefix string
}

// Engine implements relaypipeline.Deliverer over a MailTransport.
type Engine struct {
	cfg       EngineConfig
	transport relaypipeline.MailTransport
	logger    zerolog.Logger
}

// NewEngine creates a delivery Engine. MaxAttempts defaults to 3 and
// RetryBackoff to one second when unset.
func NewEngine(cfg EngineConfig, transport relaypipeline.MailTransport, logger zerolog.Logger) (*Engine, error) {
	if transport == nil {
		return nil, fmt.Errorf("transport cannot be nil")
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = time.Second
	}
	if cfg.EnvelopeFrom == "" {
		return nil, fmt.Errorf("envelope sender cannot be empty")
	}
	return &Engine{
		cfg:       cfg,
		transport: transport,
		logger:    logger.With().Str("component", "DeliveryEngine").Logger(),
	}, nil
}

// Deliver fans the message out to every recipient of the rule concurrently
// and waits for the slowest recipient's full retry sequence before returning.
// The returned slice holds exactly one result per recipient, in rule order.
func (e *Engine) Deliver(ctx context.Context, msg relaypipeline.InboundMessage, rule rules.ForwardRule) []relaypipeline.RecipientResult {
	results := make([]relaypipeline.RecipientResult, len(rule.Recipients))

	var wg sync.WaitGroup
	wg.Add(len(rule.Recipients))
	for i, recipient := range rule.Recipients {
		go func(slot int, recipient string) {
			defer wg.Done()
			results[slot] = e.sendWithRetry(ctx, msg, recipient)
		}(i, recipient)
	}
	wg.Wait()

	for _, result := range results {
		if result.Success {
			metrics.RecipientOutcomes.WithLabelValues("success").Inc()
		} else {
			metrics.RecipientOutcomes.WithLabelValues("failed").Inc()
		}
	}
	return results
}

// sendWithRetry attempts delivery to a single recipient, sleeping a linearly
// growing backoff between failed attempts. The sleep suspends only this
// recipient's goroutine. There is no abort path: once started, the sequence
// runs to completion.
func (e *Engine) sendWithRetry(ctx context.Context, msg relaypipeline.InboundMessage, recipient string) relaypipeline.RecipientResult {
	out := relaypipeline.OutboundMessage{
		From:        e.cfg.EnvelopeFrom,
		To:          recipient,
		Subject:     e.cfg.SubjectPrefix + msg.Subject,
		TextBody:    msg.TextBody,
		HTMLBody:    msg.HTMLBody,
		Attachments: msg.Attachments,
	}

	var lastErr error
	for attempt := 1; attempt <= e.cfg.MaxAttempts; attempt++ {
		err := e.transport.Send(ctx, out)
		if err == nil {
			metrics.DeliveryAttempts.WithLabelValues("success").Inc()
			e.logger.Debug().Str("recipient", recipient).Int("attempt", attempt).Msg("Delivery succeeded.")
			return relaypipeline.RecipientResult{Recipient: recipient, Success: true, Attempts: attempt}
		}

		metrics.DeliveryAttempts.WithLabelValues("failure").Inc()
		lastErr = err
		e.logger.Warn().Err(err).Str("recipient", recipient).Int("attempt", attempt).
			Int("max_attempts", e.cfg.MaxAttempts).Msg("Delivery attempt failed.")

		if attempt < e.cfg.MaxAttempts {
			time.Sleep(e.cfg.RetryBackoff * time.Duration(attempt))
		}
	}

	e.logger.Error().Err(lastErr).Str("recipient", recipient).Msg("Delivery failed after exhausting retries.")
	return relaypipeline.RecipientResult{
		Recipient: recipient,
		Success:   false,
		Attempts:  e.cfg.MaxAttempts,
		Error:     lastErr.Error(),
	}
}
