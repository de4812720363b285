// Package report turns delivery results into a notification for the original
// sender. Reporting is best-effort by design: delivery has already happened
// and been recorded, so a failed notification is logged, never propagated.
package report

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/illmade-knight/go-mail-relay/pkg/metrics"
	"github.com/illmade-knight/go-mail-relay/pkg/relaypipeline"
)

// Reporter implements relaypipeline.OutcomeReporter.
type Reporter struct {
	from      string
	transport relaypipeline.MailTransport
	renderer  relaypipeline.NotificationRenderer
	logger    zerolog.Logger
}

// NewReporter creates a Reporter that notifies senders from the given address.
func NewReporter(
	from string,
	transport relaypipeline.MailTransport,
	renderer relaypipeline.NotificationRenderer,
	logger zerolog.Logger,
) (*Reporter, error) {
	if from == "" {
		return nil, fmt.Errorf("notification sender address cannot be empty")
	}
	if transport == nil {
		return nil, fmt.Errorf("transport cannot be nil")
	}
	if renderer == nil {
		return nil, fmt.Errorf("renderer cannot be nil")
	}
	return &Reporter{
		from:      from,
		transport: transport,
		renderer:  renderer,
		logger:    logger.With().Str("component", "Reporter").Logger(),
	}, nil
}

// Report builds a ForwardReport, renders it, and sends the notification to
// the original sender. A message without a determinable sender gets no
// notification, and that is not an error. A failed send is logged and
// counted, nothing more.
func (r *Reporter) Report(ctx context.Context, msg relaypipeline.InboundMessage, results []relaypipeline.RecipientResult, elapsed time.Duration) {
	if msg.Sender == "" {
		r.logger.Debug().Str("msg_id", msg.ID).Msg("Message has no sender address, skipping notification.")
		return
	}

	fwdReport := relaypipeline.ForwardReport{
		Subject:     msg.Subject,
		Results:     results,
		Elapsed:     elapsed,
		CompletedAt: time.Now(),
	}
	subject, textBody, htmlBody := r.renderer.Render(fwdReport)

	notification := relaypipeline.OutboundMessage{
		From:     r.from,
		To:       msg.Sender,
		Subject:  subject,
		TextBody: textBody,
		HTMLBody: htmlBody,
	}

	if err := r.transport.Send(ctx, notification); err != nil {
		metrics.NotificationFailures.Inc()
		r.logger.Warn().Err(err).Str("msg_id", msg.ID).Str("sender", msg.Sender).
			Msg("Failed to send outcome notification, continuing.")
		return
	}
	r.logger.Debug().Str("msg_id", msg.ID).Str("sender", msg.Sender).Msg("Outcome notification sent.")
}
