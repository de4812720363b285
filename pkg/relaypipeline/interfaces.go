package relaypipeline

import (
	"context"
	"time"

	"github.com/illmade-knight/go-mail-relay/pkg/rules"
)

// ====================================================================================
// This file defines the collaborator contracts for the relay pipeline: the
// mailbox the pipeline reads from, the transport it sends through, and the
// pluggable delivery and reporting stages.
// ====================================================================================

// --- Stage 1: Source ---

// MailboxSource defines the interface for an inbound mail source (e.g. an
// IMAP mailbox). It is responsible for fetching messages and handing them off
// to the pipeline.
type MailboxSource interface {
	// Messages returns a read-only channel from which the pipeline receives
	// inbound messages.
	Messages() <-chan InboundMessage
	// Start begins the retrieval process (e.g. the IMAP poll loop).
	Start(ctx context.Context) error
	// Stop gracefully ceases retrieval and waits for background tasks to finish.
	Stop(ctx context.Context) error
	// Done returns a channel that is closed when the source has completely
	// shut down.
	Done() <-chan struct{}
}

// --- Stage 2: Delivery ---

// Deliverer fans one message out to every recipient of a matched rule and
// returns one RecipientResult per recipient. Implementations must not let one
// recipient's failure affect another's attempts or result.
type Deliverer interface {
	Deliver(ctx context.Context, msg InboundMessage, rule rules.ForwardRule) []RecipientResult
}

// --- Stage 3: Reporting ---

// OutcomeReporter builds a structured report from delivery results and sends
// it to the original sender. Reporting is best-effort: implementations log
// failures but never propagate them.
type OutcomeReporter interface {
	Report(ctx context.Context, msg InboundMessage, results []RecipientResult, elapsed time.Duration)
}

// NotificationRenderer produces the subject and text/HTML bodies of an
// outcome notification. Pure formatting, no state.
type NotificationRenderer interface {
	Render(report ForwardReport) (subject, textBody, htmlBody string)
}

// --- Transport ---

// MailTransport accepts a constructed message and either confirms acceptance
// or fails with a transport error. A single call is one delivery attempt;
// retry policy lives in the Deliverer.
type MailTransport interface {
	Send(ctx context.Context, msg OutboundMessage) error
}
