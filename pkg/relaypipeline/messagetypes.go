package relaypipeline

import (
	"time"
)

// InboundMessage is the canonical, internal representation of one email pulled
// from the mailbox source. It is owned by the pipeline for the duration of a
// single run and is never mutated after creation.
type InboundMessage struct {
	// ID is the stable identifier used for deduplication. Sources synthesize
	// one when the underlying message carries no Message-ID header.
	ID string

	// Subject is the decoded subject line, matched against forwarding rules.
	Subject string

	// Sender is the address of the original sender, used for the access
	// filter and as the destination of the outcome notification.
	Sender string

	// TextBody and HTMLBody carry the message content. Either may be empty.
	TextBody string
	HTMLBody string

	// Attachments are passed through to forwarded copies unchanged.
	Attachments []Attachment

	// Ack signals the source that the message has been fully handled and
	// should not be delivered again.
	Ack func()

	// Nack signals the source that handling failed and the message should be
	// redelivered on a later cycle.
	Nack func()
}

// Attachment is a single file carried by a message.
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// OutboundMessage is a fully constructed message handed to a MailTransport.
type OutboundMessage struct {
	From        string
	To          string
	Subject     string
	TextBody    string
	HTMLBody    string
	Attachments []Attachment
}

// RecipientResult is the outcome of delivering one message to one recipient,
// after all retry attempts. Exactly one result exists per recipient per
// message regardless of how many attempts were made.
type RecipientResult struct {
	Recipient string `json:"recipient"`
	Success   bool   `json:"success"`
	Attempts  int    `json:"attempts"`
	// Error holds the last attempt's error message when Success is false.
	Error string `json:"error,omitempty"`
}

// ForwardReport is the structured outcome of one forwarded message, handed to
// a NotificationRenderer for formatting.
type ForwardReport struct {
	Subject     string
	Results     []RecipientResult
	Elapsed     time.Duration
	CompletedAt time.Time
}

// Succeeded returns the number of successful recipient results.
func (r ForwardReport) Succeeded() int {
	n := 0
	for _, res := range r.Results {
		if res.Success {
			n++
		}
	}
	return n
}

// Failed returns the number of failed recipient results.
func (r ForwardReport) Failed() int {
	return len(r.Results) - r.Succeeded()
}
