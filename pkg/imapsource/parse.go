package imapsource

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-message/mail"
	"github.com/google/uuid"

	"github.com/illmade-knight/go-mail-relay/pkg/relaypipeline"
)

// toInbound converts a fetched message buffer into the pipeline's
// InboundMessage, wiring Ack to flag the message seen at the server.
func (s *Source) toInbound(buf *imapclient.FetchMessageBuffer, bodySection *imap.FetchItemBodySection) relaypipeline.InboundMessage {
	uid := buf.UID

	inbound := relaypipeline.InboundMessage{
		Ack: func() {
			if err := s.markSeen(uid); err != nil {
				s.logger.Warn().Err(err).Uint32("uid", uint32(uid)).Msg("Failed to flag message seen.")
			}
		},
		// Leaving the message unseen is the redelivery mechanism: the next
		// sweep picks it up again.
		Nack: func() {},
	}

	if buf.Envelope != nil {
		inbound.ID = buf.Envelope.MessageID
		inbound.Subject = buf.Envelope.Subject
		if len(buf.Envelope.From) > 0 {
			inbound.Sender = buf.Envelope.From[0].Addr()
		}
	}
	if inbound.ID == "" {
		inbound.ID = syntheticID()
	}

	if raw := buf.FindBodySection(bodySection); raw != nil {
		text, html, attachments := parseBody(raw)
		inbound.TextBody = text
		inbound.HTMLBody = html
		inbound.Attachments = attachments
	}
	return inbound
}

// syntheticID builds a fallback identifier for messages without a Message-ID
// header. Dedup for such messages is probabilistic: the same message
// re-fetched later gets a different id. An inherited weak guarantee, kept
// deliberately.
func syntheticID() string {
	return fmt.Sprintf("synthetic.%d.%s", time.Now().UnixNano(), uuid.NewString())
}

// parseBody parses a raw RFC 5322 message and extracts the text/plain body,
// text/html body, and attachments. A message that cannot be parsed as MIME
// is treated as plain text.
func parseBody(raw []byte) (textBody, htmlBody string, attachments []relaypipeline.Attachment) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return string(raw), "", nil
	}
	defer func() { _ = mr.Close() }()

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}

		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			contentType, _, _ := h.ContentType()
			body, readErr := io.ReadAll(part.Body)
			if readErr != nil {
				continue
			}
			switch contentType {
			case "text/plain":
				if textBody == "" {
					textBody = string(body)
				}
			case "text/html":
				if htmlBody == "" {
					htmlBody = string(body)
				}
			}
		case *mail.AttachmentHeader:
			filename, _ := h.Filename()
			contentType, _, _ := h.ContentType()
			content, readErr := io.ReadAll(part.Body)
			if readErr != nil {
				continue
			}
			attachments = append(attachments, relaypipeline.Attachment{
				Filename:    filename,
				ContentType: contentType,
				Content:     content,
			})
		}
	}
	return textBody, htmlBody, attachments
}
