package smtptransport

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/emersion/go-message/mail"

	"github.com/illmade-knight/go-mail-relay/pkg/relaypipeline"
)

// buildMessage serializes an OutboundMessage into an RFC 5322 MIME message:
// a multipart/alternative body (text and/or HTML) plus any attachments.
func buildMessage(msg relaypipeline.OutboundMessage) ([]byte, error) {
	var buf bytes.Buffer

	var h mail.Header
	h.SetDate(time.Now())
	h.SetSubject(msg.Subject)
	h.SetAddressList("From", []*mail.Address{{Address: msg.From}})
	h.SetAddressList("To", []*mail.Address{{Address: msg.To}})

	mw, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("failed to create mail writer: %w", err)
	}

	iw, err := mw.CreateInline()
	if err != nil {
		return nil, fmt.Errorf("failed to create inline writer: %w", err)
	}
	if msg.TextBody != "" || msg.HTMLBody == "" {
		if err := writeInlinePart(iw, "text/plain", msg.TextBody); err != nil {
			return nil, err
		}
	}
	if msg.HTMLBody != "" {
		if err := writeInlinePart(iw, "text/html", msg.HTMLBody); err != nil {
			return nil, err
		}
	}
	if err := iw.Close(); err != nil {
		return nil, fmt.Errorf("failed to close inline writer: %w", err)
	}

	for _, att := range msg.Attachments {
		if err := writeAttachment(mw, att); err != nil {
			return nil, err
		}
	}

	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to close mail writer: %w", err)
	}
	return buf.Bytes(), nil
}

func writeInlinePart(iw *mail.InlineWriter, contentType, body string) error {
	var h mail.InlineHeader
	h.SetContentType(contentType, map[string]string{"charset": "utf-8"})
	w, err := iw.CreatePart(h)
	if err != nil {
		return fmt.Errorf("failed to create %s part: %w", contentType, err)
	}
	if _, err := io.WriteString(w, body); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to write %s part: %w", contentType, err)
	}
	return w.Close()
}

func writeAttachment(mw *mail.Writer, att relaypipeline.Attachment) error {
	var h mail.AttachmentHeader
	contentType := att.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h.SetContentType(contentType, nil)
	h.SetFilename(att.Filename)

	w, err := mw.CreateAttachment(h)
	if err != nil {
		return fmt.Errorf("failed to create attachment %s: %w", att.Filename, err)
	}
	if _, err := w.Write(att.Content); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to write attachment %s: %w", att.Filename, err)
	}
	return w.Close()
}
