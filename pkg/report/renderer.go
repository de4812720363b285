package report

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/k3a/html2text"

	"github.com/illmade-knight/go-mail-relay/pkg/relaypipeline"
)

// HTMLRenderer is the default NotificationRenderer. It authors the HTML body
// and derives the plain-text alternative from it, so the two never drift.
type HTMLRenderer struct{}

// NewHTMLRenderer creates the default renderer.
func NewHTMLRenderer() *HTMLRenderer {
	return &HTMLRenderer{}
}

// Render produces the notification subject and both body variants.
func (r *HTMLRenderer) Render(report relaypipeline.ForwardReport) (string, string, string) {
	total := len(report.Results)
	succeeded := report.Succeeded()

	var subject string
	if succeeded == total {
		subject = fmt.Sprintf("Forwarded: %s (%d/%d delivered)", report.Subject, succeeded, total)
	} else {
		subject = fmt.Sprintf("Forwarding incomplete: %s (%d/%d delivered)", report.Subject, succeeded, total)
	}

	var b strings.Builder
	b.WriteString("<html><body>")
	fmt.Fprintf(&b, "<p>Your message <b>%s</b> was forwarded to %d recipient(s), %d delivered.</p>",
		html.EscapeString(report.Subject), total, succeeded)
	b.WriteString("<ul>")
	for _, res := range report.Results {
		if res.Success {
			fmt.Fprintf(&b, "<li>%s: delivered (attempt %d)</li>",
				html.EscapeString(res.Recipient), res.Attempts)
		} else {
			fmt.Fprintf(&b, "<li>%s: failed after %d attempt(s): %s</li>",
				html.EscapeString(res.Recipient), res.Attempts, html.EscapeString(res.Error))
		}
	}
	b.WriteString("</ul>")
	fmt.Fprintf(&b, "<p>Completed %s in %s.</p>",
		report.CompletedAt.Format("2006-01-02 15:04:05 MST"), report.Elapsed.Round(time.Millisecond))
	b.WriteString("</body></html>")

	htmlBody := b.String()
	textBody := html2text.HTML2Text(htmlBody)
	return subject, textBody, htmlBody
}
