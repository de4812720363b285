package delivery_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/illmade-knight/go-mail-relay/pkg/delivery"
	"github.com/illmade-knight/go-mail-relay/pkg/relaypipeline"
	"github.com/illmade-knight/go-mail-relay/pkg/rules"
)

// transportFunc adapts a function to the MailTransport interface.
type transportFunc func(ctx context.Context, msg relaypipeline.OutboundMessage) error

func (f transportFunc) Send(ctx context.Context, msg relaypipeline.OutboundMessage) error {
	return f(ctx, msg)
}

// recordingTransport records every send attempt.
type recordingTransport struct {
	mu    sync.Mutex
	sent  []relaypipeline.OutboundMessage
	fails map[string]error // recipient -> permanent error, nil entry means succeed
}

func (r *recordingTransport) Send(_ context.Context, msg relaypipeline.OutboundMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, msg)
	if err, ok := r.fails[msg.To]; ok {
		return err
	}
	return nil
}

func (r *recordingTransport) sentTo(recipient string) []relaypipeline.OutboundMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []relaypipeline.OutboundMessage
	for _, msg := range r.sent {
		if msg.To == recipient {
			out = append(out, msg)
		}
	}
	return out
}

func newTestEngine(t *testing.T, cfg delivery.EngineConfig, transport relaypipeline.MailTransport) *delivery.Engine {
	t.Helper()
	if cfg.EnvelopeFrom == "" {
		cfg.EnvelopeFrom = "relay@x.com"
	}
	if cfg.RetryBackoff == 0 {
		cfg.RetryBackoff = 5 * time.Millisecond
	}
	engine, err := delivery.NewEngine(cfg, transport, zerolog.Nop())
	require.NoError(t, err)
	return engine
}

func testMessage() relaypipeline.InboundMessage {
	return relaypipeline.InboundMessage{
		ID:       "msg-1",
		Subject:  "Order photos [PHOTO]",
		Sender:   "customer@example.com",
		TextBody: "see attached",
	}
}

func TestEngine_Deliver_AllSucceed(t *testing.T) {
	// Arrange
	transport := &recordingTransport{}
	engine := newTestEngine(t, delivery.EngineConfig{}, transport)
	rule := rules.ForwardRule{Tag: "[PHOTO]", Recipients: []string{"a@x.com", "b@x.com"}}

	// Act
	results := engine.Deliver(context.Background(), testMessage(), rule)

	// Assert
	require.Len(t, results, 2)
	for i, recipient := range rule.Recipients {
		assert.Equal(t, recipient, results[i].Recipient)
		assert.True(t, results[i].Success)
		assert.Equal(t, 1, results[i].Attempts)
		assert.Empty(t, results[i].Error)
	}
}

func TestEngine_Deliver_ExhaustsRetriesAndKeepsLastError(t *testing.T) {
	// Arrange
	var attempts int
	var mu sync.Mutex
	transport := transportFunc(func(_ context.Context, _ relaypipeline.OutboundMessage) error {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		return errors.New("mailbox unavailable")
	})
	backoff := 10 * time.Millisecond
	engine := newTestEngine(t, delivery.EngineConfig{MaxAttempts: 3, RetryBackoff: backoff}, transport)
	rule := rules.ForwardRule{Tag: "[PHOTO]", Recipients: []string{"a@x.com"}}

	// Act
	started := time.Now()
	results := engine.Deliver(context.Background(), testMessage(), rule)
	elapsed := time.Since(started)

	// Assert
	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.Equal(t, 3, results[0].Attempts)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, "mailbox unavailable", results[0].Error)
	// Linear backoff: waits of 1*backoff and 2*backoff between the attempts.
	assert.GreaterOrEqual(t, elapsed, 3*backoff)
}

func TestEngine_Deliver_OneFailureDoesNotAffectOthers(t *testing.T) {
	// Arrange
	transport := &recordingTransport{
		fails: map[string]error{"b@x.com": errors.New("user unknown")},
	}
	engine := newTestEngine(t, delivery.EngineConfig{MaxAttempts: 3}, transport)
	rule := rules.ForwardRule{Tag: "[PHOTO]", Recipients: []string{"a@x.com", "b@x.com"}}

	// Act
	results := engine.Deliver(context.Background(), testMessage(), rule)

	// Assert
	require.Len(t, results, 2)

	assert.True(t, results[0].Success)
	assert.Equal(t, 1, results[0].Attempts)
	assert.Len(t, transport.sentTo("a@x.com"), 1, "successful recipient must not be retried")

	assert.False(t, results[1].Success)
	assert.Equal(t, 3, results[1].Attempts)
	assert.Equal(t, "user unknown", results[1].Error)
	assert.Len(t, transport.sentTo("b@x.com"), 3)
}

func TestEngine_Deliver_RecipientsRunConcurrently(t *testing.T) {
	// Arrange: each send blocks until every recipient's send has started. If
	// sends ran sequentially, the first would time out waiting for the second.
	const recipients = 3
	arrivals := make(chan struct{}, recipients)
	release := make(chan struct{})
	var once sync.Once

	transport := transportFunc(func(_ context.Context, _ relaypipeline.OutboundMessage) error {
		arrivals <- struct{}{}
		if len(arrivals) == recipients {
			once.Do(func() { close(release) })
		}
		select {
		case <-release:
			return nil
		case <-time.After(2 * time.Second):
			return errors.New("timed out waiting for concurrent sends")
		}
	})
	engine := newTestEngine(t, delivery.EngineConfig{MaxAttempts: 1}, transport)
	rule := rules.ForwardRule{Tag: "[PHOTO]", Recipients: []string{"a@x.com", "b@x.com", "c@x.com"}}

	// Act
	results := engine.Deliver(context.Background(), testMessage(), rule)

	// Assert
	require.Len(t, results, recipients)
	for _, result := range results {
		assert.True(t, result.Success, "recipient %s blocked on another's send: %s", result.Recipient, result.Error)
	}
}

func TestEngine_Deliver_AppliesSubjectPrefixAndEnvelope(t *testing.T) {
	// Arrange
	transport := &recordingTransport{}
	engine := newTestEngine(t, delivery.EngineConfig{
		EnvelopeFrom:  "relay@x.com",
		SubjectPrefix: "[FWD] ",
	}, transport)
	rule := rules.ForwardRule{Tag: "[PHOTO]", Recipients: []string{"a@x.com"}}
	msg := testMessage()
	msg.Attachments = []relaypipeline.Attachment{{Filename: "pic.jpg", ContentType: "image/jpeg", Content: []byte{1, 2}}}

	// Act
	engine.Deliver(context.Background(), msg, rule)

	// Assert
	sent := transport.sentTo("a@x.com")
	require.Len(t, sent, 1)
	assert.Equal(t, "relay@x.com", sent[0].From)
	assert.Equal(t, "[FWD] Order photos [PHOTO]", sent[0].Subject)
	assert.Equal(t, msg.TextBody, sent[0].TextBody)
	assert.Equal(t, msg.Attachments, sent[0].Attachments)
}

func TestNewEngine_Validation(t *testing.T) {
	// Act & Assert
	_, err := delivery.NewEngine(delivery.EngineConfig{EnvelopeFrom: "relay@x.com"}, nil, zerolog.Nop())
	require.Error(t, err)

	_, err = delivery.NewEngine(delivery.EngineConfig{}, &recordingTransport{}, zerolog.Nop())
	require.Error(t, err)
}
