// Package imapsource implements the inbound MailboxSource over IMAP. The
// source polls a mailbox for unseen messages, parses them, and hands them to
// the pipeline; a message is flagged \Seen at the server only when the
// pipeline Acks it, so every unseen message is delivered at least once even
// across reconnect cycles.
package imapsource

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/rs/zerolog"

	"github.com/illmade-knight/go-mail-relay/pkg/relaypipeline"
)

// Config holds the configuration for the IMAP source.
type Config struct {
	// Addr is the IMAP server in host:port form.
	Addr     string
	Username string
	Password string
	// Mailbox defaults to INBOX.
	Mailbox string
	// UseTLS selects a direct TLS connection; otherwise STARTTLS is used.
	UseTLS bool
	// PollInterval is the wait between mailbox sweeps. Defaults to 30s.
	PollInterval time.Duration
	// ChannelBuffer sizes the outbound message channel. Defaults to 16.
	ChannelBuffer int
}

// Source is a polling MailboxSource. Each sweep dials a fresh connection, so
// a dropped server connection heals on the next cycle without state.
type Source struct {
	cfg        Config
	logger     zerolog.Logger
	outputChan chan relaypipeline.InboundMessage
	doneChan   chan struct{}
	stopOnce   sync.Once
	cancelPoll context.CancelFunc
	wg         sync.WaitGroup
}

// New creates an IMAP Source.
func New(cfg Config, logger zerolog.Logger) (*Source, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("imap server address cannot be empty")
	}
	if cfg.Username == "" {
		return nil, fmt.Errorf("imap username cannot be empty")
	}
	if cfg.Mailbox == "" {
		cfg.Mailbox = "INBOX"
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}
	if cfg.ChannelBuffer <= 0 {
		cfg.ChannelBuffer = 16
	}
	return &Source{
		cfg:        cfg,
		logger:     logger.With().Str("component", "IMAPSource").Str("mailbox", cfg.Mailbox).Logger(),
		outputChan: make(chan relaypipeline.InboundMessage, cfg.ChannelBuffer),
		doneChan:   make(chan struct{}),
	}, nil
}

// Messages returns the read-only channel of inbound messages.
func (s *Source) Messages() <-chan relaypipeline.InboundMessage {
	return s.outputChan
}

// Start begins the poll loop.
func (s *Source) Start(ctx context.Context) error {
	s.logger.Info().Str("server", s.cfg.Addr).Msg("Starting IMAP poll loop...")
	pollCtx, cancel := context.WithCancel(ctx)
	s.cancelPoll = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(s.outputChan)
		defer close(s.doneChan)
		defer s.logger.Info().Msg("IMAP poll loop stopped.")

		for {
			if err := s.sweep(pollCtx); err != nil && pollCtx.Err() == nil {
				s.logger.Warn().Err(err).Msg("Mailbox sweep failed, will retry next cycle.")
			}
			select {
			case <-pollCtx.Done():
				return
			case <-time.After(s.cfg.PollInterval):
			}
		}
	}()
	return nil
}

// Stop gracefully ceases polling and waits for the loop to exit.
func (s *Source) Stop(ctx context.Context) error {
	var err error
	s.stopOnce.Do(func() {
		s.logger.Info().Msg("Stopping IMAP source...")
		if s.cancelPoll != nil {
			s.cancelPoll()
		}
		select {
		case <-s.doneChan:
			s.logger.Info().Msg("IMAP poll loop confirmed stopped.")
		case <-ctx.Done():
			err = ctx.Err()
			s.logger.Error().Msg("Timeout waiting for IMAP poll loop to stop.")
		}
	})
	return err
}

// Done returns a channel closed when the source has fully shut down.
func (s *Source) Done() <-chan struct{} {
	return s.doneChan
}

// connect dials and authenticates a fresh IMAP connection. The caller is
// responsible for logging out.
func (s *Source) connect() (*imapclient.Client, error) {
	var client *imapclient.Client
	var err error

	if s.cfg.UseTLS {
		client, err = imapclient.DialTLS(s.cfg.Addr, nil)
	} else {
		client, err = imapclient.DialStartTLS(s.cfg.Addr, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("connecting to IMAP %s: %w", s.cfg.Addr, err)
	}

	if err := client.Login(s.cfg.Username, s.cfg.Password).Wait(); err != nil {
		_ = client.Logout().Wait()
		return nil, fmt.Errorf("authentication failed for %s: %w", s.cfg.Username, err)
	}
	return client, nil
}

// sweep fetches every unseen message in the mailbox and emits it.
func (s *Source) sweep(ctx context.Context) error {
	client, err := s.connect()
	if err != nil {
		return err
	}
	defer func() { _ = client.Logout().Wait() }()

	if _, err := client.Select(s.cfg.Mailbox, nil).Wait(); err != nil {
		return fmt.Errorf("selecting %s: %w", s.cfg.Mailbox, err)
	}

	criteria := &imap.SearchCriteria{
		NotFlag: []imap.Flag{imap.FlagSeen},
	}
	searchData, err := client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return fmt.Errorf("searching unseen messages: %w", err)
	}

	uids := searchData.AllUIDs()
	if len(uids) == 0 {
		return nil
	}
	s.logger.Debug().Int("unseen", len(uids)).Msg("Fetching unseen messages.")

	bodySection := &imap.FetchItemBodySection{Peek: true}
	fetchOpts := &imap.FetchOptions{
		Envelope:    true,
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{bodySection},
	}

	fetchCmd := client.Fetch(imap.UIDSetNum(uids...), fetchOpts)
	defer fetchCmd.Close()

	for {
		msg := fetchCmd.Next()
		if msg == nil {
			break
		}
		buf, err := msg.Collect()
		if err != nil {
			s.logger.Warn().Err(err).Msg("Failed to collect message data, skipping.")
			continue
		}

		inbound := s.toInbound(buf, bodySection)
		select {
		case s.outputChan <- inbound:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if err := fetchCmd.Close(); err != nil {
		return fmt.Errorf("fetching messages: %w", err)
	}
	return nil
}

// markSeen flags a message \Seen over a fresh short-lived connection. Called
// from the pipeline's Ack, which may run long after the sweep connection is
// gone.
func (s *Source) markSeen(uid imap.UID) error {
	client, err := s.connect()
	if err != nil {
		return err
	}
	defer func() { _ = client.Logout().Wait() }()

	if _, err := client.Select(s.cfg.Mailbox, nil).Wait(); err != nil {
		return fmt.Errorf("selecting %s: %w", s.cfg.Mailbox, err)
	}

	storeCmd := client.Store(imap.UIDSetNum(uid), &imap.StoreFlags{
		Op:     imap.StoreFlagsAdd,
		Silent: true,
		Flags:  []imap.Flag{imap.FlagSeen},
	}, nil)
	return storeCmd.Close()
}
