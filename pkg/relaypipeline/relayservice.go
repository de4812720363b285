// Package relaypipeline orchestrates the mail relay: deduplication, sender
// authorization, rule matching, fan-out delivery, outcome reporting and task
// history, in that order, for each inbound message.
package relaypipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/illmade-knight/go-mail-relay/pkg/dedup"
	"github.com/illmade-knight/go-mail-relay/pkg/history"
	"github.com/illmade-knight/go-mail-relay/pkg/metrics"
	"github.com/illmade-knight/go-mail-relay/pkg/rules"
)

// RelayService runs the processing pipeline. Messages are handled one at a
// time, end to end; all concurrency lives inside the delivery step. The
// dedup store and the task log are the only shared mutable state, and both
// serialize their own writers, so the service stays correct even if a future
// caller runs several workers.
type RelayService struct {
	source   MailboxSource
	store    dedup.Store
	filter   *rules.SenderFilter
	matcher  *rules.Matcher
	engine   Deliverer
	reporter OutcomeReporter
	tasks    *history.TaskLog
	logger   zerolog.Logger
	wg       sync.WaitGroup
}

// NewRelayService creates the pipeline orchestrator. All collaborators are
// required except the reporter, which may be nil to disable notifications.
func NewRelayService(
	source MailboxSource,
	store dedup.Store,
	filter *rules.SenderFilter,
	matcher *rules.Matcher,
	engine Deliverer,
	reporter OutcomeReporter,
	tasks *history.TaskLog,
	logger zerolog.Logger,
) (*RelayService, error) {
	if source == nil {
		return nil, fmt.Errorf("mailbox source cannot be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("dedup store cannot be nil")
	}
	if filter == nil {
		return nil, fmt.Errorf("sender filter cannot be nil")
	}
	if matcher == nil {
		return nil, fmt.Errorf("rule matcher cannot be nil")
	}
	if engine == nil {
		return nil, fmt.Errorf("delivery engine cannot be nil")
	}
	if tasks == nil {
		return nil, fmt.Errorf("task log cannot be nil")
	}
	return &RelayService{
		source:   source,
		store:    store,
		filter:   filter,
		matcher:  matcher,
		engine:   engine,
		reporter: reporter,
		tasks:    tasks,
		logger:   logger.With().Str("service", "RelayService").Logger(),
	}, nil
}

// Start begins the service operation: it starts the mailbox source and the
// single processing worker.
func (s *RelayService) Start(ctx context.Context) error {
	s.logger.Info().Msg("Starting relay service...")

	if err := s.source.Start(ctx); err != nil {
		return fmt.Errorf("failed to start mailbox source: %w", err)
	}
	s.logger.Info().Msg("Mailbox source started.")

	s.wg.Add(1)
	go s.worker(ctx)

	s.logger.Info().Msg("Relay service started successfully.")
	return nil
}

// Stop gracefully shuts down the service: the source first so no new
// messages arrive, then the worker is drained.
func (s *RelayService) Stop(ctx context.Context) error {
	s.logger.Info().Msg("Stopping relay service...")

	if err := s.source.Stop(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("Error during mailbox source stop, continuing shutdown.")
	}

	workerDone := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(workerDone)
	}()

	select {
	case <-workerDone:
		s.logger.Info().Msg("Processing worker completed gracefully.")
	case <-ctx.Done():
		s.logger.Error().Err(ctx.Err()).Msg("Timeout waiting for processing worker to finish.")
		return ctx.Err()
	}

	s.logger.Info().Msg("Relay service stopped.")
	return nil
}

// worker is the single processing loop: one inbound message at a time.
func (s *RelayService) worker(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Processing worker shutting down due to context cancellation.")
			return
		case msg, ok := <-s.source.Messages():
			if !ok {
				s.logger.Info().Msg("Source channel closed, worker exiting.")
				return
			}
			s.processMessage(ctx, msg)
		}
	}
}

// processMessage runs the per-message state machine. Each branch is terminal.
func (s *RelayService) processMessage(ctx context.Context, msg InboundMessage) {
	log := s.logger.With().Str("msg_id", msg.ID).Logger()

	seen, err := s.store.Seen(ctx, msg.ID)
	if err != nil {
		log.Error().Err(err).Msg("Dedup lookup failed, Nacking for redelivery.")
		s.nack(msg)
		return
	}
	if seen {
		log.Debug().Msg("Message already processed, skipping.")
		metrics.MessagesProcessed.WithLabelValues("duplicate").Inc()
		s.ack(msg)
		return
	}

	if !s.filter.Allowed(msg.Sender) {
		log.Info().Str("sender", msg.Sender).Msg("Sender not on allow-list, dropping message.")
		if !s.markProcessed(ctx, msg, log) {
			return
		}
		metrics.MessagesProcessed.WithLabelValues("denied").Inc()
		s.ack(msg)
		return
	}

	rule, ok := s.matcher.Match(msg.Subject)
	if !ok {
		log.Debug().Str("subject", msg.Subject).Msg("No rule matched subject, not forwarding.")
		if !s.markProcessed(ctx, msg, log) {
			return
		}
		metrics.MessagesProcessed.WithLabelValues("no_match").Inc()
		s.ack(msg)
		return
	}

	log.Info().Str("tag", rule.Tag).Int("recipients", len(rule.Recipients)).Msg("Rule matched, delivering.")
	started := time.Now()
	results := s.engine.Deliver(ctx, msg, rule)
	elapsed := time.Since(started)
	metrics.ForwardDuration.Observe(elapsed.Seconds())

	task := buildTask(msg, rule, results)

	// The dedup marker is written after delivery on purpose: a crash during
	// delivery causes a duplicate forward on restart, which is preferred over
	// losing a message that failed mid-delivery and could never be retried.
	if !s.markProcessed(ctx, msg, log) {
		return
	}

	if s.reporter != nil {
		s.reporter.Report(ctx, msg, results, elapsed)
	}
	s.tasks.Append(task)

	metrics.MessagesProcessed.WithLabelValues("forwarded").Inc()
	log.Info().Str("status", string(task.Status)).Dur("elapsed", elapsed).Msg("Message forwarded.")
	s.ack(msg)
}

// markProcessed durably records the message id. On failure the message is
// Nacked for redelivery and false is returned: the append must complete
// before the message is treated as processed.
func (s *RelayService) markProcessed(ctx context.Context, msg InboundMessage, log zerolog.Logger) bool {
	if err := s.store.Mark(ctx, msg.ID); err != nil {
		log.Error().Err(err).Msg("Failed to persist dedup marker, Nacking for redelivery.")
		metrics.MessagesProcessed.WithLabelValues("persistence_error").Inc()
		s.nack(msg)
		return false
	}
	return true
}

func (s *RelayService) ack(msg InboundMessage) {
	if msg.Ack != nil {
		msg.Ack()
	}
}

func (s *RelayService) nack(msg InboundMessage) {
	if msg.Nack != nil {
		msg.Nack()
	}
}

// buildTask aggregates per-recipient results into one history record.
func buildTask(msg InboundMessage, rule rules.ForwardRule, results []RecipientResult) history.ForwardTask {
	failed := 0
	for _, res := range results {
		if !res.Success {
			failed++
		}
	}

	task := history.ForwardTask{
		Subject:    msg.Subject,
		Sender:     msg.Sender,
		Tag:        rule.Tag,
		Recipients: rule.Recipients,
		Status:     history.StatusSuccess,
	}
	if failed > 0 {
		task.Status = history.StatusFailed
		task.ErrorSummary = fmt.Sprintf("%d/%d failed", failed, len(results))
	}
	return task
}
