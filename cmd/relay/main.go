// Command relay runs the tag-based mail forwarding pipeline: it watches an
// IMAP mailbox, forwards matching messages to their configured recipients
// over SMTP, notifies senders of the outcome, and serves a small dashboard.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/illmade-knight/go-mail-relay/pkg/dash"
	"github.com/illmade-knight/go-mail-relay/pkg/dedup"
	"github.com/illmade-knight/go-mail-relay/pkg/delivery"
	"github.com/illmade-knight/go-mail-relay/pkg/history"
	"github.com/illmade-knight/go-mail-relay/pkg/imapsource"
	"github.com/illmade-knight/go-mail-relay/pkg/relaypipeline"
	"github.com/illmade-knight/go-mail-relay/pkg/report"
	"github.com/illmade-knight/go-mail-relay/pkg/rules"
	"github.com/illmade-knight/go-mail-relay/pkg/smtptransport"
)

func main() {
	configPath := flag.String("config", "relay.toml", "path to the TOML configuration file")
	flag.Parse()

	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load configuration.")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.Fatal().Err(err).Str("log_level", cfg.LogLevel).Msg("Invalid log level.")
	}
	logger = logger.Level(level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := buildDedupStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize dedup store.")
	}
	defer func() { _ = store.Close() }()

	source, err := imapsource.New(imapsource.Config{
		Addr:         cfg.Mailbox.Addr,
		Username:     cfg.Mailbox.Username,
		Password:     cfg.Mailbox.Password,
		Mailbox:      cfg.Mailbox.Mailbox,
		UseTLS:       cfg.Mailbox.TLS,
		PollInterval: cfg.PollInterval(),
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize IMAP source.")
	}

	transport, err := smtptransport.New(smtptransport.Config{
		Addr:                  cfg.Transport.Addr,
		Username:              cfg.Transport.Username,
		Password:              cfg.Transport.Password,
		UseTLS:                cfg.Transport.TLS,
		UseStartTLS:           cfg.Transport.StartTLS,
		TLSInsecureSkipVerify: cfg.Transport.InsecureSkipVerify,
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize SMTP transport.")
	}

	engine, err := delivery.NewEngine(delivery.EngineConfig{
		MaxAttempts:   cfg.Forward.MaxAttempts,
		RetryBackoff:  cfg.RetryBackoff(),
		EnvelopeFrom:  cfg.Transport.From,
		SubjectPrefix: cfg.Forward.SubjectPrefix,
	}, transport, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize delivery engine.")
	}

	reporter, err := report.NewReporter(cfg.Transport.From, transport, report.NewHTMLRenderer(), logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize outcome reporter.")
	}

	matcher, err := rules.NewMatcher(cfg.Forward.Rules)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize rule matcher.")
	}
	filter := rules.NewSenderFilter(cfg.Forward.AllowFrom)
	tasks := history.NewTaskLog(history.DefaultCapacity)

	service, err := relaypipeline.NewRelayService(source, store, filter, matcher, engine, reporter, tasks, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize relay service.")
	}

	var dashServer *dash.Server
	if cfg.HTTP.Start {
		dashServer, err = dash.NewServer(dash.Config{Addr: cfg.HTTP.Addr}, tasks, matcher, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to initialize dashboard server.")
		}
		if err := dashServer.Start(); err != nil {
			logger.Fatal().Err(err).Msg("Failed to start dashboard server.")
		}
	}

	if err := service.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start relay service.")
	}
	logger.Info().Msg("Mail relay running.")

	<-ctx.Done()
	logger.Info().Msg("Shutdown signal received.")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := service.Stop(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Relay service did not stop cleanly.")
	}
	if dashServer != nil {
		if err := dashServer.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("Dashboard server did not stop cleanly.")
		}
	}
	logger.Info().Msg("Mail relay stopped.")
}

// buildDedupStore constructs the configured dedup backend.
func buildDedupStore(ctx context.Context, cfg *Config, logger zerolog.Logger) (dedup.Store, error) {
	switch cfg.Dedup.Backend {
	case "redis":
		return dedup.NewRedisStore(ctx, &dedup.RedisConfig{
			Addr:     cfg.Dedup.Redis.Addr,
			Password: cfg.Dedup.Redis.Password,
			DB:       cfg.Dedup.Redis.DB,
		}, logger)
	case "firestore":
		client, err := dedup.NewFirestoreClient(ctx, cfg.Dedup.Firestore.ProjectID, cfg.Dedup.Firestore.CredentialsFile)
		if err != nil {
			return nil, err
		}
		return dedup.NewFirestoreStore(client, cfg.Dedup.Firestore.Collection)
	default:
		return dedup.NewFileStore(cfg.Dedup.Path, logger)
	}
}
