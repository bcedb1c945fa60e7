package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/vdavid/threadsync/internal/config"
	"github.com/vdavid/threadsync/internal/conversation"
	"github.com/vdavid/threadsync/internal/crypto"
	"github.com/vdavid/threadsync/internal/db"
	"github.com/vdavid/threadsync/internal/imap"
	"github.com/vdavid/threadsync/internal/logger"
	"github.com/vdavid/threadsync/internal/mailsync"
	"github.com/vdavid/threadsync/internal/metrics"
	"github.com/vdavid/threadsync/internal/normalize"
	"github.com/vdavid/threadsync/internal/reply"
	"github.com/vdavid/threadsync/internal/smtp"
	"github.com/vdavid/threadsync/internal/transport"
	"go.uber.org/zap"
)

// app holds everything a command needs, built from the environment.
type app struct {
	cfg          *config.Config
	logger       *zap.Logger
	pool         *pgxpool.Pool
	store        *db.PostgresStore
	encryptor    *crypto.Encryptor
	imapPool     *imap.Pool
	registry     *prometheus.Registry
	aggregator   *conversation.Aggregator
	orchestrator *mailsync.Orchestrator
	composer     *reply.Composer
}

// newApp loads config, connects to the database and wires the engine.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.NewConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Development: cfg.Environment == "development",
		LogFile:     cfg.LogFile,
		Compress:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	encryptor, err := crypto.NewEncryptor(cfg.EncryptionKeyBase64)
	if err != nil {
		return nil, fmt.Errorf("failed to create encryptor: %w", err)
	}

	pool, err := db.NewConnection(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	st := db.NewStore(pool)
	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	imapPool := imap.NewPool(
		imap.WithMaxWorkers(cfg.IMAPMaxWorkers),
		imap.WithTLS(cfg.IMAPUseTLS),
		imap.WithLogger(log.Named("imap")),
	)
	mailTransport := transport.New(
		imap.NewFetcher(imapPool, log.Named("imap")),
		smtp.NewSender(cfg.SMTPUseTLS, log.Named("smtp")),
		encryptor,
	)

	aggregator := conversation.NewAggregator(st,
		conversation.WithLogger(log.Named("conversation")),
		conversation.WithMetrics(m))

	orchestrator := mailsync.NewOrchestrator(st, mailTransport, normalize.New(), aggregator,
		mailsync.WithLogger(log.Named("sync")),
		mailsync.WithMetrics(m),
		mailsync.WithBatchSize(cfg.SyncBatchSize))

	composer := reply.NewComposer(st, mailTransport, aggregator,
		reply.WithLogger(log.Named("reply")),
		reply.WithMetrics(m))

	return &app{
		cfg:          cfg,
		logger:       log,
		pool:         pool,
		store:        st,
		encryptor:    encryptor,
		imapPool:     imapPool,
		registry:     registry,
		aggregator:   aggregator,
		orchestrator: orchestrator,
		composer:     composer,
	}, nil
}

// Close releases connections and flushes the logger.
func (a *app) Close() {
	a.imapPool.Close()
	db.CloseConnection(a.pool)
	_ = a.logger.Sync()
}

func outputJSON(v any) error {
	return writeJSON(os.Stdout, v)
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
