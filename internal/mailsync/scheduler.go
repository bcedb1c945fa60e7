package mailsync

import (
	"context"
	"time"

	"github.com/vdavid/threadsync/internal/models"
	"github.com/vdavid/threadsync/internal/store"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Scheduler is the periodic caller: every interval it syncs all active
// accounts with at most concurrency running at once.
type Scheduler struct {
	orchestrator *Orchestrator
	accounts     store.AccountStore
	interval     time.Duration
	concurrency  int
	options      Options
	logger       *zap.Logger
}

// NewScheduler creates a Scheduler.
func NewScheduler(orchestrator *Orchestrator, accounts store.AccountStore, interval time.Duration, concurrency int, options Options, logger *zap.Logger) *Scheduler {
	if concurrency <= 0 {
		concurrency = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		orchestrator: orchestrator,
		accounts:     accounts,
		interval:     interval,
		concurrency:  concurrency,
		options:      options,
		logger:       logger,
	}
}

// Run syncs once immediately and then on every tick until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.RunOnce(ctx); err != nil {
			s.logger.Error("Sync round failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce syncs every active account and returns one result per account, in
// the order ListActiveAccounts returned them.
func (s *Scheduler) RunOnce(ctx context.Context) ([]models.SyncResult, error) {
	accounts, err := s.accounts.ListActiveAccounts(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]models.SyncResult, len(accounts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, account := range accounts {
		g.Go(func() error {
			results[i] = s.orchestrator.SyncAccount(gctx, account.ID, s.options)
			return nil
		})
	}
	_ = g.Wait()

	var ingested, failed int
	for _, result := range results {
		ingested += result.NewMessageCount
		if !result.Success() {
			failed++
		}
	}
	s.logger.Info("Sync round finished",
		zap.Int("accounts", len(accounts)),
		zap.Int("failed", failed),
		zap.Int("new_messages", ingested))

	return results, nil
}
