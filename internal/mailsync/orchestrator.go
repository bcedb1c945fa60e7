// Package mailsync brings an account's stored mail up to date with its inbox.
package mailsync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vdavid/threadsync/internal/conversation"
	"github.com/vdavid/threadsync/internal/mailbox"
	"github.com/vdavid/threadsync/internal/metrics"
	"github.com/vdavid/threadsync/internal/models"
	"github.com/vdavid/threadsync/internal/normalize"
	"github.com/vdavid/threadsync/internal/store"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// DefaultBatchSize caps how many messages one SyncAccount call fetches when
// the caller does not say.
const DefaultBatchSize = 10

// Options tune a single SyncAccount call.
type Options struct {
	// MaxMessages caps the fetch. Zero or less means the orchestrator's batch size.
	MaxMessages int
	// Since bounds the first sync of an account. It is raised to the account's
	// creation time when earlier, and ignored once a cursor exists.
	Since time.Time
}

// Orchestrator runs the fetch, normalize, dedup, aggregate and persist
// pipeline for one account at a time.
type Orchestrator struct {
	store      store.Store
	transport  mailbox.Transport
	normalizer *normalize.Normalizer
	aggregator *conversation.Aggregator
	logger     *zap.Logger
	metrics    *metrics.Metrics
	now        func() time.Time
	batchSize  int

	inflight singleflight.Group
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithClock sets the clock used for lastSyncAt and error timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithBatchSize sets the default fetch cap.
func WithBatchSize(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.batchSize = n
		}
	}
}

// NewOrchestrator wires the pipeline together.
func NewOrchestrator(st store.Store, transport mailbox.Transport, normalizer *normalize.Normalizer, aggregator *conversation.Aggregator, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:      st,
		transport:  transport,
		normalizer: normalizer,
		aggregator: aggregator,
		logger:     zap.NewNop(),
		now:        time.Now,
		batchSize:  DefaultBatchSize,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	return o
}

// SyncAccount fetches the account's new inbox messages and stores them.
//
// Overlapping calls for the same account in this process share one run, and
// the store's account lock keeps other processes out while it runs. Failures
// are reported in the result and recorded on the account; the cursor is only
// moved forward by a fully committed run.
func (o *Orchestrator) SyncAccount(ctx context.Context, accountID string, opts Options) models.SyncResult {
	v, _, _ := o.inflight.Do(accountID, func() (any, error) {
		start := o.now()
		var result models.SyncResult
		err := o.store.WithAccountLock(ctx, accountID, func(ctx context.Context) error {
			result = o.sync(ctx, accountID, opts)
			return nil
		})
		if err != nil {
			result = models.SyncResult{AccountID: accountID, Outcome: models.SyncOutcomeFailed, Err: err}
		}
		o.metrics.ObserveSync(result, o.now().Sub(start))
		return result, nil
	})
	return v.(models.SyncResult)
}

// Resync forgets the account's cursor so the next sync selects by date again.
// Stored messages stay; dedup keeps them from being stored twice.
func (o *Orchestrator) Resync(ctx context.Context, accountID string) error {
	return o.store.WithAccountLock(ctx, accountID, func(ctx context.Context) error {
		if _, err := o.store.GetAccount(ctx, accountID); err != nil {
			return err
		}
		if err := o.store.DeleteSyncState(ctx, accountID); err != nil {
			return err
		}
		o.logger.Info("Reset sync cursor", zap.String("account_id", accountID))
		return nil
	})
}

func (o *Orchestrator) sync(ctx context.Context, accountID string, opts Options) models.SyncResult {
	log := o.logger.With(zap.String("account_id", accountID))

	account, err := o.store.GetAccount(ctx, accountID)
	if err != nil {
		log.Error("Failed to load account", zap.Error(err))
		return models.SyncResult{AccountID: accountID, Outcome: models.SyncOutcomeFailed, Err: err}
	}

	state, err := o.store.GetSyncState(ctx, accountID)
	if err != nil {
		return o.fail(ctx, account, err)
	}

	cursor := o.cursorFor(account, state, opts)
	maxCount := opts.MaxMessages
	if maxCount <= 0 {
		maxCount = o.batchSize
	}

	raws, err := o.transport.FetchSince(ctx, account, cursor, maxCount)
	if err != nil {
		return o.fail(ctx, account, err)
	}

	fresh, highestUID, err := o.prepare(ctx, account, raws, cursor.AfterUID, log)
	if err != nil {
		return o.fail(ctx, account, err)
	}

	err = o.store.RunInTx(ctx, func(ctx context.Context, tx store.Store) error {
		if err := tx.SaveMessages(ctx, fresh); err != nil {
			return err
		}

		agg := o.aggregator.WithStore(tx)
		for _, msg := range fresh {
			if _, err := agg.Attach(ctx, msg); err != nil {
				return fmt.Errorf("failed to attach message %s: %w", msg.ProviderMessageID, err)
			}
		}

		if err := tx.SaveSyncState(ctx, &models.SyncState{
			AccountID:  account.ID,
			LastUID:    highestUID,
			LastSyncAt: o.now(),
		}); err != nil {
			return err
		}

		if account.Status == models.AccountStatusError {
			return tx.ClearAccountError(ctx, account.ID)
		}
		return nil
	})
	if err != nil {
		return o.fail(ctx, account, err)
	}

	outcome := models.SyncOutcomeNothingNew
	if len(fresh) > 0 {
		outcome = models.SyncOutcomeIngested
	}

	log.Info("Synced account",
		zap.String("outcome", string(outcome)),
		zap.Int("fetched", len(raws)),
		zap.Int("new_messages", len(fresh)),
		zap.Uint32("last_uid", highestUID))

	return models.SyncResult{AccountID: account.ID, Outcome: outcome, NewMessageCount: len(fresh)}
}

// cursorFor resumes from the stored UID, or on a first sync selects by the
// later of opts.Since and the account's creation time.
func (o *Orchestrator) cursorFor(account *models.Account, state *models.SyncState, opts Options) mailbox.Cursor {
	if state != nil && state.LastUID > 0 {
		return mailbox.Cursor{AfterUID: state.LastUID}
	}
	since := opts.Since
	if account.CreatedAt.After(since) {
		since = account.CreatedAt
	}
	return mailbox.Cursor{Since: since}
}

// prepare normalizes raws in delivery order and drops what must not be
// stored. It returns the new messages and the highest UID the cursor may move
// to. Messages without a Message-ID and duplicates count as processed. A
// parse failure does not move the cursor by itself, so it is retried only
// while no later UID in the batch was processed.
func (o *Orchestrator) prepare(ctx context.Context, account *models.Account, raws []mailbox.RawMessage, lastUID uint32, log *zap.Logger) ([]*models.Message, uint32, error) {
	highestUID := lastUID
	advance := func(uid uint32) {
		if uid > highestUID {
			highestUID = uid
		}
	}

	seen := make(map[string]bool, len(raws))
	fresh := make([]*models.Message, 0, len(raws))

	for _, raw := range raws {
		msg, err := o.normalizer.Normalize(account, raw)
		if errors.Is(err, normalize.ErrMissingMessageID) {
			log.Debug("Skipping message without Message-ID", zap.Uint32("uid", raw.UID))
			o.metrics.MessageSkipped(metrics.SkipMissingMessageID)
			advance(raw.UID)
			continue
		}
		if err != nil {
			log.Warn("Skipping unparsable message", zap.Uint32("uid", raw.UID), zap.Error(err))
			o.metrics.MessageSkipped(metrics.SkipParseError)
			continue
		}

		if seen[msg.ProviderMessageID] {
			o.metrics.MessageSkipped(metrics.SkipDuplicate)
			advance(raw.UID)
			continue
		}

		_, err = o.store.GetMessageByProviderID(ctx, account.ID, msg.ProviderMessageID)
		switch {
		case err == nil:
			log.Debug("Skipping already stored message",
				zap.Uint32("uid", raw.UID),
				zap.String("message_id", msg.ProviderMessageID))
			o.metrics.MessageSkipped(metrics.SkipDuplicate)
			seen[msg.ProviderMessageID] = true
			advance(raw.UID)
			continue
		case !errors.Is(err, store.ErrMessageNotFound):
			return nil, 0, fmt.Errorf("failed to check for duplicate: %w", err)
		}

		seen[msg.ProviderMessageID] = true
		fresh = append(fresh, msg)
		advance(raw.UID)
	}

	return fresh, highestUID, nil
}

// fail records err against the account and turns it into a result.
func (o *Orchestrator) fail(ctx context.Context, account *models.Account, err error) models.SyncResult {
	kind, outcome := classify(err)

	o.logger.Error("Account sync failed",
		zap.String("account_id", account.ID),
		zap.String("kind", string(kind)),
		zap.Error(err))

	// The caller's context may be what failed, so the error is recorded without it.
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if setErr := o.store.SetAccountError(recordCtx, account.ID, kind, err.Error(), o.now()); setErr != nil {
		o.logger.Error("Failed to record account error", zap.String("account_id", account.ID), zap.Error(setErr))
	}

	return models.SyncResult{AccountID: account.ID, Outcome: outcome, Err: err}
}

func classify(err error) (models.AccountErrorKind, models.SyncOutcome) {
	switch {
	case errors.Is(err, mailbox.ErrAuthentication):
		return models.AccountErrorAuthentication, models.SyncOutcomeAuthFailed
	case errors.Is(err, mailbox.ErrConnection):
		return models.AccountErrorConnection, models.SyncOutcomeUnreachable
	default:
		return models.AccountErrorInternal, models.SyncOutcomeFailed
	}
}
