// Package imap fetches raw messages from IMAP inboxes through a per-account
// connection pool.
package imap

import (
	"context"
	"sync"
	"time"

	"github.com/emersion/go-imap/client"
	"go.uber.org/zap"
)

const (
	// workerIdleTimeout is the maximum time a connection can be idle before being closed.
	workerIdleTimeout = 10 * time.Minute
	// healthCheckThreshold is the idle time after which we perform a health check before reuse.
	healthCheckThreshold = 1 * time.Minute
	// cleanupInterval is how often idle connections are swept.
	cleanupInterval = 1 * time.Minute
)

// Pool manages IMAP connections per account. Each account gets up to
// maxWorkers connections.
//
// Thread safety: Each connection is wrapped with a mutex. Multiple goroutines
// can use different connections concurrently, but access to the same
// connection is serialized.
type Pool struct {
	workerSets    map[string]*workerClientSet // accountID -> worker client set
	mu            sync.RWMutex
	maxWorkers    int
	useTLS        bool
	logger        *zap.Logger
	cleanupCtx    context.Context
	cleanupCancel context.CancelFunc
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithMaxWorkers sets the maximum number of connections per account.
func WithMaxWorkers(n int) PoolOption {
	return func(p *Pool) {
		if n > 0 {
			p.maxWorkers = n
		}
	}
}

// WithTLS sets whether connections use implicit TLS.
func WithTLS(useTLS bool) PoolOption {
	return func(p *Pool) { p.useTLS = useTLS }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) PoolOption {
	return func(p *Pool) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewPool creates a connection pool and starts its idle-connection sweeper.
// It defaults to 3 connections per account over TLS.
func NewPool(opts ...PoolOption) *Pool {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		workerSets:    make(map[string]*workerClientSet),
		maxWorkers:    3,
		useTLS:        true,
		logger:        zap.NewNop(),
		cleanupCtx:    ctx,
		cleanupCancel: cancel,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.startCleanupGoroutine()
	return p
}

// GetClient gets or creates an authenticated IMAP client for an account.
// Callers must always call the returned release function when they are done
// with the client.
func (p *Pool) GetClient(ctx context.Context, accountID, server, username, password string) (*client.Client, func(), error) {
	tsClient, release, err := p.getWorkerConnection(ctx, accountID, server, username, password)
	if err != nil {
		return nil, nil, err
	}
	return tsClient.GetClient(), release, nil
}

// RemoveClient closes and forgets all connections of an account, for example
// after its credentials changed or a connection broke mid-command.
func (p *Pool) RemoveClient(accountID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if set, exists := p.workerSets[accountID]; exists {
		set.close(p.logger)
		delete(p.workerSets, accountID)
	}
}

// Close closes all connections in the pool and stops the cleanup goroutine.
func (p *Pool) Close() {
	p.cleanupCancel()

	p.mu.Lock()
	defer p.mu.Unlock()

	for accountID, set := range p.workerSets {
		set.close(p.logger)
		delete(p.workerSets, accountID)
	}
}
