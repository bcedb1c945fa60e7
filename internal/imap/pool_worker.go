package imap

import (
	"context"
	"time"

	"github.com/emersion/go-imap"
	"go.uber.org/zap"
)

// getOrCreateWorkerSet gets or creates the client set of an account.
// Thread-safe: uses double-check locking pattern.
func (p *Pool) getOrCreateWorkerSet(accountID string) *workerClientSet {
	p.mu.RLock()
	set, exists := p.workerSets[accountID]
	p.mu.RUnlock()

	if exists {
		return set
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// Another goroutine might have created it in the meantime.
	if set, exists := p.workerSets[accountID]; exists {
		return set
	}

	set = newWorkerClientSet(p.maxWorkers)
	p.workerSets[accountID] = set
	return set
}

// getWorkerConnection returns a locked, authenticated client and a release
// function that must be called when done. Idle clients are reused after a
// health check; otherwise a new connection is opened.
func (p *Pool) getWorkerConnection(ctx context.Context, accountID, server, username, password string) (*threadSafeClient, func(), error) {
	set := p.getOrCreateWorkerSet(accountID)

	if err := set.acquireSlot(ctx); err != nil {
		return nil, nil, err
	}

	release := func(c *threadSafeClient) func() {
		return func() {
			c.UpdateLastUsed()
			c.Unlock()
			set.releaseSlot()
		}
	}

	for {
		tsClient := set.takeIdle()
		if tsClient == nil {
			break
		}
		if p.isUsable(tsClient) {
			tsClient.UpdateLastUsed()
			return tsClient, release(tsClient), nil
		}
		p.logger.Debug("Dropping dead IMAP connection", zap.String("account_id", accountID))
		set.remove(tsClient)
		tsClient.Unlock()
	}

	c, err := ConnectToIMAP(server, p.useTLS)
	if err != nil {
		set.releaseSlot()
		return nil, nil, err
	}

	if err := Login(c, username, password); err != nil {
		_ = c.Logout()
		set.releaseSlot()
		return nil, nil, err
	}

	tsClient := &threadSafeClient{
		client:   c,
		lastUsed: time.Now(),
	}
	tsClient.Lock()
	set.addClient(tsClient)

	return tsClient, release(tsClient), nil
}

// isUsable reports whether a pooled client can serve another command.
// Clients idle for longer than healthCheckThreshold are probed with NOOP.
// The client must be locked before calling this.
func (p *Pool) isUsable(c *threadSafeClient) bool {
	state := c.GetClient().State()
	if state != imap.AuthenticatedState && state != imap.SelectedState {
		return false
	}
	if time.Since(c.GetLastUsed()) <= healthCheckThreshold {
		return true
	}
	return c.GetClient().Noop() == nil
}
