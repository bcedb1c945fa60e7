package imap

import (
	"time"

	"go.uber.org/zap"
)

// startCleanupGoroutine periodically closes idle connections until the pool
// is closed.
func (p *Pool) startCleanupGoroutine() {
	ticker := time.NewTicker(cleanupInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-p.cleanupCtx.Done():
				return
			case <-ticker.C:
				p.cleanupIdleConnections(time.Now())
			}
		}
	}()
}

// cleanupIdleConnections closes connections unused since before now minus
// workerIdleTimeout and drops account sets left empty.
func (p *Pool) cleanupIdleConnections(now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for accountID, set := range p.workerSets {
		set.mu.Lock()
		kept := set.clients[:0]
		for _, c := range set.clients {
			if c.TryLock() {
				if now.Sub(c.GetLastUsed()) > workerIdleTimeout {
					_ = c.GetClient().Logout()
					c.Unlock()
					p.logger.Debug("Closed idle IMAP connection", zap.String("account_id", accountID))
					continue
				}
				c.Unlock()
			}
			kept = append(kept, c)
		}
		set.clients = kept
		empty := len(set.clients) == 0 && len(set.semaphore) == 0
		set.mu.Unlock()

		if empty {
			delete(p.workerSets, accountID)
		}
	}
}
