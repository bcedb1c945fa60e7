package imap

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// workerClientSet holds the connections of a single account. The semaphore
// caps how many of them are in use at once.
type workerClientSet struct {
	clients   []*threadSafeClient
	semaphore chan struct{}
	mu        sync.Mutex
}

func newWorkerClientSet(maxWorkers int) *workerClientSet {
	return &workerClientSet{
		clients:   make([]*threadSafeClient, 0, maxWorkers),
		semaphore: make(chan struct{}, maxWorkers),
	}
}

// acquireSlot blocks until a slot is free or ctx is done.
func (s *workerClientSet) acquireSlot(ctx context.Context) error {
	select {
	case s.semaphore <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *workerClientSet) releaseSlot() {
	<-s.semaphore
}

// takeIdle returns an idle client, locked, or nil if all are busy.
// The caller must already hold a slot.
func (s *workerClientSet) takeIdle() *threadSafeClient {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.clients {
		if c.TryLock() {
			return c
		}
	}
	return nil
}

// addClient adds a new client to the set.
func (s *workerClientSet) addClient(c *threadSafeClient) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients = append(s.clients, c)
}

// remove drops c from the set and logs it out. The caller must hold c's lock.
func (s *workerClientSet) remove(c *threadSafeClient) {
	s.mu.Lock()
	for i, existing := range s.clients {
		if existing == c {
			s.clients = append(s.clients[:i], s.clients[i+1:]...)
			break
		}
	}
	s.mu.Unlock()

	_ = c.GetClient().Logout()
}

// close logs out every client. Clients in use are logged out anyway since
// this only runs on shutdown or account removal.
func (s *workerClientSet) close(logger *zap.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.clients {
		if c.TryLock() {
			if err := c.GetClient().Logout(); err != nil {
				logger.Debug("Failed to logout IMAP client", zap.Error(err))
			}
			c.Unlock()
		} else {
			_ = c.GetClient().Logout()
		}
	}
	s.clients = nil
}
