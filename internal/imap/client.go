package imap

import (
	"sync"
	"time"

	"github.com/emersion/go-imap/client"
)

// threadSafeClient wraps an IMAP client with a mutex for thread-safe access.
// Different connections can be used concurrently, while access to the same
// connection is serialized.
type threadSafeClient struct {
	client   *client.Client
	mu       sync.Mutex
	lastUsed time.Time
}

// Lock acquires the mutex for thread-safe access to the underlying client.
func (c *threadSafeClient) Lock() {
	c.mu.Lock()
}

// TryLock tries to acquire the mutex without blocking.
func (c *threadSafeClient) TryLock() bool {
	return c.mu.TryLock()
}

// Unlock releases the mutex.
func (c *threadSafeClient) Unlock() {
	c.mu.Unlock()
}

// GetClient returns the underlying IMAP client.
// Caller must hold the lock before calling this.
func (c *threadSafeClient) GetClient() *client.Client {
	return c.client
}

// UpdateLastUsed updates the lastUsed timestamp to now.
func (c *threadSafeClient) UpdateLastUsed() {
	c.lastUsed = time.Now()
}

// GetLastUsed returns the lastUsed timestamp.
func (c *threadSafeClient) GetLastUsed() time.Time {
	return c.lastUsed
}
