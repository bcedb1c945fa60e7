package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/vdavid/threadsync/internal/models"
)

// MemoryStore is an in-process Store. Records are copied on the way in and
// out so callers never share memory with the store.
// Transactions are serialized against each other and roll back by restoring
// a snapshot taken when they started.
type MemoryStore struct {
	mu            sync.Mutex
	txMu          sync.Mutex
	accounts      map[string]*models.Account
	messages      map[string]*models.Message
	conversations map[string]*models.Conversation
	syncStates    map[string]*models.SyncState

	locksMu      sync.Mutex
	accountLocks map[string]*sync.Mutex
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:      make(map[string]*models.Account),
		messages:      make(map[string]*models.Message),
		conversations: make(map[string]*models.Conversation),
		syncStates:    make(map[string]*models.SyncState),
		accountLocks:  make(map[string]*sync.Mutex),
	}
}

// PutAccount adds or replaces an account.
func (s *MemoryStore) PutAccount(account *models.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := *account
	s.accounts[a.ID] = &a
}

func (s *MemoryStore) GetMessage(_ context.Context, id string) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.messages[id]
	if !ok {
		return nil, ErrMessageNotFound
	}
	return copyMessage(msg), nil
}

func (s *MemoryStore) GetMessageByProviderID(_ context.Context, accountID, providerMessageID string) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, msg := range s.messages {
		if msg.AccountID == accountID && msg.ProviderMessageID == providerMessageID {
			return copyMessage(msg), nil
		}
	}
	return nil, ErrMessageNotFound
}

func (s *MemoryStore) SaveMessage(_ context.Context, msg *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.hasDuplicateLocked(msg) {
		return fmt.Errorf("%w: %s", ErrDuplicateMessage, msg.ProviderMessageID)
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	s.messages[msg.ID] = copyMessage(msg)
	return nil
}

func (s *MemoryStore) SaveMessages(_ context.Context, msgs []*models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch := make(map[string]struct{}, len(msgs))
	for _, msg := range msgs {
		key := msg.AccountID + "\x00" + msg.ProviderMessageID
		if _, dup := batch[key]; dup || s.hasDuplicateLocked(msg) {
			return fmt.Errorf("%w: %s", ErrDuplicateMessage, msg.ProviderMessageID)
		}
		if _, exists := s.messages[msg.ID]; exists {
			return fmt.Errorf("%w: id %s", ErrDuplicateMessage, msg.ID)
		}
		batch[key] = struct{}{}
	}

	now := time.Now()
	for _, msg := range msgs {
		if msg.CreatedAt.IsZero() {
			msg.CreatedAt = now
		}
		s.messages[msg.ID] = copyMessage(msg)
	}
	return nil
}

// hasDuplicateLocked reports whether another message already holds msg's
// (account, Message-ID) pair. The caller must hold s.mu.
func (s *MemoryStore) hasDuplicateLocked(msg *models.Message) bool {
	for id, existing := range s.messages {
		if id != msg.ID && existing.AccountID == msg.AccountID && existing.ProviderMessageID == msg.ProviderMessageID {
			return true
		}
	}
	return false
}

func (s *MemoryStore) DeleteMessage(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.messages[id]; !ok {
		return ErrMessageNotFound
	}
	delete(s.messages, id)
	return nil
}

func (s *MemoryStore) ListConversationMessages(_ context.Context, conversationID string) ([]*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*models.Message
	for _, msg := range s.messages {
		if msg.ConversationID == conversationID {
			result = append(result, copyMessage(msg))
		}
	}
	SortChronologically(result)
	return result, nil
}

func (s *MemoryStore) GetConversation(_ context.Context, id string) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[id]
	if !ok {
		return nil, ErrConversationNotFound
	}
	return copyConversation(conv), nil
}

func (s *MemoryStore) GetConversationByThreadID(_ context.Context, accountID, threadID string) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, conv := range s.conversations {
		if conv.AccountID == accountID && conv.HasThreadID(threadID) {
			return copyConversation(conv), nil
		}
	}
	return nil, ErrConversationNotFound
}

func (s *MemoryStore) SaveConversation(_ context.Context, conv *models.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.conversations[conv.ID] = copyConversation(conv)
	return nil
}

func (s *MemoryStore) UpdateConversation(_ context.Context, id string, patch models.ConversationPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[id]
	if !ok {
		return ErrConversationNotFound
	}
	if patch.Status != nil {
		conv.Status = *patch.Status
		conv.ClosedAt = copyTime(patch.ClosedAt)
	}
	if patch.Subject != nil {
		conv.Subject = *patch.Subject
	}
	return nil
}

func (s *MemoryStore) DeleteConversation(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[id]; !ok {
		return ErrConversationNotFound
	}
	delete(s.conversations, id)
	return nil
}

func (s *MemoryStore) ListConversations(_ context.Context, accountID string, limit, offset int) ([]*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*models.Conversation
	for _, conv := range s.conversations {
		if conv.AccountID == accountID {
			result = append(result, copyConversation(conv))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].LastMessageAt.After(result[j].LastMessageAt)
	})

	if offset >= len(result) {
		return []*models.Conversation{}, nil
	}
	end := len(result)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return result[offset:end], nil
}

func (s *MemoryStore) GetSyncState(_ context.Context, accountID string) (*models.SyncState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.syncStates[accountID]
	if !ok {
		return nil, nil
	}
	st := *state
	return &st, nil
}

func (s *MemoryStore) SaveSyncState(_ context.Context, state *models.SyncState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := *state
	s.syncStates[state.AccountID] = &st
	return nil
}

func (s *MemoryStore) DeleteSyncState(_ context.Context, accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.syncStates, accountID)
	return nil
}

func (s *MemoryStore) GetAccount(_ context.Context, id string) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[id]
	if !ok {
		return nil, ErrAccountNotFound
	}
	a := *account
	return &a, nil
}

func (s *MemoryStore) ListActiveAccounts(_ context.Context) ([]*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*models.Account
	for _, account := range s.accounts {
		// Accounts failing on credentials wait for an operator to fix them.
		if account.Status == models.AccountStatusError && account.LastErrorKind == models.AccountErrorAuthentication {
			continue
		}
		a := *account
		result = append(result, &a)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *MemoryStore) SetAccountError(_ context.Context, id string, kind models.AccountErrorKind, message string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[id]
	if !ok {
		return ErrAccountNotFound
	}
	account.Status = models.AccountStatusError
	account.LastErrorKind = kind
	account.LastError = message
	account.LastErrorAt = &at
	return nil
}

func (s *MemoryStore) ClearAccountError(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[id]
	if !ok {
		return ErrAccountNotFound
	}
	account.Status = models.AccountStatusActive
	account.LastErrorKind = ""
	account.LastError = ""
	account.LastErrorAt = nil
	return nil
}

func (s *MemoryStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	snap := s.snapshot()
	if err := fn(ctx, memoryTx{s}); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

func (s *MemoryStore) WithAccountLock(ctx context.Context, accountID string, fn func(ctx context.Context) error) error {
	s.locksMu.Lock()
	lock, ok := s.accountLocks[accountID]
	if !ok {
		lock = &sync.Mutex{}
		s.accountLocks[accountID] = lock
	}
	s.locksMu.Unlock()

	lock.Lock()
	defer lock.Unlock()
	return fn(ctx)
}

// memoryTx is the view handed to RunInTx callbacks. Nested transactions and
// account locks run inline since the outer call already holds them.
type memoryTx struct {
	*MemoryStore
}

func (t memoryTx) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	return fn(ctx, t)
}

func (t memoryTx) WithAccountLock(ctx context.Context, _ string, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type memorySnapshot struct {
	accounts      map[string]*models.Account
	messages      map[string]*models.Message
	conversations map[string]*models.Conversation
	syncStates    map[string]*models.SyncState
}

func (s *MemoryStore) snapshot() memorySnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := memorySnapshot{
		accounts:      make(map[string]*models.Account, len(s.accounts)),
		messages:      make(map[string]*models.Message, len(s.messages)),
		conversations: make(map[string]*models.Conversation, len(s.conversations)),
		syncStates:    make(map[string]*models.SyncState, len(s.syncStates)),
	}
	for id, a := range s.accounts {
		acc := *a
		snap.accounts[id] = &acc
	}
	for id, m := range s.messages {
		snap.messages[id] = copyMessage(m)
	}
	for id, c := range s.conversations {
		snap.conversations[id] = copyConversation(c)
	}
	for id, st := range s.syncStates {
		state := *st
		snap.syncStates[id] = &state
	}
	return snap
}

func (s *MemoryStore) restore(snap memorySnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.accounts = snap.accounts
	s.messages = snap.messages
	s.conversations = snap.conversations
	s.syncStates = snap.syncStates
}

// SortChronologically orders messages oldest first, breaking ties by UID and id.
func SortChronologically(msgs []*models.Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		a, b := msgs[i], msgs[j]
		if !a.SentAt.Equal(b.SentAt) {
			return a.SentAt.Before(b.SentAt)
		}
		if a.ProviderUID != b.ProviderUID {
			return a.ProviderUID < b.ProviderUID
		}
		return a.ID < b.ID
	})
}

func copyMessage(m *models.Message) *models.Message {
	c := *m
	c.References = append([]string(nil), m.References...)
	c.To = append([]models.Address(nil), m.To...)
	c.Cc = append([]models.Address(nil), m.Cc...)
	c.Bcc = append([]models.Address(nil), m.Bcc...)
	c.Attachments = append([]models.Attachment(nil), m.Attachments...)
	return &c
}

func copyConversation(conv *models.Conversation) *models.Conversation {
	c := *conv
	c.ThreadIDs = append([]string(nil), conv.ThreadIDs...)
	c.Participants = append([]models.Address(nil), conv.Participants...)
	c.ClosedAt = copyTime(conv.ClosedAt)
	return &c
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

var _ Store = (*MemoryStore)(nil)
