package imap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/emersion/go-imap"
	sortthread "github.com/emersion/go-imap-sortthread"
	"github.com/emersion/go-imap/client"
	"github.com/vdavid/threadsync/internal/mailbox"
	"go.uber.org/zap"
)

// inboxName is the only folder the engine syncs.
const inboxName = "INBOX"

// Fetcher reads new inbox messages through a Pool.
type Fetcher struct {
	pool   ClientPool
	logger *zap.Logger
}

// NewFetcher creates a Fetcher that borrows connections from pool.
func NewFetcher(pool ClientPool, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{pool: pool, logger: logger}
}

// FetchSince returns up to maxCount inbox messages after cursor, ordered by
// ascending UID. An incremental cursor selects UIDs strictly greater than
// cursor.AfterUID; otherwise messages received at or after cursor.Since are
// selected. When more messages match than maxCount, the oldest are returned
// so the next call can continue from the last UID.
//
// Connection failures wrap mailbox.ErrConnection, rejected logins wrap
// mailbox.ErrAuthentication.
func (f *Fetcher) FetchSince(ctx context.Context, accountID string, creds mailbox.Credentials, cursor mailbox.Cursor, maxCount int) ([]mailbox.RawMessage, error) {
	if maxCount <= 0 {
		return []mailbox.RawMessage{}, nil
	}

	c, release, err := f.pool.GetClient(ctx, accountID, creds.Server, creds.Username, creds.Password)
	if err != nil {
		return nil, err
	}
	defer func() { release() }()

	messages, err := fetchSince(c, cursor, maxCount)
	if err != nil {
		if c.State() == imap.LogoutState {
			// The connection broke mid-command; drop it so the next call redials.
			release()
			release = func() {}
			f.pool.RemoveClient(accountID)
			return nil, fmt.Errorf("%w: %w", mailbox.ErrConnection, err)
		}
		return nil, err
	}

	f.logger.Debug("Fetched inbox messages",
		zap.String("account_id", accountID),
		zap.Uint32("after_uid", cursor.AfterUID),
		zap.Int("count", len(messages)))

	return messages, nil
}

func fetchSince(c *client.Client, cursor mailbox.Cursor, maxCount int) ([]mailbox.RawMessage, error) {
	if c == nil {
		return nil, errors.New("client is nil")
	}

	// Sync never changes mailbox state.
	if _, err := c.Select(inboxName, true); err != nil {
		return nil, fmt.Errorf("failed to select %s: %w", inboxName, err)
	}

	uids, err := searchUIDs(c, cursor)
	if err != nil {
		return nil, err
	}

	if !cursor.IsIncremental() && !cursor.Since.IsZero() {
		uids, err = receivedSince(c, uids, cursor.Since)
		if err != nil {
			return nil, err
		}
	}

	uids = selectOldest(uids, cursor.AfterUID, maxCount)
	if len(uids) == 0 {
		return []mailbox.RawMessage{}, nil
	}

	return fetchRaw(c, uids)
}

// searchUIDs lists the inbox UIDs matching cursor, in arrival order when the
// server supports SORT.
func searchUIDs(c *client.Client, cursor mailbox.Cursor) ([]uint32, error) {
	criteria := imap.NewSearchCriteria()
	if cursor.IsIncremental() {
		uidRange := new(imap.SeqSet)
		uidRange.AddRange(cursor.AfterUID+1, 0)
		criteria.Uid = uidRange
	} else if !cursor.Since.IsZero() {
		criteria.Since = cursor.Since
	}

	supportsSort, err := c.Support("SORT")
	if err == nil && supportsSort {
		sortClient := sortthread.NewSortClient(c)
		uids, err := sortClient.UidSort([]sortthread.SortCriterion{{Field: sortthread.SortArrival}}, criteria)
		if err != nil {
			return nil, fmt.Errorf("failed to sort inbox: %w", err)
		}
		return uids, nil
	}

	uids, err := c.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("failed to search inbox: %w", err)
	}
	return uids, nil
}

// receivedSince narrows uids to messages whose INTERNALDATE is not before
// since. SEARCH SINCE matches whole days, so it also returns earlier messages
// from the same day.
func receivedSince(c *client.Client, uids []uint32, since time.Time) ([]uint32, error) {
	if len(uids) == 0 {
		return uids, nil
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uids...)

	messages := make(chan *imap.Message, len(uids))
	done := make(chan error, 1)
	go func() {
		done <- c.UidFetch(seqSet, []imap.FetchItem{imap.FetchUid, imap.FetchInternalDate}, messages)
	}()

	kept := make([]uint32, 0, len(uids))
	for msg := range messages {
		if !msg.InternalDate.Before(since) {
			kept = append(kept, msg.Uid)
		}
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("failed to fetch internal dates: %w", err)
	}
	return kept, nil
}

// selectOldest keeps UIDs above afterUID, sorts them and truncates to the
// maxCount lowest. "n:*" always matches the highest UID even when it is below
// n, hence the filter.
func selectOldest(uids []uint32, afterUID uint32, maxCount int) []uint32 {
	kept := make([]uint32, 0, len(uids))
	for _, uid := range uids {
		if uid > afterUID {
			kept = append(kept, uid)
		}
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i] < kept[j] })
	if len(kept) > maxCount {
		kept = kept[:maxCount]
	}
	return kept
}

// fetchRaw fetches flags, internal date and the full body of uids without
// marking them seen, and returns them ordered by UID.
func fetchRaw(c *client.Client, uids []uint32) ([]mailbox.RawMessage, error) {
	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uids...)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{
		imap.FetchUid,
		imap.FetchFlags,
		imap.FetchInternalDate,
		section.FetchItem(),
	}

	messages := make(chan *imap.Message, len(uids))
	done := make(chan error, 1)

	go func() {
		done <- c.UidFetch(seqSet, items, messages)
	}()

	result := make([]mailbox.RawMessage, 0, len(uids))
	var readErr error
	for msg := range messages {
		body := msg.GetBody(section)
		if body == nil {
			continue
		}
		data, err := io.ReadAll(body)
		if err != nil && readErr == nil {
			readErr = fmt.Errorf("failed to read body of UID %d: %w", msg.Uid, err)
			continue
		}
		result = append(result, mailbox.RawMessage{
			UID:          msg.Uid,
			Flags:        msg.Flags,
			InternalDate: msg.InternalDate,
			Body:         data,
		})
	}

	if err := <-done; err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}
	if readErr != nil {
		return nil, readErr
	}

	sort.Slice(result, func(i, j int) bool { return result[i].UID < result[j].UID })
	return result, nil
}
