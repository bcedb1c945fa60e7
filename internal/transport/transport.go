// Package transport implements mailbox.Transport on top of the IMAP fetcher
// and the SMTP sender, resolving each account's servers and credentials.
package transport

import (
	"context"
	"errors"
	"fmt"

	"github.com/vdavid/threadsync/internal/crypto"
	"github.com/vdavid/threadsync/internal/mailbox"
	"github.com/vdavid/threadsync/internal/models"
)

// Fetcher reads raw inbox messages. *imap.Fetcher implements it.
type Fetcher interface {
	FetchSince(ctx context.Context, accountID string, creds mailbox.Credentials, cursor mailbox.Cursor, maxCount int) ([]mailbox.RawMessage, error)
}

// Sender submits outgoing mail. *smtp.Sender implements it.
type Sender interface {
	Send(ctx context.Context, creds mailbox.Credentials, out mailbox.OutgoingMail) (*mailbox.SendReceipt, error)
}

// Transport is the mailbox.Transport used in production.
type Transport struct {
	fetcher   Fetcher
	sender    Sender
	encryptor *crypto.Encryptor
}

// New creates a Transport.
func New(fetcher Fetcher, sender Sender, encryptor *crypto.Encryptor) *Transport {
	return &Transport{fetcher: fetcher, sender: sender, encryptor: encryptor}
}

// FetchSince implements mailbox.Transport.
func (t *Transport) FetchSince(ctx context.Context, account *models.Account, cursor mailbox.Cursor, maxCount int) ([]mailbox.RawMessage, error) {
	creds, err := t.IMAPCredentials(account)
	if err != nil {
		return nil, err
	}
	return t.fetcher.FetchSince(ctx, account.ID, creds, cursor, maxCount)
}

// Send implements mailbox.Transport.
func (t *Transport) Send(ctx context.Context, account *models.Account, out mailbox.OutgoingMail) (*mailbox.SendReceipt, error) {
	creds, err := t.SMTPCredentials(account)
	if err != nil {
		return nil, err
	}
	return t.sender.Send(ctx, creds, out)
}

// IMAPCredentials resolves the IMAP server and login of account. The server
// falls back to the provider default and the username to the account address.
func (t *Transport) IMAPCredentials(account *models.Account) (mailbox.Credentials, error) {
	return t.resolve(account, account.IMAPServer, account.Provider.DefaultIMAPServer(), account.IMAPUsername, account.EncryptedIMAPPassword)
}

// SMTPCredentials resolves the SMTP server and login of account the same
// way. Accounts without their own SMTP password reuse the IMAP one.
func (t *Transport) SMTPCredentials(account *models.Account) (mailbox.Credentials, error) {
	sealed := account.EncryptedSMTPPassword
	if len(sealed) == 0 {
		sealed = account.EncryptedIMAPPassword
	}
	username := account.SMTPUsername
	if username == "" {
		username = account.IMAPUsername
	}
	return t.resolve(account, account.SMTPServer, account.Provider.DefaultSMTPServer(), username, sealed)
}

func (t *Transport) resolve(account *models.Account, server, defaultServer, username string, sealed []byte) (mailbox.Credentials, error) {
	if server == "" {
		server = defaultServer
	}
	if server == "" {
		return mailbox.Credentials{}, fmt.Errorf("%w: account %s has no server configured for provider %s",
			mailbox.ErrConnection, account.ID, account.Provider)
	}
	if username == "" {
		username = account.Email
	}

	var password string
	if len(sealed) > 0 {
		var err error
		password, err = t.encryptor.Open(account.ID, sealed)
		if err != nil {
			if errors.Is(err, crypto.ErrInvalidCiphertext) {
				return mailbox.Credentials{}, fmt.Errorf("%w: stored password does not decrypt: %w", mailbox.ErrAuthentication, err)
			}
			return mailbox.Credentials{}, err
		}
	}

	return mailbox.Credentials{Server: server, Username: username, Password: password}, nil
}

var _ mailbox.Transport = (*Transport)(nil)
