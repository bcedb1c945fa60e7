package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/vdavid/threadsync/internal/models"
	"github.com/vdavid/threadsync/internal/store"
)

const accountColumns = `
	id,
	tenant_id,
	email,
	display_name,
	provider,
	imap_server,
	imap_username,
	encrypted_imap_password,
	smtp_server,
	smtp_username,
	encrypted_smtp_password,
	status,
	last_error_kind,
	last_error,
	last_error_at,
	created_at`

func scanAccount(row pgx.Row) (*models.Account, error) {
	var (
		account   models.Account
		provider  string
		status    string
		errorKind string
	)
	err := row.Scan(
		&account.ID,
		&account.TenantID,
		&account.Email,
		&account.DisplayName,
		&provider,
		&account.IMAPServer,
		&account.IMAPUsername,
		&account.EncryptedIMAPPassword,
		&account.SMTPServer,
		&account.SMTPUsername,
		&account.EncryptedSMTPPassword,
		&status,
		&errorKind,
		&account.LastError,
		&account.LastErrorAt,
		&account.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	account.Provider = models.ProviderType(provider)
	account.Status = models.AccountStatus(status)
	account.LastErrorKind = models.AccountErrorKind(errorKind)
	return &account, nil
}

// GetAccount returns an account by id.
func (s *PostgresStore) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	account, err := scanAccount(s.q.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return account, nil
}

// ListActiveAccounts returns the accounts the scheduler should sync. Accounts
// whose last error was an authentication failure are left out until their
// credentials are fixed.
func (s *PostgresStore) ListActiveAccounts(ctx context.Context) ([]*models.Account, error) {
	rows, err := s.q.Query(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE NOT (status = 'error' AND last_error_kind = 'authentication')
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*models.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, account)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accounts: %w", err)
	}

	return accounts, nil
}

// PutAccount inserts or updates an account, including its sealed passwords.
func (s *PostgresStore) PutAccount(ctx context.Context, account *models.Account) error {
	provider := account.Provider
	if provider == "" {
		provider = models.ProviderIMAP
	}
	status := account.Status
	if status == "" {
		status = models.AccountStatusActive
	}
	createdAt := account.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	err := s.q.QueryRow(ctx, `
		INSERT INTO accounts (
			id, tenant_id, email, display_name, provider,
			imap_server, imap_username, encrypted_imap_password,
			smtp_server, smtp_username, encrypted_smtp_password,
			status, last_error_kind, last_error, last_error_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (id) DO UPDATE SET
			tenant_id = EXCLUDED.tenant_id,
			email = EXCLUDED.email,
			display_name = EXCLUDED.display_name,
			provider = EXCLUDED.provider,
			imap_server = EXCLUDED.imap_server,
			imap_username = EXCLUDED.imap_username,
			encrypted_imap_password = EXCLUDED.encrypted_imap_password,
			smtp_server = EXCLUDED.smtp_server,
			smtp_username = EXCLUDED.smtp_username,
			encrypted_smtp_password = EXCLUDED.encrypted_smtp_password,
			status = EXCLUDED.status,
			last_error_kind = EXCLUDED.last_error_kind,
			last_error = EXCLUDED.last_error,
			last_error_at = EXCLUDED.last_error_at
		RETURNING created_at
	`,
		account.ID,
		account.TenantID,
		account.Email,
		account.DisplayName,
		string(provider),
		account.IMAPServer,
		account.IMAPUsername,
		account.EncryptedIMAPPassword,
		account.SMTPServer,
		account.SMTPUsername,
		account.EncryptedSMTPPassword,
		string(status),
		string(account.LastErrorKind),
		account.LastError,
		account.LastErrorAt,
		createdAt,
	).Scan(&account.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}
	account.Provider = provider
	account.Status = status
	return nil
}

// SetAccountError records a sync failure against the account.
func (s *PostgresStore) SetAccountError(ctx context.Context, id string, kind models.AccountErrorKind, message string, at time.Time) error {
	tag, err := s.q.Exec(ctx, `
		UPDATE accounts
		SET status = 'error', last_error_kind = $2, last_error = $3, last_error_at = $4
		WHERE id = $1
	`, id, string(kind), message, at)
	if err != nil {
		return fmt.Errorf("failed to set account error: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrAccountNotFound
	}
	return nil
}

// ClearAccountError marks the account healthy again.
func (s *PostgresStore) ClearAccountError(ctx context.Context, id string) error {
	tag, err := s.q.Exec(ctx, `
		UPDATE accounts
		SET status = 'active', last_error_kind = '', last_error = '', last_error_at = NULL
		WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("failed to clear account error: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrAccountNotFound
	}
	return nil
}
