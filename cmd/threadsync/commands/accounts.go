package commands

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/vdavid/threadsync/internal/models"
)

var (
	accountID           string
	accountTenant       string
	accountEmail        string
	accountName         string
	accountProvider     string
	accountIMAPServer   string
	accountIMAPUser     string
	accountIMAPPassword string
	accountSMTPServer   string
	accountSMTPUser     string
	accountSMTPPassword string
)

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "Manage connected mail accounts",
	Long:  `List the accounts the scheduler syncs, or connect a new one.`,
	RunE:  runAccountsList,
}

var accountsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Connect a mail account",
	Long: `Store a mail account with its sealed credentials. Gmail and Outlook
accounts default to the providers' IMAP and SMTP servers. SMTP login details
default to the IMAP ones.`,
	RunE: runAccountsAdd,
}

func init() {
	f := accountsAddCmd.Flags()
	f.StringVar(&accountID, "id", "", "Account id (default: a new UUID)")
	f.StringVar(&accountTenant, "tenant", "", "Owning tenant id")
	f.StringVar(&accountEmail, "email", "", "Account email address")
	f.StringVar(&accountName, "name", "", "Display name used on sent mail")
	f.StringVar(&accountProvider, "provider", string(models.ProviderIMAP), "Provider: imap, gmail, outlook")
	f.StringVar(&accountIMAPServer, "imap-server", "", "IMAP host:port")
	f.StringVar(&accountIMAPUser, "imap-user", "", "IMAP username (default: the email)")
	f.StringVar(&accountIMAPPassword, "imap-password", "", "IMAP password")
	f.StringVar(&accountSMTPServer, "smtp-server", "", "SMTP host:port")
	f.StringVar(&accountSMTPUser, "smtp-user", "", "SMTP username")
	f.StringVar(&accountSMTPPassword, "smtp-password", "", "SMTP password")
	_ = accountsAddCmd.MarkFlagRequired("tenant")
	_ = accountsAddCmd.MarkFlagRequired("email")
	_ = accountsAddCmd.MarkFlagRequired("imap-password")

	accountsCmd.AddCommand(accountsAddCmd)
}

func runAccountsAdd(cmd *cobra.Command, _ []string) error {
	provider := models.ProviderType(accountProvider)
	switch provider {
	case models.ProviderIMAP, models.ProviderGmail, models.ProviderOutlook:
	default:
		return fmt.Errorf("unknown provider %q", accountProvider)
	}
	if provider == models.ProviderIMAP && accountIMAPServer == "" {
		return errors.New("--imap-server is required for provider imap")
	}

	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	id := accountID
	if id == "" {
		id = uuid.NewString()
	}

	account := &models.Account{
		ID:           id,
		TenantID:     accountTenant,
		Email:        accountEmail,
		DisplayName:  accountName,
		Provider:     provider,
		IMAPServer:   accountIMAPServer,
		IMAPUsername: accountIMAPUser,
		SMTPServer:   accountSMTPServer,
		SMTPUsername: accountSMTPUser,
		Status:       models.AccountStatusActive,
	}

	if account.EncryptedIMAPPassword, err = a.encryptor.Seal(id, accountIMAPPassword); err != nil {
		return err
	}
	if accountSMTPPassword != "" {
		if account.EncryptedSMTPPassword, err = a.encryptor.Seal(id, accountSMTPPassword); err != nil {
			return err
		}
	}

	if err := a.store.PutAccount(cmd.Context(), account); err != nil {
		return err
	}

	if outputFormat == "json" {
		return outputJSON(account)
	}
	fmt.Printf("Added account %s (%s)\n", account.ID, account.Email)
	return nil
}

func runAccountsList(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	accounts, err := a.store.ListActiveAccounts(cmd.Context())
	if err != nil {
		return err
	}

	if outputFormat == "json" {
		return outputJSON(accounts)
	}

	if len(accounts) == 0 {
		fmt.Println("No active accounts.")
		return nil
	}
	for _, account := range accounts {
		line := fmt.Sprintf("%s  %s  [%s]", account.ID, account.Email, account.Status)
		if account.LastError != "" {
			line += fmt.Sprintf("  last error (%s): %s", account.LastErrorKind, account.LastError)
		}
		fmt.Println(line)
	}
	return nil
}
