package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/vdavid/threadsync/internal/config"
	"github.com/vdavid/threadsync/internal/db"
	"github.com/vdavid/threadsync/internal/logger"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE:  runMigrate,
}

func runMigrate(_ *cobra.Command, _ []string) error {
	cfg, err := config.NewConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.New(logger.Config{Level: cfg.LogLevel, Development: cfg.Environment == "development", LogFile: cfg.LogFile})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	return db.Migrate(cfg.GetDatabaseURL(), log.Named("migrate"))
}
