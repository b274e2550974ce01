package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"tempchat/internal/app/db"
	"tempchat/internal/pkg/logx"
)

var migrateCmd = &cobra.Command{
	Use:       "migrate [up|down|status]",
	Short:     "Run PostgreSQL schema migrations",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"up", "down", "status"},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.DatabaseDSN == "" {
			return fmt.Errorf("DATABASE_URL environment variable is required for migrations")
		}

		pool, err := db.Open(cmd.Context(), cfg.DatabaseDSN)
		if err != nil {
			return err
		}
		defer pool.Close()

		if err := db.Migrate(cmd.Context(), pool, args[0]); err != nil {
			return err
		}

		logx.Info("Migration command finished", "command", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
