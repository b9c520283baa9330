package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tallybook-dev/tallybook/internal/accounts"
	"github.com/tallybook-dev/tallybook/internal/store/postgres"
)

func newSeedCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "seed <accounts.csv>",
		Short: "Load accounts from a CSV seed file into the database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd, configPath, args[0])
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "tallybook.yaml", "path to the config file")
	return cmd
}

func runSeed(cmd *cobra.Command, configPath, seedPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if cfg.Database.DSN == "" {
		return fmt.Errorf("seeding requires a configured database DSN")
	}

	f, err := os.Open(seedPath)
	if err != nil {
		return fmt.Errorf("opening seed file: %w", err)
	}
	defer f.Close()

	accts, err := accounts.ReadAccounts(f)
	if err != nil {
		return err
	}
	if len(accts) == 0 {
		return fmt.Errorf("seed file %s contains no accounts", seedPath)
	}

	pg, err := postgres.Open(cfg.Database.DSN)
	if err != nil {
		return err
	}
	defer pg.Close()

	ctx := cmd.Context()
	if err := pg.EnsureSchema(ctx); err != nil {
		return err
	}
	for _, acct := range accts {
		if err := pg.PutAccount(ctx, acct); err != nil {
			return err
		}
	}

	cmd.Printf("Seeded %d accounts from %s\n", len(accts), seedPath)
	return nil
}
