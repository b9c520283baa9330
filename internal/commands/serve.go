package commands

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/tallybook-dev/tallybook/internal/config"
	"github.com/tallybook-dev/tallybook/internal/events"
	"github.com/tallybook-dev/tallybook/internal/ledger"
	"github.com/tallybook-dev/tallybook/internal/reconcile"
	"github.com/tallybook-dev/tallybook/internal/server"
	"github.com/tallybook-dev/tallybook/internal/store/memory"
	"github.com/tallybook-dev/tallybook/internal/store/postgres"
)

func newServeCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the expense ledger HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "tallybook.yaml", "path to the config file")
	return cmd
}

// loadConfig reads the YAML config (falling back to defaults when the
// file is absent) and applies environment overrides. A local .env file
// is honored when present.
func loadConfig(path string) (*config.Config, error) {
	_ = godotenv.Load()

	cfg := config.Default()
	if _, err := os.Stat(path); err == nil {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		cfg.Database.DSN = dsn
	}
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.Kafka.Brokers = strings.Split(brokers, ",")
	}
	if addr := os.Getenv("LISTEN_ADDR"); addr != "" {
		cfg.ListenAddr = addr
	}

	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = "tallybook.expenses"
	}
	if cfg.Reconcile.Dir == "" {
		cfg.Reconcile.Dir = "data"
	}
	return cfg, nil
}

func runServe(configPath string) error {
	logger := log.New(os.Stderr, "tallybook ", log.LstdFlags)

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		accountStore  ledger.AccountStore
		expenseStore  ledger.ExpenseStore
		cashFlowStore ledger.CashFlowStore
	)
	if cfg.Database.DSN != "" {
		pg, err := postgres.Open(cfg.Database.DSN)
		if err != nil {
			return err
		}
		defer pg.Close()
		if err := pg.EnsureSchema(ctx); err != nil {
			return err
		}
		accountStore, expenseStore, cashFlowStore = pg.Accounts(), pg.Expenses(), pg.CashFlows()
		logger.Printf("using postgres store")
	} else {
		mem := memory.NewStore()
		accountStore, expenseStore, cashFlowStore = mem.Accounts(), mem.Expenses(), mem.CashFlows()
		logger.Printf("no database configured, using in-memory store")
	}

	var publisher events.Publisher = events.NopPublisher{}
	if len(cfg.Kafka.Brokers) > 0 {
		kp := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer kp.Close()
		publisher = kp
		logger.Printf("publishing events to %s", cfg.Kafka.Topic)
	}

	eng := ledger.NewEngine(accountStore, expenseStore, cashFlowStore, cfg.Catalog(), reconcile.NewQueue(cfg.Reconcile.Dir))
	srv := server.New(eng, publisher, logger)

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()
	logger.Printf("listening on %s", cfg.ListenAddr)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	}
}
