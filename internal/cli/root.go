// Package cli provides the command-line interface for the trading client.
package cli

import (
	"context"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"securities-trader/internal/broker"
	"securities-trader/internal/config"
	"securities-trader/internal/logging"
	"securities-trader/internal/models"
	"securities-trader/internal/store"
)

// Version information
const Version = "0.1.0"

// App holds the application dependencies.
type App struct {
	Config   *config.Config
	Logger   zerolog.Logger
	Broker   broker.Brokerage
	Verifier broker.PhoneVerifier
	Journal  *store.SQLiteJournal
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(cfg *config.Config, logger zerolog.Logger) *cobra.Command {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	switch cfg.Trading.Mode {
	case "live":
		rest := broker.NewRESTBroker(broker.RESTConfig{
			BaseURL: cfg.API.BaseURL,
			APIKey:  cfg.API.APIKey,
			Timeout: cfg.API.Timeout,
			Logger:  logger,
		})
		app.Broker = rest
		app.Verifier = rest
		logger.Debug().Str("base_url", cfg.API.BaseURL).Msg("REST broker initialized")
	default:
		paper := broker.NewPaperBroker(demoBalances())
		app.Broker = paper
		app.Verifier = paper
		logger.Debug().Msg("Paper broker initialized")
	}

	dbPath := filepath.Join(config.DefaultConfigDir(), "journal.db")
	journal, err := store.NewSQLiteJournal(dbPath)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to open journal, settlement events will not be recorded")
	} else {
		app.Journal = journal
	}

	rootCmd := &cobra.Command{
		Use:          "trader",
		Short:        "Securities trading client with multi-account fund rebalancing",
		Version:      Version,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(newFundsCmd(app))
	rootCmd.AddCommand(newRateCmd(app))
	rootCmd.AddCommand(newBuyCmd(app))

	return rootCmd
}

// Execute loads configuration and runs the root command.
func Execute() error {
	cfg, err := config.Load("")
	if err != nil {
		return err
	}

	logCfg := logging.DefaultLogConfig()
	logCfg.Level = cfg.Logging.Level
	logCfg.Console = cfg.Logging.Console
	logCfg.File = cfg.Logging.File
	logger := logging.NewLoggerWithConfig(logCfg)

	ctx := logging.WithLogger(context.Background(), logger)
	return NewRootCmd(cfg, logger).ExecuteContext(ctx)
}

// demoBalances returns the scripted paper-mode balance snapshot.
func demoBalances() []models.AccountBalance {
	return []models.AccountBalance{
		{
			AccountID:    1001,
			Currency:     "EUR",
			Free:         decimal.NewFromInt(300),
			HoldingPlace: "central depository",
			SubAccount:   "100-1",
			IBAN:         "DE02100100100006820101",
		},
		{
			AccountID:  1002,
			Currency:   "EUR",
			Free:       decimal.NewFromInt(250),
			SubAccount: "100-2",
			IBAN:       "DE02100100100006820102",
		},
		{
			AccountID:  1003,
			Currency:   "USD",
			Free:       decimal.NewFromInt(1000),
			SubAccount: "100-3",
			IBAN:       "DE02100100100006820103",
		},
	}
}
