package cli

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"securities-trader/internal/logging"
	"securities-trader/internal/trading"
	"securities-trader/pkg/utils"
)

// newFundsCmd creates the funds command showing per-currency balances.
func newFundsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "funds",
		Short: "Show free balances grouped by currency",
		RunE: func(cmd *cobra.Command, args []string) error {
			fm := trading.NewFundManager(app.Broker, logging.FromContext(cmd.Context()))
			groups, err := fm.Groups(cmd.Context(), app.Config.Trading.UserID)
			if err != nil {
				return err
			}

			if len(groups) == 0 {
				fmt.Println("No balances.")
				return nil
			}

			bold := color.New(color.Bold)
			for _, g := range groups {
				bold.Printf("%s  total free %s\n", g.Currency, utils.FormatMoney(g.TotalFree, g.Currency))
				for _, a := range g.Accounts {
					place := a.HoldingPlace
					if place == "" {
						place = "-"
					}
					fmt.Printf("  account %d  free %s  blocked %s  at %s\n",
						a.AccountID,
						utils.FormatMoney(a.Free, ""),
						utils.FormatMoney(a.Blocked, ""),
						place)
				}
			}
			return nil
		},
	}
}

// newRateCmd creates the rate command showing an exchange rate.
func newRateCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "rate <from> <to>",
		Short: "Show the exchange rate between two currencies",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			now := time.Now()
			rate, err := app.Broker.ExchangeRate(cmd.Context(), args[0], args[1], now.AddDate(0, 0, -7), now)
			if err != nil {
				return err
			}
			fmt.Printf("%s/%s = %s\n", args[0], args[1], rate.String())
			return nil
		},
	}
}
