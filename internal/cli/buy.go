package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"securities-trader/internal/errors"
	"securities-trader/internal/models"
	"securities-trader/internal/trading"
	"securities-trader/pkg/utils"
)

// newBuyCmd creates the buy command running one full order flow: commission
// estimate, funding classification, rebalance consent, SMS confirmation and
// submission.
func newBuyCmd(app *App) *cobra.Command {
	var (
		orderType string
		price     string
		quantity  int64
		currency  string
		expiry    string
	)

	cmd := &cobra.Command{
		Use:   "buy <isin>",
		Short: "Buy a security, consolidating funds across accounts if needed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			p, err := decimal.NewFromString(price)
			if err != nil {
				return errors.NewValidationError("price", price, "not a valid amount")
			}

			req := models.OrderRequest{
				ISIN:     args[0],
				Side:     models.SideBuy,
				Type:     models.OrderType(strings.ToUpper(orderType)),
				Price:    p,
				Quantity: quantity,
				Currency: strings.ToUpper(currency),
			}
			if expiry != "" {
				exp, err := time.ParseInLocation("2006-01-02", expiry, time.Local)
				if err != nil {
					return errors.NewValidationError("expiry", expiry, "expected YYYY-MM-DD")
				}
				req.Expiry = exp
			}

			estimator := trading.NewCommissionEstimator(
				app.Broker,
				app.Config.Trading.DefaultCurrency,
				app.Config.Funding.CommissionDebounce,
				app.Config.API.Timeout,
				app.Logger,
			)
			defer estimator.Close()
			estimator.OnUpdate(func(q models.CommissionQuote) {
				fmt.Printf("Estimated commission: %s\n", utils.FormatMoney(q.Amount, q.Currency))
			})

			orch := trading.NewOrchestrator(trading.OrchestratorConfig{
				Broker:          app.Broker,
				Gate:            trading.NewConfirmationGate(app.Verifier, app.Config.Funding.ConfirmCooldown),
				Estimator:       estimator,
				Classifier:      trading.Classifier{CrossCurrencyFunding: app.Config.Funding.CrossCurrencyFunding},
				Planner:         trading.Planner{CentralDepository: app.Config.Funding.CentralDepository},
				Journal:         journalOrNil(app),
				Logger:          app.Logger,
				UserID:          app.Config.Trading.UserID,
				Phone:           app.Config.Phone.Number,
				DefaultCurrency: app.Config.Trading.DefaultCurrency,
			})

			if err := orch.SelectType(req); err != nil {
				return err
			}

			decision, err := orch.RequestSubmission(ctx)
			if err != nil {
				return err
			}

			switch decision {
			case models.FundingNeedsTopUp:
				color.Yellow("Available funds do not cover this order. Please top up your account first.")
				return nil
			case models.FundingNeedsRebalance, models.FundingNeedsRebalanceWithConversion:
				printPlan(orch.Plan())
				if !promptYesNo("Consolidate funds as shown above?") {
					orch.DeclineRebalance()
					fmt.Println("Order not submitted.")
					return nil
				}
				if err := orch.AcceptRebalance(ctx); err != nil {
					return err
				}
			}

			fmt.Println("A confirmation code was sent to your registered phone.")
			for {
				code := promptLine("Enter code (or \"resend\" / \"cancel\"): ")
				switch code {
				case "cancel":
					if err := orch.CancelConfirmation(); err != nil {
						return err
					}
					fmt.Println("Order not submitted.")
					return nil
				case "resend":
					if err := orch.ResendCode(ctx); err != nil {
						if errors.Is(err, errors.ErrCooldownActive) {
							color.Yellow("%v", err)
							continue
						}
						return err
					}
					fmt.Println("Code resent.")
					continue
				}

				err = orch.Confirm(ctx, code)
				if err == nil {
					break
				}
				if errors.Is(err, errors.ErrCodeRejected) {
					color.Yellow("Code rejected, try again.")
					continue
				}
				color.Red("Order failed: %v", err)
				return err
			}

			color.Green("Order %s accepted.", orch.OrderID())
			return nil
		},
	}

	cmd.Flags().StringVar(&orderType, "type", "limit", "order type (limit|market)")
	cmd.Flags().StringVar(&price, "price", "", "limit price, or reference price for market orders")
	cmd.Flags().Int64Var(&quantity, "qty", 0, "quantity")
	cmd.Flags().StringVar(&currency, "currency", "", "settlement currency (defaults to the configured currency)")
	cmd.Flags().StringVar(&expiry, "expiry", "", "expiry date YYYY-MM-DD")
	cmd.MarkFlagRequired("price")
	cmd.MarkFlagRequired("qty")

	return cmd
}

func journalOrNil(app *App) trading.Journal {
	if app.Journal == nil {
		return nil
	}
	return app.Journal
}

func printPlan(plan models.TransferPlan) {
	fmt.Println("Funds must be consolidated before this order can be executed:")
	for i, step := range plan {
		conv := ""
		if step.ConversionNeeded {
			conv = "  (currency conversion)"
		}
		fmt.Printf("  %d. move %s from account %d to account %d%s\n",
			i+1, utils.FormatMoney(step.Amount, step.Currency), step.FromAccountID, step.ToAccountID, conv)
	}
	if plan.HasConversion() {
		fmt.Println("Converted amounts are settled at the exchange rate applicable on execution.")
	}
}

func promptYesNo(question string) bool {
	answer := promptLine(question + " [y/N]: ")
	return answer == "y" || answer == "yes"
}

func promptLine(prompt string) string {
	fmt.Print(prompt)
	scanner := bufio.NewScanner(os.Stdin)
	if !scanner.Scan() {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(scanner.Text()))
}
