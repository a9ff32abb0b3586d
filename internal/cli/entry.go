package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"trackbus/internal/services"
)

var (
	expenseInput services.ExpenseInput
	saleInput    services.SaleInput
	entryTimeout time.Duration
)

var expenseCmd = &cobra.Command{
	Use:   "expense",
	Short: "Record expenses",
}

var expenseAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add an expense",
	Long:  `Adds an expense. The total cost is the per-unit cost times the quantity.`,
	Example: `  trackbus expense add --type "shuttle cost" --description fuel \
    --date 2024-06-01 --per-unit-cost 10 --quantity 3`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return submit(cmd, func(ctx context.Context, a *app) (string, error) {
			return a.entries.SubmitExpense(ctx, expenseInput)
		})
	},
}

var saleCmd = &cobra.Command{
	Use:   "sale",
	Short: "Record sales",
}

var saleAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a sale",
	Long:  `Adds a sale. The total sale price is the per-unit price times the quantity.`,
	Example: `  trackbus sale add --type "shuttle sale" --description ride \
    --date 2024-06-02 --per-unit-sale-price 2.5 --quantity 4`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return submit(cmd, func(ctx context.Context, a *app) (string, error) {
			return a.entries.SubmitSale(ctx, saleInput)
		})
	},
}

func init() {
	ef := expenseAddCmd.Flags()
	ef.StringVar(&expenseInput.Type, "type", "", "Type of expense")
	ef.StringVar(&expenseInput.Description, "description", "", "What the expense was for")
	ef.StringVar(&expenseInput.Date, "date", "", "Date of the expense (YYYY-MM-DD)")
	ef.StringVar(&expenseInput.PerUnitCost, "per-unit-cost", "", "Cost of one unit")
	ef.StringVar(&expenseInput.Quantity, "quantity", "", "Number of units")
	ef.DurationVar(&entryTimeout, "timeout", 30*time.Second, "How long to wait for the session")

	sf := saleAddCmd.Flags()
	sf.StringVar(&saleInput.Type, "type", "", "Type of sale")
	sf.StringVar(&saleInput.Description, "description", "", "What was sold")
	sf.StringVar(&saleInput.Date, "date", "", "Date of the sale (YYYY-MM-DD)")
	sf.StringVar(&saleInput.PerUnitSalePrice, "per-unit-sale-price", "", "Price of one unit")
	sf.StringVar(&saleInput.Quantity, "quantity", "", "Number of units")
	sf.DurationVar(&entryTimeout, "timeout", 30*time.Second, "How long to wait for the session")

	expenseCmd.AddCommand(expenseAddCmd)
	saleCmd.AddCommand(saleAddCmd)
	rootCmd.AddCommand(expenseCmd)
	rootCmd.AddCommand(saleCmd)
}

// submit waits for the session, runs fn and prints the resulting
// notification. A rejected entry is returned as the command error.
func submit(cmd *cobra.Command, fn func(context.Context, *app) (string, error)) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	stop := a.start(cmd.Context())

	ctx, cancel := context.WithTimeout(cmd.Context(), entryTimeout)
	defer cancel()
	if err := a.waitLoaded(ctx); err != nil {
		_ = stop()
		return err
	}

	id, err := fn(ctx, a)
	if n, ok := a.notifier.Current(); ok {
		fmt.Fprintln(cmd.OutOrStdout(), n.Message)
	}
	if err != nil {
		_ = stop()
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "id: %s\n", id)
	return stop()
}
