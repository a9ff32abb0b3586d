package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"trackbus/internal/core"
)

var reportTimeout time.Duration

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print the partner profit and loss report",
	Long: `Loads every collection from the configured backend, then prints each
partner's share of the investment and of the overall profit or loss.`,
	Args: cobra.NoArgs,
	RunE: runReport,
}

func init() {
	reportCmd.Flags().DurationVarP(&reportTimeout, "timeout", "t", 30*time.Second, "How long to wait for the records to load")
	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	stop := a.start(cmd.Context())

	ctx, cancel := context.WithTimeout(cmd.Context(), reportTimeout)
	defer cancel()
	if err := a.waitLoaded(ctx); err != nil {
		_ = stop()
		return fmt.Errorf("load records: %w", err)
	}

	writeReport(cmd.OutOrStdout(), a.tracker.Report(), cfg.Currency)
	return stop()
}

func writeReport(out io.Writer, r core.Report, currency string) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "PARTNER\tINVESTED\tSHARE\tPROFIT/LOSS\tOF P/L\t")
	for _, p := range r.Partners {
		fmt.Fprintf(w, "%s\t%s\t%s%%\t%s\t%s%%\t\n",
			p.Name,
			display(p.MoneyInvested, currency),
			core.Fixed2(p.PercentOfOverallInvestment),
			display(p.ProfitLoss, currency),
			core.Fixed2(p.PercentOfProfitLoss))
	}
	_ = w.Flush()

	fmt.Fprintln(out)
	fmt.Fprintf(out, "Total investment:    %s\n", display(r.TotalInvestment, currency))
	fmt.Fprintf(out, "Total sales:         %s\n", display(r.TotalSales, currency))
	fmt.Fprintf(out, "Total expenses:      %s\n", display(r.TotalExpenses, currency))
	fmt.Fprintf(out, "Overall profit/loss: %s\n", display(r.OverallProfitLoss, currency))
}

// display formats d in the currency's conventions, for example $1,234.50.
func display(d decimal.Decimal, currency string) string {
	cur := money.GetCurrency(currency)
	if cur == nil {
		return core.Fixed2(d) + " " + currency
	}
	minor := d.Shift(int32(cur.Fraction)).Round(0).IntPart()
	return money.New(minor, currency).Display()
}
