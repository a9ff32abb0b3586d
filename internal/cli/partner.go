package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"trackbus/internal/config"
	"trackbus/internal/core"
	"trackbus/internal/log"
	"trackbus/internal/store"
	"trackbus/internal/store/memory"
)

var (
	partnerName     string
	partnerInvested string
	partnerDate     string
)

var partnerCmd = &cobra.Command{
	Use:   "partner",
	Short: "Manage partners",
}

var partnerAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a partner",
	Long: `Adds a partner record to the configured backend. With the memory
backend the partner is appended to SEED_FILE.`,
	Example: `  trackbus partner add --name Alice --invested 600 --date 2024-01-15`,
	Args:    cobra.NoArgs,
	RunE:    runPartnerAdd,
}

func init() {
	f := partnerAddCmd.Flags()
	f.StringVar(&partnerName, "name", "", "Partner name")
	f.StringVar(&partnerInvested, "invested", "", "Money invested")
	f.StringVar(&partnerDate, "date", "", "Investment date (YYYY-MM-DD)")
	_ = partnerAddCmd.MarkFlagRequired("name")
	_ = partnerAddCmd.MarkFlagRequired("invested")

	partnerCmd.AddCommand(partnerAddCmd)
	rootCmd.AddCommand(partnerCmd)
}

func runPartnerAdd(cmd *cobra.Command, _ []string) error {
	fields, err := partnerFields(partnerName, partnerInvested, partnerDate)
	if err != nil {
		return err
	}

	var id string
	if cfg.DataBackend == config.BackendMemory {
		if cfg.SeedFile == "" {
			return fmt.Errorf("partner add with the memory backend needs SEED_FILE")
		}
		id, err = memory.AppendPartner(cfg.SeedFile, fields)
	} else {
		id, err = addPartner(cmd, fields)
	}
	if err != nil {
		return fmt.Errorf("add partner: %w", err)
	}

	logger.Info("Partner added", log.FieldRecordID, id, log.FieldOperation, log.OpAdd)
	fmt.Fprintf(cmd.OutOrStdout(), "Partner %s added (id: %s)\n", fields[core.FieldName], id)
	return nil
}

func addPartner(cmd *cobra.Command, fields map[string]any) (string, error) {
	a, err := newApp(cmd.Context())
	if err != nil {
		return "", err
	}
	defer func() { _ = a.close() }()
	return a.backend.Source.Add(cmd.Context(), store.Partners, fields)
}

func partnerFields(name, invested, date string) (map[string]any, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("partner name is required")
	}
	amount, err := core.ParseAmount(invested)
	if err != nil {
		return nil, fmt.Errorf("invalid investment %q: %w", invested, err)
	}
	fields := map[string]any{
		core.FieldName:          name,
		core.FieldMoneyInvested: amount.String(),
	}
	if date = strings.TrimSpace(date); date != "" {
		d, err := core.ParseDate(date)
		if err != nil {
			return nil, fmt.Errorf("invalid investment date %q: %w", date, err)
		}
		fields[core.FieldInvestmentDate] = d.String()
	}
	return fields, nil
}
