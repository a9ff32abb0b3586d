package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trackbus/internal/core"
	"trackbus/internal/services"
	"trackbus/internal/store"
	"trackbus/internal/store/memory"
)

const seedTOML = `
[[partners]]
id = "p1"
name = "Alice"
moneyInvested = 600

[[partners]]
id = "p2"
name = "Bob"
moneyInvested = 400

[[sales]]
totalSalePrice = 1500

[[expenses]]
totalCost = 500
`

// memoryEnv points the configuration at a seeded memory backend.
func memoryEnv(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seed.toml")
	require.NoError(t, os.WriteFile(path, []byte(seedTOML), 0o644))

	t.Setenv("PORT", "8081")
	t.Setenv("DATA_BACKEND", "memory")
	t.Setenv("SEED_FILE", path)
	t.Setenv("WATCH_SEED", "false")
	t.Setenv("SESSION_SECRET", "test-secret")
	t.Setenv("INITIAL_AUTH_TOKEN", "")
	t.Setenv("CURRENCY", "AUD")
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("LOG_FORMAT", "text")
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	expenseInput = services.ExpenseInput{}
	saleInput = services.SaleInput{}

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	defer func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
	}()

	err := rootCmd.Execute()
	return out.String(), err
}

func TestReportCmd(t *testing.T) {
	memoryEnv(t)

	out, err := execute(t, "report", "--timeout", "5s")
	require.NoError(t, err)

	assert.Contains(t, out, "Alice")
	assert.Contains(t, out, "Bob")
	assert.Contains(t, out, "60.00%")
	assert.Contains(t, out, money.New(60000, money.AUD).Display())
	assert.Contains(t, out, "Overall profit/loss: "+money.New(100000, money.AUD).Display())
}

func TestExpenseAddCmd(t *testing.T) {
	memoryEnv(t)

	out, err := execute(t, "expense", "add",
		"--type", "shuttle cost",
		"--description", "fuel",
		"--date", "2024-06-01",
		"--per-unit-cost", "10",
		"--quantity", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "Expense added successfully!")
	assert.Contains(t, out, "id: ")
}

func TestSaleAddCmdRejected(t *testing.T) {
	memoryEnv(t)

	out, err := execute(t, "sale", "add", "--description", "ride", "--date", "2024-06-02")
	require.Error(t, err)
	assert.ErrorIs(t, err, services.ErrMissingField)
	assert.Contains(t, out, "Please fill all sale fields.")
}

func TestPartnerAddCmdAppendsToSeed(t *testing.T) {
	path := memoryEnv(t)

	out, err := execute(t, "partner", "add", "--name", "Carol", "--invested", "250", "--date", "2024-03-01")
	require.NoError(t, err)
	assert.Contains(t, out, "Partner Carol added")

	s, err := memory.NewFromFile(path)
	require.NoError(t, err)
	partners := s.Records(store.Partners)
	require.Len(t, partners, 3)
	assert.Equal(t, "Carol", partners[2].Fields[core.FieldName])
	assert.Equal(t, "2024-03-01", partners[2].Fields[core.FieldInvestmentDate])
}

func TestPartnerFields(t *testing.T) {
	_, err := partnerFields(" ", "10", "")
	assert.Error(t, err)

	_, err = partnerFields("Dave", "-5", "")
	assert.ErrorIs(t, err, core.ErrInvalidAmount)

	_, err = partnerFields("Dave", "5", "03/01/2024")
	assert.Error(t, err)

	fields, err := partnerFields("Dave", "5,50", "")
	require.NoError(t, err)
	assert.Equal(t, "5.5", fields[core.FieldMoneyInvested])
	assert.NotContains(t, fields, core.FieldInvestmentDate)
}

func TestInvalidConfig(t *testing.T) {
	memoryEnv(t)
	t.Setenv("DATA_BACKEND", "postgres")

	_, err := execute(t, "report")
	assert.ErrorContains(t, err, "invalid data backend 'postgres'")
}

func TestWriteReport(t *testing.T) {
	var buf bytes.Buffer
	writeReport(&buf, core.Report{
		Totals: core.Totals{
			TotalInvestment:   decimal.NewFromInt(1000),
			OverallProfitLoss: decimal.NewFromInt(-250),
		},
		Partners: []core.PartnerMetric{{
			Partner:                    core.Partner{ID: "p1", Name: "Alice", MoneyInvested: decimal.NewFromInt(1000)},
			PercentOfOverallInvestment: decimal.NewFromInt(100),
			ProfitLoss:                 decimal.NewFromInt(-250),
			PercentOfProfitLoss:        decimal.NewFromInt(-25),
		}},
		ComputedAt: time.Now(),
	}, "EUR")

	out := buf.String()
	assert.Contains(t, out, "Alice")
	assert.Contains(t, out, "-25.00%")
	assert.Contains(t, out, "Total investment:    "+money.New(100000, money.EUR).Display())
}

func TestDisplay(t *testing.T) {
	assert.Equal(t, "A$12.35", display(decimal.RequireFromString("12.345"), money.AUD))
	assert.Equal(t, money.New(1235, money.AUD).Display(), display(decimal.RequireFromString("12.345"), money.AUD))
	assert.Equal(t, "$0.00", display(decimal.Zero, money.USD))
	assert.Equal(t, money.New(-25050, money.EUR).Display(), display(decimal.RequireFromString("-250.5"), money.EUR))
	assert.Equal(t, money.New(1500, money.JPY).Display(), display(decimal.RequireFromString("1499.6"), money.JPY))
	assert.Equal(t, "12.30 XYZ", display(decimal.RequireFromString("12.3"), "XYZ"))
}
