package exposure

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"riskgate/internal/domain/position"
	"riskgate/internal/testsupport"
	"riskgate/pkg/errors"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func setup(t *testing.T) (*Calculator, *testsupport.PriceFeed, *testsupport.Ledger, uuid.UUID) {
	t.Helper()
	prices := testsupport.NewPriceFeed()
	ledger := testsupport.NewLedger()
	accounts := testsupport.NewAccounts()
	userID := uuid.New()
	accounts.Set(userID, dec("1000"), dec("1000"))
	return NewCalculator(prices, ledger, accounts, time.Second), prices, ledger, userID
}

func TestExposureFor_AddsCandidateToOpenPositions(t *testing.T) {
	calc, prices, ledger, userID := setup(t)
	prices.Set("SYM", dec("100"), dec("0.01"))
	ledger.Open(position.Position{ID: uuid.New(), UserID: userID, Symbol: "SYM", Quantity: dec("2"), EntryPrice: dec("90")})
	ledger.Open(position.Position{ID: uuid.New(), UserID: userID, Symbol: "OTHER", Quantity: dec("50"), EntryPrice: dec("1")})

	exp, err := calc.ExposureFor(context.Background(), userID, "SYM", dec("3"))
	require.NoError(t, err)

	assert.True(t, dec("200").Equal(exp.CurrentNotional))
	assert.True(t, dec("500").Equal(exp.ProjectedNotional))
	assert.True(t, dec("0.5").Equal(exp.PercentageOfCapital))
}

func TestExposureFor_ShortsCountByAbsoluteQuantity(t *testing.T) {
	calc, prices, ledger, userID := setup(t)
	prices.Set("SYM", dec("100"), dec("0.01"))
	ledger.Open(position.Position{ID: uuid.New(), UserID: userID, Symbol: "sym", Quantity: dec("-2"), EntryPrice: dec("100")})

	exp, err := calc.ExposureFor(context.Background(), userID, "SYM", dec("-1"))
	require.NoError(t, err)
	assert.True(t, dec("0.3").Equal(exp.PercentageOfCapital))
}

func TestExposureFor_NoPrice(t *testing.T) {
	calc, _, _, userID := setup(t)

	_, err := calc.ExposureFor(context.Background(), userID, "MISSING", dec("1"))
	assert.ErrorIs(t, err, errors.ErrPriceUnavailable)
}

func TestExposureFor_LedgerDown(t *testing.T) {
	calc, prices, ledger, userID := setup(t)
	prices.Set("SYM", dec("100"), dec("0.01"))
	ledger.SetErrors(errors.New("connection refused"), nil)

	_, err := calc.ExposureFor(context.Background(), userID, "SYM", dec("1"))
	assert.ErrorIs(t, err, errors.ErrDependencyUnavailable)
}

func TestCompute_ZeroBalance(t *testing.T) {
	exp := Compute(nil, "SYM", dec("1"), dec("10"), decimal.Zero)
	assert.True(t, decimal.NewFromInt(1).Equal(exp.PercentageOfCapital))
}

func TestTotalFraction_FallsBackToEntryPrice(t *testing.T) {
	calc, prices, _, userID := setup(t)
	prices.Set("SYM", dec("100"), dec("0.01"))
	positions := []position.Position{
		{ID: uuid.New(), UserID: userID, Symbol: "SYM", Quantity: dec("1"), EntryPrice: dec("100")},
		{ID: uuid.New(), UserID: userID, Symbol: "NOPRICE", Quantity: dec("2"), EntryPrice: dec("50")},
	}

	projected := Compute(positions, "SYM", dec("1"), dec("100"), dec("1000"))
	total := calc.TotalFraction(context.Background(), positions, projected, dec("1000"))

	// 200 projected in SYM + 100 priced at entry in NOPRICE
	assert.True(t, dec("0.3").Equal(total))
}

func TestTotalFraction_OtherSymbolsShareOneDeadline(t *testing.T) {
	prices := testsupport.NewPriceFeed()
	prices.Hang(true)
	userID := uuid.New()
	calc := NewCalculator(prices, testsupport.NewLedger(), testsupport.NewAccounts(), 100*time.Millisecond)

	positions := []position.Position{
		{ID: uuid.New(), UserID: userID, Symbol: "AAA", Quantity: dec("1"), EntryPrice: dec("100")},
		{ID: uuid.New(), UserID: userID, Symbol: "BBB", Quantity: dec("1"), EntryPrice: dec("100")},
		{ID: uuid.New(), UserID: userID, Symbol: "CCC", Quantity: dec("1"), EntryPrice: dec("100")},
	}
	projected := Compute(nil, "SYM", dec("1"), dec("100"), dec("1000"))

	start := time.Now()
	total := calc.TotalFraction(context.Background(), positions, projected, dec("1000"))
	elapsed := time.Since(start)

	// three hanging lookups one after another would take 300ms
	assert.Less(t, elapsed, 250*time.Millisecond)
	assert.True(t, dec("0.4").Equal(total))
}
