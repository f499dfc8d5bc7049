package exposure

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"riskgate/internal/domain/account"
	"riskgate/internal/domain/market"
	"riskgate/internal/domain/position"
	"riskgate/pkg/errors"
)

// Exposure of one symbol after a candidate quantity is added
type Exposure struct {
	Symbol              string          `json:"symbol"`
	Price               decimal.Decimal `json:"price"`
	CurrentNotional     decimal.Decimal `json:"current_notional"`
	ProjectedNotional   decimal.Decimal `json:"projected_notional"`
	PercentageOfCapital decimal.Decimal `json:"percentage_of_capital"`
}

// Calculator computes capital exposure from ledger snapshots and live prices
type Calculator struct {
	prices       market.PriceFeed
	ledger       position.Ledger
	accounts     account.Store
	priceTimeout time.Duration
}

// NewCalculator creates an exposure calculator
func NewCalculator(prices market.PriceFeed, ledger position.Ledger, accounts account.Store, priceTimeout time.Duration) *Calculator {
	return &Calculator{
		prices:       prices,
		ledger:       ledger,
		accounts:     accounts,
		priceTimeout: priceTimeout,
	}
}

// Price fetches the current price under the price timeout
func (c *Calculator) Price(ctx context.Context, symbol string) (decimal.Decimal, error) {
	ctx, cancel := context.WithTimeout(ctx, c.priceTimeout)
	defer cancel()

	price, err := c.prices.CurrentPrice(ctx, symbol)
	if err != nil {
		return decimal.Zero, errors.Wrapf(errors.Join(errors.ErrPriceUnavailable, err), "price for %s", symbol)
	}
	if !price.IsPositive() {
		return decimal.Zero, errors.Wrapf(errors.ErrPriceUnavailable, "non-positive price for %s", symbol)
	}
	return price, nil
}

// ExposureFor fetches positions, balance and price, then computes the projected exposure
func (c *Calculator) ExposureFor(ctx context.Context, userID uuid.UUID, symbol string, candidateQty decimal.Decimal) (Exposure, error) {
	positions, err := c.ledger.OpenPositions(ctx, userID)
	if err != nil {
		return Exposure{}, errors.Wrap(errors.Join(errors.ErrDependencyUnavailable, err), "open positions")
	}
	balance, err := c.accounts.Balance(ctx, userID)
	if err != nil {
		return Exposure{}, errors.Wrap(errors.Join(errors.ErrDependencyUnavailable, err), "balance")
	}
	price, err := c.Price(ctx, symbol)
	if err != nil {
		return Exposure{}, err
	}
	return Compute(positions, symbol, candidateQty, price, balance), nil
}

// Compute sums |quantity| x price over open positions in symbol plus the
// candidate quantity and divides by balance. A non-positive balance with
// any exposure counts as fully exposed.
func Compute(positions []position.Position, symbol string, candidateQty, price, balance decimal.Decimal) Exposure {
	current := decimal.Zero
	for _, p := range positions {
		if sameSymbol(p.Symbol, symbol) {
			current = current.Add(p.Notional(price))
		}
	}
	projected := current.Add(candidateQty.Abs().Mul(price))

	return Exposure{
		Symbol:              symbol,
		Price:               price,
		CurrentNotional:     current,
		ProjectedNotional:   projected,
		PercentageOfCapital: fraction(projected, balance),
	}
}

// TotalFraction is the exposure across every symbol including the projected one.
// Other symbols are priced live, concurrently and under a single price timeout;
// when a price is unavailable the entry price is used.
func (c *Calculator) TotalFraction(ctx context.Context, positions []position.Position, projected Exposure, balance decimal.Decimal) decimal.Decimal {
	prices := make(map[string]decimal.Decimal)
	for _, p := range positions {
		if !sameSymbol(p.Symbol, projected.Symbol) {
			prices[strings.ToUpper(p.Symbol)] = decimal.Zero
		}
	}

	if len(prices) > 0 {
		ctx, cancel := context.WithTimeout(ctx, c.priceTimeout)
		defer cancel()

		var (
			mu sync.Mutex
			eg errgroup.Group
		)
		for symbol := range prices {
			symbol := symbol
			eg.Go(func() error {
				price, err := c.prices.CurrentPrice(ctx, symbol)
				if err != nil || !price.IsPositive() {
					return nil
				}
				mu.Lock()
				prices[symbol] = price
				mu.Unlock()
				return nil
			})
		}
		_ = eg.Wait()
	}

	total := projected.ProjectedNotional
	for _, p := range positions {
		if sameSymbol(p.Symbol, projected.Symbol) {
			continue
		}
		price := prices[strings.ToUpper(p.Symbol)]
		if !price.IsPositive() {
			price = p.EntryPrice
		}
		total = total.Add(p.Notional(price))
	}
	return fraction(total, balance)
}

func fraction(notional, balance decimal.Decimal) decimal.Decimal {
	if !balance.IsPositive() {
		if notional.IsPositive() {
			return decimal.NewFromInt(1)
		}
		return decimal.Zero
	}
	return notional.Div(balance)
}

func sameSymbol(a, b string) bool {
	return strings.EqualFold(a, b)
}
