package redis

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"riskgate/internal/domain/market"
	"riskgate/pkg/errors"
)

// Compile-time check
var _ market.PriceFeed = (*PriceFeed)(nil)

// hashReader is the subset of *redis.Client the price feed needs
type hashReader interface {
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
}

const pricePrefix = "market:price:"

// PriceFeed reads price snapshots published by the market data service.
// Each symbol is a hash at market:price:<SYMBOL> with the fields
// price, volatility and updated_at (unix milliseconds).
type PriceFeed struct {
	rdb    hashReader
	maxAge time.Duration
	now    func() time.Time
}

// NewPriceFeed creates a feed. Snapshots older than maxAge are treated as missing;
// zero disables the staleness check.
func NewPriceFeed(rdb hashReader, maxAge time.Duration) *PriceFeed {
	return &PriceFeed{rdb: rdb, maxAge: maxAge, now: time.Now}
}

type snapshot struct {
	price      decimal.Decimal
	volatility decimal.Decimal
	hasVol     bool
}

func (f *PriceFeed) snapshot(ctx context.Context, symbol string) (snapshot, error) {
	key := pricePrefix + strings.ToUpper(symbol)
	fields, err := f.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return snapshot{}, errors.Wrapf(errors.ErrPriceUnavailable, "%s: %v", symbol, err)
	}
	if len(fields) == 0 {
		return snapshot{}, errors.Wrapf(errors.ErrPriceUnavailable, "%s: no snapshot", symbol)
	}

	if f.maxAge > 0 {
		ms, err := strconv.ParseInt(fields["updated_at"], 10, 64)
		if err != nil {
			return snapshot{}, errors.Wrapf(errors.ErrPriceUnavailable, "%s: bad updated_at", symbol)
		}
		if age := f.now().Sub(time.UnixMilli(ms)); age > f.maxAge {
			return snapshot{}, errors.Wrapf(errors.ErrPriceUnavailable, "%s: snapshot is %s old", symbol, age.Round(time.Second))
		}
	}

	var s snapshot
	s.price, err = decimal.NewFromString(fields["price"])
	if err != nil || !s.price.IsPositive() {
		return snapshot{}, errors.Wrapf(errors.ErrPriceUnavailable, "%s: bad price %q", symbol, fields["price"])
	}
	if v, ok := fields["volatility"]; ok {
		s.volatility, err = decimal.NewFromString(v)
		s.hasVol = err == nil
	}
	return s, nil
}

// CurrentPrice implements market.PriceFeed
func (f *PriceFeed) CurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	s, err := f.snapshot(ctx, symbol)
	if err != nil {
		return decimal.Zero, err
	}
	return s.price, nil
}

// Volatility implements market.PriceFeed
func (f *PriceFeed) Volatility(ctx context.Context, symbol string) (decimal.Decimal, error) {
	s, err := f.snapshot(ctx, symbol)
	if err != nil {
		return decimal.Zero, err
	}
	if !s.hasVol {
		return decimal.Zero, errors.Wrapf(errors.ErrPriceUnavailable, "%s: no volatility", symbol)
	}
	return s.volatility, nil
}
