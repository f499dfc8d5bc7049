package testsupport

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"riskgate/internal/domain/alert"
	"riskgate/internal/domain/position"
	"riskgate/pkg/errors"
)

// PriceFeed is a settable market.PriceFeed
type PriceFeed struct {
	mu         sync.Mutex
	prices     map[string]decimal.Decimal
	volatility map[string]decimal.Decimal
	hang       bool
	Err        error
	Calls      int
}

// NewPriceFeed creates an empty feed
func NewPriceFeed() *PriceFeed {
	return &PriceFeed{
		prices:     make(map[string]decimal.Decimal),
		volatility: make(map[string]decimal.Decimal),
	}
}

// Set stores price and volatility for a symbol
func (f *PriceFeed) Set(symbol string, price, volatility decimal.Decimal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prices[strings.ToUpper(symbol)] = price
	f.volatility[strings.ToUpper(symbol)] = volatility
}

// SetPrice updates the price only
func (f *PriceFeed) SetPrice(symbol string, price decimal.Decimal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prices[strings.ToUpper(symbol)] = price
}

// Fail makes every call return err (nil to recover)
func (f *PriceFeed) Fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Err = err
}

// Hang makes every call block until its context is done
func (f *PriceFeed) Hang(hang bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hang = hang
}

func (f *PriceFeed) hanging() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hang
}

// CurrentPrice implements market.PriceFeed
func (f *PriceFeed) CurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if f.hanging() {
		<-ctx.Done()
		return decimal.Zero, ctx.Err()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls++
	if f.Err != nil {
		return decimal.Zero, f.Err
	}
	p, ok := f.prices[strings.ToUpper(symbol)]
	if !ok {
		return decimal.Zero, errors.ErrPriceUnavailable
	}
	return p, nil
}

// Volatility implements market.PriceFeed
func (f *PriceFeed) Volatility(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if f.hanging() {
		<-ctx.Done()
		return decimal.Zero, ctx.Err()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return decimal.Zero, f.Err
	}
	v, ok := f.volatility[strings.ToUpper(symbol)]
	if !ok {
		return decimal.Zero, errors.ErrPriceUnavailable
	}
	return v, nil
}

// Ledger is an in-memory position.Ledger that records close commands
type Ledger struct {
	mu        sync.Mutex
	positions map[uuid.UUID][]position.Position
	closes    []position.CloseRequest
	ReadErr   error
	CloseErr  error
	// CloseRemoves removes a position from the book as soon as a close succeeds
	CloseRemoves bool
}

// NewLedger creates an empty ledger
func NewLedger() *Ledger {
	return &Ledger{positions: make(map[uuid.UUID][]position.Position)}
}

// Open adds a position
func (l *Ledger) Open(p position.Position) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.positions[p.UserID] = append(l.positions[p.UserID], p)
}

// Remove drops a position as if it was closed elsewhere
func (l *Ledger) Remove(userID, positionID uuid.UUID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.removeLocked(userID, positionID)
}

func (l *Ledger) removeLocked(userID, positionID uuid.UUID) {
	kept := l.positions[userID][:0]
	for _, p := range l.positions[userID] {
		if p.ID != positionID {
			kept = append(kept, p)
		}
	}
	l.positions[userID] = kept
}

// SetErrors configures read and close failures
func (l *Ledger) SetErrors(readErr, closeErr error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ReadErr = readErr
	l.CloseErr = closeErr
}

// OpenPositions implements position.Ledger
func (l *Ledger) OpenPositions(ctx context.Context, userID uuid.UUID) ([]position.Position, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ReadErr != nil {
		return nil, l.ReadErr
	}
	out := make([]position.Position, len(l.positions[userID]))
	copy(out, l.positions[userID])
	return out, nil
}

// ClosePosition implements position.Ledger
func (l *Ledger) ClosePosition(ctx context.Context, req position.CloseRequest) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closes = append(l.closes, req)
	if l.CloseErr != nil {
		return l.CloseErr
	}
	if l.CloseRemoves {
		l.removeLocked(req.UserID, req.PositionID)
	}
	return nil
}

// Closes returns every close request received, including failed ones
func (l *Ledger) Closes() []position.CloseRequest {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]position.CloseRequest, len(l.closes))
	copy(out, l.closes)
	return out
}

// Accounts is a settable account.Store
type Accounts struct {
	mu       sync.Mutex
	balances map[uuid.UUID]decimal.Decimal
	peaks    map[uuid.UUID]decimal.Decimal
	Err      error
	PeakErr  error
}

// NewAccounts creates an empty store
func NewAccounts() *Accounts {
	return &Accounts{
		balances: make(map[uuid.UUID]decimal.Decimal),
		peaks:    make(map[uuid.UUID]decimal.Decimal),
	}
}

// Set stores balance and peak balance
func (a *Accounts) Set(userID uuid.UUID, balance, peak decimal.Decimal) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.balances[userID] = balance
	a.peaks[userID] = peak
}

// Balance implements account.Store
func (a *Accounts) Balance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.Err != nil {
		return decimal.Zero, a.Err
	}
	b, ok := a.balances[userID]
	if !ok {
		return decimal.Zero, errors.ErrNotFound
	}
	return b, nil
}

// PeakBalance implements account.Store
func (a *Accounts) PeakBalance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.Err != nil {
		return decimal.Zero, a.Err
	}
	if a.PeakErr != nil {
		return decimal.Zero, a.PeakErr
	}
	return a.peaks[userID], nil
}

// Sink records delivered alerts
type Sink struct {
	mu        sync.Mutex
	delivered []alert.RiskAlert
	Err       error
}

// Deliver implements alert.Sink
func (s *Sink) Deliver(ctx context.Context, a alert.RiskAlert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.delivered = append(s.delivered, a)
	return nil
}

// Delivered returns a copy of delivered alerts
func (s *Sink) Delivered() []alert.RiskAlert {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]alert.RiskAlert, len(s.delivered))
	copy(out, s.delivered)
	return out
}
