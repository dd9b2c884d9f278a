package ledger

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"upbit-quant-bot/internal/logger"
	"upbit-quant-bot/internal/models"

	"github.com/shopspring/decimal"
)

// Misuse errors. These indicate a caller bug, unlike a rejected trade,
// which is an expected condition reported through TradeResult.
var (
	ErrAmbiguousSize  = errors.New("ledger: exactly one of quantity and amount must be given")
	ErrInvalidPrice   = errors.New("ledger: price must be positive")
	ErrInvalidRate    = errors.New("ledger: commission rate must be in [0, 1)")
	ErrInvalidRatio   = errors.New("ledger: sell ratio must be in (0, 1]")
	ErrInvalidBalance = errors.New("ledger: initial balance must be positive")
)

// TradeResult is the outcome of a buy or sell attempt. Insufficient funds and
// missing holdings are expected conditions and are reported here rather than
// as errors, so callers can distinguish them from programming mistakes.
type TradeResult struct {
	Executed bool
	Reason   string
	Trade    *models.TradeRecord
}

// BuyOrder describes a buy against the account. Exactly one of Quantity and
// Amount must be positive: Amount spends that much cash (commission included),
// Quantity buys that many units (cash requirement derived from price).
type BuyOrder struct {
	Asset      string
	Price      decimal.Decimal
	Quantity   decimal.Decimal
	Amount     decimal.Decimal
	Commission decimal.Decimal
	Timestamp  time.Time // zero value means "now"
}

// SellOrder describes a sell. At most one of Quantity and Ratio may be
// positive; when neither is given the whole holding is sold. A Quantity above
// the current holding is clamped to it (see Sell).
type SellOrder struct {
	Asset      string
	Price      decimal.Decimal
	Quantity   decimal.Decimal
	Ratio      decimal.Decimal
	Commission decimal.Decimal
	Timestamp  time.Time
}

// Account is a virtual trading account: cash balance, per-asset holdings and
// their weighted-average cost basis, and an append-only trade history.
// All monetary arithmetic uses exact decimals; binary floats would accumulate
// rounding error across trades and eventually break the balance invariants.
//
// Every method takes the account lock, so an Account is safe to share between
// the live trading loop and read-only API callers.
type Account struct {
	mu             sync.Mutex
	initialBalance decimal.Decimal
	balance        decimal.Decimal
	holdings       map[string]decimal.Decimal
	avgBuyPrice    map[string]decimal.Decimal
	history        []models.TradeRecord
	createdAt      time.Time
	updatedAt      time.Time
}

// NewAccount creates an account with the given initial cash balance.
func NewAccount(initialBalance decimal.Decimal) (*Account, error) {
	if initialBalance.Sign() <= 0 {
		return nil, ErrInvalidBalance
	}
	now := time.Now()
	return &Account{
		initialBalance: initialBalance,
		balance:        initialBalance,
		holdings:       make(map[string]decimal.Decimal),
		avgBuyPrice:    make(map[string]decimal.Decimal),
		createdAt:      now,
		updatedAt:      now,
	}, nil
}

// Buy executes a buy order. It returns an error only for malformed orders;
// insufficient funds come back as TradeResult{Executed: false}. On success the
// cash balance decreases by the full spent amount, holdings increase, the
// weighted-average buy price is recomputed and a BUY record is appended.
// The operation is all-or-nothing: a rejected buy leaves no partial mutation.
func (a *Account) Buy(o BuyOrder) (TradeResult, error) {
	if err := validateRate(o.Commission); err != nil {
		return TradeResult{}, err
	}
	if o.Price.Sign() <= 0 {
		return TradeResult{}, ErrInvalidPrice
	}
	if o.Quantity.Sign() > 0 == (o.Amount.Sign() > 0) {
		return TradeResult{}, ErrAmbiguousSize
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	one := decimal.New(1, 0)
	net := one.Sub(o.Commission)

	var quantity, spent decimal.Decimal
	if o.Amount.Sign() > 0 {
		// Spend a fixed amount of cash; the commission is carved out of it.
		spent = o.Amount
		quantity = o.Amount.Mul(net).Div(o.Price)
	} else {
		// Buy a fixed quantity; the commission is added on top.
		quantity = o.Quantity
		spent = o.Quantity.Mul(o.Price).Div(net)
	}

	if spent.GreaterThan(a.balance) {
		return TradeResult{
			Reason: fmt.Sprintf("insufficient funds: required %s, balance %s", spent, a.balance),
		}, nil
	}

	a.balance = a.balance.Sub(spent)

	oldQty := a.holdings[o.Asset]
	newQty := oldQty.Add(quantity)
	if oldQty.Sign() > 0 {
		oldAvg := a.avgBuyPrice[o.Asset]
		// Quantity-weighted average cost basis.
		a.avgBuyPrice[o.Asset] = oldQty.Mul(oldAvg).Add(quantity.Mul(o.Price)).Div(newQty)
	} else {
		a.avgBuyPrice[o.Asset] = o.Price
	}
	a.holdings[o.Asset] = newQty

	rec := models.TradeRecord{
		Timestamp:    orderTime(o.Timestamp),
		Type:         models.Buy,
		Asset:        o.Asset,
		Price:        o.Price,
		Quantity:     quantity,
		Amount:       spent,
		Commission:   spent.Sub(quantity.Mul(o.Price)),
		BalanceAfter: a.balance,
	}
	a.history = append(a.history, rec)
	a.updatedAt = rec.Timestamp

	return TradeResult{Executed: true, Trade: &rec}, nil
}

// Sell executes a sell order. Selling with no holdings for the asset is an
// expected failure (TradeResult{Executed: false}). A quantity above the held
// amount is clamped to it: the sell still goes through for everything held.
// Proceeds net of commission are credited to the balance; when the holding
// reaches zero its average buy price entry is removed.
func (a *Account) Sell(o SellOrder) (TradeResult, error) {
	if err := validateRate(o.Commission); err != nil {
		return TradeResult{}, err
	}
	if o.Price.Sign() <= 0 {
		return TradeResult{}, ErrInvalidPrice
	}
	if o.Quantity.Sign() > 0 && o.Ratio.Sign() > 0 {
		return TradeResult{}, ErrAmbiguousSize
	}
	one := decimal.New(1, 0)
	if o.Ratio.Sign() > 0 && o.Ratio.GreaterThan(one) {
		return TradeResult{}, ErrInvalidRatio
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	held, ok := a.holdings[o.Asset]
	if !ok || held.Sign() <= 0 {
		return TradeResult{Reason: fmt.Sprintf("no holdings for %s", o.Asset)}, nil
	}

	var quantity decimal.Decimal
	switch {
	case o.Ratio.Sign() > 0:
		quantity = held.Mul(o.Ratio)
	case o.Quantity.Sign() > 0:
		quantity = o.Quantity
		if quantity.GreaterThan(held) {
			// Clamp rather than oversell; loud so caller sizing bugs surface.
			logger.S().Warnw("sell quantity exceeds holdings, clamping",
				"asset", o.Asset, "requested", o.Quantity, "held", held)
			quantity = held
		}
	default:
		quantity = held
	}

	gross := quantity.Mul(o.Price)
	proceeds := gross.Mul(one.Sub(o.Commission))

	a.balance = a.balance.Add(proceeds)
	remaining := held.Sub(quantity)
	if remaining.Sign() > 0 {
		a.holdings[o.Asset] = remaining
	} else {
		delete(a.holdings, o.Asset)
		delete(a.avgBuyPrice, o.Asset)
	}

	rec := models.TradeRecord{
		Timestamp:    orderTime(o.Timestamp),
		Type:         models.Sell,
		Asset:        o.Asset,
		Price:        o.Price,
		Quantity:     quantity,
		Amount:       proceeds,
		Commission:   gross.Sub(proceeds),
		BalanceAfter: a.balance,
	}
	a.history = append(a.history, rec)
	a.updatedAt = rec.Timestamp

	return TradeResult{Executed: true, Trade: &rec}, nil
}

// Balance returns the current cash balance.
func (a *Account) Balance() decimal.Decimal {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.balance
}

// InitialBalance returns the balance the account started with.
func (a *Account) InitialBalance() decimal.Decimal {
	return a.initialBalance
}

// Holding returns the held quantity for the asset, zero when none.
func (a *Account) Holding(asset string) decimal.Decimal {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.holdings[asset]
}

// AvgBuyPrice returns the weighted-average buy price for the asset.
// The second return value is false when nothing is held.
func (a *Account) AvgBuyPrice(asset string) (decimal.Decimal, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.avgBuyPrice[asset]
	return p, ok
}

// Holdings returns a copy of the holdings map.
func (a *Account) Holdings() map[string]decimal.Decimal {
	a.mu.Lock()
	defer a.mu.Unlock()
	return copyDecimalMap(a.holdings)
}

// TotalValue returns cash plus the value of all holdings at the given prices.
// An asset with no price contributes zero rather than failing: a missing
// ticker must not take down a summary endpoint.
func (a *Account) TotalValue(prices map[string]decimal.Decimal) decimal.Decimal {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.totalValueLocked(prices)
}

func (a *Account) totalValueLocked(prices map[string]decimal.Decimal) decimal.Decimal {
	total := a.balance
	for asset, qty := range a.holdings {
		if price, ok := prices[asset]; ok {
			total = total.Add(qty.Mul(price))
		}
	}
	return total
}

// Summary derives profit/loss against the initial balance at the given prices.
func (a *Account) Summary(prices map[string]decimal.Decimal) models.AccountSummary {
	a.mu.Lock()
	defer a.mu.Unlock()

	totalValue := a.totalValueLocked(prices)
	profitLoss := totalValue.Sub(a.initialBalance)
	hundred := decimal.New(100, 0)

	return models.AccountSummary{
		InitialBalance: a.initialBalance,
		Balance:        a.balance,
		Holdings:       copyDecimalMap(a.holdings),
		AvgBuyPrices:   copyDecimalMap(a.avgBuyPrice),
		TotalValue:     totalValue,
		ProfitLoss:     profitLoss,
		ProfitLossRate: profitLoss.Div(a.initialBalance).Mul(hundred),
		NumTrades:      len(a.history),
		CreatedAt:      a.createdAt,
		UpdatedAt:      a.updatedAt,
	}
}

// History returns the most recent trades, newest first. A non-positive limit
// returns everything. The returned slice is a copy; records are immutable.
func (a *Account) History(limit int) []models.TradeRecord {
	a.mu.Lock()
	defer a.mu.Unlock()

	n := len(a.history)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]models.TradeRecord, 0, n)
	for i := len(a.history) - 1; i >= len(a.history)-n; i-- {
		out = append(out, a.history[i])
	}
	return out
}

// Reset restores the initial balance and clears holdings, average buy prices
// and the in-memory trade history. Executed orders remain in the persistent
// journal, so the audit trail survives a reset.
func (a *Account) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.balance = a.initialBalance
	a.holdings = make(map[string]decimal.Decimal)
	a.avgBuyPrice = make(map[string]decimal.Decimal)
	a.history = nil
	a.updatedAt = time.Now()
}

func validateRate(rate decimal.Decimal) error {
	if rate.Sign() < 0 || rate.GreaterThanOrEqual(decimal.New(1, 0)) {
		return ErrInvalidRate
	}
	return nil
}

func orderTime(ts time.Time) time.Time {
	if ts.IsZero() {
		return time.Now()
	}
	return ts
}

func copyDecimalMap(src map[string]decimal.Decimal) map[string]decimal.Decimal {
	dst := make(map[string]decimal.Decimal, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
