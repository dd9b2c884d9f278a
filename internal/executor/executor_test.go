package executor

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"upbit-quant-bot/internal/exchange"
	"upbit-quant-bot/internal/ledger"
	"upbit-quant-bot/internal/models"
	"upbit-quant-bot/internal/persistence"
	"upbit-quant-bot/internal/statemachine"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	account *ledger.Account
	journal *persistence.SQLiteJournal
	machine *statemachine.Machine
	exec    *Executor
}

func newFixture(t *testing.T, balance int64) *fixture {
	t.Helper()

	account, err := ledger.NewAccount(decimal.NewFromInt(balance))
	require.NoError(t, err)

	journal, err := persistence.OpenSQLiteJournal(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { journal.Close() })

	machine := statemachine.New()
	paper := exchange.NewPaperExchange(account, decimal.RequireFromString("0.0005"))

	return &fixture{
		account: account,
		journal: journal,
		machine: machine,
		exec:    New("test", "KRW-BTC", paper, journal, machine, 5*time.Second),
	}
}

func buyDecision(price float64) models.Decision {
	return models.Decision{
		Action:      models.ActionBuy,
		Reason:      "golden cross",
		StateBefore: models.PositionFlat,
		StateAfter:  models.PositionLong,
		Price:       price,
		Timestamp:   time.Now(),
	}
}

func TestExecuteBuy(t *testing.T) {
	f := newFixture(t, 1_000_000)

	order, err := f.exec.Execute(context.Background(), buyDecision(50000), Request{
		OrderID: "ord-1",
		Amount:  decimal.NewFromInt(500_000),
	})
	require.NoError(t, err)
	require.NotNil(t, order)

	assert.Equal(t, models.OrderStatusDone, order.Status)
	assert.Equal(t, models.PositionLong, f.machine.State())
	assert.True(t, f.account.Balance().Equal(decimal.NewFromInt(500_000)))

	has, err := f.journal.HasOrder("ord-1")
	require.NoError(t, err)
	assert.True(t, has)
}

func TestExecuteDuplicateOrderID(t *testing.T) {
	f := newFixture(t, 1_000_000)
	req := Request{OrderID: "ord-1", Amount: decimal.NewFromInt(100_000)}

	_, err := f.exec.Execute(context.Background(), buyDecision(50000), req)
	require.NoError(t, err)
	balanceAfterFirst := f.account.Balance()

	// A retry with the same id must not re-apply the trade.
	_, err = f.exec.Execute(context.Background(), buyDecision(50000), req)
	require.Error(t, err)

	var dup *DuplicateOrderError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "ord-1", dup.OrderID)
	require.NotNil(t, dup.Existing)
	assert.Equal(t, models.OrderStatusDone, dup.Existing.Status)

	assert.True(t, f.account.Balance().Equal(balanceAfterFirst))
	assert.Equal(t, models.PositionLong, f.machine.State())
}

func TestExecuteBuyInsufficientFunds(t *testing.T) {
	f := newFixture(t, 100_000)

	_, err := f.exec.Execute(context.Background(), buyDecision(50000), Request{
		OrderID: "ord-1",
		Amount:  decimal.NewFromInt(500_000),
	})
	require.Error(t, err)

	var rejected *exchange.OrderRejectedError
	assert.ErrorAs(t, err, &rejected)

	// The failed attempt is journaled and the position reverted.
	n, err := f.journal.CountOrders(models.OrderStatusFailed)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, models.PositionFlat, f.machine.State())
	assert.True(t, f.account.Balance().Equal(decimal.NewFromInt(100_000)))
}

func TestExecuteSellWithoutHoldingsReverts(t *testing.T) {
	f := newFixture(t, 1_000_000)

	// Force the machine LONG while the ledger holds nothing, to model a
	// diverged resume. The sell must fail, journal FAILED, and return to LONG.
	_, err := f.machine.TransitionTo(models.PositionLong, "restored", nil)
	require.NoError(t, err)

	d := models.Decision{
		Action:      models.ActionSell,
		Reason:      "dead cross",
		StateBefore: models.PositionLong,
		StateAfter:  models.PositionFlat,
		Price:       50000,
		Timestamp:   time.Now(),
	}
	_, err = f.exec.Execute(context.Background(), d, Request{OrderID: "ord-1"})
	require.Error(t, err)

	n, err := f.journal.CountOrders(models.OrderStatusFailed)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, models.PositionLong, f.machine.State())
}

func TestExecuteSellRoundTrip(t *testing.T) {
	f := newFixture(t, 1_000_000)

	_, err := f.exec.Execute(context.Background(), buyDecision(50000), Request{
		OrderID: "buy-1",
		Amount:  decimal.NewFromInt(500_000),
	})
	require.NoError(t, err)

	d := models.Decision{
		Action:      models.ActionSell,
		Reason:      "dead cross",
		StateBefore: models.PositionLong,
		StateAfter:  models.PositionFlat,
		Price:       52000,
		Timestamp:   time.Now(),
	}
	order, err := f.exec.Execute(context.Background(), d, Request{OrderID: "sell-1"})
	require.NoError(t, err)

	assert.Equal(t, models.OrderStatusDone, order.Status)
	assert.Equal(t, models.PositionFlat, f.machine.State())
	assert.True(t, f.account.Holding("KRW-BTC").IsZero())
}

func TestExecuteRejectsHold(t *testing.T) {
	f := newFixture(t, 1_000_000)

	_, err := f.exec.Execute(context.Background(), models.Decision{Action: models.ActionHold}, Request{})
	require.Error(t, err)
}

func TestNewOrderIDUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewOrderID()
		assert.NotEmpty(t, id)
		assert.False(t, seen[id])
		seen[id] = true
	}
}
