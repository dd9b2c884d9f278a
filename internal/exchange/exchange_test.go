package exchange

import (
	"context"
	"testing"
	"time"

	"upbit-quant-bot/internal/ledger"
	"upbit-quant-bot/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaperExchangeBuyAndSell(t *testing.T) {
	account, err := ledger.NewAccount(decimal.NewFromInt(1_000_000))
	require.NoError(t, err)
	paper := NewPaperExchange(account, decimal.Zero)
	ctx := context.Background()

	order, err := paper.PlaceOrder(ctx, OrderRequest{
		OrderID: "buy-1",
		Market:  "KRW-BTC",
		Side:    models.Buy,
		Price:   decimal.NewFromInt(100),
		Amount:  decimal.NewFromInt(500_000),
	})
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusDone, order.Status)
	assert.True(t, order.Quantity.Equal(decimal.NewFromInt(5000)))
	assert.True(t, account.Balance().Equal(decimal.NewFromInt(500_000)))

	order, err = paper.PlaceOrder(ctx, OrderRequest{
		OrderID: "sell-1",
		Market:  "KRW-BTC",
		Side:    models.Sell,
		Price:   decimal.NewFromInt(100),
	})
	require.NoError(t, err)
	assert.Equal(t, models.Sell, order.Side)
	assert.True(t, account.Balance().Equal(decimal.NewFromInt(1_000_000)))
}

func TestPaperExchangeRejectsInsufficientFunds(t *testing.T) {
	account, err := ledger.NewAccount(decimal.NewFromInt(1000))
	require.NoError(t, err)
	paper := NewPaperExchange(account, decimal.Zero)

	_, err = paper.PlaceOrder(context.Background(), OrderRequest{
		OrderID: "buy-1",
		Market:  "KRW-BTC",
		Side:    models.Buy,
		Price:   decimal.NewFromInt(100),
		Amount:  decimal.NewFromInt(5000),
	})
	require.Error(t, err)

	var rejected *OrderRejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, "buy-1", rejected.OrderID)
}

func TestPaperExchangeRejectsCanceledContext(t *testing.T) {
	account, err := ledger.NewAccount(decimal.NewFromInt(1000))
	require.NoError(t, err)
	paper := NewPaperExchange(account, decimal.Zero)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = paper.PlaceOrder(ctx, OrderRequest{
		OrderID: "buy-1",
		Market:  "KRW-BTC",
		Side:    models.Buy,
		Price:   decimal.NewFromInt(100),
		Amount:  decimal.NewFromInt(100),
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, account.Balance().Equal(decimal.NewFromInt(1000)))
}

type fixedMarket struct {
	price   float64
	calls   int
	candles []models.Candle
}

func (m *fixedMarket) GetTicker(ctx context.Context, market string) (*models.Ticker, error) {
	m.calls++
	return &models.Ticker{Market: market, Price: m.price, Timestamp: time.Now()}, nil
}

func (m *fixedMarket) GetCandles(ctx context.Context, market string, tf models.Timeframe, count int) ([]models.Candle, error) {
	return m.candles, nil
}

func TestStreamingMarketDataPrefersFreshTicker(t *testing.T) {
	base := &fixedMarket{price: 99}
	tickers := make(chan models.Ticker, 1)
	md := NewStreamingMarketData(base, tickers)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go md.Run(ctx)

	tickers <- models.Ticker{Market: "KRW-BTC", Price: 100, Timestamp: time.Now()}
	assert.Eventually(t, func() bool {
		got, err := md.GetTicker(ctx, "KRW-BTC")
		return err == nil && got.Price == 100
	}, time.Second, 5*time.Millisecond)
	assert.Zero(t, base.calls, "fresh cached ticker must not hit the REST client")
}

func TestStreamingMarketDataFallsBackWhenStale(t *testing.T) {
	base := &fixedMarket{price: 99}
	md := NewStreamingMarketData(base, nil)
	md.latest["KRW-BTC"] = models.Ticker{
		Market:    "KRW-BTC",
		Price:     100,
		Timestamp: time.Now().Add(-time.Minute),
	}

	got, err := md.GetTicker(context.Background(), "KRW-BTC")
	require.NoError(t, err)
	assert.Equal(t, 99.0, got.Price)
	assert.Equal(t, 1, base.calls)

	// Unknown markets go straight to REST as well.
	_, err = md.GetTicker(context.Background(), "KRW-ETH")
	require.NoError(t, err)
	assert.Equal(t, 2, base.calls)
}

func TestStreamingMarketDataDelegatesCandles(t *testing.T) {
	base := &fixedMarket{candles: []models.Candle{{Close: 1}}}
	md := NewStreamingMarketData(base, nil)

	candles, err := md.GetCandles(context.Background(), "KRW-BTC", models.Timeframe15m, 10)
	require.NoError(t, err)
	assert.Len(t, candles, 1)
}
