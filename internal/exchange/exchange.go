package exchange

import (
	"context"
	"fmt"
	"time"

	"upbit-quant-bot/internal/models"

	"github.com/shopspring/decimal"
)

// MarketData 定义了行情来源必须提供的方法。
// 实时模式下由 Upbit REST/WebSocket 客户端实现, 回测模式下由历史数据实现。
type MarketData interface {
	GetTicker(ctx context.Context, market string) (*models.Ticker, error)
	GetCandles(ctx context.Context, market string, timeframe models.Timeframe, count int) ([]models.Candle, error)
}

// OrderRequest 描述一次下单请求。买入时给 Amount (动用的现金),
// 卖出时给 Quantity (卖出数量), 为零时表示全部卖出。
type OrderRequest struct {
	OrderID   string
	Market    string
	Side      models.Side
	Price     decimal.Decimal
	Quantity  decimal.Decimal
	Amount    decimal.Decimal
	Timestamp time.Time
}

// OrderPlacer 定义了订单执行端。纸面交易时由 PaperExchange 实现,
// 订单在虚拟账本上成交, 不触碰真实交易所的下单接口。
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, req OrderRequest) (*models.Order, error)
}

// OrderRejectedError 表示订单被交易端拒绝 (余额不足, 无持仓等)。
// 这是业务上的预期失败, 调用方可据此与网络/系统错误区分开。
type OrderRejectedError struct {
	OrderID string
	Reason  string
}

func (e *OrderRejectedError) Error() string {
	return fmt.Sprintf("order %s rejected: %s", e.OrderID, e.Reason)
}
