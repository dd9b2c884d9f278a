package exchange

import (
	"context"
	"errors"
	"time"

	"upbit-quant-bot/internal/ledger"
	"upbit-quant-bot/internal/models"

	"github.com/shopspring/decimal"
)

// PaperExchange 将订单在虚拟账本上成交, 实现纸面交易。
// 成交价格由调用方给定 (实时模式用最新行情价, 回测模式用当根蜡烛收盘价),
// 手续费按固定费率从成交金额中扣除。
type PaperExchange struct {
	account    *ledger.Account
	commission decimal.Decimal
}

// NewPaperExchange 创建一个在给定账户上成交的纸面交易端。
func NewPaperExchange(account *ledger.Account, commission decimal.Decimal) *PaperExchange {
	return &PaperExchange{account: account, commission: commission}
}

// Account 返回底层虚拟账户。
func (p *PaperExchange) Account() *ledger.Account {
	return p.account
}

// PlaceOrder 在账本上执行订单。账本拒绝 (余额不足, 无持仓) 时返回
// *OrderRejectedError; 订单参数非法时返回账本的校验错误。
func (p *PaperExchange) PlaceOrder(ctx context.Context, req OrderRequest) (*models.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req.Side != models.Buy && req.Side != models.Sell {
		return nil, errors.New("order side must be BUY or SELL")
	}

	var (
		result ledger.TradeResult
		err    error
	)
	if req.Side == models.Buy {
		result, err = p.account.Buy(ledger.BuyOrder{
			Asset:      req.Market,
			Price:      req.Price,
			Quantity:   req.Quantity,
			Amount:     req.Amount,
			Commission: p.commission,
			Timestamp:  req.Timestamp,
		})
	} else {
		result, err = p.account.Sell(ledger.SellOrder{
			Asset:      req.Market,
			Price:      req.Price,
			Quantity:   req.Quantity,
			Commission: p.commission,
			Timestamp:  req.Timestamp,
		})
	}
	if err != nil {
		return nil, err
	}
	if !result.Executed {
		return nil, &OrderRejectedError{OrderID: req.OrderID, Reason: result.Reason}
	}

	trade := result.Trade
	return &models.Order{
		OrderID:    req.OrderID,
		Market:     req.Market,
		Side:       req.Side,
		Type:       models.OrderTypeMarket,
		Price:      trade.Price,
		Quantity:   trade.Quantity,
		Amount:     trade.Amount,
		Status:     models.OrderStatusDone,
		CreatedAt:  orderTime(req.Timestamp),
		ExecutedAt: trade.Timestamp,
	}, nil
}

func orderTime(ts time.Time) time.Time {
	if ts.IsZero() {
		return time.Now()
	}
	return ts
}
