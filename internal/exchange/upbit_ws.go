package exchange

import (
	"context"
	"encoding/json"
	"time"

	"upbit-quant-bot/internal/logger"
	"upbit-quant-bot/internal/models"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// reconnectDelay 是 WebSocket 断开后重连前的等待时间。
const reconnectDelay = 5 * time.Second

// TickerStream 通过 Upbit WebSocket 订阅实时成交价。
// 连接断开后自动重连, 直到 ctx 被取消。
type TickerStream struct {
	wsURL   string
	markets []string
	out     chan models.Ticker
}

// NewTickerStream 创建一个订阅给定市场的行情流。
func NewTickerStream(wsURL string, markets []string) *TickerStream {
	return &TickerStream{
		wsURL:   wsURL,
		markets: markets,
		out:     make(chan models.Ticker, 64),
	}
}

// Tickers 返回行情通道。Run 退出时通道被关闭。
func (s *TickerStream) Tickers() <-chan models.Ticker {
	return s.out
}

// Run 维持 WebSocket 连接并向通道推送行情, 阻塞直到 ctx 取消。
func (s *TickerStream) Run(ctx context.Context) {
	defer close(s.out)

	for {
		if err := s.streamOnce(ctx); err != nil {
			logger.S().Warnf("行情流中断: %v, %s 后重连", err, reconnectDelay)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

// wsTickerMessage 是 Upbit ticker 推送的消息体 (只保留用到的字段)。
type wsTickerMessage struct {
	Type       string  `json:"type"`
	Code       string  `json:"code"`
	TradePrice float64 `json:"trade_price"`
	Timestamp  int64   `json:"timestamp"`
}

func (s *TickerStream) streamOnce(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.wsURL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	// ctx 取消时主动关闭连接, 让阻塞中的 ReadMessage 返回。
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	// Upbit 的订阅请求是一个 JSON 数组: ticket + 订阅类型。
	subscription := []interface{}{
		map[string]string{"ticket": uuid.NewString()},
		map[string]interface{}{"type": "ticker", "codes": s.markets},
	}
	if err := conn.WriteJSON(subscription); err != nil {
		return err
	}
	logger.S().Infof("行情流已连接: %v", s.markets)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		var msg wsTickerMessage
		if err := json.Unmarshal(data, &msg); err != nil || msg.Type != "ticker" {
			continue
		}

		ticker := models.Ticker{
			Market:    msg.Code,
			Price:     msg.TradePrice,
			Timestamp: time.UnixMilli(msg.Timestamp),
		}
		select {
		case s.out <- ticker:
		case <-ctx.Done():
			return nil
		default:
			// 消费方落后时丢弃本条行情, 不阻塞读取循环。
		}
	}
}
