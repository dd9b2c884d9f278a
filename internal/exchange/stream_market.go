package exchange

import (
	"context"
	"sync"
	"time"

	"upbit-quant-bot/internal/models"
)

// tickerMaxAge 是缓存行情的有效期, 超过后回退到 REST 查询。
const tickerMaxAge = 10 * time.Second

// StreamingMarketData 用 WebSocket 推送的最新成交价加速行情查询:
// GetTicker 优先返回缓存中足够新的推送价格, 缓存过期或没有对应市场时
// 回退到底层 REST 客户端。蜡烛数据始终走 REST。
type StreamingMarketData struct {
	base    MarketData
	tickers <-chan models.Ticker
	maxAge  time.Duration

	mu     sync.RWMutex
	latest map[string]models.Ticker
}

// NewStreamingMarketData 创建一个带行情缓存的数据源。
// tickers 通常来自 TickerStream.Tickers(); 调用方需要另行运行 Run 来消费它。
func NewStreamingMarketData(base MarketData, tickers <-chan models.Ticker) *StreamingMarketData {
	return &StreamingMarketData{
		base:    base,
		tickers: tickers,
		maxAge:  tickerMaxAge,
		latest:  make(map[string]models.Ticker),
	}
}

// Run 持续消费行情通道并更新缓存, 直到通道关闭或 ctx 取消。
func (s *StreamingMarketData) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ticker, ok := <-s.tickers:
			if !ok {
				return
			}
			s.mu.Lock()
			s.latest[ticker.Market] = ticker
			s.mu.Unlock()
		}
	}
}

// GetTicker 返回缓存中足够新的推送价格, 没有时回退到 REST。
func (s *StreamingMarketData) GetTicker(ctx context.Context, market string) (*models.Ticker, error) {
	s.mu.RLock()
	ticker, ok := s.latest[market]
	s.mu.RUnlock()

	if ok && time.Since(ticker.Timestamp) <= s.maxAge {
		return &ticker, nil
	}
	return s.base.GetTicker(ctx, market)
}

// GetCandles 直接委托给底层 REST 客户端。
func (s *StreamingMarketData) GetCandles(ctx context.Context, market string, timeframe models.Timeframe, count int) ([]models.Candle, error) {
	return s.base.GetCandles(ctx, market, timeframe, count)
}
