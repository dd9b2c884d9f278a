package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"upbit-quant-bot/internal/logger"
	"upbit-quant-bot/internal/models"
)

// candleDateLayout 是 Upbit 蜡烛接口返回的 UTC 时间格式。
const candleDateLayout = "2006-01-02T15:04:05"

// UpbitClient 通过 Upbit 公开 REST API 获取行情。
// 纸面交易只需要公开接口, 不需要 API Key 和签名。
type UpbitClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewUpbitClient 创建一个新的 Upbit 行情客户端。
func NewUpbitClient(baseURL string) *UpbitClient {
	return &UpbitClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// doRequest 向 Upbit API 发送 GET 请求并返回响应体。
func (c *UpbitClient) doRequest(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	fullURL := fmt.Sprintf("%s%s", c.baseURL, endpoint)
	if len(params) > 0 {
		fullURL = fmt.Sprintf("%s?%s", fullURL, params.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("执行请求失败: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应体失败: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return body, fmt.Errorf("API请求失败, 状态码: %d, 响应: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

// upbitTicker 是 /v1/ticker 返回的单个条目 (只保留用到的字段)。
type upbitTicker struct {
	Market     string  `json:"market"`
	TradePrice float64 `json:"trade_price"`
	Timestamp  int64   `json:"timestamp"`
}

// GetTicker 获取指定市场的最新成交价。
func (c *UpbitClient) GetTicker(ctx context.Context, market string) (*models.Ticker, error) {
	params := url.Values{}
	params.Set("markets", market)

	body, err := c.doRequest(ctx, "/v1/ticker", params)
	if err != nil {
		return nil, err
	}

	var tickers []upbitTicker
	if err := json.Unmarshal(body, &tickers); err != nil {
		return nil, fmt.Errorf("解析行情响应失败: %w", err)
	}
	if len(tickers) == 0 {
		return nil, fmt.Errorf("市场 %s 没有行情数据", market)
	}

	t := tickers[0]
	return &models.Ticker{
		Market:    t.Market,
		Price:     t.TradePrice,
		Timestamp: time.UnixMilli(t.Timestamp),
	}, nil
}

// upbitCandle 是蜡烛接口返回的单个条目。
type upbitCandle struct {
	CandleDateTimeUTC string  `json:"candle_date_time_utc"`
	OpeningPrice      float64 `json:"opening_price"`
	HighPrice         float64 `json:"high_price"`
	LowPrice          float64 `json:"low_price"`
	TradePrice        float64 `json:"trade_price"`
	AccTradeVolume    float64 `json:"candle_acc_trade_volume"`
}

// GetCandles 获取指定市场和周期的最近 count 根蜡烛, 按时间升序返回。
// Upbit 单次最多返回 200 根。
func (c *UpbitClient) GetCandles(ctx context.Context, market string, timeframe models.Timeframe, count int) ([]models.Candle, error) {
	return c.GetCandlesTo(ctx, market, timeframe, count, time.Time{})
}

// GetCandlesTo 获取 to 时刻 (不含) 之前的 count 根蜡烛, 按时间升序返回。
// to 为零值时表示最新。下载器用它向过去翻页。
func (c *UpbitClient) GetCandlesTo(ctx context.Context, market string, timeframe models.Timeframe, count int, to time.Time) ([]models.Candle, error) {
	if !timeframe.Valid() {
		return nil, fmt.Errorf("不支持的时间周期: %s", timeframe)
	}
	if count <= 0 || count > 200 {
		count = 200
	}

	endpoint := "/v1/candles/days"
	if timeframe != models.Timeframe1d {
		endpoint = fmt.Sprintf("/v1/candles/minutes/%d", timeframe.Minutes())
	}

	params := url.Values{}
	params.Set("market", market)
	params.Set("count", fmt.Sprintf("%d", count))
	if !to.IsZero() {
		params.Set("to", to.UTC().Format(candleDateLayout))
	}

	body, err := c.doRequest(ctx, endpoint, params)
	if err != nil {
		return nil, err
	}

	var raw []upbitCandle
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("解析蜡烛响应失败: %w", err)
	}

	// Upbit 按时间降序返回, 这里反转为升序。
	candles := make([]models.Candle, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		ts, err := time.Parse(candleDateLayout, raw[i].CandleDateTimeUTC)
		if err != nil {
			logger.S().Warnf("跳过无法解析时间的蜡烛: %s", raw[i].CandleDateTimeUTC)
			continue
		}
		candles = append(candles, models.Candle{
			Timestamp: ts.UTC(),
			Open:      raw[i].OpeningPrice,
			High:      raw[i].HighPrice,
			Low:       raw[i].LowPrice,
			Close:     raw[i].TradePrice,
			Volume:    raw[i].AccTradeVolume,
		})
	}
	return candles, nil
}
