package models

import "time"

// Timeframe 是蜡烛图的时间周期
type Timeframe string

const (
	Timeframe1m  Timeframe = "1m"
	Timeframe5m  Timeframe = "5m"
	Timeframe15m Timeframe = "15m"
	Timeframe30m Timeframe = "30m"
	Timeframe1h  Timeframe = "1h"
	Timeframe4h  Timeframe = "4h"
	Timeframe1d  Timeframe = "1d"
)

var timeframeDurations = map[Timeframe]time.Duration{
	Timeframe1m:  time.Minute,
	Timeframe5m:  5 * time.Minute,
	Timeframe15m: 15 * time.Minute,
	Timeframe30m: 30 * time.Minute,
	Timeframe1h:  time.Hour,
	Timeframe4h:  4 * time.Hour,
	Timeframe1d:  24 * time.Hour,
}

// Valid 报告该时间周期是否是受支持的枚举值
func (t Timeframe) Valid() bool {
	_, ok := timeframeDurations[t]
	return ok
}

// Duration 返回时间周期对应的时长, 无效值返回 0
func (t Timeframe) Duration() time.Duration {
	return timeframeDurations[t]
}

// Minutes 返回分钟数, 用于构造 Upbit 的分钟线接口路径
func (t Timeframe) Minutes() int {
	return int(timeframeDurations[t] / time.Minute)
}

// Candle 是一根 OHLCV 蜡烛。产生后不可变, 同一 (market, timeframe)
// 序列内按时间戳升序且不重复。
type Candle struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// Ticker 是某个市场的最新价格信息
type Ticker struct {
	Market    string    `json:"market"`
	Price     float64   `json:"trade_price"`
	Timestamp time.Time `json:"timestamp"`
}
