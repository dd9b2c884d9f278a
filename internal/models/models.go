package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Config 结构体定义了机器人的所有配置参数
type Config struct {
	JournalPath    string                    `json:"journal_path"`     // 订单/信号流水库(sqlite)文件路径
	SnapshotPath   string                    `json:"snapshot_path"`    // 账户/状态快照库(badger)目录
	APIBaseURL     string                    `json:"api_base_url"`     // Upbit REST API 基础地址
	WSBaseURL      string                    `json:"ws_base_url"`      // Upbit WebSocket 地址
	InitialBalance float64                   `json:"initial_balance"`  // 每个策略虚拟账户的初始资金 (KRW)
	Commission     float64                   `json:"commission"`       // 默认手续费率, 例如 0.0005
	RiskFreeRate   float64                   `json:"risk_free_rate"`   // 年化无风险利率, 用于夏普比率
	Strategies     map[string]StrategyConfig `json:"strategies"`       // 策略ID -> 策略配置
	LogConfig      LogConfig                 `json:"log"`              // 日志配置
	MaxRestarts    int                       `json:"max_restarts"`     // 策略任务的最大自动重启次数
	HeartbeatSec   int                       `json:"heartbeat_sec"`    // 心跳超时秒数, 超过则触发重启
	OrderTimeoutMs int                       `json:"order_timeout_ms"` // 下单调用的超时毫秒数
}

// StrategyConfig 定义了单个策略实例的参数。
// 未出现在配置文件中的键使用 config.ApplyDefaults 中记录的默认值。
type StrategyConfig struct {
	Strategy         string  `json:"strategy"`           // 注册表中的策略名, 如 "sma_cross"
	Market           string  `json:"market"`             // 交易市场, 如 "KRW-BTC"
	Timeframe        string  `json:"timeframe"`          // 主时间周期, 如 "15m"
	FastPeriod       int     `json:"fast_period"`        // 快速均线周期
	SlowPeriod       int     `json:"slow_period"`        // 慢速均线周期
	RSIPeriod        int     `json:"rsi_period"`         // RSI 周期
	RSIBuyThreshold  float64 `json:"rsi_buy_threshold"`  // 金叉买入时允许的 RSI 上限, 超过则放弃买入
	RSISellThreshold float64 `json:"rsi_sell_threshold"` // 死叉卖出所需的 RSI 下限, 低于则继续持有
	MACDFast         int     `json:"macd_fast"`          // MACD 快线周期
	MACDSlow         int     `json:"macd_slow"`          // MACD 慢线周期
	MACDSignal       int     `json:"macd_signal"`        // MACD 信号线周期
	TrendPeriod      int     `json:"trend_period"`       // 趋势过滤均线周期
	LookbackPeriod   int     `json:"lookback_period"`    // 动量回看周期
	BuyThreshold     float64 `json:"buy_threshold"`      // 动量买入阈值, 0.05 表示 +5%
	SellThreshold    float64 `json:"sell_threshold"`     // 动量卖出阈值, -0.03 表示 -3%
	CheckIntervalSec int     `json:"check_interval_sec"` // 实时模式下的检查间隔(秒)
	BuyAmountRatio   float64 `json:"buy_amount_ratio"`   // 每次买入动用现金的比例 (0-1]
	Commission       float64 `json:"commission"`         // 手续费率, 0 表示沿用全局值
}

// LogConfig 定义了日志相关的配置
type LogConfig struct {
	Level      string `json:"level"`       // 日志级别, e.g., "debug", "info", "warn", "error"
	Output     string `json:"output"`      // 输出模式: "console", "file", "both"
	File       string `json:"file"`        // 日志文件路径
	MaxSize    int    `json:"max_size"`    // 单个日志文件的最大大小 (MB)
	MaxBackups int    `json:"max_backups"` // 保留的旧日志文件最大数量
	MaxAge     int    `json:"max_age"`     // 旧日志文件的最大保留天数
	Compress   bool   `json:"compress"`    // 是否压缩旧日志文件
}

// Side 定义了交易方向的类型
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Action 是决策引擎产生的动作
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// OrderType 定义了订单类型
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

// OrderStatus 定义了订单在流水库中的状态
type OrderStatus string

const (
	OrderStatusDone     OrderStatus = "DONE"
	OrderStatusFailed   OrderStatus = "FAILED"
	OrderStatusCanceled OrderStatus = "CANCELED"
)

// Order 定义了一次执行尝试产生的订单记录。
// OrderID 是幂等键: 同一个 ID 在流水库中只允许出现一次。
type Order struct {
	OrderID    string          `json:"order_id"`
	Market     string          `json:"market"`
	Side       Side            `json:"side"`
	Type       OrderType       `json:"type"`
	Price      decimal.Decimal `json:"price"`
	Quantity   decimal.Decimal `json:"quantity"`
	Amount     decimal.Decimal `json:"amount"` // 成交金额(扣除手续费后)
	Status     OrderStatus     `json:"status"`
	CreatedAt  time.Time       `json:"created_at"`
	ExecutedAt time.Time       `json:"executed_at"`
}

// TradeRecord 记录账本中一笔已完成的买入或卖出。
// 写入后不可变, 账本的交易历史是 append-only 的。
type TradeRecord struct {
	Timestamp    time.Time       `json:"timestamp"`
	Type         Side            `json:"type"`
	Asset        string          `json:"asset"`
	Price        decimal.Decimal `json:"price"`
	Quantity     decimal.Decimal `json:"quantity"`
	Amount       decimal.Decimal `json:"amount"`     // 买入时为花费金额, 卖出时为净入账金额
	Commission   decimal.Decimal `json:"commission"` // 本笔交易的手续费
	BalanceAfter decimal.Decimal `json:"balance_after"`
}

// Signal 是策略对一组蜡烛数据给出的判断
type Signal struct {
	Action     Action             `json:"action"`
	Confidence float64            `json:"confidence"` // 0.0 ~ 1.0
	Reason     string             `json:"reason"`
	Metadata   map[string]float64 `json:"metadata,omitempty"`
}

// Decision 是决策引擎输出的临时值对象, 不作为实体持久化, 只记录到信号流水。
type Decision struct {
	Action      Action             `json:"action"`
	Confidence  float64            `json:"confidence"`
	Reason      string             `json:"reason"`
	StateBefore PositionState      `json:"state_before"`
	StateAfter  PositionState      `json:"state_after"`
	Price       float64            `json:"price"`
	Timestamp   time.Time          `json:"timestamp"`
	Metadata    map[string]float64 `json:"metadata,omitempty"`
}

// AccountSummary 汇总了一个虚拟账户的当前状况
type AccountSummary struct {
	InitialBalance decimal.Decimal            `json:"initial_balance"`
	Balance        decimal.Decimal            `json:"balance"`
	Holdings       map[string]decimal.Decimal `json:"holdings"`
	AvgBuyPrices   map[string]decimal.Decimal `json:"avg_buy_prices"`
	TotalValue     decimal.Decimal            `json:"total_value"`
	ProfitLoss     decimal.Decimal            `json:"profit_loss"`
	ProfitLossRate decimal.Decimal            `json:"profit_loss_rate"` // 百分比
	NumTrades      int                        `json:"num_trades"`
	CreatedAt      time.Time                  `json:"created_at"`
	UpdatedAt      time.Time                  `json:"updated_at"`
}

// TraderSnapshot 是实时模式下持久化到快照库的每策略状态
type TraderSnapshot struct {
	StrategyID     string         `json:"strategy_id"`
	Market         string         `json:"market"`
	Position       PositionState  `json:"position"`
	RestartCount   int            `json:"restart_count"`
	LastHeartbeat  time.Time      `json:"last_heartbeat"`
	Account        AccountSummary `json:"account"`
	LastUpdateTime time.Time      `json:"last_update_time"`
}
