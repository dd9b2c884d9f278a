package config

import (
	"encoding/json"
	"fmt"
	"os"

	"upbit-quant-bot/internal/models"

	"github.com/kelseyhightower/envconfig"
)

// envOverrides 允许通过环境变量覆盖配置文件中的全局项,
// 例如 BOT_JOURNAL_PATH, BOT_INITIAL_BALANCE。
type envOverrides struct {
	JournalPath    string  `envconfig:"JOURNAL_PATH"`
	SnapshotPath   string  `envconfig:"SNAPSHOT_PATH"`
	APIBaseURL     string  `envconfig:"API_BASE_URL"`
	WSBaseURL      string  `envconfig:"WS_BASE_URL"`
	InitialBalance float64 `envconfig:"INITIAL_BALANCE"`
}

// LoadConfig 从指定路径加载JSON配置文件并解析到Config结构体中,
// 随后应用环境变量覆盖和默认值。
func LoadConfig(path string) (*models.Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	config := &models.Config{}
	if err := json.NewDecoder(file).Decode(config); err != nil {
		return nil, fmt.Errorf("解析配置文件 %s 失败: %w", path, err)
	}

	var env envOverrides
	if err := envconfig.Process("bot", &env); err != nil {
		return nil, err
	}
	if env.JournalPath != "" {
		config.JournalPath = env.JournalPath
	}
	if env.SnapshotPath != "" {
		config.SnapshotPath = env.SnapshotPath
	}
	if env.APIBaseURL != "" {
		config.APIBaseURL = env.APIBaseURL
	}
	if env.WSBaseURL != "" {
		config.WSBaseURL = env.WSBaseURL
	}
	if env.InitialBalance > 0 {
		config.InitialBalance = env.InitialBalance
	}

	ApplyDefaults(config)
	return config, nil
}

// ApplyDefaults 为未设置的配置项填入默认值。
func ApplyDefaults(cfg *models.Config) {
	if cfg.JournalPath == "" {
		cfg.JournalPath = "db/trading.db"
	}
	if cfg.SnapshotPath == "" {
		cfg.SnapshotPath = "db/snapshots"
	}
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = "https://api.upbit.com"
	}
	if cfg.WSBaseURL == "" {
		cfg.WSBaseURL = "wss://api.upbit.com/websocket/v1"
	}
	if cfg.InitialBalance <= 0 {
		cfg.InitialBalance = 10_000_000 // 1000万韩元
	}
	if cfg.Commission <= 0 {
		cfg.Commission = 0.0005 // Upbit 现货手续费 0.05%
	}
	if cfg.RiskFreeRate <= 0 {
		cfg.RiskFreeRate = 0.02
	}
	if cfg.MaxRestarts <= 0 {
		cfg.MaxRestarts = 5
	}
	if cfg.HeartbeatSec <= 0 {
		cfg.HeartbeatSec = 300
	}
	if cfg.OrderTimeoutMs <= 0 {
		cfg.OrderTimeoutMs = 10_000
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	if cfg.LogConfig.Output == "" {
		cfg.LogConfig.Output = "console"
	}
	for id, sc := range cfg.Strategies {
		cfg.Strategies[id] = ApplyStrategyDefaults(sc, cfg.Commission)
	}
}

// ApplyStrategyDefaults 为单个策略配置填入默认值并返回。
// 各默认值与原策略脚本的常用参数一致。
func ApplyStrategyDefaults(sc models.StrategyConfig, commission float64) models.StrategyConfig {
	if sc.Market == "" {
		sc.Market = "KRW-BTC"
	}
	if sc.Timeframe == "" {
		sc.Timeframe = string(models.Timeframe15m)
	}
	if sc.FastPeriod <= 0 {
		sc.FastPeriod = 5
	}
	if sc.SlowPeriod <= 0 {
		sc.SlowPeriod = 20
	}
	if sc.RSIPeriod <= 0 {
		sc.RSIPeriod = 14
	}
	if sc.RSIBuyThreshold <= 0 {
		sc.RSIBuyThreshold = 50
	}
	if sc.RSISellThreshold <= 0 {
		sc.RSISellThreshold = 70
	}
	if sc.MACDFast <= 0 {
		sc.MACDFast = 12
	}
	if sc.MACDSlow <= 0 {
		sc.MACDSlow = 26
	}
	if sc.MACDSignal <= 0 {
		sc.MACDSignal = 9
	}
	if sc.TrendPeriod <= 0 {
		sc.TrendPeriod = 200
	}
	if sc.LookbackPeriod <= 0 {
		sc.LookbackPeriod = 20
	}
	if sc.BuyThreshold == 0 {
		sc.BuyThreshold = 0.05
	}
	if sc.SellThreshold == 0 {
		sc.SellThreshold = -0.03
	}
	if sc.CheckIntervalSec <= 0 {
		sc.CheckIntervalSec = 60
	}
	if sc.BuyAmountRatio <= 0 || sc.BuyAmountRatio > 1 {
		sc.BuyAmountRatio = 1.0
	}
	if sc.Commission <= 0 {
		sc.Commission = commission
	}
	return sc
}
