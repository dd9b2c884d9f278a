package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"upbit-quant-bot/internal/backtest"
	"upbit-quant-bot/internal/config"
	"upbit-quant-bot/internal/exchange"
	"upbit-quant-bot/internal/feed"
	"upbit-quant-bot/internal/ledger"
	"upbit-quant-bot/internal/logger"
	"upbit-quant-bot/internal/models"
	"upbit-quant-bot/internal/persistence"
	"upbit-quant-bot/internal/strategy"
	"upbit-quant-bot/internal/trader"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

func main() {
	// --- 命令行参数定义 ---
	configPath := flag.String("config", "config.json", "path to the config file")
	mode := flag.String("mode", "live", "running mode: live or backtest")
	strategyID := flag.String("strategy", "", "strategy id to backtest (defaults to all configured)")
	dataPath := flag.String("data", "", "path to historical candle CSV for backtesting")
	startDate := flag.String("start", "", "start date for backtesting (YYYY-MM-DD)")
	endDate := flag.String("end", "", "end date for backtesting (YYYY-MM-DD)")
	flag.Parse()

	// 在加载 .env 和配置文件之前, 先用默认配置初始化一个临时 logger。
	logger.InitLogger(models.LogConfig{Level: "info", Output: "console"})

	// --- 加载 .env 文件 ---
	if err := godotenv.Load(); err != nil {
		logger.S().Info("未找到 .env 文件, 将从系统环境变量中读取。")
	} else {
		logger.S().Info("成功从 .env 文件加载配置。")
	}

	// --- 加载 JSON 配置 ---
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.S().Fatalf("无法加载配置文件: %v", err)
	}

	// --- 使用文件中的配置重新初始化日志 ---
	logger.InitLogger(cfg.LogConfig)
	defer logger.S().Sync()

	switch *mode {
	case "live":
		runLiveMode(cfg)
	case "backtest":
		runBacktestMode(cfg, *strategyID, *dataPath, *startDate, *endDate)
	default:
		logger.S().Fatalf("未知的运行模式: %s。请选择 'live' 或 'backtest'。", *mode)
	}
}

// runLiveMode 启动实时纸面交易: 每个配置的策略一个受监督的任务。
func runLiveMode(cfg *models.Config) {
	logger.S().Info("--- 启动实时纸面交易模式 ---")

	journal, err := persistence.OpenSQLiteJournal(cfg.JournalPath)
	if err != nil {
		logger.S().Fatalf("打开订单流水库失败: %v", err)
	}
	defer journal.Close()

	snapshots, err := persistence.NewBadgerSnapshotStore(cfg.SnapshotPath)
	if err != nil {
		logger.S().Fatalf("打开快照库失败: %v", err)
	}
	defer snapshots.Close()

	accounts := ledger.NewManager(decimal.NewFromFloat(cfg.InitialBalance))
	registry := strategy.NewRegistry()
	client := exchange.NewUpbitClient(cfg.APIBaseURL)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// WebSocket 行情流作为 REST 之上的价格缓存, 覆盖所有配置的市场。
	stream := exchange.NewTickerStream(cfg.WSBaseURL, configuredMarkets(cfg))
	market := exchange.NewStreamingMarketData(client, stream.Tickers())
	go stream.Run(ctx)
	go market.Run(ctx)

	sup := trader.NewSupervisor(cfg, registry, accounts, journal, snapshots, market)

	// 等待中断信号以实现优雅退出。
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		logger.S().Info("收到退出信号, 正在停止所有策略任务...")
		cancel()
	}()

	if err := sup.Run(ctx); err != nil {
		logger.S().Fatalf("监督器退出: %v", err)
	}
	logger.S().Info("机器人已成功停止。")
}

// configuredMarkets 收集所有策略涉及的市场, 去重后用于行情订阅。
func configuredMarkets(cfg *models.Config) []string {
	seen := make(map[string]bool)
	var markets []string
	for _, sc := range cfg.Strategies {
		if !seen[sc.Market] {
			seen[sc.Market] = true
			markets = append(markets, sc.Market)
		}
	}
	return markets
}

// runBacktestMode 对一个或全部配置的策略执行回测并打印对比报告。
func runBacktestMode(cfg *models.Config, strategyID, dataPath, startDate, endDate string) {
	logger.S().Info("--- 启动回测模式 ---")

	selected := cfg.Strategies
	if strategyID != "" {
		sc, ok := cfg.Strategies[strategyID]
		if !ok {
			logger.S().Fatalf("配置中不存在策略: %s", strategyID)
		}
		selected = map[string]models.StrategyConfig{strategyID: sc}
	}
	if len(selected) == 0 {
		logger.S().Fatal("没有可回测的策略, 请检查配置文件。")
	}

	registry := strategy.NewRegistry()
	client := exchange.NewUpbitClient(cfg.APIBaseURL)
	ctx := context.Background()

	var results []*backtest.Result
	for id, sc := range selected {
		strat, err := registry.Create(sc.Strategy, sc)
		if err != nil {
			logger.S().Fatalf("创建策略 %s 失败: %v", id, err)
		}

		stores, err := loadStores(ctx, client, sc, dataPath, startDate, endDate, strat.RequiredTimeframes())
		if err != nil {
			logger.S().Fatalf("加载策略 %s 的历史数据失败: %v", id, err)
		}

		// 每次回测使用独立的内存流水库, 保持结果可复现。
		journal, err := persistence.OpenSQLiteJournal(":memory:")
		if err != nil {
			logger.S().Fatalf("打开回测流水库失败: %v", err)
		}

		eng, err := backtest.New(backtest.Config{
			StrategyID:     id,
			Market:         sc.Market,
			InitialBalance: decimal.NewFromFloat(cfg.InitialBalance),
			Commission:     decimal.NewFromFloat(sc.Commission),
			BuyAmountRatio: decimal.NewFromFloat(sc.BuyAmountRatio),
			RiskFreeRate:   cfg.RiskFreeRate,
		}, strat, stores, journal)
		if err != nil {
			logger.S().Fatalf("构建回测引擎失败: %v", err)
		}

		res, err := eng.Run(ctx)
		journal.Close()
		if err != nil {
			logger.S().Fatalf("回测 %s 失败: %v", id, err)
		}

		backtest.WriteReport(os.Stdout, res)
		results = append(results, res)
	}

	if len(results) > 1 {
		backtest.WriteComparison(os.Stdout, results)
	}
}

// loadStores 为策略需要的每个时间周期准备蜡烛数据:
// 指定了 -data 时从 CSV 加载, 否则从 Upbit 下载并缓存。
func loadStores(ctx context.Context, client *exchange.UpbitClient, sc models.StrategyConfig, dataPath, startDate, endDate string, timeframes []models.Timeframe) (map[models.Timeframe]*feed.CandleStore, error) {
	stores := make(map[models.Timeframe]*feed.CandleStore, len(timeframes))

	if dataPath != "" {
		// CSV 只覆盖主时间周期, 多周期策略需要走下载路径。
		if len(timeframes) != 1 {
			return nil, fmt.Errorf("-data 仅支持单时间周期策略")
		}
		candles, err := feed.LoadCSV(dataPath)
		if err != nil {
			return nil, err
		}
		stores[timeframes[0]] = feed.NewCandleStore(timeframes[0], candles)
		return stores, nil
	}

	if startDate == "" || endDate == "" {
		return nil, fmt.Errorf("回测需要 -data, 或者 -start/-end 日期范围 (YYYY-MM-DD)")
	}
	start, err := time.Parse("2006-01-02", startDate)
	if err != nil {
		return nil, fmt.Errorf("开始日期格式错误: %w", err)
	}
	end, err := time.Parse("2006-01-02", endDate)
	if err != nil {
		return nil, fmt.Errorf("结束日期格式错误: %w", err)
	}

	dl := feed.NewDownloader(client)
	for _, tf := range timeframes {
		path := fmt.Sprintf("data/%s-%s-%s-%s.csv", sc.Market, tf, startDate, endDate)
		candles, err := dl.Download(ctx, sc.Market, tf, path, start, end)
		if err != nil {
			return nil, err
		}
		stores[tf] = feed.NewCandleStore(tf, candles)
	}
	return stores, nil
}
