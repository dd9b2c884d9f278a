package feed

import (
	"context"
	"fmt"
	"os"
	"time"

	"upbit-quant-bot/internal/exchange"
	"upbit-quant-bot/internal/logger"
	"upbit-quant-bot/internal/models"
)

// requestInterval 是两次历史数据请求之间的间隔, 避免触发限流。
const requestInterval = 200 * time.Millisecond

// Downloader 从 Upbit 下载历史蜡烛数据并缓存为 CSV 文件。
// 文件已存在时跳过下载, 直接使用缓存。
type Downloader struct {
	client *exchange.UpbitClient
}

// NewDownloader 创建一个新的下载器实例。
func NewDownloader(client *exchange.UpbitClient) *Downloader {
	return &Downloader{client: client}
}

// Download 下载 [start, end] 范围内的蜡烛数据并保存到 filePath,
// 返回加载后的序列。Upbit 单次最多 200 根, 这里从 end 向过去翻页。
func (d *Downloader) Download(ctx context.Context, market string, timeframe models.Timeframe, filePath string, start, end time.Time) ([]models.Candle, error) {
	if _, err := os.Stat(filePath); err == nil {
		logger.S().Infof("从缓存加载数据: %s", filePath)
		return LoadCSV(filePath)
	}

	logger.S().Infof("开始下载 %s %s 蜡烛数据: %s ~ %s",
		market, timeframe, start.Format("2006-01-02"), end.Format("2006-01-02"))

	var collected []models.Candle
	// Upbit 的 to 参数不包含 to 本身, 这里加一个周期以包含 end 所在的蜡烛。
	to := end.Add(timeframe.Duration())
	for {
		batch, err := d.client.GetCandlesTo(ctx, market, timeframe, 200, to)
		if err != nil {
			return nil, fmt.Errorf("下载蜡烛数据失败: %w", err)
		}
		if len(batch) == 0 {
			break
		}

		collected = append(collected, batch...)
		oldest := batch[0].Timestamp
		if !oldest.After(start) {
			break
		}
		to = oldest

		logger.S().Infof("已下载数据至 %s", oldest.Format("2006-01-02 15:04:05"))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(requestInterval):
		}
	}

	store := NewCandleStore(timeframe, collected)
	candles := store.Between(start, end)
	if err := SaveCSV(filePath, candles); err != nil {
		return nil, err
	}
	logger.S().Infof("成功下载 %d 根蜡烛到 %s", len(candles), filePath)
	return candles, nil
}
