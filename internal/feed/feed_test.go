package feed

import (
	"path/filepath"
	"testing"
	"time"

	"upbit-quant-bot/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mkCandle(minute int, close float64) models.Candle {
	return models.Candle{
		Timestamp: time.Date(2024, 1, 1, 0, minute, 0, 0, time.UTC),
		Open:      close, High: close, Low: close, Close: close,
		Volume: 1,
	}
}

func TestCandleStoreSortsAndDedups(t *testing.T) {
	store := NewCandleStore(models.Timeframe1m, []models.Candle{
		mkCandle(2, 102),
		mkCandle(0, 100),
		mkCandle(1, 101),
		mkCandle(1, 999), // duplicate timestamp, dropped
	})

	require.Equal(t, 3, store.Len())
	all := store.All()
	assert.Equal(t, 100.0, all[0].Close)
	assert.Equal(t, 101.0, all[1].Close)
	assert.Equal(t, 102.0, all[2].Close)
}

func TestCandleStoreUpTo(t *testing.T) {
	store := NewCandleStore(models.Timeframe1m, []models.Candle{
		mkCandle(0, 100), mkCandle(1, 101), mkCandle(2, 102),
	})

	// The view at minute 1 must not include the minute-2 candle.
	view := store.UpTo(time.Date(2024, 1, 1, 0, 1, 0, 0, time.UTC))
	require.Len(t, view, 2)
	assert.Equal(t, 101.0, view[1].Close)

	assert.Empty(t, store.UpTo(time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC)))
	assert.Len(t, store.UpTo(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)), 3)
}

func TestCandleStoreBetween(t *testing.T) {
	store := NewCandleStore(models.Timeframe1m, []models.Candle{
		mkCandle(0, 100), mkCandle(1, 101), mkCandle(2, 102), mkCandle(3, 103),
	})

	got := store.Between(
		time.Date(2024, 1, 1, 0, 1, 0, 0, time.UTC),
		time.Date(2024, 1, 1, 0, 2, 0, 0, time.UTC),
	)
	require.Len(t, got, 2)
	assert.Equal(t, 101.0, got[0].Close)

	unbounded := store.Between(time.Time{}, time.Time{})
	assert.Len(t, unbounded, 4)
}

func TestCSVRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "candles.csv")
	candles := []models.Candle{
		{Timestamp: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), Open: 1.5, High: 2.25, Low: 1.0, Close: 2.0, Volume: 10.5},
		{Timestamp: time.Date(2024, 1, 1, 0, 1, 0, 0, time.UTC), Open: 2.0, High: 3.0, Low: 2.0, Close: 2.5, Volume: 7},
	}

	require.NoError(t, SaveCSV(path, candles))

	got, err := LoadCSV(path)
	require.NoError(t, err)
	assert.Equal(t, candles, got)
}

func TestLoadCSVMissingFile(t *testing.T) {
	_, err := LoadCSV(filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)
}
