package feed

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"upbit-quant-bot/internal/models"
)

var csvHeader = []string{"timestamp_ms", "open", "high", "low", "close", "volume"}

// LoadCSV reads a candle series from a CSV file written by SaveCSV.
func LoadCSV(path string) ([]models.Candle, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	// Skip the header row.
	records = records[1:]
	candles := make([]models.Candle, 0, len(records))
	for i, rec := range records {
		if len(rec) != len(csvHeader) {
			return nil, fmt.Errorf("%s line %d: expected %d fields, got %d", path, i+2, len(csvHeader), len(rec))
		}
		ms, err := strconv.ParseInt(rec[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: bad timestamp: %w", path, i+2, err)
		}
		var vals [5]float64
		for j := 0; j < 5; j++ {
			if vals[j], err = strconv.ParseFloat(rec[j+1], 64); err != nil {
				return nil, fmt.Errorf("%s line %d: bad %s: %w", path, i+2, csvHeader[j+1], err)
			}
		}
		candles = append(candles, models.Candle{
			Timestamp: time.UnixMilli(ms).UTC(),
			Open:      vals[0],
			High:      vals[1],
			Low:       vals[2],
			Close:     vals[3],
			Volume:    vals[4],
		})
	}
	return candles, nil
}

// SaveCSV writes a candle series to path, creating parent directories.
func SaveCSV(path string, candles []models.Candle) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write(csvHeader); err != nil {
		return err
	}
	for _, c := range candles {
		rec := []string{
			strconv.FormatInt(c.Timestamp.UnixMilli(), 10),
			strconv.FormatFloat(c.Open, 'f', -1, 64),
			strconv.FormatFloat(c.High, 'f', -1, 64),
			strconv.FormatFloat(c.Low, 'f', -1, 64),
			strconv.FormatFloat(c.Close, 'f', -1, 64),
			strconv.FormatFloat(c.Volume, 'f', -1, 64),
		}
		if err := writer.Write(rec); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
