// Package feed manages historical candle series: an in-memory store with
// capped look-back views for replay, CSV load/save, and an Upbit downloader
// with a local CSV cache.
package feed

import (
	"sort"
	"time"

	"upbit-quant-bot/internal/models"
)

// CandleStore holds one candle series, sorted ascending by timestamp with
// duplicates dropped. Its UpTo view is what keeps replays free of look-ahead:
// a consumer at time T can only ever see candles that had closed by T.
type CandleStore struct {
	timeframe models.Timeframe
	candles   []models.Candle
}

// NewCandleStore builds a store from the given candles. Input order does not
// matter; candles sharing a timestamp keep the first occurrence.
func NewCandleStore(timeframe models.Timeframe, candles []models.Candle) *CandleStore {
	sorted := make([]models.Candle, len(candles))
	copy(sorted, candles)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	deduped := sorted[:0]
	for _, c := range sorted {
		if len(deduped) > 0 && c.Timestamp.Equal(deduped[len(deduped)-1].Timestamp) {
			continue
		}
		deduped = append(deduped, c)
	}

	return &CandleStore{timeframe: timeframe, candles: deduped}
}

// Timeframe returns the store's timeframe.
func (s *CandleStore) Timeframe() models.Timeframe {
	return s.timeframe
}

// Len returns the number of candles.
func (s *CandleStore) Len() int {
	return len(s.candles)
}

// All returns the full series. The slice is shared; callers must not mutate.
func (s *CandleStore) All() []models.Candle {
	return s.candles
}

// UpTo returns the prefix of candles with Timestamp <= ts.
func (s *CandleStore) UpTo(ts time.Time) []models.Candle {
	idx := sort.Search(len(s.candles), func(i int) bool {
		return s.candles[i].Timestamp.After(ts)
	})
	return s.candles[:idx]
}

// Timestamps returns the candle timestamps, ascending.
func (s *CandleStore) Timestamps() []time.Time {
	out := make([]time.Time, len(s.candles))
	for i, c := range s.candles {
		out[i] = c.Timestamp
	}
	return out
}

// Between returns candles with start <= Timestamp <= end. Zero start or end
// leaves that side unbounded.
func (s *CandleStore) Between(start, end time.Time) []models.Candle {
	lo := 0
	if !start.IsZero() {
		lo = sort.Search(len(s.candles), func(i int) bool {
			return !s.candles[i].Timestamp.Before(start)
		})
	}
	hi := len(s.candles)
	if !end.IsZero() {
		hi = sort.Search(len(s.candles), func(i int) bool {
			return s.candles[i].Timestamp.After(end)
		})
	}
	if lo > hi {
		return nil
	}
	return s.candles[lo:hi]
}
