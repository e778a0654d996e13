package service

import (
	"context"
	"time"

	"trade_engine/internal/models"
)

// BarsFromTicks собирает бары по mid-цене. Интервалы без тиков
// пропускаются, бар открывается первым тиком своего окна.
func BarsFromTicks(ticks []models.Tick, interval time.Duration) []models.Bar {
	if interval <= 0 || len(ticks) == 0 {
		return nil
	}

	var bars []models.Bar
	var cur *models.Bar
	for _, t := range ticks {
		mid := t.Mid()
		start := t.Time.Truncate(interval)

		if cur == nil || !cur.Start.Equal(start) {
			bars = append(bars, models.Bar{Start: start, Open: mid, High: mid, Low: mid, Close: mid})
			cur = &bars[len(bars)-1]
			continue
		}
		if mid > cur.High {
			cur.High = mid
		}
		if mid < cur.Low {
			cur.Low = mid
		}
		cur.Close = mid
	}
	return bars
}

// ATRPips — средний true range последних period баров, в пипсах.
// Возвращает 0, когда истории не хватает.
func (m *Market) ATRPips(ctx context.Context, symbol string, period int, interval time.Duration) (float64, error) {
	if period <= 0 {
		return 0, nil
	}

	since := time.Now().Add(-time.Duration(period+2) * interval * 3)
	ticks, err := m.gw.QuoteHistory(ctx, symbol, since, time.Time{}, 0)
	if err != nil {
		return 0, err
	}

	bars := BarsFromTicks(ticks, interval)
	if len(bars) < 2 {
		return 0, nil
	}
	if len(bars) > period+1 {
		bars = bars[len(bars)-period-1:]
	}

	var sum float64
	var n int
	for i := 1; i < len(bars); i++ {
		tr := bars[i].High - bars[i].Low
		if up := bars[i].High - bars[i-1].Close; up > tr {
			tr = up
		}
		if down := bars[i-1].Close - bars[i].Low; down > tr {
			tr = down
		}
		sum += tr
		n++
	}
	if n == 0 {
		return 0, nil
	}

	spec, err := m.Spec(ctx, symbol)
	if err != nil {
		return 0, err
	}
	pip := PipSize(spec)
	if pip <= 0 {
		return 0, nil
	}
	return (sum / float64(n)) / pip, nil
}
