package models

import "time"

// Tick — одна котировка из истории терминала.
type Tick struct {
	Time time.Time
	Bid  float64
	Ask  float64
}

func (t Tick) Mid() float64 {
	return (t.Bid + t.Ask) / 2.0
}

// Bar — агрегат тиков по mid-цене за фиксированный интервал.
type Bar struct {
	Start time.Time
	Open  float64
	High  float64
	Low   float64
	Close float64
}
