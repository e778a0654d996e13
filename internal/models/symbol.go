package models

import "time"

// SymbolSpec — торговые параметры символа, как их отдаёт терминал.
// Неизменяемы после загрузки; кешируются в market-сервисе.
type SymbolSpec struct {
	Symbol   string
	TickSize float64 // минимальный шаг цены (Point)
	Digits   int
	LotStep  float64
	LotMin   float64
	LotMax   float64
}

// Quote — последний bid/ask. Живёт один вызов, никогда не кешируется.
type Quote struct {
	Symbol string
	Bid    float64
	Ask    float64
	Time   time.Time
}

func (q Quote) Mid() float64 {
	return (q.Bid + q.Ask) / 2.0
}

func (q Quote) Spread() float64 {
	return q.Ask - q.Bid
}

type AccountInfo struct {
	Balance    float64
	Equity     float64
	Margin     float64
	FreeMargin float64
	Currency   string
}
