package models

import "time"

type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

type OrderKind string

const (
	OrderMarket OrderKind = "market"
	OrderLimit  OrderKind = "limit"
	OrderStop   OrderKind = "stop"
)

// OrderRequest — payload для отправки ордера в терминал.
// Нулевые SL/TP/Price означают "не задано".
type OrderRequest struct {
	Symbol        string
	Side          Side
	Kind          OrderKind
	Price         float64 // обязателен для limit/stop, игнорируется для market
	Lots          float64
	StopLoss      float64
	TakeProfit    float64
	Comment       string
	Magic         int
	DeviationPips float64
}

// OrderView — снимок ордера из listOpen. Никогда не кешируется дольше
// одного чтения: источник правды всегда терминал.
type OrderView struct {
	Ticket     int64
	Symbol     string
	Side       Side
	Lots       float64
	OpenPrice  float64
	StopLoss   float64
	TakeProfit float64
	IsPending  bool
	Profit     float64
	Magic      int
	Comment    string
	OpenTime   time.Time
}

// OrderFilter — фильтры для поиска по открытым ордерам.
type OrderFilter struct {
	Symbol     string
	Magic      int  // 0 = любой
	HasMagic   bool // true, если Magic задан явно (magic=0 легален)
	Side       Side // "" = любая
	State      OrderState
	MinProfit  float64
	HasProfit  bool
	OnlyProfit *bool // nil = все; true = только плюсовые; false = только минусовые
}

type OrderState string

const (
	StateAny     OrderState = ""
	StateOpen    OrderState = "open"
	StatePending OrderState = "pending"
)

func (f OrderFilter) Match(o OrderView) bool {
	if f.Symbol != "" && o.Symbol != f.Symbol {
		return false
	}
	if f.HasMagic && o.Magic != f.Magic {
		return false
	}
	if f.Side != "" && o.Side != f.Side {
		return false
	}
	switch f.State {
	case StateOpen:
		if o.IsPending {
			return false
		}
	case StatePending:
		if !o.IsPending {
			return false
		}
	}
	if f.HasProfit && o.Profit < f.MinProfit {
		return false
	}
	if f.OnlyProfit != nil {
		if *f.OnlyProfit && o.Profit <= 0 {
			return false
		}
		if !*f.OnlyProfit && o.Profit >= 0 {
			return false
		}
	}
	return true
}
