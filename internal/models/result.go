package models

import "time"

// Статусы результата сценария. Автоматическим вызывающим достаточно
// ветвиться по Status — исключения наружу не летят.
const (
	StatusOK                 = "ok"
	StatusOKWithWarnings     = "ok_with_warnings"
	StatusFilled             = "filled"
	StatusCancelledByTimeout = "cancelled_by_timeout"
	StatusTimeoutNoFill      = "timeout_no_fill"
	StatusPendingTimeout     = "pending_timeout"

	StatusSkippedSpread   = "skipped_due_to_spread"
	StatusSkippedSession  = "skipped_by_session"
	StatusSkippedRollover = "skipped_by_rollover"

	StatusBlockedMinEquity        = "blocked_min_equity"
	StatusBlockedDailyDrawdown    = "blocked_daily_drawdown_pct"
	StatusBlockedDailyLoss        = "blocked_daily_loss_money"
	StatusBlockedMaxOpenPositions = "blocked_max_open_positions"
	StatusBlockedRiskPerTradeCap  = "blocked_risk_per_trade_cap"
)

// Result — единый ответ всех сценариев.
type Result struct {
	Status        string
	Ticket        int64
	Tickets       map[string]int64
	FilledSide    Side
	Filled        *OrderView
	Subscriptions map[string]string
	Snapshot      *Snapshot
	Meta          map[string]any
}

func (r *Result) WithMeta(key string, val any) *Result {
	if r.Meta == nil {
		r.Meta = map[string]any{}
	}
	r.Meta[key] = val
	return r
}

// Snapshot — компактный срез состояния счёта для диагностики.
type Snapshot struct {
	GeneratedAt     time.Time
	Account         AccountInfo
	Exposure        Exposure
	OpenOrdersCount int
	Spreads         map[string]SpreadInfo
}

type SpreadInfo struct {
	Bid        float64
	Ask        float64
	SpreadPips float64
	Time       time.Time
}

type Exposure struct {
	Total    ExposureBucket
	BySymbol map[string]ExposureBucket
}

type ExposureBucket struct {
	LotsNet   float64
	LotsLong  float64
	LotsShort float64
	PnL       float64
}
