package service

import "encoding/json"

// Проводные структуры терминального моста. Терминал отвечает конвертом
// {id, code, msg, data}; code != 0 — ошибка бэкенда.

type rpcRequest struct {
	ID     int64          `json:"id"`
	Method string         `json:"method"`
	Params map[string]any `json:"params,omitempty"`
}

type rpcEnvelope struct {
	ID   int64           `json:"id"`
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type quotePayload struct {
	Symbol string  `json:"symbol"`
	Bid    float64 `json:"bid"`
	Ask    float64 `json:"ask"`
	TimeMs int64   `json:"time"`
}

type symbolParamsPayload struct {
	Symbol     string  `json:"symbol"`
	Point      float64 `json:"point"`
	Digits     int     `json:"digits"`
	VolumeStep float64 `json:"volume_step"`
	VolumeMin  float64 `json:"volume_min"`
	VolumeMax  float64 `json:"volume_max"`
	TradeOK    *bool   `json:"trade_allowed,omitempty"`
}

type accountPayload struct {
	Balance    float64 `json:"balance"`
	Equity     float64 `json:"equity"`
	Margin     float64 `json:"margin"`
	FreeMargin float64 `json:"free_margin"`
	Currency   string  `json:"currency"`
}

// Типы ордеров в протоколе моста:
// 0=BUY 1=SELL 3=BUYLIMIT 4=BUYSTOP 5=SELLLIMIT 6=SELLSTOP.
// Нумерация энума моста, не классическая MT4 (там BUYLIMIT=2).
// Всё с типом >= 3 считается отложенным.
type orderPayload struct {
	Ticket    int64   `json:"ticket"`
	Symbol    string  `json:"symbol"`
	OrderType int     `json:"order_type"`
	Lots      float64 `json:"lots"`
	OpenPrice float64 `json:"open_price"`
	StopLoss  float64 `json:"sl"`
	TakeProf  float64 `json:"tp"`
	Profit    float64 `json:"profit"`
	Magic     int     `json:"magic"`
	Comment   string  `json:"comment"`
	OpenMs    int64   `json:"open_time"`
}

type orderSendResult struct {
	Ticket int64 `json:"ticket"`
}

type tickValuePayload struct {
	Symbol        string  `json:"symbol"`
	TradeTickVal  float64 `json:"trade_tick_value"`
	TradeTickSize float64 `json:"trade_tick_size"`
}

type tickPayload struct {
	TimeMs int64   `json:"time"`
	Bid    float64 `json:"bid"`
	Ask    float64 `json:"ask"`
}

type serverTimePayload struct {
	TimeMs int64 `json:"time"`
}
