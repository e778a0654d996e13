package service

import (
	"context"
	"fmt"
	"time"

	"trade_engine/internal/models"
)

// Типизированная поверхность вызовов моста. Каждый метод — один RPC.

func (c *Client) Quote(ctx context.Context, symbol string) (models.Quote, error) {
	var p quotePayload
	if err := c.call(ctx, "quote", map[string]any{"symbol": symbol}, &p); err != nil {
		return models.Quote{}, err
	}
	return models.Quote{
		Symbol: symbol,
		Bid:    p.Bid,
		Ask:    p.Ask,
		Time:   time.UnixMilli(p.TimeMs),
	}, nil
}

func (c *Client) QuoteHistory(ctx context.Context, symbol string, since, until time.Time, limit int) ([]models.Tick, error) {
	params := map[string]any{"symbol": symbol}
	if !since.IsZero() {
		params["since"] = since.UnixMilli()
	}
	if !until.IsZero() {
		params["until"] = until.UnixMilli()
	}
	if limit > 0 {
		params["limit"] = limit
	}

	var raw []tickPayload
	if err := c.call(ctx, "quote_history", params, &raw); err != nil {
		return nil, err
	}

	out := make([]models.Tick, 0, len(raw))
	for _, t := range raw {
		out = append(out, models.Tick{
			Time: time.UnixMilli(t.TimeMs),
			Bid:  t.Bid,
			Ask:  t.Ask,
		})
	}
	return out, nil
}

func (c *Client) SymbolParams(ctx context.Context, symbol string) (models.SymbolSpec, error) {
	var p symbolParamsPayload
	if err := c.call(ctx, "symbol_params", map[string]any{"symbol": symbol}, &p); err != nil {
		return models.SymbolSpec{}, err
	}
	if p.Point <= 0 {
		return models.SymbolSpec{}, fmt.Errorf("symbol %s: point empty", symbol)
	}
	if p.TradeOK != nil && !*p.TradeOK {
		return models.SymbolSpec{}, fmt.Errorf("symbol %s: trade not allowed", symbol)
	}
	return models.SymbolSpec{
		Symbol:   symbol,
		TickSize: p.Point,
		Digits:   p.Digits,
		LotStep:  p.VolumeStep,
		LotMin:   p.VolumeMin,
		LotMax:   p.VolumeMax,
	}, nil
}

func (c *Client) AccountSummary(ctx context.Context) (models.AccountInfo, error) {
	var p accountPayload
	if err := c.call(ctx, "account_summary", nil, &p); err != nil {
		return models.AccountInfo{}, err
	}
	return models.AccountInfo{
		Balance:    p.Balance,
		Equity:     p.Equity,
		Margin:     p.Margin,
		FreeMargin: p.FreeMargin,
		Currency:   p.Currency,
	}, nil
}

func (c *Client) OpenedOrders(ctx context.Context) ([]models.OrderView, error) {
	var raw []orderPayload
	if err := c.call(ctx, "opened_orders", nil, &raw); err != nil {
		return nil, err
	}

	out := make([]models.OrderView, 0, len(raw))
	for _, o := range raw {
		out = append(out, models.OrderView{
			Ticket:     o.Ticket,
			Symbol:     o.Symbol,
			Side:       sideFromOrderType(o.OrderType),
			Lots:       o.Lots,
			OpenPrice:  o.OpenPrice,
			StopLoss:   o.StopLoss,
			TakeProfit: o.TakeProf,
			IsPending:  o.OrderType >= 3,
			Profit:     o.Profit,
			Magic:      o.Magic,
			Comment:    o.Comment,
			OpenTime:   time.UnixMilli(o.OpenMs),
		})
	}
	return out, nil
}

func (c *Client) OrderSend(ctx context.Context, req models.OrderRequest) (int64, error) {
	params := map[string]any{
		"symbol":     req.Symbol,
		"order_type": orderTypeFor(req.Side, req.Kind),
		"lots":       req.Lots,
	}
	if req.Kind != models.OrderMarket {
		params["price"] = req.Price
	}
	if req.StopLoss > 0 {
		params["sl"] = req.StopLoss
	}
	if req.TakeProfit > 0 {
		params["tp"] = req.TakeProfit
	}
	if req.Comment != "" {
		params["comment"] = req.Comment
	}
	if req.Magic != 0 {
		params["magic"] = req.Magic
	}
	if req.DeviationPips > 0 {
		params["deviation_pips"] = req.DeviationPips
	}

	var res orderSendResult
	if err := c.call(ctx, "order_send", params, &res); err != nil {
		return 0, err
	}
	if res.Ticket == 0 {
		return 0, fmt.Errorf("order_send: empty ticket in response")
	}
	return res.Ticket, nil
}

// OrderModify меняет SL/TP по абсолютным ценам; ноль — не трогать уровень.
func (c *Client) OrderModify(ctx context.Context, ticket int64, sl, tp float64) error {
	params := map[string]any{"ticket": ticket}
	if sl > 0 {
		params["sl"] = sl
	}
	if tp > 0 {
		params["tp"] = tp
	}
	return c.call(ctx, "order_modify", params, nil)
}

// OrderCloseDelete закрывает рыночный ордер или удаляет отложенный.
// lots > 0 — частичное закрытие.
func (c *Client) OrderCloseDelete(ctx context.Context, ticket int64, lots float64) error {
	params := map[string]any{"ticket": ticket}
	if lots > 0 {
		params["lots"] = lots
	}
	return c.call(ctx, "order_close_delete", params, nil)
}

// OrderCloseBy — hedge close-by; есть не у каждого моста, поэтому в
// гейтвее это отдельная capability.
func (c *Client) OrderCloseBy(ctx context.Context, ticketA, ticketB int64) error {
	return c.call(ctx, "order_close_by", map[string]any{
		"ticket_a": ticketA,
		"ticket_b": ticketB,
	}, nil)
}

func (c *Client) TickValuePerLot(ctx context.Context, symbol string) (float64, error) {
	var p tickValuePayload
	if err := c.call(ctx, "tick_value_with_size", map[string]any{"symbol": symbol}, &p); err != nil {
		return 0, err
	}
	return p.TradeTickVal, nil
}

func (c *Client) ServerTime(ctx context.Context) (time.Time, error) {
	var p serverTimePayload
	if err := c.call(ctx, "server_time", nil, &p); err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(p.TimeMs), nil
}

func sideFromOrderType(t int) models.Side {
	switch t {
	case 0, 3, 4: // BUY, BUYLIMIT, BUYSTOP
		return models.SideBuy
	default:
		return models.SideSell
	}
}

func orderTypeFor(side models.Side, kind models.OrderKind) int {
	switch kind {
	case models.OrderLimit:
		if side == models.SideBuy {
			return 3
		}
		return 5
	case models.OrderStop:
		if side == models.SideBuy {
			return 4
		}
		return 6
	default:
		if side == models.SideBuy {
			return 0
		}
		return 1
	}
}
