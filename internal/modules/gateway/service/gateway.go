package service

import (
	"context"
	"errors"
	"time"

	"trade_engine/internal/helper"
	"trade_engine/internal/models"
	"trade_engine/internal/modules/config"
	"trade_engine/pkg/logger"

	"github.com/opentracing/opentracing-go"
)

// Gateway — единственная точка входа к терминалу для всего движка.
// Все мутирующие вызовы проходят через общий rate limit, все ошибки
// заворачиваются в классы из errors.go.
type Gateway struct {
	cfg  *config.Config
	term Terminal

	closeBy CloseByCapable     // nil, если мост не умеет close-by
	clock   ServerClockCapable // nil, если мост не отдаёт серверное время

	limiter *sendLimiter
}

func NewGateway(cfg *config.Config, term Terminal) *Gateway {
	g := &Gateway{
		cfg:     cfg,
		term:    term,
		limiter: newSendLimiter(cfg.OrderSendSpacing),
	}
	// Способности моста выясняем один раз здесь, не на каждом вызове.
	if cb, ok := term.(CloseByCapable); ok {
		g.closeBy = cb
	}
	if sc, ok := term.(ServerClockCapable); ok {
		g.clock = sc
	}
	return g
}

func (g *Gateway) HasCloseBy() bool     { return g.closeBy != nil }
func (g *Gateway) HasServerClock() bool { return g.clock != nil }

// --- чтение ---

func (g *Gateway) Quote(ctx context.Context, symbol string) (models.Quote, error) {
	q, err := g.term.Quote(ctx, helper.NormSymbol(symbol))
	return q, wrapOp("quote", err)
}

func (g *Gateway) QuoteHistory(ctx context.Context, symbol string, since, until time.Time, limit int) ([]models.Tick, error) {
	ticks, err := g.term.QuoteHistory(ctx, helper.NormSymbol(symbol), since, until, limit)
	return ticks, wrapOp("quote_history", err)
}

func (g *Gateway) SymbolParams(ctx context.Context, symbol string) (models.SymbolSpec, error) {
	spec, err := g.term.SymbolParams(ctx, helper.NormSymbol(symbol))
	return spec, wrapOp("symbol_params", err)
}

func (g *Gateway) AccountSummary(ctx context.Context) (models.AccountInfo, error) {
	acc, err := g.term.AccountSummary(ctx)
	return acc, wrapOp("account_summary", err)
}

func (g *Gateway) TickValuePerLot(ctx context.Context, symbol string) (float64, error) {
	v, err := g.term.TickValuePerLot(ctx, helper.NormSymbol(symbol))
	return v, wrapOp("tick_value", err)
}

func (g *Gateway) ListOpen(ctx context.Context) ([]models.OrderView, error) {
	orders, err := g.term.OpenedOrders(ctx)
	return orders, wrapOp("opened_orders", err)
}

// OrderByTicket возвращает nil без ошибки, если ордера больше нет в
// списке открытых (закрылся или удалён).
func (g *Gateway) OrderByTicket(ctx context.Context, ticket int64) (*models.OrderView, error) {
	orders, err := g.ListOpen(ctx)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		if orders[i].Ticket == ticket {
			return &orders[i], nil
		}
	}
	return nil, nil
}

func (g *Gateway) FindOrders(ctx context.Context, filter models.OrderFilter) ([]models.OrderView, error) {
	orders, err := g.ListOpen(ctx)
	if err != nil {
		return nil, err
	}
	out := orders[:0:0]
	for _, o := range orders {
		if filter.Match(o) {
			out = append(out, o)
		}
	}
	return out, nil
}

// ServerTime — серверные часы терминала, если мост их отдаёт.
func (g *Gateway) ServerTime(ctx context.Context) (time.Time, error) {
	if g.clock == nil {
		return time.Time{}, &OpError{Op: "server_time", Kind: ErrValidation, Err: errors.New("bridge has no server clock")}
	}
	t, err := g.clock.ServerTime(ctx)
	return t, wrapOp("server_time", err)
}

// --- мутации ---

// Submit отправляет ордер. Повторов на сетевых ошибках нет: send не
// идемпотентен, повтор может продублировать позицию.
func (g *Gateway) Submit(ctx context.Context, req models.OrderRequest) (int64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "gateway.submit")
	defer span.Finish()

	req.Symbol = helper.NormSymbol(req.Symbol)
	if err := validateRequest(req); err != nil {
		return 0, err
	}
	if req.DeviationPips <= 0 {
		req.DeviationPips = g.cfg.DefaultDeviationPips
	}
	if req.Magic == 0 {
		req.Magic = g.cfg.DefaultMagic
	}

	if err := g.limiter.Acquire(ctx); err != nil {
		return 0, err
	}

	ticket, err := g.term.OrderSend(ctx, req)
	if err != nil {
		logger.Error("order_send failed symbol=%s side=%s kind=%s lots=%.2f: %v",
			req.Symbol, req.Side, req.Kind, req.Lots, err)
		return 0, wrapOp("order_send", err)
	}

	span.SetTag("ticket", ticket)
	logger.Info("order sent ticket=%d symbol=%s side=%s kind=%s lots=%.2f price=%.5f",
		ticket, req.Symbol, req.Side, req.Kind, req.Lots, req.Price)
	return ticket, nil
}

// Modify переставляет SL/TP. Нулевой уровень не трогается.
func (g *Gateway) Modify(ctx context.Context, ticket int64, sl, tp float64) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "gateway.modify")
	defer span.Finish()
	span.SetTag("ticket", ticket)

	if ticket <= 0 {
		return &OpError{Op: "order_modify", Kind: ErrValidation, Err: errors.New("empty ticket")}
	}
	if sl <= 0 && tp <= 0 {
		return &OpError{Op: "order_modify", Kind: ErrValidation, Err: errors.New("nothing to modify")}
	}

	if err := g.limiter.Acquire(ctx); err != nil {
		return err
	}
	if err := g.term.OrderModify(ctx, ticket, sl, tp); err != nil {
		return wrapOp("order_modify", err)
	}
	logger.Info("order modified ticket=%d sl=%.5f tp=%.5f", ticket, sl, tp)
	return nil
}

// Close закрывает рыночный ордер или удаляет отложенный. lots=0 — целиком.
func (g *Gateway) Close(ctx context.Context, ticket int64, lots float64) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "gateway.close")
	defer span.Finish()
	span.SetTag("ticket", ticket)

	if ticket <= 0 {
		return &OpError{Op: "order_close_delete", Kind: ErrValidation, Err: errors.New("empty ticket")}
	}

	if err := g.limiter.Acquire(ctx); err != nil {
		return err
	}
	if err := g.term.OrderCloseDelete(ctx, ticket, lots); err != nil {
		return wrapOp("order_close_delete", err)
	}
	logger.Info("order closed ticket=%d lots=%.2f", ticket, lots)
	return nil
}

// CloseBy схлопывает две встречные позиции одним вызовом моста.
func (g *Gateway) CloseBy(ctx context.Context, ticketA, ticketB int64) error {
	if g.closeBy == nil {
		return &OpError{Op: "order_close_by", Kind: ErrValidation, Err: errors.New("bridge has no close-by")}
	}

	if err := g.limiter.Acquire(ctx); err != nil {
		return err
	}
	if err := g.closeBy.OrderCloseBy(ctx, ticketA, ticketB); err != nil {
		return wrapOp("order_close_by", err)
	}
	logger.Info("close-by done tickets=%d/%d", ticketA, ticketB)
	return nil
}

// CancelPendings удаляет отложенные ордера по фильтру. Возвращает
// тикеты удалённых; частичный провал не прерывает проход.
func (g *Gateway) CancelPendings(ctx context.Context, filter models.OrderFilter) ([]int64, error) {
	filter.State = models.StatePending
	orders, err := g.FindOrders(ctx, filter)
	if err != nil {
		return nil, err
	}

	var cancelled []int64
	var lastErr error
	for _, o := range orders {
		if err := g.Close(ctx, o.Ticket, 0); err != nil {
			logger.Error("cancel pending failed ticket=%d: %v", o.Ticket, err)
			lastErr = err
			continue
		}
		cancelled = append(cancelled, o.Ticket)
	}
	return cancelled, lastErr
}

// CloseAll закрывает рыночные позиции по фильтру.
func (g *Gateway) CloseAll(ctx context.Context, filter models.OrderFilter) ([]int64, error) {
	filter.State = models.StateOpen
	orders, err := g.FindOrders(ctx, filter)
	if err != nil {
		return nil, err
	}

	var closed []int64
	var lastErr error
	for _, o := range orders {
		if err := g.Close(ctx, o.Ticket, 0); err != nil {
			logger.Error("close failed ticket=%d: %v", o.Ticket, err)
			lastErr = err
			continue
		}
		closed = append(closed, o.Ticket)
	}
	return closed, lastErr
}

// Reconnect дёргает переподключение моста.
func (g *Gateway) Reconnect(ctx context.Context) error {
	if err := g.term.Reconnect(ctx); err != nil {
		return wrapOp("reconnect", err)
	}
	return nil
}

func validateRequest(req models.OrderRequest) error {
	bad := func(msg string) error {
		return &OpError{Op: "order_send", Kind: ErrValidation, Err: errors.New(msg)}
	}
	if req.Symbol == "" {
		return bad("empty symbol")
	}
	if req.Side != models.SideBuy && req.Side != models.SideSell {
		return bad("bad side")
	}
	if req.Lots <= 0 {
		return bad("lots must be positive")
	}
	if req.Kind != models.OrderMarket && req.Price <= 0 {
		return bad("pending order requires price")
	}
	return nil
}
