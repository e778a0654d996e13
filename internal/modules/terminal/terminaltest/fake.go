package terminaltest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"trade_engine/internal/models"
)

// RejectError имитирует отказ терминала с кодом, как его отдаёт боевой
// клиент.
type RejectError struct {
	Code int
	Msg  string
}

func (e *RejectError) Error() string {
	return fmt.Sprintf("terminal reject [%d] %s", e.Code, e.Msg)
}

func (e *RejectError) BackendCode() int { return e.Code }

// Fake — скриптуемый терминал для тестов. Состояние полностью в
// памяти, все методы потокобезопасны.
type Fake struct {
	mu sync.Mutex

	Quotes     map[string]models.Quote
	Specs      map[string]models.SymbolSpec
	Account    models.AccountInfo
	TickValues map[string]float64
	History    map[string][]models.Tick
	Now        time.Time

	Orders     map[int64]*models.OrderView
	nextTicket int64

	// Fail подсовывает ошибку конкретному методу ("order_send" и т.п.).
	Fail map[string]error

	Sent       []models.OrderRequest
	Modifies   int
	Reconnects int
}

func NewFake() *Fake {
	return &Fake{
		Quotes:     map[string]models.Quote{},
		Specs:      map[string]models.SymbolSpec{},
		TickValues: map[string]float64{},
		History:    map[string][]models.Tick{},
		Orders:     map[int64]*models.OrderView{},
		Fail:       map[string]error{},
		Now:        time.Date(2024, 3, 12, 12, 0, 0, 0, time.UTC),
	}
}

func (f *Fake) failFor(op string) error {
	if err, ok := f.Fail[op]; ok {
		return err
	}
	return nil
}

func (f *Fake) EnsureConnected(context.Context) error { return f.failFor("connect") }

func (f *Fake) Reconnect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Reconnects++
	return f.failFor("reconnect")
}

func (f *Fake) Quote(_ context.Context, symbol string) (models.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failFor("quote"); err != nil {
		return models.Quote{}, err
	}
	q, ok := f.Quotes[symbol]
	if !ok {
		return models.Quote{}, fmt.Errorf("no quote for %s", symbol)
	}
	return q, nil
}

func (f *Fake) QuoteHistory(_ context.Context, symbol string, _, _ time.Time, _ int) ([]models.Tick, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failFor("quote_history"); err != nil {
		return nil, err
	}
	return f.History[symbol], nil
}

func (f *Fake) SymbolParams(_ context.Context, symbol string) (models.SymbolSpec, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failFor("symbol_params"); err != nil {
		return models.SymbolSpec{}, err
	}
	spec, ok := f.Specs[symbol]
	if !ok {
		return models.SymbolSpec{}, fmt.Errorf("unknown symbol %s", symbol)
	}
	return spec, nil
}

func (f *Fake) AccountSummary(context.Context) (models.AccountInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failFor("account_summary"); err != nil {
		return models.AccountInfo{}, err
	}
	return f.Account, nil
}

func (f *Fake) TickValuePerLot(_ context.Context, symbol string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failFor("tick_value"); err != nil {
		return 0, err
	}
	return f.TickValues[symbol], nil
}

func (f *Fake) OpenedOrders(context.Context) ([]models.OrderView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failFor("opened_orders"); err != nil {
		return nil, err
	}
	out := make([]models.OrderView, 0, len(f.Orders))
	for _, o := range f.Orders {
		out = append(out, *o)
	}
	return out, nil
}

func (f *Fake) OrderSend(_ context.Context, req models.OrderRequest) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Sent = append(f.Sent, req)
	if err := f.failFor("order_send"); err != nil {
		return 0, err
	}

	f.nextTicket++
	ticket := f.nextTicket
	view := &models.OrderView{
		Ticket:     ticket,
		Symbol:     req.Symbol,
		Side:       req.Side,
		Lots:       req.Lots,
		OpenPrice:  req.Price,
		StopLoss:   req.StopLoss,
		TakeProfit: req.TakeProfit,
		IsPending:  req.Kind != models.OrderMarket,
		Magic:      req.Magic,
		Comment:    req.Comment,
		OpenTime:   f.Now,
	}
	if req.Kind == models.OrderMarket {
		q := f.Quotes[req.Symbol]
		if req.Side == models.SideBuy {
			view.OpenPrice = q.Ask
		} else {
			view.OpenPrice = q.Bid
		}
	}
	f.Orders[ticket] = view
	return ticket, nil
}

func (f *Fake) OrderModify(_ context.Context, ticket int64, sl, tp float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Modifies++
	if err := f.failFor("order_modify"); err != nil {
		return err
	}
	o, ok := f.Orders[ticket]
	if !ok {
		return &RejectError{Code: 4108, Msg: "unknown ticket"}
	}
	if sl > 0 {
		o.StopLoss = sl
	}
	if tp > 0 {
		o.TakeProfit = tp
	}
	return nil
}

func (f *Fake) OrderCloseDelete(_ context.Context, ticket int64, _ float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failFor("order_close_delete"); err != nil {
		return err
	}
	if _, ok := f.Orders[ticket]; !ok {
		return &RejectError{Code: 4108, Msg: "unknown ticket"}
	}
	delete(f.Orders, ticket)
	return nil
}

func (f *Fake) OrderCloseBy(_ context.Context, a, b int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failFor("order_close_by"); err != nil {
		return err
	}
	if _, ok := f.Orders[a]; !ok {
		return &RejectError{Code: 4108, Msg: "unknown ticket"}
	}
	if _, ok := f.Orders[b]; !ok {
		return &RejectError{Code: 4108, Msg: "unknown ticket"}
	}
	delete(f.Orders, a)
	delete(f.Orders, b)
	return nil
}

func (f *Fake) ServerTime(context.Context) (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failFor("server_time"); err != nil {
		return time.Time{}, err
	}
	return f.Now, nil
}

// --- сценарные хелперы ---

// SetFail включает или снимает (err == nil) ошибку метода под мьютексом:
// безопасно дёргать, пока воркеры уже ходят в фейк.
func (f *Fake) SetFail(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.Fail, op)
		return
	}
	f.Fail[op] = err
}

// ModifyCount — число попыток order_modify, включая отвергнутые.
func (f *Fake) ModifyCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Modifies
}

func (f *Fake) SetQuote(symbol string, bid, ask float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Quotes[symbol] = models.Quote{Symbol: symbol, Bid: bid, Ask: ask, Time: f.Now}
}

// FillPending переводит отложку в рыночную позицию по заданной цене.
func (f *Fake) FillPending(ticket int64, price float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if o, ok := f.Orders[ticket]; ok {
		o.IsPending = false
		if price > 0 {
			o.OpenPrice = price
		}
	}
}

func (f *Fake) Order(ticket int64) (models.OrderView, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if o, ok := f.Orders[ticket]; ok {
		return *o, true
	}
	return models.OrderView{}, false
}

func (f *Fake) LastTicket() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nextTicket
}
