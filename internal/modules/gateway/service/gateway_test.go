package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"trade_engine/internal/models"
	"trade_engine/internal/modules/config"
	"trade_engine/internal/modules/terminal/terminaltest"
	"trade_engine/pkg/logger"
)

func init() {
	_ = logger.Init()
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.OrderSendSpacing = 0
	cfg.DefaultDeviationPips = 2
	cfg.DefaultMagic = 777
	cfg.FillPollInterval = 5 * time.Millisecond
	cfg.WaitFillTimeout = 200 * time.Millisecond
	return cfg
}

func eurusdFake() *terminaltest.Fake {
	f := terminaltest.NewFake()
	f.Specs["EURUSD"] = models.SymbolSpec{
		Symbol: "EURUSD", TickSize: 0.00001, Digits: 5,
		LotStep: 0.01, LotMin: 0.01, LotMax: 100,
	}
	f.SetQuote("EURUSD", 1.10000, 1.10012)
	f.TickValues["EURUSD"] = 1.0
	f.Account = models.AccountInfo{Balance: 10000, Equity: 10000, Currency: "USD"}
	return f
}

func TestSubmitValidation(t *testing.T) {
	gw := NewGateway(testConfig(), eurusdFake())
	ctx := context.Background()

	// пустой символ, кривая сторона, нулевой лот, отложка без цены
	cases := []models.OrderRequest{
		{Side: models.SideBuy, Kind: models.OrderMarket, Lots: 0.1},
		{Symbol: "EURUSD", Side: "long", Kind: models.OrderMarket, Lots: 0.1},
		{Symbol: "EURUSD", Side: models.SideBuy, Kind: models.OrderMarket, Lots: 0},
		{Symbol: "EURUSD", Side: models.SideBuy, Kind: models.OrderLimit, Lots: 0.1},
	}
	for i, req := range cases {
		if _, err := gw.Submit(ctx, req); !errors.Is(err, ErrValidation) {
			t.Errorf("case %d: want ErrValidation, got %v", i, err)
		}
	}
}

func TestSubmitFillsDefaults(t *testing.T) {
	fake := eurusdFake()
	gw := NewGateway(testConfig(), fake)

	_, err := gw.Submit(context.Background(), models.OrderRequest{
		Symbol: "eurusd", Side: models.SideBuy, Kind: models.OrderMarket, Lots: 0.1,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	sent := fake.Sent[0]
	if sent.Symbol != "EURUSD" {
		t.Errorf("symbol not normalized: %q", sent.Symbol)
	}
	if sent.Magic != 777 {
		t.Errorf("magic default not applied: %d", sent.Magic)
	}
	if sent.DeviationPips != 2 {
		t.Errorf("deviation default not applied: %v", sent.DeviationPips)
	}
}

func TestErrorClassification(t *testing.T) {
	fake := eurusdFake()
	gw := NewGateway(testConfig(), fake)
	ctx := context.Background()

	fake.Fail["order_send"] = &terminaltest.RejectError{Code: 134, Msg: "not enough money"}
	_, err := gw.Submit(ctx, models.OrderRequest{
		Symbol: "EURUSD", Side: models.SideBuy, Kind: models.OrderMarket, Lots: 0.1,
	})
	if !errors.Is(err, ErrOrderRejected) {
		t.Errorf("send reject: want ErrOrderRejected, got %v", err)
	}
	if errors.Is(err, ErrConnectivity) {
		t.Errorf("send reject misclassified as connectivity")
	}
	delete(fake.Fail, "order_send")

	fake.Fail["order_modify"] = &terminaltest.RejectError{Code: 130, Msg: "invalid stops"}
	if err := gw.Modify(ctx, 1, 1.0999, 0); !errors.Is(err, ErrModifyRejected) {
		t.Errorf("modify reject: want ErrModifyRejected, got %v", err)
	}
	delete(fake.Fail, "order_modify")

	fake.Fail["quote"] = errors.New("connection reset")
	if _, err := gw.Quote(ctx, "EURUSD"); !errors.Is(err, ErrConnectivity) {
		t.Errorf("network failure: want ErrConnectivity, got %v", err)
	}
}

func TestRateLimiterSpacing(t *testing.T) {
	limiter := newSendLimiter(30 * time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := limiter.Acquire(ctx); err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
	}
	elapsed := time.Since(start)
	if elapsed < 60*time.Millisecond {
		t.Errorf("three acquires took %v, want >= 60ms", elapsed)
	}
}

func TestRateLimiterDeadline(t *testing.T) {
	limiter := newSendLimiter(time.Second)
	ctx := context.Background()
	if err := limiter.Acquire(ctx); err != nil {
		t.Fatalf("first acquire: %v", err)
	}

	// Следующий слот через секунду, дедлайн раньше: отказ без сна.
	dctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	err := limiter.Acquire(dctx)
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("want ErrRateLimited, got %v", err)
	}
	if time.Since(start) > 40*time.Millisecond {
		t.Errorf("deadline rejection should not sleep")
	}
}

func TestOrderByTicketAndFilters(t *testing.T) {
	fake := eurusdFake()
	gw := NewGateway(testConfig(), fake)
	ctx := context.Background()

	t1, _ := gw.Submit(ctx, models.OrderRequest{
		Symbol: "EURUSD", Side: models.SideBuy, Kind: models.OrderMarket, Lots: 0.1, Magic: 5,
	})
	t2, _ := gw.Submit(ctx, models.OrderRequest{
		Symbol: "EURUSD", Side: models.SideSell, Kind: models.OrderLimit, Price: 1.2, Lots: 0.1, Magic: 5,
	})

	view, err := gw.OrderByTicket(ctx, t1)
	if err != nil || view == nil || view.Ticket != t1 {
		t.Fatalf("OrderByTicket(%d) = %v, %v", t1, view, err)
	}
	if view, _ := gw.OrderByTicket(ctx, 99999); view != nil {
		t.Errorf("unknown ticket should give nil view")
	}

	pendings, err := gw.FindOrders(ctx, models.OrderFilter{State: models.StatePending})
	if err != nil || len(pendings) != 1 || pendings[0].Ticket != t2 {
		t.Fatalf("pending filter: %v, %v", pendings, err)
	}

	cancelled, err := gw.CancelPendings(ctx, models.OrderFilter{Symbol: "EURUSD", Magic: 5, HasMagic: true})
	if err != nil || len(cancelled) != 1 || cancelled[0] != t2 {
		t.Fatalf("CancelPendings = %v, %v", cancelled, err)
	}
	if _, ok := fake.Order(t2); ok {
		t.Errorf("pending not removed")
	}
	if _, ok := fake.Order(t1); !ok {
		t.Errorf("market order must survive pending cleanup")
	}
}

func TestWaitFilled(t *testing.T) {
	fake := eurusdFake()
	gw := NewGateway(testConfig(), fake)
	ctx := context.Background()

	ticket, _ := gw.Submit(ctx, models.OrderRequest{
		Symbol: "EURUSD", Side: models.SideBuy, Kind: models.OrderLimit, Price: 1.09, Lots: 0.1,
	})

	go func() {
		time.Sleep(20 * time.Millisecond)
		fake.FillPending(ticket, 1.09)
	}()
	view, err := gw.WaitFilled(ctx, ticket, 500*time.Millisecond)
	if err != nil {
		t.Fatalf("WaitFilled: %v", err)
	}
	if view.IsPending || view.OpenPrice != 1.09 {
		t.Errorf("bad filled view: %+v", view)
	}
}

func TestWaitFilledTimeout(t *testing.T) {
	fake := eurusdFake()
	gw := NewGateway(testConfig(), fake)
	ctx := context.Background()

	ticket, _ := gw.Submit(ctx, models.OrderRequest{
		Symbol: "EURUSD", Side: models.SideBuy, Kind: models.OrderLimit, Price: 1.09, Lots: 0.1,
	})
	if _, err := gw.WaitFilled(ctx, ticket, 30*time.Millisecond); !errors.Is(err, ErrAwaitTimeout) {
		t.Fatalf("want ErrAwaitTimeout, got %v", err)
	}
}

func TestWaitClosed(t *testing.T) {
	fake := eurusdFake()
	gw := NewGateway(testConfig(), fake)
	ctx := context.Background()

	ticket, _ := gw.Submit(ctx, models.OrderRequest{
		Symbol: "EURUSD", Side: models.SideBuy, Kind: models.OrderMarket, Lots: 0.1,
	})

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = gw.Close(ctx, ticket, 0)
	}()
	if err := gw.WaitClosed(ctx, ticket, 500*time.Millisecond); err != nil {
		t.Fatalf("WaitClosed: %v", err)
	}

	// Живой ордер до дедлайна не закрылся.
	t2, _ := gw.Submit(ctx, models.OrderRequest{
		Symbol: "EURUSD", Side: models.SideBuy, Kind: models.OrderMarket, Lots: 0.1,
	})
	if err := gw.WaitClosed(ctx, t2, 30*time.Millisecond); !errors.Is(err, ErrAwaitTimeout) {
		t.Fatalf("want ErrAwaitTimeout, got %v", err)
	}
}

func TestCapabilitiesResolvedAtConstruction(t *testing.T) {
	gw := NewGateway(testConfig(), eurusdFake())
	if !gw.HasCloseBy() || !gw.HasServerClock() {
		t.Errorf("fake implements both capabilities")
	}

	bare := readOnlyTerminal{Terminal: terminaltest.NewFake()}
	gwBare := NewGateway(testConfig(), bare)
	if gwBare.HasCloseBy() || gwBare.HasServerClock() {
		t.Errorf("stripped terminal must not report capabilities")
	}
	if err := gwBare.CloseBy(context.Background(), 1, 2); !errors.Is(err, ErrValidation) {
		t.Errorf("close-by without capability: want ErrValidation, got %v", err)
	}
}

// readOnlyTerminal сужает фейк до базового интерфейса: встроенный
// интерфейс не протаскивает опциональные методы в method set.
type readOnlyTerminal struct {
	Terminal
}
