package scenario

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"trade_engine/internal/automation"
	"trade_engine/internal/guards"
	"trade_engine/internal/models"
	"trade_engine/internal/modules/config"
	gatewayservice "trade_engine/internal/modules/gateway/service"
	journalservice "trade_engine/internal/modules/journal/service"
	marketservice "trade_engine/internal/modules/market/service"
	"trade_engine/internal/modules/terminal/terminaltest"
	"trade_engine/internal/notify"
	"trade_engine/pkg/logger"
)

func init() {
	_ = logger.Init()
}

func newTestEngine(gs ...guards.Guard) (*Service, *terminaltest.Fake) {
	fake := terminaltest.NewFake()
	fake.Specs["EURUSD"] = models.SymbolSpec{
		Symbol: "EURUSD", TickSize: 0.00001, Digits: 5,
		LotStep: 0.01, LotMin: 0.01, LotMax: 100,
	}
	fake.SetQuote("EURUSD", 1.10000, 1.10012)
	fake.TickValues["EURUSD"] = 1.0
	fake.Account = models.AccountInfo{Balance: 10000, Equity: 10000, Currency: "USD"}

	cfg := &config.Config{}
	cfg.DefaultRiskPct = 1.0
	cfg.DefaultDeviationPips = 2
	cfg.DefaultMagic = 777
	cfg.TrailingPollInterval = 5 * time.Millisecond
	cfg.BreakevenPollInterval = 5 * time.Millisecond
	cfg.FillPollInterval = 5 * time.Millisecond
	cfg.WaitFillTimeout = 200 * time.Millisecond
	cfg.GridManageTimeout = 300 * time.Millisecond

	gw := gatewayservice.NewGateway(cfg, fake)
	market := marketservice.NewMarket(cfg, gw)
	auto := automation.NewService(cfg, gw, market, automation.NewRegistry())
	svc := NewService(cfg, gw, market, auto,
		guards.NewPipeline(gs...), notify.Nop{}, journalservice.Disabled())
	return svc, fake
}

func TestMarketOneShotRiskSized(t *testing.T) {
	svc, fake := newTestEngine()
	defer svc.auto.CancelAll()

	res, err := svc.MarketOneShot(context.Background(), EntryParams{
		Symbol:     "EURUSD",
		Side:       models.SideBuy,
		RiskPct:    1.0,
		StopPips:   20,
		TargetPips: 40,
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != models.StatusOK || res.Ticket == 0 {
		t.Fatalf("result: %+v", res)
	}

	sent := fake.Sent[0]
	if math.Abs(sent.Lots-0.50) > 1e-9 {
		t.Errorf("risk-sized lots = %v, want 0.50", sent.Lots)
	}
	if math.Abs(sent.StopLoss-(1.10012-0.0020)) > 2e-5 {
		t.Errorf("sl = %v", sent.StopLoss)
	}
	if math.Abs(sent.TakeProfit-(1.10012+0.0040)) > 2e-5 {
		t.Errorf("tp = %v", sent.TakeProfit)
	}
}

func TestMarketOneShotCannotSize(t *testing.T) {
	svc, fake := newTestEngine()
	fake.TickValues["EURUSD"] = 0 // стоимость пипса неизвестна

	_, err := svc.MarketOneShot(context.Background(), EntryParams{
		Symbol: "EURUSD", Side: models.SideBuy, RiskPct: 1.0, StopPips: 20,
	})
	if !errors.Is(err, gatewayservice.ErrValidation) {
		t.Fatalf("want ErrValidation, got %v", err)
	}
	if len(fake.Sent) != 0 {
		t.Errorf("no order may reach the terminal when sizing fails")
	}
}

type blockGuard struct{}

func (blockGuard) Name() string { return "session" }
func (blockGuard) Check(context.Context, *guards.Checkpoint) models.GuardDecision {
	return models.Block(models.StatusSkippedSession, "closed", nil)
}

func TestGuardBlockStopsScenario(t *testing.T) {
	svc, fake := newTestEngine(blockGuard{})

	res, err := svc.MarketOneShot(context.Background(), EntryParams{
		Symbol: "EURUSD", Side: models.SideBuy, Lots: 0.1,
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != models.StatusSkippedSession {
		t.Errorf("status = %q", res.Status)
	}
	if len(fake.Sent) != 0 {
		t.Errorf("blocked scenario must not touch the terminal")
	}
}

func TestPendingBracketTimeoutCancels(t *testing.T) {
	svc, fake := newTestEngine()

	res, err := svc.PendingBracket(context.Background(), PendingBracketParams{
		EntryParams: EntryParams{
			Symbol: "EURUSD", Side: models.SideBuy, Lots: 0.1, StopPips: 20,
		},
		Kind:        models.OrderLimit,
		EntryPrice:  1.09000,
		WaitTimeout: 50 * time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != models.StatusCancelledByTimeout {
		t.Fatalf("status = %q", res.Status)
	}
	if _, ok := fake.Order(res.Ticket); ok {
		t.Errorf("pending must be cancelled after timeout")
	}
}

func TestPendingBracketFill(t *testing.T) {
	svc, fake := newTestEngine()
	defer svc.auto.CancelAll()

	go func() {
		time.Sleep(30 * time.Millisecond)
		fake.FillPending(1, 1.09000)
	}()
	res, err := svc.PendingBracket(context.Background(), PendingBracketParams{
		EntryParams: EntryParams{
			Symbol: "EURUSD", Side: models.SideBuy, Lots: 0.1,
			StopPips: 20, TrailingPips: 15,
		},
		Kind:        models.OrderLimit,
		EntryPrice:  1.09000,
		WaitTimeout: 500 * time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != models.StatusFilled || res.Filled == nil {
		t.Fatalf("result: %+v", res)
	}
	if _, ok := res.Subscriptions["trailing"]; !ok {
		t.Errorf("trailing worker must attach to the filled order")
	}
}

func TestOCOStraddleFirstFillWins(t *testing.T) {
	svc, fake := newTestEngine()
	defer svc.auto.CancelAll()

	go func() {
		time.Sleep(30 * time.Millisecond)
		// Первой исполняется бычья нога (тикет 1).
		fake.FillPending(1, 1.10106)
	}()
	res, err := svc.OCOStraddle(context.Background(), OCOParams{
		Symbol:      "EURUSD",
		OffsetPips:  10,
		StopPips:    20,
		TargetPips:  40,
		Lots:        0.1,
		WaitTimeout: 500 * time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != models.StatusFilled {
		t.Fatalf("status = %q, meta=%v", res.Status, res.Meta)
	}
	if res.FilledSide != models.SideBuy {
		t.Errorf("filled side = %q", res.FilledSide)
	}

	// Проигравшая нога снята: в терминале осталась одна позиция.
	if _, ok := fake.Order(res.Tickets["sell"]); ok {
		t.Errorf("losing leg must be cancelled")
	}
	if _, ok := fake.Order(res.Tickets["buy"]); !ok {
		t.Errorf("winning leg must stay")
	}

	// Ноги стояли по разные стороны от рынка.
	buy, sell := fake.Sent[0], fake.Sent[1]
	if buy.Price <= 1.10012 || sell.Price >= 1.10000 {
		t.Errorf("straddle prices wrong: buy=%v sell=%v", buy.Price, sell.Price)
	}
}

func TestOCOStraddleTimeoutCancelsBoth(t *testing.T) {
	svc, fake := newTestEngine()

	res, err := svc.OCOStraddle(context.Background(), OCOParams{
		Symbol:      "EURUSD",
		OffsetPips:  10,
		StopPips:    20,
		Lots:        0.1,
		WaitTimeout: 50 * time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != models.StatusCancelledByTimeout {
		t.Fatalf("status = %q", res.Status)
	}
	for side, ticket := range res.Tickets {
		if _, ok := fake.Order(ticket); ok {
			t.Errorf("%s leg must be cancelled on timeout", side)
		}
	}
}

func TestGridDCAVWAPAndCommonLevels(t *testing.T) {
	svc, fake := newTestEngine()
	fake.SetQuote("EURUSD", 1.10100, 1.10112)

	go func() {
		time.Sleep(20 * time.Millisecond)
		fake.FillPending(1, 1.10000)
		time.Sleep(30 * time.Millisecond)
		fake.FillPending(2, 1.09900)
	}()
	res, err := svc.GridDCACommonSL(context.Background(), GridParams{
		Symbol:        "EURUSD",
		Side:          models.SideBuy,
		Levels:        3,
		StepPips:      10,
		TotalLots:     0.3,
		SLPips:        20,
		TPPips:        15,
		ManageTimeout: 200 * time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != models.StatusOK {
		t.Fatalf("status = %q, meta=%v", res.Status, res.Meta)
	}

	vwap, _ := res.Meta["vwap"].(float64)
	anchor, _ := res.Meta["anchor"].(float64)
	if math.Abs(vwap-1.0995) > 1e-6 {
		t.Errorf("vwap = %v, want 1.0995", vwap)
	}
	if math.Abs(anchor-1.0990) > 1e-6 {
		t.Errorf("anchor = %v, want 1.0990", anchor)
	}

	// Общие уровни на обеих набранных позициях одинаковые.
	o1, ok1 := fake.Order(1)
	o2, ok2 := fake.Order(2)
	if !ok1 || !ok2 {
		t.Fatal("filled levels must stay open")
	}
	if o1.StopLoss != o2.StopLoss || o1.TakeProfit != o2.TakeProfit {
		t.Errorf("levels differ: %v/%v vs %v/%v", o1.StopLoss, o1.TakeProfit, o2.StopLoss, o2.TakeProfit)
	}
	if math.Abs(o1.StopLoss-(1.0990-0.0020)) > 2e-5 {
		t.Errorf("common sl = %v, want about 1.0970", o1.StopLoss)
	}
	if math.Abs(o1.TakeProfit-(1.0995+0.0015)) > 2e-5 {
		t.Errorf("common tp = %v, want about 1.1010", o1.TakeProfit)
	}

	// Незаполненный уровень снят по таймауту управления.
	if _, ok := fake.Order(3); ok {
		t.Errorf("unfilled level must be cancelled")
	}
}

func TestGridDCAArmAfter(t *testing.T) {
	svc, fake := newTestEngine()
	fake.SetQuote("EURUSD", 1.10100, 1.10112)

	go func() {
		time.Sleep(20 * time.Millisecond)
		fake.FillPending(1, 1.10000)
		// Пауза заметно больше поллинга: общий стоп не должен появиться
		// на единственном филле.
		time.Sleep(60 * time.Millisecond)
		if o, _ := fake.Order(1); o.StopLoss != 0 {
			t.Errorf("common sl applied before arm threshold: %v", o.StopLoss)
		}
		fake.FillPending(2, 1.09900)
	}()
	res, err := svc.GridDCACommonSL(context.Background(), GridParams{
		Symbol:        "EURUSD",
		Side:          models.SideBuy,
		Levels:        2,
		StepPips:      10,
		TotalLots:     0.2,
		SLPips:        20,
		TPPips:        15,
		ArmAfter:      2,
		ManageTimeout: 250 * time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != models.StatusOK {
		t.Fatalf("status = %q, meta=%v", res.Status, res.Meta)
	}

	// После второго филла общие уровни встали на обе позиции.
	o1, _ := fake.Order(1)
	o2, _ := fake.Order(2)
	if o1.StopLoss == 0 || o1.StopLoss != o2.StopLoss {
		t.Errorf("common sl after arming: %v vs %v", o1.StopLoss, o2.StopLoss)
	}
}

func TestGridDCANoFill(t *testing.T) {
	svc, fake := newTestEngine()

	res, err := svc.GridDCACommonSL(context.Background(), GridParams{
		Symbol:        "EURUSD",
		Side:          models.SideBuy,
		Levels:        2,
		StepPips:      10,
		TotalLots:     0.2,
		SLPips:        20,
		ManageTimeout: 50 * time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != models.StatusTimeoutNoFill {
		t.Fatalf("status = %q", res.Status)
	}
	for _, ticket := range res.Tickets {
		if _, ok := fake.Order(ticket); ok {
			t.Errorf("all levels must be cancelled when nothing fills")
		}
	}
}

func TestKillSwitchReview(t *testing.T) {
	svc, _ := newTestEngine()
	ctx := context.Background()

	if _, err := svc.gw.Submit(ctx, models.OrderRequest{
		Symbol: "EURUSD", Side: models.SideBuy, Kind: models.OrderMarket, Lots: 0.5,
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.gw.Submit(ctx, models.OrderRequest{
		Symbol: "EURUSD", Side: models.SideSell, Kind: models.OrderLimit, Price: 1.2, Lots: 0.1,
	}); err != nil {
		t.Fatal(err)
	}

	res, err := svc.KillSwitchReview(ctx, models.OrderFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != models.StatusOK {
		t.Fatalf("status = %q, meta=%v", res.Status, res.Meta)
	}
	if res.Snapshot == nil || res.Snapshot.OpenOrdersCount != 0 {
		t.Errorf("terminal must be flat after kill switch: %+v", res.Snapshot)
	}

	closed, _ := res.Meta["closed"].([]int64)
	cancelled, _ := res.Meta["cancelled"].([]int64)
	if len(closed) != 1 || len(cancelled) != 1 {
		t.Errorf("closed=%v cancelled=%v", closed, cancelled)
	}
}
