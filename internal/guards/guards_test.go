package guards

import (
	"context"
	"errors"
	"testing"
	"time"

	"trade_engine/internal/models"
	"trade_engine/internal/modules/config"
	gatewayservice "trade_engine/internal/modules/gateway/service"
	marketservice "trade_engine/internal/modules/market/service"
	"trade_engine/internal/modules/terminal/terminaltest"
	"trade_engine/pkg/logger"
)

func init() {
	_ = logger.Init()
}

func newTestStack() (*gatewayservice.Gateway, *marketservice.Market, *terminaltest.Fake) {
	fake := terminaltest.NewFake()
	fake.Specs["EURUSD"] = models.SymbolSpec{
		Symbol: "EURUSD", TickSize: 0.00001, Digits: 5,
		LotStep: 0.01, LotMin: 0.01, LotMax: 100,
	}
	fake.SetQuote("EURUSD", 1.10000, 1.10012)
	fake.TickValues["EURUSD"] = 1.0
	fake.Account = models.AccountInfo{Balance: 10000, Equity: 10000}

	cfg := &config.Config{}
	cfg.FillPollInterval = 5 * time.Millisecond
	gw := gatewayservice.NewGateway(cfg, fake)
	return gw, marketservice.NewMarket(cfg, gw), fake
}

type stubGuard struct {
	name     string
	decision models.GuardDecision
	calls    int
}

func (s *stubGuard) Name() string { return s.name }
func (s *stubGuard) Check(context.Context, *Checkpoint) models.GuardDecision {
	s.calls++
	return s.decision
}

func TestPipelineShortCircuit(t *testing.T) {
	first := &stubGuard{name: "first", decision: models.Allow(map[string]any{"seen": true})}
	blocker := &stubGuard{name: "blocker", decision: models.Block("skipped_by_session", "closed", nil)}
	after := &stubGuard{name: "after", decision: models.Allow(nil)}

	p := NewPipeline(first, blocker, after)
	ran := false
	res, err := p.Run(context.Background(), &Checkpoint{Symbol: "EURUSD"}, func(context.Context, *Checkpoint) (*models.Result, error) {
		ran = true
		return &models.Result{Status: models.StatusOK}, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if ran {
		t.Errorf("runner must not execute after a block")
	}
	if after.calls != 0 {
		t.Errorf("guards after the blocker must not run")
	}
	if res.Status != "skipped_by_session" {
		t.Errorf("status = %q", res.Status)
	}
	if res.Meta["blocked_by"] != "blocker" || res.Meta["reason"] != "closed" {
		t.Errorf("block attribution missing: %v", res.Meta)
	}
	if _, ok := res.Meta["first"]; !ok {
		t.Errorf("passed guard meta must be kept: %v", res.Meta)
	}
}

func TestPipelineMergesMetaOnSuccess(t *testing.T) {
	g := &stubGuard{name: "spread", decision: models.Allow(map[string]any{"spread_pips": 1.2})}
	p := NewPipeline(g)

	res, err := p.Run(context.Background(), &Checkpoint{}, func(context.Context, *Checkpoint) (*models.Result, error) {
		return &models.Result{Status: models.StatusOK}, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := res.Meta["spread"]; !ok {
		t.Errorf("guard meta missing on success: %v", res.Meta)
	}
}

func TestSpreadGuard(t *testing.T) {
	_, market, fake := newTestStack()
	g := NewSpreadGuard(market, 3.0)
	cp := &Checkpoint{Symbol: "EURUSD"}

	if d := g.Check(context.Background(), cp); !d.Allowed {
		t.Fatalf("1.2 pips under limit 3.0 must pass: %+v", d)
	}

	fake.SetQuote("EURUSD", 1.10000, 1.10040) // 4 пипса
	d := g.Check(context.Background(), cp)
	if d.Allowed {
		t.Fatalf("4 pips over limit 3.0 must block")
	}
	if d.Status != models.StatusSkippedSpread {
		t.Errorf("status = %q", d.Status)
	}

	// Нулевой лимит выключает гард.
	off := NewSpreadGuard(market, 0)
	if d := off.Check(context.Background(), cp); !d.Allowed {
		t.Errorf("disabled guard must pass")
	}
}

func TestSessionGuardOvernightWindow(t *testing.T) {
	g, err := NewSessionGuard(nil, SessionConfig{
		Windows: []SessionWindow{{From: "22:00", To: "03:00"}},
		TZ:      "UTC",
	})
	if err != nil {
		t.Fatal(err)
	}

	at := func(hh, mm int) time.Time {
		return time.Date(2024, 3, 12, hh, mm, 0, 0, time.UTC)
	}
	cases := []struct {
		t    time.Time
		pass bool
	}{
		{at(23, 30), true},
		{at(1, 0), true},
		{at(22, 0), true},
		{at(3, 0), false},
		{at(12, 0), false},
	}
	for _, c := range cases {
		g.nowFn = func() time.Time { return c.t }
		d := g.Check(context.Background(), &Checkpoint{Symbol: "EURUSD"})
		if d.Allowed != c.pass {
			t.Errorf("at %s: allowed=%v, want %v", c.t.Format("15:04"), d.Allowed, c.pass)
		}
		if !c.pass && d.Status != models.StatusSkippedSession {
			t.Errorf("status = %q", d.Status)
		}
	}
}

func TestSessionGuardWeekdaysAndBlackout(t *testing.T) {
	g, err := NewSessionGuard(nil, SessionConfig{
		Weekdays: []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
		TZ:       "UTC",
	})
	if err != nil {
		t.Fatal(err)
	}
	g.nowFn = func() time.Time {
		return time.Date(2024, 3, 16, 12, 0, 0, 0, time.UTC) // суббота
	}
	if d := g.Check(context.Background(), &Checkpoint{}); d.Allowed {
		t.Errorf("saturday must be blocked")
	}

	blackout, err := NewSessionGuard(nil, SessionConfig{
		Windows:  []SessionWindow{{From: "12:00", To: "13:00"}},
		TZ:       "UTC",
		Blackout: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	blackout.nowFn = func() time.Time {
		return time.Date(2024, 3, 12, 12, 30, 0, 0, time.UTC)
	}
	if d := blackout.Check(context.Background(), &Checkpoint{}); d.Allowed {
		t.Errorf("inside blackout window must block")
	}
	blackout.nowFn = func() time.Time {
		return time.Date(2024, 3, 12, 14, 0, 0, 0, time.UTC)
	}
	if d := blackout.Check(context.Background(), &Checkpoint{}); !d.Allowed {
		t.Errorf("outside blackout window must pass")
	}
}

func TestSessionGuardBadConfig(t *testing.T) {
	if _, err := NewSessionGuard(nil, SessionConfig{TZ: "Atlantis/Nowhere"}); err == nil {
		t.Errorf("unknown tz must fail construction")
	}
	if _, err := NewSessionGuard(nil, SessionConfig{
		Windows: []SessionWindow{{From: "25:00", To: "03:00"}},
	}); err == nil {
		t.Errorf("bad clock must fail construction")
	}
}

func TestRolloverGuard(t *testing.T) {
	gw, _, _ := newTestStack()
	g, err := NewRolloverGuard(gw, "", 5*time.Minute)
	if err != nil {
		t.Fatal(err)
	}

	g.nowFn = func() time.Time { return time.Date(2024, 3, 12, 23, 58, 0, 0, time.UTC) }
	// Фейк отдаёт серверное время 12:00, здесь нужен локальный ход часов.
	g.gw = nil
	if d := g.Check(context.Background(), &Checkpoint{}); d.Allowed {
		t.Errorf("23:58 with 5m buffer must block")
	}

	g.nowFn = func() time.Time { return time.Date(2024, 3, 12, 0, 3, 0, 0, time.UTC) }
	if d := g.Check(context.Background(), &Checkpoint{}); d.Allowed {
		t.Errorf("00:03 with 5m buffer must block")
	}

	g.nowFn = func() time.Time { return time.Date(2024, 3, 12, 12, 0, 0, 0, time.UTC) }
	if d := g.Check(context.Background(), &Checkpoint{}); !d.Allowed {
		t.Errorf("midday must pass")
	}
}

func TestRolloverGuardCustomTime(t *testing.T) {
	// Ролловер брокера в 23:00: окно вокруг него, полночь свободна.
	g, err := NewRolloverGuard(nil, "23:00", 30*time.Minute)
	if err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		hh, mm int
		pass   bool
	}{
		{22, 29, true},
		{22, 31, false},
		{23, 0, false},
		{23, 29, false},
		{23, 31, true},
		{0, 0, true},
		{12, 0, true},
	}
	for _, c := range cases {
		g.nowFn = func() time.Time { return time.Date(2024, 3, 12, c.hh, c.mm, 0, 0, time.UTC) }
		d := g.Check(context.Background(), &Checkpoint{})
		if d.Allowed != c.pass {
			t.Errorf("at %02d:%02d: allowed=%v, want %v", c.hh, c.mm, d.Allowed, c.pass)
		}
	}

	if _, err := NewRolloverGuard(nil, "25:99", time.Minute); err == nil {
		t.Errorf("bad rollover clock must fail construction")
	}
}

func TestDeviationGuardSpreadMode(t *testing.T) {
	_, market, _ := newTestStack()
	g := NewDeviationGuard(market, DeviationConfig{
		Mode:       DeviationSpread,
		SpreadMult: 1.5,
		FixedPips:  2,
		MinPips:    1,
		MaxPips:    6,
	})

	cp := &Checkpoint{Symbol: "EURUSD"}
	d := g.Check(context.Background(), cp)
	if !d.Allowed {
		t.Fatalf("deviation guard never blocks")
	}
	// Спред 1.2 пипса * 1.5 = 1.8, округление к десятой.
	if cp.Deviation != 1.8 {
		t.Errorf("deviation = %v, want 1.8", cp.Deviation)
	}
}

func TestDeviationGuardClampAndFallback(t *testing.T) {
	_, market, fake := newTestStack()
	g := NewDeviationGuard(market, DeviationConfig{
		Mode:       DeviationSpread,
		SpreadMult: 1.5,
		FixedPips:  2,
		MinPips:    1,
		MaxPips:    3,
	})

	fake.SetQuote("EURUSD", 1.10000, 1.10100) // спред 10 пипсов
	cp := &Checkpoint{Symbol: "EURUSD"}
	g.Check(context.Background(), cp)
	if cp.Deviation != 3 {
		t.Errorf("clamp to max: %v, want 3", cp.Deviation)
	}

	// Котировки нет: деградация к фиксированному допуску.
	fake.Fail["quote"] = errors.New("no feed")
	cp = &Checkpoint{Symbol: "EURUSD"}
	g.Check(context.Background(), cp)
	if cp.Deviation != 2 {
		t.Errorf("fallback to fixed: %v, want 2", cp.Deviation)
	}
}

func TestEquityGuardLayers(t *testing.T) {
	gw, _, fake := newTestStack()
	ctx := context.Background()

	g := NewEquityGuard(gw, EquityLimits{
		MinEquity:        1000,
		DailyDrawdownPct: 5,
		MaxOpenPositions: 1,
		RiskPerTradeCap:  2,
	})

	if d := g.Check(ctx, &Checkpoint{RiskPct: 1}); !d.Allowed {
		t.Fatalf("healthy account must pass: %+v", d)
	}

	// Порядок слоёв: min_equity раньше просадки.
	fake.Account.Equity = 500
	d := g.Check(ctx, &Checkpoint{RiskPct: 1})
	if d.Status != models.StatusBlockedMinEquity {
		t.Errorf("status = %q, want min equity", d.Status)
	}

	// Просадка от утреннего эквити: 10000 -> 9000 это 10% > 5%.
	fake.Account.Equity = 9000
	d = g.Check(ctx, &Checkpoint{RiskPct: 1})
	if d.Status != models.StatusBlockedDailyDrawdown {
		t.Errorf("status = %q, want daily drawdown", d.Status)
	}

	fake.Account.Equity = 10000
	if _, err := gw.Submit(ctx, models.OrderRequest{
		Symbol: "EURUSD", Side: models.SideBuy, Kind: models.OrderMarket, Lots: 0.1,
	}); err != nil {
		t.Fatal(err)
	}
	d = g.Check(ctx, &Checkpoint{RiskPct: 1})
	if d.Status != models.StatusBlockedMaxOpenPositions {
		t.Errorf("status = %q, want max open positions", d.Status)
	}
}

func TestEquityGuardPerSymbolLimit(t *testing.T) {
	gw, _, fake := newTestStack()
	ctx := context.Background()
	fake.Specs["GBPUSD"] = models.SymbolSpec{
		Symbol: "GBPUSD", TickSize: 0.00001, Digits: 5,
		LotStep: 0.01, LotMin: 0.01, LotMax: 100,
	}
	fake.SetQuote("GBPUSD", 1.27000, 1.27012)

	for i := 0; i < 2; i++ {
		if _, err := gw.Submit(ctx, models.OrderRequest{
			Symbol: "EURUSD", Side: models.SideBuy, Kind: models.OrderMarket, Lots: 0.1,
		}); err != nil {
			t.Fatal(err)
		}
	}

	g := NewEquityGuard(gw, EquityLimits{MaxPositionsPerSymbol: 2})

	d := g.Check(ctx, &Checkpoint{Symbol: "EURUSD"})
	if d.Allowed || d.Status != models.StatusBlockedMaxOpenPositions {
		t.Errorf("two EURUSD positions at limit 2 must block: %+v", d)
	}
	// Лимит посимвольный: другой инструмент не задет.
	if d := g.Check(ctx, &Checkpoint{Symbol: "GBPUSD"}); !d.Allowed {
		t.Errorf("per-symbol limit must not block other symbols: %+v", d)
	}
}

func TestEquityGuardRiskCapAndSkips(t *testing.T) {
	gw, _, fake := newTestStack()
	ctx := context.Background()

	g := NewEquityGuard(gw, EquityLimits{RiskPerTradeCap: 2})
	d := g.Check(ctx, &Checkpoint{RiskPct: 5})
	if d.Status != models.StatusBlockedRiskPerTradeCap {
		t.Errorf("status = %q, want risk cap", d.Status)
	}
	// Фиксированный лот (RiskPct == 0): cap-слой пропускается.
	if d := g.Check(ctx, &Checkpoint{}); !d.Allowed {
		t.Errorf("cap layer must skip without declared risk")
	}

	// Данных по счёту нет: эквити-слои пропускаются, а не блокируют.
	fake.Fail["account_summary"] = errors.New("terminal busy")
	strict := NewEquityGuard(gw, EquityLimits{MinEquity: 1000, DailyDrawdownPct: 5})
	if d := strict.Check(ctx, &Checkpoint{RiskPct: 1}); !d.Allowed {
		t.Errorf("missing account data must skip, got %+v", d)
	}
}
