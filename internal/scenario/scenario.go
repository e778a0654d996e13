package scenario

import (
	"context"

	"trade_engine/internal/automation"
	"trade_engine/internal/guards"
	"trade_engine/internal/models"
	"trade_engine/internal/modules/config"
	gatewayservice "trade_engine/internal/modules/gateway/service"
	journalservice "trade_engine/internal/modules/journal/service"
	marketservice "trade_engine/internal/modules/market/service"
	"trade_engine/internal/notify"

	pkgerrors "github.com/pkg/errors"
)

// Service — раннеры торговых сценариев. Все публичные методы
// возвращают единый models.Result и не кидают паник; ошибки гардов
// приходят как статусы, а не как error.
type Service struct {
	cfg      *config.Config
	gw       *gatewayservice.Gateway
	market   *marketservice.Market
	auto     *automation.Service
	pipeline *guards.Pipeline
	notify   notify.Notifier
	journal  *journalservice.Journal
}

func NewService(
	cfg *config.Config,
	gw *gatewayservice.Gateway,
	market *marketservice.Market,
	auto *automation.Service,
	pipeline *guards.Pipeline,
	notifier notify.Notifier,
	journal *journalservice.Journal,
) *Service {
	return &Service{
		cfg:      cfg,
		gw:       gw,
		market:   market,
		auto:     auto,
		pipeline: pipeline,
		notify:   notifier,
		journal:  journal,
	}
}

// EntryParams — общий вход сценариев. Lots == 0 означает сайзинг по
// риску (RiskPct + StopPips).
type EntryParams struct {
	Symbol  string
	Side    models.Side
	Lots    float64
	RiskPct float64

	StopPips   float64
	TargetPips float64

	TrailingPips     float64
	TrailingStepPips float64
	BreakevenTrigger float64
	BreakevenPlus    float64

	Magic   int
	Comment string
}

func (p *EntryParams) riskPct(cfg *config.Config) float64 {
	if p.RiskPct > 0 {
		return p.RiskPct
	}
	return cfg.DefaultRiskPct
}

// resolveLots считает объём: явный лот нормализуется, иначе сайзим по
// риску. Нулевой итог — ошибка валидации, в рынок не идём.
func (s *Service) resolveLots(ctx context.Context, p EntryParams) (float64, error) {
	var lots float64
	var err error
	if p.Lots > 0 {
		lots, err = s.market.NormalizeLot(ctx, p.Symbol, p.Lots)
	} else {
		var acc models.AccountInfo
		acc, err = s.gw.AccountSummary(ctx)
		if err == nil {
			lots, err = s.market.SizeByRisk(ctx, p.Symbol, acc.Equity, p.riskPct(s.cfg), p.StopPips)
		}
	}
	if err != nil {
		return 0, pkgerrors.Wrap(err, "resolve lots")
	}
	if lots <= 0 {
		return 0, &gatewayservice.OpError{
			Op:   "sizing",
			Kind: gatewayservice.ErrValidation,
			Err:  pkgerrors.Errorf("cannot size position: lots=%.2f stop=%.1f", p.Lots, p.StopPips),
		}
	}
	return lots, nil
}

// bracket считает SL/TP в абсолютных ценах от точки входа и
// нормализует их к тикам в безопасную сторону.
func (s *Service) bracket(ctx context.Context, symbol string, side models.Side, entry, stopPips, targetPips float64) (sl, tp float64, err error) {
	spec, err := s.market.Spec(ctx, symbol)
	if err != nil {
		return 0, 0, err
	}
	pip := marketservice.PipSize(spec)

	if side == models.SideBuy {
		if stopPips > 0 {
			sl = entry - stopPips*pip
		}
		if targetPips > 0 {
			tp = entry + targetPips*pip
		}
	} else {
		if stopPips > 0 {
			sl = entry + stopPips*pip
		}
		if targetPips > 0 {
			tp = entry - targetPips*pip
		}
	}
	if sl > 0 {
		sl, err = s.market.NormalizePrice(ctx, symbol, sl)
		if err != nil {
			return 0, 0, err
		}
	}
	if tp > 0 {
		tp, err = s.market.NormalizePrice(ctx, symbol, tp)
		if err != nil {
			return 0, 0, err
		}
	}
	return sl, tp, nil
}

// attachWorkers вешает трейлинг/брейк-ивен по параметрам входа.
// Провал подписки не считается провалом сценария: ордер уже в рынке.
func (s *Service) attachWorkers(ctx context.Context, ticket int64, p EntryParams, res *models.Result) {
	if p.TrailingPips > 0 {
		step := p.TrailingStepPips
		if step <= 0 {
			step = 1
		}
		if id, err := s.auto.StartTrailing(ctx, ticket, p.TrailingPips, step); err == nil {
			s.addSubscription(res, "trailing", id)
		} else {
			res.WithMeta("trailing_error", err.Error())
		}
	}
	if p.BreakevenTrigger > 0 {
		if id, err := s.auto.StartBreakeven(ctx, ticket, p.BreakevenTrigger, p.BreakevenPlus); err == nil {
			s.addSubscription(res, "breakeven", id)
		} else {
			res.WithMeta("breakeven_error", err.Error())
		}
	}
}

func (s *Service) addSubscription(res *models.Result, name, id string) {
	if res.Subscriptions == nil {
		res.Subscriptions = map[string]string{}
	}
	res.Subscriptions[name] = id
}

// deviation: значение из deviation-гарда, иначе дефолт конфига.
func (s *Service) deviation(cp *guards.Checkpoint) float64 {
	if cp != nil && cp.Deviation > 0 {
		return cp.Deviation
	}
	return s.cfg.DefaultDeviationPips
}

// finish — единая точка выхода: журнал + результат.
func (s *Service) finish(ctx context.Context, name, symbol string, res *models.Result) *models.Result {
	s.journal.RecordResult(ctx, name, symbol, res)
	return res
}
