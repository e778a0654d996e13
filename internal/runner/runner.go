package runner

import (
	"context"
	"errors"
	"strings"
	"time"

	"trade_engine/internal/models"
	"trade_engine/internal/modules/config"
	gatewayservice "trade_engine/internal/modules/gateway/service"
	marketservice "trade_engine/internal/modules/market/service"
	"trade_engine/internal/scenario"
	"trade_engine/pkg/logger"

	pkgerrors "github.com/pkg/errors"
)

// Runner исполняет autorun-записи конфига: резолвит риск-пресет,
// собирает из записи параметры сценария и запускает его.
type Runner struct {
	cfg    *config.Config
	gw     *gatewayservice.Gateway
	market *marketservice.Market
	sc     *scenario.Service
}

func New(cfg *config.Config, gw *gatewayservice.Gateway, market *marketservice.Market, sc *scenario.Service) *Runner {
	return &Runner{cfg: cfg, gw: gw, market: market, sc: sc}
}

// RunAll последовательно прогоняет все записи. Провал одной записи не
// останавливает остальные; наружу уходит первая ошибка.
func (r *Runner) RunAll(ctx context.Context) error {
	var firstErr error
	for _, e := range r.cfg.Autorun {
		res, err := r.runEntry(ctx, e)
		if err != nil {
			logger.Error("autorun %s %s: %v", e.Scenario, e.Symbol, err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		logger.Info("autorun %s %s: status=%s ticket=%d", e.Scenario, e.Symbol, res.Status, res.Ticket)
	}
	return firstErr
}

// runEntry запускает запись. Сетевой сбой лечится одним переподключением
// моста с повтором; отказы терминала и валидации не повторяются.
func (r *Runner) runEntry(ctx context.Context, e config.AutorunEntry) (*models.Result, error) {
	res, err := r.dispatch(ctx, e)
	if err == nil || !errors.Is(err, gatewayservice.ErrConnectivity) {
		return res, err
	}

	logger.Warn("autorun %s %s: connectivity lost, reconnecting: %v", e.Scenario, e.Symbol, err)
	if rerr := r.gw.Reconnect(ctx); rerr != nil {
		return nil, pkgerrors.Wrap(rerr, "reconnect")
	}
	return r.dispatch(ctx, e)
}

func (r *Runner) dispatch(ctx context.Context, e config.AutorunEntry) (*models.Result, error) {
	var preset models.RiskPreset
	if e.Preset != "" {
		p, ok := models.PresetByName(e.Preset)
		if !ok {
			return nil, pkgerrors.Errorf("unknown preset %q", e.Preset)
		}
		preset = p
	}
	side := models.Side(strings.ToLower(e.Side))
	timeout := time.Duration(e.WaitTimeoutMin) * time.Minute

	switch strings.ToLower(e.Scenario) {
	case "market_one_shot":
		return r.sc.MarketOneShot(ctx, entryParams(e, side, preset))
	case "breakout":
		return r.breakout(ctx, e, side, preset, timeout)
	case "oco_straddle":
		return r.sc.OCOStraddle(ctx, scenario.OCOParams{
			Symbol:           e.Symbol,
			OffsetPips:       e.OffsetPips,
			StopPips:         preset.StopPips,
			TargetPips:       preset.TargetPips,
			Lots:             e.Lots,
			RiskPct:          preset.RiskPercent,
			WaitTimeout:      timeout,
			TrailingPips:     preset.TrailingPips,
			BreakevenTrigger: preset.BreakevenTriggerPips,
			BreakevenPlus:    preset.BreakevenPlusPips,
			Magic:            e.Magic,
			Comment:          e.Comment,
		})
	case "grid_dca":
		return r.sc.GridDCACommonSL(ctx, scenario.GridParams{
			Symbol:        e.Symbol,
			Side:          side,
			Levels:        e.Levels,
			StepPips:      e.StepPips,
			TotalLots:     e.Lots,
			RiskPct:       preset.RiskPercent,
			SLPips:        preset.StopPips,
			TPPips:        preset.TargetPips,
			ManageTimeout: timeout,
			Magic:         e.Magic,
			Comment:       e.Comment,
		})
	}
	return nil, pkgerrors.Errorf("unknown scenario %q", e.Scenario)
}

func entryParams(e config.AutorunEntry, side models.Side, preset models.RiskPreset) scenario.EntryParams {
	return scenario.EntryParams{
		Symbol:           e.Symbol,
		Side:             side,
		Lots:             e.Lots,
		RiskPct:          preset.RiskPercent,
		StopPips:         preset.StopPips,
		TargetPips:       preset.TargetPips,
		TrailingPips:     preset.TrailingPips,
		BreakevenTrigger: preset.BreakevenTriggerPips,
		BreakevenPlus:    preset.BreakevenPlusPips,
		Magic:            e.Magic,
		Comment:          e.Comment,
	}
}

// breakout ждёт пробой: цель отмеряется оффсетом от текущей середины,
// вход по рынку после касания. Таймаут без касания сделкой не считается.
func (r *Runner) breakout(ctx context.Context, e config.AutorunEntry, side models.Side, preset models.RiskPreset, timeout time.Duration) (*models.Result, error) {
	if timeout <= 0 {
		timeout = r.cfg.WaitFillTimeout
	}

	mid, err := r.market.MidPrice(ctx, e.Symbol)
	if err != nil {
		return nil, err
	}
	offset, err := r.market.PipsToPrice(ctx, e.Symbol, e.OffsetPips)
	if err != nil {
		return nil, err
	}

	target := mid + offset
	touched := func(q models.Quote) bool { return q.Ask >= target }
	if side == models.SideSell {
		target = mid - offset
		touched = func(q models.Quote) bool { return q.Bid <= target }
	}

	q, err := r.market.WaitPrice(ctx, e.Symbol, touched, timeout)
	if err != nil {
		if errors.Is(err, gatewayservice.ErrAwaitTimeout) {
			res := &models.Result{Status: models.StatusTimeoutNoFill}
			res.WithMeta("target", target)
			return res, nil
		}
		return nil, err
	}

	logger.Info("breakout %s %s: target %.5f touched at %.5f/%.5f", e.Symbol, side, target, q.Bid, q.Ask)
	return r.sc.MarketOneShot(ctx, entryParams(e, side, preset))
}
