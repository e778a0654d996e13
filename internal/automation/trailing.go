package automation

import (
	"context"
	"errors"
	"time"

	"trade_engine/internal/helper"
	"trade_engine/internal/models"
	"trade_engine/internal/modules/config"
	gatewayservice "trade_engine/internal/modules/gateway/service"
	marketservice "trade_engine/internal/modules/market/service"
	"trade_engine/pkg/logger"
)

// Service запускает трейлинг и брейк-ивен воркеры поверх гейтвея.
type Service struct {
	cfg    *config.Config
	gw     *gatewayservice.Gateway
	market *marketservice.Market
	reg    *Registry
}

func NewService(cfg *config.Config, gw *gatewayservice.Gateway, market *marketservice.Market, reg *Registry) *Service {
	return &Service{cfg: cfg, gw: gw, market: market, reg: reg}
}

func (s *Service) Cancel(id string) bool             { return s.reg.Cancel(id) }
func (s *Service) CancelAll()                        { s.reg.CancelAll() }
func (s *Service) Active() []models.SubscriptionInfo { return s.reg.Active() }

// StartTrailing вешает трейлинг-стоп на тикет. Стоп только
// подтягивается: дистанция distancePips от mid, перестановка не чаще
// чем на stepPips за раз.
func (s *Service) StartTrailing(ctx context.Context, ticket int64, distancePips, stepPips float64) (string, error) {
	view, err := s.gw.OrderByTicket(ctx, ticket)
	if err != nil {
		return "", err
	}
	if view == nil {
		return "", gatewayservice.ErrOrderGone
	}

	spec, err := s.market.Spec(ctx, view.Symbol)
	if err != nil {
		return "", err
	}

	id := s.reg.Start(models.WorkerTrailing, ticket, func(wctx context.Context) {
		s.trailLoop(wctx, ticket, view.Symbol, spec, distancePips, stepPips)
	})
	logger.Info("trailing started id=%s ticket=%d dist=%.1f step=%.1f", id, ticket, distancePips, stepPips)
	return id, nil
}

// StartTrailingWhenProfit — отложенный трейлинг: воркер сперва ждёт,
// пока цена уйдёт на activatePips в плюс от входа, и только потом
// начинает подтягивать стоп.
func (s *Service) StartTrailingWhenProfit(ctx context.Context, ticket int64, activatePips, distancePips, stepPips float64) (string, error) {
	view, err := s.gw.OrderByTicket(ctx, ticket)
	if err != nil {
		return "", err
	}
	if view == nil {
		return "", gatewayservice.ErrOrderGone
	}

	spec, err := s.market.Spec(ctx, view.Symbol)
	if err != nil {
		return "", err
	}

	id := s.reg.Start(models.WorkerTrailing, ticket, func(wctx context.Context) {
		if !s.waitProfit(wctx, ticket, view.Symbol, spec, activatePips) {
			return
		}
		logger.Info("trailing activated ticket=%d after +%.1f pips", ticket, activatePips)
		s.trailLoop(wctx, ticket, view.Symbol, spec, distancePips, stepPips)
	})
	logger.Info("delayed trailing started id=%s ticket=%d activate=%.1f dist=%.1f", id, ticket, activatePips, distancePips)
	return id, nil
}

// waitProfit возвращает false, когда ордер закрылся или воркер отменён
// до активации.
func (s *Service) waitProfit(ctx context.Context, ticket int64, symbol string, spec models.SymbolSpec, activatePips float64) bool {
	pip := marketservice.PipSize(spec)

	ticker := time.NewTicker(s.cfg.TrailingPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}

		view, err := s.gw.OrderByTicket(ctx, ticket)
		if err != nil {
			continue
		}
		if view == nil {
			return false
		}
		if view.IsPending || view.OpenPrice <= 0 {
			continue
		}

		q, err := s.gw.Quote(ctx, symbol)
		if err != nil {
			continue
		}
		if view.Side == models.SideBuy {
			if q.Bid >= view.OpenPrice+activatePips*pip {
				return true
			}
		} else {
			if q.Ask <= view.OpenPrice-activatePips*pip {
				return true
			}
		}
	}
}

func (s *Service) trailLoop(ctx context.Context, ticket int64, symbol string, spec models.SymbolSpec, distPips, stepPips float64) {
	pip := marketservice.PipSize(spec)
	dist := distPips * pip
	step := stepPips * pip

	ticker := time.NewTicker(s.cfg.TrailingPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		view, err := s.gw.OrderByTicket(ctx, ticket)
		if err != nil {
			logger.Warn("trailing: read failed ticket=%d: %v", ticket, err)
			continue
		}
		if view == nil {
			// Ордер закрыт, воркер больше не нужен.
			logger.Info("trailing done: order gone ticket=%d", ticket)
			return
		}
		if view.IsPending {
			continue
		}

		q, err := s.gw.Quote(ctx, symbol)
		if err != nil {
			continue
		}

		var desired float64
		if view.Side == models.SideBuy {
			desired = helper.RoundDownToTick(q.Mid()-dist, spec.TickSize)
			if !improvesLong(desired, view.StopLoss, step) {
				continue
			}
		} else {
			desired = helper.RoundUpToTick(q.Mid()+dist, spec.TickSize)
			if !improvesShort(desired, view.StopLoss, step) {
				continue
			}
		}

		if err := s.gw.Modify(ctx, ticket, desired, 0); err != nil {
			// Отказ терминала финален: желаемый стоп не перестанет
			// "улучшаться", и повторы превратятся в шторм модификаций.
			if errors.Is(err, gatewayservice.ErrModifyRejected) {
				logger.Warn("trailing stopped: modify rejected ticket=%d sl=%.5f: %v", ticket, desired, err)
				return
			}
			logger.Warn("trailing: modify failed ticket=%d sl=%.5f: %v", ticket, desired, err)
		}
	}
}

// Стоп двигается только в сторону позиции и только на полный шаг.
// Гистерезис по шагу гасит дребезг котировок.

func improvesLong(desired, current, step float64) bool {
	if desired <= 0 {
		return false
	}
	if current <= 0 {
		return true
	}
	return desired >= current+step
}

func improvesShort(desired, current, step float64) bool {
	if desired <= 0 {
		return false
	}
	if current <= 0 {
		return true
	}
	return desired <= current-step
}
