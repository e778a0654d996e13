package automation

import (
	"context"
	"errors"
	"time"

	"trade_engine/internal/helper"
	"trade_engine/internal/models"
	gatewayservice "trade_engine/internal/modules/gateway/service"
	marketservice "trade_engine/internal/modules/market/service"
	"trade_engine/pkg/logger"
)

// StartBreakeven вешает одноразовый перенос стопа в безубыток: когда
// цена уходит на triggerPips в плюс, стоп встаёт на вход плюс plusPips
// и воркер завершается.
func (s *Service) StartBreakeven(ctx context.Context, ticket int64, triggerPips, plusPips float64) (string, error) {
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

	id := s.reg.Start(models.WorkerBreakeven, ticket, func(wctx context.Context) {
		s.breakevenLoop(wctx, ticket, view.Symbol, spec, triggerPips, plusPips)
	})
	logger.Info("breakeven started id=%s ticket=%d trigger=%.1f plus=%.1f", id, ticket, triggerPips, plusPips)
	return id, nil
}

func (s *Service) breakevenLoop(ctx context.Context, ticket int64, symbol string, spec models.SymbolSpec, triggerPips, plusPips float64) {
	pip := marketservice.PipSize(spec)

	ticker := time.NewTicker(s.cfg.BreakevenPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		view, err := s.gw.OrderByTicket(ctx, ticket)
		if err != nil {
			logger.Warn("breakeven: read failed ticket=%d: %v", ticket, err)
			continue
		}
		if view == nil {
			logger.Info("breakeven done: order gone ticket=%d", ticket)
			return
		}
		// Отложка ещё не исполнилась, цена входа не определена.
		if view.IsPending || view.OpenPrice <= 0 {
			continue
		}

		q, err := s.gw.Quote(ctx, symbol)
		if err != nil {
			continue
		}

		var target float64
		var triggered bool
		if view.Side == models.SideBuy {
			triggered = q.Bid >= view.OpenPrice+triggerPips*pip
			target = helper.RoundDownToTick(view.OpenPrice+plusPips*pip, spec.TickSize)
			// Стоп уже не хуже безубытка, делать нечего.
			if view.StopLoss > 0 && target <= view.StopLoss {
				return
			}
		} else {
			triggered = q.Ask <= view.OpenPrice-triggerPips*pip
			target = helper.RoundUpToTick(view.OpenPrice-plusPips*pip, spec.TickSize)
			if view.StopLoss > 0 && target >= view.StopLoss {
				return
			}
		}
		if !triggered {
			continue
		}

		if err := s.gw.Modify(ctx, ticket, target, 0); err != nil {
			if errors.Is(err, gatewayservice.ErrModifyRejected) {
				logger.Warn("breakeven stopped: modify rejected ticket=%d sl=%.5f: %v", ticket, target, err)
				return
			}
			// Сетевой сбой: попробуем на следующем тике.
			logger.Warn("breakeven: modify failed ticket=%d sl=%.5f: %v", ticket, target, err)
			continue
		}
		logger.Info("breakeven applied ticket=%d sl=%.5f", ticket, target)
		return
	}
}
