package scenario

import (
	"context"

	"trade_engine/internal/models"
	"trade_engine/pkg/logger"
)

// KillSwitchReview — аварийная ликвидация: стоп всех воркеров,
// закрытие рыночных позиций, снятие отложек и пост-фактум снимок
// счёта. Гарды тут не спрашиваются: выход из рынка нельзя блокировать.
func (s *Service) KillSwitchReview(ctx context.Context, filter models.OrderFilter) (*models.Result, error) {
	s.auto.CancelAll()

	res := &models.Result{Status: models.StatusOK}

	closed, err := s.gw.CloseAll(ctx, filter)
	if err != nil {
		logger.Error("kill switch: close all incomplete: %v", err)
		res.Status = models.StatusOKWithWarnings
		res.WithMeta("close_error", err.Error())
	}
	cancelled, err := s.gw.CancelPendings(ctx, filter)
	if err != nil {
		logger.Error("kill switch: cancel pendings incomplete: %v", err)
		res.Status = models.StatusOKWithWarnings
		res.WithMeta("cancel_error", err.Error())
	}
	res.WithMeta("closed", closed).WithMeta("cancelled", cancelled)

	snap, err := s.market.DiagSnapshot(ctx, nil)
	if err != nil {
		logger.Error("kill switch: snapshot failed: %v", err)
		res.WithMeta("snapshot_error", err.Error())
	} else {
		res.Snapshot = snap
		if snap.OpenOrdersCount > 0 {
			// Что-то пережило ликвидацию, это повод для тревоги.
			res.Status = models.StatusOKWithWarnings
			res.WithMeta("survivors", snap.OpenOrdersCount)
		}
	}

	s.notify.Sendf("KILL SWITCH: closed %d, cancelled %d", len(closed), len(cancelled))
	return s.finish(ctx, "kill_switch", filter.Symbol, res), nil
}

// PanicCloseSymbol — зачистка одного символа без снимка.
func (s *Service) PanicCloseSymbol(ctx context.Context, symbol string) (*models.Result, error) {
	filter := models.OrderFilter{Symbol: symbol}
	res := &models.Result{Status: models.StatusOK}

	closed, err := s.gw.CloseAll(ctx, filter)
	if err != nil {
		res.Status = models.StatusOKWithWarnings
		res.WithMeta("close_error", err.Error())
	}
	cancelled, err := s.gw.CancelPendings(ctx, filter)
	if err != nil {
		res.Status = models.StatusOKWithWarnings
		res.WithMeta("cancel_error", err.Error())
	}
	res.WithMeta("closed", closed).WithMeta("cancelled", cancelled)
	return s.finish(ctx, "panic_close", symbol, res), nil
}
