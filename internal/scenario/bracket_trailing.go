package scenario

import (
	"context"

	"trade_engine/internal/guards"
	"trade_engine/internal/models"
)

type BracketTrailingParams struct {
	EntryParams
	// ActivationPips — профит, после которого включается трейлинг.
	ActivationPips float64
}

// BracketTrailingActivation — вход по рынку с брекетом, немедленным
// брейк-ивеном и трейлингом, который просыпается только после
// ActivationPips профита.
func (s *Service) BracketTrailingActivation(ctx context.Context, p BracketTrailingParams) (*models.Result, error) {
	cp := &guards.Checkpoint{Symbol: p.Symbol, RiskPct: p.riskPct(s.cfg)}
	if p.Lots > 0 {
		cp.RiskPct = 0
	}

	res, err := s.pipeline.Run(ctx, cp, func(ctx context.Context, cp *guards.Checkpoint) (*models.Result, error) {
		lots, err := s.resolveLots(ctx, p.EntryParams)
		if err != nil {
			return nil, err
		}

		q, err := s.gw.Quote(ctx, p.Symbol)
		if err != nil {
			return nil, err
		}
		entry := q.Ask
		if p.Side == models.SideSell {
			entry = q.Bid
		}
		sl, tp, err := s.bracket(ctx, p.Symbol, p.Side, entry, p.StopPips, p.TargetPips)
		if err != nil {
			return nil, err
		}

		ticket, err := s.gw.Submit(ctx, models.OrderRequest{
			Symbol:        p.Symbol,
			Side:          p.Side,
			Kind:          models.OrderMarket,
			Lots:          lots,
			StopLoss:      sl,
			TakeProfit:    tp,
			Comment:       p.Comment,
			Magic:         p.Magic,
			DeviationPips: s.deviation(cp),
		})
		if err != nil {
			return nil, err
		}

		res := &models.Result{Status: models.StatusOK, Ticket: ticket}
		res.WithMeta("lots", lots)

		if p.BreakevenTrigger > 0 {
			if id, err := s.auto.StartBreakeven(ctx, ticket, p.BreakevenTrigger, p.BreakevenPlus); err == nil {
				s.addSubscription(res, "breakeven", id)
			} else {
				res.WithMeta("breakeven_error", err.Error())
			}
		}
		if p.TrailingPips > 0 {
			step := p.TrailingStepPips
			if step <= 0 {
				step = 1
			}
			id, err := s.auto.StartTrailingWhenProfit(ctx, ticket, p.ActivationPips, p.TrailingPips, step)
			if err == nil {
				s.addSubscription(res, "trailing", id)
			} else {
				res.WithMeta("trailing_error", err.Error())
			}
		}

		s.notify.Sendf("bracket %s %s %.2f lots, ticket %d", p.Side, p.Symbol, lots, ticket)
		return res, nil
	})
	if err != nil {
		return nil, err
	}
	return s.finish(ctx, "bracket_trailing", p.Symbol, res), nil
}
