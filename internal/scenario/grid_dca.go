package scenario

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"trade_engine/internal/guards"
	"trade_engine/internal/helper"
	"trade_engine/internal/models"
	gatewayservice "trade_engine/internal/modules/gateway/service"
	marketservice "trade_engine/internal/modules/market/service"
	"trade_engine/pkg/logger"
)

type GridParams struct {
	Symbol   string
	Side     models.Side
	Levels   int
	StepPips float64

	// TotalLots делится поровну на уровни. Ноль включает риск-сайзинг:
	// общий RiskPct делится на уровни (split-total).
	TotalLots float64
	RiskPct   float64

	// SLPips отмеряется от якоря (худшая цена входа), RR/TPPips — от VWAP.
	SLPips     float64
	TPPips     float64
	RRMultiple float64

	// ArmAfter — со скольких набранных уровней начинать вести общий
	// SL/TP. Ноль означает 1: с первого же филла.
	ArmAfter int

	ManageTimeout time.Duration

	Magic   int
	Comment string
}

type gridFill struct {
	ticket int64
	view   *models.OrderView
	err    error
}

// GridDCACommonSL раскладывает лесенку лимиток и по мере исполнения
// держит на всех набранных позициях общий стоп от якоря и общий тейк
// от VWAP. Уровни переставляются только когда реально изменились.
func (s *Service) GridDCACommonSL(ctx context.Context, p GridParams) (*models.Result, error) {
	cp := &guards.Checkpoint{Symbol: p.Symbol, RiskPct: p.RiskPct}
	if p.TotalLots > 0 {
		cp.RiskPct = 0
	}

	res, err := s.pipeline.Run(ctx, cp, func(ctx context.Context, cp *guards.Checkpoint) (*models.Result, error) {
		if p.Levels <= 0 || p.StepPips <= 0 || p.SLPips <= 0 {
			return nil, &gatewayservice.OpError{
				Op:   "grid_dca",
				Kind: gatewayservice.ErrValidation,
				Err:  errors.New("levels, step and sl are required"),
			}
		}

		spec, err := s.market.Spec(ctx, p.Symbol)
		if err != nil {
			return nil, err
		}

		levelLots, err := s.gridLevelLots(ctx, p)
		if err != nil {
			return nil, err
		}

		tickets, err := s.placeLadder(ctx, cp, p, spec, levelLots)
		if err != nil {
			return nil, err
		}
		return s.manageGrid(ctx, p, spec, tickets)
	})
	if err != nil {
		return nil, err
	}
	return s.finish(ctx, "grid_dca", p.Symbol, res), nil
}

// gridLevelLots: объём одного уровня. Риск-режим делит общий риск
// поровну, стоп каждого уровня считается по SLPips.
func (s *Service) gridLevelLots(ctx context.Context, p GridParams) (float64, error) {
	if p.TotalLots > 0 {
		return s.market.NormalizeLot(ctx, p.Symbol, p.TotalLots/float64(p.Levels))
	}

	riskPct := p.RiskPct
	if riskPct <= 0 {
		riskPct = s.cfg.DefaultRiskPct
	}
	acc, err := s.gw.AccountSummary(ctx)
	if err != nil {
		return 0, err
	}
	lots, err := s.market.SizeByRisk(ctx, p.Symbol, acc.Equity, riskPct/float64(p.Levels), p.SLPips)
	if err != nil {
		return 0, err
	}
	if lots <= 0 {
		return 0, &gatewayservice.OpError{
			Op:   "grid_dca",
			Kind: gatewayservice.ErrValidation,
			Err:  fmt.Errorf("cannot size grid level: risk=%.2f%% levels=%d", riskPct, p.Levels),
		}
	}
	return lots, nil
}

func (s *Service) placeLadder(ctx context.Context, cp *guards.Checkpoint, p GridParams, spec models.SymbolSpec, levelLots float64) (map[string]int64, error) {
	pip := marketservice.PipSize(spec)

	q, err := s.gw.Quote(ctx, p.Symbol)
	if err != nil {
		return nil, err
	}

	tickets := map[string]int64{}
	for i := 1; i <= p.Levels; i++ {
		var price float64
		if p.Side == models.SideBuy {
			price = helper.RoundDownToTick(q.Bid-float64(i)*p.StepPips*pip, spec.TickSize)
		} else {
			price = helper.RoundUpToTick(q.Ask+float64(i)*p.StepPips*pip, spec.TickSize)
		}

		ticket, err := s.gw.Submit(ctx, models.OrderRequest{
			Symbol:        p.Symbol,
			Side:          p.Side,
			Kind:          models.OrderLimit,
			Price:         price,
			Lots:          levelLots,
			Comment:       p.Comment,
			Magic:         p.Magic,
			DeviationPips: s.deviation(cp),
		})
		if err != nil {
			// Лесенка встала не целиком: снимаем то, что успели.
			for _, t := range tickets {
				if cerr := s.gw.Close(ctx, t, 0); cerr != nil {
					logger.Error("grid: rollback cancel failed ticket=%d: %v", t, cerr)
				}
			}
			return nil, err
		}
		tickets[fmt.Sprintf("level_%d", i)] = ticket
	}
	return tickets, nil
}

func (s *Service) manageGrid(ctx context.Context, p GridParams, spec models.SymbolSpec, tickets map[string]int64) (*models.Result, error) {
	timeout := p.ManageTimeout
	if timeout <= 0 {
		timeout = s.cfg.GridManageTimeout
	}

	waitCtx, cancelWait := context.WithCancel(ctx)
	defer cancelWait()

	fills := make(chan gridFill, len(tickets))
	for _, t := range tickets {
		go func(ticket int64) {
			view, err := s.gw.WaitFilled(waitCtx, ticket, timeout)
			fills <- gridFill{ticket: ticket, view: view, err: err}
		}(t)
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	armAfter := p.ArmAfter
	if armAfter <= 0 {
		armAfter = 1
	}

	filled := map[int64]*models.OrderView{}
	var curSL, curTP float64
	resolved := 0

	for resolved < len(tickets) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()

		case <-deadline.C:
			return s.finishGrid(ctx, p, tickets, filled, curSL, curTP)

		case f := <-fills:
			resolved++
			if f.err != nil {
				// Таймаут или снятый уровень, сетка живёт дальше.
				continue
			}
			filled[f.ticket] = f.view
			// До порога ArmAfter уровни не трогаем: ранние филлы живут
			// со своими собственными стопами.
			if len(filled) >= armAfter {
				curSL, curTP = s.reapplyGridLevels(ctx, p, spec, filled, curSL, curTP)
			}
		}
	}
	return s.finishGrid(ctx, p, tickets, filled, curSL, curTP)
}

// reapplyGridLevels пересчитывает общий SL/TP и переставляет их на всех
// набранных позициях, только если уровни сдвинулись хотя бы на тик.
func (s *Service) reapplyGridLevels(ctx context.Context, p GridParams, spec models.SymbolSpec, filled map[int64]*models.OrderView, curSL, curTP float64) (float64, float64) {
	pip := marketservice.PipSize(spec)
	vwap, anchor := gridAggregates(p.Side, filled)

	var sl, tp float64
	if p.Side == models.SideBuy {
		sl = helper.RoundDownToTick(anchor-p.SLPips*pip, spec.TickSize)
		if p.TPPips > 0 {
			tp = helper.RoundUpToTick(vwap+p.TPPips*pip, spec.TickSize)
		} else if p.RRMultiple > 0 {
			tp = helper.RoundUpToTick(vwap+p.RRMultiple*p.SLPips*pip, spec.TickSize)
		}
	} else {
		sl = helper.RoundUpToTick(anchor+p.SLPips*pip, spec.TickSize)
		if p.TPPips > 0 {
			tp = helper.RoundDownToTick(vwap-p.TPPips*pip, spec.TickSize)
		} else if p.RRMultiple > 0 {
			tp = helper.RoundDownToTick(vwap-p.RRMultiple*p.SLPips*pip, spec.TickSize)
		}
	}

	if sameLevel(sl, curSL, spec.TickSize) && sameLevel(tp, curTP, spec.TickSize) {
		return curSL, curTP
	}

	for ticket := range filled {
		if err := s.gw.Modify(ctx, ticket, sl, tp); err != nil {
			logger.Warn("grid: reapply failed ticket=%d sl=%.5f tp=%.5f: %v", ticket, sl, tp, err)
		}
	}
	logger.Info("grid levels applied symbol=%s vwap=%.5f anchor=%.5f sl=%.5f tp=%.5f",
		p.Symbol, vwap, anchor, sl, tp)
	return sl, tp
}

func (s *Service) finishGrid(ctx context.Context, p GridParams, tickets map[string]int64, filled map[int64]*models.OrderView, sl, tp float64) (*models.Result, error) {
	cancelled, err := s.gw.CancelPendings(ctx, models.OrderFilter{
		Symbol: p.Symbol, Magic: p.Magic, HasMagic: p.Magic != 0,
	})
	if err != nil {
		logger.Warn("grid: cancel remaining failed symbol=%s: %v", p.Symbol, err)
	}

	res := &models.Result{Tickets: tickets}
	if len(filled) == 0 {
		res.Status = models.StatusTimeoutNoFill
	} else {
		res.Status = models.StatusOK
		vwap, anchor := gridAggregates(p.Side, filled)
		res.WithMeta("vwap", vwap).WithMeta("anchor", anchor)
		res.WithMeta("common_sl", sl).WithMeta("common_tp", tp)
	}
	res.WithMeta("filled_count", len(filled)).WithMeta("cancelled", cancelled)
	s.notify.Sendf("grid %s %s: %d/%d filled", p.Side, p.Symbol, len(filled), len(tickets))
	return res, nil
}

// gridAggregates: VWAP по набранным позициям и якорь — худшая цена
// входа (минимум для покупок, максимум для продаж).
func gridAggregates(side models.Side, filled map[int64]*models.OrderView) (vwap, anchor float64) {
	var notional, lots float64
	for _, v := range filled {
		notional += v.OpenPrice * v.Lots
		lots += v.Lots
		if anchor == 0 ||
			(side == models.SideBuy && v.OpenPrice < anchor) ||
			(side == models.SideSell && v.OpenPrice > anchor) {
			anchor = v.OpenPrice
		}
	}
	if lots > 0 {
		vwap = notional / lots
	}
	return vwap, anchor
}

func sameLevel(a, b, tick float64) bool {
	if tick <= 0 {
		return a == b
	}
	return math.Abs(a-b) < tick/2
}
