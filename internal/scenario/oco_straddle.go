package scenario

import (
	"context"
	"errors"
	"time"

	"trade_engine/internal/guards"
	"trade_engine/internal/helper"
	"trade_engine/internal/models"
	gatewayservice "trade_engine/internal/modules/gateway/service"
	marketservice "trade_engine/internal/modules/market/service"
	"trade_engine/pkg/logger"
)

// Режимы риска стрэддла: полный риск на каждую ногу либо пополам,
// исходя из того, что исполнится только одна.
const (
	OCORiskPerLegFull = "per_leg_full"
	OCORiskPerLegHalf = "per_leg_half"
)

type OCOParams struct {
	Symbol     string
	OffsetPips float64
	StopPips   float64
	TargetPips float64

	Lots     float64 // 0 => сайзинг по риску
	RiskPct  float64
	RiskMode string

	WaitTimeout time.Duration

	TrailingPips     float64
	TrailingStepPips float64
	BreakevenTrigger float64
	BreakevenPlus    float64

	Magic   int
	Comment string
}

type legOutcome struct {
	side models.Side
	view *models.OrderView
	err  error
}

// OCOStraddle ставит buy-stop над рынком и sell-stop под рынком и
// играет "кто первый". Исполнилась одна нога — вторая снимается;
// никто не исполнился за таймаут — снимаются обе.
//
// Гонка двойного исполнения принципиально неустранима: между филлом
// первой ноги и снятием второй терминал может успеть исполнить обе.
// В этом случае вторая позиция остаётся открытой и помечается в мете
// как both_filled.
func (s *Service) OCOStraddle(ctx context.Context, p OCOParams) (*models.Result, error) {
	riskPct := p.RiskPct
	if riskPct <= 0 {
		riskPct = s.cfg.DefaultRiskPct
	}
	if p.RiskMode == OCORiskPerLegHalf {
		riskPct /= 2
	}

	cp := &guards.Checkpoint{Symbol: p.Symbol, RiskPct: riskPct}
	if p.Lots > 0 {
		cp.RiskPct = 0
	}

	res, err := s.pipeline.Run(ctx, cp, func(ctx context.Context, cp *guards.Checkpoint) (*models.Result, error) {
		if p.OffsetPips <= 0 {
			return nil, &gatewayservice.OpError{
				Op:   "oco_straddle",
				Kind: gatewayservice.ErrValidation,
				Err:  errors.New("offset pips required"),
			}
		}

		spec, err := s.market.Spec(ctx, p.Symbol)
		if err != nil {
			return nil, err
		}
		pip := marketservice.PipSize(spec)

		lots, err := s.resolveLots(ctx, EntryParams{
			Symbol: p.Symbol, Side: models.SideBuy,
			Lots: p.Lots, RiskPct: riskPct, StopPips: p.StopPips,
		})
		if err != nil {
			return nil, err
		}

		q, err := s.gw.Quote(ctx, p.Symbol)
		if err != nil {
			return nil, err
		}
		mid := q.Mid()
		buyEntry := helper.RoundUpToTick(mid+p.OffsetPips*pip, spec.TickSize)
		sellEntry := helper.RoundDownToTick(mid-p.OffsetPips*pip, spec.TickSize)

		buyTicket, err := s.submitLeg(ctx, cp, p, models.SideBuy, buyEntry, lots)
		if err != nil {
			return nil, err
		}
		sellTicket, err := s.submitLeg(ctx, cp, p, models.SideSell, sellEntry, lots)
		if err != nil {
			// Вторая нога не встала, стрэддла нет: первую снимаем.
			if cerr := s.gw.Close(ctx, buyTicket, 0); cerr != nil {
				logger.Error("oco: rollback cancel failed ticket=%d: %v", buyTicket, cerr)
			}
			return nil, err
		}

		tickets := map[string]int64{"buy": buyTicket, "sell": sellTicket}
		return s.raceLegs(ctx, p, tickets, lots)
	})
	if err != nil {
		return nil, err
	}
	return s.finish(ctx, "oco_straddle", p.Symbol, res), nil
}

func (s *Service) submitLeg(ctx context.Context, cp *guards.Checkpoint, p OCOParams, side models.Side, entry, lots float64) (int64, error) {
	sl, tp, err := s.bracket(ctx, p.Symbol, side, entry, p.StopPips, p.TargetPips)
	if err != nil {
		return 0, err
	}
	return s.gw.Submit(ctx, models.OrderRequest{
		Symbol:        p.Symbol,
		Side:          side,
		Kind:          models.OrderStop,
		Price:         entry,
		Lots:          lots,
		StopLoss:      sl,
		TakeProfit:    tp,
		Comment:       p.Comment,
		Magic:         p.Magic,
		DeviationPips: s.deviation(cp),
	})
}

func (s *Service) raceLegs(ctx context.Context, p OCOParams, tickets map[string]int64, lots float64) (*models.Result, error) {
	timeout := p.WaitTimeout
	if timeout <= 0 {
		timeout = s.cfg.WaitFillTimeout
	}

	waitCtx, cancelWait := context.WithCancel(ctx)
	defer cancelWait()

	outcomes := make(chan legOutcome, 2)
	wait := func(side models.Side, ticket int64) {
		view, err := s.gw.WaitFilled(waitCtx, ticket, timeout)
		outcomes <- legOutcome{side: side, view: view, err: err}
	}
	go wait(models.SideBuy, tickets["buy"])
	go wait(models.SideSell, tickets["sell"])

	for i := 0; i < 2; i++ {
		out := <-outcomes
		if out.err != nil {
			// Таймаут или исчезнувшая нога: даём шанс второй.
			continue
		}

		cancelWait()
		filled, other := out.view, tickets["sell"]
		if out.side == models.SideSell {
			other = tickets["buy"]
		}

		res := &models.Result{
			Status:     models.StatusFilled,
			Ticket:     filled.Ticket,
			Tickets:    tickets,
			FilledSide: out.side,
			Filled:     filled,
		}
		res.WithMeta("lots", lots)
		s.cancelOtherLeg(ctx, p, other, res)
		s.attachWorkers(ctx, filled.Ticket, EntryParams{
			Symbol:           p.Symbol,
			Side:             out.side,
			TrailingPips:     p.TrailingPips,
			TrailingStepPips: p.TrailingStepPips,
			BreakevenTrigger: p.BreakevenTrigger,
			BreakevenPlus:    p.BreakevenPlus,
		}, res)
		s.notify.Sendf("oco %s: %s leg filled at %.5f", p.Symbol, out.side, filled.OpenPrice)
		return res, nil
	}

	// Ни одна нога не исполнилась: снимаем обе, что осталось.
	for _, t := range tickets {
		if err := s.gw.Close(ctx, t, 0); err != nil {
			logger.Warn("oco: timeout cancel failed ticket=%d: %v", t, err)
		}
	}
	return &models.Result{Status: models.StatusCancelledByTimeout, Tickets: tickets}, nil
}

// cancelOtherLeg снимает проигравшую ногу идемпотентно: прямое
// удаление, при провале зачистка отложек встречной стороны по символу.
func (s *Service) cancelOtherLeg(ctx context.Context, p OCOParams, other int64, res *models.Result) {
	err := s.gw.Close(ctx, other, 0)
	if err == nil {
		// Подтверждаем, что нога действительно ушла из списка: мост
		// мог принять delete и не успеть его применить.
		if werr := s.gw.WaitClosed(ctx, other, time.Second); werr != nil {
			logger.Warn("oco: cancelled leg still listed ticket=%d: %v", other, werr)
			res.WithMeta("cancel_unconfirmed", true)
		}
		return
	}

	view, verr := s.gw.OrderByTicket(ctx, other)
	if verr == nil && view == nil {
		return // уже снята
	}
	if verr == nil && !view.IsPending {
		// Проиграли гонку: обе ноги в рынке.
		logger.Warn("oco: both legs filled symbol=%s tickets=%d/%d", p.Symbol, res.Ticket, other)
		res.WithMeta("both_filled", true)
		res.Status = models.StatusOKWithWarnings
		return
	}

	// Фолбэк целится только во встречную сторону, чтобы не зацепить
	// чужие отложки того же символа.
	cancelled, ferr := s.gw.CancelPendings(ctx, models.OrderFilter{
		Symbol:   p.Symbol,
		Side:     res.FilledSide.Opposite(),
		Magic:    p.Magic,
		HasMagic: p.Magic != 0,
	})
	if ferr != nil {
		logger.Error("oco: fallback cancel failed symbol=%s: %v", p.Symbol, ferr)
		res.WithMeta("cancel_error", err.Error())
		return
	}
	res.WithMeta("fallback_cancelled", cancelled)
}
