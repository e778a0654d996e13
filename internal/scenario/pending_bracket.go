package scenario

import (
	"context"
	"errors"
	"time"

	"trade_engine/internal/guards"
	"trade_engine/internal/models"
	gatewayservice "trade_engine/internal/modules/gateway/service"
	"trade_engine/pkg/logger"
)

// PendingBracketParams: Kind задаёт limit либо stop; EntryPrice
// обязателен. Нулевой WaitTimeout — дефолт конфига.
type PendingBracketParams struct {
	EntryParams
	Kind        models.OrderKind
	EntryPrice  float64
	WaitTimeout time.Duration
}

// PendingBracket ставит отложку с брекетом и ждёт исполнения. Не
// дождались — отложка снимается, статус cancelled_by_timeout.
func (s *Service) PendingBracket(ctx context.Context, p PendingBracketParams) (*models.Result, error) {
	cp := &guards.Checkpoint{Symbol: p.Symbol, RiskPct: p.riskPct(s.cfg)}
	if p.Lots > 0 {
		cp.RiskPct = 0
	}

	res, err := s.pipeline.Run(ctx, cp, func(ctx context.Context, cp *guards.Checkpoint) (*models.Result, error) {
		if p.EntryPrice <= 0 || (p.Kind != models.OrderLimit && p.Kind != models.OrderStop) {
			return nil, &gatewayservice.OpError{
				Op:   "pending_bracket",
				Kind: gatewayservice.ErrValidation,
				Err:  errors.New("entry price and pending kind are required"),
			}
		}

		lots, err := s.resolveLots(ctx, p.EntryParams)
		if err != nil {
			return nil, err
		}
		entry, err := s.market.NormalizePrice(ctx, p.Symbol, p.EntryPrice)
		if err != nil {
			return nil, err
		}
		sl, tp, err := s.bracket(ctx, p.Symbol, p.Side, entry, p.StopPips, p.TargetPips)
		if err != nil {
			return nil, err
		}

		ticket, err := s.gw.Submit(ctx, models.OrderRequest{
			Symbol:        p.Symbol,
			Side:          p.Side,
			Kind:          p.Kind,
			Price:         entry,
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

		view, err := s.gw.WaitFilled(ctx, ticket, p.WaitTimeout)
		switch {
		case err == nil:
			res := &models.Result{Status: models.StatusFilled, Ticket: ticket, Filled: view}
			s.attachWorkers(ctx, ticket, p.EntryParams, res)
			s.notify.Sendf("pending %s %s filled at %.5f, ticket %d", p.Side, p.Symbol, view.OpenPrice, ticket)
			return res, nil

		case errors.Is(err, gatewayservice.ErrAwaitTimeout):
			if cerr := s.gw.Close(ctx, ticket, 0); cerr != nil {
				// Снять не смогли, оставляем отложку и честно говорим об этом.
				logger.Error("pending bracket: cancel failed ticket=%d: %v", ticket, cerr)
				res := &models.Result{Status: models.StatusPendingTimeout, Ticket: ticket}
				return res.WithMeta("cancel_error", cerr.Error()), nil
			}
			return &models.Result{Status: models.StatusCancelledByTimeout, Ticket: ticket}, nil

		case errors.Is(err, gatewayservice.ErrOrderGone):
			return &models.Result{Status: models.StatusCancelledByTimeout, Ticket: ticket}, nil

		default:
			return nil, err
		}
	})
	if err != nil {
		return nil, err
	}
	return s.finish(ctx, "pending_bracket", p.Symbol, res), nil
}
