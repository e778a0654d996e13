package service

import (
	"context"
	"errors"
	"time"

	"trade_engine/internal/models"
)

var (
	// ErrAwaitTimeout — дождаться события не успели в отведённый срок.
	ErrAwaitTimeout = errors.New("await timeout")
	// ErrOrderGone — ордер исчез из списка, не успев исполниться
	// (удалён руками или терминалом).
	ErrOrderGone = errors.New("order gone")
)

// WaitFilled поллит ордер, пока отложка не станет рыночной позицией.
// Нулевой timeout берётся из конфига.
func (g *Gateway) WaitFilled(ctx context.Context, ticket int64, timeout time.Duration) (*models.OrderView, error) {
	if timeout <= 0 {
		timeout = g.cfg.WaitFillTimeout
	}
	deadline := time.Now().Add(timeout)

	ticker := time.NewTicker(g.cfg.FillPollInterval)
	defer ticker.Stop()

	for {
		view, err := g.OrderByTicket(ctx, ticket)
		if err != nil {
			return nil, err
		}
		if view == nil {
			return nil, ErrOrderGone
		}
		if !view.IsPending {
			return view, nil
		}

		if time.Now().After(deadline) {
			return nil, ErrAwaitTimeout
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// WaitClosed поллит, пока тикет не пропадёт из списка открытых.
func (g *Gateway) WaitClosed(ctx context.Context, ticket int64, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = g.cfg.WaitFillTimeout
	}
	deadline := time.Now().Add(timeout)

	ticker := time.NewTicker(g.cfg.FillPollInterval)
	defer ticker.Stop()

	for {
		view, err := g.OrderByTicket(ctx, ticket)
		if err != nil {
			return err
		}
		if view == nil {
			return nil
		}

		if time.Now().After(deadline) {
			return ErrAwaitTimeout
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
