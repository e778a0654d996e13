package service

import (
	"context"
	"sync"
	"time"
)

// sendLimiter разводит мутирующие вызовы по времени: не чаще одного в
// spacing. Общий на процесс, чтобы серия сценариев не зафлудила терминал.
type sendLimiter struct {
	mu      sync.Mutex
	spacing time.Duration
	last    time.Time
}

func newSendLimiter(spacing time.Duration) *sendLimiter {
	return &sendLimiter{spacing: spacing}
}

// Acquire блокирует до своего слота. Если дедлайн контекста наступит
// раньше слота, возвращаем ErrRateLimited сразу, без сна.
func (l *sendLimiter) Acquire(ctx context.Context) error {
	if l.spacing <= 0 {
		return nil
	}

	l.mu.Lock()
	now := time.Now()
	next := l.last.Add(l.spacing)
	if next.Before(now) {
		next = now
	}
	wait := next.Sub(now)

	if deadline, ok := ctx.Deadline(); ok && next.After(deadline) {
		l.mu.Unlock()
		return &OpError{Op: "rate_limit", Kind: ErrRateLimited, Err: context.DeadlineExceeded}
	}

	// Слот резервируем до сна, чтобы конкурентные вызовы выстроились
	// в очередь вместо гонки за один и тот же слот.
	l.last = next
	l.mu.Unlock()

	if wait <= 0 {
		return nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return &OpError{Op: "rate_limit", Kind: ErrRateLimited, Err: ctx.Err()}
	}
}
