package automation

import (
	"context"
	"sync"
	"time"

	"trade_engine/internal/models"

	"github.com/google/uuid"
)

// Registry держит фоновые воркеры по подпискам. Воркер живёт в своей
// горутине с собственным контекстом и сам снимает себя с учёта при
// выходе.
type Registry struct {
	mu   sync.Mutex
	subs map[string]*subscription
}

type subscription struct {
	info   models.SubscriptionInfo
	cancel context.CancelFunc
	done   chan struct{}
}

func NewRegistry() *Registry {
	return &Registry{subs: map[string]*subscription{}}
}

// Start запускает воркер и возвращает id подписки. Контекст воркера
// отвязан от вызывающего: сценарий завершается, воркер остаётся жить.
func (r *Registry) Start(kind models.WorkerKind, ticket int64, run func(ctx context.Context)) string {
	ctx, cancel := context.WithCancel(context.Background())
	sub := &subscription{
		info: models.SubscriptionInfo{
			ID:        string(kind) + "-" + uuid.NewString(),
			Kind:      kind,
			Ticket:    ticket,
			StartedAt: time.Now(),
		},
		cancel: cancel,
		done:   make(chan struct{}),
	}

	r.mu.Lock()
	r.subs[sub.info.ID] = sub
	r.mu.Unlock()

	go func() {
		defer close(sub.done)
		defer r.remove(sub.info.ID)
		run(ctx)
	}()

	return sub.info.ID
}

func (r *Registry) remove(id string) {
	r.mu.Lock()
	delete(r.subs, id)
	r.mu.Unlock()
}

// Cancel останавливает подписку и дожидается выхода воркера.
// Неизвестный id — no-op.
func (r *Registry) Cancel(id string) bool {
	r.mu.Lock()
	sub, ok := r.subs[id]
	r.mu.Unlock()
	if !ok {
		return false
	}
	sub.cancel()
	<-sub.done
	return true
}

func (r *Registry) CancelAll() {
	r.mu.Lock()
	subs := make([]*subscription, 0, len(r.subs))
	for _, s := range r.subs {
		subs = append(subs, s)
	}
	r.mu.Unlock()

	for _, s := range subs {
		s.cancel()
		<-s.done
	}
}

func (r *Registry) Active() []models.SubscriptionInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.SubscriptionInfo, 0, len(r.subs))
	for _, s := range r.subs {
		out = append(out, s.info)
	}
	return out
}
