package service

import (
	"context"
	"time"

	"trade_engine/internal/models"
)

// Terminal — всё, что гейтвею нужно от терминального моста.
// Реализацию отдаёт модуль terminal; в тестах подменяется фейком.
type Terminal interface {
	EnsureConnected(ctx context.Context) error
	Reconnect(ctx context.Context) error

	Quote(ctx context.Context, symbol string) (models.Quote, error)
	QuoteHistory(ctx context.Context, symbol string, since, until time.Time, limit int) ([]models.Tick, error)
	SymbolParams(ctx context.Context, symbol string) (models.SymbolSpec, error)
	AccountSummary(ctx context.Context) (models.AccountInfo, error)
	OpenedOrders(ctx context.Context) ([]models.OrderView, error)
	TickValuePerLot(ctx context.Context, symbol string) (float64, error)

	OrderSend(ctx context.Context, req models.OrderRequest) (int64, error)
	OrderModify(ctx context.Context, ticket int64, sl, tp float64) error
	OrderCloseDelete(ctx context.Context, ticket int64, lots float64) error
}

// Опциональные способности моста. Проверяются один раз при сборке
// гейтвея, не на каждом вызове.

type CloseByCapable interface {
	OrderCloseBy(ctx context.Context, ticketA, ticketB int64) error
}

type ServerClockCapable interface {
	ServerTime(ctx context.Context) (time.Time, error)
}
