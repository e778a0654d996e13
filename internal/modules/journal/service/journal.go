package service

import (
	"context"

	"trade_engine/internal/models"
	"trade_engine/pkg/db"
	"trade_engine/pkg/logger"

	"github.com/bytedance/sonic"
	"github.com/jackc/pgx/v5"
)

// Journal — insert-only аудит торговых решений. Без DSN работает как
// no-op: сценарии пишут в журнал безусловно и не проверяют, включён ли он.
type Journal struct {
	tx db.TxManager
}

func NewJournal(tx db.TxManager) *Journal {
	return &Journal{tx: tx}
}

func Disabled() *Journal { return &Journal{} }

func (j *Journal) Enabled() bool { return j != nil && j.tx != nil }

// RecordResult пишет итог сценария вместе с метой гардов. Ошибка
// журнала логируется и глотается: аудит не должен ронять торговлю.
func (j *Journal) RecordResult(ctx context.Context, scenario, symbol string, res *models.Result) {
	if !j.Enabled() || res == nil {
		return
	}

	meta, err := sonic.Marshal(res.Meta)
	if err != nil {
		meta = []byte("{}")
	}

	err = j.tx.RunMaster(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctxTx,
			`INSERT INTO engine_journal (scenario, symbol, status, ticket, meta)
			 VALUES ($1, $2, $3, $4, $5)`,
			scenario, symbol, res.Status, res.Ticket, meta)
		return err
	})
	if err != nil {
		logger.Warn("journal: insert failed scenario=%s: %v", scenario, err)
	}
}
