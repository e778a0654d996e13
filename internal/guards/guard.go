package guards

import (
	"context"

	"trade_engine/internal/models"
	"trade_engine/pkg/logger"
)

// Checkpoint — общее состояние одного прогона пайплайна. Гарды читают
// входные поля и могут дописывать выходные (сейчас только Deviation).
type Checkpoint struct {
	Symbol string

	// RiskPct — заявленный риск сделки в процентах, для cap-слоя
	// эквити-гарда. Ноль, когда сценарий торгует фиксированным лотом.
	RiskPct float64

	// Deviation — допуск проскальзывания в пипсах. Заполняется
	// deviation-гардом; ноль означает "взять дефолт из конфига".
	Deviation float64
}

// Guard — одна проверка перед торговым действием.
type Guard interface {
	Name() string
	Check(ctx context.Context, cp *Checkpoint) models.GuardDecision
}

// Pipeline гоняет гарды по порядку и коротит на первом запрете.
// Мета всех пройденных гардов складывается в Result.Meta независимо от
// исхода.
type Pipeline struct {
	guards []Guard
}

func NewPipeline(gs ...Guard) *Pipeline {
	return &Pipeline{guards: gs}
}

func (p *Pipeline) Run(ctx context.Context, cp *Checkpoint, fn func(context.Context, *Checkpoint) (*models.Result, error)) (*models.Result, error) {
	meta := map[string]any{}

	for _, g := range p.guards {
		d := g.Check(ctx, cp)
		if len(d.Meta) > 0 {
			meta[g.Name()] = d.Meta
		}
		if !d.Allowed {
			logger.Info("guard blocked name=%s symbol=%s status=%s reason=%s",
				g.Name(), cp.Symbol, d.Status, d.Reason)
			res := &models.Result{Status: d.Status, Meta: meta}
			return res.WithMeta("blocked_by", g.Name()).WithMeta("reason", d.Reason), nil
		}
	}

	res, err := fn(ctx, cp)
	if err != nil {
		return nil, err
	}
	for k, v := range meta {
		res.WithMeta(k, v)
	}
	return res, nil
}
