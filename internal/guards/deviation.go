package guards

import (
	"context"
	"math"
	"time"

	"trade_engine/internal/models"
	marketservice "trade_engine/internal/modules/market/service"
	"trade_engine/pkg/logger"
)

// Режимы расчёта динамического допуска проскальзывания.
const (
	DeviationFixed     = "fixed"
	DeviationSpread    = "spread"
	DeviationATR       = "atr"
	DeviationHybridMax = "hybrid_max"
	DeviationHybridSum = "hybrid_sum"
)

type DeviationConfig struct {
	Mode       string        `yaml:"mode"`
	FixedPips  float64       `yaml:"fixed_pips"`
	SpreadMult float64       `yaml:"spread_mult"`
	ATRMult    float64       `yaml:"atr_mult"`
	ATRPeriod  int           `yaml:"atr_period"`
	ATRBar     time.Duration `yaml:"atr_bar"`
	MinPips    float64       `yaml:"min_pips"`
	MaxPips    float64       `yaml:"max_pips"`
}

// DeviationGuard никогда не блокирует. Он считает допуск под текущий
// рынок и кладёт его в Checkpoint, откуда сценарий заберёт значение в
// ордер.
type DeviationGuard struct {
	market *marketservice.Market
	cfg    DeviationConfig
}

func NewDeviationGuard(market *marketservice.Market, cfg DeviationConfig) *DeviationGuard {
	if cfg.SpreadMult <= 0 {
		cfg.SpreadMult = 1.5
	}
	if cfg.ATRMult <= 0 {
		cfg.ATRMult = 0.5
	}
	if cfg.ATRPeriod <= 0 {
		cfg.ATRPeriod = 14
	}
	if cfg.ATRBar <= 0 {
		cfg.ATRBar = time.Minute
	}
	return &DeviationGuard{market: market, cfg: cfg}
}

func (g *DeviationGuard) Name() string { return "deviation" }

func (g *DeviationGuard) Check(ctx context.Context, cp *Checkpoint) models.GuardDecision {
	pips, meta := g.compute(ctx, cp.Symbol)

	if g.cfg.MinPips > 0 && pips < g.cfg.MinPips {
		pips = g.cfg.MinPips
	}
	if g.cfg.MaxPips > 0 && pips > g.cfg.MaxPips {
		pips = g.cfg.MaxPips
	}
	// Терминал принимает допуск с шагом в десятую пипса.
	pips = math.Round(pips*10) / 10

	cp.Deviation = pips
	meta["deviation_pips"] = pips
	return models.Allow(meta)
}

func (g *DeviationGuard) compute(ctx context.Context, symbol string) (float64, map[string]any) {
	meta := map[string]any{"mode": g.cfg.Mode}

	spreadPart := func() (float64, bool) {
		pips, _, err := g.market.SpreadPips(ctx, symbol)
		if err != nil {
			logger.Warn("deviation: spread unavailable symbol=%s: %v", symbol, err)
			return 0, false
		}
		meta["spread_pips"] = pips
		return pips * g.cfg.SpreadMult, true
	}
	atrPart := func() (float64, bool) {
		pips, err := g.market.ATRPips(ctx, symbol, g.cfg.ATRPeriod, g.cfg.ATRBar)
		if err != nil || pips <= 0 {
			return 0, false
		}
		meta["atr_pips"] = pips
		return pips * g.cfg.ATRMult, true
	}

	switch g.cfg.Mode {
	case DeviationSpread:
		if v, ok := spreadPart(); ok {
			return v, meta
		}
	case DeviationATR:
		if v, ok := atrPart(); ok {
			return v, meta
		}
	case DeviationHybridMax:
		s, sok := spreadPart()
		a, aok := atrPart()
		if sok || aok {
			return math.Max(s, a), meta
		}
	case DeviationHybridSum:
		s, sok := spreadPart()
		a, aok := atrPart()
		if sok || aok {
			return s + a, meta
		}
	}

	// fixed-режим и все деградации.
	meta["fallback"] = "fixed"
	return g.cfg.FixedPips, meta
}
