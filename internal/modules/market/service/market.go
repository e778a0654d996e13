package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"trade_engine/internal/helper"
	"trade_engine/internal/models"
	"trade_engine/internal/modules/config"
	gatewayservice "trade_engine/internal/modules/gateway/service"
)

// Market — котировки, пипсовая арифметика и сайзинг поверх гейтвея.
// Кешируются только параметры символов (они статичны в рамках сессии),
// цены и ордера всегда читаются заново.
type Market struct {
	cfg *config.Config
	gw  *gatewayservice.Gateway

	mu    sync.RWMutex
	specs map[string]models.SymbolSpec
}

func NewMarket(cfg *config.Config, gw *gatewayservice.Gateway) *Market {
	return &Market{
		cfg:   cfg,
		gw:    gw,
		specs: map[string]models.SymbolSpec{},
	}
}

func (m *Market) Spec(ctx context.Context, symbol string) (models.SymbolSpec, error) {
	symbol = helper.NormSymbol(symbol)

	m.mu.RLock()
	spec, ok := m.specs[symbol]
	m.mu.RUnlock()
	if ok {
		return spec, nil
	}
	return m.ForceRefresh(ctx, symbol)
}

// ForceRefresh перечитывает параметры символа из терминала в обход кеша.
func (m *Market) ForceRefresh(ctx context.Context, symbol string) (models.SymbolSpec, error) {
	symbol = helper.NormSymbol(symbol)

	spec, err := m.gw.SymbolParams(ctx, symbol)
	if err != nil {
		return models.SymbolSpec{}, err
	}
	if spec.Digits == 0 {
		spec.Digits = helper.DigitsFromTick(spec.TickSize)
	}

	m.mu.Lock()
	m.specs[symbol] = spec
	m.mu.Unlock()
	return spec, nil
}

// PipSize: на 3/5-значных котировках пипс равен десяти пунктам,
// иначе пипс и пункт совпадают.
func PipSize(spec models.SymbolSpec) float64 {
	if spec.Digits == 3 || spec.Digits == 5 {
		return spec.TickSize * 10
	}
	return spec.TickSize
}

func (m *Market) PipsToPrice(ctx context.Context, symbol string, pips float64) (float64, error) {
	spec, err := m.Spec(ctx, symbol)
	if err != nil {
		return 0, err
	}
	return pips * PipSize(spec), nil
}

func (m *Market) PriceToPips(ctx context.Context, symbol string, delta float64) (float64, error) {
	spec, err := m.Spec(ctx, symbol)
	if err != nil {
		return 0, err
	}
	pip := PipSize(spec)
	if pip <= 0 {
		return 0, fmt.Errorf("symbol %s: pip size empty", symbol)
	}
	return delta / pip, nil
}

// NormalizePrice приводит цену к сетке тиков. Идемпотентна: повторный
// вызов уже нормализованную цену не меняет.
func (m *Market) NormalizePrice(ctx context.Context, symbol string, px float64) (float64, error) {
	spec, err := m.Spec(ctx, symbol)
	if err != nil {
		return 0, err
	}
	return helper.RoundToStep(px, spec.TickSize), nil
}

// NormalizeLot режет объём вниз к шагу лота и зажимает в [min, max].
func (m *Market) NormalizeLot(ctx context.Context, symbol string, lots float64) (float64, error) {
	spec, err := m.Spec(ctx, symbol)
	if err != nil {
		return 0, err
	}
	return NormalizeLotSpec(spec, lots), nil
}

func NormalizeLotSpec(spec models.SymbolSpec, lots float64) float64 {
	if lots <= 0 {
		return 0
	}
	lots = helper.FloorToStep(lots, spec.LotStep)
	if spec.LotMin > 0 && lots < spec.LotMin {
		lots = spec.LotMin
	}
	if spec.LotMax > 0 && lots > spec.LotMax {
		lots = spec.LotMax
	}
	return lots
}

func (m *Market) Quote(ctx context.Context, symbol string) (models.Quote, error) {
	return m.gw.Quote(ctx, symbol)
}

func (m *Market) MidPrice(ctx context.Context, symbol string) (float64, error) {
	q, err := m.gw.Quote(ctx, symbol)
	if err != nil {
		return 0, err
	}
	return q.Mid(), nil
}

// SpreadPips возвращает текущий спред в пипсах вместе с котировкой,
// на которой он посчитан.
func (m *Market) SpreadPips(ctx context.Context, symbol string) (float64, models.Quote, error) {
	q, err := m.gw.Quote(ctx, symbol)
	if err != nil {
		return 0, models.Quote{}, err
	}
	spec, err := m.Spec(ctx, symbol)
	if err != nil {
		return 0, models.Quote{}, err
	}
	pip := PipSize(spec)
	if pip <= 0 {
		return 0, q, fmt.Errorf("symbol %s: pip size empty", symbol)
	}
	return q.Spread() / pip, q, nil
}

// MoneyPerPip — стоимость одного пипса для заданного объёма в валюте
// счёта. Считается из tick value на полный лот.
func (m *Market) MoneyPerPip(ctx context.Context, symbol string, lots float64) (float64, error) {
	spec, err := m.Spec(ctx, symbol)
	if err != nil {
		return 0, err
	}
	tickVal, err := m.gw.TickValuePerLot(ctx, symbol)
	if err != nil {
		return 0, err
	}
	if spec.TickSize <= 0 {
		return 0, fmt.Errorf("symbol %s: tick size empty", symbol)
	}
	return tickVal * lots * (PipSize(spec) / spec.TickSize), nil
}

// CashRisk: riskPct задаётся в процентах (1.0 => 1%).
func CashRisk(equity, riskPct float64) float64 {
	return equity * riskPct / 100.0
}

// SizeByRisk подбирает объём так, чтобы стоп в stopPips стоил не больше
// riskPct от equity. Возвращает 0 без ошибки, когда размер посчитать
// нельзя (пустой стоп или нулевая стоимость пипса).
func (m *Market) SizeByRisk(ctx context.Context, symbol string, equity, riskPct, stopPips float64) (float64, error) {
	if stopPips <= 0 || riskPct <= 0 || equity <= 0 {
		return 0, nil
	}

	perPip, err := m.MoneyPerPip(ctx, symbol, 1.0)
	if err != nil {
		return 0, err
	}
	if perPip <= 0 {
		return 0, nil
	}

	raw := CashRisk(equity, riskPct) / (perPip * stopPips)
	return m.NormalizeLot(ctx, symbol, raw)
}

// WaitPrice поллит котировку до выполнения предиката.
func (m *Market) WaitPrice(ctx context.Context, symbol string, ok func(models.Quote) bool, timeout time.Duration) (models.Quote, error) {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(m.cfg.FillPollInterval)
	defer ticker.Stop()

	for {
		q, err := m.gw.Quote(ctx, symbol)
		if err == nil && ok(q) {
			return q, nil
		}
		if time.Now().After(deadline) {
			return models.Quote{}, gatewayservice.ErrAwaitTimeout
		}
		select {
		case <-ctx.Done():
			return models.Quote{}, ctx.Err()
		case <-ticker.C:
		}
	}
}
