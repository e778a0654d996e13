package models

import "strings"

// RiskPreset — неизменяемый набор риск-параметров. Нулевые поля-опции
// означают "выключено".
type RiskPreset struct {
	RiskPercent          float64
	StopPips             float64
	TargetPips           float64
	TrailingPips         float64
	BreakevenTriggerPips float64
	BreakevenPlusPips    float64
}

// StrategyPreset — параметры входа. EntryPrice == 0 когда раннер сам
// вычисляет цену (breakout-оффсет и т.п.).
type StrategyPreset struct {
	Symbol        string
	UseMarket     bool
	EntryPrice    float64
	Lots          float64
	Magic         int
	DeviationPips float64
	Comment       string
}

// Готовые профили — калька со стандартной таблицы пресетов.
var (
	Conservative = RiskPreset{RiskPercent: 0.5, StopPips: 25, TargetPips: 50}
	Balanced     = RiskPreset{RiskPercent: 1.0, StopPips: 20, TargetPips: 40}
	Aggressive   = RiskPreset{RiskPercent: 2.0, StopPips: 15, TargetPips: 30}
	Scalper      = RiskPreset{RiskPercent: 1.0, StopPips: 8, TargetPips: 12, TrailingPips: 6}
	Walker       = RiskPreset{RiskPercent: 0.75, StopPips: 30, TargetPips: 60, BreakevenTriggerPips: 20, BreakevenPlusPips: 2}
)

// PresetByName ищет профиль по имени из конфига, без учёта регистра.
func PresetByName(name string) (RiskPreset, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "conservative":
		return Conservative, true
	case "balanced":
		return Balanced, true
	case "aggressive":
		return Aggressive, true
	case "scalper":
		return Scalper, true
	case "walker":
		return Walker, true
	}
	return RiskPreset{}, false
}
