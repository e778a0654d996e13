package helper

import (
	"math"
	"strings"
)

// RoundToStep округляет к ближайшему кратному шага (half away from zero).
func RoundToStep(v, step float64) float64 {
	if step <= 0 {
		return v
	}
	k := math.Round(v / step)
	return k * step
}

func RoundDownToTick(px, tick float64) float64 {
	if tick <= 0 {
		return px
	}
	steps := math.Floor(px/tick + 1e-12)
	return steps * tick
}

func RoundUpToTick(px, tick float64) float64 {
	if tick <= 0 {
		return px
	}
	steps := math.Ceil(px/tick - 1e-12)
	return steps * tick
}

// FloorToStep режет вниз с защитой от float-дребезга (для лотов).
func FloorToStep(v, step float64) float64 {
	if step <= 0 {
		return v
	}
	steps := math.Floor(v/step + 1e-9)
	return steps * step
}

func NormSymbol(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

// DigitsFromTick выводит digits из размера тика, если терминал их не отдал.
func DigitsFromTick(tick float64) int {
	if tick <= 0 {
		return 0
	}
	d := int(math.Round(-math.Log10(tick)))
	if d < 0 {
		return 0
	}
	return d
}
