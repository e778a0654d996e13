package guards

import (
	"context"
	"time"

	"trade_engine/internal/models"
	gatewayservice "trade_engine/internal/modules/gateway/service"
)

// RolloverGuard не даёт торговать в окне вокруг времени ролловера,
// когда свопы начисляются и спреды разъезжаются. У большинства брокеров
// это серверная полночь, но бывает и "23:00".
type RolloverGuard struct {
	gw       *gatewayservice.Gateway
	rollover time.Duration // смещение момента ролловера от полуночи
	buffer   time.Duration

	nowFn func() time.Time
}

func NewRolloverGuard(gw *gatewayservice.Gateway, hhmm string, buffer time.Duration) (*RolloverGuard, error) {
	var rollover time.Duration
	if hhmm != "" {
		min, err := parseClock(hhmm)
		if err != nil {
			return nil, err
		}
		rollover = time.Duration(min) * time.Minute
	}
	return &RolloverGuard{gw: gw, rollover: rollover, buffer: buffer, nowFn: time.Now}, nil
}

func (g *RolloverGuard) Name() string { return "rollover" }

func (g *RolloverGuard) Check(ctx context.Context, cp *Checkpoint) models.GuardDecision {
	if g.buffer <= 0 {
		return models.Allow(nil)
	}

	now := g.nowFn()
	source := "local"
	if g.gw != nil && g.gw.HasServerClock() {
		if t, err := g.gw.ServerTime(ctx); err == nil {
			now = t
			source = "server"
		}
	}

	sinceMidnight := time.Duration(now.Hour())*time.Hour +
		time.Duration(now.Minute())*time.Minute +
		time.Duration(now.Second())*time.Second

	// Расстояние до ролловера по круглосуточному циферблату.
	dist := sinceMidnight - g.rollover
	if dist < 0 {
		dist = -dist
	}
	if wrap := 24*time.Hour - dist; wrap < dist {
		dist = wrap
	}

	meta := map[string]any{
		"now":      now.Format("15:04:05"),
		"source":   source,
		"rollover": (time.Time{}.Add(g.rollover)).Format("15:04"),
		"buffer":   g.buffer.String(),
	}
	if dist <= g.buffer {
		return models.Block(models.StatusSkippedRollover, "inside rollover window", meta)
	}
	return models.Allow(meta)
}
