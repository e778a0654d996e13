package guards

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"trade_engine/internal/models"
	gatewayservice "trade_engine/internal/modules/gateway/service"
)

// SessionWindow — окно "HH:MM"-"HH:MM". To меньше From означает окно
// через полночь (22:00-03:00).
type SessionWindow struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

type SessionConfig struct {
	Windows  []SessionWindow `yaml:"windows"`
	Weekdays []time.Weekday  `yaml:"weekdays"` // пусто = любой день
	// TZ — IANA-зона либо "server": тогда время берём у терминала.
	TZ string `yaml:"tz"`
	// Blackout инвертирует смысл окон: внутри окна торговля запрещена.
	Blackout bool `yaml:"blackout"`
}

// SessionGuard пускает сделку только в разрешённые торговые окна.
type SessionGuard struct {
	gw  *gatewayservice.Gateway
	cfg SessionConfig
	loc *time.Location

	windows [][2]int // минуты от полуночи

	nowFn func() time.Time
}

func NewSessionGuard(gw *gatewayservice.Gateway, cfg SessionConfig) (*SessionGuard, error) {
	g := &SessionGuard{gw: gw, cfg: cfg, loc: time.Local, nowFn: time.Now}

	if cfg.TZ != "" && cfg.TZ != "server" {
		loc, err := time.LoadLocation(cfg.TZ)
		if err != nil {
			return nil, fmt.Errorf("session tz %q: %w", cfg.TZ, err)
		}
		g.loc = loc
	}

	for _, w := range cfg.Windows {
		from, err := parseClock(w.From)
		if err != nil {
			return nil, err
		}
		to, err := parseClock(w.To)
		if err != nil {
			return nil, err
		}
		g.windows = append(g.windows, [2]int{from, to})
	}
	return g, nil
}

func (g *SessionGuard) Name() string { return "session" }

func (g *SessionGuard) Check(ctx context.Context, cp *Checkpoint) models.GuardDecision {
	now, source := g.currentTime(ctx)
	meta := map[string]any{
		"now":    now.Format("Mon 15:04"),
		"source": source,
	}

	if len(g.cfg.Weekdays) > 0 && !containsWeekday(g.cfg.Weekdays, now.Weekday()) {
		return models.Block(models.StatusSkippedSession, "weekday outside schedule", meta)
	}

	if len(g.windows) == 0 {
		return models.Allow(meta)
	}

	minute := now.Hour()*60 + now.Minute()
	inside := false
	for _, w := range g.windows {
		if inWindow(minute, w[0], w[1]) {
			inside = true
			break
		}
	}

	if g.cfg.Blackout {
		if inside {
			return models.Block(models.StatusSkippedSession, "inside blackout window", meta)
		}
		return models.Allow(meta)
	}
	if !inside {
		return models.Block(models.StatusSkippedSession, "outside trading windows", meta)
	}
	return models.Allow(meta)
}

func (g *SessionGuard) currentTime(ctx context.Context) (time.Time, string) {
	if g.cfg.TZ == "server" && g.gw != nil && g.gw.HasServerClock() {
		if t, err := g.gw.ServerTime(ctx); err == nil {
			return t, "server"
		}
		// Серверные часы недоступны, живём по локальным.
	}
	return g.nowFn().In(g.loc), "local"
}

// inWindow: границы [from, to), окно через полночь поддерживается.
func inWindow(minute, from, to int) bool {
	if from == to {
		return true
	}
	if from < to {
		return minute >= from && minute < to
	}
	return minute >= from || minute < to
}

func parseClock(s string) (int, error) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("bad clock value %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("bad clock value %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("bad clock value %q", s)
	}
	return h*60 + m, nil
}

func containsWeekday(days []time.Weekday, d time.Weekday) bool {
	for _, x := range days {
		if x == d {
			return true
		}
	}
	return false
}
