package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"
)

const (
	configFilePathENV = "CONFIG_FILE"
	terminalURLENV    = "TERMINAL_URL"
	terminalTokenENV  = "TERMINAL_TOKEN"
	tokenTelegramENV  = "TELEGRAM_TOKEN"
	databaseDSN       = "DATABASE_DSN"
)

// Config ...
type Config struct {
	Terminal struct {
		URL   string `yaml:"url"`
		Token string `yaml:"token"`
	} `yaml:"terminal"`
	Telegram struct {
		Token  string `yaml:"token"`
		ChatID int64  `yaml:"chat_id"`
	} `yaml:"telegram"`
	DB     string `yaml:"db_dsn"`
	Jaeger struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
	} `yaml:"jaeger"`

	// Минимальный интервал между мутирующими вызовами терминала.
	// Общий на весь процесс (клиентский rate limit).
	OrderSendSpacing time.Duration `yaml:"order_send_spacing"`

	// Дефолты риска
	DefaultRiskPct       float64 `yaml:"risk_pct"`       // 1.0 => 1% equity на сделку
	DefaultDeviationPips float64 `yaml:"deviation_pips"` // допуск проскальзывания
	DefaultMagic         int     `yaml:"magic"`

	// Интервалы фоновых воркеров
	TrailingPollInterval  time.Duration
	BreakevenPollInterval time.Duration
	FillPollInterval      time.Duration

	// Тайминги сценариев
	WaitFillTimeout   time.Duration
	GridManageTimeout time.Duration

	Guards GuardsConfig `yaml:"guards"`

	// Autorun — сценарии, запускаемые сразу после старта движка.
	Autorun []AutorunEntry `yaml:"autorun"`
}

// AutorunEntry — одна запись автозапуска. Scenario: market_one_shot,
// breakout, oco_straddle или grid_dca. Пустой Preset означает "без
// профиля": только явные Lots, без стопов и воркеров.
type AutorunEntry struct {
	Scenario string  `yaml:"scenario"`
	Symbol   string  `yaml:"symbol"`
	Side     string  `yaml:"side"`
	Preset   string  `yaml:"preset"`
	Lots     float64 `yaml:"lots"` // 0 => сайзинг по риску пресета

	OffsetPips     float64 `yaml:"offset_pips"` // breakout и oco_straddle
	Levels         int     `yaml:"levels"`      // grid_dca
	StepPips       float64 `yaml:"step_pips"`   // grid_dca
	WaitTimeoutMin int     `yaml:"wait_timeout_min"`

	Magic   int    `yaml:"magic"`
	Comment string `yaml:"comment"`
}

// GuardsConfig — настройки стандартного пайплайна гардов. Нулевые
// лимиты выключают соответствующий гард.
type GuardsConfig struct {
	MaxSpreadPips float64 `yaml:"max_spread_pips"`

	// RolloverHHMM — серверное время ролловера ("23:00"); пусто = полночь.
	RolloverHHMM      string `yaml:"rollover_hhmm"`
	RolloverBufferMin int    `yaml:"rollover_buffer_min"`

	SessionTZ       string        `yaml:"session_tz"`
	SessionBlackout bool          `yaml:"session_blackout"`
	SessionWindows  []ClockWindow `yaml:"session_windows"`
	SessionWeekdays []int         `yaml:"session_weekdays"` // 0=Sunday

	Deviation struct {
		Mode       string  `yaml:"mode"` // fixed|spread|atr|hybrid_max|hybrid_sum
		FixedPips  float64 `yaml:"fixed_pips"`
		SpreadMult float64 `yaml:"spread_mult"`
		ATRMult    float64 `yaml:"atr_mult"`
		ATRPeriod  int     `yaml:"atr_period"`
		ATRBarMin  int     `yaml:"atr_bar_min"` // размер бара для ATR в минутах
		MinPips    float64 `yaml:"min_pips"`
		MaxPips    float64 `yaml:"max_pips"`
	} `yaml:"deviation"`

	Equity struct {
		MinEquity             float64 `yaml:"min_equity"`
		DailyDrawdownPct      float64 `yaml:"daily_drawdown_pct"`
		DailyLossMoney        float64 `yaml:"daily_loss_money"`
		MaxOpenPositions      int     `yaml:"max_open_positions"`
		MaxPositionsPerSymbol int     `yaml:"max_positions_per_symbol"`
		RiskPerTradeCap       float64 `yaml:"risk_per_trade_cap"`
	} `yaml:"equity"`
}

type ClockWindow struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

func NewConfig() (*Config, error) {
	configFileName := os.Getenv(configFilePathENV)
	if configFileName == "" {
		configFileName = "values_local.yaml"
	}
	file, err := os.Open("configs/" + configFileName)
	if err != nil {
		log.Fatalf("Failed to open config file: %v", err)
	}

	defer func() {
		_ = file.Close()
	}()

	decoder := yaml.NewDecoder(file)
	config := Config{
		OrderSendSpacing:     durationFromEnv("ORDER_SEND_SPACING", "100ms"),
		DefaultRiskPct:       floatFromEnv("RISK_PCT", 1.0),
		DefaultDeviationPips: floatFromEnv("DEVIATION_PIPS", 2.0),
		DefaultMagic:         intFromEnv("MAGIC", 777),

		TrailingPollInterval:  durationFromEnv("TRAILING_POLL_INTERVAL", "300ms"),
		BreakevenPollInterval: durationFromEnv("BREAKEVEN_POLL_INTERVAL", "250ms"),
		FillPollInterval:      durationFromEnv("FILL_POLL_INTERVAL", "200ms"),

		WaitFillTimeout:   durationFromEnv("WAIT_FILL_TIMEOUT", "20m"),
		GridManageTimeout: durationFromEnv("GRID_MANAGE_TIMEOUT", "1h"),
	}
	err = decoder.Decode(&config)
	if err != nil {
		log.Fatalf("Failed to decode config file: %v", err)
	}

	if v := os.Getenv(terminalURLENV); v != "" {
		config.Terminal.URL = v
	}
	if v := os.Getenv(terminalTokenENV); v != "" {
		config.Terminal.Token = v
	}
	if v := os.Getenv(tokenTelegramENV); v != "" {
		config.Telegram.Token = v
	}
	if v := os.Getenv(databaseDSN); v != "" {
		config.DB = v
	}

	return &config, nil
}

func intFromEnv(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func floatFromEnv(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func durationFromEnv(key, def string) time.Duration {
	val := getenvDefault(key, def)
	d, err := time.ParseDuration(val)
	if err != nil {
		d, _ = time.ParseDuration(def)
	}
	return d
}
