package notify

import (
	"fmt"

	"trade_engine/internal/modules/config"
	"trade_engine/pkg/logger"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type Notifier interface {
	Send(msg string)
	Sendf(format string, args ...any)
}

// Telegram — пассивный нотифайер торговых событий. Ничего не читает,
// только шлёт в один чат.
type Telegram struct {
	bot    *tgbot.BotAPI
	chatID int64
}

// New возвращает телеграм-нотифайер либо no-op, когда токен не задан.
// Ошибка инициализации бота не валит процесс: торговля важнее алертов.
func New(cfg *config.Config) Notifier {
	if cfg.Telegram.Token == "" || cfg.Telegram.ChatID == 0 {
		return Nop{}
	}
	b, err := tgbot.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		logger.Warn("notify: telegram init failed: %v", err)
		return Nop{}
	}
	return &Telegram{bot: b, chatID: cfg.Telegram.ChatID}
}

func (t *Telegram) Send(msg string) {
	if t == nil || t.bot == nil || t.chatID == 0 {
		return
	}
	if _, err := t.bot.Send(tgbot.NewMessage(t.chatID, msg)); err != nil {
		logger.Warn("notify: send failed: %v", err)
	}
}

func (t *Telegram) Sendf(format string, args ...any) { t.Send(fmt.Sprintf(format, args...)) }

// Nop молчит. Подставляется без токена и в тестах.
type Nop struct{}

func (Nop) Send(string)          {}
func (Nop) Sendf(string, ...any) {}
