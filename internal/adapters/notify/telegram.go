package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"

	"github.com/alejandrodnm/polyarb/internal/domain"
)

// Minimum gap between messages to one chat (~30/min before a 429).
const telegramSendInterval = 2 * time.Second

const telegramQueueSize = 100

// sender is the part of tgbotapi.BotAPI the notifier uses.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram sends events to a chat. Notify never blocks: messages are queued
// and one goroutine sends them within Telegram's rate limit. A full queue
// drops the message.
type Telegram struct {
	bot     sender
	chatID  int64
	events  map[domain.EventType]bool // nil = todos
	limiter *rate.Limiter

	mu     sync.Mutex
	closed bool
	queue  chan string
	done   chan struct{}
}

// NewTelegram connects to the bot API. events limits the types sent; empty
// sends everything.
func NewTelegram(token string, chatID int64, events []domain.EventType) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("notify.NewTelegram: %w", err)
	}
	bot.Debug = false
	slog.Info("telegram: notifier initialized", "bot", bot.Self.UserName, "chat_id", chatID)
	return newTelegram(bot, chatID, events, telegramSendInterval), nil
}

func newTelegram(bot sender, chatID int64, events []domain.EventType, interval time.Duration) *Telegram {
	t := &Telegram{
		bot:     bot,
		chatID:  chatID,
		limiter: rate.NewLimiter(rate.Every(interval), 1),
		queue:   make(chan string, telegramQueueSize),
		done:    make(chan struct{}),
	}
	if len(events) > 0 {
		t.events = make(map[domain.EventType]bool, len(events))
		for _, e := range events {
			t.events[e] = true
		}
	}
	go t.run()
	return t
}

// Notify queues the event when its type is enabled.
func (t *Telegram) Notify(_ context.Context, e domain.Event) error {
	if t.events != nil && !t.events[e.Type] {
		return nil
	}
	text := formatEvent(e)
	if e.Sport != "" {
		text = "[" + e.Sport + "] " + text
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return fmt.Errorf("telegram: closed, dropped %s", e.Type)
	}
	select {
	case t.queue <- text:
		return nil
	default:
		return fmt.Errorf("telegram: queue full, dropped %s", e.Type)
	}
}

// Close stops accepting messages and waits for the queue to drain.
func (t *Telegram) Close() {
	t.mu.Lock()
	if !t.closed {
		t.closed = true
		close(t.queue)
	}
	t.mu.Unlock()
	<-t.done
}

func (t *Telegram) run() {
	defer close(t.done)
	for text := range t.queue {
		// Background: the limiter only spaces sends and is never cancelled.
		_ = t.limiter.Wait(context.Background())
		msg := tgbotapi.NewMessage(t.chatID, text)
		if _, err := t.bot.Send(msg); err != nil {
			slog.Warn("telegram: send failed", "err", err)
		}
	}
}
