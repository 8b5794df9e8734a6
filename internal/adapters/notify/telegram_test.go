package notify

import (
	"context"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polyarb/internal/domain"
)

type fakeBot struct {
	mu   sync.Mutex
	sent []tgbotapi.MessageConfig
}

func (f *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, m)
	}
	return tgbotapi.Message{}, nil
}

func TestTelegram_FiltersAndDelivers(t *testing.T) {
	bot := &fakeBot{}
	tg := newTelegram(bot, 42, []domain.EventType{domain.EventFilled, domain.EventKillSwitch}, time.Millisecond)

	ctx := context.Background()
	require.NoError(t, tg.Notify(ctx, domain.Event{Type: domain.EventOpportunity, MarketID: "m1"}))
	require.NoError(t, tg.Notify(ctx, domain.Event{Type: domain.EventFilled, Sport: "nba", MarketID: "m1", Question: "Lakers vs. Celtics"}))
	require.NoError(t, tg.Notify(ctx, domain.Event{Type: domain.EventKillSwitch, Message: "daily loss limit"}))
	tg.Close()

	bot.mu.Lock()
	defer bot.mu.Unlock()
	require.Len(t, bot.sent, 2, "opportunity events are filtered out")
	assert.Equal(t, int64(42), bot.sent[0].ChatID)
	assert.Contains(t, bot.sent[0].Text, "[nba] FILLED Lakers vs. Celtics")
	assert.Contains(t, bot.sent[1].Text, "KILL SWITCH daily loss limit")
}

func TestTelegram_AllEventsWhenUnfiltered(t *testing.T) {
	bot := &fakeBot{}
	tg := newTelegram(bot, 1, nil, time.Millisecond)

	require.NoError(t, tg.Notify(context.Background(), domain.Event{Type: domain.EventOpportunity, MarketID: "m1"}))
	tg.Close()
	tg.Close()

	bot.mu.Lock()
	defer bot.mu.Unlock()
	assert.Len(t, bot.sent, 1)
}

func TestTelegram_NotifyAfterClose(t *testing.T) {
	tg := newTelegram(&fakeBot{}, 1, nil, time.Millisecond)
	tg.Close()
	assert.Error(t, tg.Notify(context.Background(), domain.Event{Type: domain.EventError}))
}
