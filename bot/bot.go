// Package bot relays Telegram messages between a household and its plants.
package bot

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/evkuzin/planthealth/assistant"
	"github.com/evkuzin/planthealth/config"
	"github.com/evkuzin/planthealth/storage"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
)

const (
	updateTimeout = 60
	sendRetries   = 1
)

// API is the part of *tgbotapi.BotAPI the bot uses.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Renderer builds the PDF chart report of a plant.
type Renderer interface {
	RenderPDF(ctx context.Context, plantID uint) ([]byte, error)
}

var buttons = tgbotapi.NewReplyKeyboard(
	tgbotapi.NewKeyboardButtonRow(
		tgbotapi.NewKeyboardButton("/status"),
		tgbotapi.NewKeyboardButton("/stats"),
		tgbotapi.NewKeyboardButton("/plants"),
	),
)

type conversation struct {
	messages   []string
	lastActive time.Time
}

type Bot struct {
	api       API
	storage   storage.Adapter
	assistant assistant.Assistant
	renderer  Renderer
	logger    *logrus.Logger

	chatID         int64
	notifyInterval time.Duration
	cooldown       time.Duration
	retryDelay     time.Duration
	historyLength  int
	historyExpiry  time.Duration

	// mu guards history and lastNotified, notifications run in their own
	// goroutine
	mu           sync.Mutex
	history      map[uint]*conversation
	lastNotified map[uint]time.Time
	now          func() time.Time
}

// New wires the bot. ai and renderer may be nil, the matching features
// then answer that they are unavailable.
func New(conf *config.Config, api API, store storage.Adapter, ai assistant.Assistant, renderer Renderer, logger *logrus.Logger) *Bot {
	return &Bot{
		api:            api,
		storage:        store,
		assistant:      ai,
		renderer:       renderer,
		logger:         logger,
		chatID:         conf.Telegram.ChatID,
		notifyInterval: conf.Telegram.NotifyInterval,
		cooldown:       conf.Telegram.Cooldown,
		retryDelay:     conf.Telegram.RetryDelay,
		historyLength:  conf.Telegram.HistoryLength,
		historyExpiry:  conf.Telegram.HistoryExpiry,
		history:        make(map[uint]*conversation),
		lastNotified:   make(map[uint]time.Time),
		now:            time.Now,
	}
}

// Start long-polls Telegram and handles updates until ctx is done.
func (b *Bot) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = updateTimeout
	updates := b.api.GetUpdatesChan(u)

	if b.notifyInterval > 0 && b.assistant != nil {
		go b.notifyLoop(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			b.logger.Info("Stopping telegram bot")
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.HandleUpdate(ctx, update)
		}
	}
}

// HandleUpdate answers a single update. Commands get templated replies, any
// other text is a message to one of the plants.
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil {
		return
	}
	user := ""
	if msg.From != nil {
		user = msg.From.UserName
	}
	b.logger.Infof("[%s] %s", user, msg.Text)

	if !msg.IsCommand() {
		b.handleText(ctx, msg)
		return
	}
	switch msg.Command() {
	case "start":
		b.reply(msg, startText)
	case "help":
		b.reply(msg, helpText)
	case "plants":
		b.cmdPlants(ctx, msg)
	case "status":
		b.cmdStatus(ctx, msg)
	case "stats":
		b.cmdStats(ctx, msg)
	case "addplant":
		b.cmdAddPlant(ctx, msg)
	case "report":
		b.cmdReport(ctx, msg)
	default:
		b.reply(msg, "Unknown command. Try /help")
	}
}

func (b *Bot) reply(msg *tgbotapi.Message, text string) {
	m := tgbotapi.NewMessage(msg.Chat.ID, text)
	m.ReplyToMessageID = msg.MessageID
	m.ReplyMarkup = buttons
	_ = b.send(m)
}

// sendPlantMessage sends text in the name of a plant, formatted as MarkdownV2.
func (b *Bot) sendPlantMessage(chatID int64, plantName, text string) error {
	m := tgbotapi.NewMessage(chatID, formatPlantMessage(plantName, text))
	m.ParseMode = tgbotapi.ModeMarkdownV2
	return b.send(m)
}

func formatPlantMessage(plantName, text string) string {
	return "🌱 *" + tgbotapi.EscapeText(tgbotapi.ModeMarkdownV2, plantName) + "*:\n" +
		tgbotapi.EscapeText(tgbotapi.ModeMarkdownV2, text)
}

// send retries a failed request once after retryDelay.
func (b *Bot) send(c tgbotapi.Chattable) error {
	bo := backoff.WithMaxRetries(backoff.NewConstantBackOff(b.retryDelay), sendRetries)
	err := backoff.RetryNotify(func() error {
		_, err := b.api.Send(c)
		return err
	}, bo, func(err error, d time.Duration) {
		b.logger.Warnf("cannot send message, retrying in %s: %s", d, err)
	})
	if err != nil {
		b.logger.Errorf("cannot send message: %s", err)
	}
	return err
}
