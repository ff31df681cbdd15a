package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"drivel/pkg/channel"
	"drivel/pkg/config"
	"drivel/pkg/stanza"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
)

const channelName = "telegram"
const domain = "telegram"
const messagePreviewLimit = 240
const typingRefreshInterval = 4 * time.Second

// staleAfter marks updates older than this as delayed backlog.
const staleAfter = 2 * time.Minute

// Adapter bridges Telegram updates into stanza events and sends replies back
// as Telegram messages.
//
// Private chats map to chat messages addressed <user id>@telegram/<username>;
// groups map to groupchat messages from <chat id>@telegram/<username>.
type Adapter struct {
	cfg       config.TelegramConfig
	allowFrom map[string]struct{}
	log       *slog.Logger

	mu     sync.RWMutex
	bot    *telego.Bot
	typing map[int64]context.CancelFunc
}

// NewAdapter validates Telegram configuration and constructs an adapter instance.
func NewAdapter(cfg config.TelegramConfig, log *slog.Logger) (*Adapter, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("channels.telegram.token is required")
	}

	if log == nil {
		log = slog.Default()
	}

	return &Adapter{
		cfg:       cfg,
		allowFrom: allowFromSet(cfg.AllowFrom),
		log:       log.With("component", "channel.telegram"),
		typing:    make(map[int64]context.CancelFunc),
	}, nil
}

// Name returns the channel identifier used in stanzas and logs.
func (a *Adapter) Name() string {
	return channelName
}

// Run starts Telegram long polling and delivers text messages to the
// dispatch loop.
func (a *Adapter) Run(ctx context.Context, deliver channel.Deliver) error {
	if deliver == nil {
		return errors.New("deliver is required")
	}

	bot, err := telego.NewBot(strings.TrimSpace(a.cfg.Token))
	if err != nil {
		return fmt.Errorf("initialize telegram bot: %w", err)
	}

	me, err := bot.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("identify telegram bot: %w", err)
	}
	self := stanza.NewAddress(strconv.FormatInt(me.ID, 10), domain, me.Username)

	updates, err := bot.UpdatesViaLongPolling(ctx, nil)
	if err != nil {
		return fmt.Errorf("start long polling: %w", err)
	}

	a.setBot(bot)
	defer a.setBot(nil)
	defer a.stopAllTyping()

	a.log.Info("Telegram channel started", "bot", me.Username)
	deliver(ctx, stanza.NewLifecycle(stanza.EventReady, channelName, self))

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				if err := ctx.Err(); err != nil {
					return nil
				}
				return errors.New("telegram updates channel closed")
			}

			message := update.Message
			if message == nil {
				continue
			}
			if strings.TrimSpace(message.Text) == "" {
				continue
			}
			if message.From == nil {
				a.log.Debug("Ignoring message without sender")
				continue
			}

			senderID := strconv.FormatInt(message.From.ID, 10)
			if !a.senderAllowed(senderID) {
				a.log.Debug("Ignoring message from unauthorized sender", "sender_id", senderID)
				continue
			}

			event := toEvent(*message, self, time.Now())
			event.Metadata["update_id"] = strconv.Itoa(update.UpdateID)

			a.log.Info("Received message", "chat_id", message.Chat.ID, "sender_id", senderID, "kind", event.Kind, "content", previewText(event.Body))

			a.startTypingIndicator(ctx, bot, message.Chat.ID)
			if !deliver(ctx, event) {
				a.stopTyping(message.Chat.ID)
				return nil
			}
		}
	}
}

// Send delivers one reply to the chat addressed by reply.To.
func (a *Adapter) Send(ctx context.Context, reply stanza.Reply) error {
	bot := a.currentBot()
	if bot == nil {
		return channel.ErrNotConnected
	}

	chatID, err := chatIDFromAddress(reply.To)
	if err != nil {
		return err
	}
	a.stopTyping(chatID)

	if reply.Kind == stanza.KindSubscribed {
		a.log.Debug("Ignoring subscription approval, telegram has no subscriptions", "to", reply.To)
		return nil
	}

	params := tu.Message(tu.ID(chatID), strings.TrimSpace(reply.Body))
	if markup := strings.TrimSpace(reply.Markup); markup != "" {
		params = tu.Message(tu.ID(chatID), markup).WithParseMode(telego.ModeHTML)
	}

	a.log.Info("Sending message", "chat_id", chatID, "content", previewText(params.Text))
	if _, err := bot.SendMessage(ctx, params); err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}

	return nil
}

// toEvent converts a Telegram message into a stanza event.
func toEvent(message telego.Message, self stanza.Address, now time.Time) stanza.Event {
	username := message.From.Username
	if username == "" {
		username = strconv.FormatInt(message.From.ID, 10)
	}

	kind := stanza.KindChat
	from := stanza.NewAddress(strconv.FormatInt(message.From.ID, 10), domain, username)
	if message.Chat.Type == telego.ChatTypeGroup || message.Chat.Type == telego.ChatTypeSupergroup {
		kind = stanza.KindGroupchat
		from = stanza.NewAddress(strconv.FormatInt(message.Chat.ID, 10), domain, username)
	}

	event := stanza.NewMessage(kind, from, self, strings.TrimSpace(message.Text))
	event.Channel = channelName
	event.Metadata = map[string]string{
		"chat_id":    strconv.FormatInt(message.Chat.ID, 10),
		"message_id": strconv.Itoa(message.MessageID),
	}
	if message.Date > 0 && now.Sub(time.Unix(message.Date, 0)) > staleAfter {
		event.Delayed = true
	}

	return event
}

// chatIDFromAddress extracts the numeric chat id from a reply address.
//
// Private chat ids equal the user id, so the node is the chat in both kinds.
func chatIDFromAddress(address stanza.Address) (int64, error) {
	node := address.Node()
	chatID, err := strconv.ParseInt(node, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("telegram address %q has no chat id: %w", address, err)
	}

	return chatID, nil
}

// senderAllowed checks whether a sender is permitted by allow_from config.
//
// When no allow list is configured, all senders are accepted.
func (a *Adapter) senderAllowed(senderID string) bool {
	if len(a.allowFrom) == 0 {
		return true
	}

	_, ok := a.allowFrom[strings.TrimSpace(senderID)]
	return ok
}

// allowFromSet normalizes allow_from values into a lookup set.
func allowFromSet(allowFrom []string) map[string]struct{} {
	if len(allowFrom) == 0 {
		return nil
	}

	allowed := make(map[string]struct{}, len(allowFrom))
	for _, value := range allowFrom {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		allowed[trimmed] = struct{}{}
	}

	if len(allowed) == 0 {
		return nil
	}

	return allowed
}

// previewText returns a bounded log-safe preview of message text.
func previewText(text string) string {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) <= messagePreviewLimit {
		return trimmed
	}

	return trimmed[:messagePreviewLimit] + "..."
}

func (a *Adapter) setBot(bot *telego.Bot) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.bot = bot
}

func (a *Adapter) currentBot() *telego.Bot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.bot
}

// startTypingIndicator sends a typing action and refreshes it until a reply
// for the chat is sent or the typing window elapses.
func (a *Adapter) startTypingIndicator(ctx context.Context, bot *telego.Bot, chatID int64) {
	a.stopTyping(chatID)

	typingCtx, cancel := context.WithTimeout(ctx, 3*typingRefreshInterval)

	a.mu.Lock()
	a.typing[chatID] = cancel
	a.mu.Unlock()

	sendTyping := func() {
		if err := bot.SendChatAction(typingCtx, tu.ChatAction(tu.ID(chatID), telego.ChatActionTyping)); err != nil && typingCtx.Err() == nil {
			a.log.Debug("Failed to send typing indicator", "chat_id", chatID, "error", err)
		}
	}

	go func() {
		sendTyping()

		ticker := time.NewTicker(typingRefreshInterval)
		defer ticker.Stop()

		for {
			select {
			case <-typingCtx.Done():
				return
			case <-ticker.C:
				sendTyping()
			}
		}
	}()
}

func (a *Adapter) stopTyping(chatID int64) {
	a.mu.Lock()
	cancel, ok := a.typing[chatID]
	delete(a.typing, chatID)
	a.mu.Unlock()

	if ok {
		cancel()
	}
}

func (a *Adapter) stopAllTyping() {
	a.mu.Lock()
	pending := a.typing
	a.typing = make(map[int64]context.CancelFunc)
	a.mu.Unlock()

	for _, cancel := range pending {
		cancel()
	}
}
