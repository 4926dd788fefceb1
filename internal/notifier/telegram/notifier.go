// Package telegram delivers notifications as Telegram bot messages.
package telegram

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/pricewatch/internal/alert"
	"github.com/JakeFAU/pricewatch/internal/notifier"
)

// DefaultAPIEndpoint is the Bot API URL template used when Config.APIEndpoint is empty.
const DefaultAPIEndpoint = tgbotapi.APIEndpoint

// Config configures the bot client.
type Config struct {
	Token string
	// APIEndpoint is a URL template with two %s verbs for the token and method.
	APIEndpoint string
	Timeout     time.Duration
}

// Notifier sends alerts to the chat identified by the rule owner. Owners are
// either numeric chat ids or @channel usernames.
type Notifier struct {
	api    *tgbotapi.BotAPI
	logger *zap.Logger
}

// New authenticates the bot with getMe and returns a Notifier.
func New(cfg Config, logger *zap.Logger) (*Notifier, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("%w: telegram token is required", alert.ErrConfiguration)
	}
	endpoint := cfg.APIEndpoint
	if endpoint == "" {
		endpoint = DefaultAPIEndpoint
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	api, err := tgbotapi.NewBotAPIWithClient(cfg.Token, endpoint, &http.Client{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("connect telegram bot: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("telegram bot authorized", zap.String("username", api.Self.UserName))
	return &Notifier{api: api, logger: logger}, nil
}

// Notify sends the rendered alert text to the owner's chat.
func (n *Notifier) Notify(ctx context.Context, note alert.Notification) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", alert.ErrDelivery, err)
	}
	msg, err := message(note.Owner, notifier.Text(note))
	if err != nil {
		return err
	}
	if _, err := n.api.Send(msg); err != nil {
		n.logger.Warn("telegram send failed",
			zap.String("owner", note.Owner),
			zap.String("rule_id", note.Rule.ID),
			zap.Error(err),
		)
		return fmt.Errorf("%w: telegram send: %w", alert.ErrDelivery, err)
	}
	n.logger.Debug("telegram message sent", zap.String("owner", note.Owner), zap.String("rule_id", note.Rule.ID))
	return nil
}

func message(owner, text string) (tgbotapi.MessageConfig, error) {
	owner = strings.TrimSpace(owner)
	if strings.HasPrefix(owner, "@") && len(owner) > 1 {
		return tgbotapi.NewMessageToChannel(owner, text), nil
	}
	chatID, err := strconv.ParseInt(owner, 10, 64)
	if err != nil {
		return tgbotapi.MessageConfig{}, fmt.Errorf("%w: owner %q is not a telegram chat id", alert.ErrDelivery, owner)
	}
	return tgbotapi.NewMessage(chatID, text), nil
}
