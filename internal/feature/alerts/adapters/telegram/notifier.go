// Package telegram delivers alert notifications through the Telegram Bot API.
package telegram

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/go-telegram/bot"

	"market_etl/internal/feature/alerts/domain/entity"
	"market_etl/internal/feature/alerts/usecase"
	"market_etl/internal/shared/errs"
)

// Config は Telegram Bot API の接続設定です。
type Config struct {
	Token     string        // ボットトークン（TELEGRAM_BOT_TOKEN）
	ServerURL string        // API のベースURL。空ならライブラリの既定値（TELEGRAM_SERVER_URL）
	Timeout   time.Duration // リクエストタイムアウト（TELEGRAM_TIMEOUT）
}

// LoadConfig は環境変数から Telegram 設定を読み込みます。
func LoadConfig() Config {
	cfg := Config{
		Token:     os.Getenv("TELEGRAM_BOT_TOKEN"),
		ServerURL: os.Getenv("TELEGRAM_SERVER_URL"),
		Timeout:   10 * time.Second,
	}
	if v := os.Getenv("TELEGRAM_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Timeout = d
		}
	}
	return cfg
}

// Notifier sends notifications to the chat named by Notification.Destination.
type Notifier struct {
	cfg    Config
	client *http.Client

	mu  sync.Mutex
	bot *bot.Bot
}

var _ usecase.Notifier = (*Notifier)(nil)

// NewNotifier は Notifier を作成します。ボットは最初の送信時に初期化されます。
func NewNotifier(cfg Config, client *http.Client) *Notifier {
	return &Notifier{cfg: cfg, client: client}
}

// Send はメッセージを送信します。失敗はすべて ErrAlertDispatch として返します。
func (n *Notifier) Send(ctx context.Context, msg entity.Notification) error {
	if msg.Destination == "" {
		return fmt.Errorf("%w: telegram: empty chat id", errs.ErrAlertDispatch)
	}
	b, err := n.instance()
	if err != nil {
		return fmt.Errorf("%w: telegram: %w", errs.ErrAlertDispatch, err)
	}
	if _, err := b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: msg.Destination,
		Text:   msg.Text,
	}); err != nil {
		return fmt.Errorf("%w: telegram send to %s: %w", errs.ErrAlertDispatch, msg.Destination, err)
	}
	return nil
}

// instance は初期化済みのボットを返します。初期化に失敗した場合は次回の送信で再試行します。
func (n *Notifier) instance() (*bot.Bot, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.bot != nil {
		return n.bot, nil
	}
	if n.cfg.Token == "" {
		return nil, fmt.Errorf("bot token is not configured")
	}

	opts := []bot.Option{bot.WithHTTPClient(n.cfg.Timeout, n.client)}
	if n.cfg.ServerURL != "" {
		opts = append(opts, bot.WithServerURL(n.cfg.ServerURL))
	}
	b, err := bot.New(n.cfg.Token, opts...)
	if err != nil {
		return nil, err
	}
	n.bot = b
	return b, nil
}
