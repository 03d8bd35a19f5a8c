package telegram

import (
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Connect authenticates with the Bot API and routes the library's own
// logging into logger.
func Connect(token string, logger *slog.Logger) (*tgbotapi.BotAPI, error) {
	if err := tgbotapi.SetLogger(slog.NewLogLogger(logger.Handler(), slog.LevelWarn)); err != nil {
		return nil, fmt.Errorf("telegram logger: %w", err)
	}
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("connect telegram: %w", err)
	}
	logger.Info("telegram bot authorized", "username", api.Self.UserName)
	return api, nil
}

// StartPolling removes any webhook, drops pending updates and opens a
// long-polling channel.
func StartPolling(api *tgbotapi.BotAPI, timeoutSeconds int) (tgbotapi.UpdatesChannel, error) {
	if _, err := api.Request(tgbotapi.DeleteWebhookConfig{DropPendingUpdates: true}); err != nil {
		return nil, fmt.Errorf("delete webhook: %w", err)
	}
	u := tgbotapi.NewUpdate(0)
	u.Timeout = timeoutSeconds
	return api.GetUpdatesChan(u), nil
}

// RegisterWebhook points Telegram at url.
func RegisterWebhook(api *tgbotapi.BotAPI, url string) error {
	wh, err := tgbotapi.NewWebhook(url)
	if err != nil {
		return fmt.Errorf("webhook config: %w", err)
	}
	wh.DropPendingUpdates = true
	if _, err := api.Request(wh); err != nil {
		return fmt.Errorf("set webhook: %w", err)
	}
	return nil
}
