package bot

import (
	"fmt"
	"log/slog"
	"strings"

	tgbotapi "github.com/PaulSonOfLars/gotgbot/v2"

	"PledgePay/internal/lib/sl"
)

// TgBot pushes operational alerts to the admin's Telegram chat. It only
// sends; the bot never polls for updates.
type TgBot struct {
	log     *slog.Logger
	api     *tgbotapi.Bot
	adminId int64
}

func NewTgBot(apiKey string, adminId int64, log *slog.Logger) (*TgBot, error) {
	api, err := tgbotapi.NewBot(apiKey, nil)
	if err != nil {
		return nil, fmt.Errorf("creating api instance: %v", err)
	}

	return &TgBot{
		log:     log.With(sl.Module("tgbot")),
		api:     api,
		adminId: adminId,
	}, nil
}

// SendAlert delivers an alert to the admin chat. Markdown that fails to
// parse falls back to plain text.
func (t *TgBot) SendAlert(text string) {
	sanitized := sanitize(strings.ReplaceAll(text, "**", "*"))
	if sanitized == "" {
		t.log.Debug("empty alert text")
		return
	}

	_, err := t.api.SendMessage(t.adminId, sanitized, &tgbotapi.SendMessageOpts{
		ParseMode: "MarkdownV2",
	})
	if err != nil {
		t.log.With(
			slog.Int64("id", t.adminId),
		).Warn("sending alert", sl.Err(err))
		if _, err = t.api.SendMessage(t.adminId, sanitized, &tgbotapi.SendMessageOpts{}); err != nil {
			t.log.With(
				slog.Int64("id", t.adminId),
			).Error("sending safe alert", sl.Err(err))
		}
	}
}

// sanitize escapes Telegram MarkdownV2 reserved characters, leaving * for
// bold emphasis.
func sanitize(input string) string {
	const reservedChars = "\\`_{}#+-.!|()[]"

	var b strings.Builder
	for _, ch := range input {
		if strings.ContainsRune(reservedChars, ch) {
			b.WriteRune('\\')
		}
		b.WriteRune(ch)
	}
	return b.String()
}
