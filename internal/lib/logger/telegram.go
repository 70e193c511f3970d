package logger

import (
	"context"
	"fmt"
	"log/slog"
)

// AlertSender delivers an out-of-band ops alert (Telegram admin chat).
type AlertSender interface {
	SendAlert(text string)
}

// SetupTelegramHandler wraps the logger so records at or above minLevel are
// also forwarded to the ops alert channel. Forwarding is fire-and-forget and
// never blocks request handling.
func SetupTelegramHandler(log *slog.Logger, sender AlertSender, minLevel slog.Level) *slog.Logger {
	return slog.New(&telegramHandler{
		next:     log.Handler(),
		sender:   sender,
		minLevel: minLevel,
	})
}

type telegramHandler struct {
	next     slog.Handler
	sender   AlertSender
	minLevel slog.Level
	attrs    []slog.Attr
}

func (h *telegramHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *telegramHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= h.minLevel && h.sender != nil {
		text := fmt.Sprintf("*%s* %s", r.Level.String(), r.Message)
		for _, a := range h.attrs {
			text += fmt.Sprintf("\n%s: %v", a.Key, a.Value)
		}
		r.Attrs(func(a slog.Attr) bool {
			text += fmt.Sprintf("\n%s: %v", a.Key, a.Value)
			return true
		})
		go h.sender.SendAlert(text)
	}
	return h.next.Handle(ctx, r)
}

func (h *telegramHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &telegramHandler{
		next:     h.next.WithAttrs(attrs),
		sender:   h.sender,
		minLevel: h.minLevel,
		attrs:    merged,
	}
}

func (h *telegramHandler) WithGroup(name string) slog.Handler {
	return &telegramHandler{
		next:     h.next.WithGroup(name),
		sender:   h.sender,
		minLevel: h.minLevel,
		attrs:    h.attrs,
	}
}
