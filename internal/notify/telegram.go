package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"inspection-service/internal/config"
	"inspection-service/internal/domain/inspection"
)

var ErrNotConfigured = errors.New("telegram notifier is not configured")

// Telegram posts finished reports to a single chat.
type Telegram struct {
	api    *tgbotapi.BotAPI
	chatID int64
	log    zerolog.Logger
}

func NewTelegram(cfg config.TelegramConfig, log zerolog.Logger) (*Telegram, error) {
	if strings.TrimSpace(cfg.Token) == "" || cfg.ChatID == 0 {
		return nil, ErrNotConfigured
	}
	endpoint := cfg.APIEndpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}

	api, err := tgbotapi.NewBotAPIWithAPIEndpoint(cfg.Token, endpoint)
	if err != nil {
		return nil, fmt.Errorf("telegram auth: %w", err)
	}

	log.Info().Str("account", api.Self.UserName).Int64("chat_id", cfg.ChatID).Msg("telegram notifier authorized")

	return &Telegram{api: api, chatID: cfg.ChatID, log: log}, nil
}

// NotifyReport sends the PDF with a short summary as caption.
func (t *Telegram) NotifyReport(ctx context.Context, rec inspection.Record, fileName string, pdf []byte) error {
	if t == nil || t.api == nil {
		return ErrNotConfigured
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	doc := tgbotapi.NewDocument(t.chatID, tgbotapi.FileBytes{Name: fileName, Bytes: pdf})
	doc.Caption = Caption(rec)

	if _, err := t.api.Send(doc); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

func Caption(rec inspection.Record) string {
	vehicle := rec.Vehicle.WithDefaults()
	var b strings.Builder
	fmt.Fprintf(&b, "Inspection %s: %s\n", rec.Mode, rec.Verdict)
	fmt.Fprintf(&b, "VIN: %s\n", vehicle.VIN)
	fmt.Fprintf(&b, "Vehicle: %s\n", rec.Vehicle.MakeModel())
	fmt.Fprintf(&b, "Unique defects: %d, total: %d, images: %d", rec.UniqueDefects, rec.TotalDefects, rec.ImageCount)
	return b.String()
}
