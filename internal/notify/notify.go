package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	tgbot "github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
	"go.uber.org/zap"

	"github.com/mohammedemad618/amir-sub000/internal/scheduler"
	"github.com/mohammedemad618/amir-sub000/internal/storage/models"
	"github.com/mohammedemad618/amir-sub000/pkg/logger"
	"github.com/mohammedemad618/amir-sub000/pkg/metrics"
)

const (
	typeBookingCreated = "booking_created"
	typeReminder       = "reminder"
)

// messageClient is the part of *tgbot.Bot the sender uses
type messageClient interface {
	SendMessage(ctx context.Context, params *tgbot.SendMessageParams) (*tgmodels.Message, error)
}

// TelegramSender posts booking notices to the administrators' chat
type TelegramSender struct {
	client messageClient
	chatID int64
	loc    *time.Location
	logger *zap.Logger
}

var _ scheduler.NotificationSender = (*TelegramSender)(nil)

// NewTelegramSender connects a bot with token
func NewTelegramSender(token string, chatID int64, loc *time.Location, log *zap.Logger) (*TelegramSender, error) {
	b, err := tgbot.New(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return newTelegramSender(b, chatID, loc, log), nil
}

func newTelegramSender(client messageClient, chatID int64, loc *time.Location, log *zap.Logger) *TelegramSender {
	if loc == nil {
		loc = time.UTC
	}
	return &TelegramSender{
		client: client,
		chatID: chatID,
		loc:    loc,
		logger: logger.OrNop(log),
	}
}

func (s *TelegramSender) NotifyBookingCreated(ctx context.Context, booking *models.Booking) error {
	return s.send(ctx, typeBookingCreated, BookingCreatedText(booking, s.loc))
}

func (s *TelegramSender) SendReminder(ctx context.Context, booking *models.Booking) error {
	return s.send(ctx, typeReminder, ReminderText(booking, s.loc))
}

func (s *TelegramSender) send(ctx context.Context, kind, text string) error {
	_, err := s.client.SendMessage(ctx, &tgbot.SendMessageParams{
		ChatID: s.chatID,
		Text:   text,
	})
	if err != nil {
		metrics.RecordNotification(kind, "error")
		return fmt.Errorf("failed to send %s notification: %w", kind, err)
	}
	metrics.RecordNotification(kind, "ok")
	s.logger.Debug("Notification sent", zap.String("type", kind), zap.Int64("chat_id", s.chatID))
	return nil
}

// LogSender writes notices to the log instead of delivering them
type LogSender struct {
	logger *zap.Logger
	loc    *time.Location
}

var _ scheduler.NotificationSender = (*LogSender)(nil)

func NewLogSender(log *zap.Logger, loc *time.Location) *LogSender {
	if loc == nil {
		loc = time.UTC
	}
	return &LogSender{logger: logger.OrNop(log), loc: loc}
}

func (s *LogSender) NotifyBookingCreated(_ context.Context, booking *models.Booking) error {
	metrics.RecordNotification(typeBookingCreated, "logged")
	s.logger.Info("Booking created notice",
		zap.String("booking_id", booking.ID),
		zap.String("text", BookingCreatedText(booking, s.loc)))
	return nil
}

func (s *LogSender) SendReminder(_ context.Context, booking *models.Booking) error {
	metrics.RecordNotification(typeReminder, "logged")
	s.logger.Info("Appointment reminder",
		zap.String("booking_id", booking.ID),
		zap.String("text", ReminderText(booking, s.loc)))
	return nil
}

// BookingCreatedText formats the new-booking notice
func BookingCreatedText(b *models.Booking, loc *time.Location) string {
	var sb strings.Builder
	sb.WriteString("حجز جديد\n")
	writeDetails(&sb, b, loc)
	return sb.String()
}

// ReminderText formats the upcoming-appointment reminder
func ReminderText(b *models.Booking, loc *time.Location) string {
	var sb strings.Builder
	sb.WriteString("تذكير بموعد قادم\n")
	writeDetails(&sb, b, loc)
	return sb.String()
}

func writeDetails(sb *strings.Builder, b *models.Booking, loc *time.Location) {
	who := b.UserName
	if who == "" {
		who = b.UserID
	}
	fmt.Fprintf(sb, "المستخدم: %s", who)
	if b.UserEmail != "" {
		fmt.Fprintf(sb, " <%s>", b.UserEmail)
	}
	sb.WriteString("\n")
	if b.Slot != nil {
		start := b.Slot.StartAt.In(loc)
		end := b.Slot.EndAt.In(loc)
		fmt.Fprintf(sb, "الموعد: %s %s-%s\n", start.Format("2006-01-02"), start.Format("15:04"), end.Format("15:04"))
	}
	fmt.Fprintf(sb, "رقم الحجز: %s", b.ID)
	if b.Note != "" {
		fmt.Fprintf(sb, "\nملاحظة: %s", b.Note)
	}
}
