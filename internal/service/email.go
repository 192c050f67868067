package service

import (
	"context"
	"fmt"
	"time"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"library-ledger-backend/internal/logger"
)

const dateLayout = "Mon, Jan 2 2006 15:04 MST"

type mailSender interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

type sendGridEmailService struct {
	client    mailSender
	fromEmail string
	fromName  string
}

func NewSendGridEmailService(apiKey, fromEmail, fromName string) EmailService {
	return &sendGridEmailService{
		client:    sendgrid.NewSendClient(apiKey),
		fromEmail: fromEmail,
		fromName:  fromName,
	}
}

func (s *sendGridEmailService) send(ctx context.Context, to, toName, subject, body string) error {
	from := mail.NewEmail(s.fromName, s.fromEmail)
	message := mail.NewSingleEmail(from, subject, mail.NewEmail(toName, to), body, "")

	logger.ExternalServiceCall("SendGrid", "Send", "subject", subject)
	response, err := s.client.SendWithContext(ctx, message)
	if err == nil && response.StatusCode >= 400 {
		err = fmt.Errorf("sendgrid error: status %d, body: %s", response.StatusCode, response.Body)
	}
	logger.ExternalServiceResult("SendGrid", "Send", err, "subject", subject)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

func (s *sendGridEmailService) SendOverdueReminder(ctx context.Context, to, name, unitLabel string, dueAt time.Time, fineCents int32) error {
	subject, body := overdueReminder(name, unitLabel, dueAt, fineCents)
	return s.send(ctx, to, name, subject, body)
}

func (s *sendGridEmailService) SendDueSoonReminder(ctx context.Context, to, name, unitLabel string, dueAt time.Time) error {
	subject, body := dueSoonReminder(name, unitLabel, dueAt)
	return s.send(ctx, to, name, subject, body)
}

func (s *sendGridEmailService) SendReservationExpired(ctx context.Context, to, name, unitLabel string, endedAt time.Time) error {
	subject, body := reservationExpired(name, unitLabel, endedAt)
	return s.send(ctx, to, name, subject, body)
}

// logEmailService writes reminders to the log instead of sending them.
type logEmailService struct{}

func NewLogEmailService() EmailService {
	return logEmailService{}
}

func (logEmailService) SendOverdueReminder(ctx context.Context, to, name, unitLabel string, dueAt time.Time, fineCents int32) error {
	subject, _ := overdueReminder(name, unitLabel, dueAt, fineCents)
	logger.InfoContext(ctx, "Email not sent (no provider configured)", "to", to, "subject", subject)
	return nil
}

func (logEmailService) SendDueSoonReminder(ctx context.Context, to, name, unitLabel string, dueAt time.Time) error {
	subject, _ := dueSoonReminder(name, unitLabel, dueAt)
	logger.InfoContext(ctx, "Email not sent (no provider configured)", "to", to, "subject", subject)
	return nil
}

func (logEmailService) SendReservationExpired(ctx context.Context, to, name, unitLabel string, endedAt time.Time) error {
	subject, _ := reservationExpired(name, unitLabel, endedAt)
	logger.InfoContext(ctx, "Email not sent (no provider configured)", "to", to, "subject", subject)
	return nil
}

func overdueReminder(name, unitLabel string, dueAt time.Time, fineCents int32) (string, string) {
	subject := fmt.Sprintf("Overdue: %s", unitLabel)
	body := fmt.Sprintf("Hello %s,\n\n%s was due on %s and has not been returned.", name, unitLabel, dueAt.Format(dateLayout))
	if fineCents > 0 {
		body += fmt.Sprintf("\n\nFines so far: $%d.%02d", fineCents/100, fineCents%100)
	}
	body += "\n\nPlease return it at your earliest convenience.\n\nThe Library"
	return subject, body
}

func dueSoonReminder(name, unitLabel string, dueAt time.Time) (string, string) {
	subject := fmt.Sprintf("Due soon: %s", unitLabel)
	body := fmt.Sprintf("Hello %s,\n\n%s is due on %s. You can renew it from your account if you need more time.\n\nThe Library", name, unitLabel, dueAt.Format(dateLayout))
	return subject, body
}

func reservationExpired(name, unitLabel string, endedAt time.Time) (string, string) {
	subject := fmt.Sprintf("Reservation ended: %s", unitLabel)
	body := fmt.Sprintf("Hello %s,\n\nYour reservation of %s ended at %s and has been closed.\n\nThe Library", name, unitLabel, endedAt.Format(dateLayout))
	return subject, body
}
