package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"gopkg.in/gomail.v2"

	jobmetrics "github.com/ductline/ductline/internal/jobs"
)

// MailSender delivers composed messages. *gomail.Dialer satisfies it.
type MailSender interface {
	DialAndSend(m ...*gomail.Message) error
}

// MailJob handles TaskTypeSendEmail.
type MailJob struct {
	Sender  MailSender
	From    string
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewMailJob wires an SMTP dialer for the mail task.
func NewMailJob(host string, port int, from string, logger *slog.Logger, metrics *jobmetrics.Metrics) *MailJob {
	return &MailJob{Sender: gomail.NewDialer(host, port, "", ""), From: from, Logger: logger, Metrics: metrics}
}

// Handle sends one notification mail.
func (j *MailJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Sender == nil {
		return errors.New("mail: handler not configured")
	}
	var payload SendEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("mail: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	if err := payload.Validate(); err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	tracker := j.Metrics.Track(TaskTypeSendEmail)
	msg := gomail.NewMessage()
	msg.SetHeader("From", j.From)
	msg.SetHeader("To", payload.To...)
	msg.SetHeader("Subject", payload.Subject)
	msg.SetBody("text/plain", payload.Body)

	if err := tracker.End(j.Sender.DialAndSend(msg)); err != nil {
		j.logger().Warn("send mail", slog.String("subject", payload.Subject), slog.Any("error", err))
		return err
	}
	j.Metrics.AddMails(payload.Event, len(payload.To))
	j.logger().Info("mail sent", slog.String("subject", payload.Subject), slog.Int("recipients", len(payload.To)))
	return nil
}

func (j *MailJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
