package jobs

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeSendEmail is the task type for sending workflow notification mails.
	TaskTypeSendEmail = "mail:send"
	// TaskFactorWarmup reloads the factor reference table into Redis.
	TaskFactorWarmup = "factor:warmup"
	// TaskIdempotencyCleanup purges expired idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

// SendEmailPayload describes the information required to send an email.
type SendEmailPayload struct {
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Body    string   `json:"body"`
	// Event is the workflow event that caused the mail, used for metrics.
	Event string `json:"event,omitempty"`
}

// Validate checks required fields.
func (p SendEmailPayload) Validate() error {
	if len(p.To) == 0 {
		return errors.New("mail: at least one recipient required")
	}
	for _, to := range p.To {
		if !strings.Contains(to, "@") {
			return errors.New("mail: invalid recipient " + to)
		}
	}
	if strings.TrimSpace(p.Subject) == "" {
		return errors.New("mail: subject required")
	}
	return nil
}

// NewSendEmailTask constructs an Asynq task.
func NewSendEmailTask(payload SendEmailPayload) (*asynq.Task, error) {
	if err := payload.Validate(); err != nil {
		return nil, err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendEmail, data, asynq.MaxRetry(5)), nil
}

// NewFactorWarmupTask constructs the cache warm-up task.
func NewFactorWarmupTask() *asynq.Task {
	return asynq.NewTask(TaskFactorWarmup, nil, asynq.MaxRetry(3))
}

// NewIdempotencyCleanupTask constructs the key purge task.
func NewIdempotencyCleanupTask() *asynq.Task {
	return asynq.NewTask(TaskIdempotencyCleanup, nil, asynq.MaxRetry(1))
}
