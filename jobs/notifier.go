package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hibiken/asynq"

	"github.com/ductline/ductline/internal/boq"
	"github.com/ductline/ductline/internal/rbac"
	"github.com/ductline/ductline/internal/shared"
)

// MailEnqueuer queues notification mails.
type MailEnqueuer interface {
	EnqueueSendEmail(ctx context.Context, payload SendEmailPayload) (*asynq.TaskInfo, error)
}

// Directory resolves recipient addresses.
type Directory interface {
	Emails(ctx context.Context, role rbac.Role, sectorID, departmentID *int64) ([]string, error)
	Email(ctx context.Context, userID int64) (string, error)
}

// Notifier turns BOQ workflow events into queued mails.
// Submissions go to sector managers, reviewed BOQs to department managers
// and decisions back to the creator.
type Notifier struct {
	Queue     MailEnqueuer
	Directory Directory
	BaseURL   string
	Logger    *slog.Logger
}

// NotifyWorkflow implements boq.Notifier.
func (n *Notifier) NotifyWorkflow(ctx context.Context, evt boq.Event, doc boq.BOQ) error {
	to, err := n.recipients(ctx, evt, doc)
	if err != nil {
		return err
	}
	if len(to) == 0 {
		if notifies(evt.Type) {
			n.logger().Warn("workflow mail has no recipients",
				slog.String("event", evt.Type), slog.Int64("boq_id", doc.ID))
		}
		return nil
	}
	payload := SendEmailPayload{
		To:      to,
		Subject: subjectFor(evt, doc),
		Body:    n.bodyFor(evt, doc),
		Event:   evt.Type,
	}
	if _, err := n.Queue.EnqueueSendEmail(ctx, payload); err != nil {
		return fmt.Errorf("notify %s: %w", evt.Type, err)
	}
	return nil
}

func (n *Notifier) recipients(ctx context.Context, evt boq.Event, doc boq.BOQ) ([]string, error) {
	switch evt.Type {
	case boq.EventSubmitted:
		if doc.SectorID == nil {
			return n.Directory.Emails(ctx, rbac.RoleAdmin, nil, nil)
		}
		return n.Directory.Emails(ctx, rbac.RoleSectorManager, doc.SectorID, nil)
	case boq.EventReviewed:
		if doc.DepartmentID == nil {
			return n.Directory.Emails(ctx, rbac.RoleAdmin, nil, nil)
		}
		return n.Directory.Emails(ctx, rbac.RoleDeptManager, nil, doc.DepartmentID)
	case boq.EventApproved, boq.EventRejected:
		if doc.CreatedBy == nil {
			return nil, nil
		}
		email, err := n.Directory.Email(ctx, *doc.CreatedBy)
		if errors.Is(err, shared.ErrNotFound) {
			n.logger().Warn("boq creator not found", slog.Int64("user_id", *doc.CreatedBy), slog.Int64("boq_id", doc.ID))
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		if email == "" {
			return nil, nil
		}
		return []string{email}, nil
	}
	return nil, nil
}

func notifies(eventType string) bool {
	switch eventType {
	case boq.EventSubmitted, boq.EventReviewed, boq.EventApproved, boq.EventRejected:
		return true
	}
	return false
}

func (n *Notifier) logger() *slog.Logger {
	if n.Logger != nil {
		return n.Logger
	}
	return slog.Default()
}

func subjectFor(evt boq.Event, doc boq.BOQ) string {
	switch evt.Type {
	case boq.EventSubmitted:
		return fmt.Sprintf("[Ductline] %s submitted for review", doc.Number)
	case boq.EventReviewed:
		return fmt.Sprintf("[Ductline] %s awaits final approval", doc.Number)
	case boq.EventApproved:
		return fmt.Sprintf("[Ductline] %s approved", doc.Number)
	case boq.EventRejected:
		return fmt.Sprintf("[Ductline] %s rejected", doc.Number)
	}
	return "[Ductline] " + doc.Number
}

func (n *Notifier) bodyFor(evt boq.Event, doc boq.BOQ) string {
	var b strings.Builder
	fmt.Fprintf(&b, "BOQ: %s\nProject: %s\n", doc.Number, doc.ProjectName)
	if doc.Location != "" {
		fmt.Fprintf(&b, "Location: %s\n", doc.Location)
	}
	fmt.Fprintf(&b, "Status: %s\n", evt.Status)
	if evt.Note != "" {
		fmt.Fprintf(&b, "Note: %s\n", evt.Note)
	}
	if n.BaseURL != "" {
		fmt.Fprintf(&b, "\n%s/boq/%d\n", strings.TrimRight(n.BaseURL, "/"), doc.ID)
	}
	return b.String()
}

var _ boq.Notifier = (*Notifier)(nil)
