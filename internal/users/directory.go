package users

import (
	"context"

	"github.com/ductline/ductline/internal/boq"
)

// DirectoryAdapter exposes active users as BOQ assignees and committee candidates.
type DirectoryAdapter struct {
	Service *Service
}

// Assignees implements boq.AssigneeLister.
func (a DirectoryAdapter) Assignees(ctx context.Context) ([]boq.Assignee, error) {
	list, err := a.Service.Directory(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]boq.Assignee, 0, len(list))
	for _, u := range list {
		out = append(out, boq.Assignee{ID: u.ID, Name: u.Name})
	}
	return out, nil
}

var _ boq.AssigneeLister = DirectoryAdapter{}
