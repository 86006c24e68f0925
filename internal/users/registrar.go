package users

import (
	"context"

	"github.com/ductline/ductline/internal/auth"
)

// AuthAdapter exposes registration and organisation lookups to the auth handlers.
type AuthAdapter struct {
	Service *Service
}

// Register implements auth.Registrar.
func (a AuthAdapter) Register(ctx context.Context, in auth.RegisterInput) (int64, error) {
	u, err := a.Service.Register(ctx, CreateInput{
		Email:        in.Email,
		Password:     in.Password,
		Name:         in.Name,
		Phone:        in.Phone,
		Position:     in.Position,
		SectorID:     in.SectorID,
		DepartmentID: in.DepartmentID,
	})
	if err != nil {
		return 0, err
	}
	return u.ID, nil
}

// OrgOptions implements auth.OrgLister.
func (a AuthAdapter) OrgOptions(ctx context.Context) ([]auth.OrgOption, []auth.OrgOption, error) {
	sectors, departments, err := a.Service.Organisation(ctx)
	if err != nil {
		return nil, nil, err
	}
	sectorOpts := make([]auth.OrgOption, 0, len(sectors))
	for _, s := range sectors {
		sectorOpts = append(sectorOpts, auth.OrgOption{ID: s.ID, Name: s.Name})
	}
	deptOpts := make([]auth.OrgOption, 0, len(departments))
	for _, d := range departments {
		deptOpts = append(deptOpts, auth.OrgOption{ID: d.ID, ParentID: d.SectorID, Name: d.Name})
	}
	return sectorOpts, deptOpts, nil
}

var (
	_ auth.Registrar = AuthAdapter{}
	_ auth.OrgLister = AuthAdapter{}
)
