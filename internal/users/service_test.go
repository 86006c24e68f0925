package users

import (
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/ductline/ductline/internal/rbac"
	"github.com/ductline/ductline/internal/shared"
)

type memoryUserRepo struct {
	users        map[int64]User
	hashes       map[int64]string
	associations map[int64]int
	departments  map[int64]int64
	nextID       int64
}

func newMemoryUserRepo() *memoryUserRepo {
	return &memoryUserRepo{
		users:        make(map[int64]User),
		hashes:       make(map[int64]string),
		associations: make(map[int64]int),
		departments:  map[int64]int64{10: 1, 20: 2},
	}
}

func (m *memoryUserRepo) ListUsers(ctx context.Context, filters ListFilters) ([]User, error) {
	var out []User
	for _, u := range m.users {
		if filters.Role != "" && u.Role != filters.Role {
			continue
		}
		if filters.Status != "" && u.Status != filters.Status {
			continue
		}
		if filters.SectorID > 0 && (u.SectorID == nil || *u.SectorID != filters.SectorID) {
			continue
		}
		if filters.DepartmentID > 0 && (u.DepartmentID == nil || *u.DepartmentID != filters.DepartmentID) {
			continue
		}
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memoryUserRepo) GetUser(ctx context.Context, id int64) (User, error) {
	u, ok := m.users[id]
	if !ok {
		return User{}, shared.ErrNotFound
	}
	return u, nil
}

func (m *memoryUserRepo) CreateUser(ctx context.Context, u NewUser) (int64, error) {
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return 0, ErrEmailTaken
		}
	}
	m.nextID++
	m.users[m.nextID] = User{ID: m.nextID, Email: u.Email, Name: u.Name, Phone: u.Phone, Position: u.Position,
		Role: u.Role, Status: u.Status, SectorID: u.SectorID, DepartmentID: u.DepartmentID}
	m.hashes[m.nextID] = u.PasswordHash
	return m.nextID, nil
}

func (m *memoryUserRepo) UpdateAdmin(ctx context.Context, id int64, in AdminUpdateInput) error {
	u, ok := m.users[id]
	if !ok {
		return shared.ErrNotFound
	}
	u.Name, u.Role, u.Status, u.SectorID, u.DepartmentID = in.Name, in.Role, in.Status, in.SectorID, in.DepartmentID
	m.users[id] = u
	return nil
}

func (m *memoryUserRepo) UpdateProfile(ctx context.Context, id int64, in ProfileInput) error {
	u, ok := m.users[id]
	if !ok {
		return shared.ErrNotFound
	}
	u.Name, u.Phone, u.Position = in.Name, in.Phone, in.Position
	m.users[id] = u
	return nil
}

func (m *memoryUserRepo) PasswordHash(ctx context.Context, id int64) (string, error) {
	return m.hashes[id], nil
}

func (m *memoryUserRepo) SetPasswordHash(ctx context.Context, id int64, hash string) error {
	m.hashes[id] = hash
	return nil
}

func (m *memoryUserRepo) CountAssociations(ctx context.Context, id int64) (int, error) {
	return m.associations[id], nil
}

func (m *memoryUserRepo) DeleteUser(ctx context.Context, id int64) error {
	if _, ok := m.users[id]; !ok {
		return shared.ErrNotFound
	}
	delete(m.users, id)
	return nil
}

func (m *memoryUserRepo) ListSectors(ctx context.Context) ([]Sector, error) {
	return []Sector{{ID: 1, Name: "Central"}, {ID: 2, Name: "North"}}, nil
}

func (m *memoryUserRepo) ListDepartments(ctx context.Context) ([]Department, error) {
	return []Department{{ID: 10, SectorID: 1, Name: "Works"}, {ID: 20, SectorID: 2, Name: "Roads"}}, nil
}

func (m *memoryUserRepo) DepartmentSector(ctx context.Context, departmentID int64) (int64, error) {
	sector, ok := m.departments[departmentID]
	if !ok {
		return 0, shared.ErrNotFound
	}
	return sector, nil
}

type memoryAudit struct {
	logs []shared.AuditLog
}

func (m *memoryAudit) Record(ctx context.Context, log shared.AuditLog) error {
	m.logs = append(m.logs, log)
	return nil
}

var (
	admin = &rbac.User{ID: 100, Role: rbac.RoleAdmin, Status: rbac.StatusActive}
	staff = &rbac.User{ID: 200, Role: rbac.RoleStaff, Status: rbac.StatusActive, SectorID: rbac.Ptr[int64](1)}
)

func newTestService() (*Service, *memoryUserRepo, *memoryAudit) {
	repo := newMemoryUserRepo()
	audit := &memoryAudit{}
	return NewService(repo, rbac.Authorizer{}, audit, nil), repo, audit
}

func TestRegisterCreatesPendingStaff(t *testing.T) {
	svc, repo, _ := newTestService()
	u, err := svc.Register(context.Background(), CreateInput{
		Email: " New@Example.com ", Password: "secret123", Name: "New", Role: rbac.RoleAdmin, DepartmentID: rbac.Ptr[int64](10),
	})
	require.NoError(t, err)
	assert.Equal(t, rbac.RoleStaff, u.Role)
	assert.Equal(t, rbac.StatusPending, u.Status)
	assert.Equal(t, "new@example.com", u.Email)
	require.NotNil(t, u.SectorID)
	assert.Equal(t, int64(1), *u.SectorID, "sector derives from department")
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(repo.hashes[u.ID]), []byte("secret123")))
}

func TestRegisterRejectsMismatchedOrg(t *testing.T) {
	svc, _, _ := newTestService()
	_, err := svc.Register(context.Background(), CreateInput{
		Email: "a@b.c", Password: "secret123", SectorID: rbac.Ptr[int64](1), DepartmentID: rbac.Ptr[int64](20),
	})
	assert.ErrorIs(t, err, ErrInvalidOrg)
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestRegisterShortPassword(t *testing.T) {
	svc, _, _ := newTestService()
	_, err := svc.Register(context.Background(), CreateInput{Email: "a@b.c", Password: "short"})
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestAdminOperationsRequireAdmin(t *testing.T) {
	svc, _, _ := newTestService()
	_, err := svc.ListUsers(context.Background(), staff, ListFilters{})
	assert.ErrorIs(t, err, shared.ErrForbidden)

	_, err = svc.CreateUser(context.Background(), staff, CreateInput{Email: "x@y.z", Password: "secret123"})
	assert.ErrorIs(t, err, shared.ErrForbidden)

	_, err = svc.ListUsers(context.Background(), nil, ListFilters{})
	assert.ErrorIs(t, err, shared.ErrUnauthorized)
}

func TestAdminCreateAndUpdate(t *testing.T) {
	svc, _, audit := newTestService()
	u, err := svc.CreateUser(context.Background(), admin, CreateInput{Email: "m@x.io", Password: "secret123", Name: "M", Role: rbac.RoleSectorManager})
	require.NoError(t, err)
	assert.Equal(t, rbac.StatusActive, u.Status)

	err = svc.UpdateUser(context.Background(), admin, u.ID, AdminUpdateInput{Name: "M", Role: rbac.RoleDeptManager, Status: rbac.StatusSuspended, DepartmentID: rbac.Ptr[int64](20)})
	require.NoError(t, err)
	updated, err := svc.GetUser(context.Background(), admin, u.ID)
	require.NoError(t, err)
	assert.Equal(t, rbac.RoleDeptManager, updated.Role)
	assert.Equal(t, int64(2), *updated.SectorID)
	require.Len(t, audit.logs, 2)
	assert.Equal(t, "user.update", audit.logs[1].Action)

	err = svc.UpdateUser(context.Background(), admin, u.ID, AdminUpdateInput{Role: "owner", Status: rbac.StatusActive})
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestDuplicateEmail(t *testing.T) {
	svc, _, _ := newTestService()
	_, err := svc.CreateUser(context.Background(), admin, CreateInput{Email: "d@x.io", Password: "secret123"})
	require.NoError(t, err)
	_, err = svc.CreateUser(context.Background(), admin, CreateInput{Email: "D@x.io", Password: "secret123"})
	assert.ErrorIs(t, err, shared.ErrConflict)
}

func TestDeleteBlockedByAssociations(t *testing.T) {
	svc, repo, _ := newTestService()
	u, err := svc.CreateUser(context.Background(), admin, CreateInput{Email: "del@x.io", Password: "secret123"})
	require.NoError(t, err)

	repo.associations[u.ID] = 2
	err = svc.DeleteUser(context.Background(), admin, u.ID)
	assert.ErrorIs(t, err, ErrHasAssociatedRecords)

	repo.associations[u.ID] = 0
	require.NoError(t, svc.DeleteUser(context.Background(), admin, u.ID))
	_, err = repo.GetUser(context.Background(), u.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	assert.ErrorIs(t, svc.DeleteUser(context.Background(), admin, admin.ID), shared.ErrValidation)
}

func TestProfileSelfService(t *testing.T) {
	svc, _, _ := newTestService()
	created, err := svc.Register(context.Background(), CreateInput{Email: "p@x.io", Password: "secret123", Name: "P"})
	require.NoError(t, err)
	actor := created.Principal()

	require.NoError(t, svc.UpdateProfile(context.Background(), actor, ProfileInput{Name: " Pat ", Phone: "555"}))
	profile, err := svc.Profile(context.Background(), actor)
	require.NoError(t, err)
	assert.Equal(t, "Pat", profile.Name)
	assert.Equal(t, "555", profile.Phone)

	assert.ErrorIs(t, svc.UpdateProfile(context.Background(), actor, ProfileInput{Name: " "}), shared.ErrValidation)
}

func TestSuspendedUserKeepsProfileAccess(t *testing.T) {
	svc, repo, _ := newTestService()
	created, err := svc.CreateUser(context.Background(), admin, CreateInput{Email: "s@x.io", Password: "secret123", Name: "S", Status: rbac.StatusSuspended})
	require.NoError(t, err)
	_, err = svc.Profile(context.Background(), repo.users[created.ID].Principal())
	assert.NoError(t, err)
}

func TestChangePassword(t *testing.T) {
	svc, repo, _ := newTestService()
	created, err := svc.Register(context.Background(), CreateInput{Email: "c@x.io", Password: "secret123"})
	require.NoError(t, err)
	actor := created.Principal()

	assert.ErrorIs(t, svc.ChangePassword(context.Background(), actor, "wrong-one", "newsecret1"), ErrWrongPassword)
	require.NoError(t, svc.ChangePassword(context.Background(), actor, "secret123", "newsecret1"))
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(repo.hashes[actor.ID]), []byte("newsecret1")))
}

func TestEmailsSelectsActiveManagersOfSector(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	_, err := svc.CreateUser(ctx, admin, CreateInput{Email: "sm1@x.io", Password: "secret123", Name: "SM1", Role: rbac.RoleSectorManager, SectorID: rbac.Ptr[int64](1)})
	require.NoError(t, err)
	_, err = svc.CreateUser(ctx, admin, CreateInput{Email: "sm2@x.io", Password: "secret123", Name: "SM2", Role: rbac.RoleSectorManager, SectorID: rbac.Ptr[int64](2)})
	require.NoError(t, err)
	_, err = svc.CreateUser(ctx, admin, CreateInput{Email: "st@x.io", Password: "secret123", Name: "ST", Role: rbac.RoleStaff, SectorID: rbac.Ptr[int64](1)})
	require.NoError(t, err)

	emails, err := svc.Emails(ctx, rbac.RoleSectorManager, rbac.Ptr[int64](1), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"sm1@x.io"}, emails)

	dir, err := DirectoryAdapter{Service: svc}.Assignees(ctx)
	require.NoError(t, err)
	assert.Len(t, dir, 3)
}
