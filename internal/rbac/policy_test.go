package rbac

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	sectorA int64 = 10
	sectorB int64 = 11
	deptA   int64 = 20
	deptB   int64 = 21
)

func activeUser(id int64, role Role, sector, dept *int64) *User {
	return &User{ID: id, Role: role, Status: StatusActive, SectorID: sector, DepartmentID: dept}
}

func boqRecord(createdBy *int64, sector, dept *int64, status string) *Record {
	return &Record{CreatedBy: createdBy, SectorID: sector, DepartmentID: dept, Status: status}
}

func TestDecideNilUser(t *testing.T) {
	for _, res := range Resources() {
		for _, act := range Actions() {
			assert.False(t, Decide(nil, act, res, nil), "%s %s", act, res)
		}
	}
}

func TestDecideInactiveAndSuspendedOnlyProfile(t *testing.T) {
	for _, status := range []Status{StatusInactive, StatusSuspended} {
		for _, role := range Roles() {
			user := &User{ID: 1, Role: role, Status: status, SectorID: Ptr(sectorA), DepartmentID: Ptr(deptA)}
			own := boqRecord(Ptr[int64](1), Ptr(sectorA), Ptr(deptA), RecordStatusDraft)
			for _, res := range Resources() {
				for _, act := range Actions() {
					want := res == ResourceProfile && (act == ActionRead || act == ActionUpdate)
					assert.Equal(t, want, Decide(user, act, res, own), "%s/%s %s %s", status, role, act, res)
					assert.Equal(t, want, Decide(user, act, res, nil), "%s/%s %s %s (no record)", status, role, act, res)
				}
			}
		}
	}
}

func TestDecidePending(t *testing.T) {
	user := &User{ID: 7, Role: RoleSectorManager, Status: StatusPending, SectorID: Ptr(sectorA), DepartmentID: Ptr(deptA)}

	created := boqRecord(Ptr[int64](7), Ptr(sectorA), Ptr(deptA), RecordStatusDraft)
	assigned := &Record{CreatedBy: Ptr[int64](99), AssignedTo: Ptr[int64](7), SectorID: Ptr(sectorA), Status: RecordStatusDraft}
	legacy := boqRecord(nil, Ptr(sectorA), Ptr(deptA), RecordStatusDraft)

	assert.True(t, Decide(user, ActionCreate, ResourceBOQ, nil))
	assert.True(t, Decide(user, ActionRead, ResourceBOQ, created))
	assert.True(t, Decide(user, ActionUpdate, ResourceBOQ, created))
	assert.False(t, Decide(user, ActionRead, ResourceBOQ, assigned))
	assert.False(t, Decide(user, ActionUpdate, ResourceBOQ, assigned))
	assert.False(t, Decide(user, ActionRead, ResourceBOQ, legacy))
	assert.False(t, Decide(user, ActionRead, ResourceBOQ, nil))
	assert.False(t, Decide(user, ActionDelete, ResourceBOQ, created))
	assert.False(t, Decide(user, ActionApprove, ResourceBOQ, created))

	assert.True(t, Decide(user, ActionRead, ResourcePriceList, nil))
	assert.False(t, Decide(user, ActionUpdate, ResourcePriceList, nil))
	assert.True(t, Decide(user, ActionRead, ResourceProfile, nil))
	assert.True(t, Decide(user, ActionUpdate, ResourceProfile, nil))
	for _, act := range Actions() {
		assert.False(t, Decide(user, act, ResourceUser, nil), "user %s", act)
		assert.False(t, Decide(user, act, ResourceCommittee, created), "committee %s", act)
	}
}

func TestDecideAdmin(t *testing.T) {
	admin := activeUser(1, RoleAdmin, nil, nil)
	own := boqRecord(Ptr[int64](1), nil, nil, RecordStatusPendingReview)
	other := boqRecord(Ptr[int64](2), Ptr(sectorB), Ptr(deptB), RecordStatusPendingReview)

	assert.False(t, Decide(admin, ActionApprove, ResourceBOQ, own))
	for _, res := range Resources() {
		for _, act := range Actions() {
			assert.True(t, Decide(admin, act, res, other), "%s %s", act, res)
		}
	}
	for _, act := range Actions() {
		if act == ActionApprove {
			continue
		}
		assert.True(t, Decide(admin, act, ResourceBOQ, own), "%s own", act)
	}
	assert.True(t, Decide(admin, ActionApprove, ResourceBOQ, boqRecord(nil, nil, nil, RecordStatusPendingReview)))
}

func TestDecideNonAdminResources(t *testing.T) {
	for _, role := range []Role{RoleDeptManager, RoleSectorManager, RoleStaff, RoleProcurement} {
		user := activeUser(3, role, Ptr(sectorA), Ptr(deptA))
		for _, act := range Actions() {
			assert.False(t, Decide(user, act, ResourceUser, nil), "%s user %s", role, act)
			assert.Equal(t, act == ActionRead || act == ActionUpdate, Decide(user, act, ResourceProfile, nil), "%s profile %s", role, act)
			assert.Equal(t, act == ActionRead, Decide(user, act, ResourcePriceList, nil), "%s price_list %s", role, act)

			wantCommittee := act == ActionRead
			if role == RoleProcurement {
				wantCommittee = act == ActionRead || act == ActionUpdate
			}
			assert.Equal(t, wantCommittee, Decide(user, act, ResourceCommittee, nil), "%s committee %s", role, act)
		}
	}
}

func TestDecideUnknownRoleDenied(t *testing.T) {
	user := activeUser(3, Role("auditor"), Ptr(sectorA), Ptr(deptA))
	rec := boqRecord(Ptr[int64](3), Ptr(sectorA), Ptr(deptA), RecordStatusDraft)
	for _, act := range Actions() {
		assert.False(t, Decide(user, act, ResourceBOQ, rec), act)
	}
}

func TestDecideUnaffiliatedOwnerOnly(t *testing.T) {
	user := activeUser(5, RoleStaff, nil, nil)
	owned := boqRecord(Ptr[int64](5), nil, nil, RecordStatusDraft)
	assigned := &Record{CreatedBy: Ptr[int64](6), AssignedTo: Ptr[int64](5), Status: RecordStatusDraft}
	legacy := boqRecord(nil, Ptr(sectorA), nil, RecordStatusDraft)
	foreign := boqRecord(Ptr[int64](6), Ptr(sectorA), Ptr(deptA), RecordStatusDraft)

	assert.True(t, Decide(user, ActionCreate, ResourceBOQ, nil))
	for _, act := range []Action{ActionRead, ActionUpdate, ActionDelete} {
		assert.True(t, Decide(user, act, ResourceBOQ, owned), act)
		assert.True(t, Decide(user, act, ResourceBOQ, assigned), act)
		assert.False(t, Decide(user, act, ResourceBOQ, legacy), act)
		assert.False(t, Decide(user, act, ResourceBOQ, foreign), act)
		assert.False(t, Decide(user, act, ResourceBOQ, nil), act)
	}
}

func TestDecideUnaffiliatedCreatorCannotApprove(t *testing.T) {
	user := activeUser(5, RoleStaff, nil, nil)
	for _, status := range []string{RecordStatusPendingReview, RecordStatusPendingApproval} {
		owned := boqRecord(Ptr[int64](5), nil, nil, status)
		assert.False(t, Decide(user, ActionApprove, ResourceBOQ, owned), status)

		assigned := &Record{CreatedBy: Ptr[int64](6), AssignedTo: Ptr[int64](5), Status: status}
		assert.True(t, Decide(user, ActionApprove, ResourceBOQ, assigned), status)
	}
	assert.False(t, Decide(user, ActionApprove, ResourceBOQ, nil))
}

func TestDecideStaff(t *testing.T) {
	staff := activeUser(5, RoleStaff, Ptr(sectorA), Ptr(deptA))

	cases := []struct {
		name   string
		action Action
		record *Record
		want   bool
	}{
		{"create", ActionCreate, nil, true},
		{"read own", ActionRead, boqRecord(Ptr[int64](5), Ptr(sectorB), nil, RecordStatusDraft), true},
		{"read assigned", ActionRead, &Record{CreatedBy: Ptr[int64](9), AssignedTo: Ptr[int64](5), SectorID: Ptr(sectorB)}, true},
		{"read same sector", ActionRead, boqRecord(Ptr[int64](9), Ptr(sectorA), nil, RecordStatusDraft), true},
		{"read legacy", ActionRead, boqRecord(nil, Ptr(sectorB), nil, RecordStatusDraft), true},
		{"read other sector", ActionRead, boqRecord(Ptr[int64](9), Ptr(sectorB), Ptr(deptA), RecordStatusDraft), false},
		{"update own", ActionUpdate, boqRecord(Ptr[int64](5), nil, nil, RecordStatusPendingReview), true},
		{"update same sector", ActionUpdate, boqRecord(Ptr[int64](9), Ptr(sectorA), nil, RecordStatusDraft), false},
		{"update legacy", ActionUpdate, boqRecord(nil, nil, nil, RecordStatusDraft), true},
		{"delete own draft", ActionDelete, boqRecord(Ptr[int64](5), nil, nil, RecordStatusDraft), true},
		{"delete own submitted", ActionDelete, boqRecord(Ptr[int64](5), nil, nil, RecordStatusPendingReview), false},
		{"delete legacy", ActionDelete, boqRecord(nil, nil, nil, RecordStatusPendingApproval), true},
		{"delete same sector", ActionDelete, boqRecord(Ptr[int64](9), Ptr(sectorA), nil, RecordStatusDraft), false},
		{"approve own", ActionApprove, boqRecord(Ptr[int64](5), Ptr(sectorA), nil, RecordStatusPendingReview), false},
		{"approve legacy", ActionApprove, boqRecord(nil, Ptr(sectorA), nil, RecordStatusPendingReview), false},
		{"assign committee own", ActionAssignCommittee, boqRecord(Ptr[int64](5), nil, nil, RecordStatusDraft), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Decide(staff, tc.action, ResourceBOQ, tc.record))
		})
	}
}

func TestDecideSectorManager(t *testing.T) {
	mgr := activeUser(8, RoleSectorManager, Ptr(sectorA), Ptr(deptA))

	cases := []struct {
		name   string
		action Action
		record *Record
		want   bool
	}{
		{"read same sector", ActionRead, boqRecord(Ptr[int64](1), Ptr(sectorA), Ptr(deptB), RecordStatusDraft), true},
		{"read same department", ActionRead, boqRecord(Ptr[int64](1), Ptr(sectorB), Ptr(deptA), RecordStatusDraft), true},
		{"read legacy", ActionRead, boqRecord(nil, Ptr(sectorB), Ptr(deptB), RecordStatusDraft), true},
		{"read foreign", ActionRead, boqRecord(Ptr[int64](1), Ptr(sectorB), Ptr(deptB), RecordStatusDraft), false},
		{"read own in foreign sector", ActionRead, boqRecord(Ptr[int64](8), Ptr(sectorB), Ptr(deptB), RecordStatusDraft), false},
		{"create same sector", ActionCreate, boqRecord(Ptr[int64](8), Ptr(sectorA), nil, RecordStatusDraft), true},
		{"create without record", ActionCreate, nil, false},
		{"update same department only", ActionUpdate, boqRecord(Ptr[int64](1), Ptr(sectorB), Ptr(deptA), RecordStatusDraft), false},
		{"update same sector", ActionUpdate, boqRecord(Ptr[int64](1), Ptr(sectorA), nil, RecordStatusDraft), true},
		{"delete same sector", ActionDelete, boqRecord(Ptr[int64](1), Ptr(sectorA), nil, RecordStatusPendingApproval), true},
		{"delete legacy", ActionDelete, boqRecord(nil, nil, nil, RecordStatusDraft), true},
		{"assign committee", ActionAssignCommittee, boqRecord(Ptr[int64](1), Ptr(sectorA), nil, RecordStatusDraft), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Decide(mgr, tc.action, ResourceBOQ, tc.record))
		})
	}
}

func TestSectorManagerApproveRequiresAllConditions(t *testing.T) {
	mgr := activeUser(8, RoleSectorManager, Ptr(sectorA), Ptr(deptA))
	base := func() *Record {
		return boqRecord(Ptr[int64](1), Ptr(sectorA), Ptr(deptA), RecordStatusPendingReview)
	}

	require.True(t, Decide(mgr, ActionApprove, ResourceBOQ, base()))

	otherSector := base()
	otherSector.SectorID = Ptr(sectorB)
	assert.False(t, Decide(mgr, ActionApprove, ResourceBOQ, otherSector), "sector flipped")

	wrongStatus := base()
	wrongStatus.Status = RecordStatusPendingApproval
	assert.False(t, Decide(mgr, ActionApprove, ResourceBOQ, wrongStatus), "status flipped")

	selfCreated := base()
	selfCreated.CreatedBy = Ptr[int64](8)
	assert.False(t, Decide(mgr, ActionApprove, ResourceBOQ, selfCreated), "creator flipped")

	assigned := base()
	assigned.AssignedTo = Ptr[int64](8)
	assert.True(t, Decide(mgr, ActionApprove, ResourceBOQ, assigned), "assignment is not creation")

	legacy := base()
	legacy.CreatedBy = nil
	assert.True(t, Decide(mgr, ActionApprove, ResourceBOQ, legacy))

	assert.False(t, Decide(mgr, ActionApprove, ResourceBOQ, nil))
}

func TestDeptManagerApproveRequiresAllConditions(t *testing.T) {
	mgr := activeUser(9, RoleDeptManager, Ptr(sectorA), Ptr(deptA))
	base := func() *Record {
		return boqRecord(Ptr[int64](1), Ptr(sectorB), Ptr(deptA), RecordStatusPendingApproval)
	}

	require.True(t, Decide(mgr, ActionApprove, ResourceBOQ, base()))

	otherDept := base()
	otherDept.DepartmentID = Ptr(deptB)
	assert.False(t, Decide(mgr, ActionApprove, ResourceBOQ, otherDept))

	review := base()
	review.Status = RecordStatusPendingReview
	assert.False(t, Decide(mgr, ActionApprove, ResourceBOQ, review))

	self := base()
	self.CreatedBy = Ptr[int64](9)
	assert.False(t, Decide(mgr, ActionApprove, ResourceBOQ, self))
}

func TestDecideDeptManagerCRUD(t *testing.T) {
	mgr := activeUser(9, RoleDeptManager, Ptr(sectorA), Ptr(deptA))
	sameDept := boqRecord(Ptr[int64](1), Ptr(sectorB), Ptr(deptA), RecordStatusDraft)
	sameSectorOnly := boqRecord(Ptr[int64](1), Ptr(sectorA), Ptr(deptB), RecordStatusDraft)
	legacy := boqRecord(nil, Ptr(sectorB), Ptr(deptB), RecordStatusDraft)

	for _, act := range []Action{ActionRead, ActionCreate, ActionUpdate, ActionDelete} {
		assert.True(t, Decide(mgr, act, ResourceBOQ, sameDept), act)
		assert.True(t, Decide(mgr, act, ResourceBOQ, legacy), act)
		assert.False(t, Decide(mgr, act, ResourceBOQ, sameSectorOnly), act)
	}
	assert.False(t, Decide(mgr, ActionAssignCommittee, ResourceBOQ, sameDept))
}

func TestDecideProcurementReadOnly(t *testing.T) {
	user := activeUser(4, RoleProcurement, Ptr(sectorA), Ptr(deptA))
	sameDept := boqRecord(Ptr[int64](1), Ptr(sectorB), Ptr(deptA), RecordStatusPendingApproval)
	sameSector := boqRecord(Ptr[int64](1), Ptr(sectorA), Ptr(deptB), RecordStatusPendingApproval)
	legacy := boqRecord(nil, nil, nil, RecordStatusDraft)
	own := boqRecord(Ptr[int64](4), Ptr(sectorB), Ptr(deptB), RecordStatusDraft)

	assert.True(t, Decide(user, ActionRead, ResourceBOQ, sameDept))
	assert.True(t, Decide(user, ActionRead, ResourceBOQ, legacy))
	assert.False(t, Decide(user, ActionRead, ResourceBOQ, sameSector))
	assert.False(t, Decide(user, ActionRead, ResourceBOQ, own))
	for _, act := range []Action{ActionCreate, ActionUpdate, ActionDelete, ActionApprove, ActionAssignCommittee} {
		assert.False(t, Decide(user, act, ResourceBOQ, sameDept), act)
		assert.False(t, Decide(user, act, ResourceBOQ, legacy), act)
	}
}

func TestAffiliationRequiresUserSide(t *testing.T) {
	// a sector-only user never matches a record on department equality
	user := activeUser(4, RoleProcurement, Ptr(sectorA), nil)
	rec := &Record{CreatedBy: Ptr[int64](1), DepartmentID: nil, SectorID: Ptr(sectorB), Status: RecordStatusDraft}
	assert.False(t, Decide(user, ActionRead, ResourceBOQ, rec))
}

func TestDecideIsIdempotentUnderConcurrency(t *testing.T) {
	mgr := activeUser(8, RoleSectorManager, Ptr(sectorA), Ptr(deptA))
	rec := boqRecord(Ptr[int64](1), Ptr(sectorA), Ptr(deptA), RecordStatusPendingReview)
	want := Decide(mgr, ActionApprove, ResourceBOQ, rec)

	var wg sync.WaitGroup
	results := make([]bool, 64)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = Decide(mgr, ActionApprove, ResourceBOQ, rec)
		}(i)
	}
	wg.Wait()
	for _, got := range results {
		require.Equal(t, want, got)
	}
	require.Equal(t, RecordStatusPendingReview, rec.Status)
}
