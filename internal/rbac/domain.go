package rbac

// Role is the organisational role of a user.
type Role string

const (
	RoleAdmin         Role = "admin"
	RoleDeptManager   Role = "dept_manager"
	RoleSectorManager Role = "sector_manager"
	RoleStaff         Role = "staff"
	RoleProcurement   Role = "procurement"
)

// Roles lists every known role in display order.
func Roles() []Role {
	return []Role{RoleAdmin, RoleDeptManager, RoleSectorManager, RoleStaff, RoleProcurement}
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	for _, known := range Roles() {
		if r == known {
			return true
		}
	}
	return false
}

// Status is the account lifecycle status of a user.
type Status string

const (
	StatusActive    Status = "active"
	StatusInactive  Status = "inactive"
	StatusSuspended Status = "suspended"
	StatusPending   Status = "pending"
)

// Statuses lists every known status.
func Statuses() []Status {
	return []Status{StatusActive, StatusInactive, StatusSuspended, StatusPending}
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	for _, known := range Statuses() {
		if s == known {
			return true
		}
	}
	return false
}

// Action is an operation a user attempts on a resource.
type Action string

const (
	ActionCreate          Action = "create"
	ActionRead            Action = "read"
	ActionUpdate          Action = "update"
	ActionDelete          Action = "delete"
	ActionApprove         Action = "approve"
	ActionAssignCommittee Action = "assign_committee"
)

// Actions lists every action.
func Actions() []Action {
	return []Action{ActionCreate, ActionRead, ActionUpdate, ActionDelete, ActionApprove, ActionAssignCommittee}
}

// Resource is the kind of governed object.
type Resource string

const (
	ResourceBOQ       Resource = "boq"
	ResourceUser      Resource = "user"
	ResourcePriceList Resource = "price_list"
	ResourceCommittee Resource = "committee"
	ResourceProfile   Resource = "profile"
)

// Resources lists every resource kind.
func Resources() []Resource {
	return []Resource{ResourceBOQ, ResourceUser, ResourcePriceList, ResourceCommittee, ResourceProfile}
}

// BOQ workflow statuses referenced by the policy.
const (
	RecordStatusDraft           = "draft"
	RecordStatusPendingReview   = "pending_review"
	RecordStatusPendingApproval = "pending_approval"
)

// User is the authenticated principal evaluated by Decide.
type User struct {
	ID           int64
	Email        string
	Name         string
	Role         Role
	Status       Status
	SectorID     *int64
	DepartmentID *int64
}

// HasAffiliation reports whether the user belongs to a sector or department.
func (u *User) HasAffiliation() bool {
	return u != nil && (u.SectorID != nil || u.DepartmentID != nil)
}

// Record is the ownership snapshot of a governed record.
// A nil CreatedBy marks a legacy record created before ownership tracking.
type Record struct {
	CreatedBy    *int64
	AssignedTo   *int64
	SectorID     *int64
	DepartmentID *int64
	Status       string
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}

func sameID(a *int64, id int64) bool {
	return a != nil && *a == id
}

func sameRef(user, record *int64) bool {
	return user != nil && record != nil && *user == *record
}
