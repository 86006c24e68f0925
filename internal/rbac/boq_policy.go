package rbac

type boqScope struct {
	owner          bool
	legacy         bool
	sameSector     bool
	sameDepartment bool
	status         string
	selfCreated    bool
}

func scopeOf(user *User, record *Record) boqScope {
	if record == nil {
		return boqScope{}
	}
	return boqScope{
		owner:          sameID(record.CreatedBy, user.ID) || sameID(record.AssignedTo, user.ID),
		legacy:         isLegacy(record),
		sameSector:     sameRef(user.SectorID, record.SectorID),
		sameDepartment: sameRef(user.DepartmentID, record.DepartmentID),
		status:         record.Status,
		selfCreated:    sameID(record.CreatedBy, user.ID),
	}
}

// isLegacy reports whether the record predates ownership tracking.
// Legacy records are broadly readable and writable by every affiliated role;
// this is a migration accommodation and should be tightened once backfilled.
func isLegacy(record *Record) bool {
	return record != nil && record.CreatedBy == nil
}

func decideBOQ(user *User, action Action, record *Record) bool {
	s := scopeOf(user, record)

	if !user.HasAffiliation() {
		switch action {
		case ActionCreate:
			return true
		case ActionApprove:
			return s.owner && !s.selfCreated
		}
		return s.owner
	}

	switch user.Role {
	case RoleStaff:
		switch action {
		case ActionCreate:
			return true
		case ActionRead:
			return s.owner || s.sameSector || s.legacy
		case ActionUpdate:
			return s.owner || s.legacy
		case ActionDelete:
			return (s.owner && s.status == RecordStatusDraft) || s.legacy
		}
		return false

	case RoleSectorManager:
		switch action {
		case ActionRead:
			return s.sameSector || s.sameDepartment || s.legacy
		case ActionCreate, ActionUpdate, ActionDelete:
			return s.sameSector || s.legacy
		case ActionApprove:
			return s.sameSector && s.status == RecordStatusPendingReview && !s.selfCreated
		}
		return false

	case RoleDeptManager:
		switch action {
		case ActionRead, ActionCreate, ActionUpdate, ActionDelete:
			return s.sameDepartment || s.legacy
		case ActionApprove:
			return s.sameDepartment && s.status == RecordStatusPendingApproval && !s.selfCreated
		}
		return false

	case RoleProcurement:
		return action == ActionRead && (s.sameDepartment || s.legacy)
	}
	return false
}
