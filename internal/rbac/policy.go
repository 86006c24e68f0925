package rbac

// Decide reports whether user may perform action on resource.
// record is the ownership snapshot of the target and may be nil when no
// specific record is involved. Decide is pure and safe for concurrent use.
func Decide(user *User, action Action, resource Resource, record *Record) bool {
	if user == nil {
		return false
	}

	switch user.Status {
	case StatusInactive, StatusSuspended:
		return resource == ResourceProfile && (action == ActionRead || action == ActionUpdate)
	case StatusPending:
		return decidePending(user, action, resource, record)
	}

	if user.Role == RoleAdmin {
		if action == ActionApprove && record != nil && sameID(record.CreatedBy, user.ID) {
			return false
		}
		return true
	}

	switch resource {
	case ResourceUser:
		return false
	case ResourceProfile:
		return action == ActionRead || action == ActionUpdate
	case ResourcePriceList:
		return action == ActionRead
	case ResourceCommittee:
		if user.Role == RoleProcurement {
			return action == ActionRead || action == ActionUpdate
		}
		return action == ActionRead
	case ResourceBOQ:
		return decideBOQ(user, action, record)
	default:
		return false
	}
}

func decidePending(user *User, action Action, resource Resource, record *Record) bool {
	switch resource {
	case ResourceBOQ:
		switch action {
		case ActionCreate:
			return true
		case ActionRead, ActionUpdate:
			// pending accounts only see what they created themselves
			return record != nil && sameID(record.CreatedBy, user.ID)
		default:
			return false
		}
	case ResourcePriceList:
		return action == ActionRead
	case ResourceProfile:
		return action == ActionRead || action == ActionUpdate
	default:
		return false
	}
}
