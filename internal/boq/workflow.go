package boq

import (
	"fmt"

	"github.com/ductline/ductline/internal/shared"
)

// Transition names a workflow move.
type Transition string

const (
	TransitionSubmit  Transition = "submit"
	TransitionApprove Transition = "approve"
	TransitionReject  Transition = "reject"
)

// Next returns the status reached by applying t to from.
func Next(from Status, t Transition) (Status, error) {
	switch t {
	case TransitionSubmit:
		if from.Editable() {
			return StatusPendingReview, nil
		}
	case TransitionApprove:
		switch from {
		case StatusPendingReview:
			return StatusPendingApproval, nil
		case StatusPendingApproval:
			return StatusApproved, nil
		}
	case TransitionReject:
		if from == StatusPendingReview || from == StatusPendingApproval {
			return StatusRejected, nil
		}
	}
	return "", fmt.Errorf("%w: cannot %s from %s", ErrInvalidState, t, from)
}

// approvalAction maps a transition result to the approval log action.
func approvalAction(t Transition, to Status) shared.ApprovalAction {
	switch {
	case t == TransitionSubmit:
		return shared.ApprovalSubmit
	case t == TransitionReject:
		return shared.ApprovalReject
	case to == StatusPendingApproval:
		return shared.ApprovalReview
	default:
		return shared.ApprovalApprove
	}
}

func eventType(t Transition, to Status) string {
	switch {
	case t == TransitionSubmit:
		return EventSubmitted
	case t == TransitionReject:
		return EventRejected
	case to == StatusPendingApproval:
		return EventReviewed
	default:
		return EventApproved
	}
}
