package boq

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ductline/ductline/internal/shared"
)

func TestNextTransitions(t *testing.T) {
	cases := []struct {
		from Status
		t    Transition
		want Status
	}{
		{StatusDraft, TransitionSubmit, StatusPendingReview},
		{StatusRejected, TransitionSubmit, StatusPendingReview},
		{StatusPendingReview, TransitionApprove, StatusPendingApproval},
		{StatusPendingApproval, TransitionApprove, StatusApproved},
		{StatusPendingReview, TransitionReject, StatusRejected},
		{StatusPendingApproval, TransitionReject, StatusRejected},
	}
	for _, tc := range cases {
		got, err := Next(tc.from, tc.t)
		require.NoError(t, err, "%s %s", tc.from, tc.t)
		assert.Equal(t, tc.want, got)
	}
}

func TestNextRejectsInvalidMoves(t *testing.T) {
	invalid := []struct {
		from Status
		t    Transition
	}{
		{StatusApproved, TransitionSubmit},
		{StatusApproved, TransitionApprove},
		{StatusApproved, TransitionReject},
		{StatusDraft, TransitionApprove},
		{StatusDraft, TransitionReject},
		{StatusPendingReview, TransitionSubmit},
		{StatusRejected, TransitionApprove},
	}
	for _, tc := range invalid {
		_, err := Next(tc.from, tc.t)
		assert.ErrorIs(t, err, shared.ErrInvalidState, "%s %s", tc.from, tc.t)
	}
}

func TestApprovalActionAndEvent(t *testing.T) {
	assert.Equal(t, shared.ApprovalReview, approvalAction(TransitionApprove, StatusPendingApproval))
	assert.Equal(t, shared.ApprovalApprove, approvalAction(TransitionApprove, StatusApproved))
	assert.Equal(t, EventReviewed, eventType(TransitionApprove, StatusPendingApproval))
	assert.Equal(t, EventRejected, eventType(TransitionReject, StatusRejected))
}
