package shared

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestApprovalLogValidate(t *testing.T) {
	assert.Error(t, ApprovalLog{}.Validate())
	assert.Error(t, ApprovalLog{Module: "boq", ActorID: 1, Action: ApprovalSubmit}.Validate())
	assert.NoError(t, ApprovalLog{Module: "boq", ActorID: 1, RefID: uuid.New(), Action: ApprovalSubmit}.Validate())
}

func TestAuditLogValidate(t *testing.T) {
	assert.Error(t, AuditLog{Action: "boq.create"}.Validate())
	assert.NoError(t, AuditLog{Action: "boq.create", Entity: "boq", EntityID: "1"}.Validate())
}
