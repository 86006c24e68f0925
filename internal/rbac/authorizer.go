package rbac

import (
	"fmt"

	"github.com/ductline/ductline/internal/shared"
)

// DecisionObserver is notified of every decision made through an Authorizer.
type DecisionObserver interface {
	ObserveDecision(resource, action string, allowed bool)
}

// Authorizer applies Decide for services and reports outcomes to an optional observer.
type Authorizer struct {
	Observer DecisionObserver
}

// Can evaluates the policy.
func (a Authorizer) Can(user *User, action Action, resource Resource, record *Record) bool {
	allowed := Decide(user, action, resource, record)
	if a.Observer != nil {
		a.Observer.ObserveDecision(string(resource), string(action), allowed)
	}
	return allowed
}

// Require returns an error wrapping shared.ErrForbidden when the action is denied.
func (a Authorizer) Require(user *User, action Action, resource Resource, record *Record) error {
	if user == nil {
		return shared.ErrUnauthorized
	}
	if !a.Can(user, action, resource, record) {
		return fmt.Errorf("rbac: %s %s: %w", action, resource, shared.ErrForbidden)
	}
	return nil
}
