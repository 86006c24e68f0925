package rbac

import (
	"context"

	"github.com/ductline/ductline/internal/view"
)

type principalKey struct{}

// WithPrincipal stores the authenticated user in ctx.
func WithPrincipal(ctx context.Context, user *User) context.Context {
	return context.WithValue(ctx, principalKey{}, user)
}

// PrincipalFrom returns the authenticated user or nil.
func PrincipalFrom(ctx context.Context) *User {
	user, _ := ctx.Value(principalKey{}).(*User)
	return user
}

// ViewUser returns the navigation view of the principal on ctx, or nil.
func ViewUser(ctx context.Context) *view.UserInfo {
	user := PrincipalFrom(ctx)
	if user == nil {
		return nil
	}
	return view.NewUserInfo(user.Name, user.Email, string(user.Role), string(user.Status))
}
