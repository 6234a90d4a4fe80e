package entity

import "github.com/garyjia/offer-lifecycle/internal/domain/workflow"

// Actor is the authenticated caller of an engine operation
type Actor struct {
	ID    string           `json:"id"`
	Roles workflow.RoleSet `json:"roles"`
}

// SystemActor is used for transitions fired by the service itself
var SystemActor = Actor{ID: "system", Roles: workflow.RoleSet{workflow.RoleSystem}}

// IsStaff reports whether the actor may create and edit offers
func (a Actor) IsStaff() bool {
	return a.Roles.HasAny(workflow.RoleSalesSupport, workflow.RoleSalesManager, workflow.RoleSuperAdmin)
}
