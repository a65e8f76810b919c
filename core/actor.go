package core

import "github.com/samber/lo"

// Roles
const (
	RoleAdmin      = "admin"
	RoleAccountant = "comptable"
	RoleSecretary  = "secretaire"
)

var AllRoles = []string{RoleAdmin, RoleAccountant, RoleSecretary}

// Actor is whoever triggers a state change: an authenticated user, the admin CLI or a webhook.
type Actor struct {
	ID    string   `json:"id"`
	Name  string   `json:"name,omitempty"`
	Email string   `json:"email,omitempty"`
	Roles []string `json:"roles,omitempty"`
}

var (
	SystemActor  = Actor{ID: "system", Name: "Scheduler"}
	WebhookActor = Actor{ID: "webhook", Name: "Inbound webhook"}
	CLIActor     = Actor{ID: "admin-cli", Name: "Admin CLI"}
)

func (a Actor) HasAnyRole(roles ...string) bool {
	if len(roles) == 0 {
		return true
	}
	return lo.Some(a.Roles, roles)
}

func (a Actor) IsAdmin() bool {
	return lo.Contains(a.Roles, RoleAdmin)
}
