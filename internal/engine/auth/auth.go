// Package auth holds the role rules. Every function is pure: callers load
// the actor and target and pass them in.
package auth

import (
	"github.com/ShovalB85/RasApp/internal/domain"
)

func isAdmin(p domain.Person) bool   { return p.Role == domain.RoleAdmin }
func isManager(p domain.Person) bool { return p.Role == domain.RoleManager }

// CanManageInventory: admin, or a manager taking part in the deployment.
func CanManageInventory(actor domain.Person, dep domain.Deployment) bool {
	if isAdmin(actor) {
		return true
	}
	return isManager(actor) && dep.HasParticipant(actor.ID)
}

// CanManageDeployment covers teams, participants and tasks.
func CanManageDeployment(actor domain.Person, dep domain.Deployment) bool {
	return CanManageInventory(actor, dep)
}

func CanDecreaseOrDelete(actor domain.Person) bool {
	return isAdmin(actor)
}

func CanRemoveFromDeployment(actor, target domain.Person) bool {
	if actor.ID == target.ID {
		return false
	}
	if target.Role.Elevated() {
		return isAdmin(actor)
	}
	return actor.Role.Elevated()
}

// CanRemoveFromFramework returns nil when target may be deleted by actor.
// Deployment membership is checked first.
func CanRemoveFromFramework(actor, target domain.Person, deployments []domain.Deployment) error {
	var active []string
	for _, d := range deployments {
		if d.HasParticipant(target.ID) {
			active = append(active, d.ID)
		}
	}
	if len(active) > 0 {
		return domain.ActiveDeploymentMembership(target.ID, active)
	}
	if !actor.Role.Elevated() {
		return domain.PermissionDenied("person.remove")
	}
	return nil
}

// CanUnassignOrEditAssignedItem checks custody edits. dep is nil for
// external items.
func CanUnassignOrEditAssignedItem(actor domain.Person, item domain.AssignedItem, dep *domain.Deployment) bool {
	if item.DeploymentID != nil && dep != nil {
		return CanManageInventory(actor, *dep)
	}
	return actor.Role.Elevated()
}

func CanViewDeployment(actor domain.Person, dep domain.Deployment) bool {
	return isAdmin(actor) || dep.HasParticipant(actor.ID)
}

func CanChangeRole(actor, target domain.Person, newRole domain.Role) bool {
	if target.IsPrimaryAdmin || !newRole.Valid() {
		return false
	}
	switch actor.Role {
	case domain.RoleAdmin:
		return true
	case domain.RoleManager:
		inBand := func(r domain.Role) bool { return r == domain.RoleMember || r == domain.RoleManager }
		return inBand(target.Role) && inBand(newRole)
	}
	return false
}

// CanAddPerson: managers and admins may add people; only admins grant admin.
func CanAddPerson(actor domain.Person, role domain.Role) bool {
	if role == domain.RoleAdmin {
		return isAdmin(actor)
	}
	return actor.Role.Elevated()
}
