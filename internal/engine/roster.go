package engine

import (
	"context"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ShovalB85/RasApp/internal/domain"
	"github.com/ShovalB85/RasApp/internal/engine/auth"
	"github.com/ShovalB85/RasApp/internal/events"
	"github.com/ShovalB85/RasApp/internal/repo"
)

// PersonInput describes a person to add or update by personal number.
type PersonInput struct {
	Name           string      `json:"name"`
	PersonalNumber string      `json:"personal_number"`
	Role           domain.Role `json:"role,omitempty"`
}

// DeploymentView is a deployment with everything that hangs off it.
type DeploymentView struct {
	domain.Deployment
	Participants []domain.Person `json:"participants"`
	Inventory    []ItemView      `json:"inventory"`
	Teams        []domain.Team   `json:"teams"`
	Tasks        []domain.Task   `json:"tasks"`
}

// RoleChanged is applied whenever a person's role moves. Admins are kept in
// every deployment.
type RoleChanged struct {
	PersonID string
	From     domain.Role
	To       domain.Role
}

func (e Engine) applyRoleChanged(ctx context.Context, tx repo.Tx, actorID string, evt RoleChanged) error {
	if err := e.emit(ctx, tx, events.RoleChanged, "", "person", evt.PersonID, actorID, events.Payload{
		"from": string(evt.From),
		"to":   string(evt.To),
	}); err != nil {
		return err
	}
	switch {
	case evt.To == domain.RoleAdmin:
		return addToAllDeployments(ctx, tx, evt.PersonID)
	case evt.From == domain.RoleAdmin:
		deps, err := tx.ListDeployments(ctx, repo.DeploymentFilter{ParticipantID: evt.PersonID})
		if err != nil {
			return err
		}
		for _, d := range deps {
			if err := dropFromDeployment(ctx, tx, d.ID, evt.PersonID); err != nil {
				return err
			}
		}
	}
	return nil
}

func addToAllDeployments(ctx context.Context, tx repo.Tx, personID string) error {
	deps, err := tx.ListDeployments(ctx, repo.DeploymentFilter{})
	if err != nil {
		return err
	}
	for _, d := range deps {
		if err := tx.AddParticipant(ctx, d.ID, personID); err != nil {
			return err
		}
	}
	return nil
}

// dropFromDeployment removes the participant and their team memberships.
// A team that loses its leader falls back to its first remaining member.
func dropFromDeployment(ctx context.Context, tx repo.Tx, deploymentID, personID string) error {
	if err := tx.RemoveParticipant(ctx, deploymentID, personID); err != nil {
		return err
	}
	teams, err := tx.ListTeams(ctx, deploymentID)
	if err != nil {
		return err
	}
	for _, tm := range teams {
		if !tm.HasMember(personID) {
			continue
		}
		tm.MemberIDs = removeID(tm.MemberIDs, personID)
		if tm.LeaderID == personID {
			tm.LeaderID = ""
			if len(tm.MemberIDs) > 0 {
				tm.LeaderID = tm.MemberIDs[0]
			}
		}
		if err := tx.UpdateTeam(ctx, tm); err != nil {
			return err
		}
	}
	return nil
}

func removeID(ids []string, id string) []string {
	out := make([]string, 0, len(ids))
	for _, x := range ids {
		if x != id {
			out = append(out, x)
		}
	}
	return out
}

// --- frameworks ---

func (e Engine) CreateFramework(ctx context.Context, actorID, name string) (domain.Framework, error) {
	var out domain.Framework
	err := e.mutate(ctx, "roster.create_framework", actorID, nil, func(tx repo.Tx, actor domain.Person) error {
		if actor.Role != domain.RoleAdmin {
			return domain.PermissionDenied("framework.create")
		}
		name = strings.TrimSpace(name)
		if name == "" {
			return domain.InvalidArgument("framework name required")
		}
		out = domain.Framework{ID: newID(), Name: name, CreatedAt: e.stamp()}
		if err := tx.InsertFramework(ctx, out); err != nil {
			return err
		}
		return e.emit(ctx, tx, events.FrameworkCreated, "", "framework", out.ID, actor.ID, events.Payload{"name": name})
	})
	return out, err
}

// ListFrameworks returns every framework with its people. Admins appear in
// all of them.
func (e Engine) ListFrameworks(ctx context.Context, actorID string) ([]domain.Framework, error) {
	var out []domain.Framework
	err := e.view(ctx, actorID, func(tx repo.Tx, _ domain.Person) error {
		frameworks, err := tx.ListFrameworks(ctx)
		if err != nil {
			return err
		}
		people, err := tx.ListPeople(ctx, repo.PersonFilter{})
		if err != nil {
			return err
		}
		for _, f := range frameworks {
			f.Persons = []domain.Person{}
			for _, p := range people {
				if p.FrameworkID == f.ID || p.Role == domain.RoleAdmin {
					f.Persons = append(f.Persons, p)
				}
			}
			out = append(out, f)
		}
		return nil
	})
	return out, err
}

// --- people ---

// AddPerson creates a person, or updates the one with the same personal
// number. An existing password is kept.
func (e Engine) AddPerson(ctx context.Context, actorID, frameworkID string, in PersonInput) (domain.Person, error) {
	var out domain.Person
	err := e.mutate(ctx, "roster.add_person", actorID, logrus.Fields{"framework": frameworkID}, func(tx repo.Tx, actor domain.Person) error {
		name := strings.TrimSpace(in.Name)
		number := strings.TrimSpace(in.PersonalNumber)
		if name == "" || number == "" {
			return domain.InvalidArgument("name and personal number required")
		}
		role := in.Role
		if role == "" {
			role = domain.RoleMember
		}
		if !role.Valid() {
			return domain.InvalidArgument("unknown role %q", role)
		}
		if !auth.CanAddPerson(actor, role) {
			if role == domain.RoleAdmin && actor.Role.Elevated() {
				return domain.PrivilegeTooLow("grant the admin role")
			}
			return domain.PermissionDenied("person.add")
		}
		if _, err := tx.GetFramework(ctx, frameworkID); err != nil {
			return err
		}

		existing, err := tx.GetPersonByPersonalNumber(ctx, number)
		switch {
		case errors.Is(err, repo.ErrNotFound):
			out = domain.Person{
				ID:             newID(),
				Name:           name,
				PersonalNumber: number,
				Role:           role,
				FrameworkID:    frameworkID,
				CreatedAt:      e.stamp(),
			}
			if err := tx.InsertPerson(ctx, out); err != nil {
				return err
			}
			if err := e.emit(ctx, tx, events.PersonAdded, "", "person", out.ID, actor.ID, events.Payload{"framework_id": frameworkID, "role": string(role)}); err != nil {
				return err
			}
			if role == domain.RoleAdmin {
				return e.applyRoleChanged(ctx, tx, actor.ID, RoleChanged{PersonID: out.ID, To: role})
			}
			return nil
		case err != nil:
			return err
		}

		from := existing.Role
		if from != role && !auth.CanChangeRole(actor, existing, role) {
			return domain.PermissionDenied("person.role")
		}
		existing.Name = name
		existing.FrameworkID = frameworkID
		existing.Role = role
		if err := tx.UpdatePerson(ctx, existing); err != nil {
			return err
		}
		out = existing
		if err := e.emit(ctx, tx, events.PersonAdded, "", "person", out.ID, actor.ID, events.Payload{"framework_id": frameworkID, "role": string(role), "upsert": true}); err != nil {
			return err
		}
		if from != role {
			return e.applyRoleChanged(ctx, tx, actor.ID, RoleChanged{PersonID: out.ID, From: from, To: role})
		}
		return nil
	})
	return out, err
}

func canSeePerson(actor, target domain.Person) bool {
	return actor.ID == target.ID || actor.Role.Elevated()
}

// GetPerson returns a person with the items they hold.
func (e Engine) GetPerson(ctx context.Context, actorID, personID string) (domain.Person, error) {
	var out domain.Person
	err := e.view(ctx, actorID, func(tx repo.Tx, actor domain.Person) error {
		p, err := tx.GetPerson(ctx, personID)
		if err != nil {
			return err
		}
		if !canSeePerson(actor, p) {
			return domain.PermissionDenied("person.view")
		}
		out, err = withAssigned(ctx, tx, p)
		return err
	})
	return out, err
}

func withAssigned(ctx context.Context, tx repo.Tx, p domain.Person) (domain.Person, error) {
	items, err := tx.ListAssigned(ctx, repo.AssignedFilter{PersonID: p.ID})
	if err != nil {
		return domain.Person{}, err
	}
	if items == nil {
		items = []domain.AssignedItem{}
	}
	p.AssignedItems = items
	return p, nil
}

func (e Engine) RenamePerson(ctx context.Context, actorID, personID, name string) (domain.Person, error) {
	var out domain.Person
	err := e.mutate(ctx, "roster.rename_person", actorID, logrus.Fields{"person": personID}, func(tx repo.Tx, actor domain.Person) error {
		name = strings.TrimSpace(name)
		if name == "" {
			return domain.InvalidArgument("name required")
		}
		p, err := tx.GetPerson(ctx, personID)
		if err != nil {
			return err
		}
		if !actor.Role.Elevated() || (p.Role == domain.RoleAdmin && actor.Role != domain.RoleAdmin) {
			return domain.PermissionDenied("person.rename")
		}
		before := p.Name
		p.Name = name
		if err := tx.UpdatePerson(ctx, p); err != nil {
			return err
		}
		out = p
		return e.emit(ctx, tx, events.PersonRenamed, "", "person", p.ID, actor.ID, events.Payload{"before": before, "after": name})
	})
	return out, err
}

func (e Engine) ChangeRole(ctx context.Context, actorID, personID string, role domain.Role) (domain.Person, error) {
	var out domain.Person
	err := e.mutate(ctx, "roster.change_role", actorID, logrus.Fields{"person": personID}, func(tx repo.Tx, actor domain.Person) error {
		if !role.Valid() {
			return domain.InvalidArgument("unknown role %q", role)
		}
		p, err := tx.GetPerson(ctx, personID)
		if err != nil {
			return err
		}
		out = p
		if p.Role == role {
			return nil
		}
		if !auth.CanChangeRole(actor, p, role) {
			return domain.PermissionDenied("person.role")
		}
		from := p.Role
		p.Role = role
		if err := tx.UpdatePerson(ctx, p); err != nil {
			return err
		}
		out = p
		return e.applyRoleChanged(ctx, tx, actor.ID, RoleChanged{PersonID: p.ID, From: from, To: role})
	})
	return out, err
}

// RemoveFromFramework deletes a person who is in no deployment and holds
// nothing.
func (e Engine) RemoveFromFramework(ctx context.Context, actorID, personID string) error {
	return e.mutate(ctx, "roster.remove_person", actorID, logrus.Fields{"person": personID}, func(tx repo.Tx, actor domain.Person) error {
		target, err := tx.GetPerson(ctx, personID)
		if err != nil {
			return err
		}
		if target.IsPrimaryAdmin || target.ID == actor.ID {
			return domain.PermissionDenied("person.remove")
		}
		deps, err := tx.ListDeployments(ctx, repo.DeploymentFilter{})
		if err != nil {
			return err
		}
		if err := auth.CanRemoveFromFramework(actor, target, deps); err != nil {
			return err
		}
		held, err := tx.ListAssigned(ctx, repo.AssignedFilter{PersonID: target.ID})
		if err != nil {
			return err
		}
		if len(held) > 0 {
			return domain.EquipmentConflict(target.ID, len(held))
		}
		if err := tx.DeletePerson(ctx, target.ID); err != nil {
			return err
		}
		return e.emit(ctx, tx, events.PersonRemoved, "", "person", target.ID, actor.ID, events.Payload{
			"name":            target.Name,
			"personal_number": target.PersonalNumber,
			"framework_id":    target.FrameworkID,
		})
	})
}

// --- deployments ---

// CreateDeployment seeds participants with every admin, plus the creator
// when they are a manager.
func (e Engine) CreateDeployment(ctx context.Context, actorID, frameworkID, name string) (domain.Deployment, error) {
	var out domain.Deployment
	err := e.mutate(ctx, "roster.create_deployment", actorID, logrus.Fields{"framework": frameworkID}, func(tx repo.Tx, actor domain.Person) error {
		if !actor.Role.Elevated() {
			return domain.PermissionDenied("deployment.create")
		}
		name = strings.TrimSpace(name)
		if name == "" {
			return domain.InvalidArgument("deployment name required")
		}
		if _, err := tx.GetFramework(ctx, frameworkID); err != nil {
			return err
		}
		admins, err := tx.ListPeople(ctx, repo.PersonFilter{Roles: []domain.Role{domain.RoleAdmin}})
		if err != nil {
			return err
		}
		participants := make([]string, 0, len(admins)+1)
		for _, a := range admins {
			participants = append(participants, a.ID)
		}
		if actor.Role == domain.RoleManager {
			participants = append(participants, actor.ID)
		}
		out = domain.Deployment{
			ID:             newID(),
			Name:           name,
			FrameworkID:    frameworkID,
			ParticipantIDs: dedupe(participants),
			CreatedAt:      e.stamp(),
		}
		if err := tx.InsertDeployment(ctx, out); err != nil {
			return err
		}
		return e.emit(ctx, tx, events.DeploymentCreated, out.ID, "deployment", out.ID, actor.ID, events.Payload{
			"name":         name,
			"framework_id": frameworkID,
			"participants": out.ParticipantIDs,
		})
	})
	return out, err
}

func viewableDeployment(ctx context.Context, tx repo.Tx, actor domain.Person, id string) (domain.Deployment, error) {
	dep, err := tx.GetDeployment(ctx, id)
	if err != nil {
		return domain.Deployment{}, err
	}
	if !auth.CanViewDeployment(actor, dep) {
		return domain.Deployment{}, domain.PermissionDenied("deployment.view")
	}
	return dep, nil
}

func manageableDeployment(ctx context.Context, tx repo.Tx, actor domain.Person, id string) (domain.Deployment, error) {
	dep, err := tx.GetDeployment(ctx, id)
	if err != nil {
		return domain.Deployment{}, err
	}
	if !auth.CanManageDeployment(actor, dep) {
		return domain.Deployment{}, domain.PermissionDenied("deployment.manage")
	}
	return dep, nil
}

// GetDeployment loads a deployment with participants, inventory, teams and
// tasks.
func (e Engine) GetDeployment(ctx context.Context, actorID, id string) (DeploymentView, error) {
	var out DeploymentView
	err := e.view(ctx, actorID, func(tx repo.Tx, actor domain.Person) error {
		dep, err := viewableDeployment(ctx, tx, actor, id)
		if err != nil {
			return err
		}
		out.Deployment = dep
		out.Participants = make([]domain.Person, 0, len(dep.ParticipantIDs))
		for _, pid := range dep.ParticipantIDs {
			p, err := tx.GetPerson(ctx, pid)
			if err != nil {
				return err
			}
			if p, err = withAssigned(ctx, tx, p); err != nil {
				return err
			}
			out.Participants = append(out.Participants, p)
		}
		if out.Inventory, err = itemViews(ctx, tx, dep.ID); err != nil {
			return err
		}
		if out.Teams, err = tx.ListTeams(ctx, dep.ID); err != nil {
			return err
		}
		out.Tasks, err = tx.ListTasks(ctx, dep.ID)
		return err
	})
	return out, err
}

// ListDeployments returns what the actor can see: everything for admins,
// their own deployments for everyone else.
func (e Engine) ListDeployments(ctx context.Context, actorID string) ([]domain.Deployment, error) {
	var out []domain.Deployment
	err := e.view(ctx, actorID, func(tx repo.Tx, actor domain.Person) error {
		f := repo.DeploymentFilter{}
		if actor.Role != domain.RoleAdmin {
			f.ParticipantID = actor.ID
		}
		var err error
		out, err = tx.ListDeployments(ctx, f)
		return err
	})
	return out, err
}

func (e Engine) RenameDeployment(ctx context.Context, actorID, id, name string) (domain.Deployment, error) {
	var out domain.Deployment
	err := e.mutate(ctx, "roster.rename_deployment", actorID, logrus.Fields{"deployment": id}, func(tx repo.Tx, actor domain.Person) error {
		name = strings.TrimSpace(name)
		if name == "" {
			return domain.InvalidArgument("deployment name required")
		}
		dep, err := manageableDeployment(ctx, tx, actor, id)
		if err != nil {
			return err
		}
		before := dep.Name
		dep.Name = name
		if err := tx.UpdateDeployment(ctx, dep); err != nil {
			return err
		}
		out = dep
		return e.emit(ctx, tx, events.DeploymentUpdated, dep.ID, "deployment", dep.ID, actor.ID, events.Payload{"before": before, "after": name})
	})
	return out, err
}

// DeleteDeployment removes a deployment with its inventory, teams and tasks.
// It is refused while anyone still holds equipment from it.
func (e Engine) DeleteDeployment(ctx context.Context, actorID, id string) error {
	return e.mutate(ctx, "roster.delete_deployment", actorID, logrus.Fields{"deployment": id}, func(tx repo.Tx, actor domain.Person) error {
		if actor.Role != domain.RoleAdmin {
			return domain.PermissionDenied("deployment.delete")
		}
		dep, err := tx.GetDeployment(ctx, id)
		if err != nil {
			return err
		}
		held, err := tx.ListAssigned(ctx, repo.AssignedFilter{DeploymentID: dep.ID})
		if err != nil {
			return err
		}
		if len(held) > 0 {
			return domain.EquipmentConflict(held[0].PersonID, len(held)).With("deployment_id", dep.ID)
		}
		if err := tx.DeleteDeployment(ctx, dep.ID); err != nil {
			return err
		}
		return e.emit(ctx, tx, events.DeploymentDeleted, dep.ID, "deployment", dep.ID, actor.ID, events.Payload{"name": dep.Name})
	})
}

func (e Engine) AddParticipants(ctx context.Context, actorID, deploymentID string, personIDs []string) (domain.Deployment, error) {
	var out domain.Deployment
	err := e.mutate(ctx, "roster.add_participants", actorID, logrus.Fields{"deployment": deploymentID}, func(tx repo.Tx, actor domain.Person) error {
		dep, err := manageableDeployment(ctx, tx, actor, deploymentID)
		if err != nil {
			return err
		}
		ids := dedupe(personIDs)
		if len(ids) == 0 {
			return domain.InvalidArgument("at least one person required")
		}
		for _, pid := range ids {
			if _, err := tx.GetPerson(ctx, pid); err != nil {
				return err
			}
			if dep.HasParticipant(pid) {
				continue
			}
			if err := tx.AddParticipant(ctx, dep.ID, pid); err != nil {
				return err
			}
			if err := e.emit(ctx, tx, events.ParticipantAdded, dep.ID, "person", pid, actor.ID, nil); err != nil {
				return err
			}
		}
		out, err = tx.GetDeployment(ctx, dep.ID)
		return err
	})
	return out, err
}

// RemoveParticipant takes a person out of a deployment and its teams. The
// person must not hold equipment from it.
func (e Engine) RemoveParticipant(ctx context.Context, actorID, deploymentID, personID string) error {
	return e.mutate(ctx, "roster.remove_participant", actorID, logrus.Fields{"deployment": deploymentID, "person": personID}, func(tx repo.Tx, actor domain.Person) error {
		dep, err := tx.GetDeployment(ctx, deploymentID)
		if err != nil {
			return err
		}
		target, err := tx.GetPerson(ctx, personID)
		if err != nil {
			return err
		}
		if !dep.HasParticipant(target.ID) {
			return domain.NotFound("participant", target.ID)
		}
		if !auth.CanRemoveFromDeployment(actor, target) {
			return domain.PermissionDenied("deployment.remove_participant")
		}
		held, err := tx.ListAssigned(ctx, repo.AssignedFilter{PersonID: target.ID, DeploymentID: dep.ID})
		if err != nil {
			return err
		}
		if len(held) > 0 {
			return domain.EquipmentConflict(target.ID, len(held)).With("deployment_id", dep.ID)
		}
		if err := dropFromDeployment(ctx, tx, dep.ID, target.ID); err != nil {
			return err
		}
		return e.emit(ctx, tx, events.ParticipantRemoved, dep.ID, "person", target.ID, actor.ID, nil)
	})
}
