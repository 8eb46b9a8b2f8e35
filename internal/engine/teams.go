package engine

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ShovalB85/RasApp/internal/domain"
	"github.com/ShovalB85/RasApp/internal/events"
	"github.com/ShovalB85/RasApp/internal/repo"
)

// TeamInput creates a team when ID is empty and replaces it otherwise.
type TeamInput struct {
	ID        string   `json:"id,omitempty"`
	Name      string   `json:"name"`
	MemberIDs []string `json:"member_ids"`
	LeaderID  string   `json:"leader_id,omitempty"`
}

func (e Engine) SaveTeam(ctx context.Context, actorID, deploymentID string, in TeamInput) (domain.Team, error) {
	var out domain.Team
	err := e.mutate(ctx, "roster.save_team", actorID, logrus.Fields{"deployment": deploymentID}, func(tx repo.Tx, actor domain.Person) error {
		dep, err := manageableDeployment(ctx, tx, actor, deploymentID)
		if err != nil {
			return err
		}
		name := strings.TrimSpace(in.Name)
		if name == "" {
			return domain.InvalidArgument("team name required")
		}
		members := dedupe(in.MemberIDs)
		for _, id := range members {
			if !dep.HasParticipant(id) {
				return domain.InvalidArgument("person %s is not a participant of deployment %s", id, dep.ID)
			}
		}
		leader := in.LeaderID
		if leader == "" && len(members) > 0 {
			leader = members[0]
		}
		team := domain.Team{ID: in.ID, DeploymentID: dep.ID, Name: name, MemberIDs: members, LeaderID: leader}
		if leader != "" && !team.HasMember(leader) {
			return domain.InvalidArgument("leader %s must be a team member", leader)
		}
		if in.ID == "" {
			team.ID = newID()
			err = tx.InsertTeam(ctx, team)
		} else {
			cur, gerr := tx.GetTeam(ctx, in.ID)
			if gerr != nil {
				return gerr
			}
			if cur.DeploymentID != dep.ID {
				return domain.NotFound("team", in.ID)
			}
			err = tx.UpdateTeam(ctx, team)
		}
		if err != nil {
			return err
		}
		out = team
		return e.emit(ctx, tx, events.TeamSaved, dep.ID, "team", team.ID, actor.ID, events.Payload{
			"name":      name,
			"members":   members,
			"leader_id": leader,
		})
	})
	return out, err
}

func (e Engine) DeleteTeam(ctx context.Context, actorID, deploymentID, teamID string) error {
	return e.mutate(ctx, "roster.delete_team", actorID, logrus.Fields{"deployment": deploymentID, "team": teamID}, func(tx repo.Tx, actor domain.Person) error {
		dep, err := manageableDeployment(ctx, tx, actor, deploymentID)
		if err != nil {
			return err
		}
		team, err := tx.GetTeam(ctx, teamID)
		if err != nil {
			return err
		}
		if team.DeploymentID != dep.ID {
			return domain.NotFound("team", teamID)
		}
		if err := tx.DeleteTeam(ctx, team.ID); err != nil {
			return err
		}
		return e.emit(ctx, tx, events.TeamDeleted, dep.ID, "team", team.ID, actor.ID, events.Payload{"name": team.Name})
	})
}

func (e Engine) ListTeams(ctx context.Context, actorID, deploymentID string) ([]domain.Team, error) {
	var out []domain.Team
	err := e.view(ctx, actorID, func(tx repo.Tx, actor domain.Person) error {
		dep, err := viewableDeployment(ctx, tx, actor, deploymentID)
		if err != nil {
			return err
		}
		out, err = tx.ListTeams(ctx, dep.ID)
		return err
	})
	return out, err
}
