package engine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShovalB85/RasApp/internal/domain"
	"github.com/ShovalB85/RasApp/internal/engine"
)

func TestAdminsJoinEveryDeployment(t *testing.T) {
	forEachStore(t, func(t *testing.T, env testEnv) {
		m := env.person(t, "m", domain.RoleManager)
		d, err := env.Engine.CreateDeployment(env.Ctx, m.ID, env.FrameworkID, "Drill")
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{env.Admin.ID, m.ID}, d.ParticipantIDs)

		promoted := env.person(t, "p", domain.RoleMember)
		_, err = env.Engine.ChangeRole(env.Ctx, env.Admin.ID, promoted.ID, domain.RoleAdmin)
		require.NoError(t, err)

		view, err := env.Engine.GetDeployment(env.Ctx, env.Admin.ID, d.ID)
		require.NoError(t, err)
		assert.Contains(t, view.ParticipantIDs, promoted.ID)

		later := env.deployment(t, "Later")
		assert.Contains(t, later.ParticipantIDs, promoted.ID)
	})
}

func TestDemotedAdminLeavesDeploymentsAndTeams(t *testing.T) {
	forEachStore(t, func(t *testing.T, env testEnv) {
		a := env.person(t, "a", domain.RoleAdmin)
		s := env.person(t, "s", domain.RoleMember)
		d := env.deployment(t, "D", s)
		other := env.deployment(t, "E")
		require.Contains(t, d.ParticipantIDs, a.ID)
		require.Contains(t, other.ParticipantIDs, a.ID)

		team, err := env.Engine.SaveTeam(env.Ctx, env.Admin.ID, d.ID, engine.TeamInput{Name: "Alpha", MemberIDs: []string{a.ID, s.ID}})
		require.NoError(t, err)
		assert.Equal(t, a.ID, team.LeaderID)

		_, err = env.Engine.ChangeRole(env.Ctx, env.Admin.ID, a.ID, domain.RoleMember)
		require.NoError(t, err)

		view, err := env.Engine.GetDeployment(env.Ctx, env.Admin.ID, d.ID)
		require.NoError(t, err)
		assert.NotContains(t, view.ParticipantIDs, a.ID)
		require.Len(t, view.Teams, 1)
		assert.Equal(t, []string{s.ID}, view.Teams[0].MemberIDs)
		assert.Equal(t, s.ID, view.Teams[0].LeaderID)

		view, err = env.Engine.GetDeployment(env.Ctx, env.Admin.ID, other.ID)
		require.NoError(t, err)
		assert.NotContains(t, view.ParticipantIDs, a.ID)
	})
}

func TestRoleChangeRules(t *testing.T) {
	forEachStore(t, func(t *testing.T, env testEnv) {
		m := env.person(t, "m", domain.RoleManager)
		s := env.person(t, "s", domain.RoleMember)

		_, err := env.Engine.ChangeRole(env.Ctx, m.ID, s.ID, domain.RoleAdmin)
		assert.ErrorIs(t, err, domain.ErrPermissionDenied)

		p, err := env.Engine.ChangeRole(env.Ctx, m.ID, s.ID, domain.RoleManager)
		require.NoError(t, err)
		assert.Equal(t, domain.RoleManager, p.Role)

		_, err = env.Engine.ChangeRole(env.Ctx, env.Admin.ID, env.Admin.ID, domain.RoleMember)
		assert.ErrorIs(t, err, domain.ErrPermissionDenied)

		_, err = env.Engine.AddPerson(env.Ctx, m.ID, env.FrameworkID, engine.PersonInput{Name: "x", PersonalNumber: "pn-x", Role: domain.RoleAdmin})
		assert.ErrorIs(t, err, domain.ErrPrivilegeTooLow)

		_, err = env.Engine.AddPerson(env.Ctx, s.ID, env.FrameworkID, engine.PersonInput{Name: "y", PersonalNumber: "pn-y"})
		require.NoError(t, err, "s is a manager now")
	})
}

func TestAddPersonUpsertsByPersonalNumber(t *testing.T) {
	forEachStore(t, func(t *testing.T, env testEnv) {
		first := env.person(t, "s", domain.RoleMember)
		again, err := env.Engine.AddPerson(env.Ctx, env.Admin.ID, env.FrameworkID, engine.PersonInput{Name: "Sam", PersonalNumber: " pn-s ", Role: domain.RoleManager})
		require.NoError(t, err)
		assert.Equal(t, first.ID, again.ID)
		assert.Equal(t, "Sam", again.Name)
		assert.Equal(t, domain.RoleManager, again.Role)
	})
}

func TestRemoveParticipant(t *testing.T) {
	forEachStore(t, func(t *testing.T, env testEnv) {
		m := env.person(t, "m", domain.RoleManager)
		m2 := env.person(t, "m2", domain.RoleManager)
		s := env.person(t, "s", domain.RoleMember)
		holder := env.person(t, "h", domain.RoleMember)
		outsider := env.person(t, "o", domain.RoleMember)
		d := env.deployment(t, "D", m, m2, s, holder)
		vest := env.stock(t, d.ID, engine.StockLine{Name: "Vest", NoSerialQuantity: 3})
		_, err := env.Engine.Assign(env.Ctx, env.Admin.ID, holder.ID, vest.ID, 1, "")
		require.NoError(t, err)

		err = env.Engine.RemoveParticipant(env.Ctx, m.ID, d.ID, outsider.ID)
		assert.ErrorIs(t, err, domain.ErrNotFound)
		err = env.Engine.RemoveParticipant(env.Ctx, m.ID, d.ID, m.ID)
		assert.ErrorIs(t, err, domain.ErrPermissionDenied)
		err = env.Engine.RemoveParticipant(env.Ctx, m.ID, d.ID, m2.ID)
		assert.ErrorIs(t, err, domain.ErrPermissionDenied)
		err = env.Engine.RemoveParticipant(env.Ctx, s.ID, d.ID, holder.ID)
		assert.ErrorIs(t, err, domain.ErrPermissionDenied)
		err = env.Engine.RemoveParticipant(env.Ctx, m.ID, d.ID, holder.ID)
		assert.ErrorIs(t, err, domain.ErrEquipmentConflict)

		require.NoError(t, env.Engine.RemoveParticipant(env.Ctx, m.ID, d.ID, s.ID))
		require.NoError(t, env.Engine.RemoveParticipant(env.Ctx, env.Admin.ID, d.ID, m2.ID))

		view, err := env.Engine.GetDeployment(env.Ctx, env.Admin.ID, d.ID)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{env.Admin.ID, m.ID, holder.ID}, view.ParticipantIDs)
	})
}

func TestRemoveFromFramework(t *testing.T) {
	forEachStore(t, func(t *testing.T, env testEnv) {
		m := env.person(t, "m", domain.RoleManager)
		s := env.person(t, "s", domain.RoleMember)
		d := env.deployment(t, "D", s)

		err := env.Engine.RemoveFromFramework(env.Ctx, env.Admin.ID, s.ID)
		assert.ErrorIs(t, err, domain.ErrActiveDeploymentMembership)
		require.NoError(t, env.Engine.RemoveParticipant(env.Ctx, env.Admin.ID, d.ID, s.ID))

		ext, err := env.Engine.AssignExternal(env.Ctx, env.Admin.ID, s.ID, engine.ExternalItem{Name: "Boots", Quantity: 1})
		require.NoError(t, err)
		err = env.Engine.RemoveFromFramework(env.Ctx, m.ID, s.ID)
		assert.ErrorIs(t, err, domain.ErrEquipmentConflict)
		require.NoError(t, env.Engine.Unassign(env.Ctx, env.Admin.ID, s.ID, ext.ID))

		err = env.Engine.RemoveFromFramework(env.Ctx, m.ID, env.Admin.ID)
		assert.ErrorIs(t, err, domain.ErrPermissionDenied)

		require.NoError(t, env.Engine.RemoveFromFramework(env.Ctx, m.ID, s.ID))
		_, err = env.Engine.GetPerson(env.Ctx, env.Admin.ID, s.ID)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestMemberSeesOnlyThemselves(t *testing.T) {
	forEachStore(t, func(t *testing.T, env testEnv) {
		s := env.person(t, "s", domain.RoleMember)
		other := env.person(t, "o", domain.RoleMember)
		env.deployment(t, "Hidden")
		mine := env.deployment(t, "Mine", s)

		_, err := env.Engine.GetPerson(env.Ctx, s.ID, other.ID)
		assert.ErrorIs(t, err, domain.ErrPermissionDenied)
		me, err := env.Engine.GetPerson(env.Ctx, s.ID, s.ID)
		require.NoError(t, err)
		assert.NotNil(t, me.AssignedItems)

		deps, err := env.Engine.ListDeployments(env.Ctx, s.ID)
		require.NoError(t, err)
		require.Len(t, deps, 1)
		assert.Equal(t, mine.ID, deps[0].ID)
	})
}

func TestDeleteDeploymentBlockedByCustody(t *testing.T) {
	forEachStore(t, func(t *testing.T, env testEnv) {
		s := env.person(t, "s", domain.RoleMember)
		d := env.deployment(t, "D", s)
		vest := env.stock(t, d.ID, engine.StockLine{Name: "Vest", NoSerialQuantity: 3})
		a, err := env.Engine.Assign(env.Ctx, env.Admin.ID, s.ID, vest.ID, 1, "")
		require.NoError(t, err)

		err = env.Engine.DeleteDeployment(env.Ctx, env.Admin.ID, d.ID)
		assert.ErrorIs(t, err, domain.ErrEquipmentConflict)

		require.NoError(t, env.Engine.Unassign(env.Ctx, env.Admin.ID, s.ID, a.ID))
		require.NoError(t, env.Engine.DeleteDeployment(env.Ctx, env.Admin.ID, d.ID))

		_, err = env.Engine.Availability(env.Ctx, vest.ID)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestTeamsRequireParticipants(t *testing.T) {
	forEachStore(t, func(t *testing.T, env testEnv) {
		s := env.person(t, "s", domain.RoleMember)
		outsider := env.person(t, "o", domain.RoleMember)
		d := env.deployment(t, "D", s)

		_, err := env.Engine.SaveTeam(env.Ctx, env.Admin.ID, d.ID, engine.TeamInput{Name: "Alpha", MemberIDs: []string{outsider.ID}})
		assert.ErrorIs(t, err, domain.ErrInvalidArgument)
		_, err = env.Engine.SaveTeam(env.Ctx, env.Admin.ID, d.ID, engine.TeamInput{Name: "Alpha", MemberIDs: []string{s.ID}, LeaderID: env.Admin.ID})
		assert.ErrorIs(t, err, domain.ErrInvalidArgument)

		team, err := env.Engine.SaveTeam(env.Ctx, env.Admin.ID, d.ID, engine.TeamInput{Name: "Alpha", MemberIDs: []string{s.ID}})
		require.NoError(t, err)
		renamed, err := env.Engine.SaveTeam(env.Ctx, env.Admin.ID, d.ID, engine.TeamInput{ID: team.ID, Name: "Bravo", MemberIDs: []string{s.ID, env.Admin.ID}, LeaderID: env.Admin.ID})
		require.NoError(t, err)
		assert.Equal(t, team.ID, renamed.ID)

		teams, err := env.Engine.ListTeams(env.Ctx, s.ID, d.ID)
		require.NoError(t, err)
		require.Len(t, teams, 1)
		assert.Equal(t, "Bravo", teams[0].Name)

		require.NoError(t, env.Engine.DeleteTeam(env.Ctx, env.Admin.ID, d.ID, team.ID))
		teams, err = env.Engine.ListTeams(env.Ctx, s.ID, d.ID)
		require.NoError(t, err)
		assert.Empty(t, teams)
	})
}

func TestListFrameworksIncludesAdmins(t *testing.T) {
	forEachStore(t, func(t *testing.T, env testEnv) {
		f, err := env.Engine.CreateFramework(env.Ctx, env.Admin.ID, "Reserve")
		require.NoError(t, err)
		_, err = env.Engine.AddPerson(env.Ctx, env.Admin.ID, f.ID, engine.PersonInput{Name: "r", PersonalNumber: "pn-r"})
		require.NoError(t, err)

		list, err := env.Engine.ListFrameworks(env.Ctx, env.Admin.ID)
		require.NoError(t, err)
		require.Len(t, list, 2)
		for _, fw := range list {
			ids := []string{}
			for _, p := range fw.Persons {
				ids = append(ids, p.ID)
			}
			assert.Contains(t, ids, env.Admin.ID, fw.Name)
		}
	})
}
