package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ShovalB85/RasApp/internal/domain"
)

var (
	admin    = domain.Person{ID: "a", Role: domain.RoleAdmin}
	primary  = domain.Person{ID: "pa", Role: domain.RoleAdmin, IsPrimaryAdmin: true}
	manager  = domain.Person{ID: "m", Role: domain.RoleManager}
	outsider = domain.Person{ID: "m2", Role: domain.RoleManager}
	member   = domain.Person{ID: "s", Role: domain.RoleMember}
	dep      = domain.Deployment{ID: "d", ParticipantIDs: []string{"a", "m", "s"}}
)

func TestCanManageInventory(t *testing.T) {
	assert.True(t, CanManageInventory(admin, domain.Deployment{ID: "other"}))
	assert.True(t, CanManageInventory(manager, dep))
	assert.False(t, CanManageInventory(outsider, dep))
	assert.False(t, CanManageInventory(member, dep))
}

func TestCanRemoveFromDeployment(t *testing.T) {
	cases := []struct {
		name   string
		actor  domain.Person
		target domain.Person
		want   bool
	}{
		{"self", manager, manager, false},
		{"admin removes manager", admin, manager, true},
		{"manager removes manager", outsider, manager, false},
		{"manager removes member", manager, member, true},
		{"member removes member", member, domain.Person{ID: "s2", Role: domain.RoleMember}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, CanRemoveFromDeployment(tc.actor, tc.target))
		})
	}
}

func TestCanRemoveFromFramework(t *testing.T) {
	err := CanRemoveFromFramework(admin, member, []domain.Deployment{dep})
	assert.ErrorIs(t, err, domain.ErrActiveDeploymentMembership)

	free := domain.Person{ID: "free", Role: domain.RoleMember}
	assert.NoError(t, CanRemoveFromFramework(manager, free, []domain.Deployment{dep}))
	assert.ErrorIs(t, CanRemoveFromFramework(member, free, nil), domain.ErrPermissionDenied)
}

func TestCanUnassignOrEditAssignedItem(t *testing.T) {
	d := "d"
	linked := domain.AssignedItem{DeploymentID: &d}
	external := domain.AssignedItem{}

	assert.True(t, CanUnassignOrEditAssignedItem(manager, linked, &dep))
	assert.False(t, CanUnassignOrEditAssignedItem(outsider, linked, &dep))
	assert.True(t, CanUnassignOrEditAssignedItem(outsider, external, nil))
	assert.False(t, CanUnassignOrEditAssignedItem(member, external, nil))
}

func TestCanViewDeployment(t *testing.T) {
	assert.True(t, CanViewDeployment(admin, domain.Deployment{}))
	assert.True(t, CanViewDeployment(member, dep))
	assert.False(t, CanViewDeployment(outsider, dep))
}

func TestCanChangeRole(t *testing.T) {
	assert.False(t, CanChangeRole(admin, primary, domain.RoleMember))
	assert.True(t, CanChangeRole(admin, member, domain.RoleAdmin))
	assert.True(t, CanChangeRole(manager, member, domain.RoleManager))
	assert.False(t, CanChangeRole(manager, member, domain.RoleAdmin))
	assert.False(t, CanChangeRole(manager, admin, domain.RoleManager))
	assert.False(t, CanChangeRole(member, member, domain.RoleManager))
}

func TestCanAddPerson(t *testing.T) {
	assert.True(t, CanAddPerson(manager, domain.RoleMember))
	assert.False(t, CanAddPerson(manager, domain.RoleAdmin))
	assert.True(t, CanAddPerson(admin, domain.RoleAdmin))
	assert.False(t, CanAddPerson(member, domain.RoleMember))
	assert.True(t, CanDecreaseOrDelete(admin))
	assert.False(t, CanDecreaseOrDelete(manager))
}
