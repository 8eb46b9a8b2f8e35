package engine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShovalB85/RasApp/internal/domain"
	"github.com/ShovalB85/RasApp/internal/engine"
	"github.com/ShovalB85/RasApp/internal/repo"
)

func TestLoginFlow(t *testing.T) {
	forEachStore(t, func(t *testing.T, env testEnv) {
		number := env.Admin.PersonalNumber

		res, err := env.Engine.Login(env.Ctx, number, "")
		require.NoError(t, err)
		assert.True(t, res.NeedsPassword)
		assert.Nil(t, res.Person)

		_, err = env.Engine.SetInitialPassword(env.Ctx, number, "short")
		assert.ErrorIs(t, err, domain.ErrInvalidArgument)
		p, err := env.Engine.SetInitialPassword(env.Ctx, number, "correct horse")
		require.NoError(t, err)
		assert.Equal(t, env.Admin.ID, p.ID)
		_, err = env.Engine.SetInitialPassword(env.Ctx, number, "another one")
		assert.ErrorIs(t, err, domain.ErrConflict)

		res, err = env.Engine.Login(env.Ctx, number, "")
		require.NoError(t, err)
		assert.True(t, res.NeedsPasswordEntry)

		_, err = env.Engine.Login(env.Ctx, number, "wrong password")
		assert.ErrorIs(t, err, domain.ErrUnauthenticated)
		_, err = env.Engine.Login(env.Ctx, "nobody", "correct horse")
		assert.ErrorIs(t, err, domain.ErrUnauthenticated)

		res, err = env.Engine.Login(env.Ctx, " "+number+" ", "correct horse")
		require.NoError(t, err)
		require.NotNil(t, res.Person)
		assert.Equal(t, env.Admin.ID, res.Person.ID)
		assert.NotNil(t, res.Person.AssignedItems)
	})
}

func TestChangePassword(t *testing.T) {
	forEachStore(t, func(t *testing.T, env testEnv) {
		number := env.Admin.PersonalNumber
		err := env.Engine.ChangePassword(env.Ctx, env.Admin.ID, "", "whatever123")
		assert.ErrorIs(t, err, domain.ErrInvalidArgument)

		_, err = env.Engine.SetInitialPassword(env.Ctx, number, "first-password")
		require.NoError(t, err)
		err = env.Engine.ChangePassword(env.Ctx, env.Admin.ID, "not-it", "second-password")
		assert.ErrorIs(t, err, domain.ErrUnauthenticated)
		require.NoError(t, env.Engine.ChangePassword(env.Ctx, env.Admin.ID, "first-password", "second-password"))

		_, err = env.Engine.Login(env.Ctx, number, "first-password")
		assert.ErrorIs(t, err, domain.ErrUnauthenticated)
		res, err := env.Engine.Login(env.Ctx, number, "second-password")
		require.NoError(t, err)
		assert.NotNil(t, res.Person)
	})
}

func TestEnsurePrimaryAdminIsIdempotent(t *testing.T) {
	forEachStore(t, func(t *testing.T, env testEnv) {
		again, created, err := env.Engine.EnsurePrimaryAdmin(env.Ctx, env.Engine.Config.Seed)
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, env.Admin.ID, again.ID)
		assert.True(t, again.IsPrimaryAdmin)

		me, err := env.Engine.Me(env.Ctx, env.Admin.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.RoleAdmin, me.Role)
	})
}

func TestSnapshotRoundTrip(t *testing.T) {
	forEachStore(t, func(t *testing.T, env testEnv) {
		s := env.person(t, "s", domain.RoleMember)
		d := env.deployment(t, "D", s)
		radio := env.stock(t, d.ID, engine.StockLine{Name: "Radio", TracksSerial: true, Serials: []string{"R1", "R2"}})
		_, err := env.Engine.Assign(env.Ctx, env.Admin.ID, s.ID, radio.ID, 0, "R1")
		require.NoError(t, err)
		_, err = env.Engine.SetInitialPassword(env.Ctx, env.Admin.PersonalNumber, "restore-me")
		require.NoError(t, err)

		snap, err := env.Engine.Export(env.Ctx, env.Admin.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.SnapshotVersion, snap.Version)
		assert.Len(t, snap.People, 2)
		assert.Len(t, snap.Assignments, 1)

		_, err = env.Engine.Export(env.Ctx, s.ID)
		assert.ErrorIs(t, err, domain.ErrPermissionDenied)

		// diverge, then roll back
		env.stock(t, d.ID, engine.StockLine{Name: "Vest", NoSerialQuantity: 4})
		env.person(t, "late", domain.RoleMember)
		require.NoError(t, env.Engine.Restore(env.Ctx, env.Admin.ID, snap))

		items, err := env.Engine.ListInventory(env.Ctx, env.Admin.ID, d.ID)
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, []string{"R2"}, items[0].Serials)
		_, err = env.Engine.Login(env.Ctx, "pn-late", "")
		assert.ErrorIs(t, err, domain.ErrUnauthenticated)
		res, err := env.Engine.Login(env.Ctx, env.Admin.PersonalNumber, "restore-me")
		require.NoError(t, err)
		require.NotNil(t, res.Person)

		evts, err := env.Engine.ListEvents(env.Ctx, env.Admin.ID, repo.EventFilter{Limit: 1})
		require.NoError(t, err)
		require.Len(t, evts, 1)
		assert.Equal(t, "snapshot.restored", evts[0].Type)
	})
}

func TestRestoreIntoOtherBackend(t *testing.T) {
	src := newTestEnv(t, "sqlite")
	s := src.person(t, "s", domain.RoleMember)
	d := src.deployment(t, "D", s)
	src.stock(t, d.ID, engine.StockLine{Name: "Vest", NoSerialQuantity: 4})
	snap, err := src.Engine.Export(src.Ctx, src.Admin.ID)
	require.NoError(t, err)

	dst := newTestEnv(t, "memory")
	require.NoError(t, dst.Engine.Restore(dst.Ctx, dst.Admin.ID, snap))

	view, err := dst.Engine.GetDeployment(dst.Ctx, src.Admin.ID, d.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{src.Admin.ID, s.ID}, view.ParticipantIDs)
	require.Len(t, view.Inventory, 1)
	assert.Equal(t, 4, view.Inventory[0].Available)

	_, err = dst.Engine.Me(dst.Ctx, dst.Admin.ID)
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)
}

func TestRestoreRejectsBadSnapshots(t *testing.T) {
	forEachStore(t, func(t *testing.T, env testEnv) {
		snap, err := env.Engine.Export(env.Ctx, env.Admin.ID)
		require.NoError(t, err)

		bad := snap
		bad.Version = 99
		assert.ErrorIs(t, env.Engine.Restore(env.Ctx, env.Admin.ID, bad), domain.ErrInvalidArgument)

		noAdmin := snap
		noAdmin.People = nil
		assert.ErrorIs(t, env.Engine.Restore(env.Ctx, env.Admin.ID, noAdmin), domain.ErrInvalidArgument)

		// nothing was touched
		_, err = env.Engine.Me(env.Ctx, env.Admin.ID)
		require.NoError(t, err)
	})
}

func TestRestoreRejectsOutOfRangeQuantities(t *testing.T) {
	forEachStore(t, func(t *testing.T, env testEnv) {
		s := env.person(t, "s", domain.RoleMember)
		d := env.deployment(t, "D", s)
		vest := env.stock(t, d.ID, engine.StockLine{Name: "Vest", NoSerialQuantity: 10})
		_, err := env.Engine.Assign(env.Ctx, env.Admin.ID, s.ID, vest.ID, 2, "")
		require.NoError(t, err)

		snap, err := env.Engine.Export(env.Ctx, env.Admin.ID)
		require.NoError(t, err)
		require.Len(t, snap.Items, 1)
		require.Len(t, snap.Assignments, 1)

		negative := snap
		negative.Items = []domain.InventoryItem{snap.Items[0]}
		negative.Items[0].Quantity = -1
		assert.ErrorIs(t, env.Engine.Restore(env.Ctx, env.Admin.ID, negative), domain.ErrInvalidArgument)

		zero := snap
		zero.Assignments = []domain.AssignedItem{snap.Assignments[0]}
		zero.Assignments[0].Quantity = 0
		assert.ErrorIs(t, env.Engine.Restore(env.Ctx, env.Admin.ID, zero), domain.ErrInvalidArgument)

		assert.Equal(t, 10, env.item(t, vest.ID).Quantity)
		assert.Equal(t, 8, env.available(t, vest.ID))
	})
}
