package repo_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShovalB85/RasApp/internal/db"
	"github.com/ShovalB85/RasApp/internal/domain"
	"github.com/ShovalB85/RasApp/internal/events"
	"github.com/ShovalB85/RasApp/internal/migrate"
	"github.com/ShovalB85/RasApp/internal/repo"
)

const ts = "2024-01-01T00:00:00Z"

func stores(t *testing.T) map[string]repo.Store {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	_, err = migrate.Migrate(context.Background(), conn.DB)
	require.NoError(t, err)
	sqlStore := repo.NewSQLStore(conn)
	t.Cleanup(func() { _ = sqlStore.Close() })
	return map[string]repo.Store{
		"sqlite": sqlStore,
		"memory": repo.NewMemStore(),
	}
}

func strPtr(s string) *string { return &s }

func testNow() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }

func seed(t *testing.T, s repo.Store) {
	t.Helper()
	err := s.InTx(context.Background(), func(tx repo.Tx) error {
		ctx := context.Background()
		if err := tx.InsertFramework(ctx, domain.Framework{ID: "fw1", Name: "North", CreatedAt: ts}); err != nil {
			return err
		}
		for _, p := range []domain.Person{
			{ID: "p1", Name: "Dana", PersonalNumber: "100", Role: domain.RoleAdmin, FrameworkID: "fw1", CreatedAt: ts},
			{ID: "p2", Name: "Eli", PersonalNumber: "200", Role: domain.RoleMember, FrameworkID: "fw1", CreatedAt: ts},
		} {
			if err := tx.InsertPerson(ctx, p); err != nil {
				return err
			}
		}
		if err := tx.InsertDeployment(ctx, domain.Deployment{ID: "d1", Name: "Drill", FrameworkID: "fw1", ParticipantIDs: []string{"p1"}, CreatedAt: ts}); err != nil {
			return err
		}
		return tx.InsertItem(ctx, domain.InventoryItem{ID: "i1", DeploymentID: "d1", Name: "Radio", TracksSerial: true, Serials: []string{"A", "B"}, CreatedAt: ts})
	})
	require.NoError(t, err)
}

func TestStoreRoundTrip(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			seed(t, s)
			ctx := context.Background()
			err := s.View(ctx, func(tx repo.Tx) error {
				it, err := tx.FindItem(ctx, "d1", "  radio ", true)
				require.NoError(t, err)
				assert.Equal(t, []string{"A", "B"}, it.Serials)

				_, err = tx.FindItem(ctx, "d1", "radio", false)
				assert.ErrorIs(t, err, repo.ErrNotFound)

				dep, err := tx.GetDeployment(ctx, "d1")
				require.NoError(t, err)
				assert.Equal(t, []string{"p1"}, dep.ParticipantIDs)

				admins, err := tx.ListPeople(ctx, repo.PersonFilter{Roles: []domain.Role{domain.RoleAdmin}})
				require.NoError(t, err)
				require.Len(t, admins, 1)
				assert.Equal(t, "p1", admins[0].ID)
				return nil
			})
			require.NoError(t, err)
		})
	}
}

func TestStoreRollbackOnError(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			seed(t, s)
			ctx := context.Background()
			err := s.InTx(ctx, func(tx repo.Tx) error {
				it, err := tx.GetItem(ctx, "i1")
				if err != nil {
					return err
				}
				it.Serials = []string{"A"}
				if err := tx.UpdateItem(ctx, it); err != nil {
					return err
				}
				return domain.InvalidArgument("abort")
			})
			assert.ErrorIs(t, err, domain.ErrInvalidArgument)

			_ = s.View(ctx, func(tx repo.Tx) error {
				it, err := tx.GetItem(ctx, "i1")
				require.NoError(t, err)
				assert.Equal(t, []string{"A", "B"}, it.Serials)
				return nil
			})
		})
	}
}

func TestStoreDeleteItemDetachesAssignments(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			seed(t, s)
			ctx := context.Background()
			require.NoError(t, s.InTx(ctx, func(tx repo.Tx) error {
				if err := tx.InsertAssigned(ctx, domain.AssignedItem{
					ID: "a1", PersonID: "p2", Name: "Radio", Quantity: 1, Serial: strPtr("C"),
					Provider: "Drill", InventoryItemID: strPtr("i1"), DeploymentID: strPtr("d1"), AssignedAt: ts,
				}); err != nil {
					return err
				}
				return tx.DeleteItem(ctx, "i1")
			}))
			_ = s.View(ctx, func(tx repo.Tx) error {
				a, err := tx.GetAssigned(ctx, "a1")
				require.NoError(t, err)
				assert.Nil(t, a.InventoryItemID)
				assert.True(t, a.HasSerial())
				return nil
			})
		})
	}
}

func TestStoreEventsNewestFirst(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.InTx(ctx, func(tx repo.Tx) error {
				for _, typ := range []string{events.StockAdded, events.ItemAssigned, events.ItemReturned} {
					if err := tx.AppendEvent(ctx, events.New(testNow(), typ, "d1", "item", "i1", "p1", events.Payload{"n": 1})); err != nil {
						return err
					}
				}
				return tx.Reset(ctx)
			}))
			_ = s.View(ctx, func(tx repo.Tx) error {
				list, err := tx.ListEvents(ctx, repo.EventFilter{DeploymentID: "d1", Limit: 2})
				require.NoError(t, err)
				require.Len(t, list, 2)
				assert.Equal(t, events.ItemReturned, list[0].Type)
				assert.Equal(t, events.ItemAssigned, list[1].Type)
				assert.Greater(t, list[0].ID, list[1].ID)

				older, err := tx.ListEvents(ctx, repo.EventFilter{BeforeID: list[1].ID})
				require.NoError(t, err)
				require.Len(t, older, 1)
				assert.Equal(t, events.StockAdded, older[0].Type)
				return nil
			})
		})
	}
}

func TestStoreDuplicatePersonalNumber(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			seed(t, s)
			ctx := context.Background()
			err := s.InTx(ctx, func(tx repo.Tx) error {
				return tx.InsertPerson(ctx, domain.Person{ID: "p3", Name: "X", PersonalNumber: "100", Role: domain.RoleMember, FrameworkID: "fw1", CreatedAt: ts})
			})
			assert.ErrorIs(t, err, domain.ErrConflict)
		})
	}
}

func TestStoreRejectsNegativeItemQuantity(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			seed(t, s)
			ctx := context.Background()
			err := s.InTx(ctx, func(tx repo.Tx) error {
				return tx.InsertItem(ctx, domain.InventoryItem{ID: "i2", DeploymentID: "d1", Name: "Vest", Quantity: -1, Serials: []string{}, CreatedAt: ts})
			})
			require.Error(t, err)

			_ = s.View(ctx, func(tx repo.Tx) error {
				_, err := tx.GetItem(ctx, "i2")
				assert.ErrorIs(t, err, repo.ErrNotFound)
				return nil
			})
		})
	}
}
