package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/ShovalB85/RasApp/internal/config"
	"github.com/ShovalB85/RasApp/internal/logging"
	"github.com/ShovalB85/RasApp/internal/repo"
)

func TestOpenSeedsOnceAndReopens(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()
	cfg.Database.Workspace = t.TempDir()
	cfg.Auth.BcryptCost = bcrypt.MinCost

	a, err := Open(ctx, cfg, logging.Discard(), Options{})
	require.NoError(t, err)
	p, created, err := a.Seed(ctx)
	require.NoError(t, err)
	require.False(t, created)
	require.True(t, p.IsPrimaryAdmin)
	require.Equal(t, cfg.Seed.AdminPersonalNumber, p.PersonalNumber)
	require.NoError(t, a.Close())

	b, err := Open(ctx, cfg, logging.Discard(), Options{})
	require.NoError(t, err)
	defer b.Close()
	var admins int
	require.NoError(t, b.Store.View(ctx, func(tx repo.Tx) error {
		people, err := tx.ListPeople(ctx, repo.PersonFilter{})
		admins = len(people)
		return err
	}))
	require.Equal(t, 1, admins)
}
