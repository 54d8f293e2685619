package internal

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aquaflow-backend/config"
	"aquaflow-backend/internal/history"
	"aquaflow-backend/internal/model"
	"aquaflow-backend/internal/prefs"
	"aquaflow-backend/internal/registry"
	"aquaflow-backend/internal/session"
	"aquaflow-backend/internal/settlement"
	"aquaflow-backend/internal/store"
	"aquaflow-backend/internal/syncer"
	"aquaflow-backend/internal/testutil"
)

// TestCollectionLifecycle walks one unit from selection through a cash
// collection and checks every layer agrees afterwards.
func TestCollectionLifecycle(t *testing.T) {
	// --- Test Setup ---
	ctx := context.Background()
	gormDB := testutil.NewSQLite(t)

	claimed := time.Now().UTC().Add(-48 * time.Hour)
	testutil.SeedOwnedUnit(t, gormDB, "op-1", "AQUA-VND-001", claimed)
	testutil.SeedOwnedUnit(t, gormDB, "op-1", "AQUA-VND-002", claimed.Add(time.Hour))
	testutil.SetCoins(t, gormDB, "AQUA-VND-002", model.CoinCounts{P1: 10, P5: 4, P10: 2})

	cfg := config.SyncConfig{
		Mode:              config.FeedModePoll,
		PollInterval:      time.Hour,
		SuppressionWindow: 5 * time.Second,
		FetchTimeout:      time.Second,
	}

	st := store.NewGormStore(gormDB)
	localPrefs := prefs.NewGormStore(gormDB)
	svc := syncer.NewService(cfg, st, nil, nil)
	reg := registry.New(st, localPrefs, session.Static("op-1"), svc)
	archive := history.NewArchive(st, svc, time.UTC)
	coord := settlement.NewCoordinator(st, archive, svc, cfg)

	// --- Step 1: Load picks the oldest claim, then the operator switches units ---
	require.NoError(t, reg.Load(ctx))
	active, ok := reg.Active()
	require.True(t, ok)
	assert.Equal(t, "AQUA-VND-001", active)

	active, err := reg.SetActive(ctx, "aqua vnd 002")
	require.NoError(t, err)
	assert.Equal(t, "AQUA-VND-002", active)

	require.NoError(t, svc.Refresh(ctx))
	view := svc.View()
	require.NotNil(t, view.Snapshot)
	assert.Equal(t, "AQUA-VND-002", view.UnitID)
	assert.Equal(t, syncer.StatusConnected, view.Status)
	assert.Equal(t, int64(50), view.Snapshot.VaultTotal())

	// --- Step 2: Collect the vault ---
	res, err := coord.Settle(ctx, "AQUA-VND-002", view.Snapshot.InsertedCoins)
	require.NoError(t, err)
	assert.Equal(t, int64(50), res.Amount)
	assert.Equal(t, "AQUA-VND-002", res.UnitID)

	require.NoError(t, svc.Refresh(ctx))
	assert.True(t, svc.View().Snapshot.InsertedCoins.IsZero(), "the reset reading is applied")

	// --- Step 3: A stale firmware write inside the suppression window is held back ---
	testutil.SetCoins(t, gormDB, "AQUA-VND-002", model.CoinCounts{P1: 10, P5: 4, P10: 2})
	require.NoError(t, svc.Refresh(ctx))
	assert.True(t, svc.View().Snapshot.InsertedCoins.IsZero())

	// --- Step 4: History reflects the collection ---
	summary, err := archive.Summary(ctx, "AQUA-VND-002")
	require.NoError(t, err)
	assert.Equal(t, int64(50), summary.Daily)
	assert.Equal(t, int64(50), summary.AllTime)
	assert.Equal(t, int64(0), summary.LiveVault, "live vault is served from the cached snapshot")
	assert.Equal(t, 1, summary.Records)

	records, err := archive.List(ctx, "AQUA-VND-002")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, res.Record.ID, records[0].ID)

	pending, err := coord.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	// --- Step 5: A restarted daemon restores the selection ---
	restarted := registry.New(st, localPrefs, session.Static("op-1"), syncer.NewService(cfg, st, nil, nil))
	require.NoError(t, restarted.Load(ctx))
	active, _ = restarted.Active()
	assert.Equal(t, "AQUA-VND-002", active)
}
