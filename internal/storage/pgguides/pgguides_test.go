package pgguides

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/BearBump/GuideBox/internal/models"
	"github.com/BearBump/GuideBox/internal/services/guides"
)

func startPostgres(t *testing.T) *Storage {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:15-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "admin",
			"POSTGRES_PASSWORD": "admin",
			"POSTGRES_DB":       "guidebox_test",
		},
		WaitingFor: wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	pgC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgC.Terminate(ctx) })

	host, err := pgC.Host(ctx)
	require.NoError(t, err)
	port, err := pgC.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	dsn := "postgres://admin:admin@" + host + ":" + port.Port() + "/guidebox_test?sslmode=disable"
	st, err := New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(st.Close)
	return st
}

func TestPGGuides_RepoFlow(t *testing.T) {
	ctx := context.Background()
	st := startPostgres(t)
	now := time.Now().UTC()

	var a, b *models.Guide
	err := st.InBatch(ctx, func(ops guides.BatchOps) error {
		var err error
		a, err = ops.InsertGuide(ctx, models.GuideInput{
			TrackingNumber: "ABC123",
			Recipient:      "Jane Doe",
			Address:        "Calle 1 # 2-3",
			Status:         models.StatusPending,
			SourceFile:     "guides.xlsx",
		}, models.StatusChange{NewStatus: models.StatusPending, Action: models.HistoryActionCreated, ChangedAt: now})
		if err != nil {
			return err
		}
		b, err = ops.InsertGuide(ctx, models.GuideInput{
			TrackingNumber: "XYZ9",
			Recipient:      "Bob",
			Address:        "N/A",
			Status:         models.StatusDone,
			SourceFile:     "guides.xlsx",
		}, models.StatusChange{NewStatus: models.StatusDone, Action: models.HistoryActionCreated, ChangedAt: now})
		return err
	})
	require.NoError(t, err)
	require.NotZero(t, a.ID)
	require.NotZero(t, b.ID)

	// lookup inside a fresh batch sees committed rows
	err = st.InBatch(ctx, func(ops guides.BatchOps) error {
		found, err := ops.FindByTrackingNumber(ctx, "ABC123")
		require.NoError(t, err)
		require.NotNil(t, found)
		require.Equal(t, a.ID, found.ID)

		missing, err := ops.FindByTrackingNumber(ctx, "NOPE")
		require.NoError(t, err)
		require.Nil(t, missing)
		return nil
	})
	require.NoError(t, err)

	g, err := st.GetGuide(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, "Jane Doe", g.Recipient)
	require.Equal(t, models.StatusPending, g.Status)

	missing, err := st.GetGuide(ctx, 99999)
	require.NoError(t, err)
	require.Nil(t, missing)

	// status update with history
	note := "auto-sync: pending → in_progress"
	err = st.UpdateGuide(ctx, guides.GuideUpdate{
		GuideID:    a.ID,
		SetStatus:  true,
		Status:     models.StatusInProgress,
		LastSyncAt: now,
		Notes:      &note,
		History: &models.StatusChange{
			GuideID:        a.ID,
			PreviousStatus: models.StatusPending,
			NewStatus:      models.StatusInProgress,
			Action:         models.HistoryActionStatusChange,
			ChangedAt:      now,
		},
	})
	require.NoError(t, err)

	g, err = st.GetGuide(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusInProgress, g.Status)
	require.NotNil(t, g.LastSyncAt)
	require.NotNil(t, g.Notes)

	hist, err := st.ListHistory(ctx, a.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, hist, 2)

	last, err := st.LatestChange(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, models.HistoryActionStatusChange, last.Action)
	require.Equal(t, models.StatusInProgress, last.NewStatus)

	// filters and paging
	items, total, err := st.ListGuides(ctx, guides.ListFilter{Status: models.StatusDone, Page: 1, PerPage: 10})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Len(t, items, 1)
	require.Equal(t, "XYZ9", items[0].TrackingNumber)

	items, total, err = st.ListGuides(ctx, guides.ListFilter{Search: "abc", Page: 1, PerPage: 10})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Equal(t, "ABC123", items[0].TrackingNumber)

	all, err := st.ListAllGuides(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)

	syncable, err := st.ListSyncableGuides(ctx)
	require.NoError(t, err)
	require.Len(t, syncable, 1)
	require.Equal(t, a.ID, syncable[0].ID)

	counts, err := st.CountByStatus(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, counts[models.StatusInProgress])
	require.Equal(t, 1, counts[models.StatusDone])

	synced, err := st.CountSyncedSince(ctx, now.Add(-time.Minute))
	require.NoError(t, err)
	require.Equal(t, 1, synced)
}

func TestPGGuides_ClaimDueGuides(t *testing.T) {
	ctx := context.Background()
	st := startPostgres(t)
	now := time.Now().UTC()

	var a, b *models.Guide
	err := st.InBatch(ctx, func(ops guides.BatchOps) error {
		var err error
		a, err = ops.InsertGuide(ctx, models.GuideInput{
			TrackingNumber: "DUE1", Recipient: "N/A", Address: "N/A", Status: models.StatusPending,
		}, models.StatusChange{NewStatus: models.StatusPending, Action: models.HistoryActionCreated, ChangedAt: now})
		if err != nil {
			return err
		}
		b, err = ops.InsertGuide(ctx, models.GuideInput{
			TrackingNumber: "LATER1", Recipient: "N/A", Address: "N/A", Status: models.StatusPending,
		}, models.StatusChange{NewStatus: models.StatusPending, Action: models.HistoryActionCreated, ChangedAt: now})
		return err
	})
	require.NoError(t, err)

	// exactly one guide is due
	_, err = st.pool.Exec(ctx, `UPDATE guides SET next_check_at = now() - interval '1 minute' WHERE id = $1`, a.ID)
	require.NoError(t, err)
	_, err = st.pool.Exec(ctx, `UPDATE guides SET next_check_at = now() + interval '1 hour' WHERE id = $1`, b.ID)
	require.NoError(t, err)

	lease := 10 * time.Minute
	due, err := st.ClaimDueGuides(ctx, 10, lease)
	require.NoError(t, err)
	require.Len(t, due, 1)
	require.Equal(t, a.ID, due[0].ID)
	require.WithinDuration(t, now.Add(lease), due[0].NextCheckAt, 5*time.Second)

	// claimed guide is leased out until next_check_at comes around again
	due, err = st.ClaimDueGuides(ctx, 10, lease)
	require.NoError(t, err)
	require.Empty(t, due)

	require.NoError(t, st.RescheduleGuide(ctx, a.ID, now.Add(-time.Second)))
	due, err = st.ClaimDueGuides(ctx, 10, lease)
	require.NoError(t, err)
	require.Len(t, due, 1)
}

func TestPGGuides_InsertConflictReturnsExisting(t *testing.T) {
	ctx := context.Background()
	st := startPostgres(t)
	now := time.Now().UTC()

	var first, second *models.Guide
	err := st.InBatch(ctx, func(ops guides.BatchOps) error {
		var err error
		first, err = ops.InsertGuide(ctx, models.GuideInput{
			TrackingNumber: "DUP1", Recipient: "One", Address: "N/A", Status: models.StatusPending,
		}, models.StatusChange{NewStatus: models.StatusPending, Action: models.HistoryActionCreated, ChangedAt: now})
		if err != nil {
			return err
		}
		second, err = ops.InsertGuide(ctx, models.GuideInput{
			TrackingNumber: "DUP1", Recipient: "Two", Address: "N/A", Status: models.StatusPending,
		}, models.StatusChange{NewStatus: models.StatusPending, Action: models.HistoryActionCreated, ChangedAt: now})
		return err
	})
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, "One", second.Recipient)

	hist, err := st.ListHistory(ctx, first.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, hist, 1)
}

func TestPGGuides_Deletes(t *testing.T) {
	ctx := context.Background()
	st := startPostgres(t)
	now := time.Now().UTC()

	var a, b *models.Guide
	err := st.InBatch(ctx, func(ops guides.BatchOps) error {
		var err error
		a, err = ops.InsertGuide(ctx, models.GuideInput{
			TrackingNumber: "DEL1", Recipient: "N/A", Address: "N/A", Status: models.StatusPending,
		}, models.StatusChange{NewStatus: models.StatusPending, Action: models.HistoryActionCreated, ChangedAt: now})
		if err != nil {
			return err
		}
		b, err = ops.InsertGuide(ctx, models.GuideInput{
			TrackingNumber: "DEL2", Recipient: "N/A", Address: "N/A", Status: models.StatusPending,
		}, models.StatusChange{NewStatus: models.StatusPending, Action: models.HistoryActionCreated, ChangedAt: now})
		return err
	})
	require.NoError(t, err)

	ok, err := st.DeleteGuide(ctx, a.ID)
	require.NoError(t, err)
	require.True(t, ok)

	// history goes with the guide
	hist, err := st.ListHistory(ctx, a.ID, 10, 0)
	require.NoError(t, err)
	require.Empty(t, hist)

	ok, err = st.DeleteGuide(ctx, a.ID)
	require.NoError(t, err)
	require.False(t, ok)

	n, err := st.DeleteGuides(ctx, []uint64{b.ID, 99999})
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}

func TestPGGuides_BatchRollback(t *testing.T) {
	ctx := context.Background()
	st := startPostgres(t)
	now := time.Now().UTC()

	wantErr := errors.New("batch failed")
	err := st.InBatch(ctx, func(ops guides.BatchOps) error {
		_, err := ops.InsertGuide(ctx, models.GuideInput{
			TrackingNumber: "ROLLBACK1", Recipient: "N/A", Address: "N/A", Status: models.StatusPending,
		}, models.StatusChange{NewStatus: models.StatusPending, Action: models.HistoryActionCreated, ChangedAt: now})
		if err != nil {
			return err
		}
		return wantErr
	})
	require.ErrorIs(t, err, wantErr)

	all, err := st.ListAllGuides(ctx)
	require.NoError(t, err)
	require.Empty(t, all)
}
