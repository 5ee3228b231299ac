package store

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkstamp/paperless-stamp/config"
	"github.com/inkstamp/paperless-stamp/model"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	return cfg
}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestSQLiteHistory(t *testing.T) {
	ctx := context.Background()
	history, err := NewSQLiteHistory(openTestDB(t), 0)
	require.NoError(t, err)

	created := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	first := &model.StampOutcome{
		CycleID:       "cycle-1",
		DocumentID:    7,
		DocumentTitle: "Invoice",
		StampType:     "paid",
		StampText:     "PAID",
		StampDate:     "2024-03-15",
		Status:        model.StatusSuccess,
		DurationMS:    120,
		CreatedAt:     created,
	}
	require.NoError(t, history.Record(ctx, first))
	assert.Equal(t, int64(1), first.ID)

	require.NoError(t, history.Record(ctx, &model.StampOutcome{
		DocumentID:    8,
		StampType:     "received",
		SequenceIndex: 1,
		Status:        model.StatusError,
		ErrorMessage:  "document is encrypted",
	}))

	all, err := history.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, 8, all[0].DocumentID)
	assert.Equal(t, "document is encrypted", all[0].ErrorMessage)
	assert.Equal(t, 1, all[0].SequenceIndex)

	got := all[1]
	assert.Equal(t, "cycle-1", got.CycleID)
	assert.Equal(t, "Invoice", got.DocumentTitle)
	assert.Equal(t, "2024-03-15", got.StampDate)
	assert.Equal(t, int64(120), got.DurationMS)
	assert.True(t, got.CreatedAt.Equal(created))

	limited, err := history.List(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	forDoc, err := history.ForDocument(ctx, 7)
	require.NoError(t, err)
	require.Len(t, forDoc, 1)
	assert.Equal(t, "paid", forDoc[0].StampType)
}

func TestSQLiteHistoryPrunes(t *testing.T) {
	ctx := context.Background()
	history, err := NewSQLiteHistory(openTestDB(t), 2)
	require.NoError(t, err)

	for i := 1; i <= 4; i++ {
		require.NoError(t, history.Record(ctx, outcome(i, "paid")))
	}

	all, err := history.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, 4, all[0].DocumentID)
	assert.Equal(t, 3, all[1].DocumentID)
}

func TestSQLiteSettings(t *testing.T) {
	ctx := context.Background()
	settings, err := NewSQLiteSettings(openTestDB(t))
	require.NoError(t, err)

	require.NoError(t, settings.Set(ctx, map[string]string{"poll_interval": "30", "paid.color": "#ff0000"}))
	require.NoError(t, settings.Set(ctx, map[string]string{"poll_interval": "45"}))

	all, err := settings.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"poll_interval": "45", "paid.color": "#ff0000"}, all)

	require.NoError(t, settings.Apply(ctx, map[string]string{"opacity": "0.3"}, []string{"paid.color"}))
	all, err = settings.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"poll_interval": "45", "opacity": "0.3"}, all)
}

func TestSQLiteJournal(t *testing.T) {
	ctx := context.Background()
	journal, err := NewSQLiteJournal(openTestDB(t))
	require.NoError(t, err)

	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, journal.Save(ctx, model.Claim{
		DocumentID: 3,
		StampTypes: []string{"paid", "received"},
		State:      model.ClaimClaimed,
		CycleID:    "c1",
		UpdatedAt:  at,
	}))
	require.NoError(t, journal.Save(ctx, model.Claim{DocumentID: 1, StampTypes: []string{"paid"}, State: model.ClaimClaimed}))

	claims, err := journal.List(ctx)
	require.NoError(t, err)
	require.Len(t, claims, 2)
	assert.Equal(t, 1, claims[0].DocumentID)
	assert.Equal(t, []string{"paid", "received"}, claims[1].StampTypes)
	assert.True(t, claims[1].UpdatedAt.Equal(at))

	require.NoError(t, journal.Save(ctx, model.Claim{DocumentID: 3, StampTypes: []string{"paid", "received"}, State: model.ClaimPushed, CycleID: "c1"}))
	claims, err = journal.List(ctx)
	require.NoError(t, err)
	assert.True(t, claims[1].Pushed())

	require.NoError(t, journal.Delete(ctx, 3))
	claims, err = journal.List(ctx)
	require.NoError(t, err)
	assert.Len(t, claims, 1)
}

func TestSQLiteHistoryInsertError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS stamp_outcomes").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS idx_stamp_outcomes_document").WillReturnResult(sqlmock.NewResult(0, 0))
	history, err := NewSQLiteHistory(db, 0)
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO stamp_outcomes").WillReturnError(errors.New("disk full"))

	err = history.Record(context.Background(), outcome(1, "paid"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to insert outcome")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteMigrateError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS settings").WillReturnError(errors.New("read-only database"))

	_, err = NewSQLiteSettings(db)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to migrate")
}

func TestSQLiteSettingsRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS settings").WillReturnResult(sqlmock.NewResult(0, 0))
	settings, err := NewSQLiteSettings(db)
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO settings").WillReturnError(errors.New("constraint failed"))
	mock.ExpectRollback()

	err = settings.Set(context.Background(), map[string]string{"opacity": "0.4"})
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteSettingsApplyRollsBackFailedRemoval(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS settings").WillReturnResult(sqlmock.NewResult(0, 0))
	settings, err := NewSQLiteSettings(db)
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO settings").WithArgs("opacity", "0.4", sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("DELETE FROM settings").WithArgs("paid.text").WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	err = settings.Apply(context.Background(), map[string]string{"opacity": "0.4"}, []string{"paid.text"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to delete setting paid.text")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteJournalQueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS claims").WillReturnResult(sqlmock.NewResult(0, 0))
	journal, err := NewSQLiteJournal(db)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT document_id, stamp_types, state, cycle_id, updated_at FROM claims").
		WillReturnRows(sqlmock.NewRows([]string{"document_id", "stamp_types", "state", "cycle_id", "updated_at"}).
			AddRow(1, "not-json", "claimed", "c", "2024-01-01T00:00:00Z"))

	_, err = journal.List(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse stamp types")
}

func TestOpenSQLite(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.Driver = config.DriverSQLite
	cfg.Store.Path = filepath.Join(t.TempDir(), "stamp.db")

	stores, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	defer stores.Close()

	require.NoError(t, stores.Settings.Set(context.Background(), map[string]string{"poll_interval": "10"}))
	all, err := stores.Settings.All(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "10", all["poll_interval"])
	assert.IsType(t, &SQLiteJournal{}, stores.Journal)
}

func TestOpenSQLiteJournalSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	require.Equal(t, config.DriverSQLite, cfg.Store.Driver)
	cfg.Store.Path = filepath.Join(t.TempDir(), "stamp.db")

	first, err := Open(ctx, cfg)
	require.NoError(t, err)
	require.NoError(t, first.Journal.Save(ctx, model.Claim{
		DocumentID: 7,
		StampTypes: []string{"paid"},
		State:      model.ClaimClaimed,
		CycleID:    "before-restart",
		UpdatedAt:  time.Now(),
	}))
	require.NoError(t, first.Close())

	second, err := Open(ctx, cfg)
	require.NoError(t, err)
	defer second.Close()

	claims, err := second.Journal.List(ctx)
	require.NoError(t, err)
	require.Len(t, claims, 1)
	assert.Equal(t, 7, claims[0].DocumentID)
	assert.Equal(t, "before-restart", claims[0].CycleID)
}
