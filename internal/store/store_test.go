package store

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"linemon-backend/internal/model"
)

// A helper function to create a mock database connection.
func newTestDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{})
	require.NoError(t, err)

	return gormDB, mock
}

// newSQLiteStore opens a private in-memory database with the full schema.
func newSQLiteStore(t *testing.T) (Store, *gorm.DB) {
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&model.Equipment{}, &model.Metric{}, &model.PushSubscription{}))
	return NewGormStore(db), db
}

// Any is a helper for sqlmock to match any argument.
type Any struct{}

// Match satisfies the sqlmock.Argument interface
func (a Any) Match(v driver.Value) bool {
	return true
}

var day = time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

func metric(id string, at time.Time, status string, production int) model.Metric {
	return model.Metric{EquipmentID: id, Ts: at, Status: status, Production: production, Efficiency: 0.9}
}

func TestGormStore_AppendTick_Mock(t *testing.T) {
	now := day.Add(9 * time.Hour)
	records := []model.Metric{metric("M1", now, "RUN", 10), metric("M2", now, "ERROR", 4)}

	testCases := []struct {
		name             string
		mockExpectations func(mock sqlmock.Sqlmock)
		expectedErr      bool
	}{
		{
			name: "Batch insert and snapshot updates commit together",
			mockExpectations: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "metrics"`)).
					WithArgs("M1", Any{}, "RUN", 10, 0.9, "M2", Any{}, "ERROR", 4, 0.9).
					WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1).AddRow(2))
				mock.ExpectExec(regexp.QuoteMeta(`UPDATE "equipment" SET`)).
					WithArgs(0.9, 10, "RUN", Any{}, "M1").
					WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectExec(regexp.QuoteMeta(`UPDATE "equipment" SET`)).
					WithArgs(0.9, 4, "ERROR", Any{}, "M2").
					WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectCommit()
			},
		},
		{
			name: "Insert failure rolls back the whole tick",
			mockExpectations: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "metrics"`)).
					WillReturnError(errors.New("disk full"))
				mock.ExpectRollback()
			},
			expectedErr: true,
		},
		{
			name: "Snapshot failure rolls back the inserted records",
			mockExpectations: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "metrics"`)).
					WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1).AddRow(2))
				mock.ExpectExec(regexp.QuoteMeta(`UPDATE "equipment" SET`)).
					WillReturnError(errors.New("deadlock"))
				mock.ExpectRollback()
			},
			expectedErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			gormDB, mock := newTestDB(t)
			store := NewGormStore(gormDB)

			tc.mockExpectations(mock)

			batch := append([]model.Metric(nil), records...)
			err := store.AppendTick(context.Background(), batch)
			if tc.expectedErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}

			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestGormStore_AppendTickUpdatesSnapshot(t *testing.T) {
	s, db := newSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, s.EnsureEquipment(ctx, []string{"M1", "M2"}))
	at := day.Add(9 * time.Hour)
	require.NoError(t, s.AppendTick(ctx, []model.Metric{metric("M1", at, "IDLE", 12), metric("M2", at, "RUN", 30)}))

	var count int64
	require.NoError(t, db.Model(&model.Metric{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)

	var m1 model.Equipment
	require.NoError(t, db.Where("equipment_id = ?", "M1").First(&m1).Error)
	assert.Equal(t, "IDLE", m1.Status)
	assert.Equal(t, 12, m1.Production)
	assert.Equal(t, 0.9, m1.Efficiency)

	assert.NoError(t, s.AppendTick(ctx, nil))
}

func TestGormStore_EnsureEquipmentIsIdempotent(t *testing.T) {
	s, _ := newSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, s.EnsureEquipment(ctx, []string{"M2", "M1"}))
	require.NoError(t, s.EnsureEquipment(ctx, []string{"M1", "M3"}))

	ids, err := s.ListEquipmentIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"M1", "M2", "M3"}, ids)

	n, err := s.CountEquipment(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestGormStore_BoundaryQueries(t *testing.T) {
	s, _ := newSQLiteStore(t)
	ctx := context.Background()
	cutoff := day.Add(16 * time.Hour)

	require.NoError(t, s.AppendTick(ctx, []model.Metric{metric("M1", cutoff.Add(-10*time.Second), "RUN", 90), metric("M2", cutoff.Add(-10*time.Second), "ERROR", 7)}))
	require.NoError(t, s.AppendTick(ctx, []model.Metric{metric("M1", cutoff.Add(-5*time.Second), "RUN", 100)}))
	require.NoError(t, s.AppendTick(ctx, []model.Metric{metric("M1", cutoff, "RUN", 105)}))
	require.NoError(t, s.AppendTick(ctx, []model.Metric{metric("M1", cutoff.Add(5*time.Second), "IDLE", 140)}))

	before, err := s.LastProductionBefore(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"M1": 100, "M2": 7}, before)

	after, err := s.LatestProductionSince(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"M1": 140}, after)

	status, err := s.LastStatusBefore(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"M1": "RUN", "M2": "ERROR"}, status)

	// Zoned cutoffs address the same instant.
	taipei := time.FixedZone("UTC+8", 8*3600)
	after, err = s.LatestProductionSince(ctx, cutoff.In(taipei))
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"M1": 140}, after)

	empty, err := s.LatestProductionSince(ctx, cutoff.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestGormStore_ScanQueries(t *testing.T) {
	s, _ := newSQLiteStore(t)
	ctx := context.Background()

	latest, err := s.LatestMetric(ctx)
	require.NoError(t, err)
	assert.Nil(t, latest)

	base := day.Add(9 * time.Hour)
	for i := 0; i < 5; i++ {
		at := base.Add(time.Duration(i) * 5 * time.Second)
		require.NoError(t, s.AppendTick(ctx, []model.Metric{metric("M2", at, "RUN", i), metric("M1", at, "RUN", 10*i)}))
	}

	latest, err = s.LatestMetric(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.True(t, latest.Ts.Equal(base.Add(20*time.Second)))
	assert.Equal(t, "M1", latest.EquipmentID, "ties go to the later insert")

	since, err := s.MetricsSince(ctx, base.Add(10*time.Second))
	require.NoError(t, err)
	require.Len(t, since, 6)
	for i, want := range []string{"M1", "M1", "M1", "M2", "M2", "M2"} {
		assert.Equal(t, want, since[i].EquipmentID)
	}
	assert.True(t, since[0].Ts.Before(since[1].Ts))

	recent, err := s.RecentMetrics(ctx, 3)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.False(t, recent[0].Ts.After(recent[2].Ts), "recent rows come back ascending")
	assert.Equal(t, "M1", recent[2].EquipmentID)
}

func TestGormStore_PurgeMetricsBefore(t *testing.T) {
	s, db := newSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, s.AppendTick(ctx, []model.Metric{metric("M1", day.AddDate(0, 0, -40), "RUN", 1)}))
	require.NoError(t, s.AppendTick(ctx, []model.Metric{metric("M1", day.AddDate(0, 0, -31), "RUN", 2)}))
	require.NoError(t, s.AppendTick(ctx, []model.Metric{metric("M1", day, "RUN", 3)}))

	n, err := s.PurgeMetricsBefore(ctx, day.AddDate(0, 0, -30))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	var left int64
	require.NoError(t, db.Model(&model.Metric{}).Count(&left).Error)
	assert.Equal(t, int64(1), left)
}

func TestGormStore_ReadSnapshot(t *testing.T) {
	s, _ := newSQLiteStore(t)
	ctx := context.Background()
	require.NoError(t, s.EnsureEquipment(ctx, []string{"M1"}))
	require.NoError(t, s.AppendTick(ctx, []model.Metric{metric("M1", day, "RUN", 5)}))

	var total int
	err := s.ReadSnapshot(ctx, func(tx Store) error {
		since, err := tx.LatestProductionSince(ctx, day)
		if err != nil {
			return err
		}
		total = since["M1"]
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 5, total)

	boom := errors.New("boom")
	assert.ErrorIs(t, s.ReadSnapshot(ctx, func(Store) error { return boom }), boom)
}

func TestGormStore_EquipmentCRUD(t *testing.T) {
	s, _ := newSQLiteStore(t)
	ctx := context.Background()

	created, err := s.CreateEquipment(ctx, " m7 ")
	require.NoError(t, err)
	assert.Equal(t, "M7", created.EquipmentID)
	assert.Equal(t, "RUN", created.Status)
	assert.NotZero(t, created.ID)

	_, err = s.CreateEquipment(ctx, "M7")
	assert.ErrorIs(t, err, ErrEquipmentExists)

	_, err = s.CreateEquipment(ctx, "bad;id")
	assert.ErrorIs(t, err, ErrInvalidEquipmentID)

	other, err := s.CreateEquipment(ctx, "M8")
	require.NoError(t, err)

	renamed, err := s.UpdateEquipment(ctx, created.ID, "m9")
	require.NoError(t, err)
	assert.Equal(t, "M9", renamed.EquipmentID)

	_, err = s.UpdateEquipment(ctx, created.ID, "M8")
	assert.ErrorIs(t, err, ErrEquipmentExists)

	_, err = s.UpdateEquipment(ctx, 9999, "M10")
	assert.ErrorIs(t, err, ErrEquipmentNotFound)

	list, err := s.ListEquipment(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "M9", list[0].EquipmentID)

	require.NoError(t, s.DeleteEquipment(ctx, other.ID))
	assert.ErrorIs(t, s.DeleteEquipment(ctx, other.ID), ErrEquipmentNotFound)
}

func TestGormStore_Subscriptions(t *testing.T) {
	s, _ := newSQLiteStore(t)
	ctx := context.Background()
	require.NoError(t, s.EnsureEquipment(ctx, []string{"M1", "M2", "M3"}))

	sub := model.PushSubscription{Endpoint: "https://push.example/abc", P256DH: "key", Auth: "auth"}
	require.NoError(t, s.SaveSubscription(ctx, sub, []string{"M1", "M3", "UNKNOWN"}))

	got, err := s.GetSubscription(ctx, sub.Endpoint)
	require.NoError(t, err)
	var ids []string
	for _, e := range got.Equipment {
		ids = append(ids, e.EquipmentID)
	}
	assert.ElementsMatch(t, []string{"M1", "M3"}, ids)

	subs, err := s.SubscriptionsForEquipment(ctx, "M3")
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, sub.Endpoint, subs[0].Endpoint)

	subs, err = s.SubscriptionsForEquipment(ctx, "M2")
	require.NoError(t, err)
	assert.Empty(t, subs)

	// Saving again replaces the bindings and the keys.
	sub.Auth = "auth2"
	require.NoError(t, s.SaveSubscription(ctx, sub, []string{"M2"}))
	got, err = s.GetSubscription(ctx, sub.Endpoint)
	require.NoError(t, err)
	assert.Equal(t, "auth2", got.Auth)
	require.Len(t, got.Equipment, 1)
	assert.Equal(t, "M2", got.Equipment[0].EquipmentID)

	require.NoError(t, s.DeleteSubscription(ctx, sub.Endpoint))
	_, err = s.GetSubscription(ctx, sub.Endpoint)
	assert.ErrorIs(t, err, ErrSubscriptionNotFound)
}
