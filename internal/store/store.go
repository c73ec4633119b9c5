package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"linemon-backend/internal/model"
)

var (
	ErrEquipmentNotFound    = errors.New("equipment not found")
	ErrInvalidEquipmentID   = errors.New("invalid equipment id")
	ErrEquipmentExists      = errors.New("equipment already exists")
	ErrSubscriptionNotFound = errors.New("subscription not found")
)

// Store defines the interface for all database operations.
type Store interface {
	DB() *gorm.DB

	// ReadSnapshot runs fn against a read-only transaction so every query
	// inside it sees the same committed ticks.
	ReadSnapshot(ctx context.Context, fn func(Store) error) error

	EnsureEquipment(ctx context.Context, ids []string) error
	ListEquipmentIDs(ctx context.Context) ([]string, error)
	CountEquipment(ctx context.Context) (int64, error)
	ListEquipment(ctx context.Context) ([]model.Equipment, error)
	CreateEquipment(ctx context.Context, equipmentID string) (*model.Equipment, error)
	UpdateEquipment(ctx context.Context, id int64, equipmentID string) (*model.Equipment, error)
	DeleteEquipment(ctx context.Context, id int64) error

	AppendTick(ctx context.Context, records []model.Metric) error
	LatestProductionSince(ctx context.Context, since time.Time) (map[string]int, error)
	LastProductionBefore(ctx context.Context, before time.Time) (map[string]int, error)
	LastStatusBefore(ctx context.Context, before time.Time) (map[string]string, error)
	LatestMetric(ctx context.Context) (*model.Metric, error)
	MetricsSince(ctx context.Context, since time.Time) ([]model.Metric, error)
	RecentMetrics(ctx context.Context, limit int) ([]model.Metric, error)
	PurgeMetricsBefore(ctx context.Context, cutoff time.Time) (int64, error)

	SaveSubscription(ctx context.Context, sub model.PushSubscription, equipmentIDs []string) error
	GetSubscription(ctx context.Context, endpoint string) (*model.PushSubscription, error)
	DeleteSubscription(ctx context.Context, endpoint string) error
	SubscriptionsForEquipment(ctx context.Context, equipmentID string) ([]model.PushSubscription, error)
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) DB() *gorm.DB {
	return s.db
}

func (s *gormStore) ReadSnapshot(ctx context.Context, fn func(Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormStore{db: tx})
	}, &sql.TxOptions{ReadOnly: true})
}

// AppendTick writes one tick for every unit and refreshes the equipment
// snapshots. Either all of it commits or none of it does.
func (s *gormStore) AppendTick(ctx context.Context, records []model.Metric) error {
	if len(records) == 0 {
		return nil
	}
	for i := range records {
		records[i].Ts = records[i].Ts.UTC()
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&records).Error; err != nil {
			return fmt.Errorf("failed to insert %d metric records: %w", len(records), err)
		}
		for _, r := range records {
			err := tx.Model(&model.Equipment{}).
				Where("equipment_id = ?", r.EquipmentID).
				Updates(map[string]any{
					"status":     r.Status,
					"production": r.Production,
					"efficiency": r.Efficiency,
					"updated_at": r.Ts,
				}).Error
			if err != nil {
				return fmt.Errorf("failed to update snapshot for equipment %s: %w", r.EquipmentID, err)
			}
		}
		return nil
	})
}

// latestRow is the newest record of one equipment inside a time bound.
type latestRow struct {
	EquipmentID string
	Production  int
	Status      string
}

// latestPerEquipment returns, per equipment, the newest record matching
// cond. When two records share the newest timestamp the later insert wins.
func (s *gormStore) latestPerEquipment(ctx context.Context, cond string, at time.Time) ([]latestRow, error) {
	bound := s.db.Model(&model.Metric{}).
		Select("equipment_id, MAX(ts) AS ts").
		Where(cond, at.UTC()).
		Group("equipment_id")

	var rows []latestRow
	err := s.db.WithContext(ctx).
		Table("metrics AS m").
		Select("m.equipment_id, m.production, m.status").
		Joins("JOIN (?) AS b ON b.equipment_id = m.equipment_id AND b.ts = m.ts", bound).
		Order("m.id").
		Scan(&rows).Error
	return rows, err
}

// LatestProductionSince returns the newest cumulative production at or after
// since, per equipment. Equipment without such a record is absent.
func (s *gormStore) LatestProductionSince(ctx context.Context, since time.Time) (map[string]int, error) {
	rows, err := s.latestPerEquipment(ctx, "ts >= ?", since)
	if err != nil {
		return nil, fmt.Errorf("failed to query production since %s: %w", since.UTC().Format(time.RFC3339), err)
	}
	out := make(map[string]int, len(rows))
	for _, r := range rows {
		out[r.EquipmentID] = r.Production
	}
	return out, nil
}

// LastProductionBefore returns the cumulative production of the last record
// strictly before the cutoff, per equipment.
func (s *gormStore) LastProductionBefore(ctx context.Context, before time.Time) (map[string]int, error) {
	rows, err := s.latestPerEquipment(ctx, "ts < ?", before)
	if err != nil {
		return nil, fmt.Errorf("failed to query production before %s: %w", before.UTC().Format(time.RFC3339), err)
	}
	out := make(map[string]int, len(rows))
	for _, r := range rows {
		out[r.EquipmentID] = r.Production
	}
	return out, nil
}

// LastStatusBefore returns the status of the last record strictly before the
// cutoff, per equipment.
func (s *gormStore) LastStatusBefore(ctx context.Context, before time.Time) (map[string]string, error) {
	rows, err := s.latestPerEquipment(ctx, "ts < ?", before)
	if err != nil {
		return nil, fmt.Errorf("failed to query status before %s: %w", before.UTC().Format(time.RFC3339), err)
	}
	out := make(map[string]string, len(rows))
	for _, r := range rows {
		out[r.EquipmentID] = r.Status
	}
	return out, nil
}

// LatestMetric returns the newest record across all equipment, or nil when
// the table is empty.
func (s *gormStore) LatestMetric(ctx context.Context) (*model.Metric, error) {
	var m model.Metric
	err := s.db.WithContext(ctx).Order("ts DESC").Order("id DESC").Limit(1).Find(&m).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch latest metric: %w", err)
	}
	if m.ID == 0 {
		return nil, nil
	}
	return &m, nil
}

// MetricsSince returns every record at or after since, ordered by equipment
// and then time.
func (s *gormStore) MetricsSince(ctx context.Context, since time.Time) ([]model.Metric, error) {
	var metrics []model.Metric
	err := s.db.WithContext(ctx).
		Where("ts >= ?", since.UTC()).
		Order("equipment_id").Order("ts").Order("id").
		Find(&metrics).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch metrics since %s: %w", since.UTC().Format(time.RFC3339), err)
	}
	return metrics, nil
}

// RecentMetrics returns the newest limit records in ascending time order.
func (s *gormStore) RecentMetrics(ctx context.Context, limit int) ([]model.Metric, error) {
	var metrics []model.Metric
	err := s.db.WithContext(ctx).
		Order("ts DESC").Order("id DESC").
		Limit(limit).
		Find(&metrics).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch recent metrics: %w", err)
	}
	for i, j := 0, len(metrics)-1; i < j; i, j = i+1, j-1 {
		metrics[i], metrics[j] = metrics[j], metrics[i]
	}
	return metrics, nil
}

// PurgeMetricsBefore deletes records older than cutoff and reports how many
// were removed.
func (s *gormStore) PurgeMetricsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("ts < ?", cutoff.UTC()).Delete(&model.Metric{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to purge metrics before %s: %w", cutoff.UTC().Format(time.RFC3339), res.Error)
	}
	return res.RowsAffected, nil
}

// EnsureEquipment inserts the ids that are not known yet. Existing rows are
// left untouched.
func (s *gormStore) EnsureEquipment(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	rows := make([]model.Equipment, 0, len(ids))
	for _, id := range ids {
		rows = append(rows, model.Equipment{EquipmentID: id, Status: "RUN"})
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "equipment_id"}},
		DoNothing: true,
	}).Create(&rows).Error
	if err != nil {
		return fmt.Errorf("failed to seed equipment: %w", err)
	}
	return nil
}

func (s *gormStore) ListEquipmentIDs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := s.db.WithContext(ctx).Model(&model.Equipment{}).Order("equipment_id").Pluck("equipment_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to list equipment ids: %w", err)
	}
	return ids, nil
}

func (s *gormStore) CountEquipment(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&model.Equipment{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count equipment: %w", err)
	}
	return n, nil
}
