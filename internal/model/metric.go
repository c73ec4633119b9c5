package model

import "time"

// Metric is one tick of one equipment unit. Rows are append-only.
type Metric struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	EquipmentID string    `gorm:"size:64;not null;index;index:idx_metrics_equipment_ts,priority:1" json:"equipment_id"`
	Ts          time.Time `gorm:"not null;index;index:idx_metrics_equipment_ts,priority:2" json:"ts"`
	Status      string    `gorm:"size:16;not null" json:"status"`
	Production  int       `gorm:"not null" json:"production"` // Cumulative since storage-clock midnight
	Efficiency  float64   `gorm:"not null" json:"efficiency"`
}

func (Metric) TableName() string {
	return "metrics"
}
