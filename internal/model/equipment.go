package model

import "time"

// Equipment is the live snapshot of one production unit.
type Equipment struct {
	ID          int64     `gorm:"primaryKey" json:"id"`
	EquipmentID string    `gorm:"uniqueIndex;size:64;not null" json:"equipment_id"`
	Status      string    `gorm:"size:16;not null;default:RUN" json:"status"`
	Production  int       `gorm:"not null;default:0" json:"production"`
	Efficiency  float64   `gorm:"not null;default:0.9" json:"efficiency"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (Equipment) TableName() string {
	return "equipment"
}
