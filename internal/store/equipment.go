package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"linemon-backend/internal/model"
	"linemon-backend/internal/parse"
)

func (s *gormStore) ListEquipment(ctx context.Context) ([]model.Equipment, error) {
	var equipment []model.Equipment
	if err := s.db.WithContext(ctx).Order("id").Find(&equipment).Error; err != nil {
		return nil, fmt.Errorf("failed to list equipment: %w", err)
	}
	return equipment, nil
}

// CreateEquipment registers a new unit. The simulator picks it up on its next
// tick.
func (s *gormStore) CreateEquipment(ctx context.Context, equipmentID string) (*model.Equipment, error) {
	id, err := parse.EquipmentID(equipmentID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEquipmentID, err)
	}

	e := model.Equipment{EquipmentID: id, Status: "RUN"}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureIDFree(tx, id, 0); err != nil {
			return err
		}
		return tx.Create(&e).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create equipment %s: %w", id, err)
	}
	return &e, nil
}

// UpdateEquipment renames the unit with primary key id. Metric history keeps
// the old name.
func (s *gormStore) UpdateEquipment(ctx context.Context, id int64, equipmentID string) (*model.Equipment, error) {
	newID, err := parse.EquipmentID(equipmentID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEquipmentID, err)
	}

	var e model.Equipment
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&e, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrEquipmentNotFound
			}
			return err
		}
		if e.EquipmentID == newID {
			return nil
		}
		if err := ensureIDFree(tx, newID, id); err != nil {
			return err
		}
		e.EquipmentID = newID
		return tx.Model(&e).Update("equipment_id", newID).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update equipment %d: %w", id, err)
	}
	return &e, nil
}

// DeleteEquipment removes the unit and its subscription links. Its metric
// history is kept.
func (s *gormStore) DeleteEquipment(ctx context.Context, id int64) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM subscription_equipment_mapping WHERE equipment_id = ?", id).Error; err != nil {
			return err
		}
		res := tx.Delete(&model.Equipment{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrEquipmentNotFound
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete equipment %d: %w", id, err)
	}
	return nil
}

// ensureIDFree fails with ErrEquipmentExists when another row already uses
// equipmentID.
func ensureIDFree(tx *gorm.DB, equipmentID string, exceptID int64) error {
	var n int64
	q := tx.Model(&model.Equipment{}).Where("equipment_id = ?", equipmentID)
	if exceptID != 0 {
		q = q.Where("id <> ?", exceptID)
	}
	if err := q.Count(&n).Error; err != nil {
		return err
	}
	if n > 0 {
		return ErrEquipmentExists
	}
	return nil
}
