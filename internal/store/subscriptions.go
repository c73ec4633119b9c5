package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"linemon-backend/internal/model"
)

// SaveSubscription creates or replaces a push subscription and binds it to
// the given equipment. Unknown equipment ids are ignored.
func (s *gormStore) SaveSubscription(ctx context.Context, sub model.PushSubscription, equipmentIDs []string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "endpoint"}},
			DoUpdates: clause.AssignmentColumns([]string{"p256dh", "auth"}),
		}).Create(&sub).Error; err != nil {
			return fmt.Errorf("failed to upsert subscription: %w", err)
		}

		var equipment []model.Equipment
		if len(equipmentIDs) > 0 {
			if err := tx.Where("equipment_id IN ?", equipmentIDs).Find(&equipment).Error; err != nil {
				return fmt.Errorf("failed to look up subscribed equipment: %w", err)
			}
		}

		if err := tx.Model(&sub).Association("Equipment").Replace(&equipment); err != nil {
			return fmt.Errorf("failed to bind subscription to equipment: %w", err)
		}
		return nil
	})
}

func (s *gormStore) GetSubscription(ctx context.Context, endpoint string) (*model.PushSubscription, error) {
	var sub model.PushSubscription
	err := s.db.WithContext(ctx).Preload("Equipment").First(&sub, "endpoint = ?", endpoint).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("failed to fetch subscription: %w", err)
	}
	return &sub, nil
}

func (s *gormStore) DeleteSubscription(ctx context.Context, endpoint string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM subscription_equipment_mapping WHERE push_subscription_endpoint = ?", endpoint).Error; err != nil {
			return fmt.Errorf("failed to unbind subscription: %w", err)
		}
		if err := tx.Delete(&model.PushSubscription{Endpoint: endpoint}).Error; err != nil {
			return fmt.Errorf("failed to delete subscription: %w", err)
		}
		return nil
	})
}

// SubscriptionsForEquipment returns every subscription bound to the unit
// with the given equipment id.
func (s *gormStore) SubscriptionsForEquipment(ctx context.Context, equipmentID string) ([]model.PushSubscription, error) {
	var subscriptions []model.PushSubscription
	err := s.db.WithContext(ctx).
		Joins("JOIN subscription_equipment_mapping sem ON sem.push_subscription_endpoint = push_subscriptions.endpoint").
		Joins("JOIN equipment e ON e.id = sem.equipment_id").
		Where("e.equipment_id = ?", equipmentID).
		Find(&subscriptions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch subscriptions for equipment %s: %w", equipmentID, err)
	}
	return subscriptions, nil
}
