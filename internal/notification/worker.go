package notification

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/rs/zerolog/log"

	"linemon-backend/internal/model"
)

// NotificationSender defines the interface for sending a web push notification.
type NotificationSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of NotificationSender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// Subscriptions is the part of the store the workers read and prune.
type Subscriptions interface {
	SubscriptionsForEquipment(ctx context.Context, equipmentID string) ([]model.PushSubscription, error)
	DeleteSubscription(ctx context.Context, endpoint string) error
}

// Alert is one unit entering ERROR.
type Alert struct {
	EquipmentID string
	At          time.Time
}

// queuePerWorker bounds how many alerts may wait for each worker.
const queuePerWorker = 32

// WorkerPool manages a pool of workers for sending notifications.
type WorkerPool struct {
	size    int
	jobs    chan Alert
	subs    Subscriptions
	webpush *webpush.Options
	sender  NotificationSender
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(size int, subs Subscriptions, webpushOptions *webpush.Options) *WorkerPool {
	if size <= 0 {
		size = 1
	}
	return &WorkerPool{
		size:    size,
		jobs:    make(chan Alert, size*queuePerWorker),
		subs:    subs,
		webpush: webpushOptions,
		sender:  &WebPushSender{}, // Use the real sender by default
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

// worker is the actual worker goroutine.
func (wp *WorkerPool) worker(ctx context.Context, id int) {
	log.Debug().Int("worker", id).Msg("alert worker started")
	for {
		select {
		case alert := <-wp.jobs:
			log.Debug().Int("worker", id).Str("equipment_id", alert.EquipmentID).Msg("processing alert")
			wp.sendNotificationsForEquipment(ctx, alert)
		case <-ctx.Done():
			log.Debug().Int("worker", id).Msg("alert worker shutting down")
			return
		}
	}
}

// Dispatch queues an alert without blocking. When the queue is full the
// alert is dropped and false is returned.
func (wp *WorkerPool) Dispatch(alert Alert) bool {
	select {
	case wp.jobs <- alert:
		return true
	default:
		log.Warn().Str("equipment_id", alert.EquipmentID).Msg("alert queue is full; dropping alert")
		return false
	}
}

// NotifyError lets the pool receive ERROR transitions from the tick engine.
func (wp *WorkerPool) NotifyError(equipmentID string, at time.Time) {
	wp.Dispatch(Alert{EquipmentID: equipmentID, At: at})
}

func (wp *WorkerPool) sendNotificationsForEquipment(ctx context.Context, alert Alert) {
	subscriptions, err := wp.subs.SubscriptionsForEquipment(ctx, alert.EquipmentID)
	if err != nil {
		log.Error().Err(err).Str("equipment_id", alert.EquipmentID).Msg("failed to fetch subscriptions")
		return
	}
	if len(subscriptions) == 0 {
		return
	}

	log.Info().Int("subscriptions", len(subscriptions)).Str("equipment_id", alert.EquipmentID).Msg("sending error alerts")
	message := alertMessage(alert)
	for _, sub := range subscriptions {
		wp.sendNotification(ctx, sub, []byte(message))
	}
}

func alertMessage(a Alert) string {
	return fmt.Sprintf("Equipment %s entered ERROR at %s UTC", a.EquipmentID, a.At.UTC().Format("2006-01-02 15:04:05"))
}

// sendNotification sends a single web push notification.
func (wp *WorkerPool) sendNotification(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		log.Error().Err(err).Str("endpoint", sub.Endpoint).Msg("failed to send notification")
		return
	}
	defer resp.Body.Close()

	// Handle expired subscriptions
	if resp.StatusCode == http.StatusGone {
		log.Info().Str("endpoint", sub.Endpoint).Msg("subscription expired; deleting")
		if err := wp.subs.DeleteSubscription(ctx, sub.Endpoint); err != nil {
			log.Error().Err(err).Str("endpoint", sub.Endpoint).Msg("failed to delete expired subscription")
		}
	}
}
