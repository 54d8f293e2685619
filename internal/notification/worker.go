package notification

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"gorm.io/gorm"

	"aquaflow-backend/internal/model"
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

// Message is the JSON body delivered to the browser's service worker.
type Message struct {
	Title  string `json:"title"`
	Body   string `json:"body"`
	URL    string `json:"url"`
	UnitID string `json:"unit_id"`
}

// WorkerPool manages a pool of workers for sending alert notifications.
type WorkerPool struct {
	size     int
	jobs     chan model.Alert
	db       *gorm.DB
	webpush  *webpush.Options
	sender   NotificationSender
	clickURL string
}

// NewWorkerPool creates a new worker pool with a queue of queueSize alerts.
func NewWorkerPool(size, queueSize int, db *gorm.DB, webpushOptions *webpush.Options, clickURL string) *WorkerPool {
	if size <= 0 {
		size = 1
	}
	if queueSize <= 0 {
		queueSize = size
	}
	return &WorkerPool{
		size:     size,
		jobs:     make(chan model.Alert, queueSize),
		db:       db,
		webpush:  webpushOptions,
		sender:   &WebPushSender{}, // Use the real sender by default
		clickURL: clickURL,
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
	log.Printf("Worker %d started", id)
	for {
		select {
		case alert := <-wp.jobs:
			log.Printf("Worker %d processing %s alert for unit %s", id, alert.Kind, alert.UnitID)
			wp.sendNotificationsForAlert(ctx, alert)
		case <-ctx.Done():
			log.Printf("Worker %d shutting down", id)
			return
		}
	}
}

// Dispatch queues an alert without blocking. It reports false when the
// queue is full and the alert was dropped.
func (wp *WorkerPool) Dispatch(alert model.Alert) bool {
	select {
	case wp.jobs <- alert:
		return true
	default:
		log.Printf("Notification queue full; dropping %s alert for unit %s", alert.Kind, alert.UnitID)
		return false
	}
}

// sendNotificationsForAlert fetches the unit's subscriptions, including the
// ones following every unit, and notifies each of them.
func (wp *WorkerPool) sendNotificationsForAlert(ctx context.Context, alert model.Alert) {
	var subscriptions []model.PushSubscription
	err := wp.db.WithContext(ctx).
		Where("unit_id = ? OR unit_id IS NULL", alert.UnitID).
		Find(&subscriptions).Error
	if err != nil {
		log.Printf("Error fetching subscriptions for unit %s: %v", alert.UnitID, err)
		return
	}

	if len(subscriptions) == 0 {
		return
	}

	log.Printf("Sending %d notifications for unit %s", len(subscriptions), alert.UnitID)

	payload, err := json.Marshal(Message{
		Title:  alert.Title,
		Body:   alert.Body,
		URL:    wp.clickURL,
		UnitID: alert.UnitID,
	})
	if err != nil {
		log.Printf("Error encoding notification for unit %s: %v", alert.UnitID, err)
		return
	}
	for _, sub := range subscriptions {
		wp.sendNotification(ctx, sub, payload)
	}
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
		log.Printf("Error sending notification to %s: %v", sub.Endpoint, err)
		return
	}
	defer resp.Body.Close()

	// Handle expired subscriptions
	if resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound {
		log.Printf("Subscription for endpoint %s is expired. Deleting.", sub.Endpoint)
		if err := wp.db.WithContext(ctx).Delete(&sub).Error; err != nil {
			log.Printf("Failed to delete expired subscription %s: %v", sub.Endpoint, err)
		}
	}
}
