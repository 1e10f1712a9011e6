package worker

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/dogparkjp/parkgate/internal/rabbitmq"
	"github.com/dogparkjp/parkgate/internal/services"
	"github.com/dogparkjp/parkgate/internal/store"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// PinCleanupWorker consumes delayed cleanup messages. Each message carries
// one access log ID whose PIN validity window has lapsed; if the PIN was
// never used it gets deleted at the vendor so the lock's stored-password
// slots don't fill up. The access log row itself is never touched.
type PinCleanupWorker struct {
	pinService          *services.PinService
	notificationService *services.NotificationService
	logs                store.AccessLogStore
	locks               store.LockStore
}

func NewPinCleanupWorker(
	ps *services.PinService,
	ns *services.NotificationService,
	logs store.AccessLogStore,
	locks store.LockStore,
) *PinCleanupWorker {
	return &PinCleanupWorker{
		pinService:          ps,
		notificationService: ns,
		logs:                logs,
		locks:               locks,
	}
}

// StartWorker starts the consumer process
// ctx is used for graceful shutdown signal
func (w *PinCleanupWorker) StartWorker(ctx context.Context) error {
	if rabbitmq.Client == nil {
		return fmt.Errorf("RabbitMQ client not initialized")
	}

	ch := rabbitmq.Client.Channel
	qName := rabbitmq.ProcessingQueueName

	msgs, err := ch.Consume(
		qName,                  // queue
		"pin-cleanup-worker-1", // consumer tag
		false,                  // auto-ack (FALSE because we want manual ack after successful process)
		false,                  // exclusive
		false,                  // no-local
		false,                  // no-wait
		nil,                    // args
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	fmt.Printf(" [*] Worker started. Waiting for messages in %s. To exit press CTRL+C\n", qName)

	// Goroutine to handle messages
	done := make(chan bool)

	go func() {
		for d := range msgs {
			w.processMessage(ctx, d)
		}
		done <- true
	}()

	// Wait for context cancellation (Graceful Shutdown)
	<-ctx.Done()
	fmt.Println(" [x] Shutdown signal received. Canceling consumer...")

	// Cancel the consumer to stop receiving new messages
	if err := ch.Cancel("pin-cleanup-worker-1", false); err != nil {
		fmt.Printf("Error canceling consumer: %v\n", err)
	}

	fmt.Println(" [x] Worker exiting")
	return nil
}

func (w *PinCleanupWorker) processMessage(ctx context.Context, d amqp.Delivery) {
	idStr := string(d.Body)
	log.Printf(" [x] Received cleanup check for access log: %s", idStr)

	// 1. Parse ID
	accessLogID, err := uuid.Parse(idStr)
	if err != nil {
		log.Printf(" [!] Invalid UUID format: %s. Rejecting.", idStr)
		d.Reject(false)
		return
	}

	// 2. Re-check latest state (DB query - late binding). The PIN may have
	// been used while the message sat in the waiting queue.
	cleaned, err := w.pinService.CleanupExpired(ctx, accessLogID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			log.Printf(" [!] Access log not found: %s. Acknowledging to remove from queue.", accessLogID)
			d.Ack(false)
			return
		}
		// Vendor or DB hiccup; requeue once via reject so a transient
		// failure gets another shot
		log.Printf(" [!] Cleanup failed for %s: %v", accessLogID, err)
		d.Reject(!d.Redelivered)
		return
	}

	if cleaned {
		fmt.Printf(" >>> [PIN CLEANED] access log %s\n", accessLogID)
		w.notifyExpired(ctx, accessLogID)
	} else {
		log.Printf(" [i] Access log %s: PIN already used or not yet expired. Skipping.", accessLogID)
	}

	// 3. Ack
	d.Ack(false)
}

func (w *PinCleanupWorker) notifyExpired(ctx context.Context, accessLogID uuid.UUID) {
	if w.notificationService == nil {
		return
	}

	accessLog, err := w.logs.Get(ctx, accessLogID)
	if err != nil {
		log.Printf(" [!] Cannot load access log %s for notification: %v", accessLogID, err)
		return
	}

	lockName := ""
	if lock, err := w.locks.Get(ctx, accessLog.LockID); err == nil {
		lockName = lock.Name
		if lock.ParkName != "" {
			lockName = lock.ParkName
		}
	}

	if err := w.notificationService.NotifyPinExpired(accessLog.UserID, accessLog.ID, lockName, accessLog.PinType, ""); err != nil {
		log.Printf(" [!] Failed to create expiry notification for %s: %v", accessLogID, err)
	}
}
