package worker

import (
	"context"
	"time"

	"noteshub/internal/broker"
	"noteshub/internal/models"
	"noteshub/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AccessGranter retries folder grants. Re-granting an existing
// permission is a no-op at the content host, so retries are safe.
type AccessGranter interface {
	GrantAccess(ctx context.Context, folderID, userEmail string) bool
}

// GrantPublisher republishes retry and outcome events
type GrantPublisher interface {
	PublishAccessGrantRequested(ctx context.Context, event *models.AccessGrantRequestedEvent) error
	PublishAccessGranted(ctx context.Context, event *models.AccessGrantedEvent) error
	PublishAccessGrantFailed(ctx context.Context, event *models.AccessGrantFailedEvent) error
}

// AccessWorker drains queued folder-grant retries for purchases whose
// synchronous grant failed
type AccessWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	access       AccessGranter
	publisher    GrantPublisher
	maxAttempts  int
	retryDelay   time.Duration
	logger       *zap.Logger
}

// NewAccessWorker creates a new access worker. retryDelay is the base
// hold-back between attempts; attempt n waits n times that long before
// it is requeued.
func NewAccessWorker(
	consumer *broker.Consumer,
	access AccessGranter,
	publisher GrantPublisher,
	maxAttempts int,
	retryDelay time.Duration,
) *AccessWorker {
	w := &AccessWorker{
		consumer:    consumer,
		access:      access,
		publisher:   publisher,
		maxAttempts: maxAttempts,
		retryDelay:  retryDelay,
		logger:      util.GetLogger(),
	}

	eventHandler := broker.NewEventHandler()
	eventHandler.OnAccessGrantRequested(w.handleGrantRequest)
	w.eventHandler = eventHandler

	return w
}

// Start starts the worker
func (w *AccessWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting access grant worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *AccessWorker) Stop() error {
	w.logger.Info("Stopping access grant worker")
	return w.consumer.Close()
}

func (w *AccessWorker) handleGrantRequest(ctx context.Context, event *models.AccessGrantRequestedEvent) error {
	w.logger.Info("Retrying folder access grant",
		zap.String("purchase_id", event.PurchaseID),
		zap.String("folder_id", event.FolderID),
		zap.String("user_email", event.UserEmail),
		zap.Int("attempt", event.Attempt))

	if w.access.GrantAccess(ctx, event.FolderID, event.UserEmail) {
		granted := &models.AccessGrantedEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeAccessGranted,
				Timestamp: time.Now(),
			},
			PurchaseID: event.PurchaseID,
			FolderID:   event.FolderID,
			UserEmail:  event.UserEmail,
		}
		if err := w.publisher.PublishAccessGranted(ctx, granted); err != nil {
			w.logger.Error("Failed to publish AccessGranted event", zap.Error(err))
		}
		util.AccessGrantRetriesTotal.WithLabelValues("ok").Inc()
		return nil
	}

	if event.Attempt >= w.maxAttempts {
		// exhausted, an operator has to share the folder by hand
		w.logger.Error("Folder access grant exhausted retries",
			zap.String("purchase_id", event.PurchaseID),
			zap.String("folder_id", event.FolderID),
			zap.String("user_email", event.UserEmail),
			zap.Int("attempts", event.Attempt))
		util.AccessGrantRetriesTotal.WithLabelValues("exhausted").Inc()

		failed := &models.AccessGrantFailedEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeAccessGrantFailed,
				Timestamp: time.Now(),
			},
			PurchaseID: event.PurchaseID,
			FolderID:   event.FolderID,
			UserEmail:  event.UserEmail,
			Attempts:   event.Attempt,
		}
		if err := w.publisher.PublishAccessGrantFailed(ctx, failed); err != nil {
			w.logger.Error("Failed to publish AccessGrantFailed event", zap.Error(err))
		}
		return nil
	}

	// hold the retry back so a sustained outage does not burn every
	// attempt within milliseconds
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(time.Duration(event.Attempt) * w.retryDelay):
	}

	util.AccessGrantRetriesTotal.WithLabelValues("requeued").Inc()
	retry := &models.AccessGrantRequestedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeAccessGrantRequested,
			Timestamp: time.Now(),
		},
		PurchaseID: event.PurchaseID,
		FolderID:   event.FolderID,
		UserEmail:  event.UserEmail,
		Attempt:    event.Attempt + 1,
	}
	return w.publisher.PublishAccessGrantRequested(ctx, retry)
}
