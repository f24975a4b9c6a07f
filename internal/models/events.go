package models

import "time"

// Event types
const (
	EventTypePurchaseCompleted    = "PURCHASE_COMPLETED"
	EventTypeAccessGrantRequested = "ACCESS_GRANT_REQUESTED"
	EventTypeAccessGranted        = "ACCESS_GRANTED"
	EventTypeAccessGrantFailed    = "ACCESS_GRANT_FAILED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// PurchaseCompletedEvent published when a purchase commits
type PurchaseCompletedEvent struct {
	BaseEvent
	PurchaseID string `json:"purchase_id"`
	UserID     string `json:"user_id"`
	ProductID  string `json:"product_id"`
	AmountPaid int64  `json:"amount_paid"`
	GatewayRef string `json:"gateway_ref"`
}

// AccessGrantRequestedEvent published when a synchronous folder grant
// failed after a committed purchase and should be retried out of band
type AccessGrantRequestedEvent struct {
	BaseEvent
	PurchaseID string `json:"purchase_id"`
	FolderID   string `json:"folder_id"`
	UserEmail  string `json:"user_email"`
	Attempt    int    `json:"attempt"`
}

// AccessGrantedEvent published when a retried grant eventually succeeds
type AccessGrantedEvent struct {
	BaseEvent
	PurchaseID string `json:"purchase_id"`
	FolderID   string `json:"folder_id"`
	UserEmail  string `json:"user_email"`
}

// AccessGrantFailedEvent published when a grant exhausted its retries
// and needs manual remediation
type AccessGrantFailedEvent struct {
	BaseEvent
	PurchaseID string `json:"purchase_id"`
	FolderID   string `json:"folder_id"`
	UserEmail  string `json:"user_email"`
	Attempts   int    `json:"attempts"`
}
