package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"noteshub/internal/gateway"
	"noteshub/internal/models"
	"noteshub/internal/store"
	"noteshub/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Business-rule rejections surfaced to buyers
var (
	ErrInvalidSignature   = errors.New("invalid payment signature")
	ErrAlreadyPurchased   = errors.New("product already purchased")
	ErrProductUnavailable = errors.New("product not found or not available")
)

// Ledger is the durable purchase record store
type Ledger interface {
	HasSuccessfulPurchase(ctx context.Context, userID, productID string) (bool, error)
	CreatePurchase(ctx context.Context, purchase *models.Purchase) error
	CompletePendingPurchase(ctx context.Context, userID, productID, orderID, paymentID string) (*models.Purchase, error)
	GetPurchasesByUserID(ctx context.Context, userID string) ([]models.PurchaseWithProduct, error)
}

// ProductReader loads catalog items
type ProductReader interface {
	GetProductByID(ctx context.Context, id string) (*models.Product, error)
}

// AccessGranter grants content-host folder access after a purchase
type AccessGranter interface {
	GrantAccess(ctx context.Context, folderID, userEmail string) bool
}

// EventPublisher publishes purchase domain events
type EventPublisher interface {
	PublishPurchaseCompleted(ctx context.Context, event *models.PurchaseCompletedEvent) error
	PublishAccessGrantRequested(ctx context.Context, event *models.AccessGrantRequestedEvent) error
}

// PurchaseService orchestrates checkout and purchase completion
type PurchaseService struct {
	ledger   Ledger
	catalog  ProductReader
	gateway  gateway.OrderCreator
	verifier gateway.SignatureVerifier
	access   AccessGranter
	events   EventPublisher
	logger   *zap.Logger
}

// NewPurchaseService creates a new purchase service. All collaborators
// are injected so tests can substitute fakes.
func NewPurchaseService(
	ledger Ledger,
	catalog ProductReader,
	orderCreator gateway.OrderCreator,
	verifier gateway.SignatureVerifier,
	access AccessGranter,
	events EventPublisher,
) *PurchaseService {
	return &PurchaseService{
		ledger:   ledger,
		catalog:  catalog,
		gateway:  orderCreator,
		verifier: verifier,
		access:   access,
		events:   events,
		logger:   util.GetLogger(),
	}
}

// CheckoutResponse carries the gateway order the client completes
// payment against
type CheckoutResponse struct {
	PurchaseID string `json:"purchase_id"`
	OrderID    string `json:"order_id"`
	Amount     int64  `json:"amount"`
	Currency   string `json:"currency"`
}

// Checkout creates a gateway order for the product and a PENDING
// purchase record carrying the order reference
func (ps *PurchaseService) Checkout(ctx context.Context, userID, productID string) (*CheckoutResponse, error) {
	ctx, span := util.StartSpan(ctx, "PurchaseService.Checkout")
	defer span.End()

	owned, err := ps.ledger.HasSuccessfulPurchase(ctx, userID, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing purchase: %w", err)
	}
	if owned {
		return nil, ErrAlreadyPurchased
	}

	product, err := ps.catalog.GetProductByID(ctx, productID)
	if err != nil {
		if errors.Is(err, store.ErrProductNotFound) {
			return nil, ErrProductUnavailable
		}
		return nil, err
	}

	// gateway receipts are capped at 40 chars
	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
	receipt := "rcpt_" + ts[len(ts)-8:]

	order, err := ps.gateway.CreateOrder(ctx, product.Price, receipt, map[string]string{
		"product_id":   product.ID,
		"product_name": product.Name,
	})
	if err != nil {
		util.PurchasesRejectedTotal.WithLabelValues("gateway_error").Inc()
		return nil, fmt.Errorf("failed to create payment order: %w", err)
	}

	purchase := &models.Purchase{
		UserID:     userID,
		ProductID:  productID,
		AmountPaid: product.Price,
		GatewayRef: order.ID,
		Status:     models.PurchaseStatusPending,
	}
	if err := ps.ledger.CreatePurchase(ctx, purchase); err != nil {
		return nil, fmt.Errorf("failed to record pending purchase: %w", err)
	}

	ps.logger.Info("Checkout initiated",
		zap.String("user_id", userID),
		zap.String("product_id", productID),
		zap.String("order_id", order.ID),
		zap.Int64("amount", product.Price))

	return &CheckoutResponse{
		PurchaseID: purchase.ID,
		OrderID:    order.ID,
		Amount:     order.Amount,
		Currency:   order.Currency,
	}, nil
}

// VerifyAndComplete finalizes a gateway-confirmed payment.
//
// Steps 1-3 are hard gates with no state change. The SUCCESS write is
// the single commit point; once it returns the buyer owns the product
// and the folder grant that follows can only be retried, never unwind
// the purchase.
func (ps *PurchaseService) VerifyAndComplete(ctx context.Context, userID, userEmail, productID, orderID, paymentID, signature string) (*models.Purchase, error) {
	ctx, span := util.StartSpan(ctx, "PurchaseService.VerifyAndComplete")
	defer span.End()

	if !ps.verifier.Verify(orderID, paymentID, signature) {
		util.SignatureVerificationsTotal.WithLabelValues("invalid").Inc()
		util.PurchasesRejectedTotal.WithLabelValues("invalid_signature").Inc()
		ps.logger.Warn("Payment signature verification failed",
			zap.String("user_id", userID),
			zap.String("order_id", orderID))
		return nil, ErrInvalidSignature
	}
	util.SignatureVerificationsTotal.WithLabelValues("valid").Inc()

	owned, err := ps.ledger.HasSuccessfulPurchase(ctx, userID, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing purchase: %w", err)
	}
	if owned {
		util.PurchasesRejectedTotal.WithLabelValues("duplicate").Inc()
		return nil, ErrAlreadyPurchased
	}

	product, err := ps.catalog.GetProductByID(ctx, productID)
	if err != nil {
		if errors.Is(err, store.ErrProductNotFound) {
			util.PurchasesRejectedTotal.WithLabelValues("unavailable").Inc()
			return nil, ErrProductUnavailable
		}
		return nil, err
	}
	if !product.IsActive {
		util.PurchasesRejectedTotal.WithLabelValues("unavailable").Inc()
		return nil, ErrProductUnavailable
	}

	// The checkout-initiated PENDING record, when there is one, is the
	// row that becomes SUCCESS. Buyers who completed payment without a
	// checkout record here get a fresh SUCCESS row instead.
	purchase, err := ps.ledger.CompletePendingPurchase(ctx, userID, productID, orderID, paymentID)
	switch {
	case err == nil:
	case errors.Is(err, store.ErrNoPendingPurchase):
		purchase = &models.Purchase{
			UserID:     userID,
			ProductID:  productID,
			AmountPaid: product.Price,
			GatewayRef: paymentID,
			Status:     models.PurchaseStatusSuccess,
		}
		err = ps.ledger.CreatePurchase(ctx, purchase)
	}
	if err != nil {
		if errors.Is(err, store.ErrDuplicatePurchase) {
			// two concurrent attempts raced past the check, the
			// constraint is authoritative
			util.PurchasesRejectedTotal.WithLabelValues("duplicate").Inc()
			return nil, ErrAlreadyPurchased
		}
		return nil, fmt.Errorf("failed to record purchase: %w", err)
	}

	util.PurchasesCompletedTotal.Inc()
	ps.logger.Info("Purchase completed",
		zap.String("purchase_id", purchase.ID),
		zap.String("user_id", userID),
		zap.String("product_id", productID),
		zap.Int64("amount_paid", purchase.AmountPaid),
		zap.String("payment_id", paymentID))

	ps.grantFolderAccess(ctx, purchase, product, userEmail)

	event := &models.PurchaseCompletedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypePurchaseCompleted,
			Timestamp: time.Now(),
		},
		PurchaseID: purchase.ID,
		UserID:     userID,
		ProductID:  productID,
		AmountPaid: purchase.AmountPaid,
		GatewayRef: paymentID,
	}
	if err := ps.events.PublishPurchaseCompleted(ctx, event); err != nil {
		ps.logger.Error("Failed to publish PurchaseCompleted event", zap.Error(err))
	}

	return purchase, nil
}

// grantFolderAccess hands the buyer read access to the product's
// folder. Failures are logged and queued for retry, never surfaced:
// the purchase is already committed.
func (ps *PurchaseService) grantFolderAccess(ctx context.Context, purchase *models.Purchase, product *models.Product, userEmail string) {
	if product.DriveFolderID == "" || userEmail == "" {
		return
	}

	if ps.access.GrantAccess(ctx, product.DriveFolderID, userEmail) {
		return
	}

	ps.logger.Error("Folder access grant failed after committed purchase",
		zap.String("purchase_id", purchase.ID),
		zap.String("folder_id", product.DriveFolderID),
		zap.String("user_email", userEmail))
	util.AccessGrantFailuresTotal.Inc()

	event := &models.AccessGrantRequestedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeAccessGrantRequested,
			Timestamp: time.Now(),
		},
		PurchaseID: purchase.ID,
		FolderID:   product.DriveFolderID,
		UserEmail:  userEmail,
		Attempt:    1,
	}
	if err := ps.events.PublishAccessGrantRequested(ctx, event); err != nil {
		ps.logger.Error("Failed to queue access grant retry",
			zap.String("purchase_id", purchase.ID),
			zap.Error(err))
	}
}

// ListPurchases returns the user's purchases with product detail,
// newest first
func (ps *PurchaseService) ListPurchases(ctx context.Context, userID string) ([]models.PurchaseWithProduct, error) {
	return ps.ledger.GetPurchasesByUserID(ctx, userID)
}

// HasPurchased reports whether the user owns the product
func (ps *PurchaseService) HasPurchased(ctx context.Context, userID, productID string) (bool, error) {
	return ps.ledger.HasSuccessfulPurchase(ctx, userID, productID)
}
