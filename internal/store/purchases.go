package store

import (
	"context"
	"database/sql"
	"errors"

	"noteshub/internal/models"

	"github.com/lib/pq"
)

var (
	// ErrProductNotFound is returned when a product does not exist or is inactive
	ErrProductNotFound = errors.New("product not found")

	// ErrDuplicatePurchase is returned when inserting a SUCCESS purchase
	// would violate the one-success-per-(user,product) constraint. The
	// partial unique index on purchases(user_id, product_id) WHERE
	// status = 'SUCCESS' is the authoritative duplicate signal; the
	// application-level check is only a fast path.
	ErrDuplicatePurchase = errors.New("duplicate successful purchase")

	// ErrNoPendingPurchase is returned when no checkout-initiated
	// PENDING record matches the gateway order
	ErrNoPendingPurchase = errors.New("no pending purchase for order")
)

// uniqueViolation is the Postgres error code for unique_violation
const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// CreatePurchase inserts a new purchase record
func (s *Store) CreatePurchase(ctx context.Context, purchase *models.Purchase) error {
	query := `
		INSERT INTO purchases (user_id, product_id, amount_paid, gateway_ref, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`

	err := s.db.GetContext(ctx, purchase, query,
		purchase.UserID, purchase.ProductID, purchase.AmountPaid,
		purchase.GatewayRef, purchase.Status)
	if isUniqueViolation(err) {
		return ErrDuplicatePurchase
	}
	return err
}

// HasSuccessfulPurchase checks whether the user already owns the product
func (s *Store) HasSuccessfulPurchase(ctx context.Context, userID, productID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM purchases WHERE user_id = $1 AND product_id = $2 AND status = $3)",
		userID, productID, models.PurchaseStatusSuccess)
	return exists, err
}

// CompletePendingPurchase transitions the checkout-initiated PENDING
// record matching the gateway order to SUCCESS and swaps the gateway
// reference to the payment ID. Returns ErrNoPendingPurchase when the
// buyer never went through checkout here, and ErrDuplicatePurchase
// when the transition would create a second SUCCESS for the pair.
func (s *Store) CompletePendingPurchase(ctx context.Context, userID, productID, orderID, paymentID string) (*models.Purchase, error) {
	query := `
		UPDATE purchases
		SET status = $1, gateway_ref = $2
		WHERE user_id = $3 AND product_id = $4 AND gateway_ref = $5 AND status = $6
		RETURNING id, user_id, product_id, amount_paid, gateway_ref, status, created_at`

	var purchase models.Purchase
	err := s.db.GetContext(ctx, &purchase, query,
		models.PurchaseStatusSuccess, paymentID, userID, productID, orderID, models.PurchaseStatusPending)
	if err == sql.ErrNoRows {
		return nil, ErrNoPendingPurchase
	}
	if isUniqueViolation(err) {
		return nil, ErrDuplicatePurchase
	}
	if err != nil {
		return nil, err
	}
	return &purchase, nil
}

// GetPurchasesByUserID retrieves the user's purchases with joined
// product detail, newest first
func (s *Store) GetPurchasesByUserID(ctx context.Context, userID string) ([]models.PurchaseWithProduct, error) {
	query := `
		SELECT pu.id, pu.user_id, pu.product_id, pu.amount_paid,
		       pu.gateway_ref, pu.status, pu.created_at,
		       pr.name AS product_name,
		       pr.description AS product_description,
		       pr.drive_folder_id AS product_drive_folder_id
		FROM purchases pu
		JOIN products pr ON pr.id = pu.product_id
		WHERE pu.user_id = $1
		ORDER BY pu.created_at DESC`

	purchases := []models.PurchaseWithProduct{}
	err := s.db.SelectContext(ctx, &purchases, query, userID)
	return purchases, err
}
