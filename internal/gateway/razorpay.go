package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	razorpay "github.com/razorpay/razorpay-go"
)

// Order is a payment-gateway order awaiting client-side checkout
type Order struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

// OrderCreator creates gateway orders. The production implementation
// talks to Razorpay; tests substitute a fake.
type OrderCreator interface {
	CreateOrder(ctx context.Context, amount int64, receipt string, notes map[string]string) (*Order, error)
}

// Client wraps the Razorpay SDK
type Client struct {
	rz *razorpay.Client
}

// NewClient creates a new Razorpay client
func NewClient(keyID, keySecret string) *Client {
	return &Client{rz: razorpay.NewClient(keyID, keySecret)}
}

// CreateOrder creates a gateway order for the given amount in paise
func (c *Client) CreateOrder(ctx context.Context, amount int64, receipt string, notes map[string]string) (*Order, error) {
	data := map[string]interface{}{
		"amount":   amount,
		"currency": "INR",
		"receipt":  receipt,
		"notes":    notes,
	}

	body, err := c.rz.Order.Create(data, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create gateway order: %w", err)
	}

	id, ok := body["id"].(string)
	if !ok || id == "" {
		return nil, fmt.Errorf("gateway order response missing id")
	}

	order := &Order{
		ID:       id,
		Amount:   amount,
		Currency: "INR",
		Receipt:  receipt,
	}
	if status, ok := body["status"].(string); ok {
		order.Status = status
	}
	return order, nil
}

// SignatureVerifier checks that a payment confirmation was issued by
// the gateway. Pure, no I/O.
type SignatureVerifier interface {
	Verify(orderID, paymentID, signature string) bool
}

// Verifier verifies gateway payment signatures with the shared key secret
type Verifier struct {
	secret []byte
}

// NewVerifier creates a signature verifier
func NewVerifier(keySecret string) *Verifier {
	return &Verifier{secret: []byte(keySecret)}
}

// Verify recomputes the HMAC-SHA256 of "orderID|paymentID" and compares
// it with the hex-encoded signature. A misconfigured (empty) secret
// fails closed.
func (v *Verifier) Verify(orderID, paymentID, signature string) bool {
	if len(v.secret) == 0 {
		return false
	}

	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(orderID + "|" + paymentID))
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signature))
}
