package models

import "time"

// Product represents a purchasable notes bundle in the catalog
type Product struct {
	ID            string    `db:"id" json:"id"`
	Name          string    `db:"name" json:"name"`
	Description   string    `db:"description" json:"description"`
	Price         int64     `db:"price" json:"price"` // paise
	DriveFolderID string    `db:"drive_folder_id" json:"drive_folder_id,omitempty"`
	IsActive      bool      `db:"is_active" json:"is_active"`
	BatchID       string    `db:"batch_id" json:"batch_id,omitempty"`
	BranchID      string    `db:"branch_id" json:"branch_id,omitempty"`
	SemesterID    string    `db:"semester_id" json:"semester_id,omitempty"`
	TypeID        string    `db:"type_id" json:"type_id,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// Category represents a classification value (batch, branch, semester or type)
type Category struct {
	ID           string `db:"id" json:"id"`
	Name         string `db:"name" json:"name"`
	ProductCount int    `db:"product_count" json:"product_count"`
}

// Category kinds map one-to-one onto their tables
const (
	CategoryBatch    = "batches"
	CategoryBranch   = "branches"
	CategorySemester = "semesters"
	CategoryType     = "types"
)

// Purchase represents one purchase attempt by a user for a product.
// AmountPaid is captured at purchase time and does not follow later
// price changes on the product.
type Purchase struct {
	ID         string    `db:"id" json:"id"`
	UserID     string    `db:"user_id" json:"user_id"`
	ProductID  string    `db:"product_id" json:"product_id"`
	AmountPaid int64     `db:"amount_paid" json:"amount_paid"`
	GatewayRef string    `db:"gateway_ref" json:"gateway_ref,omitempty"`
	Status     string    `db:"status" json:"status"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// PurchaseWithProduct joins a purchase with its product detail
type PurchaseWithProduct struct {
	Purchase
	ProductName        string `db:"product_name" json:"product_name"`
	ProductDescription string `db:"product_description" json:"product_description"`
	ProductFolderID    string `db:"product_drive_folder_id" json:"product_drive_folder_id,omitempty"`
}

// Purchase statuses
const (
	PurchaseStatusPending  = "PENDING"
	PurchaseStatusSuccess  = "SUCCESS"
	PurchaseStatusFailed   = "FAILED"
	PurchaseStatusRefunded = "REFUNDED"
)
