package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"noteshub/internal/models"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// ProductFilter narrows a catalog listing. Zero values mean "no filter".
type ProductFilter struct {
	BatchID    string
	BranchID   string
	SemesterID string
	TypeID     string
	Search     string
	Page       int
	Limit      int
}

// GetProductByID retrieves an active product by ID
func (s *Store) GetProductByID(ctx context.Context, id string) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product,
		"SELECT * FROM products WHERE id = $1 AND is_active = true", id)
	if err == sql.ErrNoRows {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// GetProducts retrieves active products matching the filter, newest first,
// together with the total count for pagination
func (s *Store) GetProducts(ctx context.Context, filter ProductFilter) ([]models.Product, int, error) {
	where := []string{"is_active = true"}
	args := []interface{}{}

	addArg := func(clause string, val interface{}) {
		args = append(args, val)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}

	if filter.BatchID != "" {
		addArg("batch_id = $%d", filter.BatchID)
	}
	if filter.BranchID != "" {
		addArg("branch_id = $%d", filter.BranchID)
	}
	if filter.SemesterID != "" {
		addArg("semester_id = $%d", filter.SemesterID)
	}
	if filter.TypeID != "" {
		addArg("type_id = $%d", filter.TypeID)
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		where = append(where, fmt.Sprintf("(name ILIKE $%d OR description ILIKE $%d)", len(args), len(args)))
	}

	whereClause := strings.Join(where, " AND ")

	var total int
	countQuery := "SELECT COUNT(*) FROM products WHERE " + whereClause
	if err := s.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 12
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	args = append(args, limit, (page-1)*limit)

	query := fmt.Sprintf(
		"SELECT * FROM products WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d",
		whereClause, len(args)-1, len(args))

	products := []models.Product{}
	if err := s.db.SelectContext(ctx, &products, query, args...); err != nil {
		return nil, 0, err
	}
	return products, total, nil
}

// categoryTables guards GetCategories against arbitrary table names
var categoryTables = map[string]string{
	models.CategoryBatch:    "batch_id",
	models.CategoryBranch:   "branch_id",
	models.CategorySemester: "semester_id",
	models.CategoryType:     "type_id",
}

// GetCategories retrieves all values of one category kind with active
// product counts, name ascending
func (s *Store) GetCategories(ctx context.Context, kind string) ([]models.Category, error) {
	fkColumn, ok := categoryTables[kind]
	if !ok {
		return nil, fmt.Errorf("unknown category kind: %s", kind)
	}

	query := fmt.Sprintf(`
		SELECT c.id, c.name,
		       COUNT(p.id) FILTER (WHERE p.is_active) AS product_count
		FROM %s c
		LEFT JOIN products p ON p.%s = c.id
		GROUP BY c.id, c.name
		ORDER BY c.name ASC`, kind, fkColumn)

	categories := []models.Category{}
	err := s.db.SelectContext(ctx, &categories, query)
	return categories, err
}

// SetProductActive toggles a product's active flag (products are never
// deleted, only deactivated)
func (s *Store) SetProductActive(ctx context.Context, id string, active bool) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE products SET is_active = $1 WHERE id = $2", active, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrProductNotFound
	}
	return nil
}
