package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fairyhunter13/scalable-coupon-system/internal/model"
	"github.com/fairyhunter13/scalable-coupon-system/internal/service"
	"github.com/fairyhunter13/scalable-coupon-system/pkg/database"
)

// PoolInterface defines the database operations needed by repositories.
// This allows for easier testing with mocks.
type PoolInterface interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// SaleRepository provides data access for sales using pgx.
type SaleRepository struct {
	pool PoolInterface
}

// NewSaleRepository creates a new SaleRepository with the given pool.
func NewSaleRepository(pool *pgxpool.Pool) *SaleRepository {
	return &SaleRepository{pool: pool}
}

// NewSaleRepositoryWithPool creates a new SaleRepository with a custom pool interface.
// This is primarily used for testing.
func NewSaleRepositoryWithPool(pool PoolInterface) *SaleRepository {
	return &SaleRepository{pool: pool}
}

// Insert inserts a new sale into the database.
// Returns service.ErrSaleExists if a sale with the same id already exists.
func (r *SaleRepository) Insert(ctx context.Context, sale *model.Sale) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO sales (id, name, start_time, end_time, total_stock) VALUES ($1, $2, $3, $4, $5)`,
		sale.ID, sale.Name, sale.StartTime, sale.EndTime, sale.TotalStock)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return service.ErrSaleExists
		}
		return fmt.Errorf("insert sale: %w", err)
	}
	return nil
}

// GetByID retrieves a sale by its id.
// Returns nil, nil if the sale is not found (service layer handles this).
func (r *SaleRepository) GetByID(ctx context.Context, saleID string) (*model.Sale, error) {
	query := `SELECT id, name, start_time, end_time, total_stock, created_at, updated_at FROM sales WHERE id = $1`

	var sale model.Sale
	err := r.pool.QueryRow(ctx, query, saleID).Scan(
		&sale.ID,
		&sale.Name,
		&sale.StartTime,
		&sale.EndTime,
		&sale.TotalStock,
		&sale.CreatedAt,
		&sale.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // Not found - let service handle
		}
		return nil, fmt.Errorf("get sale by id %s: %w", saleID, err)
	}
	return &sale, nil
}

// SetTotalStock overwrites the total_stock of a sale. Administrative only.
func (r *SaleRepository) SetTotalStock(ctx context.Context, saleID string, n int) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE sales SET total_stock = $2, updated_at = now() WHERE id = $1`,
		saleID, n)
	if err != nil {
		return fmt.Errorf("set total stock for %s: %w", saleID, err)
	}
	return nil
}

// UpdateWindow updates the start and/or end time of a sale. A nil pointer leaves
// the corresponding field unchanged.
func (r *SaleRepository) UpdateWindow(ctx context.Context, saleID string, start, end *time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE sales SET
			start_time = COALESCE($2, start_time),
			end_time = COALESCE($3, end_time),
			updated_at = now()
		 WHERE id = $1`,
		saleID, start, end)
	if err != nil {
		return fmt.Errorf("update window for %s: %w", saleID, err)
	}
	return nil
}
