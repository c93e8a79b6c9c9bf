package repository

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fairyhunter13/scalable-coupon-system/internal/model"
	"github.com/fairyhunter13/scalable-coupon-system/internal/service"
	"github.com/fairyhunter13/scalable-coupon-system/pkg/database"
)

// OrderPoolInterface defines the database operations needed by OrderRepository
// outside of a transaction.
type OrderPoolInterface interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// OrderRepository provides data access for orders using pgx. It is the
// durable order log: the source of truth enforcing one-per-customer via a
// uniqueness constraint on (sale_id, user_id).
type OrderRepository struct {
	pool OrderPoolInterface
}

// NewOrderRepository creates a new OrderRepository with the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// NewOrderRepositoryWithPool creates a new OrderRepository with a custom pool
// interface. This is primarily used for testing.
func NewOrderRepositoryWithPool(pool OrderPoolInterface) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// CountSuccess returns the number of SUCCESS orders for a sale. Used for
// reconciliation (bootstrap, stock reinitialisation).
func (r *OrderRepository) CountSuccess(ctx context.Context, saleID string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM orders WHERE sale_id = $1 AND status = 'SUCCESS'`, saleID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count success orders for %s: %w", saleID, err)
	}
	return n, nil
}

// CountFailed returns the number of FAILED orders for a sale, for GetStats.
func (r *OrderRepository) CountFailed(ctx context.Context, saleID string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM orders WHERE sale_id = $1 AND status = 'FAILED'`, saleID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count failed orders for %s: %w", saleID, err)
	}
	return n, nil
}

// ListSuccessUsers retrieves all user_ids with a SUCCESS order for a sale.
// Used by the user-mark recovery procedure. On success returns an empty
// slice (not nil) when no orders exist.
func (r *OrderRepository) ListSuccessUsers(ctx context.Context, saleID string) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT user_id FROM orders WHERE sale_id = $1 AND status = 'SUCCESS' ORDER BY created_at`, saleID)
	if err != nil {
		return nil, fmt.Errorf("list success users for %s: %w", saleID, err)
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("scan order user_id: %w", err)
		}
		users = append(users, userID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order rows: %w", err)
	}

	if users == nil {
		users = []string{}
	}
	return users, nil
}

// GetByUser retrieves the SUCCESS order for (saleID, userID), if any.
// Returns nil, nil if no such order exists.
func (r *OrderRepository) GetByUser(ctx context.Context, saleID, userID string) (*model.Order, error) {
	query := `SELECT id, sale_id, user_id, status, created_at FROM orders
	          WHERE sale_id = $1 AND user_id = $2 AND status = 'SUCCESS'`

	var o model.Order
	err := r.pool.QueryRow(ctx, query, saleID, userID).Scan(&o.ID, &o.SaleID, &o.UserID, &o.Status, &o.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get order for %s/%s: %w", saleID, userID, err)
	}
	return &o, nil
}

// Insert inserts a new order row within a transaction.
// Returns service.ErrDuplicateOrder if a SUCCESS order already exists for
// (sale_id, user_id) - the uniqueness constraint is the ultimate enforcer of
// one-per-customer. Any other failure is classified per spec.md's DOL
// contract: service.ErrTransientDurable for connectivity failures (the
// caller may retry later), service.ErrFatalDurable for everything else.
func (r *OrderRepository) Insert(ctx context.Context, tx database.TxQuerier, saleID, userID string, status model.OrderStatus) (*model.Order, error) {
	query := `INSERT INTO orders (sale_id, user_id, status) VALUES ($1, $2, $3)
	          RETURNING id, created_at`

	var o model.Order
	o.SaleID = saleID
	o.UserID = userID
	o.Status = status

	err := tx.QueryRow(ctx, query, saleID, userID, status).Scan(&o.ID, &o.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, service.ErrDuplicateOrder
		}
		return nil, classifyInsertErr(err)
	}
	return &o, nil
}

// classifyInsertErr maps a pgx insert failure to the TRANSIENT/FATAL taxonomy
// the admission pipeline's compensation path distinguishes in logs: connection
// exceptions, operator-initiated disconnects, deadline/cancellation, and raw
// network errors are transient; everything else (constraint violations other
// than duplicate, data exceptions, syntax errors) is fatal.
func classifyInsertErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("insert order: %w: %w", service.ErrTransientDurable, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("insert order: %w: %w", service.ErrTransientDurable, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Class 08 = connection exception, class 57 = operator intervention
		// (admin shutdown, crash, too many connections).
		if strings.HasPrefix(pgErr.Code, "08") || strings.HasPrefix(pgErr.Code, "57") {
			return fmt.Errorf("insert order: %w: %w", service.ErrTransientDurable, err)
		}
		return fmt.Errorf("insert order: %w: %w", service.ErrFatalDurable, err)
	}

	// No classifiable error (e.g. pool exhaustion, closed pool): treat as
	// transient since it carries no evidence of a permanent condition.
	return fmt.Errorf("insert order: %w: %w", service.ErrTransientDurable, err)
}

// DeleteBySale deletes all orders for a sale. Administrative (reset) only.
func (r *OrderRepository) DeleteBySale(ctx context.Context, saleID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM orders WHERE sale_id = $1`, saleID)
	if err != nil {
		return fmt.Errorf("delete orders for %s: %w", saleID, err)
	}
	return nil
}
