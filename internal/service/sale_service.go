// Package service implements the admission pipeline: the purchase protocol
// coordinating the Fast Coordinator (Redis-backed stock counter and user
// marks) with the Durable Order Log (Postgres, the source of truth).
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/scalable-coupon-system/internal/coordinator"
	"github.com/fairyhunter13/scalable-coupon-system/internal/model"
	"github.com/fairyhunter13/scalable-coupon-system/pkg/database"
)

// SaleRepositoryInterface defines the interface for sale data access.
type SaleRepositoryInterface interface {
	Insert(ctx context.Context, sale *model.Sale) error
	GetByID(ctx context.Context, saleID string) (*model.Sale, error)
	SetTotalStock(ctx context.Context, saleID string, n int) error
	UpdateWindow(ctx context.Context, saleID string, start, end *time.Time) error
}

// OrderRepositoryInterface defines the interface for order data access.
type OrderRepositoryInterface interface {
	CountSuccess(ctx context.Context, saleID string) (int, error)
	CountFailed(ctx context.Context, saleID string) (int, error)
	ListSuccessUsers(ctx context.Context, saleID string) ([]string, error)
	GetByUser(ctx context.Context, saleID, userID string) (*model.Order, error)
	Insert(ctx context.Context, tx database.TxQuerier, saleID, userID string, status model.OrderStatus) (*model.Order, error)
	DeleteBySale(ctx context.Context, saleID string) error
}

// CoordinatorInterface is the Fast Coordinator contract the pipeline depends
// on; satisfied by coordinator.Coordinator.
type CoordinatorInterface interface {
	SetStock(ctx context.Context, saleID string, n int64) error
	GetStock(ctx context.Context, saleID string) (int64, bool, error)
	DecrStock(ctx context.Context, saleID string) (int64, error)
	IncrStock(ctx context.Context, saleID string) (int64, error)
	HasMark(ctx context.Context, saleID, userID string) (bool, error)
	SetMark(ctx context.Context, saleID, userID string) error
	ClearMark(ctx context.Context, saleID, userID string) error
	Reset(ctx context.Context, saleID string) error
}

// TxBeginner defines the interface for beginning transactions.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// SaleService implements the admission pipeline described in the purchase
// core: sale lookup, fast user-mark check, atomic stock decrement, oversell
// guard, user-mark write, durable insert, with compensation on every failure
// path.
type SaleService struct {
	pool       TxBeginner
	saleRepo   SaleRepositoryInterface
	orderRepo  OrderRepositoryInterface
	coord      CoordinatorInterface
	defaultSaleID string
}

// NewSaleService creates a new SaleService with the given pool and repositories.
func NewSaleService(pool *pgxpool.Pool, saleRepo SaleRepositoryInterface, orderRepo OrderRepositoryInterface, coord CoordinatorInterface, defaultSaleID string) *SaleService {
	return &SaleService{pool: pool, saleRepo: saleRepo, orderRepo: orderRepo, coord: coord, defaultSaleID: defaultSaleID}
}

// NewSaleServiceWithTxBeginner creates a SaleService with a custom TxBeginner.
// Primarily used for testing.
func NewSaleServiceWithTxBeginner(pool TxBeginner, saleRepo SaleRepositoryInterface, orderRepo OrderRepositoryInterface, coord CoordinatorInterface, defaultSaleID string) *SaleService {
	return &SaleService{pool: pool, saleRepo: saleRepo, orderRepo: orderRepo, coord: coord, defaultSaleID: defaultSaleID}
}

// resolveSaleID returns the request sale id, or the configured default sale
// when the caller didn't supply one.
func (s *SaleService) resolveSaleID(saleID string) string {
	if saleID != "" {
		return saleID
	}
	return s.defaultSaleID
}

// deriveStatus is a pure function of the current instant and the sale window.
func deriveStatus(now, start, end time.Time) model.SaleStatusKind {
	if start.After(now) {
		return model.StatusUpcoming
	}
	if now.After(end) {
		return model.StatusEnded
	}
	return model.StatusActive
}

// CreateSale creates a new sale from the request. Administrative: seeds the
// DOL so the core has something to admit purchases against.
func (s *SaleService) CreateSale(ctx context.Context, req *model.CreateSaleRequest) error {
	if req == nil || req.TotalStock == nil {
		return ErrInvalidRequest
	}

	sale := &model.Sale{
		ID:         req.SaleID,
		Name:       req.Name,
		StartTime:  req.StartTime,
		EndTime:    req.EndTime,
		TotalStock: *req.TotalStock,
	}
	return s.saleRepo.Insert(ctx, sale)
}

// GetSaleStatus retrieves the derived status and remaining stock for a sale.
// Remaining stock comes from FC; if FC is unavailable, falls back to
// total_stock - count_success from the DOL, lower-bounded at zero.
func (s *SaleService) GetSaleStatus(ctx context.Context, saleID string) (*model.SaleStatusResponse, error) {
	saleID = s.resolveSaleID(saleID)

	sale, err := s.saleRepo.GetByID(ctx, saleID)
	if err != nil {
		return nil, fmt.Errorf("get sale: %w", err)
	}
	if sale == nil {
		return nil, ErrSaleNotFound
	}

	remaining, err := s.remainingStock(ctx, sale)
	if err != nil {
		return nil, err
	}

	return &model.SaleStatusResponse{
		SaleID:         sale.ID,
		Name:           sale.Name,
		Status:         deriveStatus(time.Now(), sale.StartTime, sale.EndTime),
		RemainingStock: remaining,
		TotalStock:     sale.TotalStock,
		StartTime:      sale.StartTime,
		EndTime:        sale.EndTime,
	}, nil
}

// remainingStock reads the live counter from FC, falling back to the DOL
// reconciliation formula when FC is unavailable.
func (s *SaleService) remainingStock(ctx context.Context, sale *model.Sale) (int, error) {
	stock, ok, err := s.coord.GetStock(ctx, sale.ID)
	if err == nil && ok {
		if stock < 0 {
			stock = 0
		}
		return int(stock), nil
	}
	if err != nil {
		log.Warn().Err(err).Str("sale_id", sale.ID).Msg("coordinator unavailable, falling back to durable count")
	}

	success, cerr := s.orderRepo.CountSuccess(ctx, sale.ID)
	if cerr != nil {
		return 0, fmt.Errorf("count success fallback: %w", cerr)
	}
	remaining := sale.TotalStock - success
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// GetStats retrieves sale status plus a breakdown of order counts.
func (s *SaleService) GetStats(ctx context.Context, saleID string) (*model.StatsResponse, error) {
	saleID = s.resolveSaleID(saleID)

	status, err := s.GetSaleStatus(ctx, saleID)
	if err != nil {
		return nil, err
	}

	successCount, err := s.orderRepo.CountSuccess(ctx, saleID)
	if err != nil {
		return nil, fmt.Errorf("count success: %w", err)
	}
	failedCount, err := s.orderRepo.CountFailed(ctx, saleID)
	if err != nil {
		return nil, fmt.Errorf("count failed: %w", err)
	}

	return &model.StatsResponse{
		Sale: *status,
		Purchases: model.PurchaseCounts{
			SuccessCount: successCount,
			FailedCount:  failedCount,
			TotalCount:   successCount + failedCount,
		},
	}, nil
}

// UpdateWindow updates the start and/or end time of a sale. Administrative.
func (s *SaleService) UpdateWindow(ctx context.Context, req *model.UpdateWindowRequest) (*model.Sale, error) {
	if req == nil || req.SaleID == "" {
		return nil, ErrInvalidRequest
	}

	if err := s.saleRepo.UpdateWindow(ctx, req.SaleID, req.StartTime, req.EndTime); err != nil {
		return nil, fmt.Errorf("update window: %w", err)
	}

	sale, err := s.saleRepo.GetByID(ctx, req.SaleID)
	if err != nil {
		return nil, fmt.Errorf("get sale after window update: %w", err)
	}
	if sale == nil {
		return nil, ErrSaleNotFound
	}
	return sale, nil
}

// GetUserPurchase reports whether a user has a successful order for a sale.
func (s *SaleService) GetUserPurchase(ctx context.Context, userID, saleID string) (*model.UserPurchaseResponse, error) {
	saleID = s.resolveSaleID(saleID)

	order, err := s.orderRepo.GetByUser(ctx, saleID, userID)
	if err != nil {
		return nil, fmt.Errorf("get user purchase: %w", err)
	}
	if order == nil {
		return &model.UserPurchaseResponse{Purchased: false}, nil
	}
	return &model.UserPurchaseResponse{Purchased: true, Order: order}, nil
}

// Purchase implements the six-step admission pipeline. It is the sole
// correctness-critical path in the system.
func (s *SaleService) Purchase(ctx context.Context, userID, saleID string) (*model.PurchaseResponse, error) {
	saleID = s.resolveSaleID(saleID)

	// 1. Sale lookup.
	sale, err := s.saleRepo.GetByID(ctx, saleID)
	if err != nil {
		return nil, fmt.Errorf("get sale: %w", err)
	}
	if sale == nil {
		return &model.PurchaseResponse{Result: model.ResultSaleNotFound, Message: "sale not found"}, nil
	}

	status := deriveStatus(time.Now(), sale.StartTime, sale.EndTime)
	if status != model.StatusActive {
		return &model.PurchaseResponse{
			Result:     model.ResultSaleNotActive,
			Message:    "sale not active",
			SaleStatus: status,
		}, nil
	}

	// 2. Fast user-mark check, with DOL fallback when FC is unavailable.
	hasMark, err := s.coord.HasMark(ctx, saleID, userID)
	if err != nil {
		log.Warn().Err(err).Str("sale_id", saleID).Str("user_id", userID).Msg("coordinator unavailable for mark check, falling back to durable log")
		order, derr := s.orderRepo.GetByUser(ctx, saleID, userID)
		if derr != nil {
			return nil, fmt.Errorf("fallback user purchase check: %w", derr)
		}
		if order != nil {
			return &model.PurchaseResponse{Result: model.ResultAlreadyPurchased, Message: "already purchased"}, nil
		}
	} else if hasMark {
		return &model.PurchaseResponse{Result: model.ResultAlreadyPurchased, Message: "already purchased"}, nil
	}

	// 3. Atomic stock decrement.
	newStock, err := s.coord.DecrStock(ctx, saleID)
	if err != nil {
		log.Error().Err(err).Str("sale_id", saleID).Str("user_id", userID).Msg("coordinator decrement failed")
		return &model.PurchaseResponse{Result: model.ResultError, Message: "coordinator unavailable"}, nil
	}
	stockDecremented := true

	// 4. Oversell guard.
	if newStock < 0 {
		if _, ierr := s.coord.IncrStock(ctx, saleID); ierr != nil {
			log.Error().Err(ierr).Str("sale_id", saleID).Msg("failed to compensate stock after sold-out decrement")
		}
		stockDecremented = false
		return &model.PurchaseResponse{Result: model.ResultSoldOut, Message: "sold out"}, nil
	}

	// 5. User-mark write, preceding the DOL insert so a concurrent request from
	// the same user takes the fast-path rejection at step 2.
	if err := s.coord.SetMark(ctx, saleID, userID); err != nil {
		log.Error().Err(err).Str("sale_id", saleID).Str("user_id", userID).Msg("coordinator mark write failed")
		s.compensate(ctx, saleID, stockDecremented, false, userID)
		return &model.PurchaseResponse{Result: model.ResultError, Message: "coordinator unavailable"}, nil
	}
	markWritten := true

	// 6. Durable insert.
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		s.compensate(ctx, saleID, stockDecremented, markWritten, userID)
		return &model.PurchaseResponse{Result: model.ResultError, Message: "durable store unavailable"}, nil
	}
	defer func() { _ = tx.Rollback(ctx) }() // Safe: no-op if committed

	order, err := s.orderRepo.Insert(ctx, tx, saleID, userID, model.OrderSuccess)
	if err != nil {
		if errors.Is(err, ErrDuplicateOrder) {
			// 6a. The user already committed an order in a concurrent request
			// (their mark had not yet been written when step 2 ran). Restore the
			// unit we provisionally consumed. Do NOT clear the mark - the other
			// request owns it.
			if _, ierr := s.coord.IncrStock(ctx, saleID); ierr != nil {
				log.Error().Err(ierr).Str("sale_id", saleID).Msg("failed to compensate stock after duplicate order")
			}
			return &model.PurchaseResponse{Result: model.ResultAlreadyPurchased, Message: "already purchased"}, nil
		}

		// 6b. Transient or fatal DOL error: compensate fully.
		log.Error().Err(err).Str("sale_id", saleID).Str("user_id", userID).Msg("durable insert failed")
		s.compensate(ctx, saleID, stockDecremented, markWritten, userID)
		return &model.PurchaseResponse{Result: model.ResultError, Message: "durable store error"}, nil
	}

	if err := tx.Commit(ctx); err != nil {
		log.Error().Err(err).Str("sale_id", saleID).Str("user_id", userID).Msg("durable commit failed")
		s.compensate(ctx, saleID, stockDecremented, markWritten, userID)
		return &model.PurchaseResponse{Result: model.ResultError, Message: "durable store error"}, nil
	}

	// 6c. Success.
	remaining := int(newStock)
	return &model.PurchaseResponse{
		Result:         model.ResultSuccess,
		Message:        "purchase successful",
		Order:          order,
		RemainingStock: &remaining,
	}, nil
}

// compensate restores FC state after a step-6 failure: increment stock if it
// was decremented, clear the mark if it was written. Failures here are logged
// at error level and never retried synchronously; eventual consistency is
// restored by RecoverUserMarks/InitStock.
func (s *SaleService) compensate(ctx context.Context, saleID string, stockDecremented, markWritten bool, userID string) {
	if stockDecremented {
		if _, err := s.coord.IncrStock(ctx, saleID); err != nil {
			log.Error().Err(err).Str("sale_id", saleID).Msg("compensation: failed to restore stock")
		}
	}
	if markWritten {
		if err := s.coord.ClearMark(ctx, saleID, userID); err != nil {
			log.Error().Err(err).Str("sale_id", saleID).Str("user_id", userID).Msg("compensation: failed to clear mark")
		}
	}
}

// Reset is administrative: sets total_stock, deletes all orders, clears FC
// stock and marks, then re-seeds FC stock. Only used for tests and controlled
// relaunches.
func (s *SaleService) Reset(ctx context.Context, saleID string, stock int) error {
	saleID = s.resolveSaleID(saleID)

	if err := s.saleRepo.SetTotalStock(ctx, saleID, stock); err != nil {
		return fmt.Errorf("set total stock: %w", err)
	}
	if err := s.orderRepo.DeleteBySale(ctx, saleID); err != nil {
		return fmt.Errorf("delete orders: %w", err)
	}
	if err := s.coord.Reset(ctx, saleID); err != nil {
		return fmt.Errorf("reset coordinator: %w", err)
	}
	if err := s.coord.SetStock(ctx, saleID, int64(stock)); err != nil {
		return fmt.Errorf("set stock: %w", err)
	}
	return nil
}

// InitStock recomputes remaining = total_stock - count_success from the DOL
// and overwrites FC. Safe when no purchases are in flight; may cause
// transient over-acceptance if invoked during live traffic (documented
// limitation, not guarded against here).
func (s *SaleService) InitStock(ctx context.Context, saleID string) (int64, error) {
	saleID = s.resolveSaleID(saleID)

	sale, err := s.saleRepo.GetByID(ctx, saleID)
	if err != nil {
		return 0, fmt.Errorf("get sale: %w", err)
	}
	if sale == nil {
		return 0, ErrSaleNotFound
	}

	if deriveStatus(time.Now(), sale.StartTime, sale.EndTime) == model.StatusActive {
		log.Warn().Str("sale_id", saleID).Msg("init-stock invoked against an active sale; may cause transient over-acceptance")
	}

	success, err := s.orderRepo.CountSuccess(ctx, saleID)
	if err != nil {
		return 0, fmt.Errorf("count success: %w", err)
	}

	remaining := sale.TotalStock - success
	if remaining < 0 {
		remaining = 0
	}

	if err := s.coord.SetStock(ctx, saleID, int64(remaining)); err != nil {
		return 0, fmt.Errorf("set stock: %w", err)
	}
	return int64(remaining), nil
}

// RecoverUserMarks reads all SUCCESS user_ids from the DOL for a sale and
// sets a mark for each. Idempotent. Used after FC failover.
func (s *SaleService) RecoverUserMarks(ctx context.Context, saleID string) (int, error) {
	saleID = s.resolveSaleID(saleID)

	users, err := s.orderRepo.ListSuccessUsers(ctx, saleID)
	if err != nil {
		return 0, fmt.Errorf("list success users: %w", err)
	}

	for _, userID := range users {
		if err := s.coord.SetMark(ctx, saleID, userID); err != nil {
			return 0, fmt.Errorf("set mark for %s: %w", userID, err)
		}
	}
	return len(users), nil
}

// Bootstrap computes remaining stock from the DOL and seeds FC for the
// configured default sale at process startup. If the sale doesn't exist,
// logs and continues - reads will return SALE_NOT_FOUND.
func (s *SaleService) Bootstrap(ctx context.Context, saleID string) {
	saleID = s.resolveSaleID(saleID)

	sale, err := s.saleRepo.GetByID(ctx, saleID)
	if err != nil {
		log.Error().Err(err).Str("sale_id", saleID).Msg("bootstrap: failed to read sale")
		return
	}
	if sale == nil {
		log.Warn().Str("sale_id", saleID).Msg("bootstrap: default sale not found, skipping stock seed")
		return
	}

	remaining, err := s.InitStock(ctx, saleID)
	if err != nil {
		log.Error().Err(err).Str("sale_id", saleID).Msg("bootstrap: failed to seed coordinator stock")
		return
	}
	log.Info().Str("sale_id", saleID).Int64("remaining_stock", remaining).Msg("bootstrap complete")
}
