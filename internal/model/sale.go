package model

import "time"

// SaleStatusKind is the derived lifecycle state of a sale.
type SaleStatusKind string

const (
	StatusUpcoming SaleStatusKind = "UPCOMING"
	StatusActive   SaleStatusKind = "ACTIVE"
	StatusEnded    SaleStatusKind = "ENDED"
)

// OrderStatus is the persisted status of an order row.
type OrderStatus string

const (
	OrderSuccess OrderStatus = "SUCCESS"
	OrderFailed  OrderStatus = "FAILED"
)

// Sale represents a flash sale in the durable order log.
type Sale struct {
	ID         string    `json:"sale_id"`
	Name       string    `json:"name"`
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
	TotalStock int       `json:"total_stock"`
	CreatedAt  time.Time `json:"-"`
	UpdatedAt  time.Time `json:"-"`
}

// Order represents a committed (or failed) purchase attempt row.
type Order struct {
	ID         int64       `json:"order_id"`
	SaleID     string      `json:"sale_id"`
	UserID     string      `json:"user_id"`
	Status     OrderStatus `json:"status"`
	CreatedAt  time.Time   `json:"created_at"`
}

// CreateSaleRequest is the DTO for creating a sale (administrative, out of
// core scope but needed to seed the DOL).
type CreateSaleRequest struct {
	SaleID     string    `json:"sale_id" validate:"required,notblank,max=255"`
	Name       string    `json:"name" validate:"required,notblank,max=255"`
	StartTime  time.Time `json:"start_time" validate:"required"`
	EndTime    time.Time `json:"end_time" validate:"required,gtfield=StartTime"`
	TotalStock *int      `json:"total_stock" validate:"required,gte=0"`
}

// PurchaseRequest is the DTO for a purchase attempt.
type PurchaseRequest struct {
	UserID string `json:"user_id" validate:"required,notblank,max=255,alphanumdash"`
	SaleID string `json:"sale_id" validate:"omitempty,max=255"`
}

// UpdateWindowRequest is the DTO for the administrative window-update operation.
type UpdateWindowRequest struct {
	SaleID    string     `json:"sale_id" validate:"required,notblank,max=255"`
	StartTime *time.Time `json:"start_time"`
	EndTime   *time.Time `json:"end_time"`
}

// ResetRequest is the DTO for the administrative reset operation.
type ResetRequest struct {
	SaleID string `json:"sale_id" validate:"omitempty,max=255"`
	Stock  int    `json:"stock" validate:"gte=0"`
}

// Result is the outcome code of a Purchase call.
type Result string

const (
	ResultSuccess          Result = "SUCCESS"
	ResultAlreadyPurchased Result = "ALREADY_PURCHASED"
	ResultSoldOut          Result = "SOLD_OUT"
	ResultSaleNotActive    Result = "SALE_NOT_ACTIVE"
	ResultSaleNotFound     Result = "SALE_NOT_FOUND"
	ResultError            Result = "ERROR"
)

// PurchaseResponse is the API response DTO for Purchase.
type PurchaseResponse struct {
	Result         Result         `json:"result"`
	Message        string         `json:"message"`
	Order          *Order         `json:"order,omitempty"`
	RemainingStock *int           `json:"remaining_stock,omitempty"`
	SaleStatus     SaleStatusKind `json:"sale_status,omitempty"`
}

// SaleStatusResponse is the API response DTO for GetSaleStatus.
type SaleStatusResponse struct {
	SaleID         string         `json:"sale_id"`
	Name           string         `json:"name"`
	Status         SaleStatusKind `json:"status"`
	RemainingStock int            `json:"remaining_stock"`
	TotalStock     int            `json:"total_stock"`
	StartTime      time.Time      `json:"start_time"`
	EndTime        time.Time      `json:"end_time"`
}

// StatsResponse is the API response DTO for GetStats.
type StatsResponse struct {
	Sale      SaleStatusResponse `json:"sale"`
	Purchases PurchaseCounts     `json:"purchases"`
}

// PurchaseCounts breaks down order counts by status.
type PurchaseCounts struct {
	SuccessCount int `json:"success_count"`
	FailedCount  int `json:"failed_count"`
	TotalCount   int `json:"total_count"`
}

// UserPurchaseResponse is the API response DTO for GetUserPurchase.
type UserPurchaseResponse struct {
	Purchased bool   `json:"purchased"`
	Order     *Order `json:"order,omitempty"`
}
