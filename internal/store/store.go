// Package store defines the persistence contracts for jobs and orders.
//
// Every state-advancing method is a single conditional update keyed by record
// identity, so concurrent or repeated callers converge instead of clobbering
// each other. Implementations live in the memory, mongo and postgrest
// subpackages.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/FCJuventus/DoPi-demo/models"
)

var (
	// ErrNotFound is returned when the referenced record does not exist.
	ErrNotFound = errors.New("store: record not found")
	// ErrStateConflict is returned when a conditional update matched the record
	// but not its current status.
	ErrStateConflict = errors.New("store: status does not allow this update")
	// ErrDuplicate is returned when a unique key is already taken.
	ErrDuplicate = errors.New("store: duplicate key")
)

// MaxPageSize caps every list query.
const MaxPageSize = 100

// JobFilter selects jobs for ListJobs. Results are ordered newest first.
type JobFilter struct {
	// Status filters by lifecycle status. Empty means any status.
	Status models.JobStatus
	// ParticipantUID matches jobs where the uid is the creator or the freelancer.
	ParticipantUID string
	// Limit is clamped to (0, MaxPageSize].
	Limit  int
	Offset int
}

// JobPatch carries the fields set alongside a status transition.
// Nil fields are left untouched unless the matching Clear flag is set.
type JobPatch struct {
	FreelancerUID   *string
	ClearFreelancer bool
	TxID            *string
	PaidAt          *time.Time
}

// JobStore persists jobs.
type JobStore interface {
	// CreateJob inserts j and assigns its ID when empty.
	CreateJob(ctx context.Context, j *models.Job) error

	// GetJob returns the job with the given id.
	GetJob(ctx context.Context, id string) (*models.Job, error)

	// ListJobs returns jobs matching f, newest first.
	ListJobs(ctx context.Context, f JobFilter) ([]*models.Job, error)

	// TransitionJob sets the status to `to` and applies patch, only if the
	// current status is one of from. It returns ErrNotFound when the job does
	// not exist and ErrStateConflict when its status is not in from.
	TransitionJob(ctx context.Context, id string, from []models.JobStatus, to models.JobStatus, patch JobPatch) (*models.Job, error)
}

// OrderFilter selects orders for ListOrders. Results are ordered oldest
// update first, ties broken by id.
type OrderFilter struct {
	Statuses []models.OrderStatus
	// After resumes a listing strictly past the given position.
	After *OrderCursor
	Limit int
}

// OrderCursor is a position in the ListOrders ordering.
type OrderCursor struct {
	UpdatedAt time.Time
	ID        string
}

// CursorAfter returns the position just past o.
func CursorAfter(o *models.Order) *OrderCursor {
	return &OrderCursor{UpdatedAt: o.UpdatedAt, ID: o.ID}
}

// Before reports whether o sorts at or before the cursor position.
func (c *OrderCursor) Before(o *models.Order) bool {
	if c == nil {
		return false
	}
	if o.UpdatedAt.Equal(c.UpdatedAt) {
		return o.ID <= c.ID
	}
	return o.UpdatedAt.Before(c.UpdatedAt)
}

// OrderStore persists orders.
type OrderStore interface {
	// CreateOrder inserts o and assigns its ID when empty. A taken payment id
	// yields ErrDuplicate.
	CreateOrder(ctx context.Context, o *models.Order) error

	// GetOrder returns the order with the given internal id.
	GetOrder(ctx context.Context, id string) (*models.Order, error)

	// GetOrderByPaymentID returns the order bound to the gateway payment id.
	GetOrderByPaymentID(ctx context.Context, paymentID string) (*models.Order, error)

	// FindOpenOrder returns the newest created or approved order of payer for job.
	FindOpenOrder(ctx context.Context, jobID, payerUID string) (*models.Order, error)

	// BindPayment assigns paymentID to an order that has none. Binding the same
	// id again is a no-op; an order bound to another id yields ErrStateConflict.
	BindPayment(ctx context.Context, orderID, paymentID string) (*models.Order, error)

	// UpsertApproved inserts o keyed by its payment id when absent and moves a
	// created order to approved. Defining fields of an existing record are
	// never overwritten, and settled or cancelled orders keep their status.
	UpsertApproved(ctx context.Context, o *models.Order) (*models.Order, error)

	// MarkPaid records txid and moves the order to paid. Replaying the same
	// txid on a settled order returns it unchanged. A paid order has not been
	// acknowledged by the gateway yet, so a different txid replaces the stored
	// one; on a completed order it yields ErrStateConflict. When no order has
	// the payment id, fallback is inserted in paid state, or ErrNotFound is
	// returned when fallback is nil.
	MarkPaid(ctx context.Context, paymentID, txid string, fallback *models.Order) (*models.Order, error)

	// MarkCompleted moves a paid order to completed. Completed orders are left as is.
	MarkCompleted(ctx context.Context, paymentID string) (*models.Order, error)

	// CancelOrder moves a created or approved order to cancelled. Cancelled
	// orders are returned unchanged; settled orders yield ErrStateConflict.
	CancelOrder(ctx context.Context, ref models.OrderRef) (*models.Order, error)

	// ListOrders returns orders matching f.
	ListOrders(ctx context.Context, f OrderFilter) ([]*models.Order, error)
}

// Store is a full persistence backend.
type Store interface {
	JobStore
	OrderStore

	// Migrate creates collections, tables or indexes as the backend requires.
	Migrate(ctx context.Context) error
	// Ping checks connectivity.
	Ping(ctx context.Context) error
	// Close releases resources owned by the store.
	Close(ctx context.Context) error
}

// ClampLimit applies the default and maximum page size.
func ClampLimit(limit int) int {
	if limit <= 0 || limit > MaxPageSize {
		return MaxPageSize
	}
	return limit
}

// ContainsStatus reports whether s is in set.
func ContainsStatus[S ~string](set []S, s S) bool {
	for _, candidate := range set {
		if candidate == s {
			return true
		}
	}
	return false
}
