// Package memory is an in-memory implementation of store.Store.
// Safe for concurrent access. Intended for tests and local development.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/FCJuventus/DoPi-demo/internal/store"
	"github.com/FCJuventus/DoPi-demo/models"
)

var _ store.Store = (*Store)(nil)

// Store keeps jobs and orders in maps guarded by one mutex, which makes every
// conditional update atomic.
type Store struct {
	mu        sync.RWMutex
	jobs      map[string]*models.Job
	orders    map[string]*models.Order
	byPayment map[string]string // payment id -> order id
	now       func() time.Time
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		jobs:      make(map[string]*models.Job),
		orders:    make(map[string]*models.Order),
		byPayment: make(map[string]string),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Migrate is a no-op for the memory store.
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds.
func (s *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close(_ context.Context) error { return nil }

// ── Jobs ─────────────────────────────────────────────────────────

func (s *Store) CreateJob(_ context.Context, j *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	if _, exists := s.jobs[j.ID]; exists {
		return store.ErrDuplicate
	}
	t := s.now()
	if j.CreatedAt.IsZero() {
		j.CreatedAt = t
	}
	j.UpdatedAt = j.CreatedAt
	cp := *j
	s.jobs[j.ID] = &cp
	return nil
}

func (s *Store) GetJob(_ context.Context, id string) (*models.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	j, ok := s.jobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (s *Store) ListJobs(_ context.Context, f store.JobFilter) ([]*models.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]*models.Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		if f.Status != "" && j.Status != f.Status {
			continue
		}
		if f.ParticipantUID != "" && j.CreatorUID != f.ParticipantUID &&
			(j.FreelancerUID == nil || *j.FreelancerUID != f.ParticipantUID) {
			continue
		}
		cp := *j
		matched = append(matched, &cp)
	}
	sort.Slice(matched, func(a, b int) bool {
		if matched[a].CreatedAt.Equal(matched[b].CreatedAt) {
			return matched[a].ID > matched[b].ID
		}
		return matched[a].CreatedAt.After(matched[b].CreatedAt)
	})
	return page(matched, f.Offset, store.ClampLimit(f.Limit)), nil
}

func (s *Store) TransitionJob(_ context.Context, id string, from []models.JobStatus, to models.JobStatus, patch store.JobPatch) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if !store.ContainsStatus(from, j.Status) {
		return nil, store.ErrStateConflict
	}
	j.Status = to
	if patch.FreelancerUID != nil {
		j.FreelancerUID = patch.FreelancerUID
	}
	if patch.ClearFreelancer {
		j.FreelancerUID = nil
	}
	if patch.TxID != nil {
		j.TxID = patch.TxID
	}
	if patch.PaidAt != nil {
		j.PaidAt = patch.PaidAt
	}
	j.UpdatedAt = s.now()
	cp := *j
	return &cp, nil
}

// ── Orders ───────────────────────────────────────────────────────

func (s *Store) CreateOrder(_ context.Context, o *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertOrderLocked(o)
}

func (s *Store) insertOrderLocked(o *models.Order) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if _, exists := s.orders[o.ID]; exists {
		return store.ErrDuplicate
	}
	if pid := o.PaymentIDValue(); pid != "" {
		if _, taken := s.byPayment[pid]; taken {
			return store.ErrDuplicate
		}
		s.byPayment[pid] = o.ID
	}
	t := s.now()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = t
	}
	o.UpdatedAt = t
	cp := *o
	s.orders[o.ID] = &cp
	return nil
}

func (s *Store) GetOrder(_ context.Context, id string) (*models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (s *Store) GetOrderByPaymentID(_ context.Context, paymentID string) (*models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o := s.byPaymentLocked(paymentID)
	if o == nil {
		return nil, store.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (s *Store) byPaymentLocked(paymentID string) *models.Order {
	id, ok := s.byPayment[paymentID]
	if !ok {
		return nil
	}
	return s.orders[id]
}

func (s *Store) FindOpenOrder(_ context.Context, jobID, payerUID string) (*models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var newest *models.Order
	for _, o := range s.orders {
		if o.JobIDValue() != jobID || o.PayerUID != payerUID || !o.Status.Open() {
			continue
		}
		if newest == nil || o.CreatedAt.After(newest.CreatedAt) {
			newest = o
		}
	}
	if newest == nil {
		return nil, store.ErrNotFound
	}
	cp := *newest
	return &cp, nil
}

func (s *Store) BindPayment(_ context.Context, orderID, paymentID string) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[orderID]
	if !ok {
		return nil, store.ErrNotFound
	}
	switch current := o.PaymentIDValue(); {
	case current == paymentID:
	case current != "":
		return nil, store.ErrStateConflict
	default:
		if _, taken := s.byPayment[paymentID]; taken {
			return nil, store.ErrDuplicate
		}
		o.PaymentID = models.StringPtr(paymentID)
		o.UpdatedAt = s.now()
		s.byPayment[paymentID] = o.ID
	}
	cp := *o
	return &cp, nil
}

func (s *Store) UpsertApproved(_ context.Context, o *models.Order) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.byPaymentLocked(o.PaymentIDValue())
	if existing == nil {
		o.Status = models.OrderStatusApproved
		if err := s.insertOrderLocked(o); err != nil {
			return nil, err
		}
		cp := *s.orders[o.ID]
		return &cp, nil
	}
	if existing.Status == models.OrderStatusCreated {
		existing.Status = models.OrderStatusApproved
		existing.UpdatedAt = s.now()
	}
	cp := *existing
	return &cp, nil
}

func (s *Store) MarkPaid(_ context.Context, paymentID, txid string, fallback *models.Order) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o := s.byPaymentLocked(paymentID)
	if o == nil {
		if fallback == nil {
			return nil, store.ErrNotFound
		}
		t := s.now()
		fallback.PaymentID = models.StringPtr(paymentID)
		fallback.TxID = models.StringPtr(txid)
		fallback.Status = models.OrderStatusPaid
		fallback.PaidAt = &t
		if err := s.insertOrderLocked(fallback); err != nil {
			return nil, err
		}
		cp := *s.orders[fallback.ID]
		return &cp, nil
	}
	if o.Status.Settled() && o.TxIDValue() == txid {
		cp := *o
		return &cp, nil
	}
	if o.Status == models.OrderStatusCompleted {
		return nil, store.ErrStateConflict
	}
	t := s.now()
	o.Status = models.OrderStatusPaid
	o.TxID = models.StringPtr(txid)
	o.PaidAt = &t
	o.UpdatedAt = t
	cp := *o
	return &cp, nil
}

func (s *Store) MarkCompleted(_ context.Context, paymentID string) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o := s.byPaymentLocked(paymentID)
	if o == nil {
		return nil, store.ErrNotFound
	}
	switch o.Status {
	case models.OrderStatusPaid:
		o.Status = models.OrderStatusCompleted
		o.UpdatedAt = s.now()
	case models.OrderStatusCompleted:
	default:
		return nil, store.ErrStateConflict
	}
	cp := *o
	return &cp, nil
}

func (s *Store) CancelOrder(_ context.Context, ref models.OrderRef) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var o *models.Order
	if ref.OrderID != "" {
		o = s.orders[ref.OrderID]
	} else {
		o = s.byPaymentLocked(ref.PaymentID)
	}
	if o == nil {
		return nil, store.ErrNotFound
	}
	switch {
	case o.Status.Open():
		o.Status = models.OrderStatusCancelled
		o.UpdatedAt = s.now()
	case o.Status == models.OrderStatusCancelled:
	default:
		return nil, store.ErrStateConflict
	}
	cp := *o
	return &cp, nil
}

func (s *Store) ListOrders(_ context.Context, f store.OrderFilter) ([]*models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]*models.Order, 0, len(s.orders))
	for _, o := range s.orders {
		if len(f.Statuses) > 0 && !store.ContainsStatus(f.Statuses, o.Status) {
			continue
		}
		if f.After.Before(o) {
			continue
		}
		cp := *o
		matched = append(matched, &cp)
	}
	sort.Slice(matched, func(a, b int) bool {
		if matched[a].UpdatedAt.Equal(matched[b].UpdatedAt) {
			return strings.Compare(matched[a].ID, matched[b].ID) < 0
		}
		return matched[a].UpdatedAt.Before(matched[b].UpdatedAt)
	})
	return page(matched, 0, store.ClampLimit(f.Limit)), nil
}

func page[T any](items []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if len(items) > limit {
		items = items[:limit]
	}
	return items
}
