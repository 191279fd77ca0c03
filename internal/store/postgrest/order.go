package postgrest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	postgrest "github.com/supabase-community/postgrest-go"

	"github.com/FCJuventus/DoPi-demo/internal/store"
	"github.com/FCJuventus/DoPi-demo/models"
)

var (
	openStatuses    = []string{string(models.OrderStatusCreated), string(models.OrderStatusApproved)}
	payableStatuses = []string{string(models.OrderStatusCreated), string(models.OrderStatusApproved), string(models.OrderStatusCancelled)}
)

// CreateOrder inserts o with a fresh uuid when it has none.
func (s *Store) CreateOrder(_ context.Context, o *models.Order) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	t := time.Now().UTC()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = t
	}
	o.UpdatedAt = t

	_, _, err := s.db.From(tableOrders).
		Insert(toOrderRow(o), false, "", "minimal", "").
		Execute()
	return mapError("create order", err)
}

// GetOrder retrieves an order by internal id.
func (s *Store) GetOrder(_ context.Context, id string) (*models.Order, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, store.ErrNotFound
	}
	return s.selectOrder(s.db.From(tableOrders).Select("*", "", false).Eq("id", id))
}

// GetOrderByPaymentID retrieves the order bound to a gateway payment id.
func (s *Store) GetOrderByPaymentID(_ context.Context, paymentID string) (*models.Order, error) {
	return s.selectOrder(s.db.From(tableOrders).Select("*", "", false).Eq("payment_id", paymentID))
}

// FindOpenOrder returns the newest open order of payer for job.
func (s *Store) FindOpenOrder(_ context.Context, jobID, payerUID string) (*models.Order, error) {
	return s.selectOrder(s.db.From(tableOrders).
		Select("*", "", false).
		Eq("job_id", jobID).
		Eq("payer_uid", payerUID).
		In("status", openStatuses).
		Order("created_at", &postgrest.OrderOpts{Ascending: false}).
		Limit(1, ""))
}

func (s *Store) selectOrder(q *postgrest.FilterBuilder) (*models.Order, error) {
	body, _, err := q.Execute()
	if err != nil {
		return nil, mapError("select order", err)
	}
	rows, err := decodeRows[orderRow](body)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, store.ErrNotFound
	}
	return rows[0].model(), nil
}

// patchOrder runs a conditional PATCH. A nil order with a nil error means the
// filter matched nothing.
func (s *Store) patchOrder(q *postgrest.FilterBuilder) (*models.Order, error) {
	body, _, err := q.Execute()
	if err != nil {
		return nil, mapError("update order", err)
	}
	rows, err := decodeRows[orderRow](body)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0].model(), nil
}

func (s *Store) updateOrders(updates map[string]interface{}) *postgrest.FilterBuilder {
	updates["updated_at"] = time.Now().UTC()
	return s.db.From(tableOrders).Update(updates, returnRepresentation, "")
}

// BindPayment assigns a payment id to an order that has none.
func (s *Store) BindPayment(ctx context.Context, orderID, paymentID string) (*models.Order, error) {
	if _, err := uuid.Parse(orderID); err != nil {
		return nil, store.ErrNotFound
	}
	o, err := s.patchOrder(s.updateOrders(map[string]interface{}{"payment_id": paymentID}).
		Eq("id", orderID).
		Is("payment_id", "null"))
	if err != nil || o != nil {
		return o, err
	}

	current, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if current.PaymentIDValue() != paymentID {
		return nil, store.ErrStateConflict
	}
	return current, nil
}

// UpsertApproved inserts the order when its payment id is new, then advances
// a created order to approved. An existing row is never overwritten.
func (s *Store) UpsertApproved(ctx context.Context, o *models.Order) (*models.Order, error) {
	paymentID := o.PaymentIDValue()
	insert := *o
	insert.ID = ""
	insert.Status = models.OrderStatusApproved
	if err := s.CreateOrder(ctx, &insert); err != nil && err != store.ErrDuplicate {
		return nil, err
	}

	advanced, err := s.patchOrder(s.updateOrders(map[string]interface{}{"status": string(models.OrderStatusApproved)}).
		Eq("payment_id", paymentID).
		Eq("status", string(models.OrderStatusCreated)))
	if err != nil || advanced != nil {
		return advanced, err
	}
	return s.GetOrderByPaymentID(ctx, paymentID)
}

// MarkPaid records the transaction hash and moves the order to paid.
func (s *Store) MarkPaid(ctx context.Context, paymentID, txid string, fallback *models.Order) (*models.Order, error) {
	t := time.Now().UTC()
	paid, err := s.patchOrder(s.updateOrders(map[string]interface{}{
		"status":  string(models.OrderStatusPaid),
		"txid":    txid,
		"paid_at": t,
	}).
		Eq("payment_id", paymentID).
		In("status", payableStatuses))
	if err != nil || paid != nil {
		return paid, err
	}

	// A paid order's hash is unconfirmed until the gateway acknowledges it.
	rebound, err := s.patchOrder(s.updateOrders(map[string]interface{}{
		"txid":    txid,
		"paid_at": t,
	}).
		Eq("payment_id", paymentID).
		Eq("status", string(models.OrderStatusPaid)).
		Neq("txid", txid))
	if err != nil || rebound != nil {
		return rebound, err
	}

	current, err := s.GetOrderByPaymentID(ctx, paymentID)
	switch {
	case err == nil:
		if current.Status.Settled() && current.TxIDValue() == txid {
			return current, nil
		}
		return nil, store.ErrStateConflict
	case err != store.ErrNotFound:
		return nil, err
	case fallback == nil:
		return nil, store.ErrNotFound
	}

	fallback.PaymentID = models.StringPtr(paymentID)
	fallback.TxID = models.StringPtr(txid)
	fallback.Status = models.OrderStatusPaid
	fallback.PaidAt = &t
	if err := s.CreateOrder(ctx, fallback); err != nil {
		if err == store.ErrDuplicate {
			return s.MarkPaid(ctx, paymentID, txid, nil)
		}
		return nil, err
	}
	return fallback, nil
}

// MarkCompleted moves a paid order to completed.
func (s *Store) MarkCompleted(ctx context.Context, paymentID string) (*models.Order, error) {
	done, err := s.patchOrder(s.updateOrders(map[string]interface{}{"status": string(models.OrderStatusCompleted)}).
		Eq("payment_id", paymentID).
		Eq("status", string(models.OrderStatusPaid)))
	if err != nil || done != nil {
		return done, err
	}
	current, err := s.GetOrderByPaymentID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if current.Status != models.OrderStatusCompleted {
		return nil, store.ErrStateConflict
	}
	return current, nil
}

// CancelOrder moves an open order to cancelled.
func (s *Store) CancelOrder(ctx context.Context, ref models.OrderRef) (*models.Order, error) {
	q := s.updateOrders(map[string]interface{}{"status": string(models.OrderStatusCancelled)})
	if ref.OrderID != "" {
		if _, err := uuid.Parse(ref.OrderID); err != nil {
			return nil, store.ErrNotFound
		}
		q = q.Eq("id", ref.OrderID)
	} else {
		q = q.Eq("payment_id", ref.PaymentID)
	}
	cancelled, err := s.patchOrder(q.In("status", openStatuses))
	if err != nil || cancelled != nil {
		return cancelled, err
	}

	var current *models.Order
	if ref.OrderID != "" {
		current, err = s.GetOrder(ctx, ref.OrderID)
	} else {
		current, err = s.GetOrderByPaymentID(ctx, ref.PaymentID)
	}
	if err != nil {
		return nil, err
	}
	if current.Status != models.OrderStatusCancelled {
		return nil, store.ErrStateConflict
	}
	return current, nil
}

// ListOrders returns orders in the given statuses, least recently updated first.
func (s *Store) ListOrders(_ context.Context, f store.OrderFilter) ([]*models.Order, error) {
	q := s.db.From(tableOrders).Select("*", "", false)
	if len(f.Statuses) > 0 {
		q = q.In("status", statusStrings(f.Statuses))
	}
	if f.After != nil {
		if _, err := uuid.Parse(f.After.ID); err != nil {
			return nil, fmt.Errorf("store/postgrest: list orders cursor %q: %w", f.After.ID, err)
		}
		after := f.After.UpdatedAt.UTC().Format(time.RFC3339Nano)
		q = q.Or(fmt.Sprintf(`updated_at.gt."%s",and(updated_at.eq."%s",id.gt.%s)`, after, after, f.After.ID), "")
	}
	body, _, err := q.
		Order("updated_at", &postgrest.OrderOpts{Ascending: true}).
		Order("id", &postgrest.OrderOpts{Ascending: true}).
		Limit(store.ClampLimit(f.Limit), "").
		Execute()
	if err != nil {
		return nil, mapError("list orders", err)
	}
	rows, err := decodeRows[orderRow](body)
	if err != nil {
		return nil, err
	}
	orders := make([]*models.Order, 0, len(rows))
	for _, r := range rows {
		orders = append(orders, r.model())
	}
	return orders, nil
}
