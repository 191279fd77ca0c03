package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/FCJuventus/DoPi-demo/internal/store"
	"github.com/FCJuventus/DoPi-demo/models"
)

var (
	openStatuses    = []models.OrderStatus{models.OrderStatusCreated, models.OrderStatusApproved}
	payableStatuses = []models.OrderStatus{models.OrderStatusCreated, models.OrderStatusApproved, models.OrderStatusCancelled}
)

// CreateOrder inserts a new order and assigns its id.
func (s *Store) CreateOrder(ctx context.Context, o *models.Order) error {
	t := now()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = t
	}
	o.UpdatedAt = t

	m, err := toOrderModel(o)
	if err != nil {
		return err
	}
	if m.ID.IsZero() {
		m.ID = bson.NewObjectID()
	}
	if _, err := s.orders().InsertOne(ctx, m); err != nil {
		if isDuplicateKey(err) {
			return store.ErrDuplicate
		}
		return fmt.Errorf("store/mongo: create order: %w", err)
	}
	o.ID = m.ID.Hex()
	return nil
}

// GetOrder retrieves an order by internal id.
func (s *Store) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	oid, err := objectID(id)
	if err != nil {
		return nil, err
	}
	return s.findOrder(ctx, bson.M{"_id": oid})
}

// GetOrderByPaymentID retrieves the order bound to a gateway payment id.
func (s *Store) GetOrderByPaymentID(ctx context.Context, paymentID string) (*models.Order, error) {
	return s.findOrder(ctx, bson.M{"payment_id": paymentID})
}

// FindOpenOrder returns the newest open order of payer for job.
func (s *Store) FindOpenOrder(ctx context.Context, jobID, payerUID string) (*models.Order, error) {
	filter := bson.M{
		"job_id":    jobID,
		"payer_uid": payerUID,
		"status":    bson.M{"$in": statusValues(openStatuses)},
	}
	return s.findOrder(ctx, filter, options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}}))
}

func (s *Store) findOrder(ctx context.Context, filter bson.M, opts ...options.Lister[options.FindOneOptions]) (*models.Order, error) {
	var m orderModel
	if err := s.orders().FindOne(ctx, filter, opts...).Decode(&m); err != nil {
		if isNoDocuments(err) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("store/mongo: find order: %w", err)
	}
	return fromOrderModel(&m)
}

func (s *Store) updateOrder(ctx context.Context, filter, update bson.M) (*models.Order, bool, error) {
	var m orderModel
	err := s.orders().FindOneAndUpdate(ctx, filter, update, afterUpdate()).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, false, nil
		}
		if isDuplicateKey(err) {
			return nil, false, store.ErrDuplicate
		}
		return nil, false, fmt.Errorf("store/mongo: update order: %w", err)
	}
	o, err := fromOrderModel(&m)
	return o, err == nil, err
}

// BindPayment assigns a payment id to an order that has none.
func (s *Store) BindPayment(ctx context.Context, orderID, paymentID string) (*models.Order, error) {
	oid, err := objectID(orderID)
	if err != nil {
		return nil, err
	}
	o, ok, err := s.updateOrder(ctx,
		bson.M{"_id": oid, "payment_id": bson.M{"$exists": false}},
		bson.M{"$set": bson.M{"payment_id": paymentID, "updated_at": now()}})
	if err != nil || ok {
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

// UpsertApproved inserts the order keyed by payment id when absent, then
// advances a created order to approved.
func (s *Store) UpsertApproved(ctx context.Context, o *models.Order) (*models.Order, error) {
	paymentID := o.PaymentIDValue()
	m, err := toOrderModel(o)
	if err != nil {
		return nil, err
	}
	t := now()
	onInsert := bson.M{
		"_id":        bson.NewObjectID(),
		"job_id":     m.JobID,
		"payer_uid":  m.PayerUID,
		"amount":     m.Amount,
		"fee":        m.Fee,
		"total":      m.Total,
		"txid":       nil,
		"status":     string(models.OrderStatusApproved),
		"created_at": t,
		"updated_at": t,
	}
	if m.FreelancerUID != nil {
		onInsert["freelancer_uid"] = *m.FreelancerUID
	}
	if m.Memo != "" {
		onInsert["memo"] = m.Memo
	}

	_, err = s.orders().UpdateOne(ctx,
		bson.M{"payment_id": paymentID},
		bson.M{"$setOnInsert": onInsert},
		options.UpdateOne().SetUpsert(true))
	if err != nil && !isDuplicateKey(err) {
		return nil, fmt.Errorf("store/mongo: upsert approved order: %w", err)
	}

	advanced, ok, err := s.updateOrder(ctx,
		bson.M{"payment_id": paymentID, "status": string(models.OrderStatusCreated)},
		bson.M{"$set": bson.M{"status": string(models.OrderStatusApproved), "updated_at": now()}})
	if err != nil || ok {
		return advanced, err
	}
	return s.GetOrderByPaymentID(ctx, paymentID)
}

// MarkPaid records the transaction hash and moves the order to paid.
func (s *Store) MarkPaid(ctx context.Context, paymentID, txid string, fallback *models.Order) (*models.Order, error) {
	t := now()
	paid, ok, err := s.updateOrder(ctx,
		bson.M{"payment_id": paymentID, "status": bson.M{"$in": statusValues(payableStatuses)}},
		bson.M{"$set": bson.M{
			"status":     string(models.OrderStatusPaid),
			"txid":       txid,
			"paid_at":    t,
			"updated_at": t,
		}})
	if err != nil || ok {
		return paid, err
	}

	// A paid order's hash is unconfirmed until the gateway acknowledges it.
	rebound, ok, err := s.updateOrder(ctx,
		bson.M{"payment_id": paymentID, "status": string(models.OrderStatusPaid), "txid": bson.M{"$ne": txid}},
		bson.M{"$set": bson.M{"txid": txid, "paid_at": t, "updated_at": t}})
	if err != nil || ok {
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
			// Lost the insert race; the winner's record is advanced instead.
			return s.MarkPaid(ctx, paymentID, txid, nil)
		}
		return nil, err
	}
	return fallback, nil
}

// MarkCompleted moves a paid order to completed.
func (s *Store) MarkCompleted(ctx context.Context, paymentID string) (*models.Order, error) {
	done, ok, err := s.updateOrder(ctx,
		bson.M{"payment_id": paymentID, "status": string(models.OrderStatusPaid)},
		bson.M{"$set": bson.M{"status": string(models.OrderStatusCompleted), "updated_at": now()}})
	if err != nil || ok {
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
	var key bson.M
	if ref.OrderID != "" {
		oid, err := objectID(ref.OrderID)
		if err != nil {
			return nil, err
		}
		key = bson.M{"_id": oid}
	} else {
		key = bson.M{"payment_id": ref.PaymentID}
	}

	filter := bson.M{"status": bson.M{"$in": statusValues(openStatuses)}}
	for k, v := range key {
		filter[k] = v
	}
	cancelled, ok, err := s.updateOrder(ctx, filter,
		bson.M{"$set": bson.M{"status": string(models.OrderStatusCancelled), "updated_at": now()}})
	if err != nil || ok {
		return cancelled, err
	}

	current, err := s.findOrder(ctx, key)
	if err != nil {
		return nil, err
	}
	if current.Status != models.OrderStatusCancelled {
		return nil, store.ErrStateConflict
	}
	return current, nil
}

// ListOrders returns orders in the given statuses, least recently updated first.
func (s *Store) ListOrders(ctx context.Context, f store.OrderFilter) ([]*models.Order, error) {
	filter := bson.M{}
	if len(f.Statuses) > 0 {
		filter["status"] = bson.M{"$in": statusValues(f.Statuses)}
	}
	if f.After != nil {
		oid, err := objectID(f.After.ID)
		if err != nil {
			return nil, fmt.Errorf("store/mongo: list orders cursor %q: %w", f.After.ID, err)
		}
		after := f.After.UpdatedAt.UTC()
		filter["$or"] = bson.A{
			bson.M{"updated_at": bson.M{"$gt": after}},
			bson.M{"updated_at": after, "_id": bson.M{"$gt": oid}},
		}
	}
	findOpts := options.Find().
		SetSort(bson.D{{Key: "updated_at", Value: 1}, {Key: "_id", Value: 1}}).
		SetLimit(int64(store.ClampLimit(f.Limit)))

	cursor, err := s.orders().Find(ctx, filter, findOpts)
	if err != nil {
		return nil, fmt.Errorf("store/mongo: list orders: %w", err)
	}
	defer cursor.Close(ctx)

	var ms []orderModel
	if err := cursor.All(ctx, &ms); err != nil {
		return nil, fmt.Errorf("store/mongo: list orders decode: %w", err)
	}
	orders := make([]*models.Order, 0, len(ms))
	for i := range ms {
		o, err := fromOrderModel(&ms[i])
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, nil
}
