// Package payments reconciles locally recorded orders with the payment
// gateway's asynchronous callbacks.
//
// Every state-advancing write is keyed by the gateway payment id and is
// idempotent in the store, so approve, complete and incomplete may arrive in
// any order and any number of times and still converge on the same order.
// Once an order is paid, the linked job is advanced through JobMarker.
package payments

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/FCJuventus/DoPi-demo/internal/apperr"
	"github.com/FCJuventus/DoPi-demo/internal/metrics"
	"github.com/FCJuventus/DoPi-demo/internal/piclient"
	"github.com/FCJuventus/DoPi-demo/internal/store"
	"github.com/FCJuventus/DoPi-demo/models"
)

// Gateway is the subset of the payment platform API the engine calls.
type Gateway interface {
	GetPayment(ctx context.Context, paymentID string) (*models.PiPayment, error)
	Approve(ctx context.Context, paymentID string) (*models.PiPayment, error)
	Complete(ctx context.Context, paymentID, txid string) (*models.PiPayment, error)
}

// ChainVerifier loads the on-chain record a payment's transaction links to.
type ChainVerifier interface {
	FetchTransaction(ctx context.Context, link string) (*models.ChainTransaction, error)
}

// JobMarker advances a job once its payment settles. It must be a no-op for a
// job that is already paid.
type JobMarker interface {
	MarkPaid(ctx context.Context, jobID, txid string) (*models.Job, error)
}

// Deps are the collaborators of the Service.
type Deps struct {
	Orders  store.OrderStore
	Jobs    store.JobStore
	Marker  JobMarker
	Gateway Gateway
	Chain   ChainVerifier
	Fees    models.FeePolicy
	Logger  logrus.FieldLogger
	Metrics *metrics.Collector
}

// Service is the payment reconciliation engine.
type Service struct {
	orders  store.OrderStore
	jobs    store.JobStore
	marker  JobMarker
	gateway Gateway
	chain   ChainVerifier
	fees    models.FeePolicy
	logger  logrus.FieldLogger
	metrics *metrics.Collector

	sweepMu         sync.Mutex
	completedCursor *store.OrderCursor
}

// NewService builds the engine.
func NewService(d Deps) *Service {
	logger := d.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Service{
		orders:  d.Orders,
		jobs:    d.Jobs,
		marker:  d.Marker,
		gateway: d.Gateway,
		chain:   d.Chain,
		fees:    d.Fees,
		logger:  logger.WithField("component", "payments"),
		metrics: d.Metrics,
	}
}

// CreateInput describes a payment intent started from the client.
type CreateInput struct {
	UserUID     string
	Amount      decimal.Decimal
	ProductID   string
	Description string
}

// ApproveInput is the approve callback.
type ApproveInput struct {
	UserUID   string
	PaymentID string
	OrderID   string
}

// IncompleteInput is the gateway's incomplete-payment webhook.
type IncompleteInput struct {
	PaymentID string
	TxID      string
	Link      string
}

// Create records a payment intent. When ProductID names a job the amount must
// match the job's total with fee.
func (s *Service) Create(ctx context.Context, in CreateInput) (o *models.Order, err error) {
	defer func() { s.metrics.RecordCallback("create", err) }()
	const op = "payments.create"

	in.UserUID = strings.TrimSpace(in.UserUID)
	in.ProductID = strings.TrimSpace(in.ProductID)
	if in.UserUID == "" {
		return nil, apperr.Unauthorized("sign in to start a payment")
	}
	if !in.Amount.IsPositive() {
		return nil, apperr.Validation("amount must be greater than zero")
	}

	o = &models.Order{
		PayerUID: in.UserUID,
		Amount:   in.Amount,
		Fee:      decimal.Zero,
		Total:    in.Amount,
		Memo:     strings.TrimSpace(in.Description),
		Status:   models.OrderStatusCreated,
	}
	if in.ProductID != "" {
		j, err := s.jobs.GetJob(ctx, in.ProductID)
		switch {
		case err == nil:
			charge := computeCharge(j.BudgetPi, s.fees)
			if !charge.matches(in.Amount) {
				return nil, apperr.Validation("amount mismatch: expected %s", charge.Total)
			}
			o.JobID = models.StringPtr(j.ID)
			o.FreelancerUID = j.FreelancerUID
			o.Amount, o.Fee, o.Total = charge.Budget, charge.Fee, charge.Total
		case errors.Is(err, store.ErrNotFound):
			// Not a job; the product id is kept as an opaque link.
			o.JobID = models.StringPtr(in.ProductID)
		default:
			return nil, apperr.Internal(op, err)
		}
	}

	if err := s.orders.CreateOrder(ctx, o); err != nil {
		return nil, apperr.Internal(op, err)
	}
	s.logger.WithFields(logrus.Fields{"order_id": o.ID, "payer_uid": o.PayerUID, "total": o.Total.String()}).Info("Order created")
	return o, nil
}

// Approve validates a gateway payment against the linked job and acknowledges it.
func (s *Service) Approve(ctx context.Context, in ApproveInput) (o *models.Order, err error) {
	defer func() { s.metrics.RecordCallback("approve", err) }()
	const op = "payments.approve"

	in.PaymentID = strings.TrimSpace(in.PaymentID)
	if in.PaymentID == "" {
		return nil, apperr.Validation("paymentId is required")
	}
	if strings.TrimSpace(in.UserUID) == "" {
		return nil, apperr.Unauthorized("sign in to approve a payment")
	}
	log := s.logger.WithField("payment_id", in.PaymentID)

	p, err := s.gateway.GetPayment(ctx, in.PaymentID)
	if err != nil {
		return nil, gatewayError(op, in.PaymentID, err)
	}
	md := p.Metadata
	if strings.TrimSpace(md.JobID) == "" {
		return nil, apperr.Validation("payment metadata must carry jobId")
	}
	if md.Amount == nil {
		return nil, apperr.Validation("payment metadata must carry amount")
	}

	j, err := s.jobs.GetJob(ctx, md.JobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFound("job %s not found", md.JobID)
		}
		return nil, apperr.Internal(op, err)
	}
	if j.CreatorUID != in.UserUID {
		return nil, apperr.Forbidden("only the job creator can pay for it")
	}
	if j.Status != models.JobStatusAwarded && j.Status != models.JobStatusPaid {
		return nil, apperr.WrongState("job is %s and cannot be paid", j.Status)
	}
	if j.Status == models.JobStatusPaid {
		// Only a replay of the payment that settled the job is accepted.
		existing, err := s.orders.GetOrderByPaymentID(ctx, in.PaymentID)
		switch {
		case err == nil && existing.JobIDValue() == j.ID:
		case err == nil, errors.Is(err, store.ErrNotFound):
			log.WithField("job_id", j.ID).Warn("Second payment for a paid job")
			return nil, apperr.WrongState("job %s is already paid", j.ID)
		default:
			return nil, apperr.Internal(op, err)
		}
	}

	charge := computeCharge(j.BudgetPi, s.fees)
	if !charge.matches(*md.Amount) || !charge.matches(p.Amount) {
		log.WithFields(logrus.Fields{
			"expected": charge.Total.String(),
			"metadata": md.Amount.String(),
			"gateway":  p.Amount.String(),
		}).Warn("Payment amount mismatch")
		return nil, apperr.Validation("amount mismatch: expected %s", charge.Total)
	}

	if in.OrderID != "" {
		if _, err := s.orders.BindPayment(ctx, in.OrderID, in.PaymentID); err != nil {
			switch {
			case errors.Is(err, store.ErrNotFound):
				return nil, apperr.NotFound("order %s not found", in.OrderID)
			case errors.Is(err, store.ErrStateConflict):
				return nil, apperr.WrongState("order %s is bound to another payment", in.OrderID)
			case errors.Is(err, store.ErrDuplicate):
				log.WithField("order_id", in.OrderID).Warn("Payment already recorded on another order")
			default:
				return nil, apperr.Internal(op, err)
			}
		}
	}

	o, err = s.orders.UpsertApproved(ctx, &models.Order{
		PaymentID:     models.StringPtr(in.PaymentID),
		JobID:         models.StringPtr(j.ID),
		PayerUID:      in.UserUID,
		FreelancerUID: j.FreelancerUID,
		Amount:        charge.Budget,
		Fee:           charge.Fee,
		Total:         charge.Total,
		Memo:          p.Memo,
		Status:        models.OrderStatusApproved,
	})
	if err != nil {
		return nil, apperr.Internal(op, err)
	}
	if o.Cancelled() {
		return nil, apperr.WrongState("payment %s was cancelled", in.PaymentID)
	}

	if !p.Status.DeveloperApproved {
		if _, err := s.gateway.Approve(ctx, in.PaymentID); err != nil {
			return nil, gatewayError(op, in.PaymentID, err)
		}
	}
	log.WithFields(logrus.Fields{"order_id": o.ID, "job_id": j.ID}).Info("Payment approved")
	return o, nil
}

// Complete records the transaction of a payment, acknowledges it at the
// gateway and marks the linked job paid. An order that was never approved
// is synthesized from the gateway's description.
func (s *Service) Complete(ctx context.Context, paymentID, txid string) (o *models.Order, err error) {
	defer func() { s.metrics.RecordCallback("complete", err) }()
	const op = "payments.complete"

	paymentID, txid = strings.TrimSpace(paymentID), strings.TrimSpace(txid)
	if paymentID == "" || txid == "" {
		return nil, apperr.Validation("paymentId and txid are required")
	}

	var fallback *models.Order
	if _, err := s.orders.GetOrderByPaymentID(ctx, paymentID); err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return nil, apperr.Internal(op, err)
		}
		if fallback, err = s.synthesize(ctx, op, paymentID); err != nil {
			return nil, err
		}
	}
	return s.settle(ctx, op, paymentID, txid, fallback)
}

// Incomplete handles a payment confirmed on chain but never completed. The
// order must exist; when the transaction carries a link its memo must name
// the payment.
func (s *Service) Incomplete(ctx context.Context, in IncompleteInput) (o *models.Order, err error) {
	defer func() { s.metrics.RecordCallback("incomplete", err) }()
	const op = "payments.incomplete"

	in.PaymentID, in.TxID = strings.TrimSpace(in.PaymentID), strings.TrimSpace(in.TxID)
	if in.PaymentID == "" || in.TxID == "" {
		return nil, apperr.Validation("payment identifier and transaction txid are required")
	}

	if _, err := s.orders.GetOrderByPaymentID(ctx, in.PaymentID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFound("payment record %s not found", in.PaymentID)
		}
		return nil, apperr.Internal(op, err)
	}

	if in.Link != "" {
		tx, err := s.chain.FetchTransaction(ctx, in.Link)
		if err != nil {
			return nil, apperr.Upstream(op, err)
		}
		if tx.Memo != in.PaymentID {
			s.logger.WithFields(logrus.Fields{"payment_id": in.PaymentID, "memo": tx.Memo}).Warn("Transaction memo mismatch")
			return nil, apperr.Validation("payment id (memo) doesn't match")
		}
	}
	return s.settle(ctx, op, in.PaymentID, in.TxID, nil)
}

// Cancel marks an open order cancelled. The linked job is left as is. An
// unknown payment id is accepted as already cancelled; an unknown order id
// is not found.
func (s *Service) Cancel(ctx context.Context, ref models.OrderRef) (o *models.Order, err error) {
	defer func() { s.metrics.RecordCallback("cancel", err) }()
	const op = "payments.cancel"

	ref.OrderID, ref.PaymentID = strings.TrimSpace(ref.OrderID), strings.TrimSpace(ref.PaymentID)
	if ref.OrderID == "" && ref.PaymentID == "" {
		return nil, apperr.Validation("orderId or paymentId is required")
	}

	o, err = s.orders.CancelOrder(ctx, ref)
	switch {
	case err == nil:
		s.logger.WithFields(logrus.Fields{"order_id": o.ID, "payment_id": o.PaymentIDValue()}).Info("Order cancelled")
		return o, nil
	case errors.Is(err, store.ErrNotFound):
		if ref.OrderID != "" {
			return nil, apperr.NotFound("order %s not found", ref.OrderID)
		}
		return nil, nil
	case errors.Is(err, store.ErrStateConflict):
		return nil, apperr.WrongState("payment is already settled and cannot be cancelled")
	default:
		return nil, apperr.Internal(op, err)
	}
}

// synthesize builds the record for a completion whose approval was never
// stored, from the gateway's own description of the payment.
func (s *Service) synthesize(ctx context.Context, op, paymentID string) (*models.Order, error) {
	p, err := s.gateway.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, gatewayError(op, paymentID, err)
	}
	o := &models.Order{
		PayerUID: p.UserUID,
		Amount:   p.Amount,
		Fee:      decimal.Zero,
		Total:    p.Amount,
		Memo:     p.Memo,
	}
	if jobID := strings.TrimSpace(p.Metadata.JobID); jobID != "" {
		j, err := s.jobs.GetJob(ctx, jobID)
		switch {
		case err == nil:
			charge := computeCharge(j.BudgetPi, s.fees)
			// Recorded as received, but not allowed to pay for the job.
			if !charge.matches(p.Amount) {
				s.logger.WithFields(logrus.Fields{
					"payment_id": paymentID,
					"job_id":     jobID,
					"expected":   charge.Total.String(),
					"gateway":    p.Amount.String(),
				}).Warn("Payment amount mismatch; order kept without job")
				break
			}
			if j.Status == models.JobStatusPaid {
				s.logger.WithFields(logrus.Fields{"payment_id": paymentID, "job_id": jobID}).
					Warn("Job already paid by another payment; order kept without job")
				break
			}
			o.JobID = models.StringPtr(jobID)
			o.FreelancerUID = j.FreelancerUID
			o.Amount, o.Fee, o.Total = charge.Budget, charge.Fee, charge.Total
		case errors.Is(err, store.ErrNotFound):
			o.JobID = models.StringPtr(jobID)
		default:
			return nil, apperr.Internal(op, err)
		}
	}
	s.logger.WithFields(logrus.Fields{"payment_id": paymentID, "job_id": o.JobIDValue()}).Warn("Completing payment without an approved order")
	return o, nil
}

// settle is the shared tail of complete and incomplete: record the hash,
// acknowledge at the gateway, then advance the job.
func (s *Service) settle(ctx context.Context, op, paymentID, txid string, fallback *models.Order) (*models.Order, error) {
	log := s.logger.WithFields(logrus.Fields{"payment_id": paymentID, "txid": txid})

	o, err := s.orders.MarkPaid(ctx, paymentID, txid, fallback)
	switch {
	case err == nil:
	case errors.Is(err, store.ErrNotFound):
		return nil, apperr.NotFound("payment record %s not found", paymentID)
	case errors.Is(err, store.ErrStateConflict):
		return nil, apperr.WrongState("payment %s is already settled with another transaction", paymentID)
	default:
		return nil, apperr.Internal(op, err)
	}

	if o.Status != models.OrderStatusCompleted {
		if err := s.acknowledge(ctx, paymentID, txid); err != nil {
			log.WithError(err).Error("Gateway completion failed; order stays paid")
			return nil, apperr.Upstream(op, err)
		}
		if o, err = s.orders.MarkCompleted(ctx, paymentID); err != nil {
			return nil, apperr.Internal(op, err)
		}
	}

	if err := s.markJobPaid(ctx, o, txid); err != nil {
		return nil, err
	}
	log.WithFields(logrus.Fields{"order_id": o.ID, "job_id": o.JobIDValue()}).Info("Payment settled")
	return o, nil
}

// acknowledge tells the gateway the payment is complete. A failure is
// forgiven when the gateway already reports the payment completed.
func (s *Service) acknowledge(ctx context.Context, paymentID, txid string) error {
	_, err := s.gateway.Complete(ctx, paymentID, txid)
	if err == nil {
		return nil
	}
	p, getErr := s.gateway.GetPayment(ctx, paymentID)
	if getErr == nil && p.Status.DeveloperCompleted {
		return nil
	}
	return err
}

func (s *Service) markJobPaid(ctx context.Context, o *models.Order, txid string) error {
	jobID := o.JobIDValue()
	if jobID == "" || s.marker == nil {
		return nil
	}
	_, err := s.marker.MarkPaid(ctx, jobID, txid)
	switch {
	case err == nil:
		return nil
	case apperr.Is(err, apperr.KindWrongState), apperr.Is(err, apperr.KindNotFound):
		s.logger.WithError(err).WithFields(logrus.Fields{"job_id": jobID, "order_id": o.ID}).
			Warn("Payment recorded but job could not be marked paid")
		return nil
	default:
		return err
	}
}

// gatewayError maps a gateway failure. A 404 means the payment id is unknown
// to the gateway; anything else is an upstream failure.
func gatewayError(op, paymentID string, err error) error {
	var apiErr *piclient.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		return apperr.NotFound("payment %s not found at the gateway", paymentID)
	}
	return apperr.Upstream(op, err)
}
