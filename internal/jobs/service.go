// Package jobs implements the job lifecycle: open, awarded, paid, completed,
// with cancellation allowed before payment.
//
// Each mutating operation checks its input, loads the job to report a missing
// record or a foreign caller, then applies one conditional update guarded by
// the allowed source statuses. A lost race is reported as wrong-state with the
// status that won.
package jobs

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/FCJuventus/DoPi-demo/internal/apperr"
	"github.com/FCJuventus/DoPi-demo/internal/metrics"
	"github.com/FCJuventus/DoPi-demo/internal/store"
	"github.com/FCJuventus/DoPi-demo/models"
)

// CreateInput carries the fields of a new job.
type CreateInput struct {
	Title       string          `validate:"required,max=200"`
	Description string          `validate:"required,max=5000"`
	BudgetPi    decimal.Decimal `validate:"-"`
	CreatorUID  string          `validate:"required"`
}

// Service is the job lifecycle engine.
type Service struct {
	jobs     store.JobStore
	orders   store.OrderStore
	fees     models.FeePolicy
	logger   logrus.FieldLogger
	metrics  *metrics.Collector
	validate *validator.Validate
}

// NewService wires the engine to its stores.
func NewService(jobs store.JobStore, orders store.OrderStore, fees models.FeePolicy, logger logrus.FieldLogger, collector *metrics.Collector) *Service {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Service{
		jobs:     jobs,
		orders:   orders,
		fees:     fees,
		logger:   logger.WithField("component", "jobs"),
		metrics:  collector,
		validate: validator.New(),
	}
}

// Quote returns the payer-side price of a budget under the configured policy.
func (s *Service) Quote(budget decimal.Decimal) Quote {
	return NewQuote(budget, s.fees)
}

// Create inserts an open job.
func (s *Service) Create(ctx context.Context, in CreateInput) (*models.Job, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.CreatorUID = strings.TrimSpace(in.CreatorUID)
	if err := s.validate.Struct(in); err != nil {
		return nil, apperr.Validation("title, description, budgetPi and creatorUid are required")
	}
	if !in.BudgetPi.IsPositive() {
		return nil, apperr.Validation("budgetPi must be greater than zero")
	}

	j := &models.Job{
		Title:       in.Title,
		Description: in.Description,
		BudgetPi:    in.BudgetPi,
		CreatorUID:  in.CreatorUID,
		Status:      models.JobStatusOpen,
	}
	if err := s.jobs.CreateJob(ctx, j); err != nil {
		return nil, apperr.Internal("jobs.create", err)
	}
	s.metrics.RecordJobTransition(string(models.JobStatusOpen))
	s.logger.WithFields(logrus.Fields{"job_id": j.ID, "creator_uid": j.CreatorUID}).Info("Job created")
	return j, nil
}

// Get returns one job.
func (s *Service) Get(ctx context.Context, id string) (*models.Job, error) {
	return s.load(ctx, "jobs.get", id)
}

// ListOpen returns open jobs, newest first. Limit is capped at store.MaxPageSize.
func (s *Service) ListOpen(ctx context.Context, limit, offset int) ([]*models.Job, error) {
	jobs, err := s.jobs.ListJobs(ctx, store.JobFilter{Status: models.JobStatusOpen, Limit: limit, Offset: offset})
	if err != nil {
		return nil, apperr.Internal("jobs.list_open", err)
	}
	return jobs, nil
}

// ListForParticipant returns the jobs uid created or was awarded, newest first.
func (s *Service) ListForParticipant(ctx context.Context, uid string, limit, offset int) ([]*models.Job, error) {
	uid = strings.TrimSpace(uid)
	if uid == "" {
		return nil, apperr.Validation("uid is required")
	}
	jobs, err := s.jobs.ListJobs(ctx, store.JobFilter{ParticipantUID: uid, Limit: limit, Offset: offset})
	if err != nil {
		return nil, apperr.Internal("jobs.list_participant", err)
	}
	return jobs, nil
}

// Award assigns a freelancer to an open job.
func (s *Service) Award(ctx context.Context, id, callerUID, freelancerUID string) (*models.Job, error) {
	callerUID = strings.TrimSpace(callerUID)
	freelancerUID = strings.TrimSpace(freelancerUID)
	if callerUID == "" || freelancerUID == "" {
		return nil, apperr.Validation("creatorUid and freelancerUid are required")
	}
	return s.transition(ctx, transitionRequest{
		op:     "jobs.award",
		id:     id,
		caller: callerUID,
		from:   []models.JobStatus{models.JobStatusOpen},
		to:     models.JobStatusAwarded,
		patch:  store.JobPatch{FreelancerUID: &freelancerUID},
	})
}

// Complete closes a paid job.
func (s *Service) Complete(ctx context.Context, id, callerUID string) (*models.Job, error) {
	callerUID = strings.TrimSpace(callerUID)
	if callerUID == "" {
		return nil, apperr.Validation("creatorUid is required")
	}
	return s.transition(ctx, transitionRequest{
		op:     "jobs.complete",
		id:     id,
		caller: callerUID,
		from:   []models.JobStatus{models.JobStatusPaid},
		to:     models.JobStatusCompleted,
	})
}

// Cancel withdraws an open or awarded job. Paid jobs cannot be cancelled
// because refunds are not handled.
func (s *Service) Cancel(ctx context.Context, id, callerUID string) (*models.Job, error) {
	callerUID = strings.TrimSpace(callerUID)
	if callerUID == "" {
		return nil, apperr.Validation("creatorUid is required")
	}
	return s.transition(ctx, transitionRequest{
		op:     "jobs.cancel",
		id:     id,
		caller: callerUID,
		from:   []models.JobStatus{models.JobStatusOpen, models.JobStatusAwarded},
		to:     models.JobStatusCancelled,
		patch:  store.JobPatch{ClearFreelancer: true},
	})
}

// MarkPaid records a settled payment on an awarded job. It is called by the
// payment engine, carries no caller check, and is a no-op on a job that is
// already paid or completed.
func (s *Service) MarkPaid(ctx context.Context, id, txid string) (*models.Job, error) {
	now := time.Now().UTC()
	patch := store.JobPatch{PaidAt: &now}
	if txid != "" {
		patch.TxID = &txid
	}
	j, err := s.transition(ctx, transitionRequest{
		op:    "jobs.mark_paid",
		id:    id,
		from:  []models.JobStatus{models.JobStatusAwarded},
		to:    models.JobStatusPaid,
		patch: patch,
	})
	if err == nil || !apperr.Is(err, apperr.KindWrongState) {
		return j, err
	}

	current, loadErr := s.load(ctx, "jobs.mark_paid", id)
	if loadErr != nil {
		return nil, loadErr
	}
	if current.Status == models.JobStatusPaid || current.Status == models.JobStatusCompleted {
		return current, nil
	}
	return nil, err
}

// InitiatePay opens a payment intent for an awarded job. An open order of the
// same payer, or the order already bound to paymentID, is returned instead of
// creating a second one.
func (s *Service) InitiatePay(ctx context.Context, id, callerUID, paymentID string) (*models.Order, error) {
	const op = "jobs.initiate_pay"
	callerUID = strings.TrimSpace(callerUID)
	paymentID = strings.TrimSpace(paymentID)
	if callerUID == "" {
		return nil, apperr.Validation("employerUid is required")
	}

	j, err := s.load(ctx, op, id)
	if err != nil {
		return nil, err
	}
	if j.CreatorUID != callerUID {
		return nil, apperr.Forbidden("only the job creator can pay for it")
	}
	if j.Status != models.JobStatusAwarded {
		return nil, apperr.WrongState("payment is available once a freelancer is awarded (job is %s)", j.Status)
	}

	log := s.logger.WithFields(logrus.Fields{"job_id": j.ID, "payer_uid": callerUID})

	if paymentID != "" {
		existing, err := s.orders.GetOrderByPaymentID(ctx, paymentID)
		switch {
		case err == nil:
			if existing.JobIDValue() != j.ID {
				return nil, apperr.Validation("payment %s belongs to another job", paymentID)
			}
			return existing, nil
		case !errors.Is(err, store.ErrNotFound):
			return nil, apperr.Internal(op, err)
		}
	}

	open, err := s.orders.FindOpenOrder(ctx, j.ID, callerUID)
	switch {
	case err == nil:
		if paymentID == "" {
			return open, nil
		}
		bound, err := s.orders.BindPayment(ctx, open.ID, paymentID)
		if err == nil {
			log.WithFields(logrus.Fields{"order_id": open.ID, "payment_id": paymentID}).Info("Payment bound to open order")
			return bound, nil
		}
		if !errors.Is(err, store.ErrStateConflict) {
			return nil, apperr.Internal(op, err)
		}
		// The open order already carries another payment; start a fresh one.
	case !errors.Is(err, store.ErrNotFound):
		return nil, apperr.Internal(op, err)
	}

	q := s.Quote(j.BudgetPi)
	o := &models.Order{
		PaymentID:     models.StringPtr(paymentID),
		JobID:         models.StringPtr(j.ID),
		PayerUID:      callerUID,
		FreelancerUID: j.FreelancerUID,
		Amount:        q.Budget,
		Fee:           q.Fee,
		Total:         q.Total,
		Memo:          "DoPi job: " + j.Title,
		Status:        models.OrderStatusCreated,
	}
	if err := s.orders.CreateOrder(ctx, o); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, apperr.WrongState("payment %s is already recorded", paymentID)
		}
		return nil, apperr.Internal(op, err)
	}
	log.WithFields(logrus.Fields{"order_id": o.ID, "total": o.Total.String()}).Info("Payment intent created")
	return o, nil
}

type transitionRequest struct {
	op     string
	id     string
	caller string // empty skips the creator check
	from   []models.JobStatus
	to     models.JobStatus
	patch  store.JobPatch
}

func (s *Service) transition(ctx context.Context, req transitionRequest) (*models.Job, error) {
	j, err := s.load(ctx, req.op, req.id)
	if err != nil {
		return nil, err
	}
	if req.caller != "" && j.CreatorUID != req.caller {
		return nil, apperr.Forbidden("only the job creator can do this")
	}
	if !store.ContainsStatus(req.from, j.Status) {
		return nil, wrongState(j.Status, req.to)
	}

	updated, err := s.jobs.TransitionJob(ctx, req.id, req.from, req.to, req.patch)
	switch {
	case err == nil:
	case errors.Is(err, store.ErrStateConflict):
		current, loadErr := s.load(ctx, req.op, req.id)
		if loadErr != nil {
			return nil, loadErr
		}
		return nil, wrongState(current.Status, req.to)
	case errors.Is(err, store.ErrNotFound):
		return nil, apperr.NotFound("job %s not found", req.id)
	default:
		return nil, apperr.Internal(req.op, err)
	}

	s.metrics.RecordJobTransition(string(req.to))
	s.logger.WithFields(logrus.Fields{
		"job_id": updated.ID,
		"from":   j.Status,
		"to":     updated.Status,
	}).Info("Job status changed")
	return updated, nil
}

func (s *Service) load(ctx context.Context, op, id string) (*models.Job, error) {
	if strings.TrimSpace(id) == "" {
		return nil, apperr.Validation("job id is required")
	}
	j, err := s.jobs.GetJob(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFound("job %s not found", id)
		}
		return nil, apperr.Internal(op, err)
	}
	return j, nil
}

func wrongState(current, target models.JobStatus) *apperr.Error {
	switch {
	case target == models.JobStatusCancelled && current == models.JobStatusPaid:
		return apperr.WrongState("job is already paid and cannot be cancelled; refunds are not supported")
	case target == models.JobStatusCompleted && current != models.JobStatusCompleted:
		return apperr.WrongState("job is %s; only paid jobs can be completed", current)
	}
	return apperr.WrongState("job is %s and cannot become %s", current, target)
}
