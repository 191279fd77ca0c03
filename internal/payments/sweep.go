package payments

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/FCJuventus/DoPi-demo/internal/apperr"
	"github.com/FCJuventus/DoPi-demo/internal/store"
	"github.com/FCJuventus/DoPi-demo/internal/worker"
	"github.com/FCJuventus/DoPi-demo/models"
)

// Repair kinds reported by the sweep.
const (
	RepairGatewayCompleted = "gateway_completed"
	RepairJobMarkedPaid    = "job_marked_paid"
)

// SweepOptions bounds one reconciliation pass.
type SweepOptions struct {
	// BatchSize is the page size for listing orders.
	BatchSize int
	Workers   int
	// FullScan walks every completed order instead of one page of them.
	FullScan bool
}

// SweepReport summarizes one reconciliation pass.
type SweepReport struct {
	Scanned          int `json:"scanned"`
	GatewayCompleted int `json:"gatewayCompleted"`
	JobsMarkedPaid   int `json:"jobsMarkedPaid"`
	Failed           int `json:"failed"`
}

type sweepCounters struct {
	gatewayCompleted atomic.Int64
	jobsMarkedPaid   atomic.Int64
	failed           atomic.Int64
}

// Sweep re-drives settled orders whose follow-up steps may have been lost:
// paid orders are acknowledged at the gateway again and linked jobs still
// awarded are marked paid.
//
// Every paid order is visited on each pass. Completed orders only need their
// job checked, so a pass reads one page of them and the next pass resumes
// where it stopped, wrapping around at the end.
func (s *Service) Sweep(ctx context.Context, opts SweepOptions) (*SweepReport, error) {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	opts.BatchSize = store.ClampLimit(opts.BatchSize)

	orders, _, err := s.listAll(ctx, models.OrderStatusPaid, nil, opts.BatchSize, true)
	if err != nil {
		return nil, apperr.Internal("payments.sweep", err)
	}
	completed, err := s.nextCompleted(ctx, opts)
	if err != nil {
		return nil, apperr.Internal("payments.sweep", err)
	}
	seen := make(map[string]bool, len(orders))
	for _, o := range orders {
		seen[o.ID] = true
	}
	for _, o := range completed {
		if !seen[o.ID] {
			orders = append(orders, o)
		}
	}

	var counters sweepCounters
	d := worker.NewDispatcher(opts.Workers, len(orders),
		worker.WithLogger(s.logger),
		worker.WithResultFunc(func(r worker.Result) {
			if r.Err != nil {
				counters.failed.Add(1)
			}
		}))
	d.Run(ctx)
	for _, o := range orders {
		if err := d.Submit(&repairTask{svc: s, order: o, counters: &counters}); err != nil {
			counters.failed.Add(1)
		}
	}
	d.Wait()
	d.Stop()

	report := &SweepReport{
		Scanned:          len(orders),
		GatewayCompleted: int(counters.gatewayCompleted.Load()),
		JobsMarkedPaid:   int(counters.jobsMarkedPaid.Load()),
		Failed:           int(counters.failed.Load()),
	}
	s.logger.WithFields(logrus.Fields{
		"scanned":           report.Scanned,
		"gateway_completed": report.GatewayCompleted,
		"jobs_marked_paid":  report.JobsMarkedPaid,
		"failed":            report.Failed,
	}).Info("Reconciliation sweep finished")
	return report, nil
}

// nextCompleted returns the completed orders this pass should check and
// advances the rolling cursor.
func (s *Service) nextCompleted(ctx context.Context, opts SweepOptions) ([]*models.Order, error) {
	if opts.FullScan {
		orders, _, err := s.listAll(ctx, models.OrderStatusCompleted, nil, opts.BatchSize, true)
		return orders, err
	}

	s.sweepMu.Lock()
	defer s.sweepMu.Unlock()
	orders, next, err := s.listAll(ctx, models.OrderStatusCompleted, s.completedCursor, opts.BatchSize, false)
	if err != nil {
		return nil, err
	}
	s.completedCursor = next
	return orders, nil
}

// listAll reads orders in status starting past after. With all unset it stops
// after one page. The returned cursor is nil once the listing is exhausted.
func (s *Service) listAll(ctx context.Context, status models.OrderStatus, after *store.OrderCursor, pageSize int, all bool) ([]*models.Order, *store.OrderCursor, error) {
	var out []*models.Order
	for {
		page, err := s.orders.ListOrders(ctx, store.OrderFilter{
			Statuses: []models.OrderStatus{status},
			After:    after,
			Limit:    pageSize,
		})
		if err != nil {
			return nil, nil, err
		}
		out = append(out, page...)
		if len(page) < pageSize {
			return out, nil, nil
		}
		after = store.CursorAfter(page[len(page)-1])
		if !all {
			return out, after, nil
		}
	}
}

type repairTask struct {
	svc      *Service
	order    *models.Order
	counters *sweepCounters
}

func (t *repairTask) ID() string { return t.order.ID }

func (t *repairTask) Execute(ctx context.Context) error {
	s, o := t.svc, t.order
	paymentID, txid := o.PaymentIDValue(), o.TxIDValue()

	if o.Status == models.OrderStatusPaid && paymentID != "" {
		if err := s.acknowledge(ctx, paymentID, txid); err != nil {
			return err
		}
		if _, err := s.orders.MarkCompleted(ctx, paymentID); err != nil {
			return err
		}
		t.counters.gatewayCompleted.Add(1)
		s.metrics.RecordRepair(RepairGatewayCompleted)
	}

	jobID := o.JobIDValue()
	if jobID == "" || s.marker == nil {
		return nil
	}
	j, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}
	if j.Status != models.JobStatusAwarded {
		return nil
	}
	if _, err := s.marker.MarkPaid(ctx, jobID, txid); err != nil {
		return err
	}
	t.counters.jobsMarkedPaid.Add(1)
	s.metrics.RecordRepair(RepairJobMarkedPaid)
	s.logger.WithFields(logrus.Fields{"job_id": jobID, "order_id": o.ID}).Info("Job marked paid by sweep")
	return nil
}
