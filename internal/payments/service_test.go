package payments

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FCJuventus/DoPi-demo/internal/apperr"
	"github.com/FCJuventus/DoPi-demo/internal/jobs"
	"github.com/FCJuventus/DoPi-demo/internal/piclient"
	"github.com/FCJuventus/DoPi-demo/internal/store"
	"github.com/FCJuventus/DoPi-demo/internal/store/memory"
	"github.com/FCJuventus/DoPi-demo/models"
)

type fakeGateway struct {
	mu            sync.Mutex
	payments      map[string]*models.PiPayment
	approveCalls  map[string]int
	completeCalls map[string]int
	completeErr   error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		payments:      map[string]*models.PiPayment{},
		approveCalls:  map[string]int{},
		completeCalls: map[string]int{},
	}
}

func (g *fakeGateway) put(p *models.PiPayment) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.payments[p.Identifier] = p
}

func (g *fakeGateway) GetPayment(_ context.Context, id string) (*models.PiPayment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.payments[id]
	if !ok {
		return nil, &piclient.APIError{StatusCode: http.StatusNotFound, Body: "not found"}
	}
	cp := *p
	return &cp, nil
}

func (g *fakeGateway) Approve(_ context.Context, id string) (*models.PiPayment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.approveCalls[id]++
	p := g.payments[id]
	p.Status.DeveloperApproved = true
	cp := *p
	return &cp, nil
}

func (g *fakeGateway) Complete(_ context.Context, id, txid string) (*models.PiPayment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.completeCalls[id]++
	if g.completeErr != nil {
		return nil, g.completeErr
	}
	p := g.payments[id]
	p.Status.DeveloperCompleted = true
	p.Transaction = &models.PiTransaction{TxID: txid, Verified: true}
	cp := *p
	return &cp, nil
}

func (g *fakeGateway) calls(id string) (approve, complete int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.approveCalls[id], g.completeCalls[id]
}

type fakeChain map[string]*models.ChainTransaction

func (c fakeChain) FetchTransaction(_ context.Context, link string) (*models.ChainTransaction, error) {
	tx, ok := c[link]
	if !ok {
		return nil, errors.New("horizon unavailable")
	}
	return tx, nil
}

type fixture struct {
	store   *memory.Store
	jobs    *jobs.Service
	gateway *fakeGateway
	chain   fakeChain
	svc     *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := memory.New()
	fees := models.DefaultFeePolicy()
	js := jobs.NewService(st, st, fees, nil, nil)
	f := &fixture{store: st, jobs: js, gateway: newFakeGateway(), chain: fakeChain{}}
	f.svc = NewService(Deps{
		Orders:  st,
		Jobs:    st,
		Marker:  js,
		Gateway: f.gateway,
		Chain:   f.chain,
		Fees:    fees,
	})
	return f
}

// awardedJob creates a job with budget 5 by U1 awarded to U2.
func (f *fixture) awardedJob(t *testing.T) *models.Job {
	t.Helper()
	ctx := context.Background()
	j, err := f.jobs.Create(ctx, jobs.CreateInput{
		Title:       "Logo",
		Description: "Vector logo",
		BudgetPi:    decimal.NewFromInt(5),
		CreatorUID:  "U1",
	})
	require.NoError(t, err)
	j, err = f.jobs.Award(ctx, j.ID, "U1", "U2")
	require.NoError(t, err)
	return j
}

func (f *fixture) gatewayPayment(id, jobID, amount string) {
	a := decimal.RequireFromString(amount)
	f.gateway.put(&models.PiPayment{
		Identifier: id,
		UserUID:    "U1",
		Amount:     a,
		Memo:       "DoPi job",
		Metadata:   models.PaymentMetadata{JobID: jobID, Amount: &a},
	})
}

func (f *fixture) jobStatus(t *testing.T, id string) models.JobStatus {
	t.Helper()
	j, err := f.jobs.Get(context.Background(), id)
	require.NoError(t, err)
	return j.Status
}

func TestEndToEndPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	j := f.awardedJob(t)

	intent, err := f.jobs.InitiatePay(ctx, j.ID, "U1", "")
	require.NoError(t, err)
	assert.True(t, intent.Total.Equal(decimal.RequireFromString("5.25")))

	f.gatewayPayment("pay-1", j.ID, "5.25")
	approved, err := f.svc.Approve(ctx, ApproveInput{UserUID: "U1", PaymentID: "pay-1", OrderID: intent.ID})
	require.NoError(t, err)
	assert.Equal(t, intent.ID, approved.ID)
	assert.Equal(t, models.OrderStatusApproved, approved.Status)
	approveCalls, _ := f.gateway.calls("pay-1")
	assert.Equal(t, 1, approveCalls)

	paid, err := f.svc.Complete(ctx, "pay-1", "abc")
	require.NoError(t, err)
	assert.True(t, paid.Paid())
	assert.Equal(t, "abc", paid.TxIDValue())
	assert.Equal(t, models.JobStatusPaid, f.jobStatus(t, j.ID))

	done, err := f.jobs.Complete(ctx, j.ID, "U1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, done.Status)
}

func TestCompleteTwiceIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	j := f.awardedJob(t)
	f.gatewayPayment("pay-1", j.ID, "5.25")
	_, err := f.svc.Approve(ctx, ApproveInput{UserUID: "U1", PaymentID: "pay-1"})
	require.NoError(t, err)

	first, err := f.svc.Complete(ctx, "pay-1", "abc")
	require.NoError(t, err)
	jobAfterFirst, err := f.jobs.Get(ctx, j.ID)
	require.NoError(t, err)

	second, err := f.svc.Complete(ctx, "pay-1", "abc")
	require.NoError(t, err)
	jobAfterSecond, err := f.jobs.Get(ctx, j.ID)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, jobAfterFirst, jobAfterSecond)
	_, completeCalls := f.gateway.calls("pay-1")
	assert.Equal(t, 1, completeCalls)

	_, err = f.svc.Complete(ctx, "pay-1", "other")
	assert.True(t, apperr.Is(err, apperr.KindWrongState))
}

func TestApproveAmountMismatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	j := f.awardedJob(t)

	// The budget alone, without the fee.
	f.gatewayPayment("pay-1", j.ID, "5")
	_, err := f.svc.Approve(ctx, ApproveInput{UserUID: "U1", PaymentID: "pay-1"})
	require.True(t, apperr.Is(err, apperr.KindValidation))
	assert.Contains(t, err.Error(), "amount mismatch")

	_, err = f.store.GetOrderByPaymentID(ctx, "pay-1")
	assert.ErrorIs(t, err, store.ErrNotFound)
	approveCalls, _ := f.gateway.calls("pay-1")
	assert.Zero(t, approveCalls)
}

func TestApproveChecks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	j := f.awardedJob(t)

	_, err := f.svc.Approve(ctx, ApproveInput{UserUID: "U1"})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = f.svc.Approve(ctx, ApproveInput{UserUID: "U1", PaymentID: "unknown"})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	f.gateway.put(&models.PiPayment{Identifier: "no-meta", Amount: decimal.NewFromInt(1)})
	_, err = f.svc.Approve(ctx, ApproveInput{UserUID: "U1", PaymentID: "no-meta"})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	f.gatewayPayment("pay-1", j.ID, "5.25")
	_, err = f.svc.Approve(ctx, ApproveInput{UserUID: "U2", PaymentID: "pay-1"})
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	open, err := f.jobs.Create(ctx, jobs.CreateInput{Title: "t", Description: "d", BudgetPi: decimal.NewFromInt(5), CreatorUID: "U1"})
	require.NoError(t, err)
	f.gatewayPayment("pay-2", open.ID, "5.25")
	_, err = f.svc.Approve(ctx, ApproveInput{UserUID: "U1", PaymentID: "pay-2"})
	assert.True(t, apperr.Is(err, apperr.KindWrongState))
}

func TestApproveSkipsGatewayWhenAlreadyApproved(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	j := f.awardedJob(t)
	f.gatewayPayment("pay-1", j.ID, "5.25")

	_, err := f.svc.Approve(ctx, ApproveInput{UserUID: "U1", PaymentID: "pay-1"})
	require.NoError(t, err)
	again, err := f.svc.Approve(ctx, ApproveInput{UserUID: "U1", PaymentID: "pay-1"})
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusApproved, again.Status)

	approveCalls, _ := f.gateway.calls("pay-1")
	assert.Equal(t, 1, approveCalls)
}

func TestIncompleteWithoutRecordIsNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	j := f.awardedJob(t)
	f.gatewayPayment("pay-1", j.ID, "5.25")

	_, err := f.svc.Incomplete(ctx, IncompleteInput{PaymentID: "pay-1", TxID: "abc", Link: "https://horizon/tx/abc"})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	orders, err := f.store.ListOrders(ctx, store.OrderFilter{})
	require.NoError(t, err)
	assert.Empty(t, orders)
	assert.Equal(t, models.JobStatusAwarded, f.jobStatus(t, j.ID))
}

func TestIncompleteMemoCheck(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	j := f.awardedJob(t)
	f.gatewayPayment("pay-1", j.ID, "5.25")
	_, err := f.svc.Approve(ctx, ApproveInput{UserUID: "U1", PaymentID: "pay-1"})
	require.NoError(t, err)

	f.chain["https://horizon/tx/bad"] = &models.ChainTransaction{ID: "bad", Memo: "pay-other"}
	_, err = f.svc.Incomplete(ctx, IncompleteInput{PaymentID: "pay-1", TxID: "bad", Link: "https://horizon/tx/bad"})
	require.True(t, apperr.Is(err, apperr.KindValidation))
	o, err := f.store.GetOrderByPaymentID(ctx, "pay-1")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusApproved, o.Status)

	_, err = f.svc.Incomplete(ctx, IncompleteInput{PaymentID: "pay-1", TxID: "abc", Link: "https://horizon/tx/missing"})
	assert.True(t, apperr.Is(err, apperr.KindUpstream))

	f.chain["https://horizon/tx/abc"] = &models.ChainTransaction{ID: "abc", Memo: "pay-1"}
	settled, err := f.svc.Incomplete(ctx, IncompleteInput{PaymentID: "pay-1", TxID: "abc", Link: "https://horizon/tx/abc"})
	require.NoError(t, err)
	assert.True(t, settled.Paid())
	assert.Equal(t, models.JobStatusPaid, f.jobStatus(t, j.ID))
}

func TestCompleteBeforeApproveSynthesizesOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	j := f.awardedJob(t)
	f.gatewayPayment("pay-1", j.ID, "5.25")

	o, err := f.svc.Complete(ctx, "pay-1", "abc")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCompleted, o.Status)
	assert.Equal(t, j.ID, o.JobIDValue())
	assert.True(t, o.Total.Equal(decimal.RequireFromString("5.25")))
	assert.Equal(t, models.JobStatusPaid, f.jobStatus(t, j.ID))

	// A late approve neither duplicates nor regresses the record.
	late, err := f.svc.Approve(ctx, ApproveInput{UserUID: "U1", PaymentID: "pay-1"})
	require.NoError(t, err)
	assert.Equal(t, o.ID, late.ID)
	assert.Equal(t, models.OrderStatusCompleted, late.Status)
}

func TestCompleteToleratesGatewayErrorWhenAlreadyCompleted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	j := f.awardedJob(t)
	f.gatewayPayment("pay-1", j.ID, "5.25")
	_, err := f.svc.Approve(ctx, ApproveInput{UserUID: "U1", PaymentID: "pay-1"})
	require.NoError(t, err)

	f.gateway.completeErr = &piclient.APIError{StatusCode: http.StatusBadRequest, Body: "already_completed"}
	f.gateway.payments["pay-1"].Status.DeveloperCompleted = true

	o, err := f.svc.Complete(ctx, "pay-1", "abc")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCompleted, o.Status)
}

func TestGatewayFailureIsRepairedBySweep(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	j := f.awardedJob(t)
	f.gatewayPayment("pay-1", j.ID, "5.25")
	_, err := f.svc.Approve(ctx, ApproveInput{UserUID: "U1", PaymentID: "pay-1"})
	require.NoError(t, err)

	f.gateway.completeErr = errors.New("connection reset")
	_, err = f.svc.Complete(ctx, "pay-1", "abc")
	require.True(t, apperr.Is(err, apperr.KindUpstream))
	assert.True(t, apperr.Retryable(err))

	o, err := f.store.GetOrderByPaymentID(ctx, "pay-1")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPaid, o.Status)
	assert.Equal(t, models.JobStatusAwarded, f.jobStatus(t, j.ID))

	f.gateway.completeErr = nil
	report, err := f.svc.Sweep(ctx, SweepOptions{BatchSize: 10, Workers: 2})
	require.NoError(t, err)
	assert.Equal(t, &SweepReport{Scanned: 1, GatewayCompleted: 1, JobsMarkedPaid: 1}, report)
	assert.Equal(t, models.JobStatusPaid, f.jobStatus(t, j.ID))

	again, err := f.svc.Sweep(ctx, SweepOptions{BatchSize: 10, Workers: 2})
	require.NoError(t, err)
	assert.Equal(t, &SweepReport{Scanned: 1}, again)
}

// completedOrders records n completed orders with no job attached.
func (f *fixture) completedOrders(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, f.store.CreateOrder(context.Background(), &models.Order{
			PaymentID: models.StringPtr(fmt.Sprintf("old-%d", i)),
			TxID:      models.StringPtr(fmt.Sprintf("tx-%d", i)),
			PayerUID:  "U9",
			Amount:    decimal.NewFromInt(1),
			Total:     decimal.NewFromInt(1),
			Status:    models.OrderStatusCompleted,
		}))
	}
}

func TestSweepReachesPaidOrderBehindFullPageOfCompleted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.completedOrders(t, 3)

	j := f.awardedJob(t)
	f.gatewayPayment("pay-1", j.ID, "5.25")
	_, err := f.svc.Approve(ctx, ApproveInput{UserUID: "U1", PaymentID: "pay-1"})
	require.NoError(t, err)
	f.gateway.completeErr = errors.New("connection reset")
	_, err = f.svc.Complete(ctx, "pay-1", "abc")
	require.True(t, apperr.Is(err, apperr.KindUpstream))
	f.gateway.completeErr = nil

	report, err := f.svc.Sweep(ctx, SweepOptions{BatchSize: 3, Workers: 2})
	require.NoError(t, err)
	assert.Equal(t, &SweepReport{Scanned: 4, GatewayCompleted: 1, JobsMarkedPaid: 1}, report)
	assert.Equal(t, models.JobStatusPaid, f.jobStatus(t, j.ID))
	o, err := f.store.GetOrderByPaymentID(ctx, "pay-1")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCompleted, o.Status)
}

func TestSweepPagesThroughCompletedOrders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.completedOrders(t, 3)

	// Settled locally while the job update was lost.
	j := f.awardedJob(t)
	require.NoError(t, f.store.CreateOrder(ctx, &models.Order{
		PaymentID: models.StringPtr("pay-1"),
		TxID:      models.StringPtr("abc"),
		JobID:     models.StringPtr(j.ID),
		PayerUID:  "U1",
		Amount:    decimal.NewFromInt(5),
		Fee:       decimal.RequireFromString("0.25"),
		Total:     decimal.RequireFromString("5.25"),
		Status:    models.OrderStatusCompleted,
	}))

	first, err := f.svc.Sweep(ctx, SweepOptions{BatchSize: 3, Workers: 2})
	require.NoError(t, err)
	second, err := f.svc.Sweep(ctx, SweepOptions{BatchSize: 3, Workers: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, first.Scanned)
	assert.Equal(t, 1, second.Scanned)
	assert.Equal(t, 1, first.JobsMarkedPaid+second.JobsMarkedPaid)
	assert.Equal(t, models.JobStatusPaid, f.jobStatus(t, j.ID))

	wrapped, err := f.svc.Sweep(ctx, SweepOptions{BatchSize: 3, Workers: 2})
	require.NoError(t, err)
	assert.Equal(t, &SweepReport{Scanned: 3}, wrapped)
}

func TestFullScanSweepChecksEveryCompletedOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.completedOrders(t, 5)
	j := f.awardedJob(t)
	require.NoError(t, f.store.CreateOrder(ctx, &models.Order{
		PaymentID: models.StringPtr("pay-1"),
		TxID:      models.StringPtr("abc"),
		JobID:     models.StringPtr(j.ID),
		PayerUID:  "U1",
		Status:    models.OrderStatusCompleted,
	}))

	report, err := f.svc.Sweep(ctx, SweepOptions{BatchSize: 2, Workers: 2, FullScan: true})
	require.NoError(t, err)
	assert.Equal(t, &SweepReport{Scanned: 6, JobsMarkedPaid: 1}, report)
	assert.Equal(t, models.JobStatusPaid, f.jobStatus(t, j.ID))
}

func TestCompleteWithCorrectedTxidAfterGatewayRejection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	j := f.awardedJob(t)
	f.gatewayPayment("pay-1", j.ID, "5.25")
	_, err := f.svc.Approve(ctx, ApproveInput{UserUID: "U1", PaymentID: "pay-1"})
	require.NoError(t, err)

	f.gateway.completeErr = &piclient.APIError{StatusCode: http.StatusBadRequest, Body: "invalid txid"}
	_, err = f.svc.Complete(ctx, "pay-1", "typo")
	require.True(t, apperr.Is(err, apperr.KindUpstream))
	f.gateway.completeErr = nil

	o, err := f.svc.Complete(ctx, "pay-1", "real")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCompleted, o.Status)
	assert.Equal(t, "real", o.TxIDValue())
	got, err := f.jobs.Get(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPaid, got.Status)
	assert.Equal(t, "real", *got.TxID)

	// Once acknowledged the hash is final.
	_, err = f.svc.Complete(ctx, "pay-1", "typo")
	assert.True(t, apperr.Is(err, apperr.KindWrongState))
}

func TestSecondPaymentForPaidJobIsRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	j := f.awardedJob(t)
	f.gatewayPayment("pay-1", j.ID, "5.25")
	_, err := f.svc.Approve(ctx, ApproveInput{UserUID: "U1", PaymentID: "pay-1"})
	require.NoError(t, err)
	_, err = f.svc.Complete(ctx, "pay-1", "abc")
	require.NoError(t, err)

	f.gatewayPayment("pay-2", j.ID, "5.25")
	_, err = f.svc.Approve(ctx, ApproveInput{UserUID: "U1", PaymentID: "pay-2"})
	require.True(t, apperr.Is(err, apperr.KindWrongState))
	approveCalls, _ := f.gateway.calls("pay-2")
	assert.Zero(t, approveCalls)
	_, err = f.store.GetOrderByPaymentID(ctx, "pay-2")
	assert.ErrorIs(t, err, store.ErrNotFound)

	// The settling payment may still be replayed.
	replay, err := f.svc.Approve(ctx, ApproveInput{UserUID: "U1", PaymentID: "pay-1"})
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCompleted, replay.Status)

	// A completion that arrives anyway is recorded without touching the job.
	stray, err := f.svc.Complete(ctx, "pay-2", "def")
	require.NoError(t, err)
	assert.Empty(t, stray.JobIDValue())
	got, err := f.jobs.Get(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, "abc", *got.TxID)
}

func TestCompleteWithoutOrderChecksAmount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	j := f.awardedJob(t)
	f.gatewayPayment("pay-1", j.ID, "0.01")

	o, err := f.svc.Complete(ctx, "pay-1", "abc")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCompleted, o.Status)
	assert.Empty(t, o.JobIDValue())
	assert.True(t, o.Amount.Add(o.Fee).Equal(o.Total))
	assert.True(t, o.Total.Equal(decimal.RequireFromString("0.01")))
	assert.Equal(t, models.JobStatusAwarded, f.jobStatus(t, j.ID))
}

func TestCompleteWithoutOrderUsesJobCharge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	j := f.awardedJob(t)
	f.gatewayPayment("pay-1", j.ID, "5.25")

	o, err := f.svc.Complete(ctx, "pay-1", "abc")
	require.NoError(t, err)
	assert.True(t, o.Amount.Equal(decimal.NewFromInt(5)))
	assert.True(t, o.Fee.Equal(decimal.RequireFromString("0.25")))
	assert.True(t, o.Total.Equal(decimal.RequireFromString("5.25")))
}

func TestCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	j := f.awardedJob(t)

	_, err := f.svc.Cancel(ctx, models.OrderRef{})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	o, err := f.svc.Cancel(ctx, models.OrderRef{PaymentID: "unknown"})
	require.NoError(t, err)
	assert.Nil(t, o)

	_, err = f.svc.Cancel(ctx, models.OrderRef{OrderID: "unknown"})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	f.gatewayPayment("pay-1", j.ID, "5.25")
	_, err = f.svc.Approve(ctx, ApproveInput{UserUID: "U1", PaymentID: "pay-1"})
	require.NoError(t, err)
	cancelled, err := f.svc.Cancel(ctx, models.OrderRef{PaymentID: "pay-1"})
	require.NoError(t, err)
	assert.True(t, cancelled.Cancelled())
	assert.Equal(t, models.JobStatusAwarded, f.jobStatus(t, j.ID))

	f.gatewayPayment("pay-2", j.ID, "5.25")
	_, err = f.svc.Approve(ctx, ApproveInput{UserUID: "U1", PaymentID: "pay-2"})
	require.NoError(t, err)
	_, err = f.svc.Complete(ctx, "pay-2", "abc")
	require.NoError(t, err)
	_, err = f.svc.Cancel(ctx, models.OrderRef{PaymentID: "pay-2"})
	assert.True(t, apperr.Is(err, apperr.KindWrongState))
	assert.Equal(t, models.JobStatusPaid, f.jobStatus(t, j.ID))
}

func TestCreate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	j := f.awardedJob(t)

	_, err := f.svc.Create(ctx, CreateInput{Amount: decimal.NewFromInt(1)})
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized))

	_, err = f.svc.Create(ctx, CreateInput{UserUID: "U1"})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = f.svc.Create(ctx, CreateInput{UserUID: "U1", Amount: decimal.NewFromInt(5), ProductID: j.ID})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	o, err := f.svc.Create(ctx, CreateInput{UserUID: "U1", Amount: decimal.RequireFromString("5.25"), ProductID: j.ID, Description: "Logo"})
	require.NoError(t, err)
	assert.Equal(t, j.ID, o.JobIDValue())
	assert.True(t, o.Fee.Equal(decimal.RequireFromString("0.25")))
	assert.Equal(t, "Logo", o.Memo)

	plain, err := f.svc.Create(ctx, CreateInput{UserUID: "U1", Amount: decimal.NewFromInt(3), ProductID: "sticker"})
	require.NoError(t, err)
	assert.Equal(t, "sticker", plain.JobIDValue())
	assert.True(t, plain.Total.Equal(decimal.NewFromInt(3)))
}
