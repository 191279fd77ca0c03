package mongo

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/FCJuventus/DoPi-demo/internal/store"
	"github.com/FCJuventus/DoPi-demo/models"
)

// newTestStore connects to DOPI_TEST_MONGO_URI and returns a store on a
// throwaway database that is dropped when the test ends.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	uri := os.Getenv("DOPI_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("DOPI_TEST_MONGO_URI not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongod.Connect(options.Client().ApplyURI(uri))
	require.NoError(t, err)
	require.NoError(t, client.Ping(ctx, nil))

	db := client.Database("dopi_test_" + time.Now().UTC().Format("20060102150405.000000"))
	t.Cleanup(func() {
		_ = db.Drop(context.Background())
		_ = client.Disconnect(context.Background())
	})

	s := New(db)
	require.NoError(t, s.Migrate(ctx))
	return s
}

func TestJobTransitions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	j := &models.Job{
		Title:       "Logo",
		Description: "Vector logo",
		BudgetPi:    decimal.RequireFromString("5.25"),
		CreatorUID:  "u1",
		Status:      models.JobStatusOpen,
	}
	require.NoError(t, s.CreateJob(ctx, j))
	require.Len(t, j.ID, 24)

	got, err := s.GetJob(ctx, j.ID)
	require.NoError(t, err)
	assert.True(t, got.BudgetPi.Equal(decimal.RequireFromString("5.25")))
	assert.Nil(t, got.FreelancerUID)

	awarded, err := s.TransitionJob(ctx, j.ID, []models.JobStatus{models.JobStatusOpen}, models.JobStatusAwarded,
		store.JobPatch{FreelancerUID: models.StringPtr("u2")})
	require.NoError(t, err)
	assert.Equal(t, "u2", *awarded.FreelancerUID)

	_, err = s.TransitionJob(ctx, j.ID, []models.JobStatus{models.JobStatusOpen}, models.JobStatusAwarded, store.JobPatch{})
	assert.ErrorIs(t, err, store.ErrStateConflict)

	cancelled, err := s.TransitionJob(ctx, j.ID, []models.JobStatus{models.JobStatusAwarded}, models.JobStatusCancelled,
		store.JobPatch{ClearFreelancer: true})
	require.NoError(t, err)
	assert.Nil(t, cancelled.FreelancerUID)

	_, err = s.GetJob(ctx, "not-an-object-id")
	assert.ErrorIs(t, err, store.ErrNotFound)

	mine, err := s.ListJobs(ctx, store.JobFilter{ParticipantUID: "u1"})
	require.NoError(t, err)
	assert.Len(t, mine, 1)
}

func TestOrderPaymentFlow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	approved, err := s.UpsertApproved(ctx, &models.Order{
		PaymentID: models.StringPtr("p1"),
		JobID:     models.StringPtr("j1"),
		PayerUID:  "u1",
		Amount:    decimal.NewFromInt(10),
		Fee:       decimal.RequireFromString("0.5"),
		Total:     decimal.RequireFromString("10.5"),
	})
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusApproved, approved.Status)

	again, err := s.UpsertApproved(ctx, &models.Order{PaymentID: models.StringPtr("p1"), PayerUID: "intruder"})
	require.NoError(t, err)
	assert.Equal(t, approved.ID, again.ID)
	assert.Equal(t, "u1", again.PayerUID)

	paid, err := s.MarkPaid(ctx, "p1", "tx1", nil)
	require.NoError(t, err)
	assert.True(t, paid.Paid())

	replay, err := s.MarkPaid(ctx, "p1", "tx1", nil)
	require.NoError(t, err)
	assert.Equal(t, paid.ID, replay.ID)

	rebound, err := s.MarkPaid(ctx, "p1", "tx2", nil)
	require.NoError(t, err)
	assert.Equal(t, "tx2", rebound.TxIDValue())

	done, err := s.MarkCompleted(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCompleted, done.Status)

	_, err = s.MarkPaid(ctx, "p1", "tx1", nil)
	assert.ErrorIs(t, err, store.ErrStateConflict)

	_, err = s.CancelOrder(ctx, models.OrderRef{PaymentID: "p1"})
	assert.ErrorIs(t, err, store.ErrStateConflict)

	fallback, err := s.MarkPaid(ctx, "p2", "tx3", &models.Order{PayerUID: "u1", Amount: decimal.NewFromInt(1)})
	require.NoError(t, err)
	assert.Equal(t, "p2", fallback.PaymentIDValue())
}

func TestBindAndCancel(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	o := &models.Order{JobID: models.StringPtr("j1"), PayerUID: "u1", Status: models.OrderStatusCreated}
	require.NoError(t, s.CreateOrder(ctx, o))
	second := &models.Order{JobID: models.StringPtr("j2"), PayerUID: "u1", Status: models.OrderStatusCreated}
	require.NoError(t, s.CreateOrder(ctx, second))

	open, err := s.FindOpenOrder(ctx, "j1", "u1")
	require.NoError(t, err)
	assert.Equal(t, o.ID, open.ID)

	_, err = s.BindPayment(ctx, o.ID, "p1")
	require.NoError(t, err)
	_, err = s.BindPayment(ctx, o.ID, "p9")
	assert.ErrorIs(t, err, store.ErrStateConflict)
	_, err = s.BindPayment(ctx, second.ID, "p1")
	assert.ErrorIs(t, err, store.ErrDuplicate)

	cancelled, err := s.CancelOrder(ctx, models.OrderRef{OrderID: o.ID})
	require.NoError(t, err)
	assert.True(t, cancelled.Cancelled())

	listed, err := s.ListOrders(ctx, store.OrderFilter{Statuses: []models.OrderStatus{models.OrderStatusCancelled}})
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, o.ID, listed[0].ID)

	rest, err := s.ListOrders(ctx, store.OrderFilter{
		Statuses: []models.OrderStatus{models.OrderStatusCancelled},
		After:    store.CursorAfter(listed[0]),
	})
	require.NoError(t, err)
	assert.Empty(t, rest)
}
