package postgrest

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	postgrest "github.com/supabase-community/postgrest-go"

	"github.com/FCJuventus/DoPi-demo/internal/store"
	"github.com/FCJuventus/DoPi-demo/models"
)

type recordedRequest struct {
	Method string
	Table  string
	Query  map[string]string
	Body   map[string]interface{}
}

// fakeRest answers PostgREST calls from a scripted responder and records them.
type fakeRest struct {
	mu       sync.Mutex
	requests []recordedRequest
	respond  func(req recordedRequest) (int, string)
}

func newFakeRest(t *testing.T, respond func(req recordedRequest) (int, string)) (*Store, *fakeRest) {
	t.Helper()
	f := &fakeRest{respond: respond}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := recordedRequest{
			Method: r.Method,
			Table:  r.URL.Path[1:],
			Query:  map[string]string{},
		}
		for k, v := range r.URL.Query() {
			req.Query[k] = v[0]
		}
		raw, _ := io.ReadAll(r.Body)
		if len(raw) > 0 {
			_ = json.Unmarshal(raw, &req.Body)
		}
		f.mu.Lock()
		f.requests = append(f.requests, req)
		f.mu.Unlock()

		status, body := f.respond(req)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)

	return New(postgrest.NewClient(srv.URL, "", nil)), f
}

func (f *fakeRest) last() recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func (f *fakeRest) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func jobJSON(id, status string) string {
	b, _ := json.Marshal([]jobRow{{
		ID:          id,
		Title:       "Logo",
		Description: "Vector logo",
		BudgetPi:    decimal.NewFromInt(5),
		CreatorUID:  "u1",
		Status:      status,
	}})
	return string(b)
}

func TestCreateJobPostsRow(t *testing.T) {
	s, f := newFakeRest(t, func(recordedRequest) (int, string) { return http.StatusCreated, "" })

	j := &models.Job{Title: "Logo", Description: "Vector logo", BudgetPi: decimal.NewFromInt(5), CreatorUID: "u1", Status: models.JobStatusOpen}
	require.NoError(t, s.CreateJob(context.Background(), j))

	_, err := uuid.Parse(j.ID)
	require.NoError(t, err)
	req := f.last()
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "jobs", req.Table)
	assert.Equal(t, "open", req.Body["status"])
	assert.Equal(t, "u1", req.Body["creator_uid"])
}

func TestDuplicateKeyMapsToErrDuplicate(t *testing.T) {
	s, _ := newFakeRest(t, func(recordedRequest) (int, string) {
		return http.StatusConflict, `{"code":"23505","message":"duplicate key value violates unique constraint"}`
	})
	err := s.CreateOrder(context.Background(), &models.Order{PaymentID: models.StringPtr("p1")})
	assert.ErrorIs(t, err, store.ErrDuplicate)
}

func TestGetJob(t *testing.T) {
	id := uuid.NewString()
	s, f := newFakeRest(t, func(req recordedRequest) (int, string) {
		if req.Query["id"] == "eq."+id {
			return http.StatusOK, jobJSON(id, "open")
		}
		return http.StatusOK, "[]"
	})
	ctx := context.Background()

	j, err := s.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusOpen, j.Status)
	assert.True(t, j.BudgetPi.Equal(decimal.NewFromInt(5)))

	_, err = s.GetJob(ctx, uuid.NewString())
	assert.ErrorIs(t, err, store.ErrNotFound)

	before := f.count()
	_, err = s.GetJob(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Equal(t, before, f.count())
}

func TestTransitionJobGuardedByStatus(t *testing.T) {
	id := uuid.NewString()
	s, f := newFakeRest(t, func(req recordedRequest) (int, string) {
		switch {
		case req.Method == http.MethodPatch && req.Query["status"] == "in.(open)":
			return http.StatusOK, jobJSON(id, "awarded")
		case req.Method == http.MethodPatch:
			return http.StatusOK, "[]"
		default:
			return http.StatusOK, jobJSON(id, "awarded")
		}
	})
	ctx := context.Background()

	j, err := s.TransitionJob(ctx, id, []models.JobStatus{models.JobStatusOpen}, models.JobStatusAwarded,
		store.JobPatch{FreelancerUID: models.StringPtr("u2")})
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusAwarded, j.Status)
	patch := f.last()
	assert.Equal(t, "eq."+id, patch.Query["id"])
	assert.Equal(t, "awarded", patch.Body["status"])
	assert.Equal(t, "u2", patch.Body["freelancer_uid"])

	_, err = s.TransitionJob(ctx, id, []models.JobStatus{models.JobStatusPaid}, models.JobStatusCompleted, store.JobPatch{})
	assert.ErrorIs(t, err, store.ErrStateConflict)
}

func TestListJobsFilters(t *testing.T) {
	s, f := newFakeRest(t, func(recordedRequest) (int, string) { return http.StatusOK, "[]" })

	_, err := s.ListJobs(context.Background(), store.JobFilter{Status: models.JobStatusOpen, ParticipantUID: "u1", Limit: 500})
	require.NoError(t, err)
	req := f.last()
	assert.Equal(t, "eq.open", req.Query["status"])
	assert.Equal(t, "(creator_uid.eq.u1,freelancer_uid.eq.u1)", req.Query["or"])
	assert.Contains(t, req.Query["order"], "created_at.desc")
}

func TestMarkPaidReplayAndConflict(t *testing.T) {
	order := orderRow{ID: uuid.NewString(), PaymentID: models.StringPtr("p1"), TxID: models.StringPtr("tx1"), Status: "completed"}
	body, _ := json.Marshal([]orderRow{order})

	s, _ := newFakeRest(t, func(req recordedRequest) (int, string) {
		if req.Method == http.MethodPatch {
			return http.StatusOK, "[]"
		}
		if req.Query["payment_id"] == "eq.p1" {
			return http.StatusOK, string(body)
		}
		return http.StatusOK, "[]"
	})
	ctx := context.Background()

	replay, err := s.MarkPaid(ctx, "p1", "tx1", nil)
	require.NoError(t, err)
	assert.Equal(t, order.ID, replay.ID)

	_, err = s.MarkPaid(ctx, "p1", "tx2", nil)
	assert.ErrorIs(t, err, store.ErrStateConflict)

	_, err = s.MarkPaid(ctx, "p2", "tx3", nil)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestMarkPaidRebindsUnacknowledgedHash(t *testing.T) {
	order := orderRow{ID: uuid.NewString(), PaymentID: models.StringPtr("p1"), TxID: models.StringPtr("tx2"), Status: "paid"}
	body, _ := json.Marshal([]orderRow{order})

	s, f := newFakeRest(t, func(req recordedRequest) (int, string) {
		if req.Method == http.MethodPatch && req.Query["status"] == "eq.paid" {
			return http.StatusOK, string(body)
		}
		return http.StatusOK, "[]"
	})

	rebound, err := s.MarkPaid(context.Background(), "p1", "tx2", nil)
	require.NoError(t, err)
	assert.Equal(t, "tx2", rebound.TxIDValue())
	req := f.last()
	assert.Equal(t, http.MethodPatch, req.Method)
	assert.Equal(t, "eq.p1", req.Query["payment_id"])
	assert.Equal(t, "neq.tx2", req.Query["txid"])
}

func TestListOrdersCursor(t *testing.T) {
	s, f := newFakeRest(t, func(recordedRequest) (int, string) { return http.StatusOK, "[]" })
	id := uuid.NewString()
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	_, err := s.ListOrders(context.Background(), store.OrderFilter{
		Statuses: []models.OrderStatus{models.OrderStatusCompleted},
		After:    &store.OrderCursor{UpdatedAt: at, ID: id},
		Limit:    3,
	})
	require.NoError(t, err)
	req := f.last()
	assert.Equal(t, "in.(completed)", req.Query["status"])
	assert.Equal(t, `(updated_at.gt."2024-01-02T03:04:05Z",and(updated_at.eq."2024-01-02T03:04:05Z",id.gt.`+id+`))`, req.Query["or"])
	assert.Equal(t, "updated_at.asc.nullslast,id.asc.nullslast", req.Query["order"])
	assert.Equal(t, "3", req.Query["limit"])

	_, err = s.ListOrders(context.Background(), store.OrderFilter{After: &store.OrderCursor{ID: "nope"}})
	assert.Error(t, err)
}

func TestBindPaymentOnlyWhenUnbound(t *testing.T) {
	id := uuid.NewString()
	s, f := newFakeRest(t, func(req recordedRequest) (int, string) {
		b, _ := json.Marshal([]orderRow{{ID: id, PaymentID: models.StringPtr("p1"), Status: "created"}})
		return http.StatusOK, string(b)
	})

	o, err := s.BindPayment(context.Background(), id, "p1")
	require.NoError(t, err)
	assert.Equal(t, "p1", o.PaymentIDValue())
	assert.Equal(t, "is.null", f.last().Query["payment_id"])
}
