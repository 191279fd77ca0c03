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

// CreateJob inserts j with a fresh uuid when it has none.
func (s *Store) CreateJob(_ context.Context, j *models.Job) error {
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	if j.CreatedAt.IsZero() {
		j.CreatedAt = time.Now().UTC()
	}
	j.UpdatedAt = j.CreatedAt

	_, _, err := s.db.From(tableJobs).
		Insert(toJobRow(j), false, "", "minimal", "").
		Execute()
	return mapError("create job", err)
}

// GetJob retrieves a job by id.
func (s *Store) GetJob(_ context.Context, id string) (*models.Job, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, store.ErrNotFound
	}
	body, _, err := s.db.From(tableJobs).
		Select("*", "", false).
		Eq("id", id).
		Execute()
	if err != nil {
		return nil, mapError("get job", err)
	}
	rows, err := decodeRows[jobRow](body)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, store.ErrNotFound
	}
	return rows[0].model(), nil
}

// ListJobs returns jobs matching f, newest first.
func (s *Store) ListJobs(_ context.Context, f store.JobFilter) ([]*models.Job, error) {
	q := s.db.From(tableJobs).Select("*", "", false)
	if f.Status != "" {
		q = q.Eq("status", string(f.Status))
	}
	if f.ParticipantUID != "" {
		q = q.Or(fmt.Sprintf("creator_uid.eq.%s,freelancer_uid.eq.%s", f.ParticipantUID, f.ParticipantUID), "")
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}
	limit := store.ClampLimit(f.Limit)

	body, _, err := q.
		Order("created_at", &postgrest.OrderOpts{Ascending: false}).
		Range(offset, offset+limit-1, "").
		Execute()
	if err != nil {
		return nil, mapError("list jobs", err)
	}
	rows, err := decodeRows[jobRow](body)
	if err != nil {
		return nil, err
	}
	jobs := make([]*models.Job, 0, len(rows))
	for _, r := range rows {
		jobs = append(jobs, r.model())
	}
	return jobs, nil
}

// TransitionJob issues one PATCH filtered on id and the allowed statuses.
func (s *Store) TransitionJob(ctx context.Context, id string, from []models.JobStatus, to models.JobStatus, patch store.JobPatch) (*models.Job, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, store.ErrNotFound
	}

	updates := map[string]interface{}{
		"status":     string(to),
		"updated_at": time.Now().UTC(),
	}
	if patch.FreelancerUID != nil {
		updates["freelancer_uid"] = *patch.FreelancerUID
	}
	if patch.ClearFreelancer {
		updates["freelancer_uid"] = nil
	}
	if patch.TxID != nil {
		updates["txid"] = *patch.TxID
	}
	if patch.PaidAt != nil {
		updates["paid_at"] = patch.PaidAt.UTC()
	}

	body, _, err := s.db.From(tableJobs).
		Update(updates, returnRepresentation, "").
		Eq("id", id).
		In("status", statusStrings(from)).
		Execute()
	if err != nil {
		return nil, mapError("transition job", err)
	}
	rows, err := decodeRows[jobRow](body)
	if err != nil {
		return nil, err
	}
	if len(rows) > 0 {
		return rows[0].model(), nil
	}

	if _, err := s.GetJob(ctx, id); err != nil {
		return nil, err
	}
	return nil, store.ErrStateConflict
}
