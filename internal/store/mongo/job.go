package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/FCJuventus/DoPi-demo/internal/store"
	"github.com/FCJuventus/DoPi-demo/models"
)

// CreateJob inserts a new job and assigns its id.
func (s *Store) CreateJob(ctx context.Context, j *models.Job) error {
	t := now()
	if j.CreatedAt.IsZero() {
		j.CreatedAt = t
	}
	j.UpdatedAt = j.CreatedAt

	m, err := toJobModel(j)
	if err != nil {
		return err
	}
	if m.ID.IsZero() {
		m.ID = bson.NewObjectID()
	}
	if _, err := s.jobs().InsertOne(ctx, m); err != nil {
		if isDuplicateKey(err) {
			return store.ErrDuplicate
		}
		return fmt.Errorf("store/mongo: create job: %w", err)
	}
	j.ID = m.ID.Hex()
	return nil
}

// GetJob retrieves a job by id.
func (s *Store) GetJob(ctx context.Context, id string) (*models.Job, error) {
	oid, err := objectID(id)
	if err != nil {
		return nil, err
	}
	var m jobModel
	if err := s.jobs().FindOne(ctx, bson.M{"_id": oid}).Decode(&m); err != nil {
		if isNoDocuments(err) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("store/mongo: get job: %w", err)
	}
	return fromJobModel(&m)
}

// ListJobs returns jobs matching f, newest first.
func (s *Store) ListJobs(ctx context.Context, f store.JobFilter) ([]*models.Job, error) {
	filter := bson.M{}
	if f.Status != "" {
		filter["status"] = string(f.Status)
	}
	if f.ParticipantUID != "" {
		filter["$or"] = bson.A{
			bson.M{"creator_uid": f.ParticipantUID},
			bson.M{"freelancer_uid": f.ParticipantUID},
		}
	}

	findOpts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(store.ClampLimit(f.Limit)))
	if f.Offset > 0 {
		findOpts.SetSkip(int64(f.Offset))
	}

	cursor, err := s.jobs().Find(ctx, filter, findOpts)
	if err != nil {
		return nil, fmt.Errorf("store/mongo: list jobs: %w", err)
	}
	defer cursor.Close(ctx)

	var ms []jobModel
	if err := cursor.All(ctx, &ms); err != nil {
		return nil, fmt.Errorf("store/mongo: list jobs decode: %w", err)
	}
	jobs := make([]*models.Job, 0, len(ms))
	for i := range ms {
		j, err := fromJobModel(&ms[i])
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

// TransitionJob applies a status change guarded by the current status in one
// FindOneAndUpdate.
func (s *Store) TransitionJob(ctx context.Context, id string, from []models.JobStatus, to models.JobStatus, patch store.JobPatch) (*models.Job, error) {
	oid, err := objectID(id)
	if err != nil {
		return nil, err
	}

	set := bson.M{"status": string(to), "updated_at": now()}
	if patch.FreelancerUID != nil {
		set["freelancer_uid"] = *patch.FreelancerUID
	}
	if patch.ClearFreelancer {
		set["freelancer_uid"] = nil
	}
	if patch.TxID != nil {
		set["txid"] = *patch.TxID
	}
	if patch.PaidAt != nil {
		set["paid_at"] = patch.PaidAt.UTC()
	}

	filter := bson.M{"_id": oid, "status": bson.M{"$in": statusValues(from)}}
	var m jobModel
	err = s.jobs().FindOneAndUpdate(ctx, filter, bson.M{"$set": set}, afterUpdate()).Decode(&m)
	if err == nil {
		return fromJobModel(&m)
	}
	if !isNoDocuments(err) {
		return nil, fmt.Errorf("store/mongo: transition job: %w", err)
	}

	n, err := s.jobs().CountDocuments(ctx, bson.M{"_id": oid})
	if err != nil {
		return nil, fmt.Errorf("store/mongo: transition job lookup: %w", err)
	}
	if n == 0 {
		return nil, store.ErrNotFound
	}
	return nil, store.ErrStateConflict
}
