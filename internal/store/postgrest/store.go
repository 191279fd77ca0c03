// Package postgrest implements store.Store on Supabase through its PostgREST
// endpoint.
//
// Rows live in the "jobs" and "orders" tables described by Schema. State
// changes are PATCH requests filtered on the allowed source statuses; an empty
// representation means the guard did not match.
package postgrest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	postgrest "github.com/supabase-community/postgrest-go"

	"github.com/FCJuventus/DoPi-demo/internal/store"
)

const (
	tableJobs   = "jobs"
	tableOrders = "orders"

	returnRepresentation = "representation"
)

// Schema is the DDL the tables must be created with. PostgREST cannot run
// DDL, so Migrate only checks that both tables answer.
const Schema = `
create table if not exists jobs (
  id             uuid primary key,
  title          text not null,
  description    text not null,
  budget_pi      numeric(20,7) not null,
  creator_uid    text not null,
  freelancer_uid text,
  status         text not null,
  txid           text,
  created_at     timestamptz not null,
  updated_at     timestamptz not null,
  paid_at        timestamptz
);
create index if not exists jobs_status_created on jobs (status, created_at desc);

create table if not exists orders (
  id             uuid primary key,
  payment_id     text unique,
  job_id         text,
  payer_uid      text not null,
  freelancer_uid text,
  amount         numeric(20,7) not null,
  fee            numeric(20,7) not null,
  total          numeric(20,7) not null,
  memo           text,
  txid           text,
  status         text not null,
  created_at     timestamptz not null,
  updated_at     timestamptz not null,
  paid_at        timestamptz
);
create index if not exists orders_status_updated on orders (status, updated_at);
`

// Querier is satisfied by both *supabase.Client and *postgrest.Client.
type Querier interface {
	From(table string) *postgrest.QueryBuilder
}

var _ store.Store = (*Store)(nil)

// Store is a PostgREST implementation of store.Store.
type Store struct {
	db     Querier
	logger logrus.FieldLogger
}

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New creates a store on db.
func New(db Querier, opts ...Option) *Store {
	s := &Store{
		db:     db,
		logger: logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Migrate verifies that the jobs and orders tables are reachable.
func (s *Store) Migrate(ctx context.Context) error {
	for _, table := range []string{tableJobs, tableOrders} {
		if err := s.probe(table); err != nil {
			s.logger.WithField("table", table).Error("Table not reachable; apply postgrest.Schema first")
			return err
		}
		s.logger.WithField("table", table).Info("Table reachable")
	}
	return nil
}

// Ping checks that the jobs table answers.
func (s *Store) Ping(_ context.Context) error {
	return s.probe(tableJobs)
}

// Close is a no-op; the HTTP client holds no pooled state worth releasing.
func (s *Store) Close(_ context.Context) error {
	return nil
}

func (s *Store) probe(table string) error {
	_, _, err := s.db.From(table).Select("id", "", false).Limit(1, "").Execute()
	if err != nil {
		return fmt.Errorf("store/postgrest: probe %s: %w", table, err)
	}
	return nil
}

// decodeRows unmarshals a PostgREST array body.
func decodeRows[T any](body []byte) ([]T, error) {
	var rows []T
	if len(body) == 0 {
		return rows, nil
	}
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("store/postgrest: decode response: %w", err)
	}
	return rows, nil
}

// mapError translates PostgREST error strings of the form "(code) message".
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "(23505)") {
		return store.ErrDuplicate
	}
	return fmt.Errorf("store/postgrest: %s: %w", op, err)
}

func statusStrings[S ~string](statuses []S) []string {
	out := make([]string, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, string(s))
	}
	return out
}
