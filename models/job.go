package models

import (
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Budgets and totals go over the wire as JSON numbers, not strings.
	decimal.MarshalJSONWithoutQuotes = true
}

// JobStatus is the lifecycle state of a job.
type JobStatus string

const (
	JobStatusOpen      JobStatus = "open"
	JobStatusAwarded   JobStatus = "awarded"
	JobStatusPaid      JobStatus = "paid"
	JobStatusCompleted JobStatus = "completed"
	JobStatusCancelled JobStatus = "cancelled"
)

// jobTransitions lists the statuses reachable from each status in one step.
var jobTransitions = map[JobStatus][]JobStatus{
	JobStatusOpen:    {JobStatusAwarded, JobStatusCancelled},
	JobStatusAwarded: {JobStatusPaid, JobStatusCancelled},
	JobStatusPaid:    {JobStatusCompleted},
}

// Valid reports whether s is a known job status.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusOpen, JobStatusAwarded, JobStatusPaid, JobStatusCompleted, JobStatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no transition leaves s.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusCancelled
}

// CanTransition reports whether a job may move from s to next in one step.
func (s JobStatus) CanTransition(next JobStatus) bool {
	for _, candidate := range jobTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// RequiresFreelancer reports whether a job in status s must have a freelancer assigned.
func (s JobStatus) RequiresFreelancer() bool {
	return s == JobStatusAwarded || s == JobStatusPaid || s == JobStatusCompleted
}

// Job represents a unit of work posted by a creator and optionally claimed by a freelancer.
type Job struct {
	ID            string          `json:"id"`
	Title         string          `json:"title"`
	Description   string          `json:"description"`
	BudgetPi      decimal.Decimal `json:"budgetPi"`
	CreatorUID    string          `json:"creatorUid"`
	FreelancerUID *string         `json:"freelancerUid"` // null until the job is awarded
	Status        JobStatus       `json:"status"`
	TxID          *string         `json:"txid,omitempty"` // set when the payment settles
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
	PaidAt        *time.Time      `json:"paidAt,omitempty"`
}

// HasFreelancer reports whether a freelancer is assigned.
func (j *Job) HasFreelancer() bool {
	return j.FreelancerUID != nil && *j.FreelancerUID != ""
}

// Consistent reports whether the freelancer assignment agrees with the status.
func (j *Job) Consistent() bool {
	return j.HasFreelancer() == j.Status.RequiresFreelancer()
}
