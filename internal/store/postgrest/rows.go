package postgrest

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/FCJuventus/DoPi-demo/models"
)

type jobRow struct {
	ID            string          `json:"id"`
	Title         string          `json:"title"`
	Description   string          `json:"description"`
	BudgetPi      decimal.Decimal `json:"budget_pi"`
	CreatorUID    string          `json:"creator_uid"`
	FreelancerUID *string         `json:"freelancer_uid"`
	Status        string          `json:"status"`
	TxID          *string         `json:"txid"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	PaidAt        *time.Time      `json:"paid_at"`
}

func toJobRow(j *models.Job) jobRow {
	return jobRow{
		ID:            j.ID,
		Title:         j.Title,
		Description:   j.Description,
		BudgetPi:      j.BudgetPi,
		CreatorUID:    j.CreatorUID,
		FreelancerUID: j.FreelancerUID,
		Status:        string(j.Status),
		TxID:          j.TxID,
		CreatedAt:     j.CreatedAt,
		UpdatedAt:     j.UpdatedAt,
		PaidAt:        j.PaidAt,
	}
}

func (r jobRow) model() *models.Job {
	return &models.Job{
		ID:            r.ID,
		Title:         r.Title,
		Description:   r.Description,
		BudgetPi:      r.BudgetPi,
		CreatorUID:    r.CreatorUID,
		FreelancerUID: r.FreelancerUID,
		Status:        models.JobStatus(r.Status),
		TxID:          r.TxID,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
		PaidAt:        r.PaidAt,
	}
}

type orderRow struct {
	ID            string          `json:"id"`
	PaymentID     *string         `json:"payment_id"`
	JobID         *string         `json:"job_id"`
	PayerUID      string          `json:"payer_uid"`
	FreelancerUID *string         `json:"freelancer_uid"`
	Amount        decimal.Decimal `json:"amount"`
	Fee           decimal.Decimal `json:"fee"`
	Total         decimal.Decimal `json:"total"`
	Memo          string          `json:"memo"`
	TxID          *string         `json:"txid"`
	Status        string          `json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	PaidAt        *time.Time      `json:"paid_at"`
}

func toOrderRow(o *models.Order) orderRow {
	return orderRow{
		ID:            o.ID,
		PaymentID:     o.PaymentID,
		JobID:         o.JobID,
		PayerUID:      o.PayerUID,
		FreelancerUID: o.FreelancerUID,
		Amount:        o.Amount,
		Fee:           o.Fee,
		Total:         o.Total,
		Memo:          o.Memo,
		TxID:          o.TxID,
		Status:        string(o.Status),
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
		PaidAt:        o.PaidAt,
	}
}

func (r orderRow) model() *models.Order {
	return &models.Order{
		ID:            r.ID,
		PaymentID:     r.PaymentID,
		JobID:         r.JobID,
		PayerUID:      r.PayerUID,
		FreelancerUID: r.FreelancerUID,
		Amount:        r.Amount,
		Fee:           r.Fee,
		Total:         r.Total,
		Memo:          r.Memo,
		TxID:          r.TxID,
		Status:        models.OrderStatus(r.Status),
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
		PaidAt:        r.PaidAt,
	}
}
