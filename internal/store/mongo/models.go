package mongo

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/FCJuventus/DoPi-demo/models"
)

// ── Job model ─────────────────────────────────────────────────────

type jobModel struct {
	ID            bson.ObjectID   `bson:"_id"`
	Title         string          `bson:"title"`
	Description   string          `bson:"description"`
	BudgetPi      bson.Decimal128 `bson:"budget_pi"`
	CreatorUID    string          `bson:"creator_uid"`
	FreelancerUID *string         `bson:"freelancer_uid"`
	Status        string          `bson:"status"`
	TxID          *string         `bson:"txid,omitempty"`
	CreatedAt     time.Time       `bson:"created_at"`
	UpdatedAt     time.Time       `bson:"updated_at"`
	PaidAt        *time.Time      `bson:"paid_at,omitempty"`
}

func toJobModel(j *models.Job) (*jobModel, error) {
	budget, err := toDecimal128(j.BudgetPi)
	if err != nil {
		return nil, err
	}
	m := &jobModel{
		Title:         j.Title,
		Description:   j.Description,
		BudgetPi:      budget,
		CreatorUID:    j.CreatorUID,
		FreelancerUID: j.FreelancerUID,
		Status:        string(j.Status),
		TxID:          j.TxID,
		CreatedAt:     j.CreatedAt,
		UpdatedAt:     j.UpdatedAt,
		PaidAt:        j.PaidAt,
	}
	if j.ID != "" {
		if m.ID, err = bson.ObjectIDFromHex(j.ID); err != nil {
			return nil, fmt.Errorf("store/mongo: job id %q: %w", j.ID, err)
		}
	}
	return m, nil
}

func fromJobModel(m *jobModel) (*models.Job, error) {
	budget, err := fromDecimal128(m.BudgetPi)
	if err != nil {
		return nil, fmt.Errorf("store/mongo: job %s budget: %w", m.ID.Hex(), err)
	}
	return &models.Job{
		ID:            m.ID.Hex(),
		Title:         m.Title,
		Description:   m.Description,
		BudgetPi:      budget,
		CreatorUID:    m.CreatorUID,
		FreelancerUID: m.FreelancerUID,
		Status:        models.JobStatus(m.Status),
		TxID:          m.TxID,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
		PaidAt:        m.PaidAt,
	}, nil
}

// ── Order model ───────────────────────────────────────────────────

type orderModel struct {
	ID            bson.ObjectID   `bson:"_id"`
	PaymentID     *string         `bson:"payment_id,omitempty"` // absent until bound; the unique index skips it
	JobID         *string         `bson:"job_id"`
	PayerUID      string          `bson:"payer_uid"`
	FreelancerUID *string         `bson:"freelancer_uid,omitempty"`
	Amount        bson.Decimal128 `bson:"amount"`
	Fee           bson.Decimal128 `bson:"fee"`
	Total         bson.Decimal128 `bson:"total"`
	Memo          string          `bson:"memo,omitempty"`
	TxID          *string         `bson:"txid"`
	Status        string          `bson:"status"`
	CreatedAt     time.Time       `bson:"created_at"`
	UpdatedAt     time.Time       `bson:"updated_at"`
	PaidAt        *time.Time      `bson:"paid_at,omitempty"`
}

func toOrderModel(o *models.Order) (*orderModel, error) {
	amount, err := toDecimal128(o.Amount)
	if err != nil {
		return nil, err
	}
	fee, err := toDecimal128(o.Fee)
	if err != nil {
		return nil, err
	}
	total, err := toDecimal128(o.Total)
	if err != nil {
		return nil, err
	}
	m := &orderModel{
		PaymentID:     o.PaymentID,
		JobID:         o.JobID,
		PayerUID:      o.PayerUID,
		FreelancerUID: o.FreelancerUID,
		Amount:        amount,
		Fee:           fee,
		Total:         total,
		Memo:          o.Memo,
		TxID:          o.TxID,
		Status:        string(o.Status),
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
		PaidAt:        o.PaidAt,
	}
	if o.ID != "" {
		if m.ID, err = bson.ObjectIDFromHex(o.ID); err != nil {
			return nil, fmt.Errorf("store/mongo: order id %q: %w", o.ID, err)
		}
	}
	return m, nil
}

func fromOrderModel(m *orderModel) (*models.Order, error) {
	amount, err := fromDecimal128(m.Amount)
	if err != nil {
		return nil, fmt.Errorf("store/mongo: order %s amount: %w", m.ID.Hex(), err)
	}
	fee, err := fromDecimal128(m.Fee)
	if err != nil {
		return nil, fmt.Errorf("store/mongo: order %s fee: %w", m.ID.Hex(), err)
	}
	total, err := fromDecimal128(m.Total)
	if err != nil {
		return nil, fmt.Errorf("store/mongo: order %s total: %w", m.ID.Hex(), err)
	}
	return &models.Order{
		ID:            m.ID.Hex(),
		PaymentID:     m.PaymentID,
		JobID:         m.JobID,
		PayerUID:      m.PayerUID,
		FreelancerUID: m.FreelancerUID,
		Amount:        amount,
		Fee:           fee,
		Total:         total,
		Memo:          m.Memo,
		TxID:          m.TxID,
		Status:        models.OrderStatus(m.Status),
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
		PaidAt:        m.PaidAt,
	}, nil
}

func toDecimal128(d decimal.Decimal) (bson.Decimal128, error) {
	v, err := bson.ParseDecimal128(d.String())
	if err != nil {
		return bson.Decimal128{}, fmt.Errorf("store/mongo: decimal %s: %w", d.String(), err)
	}
	return v, nil
}

func fromDecimal128(v bson.Decimal128) (decimal.Decimal, error) {
	return decimal.NewFromString(v.String())
}
