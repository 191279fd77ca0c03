package handlers

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/FCJuventus/DoPi-demo/internal/payments"
	"github.com/FCJuventus/DoPi-demo/middleware"
	"github.com/FCJuventus/DoPi-demo/models"
	"github.com/FCJuventus/DoPi-demo/utils"
)

// CreatePaymentRequest is the body of POST /payments/create.
type CreatePaymentRequest struct {
	Amount      decimal.Decimal `json:"amount" swaggertype:"number"`
	ProductID   string          `json:"productId,omitempty"`
	Description string          `json:"description,omitempty"`
}

// ApprovePaymentRequest is the body of POST /payments/approve.
type ApprovePaymentRequest struct {
	PaymentID string `json:"paymentId" validate:"required"`
	OrderID   string `json:"orderId,omitempty"`
}

// CompletePaymentRequest is the body of POST /payments/complete.
type CompletePaymentRequest struct {
	PaymentID string `json:"paymentId" validate:"required"`
	TxID      string `json:"txid" validate:"required"`
}

// IncompletePaymentRequest is the gateway's incomplete-payment webhook body.
type IncompletePaymentRequest struct {
	Payment struct {
		Identifier  string `json:"identifier" validate:"required"`
		Transaction struct {
			TxID string `json:"txid" validate:"required"`
			Link string `json:"_link"`
		} `json:"transaction"`
	} `json:"payment"`
}

// CancelPaymentRequest is the body of POST /payments/cancelled_payment.
type CancelPaymentRequest struct {
	OrderID   string `json:"orderId,omitempty"`
	PaymentID string `json:"paymentId,omitempty"`
}

// OrderCreatedResponse carries the id of a new order.
type OrderCreatedResponse struct {
	OrderID string `json:"orderId"`
}

// PaymentMessage is the result of a gateway callback.
type PaymentMessage struct {
	Message string        `json:"message"`
	Order   *models.Order `json:"order,omitempty"`
}

// CreatePayment godoc
// @Summary Record a payment intent
// @Description Requires a session. When productId names a job the amount must equal its fee-inclusive total.
// @Tags payments
// @Accept json
// @Produce json
// @Param payment body CreatePaymentRequest true "Payment intent"
// @Success 200 {object} utils.SuccessResponse{data=OrderCreatedResponse}
// @Failure 400 {object} utils.ErrorResponse
// @Failure 401 {object} utils.ErrorResponse
// @Router /payments/create [post]
func (h *ApplicationHandler) CreatePayment(c *fiber.Ctx) error {
	req := new(CreatePaymentRequest)
	if err := h.bind(c, req); err != nil {
		return h.fail(c, err)
	}
	user, _ := middleware.CurrentUser(c)
	o, err := h.Payments.Create(c.UserContext(), payments.CreateInput{
		UserUID:     user.UID,
		Amount:      req.Amount,
		ProductID:   req.ProductID,
		Description: req.Description,
	})
	if err != nil {
		return h.fail(c, err)
	}
	return utils.RespondWithJSON(c, fiber.StatusOK, OrderCreatedResponse{OrderID: o.ID})
}

// ApprovePayment godoc
// @Summary Approve a gateway payment
// @Description Requires a session. Verifies the payment against the linked job and its fee-inclusive total.
// @Tags payments
// @Accept json
// @Produce json
// @Param payment body ApprovePaymentRequest true "Gateway payment id and optional order id"
// @Success 200 {object} utils.SuccessResponse{data=PaymentMessage}
// @Failure 400 {object} utils.ErrorResponse
// @Failure 401 {object} utils.ErrorResponse
// @Failure 403 {object} utils.ErrorResponse
// @Failure 404 {object} utils.ErrorResponse
// @Failure 502 {object} utils.ErrorResponse
// @Router /payments/approve [post]
func (h *ApplicationHandler) ApprovePayment(c *fiber.Ctx) error {
	req := new(ApprovePaymentRequest)
	if err := h.bind(c, req); err != nil {
		return h.fail(c, err)
	}
	user, _ := middleware.CurrentUser(c)
	o, err := h.Payments.Approve(c.UserContext(), payments.ApproveInput{
		UserUID:   user.UID,
		PaymentID: req.PaymentID,
		OrderID:   req.OrderID,
	})
	if err != nil {
		return h.fail(c, err)
	}
	return utils.RespondWithJSON(c, fiber.StatusOK, PaymentMessage{
		Message: fmt.Sprintf("Approved payment %s", req.PaymentID),
		Order:   o,
	})
}

// CompletePayment godoc
// @Summary Complete a gateway payment
// @Description Records the transaction hash, acknowledges the gateway and marks the linked job paid. Safe to repeat.
// @Tags payments
// @Accept json
// @Produce json
// @Param payment body CompletePaymentRequest true "Gateway payment id and transaction hash"
// @Success 200 {object} utils.SuccessResponse{data=PaymentMessage}
// @Failure 400 {object} utils.ErrorResponse
// @Failure 404 {object} utils.ErrorResponse
// @Failure 502 {object} utils.ErrorResponse
// @Router /payments/complete [post]
func (h *ApplicationHandler) CompletePayment(c *fiber.Ctx) error {
	req := new(CompletePaymentRequest)
	if err := h.bind(c, req); err != nil {
		return h.fail(c, err)
	}
	o, err := h.Payments.Complete(c.UserContext(), req.PaymentID, req.TxID)
	if err != nil {
		return h.fail(c, err)
	}
	return utils.RespondWithJSON(c, fiber.StatusOK, PaymentMessage{
		Message: fmt.Sprintf("Completed payment %s", req.PaymentID),
		Order:   o,
	})
}

// IncompletePayment godoc
// @Summary Handle an incomplete payment
// @Description Gateway webhook for a payment confirmed on chain but never completed. The transaction memo must name the payment.
// @Tags payments
// @Accept json
// @Produce json
// @Param payment body IncompletePaymentRequest true "Gateway payment"
// @Success 200 {object} utils.SuccessResponse{data=PaymentMessage}
// @Failure 400 {object} utils.ErrorResponse
// @Failure 404 {object} utils.ErrorResponse
// @Failure 502 {object} utils.ErrorResponse
// @Router /payments/incomplete [post]
func (h *ApplicationHandler) IncompletePayment(c *fiber.Ctx) error {
	req := new(IncompletePaymentRequest)
	if err := h.bind(c, req); err != nil {
		return h.fail(c, err)
	}
	o, err := h.Payments.Incomplete(c.UserContext(), payments.IncompleteInput{
		PaymentID: req.Payment.Identifier,
		TxID:      req.Payment.Transaction.TxID,
		Link:      req.Payment.Transaction.Link,
	})
	if err != nil {
		return h.fail(c, err)
	}
	return utils.RespondWithJSON(c, fiber.StatusOK, PaymentMessage{
		Message: fmt.Sprintf("Handled incomplete payment %s", req.Payment.Identifier),
		Order:   o,
	})
}

// CancelledPayment godoc
// @Summary Cancel a payment
// @Description Cancels an open order by orderId or paymentId. An unknown paymentId is accepted.
// @Tags payments
// @Accept json
// @Produce json
// @Param payment body CancelPaymentRequest true "Order or payment id"
// @Success 200 {object} utils.SuccessResponse{data=PaymentMessage}
// @Failure 400 {object} utils.ErrorResponse
// @Failure 404 {object} utils.ErrorResponse
// @Router /payments/cancelled_payment [post]
func (h *ApplicationHandler) CancelledPayment(c *fiber.Ctx) error {
	req := new(CancelPaymentRequest)
	if err := h.bind(c, req); err != nil {
		return h.fail(c, err)
	}
	o, err := h.Payments.Cancel(c.UserContext(), models.OrderRef{OrderID: req.OrderID, PaymentID: req.PaymentID})
	if err != nil {
		return h.fail(c, err)
	}
	ref := req.PaymentID
	if ref == "" {
		ref = req.OrderID
	}
	return utils.RespondWithJSON(c, fiber.StatusOK, PaymentMessage{
		Message: fmt.Sprintf("Cancelled payment %s", ref),
		Order:   o,
	})
}
