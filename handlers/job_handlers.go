package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/FCJuventus/DoPi-demo/internal/jobs"
	"github.com/FCJuventus/DoPi-demo/middleware"
	"github.com/FCJuventus/DoPi-demo/models"
	"github.com/FCJuventus/DoPi-demo/utils"
)

// CreateJobRequest is the body of POST /jobs.
type CreateJobRequest struct {
	Title       string          `json:"title" validate:"required"`
	Description string          `json:"description" validate:"required"`
	BudgetPi    decimal.Decimal `json:"budgetPi" swaggertype:"number"`
	CreatorUID  string          `json:"creatorUid" validate:"required"`
}

// AwardJobRequest is the body of PATCH /jobs/:id/award.
type AwardJobRequest struct {
	CreatorUID    string `json:"creatorUid" validate:"required"`
	FreelancerUID string `json:"freelancerUid" validate:"required"`
}

// PayJobRequest is the body of POST /jobs/:id/pay.
type PayJobRequest struct {
	EmployerUID string `json:"employerUid" validate:"required"`
	PaymentID   string `json:"pi_payment_id,omitempty"`
}

// CreatorRequest is the body of the creator-only transitions.
type CreatorRequest struct {
	CreatorUID string `json:"creatorUid" validate:"required"`
}

// JobResponse wraps a single job.
type JobResponse struct {
	Status string     `json:"status"`
	Data   models.Job `json:"data"`
}

// JobListResponse wraps a page of jobs.
type JobListResponse struct {
	Status string       `json:"status"`
	Data   []models.Job `json:"data"`
}

// OrderResponse wraps a single order.
type OrderResponse struct {
	Status string       `json:"status"`
	Data   models.Order `json:"data"`
}

// CreateJob godoc
// @Summary Create a job
// @Description Posts an open job. budgetPi must be positive.
// @Tags jobs
// @Accept json
// @Produce json
// @Param job body CreateJobRequest true "Job to create"
// @Success 201 {object} JobResponse
// @Failure 400 {object} utils.ErrorResponse
// @Router /jobs [post]
func (h *ApplicationHandler) CreateJob(c *fiber.Ctx) error {
	req := new(CreateJobRequest)
	if err := h.bind(c, req); err != nil {
		return h.fail(c, err)
	}
	j, err := h.Jobs.Create(c.UserContext(), jobs.CreateInput{
		Title:       req.Title,
		Description: req.Description,
		BudgetPi:    req.BudgetPi,
		CreatorUID:  req.CreatorUID,
	})
	if err != nil {
		return h.fail(c, err)
	}
	return utils.RespondWithJSON(c, fiber.StatusCreated, j)
}

// ListJobs godoc
// @Summary List open jobs
// @Description Open jobs, newest first, at most 100 per page.
// @Tags jobs
// @Produce json
// @Param limit query int false "Page size (max 100)"
// @Param offset query int false "Offset"
// @Success 200 {object} JobListResponse
// @Router /jobs [get]
func (h *ApplicationHandler) ListJobs(c *fiber.Ctx) error {
	list, err := h.Jobs.ListOpen(c.UserContext(), c.QueryInt("limit"), c.QueryInt("offset"))
	if err != nil {
		return h.fail(c, err)
	}
	return utils.RespondWithJSON(c, fiber.StatusOK, list)
}

// ListMyJobs godoc
// @Summary List a participant's jobs
// @Description Jobs the user created or was awarded, newest first. Defaults to the signed-in user.
// @Tags jobs
// @Produce json
// @Param uid query string false "Participant uid"
// @Param limit query int false "Page size (max 100)"
// @Param offset query int false "Offset"
// @Success 200 {object} JobListResponse
// @Failure 400 {object} utils.ErrorResponse
// @Router /jobs/mine [get]
func (h *ApplicationHandler) ListMyJobs(c *fiber.Ctx) error {
	uid := utils.SanitizeInput(c.Query("uid"))
	if uid == "" {
		if u, ok := middleware.CurrentUser(c); ok {
			uid = u.UID
		}
	}
	list, err := h.Jobs.ListForParticipant(c.UserContext(), uid, c.QueryInt("limit"), c.QueryInt("offset"))
	if err != nil {
		return h.fail(c, err)
	}
	return utils.RespondWithJSON(c, fiber.StatusOK, list)
}

// GetJob godoc
// @Summary Get a job
// @Tags jobs
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} JobResponse
// @Failure 404 {object} utils.ErrorResponse
// @Router /jobs/{id} [get]
func (h *ApplicationHandler) GetJob(c *fiber.Ctx) error {
	j, err := h.Jobs.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return h.fail(c, err)
	}
	return utils.RespondWithJSON(c, fiber.StatusOK, j)
}

// AwardJob godoc
// @Summary Award a job
// @Description The creator assigns a freelancer to an open job.
// @Tags jobs
// @Accept json
// @Produce json
// @Param id path string true "Job ID"
// @Param award body AwardJobRequest true "Creator and freelancer"
// @Success 200 {object} JobResponse
// @Failure 400 {object} utils.ErrorResponse
// @Failure 403 {object} utils.ErrorResponse
// @Failure 404 {object} utils.ErrorResponse
// @Router /jobs/{id}/award [patch]
func (h *ApplicationHandler) AwardJob(c *fiber.Ctx) error {
	req := new(AwardJobRequest)
	if err := h.bind(c, req); err != nil {
		return h.fail(c, err)
	}
	j, err := h.Jobs.Award(c.UserContext(), c.Params("id"), req.CreatorUID, req.FreelancerUID)
	if err != nil {
		return h.fail(c, err)
	}
	return utils.RespondWithJSON(c, fiber.StatusOK, j)
}

// PayJob godoc
// @Summary Start paying for a job
// @Description Creates, or returns the existing, draft order for an awarded job with the fee-inclusive total.
// @Tags jobs
// @Accept json
// @Produce json
// @Param id path string true "Job ID"
// @Param pay body PayJobRequest true "Payer and optional gateway payment id"
// @Success 201 {object} OrderResponse
// @Failure 400 {object} utils.ErrorResponse
// @Failure 403 {object} utils.ErrorResponse
// @Failure 404 {object} utils.ErrorResponse
// @Router /jobs/{id}/pay [post]
func (h *ApplicationHandler) PayJob(c *fiber.Ctx) error {
	req := new(PayJobRequest)
	if err := h.bind(c, req); err != nil {
		return h.fail(c, err)
	}
	o, err := h.Jobs.InitiatePay(c.UserContext(), c.Params("id"), req.EmployerUID, req.PaymentID)
	if err != nil {
		return h.fail(c, err)
	}
	return utils.RespondWithJSON(c, fiber.StatusCreated, o)
}

// CompleteJob godoc
// @Summary Complete a paid job
// @Tags jobs
// @Accept json
// @Produce json
// @Param id path string true "Job ID"
// @Param body body CreatorRequest true "Creator"
// @Success 200 {object} JobResponse
// @Failure 400 {object} utils.ErrorResponse
// @Failure 403 {object} utils.ErrorResponse
// @Failure 404 {object} utils.ErrorResponse
// @Router /jobs/{id}/complete [patch]
func (h *ApplicationHandler) CompleteJob(c *fiber.Ctx) error {
	req := new(CreatorRequest)
	if err := h.bind(c, req); err != nil {
		return h.fail(c, err)
	}
	j, err := h.Jobs.Complete(c.UserContext(), c.Params("id"), req.CreatorUID)
	if err != nil {
		return h.fail(c, err)
	}
	return utils.RespondWithJSON(c, fiber.StatusOK, j)
}

// CancelJob godoc
// @Summary Cancel a job
// @Description Allowed while the job is open or awarded. Paid jobs need a refund, which is not supported.
// @Tags jobs
// @Accept json
// @Produce json
// @Param id path string true "Job ID"
// @Param body body CreatorRequest true "Creator"
// @Success 200 {object} JobResponse
// @Failure 400 {object} utils.ErrorResponse
// @Failure 403 {object} utils.ErrorResponse
// @Failure 404 {object} utils.ErrorResponse
// @Router /jobs/{id}/cancel [patch]
func (h *ApplicationHandler) CancelJob(c *fiber.Ctx) error {
	req := new(CreatorRequest)
	if err := h.bind(c, req); err != nil {
		return h.fail(c, err)
	}
	j, err := h.Jobs.Cancel(c.UserContext(), c.Params("id"), req.CreatorUID)
	if err != nil {
		return h.fail(c, err)
	}
	return utils.RespondWithJSON(c, fiber.StatusOK, j)
}
