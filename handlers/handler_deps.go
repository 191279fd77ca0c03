package handlers

import (
	"context"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/FCJuventus/DoPi-demo/internal/apperr"
	"github.com/FCJuventus/DoPi-demo/internal/jobs"
	"github.com/FCJuventus/DoPi-demo/internal/payments"
	"github.com/FCJuventus/DoPi-demo/middleware"
	"github.com/FCJuventus/DoPi-demo/models"
	"github.com/FCJuventus/DoPi-demo/utils"
)

// UserVerifier resolves a gateway access token to the user it belongs to.
type UserVerifier interface {
	Me(ctx context.Context, accessToken string) (*models.PiMe, error)
}

// ApplicationHandler holds shared dependencies for handlers.
type ApplicationHandler struct {
	Jobs     *jobs.Service
	Payments *payments.Service
	Users    UserVerifier
	Sessions *middleware.Sessions
	Logger   logrus.FieldLogger
	validate *validator.Validate
}

// NewApplicationHandler creates a new ApplicationHandler with the given dependencies.
func NewApplicationHandler(jobSvc *jobs.Service, paymentSvc *payments.Service, users UserVerifier, sessions *middleware.Sessions, logger logrus.FieldLogger) *ApplicationHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &ApplicationHandler{
		Jobs:     jobSvc,
		Payments: paymentSvc,
		Users:    users,
		Sessions: sessions,
		Logger:   logger,
		validate: validator.New(),
	}
}

// Register mounts every route on app.
func (h *ApplicationHandler) Register(app fiber.Router) {
	jobRoutes := app.Group("/jobs")
	jobRoutes.Post("", h.CreateJob)
	jobRoutes.Get("", h.ListJobs)
	jobRoutes.Get("/mine", h.ListMyJobs)
	jobRoutes.Get("/:id", h.GetJob)
	jobRoutes.Patch("/:id/award", h.AwardJob)
	jobRoutes.Post("/:id/pay", h.PayJob)
	jobRoutes.Patch("/:id/complete", h.CompleteJob)
	jobRoutes.Patch("/:id/cancel", h.CancelJob)

	paymentRoutes := app.Group("/payments")
	paymentRoutes.Post("/create", middleware.RequireSession(), h.CreatePayment)
	paymentRoutes.Post("/approve", middleware.RequireSession(), h.ApprovePayment)
	paymentRoutes.Post("/complete", h.CompletePayment)
	paymentRoutes.Post("/incomplete", h.IncompletePayment)
	paymentRoutes.Post("/cancelled_payment", h.CancelledPayment)

	userRoutes := app.Group("/user")
	userRoutes.Post("/signin", h.SignIn)
	userRoutes.Get("/signout", h.SignOut)
}

// bind parses the JSON body into dst and runs its validate tags.
func (h *ApplicationHandler) bind(c *fiber.Ctx, dst interface{}) error {
	if err := c.BodyParser(dst); err != nil {
		return apperr.Validation("cannot parse request body: %v", err)
	}
	return h.validate.Struct(dst)
}

// fail writes err as the error envelope. Server-side failures are logged with
// their cause; client errors are not.
func (h *ApplicationHandler) fail(c *fiber.Ctx, err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return utils.RespondWithValidationError(c, err)
	}
	if status := utils.StatusForError(err); status >= fiber.StatusInternalServerError {
		h.Logger.WithError(err).WithFields(logrus.Fields{
			"request_id": c.Locals("requestid"),
			"route":      c.Route().Path,
		}).Error("Request failed")
	}
	return utils.RespondWithAppError(c, err)
}
