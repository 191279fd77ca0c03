package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/FCJuventus/DoPi-demo/internal/apperr"
	"github.com/FCJuventus/DoPi-demo/models"
	"github.com/FCJuventus/DoPi-demo/utils"
)

// SignInRequest is the authentication result the Pi SDK hands the frontend.
type SignInRequest struct {
	AuthResult struct {
		AccessToken string      `json:"accessToken" validate:"required"`
		User        models.User `json:"user"`
	} `json:"authResult"`
}

// SignIn godoc
// @Summary Sign in with a Pi access token
// @Description Verifies the token against the gateway and starts a session cookie.
// @Tags user
// @Accept json
// @Produce json
// @Param auth body SignInRequest true "Pi SDK authentication result"
// @Success 200 {object} utils.SuccessResponse{data=models.User}
// @Failure 400 {object} utils.ErrorResponse
// @Failure 401 {object} utils.ErrorResponse
// @Router /user/signin [post]
func (h *ApplicationHandler) SignIn(c *fiber.Ctx) error {
	req := new(SignInRequest)
	if err := h.bind(c, req); err != nil {
		return h.fail(c, err)
	}

	me, err := h.Users.Me(c.UserContext(), req.AuthResult.AccessToken)
	if err != nil {
		h.Logger.WithError(err).Warn("Access token verification failed")
		return h.fail(c, apperr.Unauthorized("invalid access token"))
	}
	if claimed := req.AuthResult.User.UID; claimed != "" && claimed != me.UID {
		return h.fail(c, apperr.Unauthorized("access token belongs to another user"))
	}

	user := models.User{UID: me.UID, Username: me.Username}
	if err := h.Sessions.Issue(c, user); err != nil {
		return h.fail(c, apperr.Internal("user.signin", err))
	}
	h.Logger.WithFields(logrus.Fields{"uid": user.UID, "username": user.Username}).Info("User signed in")
	return utils.RespondWithJSON(c, fiber.StatusOK, user)
}

// SignOut godoc
// @Summary Sign out
// @Tags user
// @Produce json
// @Success 200 {object} utils.SuccessResponse
// @Router /user/signout [get]
func (h *ApplicationHandler) SignOut(c *fiber.Ctx) error {
	h.Sessions.Clear(c)
	return utils.RespondWithJSON(c, fiber.StatusOK, fiber.Map{"message": "User signed out"})
}
