package middleware

import (
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/FCJuventus/DoPi-demo/internal/apperr"
	"github.com/FCJuventus/DoPi-demo/models"
	"github.com/FCJuventus/DoPi-demo/utils"
)

// SessionCookie is the name of the session cookie.
const SessionCookie = "dopi_session"

// SessionTTL is how long a sign-in lasts.
const SessionTTL = 7 * 24 * time.Hour

const localsUser = "user"

type sessionClaims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Sessions issues and reads HS256-signed session cookies.
type Sessions struct {
	secret []byte
	secure bool
	now    func() time.Time
}

// NewSessions builds the session codec. Production cookies are Secure and
// SameSite=None so a frontend on another origin can send them. An empty
// secret is replaced by a random one, which invalidates sessions on restart.
func NewSessions(secret string, production bool) *Sessions {
	if secret == "" {
		secret = uuid.NewString() + uuid.NewString()
	}
	return &Sessions{secret: []byte(secret), secure: production, now: time.Now}
}

// Issue signs u into the session cookie.
func (s *Sessions) Issue(c *fiber.Ctx, u models.User) error {
	token, expires, err := s.sign(u)
	if err != nil {
		return err
	}
	c.Cookie(s.cookie(token, expires))
	return nil
}

// Clear expires the session cookie.
func (s *Sessions) Clear(c *fiber.Ctx) {
	cookie := s.cookie("", time.Unix(0, 0))
	cookie.MaxAge = -1
	c.Cookie(cookie)
}

// Load reads the session cookie, when present and valid, into the request.
// Invalid cookies are ignored; routes that need a user use RequireSession.
func (s *Sessions) Load() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if raw := c.Cookies(SessionCookie); raw != "" {
			if u, err := s.parse(raw); err == nil {
				c.Locals(localsUser, u)
			}
		}
		return c.Next()
	}
}

// RequireSession rejects requests without a signed-in user.
func RequireSession() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if _, ok := CurrentUser(c); !ok {
			return utils.RespondWithAppError(c, apperr.Unauthorized("sign in first"))
		}
		return c.Next()
	}
}

// CurrentUser returns the signed-in user of the request.
func CurrentUser(c *fiber.Ctx) (models.User, bool) {
	u, ok := c.Locals(localsUser).(models.User)
	return u, ok && u.UID != ""
}

func (s *Sessions) cookie(value string, expires time.Time) *fiber.Cookie {
	sameSite := fiber.CookieSameSiteLaxMode
	if s.secure {
		sameSite = fiber.CookieSameSiteNoneMode
	}
	return &fiber.Cookie{
		Name:     SessionCookie,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		HTTPOnly: true,
		Secure:   s.secure,
		SameSite: sameSite,
	}
}

func (s *Sessions) sign(u models.User) (string, time.Time, error) {
	now := s.now()
	expires := now.Add(SessionTTL)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, sessionClaims{
		Username: u.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.UID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign session: %w", err)
	}
	return signed, expires, nil
}

func (s *Sessions) parse(raw string) (models.User, error) {
	parsed, err := jwt.ParseWithClaims(raw, &sessionClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil {
		return models.User{}, err
	}
	claims, ok := parsed.Claims.(*sessionClaims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return models.User{}, errors.New("invalid session")
	}
	return models.User{UID: claims.Subject, Username: claims.Username}, nil
}
