package middleware

import (
	"github.com/ManuelReschke/BudgetFox/internal/pkg/identity"
	"github.com/ManuelReschke/BudgetFox/internal/pkg/usercontext"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// SessionVerifier validates session tokens.
type SessionVerifier interface {
	Verify(token string) (*identity.Session, error)
}

// UserContextMiddleware sets up the user context for every request from the
// identity provider session token. Missing or invalid tokens yield an
// anonymous context; the route guards decide what that means.
func UserContextMiddleware(verifier SessionVerifier, cookieName string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := identity.ExtractToken(c.Cookies(cookieName), c.Get(fiber.HeaderAuthorization))
		if token == "" || verifier == nil {
			usercontext.Set(c, usercontext.UserContext{IsLoggedIn: false})
			return c.Next()
		}

		s, err := verifier.Verify(token)
		if err != nil {
			log.Debug().Err(err).Str("path", c.Path()).Msg("session token rejected")
			usercontext.Set(c, usercontext.UserContext{IsLoggedIn: false})
			return c.Next()
		}

		usercontext.Set(c, usercontext.UserContext{
			UserID:     s.UserID,
			Email:      s.Email,
			IsLoggedIn: true,
			Mirror:     s.Mirror,
		})
		return c.Next()
	}
}
