package middleware

import (
	"net/url"
	"strings"

	"github.com/ManuelReschke/BudgetFox/internal/pkg/constants"
	"github.com/ManuelReschke/BudgetFox/internal/pkg/usercontext"
	"github.com/gofiber/fiber/v2"
)

// RequireAuth ensures a signed-in session; redirects to the sign-in page if missing.
func RequireAuth(signInRoute string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !usercontext.IsLoggedIn(c) {
			return c.Redirect(signInRedirect(signInRoute, c.OriginalURL()), fiber.StatusSeeOther)
		}
		return c.Next()
	}
}

// RequireAPISessionAuth ensures a signed-in session for API routes and returns JSON 401 instead of redirect.
func RequireAPISessionAuth(c *fiber.Ctx) error {
	if !usercontext.IsLoggedIn(c) {
		return unauthorizedJSON(c)
	}
	return c.Next()
}

func unauthorizedJSON(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"error":   "unauthorized",
		"message": "login required",
	})
}

func signInRedirect(signInRoute, returnTo string) string {
	if returnTo == "" || returnTo == "/" {
		return signInRoute
	}
	sep := "?"
	if strings.Contains(signInRoute, "?") {
		sep = "&"
	}
	return signInRoute + sep + "redirect_url=" + url.QueryEscape(returnTo)
}

func isAPIPath(path string) bool {
	return path == constants.APIRoute || strings.HasPrefix(path, constants.APIRoute+"/")
}
