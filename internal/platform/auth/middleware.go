package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// PassphraseHeader carries the record passphrase on view/edit requests.
const PassphraseHeader = "X-Record-Passphrase"

// DevUser is the identity assumed for unauthenticated development requests.
const DevUser = "dev-user"

// Authenticate requires a valid bearer token and puts its subject and roles
// on the request context.
func Authenticate(tokens *Tokens) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			if header == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}
			return verified(c, tokens, header, next)
		}
	}
}

// DevAuthenticate runs requests without an Authorization header as an
// admin. Requests that do send one are verified like Authenticate, so role
// checks can still be exercised locally.
func DevAuthenticate(tokens *Tokens) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			if header == "" {
				setContext(c, WithUser(c.Request().Context(), DevUser, []string{RoleAdmin}))
				return next(c)
			}
			return verified(c, tokens, header, next)
		}
	}
}

// Passphrase copies the record passphrase header onto the request context
// for PassphrasePolicy.
func Passphrase() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if p := c.Request().Header.Get(PassphraseHeader); p != "" {
				setContext(c, WithPassphrase(c.Request().Context(), p))
			}
			return next(c)
		}
	}
}

func verified(c echo.Context, tokens *Tokens, header string, next echo.HandlerFunc) error {
	raw, ok := bearer(header)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
	}
	claims, err := tokens.Verify(raw)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid token").SetInternal(err)
	}
	setContext(c, WithUser(c.Request().Context(), claims.Subject, claims.Roles))
	return next(c)
}

// bearer extracts the token from "Bearer <token>", case-insensitively.
func bearer(header string) (string, bool) {
	scheme, token, found := strings.Cut(header, " ")
	token = strings.TrimSpace(token)
	if !found || !strings.EqualFold(scheme, "bearer") || token == "" {
		return "", false
	}
	return token, true
}

func setContext(c echo.Context, ctx context.Context) {
	c.SetRequest(c.Request().WithContext(ctx))
}
