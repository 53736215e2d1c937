package cmd

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"evalgo.org/sparqlfed/auth"
)

// context keys set by AuthMiddleware
const (
	ctxSubject = "subject"
	ctxRole    = "role"
	ctxClaims  = "claims"
)

// AuthMiddleware accepts an x-api-key header or an Authorization Bearer
// token, depending on which credentials are configured. API key callers act
// as admin. With no credentials configured every request passes as admin.
func AuthMiddleware(keys *auth.KeyChecker, jwtSecret string) echo.MiddlewareFunc {
	mode := auth.ModeFor(keys.Configured(), jwtSecret != "")

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if mode == auth.ModeNone {
				c.Set(ctxSubject, "anonymous")
				c.Set(ctxRole, auth.RoleAdmin)
				return next(c)
			}

			if key := c.Request().Header.Get("x-api-key"); key != "" && mode != auth.ModeToken {
				if !keys.Check(key) {
					return echo.NewHTTPError(http.StatusUnauthorized, "Invalid API key")
				}
				c.Set(ctxSubject, "api-key")
				c.Set(ctxRole, auth.RoleAdmin)
				return next(c)
			}

			header := c.Request().Header.Get(echo.HeaderAuthorization)
			if token, ok := strings.CutPrefix(header, "Bearer "); ok && mode != auth.ModeAPIKey {
				claims, err := auth.ValidateToken(strings.TrimSpace(token), jwtSecret)
				if err != nil {
					return echo.NewHTTPError(http.StatusUnauthorized, "Invalid or expired token")
				}
				c.Set(ctxSubject, claims.Subject)
				c.Set(ctxRole, claims.Role)
				c.Set(ctxClaims, claims)
				return next(c)
			}

			switch mode {
			case auth.ModeAPIKey:
				return echo.NewHTTPError(http.StatusUnauthorized, "Missing x-api-key header")
			case auth.ModeToken:
				return echo.NewHTTPError(http.StatusUnauthorized, "Missing bearer token")
			default:
				return echo.NewHTTPError(http.StatusUnauthorized, "Missing credentials")
			}
		}
	}
}

// AdminOnlyMiddleware ensures only admin callers can access
func AdminOnlyMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role, _ := c.Get(ctxRole).(string)
			if role != auth.RoleAdmin {
				return echo.NewHTTPError(http.StatusForbidden, "Admin access required")
			}
			return next(c)
		}
	}
}

// ProjectAccessMiddleware rejects tokens that are restricted to other projects.
func ProjectAccessMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if claims, ok := c.Get(ctxClaims).(*auth.Claims); ok && !claims.CanAccess(c.Param("project")) {
				return echo.NewHTTPError(http.StatusForbidden, "Token does not grant access to this project")
			}
			return next(c)
		}
	}
}

// currentSubject returns the authenticated caller for audit entries.
func currentSubject(c echo.Context) string {
	if s, ok := c.Get(ctxSubject).(string); ok && s != "" {
		return s
	}
	return "unknown"
}
