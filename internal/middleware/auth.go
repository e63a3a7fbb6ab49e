package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"mealorder-service/internal/authz"
	"mealorder-service/internal/model"
	"mealorder-service/internal/session"
	"mealorder-service/pkg/jwtutil"
	"mealorder-service/pkg/logger"
	"mealorder-service/prometheus"
)

const principalKey = "principal"

// AuthMiddleware validates the JWT from the Authorization header, checks it
// against the session revocation ledger, and stores the trusted principal
// tuple in the request context.
func AuthMiddleware(ledger *session.Ledger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			log := logger.FromContext(c)

			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				log.Warn("Missing Authorization header")
				prometheus.RecordAuthError("missing_token")
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing authorization token"})
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				log.Warn("Invalid Authorization header format")
				prometheus.RecordAuthError("invalid_auth_format")
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid authorization format, expected Bearer token"})
			}

			claims, err := jwtutil.ValidateToken(parts[1])
			if err != nil {
				log.Warn("Invalid JWT token", zap.Error(err))
				prometheus.RecordAuthError("invalid_token")
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid or expired token"})
			}

			// A credential issued before the latest revocation cut is dead
			// regardless of its own expiry.
			if claims.IssuedAt != nil && ledger.Revoked(claims.Role, claims.IssuedAt.Time) {
				log.Warn("Revoked token rejected",
					zap.Uint("user_id", claims.UserID),
					zap.Time("issued_at", claims.IssuedAt.Time))
				prometheus.RecordAuthError("revoked_token")
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "session revoked, please log in again"})
			}

			if claims.Status == model.StatusSuspended || claims.Status == model.StatusRejected {
				log.Warn("Blocked account rejected",
					zap.Uint("user_id", claims.UserID),
					zap.String("status", claims.Status))
				prometheus.RecordAuthError("blocked_account")
				return c.JSON(http.StatusForbidden, echo.Map{"error": "account is not allowed to access the service"})
			}

			c.Set(principalKey, authz.Principal{
				UserID:       claims.UserID,
				UniversityID: claims.UniversityID,
				Role:         claims.Role,
				Status:       claims.Status,
			})

			log.Debug("Request authenticated",
				zap.Uint("user_id", claims.UserID),
				zap.String("role", claims.Role))

			return next(c)
		}
	}
}

// PrincipalFromContext retrieves the principal stored by AuthMiddleware.
func PrincipalFromContext(c echo.Context) (authz.Principal, bool) {
	p, ok := c.Get(principalKey).(authz.Principal)
	return p, ok
}
