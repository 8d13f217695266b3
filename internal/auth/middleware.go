package auth

import (
	"fmt"
	"net/http"
	"strings"

	"key-service/internal/rbac"
	"key-service/internal/rbac/presets"
	apperrors "key-service/pkg/errors"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type Middleware struct {
	jwtService *JWTService
	stations   *StationKeys
	checker    *rbac.Checker
}

func NewMiddleware(jwtService *JWTService, stations *StationKeys, checker *rbac.Checker) *Middleware {
	return &Middleware{
		jwtService: jwtService,
		stations:   stations,
		checker:    checker,
	}
}

// RequireJWT authenticates users by bearer token and records their role.
func (m *Middleware) RequireJWT() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := extractBearerToken(c)
			if token == "" {
				return respondError(c, http.StatusUnauthorized, msgMissingAuthorization)
			}

			claims, err := m.jwtService.Verify(token)
			if err != nil {
				return respondError(c, http.StatusUnauthorized, msgInvalidOrExpiredToken)
			}

			role, err := m.checker.ValidateRole(string(claims.Role))
			if err != nil {
				return respondError(c, http.StatusUnauthorized, fmt.Errorf(msgInvalidRoleFmt, err).Error())
			}

			c.Set(ContextKeyActorID, claims.UserID)
			c.Set(ContextKeySubject, &rbac.AuthSubject{Type: rbac.AuthTypeJWT, UserRole: role})
			c.Set(ContextKeyAuthType, AuthTypeJWT)

			return next(c)
		}
	}
}

// RequireStation authenticates security-desk stations by their shared key.
func (m *Middleware) RequireStation() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := strings.TrimSpace(c.Request().Header.Get(headerStationKey))
			if key == "" {
				return respondError(c, http.StatusUnauthorized, msgMissingStationKey)
			}

			stationID, ok := m.stations.Identify(key)
			if !ok {
				return respondError(c, http.StatusUnauthorized, msgInvalidStationKey)
			}

			c.Set(ContextKeyActorID, stationID)
			c.Set(ContextKeySubject, &rbac.AuthSubject{
				Type:        rbac.AuthTypeStation,
				Permissions: []rbac.Permission{presets.PermissionHandover},
			})
			c.Set(ContextKeyAuthType, AuthTypeStation)

			return next(c)
		}
	}
}

// Require rejects callers who may not perform action on resource.
func (m *Middleware) Require(resource rbac.Resource, action rbac.Action) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if err := m.checker.Authorize(GetSubject(c), resource, action); err != nil {
				return respondError(c, http.StatusForbidden, err.Error())
			}
			return next(c)
		}
	}
}

// extractBearerToken reads the Authorization header. Browsers cannot set
// headers on WebSocket upgrades, so those may carry the token as a query
// parameter instead.
func extractBearerToken(c echo.Context) string {
	authHeader := c.Request().Header.Get(headerAuthorization)
	if authHeader == "" {
		if strings.EqualFold(c.Request().Header.Get(echo.HeaderUpgrade), websocketUpgrade) {
			return c.QueryParam(queryAccessToken)
		}
		return ""
	}

	parts := strings.Fields(authHeader)
	if len(parts) != authHeaderParts || strings.ToLower(parts[0]) != bearerScheme {
		return ""
	}

	return parts[1]
}

func respondError(c echo.Context, status int, message string) error {
	return c.JSON(status, map[string]string{jsonKeyError: message})
}

func GetActorID(c echo.Context) (uuid.UUID, error) {
	actorID := c.Get(ContextKeyActorID)
	if actorID == nil {
		return uuid.Nil, apperrors.Unauthorized(msgActorNotAuthenticated)
	}

	id, ok := actorID.(uuid.UUID)
	if !ok {
		return uuid.Nil, apperrors.InternalServer(msgInvalidActorIDCtx, nil)
	}

	return id, nil
}

func GetSubject(c echo.Context) *rbac.AuthSubject {
	subject, _ := c.Get(ContextKeySubject).(*rbac.AuthSubject)
	return subject
}

func GetAuthType(c echo.Context) AuthType {
	t, _ := c.Get(ContextKeyAuthType).(AuthType)
	return t
}
