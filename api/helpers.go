package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/xraph/forge"

	"github.com/xraph/bastion"
)

// errorStatus maps a domain error to an HTTP status and a client-safe
// message. Unknown errors map to 500 and are not described.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, bastion.ErrInvalidInput):
		return http.StatusBadRequest, err.Error()
	case isNotFound(err):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, bastion.ErrDuplicateRole), errors.Is(err, bastion.ErrDuplicateEmail):
		return http.StatusConflict, err.Error()
	case errors.Is(err, bastion.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid credentials"
	case errors.Is(err, bastion.ErrInvalidToken):
		return http.StatusUnauthorized, "invalid token"
	case errors.Is(err, bastion.ErrUnauthenticated):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, bastion.ErrAccessDenied):
		return http.StatusForbidden, "forbidden"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, bastion.ErrRoleNotFound) ||
		errors.Is(err, bastion.ErrUserNotFound) ||
		errors.Is(err, bastion.ErrCompanyNotFound) ||
		errors.Is(err, bastion.ErrModuleNotFound) ||
		errors.Is(err, bastion.ErrPermissionNotFound)
}

// fail writes err as an API error. Statuses forge has helpers for go
// through them; the rest are written as an ErrorResponse.
func (a *API) fail(ctx forge.Context, err error) error {
	status, msg := errorStatus(err)
	switch status {
	case http.StatusBadRequest:
		return forge.BadRequest(msg)
	case http.StatusNotFound:
		return forge.NotFound(msg)
	case http.StatusForbidden:
		return forge.Forbidden(msg)
	case http.StatusInternalServerError:
		a.eng.Logger().Error("bastion: api request failed", slog.String("error", err.Error()))
		return ctx.JSON(status, ErrorResponse{Error: msg})
	default:
		return ctx.JSON(status, ErrorResponse{Error: msg})
	}
}

// guard returns the caller when they hold every listed permission.
func (a *API) guard(ctx forge.Context, perms ...string) (bastion.Principal, error) {
	return a.eng.AuthorizeContext(ctx.Context(), perms...)
}

// caller returns the authenticated caller without a permission check.
func (a *API) caller(ctx forge.Context) (bastion.Principal, error) {
	p, ok := bastion.PrincipalFrom(ctx.Context())
	if !ok {
		return bastion.Principal{}, bastion.ErrUnauthenticated
	}
	return p, nil
}

func defaultLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	if limit > 1000 {
		return 1000
	}
	return limit
}
