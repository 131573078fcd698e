// Package middleware provides authentication, authorization, request id
// and rate limiting middleware for Bastion HTTP surfaces.
package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/xraph/forge"

	"github.com/xraph/bastion"
)

// Require allows the request only when the caller holds every listed
// permission. Denials never say which permission was missing.
func Require(eng *bastion.Engine, perms ...string) forge.Middleware {
	return func(next forge.Handler) forge.Handler {
		return func(ctx forge.Context) error {
			if err := requireAll(ctx.Context(), eng, perms); err != nil {
				return denyResponse(ctx, err)
			}
			return next(ctx)
		}
	}
}

// RequireAny allows the request if the caller holds ANY of the listed
// permissions.
func RequireAny(eng *bastion.Engine, perms ...string) forge.Middleware {
	return func(next forge.Handler) forge.Handler {
		return func(ctx forge.Context) error {
			if err := requireAny(ctx.Context(), eng, perms); err != nil {
				return denyResponse(ctx, err)
			}
			return next(ctx)
		}
	}
}

func requireAll(ctx context.Context, eng *bastion.Engine, perms []string) error {
	_, err := eng.AuthorizeContext(ctx, perms...)
	return err
}

func requireAny(ctx context.Context, eng *bastion.Engine, perms []string) error {
	p, ok := bastion.PrincipalFrom(ctx)
	if !ok {
		return bastion.ErrUnauthenticated
	}
	if len(perms) == 0 {
		return eng.Authorize(ctx, p)
	}
	for _, perm := range perms {
		if eng.Authorize(ctx, p, perm) == nil {
			return nil
		}
	}
	return bastion.ErrAccessDenied
}

func denyResponse(ctx forge.Context, err error) error {
	status, msg := denial(err)
	ctx.SetHeader("Content-Type", "application/json")
	ctx.Response().WriteHeader(status)
	return json.NewEncoder(ctx.Response()).Encode(map[string]string{"error": msg})
}

// denial maps a guard error to a status and a generic message.
func denial(err error) (int, string) {
	if errors.Is(err, bastion.ErrUnauthenticated) {
		return http.StatusUnauthorized, "unauthorized"
	}
	return http.StatusForbidden, "forbidden"
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
