package server

import (
	"context"
	"encoding/json"
	"net/http"
	"path"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"go.uber.org/zap"

	"homebid/internal/engine"
	"homebid/internal/identity"
	"homebid/internal/repo"
)

type AuthConfig struct {
	JWTSecret string
	Logger    *zap.Logger
}

type callerKey struct{}

func (c AuthConfig) logger() *zap.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return zap.NewNop()
}

func withAssertedCaller(ctx context.Context, c identity.Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, c)
}

func assertedCallerFromContext(ctx context.Context) (identity.Caller, bool) {
	c, ok := ctx.Value(callerKey{}).(identity.Caller)
	return c, ok
}

// callerFromRequest resolves the asserted identity against the user store,
// enforcing the active-account check on every request.
func callerFromRequest(ctx context.Context, e engine.Engine) (identity.Caller, huma.StatusError) {
	asserted, ok := assertedCallerFromContext(ctx)
	if !ok || asserted.UserID == "" {
		return identity.Caller{}, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
	}
	caller, err := e.ResolveCaller(ctx, asserted.UserID)
	if err != nil {
		return identity.Caller{}, handleError(err)
	}
	caller.Source = asserted.Source
	return caller, nil
}

func authenticateAPIKey(ctx context.Context, r repo.Repo, key string) (identity.Caller, error) {
	hash := identity.HashAPIKey(strings.TrimSpace(key))
	apiKey, err := r.GetAPIKeyByHash(ctx, hash)
	if err != nil {
		return identity.Caller{}, identity.ErrInvalidAssertion
	}
	return identity.Caller{UserID: apiKey.UserID, Source: "api_key"}, nil
}

func bearerToken(authz string) (string, bool) {
	parts := strings.Fields(authz)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

func newAuthMiddleware(basePath string, cfg AuthConfig, r repo.Repo) func(http.Handler) http.Handler {
	open := map[string]bool{
		path.Join(basePath, "health"):        true,
		path.Join(basePath, "auth/register"): true,
		path.Join(basePath, "auth/login"):    true,
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			// Only enforce for API base path.
			if basePath != "" && !strings.HasPrefix(req.URL.Path, basePath) {
				next.ServeHTTP(w, req)
				return
			}
			if open[req.URL.Path] {
				next.ServeHTTP(w, req)
				return
			}

			authz := strings.TrimSpace(req.Header.Get("Authorization"))
			apiKeyHeader := strings.TrimSpace(req.Header.Get("X-Api-Key"))

			if authz != "" {
				token, ok := bearerToken(authz)
				if !ok {
					respondStatusError(w, newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil))
					return
				}
				caller, err := identity.VerifyToken(token, cfg.JWTSecret)
				if err != nil {
					cfg.logger().Debug("token rejected", zap.Error(err))
					respondStatusError(w, newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil))
					return
				}
				next.ServeHTTP(w, req.WithContext(withAssertedCaller(req.Context(), caller)))
				return
			}

			if apiKeyHeader != "" {
				caller, err := authenticateAPIKey(req.Context(), r, apiKeyHeader)
				if err != nil {
					respondStatusError(w, newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil))
					return
				}
				next.ServeHTTP(w, req.WithContext(withAssertedCaller(req.Context(), caller)))
				return
			}

			respondStatusError(w, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil))
		})
	}
}

func respondStatusError(w http.ResponseWriter, err huma.StatusError) {
	status := http.StatusInternalServerError
	if e, ok := err.(interface{ GetStatus() int }); ok {
		status = e.GetStatus()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(err)
}
