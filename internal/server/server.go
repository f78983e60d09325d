package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"homebid/internal/domain"
	"homebid/internal/engine"
	"homebid/internal/engine/auth"
	"homebid/internal/identity"
	"homebid/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
	Logger   *zap.Logger
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"not_owner"`
	Message string         `json:"message" example:"project.update denied: not_owner"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

type bodyBytesKey struct{}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the HomeBid API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Auth.Logger == nil {
		cfg.Auth.Logger = log
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the envelope above.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema validation failures surface as bad requests.
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	m := newMetrics()
	router := chi.NewRouter()
	router.Use(m.middleware)
	router.Use(requestLogger(log))
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			ctx := context.WithValue(r.Context(), bodyBytesKey{}, bodyBytes)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	hcfg := huma.DefaultConfig("HomeBid API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	router.Method(http.MethodGet, "/metrics", m.handler())
	registerDocs(router, basePath)
	registerHealth(group)
	registerAuth(group, cfg.Engine, cfg.Auth)
	registerUsers(group, cfg.Engine)
	registerProjects(group, cfg.Engine)
	registerBids(group, cfg.Engine, m)
	registerMilestones(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			log.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rec.status),
				zap.Duration("duration", time.Since(start)))
		})
	}
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	if errors.Is(err, identity.ErrInvalidAssertion) || errors.Is(err, identity.ErrInactiveAccount) {
		return newAPIError(http.StatusUnauthorized, "invalid_credentials", err.Error(), nil)
	}
	var de auth.DeniedError
	if errors.As(err, &de) {
		switch de.Reason {
		case auth.ReasonResourceNotOpen:
			return newAPIError(http.StatusUnprocessableEntity, de.Reason, err.Error(), map[string]any{"action": de.Action})
		case auth.ReasonDuplicateBid:
			return newAPIError(http.StatusConflict, de.Reason, err.Error(), map[string]any{"action": de.Action})
		default:
			return newAPIError(http.StatusForbidden, de.Reason, err.Error(), map[string]any{"action": de.Action})
		}
	}
	var te engine.InvalidTransitionError
	if errors.As(err, &te) {
		return newAPIError(http.StatusUnprocessableEntity, "invalid_transition", err.Error(), map[string]any{
			"entity": te.Entity, "from": te.From, "to": te.To,
		})
	}
	if errors.Is(err, engine.ErrProjectAlreadyCommitted) {
		return newAPIError(http.StatusConflict, "project_already_committed", err.Error(), nil)
	}
	if errors.Is(err, engine.ErrDuplicateBid) {
		return newAPIError(http.StatusConflict, "duplicate_bid", err.Error(), nil)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "already registered"):
		return newAPIError(http.StatusConflict, "email_taken", msg, nil)
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "required") ||
		strings.Contains(lowered, "unknown") || strings.Contains(lowered, "must be") ||
		strings.Contains(lowered, "below minimum") || strings.Contains(lowered, "exceeds"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func bodyBytes(ctx context.Context) []byte {
	b, _ := ctx.Value(bodyBytesKey{}).([]byte)
	return b
}

func stringOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	oas.Components.SecuritySchemes["apiKeyAuth"] = &huma.SecurityScheme{
		Type: "apiKey",
		In:   "header",
		Name: "X-Api-Key",
	}
	security := []map[string][]string{
		{"bearerAuth": {}},
		{"apiKeyAuth": {}},
	}
	oas.Security = security
	open := map[string]bool{
		joinPath(basePath, "health"):        true,
		joinPath(basePath, "auth/register"): true,
		joinPath(basePath, "auth/login"):    true,
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if open[route] {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func joinPath(basePath, p string) string {
	joined := path.Join(basePath, p)
	if !strings.HasPrefix(joined, "/") {
		joined = "/" + joined
	}
	return joined
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>HomeBid API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt; or X-Api-Key.
    </p>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerAuth(api huma.API, e engine.Engine, authCfg AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID:   "register",
		Method:        http.MethodPost,
		Path:          "/auth/register",
		Summary:       "Register account",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusConflict,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body RegisterRequest `json:"body"`
	}) (*struct {
		Body TokenResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		u, err := e.Register(ctx, engine.RegisterOptions{
			Email:           input.Body.Email,
			Password:        input.Body.Password,
			FirstName:       input.Body.FirstName,
			LastName:        input.Body.LastName,
			Role:            input.Body.Role,
			Phone:           stringOrEmpty(input.Body.Phone),
			Bio:             stringOrEmpty(input.Body.Bio),
			YearsExperience: input.Body.YearsExperience,
			Specializations: input.Body.Specializations,
		})
		if err != nil {
			return nil, handleError(err)
		}
		token, err := identity.MintToken(authCfg.JWTSecret, u.ID, u.Role, tokenTTL(e), e.Now())
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TokenResponse `json:"body"`
		}{Body: TokenResponse{Token: token, User: userResponse(u)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "login",
		Method:      http.MethodPost,
		Path:        "/auth/login",
		Summary:     "Log in",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body LoginRequest `json:"body"`
	}) (*struct {
		Body TokenResponse `json:"body"`
	}, error) {
		u, err := e.Login(ctx, input.Body.Email, input.Body.Password)
		if err != nil {
			return nil, handleError(err)
		}
		token, err := identity.MintToken(authCfg.JWTSecret, u.ID, u.Role, tokenTTL(e), e.Now())
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TokenResponse `json:"body"`
		}{Body: TokenResponse{Token: token, User: userResponse(u)}}, nil
	})
}

func tokenTTL(e engine.Engine) time.Duration {
	hours := e.Config.Server.TokenTTL
	if hours <= 0 {
		hours = 24
	}
	return time.Duration(hours) * time.Hour
}

func registerUsers(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current account",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body UserResponse `json:"body"`
	}, error) {
		caller, authErr := callerFromRequest(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		u, err := e.Repo.GetUser(ctx, caller.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body UserResponse `json:"body"`
		}{Body: userResponse(u)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-me",
		Method:      http.MethodPatch,
		Path:        "/me",
		Summary:     "Update profile",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body UpdateProfileRequest `json:"body"`
	}) (*struct {
		Body UserResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		caller, authErr := callerFromRequest(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		u, err := e.UpdateProfile(ctx, caller, engine.ProfileUpdateOptions{
			FirstName:       input.Body.FirstName,
			LastName:        input.Body.LastName,
			Phone:           input.Body.Phone,
			Bio:             input.Body.Bio,
			YearsExperience: input.Body.YearsExperience,
			Specializations: input.Body.Specializations,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body UserResponse `json:"body"`
		}{Body: userResponse(u)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-api-key",
		Method:        http.MethodPost,
		Path:          "/me/api-keys",
		Summary:       "Create API key",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusUnauthorized,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateAPIKeyRequest `json:"body"`
	}) (*struct {
		Body APIKeyResponse `json:"body"`
	}, error) {
		caller, authErr := callerFromRequest(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		plaintext, err := identity.NewAPIKey()
		if err != nil {
			return nil, handleError(err)
		}
		key := apiKeyFor(e, caller.UserID, input.Body.Name, plaintext)
		if err := e.Repo.InsertAPIKey(ctx, nil, key); err != nil {
			return nil, handleError(err)
		}
		res := apiKeyResponse(key)
		res.Key = plaintext
		return &struct {
			Body APIKeyResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-api-keys",
		Method:      http.MethodGet,
		Path:        "/me/api-keys",
		Summary:     "List API keys",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []APIKeyResponse `json:"body"`
	}, error) {
		caller, authErr := callerFromRequest(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		keys, err := e.Repo.ListAPIKeys(ctx, caller.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]APIKeyResponse, 0, len(keys))
		for _, k := range keys {
			res = append(res, apiKeyResponse(k))
		}
		return &struct {
			Body []APIKeyResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-api-key",
		Method:      http.MethodDelete,
		Path:        "/me/api-keys/{id}",
		Summary:     "Delete API key",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		caller, authErr := callerFromRequest(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.Repo.DeleteAPIKey(ctx, input.ID, caller.UserID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-contractors",
		Method:      http.MethodGet,
		Path:        "/users/contractors",
		Summary:     "Browse contractors",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Specialization string `query:"specialization" doc:"Only contractors offering this specialization"`
	}) (*struct {
		Body []UserResponse `json:"body"`
	}, error) {
		caller, authErr := callerFromRequest(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		users, err := e.ListContractors(ctx, caller, input.Specialization)
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]UserResponse, 0, len(users))
		for _, u := range users {
			res = append(res, userResponse(u))
		}
		return &struct {
			Body []UserResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-user",
		Method:      http.MethodGet,
		Path:        "/users/{id}",
		Summary:     "Public profile",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body UserResponse `json:"body"`
	}, error) {
		caller, authErr := callerFromRequest(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		u, err := e.GetUserProfile(ctx, caller, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body UserResponse `json:"body"`
		}{Body: userResponse(u)}, nil
	})
}

func apiKeyFor(e engine.Engine, userID, name, plaintext string) domain.APIKey {
	return domain.APIKey{
		ID:        uuid.NewString(),
		UserID:    userID,
		Name:      name,
		KeyHash:   identity.HashAPIKey(plaintext),
		CreatedAt: e.Now().UTC().Format(time.RFC3339),
	}
}

func registerProjects(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-project",
		Method:        http.MethodPost,
		Path:          "/projects",
		Summary:       "Create project",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateProjectRequest `json:"body"`
	}) (*struct {
		Body ProjectResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		caller, authErr := callerFromRequest(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.CreateProject(ctx, caller, engine.ProjectCreateOptions{
			Title:             input.Body.Title,
			Description:       stringOrEmpty(input.Body.Description),
			Location:          stringOrEmpty(input.Body.Location),
			Category:          input.Body.Category,
			Urgency:           stringOrEmpty(input.Body.Urgency),
			Budget:            input.Body.Budget,
			Open:              input.Body.Open,
			ExpectedStartDate: input.Body.ExpectedStartDate,
			ExpectedEndDate:   input.Body.ExpectedEndDate,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProjectResponse `json:"body"`
		}{Body: projectResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-projects",
		Method:      http.MethodGet,
		Path:        "/projects",
		Summary:     "List projects",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Status   string `query:"status" enum:"draft,open,in_progress,completed,cancelled,"`
		Category string `query:"category"`
		Limit    int    `query:"limit" default:"50" minimum:"1" maximum:"200"`
	}) (*struct {
		Body []ProjectResponse `json:"body"`
	}, error) {
		caller, authErr := callerFromRequest(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListProjects(ctx, caller, repo.ProjectFilters{
			Status:   input.Status,
			Category: input.Category,
			Limit:    input.Limit,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []ProjectResponse `json:"body"`
		}{Body: mapProjects(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-project",
		Method:      http.MethodGet,
		Path:        "/projects/{id}",
		Summary:     "Get project",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body ProjectResponse `json:"body"`
	}, error) {
		caller, authErr := callerFromRequest(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.GetProject(ctx, caller, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProjectResponse `json:"body"`
		}{Body: projectResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-project",
		Method:      http.MethodPatch,
		Path:        "/projects/{id}",
		Summary:     "Update project",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ID   string               `path:"id"`
		Body UpdateProjectRequest `json:"body"`
	}) (*struct {
		Body ProjectResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		caller, authErr := callerFromRequest(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.UpdateProject(ctx, caller, input.ID, engine.ProjectUpdateOptions{
			Title:             input.Body.Title,
			Description:       input.Body.Description,
			Location:          input.Body.Location,
			Category:          input.Body.Category,
			Urgency:           input.Body.Urgency,
			Budget:            input.Body.Budget,
			ExpectedStartDate: input.Body.ExpectedStartDate,
			ExpectedEndDate:   input.Body.ExpectedEndDate,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProjectResponse `json:"body"`
		}{Body: projectResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-project-status",
		Method:      http.MethodPatch,
		Path:        "/projects/{id}/status",
		Summary:     "Update project status",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		ID   string           `path:"id"`
		Body SetStatusRequest `json:"body"`
	}) (*struct {
		Body ProjectResponse `json:"body"`
	}, error) {
		if input.Body.Status == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "status is required", nil)
		}
		caller, authErr := callerFromRequest(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.SetProjectStatus(ctx, caller, input.ID, input.Body.Status)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProjectResponse `json:"body"`
		}{Body: projectResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-project",
		Method:      http.MethodDelete,
		Path:        "/projects/{id}",
		Summary:     "Delete project",
		Errors: []int{
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		caller, authErr := callerFromRequest(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteProject(ctx, caller, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerBids(api huma.API, e engine.Engine, m *metrics) {
	huma.Register(api, huma.Operation{
		OperationID:   "submit-bid",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/bids",
		Summary:       "Submit bid",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string           `path:"project_id"`
		Body      CreateBidRequest `json:"body"`
	}) (*struct {
		Body BidResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		caller, authErr := callerFromRequest(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		b, err := e.SubmitBid(ctx, caller, input.ProjectID, engine.BidCreateOptions{
			Price:             input.Body.Price,
			EstimatedDuration: input.Body.EstimatedDuration,
			Description:       stringOrEmpty(input.Body.Description),
			ProposedStartDate: input.Body.ProposedStartDate,
			WarrantyMonths:    input.Body.WarrantyMonths,
			ValidUntil:        input.Body.ValidUntil,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body BidResponse `json:"body"`
		}{Body: bidResponse(b)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-project-bids",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/bids",
		Summary:     "List project bids",
		Errors: []int{
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body []BidResponse `json:"body"`
	}, error) {
		caller, authErr := callerFromRequest(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListProjectBids(ctx, caller, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []BidResponse `json:"body"`
		}{Body: mapBids(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-bids",
		Method:      http.MethodGet,
		Path:        "/bids",
		Summary:     "List bids",
		Description: "Cross-project listing scoped by role: contractors see their own bids, homeowners see bids on their projects, project managers see all.",
		Errors: []int{
			http.StatusUnauthorized,
			http.StatusForbidden,
		},
	}, func(ctx context.Context, input *struct {
		Status string `query:"status"`
		Limit  int    `query:"limit" default:"50" minimum:"1" maximum:"200"`
	}) (*struct {
		Body []BidResponse `json:"body"`
	}, error) {
		caller, authErr := callerFromRequest(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListBids(ctx, caller, repo.BidFilters{Status: input.Status, Limit: input.Limit})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []BidResponse `json:"body"`
		}{Body: mapBids(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-bid",
		Method:      http.MethodGet,
		Path:        "/bids/{id}",
		Summary:     "Get bid",
		Errors: []int{
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body BidResponse `json:"body"`
	}, error) {
		caller, authErr := callerFromRequest(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		b, err := e.GetBid(ctx, caller, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body BidResponse `json:"body"`
		}{Body: bidResponse(b)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-bid",
		Method:      http.MethodPatch,
		Path:        "/bids/{id}",
		Summary:     "Update bid",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		ID   string           `path:"id"`
		Body UpdateBidRequest `json:"body"`
	}) (*struct {
		Body BidResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		caller, authErr := callerFromRequest(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		b, err := e.UpdateBid(ctx, caller, input.ID, engine.BidUpdateOptions{
			Price:             input.Body.Price,
			EstimatedDuration: input.Body.EstimatedDuration,
			Description:       input.Body.Description,
			ProposedStartDate: input.Body.ProposedStartDate,
			WarrantyMonths:    input.Body.WarrantyMonths,
			ValidUntil:        input.Body.ValidUntil,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body BidResponse `json:"body"`
		}{Body: bidResponse(b)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-bid-status",
		Method:      http.MethodPatch,
		Path:        "/bids/{id}/status",
		Summary:     "Update bid status",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		ID   string           `path:"id"`
		Body SetStatusRequest `json:"body"`
	}) (*struct {
		Body BidResponse `json:"body"`
	}, error) {
		if input.Body.Status == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "status is required", nil)
		}
		caller, authErr := callerFromRequest(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		b, err := e.SetBidStatus(ctx, caller, input.ID, input.Body.Status)
		if err != nil {
			if errors.Is(err, engine.ErrProjectAlreadyCommitted) {
				m.conflicts.Inc()
			}
			return nil, handleError(err)
		}
		if b.Status == "accepted" {
			m.cascades.Inc()
		}
		return &struct {
			Body BidResponse `json:"body"`
		}{Body: bidResponse(b)}, nil
	})
}

func registerMilestones(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-milestone",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/milestones",
		Summary:       "Create milestone",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string                 `path:"project_id"`
		Body      CreateMilestoneRequest `json:"body"`
	}) (*struct {
		Body MilestoneResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		caller, authErr := callerFromRequest(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		opts := engine.MilestoneCreateOptions{
			Title:              input.Body.Title,
			Description:        stringOrEmpty(input.Body.Description),
			AssignedTo:         input.Body.AssignedTo,
			PaymentAmount:      input.Body.PaymentAmount,
			Notes:              stringOrEmpty(input.Body.Notes),
			EstimatedStartDate: input.Body.EstimatedStartDate,
			EstimatedEndDate:   input.Body.EstimatedEndDate,
		}
		if input.Body.Order != nil {
			opts.Order = *input.Body.Order
		}
		ms, err := e.CreateMilestone(ctx, caller, input.ProjectID, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MilestoneResponse `json:"body"`
		}{Body: milestoneResponse(ms)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-milestones",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/milestones",
		Summary:     "List project milestones",
		Errors: []int{
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body []MilestoneResponse `json:"body"`
	}, error) {
		caller, authErr := callerFromRequest(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListMilestones(ctx, caller, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []MilestoneResponse `json:"body"`
		}{Body: mapMilestones(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-milestone",
		Method:      http.MethodGet,
		Path:        "/milestones/{id}",
		Summary:     "Get milestone",
		Errors: []int{
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body MilestoneResponse `json:"body"`
	}, error) {
		caller, authErr := callerFromRequest(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		ms, err := e.GetMilestone(ctx, caller, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MilestoneResponse `json:"body"`
		}{Body: milestoneResponse(ms)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-milestone",
		Method:      http.MethodPatch,
		Path:        "/milestones/{id}",
		Summary:     "Update milestone",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ID   string                 `path:"id"`
		Body UpdateMilestoneRequest `json:"body"`
	}) (*struct {
		Body MilestoneResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		caller, authErr := callerFromRequest(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		ms, err := e.UpdateMilestone(ctx, caller, input.ID, engine.MilestoneUpdateOptions{
			Title:              input.Body.Title,
			Description:        input.Body.Description,
			Order:              input.Body.Order,
			AssignedTo:         input.Body.AssignedTo,
			PaymentAmount:      input.Body.PaymentAmount,
			Notes:              input.Body.Notes,
			EstimatedStartDate: input.Body.EstimatedStartDate,
			EstimatedEndDate:   input.Body.EstimatedEndDate,
			ActualStartDate:    input.Body.ActualStartDate,
			ActualEndDate:      input.Body.ActualEndDate,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MilestoneResponse `json:"body"`
		}{Body: milestoneResponse(ms)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-milestone-status",
		Method:      http.MethodPatch,
		Path:        "/milestones/{id}/status",
		Summary:     "Update milestone status",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		ID   string           `path:"id"`
		Body SetStatusRequest `json:"body"`
	}) (*struct {
		Body MilestoneResponse `json:"body"`
	}, error) {
		if input.Body.Status == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "status is required", nil)
		}
		caller, authErr := callerFromRequest(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		ms, err := e.SetMilestoneStatus(ctx, caller, input.ID, input.Body.Status)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MilestoneResponse `json:"body"`
		}{Body: milestoneResponse(ms)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-milestone",
		Method:      http.MethodDelete,
		Path:        "/milestones/{id}",
		Summary:     "Delete milestone",
		Errors: []int{
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		caller, authErr := callerFromRequest(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteMilestone(ctx, caller, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-project-events",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/events",
		Summary:     "List project events",
		Errors: []int{
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID  string `path:"project_id"`
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit" default:"50" minimum:"1" maximum:"200"`
	}) (*struct {
		Body []EventResponse `json:"body"`
	}, error) {
		caller, authErr := callerFromRequest(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.GetProject(ctx, caller, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.LatestEvents(ctx, input.Limit, p.ID, input.Type, input.EntityKind, input.EntityID)
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]EventResponse, 0, len(items))
		for _, ev := range items {
			res = append(res, eventResponse(ev))
		}
		return &struct {
			Body []EventResponse `json:"body"`
		}{Body: res}, nil
	})
}
