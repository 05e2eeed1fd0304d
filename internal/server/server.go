package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"taskdesk/internal/domain"
	"taskdesk/internal/engine"
	"taskdesk/internal/engine/auth"
	"taskdesk/internal/repo"
	"taskdesk/internal/storage"
	"taskdesk/internal/workflow"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig

	// Context stops background workers such as the webhook dispatcher.
	// Defaults to context.Background.
	Context context.Context
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"validation_failed"`
	Message string         `json:"message" example:"work_description: at least 500 characters, got 499"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Taskdesk API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the envelope.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors should be 400 bad_request
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	hcfg := huma.DefaultConfig("Taskdesk API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group, cfg.Engine)
	registerAuth(group, cfg.Engine, cfg.Auth)
	registerAdmin(group, cfg.Engine)
	registerDepartments(group, cfg.Engine)
	registerTasks(group, cfg.Engine)
	registerAssignments(group, cfg.Engine)
	registerCompletions(group, cfg.Engine)
	registerProposals(group, cfg.Engine)
	registerNotifications(group, cfg.Engine)
	registerChat(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerUploads(router, cfg.Engine, basePath)
	registerOpenAPI(router, api, basePath)

	dispatcherCtx := cfg.Context
	if dispatcherCtx == nil {
		dispatcherCtx = context.Background()
	}
	startWebhookDispatcher(dispatcherCtx, cfg.Engine)

	return router, nil
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
	var ve engine.ValidationError
	if errors.As(err, &ve) {
		return newAPIError(http.StatusUnprocessableEntity, "validation_failed", err.Error(), map[string]any{"field": ve.Field})
	}
	var te workflow.TransitionError
	if errors.As(err, &te) {
		return newAPIError(http.StatusConflict, "invalid_transition", err.Error(), map[string]any{
			"entity": te.Entity, "from": te.From, "to": te.To,
		})
	}
	var fe storage.FileError
	if errors.As(err, &fe) {
		return newAPIError(http.StatusUnprocessableEntity, "file_rejected", err.Error(), map[string]any{"file": fe.File})
	}
	var forbidden auth.ForbiddenError
	if errors.As(err, &forbidden) {
		return newAPIError(http.StatusForbidden, "forbidden", err.Error(), nil)
	}
	if errors.Is(err, auth.ErrInvalidCredentials) {
		return newAPIError(http.StatusUnauthorized, "invalid_credentials", err.Error(), nil)
	}
	if errors.Is(err, auth.ErrNotApproved) {
		return newAPIError(http.StatusForbidden, "not_approved", err.Error(), nil)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	if strings.Contains(lowered, "unique") || strings.Contains(lowered, "constraint") {
		return newAPIError(http.StatusConflict, "conflict", msg, nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
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
	public := map[string]bool{
		path.Join(basePath, "health"):        true,
		path.Join(basePath, "auth/register"): true,
		path.Join(basePath, "auth/login"):    true,
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if public[route] {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Taskdesk API Docs</title>
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

func registerHealth(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check with store ping",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		status := "ok"
		if err := e.DB.PingContext(ctx); err != nil {
			return nil, newAPIError(http.StatusServiceUnavailable, "store_unavailable", err.Error(), nil)
		}
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": status}}, nil
	})
}

func registerAuth(api huma.API, e engine.Engine, authCfg AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID:   "register",
		Method:        http.MethodPost,
		Path:          "/auth/register",
		Summary:       "Register a new account (requires admin approval)",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		Body RegisterRequest `json:"body"`
	}) (*struct {
		Body domain.User `json:"body"`
	}, error) {
		u, err := e.RegisterUser(ctx, input.Body.Name, input.Body.Email, input.Body.Password)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.User `json:"body"`
		}{Body: u}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "login",
		Method:      http.MethodPost,
		Path:        "/auth/login",
		Summary:     "Exchange credentials for a token",
	}, func(ctx context.Context, input *struct {
		Body LoginRequest `json:"body"`
	}) (*struct {
		Body TokenResponse `json:"body"`
	}, error) {
		u, err := e.Login(ctx, input.Body.Email, input.Body.Password)
		if err != nil {
			return nil, handleError(err)
		}
		token, err := issueToken(authCfg, u, e.Now())
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TokenResponse `json:"body"`
		}{Body: TokenResponse{Token: token, User: u}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current user",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body domain.User `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		u, err := e.Repo.GetUser(ctx, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.User `json:"body"`
		}{Body: u}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-api-key",
		Method:        http.MethodPost,
		Path:          "/me/api-keys",
		Summary:       "Mint an API key; the raw key is returned once",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		Body CreateAPIKeyRequest `json:"body"`
	}) (*struct {
		Body APIKeyResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		key, raw, err := e.CreateAPIKey(ctx, userID, input.Body.Name)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body APIKeyResponse `json:"body"`
		}{Body: APIKeyResponse{ID: key.ID, Name: key.Name, Key: raw, CreatedAt: key.CreatedAt}}, nil
	})
}

func registerAdmin(api huma.API, e engine.Engine) {
	type userPath struct {
		UserID string `path:"user_id"`
	}
	huma.Register(api, huma.Operation{
		OperationID: "admin-list-users",
		Method:      http.MethodGet,
		Path:        "/admin/users",
		Summary:     "List users",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.User `json:"body"`
	}, error) {
		if err := requireAdmin(ctx); err != nil {
			return nil, err
		}
		users, err := e.Repo.ListUsers(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.User `json:"body"`
		}{Body: users}, nil
	})

	approveHandler := func(approved bool) func(ctx context.Context, input *userPath) (*struct {
		Body domain.User `json:"body"`
	}, error) {
		return func(ctx context.Context, input *userPath) (*struct {
			Body domain.User `json:"body"`
		}, error) {
			if err := requireAdmin(ctx); err != nil {
				return nil, err
			}
			actorID, authErr := userIDFromContext(ctx)
			if authErr != nil {
				return nil, authErr
			}
			u, err := e.SetUserApproval(ctx, input.UserID, approved, actorID)
			if err != nil {
				return nil, handleError(err)
			}
			return &struct {
				Body domain.User `json:"body"`
			}{Body: u}, nil
		}
	}
	huma.Register(api, huma.Operation{
		OperationID: "admin-approve-user",
		Method:      http.MethodPost,
		Path:        "/admin/users/{user_id}/approve",
		Summary:     "Approve a pending account",
	}, approveHandler(true))
	huma.Register(api, huma.Operation{
		OperationID: "admin-reject-user",
		Method:      http.MethodPost,
		Path:        "/admin/users/{user_id}/reject",
		Summary:     "Reject or suspend an account",
	}, approveHandler(false))

	huma.Register(api, huma.Operation{
		OperationID: "admin-set-role",
		Method:      http.MethodPost,
		Path:        "/admin/users/{user_id}/role",
		Summary:     "Set a user's role",
	}, func(ctx context.Context, input *struct {
		UserID string         `path:"user_id"`
		Body   SetRoleRequest `json:"body"`
	}) (*struct {
		Body domain.User `json:"body"`
	}, error) {
		if err := requireAdmin(ctx); err != nil {
			return nil, err
		}
		actorID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		u, err := e.SetUserRole(ctx, input.UserID, input.Body.Role, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.User `json:"body"`
		}{Body: u}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "admin-delete-user",
		Method:        http.MethodDelete,
		Path:          "/admin/users/{user_id}",
		Summary:       "Delete a user",
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *userPath) (*struct{}, error) {
		if err := requireAdmin(ctx); err != nil {
			return nil, err
		}
		actorID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteUser(ctx, input.UserID, actorID); err != nil {
			return nil, handleError(err)
		}
		return nil, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "admin-stats",
		Method:      http.MethodGet,
		Path:        "/admin/stats",
		Summary:     "Aggregate counts",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body engine.Stats `json:"body"`
	}, error) {
		if err := requireAdmin(ctx); err != nil {
			return nil, err
		}
		stats, err := e.AdminStats(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.Stats `json:"body"`
		}{Body: stats}, nil
	})
}

func registerDepartments(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-department",
		Method:        http.MethodPost,
		Path:          "/departments",
		Summary:       "Create department",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		Body CreateDepartmentRequest `json:"body"`
	}) (*struct {
		Body domain.Department `json:"body"`
	}, error) {
		if err := requireAdmin(ctx); err != nil {
			return nil, err
		}
		actorID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		d, err := e.CreateDepartment(ctx, input.Body.Name, input.Body.Description, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Department `json:"body"`
		}{Body: d}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-departments",
		Method:      http.MethodGet,
		Path:        "/departments",
		Summary:     "List departments",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Department `json:"body"`
	}, error) {
		items, err := e.Repo.ListDepartments(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Department `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-department",
		Method:        http.MethodDelete,
		Path:          "/departments/{department_id}",
		Summary:       "Delete department",
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *struct {
		DepartmentID string `path:"department_id"`
	}) (*struct{}, error) {
		if err := requireAdmin(ctx); err != nil {
			return nil, err
		}
		actorID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteDepartment(ctx, input.DepartmentID, actorID); err != nil {
			return nil, handleError(err)
		}
		return nil, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-department-members",
		Method:      http.MethodGet,
		Path:        "/departments/{department_id}/members",
		Summary:     "List member user ids",
	}, func(ctx context.Context, input *struct {
		DepartmentID string `path:"department_id"`
	}) (*struct {
		Body []string `json:"body"`
	}, error) {
		if _, err := e.Repo.GetDepartment(ctx, input.DepartmentID); err != nil {
			return nil, handleError(err)
		}
		members, err := e.Repo.ListDepartmentMembers(ctx, input.DepartmentID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []string `json:"body"`
		}{Body: members}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-user-departments",
		Method:      http.MethodPut,
		Path:        "/users/{user_id}/departments",
		Summary:     "Replace a user's department memberships",
	}, func(ctx context.Context, input *struct {
		UserID string                    `path:"user_id"`
		Body   SetUserDepartmentsRequest `json:"body"`
	}) (*struct {
		Body []string `json:"body"`
	}, error) {
		if err := requireAdmin(ctx); err != nil {
			return nil, err
		}
		actorID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.SetUserDepartments(ctx, input.UserID, input.Body.DepartmentIDs, actorID); err != nil {
			return nil, handleError(err)
		}
		ids, err := e.Repo.ListUserDepartments(ctx, input.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []string `json:"body"`
		}{Body: ids}, nil
	})
}

func registerTasks(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/tasks",
		Summary:       "Create task",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		Body CreateTaskRequest `json:"body"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		if err := requireAdmin(ctx); err != nil {
			return nil, err
		}
		actorID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.CreateTask(ctx, engine.TaskCreateOptions{
			Title:       input.Body.Title,
			Description: input.Body.Description,
			Priority:    input.Body.Priority,
			Category:    input.Body.Category,
			ActorID:     actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/tasks",
		Summary:     "List tasks",
	}, func(ctx context.Context, input *struct {
		Status          string `query:"status"`
		Category        string `query:"category"`
		Limit           int    `query:"limit"`
		CursorCreatedAt string `query:"cursor_created_at"`
		CursorID        string `query:"cursor_id"`
	}) (*struct {
		Body struct {
			Items []domain.Task `json:"items"`
			Next  *PageCursor   `json:"next,omitempty"`
		} `json:"body"`
	}, error) {
		items, err := e.ListTasks(ctx, repo.TaskFilters{
			Status:          input.Status,
			Category:        input.Category,
			Limit:           input.Limit,
			CursorCreatedAt: input.CursorCreatedAt,
			CursorID:        input.CursorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Items []domain.Task `json:"items"`
				Next  *PageCursor   `json:"next,omitempty"`
			} `json:"body"`
		}{}
		out.Body.Items = items
		if input.Limit > 0 && len(items) == input.Limit {
			out.Body.Next = cursorFor(items,
				func(t domain.Task) string { return t.CreatedAt },
				func(t domain.Task) string { return t.ID })
		}
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/tasks/{task_id}",
		Summary:     "Get task with subtasks",
	}, func(ctx context.Context, input *struct {
		TaskID string `path:"task_id"`
	}) (*struct {
		Body struct {
			Task     domain.Task      `json:"task"`
			Subtasks []domain.Subtask `json:"subtasks"`
		} `json:"body"`
	}, error) {
		t, err := e.GetTask(ctx, input.TaskID)
		if err != nil {
			return nil, handleError(err)
		}
		subtasks, err := e.Repo.ListSubtasks(ctx, t.ID)
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Task     domain.Task      `json:"task"`
				Subtasks []domain.Subtask `json:"subtasks"`
			} `json:"body"`
		}{}
		out.Body.Task = t
		out.Body.Subtasks = subtasks
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-task-status",
		Method:      http.MethodPost,
		Path:        "/tasks/{task_id}/status",
		Summary:     "Set task status",
	}, func(ctx context.Context, input *struct {
		TaskID string           `path:"task_id"`
		Body   SetStatusRequest `json:"body"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		if err := requireAdmin(ctx); err != nil {
			return nil, err
		}
		actorID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.SetTaskStatus(ctx, input.TaskID, input.Body.Status, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-task",
		Method:        http.MethodDelete,
		Path:          "/tasks/{task_id}",
		Summary:       "Delete task",
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *struct {
		TaskID string `path:"task_id"`
	}) (*struct{}, error) {
		if err := requireAdmin(ctx); err != nil {
			return nil, err
		}
		actorID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteTask(ctx, input.TaskID, actorID); err != nil {
			return nil, handleError(err)
		}
		return nil, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-subtask",
		Method:        http.MethodPost,
		Path:          "/tasks/{task_id}/subtasks",
		Summary:       "Add a subtask",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		TaskID string               `path:"task_id"`
		Body   CreateSubtaskRequest `json:"body"`
	}) (*struct {
		Body domain.Subtask `json:"body"`
	}, error) {
		if err := requireAdmin(ctx); err != nil {
			return nil, err
		}
		actorID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		s, err := e.CreateSubtask(ctx, input.TaskID, input.Body.Title, input.Body.AssigneeID, input.Body.DueDate, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Subtask `json:"body"`
		}{Body: s}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-subtask-status",
		Method:      http.MethodPost,
		Path:        "/subtasks/{subtask_id}/status",
		Summary:     "Step a subtask's status",
	}, func(ctx context.Context, input *struct {
		SubtaskID string           `path:"subtask_id"`
		Body      SetStatusRequest `json:"body"`
	}) (*struct {
		Body domain.Subtask `json:"body"`
	}, error) {
		actorID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		s, err := e.SetSubtaskStatus(ctx, input.SubtaskID, input.Body.Status, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Subtask `json:"body"`
		}{Body: s}, nil
	})
}

func registerAssignments(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-assignments",
		Method:        http.MethodPost,
		Path:          "/assignments",
		Summary:       "Assign a task to users and/or departments",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		Body CreateAssignmentsRequest `json:"body"`
	}) (*struct {
		Body []AssignmentView `json:"body"`
	}, error) {
		if err := requireAdmin(ctx); err != nil {
			return nil, err
		}
		actorID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.CreateAssignments(ctx, engine.AssignmentCreateOptions{
			TaskID:        input.Body.TaskID,
			UserIDs:       input.Body.UserIDs,
			DepartmentIDs: input.Body.DepartmentIDs,
			AssignedBy:    actorID,
			Deadline:      input.Body.Deadline,
			Priority:      input.Body.Priority,
			Notes:         input.Body.Notes,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []AssignmentView `json:"body"`
		}{Body: assignmentViews(e, items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-assignments",
		Method:      http.MethodGet,
		Path:        "/assignments",
		Summary:     "List assignments",
	}, func(ctx context.Context, input *struct {
		TaskID          string `query:"task_id"`
		UserID          string `query:"user_id"`
		Status          string `query:"status"`
		Limit           int    `query:"limit"`
		CursorCreatedAt string `query:"cursor_created_at"`
		CursorID        string `query:"cursor_id"`
	}) (*struct {
		Body struct {
			Items []AssignmentView `json:"items"`
			Next  *PageCursor      `json:"next,omitempty"`
		} `json:"body"`
	}, error) {
		items, err := e.Repo.ListAssignments(ctx, repo.AssignmentFilters{
			TaskID:          input.TaskID,
			UserID:          input.UserID,
			Status:          input.Status,
			Limit:           input.Limit,
			CursorCreatedAt: input.CursorCreatedAt,
			CursorID:        input.CursorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Items []AssignmentView `json:"items"`
				Next  *PageCursor      `json:"next,omitempty"`
			} `json:"body"`
		}{}
		out.Body.Items = assignmentViews(e, items)
		if input.Limit > 0 && len(items) == input.Limit {
			out.Body.Next = cursorFor(items,
				func(a domain.Assignment) string { return a.CreatedAt },
				func(a domain.Assignment) string { return a.ID })
		}
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-assignment",
		Method:      http.MethodGet,
		Path:        "/assignments/{assignment_id}",
		Summary:     "Get assignment",
	}, func(ctx context.Context, input *struct {
		AssignmentID string `path:"assignment_id"`
	}) (*struct {
		Body AssignmentView `json:"body"`
	}, error) {
		a, err := e.Repo.GetAssignment(ctx, input.AssignmentID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AssignmentView `json:"body"`
		}{Body: assignmentView(e, a)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-assignment-status",
		Method:      http.MethodPost,
		Path:        "/assignments/{assignment_id}/status",
		Summary:     "Accept, decline, or start an assignment",
	}, func(ctx context.Context, input *struct {
		AssignmentID string           `path:"assignment_id"`
		Body         SetStatusRequest `json:"body"`
	}) (*struct {
		Body AssignmentView `json:"body"`
	}, error) {
		actorID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.SetAssignmentStatus(ctx, input.AssignmentID, input.Body.Status, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AssignmentView `json:"body"`
		}{Body: assignmentView(e, a)}, nil
	})
}

func registerCompletions(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "save-completion-draft",
		Method:      http.MethodPut,
		Path:        "/completions/draft",
		Summary:     "Create or update the active draft for an assignment",
	}, func(ctx context.Context, input *struct {
		Body CompletionDraftRequest `json:"body"`
	}) (*struct {
		Body domain.Completion `json:"body"`
	}, error) {
		actorID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.SaveCompletionDraft(ctx, engine.CompletionDraft{
			AssignmentID:       input.Body.AssignmentID,
			SubtaskID:          input.Body.SubtaskID,
			ProgressPercentage: input.Body.ProgressPercentage,
			IsFullyCompleted:   input.Body.IsFullyCompleted,
			WorkDescription:    input.Body.WorkDescription,
			Challenges:         input.Body.Challenges,
			NextSteps:          input.Body.NextSteps,
		}, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Completion `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-active-completion",
		Method:      http.MethodGet,
		Path:        "/assignments/{assignment_id}/completion",
		Summary:     "Get the active draft for an assignment",
	}, func(ctx context.Context, input *struct {
		AssignmentID string `path:"assignment_id"`
	}) (*struct {
		Body CompletionDetail `json:"body"`
	}, error) {
		c, err := e.Repo.ActiveCompletion(ctx, input.AssignmentID)
		if err != nil {
			return nil, handleError(err)
		}
		files, err := e.Repo.ListCompletionFiles(ctx, c.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CompletionDetail `json:"body"`
		}{Body: CompletionDetail{Completion: c, Files: files}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-completion",
		Method:      http.MethodGet,
		Path:        "/completions/{completion_id}",
		Summary:     "Get completion with files",
	}, func(ctx context.Context, input *struct {
		CompletionID string `path:"completion_id"`
	}) (*struct {
		Body CompletionDetail `json:"body"`
	}, error) {
		c, err := e.Repo.GetCompletion(ctx, input.CompletionID)
		if err != nil {
			return nil, handleError(err)
		}
		files, err := e.Repo.ListCompletionFiles(ctx, c.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CompletionDetail `json:"body"`
		}{Body: CompletionDetail{Completion: c, Files: files}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "submit-completion",
		Method:      http.MethodPost,
		Path:        "/completions/{completion_id}/submit",
		Summary:     "Submit a completion for review",
	}, func(ctx context.Context, input *struct {
		CompletionID string `path:"completion_id"`
	}) (*struct {
		Body domain.Completion `json:"body"`
	}, error) {
		actorID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.SubmitCompletion(ctx, input.CompletionID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Completion `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-reviewable-completions",
		Method:      http.MethodGet,
		Path:        "/completions",
		Summary:     "List non-draft completions for review",
	}, func(ctx context.Context, input *struct {
		Status          string `query:"status"`
		Search          string `query:"search"`
		Limit           int    `query:"limit"`
		CursorCreatedAt string `query:"cursor_created_at"`
		CursorID        string `query:"cursor_id"`
	}) (*struct {
		Body struct {
			Items []domain.Completion `json:"items"`
			Next  *PageCursor         `json:"next,omitempty"`
		} `json:"body"`
	}, error) {
		if err := requireAdmin(ctx); err != nil {
			return nil, err
		}
		items, err := e.Repo.ListReviewable(ctx, repo.CompletionFilters{
			Status:          input.Status,
			Search:          input.Search,
			Limit:           input.Limit,
			CursorCreatedAt: input.CursorCreatedAt,
			CursorID:        input.CursorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Items []domain.Completion `json:"items"`
				Next  *PageCursor         `json:"next,omitempty"`
			} `json:"body"`
		}{}
		out.Body.Items = items
		if input.Limit > 0 && len(items) == input.Limit {
			out.Body.Next = cursorFor(items,
				func(c domain.Completion) string { return c.CreatedAt },
				func(c domain.Completion) string { return c.ID })
		}
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "review-completion",
		Method:      http.MethodPost,
		Path:        "/completions/{completion_id}/review",
		Summary:     "Approve, reject, or request revision",
	}, func(ctx context.Context, input *struct {
		CompletionID string                  `path:"completion_id"`
		Body         ReviewCompletionRequest `json:"body"`
	}) (*struct {
		Body domain.Completion `json:"body"`
	}, error) {
		if err := requireAdmin(ctx); err != nil {
			return nil, err
		}
		reviewerID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.ReviewCompletion(ctx, input.CompletionID, input.Body.Verdict, input.Body.Comment, reviewerID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Completion `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "remove-completion-file",
		Method:        http.MethodDelete,
		Path:          "/completion-files/{file_id}",
		Summary:       "Remove an attachment and its blob",
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *struct {
		FileID string `path:"file_id"`
	}) (*struct{}, error) {
		actorID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.RemoveCompletionFile(ctx, input.FileID, actorID); err != nil {
			return nil, handleError(err)
		}
		return nil, nil
	})
}

func registerProposals(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "save-proposal-draft",
		Method:      http.MethodPut,
		Path:        "/proposals/draft",
		Summary:     "Create or update a proposal draft",
	}, func(ctx context.Context, input *struct {
		Body ProposalDraftRequest `json:"body"`
	}) (*struct {
		Body domain.Proposal `json:"body"`
	}, error) {
		actorID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.SaveProposalDraft(ctx, engine.ProposalDraft{
			ID:            input.Body.ID,
			Title:         input.Body.Title,
			Objective:     input.Body.Objective,
			StartDate:     input.Body.StartDate,
			EndDate:       input.Body.EndDate,
			Budget:        input.Body.Budget,
			DepartmentIDs: input.Body.DepartmentIDs,
		}, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Proposal `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-proposals",
		Method:      http.MethodGet,
		Path:        "/proposals",
		Summary:     "List proposals",
	}, func(ctx context.Context, input *struct {
		UserID          string `query:"user_id"`
		Status          string `query:"status"`
		Limit           int    `query:"limit"`
		CursorCreatedAt string `query:"cursor_created_at"`
		CursorID        string `query:"cursor_id"`
	}) (*struct {
		Body struct {
			Items []domain.Proposal `json:"items"`
			Next  *PageCursor       `json:"next,omitempty"`
		} `json:"body"`
	}, error) {
		items, err := e.Repo.ListProposals(ctx, repo.ProposalFilters{
			UserID:          input.UserID,
			Status:          input.Status,
			Limit:           input.Limit,
			CursorCreatedAt: input.CursorCreatedAt,
			CursorID:        input.CursorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Items []domain.Proposal `json:"items"`
				Next  *PageCursor       `json:"next,omitempty"`
			} `json:"body"`
		}{}
		out.Body.Items = items
		if input.Limit > 0 && len(items) == input.Limit {
			out.Body.Next = cursorFor(items,
				func(p domain.Proposal) string { return p.CreatedAt },
				func(p domain.Proposal) string { return p.ID })
		}
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-proposal",
		Method:      http.MethodGet,
		Path:        "/proposals/{proposal_id}",
		Summary:     "Get proposal with departments, files, and comments",
	}, func(ctx context.Context, input *struct {
		ProposalID string `path:"proposal_id"`
	}) (*struct {
		Body ProposalDetail `json:"body"`
	}, error) {
		p, err := e.Repo.GetProposal(ctx, input.ProposalID)
		if err != nil {
			return nil, handleError(err)
		}
		deptIDs, err := e.Repo.ListProposalDepartments(ctx, p.ID)
		if err != nil {
			return nil, handleError(err)
		}
		files, err := e.Repo.ListProposalFiles(ctx, p.ID)
		if err != nil {
			return nil, handleError(err)
		}
		comments, err := e.Repo.ListProposalComments(ctx, p.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProposalDetail `json:"body"`
		}{Body: ProposalDetail{Proposal: p, DepartmentIDs: deptIDs, Files: files, Comments: comments}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "submit-proposal",
		Method:      http.MethodPost,
		Path:        "/proposals/{proposal_id}/submit",
		Summary:     "Submit a proposal for review",
	}, func(ctx context.Context, input *struct {
		ProposalID string `path:"proposal_id"`
	}) (*struct {
		Body domain.Proposal `json:"body"`
	}, error) {
		actorID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.SubmitProposal(ctx, input.ProposalID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Proposal `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "review-proposal",
		Method:      http.MethodPost,
		Path:        "/proposals/{proposal_id}/review",
		Summary:     "Approve, reject, or request changes; approval may generate a plan",
	}, func(ctx context.Context, input *struct {
		ProposalID string                `path:"proposal_id"`
		Body       ReviewProposalRequest `json:"body"`
	}) (*struct {
		Body domain.Proposal `json:"body"`
	}, error) {
		if err := requireAdmin(ctx); err != nil {
			return nil, err
		}
		reviewerID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rev := engine.ProposalReview{
			ProposalID: input.ProposalID,
			Verdict:    input.Body.Verdict,
			Feedback:   input.Body.Feedback,
			ReviewerID: reviewerID,
		}
		if input.Body.Plan != nil {
			rev.Plan = engine.PlanSpec{
				Generate:  input.Body.Plan.Generate,
				Assignees: input.Body.Plan.Assignees,
				DueDate:   input.Body.Plan.DueDate,
			}
		}
		p, err := e.ReviewProposal(ctx, rev)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Proposal `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "comment-proposal",
		Method:        http.MethodPost,
		Path:          "/proposals/{proposal_id}/comments",
		Summary:       "Add a discussion comment",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		ProposalID string         `path:"proposal_id"`
		Body       CommentRequest `json:"body"`
	}) (*struct {
		Body domain.ProposalComment `json:"body"`
	}, error) {
		actorID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.CommentProposal(ctx, input.ProposalID, input.Body.Body, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ProposalComment `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-proposal",
		Method:        http.MethodDelete,
		Path:          "/proposals/{proposal_id}",
		Summary:       "Delete a proposal and its child records",
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *struct {
		ProposalID string `path:"proposal_id"`
	}) (*struct{}, error) {
		actorID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteProposal(ctx, input.ProposalID, actorID); err != nil {
			return nil, handleError(err)
		}
		return nil, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "remove-proposal-file",
		Method:        http.MethodDelete,
		Path:          "/proposal-files/{file_id}",
		Summary:       "Remove an attachment and its blob",
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *struct {
		FileID string `path:"file_id"`
	}) (*struct{}, error) {
		actorID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.RemoveProposalFile(ctx, input.FileID, actorID); err != nil {
			return nil, handleError(err)
		}
		return nil, nil
	})
}

func registerNotifications(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-notifications",
		Method:      http.MethodGet,
		Path:        "/notifications",
		Summary:     "List the caller's notifications",
	}, func(ctx context.Context, input *struct {
		Unread bool `query:"unread"`
		Limit  int  `query:"limit"`
	}) (*struct {
		Body []domain.Notification `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListNotifications(ctx, repo.NotificationFilters{
			UserID:     userID,
			UnreadOnly: input.Unread,
			Limit:      input.Limit,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Notification `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "read-notification",
		Method:        http.MethodPost,
		Path:          "/notifications/{notification_id}/read",
		Summary:       "Mark a notification read",
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *struct {
		NotificationID string `path:"notification_id"`
	}) (*struct{}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.MarkNotificationRead(ctx, input.NotificationID, userID); err != nil {
			return nil, handleError(err)
		}
		return nil, nil
	})
}

func registerChat(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-chat-channel",
		Method:        http.MethodPost,
		Path:          "/chat/channels",
		Summary:       "Create a chat channel",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		Body CreateChannelRequest `json:"body"`
	}) (*struct {
		Body domain.ChatChannel `json:"body"`
	}, error) {
		actorID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.CreateChatChannel(ctx, input.Body.Name, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ChatChannel `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-chat-channels",
		Method:      http.MethodGet,
		Path:        "/chat/channels",
		Summary:     "List chat channels",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.ChatChannel `json:"body"`
	}, error) {
		items, err := e.Repo.ListChatChannels(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.ChatChannel `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "post-chat-message",
		Method:        http.MethodPost,
		Path:          "/chat/channels/{channel_id}/messages",
		Summary:       "Post a message",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		ChannelID string         `path:"channel_id"`
		Body      CommentRequest `json:"body"`
	}) (*struct {
		Body domain.ChatMessage `json:"body"`
	}, error) {
		actorID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, err := e.PostChatMessage(ctx, input.ChannelID, input.Body.Body, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ChatMessage `json:"body"`
		}{Body: m}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-chat-messages",
		Method:      http.MethodGet,
		Path:        "/chat/channels/{channel_id}/messages",
		Summary:     "List messages, newest first",
	}, func(ctx context.Context, input *struct {
		ChannelID       string `path:"channel_id"`
		Limit           int    `query:"limit"`
		CursorCreatedAt string `query:"cursor_created_at"`
		CursorID        string `query:"cursor_id"`
	}) (*struct {
		Body struct {
			Items []domain.ChatMessage `json:"items"`
			Next  *PageCursor          `json:"next,omitempty"`
		} `json:"body"`
	}, error) {
		if _, err := e.Repo.GetChatChannel(ctx, input.ChannelID); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListChatMessages(ctx, repo.ChatMessageFilters{
			ChannelID:       input.ChannelID,
			Limit:           input.Limit,
			CursorCreatedAt: input.CursorCreatedAt,
			CursorID:        input.CursorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Items []domain.ChatMessage `json:"items"`
				Next  *PageCursor          `json:"next,omitempty"`
			} `json:"body"`
		}{}
		out.Body.Items = items
		if input.Limit > 0 && len(items) == input.Limit {
			out.Body.Next = cursorFor(items,
				func(m domain.ChatMessage) string { return m.CreatedAt },
				func(m domain.ChatMessage) string { return m.ID })
		}
		return out, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "Latest audit events",
	}, func(ctx context.Context, input *struct {
		Limit      int    `query:"limit"`
		EntityKind string `query:"entity_kind"`
		EntityID   string `query:"entity_id"`
	}) (*struct {
		Body []domain.Event `json:"body"`
	}, error) {
		if err := requireAdmin(ctx); err != nil {
			return nil, err
		}
		limit := input.Limit
		if limit <= 0 {
			limit = 100
		}
		items, err := e.Repo.LatestEvents(ctx, limit, input.EntityKind, input.EntityID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Event `json:"body"`
		}{Body: items}, nil
	})
}
