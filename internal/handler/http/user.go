package http

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/elparchetipk/asiste-app-be-fast/internal/domain"
	"github.com/elparchetipk/asiste-app-be-fast/internal/service"
	apperrors "github.com/elparchetipk/asiste-app-be-fast/pkg/errors"
	"github.com/elparchetipk/asiste-app-be-fast/pkg/httputil"
	"github.com/elparchetipk/asiste-app-be-fast/pkg/middleware"
	"github.com/elparchetipk/asiste-app-be-fast/pkg/pagination"
	"github.com/elparchetipk/asiste-app-be-fast/pkg/validator"
)

func init() {
	validator.RegisterEnum("user_role", domain.ValidRoles()...)
	validator.RegisterEnum("document_type", domain.ValidDocumentTypes()...)
}

// UserHandler handles HTTP requests for user management endpoints.
type UserHandler struct {
	service *service.UserService
	logger  *slog.Logger
}

// NewUserHandler creates a new user HTTP handler.
func NewUserHandler(svc *service.UserService, logger *slog.Logger) *UserHandler {
	return &UserHandler{service: svc, logger: logger}
}

// --- Request DTOs ---

// CreateUserRequest is the JSON request body for creating an account. When
// Password is empty a temporary one is emailed to the user.
type CreateUserRequest struct {
	FirstName      string `json:"first_name" validate:"required,max=100"`
	LastName       string `json:"last_name" validate:"required,max=100"`
	Email          string `json:"email" validate:"required,email,max=254"`
	DocumentNumber string `json:"document_number" validate:"required,max=20"`
	DocumentType   string `json:"document_type" validate:"required,document_type"`
	Role           string `json:"role" validate:"omitempty,user_role"`
	Password       string `json:"password" validate:"omitempty,max=128"`
}

// UpdateUserRequest is the JSON request body for a partial update.
type UpdateUserRequest struct {
	FirstName      *string `json:"first_name" validate:"omitempty,max=100"`
	LastName       *string `json:"last_name" validate:"omitempty,max=100"`
	Email          *string `json:"email" validate:"omitempty,email,max=254"`
	DocumentNumber *string `json:"document_number" validate:"omitempty,max=20"`
	DocumentType   *string `json:"document_type" validate:"omitempty,document_type"`
	Role           *string `json:"role" validate:"omitempty,user_role"`
}

// DeactivateUserRequest optionally records why the account was disabled.
type DeactivateUserRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// ChangePasswordRequest is the JSON request body for changing one's own
// password.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required,max=128"`
	NewPassword     string `json:"new_password" validate:"required,max=128"`
	RefreshToken    string `json:"refresh_token"`
}

// --- Handlers ---

// Create handles POST /api/v1/users
func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := validator.DecodeAndValidate(w, r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	user, err := h.service.CreateUser(r.Context(), service.CreateUserInput{
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		Email:          req.Email,
		DocumentNumber: req.DocumentNumber,
		DocumentType:   req.DocumentType,
		Role:           req.Role,
		Password:       req.Password,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusCreated, user)
}

// List handles GET /api/v1/users
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := pagination.FromRequest(r)

	input := service.ListUsersInput{
		Role:    q.Get("role"),
		Search:  q.Get("search"),
		Page:    params.Page,
		PerPage: params.PerPage,
	}
	if raw := q.Get("is_active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			httputil.WriteError(w, r, apperrors.InvalidInput("is_active must be true or false"), h.logger)
			return
		}
		input.IsActive = &active
	}

	result, err := h.service.ListUsers(r.Context(), input)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, result)
}

// Get handles GET /api/v1/users/{id}. Users may read their own record;
// anyone else needs a managing role.
func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	p := middleware.PrincipalFromContext(r.Context())
	if p == nil || (p.UserID != id && !domain.CanManageUsers(p.Role)) {
		httputil.WriteError(w, r, apperrors.Forbidden("insufficient permissions"), h.logger)
		return
	}

	user, err := h.service.GetUser(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, user)
}

// Update handles PUT /api/v1/users/{id}
func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	var req UpdateUserRequest
	if err := validator.DecodeAndValidate(w, r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	user, err := h.service.UpdateUser(r.Context(), id, service.UpdateUserInput{
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		Email:          req.Email,
		DocumentNumber: req.DocumentNumber,
		DocumentType:   req.DocumentType,
		Role:           req.Role,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, user)
}

// Activate handles POST /api/v1/users/{id}/activate
func (h *UserHandler) Activate(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	user, err := h.service.ActivateUser(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, user)
}

// Deactivate handles POST /api/v1/users/{id}/deactivate. The body is
// optional.
func (h *UserHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	if id == middleware.UserIDFromContext(r.Context()) {
		httputil.WriteError(w, r, apperrors.InvalidInput("you cannot deactivate your own account"), h.logger)
		return
	}

	var req DeactivateUserRequest
	if r.ContentLength != 0 {
		if err := validator.DecodeAndValidate(w, r, &req); err != nil {
			httputil.WriteValidationError(w, err)
			return
		}
	}

	user, err := h.service.DeactivateUser(r.Context(), id, req.Reason)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, user)
}

// Delete handles DELETE /api/v1/users/{id}
func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	if id == middleware.UserIDFromContext(r.Context()) {
		httputil.WriteError(w, r, apperrors.InvalidInput("you cannot delete your own account"), h.logger)
		return
	}

	if err := h.service.DeleteUser(r.Context(), id); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ChangePassword handles PUT /api/v1/users/me/password
func (h *UserHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req ChangePasswordRequest
	if err := validator.DecodeAndValidate(w, r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	err := h.service.ChangePassword(r.Context(), service.ChangePasswordInput{
		UserID:          middleware.UserIDFromContext(r.Context()),
		CurrentPassword: req.CurrentPassword,
		NewPassword:     req.NewPassword,
		AccessToken:     middleware.TokenFromContext(r.Context()),
		RefreshToken:    req.RefreshToken,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, messageResponse{Message: "password changed"})
}
