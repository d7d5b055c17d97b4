package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/yamdb/apiserver/internal/services"
	"github.com/yamdb/apiserver/types"
)

// UserHandler serves user administration and the self-service profile.
type UserHandler struct {
	userService *services.UserService
}

func NewUserHandler(userService *services.UserService) *UserHandler {
	return &UserHandler{userService: userService}
}

// UserRouter registers user routes. It expects Authenticate to run upstream.
func UserRouter(r chi.Router, userService *services.UserService) {
	handler := NewUserHandler(userService)

	r.Route("/me", func(r chi.Router) {
		r.Use(RequireAuthenticated)
		r.Get("/", handler.GetMe)
		r.Patch("/", handler.UpdateMe)
	})

	r.Group(func(r chi.Router) {
		r.Use(AdminOnly)
		r.Get("/", handler.ListUsers)
		r.Post("/", handler.CreateUser)
		r.Get("/{username}", handler.GetUser)
		r.Patch("/{username}", handler.UpdateUser)
		r.Delete("/{username}", handler.DeleteUser)
	})
}

func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	page, limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	filter := types.NameFilter{Search: strings.TrimSpace(r.URL.Query().Get("search"))}
	users, total, err := h.userService.List(r.Context(), filter, offset, limit)
	if err != nil {
		writeServiceError(w, r, err, "list users")
		return
	}
	writeList(w, r, page, limit, total, users)
}

func (h *UserHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req services.UserCreateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := h.userService.Create(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err, "create user")
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.userService.GetByUsername(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		writeServiceError(w, r, err, "fetch user")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *UserHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.userService.GetByUsername(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		writeServiceError(w, r, err, "fetch user")
		return
	}
	h.update(w, r, user, true)
}

func (h *UserHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.userService.GetByUsername(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		writeServiceError(w, r, err, "fetch user")
		return
	}
	if err := h.userService.Delete(r.Context(), user.ID); err != nil {
		writeServiceError(w, r, err, "delete user")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *UserHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	user, _ := userFromContext(r.Context())
	writeJSON(w, http.StatusOK, user)
}

// UpdateMe edits the caller's profile. The role field is read-only here.
func (h *UserHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	user, _ := userFromContext(r.Context())
	h.update(w, r, user, false)
}

func (h *UserHandler) update(w http.ResponseWriter, r *http.Request, user types.User, allowRole bool) {
	var req services.UserPatchRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	updated, err := h.userService.Update(r.Context(), user, req, allowRole)
	if err != nil {
		writeServiceError(w, r, err, "update user")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}
