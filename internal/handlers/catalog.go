package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/yamdb/apiserver/internal/services"
	"github.com/yamdb/apiserver/internal/validation"
	"github.com/yamdb/apiserver/types"
)

// TaxonomyHandler serves categories or genres.
type TaxonomyHandler[T types.Taxon] struct {
	service *services.TaxonomyService[T]
	noun    string
}

// TaxonomyRouter registers list, create and delete-by-slug routes. noun names
// the resource in error logs.
func TaxonomyRouter[T types.Taxon](r chi.Router, service *services.TaxonomyService[T], noun string) {
	handler := &TaxonomyHandler[T]{service: service, noun: noun}

	r.Use(AdminOrReadOnly)
	r.Get("/", handler.List)
	r.Post("/", handler.Create)
	r.Delete("/{slug}", handler.Delete)
}

func (h *TaxonomyHandler[T]) List(w http.ResponseWriter, r *http.Request) {
	page, limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	filter := types.NameFilter{Search: r.URL.Query().Get("search")}
	items, total, err := h.service.List(r.Context(), filter, offset, limit)
	if err != nil {
		writeServiceError(w, r, err, "list "+h.noun)
		return
	}
	writeList(w, r, page, limit, total, items)
}

func (h *TaxonomyHandler[T]) Create(w http.ResponseWriter, r *http.Request) {
	var req services.TaxonRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	item, err := h.service.Create(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err, "create "+h.noun)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (h *TaxonomyHandler[T]) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "slug")); err != nil {
		writeServiceError(w, r, err, "delete "+h.noun)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// TitleHandler serves the title catalog.
type TitleHandler struct {
	titleService *services.TitleService
}

func NewTitleHandler(titleService *services.TitleService) *TitleHandler {
	return &TitleHandler{titleService: titleService}
}

// TitleRouter registers title routes and nests reviews and comments under them.
func TitleRouter(
	r chi.Router,
	titleService *services.TitleService,
	reviewService *services.ReviewService,
	commentService *services.CommentService,
) {
	handler := NewTitleHandler(titleService)

	r.With(AdminOrReadOnly).Get("/", handler.ListTitles)
	r.With(AdminOrReadOnly).Post("/", handler.CreateTitle)
	r.Route("/{titleID}", func(r chi.Router) {
		r.With(AdminOrReadOnly).Get("/", handler.GetTitle)
		r.With(AdminOrReadOnly).Patch("/", handler.UpdateTitle)
		r.With(AdminOrReadOnly).Delete("/", handler.DeleteTitle)
		r.Route("/reviews", func(r chi.Router) {
			ReviewRouter(r, reviewService, commentService)
		})
	})
}

func (h *TitleHandler) ListTitles(w http.ResponseWriter, r *http.Request) {
	page, limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	query := r.URL.Query()
	filter := types.TitleFilter{
		Name:     query.Get("name"),
		Category: query.Get("category"),
		Genre:    query.Get("genre"),
	}
	if raw := strings.TrimSpace(query.Get("year")); raw != "" {
		year, err := strconv.Atoi(raw)
		if err != nil {
			writeServiceError(w, r, validation.Field("year", "Enter a whole number."), "list titles")
			return
		}
		filter.Year = &year
	}

	titles, total, err := h.titleService.List(r.Context(), filter, offset, limit)
	if err != nil {
		writeServiceError(w, r, err, "list titles")
		return
	}
	writeList(w, r, page, limit, total, titles)
}

func (h *TitleHandler) GetTitle(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(r, "titleID")
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	title, err := h.titleService.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err, "fetch title")
		return
	}
	writeJSON(w, http.StatusOK, title)
}

func (h *TitleHandler) CreateTitle(w http.ResponseWriter, r *http.Request) {
	var req services.TitleCreateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	title, err := h.titleService.Create(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err, "create title")
		return
	}
	writeJSON(w, http.StatusCreated, title)
}

func (h *TitleHandler) UpdateTitle(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(r, "titleID")
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	var req services.TitlePatchRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	title, err := h.titleService.Update(r.Context(), id, req)
	if err != nil {
		writeServiceError(w, r, err, "update title")
		return
	}
	writeJSON(w, http.StatusOK, title)
}

func (h *TitleHandler) DeleteTitle(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(r, "titleID")
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	if err := h.titleService.Delete(r.Context(), id); err != nil {
		writeServiceError(w, r, err, "delete title")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
