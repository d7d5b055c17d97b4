package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/yamdb/apiserver/internal/logging"
	"github.com/yamdb/apiserver/internal/store"
	"github.com/yamdb/apiserver/internal/validation"
	"github.com/yamdb/apiserver/types"
)

const (
	defaultPage  = 1
	defaultLimit = 20
	maxLimit     = 100
)

type contextKey string

const contextUserKey contextKey = "user"

func withUser(ctx context.Context, user types.User) context.Context {
	return context.WithValue(ctx, contextUserKey, user)
}

// userFromContext returns the authenticated user, if any.
func userFromContext(ctx context.Context) (types.User, bool) {
	user, ok := ctx.Value(contextUserKey).(types.User)
	return user, ok
}

// ErrorResponse is the error payload. Fields is set for validation failures.
type ErrorResponse struct {
	Error  string              `json:"error"`
	Fields map[string][]string `json:"fields,omitempty"`
}

// ListResponse is the paginated list envelope.
type ListResponse[T any] struct {
	Count    int     `json:"count"`
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
	Results  []T     `json:"results"`
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

// writeServiceError maps service errors onto HTTP responses.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error, action string) {
	var fields validation.Errors
	switch {
	case errors.As(err, &fields):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "validation failed", Fields: fields})
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	default:
		logging.Ctx(r.Context()).Error().Err(err).Msg("failed to " + action)
		writeError(w, http.StatusInternalServerError, "failed to "+action)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func parsePagination(r *http.Request) (page, limit, offset int, err error) {
	page = defaultPage
	limit = defaultLimit

	if raw := strings.TrimSpace(r.URL.Query().Get("page")); raw != "" {
		page, err = strconv.Atoi(raw)
		if err != nil || page < 1 {
			return 0, 0, 0, errors.New("invalid page")
		}
	}

	rawLimit := strings.TrimSpace(r.URL.Query().Get("limit"))
	for _, alias := range []string{"page_size", "per_page"} {
		if rawLimit == "" {
			rawLimit = strings.TrimSpace(r.URL.Query().Get(alias))
		}
	}
	if rawLimit != "" {
		limit, err = strconv.Atoi(rawLimit)
		if err != nil || limit < 1 {
			return 0, 0, 0, errors.New("invalid limit")
		}
	}

	if limit > maxLimit {
		limit = maxLimit
	}

	offset = (page - 1) * limit
	return page, limit, offset, nil
}

// writeList renders one page of results. A page past the end is a 404.
func writeList[T any](w http.ResponseWriter, r *http.Request, page, limit, total int, items []T) {
	if page > 1 && (page-1)*limit >= total {
		writeError(w, http.StatusNotFound, "invalid page")
		return
	}
	if items == nil {
		items = []T{}
	}

	resp := ListResponse[T]{Count: total, Results: items}
	if page*limit < total {
		next := pageURL(r, page+1)
		resp.Next = &next
	}
	if page > 1 {
		previous := pageURL(r, page-1)
		resp.Previous = &previous
	}
	writeJSON(w, http.StatusOK, resp)
}

func pageURL(r *http.Request, page int) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}

	query := r.URL.Query()
	if page <= 1 {
		query.Del("page")
	} else {
		query.Set("page", strconv.Itoa(page))
	}

	u := url.URL{Scheme: scheme, Host: r.Host, Path: r.URL.Path, RawQuery: query.Encode()}
	return u.String()
}

func parseIDParam(r *http.Request, name string) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, name))
	if err != nil || id < 1 {
		return 0, false
	}
	return id, true
}
