package handlers

import (
	"net/http"

	"github.com/yamdb/apiserver/types"
)

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}

// RequireAuthenticated rejects anonymous requests.
func RequireAuthenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := userFromContext(r.Context()); !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// AdminOnly admits admins and staff.
func AdminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := userFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if !user.IsAdminOrStaff() {
			writeError(w, http.StatusForbidden, "admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// AdminOrReadOnly lets anyone read and only admins and staff write.
func AdminOrReadOnly(next http.Handler) http.Handler {
	admin := AdminOnly(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isSafeMethod(r.Method) {
			next.ServeHTTP(w, r)
			return
		}
		admin.ServeHTTP(w, r)
	})
}

// AuthenticatedOrReadOnly lets anyone read and any signed-in user write.
func AuthenticatedOrReadOnly(next http.Handler) http.Handler {
	authenticated := RequireAuthenticated(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isSafeMethod(r.Method) {
			next.ServeHTTP(w, r)
			return
		}
		authenticated.ServeHTTP(w, r)
	})
}

// canModify reports whether user may edit or delete content written by authorID.
func canModify(user types.User, authorID int) bool {
	return user.ID == authorID || user.IsAdminOrStaffOrModerator()
}
