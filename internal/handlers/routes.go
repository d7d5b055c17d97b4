package handlers

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/yamdb/apiserver/internal/services"
	"github.com/yamdb/apiserver/types"
)

// API bundles what the /api routes need.
type API struct {
	Users      *services.UserService
	Categories *services.TaxonomyService[types.Category]
	Genres     *services.TaxonomyService[types.Genre]
	Titles     *services.TitleService
	Reviews    *services.ReviewService
	Comments   *services.CommentService

	JWTSecret string
	TokenTTL  time.Duration
}

// APIRouter mounts every API resource on r behind the optional bearer authentication.
// HEAD is served by the GET handlers.
func APIRouter(r chi.Router, api API) {
	r.Use(middleware.GetHead, Authenticate(api.Users, api.JWTSecret))

	r.Route("/auth", func(r chi.Router) {
		AuthRouter(r, api.Users, api.JWTSecret, api.TokenTTL)
	})
	r.Route("/users", func(r chi.Router) {
		UserRouter(r, api.Users)
	})
	r.Route("/categories", func(r chi.Router) {
		TaxonomyRouter(r, api.Categories, "categories")
	})
	r.Route("/genres", func(r chi.Router) {
		TaxonomyRouter(r, api.Genres, "genres")
	})
	r.Route("/titles", func(r chi.Router) {
		TitleRouter(r, api.Titles, api.Reviews, api.Comments)
	})
}
