package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/yamdb/apiserver/internal/services"
	"github.com/yamdb/apiserver/types"
)

// ReviewHandler serves reviews and their comments.
type ReviewHandler struct {
	reviewService  *services.ReviewService
	commentService *services.CommentService
}

func NewReviewHandler(reviewService *services.ReviewService, commentService *services.CommentService) *ReviewHandler {
	return &ReviewHandler{reviewService: reviewService, commentService: commentService}
}

// ReviewRouter registers review and comment routes under a title.
func ReviewRouter(r chi.Router, reviewService *services.ReviewService, commentService *services.CommentService) {
	handler := NewReviewHandler(reviewService, commentService)

	r.Use(AuthenticatedOrReadOnly)
	r.Get("/", handler.ListReviews)
	r.Post("/", handler.CreateReview)
	r.Route("/{reviewID}", func(r chi.Router) {
		r.Get("/", handler.GetReview)
		r.Patch("/", handler.UpdateReview)
		r.Delete("/", handler.DeleteReview)
		r.Route("/comments", func(r chi.Router) {
			r.Get("/", handler.ListComments)
			r.Post("/", handler.CreateComment)
			r.Get("/{commentID}", handler.GetComment)
			r.Patch("/{commentID}", handler.UpdateComment)
			r.Delete("/{commentID}", handler.DeleteComment)
		})
	})
}

// feedbackIDs parses the title, review and comment ids present in the route.
// Malformed ids are reported as not found.
func feedbackIDs(w http.ResponseWriter, r *http.Request, names ...string) ([]int, bool) {
	ids := make([]int, len(names))
	for i, name := range names {
		id, ok := parseIDParam(r, name)
		if !ok {
			writeError(w, http.StatusNotFound, "not found")
			return nil, false
		}
		ids[i] = id
	}
	return ids, true
}

func (h *ReviewHandler) ListReviews(w http.ResponseWriter, r *http.Request) {
	ids, ok := feedbackIDs(w, r, "titleID")
	if !ok {
		return
	}
	page, limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	reviews, total, err := h.reviewService.List(r.Context(), ids[0], offset, limit)
	if err != nil {
		writeServiceError(w, r, err, "list reviews")
		return
	}
	writeList(w, r, page, limit, total, reviews)
}

func (h *ReviewHandler) CreateReview(w http.ResponseWriter, r *http.Request) {
	ids, ok := feedbackIDs(w, r, "titleID")
	if !ok {
		return
	}
	var req services.ReviewCreateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, _ := userFromContext(r.Context())
	review, err := h.reviewService.Create(r.Context(), ids[0], user, req)
	if err != nil {
		writeServiceError(w, r, err, "create review")
		return
	}
	writeJSON(w, http.StatusCreated, review)
}

func (h *ReviewHandler) GetReview(w http.ResponseWriter, r *http.Request) {
	ids, ok := feedbackIDs(w, r, "titleID", "reviewID")
	if !ok {
		return
	}

	review, err := h.reviewService.Get(r.Context(), ids[0], ids[1])
	if err != nil {
		writeServiceError(w, r, err, "fetch review")
		return
	}
	writeJSON(w, http.StatusOK, review)
}

// ownReview loads the review and checks the caller may modify it.
func (h *ReviewHandler) ownReview(w http.ResponseWriter, r *http.Request) (types.Review, bool) {
	ids, ok := feedbackIDs(w, r, "titleID", "reviewID")
	if !ok {
		return types.Review{}, false
	}

	review, err := h.reviewService.Get(r.Context(), ids[0], ids[1])
	if err != nil {
		writeServiceError(w, r, err, "fetch review")
		return types.Review{}, false
	}
	user, _ := userFromContext(r.Context())
	if !canModify(user, review.AuthorID) {
		writeError(w, http.StatusForbidden, "you do not have permission to modify this review")
		return types.Review{}, false
	}
	return review, true
}

func (h *ReviewHandler) UpdateReview(w http.ResponseWriter, r *http.Request) {
	review, ok := h.ownReview(w, r)
	if !ok {
		return
	}
	var req services.ReviewPatchRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	updated, err := h.reviewService.Update(r.Context(), review, req)
	if err != nil {
		writeServiceError(w, r, err, "update review")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *ReviewHandler) DeleteReview(w http.ResponseWriter, r *http.Request) {
	review, ok := h.ownReview(w, r)
	if !ok {
		return
	}
	if err := h.reviewService.Delete(r.Context(), review); err != nil {
		writeServiceError(w, r, err, "delete review")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ReviewHandler) ListComments(w http.ResponseWriter, r *http.Request) {
	ids, ok := feedbackIDs(w, r, "titleID", "reviewID")
	if !ok {
		return
	}
	page, limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	comments, total, err := h.commentService.List(r.Context(), ids[0], ids[1], offset, limit)
	if err != nil {
		writeServiceError(w, r, err, "list comments")
		return
	}
	writeList(w, r, page, limit, total, comments)
}

func (h *ReviewHandler) CreateComment(w http.ResponseWriter, r *http.Request) {
	ids, ok := feedbackIDs(w, r, "titleID", "reviewID")
	if !ok {
		return
	}
	var req services.CommentCreateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, _ := userFromContext(r.Context())
	comment, err := h.commentService.Create(r.Context(), ids[0], ids[1], user, req)
	if err != nil {
		writeServiceError(w, r, err, "create comment")
		return
	}
	writeJSON(w, http.StatusCreated, comment)
}

func (h *ReviewHandler) GetComment(w http.ResponseWriter, r *http.Request) {
	ids, ok := feedbackIDs(w, r, "titleID", "reviewID", "commentID")
	if !ok {
		return
	}

	comment, err := h.commentService.Get(r.Context(), ids[0], ids[1], ids[2])
	if err != nil {
		writeServiceError(w, r, err, "fetch comment")
		return
	}
	writeJSON(w, http.StatusOK, comment)
}

func (h *ReviewHandler) ownComment(w http.ResponseWriter, r *http.Request) (types.Comment, bool) {
	ids, ok := feedbackIDs(w, r, "titleID", "reviewID", "commentID")
	if !ok {
		return types.Comment{}, false
	}

	comment, err := h.commentService.Get(r.Context(), ids[0], ids[1], ids[2])
	if err != nil {
		writeServiceError(w, r, err, "fetch comment")
		return types.Comment{}, false
	}
	user, _ := userFromContext(r.Context())
	if !canModify(user, comment.AuthorID) {
		writeError(w, http.StatusForbidden, "you do not have permission to modify this comment")
		return types.Comment{}, false
	}
	return comment, true
}

func (h *ReviewHandler) UpdateComment(w http.ResponseWriter, r *http.Request) {
	comment, ok := h.ownComment(w, r)
	if !ok {
		return
	}
	var req services.CommentPatchRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	updated, err := h.commentService.Update(r.Context(), comment, req)
	if err != nil {
		writeServiceError(w, r, err, "update comment")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *ReviewHandler) DeleteComment(w http.ResponseWriter, r *http.Request) {
	comment, ok := h.ownComment(w, r)
	if !ok {
		return
	}
	if err := h.commentService.Delete(r.Context(), comment); err != nil {
		writeServiceError(w, r, err, "delete comment")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
