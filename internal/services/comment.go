package services

import (
	"context"

	"github.com/yamdb/apiserver/internal/store"
	"github.com/yamdb/apiserver/internal/validation"
	"github.com/yamdb/apiserver/types"
)

// CommentRepository defines persistence operations for comments.
type CommentRepository interface {
	ListByReview(ctx context.Context, reviewID, offset, limit int) ([]types.Comment, int, error)
	Get(ctx context.Context, id int) (types.Comment, error)
	Create(ctx context.Context, comment types.Comment) (types.Comment, error)
	Update(ctx context.Context, comment types.Comment) (types.Comment, error)
	Delete(ctx context.Context, id int) error
}

type CommentCreateRequest struct {
	Text string `json:"text" validate:"required"`
}

type CommentPatchRequest struct {
	Text *string `json:"text" validate:"omitnil,min=1"`
}

// CommentService encapsulates comment use-cases. Comments are addressed through
// their title and review; a review outside the title is treated as missing.
type CommentService struct {
	repo    CommentRepository
	reviews *ReviewService
}

func NewCommentService(repo CommentRepository, reviews *ReviewService) *CommentService {
	return &CommentService{repo: repo, reviews: reviews}
}

func (s *CommentService) List(ctx context.Context, titleID, reviewID, offset, limit int) ([]types.Comment, int, error) {
	if _, err := s.reviews.Get(ctx, titleID, reviewID); err != nil {
		return nil, 0, err
	}
	return s.repo.ListByReview(ctx, reviewID, offset, clampLimit(limit))
}

func (s *CommentService) Get(ctx context.Context, titleID, reviewID, commentID int) (types.Comment, error) {
	if _, err := s.reviews.Get(ctx, titleID, reviewID); err != nil {
		return types.Comment{}, err
	}
	comment, err := s.repo.Get(ctx, commentID)
	if err != nil {
		return types.Comment{}, err
	}
	if comment.ReviewID != reviewID {
		return types.Comment{}, store.ErrNotFound
	}
	return comment, nil
}

func (s *CommentService) Create(ctx context.Context, titleID, reviewID int, author types.User, req CommentCreateRequest) (types.Comment, error) {
	if _, err := s.reviews.Get(ctx, titleID, reviewID); err != nil {
		return types.Comment{}, err
	}
	if err := validation.Struct(req); err != nil {
		return types.Comment{}, err
	}

	comment, err := s.repo.Create(ctx, types.Comment{
		ReviewID: reviewID,
		AuthorID: author.ID,
		Text:     req.Text,
	})
	if err != nil {
		return types.Comment{}, err
	}
	comment.Author = author.Username
	return comment, nil
}

// Update patches an existing comment. Ownership is checked by the caller.
func (s *CommentService) Update(ctx context.Context, comment types.Comment, req CommentPatchRequest) (types.Comment, error) {
	if err := validation.Struct(req); err != nil {
		return types.Comment{}, err
	}
	if req.Text != nil {
		comment.Text = *req.Text
	}
	return s.repo.Update(ctx, comment)
}

func (s *CommentService) Delete(ctx context.Context, comment types.Comment) error {
	return s.repo.Delete(ctx, comment.ID)
}
