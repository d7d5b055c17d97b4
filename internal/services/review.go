package services

import (
	"context"

	"github.com/yamdb/apiserver/internal/store"
	"github.com/yamdb/apiserver/internal/validation"
	"github.com/yamdb/apiserver/types"
)

const duplicateReviewMessage = "You have already reviewed this title."

// ReviewRepository defines persistence operations for reviews.
type ReviewRepository interface {
	ListByTitle(ctx context.Context, titleID, offset, limit int) ([]types.Review, int, error)
	Get(ctx context.Context, id int) (types.Review, error)
	ExistsForAuthor(ctx context.Context, titleID, authorID int) (bool, error)
	Create(ctx context.Context, review types.Review) (types.Review, error)
	Update(ctx context.Context, review types.Review) (types.Review, error)
	Delete(ctx context.Context, id int) error
}

type ReviewCreateRequest struct {
	Text  string `json:"text" validate:"required"`
	Score *int   `json:"score" validate:"required,min=1,max=10"`
}

type ReviewPatchRequest struct {
	Text  *string `json:"text" validate:"omitnil,min=1"`
	Score *int    `json:"score" validate:"omitnil,min=1,max=10"`
}

// ReviewService encapsulates review use-cases. Every operation is scoped to a title.
type ReviewService struct {
	repo   ReviewRepository
	titles TitleRepository
}

func NewReviewService(repo ReviewRepository, titles TitleRepository) *ReviewService {
	return &ReviewService{repo: repo, titles: titles}
}

func (s *ReviewService) List(ctx context.Context, titleID, offset, limit int) ([]types.Review, int, error) {
	if err := s.requireTitle(ctx, titleID); err != nil {
		return nil, 0, err
	}
	return s.repo.ListByTitle(ctx, titleID, offset, clampLimit(limit))
}

// Get returns the review only if it belongs to titleID.
func (s *ReviewService) Get(ctx context.Context, titleID, reviewID int) (types.Review, error) {
	if err := s.requireTitle(ctx, titleID); err != nil {
		return types.Review{}, err
	}
	review, err := s.repo.Get(ctx, reviewID)
	if err != nil {
		return types.Review{}, err
	}
	if review.TitleID != titleID {
		return types.Review{}, store.ErrNotFound
	}
	return review, nil
}

// Create posts author's review of titleID. A second review by the same author is rejected.
func (s *ReviewService) Create(ctx context.Context, titleID int, author types.User, req ReviewCreateRequest) (types.Review, error) {
	if err := s.requireTitle(ctx, titleID); err != nil {
		return types.Review{}, err
	}
	if err := validation.Struct(req); err != nil {
		return types.Review{}, err
	}

	exists, err := s.repo.ExistsForAuthor(ctx, titleID, author.ID)
	if err != nil {
		return types.Review{}, err
	}
	if exists {
		return types.Review{}, validation.Field("non_field_errors", duplicateReviewMessage)
	}

	review, err := s.repo.Create(ctx, types.Review{
		TitleID:  titleID,
		AuthorID: author.ID,
		Text:     req.Text,
		Score:    *req.Score,
	})
	if err != nil {
		return types.Review{}, conflictToValidation(err)
	}
	review.Author = author.Username
	return review, nil
}

// Update patches an existing review. Ownership is checked by the caller.
func (s *ReviewService) Update(ctx context.Context, review types.Review, req ReviewPatchRequest) (types.Review, error) {
	if err := validation.Struct(req); err != nil {
		return types.Review{}, err
	}
	if req.Text != nil {
		review.Text = *req.Text
	}
	if req.Score != nil {
		review.Score = *req.Score
	}
	return s.repo.Update(ctx, review)
}

func (s *ReviewService) Delete(ctx context.Context, review types.Review) error {
	return s.repo.Delete(ctx, review.ID)
}

func (s *ReviewService) requireTitle(ctx context.Context, titleID int) error {
	exists, err := s.titles.Exists(ctx, titleID)
	if err != nil {
		return err
	}
	if !exists {
		return store.ErrNotFound
	}
	return nil
}
