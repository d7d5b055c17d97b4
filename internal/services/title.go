package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/yamdb/apiserver/internal/store"
	"github.com/yamdb/apiserver/internal/validation"
	"github.com/yamdb/apiserver/types"
)

// TitleRepository defines persistence operations for titles.
type TitleRepository interface {
	List(ctx context.Context, filter types.TitleFilter, offset, limit int) ([]types.Title, int, error)
	Get(ctx context.Context, id int) (types.Title, error)
	Exists(ctx context.Context, id int) (bool, error)
	Create(ctx context.Context, title types.Title) (types.Title, error)
	Update(ctx context.Context, title types.Title) (types.Title, error)
	Delete(ctx context.Context, id int) error
}

// TitleCreateRequest is the write form of a title. Genres and category are
// referenced by slug.
type TitleCreateRequest struct {
	Name        string   `json:"name" validate:"required,max=256"`
	Year        *int     `json:"year" validate:"required,gte=0,notfuture"`
	Description string   `json:"description"`
	Genre       []string `json:"genre"`
	Category    *string  `json:"category"`
}

// TitlePatchRequest is a partial update. An empty category string clears the category.
type TitlePatchRequest struct {
	Name        *string   `json:"name" validate:"omitnil,min=1,max=256"`
	Year        *int      `json:"year" validate:"omitnil,gte=0,notfuture"`
	Description *string   `json:"description"`
	Genre       *[]string `json:"genre"`
	Category    *string   `json:"category"`
}

// TitleService encapsulates catalog title use-cases.
type TitleService struct {
	repo       TitleRepository
	categories TaxonomyRepository[types.Category]
	genres     TaxonomyRepository[types.Genre]
}

func NewTitleService(
	repo TitleRepository,
	categories TaxonomyRepository[types.Category],
	genres TaxonomyRepository[types.Genre],
) *TitleService {
	return &TitleService{repo: repo, categories: categories, genres: genres}
}

func (s *TitleService) List(ctx context.Context, filter types.TitleFilter, offset, limit int) ([]types.Title, int, error) {
	filter.Name = strings.TrimSpace(filter.Name)
	return s.repo.List(ctx, filter, offset, clampLimit(limit))
}

func (s *TitleService) Get(ctx context.Context, id int) (types.Title, error) {
	return s.repo.Get(ctx, id)
}

func (s *TitleService) Create(ctx context.Context, req TitleCreateRequest) (types.Title, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := validation.Struct(req); err != nil {
		return types.Title{}, err
	}

	title := types.Title{
		Name:        req.Name,
		Year:        *req.Year,
		Description: req.Description,
	}

	errs := validation.Errors{}
	if req.Category != nil {
		category, err := s.resolveCategory(ctx, *req.Category, errs)
		if err != nil {
			return types.Title{}, err
		}
		title.Category = category
	}
	genres, err := s.resolveGenres(ctx, req.Genre, errs)
	if err != nil {
		return types.Title{}, err
	}
	if len(errs) > 0 {
		return types.Title{}, errs
	}
	title.Genres = genres

	return s.repo.Create(ctx, title)
}

func (s *TitleService) Update(ctx context.Context, id int, req TitlePatchRequest) (types.Title, error) {
	if req.Name != nil {
		trimmed := strings.TrimSpace(*req.Name)
		req.Name = &trimmed
	}
	if err := validation.Struct(req); err != nil {
		return types.Title{}, err
	}

	title, err := s.repo.Get(ctx, id)
	if err != nil {
		return types.Title{}, err
	}

	if req.Name != nil {
		title.Name = *req.Name
	}
	if req.Year != nil {
		title.Year = *req.Year
	}
	if req.Description != nil {
		title.Description = *req.Description
	}

	errs := validation.Errors{}
	if req.Category != nil {
		category, err := s.resolveCategory(ctx, *req.Category, errs)
		if err != nil {
			return types.Title{}, err
		}
		title.Category = category
	}
	if req.Genre != nil {
		genres, err := s.resolveGenres(ctx, *req.Genre, errs)
		if err != nil {
			return types.Title{}, err
		}
		title.Genres = genres
	}
	if len(errs) > 0 {
		return types.Title{}, errs
	}

	return s.repo.Update(ctx, title)
}

func (s *TitleService) Delete(ctx context.Context, id int) error {
	return s.repo.Delete(ctx, id)
}

// resolveCategory maps a slug to its category. An empty slug means no category.
func (s *TitleService) resolveCategory(ctx context.Context, slug string, errs validation.Errors) (*types.Category, error) {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return nil, nil
	}
	category, err := s.categories.GetBySlug(ctx, slug)
	if errors.Is(err, store.ErrNotFound) {
		errs.Add("category", unknownSlugMessage(slug))
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &category, nil
}

// resolveGenres maps slugs to genres, recording every unknown slug in errs.
func (s *TitleService) resolveGenres(ctx context.Context, slugs []string, errs validation.Errors) ([]types.Genre, error) {
	wanted := make([]string, 0, len(slugs))
	seen := make(map[string]struct{}, len(slugs))
	for _, slug := range slugs {
		slug = strings.TrimSpace(slug)
		if _, ok := seen[slug]; ok {
			continue
		}
		seen[slug] = struct{}{}
		wanted = append(wanted, slug)
	}
	if len(wanted) == 0 {
		return []types.Genre{}, nil
	}

	found, err := s.genres.GetBySlugs(ctx, wanted)
	if err != nil {
		return nil, err
	}
	bySlug := make(map[string]types.Genre, len(found))
	for _, genre := range found {
		bySlug[genre.Slug] = genre
	}

	genres := make([]types.Genre, 0, len(wanted))
	for _, slug := range wanted {
		genre, ok := bySlug[slug]
		if !ok {
			errs.Add("genre", unknownSlugMessage(slug))
			continue
		}
		genres = append(genres, genre)
	}
	return genres, nil
}

func unknownSlugMessage(slug string) string {
	return fmt.Sprintf("Object with slug=%s does not exist.", slug)
}
