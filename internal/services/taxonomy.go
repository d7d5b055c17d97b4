package services

import (
	"context"
	"errors"
	"strings"

	"github.com/yamdb/apiserver/internal/store"
	"github.com/yamdb/apiserver/internal/validation"
	"github.com/yamdb/apiserver/types"
)

// TaxonomyRepository defines persistence operations for categories or genres.
type TaxonomyRepository[T types.Taxon] interface {
	List(ctx context.Context, filter types.NameFilter, offset, limit int) ([]T, int, error)
	GetBySlug(ctx context.Context, slug string) (T, error)
	GetBySlugs(ctx context.Context, slugs []string) ([]T, error)
	Create(ctx context.Context, item T) (T, error)
	DeleteBySlug(ctx context.Context, slug string) error
}

// TaxonRequest is the write form shared by categories and genres.
type TaxonRequest struct {
	Name string `json:"name" validate:"required,max=256"`
	Slug string `json:"slug" validate:"required,max=50,slug"`
}

// TaxonomyService manages a name+slug catalog table.
type TaxonomyService[T types.Taxon] struct {
	repo TaxonomyRepository[T]
}

func NewTaxonomyService[T types.Taxon](repo TaxonomyRepository[T]) *TaxonomyService[T] {
	return &TaxonomyService[T]{repo: repo}
}

func (s *TaxonomyService[T]) List(ctx context.Context, filter types.NameFilter, offset, limit int) ([]T, int, error) {
	filter.Search = strings.TrimSpace(filter.Search)
	return s.repo.List(ctx, filter, offset, clampLimit(limit))
}

func (s *TaxonomyService[T]) Create(ctx context.Context, req TaxonRequest) (T, error) {
	var zero T
	req.Name = strings.TrimSpace(req.Name)
	req.Slug = strings.TrimSpace(req.Slug)
	if err := validation.Struct(req); err != nil {
		return zero, err
	}

	if _, err := s.repo.GetBySlug(ctx, req.Slug); err == nil {
		return zero, validation.Field("slug", "An entry with this slug already exists.")
	} else if !errors.Is(err, store.ErrNotFound) {
		return zero, err
	}

	item, err := s.repo.Create(ctx, T(types.Category{Name: req.Name, Slug: req.Slug}))
	if err != nil {
		return zero, conflictToValidation(err)
	}
	return item, nil
}

func (s *TaxonomyService[T]) Delete(ctx context.Context, slug string) error {
	return s.repo.DeleteBySlug(ctx, slug)
}
