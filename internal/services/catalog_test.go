package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yamdb/apiserver/internal/store"
	"github.com/yamdb/apiserver/internal/store/memstore"
	"github.com/yamdb/apiserver/types"
)

type catalog struct {
	mem        *memstore.Store
	categories *TaxonomyService[types.Category]
	genres     *TaxonomyService[types.Genre]
	titles     *TitleService
}

func newCatalog(t *testing.T) catalog {
	t.Helper()
	mem := memstore.New()
	return catalog{
		mem:        mem,
		categories: NewTaxonomyService[types.Category](mem.Categories()),
		genres:     NewTaxonomyService[types.Genre](mem.Genres()),
		titles:     NewTitleService(mem.Titles(), mem.Categories(), mem.Genres()),
	}
}

func intPtr(v int) *int { return &v }
func strPtr(v string) *string { return &v }
func slugs(v ...string) *[]string { return &v }

func TestTaxonomyCreateAndList(t *testing.T) {
	c := newCatalog(t)
	ctx := context.Background()

	_, err := c.categories.Create(ctx, TaxonRequest{Name: "Movies", Slug: "movie"})
	require.NoError(t, err)
	_, err = c.categories.Create(ctx, TaxonRequest{Name: "Books", Slug: "book"})
	require.NoError(t, err)

	items, total, err := c.categories.List(ctx, types.NameFilter{}, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, "Books", items[0].Name)

	items, total, err = c.categories.List(ctx, types.NameFilter{Search: "mov"}, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "movie", items[0].Slug)
}

func TestTaxonomyCreateValidation(t *testing.T) {
	c := newCatalog(t)
	ctx := context.Background()

	_, err := c.genres.Create(ctx, TaxonRequest{Name: "Drama", Slug: "drama"})
	require.NoError(t, err)

	_, err = c.genres.Create(ctx, TaxonRequest{Name: "Drama 2", Slug: "drama"})
	assert.Contains(t, fieldErrors(t, err), "slug")

	_, err = c.genres.Create(ctx, TaxonRequest{Name: "Bad", Slug: "not a slug"})
	assert.Contains(t, fieldErrors(t, err), "slug")

	_, err = c.genres.Create(ctx, TaxonRequest{Slug: "x"})
	assert.Contains(t, fieldErrors(t, err), "name")
}

func TestTaxonomyDelete(t *testing.T) {
	c := newCatalog(t)
	ctx := context.Background()

	_, err := c.categories.Create(ctx, TaxonRequest{Name: "Movies", Slug: "movie"})
	require.NoError(t, err)

	require.NoError(t, c.categories.Delete(ctx, "movie"))
	assert.ErrorIs(t, c.categories.Delete(ctx, "movie"), store.ErrNotFound)
}

func TestTitleCreateResolvesSlugs(t *testing.T) {
	c := newCatalog(t)
	ctx := context.Background()

	_, err := c.categories.Create(ctx, TaxonRequest{Name: "Movies", Slug: "movie"})
	require.NoError(t, err)
	_, err = c.genres.Create(ctx, TaxonRequest{Name: "Drama", Slug: "drama"})
	require.NoError(t, err)

	title, err := c.titles.Create(ctx, TitleCreateRequest{
		Name:     "Solaris",
		Year:     intPtr(1972),
		Genre:    []string{"drama", "drama"},
		Category: strPtr("movie"),
	})
	require.NoError(t, err)
	require.NotNil(t, title.Category)
	assert.Equal(t, "movie", title.Category.Slug)
	require.Len(t, title.Genres, 1)
	assert.Equal(t, "drama", title.Genres[0].Slug)
	assert.Nil(t, title.Rating)
}

func TestTitleCreateValidation(t *testing.T) {
	c := newCatalog(t)
	ctx := context.Background()

	_, err := c.titles.Create(ctx, TitleCreateRequest{Name: "No year"})
	assert.Contains(t, fieldErrors(t, err), "year")

	_, err = c.titles.Create(ctx, TitleCreateRequest{Name: "Future", Year: intPtr(3000)})
	assert.Contains(t, fieldErrors(t, err), "year")

	_, err = c.titles.Create(ctx, TitleCreateRequest{Name: "Ghost", Year: intPtr(2000), Category: strPtr("nope"), Genre: []string{"none"}})
	errs := fieldErrors(t, err)
	assert.Equal(t, []string{"Object with slug=nope does not exist."}, errs["category"])
	assert.Equal(t, []string{"Object with slug=none does not exist."}, errs["genre"])

	title, err := c.titles.Create(ctx, TitleCreateRequest{Name: "Ancient", Year: intPtr(0)})
	require.NoError(t, err)
	assert.Equal(t, 0, title.Year)
}

func TestTitleUpdateIsPartial(t *testing.T) {
	c := newCatalog(t)
	ctx := context.Background()

	_, err := c.categories.Create(ctx, TaxonRequest{Name: "Movies", Slug: "movie"})
	require.NoError(t, err)
	_, err = c.genres.Create(ctx, TaxonRequest{Name: "Drama", Slug: "drama"})
	require.NoError(t, err)
	created, err := c.titles.Create(ctx, TitleCreateRequest{
		Name:        "Solaris",
		Year:        intPtr(1972),
		Description: "space",
		Genre:       []string{"drama"},
		Category:    strPtr("movie"),
	})
	require.NoError(t, err)

	updated, err := c.titles.Update(ctx, created.ID, TitlePatchRequest{Name: strPtr("Solaris (1972)")})
	require.NoError(t, err)
	assert.Equal(t, "Solaris (1972)", updated.Name)
	assert.Equal(t, 1972, updated.Year)
	assert.Equal(t, "space", updated.Description)
	assert.Len(t, updated.Genres, 1)
	assert.NotNil(t, updated.Category)

	updated, err = c.titles.Update(ctx, created.ID, TitlePatchRequest{Category: strPtr(""), Genre: slugs()})
	require.NoError(t, err)
	assert.Nil(t, updated.Category)
	assert.Empty(t, updated.Genres)

	_, err = c.titles.Update(ctx, created.ID, TitlePatchRequest{Name: strPtr("  ")})
	assert.Contains(t, fieldErrors(t, err), "name")

	_, err = c.titles.Update(ctx, 999, TitlePatchRequest{})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDeletingCategoryAndGenreDetachesTitles(t *testing.T) {
	c := newCatalog(t)
	ctx := context.Background()

	_, err := c.categories.Create(ctx, TaxonRequest{Name: "Movies", Slug: "movie"})
	require.NoError(t, err)
	_, err = c.genres.Create(ctx, TaxonRequest{Name: "Drama", Slug: "drama"})
	require.NoError(t, err)
	created, err := c.titles.Create(ctx, TitleCreateRequest{Name: "Solaris", Year: intPtr(1972), Genre: []string{"drama"}, Category: strPtr("movie")})
	require.NoError(t, err)

	require.NoError(t, c.categories.Delete(ctx, "movie"))
	require.NoError(t, c.genres.Delete(ctx, "drama"))

	title, err := c.titles.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Nil(t, title.Category)
	assert.Empty(t, title.Genres)
}

func TestTitleListFilters(t *testing.T) {
	c := newCatalog(t)
	ctx := context.Background()

	_, err := c.genres.Create(ctx, TaxonRequest{Name: "Drama", Slug: "drama"})
	require.NoError(t, err)
	_, err = c.titles.Create(ctx, TitleCreateRequest{Name: "Solaris", Year: intPtr(1972), Genre: []string{"drama"}})
	require.NoError(t, err)
	_, err = c.titles.Create(ctx, TitleCreateRequest{Name: "Stalker", Year: intPtr(1979)})
	require.NoError(t, err)

	items, total, err := c.titles.List(ctx, types.TitleFilter{Genre: "drama"}, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "Solaris", items[0].Name)

	items, _, err = c.titles.List(ctx, types.TitleFilter{Name: "STAL"}, 0, 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 1979, items[0].Year)

	_, total, err = c.titles.List(ctx, types.TitleFilter{Year: intPtr(1972)}, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}
