package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"
	"github.com/yamdb/apiserver/types"
)

// TaxonomyRepository handles persistence for the name+slug catalog tables
// (categories and genres).
type TaxonomyRepository[T types.Taxon] struct {
	db    *sql.DB
	table string
}

func NewCategoryRepository(db *sql.DB) *TaxonomyRepository[types.Category] {
	return &TaxonomyRepository[types.Category]{db: db, table: "categories"}
}

func NewGenreRepository(db *sql.DB) *TaxonomyRepository[types.Genre] {
	return &TaxonomyRepository[types.Genre]{db: db, table: "genres"}
}

func (r *TaxonomyRepository[T]) List(ctx context.Context, filter types.NameFilter, offset, limit int) ([]T, int, error) {
	pattern := likePattern(filter.Search)

	countQuery := `SELECT COUNT(1) FROM ` + r.table + ` WHERE $1 = '' OR name ILIKE $1`
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, pattern).Scan(&total); err != nil {
		return nil, 0, err
	}

	listQuery := `
		SELECT id, name, slug
		FROM ` + r.table + `
		WHERE $1 = '' OR name ILIKE $1
		ORDER BY name, id
		OFFSET $2 LIMIT $3`
	rows, err := r.db.QueryContext(ctx, listQuery, pattern, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	items := make([]T, 0, limit)
	for rows.Next() {
		var item types.Category
		if err := rows.Scan(&item.ID, &item.Name, &item.Slug); err != nil {
			return nil, 0, err
		}
		items = append(items, T(item))
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *TaxonomyRepository[T]) GetBySlug(ctx context.Context, slug string) (T, error) {
	query := `SELECT id, name, slug FROM ` + r.table + ` WHERE slug = $1`
	var item types.Category
	var zero T
	err := r.db.QueryRowContext(ctx, query, slug).Scan(&item.ID, &item.Name, &item.Slug)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return zero, ErrNotFound
		}
		return zero, err
	}
	return T(item), nil
}

// GetBySlugs returns the rows matching slugs, in no particular order.
// Unknown slugs are silently absent from the result.
func (r *TaxonomyRepository[T]) GetBySlugs(ctx context.Context, slugs []string) ([]T, error) {
	if len(slugs) == 0 {
		return nil, nil
	}

	query := `SELECT id, name, slug FROM ` + r.table + ` WHERE slug = ANY($1)`
	rows, err := r.db.QueryContext(ctx, query, pq.Array(slugs))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]T, 0, len(slugs))
	for rows.Next() {
		var item types.Category
		if err := rows.Scan(&item.ID, &item.Name, &item.Slug); err != nil {
			return nil, err
		}
		items = append(items, T(item))
	}
	return items, rows.Err()
}

func (r *TaxonomyRepository[T]) Create(ctx context.Context, item T) (T, error) {
	row := types.Category(item)
	query := `INSERT INTO ` + r.table + ` (name, slug) VALUES ($1, $2) RETURNING id`
	if err := r.db.QueryRowContext(ctx, query, row.Name, row.Slug).Scan(&row.ID); err != nil {
		var zero T
		return zero, translateError(err)
	}
	return T(row), nil
}

func (r *TaxonomyRepository[T]) DeleteBySlug(ctx context.Context, slug string) error {
	query := `DELETE FROM ` + r.table + ` WHERE slug = $1`
	result, err := r.db.ExecContext(ctx, query, slug)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
