package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/yamdb/apiserver/types"
)

// TitleRepository handles persistence for titles and their genre links.
type TitleRepository struct {
	db *sql.DB
}

func NewTitleRepository(db *sql.DB) *TitleRepository {
	return &TitleRepository{db: db}
}

const titleSelect = `
	SELECT t.id, t.name, t.year, t.description,
	       c.id, c.name, c.slug,
	       r.rating
	FROM titles t
	LEFT JOIN categories c ON c.id = t.category_id
	LEFT JOIN LATERAL (
		SELECT AVG(score)::float8 AS rating FROM reviews WHERE title_id = t.id
	) r ON TRUE`

func scanTitle(row scanner) (types.Title, error) {
	var (
		title        types.Title
		categoryID   sql.NullInt64
		categoryName sql.NullString
		categorySlug sql.NullString
		rating       sql.NullFloat64
	)
	err := row.Scan(
		&title.ID,
		&title.Name,
		&title.Year,
		&title.Description,
		&categoryID,
		&categoryName,
		&categorySlug,
		&rating,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Title{}, ErrNotFound
		}
		return types.Title{}, err
	}
	if categoryID.Valid {
		title.Category = &types.Category{
			ID:   int(categoryID.Int64),
			Name: categoryName.String,
			Slug: categorySlug.String,
		}
	}
	if rating.Valid {
		value := rating.Float64
		title.Rating = &value
	}
	title.Genres = []types.Genre{}
	return title, nil
}

// titleWhere renders the filter as a WHERE clause and its positional args.
func titleWhere(filter types.TitleFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if pattern := likePattern(filter.Name); pattern != "" {
		args = append(args, pattern)
		conds = append(conds, fmt.Sprintf("t.name ILIKE $%d", len(args)))
	}
	if filter.Year != nil {
		args = append(args, *filter.Year)
		conds = append(conds, fmt.Sprintf("t.year = $%d", len(args)))
	}
	if slug := strings.TrimSpace(filter.Category); slug != "" {
		args = append(args, slug)
		conds = append(conds, fmt.Sprintf("t.category_id IN (SELECT id FROM categories WHERE slug = $%d)", len(args)))
	}
	if slug := strings.TrimSpace(filter.Genre); slug != "" {
		args = append(args, slug)
		conds = append(conds, fmt.Sprintf(`EXISTS (
			SELECT 1 FROM title_genres tg JOIN genres g ON g.id = tg.genre_id
			WHERE tg.title_id = t.id AND g.slug = $%d)`, len(args)))
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (r *TitleRepository) List(ctx context.Context, filter types.TitleFilter, offset, limit int) ([]types.Title, int, error) {
	where, args := titleWhere(filter)

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM titles t`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	listQuery := titleSelect + where + fmt.Sprintf(" ORDER BY t.name, t.id OFFSET $%d LIMIT $%d", len(args)+1, len(args)+2)
	rows, err := r.db.QueryContext(ctx, listQuery, append(args, offset, limit)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	titles := make([]types.Title, 0, limit)
	for rows.Next() {
		title, err := scanTitle(rows)
		if err != nil {
			return nil, 0, err
		}
		titles = append(titles, title)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	if err := r.attachGenres(ctx, titles); err != nil {
		return nil, 0, err
	}
	return titles, total, nil
}

func (r *TitleRepository) Get(ctx context.Context, id int) (types.Title, error) {
	title, err := scanTitle(r.db.QueryRowContext(ctx, titleSelect+` WHERE t.id = $1`, id))
	if err != nil {
		return types.Title{}, err
	}
	titles := []types.Title{title}
	if err := r.attachGenres(ctx, titles); err != nil {
		return types.Title{}, err
	}
	return titles[0], nil
}

// Exists reports whether a title with the given id is stored.
func (r *TitleRepository) Exists(ctx context.Context, id int) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM titles WHERE id = $1)`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// attachGenres loads the genres of every title in one query.
func (r *TitleRepository) attachGenres(ctx context.Context, titles []types.Title) error {
	if len(titles) == 0 {
		return nil
	}

	ids := make([]int64, len(titles))
	index := make(map[int]int, len(titles))
	for i, title := range titles {
		ids[i] = int64(title.ID)
		index[title.ID] = i
	}

	const query = `
		SELECT tg.title_id, g.id, g.name, g.slug
		FROM title_genres tg
		JOIN genres g ON g.id = tg.genre_id
		WHERE tg.title_id = ANY($1)
		ORDER BY g.name, g.id`
	rows, err := r.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			titleID int
			genre   types.Genre
		)
		if err := rows.Scan(&titleID, &genre.ID, &genre.Name, &genre.Slug); err != nil {
			return err
		}
		if i, ok := index[titleID]; ok {
			titles[i].Genres = append(titles[i].Genres, genre)
		}
	}
	return rows.Err()
}

func (r *TitleRepository) Create(ctx context.Context, title types.Title) (types.Title, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return types.Title{}, err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	const query = `
		INSERT INTO titles (name, year, description, category_id)
		VALUES ($1, $2, $3, $4)
		RETURNING id`
	if err := tx.QueryRowContext(
		ctx,
		query,
		title.Name,
		title.Year,
		title.Description,
		categoryID(title.Category),
	).Scan(&title.ID); err != nil {
		return types.Title{}, translateError(err)
	}

	if err := replaceGenres(ctx, tx, title.ID, title.Genres); err != nil {
		return types.Title{}, err
	}
	if err := tx.Commit(); err != nil {
		return types.Title{}, err
	}
	return r.Get(ctx, title.ID)
}

// Update overwrites the title's columns and its complete genre set.
func (r *TitleRepository) Update(ctx context.Context, title types.Title) (types.Title, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return types.Title{}, err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	const query = `
		UPDATE titles
		SET name = $1,
			year = $2,
			description = $3,
			category_id = $4
		WHERE id = $5`
	result, err := tx.ExecContext(
		ctx,
		query,
		title.Name,
		title.Year,
		title.Description,
		categoryID(title.Category),
		title.ID,
	)
	if err != nil {
		return types.Title{}, translateError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.Title{}, err
	}
	if affected == 0 {
		return types.Title{}, ErrNotFound
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM title_genres WHERE title_id = $1`, title.ID); err != nil {
		return types.Title{}, err
	}
	if err := replaceGenres(ctx, tx, title.ID, title.Genres); err != nil {
		return types.Title{}, err
	}
	if err := tx.Commit(); err != nil {
		return types.Title{}, err
	}
	return r.Get(ctx, title.ID)
}

func (r *TitleRepository) Delete(ctx context.Context, id int) error {
	const query = `DELETE FROM titles WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
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

func replaceGenres(ctx context.Context, tx *sql.Tx, titleID int, genres []types.Genre) error {
	if len(genres) == 0 {
		return nil
	}
	ids := make([]int64, len(genres))
	for i, genre := range genres {
		ids[i] = int64(genre.ID)
	}
	const query = `
		INSERT INTO title_genres (title_id, genre_id)
		SELECT $1, UNNEST($2::int[])
		ON CONFLICT DO NOTHING`
	_, err := tx.ExecContext(ctx, query, titleID, pq.Array(ids))
	return err
}

func categoryID(category *types.Category) sql.NullInt64 {
	if category == nil || category.ID == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(category.ID), Valid: true}
}
