package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/yamdb/apiserver/types"
)

// ReviewRepository handles persistence for reviews.
type ReviewRepository struct {
	db *sql.DB
}

func NewReviewRepository(db *sql.DB) *ReviewRepository {
	return &ReviewRepository{db: db}
}

const reviewSelect = `
	SELECT r.id, r.title_id, r.author_id, u.username, r.text, r.score, r.pub_date
	FROM reviews r
	JOIN users u ON u.id = r.author_id`

func scanReview(row scanner) (types.Review, error) {
	var review types.Review
	err := row.Scan(
		&review.ID,
		&review.TitleID,
		&review.AuthorID,
		&review.Author,
		&review.Text,
		&review.Score,
		&review.PubDate,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Review{}, ErrNotFound
		}
		return types.Review{}, err
	}
	return review, nil
}

func (r *ReviewRepository) ListByTitle(ctx context.Context, titleID, offset, limit int) ([]types.Review, int, error) {
	const countQuery = `SELECT COUNT(1) FROM reviews WHERE title_id = $1`
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, titleID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.QueryContext(ctx, reviewSelect+`
		WHERE r.title_id = $1
		ORDER BY r.pub_date, r.id
		OFFSET $2 LIMIT $3`, titleID, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	reviews := make([]types.Review, 0, limit)
	for rows.Next() {
		review, err := scanReview(rows)
		if err != nil {
			return nil, 0, err
		}
		reviews = append(reviews, review)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return reviews, total, nil
}

func (r *ReviewRepository) Get(ctx context.Context, id int) (types.Review, error) {
	return scanReview(r.db.QueryRowContext(ctx, reviewSelect+` WHERE r.id = $1`, id))
}

// ExistsForAuthor reports whether the author already reviewed the title.
func (r *ReviewRepository) ExistsForAuthor(ctx context.Context, titleID, authorID int) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM reviews WHERE title_id = $1 AND author_id = $2)`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, titleID, authorID).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// Create inserts a review. A concurrent duplicate for the same (author, title)
// pair fails with ErrConflict from the unique_author_review constraint.
func (r *ReviewRepository) Create(ctx context.Context, review types.Review) (types.Review, error) {
	const query = `
		INSERT INTO reviews (title_id, author_id, text, score)
		VALUES ($1, $2, $3, $4)
		RETURNING id, pub_date`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		review.TitleID,
		review.AuthorID,
		review.Text,
		review.Score,
	).Scan(&review.ID, &review.PubDate); err != nil {
		return types.Review{}, translateError(err)
	}
	return review, nil
}

func (r *ReviewRepository) Update(ctx context.Context, review types.Review) (types.Review, error) {
	const query = `UPDATE reviews SET text = $1, score = $2 WHERE id = $3`
	result, err := r.db.ExecContext(ctx, query, review.Text, review.Score, review.ID)
	if err != nil {
		return types.Review{}, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.Review{}, err
	}
	if affected == 0 {
		return types.Review{}, ErrNotFound
	}
	return review, nil
}

func (r *ReviewRepository) Delete(ctx context.Context, id int) error {
	const query = `DELETE FROM reviews WHERE id = $1`
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
