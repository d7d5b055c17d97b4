package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/yamdb/apiserver/types"
)

// CommentRepository handles persistence for comments.
type CommentRepository struct {
	db *sql.DB
}

func NewCommentRepository(db *sql.DB) *CommentRepository {
	return &CommentRepository{db: db}
}

const commentSelect = `
	SELECT c.id, c.review_id, c.author_id, u.username, c.text, c.pub_date
	FROM comments c
	JOIN users u ON u.id = c.author_id`

func scanComment(row scanner) (types.Comment, error) {
	var comment types.Comment
	err := row.Scan(
		&comment.ID,
		&comment.ReviewID,
		&comment.AuthorID,
		&comment.Author,
		&comment.Text,
		&comment.PubDate,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Comment{}, ErrNotFound
		}
		return types.Comment{}, err
	}
	return comment, nil
}

func (r *CommentRepository) ListByReview(ctx context.Context, reviewID, offset, limit int) ([]types.Comment, int, error) {
	const countQuery = `SELECT COUNT(1) FROM comments WHERE review_id = $1`
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, reviewID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.QueryContext(ctx, commentSelect+`
		WHERE c.review_id = $1
		ORDER BY c.pub_date, c.id
		OFFSET $2 LIMIT $3`, reviewID, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	comments := make([]types.Comment, 0, limit)
	for rows.Next() {
		comment, err := scanComment(rows)
		if err != nil {
			return nil, 0, err
		}
		comments = append(comments, comment)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return comments, total, nil
}

func (r *CommentRepository) Get(ctx context.Context, id int) (types.Comment, error) {
	return scanComment(r.db.QueryRowContext(ctx, commentSelect+` WHERE c.id = $1`, id))
}

func (r *CommentRepository) Create(ctx context.Context, comment types.Comment) (types.Comment, error) {
	const query = `
		INSERT INTO comments (review_id, author_id, text)
		VALUES ($1, $2, $3)
		RETURNING id, pub_date`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		comment.ReviewID,
		comment.AuthorID,
		comment.Text,
	).Scan(&comment.ID, &comment.PubDate); err != nil {
		return types.Comment{}, translateError(err)
	}
	return comment, nil
}

func (r *CommentRepository) Update(ctx context.Context, comment types.Comment) (types.Comment, error) {
	const query = `UPDATE comments SET text = $1 WHERE id = $2`
	result, err := r.db.ExecContext(ctx, query, comment.Text, comment.ID)
	if err != nil {
		return types.Comment{}, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.Comment{}, err
	}
	if affected == 0 {
		return types.Comment{}, ErrNotFound
	}
	return comment, nil
}

func (r *CommentRepository) Delete(ctx context.Context, id int) error {
	const query = `DELETE FROM comments WHERE id = $1`
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
