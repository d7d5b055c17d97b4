// Package memstore is an in-memory implementation of the repositories, used by
// service and handler tests. It mirrors the Postgres schema's uniqueness
// constraints and cascades.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/yamdb/apiserver/internal/store"
	"github.com/yamdb/apiserver/types"
)

// Store holds every table behind one lock.
type Store struct {
	mu sync.Mutex

	nextID     int
	users      map[int]types.User
	categories map[int]types.Category
	genres     map[int]types.Genre
	titles     map[int]types.Title
	titleGenre map[int][]int
	reviews    map[int]types.Review
	comments   map[int]types.Comment

	// Now stamps pub_date values.
	Now func() time.Time
}

func New() *Store {
	return &Store{
		users:      map[int]types.User{},
		categories: map[int]types.Category{},
		genres:     map[int]types.Genre{},
		titles:     map[int]types.Title{},
		titleGenre: map[int][]int{},
		reviews:    map[int]types.Review{},
		comments:   map[int]types.Comment{},
		Now:        time.Now,
	}
}

func (s *Store) id() int {
	s.nextID++
	return s.nextID
}

func window[E any](items []E, offset, limit int) []E {
	if offset >= len(items) {
		return []E{}
	}
	end := offset + limit
	if end > len(items) || limit <= 0 {
		end = len(items)
	}
	return items[offset:end]
}

func contains(haystack, needle string) bool {
	return needle == "" || strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

// Users

type UserRepository struct{ s *Store }

func (s *Store) Users() *UserRepository { return &UserRepository{s: s} }

func (r *UserRepository) List(_ context.Context, filter types.NameFilter, offset, limit int) ([]types.User, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []types.User
	for _, user := range r.s.users {
		if contains(user.Username, filter.Search) {
			out = append(out, user)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return window(out, offset, limit), len(out), nil
}

func (r *UserRepository) GetByID(_ context.Context, id int) (types.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	user, ok := r.s.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

func (r *UserRepository) GetByUsername(_ context.Context, username string) (types.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, user := range r.s.users {
		if user.Username == username {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *UserRepository) GetByEmail(_ context.Context, email string) (types.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, user := range r.s.users {
		if strings.EqualFold(user.Email, email) {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *UserRepository) conflict(user types.User) error {
	for _, other := range r.s.users {
		if other.ID == user.ID {
			continue
		}
		if other.Username == user.Username {
			return &store.ConflictError{Constraint: "users_username_key"}
		}
		if strings.EqualFold(other.Email, user.Email) {
			return &store.ConflictError{Constraint: "users_email_key"}
		}
	}
	return nil
}

func (r *UserRepository) Create(_ context.Context, user types.User) (types.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.conflict(user); err != nil {
		return types.User{}, err
	}
	if user.Role == "" {
		user.Role = types.RoleUser
	}
	user.ID = r.s.id()
	user.CreatedAt = r.s.Now()
	user.UpdatedAt = user.CreatedAt
	r.s.users[user.ID] = user
	return user, nil
}

func (r *UserRepository) Update(_ context.Context, user types.User) (types.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[user.ID]; !ok {
		return types.User{}, store.ErrNotFound
	}
	if err := r.conflict(user); err != nil {
		return types.User{}, err
	}
	user.UpdatedAt = r.s.Now()
	r.s.users[user.ID] = user
	return user, nil
}

func (r *UserRepository) SetConfirmationCode(_ context.Context, id int, codeHash string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	user, ok := r.s.users[id]
	if !ok {
		return store.ErrNotFound
	}
	user.ConfirmationCodeHash = codeHash
	r.s.users[id] = user
	return nil
}

func (r *UserRepository) Delete(_ context.Context, id int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[id]; !ok {
		return store.ErrNotFound
	}
	delete(r.s.users, id)
	for reviewID, review := range r.s.reviews {
		if review.AuthorID == id {
			r.s.deleteReview(reviewID)
		}
	}
	for commentID, comment := range r.s.comments {
		if comment.AuthorID == id {
			delete(r.s.comments, commentID)
		}
	}
	return nil
}

// Categories and genres

type TaxonomyRepository[T types.Taxon] struct {
	s     *Store
	table func(*Store) map[int]types.Category
	store func(*Store, types.Category)
	drop  func(*Store, int)
}

func (s *Store) Categories() *TaxonomyRepository[types.Category] {
	return &TaxonomyRepository[types.Category]{
		s: s,
		table: func(s *Store) map[int]types.Category {
			out := make(map[int]types.Category, len(s.categories))
			for id, item := range s.categories {
				out[id] = item
			}
			return out
		},
		store: func(s *Store, item types.Category) { s.categories[item.ID] = item },
		drop: func(s *Store, id int) {
			delete(s.categories, id)
			for titleID, title := range s.titles {
				if title.Category != nil && title.Category.ID == id {
					title.Category = nil
					s.titles[titleID] = title
				}
			}
		},
	}
}

func (s *Store) Genres() *TaxonomyRepository[types.Genre] {
	return &TaxonomyRepository[types.Genre]{
		s: s,
		table: func(s *Store) map[int]types.Category {
			out := make(map[int]types.Category, len(s.genres))
			for id, item := range s.genres {
				out[id] = types.Category(item)
			}
			return out
		},
		store: func(s *Store, item types.Category) { s.genres[item.ID] = types.Genre(item) },
		drop: func(s *Store, id int) {
			delete(s.genres, id)
			for titleID, ids := range s.titleGenre {
				kept := ids[:0]
				for _, genreID := range ids {
					if genreID != id {
						kept = append(kept, genreID)
					}
				}
				s.titleGenre[titleID] = kept
			}
		},
	}
}

func (r *TaxonomyRepository[T]) List(_ context.Context, filter types.NameFilter, offset, limit int) ([]T, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var rows []types.Category
	for _, item := range r.table(r.s) {
		if contains(item.Name, filter.Search) {
			rows = append(rows, item)
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Name != rows[j].Name {
			return rows[i].Name < rows[j].Name
		}
		return rows[i].ID < rows[j].ID
	})

	out := make([]T, 0, len(rows))
	for _, row := range window(rows, offset, limit) {
		out = append(out, T(row))
	}
	return out, len(rows), nil
}

func (r *TaxonomyRepository[T]) GetBySlug(_ context.Context, slug string) (T, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, item := range r.table(r.s) {
		if item.Slug == slug {
			return T(item), nil
		}
	}
	var zero T
	return zero, store.ErrNotFound
}

func (r *TaxonomyRepository[T]) GetBySlugs(_ context.Context, slugs []string) ([]T, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	wanted := make(map[string]bool, len(slugs))
	for _, slug := range slugs {
		wanted[slug] = true
	}
	var out []T
	for _, item := range r.table(r.s) {
		if wanted[item.Slug] {
			out = append(out, T(item))
		}
	}
	return out, nil
}

func (r *TaxonomyRepository[T]) Create(_ context.Context, item T) (T, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	row := types.Category(item)
	for _, existing := range r.table(r.s) {
		if existing.Slug == row.Slug {
			var zero T
			return zero, &store.ConflictError{Constraint: "slug_key"}
		}
	}
	row.ID = r.s.id()
	r.store(r.s, row)
	return T(row), nil
}

func (r *TaxonomyRepository[T]) DeleteBySlug(_ context.Context, slug string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for id, item := range r.table(r.s) {
		if item.Slug == slug {
			r.drop(r.s, id)
			return nil
		}
	}
	return store.ErrNotFound
}

// Titles

type TitleRepository struct{ s *Store }

func (s *Store) Titles() *TitleRepository { return &TitleRepository{s: s} }

// hydrate fills in genres, category and rating. The caller holds the lock.
func (s *Store) hydrate(title types.Title) types.Title {
	if title.Category != nil {
		if category, ok := s.categories[title.Category.ID]; ok {
			title.Category = &category
		} else {
			title.Category = nil
		}
	}

	title.Genres = []types.Genre{}
	for _, id := range s.titleGenre[title.ID] {
		if genre, ok := s.genres[id]; ok {
			title.Genres = append(title.Genres, genre)
		}
	}
	sort.Slice(title.Genres, func(i, j int) bool { return title.Genres[i].Name < title.Genres[j].Name })

	var sum, n int
	for _, review := range s.reviews {
		if review.TitleID == title.ID {
			sum += review.Score
			n++
		}
	}
	title.Rating = nil
	if n > 0 {
		rating := float64(sum) / float64(n)
		title.Rating = &rating
	}
	return title
}

func (r *TitleRepository) List(_ context.Context, filter types.TitleFilter, offset, limit int) ([]types.Title, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []types.Title
	for _, stored := range r.s.titles {
		title := r.s.hydrate(stored)
		if !contains(title.Name, filter.Name) {
			continue
		}
		if filter.Year != nil && title.Year != *filter.Year {
			continue
		}
		if filter.Category != "" && (title.Category == nil || title.Category.Slug != filter.Category) {
			continue
		}
		if filter.Genre != "" && !hasGenre(title, filter.Genre) {
			continue
		}
		out = append(out, title)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return window(out, offset, limit), len(out), nil
}

func hasGenre(title types.Title, slug string) bool {
	for _, genre := range title.Genres {
		if genre.Slug == slug {
			return true
		}
	}
	return false
}

func (r *TitleRepository) Get(_ context.Context, id int) (types.Title, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	title, ok := r.s.titles[id]
	if !ok {
		return types.Title{}, store.ErrNotFound
	}
	return r.s.hydrate(title), nil
}

func (r *TitleRepository) Exists(_ context.Context, id int) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	_, ok := r.s.titles[id]
	return ok, nil
}

func (r *TitleRepository) save(title types.Title) types.Title {
	ids := make([]int, 0, len(title.Genres))
	for _, genre := range title.Genres {
		ids = append(ids, genre.ID)
	}
	r.s.titleGenre[title.ID] = ids
	title.Genres = nil
	r.s.titles[title.ID] = title
	return r.s.hydrate(title)
}

func (r *TitleRepository) Create(_ context.Context, title types.Title) (types.Title, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	title.ID = r.s.id()
	return r.save(title), nil
}

func (r *TitleRepository) Update(_ context.Context, title types.Title) (types.Title, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.titles[title.ID]; !ok {
		return types.Title{}, store.ErrNotFound
	}
	return r.save(title), nil
}

func (r *TitleRepository) Delete(_ context.Context, id int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.titles[id]; !ok {
		return store.ErrNotFound
	}
	delete(r.s.titles, id)
	delete(r.s.titleGenre, id)
	for reviewID, review := range r.s.reviews {
		if review.TitleID == id {
			r.s.deleteReview(reviewID)
		}
	}
	return nil
}

// Reviews

type ReviewRepository struct{ s *Store }

func (s *Store) Reviews() *ReviewRepository { return &ReviewRepository{s: s} }

func (s *Store) withAuthor(review types.Review) types.Review {
	review.Author = s.users[review.AuthorID].Username
	return review
}

// deleteReview cascades to comments. The caller holds the lock.
func (s *Store) deleteReview(id int) {
	delete(s.reviews, id)
	for commentID, comment := range s.comments {
		if comment.ReviewID == id {
			delete(s.comments, commentID)
		}
	}
}

func (r *ReviewRepository) ListByTitle(_ context.Context, titleID, offset, limit int) ([]types.Review, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []types.Review
	for _, review := range r.s.reviews {
		if review.TitleID == titleID {
			out = append(out, r.s.withAuthor(review))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return window(out, offset, limit), len(out), nil
}

func (r *ReviewRepository) Get(_ context.Context, id int) (types.Review, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	review, ok := r.s.reviews[id]
	if !ok {
		return types.Review{}, store.ErrNotFound
	}
	return r.s.withAuthor(review), nil
}

func (r *ReviewRepository) ExistsForAuthor(_ context.Context, titleID, authorID int) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, review := range r.s.reviews {
		if review.TitleID == titleID && review.AuthorID == authorID {
			return true, nil
		}
	}
	return false, nil
}

func (r *ReviewRepository) Create(_ context.Context, review types.Review) (types.Review, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.reviews {
		if existing.TitleID == review.TitleID && existing.AuthorID == review.AuthorID {
			return types.Review{}, &store.ConflictError{Constraint: "unique_author_review"}
		}
	}
	review.ID = r.s.id()
	review.PubDate = r.s.Now()
	r.s.reviews[review.ID] = review
	return r.s.withAuthor(review), nil
}

func (r *ReviewRepository) Update(_ context.Context, review types.Review) (types.Review, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.reviews[review.ID]
	if !ok {
		return types.Review{}, store.ErrNotFound
	}
	stored.Text = review.Text
	stored.Score = review.Score
	r.s.reviews[review.ID] = stored
	return r.s.withAuthor(stored), nil
}

func (r *ReviewRepository) Delete(_ context.Context, id int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.reviews[id]; !ok {
		return store.ErrNotFound
	}
	r.s.deleteReview(id)
	return nil
}

// Comments

type CommentRepository struct{ s *Store }

func (s *Store) Comments() *CommentRepository { return &CommentRepository{s: s} }

func (s *Store) withCommentAuthor(comment types.Comment) types.Comment {
	comment.Author = s.users[comment.AuthorID].Username
	return comment
}

func (r *CommentRepository) ListByReview(_ context.Context, reviewID, offset, limit int) ([]types.Comment, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []types.Comment
	for _, comment := range r.s.comments {
		if comment.ReviewID == reviewID {
			out = append(out, r.s.withCommentAuthor(comment))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return window(out, offset, limit), len(out), nil
}

func (r *CommentRepository) Get(_ context.Context, id int) (types.Comment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	comment, ok := r.s.comments[id]
	if !ok {
		return types.Comment{}, store.ErrNotFound
	}
	return r.s.withCommentAuthor(comment), nil
}

func (r *CommentRepository) Create(_ context.Context, comment types.Comment) (types.Comment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	comment.ID = r.s.id()
	comment.PubDate = r.s.Now()
	r.s.comments[comment.ID] = comment
	return r.s.withCommentAuthor(comment), nil
}

func (r *CommentRepository) Update(_ context.Context, comment types.Comment) (types.Comment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.comments[comment.ID]
	if !ok {
		return types.Comment{}, store.ErrNotFound
	}
	stored.Text = comment.Text
	r.s.comments[comment.ID] = stored
	return r.s.withCommentAuthor(stored), nil
}

func (r *CommentRepository) Delete(_ context.Context, id int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.comments[id]; !ok {
		return store.ErrNotFound
	}
	delete(r.s.comments, id)
	return nil
}
