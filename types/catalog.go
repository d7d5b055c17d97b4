package types

// Category groups titles by kind (films, books, music).
type Category struct {
	ID   int    `json:"-" db:"id"`
	Name string `json:"name" db:"name"`
	Slug string `json:"slug" db:"slug"`
}

// Genre is a label that may be attached to any number of titles.
// It shares the category's shape.
type Genre Category

// Taxon is satisfied by the name+slug catalog entities.
type Taxon interface {
	Category | Genre
}

// Title is a reviewable catalog item.
type Title struct {
	ID          int    `json:"id" db:"id"`
	Name        string `json:"name" db:"name"`
	Year        int    `json:"year" db:"year"`
	Description string `json:"description" db:"description"`

	// Rating is the mean of all review scores, nil when the title has no reviews.
	Rating *float64 `json:"rating"`

	// Genres is always serialized as an array, never null.
	Genres []Genre `json:"genre"`

	// Category is nil when unset or when the category was deleted.
	Category *Category `json:"category"`
}

// TitleFilter narrows a title listing. Empty strings and a nil Year are ignored.
type TitleFilter struct {
	Name     string
	Year     *int
	Category string
	Genre    string
}

// NameFilter narrows category, genre and user listings by a search term.
type NameFilter struct {
	Search string
}
