package types

import "time"

const (
	MinScore = 1
	MaxScore = 10
)

// Review is a scored text evaluation of a title. A user may review a title once.
type Review struct {
	ID       int `json:"id" db:"id"`
	TitleID  int `json:"-" db:"title_id"`
	AuthorID int `json:"-" db:"author_id"`

	// Author is the username of the author, resolved on read.
	Author  string    `json:"author"`
	Text    string    `json:"text" db:"text"`
	Score   int       `json:"score" db:"score"`
	PubDate time.Time `json:"pub_date" db:"pub_date"`
}

// Comment is a text reply attached to a review.
type Comment struct {
	ID       int       `json:"id" db:"id"`
	ReviewID int       `json:"-" db:"review_id"`
	AuthorID int       `json:"-" db:"author_id"`
	Author   string    `json:"author"`
	Text     string    `json:"text" db:"text"`
	PubDate  time.Time `json:"pub_date" db:"pub_date"`
}
