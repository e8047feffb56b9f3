// Package movies reads and writes the movie catalog and its ratings.
package movies

import (
	"fmt"
	"time"
)

const (
	MinStars = 1
	MaxStars = 5

	// RecentRatingsLimit caps the admin moderation list
	RecentRatingsLimit = 50
)

type Movie struct {
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	Description   *string    `json:"description"`
	CoverImageURL *string    `json:"cover_image_url"`
	CreatedAt     *time.Time `json:"created_at,omitempty"`
	UpdatedAt     *time.Time `json:"updated_at,omitempty"`
}

// MovieWithStats is a row of the movie_stats view.
type MovieWithStats struct {
	Movie
	AverageRating *float64 `json:"average_rating"`
	RatingCount   int      `json:"rating_count"`
}

// AverageLabel formats the average with one decimal, "0.0" when unrated
func (m MovieWithStats) AverageLabel() string {
	if m.AverageRating == nil {
		return "0.0"
	}
	return fmt.Sprintf("%.1f", *m.AverageRating)
}

// RoundedStars is the average rounded to whole stars
func (m MovieWithStats) RoundedStars() int {
	if m.AverageRating == nil {
		return 0
	}
	return int(*m.AverageRating + 0.5)
}

type Rating struct {
	ID        string     `json:"id"`
	MovieID   string     `json:"movie_id"`
	UserID    string     `json:"user_id"`
	Rating    int        `json:"rating"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// MovieTitle is the embedded movies resource of a rating row
type MovieTitle struct {
	Title string `json:"title"`
}

// RatingWithUser is a row of the rating_with_user view.
type RatingWithUser struct {
	Rating
	UserEmail *string     `json:"user_email"`
	UserRole  *string     `json:"user_role"`
	Movie     *MovieTitle `json:"movies,omitempty"`
}

// Email returns the rater's email or a placeholder
func (r RatingWithUser) Email() string {
	if r.UserEmail == nil || *r.UserEmail == "" {
		return "Unknown user"
	}
	return *r.UserEmail
}

// MovieTitle returns the rated movie's title when it was selected
func (r RatingWithUser) MovieTitle() string {
	if r.Movie == nil {
		return ""
	}
	return r.Movie.Title
}

// MovieInput is the admin movie form. ID is empty for a new movie.
type MovieInput struct {
	ID            string
	Title         string
	Description   string
	CoverImageURL string
}
