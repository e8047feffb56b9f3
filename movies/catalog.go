package movies

import (
	"context"
	"net/url"
	"strings"

	"github.com/jrsteele09/movie-ratings/backend"
	apperrors "github.com/jrsteele09/movie-ratings/internal/errors"
	"github.com/jrsteele09/movie-ratings/internal/utils"
	"github.com/pkg/errors"
)

// Catalog wraps the data requests behind the movie pages. Writes run as the
// session attached to ctx and are subject to the backend's policies.
type Catalog struct {
	data backend.DataClient
}

func NewCatalog(data backend.DataClient) *Catalog {
	return &Catalog{data: data}
}

// ListMovies returns every movie with its rating stats, newest first
func (c *Catalog) ListMovies(ctx context.Context) ([]MovieWithStats, error) {
	movies := []MovieWithStats{}
	q := backend.From(backend.ViewMovieStats).OrderBy("created_at", false)
	if err := c.data.Select(ctx, q, &movies); err != nil {
		return nil, errors.Wrap(err, "[ListMovies] select movie_stats")
	}
	if movies == nil {
		movies = []MovieWithStats{}
	}
	return movies, nil
}

func (c *Catalog) GetMovie(ctx context.Context, movieID string) (*MovieWithStats, error) {
	var movie MovieWithStats
	q := backend.From(backend.ViewMovieStats).Eq("id", movieID)
	if err := c.data.SelectOne(ctx, q, &movie); err != nil {
		return nil, errors.Wrap(err, "[GetMovie] select movie_stats")
	}
	return &movie, nil
}

// RatingsForMovie returns a movie's ratings with their raters, newest first
func (c *Catalog) RatingsForMovie(ctx context.Context, movieID string) ([]RatingWithUser, error) {
	ratings := []RatingWithUser{}
	q := backend.From(backend.ViewRatingWithUser).Eq("movie_id", movieID).OrderBy("created_at", false)
	if err := c.data.Select(ctx, q, &ratings); err != nil {
		return nil, errors.Wrap(err, "[RatingsForMovie] select rating_with_user")
	}
	if ratings == nil {
		ratings = []RatingWithUser{}
	}
	return ratings, nil
}

// RecentRatings returns the latest ratings across all movies, with titles
func (c *Catalog) RecentRatings(ctx context.Context) ([]RatingWithUser, error) {
	ratings := []RatingWithUser{}
	q := backend.From(backend.ViewRatingWithUser).
		Select("*", "movies!inner(title)").
		OrderBy("created_at", false).
		WithLimit(RecentRatingsLimit)
	if err := c.data.Select(ctx, q, &ratings); err != nil {
		return nil, errors.Wrap(err, "[RecentRatings] select rating_with_user")
	}
	if ratings == nil {
		ratings = []RatingWithUser{}
	}
	return ratings, nil
}

// UserRating returns the stars userID gave movieID, nil when unrated
func (c *Catalog) UserRating(ctx context.Context, userID, movieID string) (*int, error) {
	var rating Rating
	q := backend.From(backend.TableRatings).Select("rating").Eq("user_id", userID).Eq("movie_id", movieID)
	err := c.data.SelectOne(ctx, q, &rating)
	switch {
	case apperrors.Is(err, apperrors.ErrNotFound):
		return nil, nil
	case err != nil:
		return nil, errors.Wrap(err, "[UserRating] select ratings")
	}
	return utils.Ptr(rating.Rating), nil
}

// ValidateStars rejects ratings outside 1..5
func ValidateStars(stars int) error {
	if stars < MinStars || stars > MaxStars {
		return apperrors.NewValidationError("rating", "Please choose a rating between 1 and 5 stars")
	}
	return nil
}

// SubmitRating records userID's rating of movieID, replacing an earlier one.
// Invalid stars are rejected before any request is made.
func (c *Catalog) SubmitRating(ctx context.Context, userID, movieID string, stars int) error {
	if err := ValidateStars(stars); err != nil {
		return err
	}
	if userID == "" {
		return apperrors.ErrSessionMissing
	}

	existing, err := c.UserRating(ctx, userID, movieID)
	if err != nil {
		return errors.Wrap(err, "[SubmitRating]")
	}
	if existing != nil {
		filters := []backend.Filter{backend.Eq("user_id", userID), backend.Eq("movie_id", movieID)}
		if err := c.data.Update(ctx, backend.TableRatings, filters, map[string]any{"rating": stars}); err != nil {
			return errors.Wrap(err, "[SubmitRating] update ratings")
		}
		return nil
	}

	payload := map[string]any{"user_id": userID, "movie_id": movieID, "rating": stars}
	if err := c.data.Insert(ctx, backend.TableRatings, payload, nil); err != nil {
		return errors.Wrap(err, "[SubmitRating] insert ratings")
	}
	return nil
}

type moviePayload struct {
	Title         string  `json:"title"`
	Description   *string `json:"description"`
	CoverImageURL *string `json:"cover_image_url"`
}

// Validate checks the form without making a request
func (in MovieInput) Validate() error {
	_, err := in.payload()
	return err
}

// payload validates the form and normalizes blank optional fields to null
func (in MovieInput) payload() (moviePayload, error) {
	p := moviePayload{Title: strings.TrimSpace(in.Title)}
	if p.Title == "" {
		return moviePayload{}, apperrors.NewValidationError("title", "Movie title is required")
	}
	p.Description = utils.TrimmedOrNil(in.Description)
	if u := utils.TrimmedOrNil(in.CoverImageURL); u != nil {
		parsed, err := url.Parse(*u)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
			return moviePayload{}, apperrors.NewValidationError("cover_image_url", "Cover image URL must be an http or https address")
		}
		p.CoverImageURL = u
	}
	return p, nil
}

// SaveMovie updates the movie when in.ID is set and creates it otherwise.
// It returns the movie ID.
func (c *Catalog) SaveMovie(ctx context.Context, in MovieInput) (string, error) {
	payload, err := in.payload()
	if err != nil {
		return "", err
	}

	if in.ID != "" {
		if err := c.data.Update(ctx, backend.TableMovies, []backend.Filter{backend.Eq("id", in.ID)}, payload); err != nil {
			return "", errors.Wrap(err, "[SaveMovie] update movies")
		}
		return in.ID, nil
	}

	var created Movie
	if err := c.data.Insert(ctx, backend.TableMovies, payload, &created); err != nil {
		return "", errors.Wrap(err, "[SaveMovie] insert movies")
	}
	return created.ID, nil
}

// DeleteMovie removes a movie together with its ratings
func (c *Catalog) DeleteMovie(ctx context.Context, movieID string) error {
	if err := c.data.Delete(ctx, backend.TableMovies, []backend.Filter{backend.Eq("id", movieID)}); err != nil {
		return errors.Wrap(err, "[DeleteMovie] delete movies")
	}
	return nil
}

func (c *Catalog) DeleteRating(ctx context.Context, ratingID string) error {
	if err := c.data.Delete(ctx, backend.TableRatings, []backend.Filter{backend.Eq("id", ratingID)}); err != nil {
		return errors.Wrap(err, "[DeleteRating] delete ratings")
	}
	return nil
}
