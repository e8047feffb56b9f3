package server

import (
	"net/http"
	"strconv"

	"github.com/jrsteele09/movie-ratings/movies"
)

type homePage struct {
	Movies []movies.MovieWithStats
}

// HomeHandler renders the movie catalog
func (s *Server) HomeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := s.catalog.ListMovies(dataContext(r))
		if err != nil {
			s.failed(w, r, "failed to list movies", err)
			return
		}
		s.render(w, http.StatusOK, "home.html", s.newPageData(r, "Movies", homePage{Movies: list}))
	}
}

type moviePage struct {
	Movie      *movies.MovieWithStats
	Ratings    []movies.RatingWithUser
	UserRating *int
}

// MovieDetailHandler renders one movie with its ratings and, when signed in,
// the caller's rating form
func (s *Server) MovieDetailHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := dataContext(r)
		movieID := r.PathValue("id")

		movie, err := s.catalog.GetMovie(ctx, movieID)
		if err != nil {
			s.failed(w, r, "failed to load movie", err)
			return
		}
		ratings, err := s.catalog.RatingsForMovie(ctx, movieID)
		if err != nil {
			s.failed(w, r, "failed to load ratings", err)
			return
		}

		page := moviePage{Movie: movie, Ratings: ratings}
		if state := viewFrom(r).state; state.SignedIn() {
			page.UserRating, err = s.catalog.UserRating(ctx, state.Identity.ID, movieID)
			if err != nil {
				// The form still works without the current value
				s.logger.Warn().Err(err).Str("movie_id", movieID).Msg("failed to load user rating")
			}
		}
		s.render(w, http.StatusOK, "movie.html", s.newPageData(r, movie.Title, page))
	}
}

// SubmitRatingHandler creates or updates the caller's rating of a movie
func (s *Server) SubmitRatingHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		movieID := r.PathValue("id")
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form data", http.StatusBadRequest)
			return
		}
		stars, _ := strconv.Atoi(r.FormValue("rating")) // unparseable is 0, rejected below

		state := viewFrom(r).state
		if err := s.catalog.SubmitRating(dataContext(r), state.Identity.ID, movieID, stars); err != nil {
			s.logger.Debug().Err(err).Str("movie_id", movieID).Msg("rating rejected")
			redirectWithError(w, r, movieURL(movieID), err)
			return
		}
		redirectWithMessage(w, r, movieURL(movieID), "Your rating has been saved")
	}
}
