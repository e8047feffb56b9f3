package server

import (
	"net/http"

	apperrors "github.com/jrsteele09/movie-ratings/internal/errors"
	"github.com/jrsteele09/movie-ratings/internal/utils"
	"github.com/jrsteele09/movie-ratings/movies"
	"github.com/jrsteele09/movie-ratings/users"
)

type adminPage struct {
	Tab     string
	Movies  []movies.MovieWithStats
	Ratings []movies.RatingWithUser
	Users   []*users.Profile
	Roles   []users.RoleType
}

// AdminDashboardHandler renders the movies, ratings or users tab
func (s *Server) AdminDashboardHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := dataContext(r)
		page := adminPage{Tab: r.URL.Query().Get("tab")}

		var err error
		switch page.Tab {
		case TabRatings:
			page.Ratings, err = s.catalog.RecentRatings(ctx)
		case TabUsers:
			page.Users, err = s.profiles.List(ctx)
			page.Roles = []users.RoleType{users.RoleUser, users.RoleAdmin}
		default:
			page.Tab = TabMovies
			page.Movies, err = s.catalog.ListMovies(ctx)
		}
		if err != nil {
			s.failed(w, r, "failed to load admin tab", err)
			return
		}
		s.render(w, http.StatusOK, "admin.html", s.newPageData(r, "Admin", page))
	}
}

type movieFormPage struct {
	Movie   movies.MovieInput
	Editing bool
}

// AdminMovieFormHandler renders the add movie form, or the edit form when
// the route carries a movie id
func (s *Server) AdminMovieFormHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		movieID := r.PathValue("id")
		if movieID == "" {
			s.render(w, http.StatusOK, "movie_form.html", s.newPageData(r, "Add movie", movieFormPage{}))
			return
		}

		movie, err := s.catalog.GetMovie(dataContext(r), movieID)
		if err != nil {
			s.failed(w, r, "failed to load movie", err)
			return
		}
		page := movieFormPage{
			Editing: true,
			Movie: movies.MovieInput{
				ID:            movie.ID,
				Title:         movie.Title,
				Description:   utils.Value(movie.Description),
				CoverImageURL: utils.Value(movie.CoverImageURL),
			},
		}
		s.render(w, http.StatusOK, "movie_form.html", s.newPageData(r, "Edit movie", page))
	}
}

// AdminSaveMovieHandler creates or updates a movie. Validation failures
// re-render the form with the submitted values.
func (s *Server) AdminSaveMovieHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form data", http.StatusBadRequest)
			return
		}
		in := movies.MovieInput{
			ID:            r.PathValue("id"),
			Title:         r.FormValue("title"),
			Description:   r.FormValue("description"),
			CoverImageURL: r.FormValue("cover_image_url"),
		}

		if _, err := s.catalog.SaveMovie(dataContext(r), in); err != nil {
			if apperrors.Kind(err) == apperrors.KindValidation {
				data := s.newPageData(r, "Movie", movieFormPage{Movie: in, Editing: in.ID != ""})
				data.Error = apperrors.UserMessage(err)
				s.render(w, http.StatusBadRequest, "movie_form.html", data)
				return
			}
			s.logger.Warn().Err(err).Str("movie_id", in.ID).Msg("failed to save movie")
			redirectWithError(w, r, adminTabURL(TabMovies), err)
			return
		}
		redirectWithMessage(w, r, adminTabURL(TabMovies), "Movie saved")
	}
}

// AdminDeleteMovieHandler deletes a movie and, with it, its ratings
func (s *Server) AdminDeleteMovieHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.catalog.DeleteMovie(dataContext(r), r.PathValue("id")); err != nil {
			s.logger.Warn().Err(err).Msg("failed to delete movie")
			redirectWithError(w, r, adminTabURL(TabMovies), err)
			return
		}
		redirectWithMessage(w, r, adminTabURL(TabMovies), "Movie deleted")
	}
}

func (s *Server) AdminDeleteRatingHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.catalog.DeleteRating(dataContext(r), r.PathValue("id")); err != nil {
			s.logger.Warn().Err(err).Msg("failed to delete rating")
			redirectWithError(w, r, adminTabURL(TabRatings), err)
			return
		}
		redirectWithMessage(w, r, adminTabURL(TabRatings), "Rating deleted")
	}
}

// AdminUpdateRoleHandler changes the role of the identity in the route
func (s *Server) AdminUpdateRoleHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form data", http.StatusBadRequest)
			return
		}
		role, err := users.ParseRole(r.FormValue("role"))
		if err != nil {
			redirectWithError(w, r, adminTabURL(TabUsers), err)
			return
		}

		browser := viewFrom(r).browser
		if err := browser.coordinator.UpdateRole(r.Context(), r.PathValue("id"), role); err != nil {
			s.logger.Warn().Err(err).Msg("failed to update role")
			redirectWithError(w, r, adminTabURL(TabUsers), err)
			return
		}
		redirectWithMessage(w, r, adminTabURL(TabUsers), "Role updated")
	}
}
