package server

import (
	"net/http"
	"strings"

	"github.com/jrsteele09/movie-ratings/guard"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) initRoutes() {
	// CATALOG
	s.RegisterRouteHandler("GET /{$}", s.view(RouteHome, guard.RequireNone, s.HomeHandler()))
	s.RegisterRouteHandler("GET "+RouteMovie, s.view(RouteMovie, guard.RequireNone, s.MovieDetailHandler()))
	s.RegisterRouteHandler("POST "+RouteMovieRating, s.view(RouteMovieRating, guard.RequireAuthenticated, s.SubmitRatingHandler()))

	// LOGIN
	s.RegisterRouteHandler("GET "+RouteLogin, s.view(RouteLogin, guard.RequireNone, s.LoginPageHandler()))
	s.RegisterRouteHandler("POST "+RouteAuthLogin, s.view(RouteAuthLogin, guard.RequireNone, s.LoginSubmissionHandler()))
	s.RegisterRouteHandler("POST "+RouteAuthSignup, s.view(RouteAuthSignup, guard.RequireNone, s.SignupSubmissionHandler()))
	s.RegisterRouteHandler("POST "+RouteForgotPassword, s.view(RouteForgotPassword, guard.RequireNone, s.ForgotPasswordHandler()))
	s.RegisterRouteHandler("POST "+RouteAuthLogout, s.view(RouteAuthLogout, guard.RequireNone, s.LogoutHandler()))
	s.RegisterRouteHandler("GET "+RouteResetPassword, s.view(RouteResetPassword, guard.RequireNone, s.ResetPasswordHandler()))

	// ADMIN
	s.RegisterRouteHandler("GET "+RouteAdmin, s.view(RouteAdmin, guard.RequireAdmin, s.AdminDashboardHandler()))
	s.RegisterRouteHandler("GET "+RouteAdminMovieNew, s.view(RouteAdminMovieNew, guard.RequireAdmin, s.AdminMovieFormHandler()))
	s.RegisterRouteHandler("GET "+RouteAdminMovieEdit, s.view(RouteAdminMovieEdit, guard.RequireAdmin, s.AdminMovieFormHandler()))
	s.RegisterRouteHandler("POST "+RouteAdminMovies, s.view(RouteAdminMovies, guard.RequireAdmin, s.AdminSaveMovieHandler()))
	s.RegisterRouteHandler("POST "+RouteAdminMovie, s.view(RouteAdminMovie, guard.RequireAdmin, s.AdminSaveMovieHandler()))
	s.RegisterRouteHandler("POST "+RouteAdminMovieDelete, s.view(RouteAdminMovieDelete, guard.RequireAdmin, s.AdminDeleteMovieHandler()))
	s.RegisterRouteHandler("POST "+RouteAdminRatingDelete, s.view(RouteAdminRatingDelete, guard.RequireAdmin, s.AdminDeleteRatingHandler()))
	s.RegisterRouteHandler("POST "+RouteAdminUserRole, s.view(RouteAdminUserRole, guard.RequireAdmin, s.AdminUpdateRoleHandler()))

	// OPERATIONAL
	s.RegisterRouteHandler("GET "+RouteHealth, ChainMiddleware(s.HealthHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteMetrics, promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry}))

	s.RegisterRouteHandler("GET "+RouteStaticCSS, ChainMiddleware(s.serveFileHandler(), s.StaticMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteStaticImages, ChainMiddleware(s.serveFileHandler(), s.StaticMiddleware()...))
}

// view guards handler with requirement behind the HTML middleware chain.
// route labels the request metrics.
func (s *Server) view(route string, requirement guard.Requirement, handler http.HandlerFunc) http.Handler {
	return ChainMiddleware(handler, s.HTMLMiddleWare(route, s.RequireView(requirement))...)
}

func (s *Server) serveFileHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filePath := strings.TrimPrefix(r.URL.Path, "/")
		if filePath == "" {
			http.Error(w, "404 - Page Not Found", http.StatusNotFound)
			return
		}
		if err := StreamFile(w, r, filePath); err != nil {
			s.logger.Debug().Err(err).Str("path", filePath).Msg("static file not found")
			http.Error(w, "404 - Page Not Found", http.StatusNotFound)
			return
		}
	}
}
