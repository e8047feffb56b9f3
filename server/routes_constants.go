package server

import "github.com/jrsteele09/movie-ratings/guard"

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	// Catalog
	RouteHome        = guard.DefaultView
	RouteMovie       = "/movie/{id}"
	RouteMovieRating = "/movie/{id}/rating"

	// Auth Routes
	RouteLogin          = guard.LoginView
	RouteAuthLogin      = "/auth/login"
	RouteAuthSignup     = "/auth/signup"
	RouteAuthLogout     = "/auth/logout"
	RouteForgotPassword = "/auth/forgot-password"
	RouteResetPassword  = "/reset-password"

	// Admin Routes
	RouteAdmin             = guard.AdminView
	RouteAdminMovieNew     = "/admin/movies/new"
	RouteAdminMovieEdit    = "/admin/movies/{id}/edit"
	RouteAdminMovies       = "/admin/movies"
	RouteAdminMovie        = "/admin/movies/{id}"
	RouteAdminMovieDelete  = "/admin/movies/{id}/delete"
	RouteAdminRatingDelete = "/admin/ratings/{id}/delete"
	RouteAdminUserRole     = "/admin/users/{id}/role"

	// Operational
	RouteHealth  = "/healthz"
	RouteMetrics = "/metrics"

	// Static Asset Routes (patterns)
	RouteStaticCSS    = "/css/{file}"
	RouteStaticImages = "/images/{file}"
)

// Admin dashboard tabs
const (
	TabMovies  = "movies"
	TabRatings = "ratings"
	TabUsers   = "users"
)

func movieURL(id string) string {
	return "/movie/" + id
}

func adminTabURL(tab string) string {
	return RouteAdmin + "?tab=" + tab
}
