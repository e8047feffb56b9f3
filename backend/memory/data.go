package memory

import (
	"context"
	"strings"

	"github.com/jrsteele09/movie-ratings/backend"
	apperrors "github.com/jrsteele09/movie-ratings/internal/errors"
)

var _ backend.DataClient = (*Client)(nil)

// Client is the DataClient view of a Backend.
type Client struct {
	backend *Backend
	service bool
}

// caller is the principal a request runs as
type caller struct {
	id      string
	admin   bool
	service bool
}

func (c caller) privileged() bool {
	return c.service || c.admin
}

// callerLocked resolves the request principal; b.mu must be held
func (c *Client) callerLocked(ctx context.Context) (caller, error) {
	if c.service {
		return caller{service: true}, nil
	}
	session := backend.SessionFromContext(ctx)
	if session == nil || session.AccessToken == "" {
		return caller{}, nil
	}
	claims, err := c.backend.parseToken(session.AccessToken)
	if err != nil {
		return caller{}, err
	}
	return caller{id: claims.Subject, admin: c.backend.isAdminLocked(claims.Subject)}, nil
}

func (b *Backend) isAdminLocked(identityID string) bool {
	for _, r := range b.tables[backend.TableUsers].rows {
		if r.str("auth_user_id") == identityID {
			return r.str("role") == "admin"
		}
	}
	return false
}

func (c *Client) Select(ctx context.Context, q backend.Query, dest any) error {
	rows, err := c.query(ctx, q)
	if err != nil {
		return err
	}
	return decode(rows, dest)
}

func (c *Client) SelectOne(ctx context.Context, q backend.Query, dest any) error {
	rows, err := c.query(ctx, q)
	if err != nil {
		return err
	}
	switch len(rows) {
	case 0:
		return apperrors.Wrapf(apperrors.ErrNotFound, "[Client SelectOne] %s", q.Table)
	case 1:
		return decode(rows[0], dest)
	default:
		return apperrors.Wrapf(apperrors.ErrConflict, "[Client SelectOne] %s returned %d rows", q.Table, len(rows))
	}
}

func (c *Client) query(ctx context.Context, q backend.Query) ([]row, error) {
	b := c.backend
	b.mu.RLock()
	defer b.mu.RUnlock()

	if _, err := c.callerLocked(ctx); err != nil {
		return nil, err
	}
	source, err := b.relationLocked(q.Table)
	if err != nil {
		return nil, err
	}
	rows := filterRows(source, q.Filters)
	sortRows(rows, q.Order)
	if q.Limit > 0 && len(rows) > q.Limit {
		rows = rows[:q.Limit]
	}
	out := make([]row, len(rows))
	for i, r := range rows {
		out[i] = project(r, q.Columns)
	}
	return out, nil
}

// relationLocked returns copies of a table's rows or computes a view
func (b *Backend) relationLocked(name string) ([]row, error) {
	switch name {
	case backend.TableMovies, backend.TableRatings, backend.TableUsers:
		rows := b.tables[name].rows
		out := make([]row, len(rows))
		for i, r := range rows {
			out[i] = r.clone()
		}
		return out, nil
	case backend.ViewMovieStats:
		return b.movieStatsLocked(), nil
	case backend.ViewRatingWithUser:
		return b.ratingsWithUserLocked(), nil
	case backend.ViewUserProfile:
		return b.userProfilesLocked(), nil
	default:
		return nil, apperrors.Wrapf(apperrors.ErrUnsupported, "relation %q does not exist", name)
	}
}

func (b *Backend) movieStatsLocked() []row {
	type agg struct {
		sum   float64
		count int
	}
	stats := map[string]*agg{}
	for _, r := range b.tables[backend.TableRatings].rows {
		movieID := r.str("movie_id")
		if stats[movieID] == nil {
			stats[movieID] = &agg{}
		}
		stars, _ := r["rating"].(float64)
		stats[movieID].sum += stars
		stats[movieID].count++
	}

	movies := b.tables[backend.TableMovies].rows
	out := make([]row, 0, len(movies))
	for _, m := range movies {
		r := m.clone()
		r["average_rating"] = nil
		r["rating_count"] = float64(0)
		if s, ok := stats[m.str("id")]; ok && s.count > 0 {
			r["average_rating"] = s.sum / float64(s.count)
			r["rating_count"] = float64(s.count)
		}
		out = append(out, r)
	}
	return out
}

func (b *Backend) ratingsWithUserLocked() []row {
	titles := map[string]string{}
	for _, m := range b.tables[backend.TableMovies].rows {
		titles[m.str("id")] = m.str("title")
	}
	roles := map[string]string{}
	for _, u := range b.tables[backend.TableUsers].rows {
		roles[u.str("auth_user_id")] = u.str("role")
	}
	emails := b.emailsLocked()

	ratings := b.tables[backend.TableRatings].rows
	out := make([]row, 0, len(ratings))
	for _, rt := range ratings {
		r := rt.clone()
		userID := rt.str("user_id")
		r["user_email"] = nullable(emails[userID])
		r["user_role"] = nullable(roles[userID])
		r["movies"] = map[string]any{"title": titles[rt.str("movie_id")]}
		out = append(out, r)
	}
	return out
}

func (b *Backend) userProfilesLocked() []row {
	emails := b.emailsLocked()
	users := b.tables[backend.TableUsers].rows
	out := make([]row, 0, len(users))
	for _, u := range users {
		r := u.clone()
		r["email"] = nullable(emails[u.str("auth_user_id")])
		out = append(out, r)
	}
	return out
}

func (b *Backend) emailsLocked() map[string]string {
	emails := make(map[string]string, len(b.accounts))
	for _, acc := range b.accounts {
		emails[acc.ID] = acc.Email
	}
	return emails
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func (c *Client) Insert(ctx context.Context, table string, payload any, dest any) error {
	r, err := toRow(payload)
	if err != nil {
		return err
	}
	b := c.backend
	b.mu.Lock()
	defer b.mu.Unlock()

	who, err := c.callerLocked(ctx)
	if err != nil {
		return err
	}
	if err := b.insertLocked(who, table, r); err != nil {
		return err
	}
	return decode(project(r, nil), dest)
}

func (b *Backend) insertLocked(who caller, table string, r row) error {
	t, ok := b.tables[table]
	if !ok {
		return apperrors.Wrapf(apperrors.ErrUnsupported, "cannot insert into %q", table)
	}
	delete(r, seqColumn)

	switch table {
	case backend.TableMovies:
		if !who.privileged() {
			return apperrors.Wrapf(apperrors.ErrDenied, "new row violates row-level security policy for table %q", table)
		}
		if strings.TrimSpace(r.str("title")) == "" {
			return apperrors.NewValidationError("title", "Title is required")
		}
	case backend.TableRatings:
		if !who.service && (who.id == "" || r.str("user_id") != who.id) {
			return apperrors.Wrapf(apperrors.ErrDenied, "new row violates row-level security policy for table %q", table)
		}
		if err := checkStars(r); err != nil {
			return err
		}
		if !b.existsLocked(backend.TableMovies, "id", r.str("movie_id")) {
			return apperrors.Wrapf(apperrors.ErrConflict, "movie %q does not exist", r.str("movie_id"))
		}
		for _, existing := range t.rows {
			if existing.str("user_id") == r.str("user_id") && existing.str("movie_id") == r.str("movie_id") {
				return apperrors.Wrapf(apperrors.ErrConflict, "duplicate rating for movie %q", r.str("movie_id"))
			}
		}
	case backend.TableUsers:
		if r.str("role") == "" {
			r["role"] = "user"
		}
		if !who.privileged() && (who.id == "" || r.str("auth_user_id") != who.id || r.str("role") != "user") {
			return apperrors.Wrapf(apperrors.ErrDenied, "new row violates row-level security policy for table %q", table)
		}
		if r.str("role") != "user" && r.str("role") != "admin" {
			return apperrors.NewValidationError("role", "Role must be user or admin")
		}
		if b.existsLocked(backend.TableUsers, "auth_user_id", r.str("auth_user_id")) {
			return apperrors.Wrapf(apperrors.ErrConflict, "duplicate profile for %q", r.str("auth_user_id"))
		}
	}

	now := b.now().Format(timestampLayout)
	if r.str("id") == "" {
		r["id"] = newID()
	}
	if r.str("created_at") == "" {
		r["created_at"] = now
	}
	if table != backend.TableUsers {
		r["updated_at"] = now
	}
	t.insert(r)
	return nil
}

func checkStars(r row) error {
	stars, ok := r["rating"].(float64)
	if !ok || stars < 1 || stars > 5 || stars != float64(int(stars)) {
		return apperrors.NewValidationError("rating", "Rating must be between 1 and 5")
	}
	return nil
}

func (b *Backend) existsLocked(table, column, value string) bool {
	for _, r := range b.tables[table].rows {
		if r.str(column) == value {
			return true
		}
	}
	return false
}

// canWriteLocked is the update and delete policy. Rows it rejects are
// skipped without error.
func (b *Backend) canWriteLocked(who caller, table string, r row, deleting bool) bool {
	if who.service {
		return true
	}
	switch table {
	case backend.TableMovies:
		return who.admin
	case backend.TableRatings:
		if deleting && who.admin {
			return true
		}
		return who.id != "" && r.str("user_id") == who.id
	case backend.TableUsers:
		return who.admin && !deleting
	}
	return false
}

func (c *Client) Update(ctx context.Context, table string, filters []backend.Filter, payload any) error {
	patch, err := toRow(payload)
	if err != nil {
		return err
	}
	b := c.backend
	b.mu.Lock()
	defer b.mu.Unlock()

	who, err := c.callerLocked(ctx)
	if err != nil {
		return err
	}
	t, ok := b.tables[table]
	if !ok {
		return apperrors.Wrapf(apperrors.ErrUnsupported, "cannot update %q", table)
	}
	if err := validatePatch(table, patch); err != nil {
		return err
	}
	for _, r := range t.rows {
		if r.matches(filters) && b.canWriteLocked(who, table, r, false) {
			b.applyLocked(table, r, patch)
		}
	}
	return nil
}

func validatePatch(table string, patch row) error {
	delete(patch, seqColumn)
	delete(patch, "id")
	switch table {
	case backend.TableMovies:
		if title, ok := patch["title"]; ok && (title == nil || strings.TrimSpace(patch.str("title")) == "") {
			return apperrors.NewValidationError("title", "Title is required")
		}
	case backend.TableRatings:
		if _, ok := patch["rating"]; ok {
			return checkStars(patch)
		}
	case backend.TableUsers:
		if role, ok := patch["role"]; ok && role != "user" && role != "admin" {
			return apperrors.NewValidationError("role", "Role must be user or admin")
		}
	}
	return nil
}

func (b *Backend) applyLocked(table string, r row, patch row) {
	for k, v := range patch {
		r[k] = v
	}
	if table != backend.TableUsers {
		r["updated_at"] = b.now().Format(timestampLayout)
	}
}

func (c *Client) Upsert(ctx context.Context, table string, payload any, onConflict string) error {
	r, err := toRow(payload)
	if err != nil {
		return err
	}
	b := c.backend
	b.mu.Lock()
	defer b.mu.Unlock()

	who, err := c.callerLocked(ctx)
	if err != nil {
		return err
	}
	t, ok := b.tables[table]
	if !ok {
		return apperrors.Wrapf(apperrors.ErrUnsupported, "cannot upsert into %q", table)
	}

	var filters []backend.Filter
	for _, col := range strings.Split(onConflict, ",") {
		col = strings.TrimSpace(col)
		if col != "" {
			filters = append(filters, backend.Eq(col, r.str(col)))
		}
	}
	for _, existing := range t.rows {
		if len(filters) == 0 || !existing.matches(filters) {
			continue
		}
		allowed := b.canWriteLocked(who, table, existing, false)
		if !allowed && table == backend.TableUsers {
			// Owners may upsert their own profile as long as the role is unchanged
			allowed = who.id != "" && existing.str("auth_user_id") == who.id && (r.str("role") == "" || r.str("role") == existing.str("role"))
		}
		if !allowed {
			return apperrors.Wrapf(apperrors.ErrDenied, "row-level security policy for table %q", table)
		}
		if err := validatePatch(table, r); err != nil {
			return err
		}
		b.applyLocked(table, existing, r)
		return nil
	}
	return b.insertLocked(who, table, r)
}

func (c *Client) Delete(ctx context.Context, table string, filters []backend.Filter) error {
	b := c.backend
	b.mu.Lock()
	defer b.mu.Unlock()

	who, err := c.callerLocked(ctx)
	if err != nil {
		return err
	}
	t, ok := b.tables[table]
	if !ok {
		return apperrors.Wrapf(apperrors.ErrUnsupported, "cannot delete from %q", table)
	}

	kept := t.rows[:0]
	var removed []row
	for _, r := range t.rows {
		if r.matches(filters) && b.canWriteLocked(who, table, r, true) {
			removed = append(removed, r)
			continue
		}
		kept = append(kept, r)
	}
	t.rows = kept

	if table == backend.TableMovies {
		// ratings reference movies with on delete cascade
		ratings := b.tables[backend.TableRatings]
		for _, m := range removed {
			remaining := ratings.rows[:0]
			for _, rt := range ratings.rows {
				if rt.str("movie_id") != m.str("id") {
					remaining = append(remaining, rt)
				}
			}
			ratings.rows = remaining
		}
	}
	return nil
}
