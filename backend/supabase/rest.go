package supabase

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/jrsteele09/movie-ratings/backend"
	apperrors "github.com/jrsteele09/movie-ratings/internal/errors"
)

var _ backend.DataClient = (*REST)(nil)

// REST is the PostgREST data client.
type REST struct {
	client  *Client
	service bool
}

type postgrestError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

func (r *REST) bearer(ctx context.Context) string {
	if r.service {
		return r.client.cfg.ServiceKey
	}
	return bearerFor(ctx)
}

func toValues(params map[string]string) url.Values {
	values := url.Values{}
	for k, v := range params {
		values.Set(k, v)
	}
	return values
}

func (r *REST) Select(ctx context.Context, q backend.Query, dest any) error {
	return r.client.do(ctx, request{
		service:   "postgrest",
		operation: "select",
		method:    http.MethodGet,
		path:      quoteTable(q.Table),
		query:     toValues(q.Params()),
		bearer:    r.bearer(ctx),
	}, dest, mapRESTError)
}

func (r *REST) SelectOne(ctx context.Context, q backend.Query, dest any) error {
	return r.client.do(ctx, request{
		service:   "postgrest",
		operation: "select_one",
		method:    http.MethodGet,
		path:      quoteTable(q.Table),
		query:     toValues(q.Params()),
		bearer:    r.bearer(ctx),
		headers:   map[string]string{"Accept": "application/vnd.pgrst.object+json"},
	}, dest, mapRESTError)
}

func (r *REST) Insert(ctx context.Context, table string, payload any, dest any) error {
	req := request{
		service:   "postgrest",
		operation: "insert",
		method:    http.MethodPost,
		path:      quoteTable(table),
		body:      payload,
		bearer:    r.bearer(ctx),
		headers:   map[string]string{"Prefer": "return=minimal"},
	}
	if dest == nil {
		return r.client.do(ctx, req, nil, mapRESTError)
	}

	req.headers["Prefer"] = "return=representation"
	var rows []json.RawMessage
	if err := r.client.do(ctx, req, &rows, mapRESTError); err != nil {
		return err
	}
	if len(rows) == 0 {
		return apperrors.Wrapf(apperrors.ErrDenied, "[REST Insert] %s returned no representation", table)
	}
	if err := json.Unmarshal(rows[0], dest); err != nil {
		return apperrors.Wrapf(apperrors.ErrInternal, "[REST Insert] decode %s row: %v", table, err)
	}
	return nil
}

func (r *REST) Update(ctx context.Context, table string, filters []backend.Filter, payload any) error {
	return r.client.do(ctx, request{
		service:   "postgrest",
		operation: "update",
		method:    http.MethodPatch,
		path:      quoteTable(table),
		query:     toValues(backend.FilterParams(filters)),
		body:      payload,
		bearer:    r.bearer(ctx),
		headers:   map[string]string{"Prefer": "return=minimal"},
	}, nil, mapRESTError)
}

func (r *REST) Upsert(ctx context.Context, table string, payload any, onConflict string) error {
	query := url.Values{}
	if onConflict != "" {
		query.Set("on_conflict", onConflict)
	}
	return r.client.do(ctx, request{
		service:   "postgrest",
		operation: "upsert",
		method:    http.MethodPost,
		path:      quoteTable(table),
		query:     query,
		body:      payload,
		bearer:    r.bearer(ctx),
		headers:   map[string]string{"Prefer": "resolution=merge-duplicates,return=minimal"},
	}, nil, mapRESTError)
}

func (r *REST) Delete(ctx context.Context, table string, filters []backend.Filter) error {
	return r.client.do(ctx, request{
		service:   "postgrest",
		operation: "delete",
		method:    http.MethodDelete,
		path:      quoteTable(table),
		query:     toValues(backend.FilterParams(filters)),
		bearer:    r.bearer(ctx),
		headers:   map[string]string{"Prefer": "return=minimal"},
	}, nil, mapRESTError)
}

func mapRESTError(status int, body []byte) error {
	var e postgrestError
	_ = json.Unmarshal(body, &e)
	message := describe(e.Message, e.Details, e.Hint)

	switch e.Code {
	case "PGRST116":
		// object requested, zero or many rows matched
		if strings.Contains(e.Details, "0 rows") {
			return apperrors.Wrapf(apperrors.ErrNotFound, "%s", message)
		}
		return apperrors.Wrapf(apperrors.ErrConflict, "%s: %s", message, e.Details)
	case "42501", "PGRST301", "PGRST302":
		return apperrors.Wrapf(apperrors.ErrDenied, "%s", message)
	case "23505", "23503":
		return apperrors.Wrapf(apperrors.ErrConflict, "%s", message)
	case "23502", "23514", "22P02", "22001":
		return apperrors.NewValidationError("payload", message)
	case "42P01", "PGRST205":
		return apperrors.Wrapf(apperrors.ErrUnsupported, "%s", message)
	}
	if status == http.StatusNotFound {
		return apperrors.Wrapf(apperrors.ErrUnsupported, "%s", message)
	}
	return statusError(status, message)
}
