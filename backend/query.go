package backend

import (
	"fmt"
	"strconv"
	"strings"
)

// Filter is an equality condition on a column.
type Filter struct {
	Column string
	Value  string
}

// Eq builds an equality Filter
func Eq(column string, value any) Filter {
	return Filter{Column: column, Value: fmt.Sprint(value)}
}

// Order sorts results by a column.
type Order struct {
	Column    string
	Ascending bool
}

// Query selects rows from a table or view.
type Query struct {
	Table   string
	Columns []string // empty selects every column
	Filters []Filter
	Order   *Order
	Limit   int // zero means no limit
}

// From starts a Query on table
func From(table string) Query {
	return Query{Table: table}
}

// Select restricts the returned columns
func (q Query) Select(columns ...string) Query {
	q.Columns = append([]string(nil), columns...)
	return q
}

// Eq adds an equality filter
func (q Query) Eq(column string, value any) Query {
	q.Filters = append(append([]Filter(nil), q.Filters...), Eq(column, value))
	return q
}

// OrderBy sets the sort order
func (q Query) OrderBy(column string, ascending bool) Query {
	q.Order = &Order{Column: column, Ascending: ascending}
	return q
}

// WithLimit caps the number of rows returned
func (q Query) WithLimit(limit int) Query {
	q.Limit = limit
	return q
}

// Params renders the query in PostgREST query-string form, e.g.
// select=*&movie_id=eq.42&order=created_at.desc&limit=50
func (q Query) Params() map[string]string {
	params := map[string]string{}
	if len(q.Columns) > 0 {
		params["select"] = strings.Join(q.Columns, ",")
	} else {
		params["select"] = "*"
	}
	for k, v := range FilterParams(q.Filters) {
		params[k] = v
	}
	if q.Order != nil {
		direction := "desc"
		if q.Order.Ascending {
			direction = "asc"
		}
		params["order"] = q.Order.Column + "." + direction
	}
	if q.Limit > 0 {
		params["limit"] = strconv.Itoa(q.Limit)
	}
	return params
}

// FilterParams renders filters as PostgREST column=eq.value params
func FilterParams(filters []Filter) map[string]string {
	params := make(map[string]string, len(filters))
	for _, f := range filters {
		params[f.Column] = "eq." + f.Value
	}
	return params
}
