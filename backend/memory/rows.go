package memory

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/jrsteele09/movie-ratings/backend"
	apperrors "github.com/jrsteele09/movie-ratings/internal/errors"
)

// timestampLayout sorts lexicographically in time order
const timestampLayout = "2006-01-02T15:04:05.000000Z07:00"

// row is the JSON representation of a stored record
type row map[string]any

type table struct {
	rows []row
	seq  int
}

func newTable() *table {
	return &table{}
}

func (t *table) insert(r row) {
	t.seq++
	r[seqColumn] = t.seq
	t.rows = append(t.rows, r)
}

// seqColumn is the hidden insertion order used to break sort ties
const seqColumn = "_seq"

// toRow converts a payload to its JSON row form
func toRow(payload any) (row, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrInternal, "encode payload: %v", err)
	}
	r := row{}
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrValidation, "payload is not an object: %v", err)
	}
	return r, nil
}

func (r row) clone() row {
	c := make(row, len(r))
	for k, v := range r {
		c[k] = v
	}
	return c
}

func (r row) str(column string) string {
	v, ok := r[column]
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

func (r row) matches(filters []backend.Filter) bool {
	for _, f := range filters {
		v, ok := r[f.Column]
		if !ok || v == nil || fmt.Sprint(v) != f.Value {
			return false
		}
	}
	return true
}

func filterRows(rows []row, filters []backend.Filter) []row {
	matched := make([]row, 0, len(rows))
	for _, r := range rows {
		if r.matches(filters) {
			matched = append(matched, r)
		}
	}
	return matched
}

func sortRows(rows []row, order *backend.Order) {
	sort.SliceStable(rows, func(i, j int) bool {
		if order != nil {
			c := compareValues(rows[i][order.Column], rows[j][order.Column])
			if c != 0 {
				if order.Ascending {
					return c < 0
				}
				return c > 0
			}
		}
		si, sj := seqOf(rows[i]), seqOf(rows[j])
		if order != nil && !order.Ascending {
			return si > sj
		}
		return si < sj
	})
}

func seqOf(r row) int {
	seq, _ := r[seqColumn].(int)
	return seq
}

// compareValues orders nil after every other value
func compareValues(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	if fa, ok := a.(float64); ok {
		if fb, ok := b.(float64); ok {
			switch {
			case fa < fb:
				return -1
			case fa > fb:
				return 1
			}
			return 0
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

// project keeps the requested columns. "*" keeps every column and embedded
// resources such as movies!inner(title) keep the embedded key.
func project(r row, columns []string) row {
	out := row{}
	if len(columns) == 0 {
		columns = []string{"*"}
	}
	for _, col := range columns {
		col = strings.TrimSpace(col)
		if col == "*" {
			for k, v := range r {
				out[k] = v
			}
			continue
		}
		if i := strings.IndexAny(col, "!("); i > 0 {
			col = col[:i]
		}
		if v, ok := r[col]; ok {
			out[col] = v
		}
	}
	delete(out, seqColumn)
	return out
}

// decode converts rows into dest through their JSON representation
func decode(rows any, dest any) error {
	if dest == nil {
		return nil
	}
	raw, err := json.Marshal(rows)
	if err != nil {
		return apperrors.Wrapf(apperrors.ErrInternal, "encode rows: %v", err)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return apperrors.Wrapf(apperrors.ErrInternal, "decode rows: %v", err)
	}
	return nil
}
