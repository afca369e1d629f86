package store

import (
	"strconv"
	"strings"
	"time"
)

// filterQuery accumulates optional WHERE conditions. Empty values add nothing.
type filterQuery struct {
	conds []string
	args  []any
}

func (q *filterQuery) equal(column, value string) {
	if value == "" {
		return
	}
	q.conds = append(q.conds, column+" = ?")
	q.args = append(q.args, value)
}

func (q *filterQuery) since(column string, t *time.Time) {
	if t == nil {
		return
	}
	q.conds = append(q.conds, column+" >= ?")
	q.args = append(q.args, *t)
}

// build appends the conditions, ordering and a positive limit to base.
func (q *filterQuery) build(base, orderBy string, limit int) (string, []any) {
	var b strings.Builder
	b.WriteString(base)
	if len(q.conds) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(q.conds, " AND "))
	}
	if orderBy != "" {
		b.WriteString(" ORDER BY ")
		b.WriteString(orderBy)
	}
	if limit > 0 {
		b.WriteString(" LIMIT ")
		b.WriteString(strconv.Itoa(limit))
	}
	return b.String(), q.args
}
