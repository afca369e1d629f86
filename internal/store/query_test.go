package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFilterQuery(t *testing.T) {
	since := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	tests := []struct {
		name      string
		fill      func(q *filterQuery)
		limit     int
		wantQuery string
		wantArgs  []any
	}{
		{
			name:      "no conditions",
			fill:      func(*filterQuery) {},
			wantQuery: "SELECT * FROM t ORDER BY id",
		},
		{
			name: "empty values skipped",
			fill: func(q *filterQuery) {
				q.equal("graph_name", "")
				q.equal("status", "failed")
				q.since("created_at", nil)
			},
			limit:     5,
			wantQuery: "SELECT * FROM t WHERE status = ? ORDER BY id LIMIT 5",
			wantArgs:  []any{"failed"},
		},
		{
			name: "all",
			fill: func(q *filterQuery) {
				q.equal("graph_name", "door")
				q.since("created_at", &since)
			},
			wantQuery: "SELECT * FROM t WHERE graph_name = ? AND created_at >= ? ORDER BY id",
			wantArgs:  []any{"door", since},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var q filterQuery
			tc.fill(&q)
			query, args := q.build("SELECT * FROM t", "id", tc.limit)
			assert.Equal(t, tc.wantQuery, query)
			assert.Equal(t, tc.wantArgs, args)
		})
	}
}
