package persistence

import (
	"strings"

	"gorm.io/gorm/clause"
)

// sortColumns is the set of columns a list endpoint may order by. Requested
// keys outside the set fall back to the default column, so user input never
// reaches the ORDER BY clause unquoted.
type sortColumns struct {
	allowed  map[string]struct{}
	fallback string
}

func newSortColumns(fallback string, columns ...string) sortColumns {
	s := sortColumns{allowed: make(map[string]struct{}, len(columns)+1), fallback: fallback}
	s.allowed[fallback] = struct{}{}
	for _, c := range columns {
		s.allowed[c] = struct{}{}
	}
	return s
}

// orderBy resolves a requested key and direction. Only "asc" sorts
// ascending. Rows tie-break on id so pages are stable.
func (s sortColumns) orderBy(key, dir string) clause.OrderBy {
	col := strings.TrimSpace(key)
	if _, ok := s.allowed[col]; !ok {
		col = s.fallback
	}
	desc := !strings.EqualFold(strings.TrimSpace(dir), "asc")

	columns := []clause.OrderByColumn{{Column: clause.Column{Name: col}, Desc: desc}}
	if col != "id" {
		columns = append(columns, clause.OrderByColumn{Column: clause.Column{Name: "id"}})
	}
	return clause.OrderBy{Columns: columns}
}

var batchSortColumns = newSortColumns("received_at",
	"id", "created_at", "updated_at", "expiry_date", "quantity", "reorder_threshold", "lot_number", "status")
