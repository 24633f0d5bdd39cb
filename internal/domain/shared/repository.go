package shared

const (
	defaultPageSize = 20
	maxPageSize     = 200
)

// Filter narrows a list query. Filters holds exact-match conditions keyed by
// column name; repositories ignore keys they do not know.
type Filter struct {
	Page     int
	PageSize int
	OrderBy  string
	OrderDir string
	Filters  map[string]any
}

// DefaultFilter returns the first page, newest first
func DefaultFilter() Filter {
	return Filter{
		Page:     1,
		PageSize: defaultPageSize,
		OrderBy:  "created_at",
		OrderDir: "desc",
		Filters:  map[string]any{},
	}
}

// Limit clamps PageSize to [1, 200], with 20 for unset
func (f Filter) Limit() int {
	if f.PageSize <= 0 {
		return defaultPageSize
	}
	return min(f.PageSize, maxPageSize)
}

// Offset is the number of rows before Page
func (f Filter) Offset() int {
	if f.Page <= 1 {
		return 0
	}
	return (f.Page - 1) * f.Limit()
}
