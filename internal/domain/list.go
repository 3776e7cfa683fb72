package domain

// DefaultPageSize is the page size used when a list query names none.
const DefaultPageSize = 25

// MaxPageSize caps the page size of list queries.
const MaxPageSize = 100

// Filter operators accepted by list queries.
const (
	OpEqual      = "eq"
	OpNotEqual   = "neq"
	OpContains   = "ct"
	OpStartsWith = "sw"
	OpGreater    = "gt"
	OpLess       = "lt"
	OpIn         = "in"
)

// ListFilter is a single column predicate of a list query.
type ListFilter struct {
	Col   string      `json:"col"`
	Opr   string      `json:"opr"`
	Value interface{} `json:"value"`
}

// ListQuery carries the decoded `q` argument of list endpoints.
type ListQuery struct {
	Filters        []ListFilter `json:"filters"`
	OrderColumn    string       `json:"order_column"`
	OrderDirection string       `json:"order_direction"`
	Page           int          `json:"page"`
	PageSize       int          `json:"page_size"`
}

// Limit returns the effective page size, clamped to [1, MaxPageSize].
func (q ListQuery) Limit() int {
	if q.PageSize <= 0 {
		return DefaultPageSize
	}
	if q.PageSize > MaxPageSize {
		return MaxPageSize
	}
	return q.PageSize
}

// Offset returns the row offset of the requested page.
func (q ListQuery) Offset() int {
	if q.Page <= 0 {
		return 0
	}
	return q.Page * q.Limit()
}

// Desc reports whether results are ordered descending.
func (q ListQuery) Desc() bool {
	return q.OrderDirection == "desc"
}
