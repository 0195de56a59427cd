package models

const (
	DefaultPaginationLimit = 30
	MaxPaginationLimit     = 500
)

type Pagination struct {
	// Limit is the maximum number of results to return.
	Limit int `json:"limit"`
	// Offset is the number of results to skip.
	Offset int `json:"offset"`
}

func NewPagination(limit int, offset int) Pagination {
	if limit <= 0 {
		limit = DefaultPaginationLimit
	}
	if limit > MaxPaginationLimit {
		limit = MaxPaginationLimit
	}
	if offset < 0 {
		offset = 0
	}
	return Pagination{Limit: limit, Offset: offset}
}
