package domain

import "fmt"

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Page is the list envelope every collection endpoint returns.
type Page[T any] struct {
	Count    int64   `json:"count"`
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
	Results  []T     `json:"results"`
}

// ListParams is a normalized page/page_size pair.
type ListParams struct {
	Page int
	Size int
}

// Normalize clamps the params into range, defaulting page to 1.
func (p ListParams) Normalize() ListParams {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Size < 1 {
		p.Size = DefaultPageSize
	}
	if p.Size > MaxPageSize {
		p.Size = MaxPageSize
	}
	return p
}

// Offset is the SQL offset for the normalized params.
func (p ListParams) Offset() int {
	return (p.Page - 1) * p.Size
}

// NewPage wraps results in the pagination envelope. path is the request path
// used to build next/previous links.
func NewPage[T any](results []T, count int64, path string, params ListParams) Page[T] {
	if results == nil {
		results = []T{}
	}
	pg := Page[T]{Count: count, Results: results}
	if int64(params.Offset()+len(results)) < count {
		next := fmt.Sprintf("%s?page=%d&page_size=%d", path, params.Page+1, params.Size)
		pg.Next = &next
	}
	if params.Page > 1 {
		prev := fmt.Sprintf("%s?page=%d&page_size=%d", path, params.Page-1, params.Size)
		pg.Previous = &prev
	}
	return pg
}
