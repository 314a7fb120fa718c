package domain

import "math"

type SortOrder int

const (
	SortNone SortOrder = iota
	SortPriceAsc
	SortPriceDesc
)

// ProductFilter is a store-neutral filter. Text and Category are
// case-insensitive substring matches; Text is tested against title,
// description and category.
type ProductFilter struct {
	Text     string
	Category string
	Status   *bool
}

type ProductQuery struct {
	Filter ProductFilter
	Sort   SortOrder
	Page   int // 1-indexed
	Limit  int
}

// Skip is the number of documents before the requested page. It saturates
// at math.MaxInt64 instead of wrapping.
func (q ProductQuery) Skip() int64 {
	if q.Page < 1 || q.Limit < 1 {
		return 0
	}
	pages, limit := int64(q.Page-1), int64(q.Limit)
	if pages > math.MaxInt64/limit {
		return math.MaxInt64
	}
	return pages * limit
}

// ProductPage is one page of products plus the total match count.
type ProductPage struct {
	Items []Product
	Total int64
}
