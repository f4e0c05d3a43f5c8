package types

// PaginationResult is one page of a listing plus its navigation metadata.
type PaginationResult[T any] struct {
	Items           []T  `json:"items"`
	TotalItems      int  `json:"total_items"`
	Page            int  `json:"page"`
	PageSize        int  `json:"page_size"`
	TotalPages      int  `json:"total_pages"`
	HasNextPage     bool `json:"has_next_page"`
	HasPreviousPage bool `json:"has_previous_page"`
}

// NewPaginationResult builds the metadata for one page of items.
func NewPaginationResult[T any](items []T, totalItems, page, pageSize int) *PaginationResult[T] {
	totalPages := 0
	if pageSize > 0 {
		totalPages = (totalItems + pageSize - 1) / pageSize
	}
	return &PaginationResult[T]{
		Items:           items,
		TotalItems:      totalItems,
		Page:            page,
		PageSize:        pageSize,
		TotalPages:      totalPages,
		HasNextPage:     page < totalPages,
		HasPreviousPage: page > 1,
	}
}

// MapPage converts the items of a page, keeping its metadata. The first
// conversion error aborts the mapping.
func MapPage[T, U any](p *PaginationResult[T], fn func(*T) (U, error)) (*PaginationResult[U], error) {
	items := make([]U, 0, len(p.Items))
	for i := range p.Items {
		item, err := fn(&p.Items[i])
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return NewPaginationResult(items, p.TotalItems, p.Page, p.PageSize), nil
}
