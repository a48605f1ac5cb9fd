package httpengine

import "strconv"

// PageFetcher issues one OData-style $skip page and reports how many
// rows it contained; page bodies are handed to the caller's emit
// function, not buffered here.
type PageFetcher func(skip, pageSize int) (rowCount int, err error)

// PaginateOptions bounds a $skip-paginated fetch.
type PaginateOptions struct {
	PageSize int
	MaxPages int // 0 = unbounded
	MaxRows  int // 0 = unbounded
}

// Paginate drives an OData-style $skip loop: it calls fetch for
// successive pages of PageSize rows, stopping when a page returns fewer
// rows than PageSize (exhausted), or when MaxPages/MaxRows is reached.
func Paginate(opts PaginateOptions, fetch PageFetcher) error {
	if opts.PageSize <= 0 {
		opts.PageSize = 500
	}
	skip := 0
	rowsSeen := 0
	pagesSeen := 0
	for {
		if opts.MaxPages > 0 && pagesSeen >= opts.MaxPages {
			return nil
		}
		if opts.MaxRows > 0 && rowsSeen >= opts.MaxRows {
			return nil
		}
		rowCount, err := fetch(skip, opts.PageSize)
		if err != nil {
			return err
		}
		pagesSeen++
		rowsSeen += rowCount
		if rowCount < opts.PageSize {
			return nil
		}
		skip += opts.PageSize
	}
}

// SkipQuery renders the OData $skip/$top query string for one page.
func SkipQuery(skip, pageSize int) string {
	return "$skip=" + strconv.Itoa(skip) + "&$top=" + strconv.Itoa(pageSize)
}
