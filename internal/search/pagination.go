package search

// Pagination item types.
const (
	PageItemNumber   = "page"
	PageItemEllipsis = "ellipsis"
)

// PageItem is one entry of the page list.
type PageItem struct {
	Type    string `json:"type"`
	Number  int    `json:"number,omitempty"`
	Current bool   `json:"current,omitempty"`
}

// Pagination describes the page controls under a result grid.
type Pagination struct {
	Current      int        `json:"current"`
	Total        int        `json:"total"`
	Prev         int        `json:"prev"`
	Next         int        `json:"next"`
	PrevDisabled bool       `json:"prev_disabled"`
	NextDisabled bool       `json:"next_disabled"`
	Items        []PageItem `json:"items"`
}

// BuildPagination returns nil when there is at most one page. Otherwise the
// page list holds the first and last page, current±1, and ellipses for gaps.
func BuildPagination(current, total int) *Pagination {
	if total <= 1 {
		return nil
	}
	if current < 1 {
		current = 1
	}
	if current > total {
		current = total
	}

	p := &Pagination{
		Current:      current,
		Total:        total,
		Prev:         max(current-1, 1),
		Next:         min(current+1, total),
		PrevDisabled: current <= 1,
		NextDisabled: current >= total,
	}

	const window = 1
	start := max(current-window, 2)
	end := min(current+window, total-1)

	p.Items = append(p.Items, PageItem{Type: PageItemNumber, Number: 1, Current: current == 1})
	if start > 2 {
		p.Items = append(p.Items, PageItem{Type: PageItemEllipsis})
	}
	for i := start; i <= end; i++ {
		p.Items = append(p.Items, PageItem{Type: PageItemNumber, Number: i, Current: i == current})
	}
	if end < total-1 {
		p.Items = append(p.Items, PageItem{Type: PageItemEllipsis})
	}
	p.Items = append(p.Items, PageItem{Type: PageItemNumber, Number: total, Current: current == total})
	return p
}
