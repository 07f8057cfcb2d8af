package history

import "github.com/CTIDashboard/go-api/cti"

// Page returns the 1-indexed page of items. It does not clamp: a page number
// or size out of range yields an empty slice.
func Page(items []cti.HistoryEntry, pageSize, pageNumber int) []cti.HistoryEntry {
	if pageSize <= 0 || pageNumber < 1 {
		return []cti.HistoryEntry{}
	}
	start := (pageNumber - 1) * pageSize
	if start >= len(items) {
		return []cti.HistoryEntry{}
	}
	end := min(start+pageSize, len(items))

	out := make([]cti.HistoryEntry, end-start)
	copy(out, items[start:end])
	return out
}

// PageCount returns ceil(total/pageSize).
func PageCount(total, pageSize int) int {
	if pageSize <= 0 || total <= 0 {
		return 0
	}
	return (total + pageSize - 1) / pageSize
}

// ClampPage pins pageNumber to [1, PageCount]. An empty history clamps to 1.
func ClampPage(pageNumber, total, pageSize int) int {
	last := max(PageCount(total, pageSize), 1)
	return min(max(pageNumber, 1), last)
}
