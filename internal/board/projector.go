// Package board holds the viewport engine: the reconciler that keeps one
// owner's in-memory collection consistent with the store and the change
// feed, the pure projections the views render from, and the queue committer.
package board

import (
	"sort"
	"strconv"
	"strings"

	"github.com/spec-kit/talep-board/internal/domain"
)

// absentLast stands in for a missing position so unpositioned rows sort to
// the end, matching the stores' NULLS LAST reads.
const absentLast = 1e15

// GroupByStatus partitions items into the five fixed board columns. Rows
// with a missing or unrecognized status land in New. Each column is sorted
// board-order: position ascending, most recent update first on ties, id as
// the final tie-break.
func GroupByStatus(items []domain.Talep) map[domain.Status][]domain.Talep {
	grouped := make(map[domain.Status][]domain.Talep, len(domain.BoardColumns))
	for _, col := range domain.BoardColumns {
		grouped[col] = []domain.Talep{}
	}
	for _, item := range items {
		col := item.Status
		if !col.Known() {
			col = domain.StatusNew
		}
		grouped[col] = append(grouped[col], item)
	}
	for col := range grouped {
		sortBoardOrder(grouped[col])
	}
	return grouped
}

// FilterBySearch keeps rows whose id, title, description, status or any
// requester/assignee identity contains the query, case-insensitively. An
// empty query matches everything.
func FilterBySearch(items []domain.Talep, query string) []domain.Talep {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return items
	}
	matched := make([]domain.Talep, 0, len(items))
	for _, item := range items {
		haystack := strings.ToLower(strings.Join([]string{
			strconv.FormatInt(item.ID, 10),
			item.Title,
			item.Description,
			string(item.Status),
			item.RequesterEmail,
			item.RequesterName,
			item.AssigneeEmail,
			item.AssigneeName,
		}, " "))
		if strings.Contains(haystack, query) {
			matched = append(matched, item)
		}
	}
	return matched
}

// EligibleForQueue restricts to Queued rows, the only status orderable in
// the list view.
func EligibleForQueue(items []domain.Talep) []domain.Talep {
	eligible := make([]domain.Talep, 0, len(items))
	for _, item := range items {
		if item.Status == domain.StatusQueued {
			eligible = append(eligible, item)
		}
	}
	return eligible
}

// SortForListView orders by queue position ascending (absent last), then
// most recent update, then id. Returns a new slice.
func SortForListView(items []domain.Talep) []domain.Talep {
	sorted := append([]domain.Talep(nil), items...)
	sort.SliceStable(sorted, func(i, j int) bool {
		qi, qj := intKey(sorted[i].QueuePos), intKey(sorted[j].QueuePos)
		if qi != qj {
			return qi < qj
		}
		return laterThenID(&sorted[i], &sorted[j])
	})
	return sorted
}

// SortForBoardView orders by board position with the same tie-breaks.
// Returns a new slice.
func SortForBoardView(items []domain.Talep) []domain.Talep {
	sorted := append([]domain.Talep(nil), items...)
	sortBoardOrder(sorted)
	return sorted
}

// SortForView dispatches on the viewport's view.
func SortForView(items []domain.Talep, view domain.View) []domain.Talep {
	if view == domain.ViewList {
		return SortForListView(items)
	}
	return SortForBoardView(items)
}

func sortBoardOrder(items []domain.Talep) {
	sort.SliceStable(items, func(i, j int) bool {
		ki, kj := floatKey(items[i].BoardPos), floatKey(items[j].BoardPos)
		if ki != kj {
			return ki < kj
		}
		return laterThenID(&items[i], &items[j])
	})
}

func laterThenID(a, b *domain.Talep) bool {
	if !a.UpdatedAt.Equal(b.UpdatedAt) {
		return a.UpdatedAt.After(b.UpdatedAt)
	}
	return a.ID < b.ID
}

func floatKey(v *float64) float64 {
	if v == nil {
		return absentLast
	}
	return *v
}

func intKey(v *int) float64 {
	if v == nil {
		return absentLast
	}
	return float64(*v)
}
