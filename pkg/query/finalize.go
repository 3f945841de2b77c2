package query

import (
	"sort"
	"strings"

	"github.com/tenderscan/pncp-aggregator/pkg/domain"
)

// finalize deduplicates, filters, sorts, and slices store records into the
// requested page.
//
// Store reads should already be duplicate-free; the dedupe here is a
// defensive second pass, first occurrence wins. The keyword predicate is the
// same case-insensitive substring match the store applies at read time, so
// upstream-sourced and store-sourced records filter identically.
func finalize(notices []domain.Notice, spec Spec, pageSize int) Result {
	seen := make(map[string]struct{}, len(notices))
	modalities := modalitySet(spec.Modalities)
	keyword := strings.ToLower(strings.TrimSpace(spec.Keyword))

	filtered := make([]domain.Notice, 0, len(notices))
	for _, n := range notices {
		if _, dup := seen[n.ExternalID]; dup {
			continue
		}
		seen[n.ExternalID] = struct{}{}

		if modalities != nil {
			if _, ok := modalities[n.ModalityCode]; !ok {
				continue
			}
		}
		if keyword != "" && !matchesKeyword(n, keyword) {
			continue
		}
		filtered = append(filtered, n)
	}

	// Publication date descending; dateless notices sort after all dated
	// ones, otherwise the incoming order is preserved.
	sort.SliceStable(filtered, func(i, j int) bool {
		a, b := filtered[i].PublicationDate, filtered[j].PublicationDate
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.After(*b)
		}
	})

	total := len(filtered)
	totalPages := (total + pageSize - 1) / pageSize
	if totalPages < 1 {
		// Callers never divide by zero or read "no results" as "no pages".
		totalPages = 1
	}

	page := spec.page()
	start := (page - 1) * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}

	return Result{
		Items:      filtered[start:end],
		Total:      total,
		TotalPages: totalPages,
		Page:       page,
	}
}

// matchesKeyword reports whether the lowercased keyword occurs in the
// notice's title or organization.
func matchesKeyword(n domain.Notice, keyword string) bool {
	if n.Title != nil && strings.Contains(strings.ToLower(*n.Title), keyword) {
		return true
	}
	if n.Organization != nil && strings.Contains(strings.ToLower(*n.Organization), keyword) {
		return true
	}
	return false
}

// modalitySet converts a modality list into a membership set, nil when the
// list is empty (meaning no modality filter).
func modalitySet(codes []int) map[int]struct{} {
	if len(codes) == 0 {
		return nil
	}
	set := make(map[int]struct{}, len(codes))
	for _, c := range codes {
		set[c] = struct{}{}
	}
	return set
}
