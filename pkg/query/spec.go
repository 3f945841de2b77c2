// Package query orchestrates the aggregation pipeline: freshness decision,
// upstream fan-out, store merge, and the final dedupe/filter/sort/paginate
// pass that produces the caller's page.
package query

import (
	"github.com/tenderscan/pncp-aggregator/pkg/domain"
)

// Spec is a request-scoped query description.
type Spec struct {
	// Modalities restricts results to the given contracting modality
	// codes. Empty means all modalities.
	Modalities []int

	// StateCode and MunicipalityCode filter by geography. Municipality,
	// when present, takes precedence; the two are never combined.
	StateCode        string
	MunicipalityCode string

	// Keyword filters by case-insensitive substring over title and
	// organization.
	Keyword string

	// Page is the 1-based result page. Values below 1 are treated as 1.
	Page int
}

// page returns the effective 1-based page number.
func (s Spec) page() int {
	if s.Page < 1 {
		return 1
	}
	return s.Page
}

// Result is the page returned to the caller.
type Result struct {
	Items      []domain.Notice `json:"items"`
	Total      int             `json:"total"`
	TotalPages int             `json:"total_pages"`
	Page       int             `json:"page"`

	// Partial reports that completeness is degraded: a partition failed,
	// a page walk was capped, or a store write only partially committed.
	// Total is then a lower-bound estimate, not an exact figure.
	Partial bool `json:"partial"`

	// Warning describes what degraded, empty when Partial is false.
	Warning string `json:"warning,omitempty"`
}
