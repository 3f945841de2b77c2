package freshness

import (
	"fmt"
	"strings"
)

// Key is the normalized refresh-bookkeeping signature for a query.
//
// Modality codes are deliberately excluded: a refresh cycle always fetches
// the full modality set, and modality subsets are filtered client-side after
// the fact, so freshness is a property of geography+keyword only.
type Key struct {
	// StateCode is the two-letter UF filter, if any.
	StateCode string

	// MunicipalityCode is the IBGE code filter, if any. Takes precedence
	// over StateCode, matching the upstream query construction.
	MunicipalityCode string

	// Keyword is the free-text filter, if any.
	Keyword string
}

// String generates the deterministic Redis key.
// Format: pncp:freshness:mun=3550308:q=merenda
func (k Key) String() string {
	parts := []string{"pncp", "freshness"}

	if k.MunicipalityCode != "" {
		parts = append(parts, fmt.Sprintf("mun=%s", k.MunicipalityCode))
	} else if k.StateCode != "" {
		parts = append(parts, fmt.Sprintf("uf=%s", strings.ToUpper(k.StateCode)))
	}

	if kw := strings.ToLower(strings.TrimSpace(k.Keyword)); kw != "" {
		parts = append(parts, fmt.Sprintf("q=%s", kw))
	}

	return strings.Join(parts, ":")
}
