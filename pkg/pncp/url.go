package pncp

import (
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// DefaultBaseURL is the public PNCP consulta API.
const DefaultBaseURL = "https://pncp.gov.br/api/consulta"

// upstreamDateFormat is the AAAAMMDD format the consulta endpoint expects.
const upstreamDateFormat = "20060102"

// Query carries the upstream-facing filter parameters shared by every page
// request of an aggregation cycle. Municipality, when set, takes precedence
// over state; the two are never sent together.
type Query struct {
	// From and To bound the publication date range (inclusive).
	From time.Time
	To   time.Time

	// StateCode is the two-letter UF filter.
	StateCode string

	// MunicipalityCode is the IBGE municipality code filter.
	MunicipalityCode string

	// PageSize is the upstream page size (tamanhoPagina).
	PageSize int
}

// PageURL builds the consulta URL for one modality and page number.
func PageURL(base string, q Query, modality, page int) string {
	v := url.Values{}
	v.Set("dataInicial", q.From.Format(upstreamDateFormat))
	v.Set("dataFinal", q.To.Format(upstreamDateFormat))
	v.Set("codigoModalidadeContratacao", strconv.Itoa(modality))
	v.Set("pagina", strconv.Itoa(page))
	if q.PageSize > 0 {
		v.Set("tamanhoPagina", strconv.Itoa(q.PageSize))
	}
	if q.MunicipalityCode != "" {
		v.Set("codigoMunicipioIbge", q.MunicipalityCode)
	} else if q.StateCode != "" {
		v.Set("uf", q.StateCode)
	}
	return fmt.Sprintf("%s/v1/contratacoes/publicacao?%s", base, v.Encode())
}
