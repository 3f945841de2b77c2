// Package pncp binds the aggregator to the PNCP consulta API: modality
// codes, wire types, URL construction, and the mapping from raw upstream
// records to domain notices.
package pncp

import (
	"encoding/json"
)

// Contracting modality codes as published by PNCP. These are the partition
// keys: the consulta endpoint requires exactly one per request, so "search
// everything" means aggregating across all of them.
const (
	ModalityElectronicAuction   = 1  // Leilão - Eletrônico
	ModalityCompetitiveDialogue = 2  // Diálogo Competitivo
	ModalityContest             = 3  // Concurso
	ModalityElectronicBidding   = 4  // Concorrência - Eletrônica
	ModalityInPersonBidding     = 5  // Concorrência - Presencial
	ModalityElectronicReverse   = 6  // Pregão - Eletrônico
	ModalityInPersonReverse     = 7  // Pregão - Presencial
	ModalityWaiver              = 8  // Dispensa de Licitação
	ModalityUnenforceability    = 9  // Inexigibilidade
	ModalityInterestExpression  = 10 // Manifestação de Interesse
	ModalityPreQualification    = 11 // Pré-qualificação
	ModalityAccreditation       = 12 // Credenciamento
	ModalityInPersonAuction     = 13 // Leilão - Presencial
)

// AllModalities returns every known modality code. A refresh cycle always
// fetches the full set so the persisted store stays modality-complete;
// requested modality subsets are filtered client-side afterwards.
func AllModalities() []int {
	return []int{
		ModalityElectronicAuction,
		ModalityCompetitiveDialogue,
		ModalityContest,
		ModalityElectronicBidding,
		ModalityInPersonBidding,
		ModalityElectronicReverse,
		ModalityInPersonReverse,
		ModalityWaiver,
		ModalityUnenforceability,
		ModalityInterestExpression,
		ModalityPreQualification,
		ModalityAccreditation,
		ModalityInPersonAuction,
	}
}

// KnownModality reports whether code is a valid PNCP modality code.
func KnownModality(code int) bool {
	return code >= ModalityElectronicAuction && code <= ModalityInPersonAuction
}

// PageResponse is the consulta endpoint's paginated envelope.
type PageResponse struct {
	Data         []RawNotice `json:"data"`
	TotalRecords int         `json:"totalRegistros"`
	TotalPages   int         `json:"totalPaginas"`
	PageNumber   int         `json:"numeroPagina"`
	Empty        bool        `json:"empty"`
}

// RawNotice mirrors the subset of the upstream contratacao record the
// aggregator maps. The full payload is kept alongside for persistence.
type RawNotice struct {
	ControlNumber   string   `json:"numeroControlePNCP"`
	ContractObject  *string  `json:"objetoCompra"`
	ModalityID      int      `json:"modalidadeId"`
	ModalityName    *string  `json:"modalidadeNome"`
	StatusName      *string  `json:"situacaoCompraNome"`
	PublicationDate *string  `json:"dataPublicacaoPncp"`
	ProposalOpen    *string  `json:"dataAberturaProposta"`
	ProposalClose   *string  `json:"dataEncerramentoProposta"`
	EstimatedValue  *float64 `json:"valorTotalEstimado"`
	OriginLink      *string  `json:"linkSistemaOrigem"`
	PurchaseYear    int      `json:"anoCompra"`
	PurchaseSeq     int      `json:"sequencialCompra"`

	Organization struct {
		LegalName *string `json:"razaoSocial"`
		CNPJ      string  `json:"cnpj"`
	} `json:"orgaoEntidade"`

	OrgUnit struct {
		Municipality     *string `json:"municipioNome"`
		MunicipalityCode *string `json:"codigoIbge"`
		StateCode        *string `json:"ufSigla"`
	} `json:"unidadeOrgao"`

	// raw is the undecoded record, captured during page decoding so the
	// original payload can be persisted verbatim.
	raw json.RawMessage
}

// Raw returns the original upstream JSON for this record.
func (n *RawNotice) Raw() []byte {
	return n.raw
}

// UnmarshalJSON decodes the known fields and retains the raw payload.
func (n *RawNotice) UnmarshalJSON(data []byte) error {
	type alias RawNotice
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*n = RawNotice(a)
	n.raw = append([]byte(nil), data...)
	return nil
}
