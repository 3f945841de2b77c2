// Package domain defines the canonical procurement notice entity persisted
// by the aggregator.
package domain

import (
	"time"
)

// Notice is the canonical persisted procurement notice.
//
// ExternalID is the PNCP control number and the sole deduplication key. It is
// taken verbatim from the upstream payload and never regenerated from other
// fields. All other string and date fields are nullable: a nil pointer means
// the upstream omitted the field.
type Notice struct {
	// ExternalID is the stable upstream identifier (numeroControlePNCP).
	ExternalID string `json:"external_id"`

	// Title is the contract object description.
	Title *string `json:"title"`

	// Organization is the contracting body's legal name.
	Organization *string `json:"organization"`

	// ModalityCode is the contracting modality partition key.
	ModalityCode int `json:"modality_code"`

	// ModalityLabel is the upstream's human-readable modality name.
	ModalityLabel *string `json:"modality_label"`

	// Status is the upstream notice status (changes over time).
	Status *string `json:"status"`

	Municipality     *string `json:"municipality"`
	MunicipalityCode *string `json:"municipality_code"`
	StateCode        *string `json:"state_code"`

	// PublicationDate drives the result sort order. Notices without one sort
	// after all dated notices.
	PublicationDate   *time.Time `json:"publication_date"`
	ProposalOpenDate  *time.Time `json:"proposal_open_date"`
	ProposalCloseDate *time.Time `json:"proposal_close_date"`

	// ExpirationDate is derived at ingest time (see pncp.DeriveExpiration).
	// Advisory metadata only; it never triggers deletion.
	ExpirationDate time.Time `json:"expiration_date"`

	// EstimatedValue is the upstream's estimated contract value.
	EstimatedValue *float64 `json:"estimated_value"`

	// OfficialLink points at the notice on the origin system, or at the PNCP
	// portal page when the origin link is absent.
	OfficialLink string `json:"official_link"`

	// RawPayload is the original upstream record, retained verbatim for
	// forward compatibility with upstream schema changes.
	RawPayload []byte `json:"-"`
}
