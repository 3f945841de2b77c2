package pncp

import (
	"fmt"
	"time"

	"github.com/tenderscan/pncp-aggregator/pkg/domain"
)

// Expiration derivation windows. First available date wins; the windows are
// never combined.
const (
	expireAfterClose       = 30 * 24 * time.Hour
	expireAfterOpen        = 60 * 24 * time.Hour
	expireAfterPublication = 90 * 24 * time.Hour
	expireAfterIngest      = 90 * 24 * time.Hour
)

// pncpPortalFormat builds the canonical portal page for a notice when the
// origin system publishes no link of its own.
const pncpPortalFormat = "https://pncp.gov.br/app/editais/%s/%d/%d"

// Upstream timestamp layouts, most specific first. PNCP emits local
// timestamps without a zone designator.
var dateLayouts = []string{
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006-01-02",
}

// MapNotice converts a raw upstream record into a domain notice.
// now anchors the ingest-time expiration fallback.
func MapNotice(raw RawNotice, now time.Time) domain.Notice {
	pub := parseDate(raw.PublicationDate)
	open := parseDate(raw.ProposalOpen)
	closeAt := parseDate(raw.ProposalClose)

	return domain.Notice{
		ExternalID:        raw.ControlNumber,
		Title:             raw.ContractObject,
		Organization:      raw.Organization.LegalName,
		ModalityCode:      raw.ModalityID,
		ModalityLabel:     raw.ModalityName,
		Status:            raw.StatusName,
		Municipality:      raw.OrgUnit.Municipality,
		MunicipalityCode:  raw.OrgUnit.MunicipalityCode,
		StateCode:         raw.OrgUnit.StateCode,
		PublicationDate:   pub,
		ProposalOpenDate:  open,
		ProposalCloseDate: closeAt,
		ExpirationDate:    DeriveExpiration(closeAt, open, pub, now),
		EstimatedValue:    raw.EstimatedValue,
		OfficialLink:      OfficialLink(raw),
		RawPayload:        raw.Raw(),
	}
}

// DeriveExpiration computes the advisory expiration date by fixed
// precedence: proposal close + 30 days, else proposal open + 60 days, else
// publication + 90 days, else now + 90 days.
func DeriveExpiration(closeAt, open, pub *time.Time, now time.Time) time.Time {
	switch {
	case closeAt != nil:
		return closeAt.Add(expireAfterClose)
	case open != nil:
		return open.Add(expireAfterOpen)
	case pub != nil:
		return pub.Add(expireAfterPublication)
	default:
		return now.Add(expireAfterIngest)
	}
}

// OfficialLink returns the origin-system link when the upstream supplies
// one, otherwise the constructed PNCP portal URL.
func OfficialLink(raw RawNotice) string {
	if raw.OriginLink != nil && *raw.OriginLink != "" {
		return *raw.OriginLink
	}
	return fmt.Sprintf(pncpPortalFormat, raw.Organization.CNPJ, raw.PurchaseYear, raw.PurchaseSeq)
}

// parseDate converts an upstream timestamp string into a time, returning nil
// for absent or unparseable values. An unparseable date is treated as absent
// rather than failing the whole record.
func parseDate(s *string) *time.Time {
	if s == nil || *s == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, *s); err == nil {
			return &t
		}
	}
	return nil
}
