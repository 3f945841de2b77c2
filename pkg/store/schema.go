package store

import (
	"context"
	"fmt"
)

// schemaSQL creates the notice table and its read-path indexes. Idempotent
// so every process can run it at startup.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS notices (
	external_id         text PRIMARY KEY,
	title               text,
	organization        text,
	modality_code       integer NOT NULL,
	modality_label      text,
	status              text,
	municipality        text,
	municipality_code   text,
	state_code          text,
	publication_date    timestamptz,
	proposal_open_date  timestamptz,
	proposal_close_date timestamptz,
	expiration_date     timestamptz NOT NULL,
	estimated_value     double precision,
	official_link       text NOT NULL,
	raw_payload         jsonb,
	updated_at          timestamptz NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS notices_publication_date_idx
	ON notices (publication_date DESC NULLS LAST);

CREATE INDEX IF NOT EXISTS notices_state_code_idx
	ON notices (state_code);

CREATE INDEX IF NOT EXISTS notices_municipality_code_idx
	ON notices (municipality_code);
`

// EnsureSchema creates the storage schema when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
