//go:build integration

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/tenderscan/pncp-aggregator/pkg/pncp"
)

// setupPostgres starts a Postgres container and returns a connected store
func setupPostgres(t *testing.T) (*Store, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "notices_test",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	pgContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Postgres container: %v", err)
	}

	endpoint, err := pgContainer.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("Failed to get Postgres endpoint: %v", err)
	}

	url := fmt.Sprintf("postgres://test:test@%s/notices_test?sslmode=disable", endpoint)
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		t.Fatalf("Failed to connect to Postgres: %v", err)
	}

	store := New(pool, zerolog.Nop())
	if err := store.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}

	cleanup := func() {
		pool.Close()
		pgContainer.Terminate(ctx)
	}

	return store, cleanup
}

func rawNoticeJSON(t *testing.T, controlNumber, title, status, uf, pubDate string, modality int) pncp.RawNotice {
	t.Helper()

	payload := fmt.Sprintf(`{
		"numeroControlePNCP": %q,
		"objetoCompra": %q,
		"modalidadeId": %d,
		"situacaoCompraNome": %q,
		"dataPublicacaoPncp": %q,
		"orgaoEntidade": {"razaoSocial": "Prefeitura Municipal de Teste"},
		"unidadeOrgao": {"municipioNome": "Campinas", "codigoIbge": "3509502", "ufSigla": %q}
	}`, controlNumber, title, modality, status, pubDate, uf)

	var raw pncp.RawNotice
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		t.Fatalf("unmarshal raw notice: %v", err)
	}
	return raw
}

func TestStore_Integration_UpsertAndRead(t *testing.T) {
	store, cleanup := setupPostgres(t)
	defer cleanup()
	ctx := context.Background()

	raws := []pncp.RawNotice{
		rawNoticeJSON(t, "pncp-1", "Aquisição de merenda escolar", "Divulgada no PNCP", "SP", "2024-03-01T10:00:00", 6),
		rawNoticeJSON(t, "pncp-2", "Obras de pavimentação", "Divulgada no PNCP", "SP", "2024-02-01T10:00:00", 4),
	}

	written, err := store.Upsert(ctx, raws)
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if written != 2 {
		t.Errorf("Upsert() written = %d, want 2", written)
	}

	got, err := store.Read(ctx, Filter{})
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Read() returned %d notices, want 2", len(got))
	}
	// Newest publication first.
	if got[0].ExternalID != "pncp-1" || got[1].ExternalID != "pncp-2" {
		t.Errorf("order = %q, %q, want pncp-1 then pncp-2", got[0].ExternalID, got[1].ExternalID)
	}
	if got[0].ExpirationDate.IsZero() {
		t.Error("ExpirationDate not derived on write")
	}
	if len(got[0].RawPayload) == 0 || !json.Valid(got[0].RawPayload) {
		t.Error("RawPayload not preserved as valid JSON")
	}
}

func TestStore_Integration_UpsertIsIdempotent(t *testing.T) {
	store, cleanup := setupPostgres(t)
	defer cleanup()
	ctx := context.Background()

	first := rawNoticeJSON(t, "pncp-1", "Aquisição de merenda", "Divulgada no PNCP", "SP", "2024-03-01T10:00:00", 6)
	if _, err := store.Upsert(ctx, []pncp.RawNotice{first}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	// Same external identifier with updated status: must merge, not duplicate.
	updated := rawNoticeJSON(t, "pncp-1", "Aquisição de merenda", "Homologada", "SP", "2024-03-01T10:00:00", 6)
	if _, err := store.Upsert(ctx, []pncp.RawNotice{updated}); err != nil {
		t.Fatalf("Upsert() second pass error = %v", err)
	}

	got, err := store.Read(ctx, Filter{})
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Read() returned %d notices after double upsert, want 1", len(got))
	}
	if got[0].Status == nil || *got[0].Status != "Homologada" {
		t.Errorf("Status = %v, want last write to win", got[0].Status)
	}
}

func TestStore_Integration_SkipsRecordsWithoutControlNumber(t *testing.T) {
	store, cleanup := setupPostgres(t)
	defer cleanup()
	ctx := context.Background()

	raws := []pncp.RawNotice{
		rawNoticeJSON(t, "", "Sem identificador", "Divulgada no PNCP", "SP", "2024-01-01T10:00:00", 6),
		rawNoticeJSON(t, "pncp-1", "Com identificador", "Divulgada no PNCP", "SP", "2024-01-01T10:00:00", 6),
	}

	written, err := store.Upsert(ctx, raws)
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if written != 1 {
		t.Errorf("Upsert() written = %d, want 1 (unidentifiable record dropped)", written)
	}
}

func TestStore_Integration_FilteredReads(t *testing.T) {
	store, cleanup := setupPostgres(t)
	defer cleanup()
	ctx := context.Background()

	raws := []pncp.RawNotice{
		rawNoticeJSON(t, "sp-1", "Aquisição de merenda escolar", "Divulgada no PNCP", "SP", "2024-03-01T10:00:00", 6),
		rawNoticeJSON(t, "rj-1", "Serviços de limpeza", "Divulgada no PNCP", "RJ", "2024-02-01T10:00:00", 8),
	}
	if _, err := store.Upsert(ctx, raws); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	byState, err := store.Read(ctx, Filter{StateCode: "RJ"})
	if err != nil {
		t.Fatalf("Read(state) error = %v", err)
	}
	if len(byState) != 1 || byState[0].ExternalID != "rj-1" {
		t.Errorf("state filter returned %+v, want rj-1 only", byState)
	}

	byKeyword, err := store.Read(ctx, Filter{Keyword: "MERENDA"})
	if err != nil {
		t.Fatalf("Read(keyword) error = %v", err)
	}
	if len(byKeyword) != 1 || byKeyword[0].ExternalID != "sp-1" {
		t.Errorf("keyword filter returned %+v, want sp-1 only", byKeyword)
	}

	byMunicipality, err := store.Read(ctx, Filter{StateCode: "RJ", MunicipalityCode: "3509502"})
	if err != nil {
		t.Fatalf("Read(municipality) error = %v", err)
	}
	// Both rows share the municipality; the state filter must be ignored.
	if len(byMunicipality) != 2 {
		t.Errorf("municipality filter returned %d rows, want 2 (municipality wins over state)", len(byMunicipality))
	}
}
