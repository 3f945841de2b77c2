// Package testutil provides testing utilities for the PNCP aggregator.
package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

// MockResponse defines the behavior of one mocked consulta response.
type MockResponse struct {
	StatusCode int
	Body       string
	Delay      time.Duration
}

// MockPNCP is a configurable mock consulta API for testing. Responses are
// keyed by modality code and page number, matching how the paginator
// addresses the upstream.
type MockPNCP struct {
	server *httptest.Server
	mu     sync.Mutex

	responses map[string][]MockResponse
	served    map[string]int

	RequestCount int
}

// NewMockPNCP creates a mock consulta server.
func NewMockPNCP() *MockPNCP {
	mock := &MockPNCP{
		responses: make(map[string][]MockResponse),
		served:    make(map[string]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		key := q.Get("codigoModalidadeContratacao") + "/" + q.Get("pagina")

		mock.mu.Lock()
		mock.RequestCount++
		queue, ok := mock.responses[key]
		idx := mock.served[key]
		if ok && idx < len(queue)-1 {
			mock.served[key] = idx + 1
		}
		mock.mu.Unlock()

		if !ok {
			// Unconfigured modality/page combinations have no content.
			w.WriteHeader(http.StatusNoContent)
			return
		}

		resp := queue[idx]
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}
		if resp.Body != "" {
			w.Header().Set("Content-Type", "application/json")
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	}))

	return mock
}

// BaseURL returns the mock server URL, usable as the consulta base.
func (m *MockPNCP) BaseURL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockPNCP) Close() {
	m.server.Close()
}

// SetPage configures the response for one modality/page combination.
func (m *MockPNCP) SetPage(modality, page int, resp MockResponse) {
	m.SetPageSequence(modality, page, resp)
}

// SetPageSequence configures successive responses for one modality/page
// combination; the last response repeats once the sequence is exhausted.
// Useful for 429-then-success retry scenarios.
func (m *MockPNCP) SetPageSequence(modality, page int, resps ...MockResponse) {
	key := fmt.Sprintf("%d/%d", modality, page)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[key] = resps
	m.served[key] = 0
}

// GetRequestCount returns the number of requests served.
func (m *MockPNCP) GetRequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.RequestCount
}

// PageBody renders a consulta page envelope with the given notice records.
func PageBody(totalRecords, totalPages, pageNumber int, records ...string) string {
	data := "["
	for i, r := range records {
		if i > 0 {
			data += ","
		}
		data += r
	}
	data += "]"
	return fmt.Sprintf(`{"data":%s,"totalRegistros":%d,"totalPaginas":%d,"numeroPagina":%d,"empty":%t}`,
		data, totalRecords, totalPages, pageNumber, len(records) == 0)
}

// NoticeBody renders a minimal raw notice record.
func NoticeBody(controlNumber, title, pubDate string, modality int) string {
	return fmt.Sprintf(`{
		"numeroControlePNCP": %q,
		"objetoCompra": %q,
		"modalidadeId": %d,
		"modalidadeNome": "Pregão - Eletrônico",
		"situacaoCompraNome": "Divulgada no PNCP",
		"dataPublicacaoPncp": %q,
		"anoCompra": 2024,
		"sequencialCompra": 42,
		"orgaoEntidade": {"razaoSocial": "Prefeitura Municipal de Teste", "cnpj": "00000000000191"},
		"unidadeOrgao": {"municipioNome": "São Paulo", "codigoIbge": "3550308", "ufSigla": "SP"}
	}`, controlNumber, title, modality, pubDate)
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"message": "Limite de requisições excedido"}`,
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"message": "Erro interno"}`,
	}
}

// NewNoContentResponse creates a 204 No Content response.
func NewNoContentResponse() MockResponse {
	return MockResponse{StatusCode: http.StatusNoContent}
}
