package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tenderscan/pncp-aggregator/pkg/pncp"
	"github.com/tenderscan/pncp-aggregator/pkg/query"
)

// noticeQuerier is the service contract the handler depends on.
type noticeQuerier interface {
	Query(ctx context.Context, spec query.Spec) (*query.Result, error)
}

// noticesHandler serves GET /api/v1/notices.
//
// Query parameters: modality (CSV of modality codes), uf (state code),
// municipality (IBGE code), q (keyword), page (1-based).
func noticesHandler(svc noticeQuerier, timeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		spec, err := parseSpec(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		result, err := svc.Query(ctx, spec)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "query failed")
			return
		}

		writeJSON(w, http.StatusOK, result)
	}
}

// parseSpec builds a query spec from request parameters.
func parseSpec(r *http.Request) (query.Spec, error) {
	q := r.URL.Query()
	spec := query.Spec{
		StateCode:        strings.ToUpper(strings.TrimSpace(q.Get("uf"))),
		MunicipalityCode: strings.TrimSpace(q.Get("municipality")),
		Keyword:          strings.TrimSpace(q.Get("q")),
		Page:             1,
	}

	if raw := q.Get("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil || page < 1 {
			return query.Spec{}, &paramError{"page must be a positive integer"}
		}
		spec.Page = page
	}

	if raw := q.Get("modality"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			code, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil || !pncp.KnownModality(code) {
				return query.Spec{}, &paramError{"modality must be a CSV of known modality codes"}
			}
			spec.Modalities = append(spec.Modalities, code)
		}
	}

	return spec, nil
}

type paramError struct {
	msg string
}

func (e *paramError) Error() string {
	return e.msg
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
