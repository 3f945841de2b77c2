package store

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestBuildReadQuery_NoFilter(t *testing.T) {
	query, args, err := buildReadQuery(Filter{})
	if err != nil {
		t.Fatalf("buildReadQuery() error = %v", err)
	}

	if strings.Contains(query, "WHERE") {
		t.Errorf("query has a WHERE clause for an empty filter: %s", query)
	}
	if len(args) != 0 {
		t.Errorf("args = %v, want none", args)
	}
	if !strings.Contains(query, "ORDER BY publication_date DESC NULLS LAST, external_id") {
		t.Errorf("query missing deterministic ordering: %s", query)
	}
}

func TestBuildReadQuery_StateFilter(t *testing.T) {
	query, args, err := buildReadQuery(Filter{StateCode: "SP"})
	if err != nil {
		t.Fatalf("buildReadQuery() error = %v", err)
	}

	if !strings.Contains(query, "state_code = $1") {
		t.Errorf("query = %s, want state_code equality", query)
	}
	if len(args) != 1 || args[0] != "SP" {
		t.Errorf("args = %v, want [SP]", args)
	}
}

func TestBuildReadQuery_MunicipalityWinsOverState(t *testing.T) {
	query, args, err := buildReadQuery(Filter{StateCode: "SP", MunicipalityCode: "3550308"})
	if err != nil {
		t.Fatalf("buildReadQuery() error = %v", err)
	}

	if !strings.Contains(query, "municipality_code = $1") {
		t.Errorf("query = %s, want municipality_code equality", query)
	}
	if strings.Contains(query, "state_code = ") {
		t.Errorf("query filters on state_code despite municipality: %s", query)
	}
	if len(args) != 1 || args[0] != "3550308" {
		t.Errorf("args = %v, want [3550308]", args)
	}
}

func TestBuildReadQuery_KeywordFilter(t *testing.T) {
	query, args, err := buildReadQuery(Filter{Keyword: "merenda"})
	if err != nil {
		t.Fatalf("buildReadQuery() error = %v", err)
	}

	if !strings.Contains(query, "title ILIKE") || !strings.Contains(query, "organization ILIKE") {
		t.Errorf("query = %s, want ILIKE over title and organization", query)
	}
	if !strings.Contains(query, " OR ") {
		t.Errorf("query = %s, want title/organization joined with OR", query)
	}

	want := "%merenda%"
	for _, a := range args {
		if a != want {
			t.Errorf("arg = %v, want %q", a, want)
		}
	}
}

func TestBuildReadQuery_CombinedFilter(t *testing.T) {
	query, args, err := buildReadQuery(Filter{StateCode: "RJ", Keyword: "obras"})
	if err != nil {
		t.Fatalf("buildReadQuery() error = %v", err)
	}

	if !strings.Contains(query, "state_code = $1") {
		t.Errorf("query = %s, want state filter first", query)
	}
	if len(args) != 3 {
		t.Errorf("args = %v, want state + two keyword patterns", args)
	}
}

func TestPartialWriteError(t *testing.T) {
	cause := errors.New("deadlock detected")
	err := &PartialWriteError{Written: 400, Err: cause}

	if !IsPartialWrite(err) {
		t.Error("IsPartialWrite() = false for a PartialWriteError")
	}
	if IsPartialWrite(cause) {
		t.Error("IsPartialWrite() = true for the bare cause")
	}
	if IsPartialWrite(nil) {
		t.Error("IsPartialWrite() = true for nil")
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is() cannot see through PartialWriteError")
	}

	wrapped := fmt.Errorf("refresh: %w", err)
	if !IsPartialWrite(wrapped) {
		t.Error("IsPartialWrite() = false through a wrapping layer")
	}
}
