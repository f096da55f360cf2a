package fhir

import (
	"strings"
	"testing"
	"time"
)

func TestTokenSearchClause(t *testing.T) {
	cases := []struct {
		value      string
		wantClause string
		wantArgs   int
	}{
		{"active", "status = $1", 1},
		{"http://sys|active", "(code_system = $1 AND status = $2)", 2},
		{"http://sys|", "code_system = $1", 1},
		{"|active", "status = $1", 1},
	}
	for _, c := range cases {
		clause, args, next := TokenSearchClause("code_system", "status", c.value, 1)
		if clause != c.wantClause {
			t.Errorf("value %q: clause = %q, want %q", c.value, clause, c.wantClause)
		}
		if len(args) != c.wantArgs || next != 1+c.wantArgs {
			t.Errorf("value %q: args=%d next=%d, want %d args", c.value, len(args), next, c.wantArgs)
		}
	}
}

func TestTokenSearchClause_NoSystemColumn(t *testing.T) {
	clause, args, _ := TokenSearchClause("", "status", "a|b", 1)
	if clause != "status = $1" || args[0] != "a|b" {
		t.Errorf("bare token column mishandled pipe: %q %v", clause, args)
	}
}

func TestDateSearchClause_Prefixes(t *testing.T) {
	cases := []struct {
		value  string
		wantOp string
	}{
		{"gt2025-06-01", ">"},
		{"lt2025-06-01", "<"},
		{"ge2025-06-01", ">="},
		{"le2025-06-01", "<="},
		{"ne2025-06-01", "!="},
	}
	for _, c := range cases {
		clause, args, next := DateSearchClause("when_handed_over", c.value, 1)
		if !strings.Contains(clause, c.wantOp) {
			t.Errorf("value %q: clause = %q, want operator %q", c.value, clause, c.wantOp)
		}
		if len(args) != 1 || next != 2 {
			t.Errorf("value %q: args=%d next=%d", c.value, len(args), next)
		}
	}
}

func TestDateSearchClause_WholeDayEquality(t *testing.T) {
	clause, args, next := DateSearchClause("when_handed_over", "2025-06-01", 1)
	if !strings.Contains(clause, ">=") || !strings.Contains(clause, "<=") {
		t.Errorf("day equality should produce a range, got %q", clause)
	}
	if len(args) != 2 || next != 3 {
		t.Fatalf("args=%d next=%d, want 2 and 3", len(args), next)
	}
	start := args[0].(time.Time)
	end := args[1].(time.Time)
	if !end.After(start) || end.Sub(start) >= 24*time.Hour {
		t.Errorf("range [%v, %v] does not span one day", start, end)
	}
}

func TestSearchQuery_AccumulatesParams(t *testing.T) {
	q := NewSearchQuery()
	q.ApplyParam(SearchParamConfig{Type: SearchParamReference, Column: "patient_id"}, "Patient/abc")
	q.ApplyParam(SearchParamConfig{Type: SearchParamToken, Column: "status"}, "completed")
	where, args := q.Where()
	if !strings.Contains(where, "patient_id = $1") || !strings.Contains(where, "status = $2") {
		t.Errorf("where = %q", where)
	}
	if args[0] != "abc" || args[1] != "completed" {
		t.Errorf("args = %v", args)
	}
}

func TestParseReference(t *testing.T) {
	rt, id := ParseReference("Patient/123")
	if rt != "Patient" || id != "123" {
		t.Errorf("ParseReference = %q, %q", rt, id)
	}
	rt, id = ParseReference("123")
	if rt != "" || id != "123" {
		t.Errorf("bare id: %q, %q", rt, id)
	}
}

func TestNewSearchBundle(t *testing.T) {
	b := NewSearchBundle([]interface{}{map[string]string{"resourceType": "Observation"}}, 5, nil)
	if b.Type != "searchset" || *b.Total != 5 || len(b.Entry) != 1 {
		t.Errorf("bundle = %+v", b)
	}
	if b.Entry[0].Search.Mode != "match" {
		t.Errorf("entry mode = %q", b.Entry[0].Search.Mode)
	}
}
