package fhir

import (
	"fmt"
	"strings"
	"time"
)

// SearchParamType defines the FHIR search parameter type.
type SearchParamType int

const (
	SearchParamToken     SearchParamType = iota // exact match or system|code
	SearchParamDate                             // supports gt, lt, ge, le prefixes
	SearchParamReference                        // "ResourceType/uuid" or bare uuid
	SearchParamNumber                           // supports gt, lt, ge, le prefixes
)

// SearchParamConfig maps a FHIR search parameter to its database column.
type SearchParamConfig struct {
	Type      SearchParamType
	Column    string
	SysColumn string // system column for token params, optional
}

// SearchQuery accumulates SQL WHERE clauses from FHIR search parameters.
// It encapsulates the search pattern shared by the domain repositories.
type SearchQuery struct {
	where string
	args  []interface{}
	idx   int
}

func NewSearchQuery() *SearchQuery {
	return &SearchQuery{idx: 1}
}

// Add appends a raw clause with placeholders already numbered via Idx.
func (q *SearchQuery) Add(clause string, args ...interface{}) {
	q.where += " AND " + clause
	q.args = append(q.args, args...)
	q.idx += len(args)
}

// Idx returns the next available placeholder index.
func (q *SearchQuery) Idx() int { return q.idx }

// ApplyParam appends the clause for one search parameter.
func (q *SearchQuery) ApplyParam(cfg SearchParamConfig, value string) {
	switch cfg.Type {
	case SearchParamDate:
		clause, args, next := DateSearchClause(cfg.Column, value, q.idx)
		q.where += " AND " + clause
		q.args = append(q.args, args...)
		q.idx = next
	case SearchParamToken:
		clause, args, next := TokenSearchClause(cfg.SysColumn, cfg.Column, value, q.idx)
		q.where += " AND " + clause
		q.args = append(q.args, args...)
		q.idx = next
	case SearchParamReference:
		_, id := ParseReference(value)
		q.Add(fmt.Sprintf("%s = $%d", cfg.Column, q.idx), id)
	case SearchParamNumber:
		clause, args, next := NumberSearchClause(cfg.Column, value, q.idx)
		q.where += " AND " + clause
		q.args = append(q.args, args...)
		q.idx = next
	}
}

// Where returns the accumulated clause fragment (starts with " AND ...")
// and its arguments.
func (q *SearchQuery) Where() (string, []interface{}) {
	return q.where, q.args
}

// TokenSearchClause handles token values: system|code, system|, |code, or
// a bare code.
func TokenSearchClause(systemCol, codeCol, value string, argIdx int) (string, []interface{}, int) {
	if systemCol != "" && strings.Contains(value, "|") {
		parts := strings.SplitN(value, "|", 2)
		system, code := parts[0], parts[1]
		switch {
		case system != "" && code != "":
			clause := fmt.Sprintf("(%s = $%d AND %s = $%d)", systemCol, argIdx, codeCol, argIdx+1)
			return clause, []interface{}{system, code}, argIdx + 2
		case system != "":
			return fmt.Sprintf("%s = $%d", systemCol, argIdx), []interface{}{system}, argIdx + 1
		case code != "":
			return fmt.Sprintf("%s = $%d", codeCol, argIdx), []interface{}{code}, argIdx + 1
		}
	}
	return fmt.Sprintf("%s = $%d", codeCol, argIdx), []interface{}{value}, argIdx + 1
}

type searchPrefix string

const (
	prefixEq searchPrefix = "eq"
	prefixNe searchPrefix = "ne"
	prefixGt searchPrefix = "gt"
	prefixLt searchPrefix = "lt"
	prefixGe searchPrefix = "ge"
	prefixLe searchPrefix = "le"
)

func splitPrefix(value string) (searchPrefix, string) {
	if len(value) > 2 {
		switch p := searchPrefix(value[:2]); p {
		case prefixEq, prefixNe, prefixGt, prefixLt, prefixGe, prefixLe:
			return p, value[2:]
		}
	}
	return prefixEq, value
}

// DateSearchClause handles date parameters with FHIR comparison prefixes.
// A date-only value with the eq prefix matches the whole day.
func DateSearchClause(column, value string, argIdx int) (string, []interface{}, int) {
	prefix, raw := splitPrefix(value)

	t, err := parseFlexDate(raw)
	if err != nil {
		// Unparseable date: exact match on the raw string.
		return fmt.Sprintf("%s::text = $%d", column, argIdx), []interface{}{raw}, argIdx + 1
	}

	switch prefix {
	case prefixGt:
		return fmt.Sprintf("%s > $%d", column, argIdx), []interface{}{t}, argIdx + 1
	case prefixLt:
		return fmt.Sprintf("%s < $%d", column, argIdx), []interface{}{t}, argIdx + 1
	case prefixGe:
		return fmt.Sprintf("%s >= $%d", column, argIdx), []interface{}{t}, argIdx + 1
	case prefixLe:
		return fmt.Sprintf("%s <= $%d", column, argIdx), []interface{}{t}, argIdx + 1
	case prefixNe:
		return fmt.Sprintf("%s != $%d", column, argIdx), []interface{}{t}, argIdx + 1
	default:
		if len(raw) == 10 { // YYYY-MM-DD: match the entire day
			endOfDay := t.Add(24*time.Hour - time.Nanosecond)
			clause := fmt.Sprintf("(%s >= $%d AND %s <= $%d)", column, argIdx, column, argIdx+1)
			return clause, []interface{}{t, endOfDay}, argIdx + 2
		}
		return fmt.Sprintf("%s = $%d", column, argIdx), []interface{}{t}, argIdx + 1
	}
}

// NumberSearchClause handles number parameters with comparison prefixes.
func NumberSearchClause(column, value string, argIdx int) (string, []interface{}, int) {
	prefix, raw := splitPrefix(value)
	op := map[searchPrefix]string{
		prefixEq: "=", prefixNe: "!=", prefixGt: ">",
		prefixLt: "<", prefixGe: ">=", prefixLe: "<=",
	}[prefix]
	return fmt.Sprintf("%s %s $%d", column, op, argIdx), []interface{}{raw}, argIdx + 1
}

var dateFormats = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
	"2006-01",
	"2006",
}

func parseFlexDate(s string) (time.Time, error) {
	for _, f := range dateFormats {
		if t, err := time.Parse(f, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date format: %q", s)
}
