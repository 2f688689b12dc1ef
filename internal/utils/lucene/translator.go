// Package lucene translates Lucene-style search expressions into
// parameterized SQL predicates over the audit log columns. Only whitelisted
// fields are addressable; anything else fails translation instead of leaking
// into the query.
package lucene

import (
	"fmt"
	"strings"

	"github.com/grindlemire/go-lucene"
	"github.com/grindlemire/go-lucene/pkg/lucene/expr"
)

// auditFields maps query field names to audit_logs columns.
var auditFields = map[string]string{
	"eventtype":    "event_type",
	"event_type":   "event_type",
	"actor":        "actor",
	"actoremail":   "actor_email",
	"actor_email":  "actor_email",
	"resourcetype": "resource_type",
	"resource":     "resource_type",
	"resourceid":   "resource_id",
	"resource_id":  "resource_id",
	"action":       "action",
	"decision":     "decision",
	"reason":       "reason",
	"ip":           "ip",
	"useragent":    "user_agent",
	"user_agent":   "user_agent",
}

// bareTermColumns are searched when a term has no field qualifier.
var bareTermColumns = []string{"action", "reason", "actor_email"}

// IsLikelyLucene performs a cheap heuristic to identify Lucene-style queries
// (field:value pairs, boolean operators) before paying for a full parse.
func IsLikelyLucene(s string) bool {
	qs := strings.TrimSpace(s)
	if qs == "" {
		return false
	}
	if strings.Contains(qs, ":") {
		return true
	}
	upper := strings.ToUpper(qs)
	return strings.Contains(upper, " AND ") || strings.Contains(upper, " OR ") ||
		strings.Contains(upper, "NOT ")
}

// TranslateToSQL converts a Lucene expression into one parenthesized SQL
// clause plus its argument list. nextArg is the 1-based index of the first
// placeholder to mint, so the clause composes with an existing WHERE.
func TranslateToSQL(query string, nextArg int) (string, []any, error) {
	parsed, err := lucene.Parse(query)
	if err != nil {
		return "", nil, fmt.Errorf("parse search expression: %w", err)
	}
	b := &sqlBuilder{nextArg: nextArg}
	clause, err := b.build(parsed)
	if err != nil {
		return "", nil, err
	}
	return "(" + clause + ")", b.args, nil
}

type sqlBuilder struct {
	nextArg int
	args    []any
}

func (b *sqlBuilder) placeholder(value any) string {
	b.args = append(b.args, value)
	p := fmt.Sprintf("$%d", b.nextArg)
	b.nextArg++
	return p
}

func (b *sqlBuilder) build(e *expr.Expression) (string, error) {
	switch e.Op {
	case expr.And, expr.Or:
		left, ok := e.Left.(*expr.Expression)
		if !ok {
			return "", fmt.Errorf("malformed boolean expression")
		}
		right, ok := e.Right.(*expr.Expression)
		if !ok {
			return "", fmt.Errorf("malformed boolean expression")
		}
		ls, err := b.build(left)
		if err != nil {
			return "", err
		}
		rs, err := b.build(right)
		if err != nil {
			return "", err
		}
		op := "AND"
		if e.Op == expr.Or {
			op = "OR"
		}
		return fmt.Sprintf("(%s %s %s)", ls, op, rs), nil

	case expr.Not:
		right, ok := e.Right.(*expr.Expression)
		if !ok {
			return "", fmt.Errorf("malformed NOT expression")
		}
		rs, err := b.build(right)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("NOT %s", rs), nil

	case expr.Equals:
		field, value, err := fieldAndValue(e)
		if err != nil {
			return "", err
		}
		column, ok := auditFields[strings.ToLower(field)]
		if !ok {
			return "", fmt.Errorf("unknown search field %q", field)
		}
		if hasWildcard(value) {
			return fmt.Sprintf("%s ILIKE %s", column, b.placeholder(wildcardToLike(value))), nil
		}
		return fmt.Sprintf("%s = %s", column, b.placeholder(value)), nil

	case expr.Like:
		field, value, err := fieldAndValue(e)
		if err != nil {
			return "", err
		}
		column, ok := auditFields[strings.ToLower(field)]
		if !ok {
			return "", fmt.Errorf("unknown search field %q", field)
		}
		return fmt.Sprintf("%s ILIKE %s", column, b.placeholder(wildcardToLike(value))), nil

	case expr.Literal:
		str, ok := e.Left.(string)
		if !ok {
			return "", fmt.Errorf("unsupported bare term")
		}
		str = strings.Trim(str, `"`)
		parts := make([]string, 0, len(bareTermColumns))
		for _, col := range bareTermColumns {
			parts = append(parts, fmt.Sprintf("%s ILIKE %s", col, b.placeholder("%"+str+"%")))
		}
		return "(" + strings.Join(parts, " OR ") + ")", nil

	default:
		return "", fmt.Errorf("unsupported search operator %v", e.Op)
	}
}

// fieldAndValue unwraps a field:value pair from a go-lucene AST node.
func fieldAndValue(e *expr.Expression) (string, string, error) {
	var field, value string
	if left, ok := e.Left.(*expr.Expression); ok && left.Op == expr.Literal {
		if col, ok := left.Left.(expr.Column); ok {
			field = string(col)
		}
	}
	if right, ok := e.Right.(*expr.Expression); ok {
		switch right.Op {
		case expr.Literal, expr.Wild:
			if str, ok := right.Left.(string); ok {
				value = str
			}
		}
	}
	if field == "" || value == "" {
		return "", "", fmt.Errorf("malformed field expression")
	}
	return field, value, nil
}

func hasWildcard(s string) bool { return strings.ContainsAny(s, "*?") }

// wildcardToLike converts Lucene wildcards to SQL LIKE metacharacters,
// escaping any literal ones in the input.
func wildcardToLike(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '*':
			b.WriteByte('%')
		case '?':
			b.WriteByte('_')
		case '%', '_', '\\':
			b.WriteByte('\\')
			b.WriteByte(s[i])
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String()
}
