// Package database builds parameterized list queries with sanitized identifiers.
package database

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

type ConditionType string

const (
	Equal              ConditionType = "="
	NotEqual           ConditionType = "!="
	GreaterThan        ConditionType = ">"
	LessThan           ConditionType = "<"
	LessThanOrEqual    ConditionType = "<="
	GreaterThanOrEqual ConditionType = ">="
	Custom             ConditionType = "CUSTOM"
	defaultLimit                     = -1
	defaultOffset                    = -1
)

type Condition struct {
	Field    string
	Type     ConditionType
	Value    any
	rawQuery string
}

// WhereCond compares a column against a single bound value.
func WhereCond(field string, condType ConditionType, value any) Condition {
	if condType == Custom {
		//nolint:forbidigo // panic prevents misuse; custom conditions must provide raw SQL via WhereRawCond.
		panic("Use WhereRawCond for Custom type")
	}
	return Condition{Field: field, Type: condType, Value: value}
}

// WhereRawCond adds trusted SQL without parameters, such as "resource_id <> ''".
func WhereRawCond(rawQuery string) Condition {
	return Condition{Type: Custom, rawQuery: rawQuery}
}

// OrderTerm is one ORDER BY column and direction.
type OrderTerm struct {
	Column    string
	Direction string
}

type ListQueryOptions struct {
	Table      string
	Columns    []string
	CountOnly  bool
	Conditions []Condition
	OrderBy    []OrderTerm
	Limit      int
	Offset     int
}

type ListQueryOption func(*ListQueryOptions)

func NewListQueryOptions(table string, opts ...ListQueryOption) *ListQueryOptions {
	options := &ListQueryOptions{
		Table:  table,
		Limit:  defaultLimit,
		Offset: defaultOffset,
	}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

// WithColumns sets the select list. Column expressions are trusted and emitted verbatim.
func WithColumns(cols ...string) ListQueryOption {
	return func(o *ListQueryOptions) {
		o.Columns = cols
	}
}

// WithCondition adds a single condition.
func WithCondition(cond Condition) ListQueryOption {
	return func(o *ListQueryOptions) {
		o.Conditions = append(o.Conditions, cond)
	}
}

// WithOrderBy appends an ordering column and direction.
func WithOrderBy(column, direction string) ListQueryOption {
	return func(o *ListQueryOptions) {
		o.OrderBy = append(o.OrderBy, OrderTerm{Column: column, Direction: direction})
	}
}

// WithLimit sets the limit. Accepts 0.
func WithLimit(limit int) ListQueryOption {
	return func(o *ListQueryOptions) {
		if limit >= 0 {
			o.Limit = limit
		}
	}
}

// WithOffset sets the offset. Accepts 0.
func WithOffset(offset int) ListQueryOption {
	return func(o *ListQueryOptions) {
		if offset >= 0 {
			o.Offset = offset
		}
	}
}

// WithCountOnly sets the query to count only.
func WithCountOnly() ListQueryOption {
	return func(o *ListQueryOptions) {
		o.CountOnly = true
	}
}

// sanitizeQualifiedIdentifier quotes identifiers like "table.column" part by part.
func sanitizeQualifiedIdentifier(ident string) string {
	return pgx.Identifier(strings.Split(ident, ".")).Sanitize()
}

// BuildListQuery constructs a SQL query string and arguments from options.
//
//	query, args := BuildListQuery(NewListQueryOptions("audit_events",
//		WithColumns("id::text AS id", "action"),
//		WithCondition(WhereCond("user_id", Equal, "u1")),
//		WithOrderBy("occurred_at", "DESC"),
//		WithLimit(10),
//	))
func BuildListQuery(options *ListQueryOptions) (string, []any) {
	if options == nil {
		return "", nil
	}

	var query strings.Builder
	switch {
	case options.CountOnly:
		query.WriteString("SELECT COUNT(*) ")
	case len(options.Columns) == 0:
		query.WriteString("SELECT * ")
	default:
		query.WriteString("SELECT ")
		query.WriteString(strings.Join(options.Columns, ", "))
		query.WriteString(" ")
	}
	query.WriteString("FROM ")
	query.WriteString(sanitizeQualifiedIdentifier(options.Table))

	whereClause, args := buildWhereClause(options.Conditions)
	if whereClause != "" {
		query.WriteString(" ")
		query.WriteString(whereClause)
	}
	if options.CountOnly {
		return query.String(), args
	}

	terms := make([]string, 0, len(options.OrderBy))
	for _, t := range options.OrderBy {
		if t.Column == "" {
			continue
		}
		term := sanitizeQualifiedIdentifier(t.Column)
		if dir := strings.ToUpper(t.Direction); dir == "ASC" || dir == "DESC" {
			term += " " + dir
		}
		terms = append(terms, term)
	}
	if len(terms) > 0 {
		query.WriteString(" ORDER BY ")
		query.WriteString(strings.Join(terms, ", "))
	}

	if options.Limit != defaultLimit {
		args = append(args, options.Limit)
		fmt.Fprintf(&query, " LIMIT $%d", len(args))
	}
	if options.Offset != defaultOffset {
		args = append(args, options.Offset)
		fmt.Fprintf(&query, " OFFSET $%d", len(args))
	}

	return query.String(), args
}

// buildWhereClause joins conditions with AND, numbering parameters from $1.
func buildWhereClause(conds []Condition) (string, []any) {
	parts := make([]string, 0, len(conds))
	args := []any{}

	for _, cond := range conds {
		switch cond.Type {
		case Custom:
			if cond.rawQuery != "" {
				parts = append(parts, cond.rawQuery)
			}
		case Equal, NotEqual, GreaterThan, LessThan, LessThanOrEqual, GreaterThanOrEqual:
			if cond.Field == "" {
				continue
			}
			args = append(args, cond.Value)
			parts = append(parts, fmt.Sprintf("%s %s $%d", sanitizeQualifiedIdentifier(cond.Field), cond.Type, len(args)))
		}
	}

	if len(parts) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(parts, " AND "), args
}
